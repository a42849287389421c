package exec

import (
	"github.com/glera/glera/memspace"
)

// Copy moves n elements of type T from src to dst through the executor.
//
// It is a blocking copy: it first synchronizes the executor, so data written
// by previously issued operations is visible, and any deferred asynchronous
// failure surfaces here instead of being lost. Copies between locations with
// no direct transfer path stage through the host transparently.
func Copy[T any](e Executor, n int, src, dst *memspace.Buffer) error {
	if err := e.Synchronize(); err != nil {
		return err
	}
	return memspace.Copy[T](n, src, dst)
}

// CopyValToHost is a convenience single-element copy that always
// materializes the host-visible value at index idx of the buffer.
//
// Like Copy it synchronizes the executor first.
func CopyValToHost[T any](e Executor, b *memspace.Buffer, idx int) (T, error) {
	if err := e.Synchronize(); err != nil {
		var zero T
		return zero, err
	}
	return memspace.CopyValToHost[T](b, idx)
}
