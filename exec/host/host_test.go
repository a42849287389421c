package host

import (
	"sync/atomic"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"

	glerrors "github.com/glera/glera/errors"
	"github.com/glera/glera/exec"
	"github.com/glera/glera/memspace"
)

func TestRunExecutesHostCallable(t *testing.T) {
	e, err := New()
	require.NoError(t, err)
	defer e.Close()
	require.Equal(t, exec.Host, e.Kind())
	require.NotEmpty(t, e.ID())

	ran := false
	op := exec.NewOperation("fill").OnHost(func(on exec.Executor) error {
		require.Same(t, e, on)
		ran = true
		return nil
	})
	require.NoError(t, e.Run(op))
	require.True(t, ran)
	// Host executors are always synchronized.
	require.NoError(t, e.Synchronize())
}

func TestRunMissingCallable(t *testing.T) {
	e, err := New()
	require.NoError(t, err)
	defer e.Close()
	op := exec.NewOperation("gpu-only").OnCUDA(func(exec.Executor) error { return nil })
	require.ErrorIs(t, e.Run(op), glerrors.ErrUnsupportedOperation)
}

func TestRunPropagatesKernelError(t *testing.T) {
	e, err := New()
	require.NoError(t, err)
	defer e.Close()
	boom := errors.New("singular matrix")
	op := exec.NewOperation("solve").OnHost(func(exec.Executor) error { return boom })
	require.ErrorIs(t, e.Run(op), boom)
}

func TestMasterAndSubExecutor(t *testing.T) {
	e, err := New()
	require.NoError(t, err)
	defer e.Close()
	require.Same(t, e, e.Master())
	require.Same(t, e, e.SubExecutor())
}

func TestSpaceValidation(t *testing.T) {
	space := memspace.NewHost()
	e, err := New(WithSpace(space))
	require.NoError(t, err)
	require.Same(t, space, e.MemSpace())
	e.Close()

	_, err = New(WithSpace(memspace.NewDevice("cuda", 0)))
	require.ErrorIs(t, err, glerrors.ErrConfigurationMismatch)
}

func TestClosedExecutorRejectsWork(t *testing.T) {
	e, err := New()
	require.NoError(t, err)
	require.NoError(t, e.Close())
	require.NoError(t, e.Close()) // idempotent

	op := exec.NewOperation("noop").OnHost(func(exec.Executor) error { return nil })
	require.ErrorIs(t, e.Run(op), glerrors.ErrClosed)
	require.ErrorIs(t, e.Synchronize(), glerrors.ErrClosed)
}

func TestConstructorRegistered(t *testing.T) {
	e, err := exec.NewWithConfig(BackendName)
	require.NoError(t, err)
	defer e.Close()
	require.Equal(t, exec.Host, e.Kind())
}

func TestParallelizeCoversAllIndices(t *testing.T) {
	e, err := New()
	require.NoError(t, err)
	defer e.Close()

	const n = 1000
	var hits [n]atomic.Int32
	e.Workers().Parallelize(n, func(i int) { hits[i].Add(1) })
	for i := range hits {
		require.Equal(t, int32(1), hits[i].Load(), "index %d", i)
	}
}

func TestParallelizeDisabledRunsInline(t *testing.T) {
	e, err := New(WithMaxParallelism(0))
	require.NoError(t, err)
	defer e.Close()
	require.False(t, e.Workers().IsEnabled())

	var order []int
	e.Workers().Parallelize(4, func(i int) { order = append(order, i) })
	require.Equal(t, []int{0, 1, 2, 3}, order)
}

func TestPoolStartIfAvailable(t *testing.T) {
	p := newPool()
	p.SetMaxParallelism(1)

	block := make(chan struct{})
	done := make(chan struct{})
	for i := 0; i < goroutineToParallelismRatio; i++ {
		require.True(t, p.StartIfAvailable(func() { <-block; done <- struct{}{} }))
	}
	// The hard cap is reached, no worker is free.
	require.False(t, p.StartIfAvailable(func() {}))

	// A sleeping worker raises the limit for one more.
	p.WorkerIsAsleep()
	require.True(t, p.StartIfAvailable(func() { <-block; done <- struct{}{} }))
	p.WorkerRestarted()

	close(block)
	for i := 0; i < goroutineToParallelismRatio+1; i++ {
		<-done
	}
}
