package exec

import (
	glerrors "github.com/glera/glera/errors"
)

// Fn is one backend implementation of an Operation. The executor it runs on
// is passed in so the kernel can reach the memory space, worker pool, device
// handles or rank topology of its backend.
type Fn func(e Executor) error

// Operation is a unit of work carrying one implementation per backend kind.
//
// Arguments are captured by the closures when the operation is built, so
// they are forwarded by reference to whichever callable dispatch selects; no
// argument copies happen on the dispatch path.
//
// An Operation is immutable after the builder calls complete and may be run
// on any number of executors, concurrently.
type Operation struct {
	name  string
	impls [numKinds]Fn
}

// NewOperation starts building an operation with the given identifying name.
// The name is what event sinks see in launch/finish notifications.
//
// Chain the On* methods to supply per-backend callables:
//
//	op := exec.NewOperation("axpy").
//		OnHost(hostAxpy).
//		OnCUDA(cudaAxpy)
func NewOperation(name string) *Operation {
	return &Operation{name: name}
}

// Name returns the operation's identifying name.
func (op *Operation) Name() string { return op.name }

// OnHost sets the host-parallel implementation.
func (op *Operation) OnHost(fn Fn) *Operation {
	op.impls[Host] = fn
	return op
}

// OnReference sets the debug/reference implementation. If omitted, the
// reference backend reuses the host implementation; that fallback is a fixed
// policy, not configurable per operation.
func (op *Operation) OnReference(fn Fn) *Operation {
	op.impls[Reference] = fn
	return op
}

// OnCUDA sets the CUDA implementation.
func (op *Operation) OnCUDA(fn Fn) *Operation {
	op.impls[CUDA] = fn
	return op
}

// OnROCm sets the ROCm implementation.
func (op *Operation) OnROCm(fn Fn) *Operation {
	op.impls[ROCm] = fn
	return op
}

// OnDistributed sets the distributed-rank implementation.
func (op *Operation) OnDistributed(fn Fn) *Operation {
	op.impls[Distributed] = fn
	return op
}

// Resolve returns the callable the given executor kind dispatches to.
//
// The Reference kind silently falls back to the Host callable when its own
// slot is empty; every other kind must carry its own callable or resolution
// fails with ErrUnsupportedOperation.
func Resolve(k Kind, op *Operation) (Fn, error) {
	if k < 0 || k >= numKinds {
		return nil, glerrors.UnsupportedOperationf("operation %q dispatched to invalid kind %d", op.name, int(k))
	}
	fn := op.impls[k]
	if fn == nil && k == Reference {
		fn = op.impls[Host]
	}
	if fn == nil {
		return nil, glerrors.UnsupportedOperationf("operation %q has no implementation for the %s backend", op.name, k)
	}
	return fn, nil
}
