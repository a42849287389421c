// Package host implements the host-parallel executor.
//
// Operations run synchronously on the calling goroutine; kernels that want
// to fan out across CPU cores use the executor's cooperative worker pool.
// The executor is therefore always synchronized, and it is its own master
// and sub-executor.
package host

import (
	"fmt"
	"sync/atomic"

	"github.com/google/uuid"

	glerrors "github.com/glera/glera/errors"
	"github.com/glera/glera/exec"
	"github.com/glera/glera/memspace"
)

// BackendName is the name under which this backend registers its
// constructor, for use in GLERA_EXECUTOR.
const BackendName = "host"

func init() {
	exec.Register(BackendName, func(config string) (exec.Executor, error) {
		return New()
	})
}

// Executor is the host-parallel backend.
type Executor struct {
	id      string
	space   *memspace.Space
	sinks   exec.Sinks
	workers *Pool
	closed  atomic.Bool
}

var _ exec.Executor = (*Executor)(nil)

// Option configures a host executor at construction.
type Option func(*Executor)

// WithSpace binds the executor to an existing memory space instead of
// creating a fresh host space. The space's location must be host.
func WithSpace(space *memspace.Space) Option {
	return func(e *Executor) { e.space = space }
}

// WithSinks attaches event sinks.
func WithSinks(sinks ...exec.EventSink) Option {
	return func(e *Executor) { e.sinks = append(e.sinks, sinks...) }
}

// WithMaxParallelism sets the worker pool's soft parallelism target.
// Zero disables parallelism, negative values remove the limit.
func WithMaxParallelism(n int) Option {
	return func(e *Executor) { e.workers.SetMaxParallelism(n) }
}

// New creates a host executor. By default it owns a fresh host memory space
// and a worker pool sized to the machine's CPU count.
func New(opts ...Option) (*Executor, error) {
	e := &Executor{
		id:      uuid.NewString(),
		workers: newPool(),
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.space == nil {
		e.space = memspace.NewHost()
	} else if e.space.Location().Kind != memspace.Host {
		return nil, glerrors.ConfigurationMismatchf(
			"host executor bound to a %s memory space", e.space.Location())
	}
	return e, nil
}

// Kind implements exec.Executor.
func (e *Executor) Kind() exec.Kind { return exec.Host }

// ID implements exec.Executor.
func (e *Executor) ID() string { return e.id }

// String implements fmt.Stringer.
func (e *Executor) String() string {
	return fmt.Sprintf("host executor (parallelism=%d)", e.workers.MaxParallelism())
}

// Run implements exec.Executor: the operation's host callable runs on the
// calling goroutine and Run only returns after it completed.
func (e *Executor) Run(op *exec.Operation) error {
	if e.closed.Load() {
		return glerrors.Closedf("Run(%q) on destroyed host executor", op.Name())
	}
	fn, err := exec.Resolve(exec.Host, op)
	if err != nil {
		return err
	}
	e.sinks.Launched(e, op.Name())
	if err := fn(e); err != nil {
		return err
	}
	e.sinks.Completed(e, op.Name())
	return nil
}

// Synchronize implements exec.Executor. The host backend executes
// synchronously, so there is never outstanding work.
func (e *Executor) Synchronize() error {
	if e.closed.Load() {
		return glerrors.Closedf("Synchronize on destroyed host executor")
	}
	return nil
}

// MemSpace implements exec.Executor.
func (e *Executor) MemSpace() *memspace.Space { return e.space }

// Master implements exec.Executor: a host executor is its own master.
func (e *Executor) Master() exec.Executor { return e }

// SubExecutor implements exec.Executor.
func (e *Executor) SubExecutor() exec.Executor { return e }

// Workers returns the executor's cooperative worker pool, for kernels that
// fan out work across cores.
func (e *Executor) Workers() *Pool { return e.workers }

// Close implements exec.Executor. Closing is idempotent.
func (e *Executor) Close() error {
	e.closed.Store(true)
	return nil
}
