// Package ref implements the debug/reference executor.
//
// It behaves like the host executor but runs everything on the calling
// goroutine with no parallel fan-out, which makes it the backend of choice
// for debugging kernels. An operation that carries no reference callable is
// dispatched to its host-parallel callable instead; that fallback is a fixed
// policy applied uniformly to every operation.
package ref

import (
	"sync/atomic"

	"github.com/google/uuid"

	glerrors "github.com/glera/glera/errors"
	"github.com/glera/glera/exec"
	"github.com/glera/glera/memspace"
)

// BackendName is the name under which this backend registers its
// constructor, for use in GLERA_EXECUTOR.
const BackendName = "reference"

func init() {
	exec.Register(BackendName, func(config string) (exec.Executor, error) {
		return New()
	})
}

// Executor is the debug/reference backend.
type Executor struct {
	id     string
	space  *memspace.Space
	sinks  exec.Sinks
	closed atomic.Bool
}

var _ exec.Executor = (*Executor)(nil)

// Option configures a reference executor at construction.
type Option func(*Executor)

// WithSpace binds the executor to an existing host memory space.
func WithSpace(space *memspace.Space) Option {
	return func(e *Executor) { e.space = space }
}

// WithSinks attaches event sinks.
func WithSinks(sinks ...exec.EventSink) Option {
	return func(e *Executor) { e.sinks = append(e.sinks, sinks...) }
}

// New creates a reference executor.
func New(opts ...Option) (*Executor, error) {
	e := &Executor{id: uuid.NewString()}
	for _, opt := range opts {
		opt(e)
	}
	if e.space == nil {
		e.space = memspace.NewHost()
	} else if e.space.Location().Kind != memspace.Host {
		return nil, glerrors.ConfigurationMismatchf(
			"reference executor bound to a %s memory space", e.space.Location())
	}
	return e, nil
}

// Kind implements exec.Executor.
func (e *Executor) Kind() exec.Kind { return exec.Reference }

// ID implements exec.Executor.
func (e *Executor) ID() string { return e.id }

// String implements fmt.Stringer.
func (e *Executor) String() string { return "reference executor" }

// Run implements exec.Executor, synchronously. Operations without a
// reference callable fall back to their host callable.
func (e *Executor) Run(op *exec.Operation) error {
	if e.closed.Load() {
		return glerrors.Closedf("Run(%q) on destroyed reference executor", op.Name())
	}
	fn, err := exec.Resolve(exec.Reference, op)
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

// Synchronize implements exec.Executor; the reference backend is always
// synchronized.
func (e *Executor) Synchronize() error {
	if e.closed.Load() {
		return glerrors.Closedf("Synchronize on destroyed reference executor")
	}
	return nil
}

// MemSpace implements exec.Executor.
func (e *Executor) MemSpace() *memspace.Space { return e.space }

// Master implements exec.Executor.
func (e *Executor) Master() exec.Executor { return e }

// SubExecutor implements exec.Executor.
func (e *Executor) SubExecutor() exec.Executor { return e }

// Close implements exec.Executor. Closing is idempotent.
func (e *Executor) Close() error {
	e.closed.Store(true)
	return nil
}
