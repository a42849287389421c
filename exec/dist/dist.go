package dist

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"

	glerrors "github.com/glera/glera/errors"
	"github.com/glera/glera/exec"
	"github.com/glera/glera/exec/host"
	"github.com/glera/glera/memspace"
)

// Config assembles a distributed executor.
type Config struct {
	// Comm is this rank's transport endpoint. Required.
	Comm Comm

	// Sub is the nested executor doing rank-local numeric work. When nil a
	// fresh host executor is created.
	Sub exec.Executor

	// Root is the initial root rank of collectives; it can be changed later
	// with SetRootRank.
	Root int

	// Space optionally binds the executor to an existing distributed memory
	// space; when nil a fresh one is created.
	Space *memspace.Space

	// Sinks receive launch/finish notifications.
	Sinks []exec.EventSink
}

// Executor is one rank of the distributed backend.
//
// Collectives on it block the calling goroutine; non-blocking point-to-point
// variants return a Request. Operations dispatched with Run execute
// synchronously, like on the host backend, and typically call back into the
// collectives with the executor's Comm.
type Executor struct {
	id    string
	comm  Comm
	sub   exec.Executor
	space *memspace.Space
	sinks exec.Sinks

	// ownsSub is set when the executor created the sub-executor itself and
	// is therefore responsible for closing it.
	ownsSub bool

	mu   sync.Mutex
	root int

	closed atomic.Bool
}

var _ exec.Executor = (*Executor)(nil)

// New creates the executor for one rank.
func New(cfg Config) (*Executor, error) {
	if cfg.Comm == nil {
		return nil, glerrors.ConfigurationMismatchf("distributed executor created without a communicator")
	}
	if cfg.Root < 0 || cfg.Root >= cfg.Comm.Size() {
		return nil, glerrors.ConfigurationMismatchf(
			"root rank %d out of range for group of %d", cfg.Root, cfg.Comm.Size())
	}
	ownsSub := false
	if cfg.Sub == nil {
		sub, err := host.New()
		if err != nil {
			return nil, err
		}
		cfg.Sub = sub
		ownsSub = true
	}
	if cfg.Space == nil {
		cfg.Space = memspace.NewDistributed()
	} else if cfg.Space.Location().Kind != memspace.Distributed {
		return nil, glerrors.ConfigurationMismatchf(
			"distributed executor bound to a %s memory space", cfg.Space.Location())
	}
	return &Executor{
		id:      uuid.NewString(),
		comm:    cfg.Comm,
		sub:     cfg.Sub,
		space:   cfg.Space,
		sinks:   cfg.Sinks,
		ownsSub: ownsSub,
		root:    cfg.Root,
	}, nil
}

// Kind implements exec.Executor.
func (e *Executor) Kind() exec.Kind { return exec.Distributed }

// ID implements exec.Executor.
func (e *Executor) ID() string { return e.id }

// String implements fmt.Stringer.
func (e *Executor) String() string {
	return fmt.Sprintf("distributed executor (rank %d of %d)", e.MyRank(), e.NumRanks())
}

// Run implements exec.Executor: the operation's distributed callable runs on
// the calling goroutine.
func (e *Executor) Run(op *exec.Operation) error {
	if e.closed.Load() {
		return glerrors.Closedf("Run(%q) on destroyed distributed executor", op.Name())
	}
	fn, err := exec.Resolve(exec.Distributed, op)
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

// Synchronize implements exec.Executor: it synchronizes the sub-executor and
// then the whole group through a barrier.
func (e *Executor) Synchronize() error {
	if e.closed.Load() {
		return glerrors.Closedf("Synchronize on destroyed distributed executor")
	}
	if err := e.sub.Synchronize(); err != nil {
		return err
	}
	if err := e.comm.Barrier(); err != nil {
		return glerrors.CommunicationErrorf("barrier on rank %d: %v", e.MyRank(), err)
	}
	return nil
}

// MemSpace implements exec.Executor.
func (e *Executor) MemSpace() *memspace.Space { return e.space }

// Master implements exec.Executor: the master of the rank-local
// sub-executor.
func (e *Executor) Master() exec.Executor { return e.sub.Master() }

// SubExecutor implements exec.Executor: the nested executor for rank-local
// numeric work.
func (e *Executor) SubExecutor() exec.Executor { return e.sub }

// Comm returns this rank's transport endpoint.
func (e *Executor) Comm() Comm { return e.comm }

// NumRanks returns the number of ranks in the group.
func (e *Executor) NumRanks() int { return e.comm.Size() }

// MyRank returns this executor's rank id.
func (e *Executor) MyRank() int { return e.comm.Rank() }

// RootRank returns the current root rank used by rooted collectives.
func (e *Executor) RootRank() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.root
}

// SetRootRank changes the root rank. Every rank of the group must apply the
// same change before the next rooted collective.
func (e *Executor) SetRootRank(root int) error {
	if root < 0 || root >= e.comm.Size() {
		return glerrors.ConfigurationMismatchf(
			"root rank %d out of range for group of %d", root, e.comm.Size())
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.root = root
	return nil
}

// Close implements exec.Executor. A sub-executor the constructor created is
// closed along with it; a caller-supplied one stays open, like the
// communicator, whose lifetime belongs to whoever created the group.
// Closing is idempotent.
func (e *Executor) Close() error {
	if e.closed.Swap(true) {
		return nil
	}
	if e.ownsSub {
		return e.sub.Close()
	}
	return nil
}
