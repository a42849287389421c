// Package exec defines the executor abstraction of the runtime: an Executor
// represents one compute backend instance (host-parallel, an accelerator
// device, a distributed rank, or the debug/reference backend) together with
// its memory space, and runs Operations that carry one implementation per
// backend kind.
//
// Dispatch is double dispatch without runtime type inspection: an Operation
// holds a table with one callable slot per Kind, and Executor.Run selects the
// slot of its own kind. The same Operation run on two executors of different
// kinds deterministically executes two different code paths.
//
// Concrete executors live in the subpackages exec/host, exec/ref, exec/cuda,
// exec/rocm and exec/dist. Each registers a constructor here, so a default
// executor can be picked by configuration:
//
//	e := exec.New() // honors GLERA_EXECUTOR, e.g. "cuda:0"
package exec

import (
	"os"
	"strings"

	"github.com/gomlx/exceptions"

	"github.com/glera/glera/memspace"
)

// Kind is the closed set of backend kinds. Dispatch tables are indexed by it.
type Kind int

const (
	// Host is the host-parallel backend.
	Host Kind = iota

	// Reference is the debug/reference backend: host semantics, no
	// parallel fan-out, and a fixed fallback to Host implementations.
	Reference

	// CUDA and ROCm are the two accelerator backends.
	CUDA
	ROCm

	// Distributed is the rank-parallel backend.
	Distributed

	numKinds
)

var kindNames = [numKinds]string{"host", "reference", "cuda", "rocm", "distributed"}

// String implements fmt.Stringer.
func (k Kind) String() string {
	if k < 0 || k >= numKinds {
		return "invalid"
	}
	return kindNames[k]
}

// Executor is one compute backend instance.
//
// Host and Reference executors run operations synchronously: Run returns
// only after the kernel completed. Accelerator executors enqueue and return
// immediately; completion is only guaranteed after Synchronize. Operations
// issued on the same executor always execute in program order.
type Executor interface {
	// Kind returns the backend kind; it determines which of an Operation's
	// callables Run invokes.
	Kind() Kind

	// ID returns the unique instance id, carried into event notifications.
	ID() string

	// Run dispatches the operation to this executor's implementation.
	// Missing callable and no applicable fallback is an error at call time.
	Run(op *Operation) error

	// Synchronize blocks until all previously issued work on this executor
	// finished, and surfaces any deferred asynchronous failure.
	Synchronize() error

	// MemSpace returns the memory space the executor is bound to.
	MemSpace() *memspace.Space

	// Master returns the host-side driver executor for accelerator
	// executors; host-resident executors are their own master.
	Master() Executor

	// SubExecutor returns the nested executor used for rank-local work by
	// the distributed backend; other executors return themselves.
	SubExecutor() Executor

	// Close destroys the executor: implicit synchronization, then resource
	// teardown. Terminal; no further operations may be issued.
	Close() error
}

// Constructor builds an executor from a backend-specific config string.
type Constructor func(config string) (Executor, error)

var (
	registeredConstructors = make(map[string]Constructor)
	firstRegistered        string
)

// Register a backend constructor under the given name.
// Backend packages call it from their init functions.
func Register(name string, constructor Constructor) {
	if len(registeredConstructors) == 0 {
		firstRegistered = name
	}
	registeredConstructors[name] = constructor
}

// DefaultConfig is used by New when GLERA_EXECUTOR is not set.
var DefaultConfig string

// EnvExecutor is the environment variable holding the default executor
// configuration, formatted "<backend_name>:<backend_config>".
const EnvExecutor = "GLERA_EXECUTOR"

// New returns an executor built from the default configuration:
// the GLERA_EXECUTOR environment variable if set, then DefaultConfig, then
// the first registered backend with an empty config.
func New() (Executor, error) {
	if config, found := os.LookupEnv(EnvExecutor); found {
		return NewWithConfig(config)
	}
	if DefaultConfig != "" {
		return NewWithConfig(DefaultConfig)
	}
	return NewWithConfig("")
}

// NewWithConfig builds an executor from a "<backend_name>:<backend_config>"
// string. An empty name selects the first registered backend.
//
// It panics if no backend is registered or the name is unknown: both are
// build/setup mistakes, not runtime conditions.
func NewWithConfig(config string) (Executor, error) {
	if len(registeredConstructors) == 0 {
		exceptions.Panicf(`no registered executor backends -- import one, e.g. _ "github.com/glera/glera/exec/host"`)
	}
	name := firstRegistered
	backendConfig := config
	if idx := strings.Index(config, ":"); idx != -1 {
		name = config[:idx]
		backendConfig = config[idx+1:]
	} else if _, ok := registeredConstructors[config]; ok {
		name = config
		backendConfig = ""
	}
	constructor, found := registeredConstructors[name]
	if !found {
		exceptions.Panicf("no executor backend %q registered (configuration %q)", name, config)
	}
	return constructor(backendConfig)
}
