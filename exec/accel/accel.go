// Package accel implements the asynchronous core shared by the accelerator
// executors (exec/cuda, exec/rocm).
//
// Each executor owns one in-order device queue: Run enqueues the operation's
// callable and returns immediately, and Synchronize is the only point that
// waits for completion and surfaces deferred device failures. Executors
// bound to the same device id share the device registry's reference count,
// so the device-reset action runs exactly once, when the last of them is
// destroyed.
//
// The vendor packages are thin wrappers choosing the backend kind, the
// vendor name and the default driver; everything else lives here.
package accel

import (
	"fmt"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/glera/glera/devreg"
	"github.com/glera/glera/driver"
	glerrors "github.com/glera/glera/errors"
	"github.com/glera/glera/exec"
	"github.com/glera/glera/memspace"
)

// Config assembles everything an accelerator executor needs at construction.
type Config struct {
	// Kind is the backend kind the executor dispatches as (exec.CUDA or
	// exec.ROCm).
	Kind exec.Kind

	// Vendor names the compute library, and must match Driver.Name().
	Vendor string

	// DeviceID selects the device within the driver.
	DeviceID int

	// Master is the host-side executor used to drive the device. Required,
	// and must be a host-kind executor.
	Master exec.Executor

	// Driver is the vendor compute library. Required.
	Driver driver.Driver

	// Space optionally binds the executor to an existing memory space. Its
	// location must match Vendor and DeviceID. When nil, a fresh device
	// space is created.
	Space *memspace.Space

	// Registry tracks executors per device id. When nil, devreg.Default()
	// is used.
	Registry *devreg.Registry

	// DeviceReset makes the registry reset the device once the last
	// executor bound to it is destroyed.
	DeviceReset bool

	// Sinks receive launch/finish notifications.
	Sinks []exec.EventSink
}

// Core is the shared accelerator executor implementation.
type Core struct {
	id       string
	kind     exec.Kind
	vendor   string
	deviceID int

	master   exec.Executor
	space    *memspace.Space
	registry *devreg.Registry
	sinks    exec.Sinks

	dev   driver.Device
	queue driver.Queue

	closed atomic.Bool
}

var _ exec.Executor = (*Core)(nil)

// New validates the configuration, lazily opens the vendor device handle and
// queue, and registers the executor with the device registry.
//
// Construction is fail-fast: on any error no executor is observable and no
// registry count is left elevated.
func New(cfg Config) (*Core, error) {
	if cfg.Driver == nil {
		return nil, glerrors.ConfigurationMismatchf("%s executor created without a driver", cfg.Kind)
	}
	if cfg.Driver.Name() != cfg.Vendor {
		return nil, glerrors.ConfigurationMismatchf(
			"%s executor given a %q driver", cfg.Kind, cfg.Driver.Name())
	}
	if cfg.Master == nil || cfg.Master.Kind() != exec.Host {
		return nil, glerrors.ConfigurationMismatchf(
			"%s executor requires a host master executor", cfg.Kind)
	}
	wantLoc := memspace.DeviceLocation(cfg.Vendor, cfg.DeviceID)
	if cfg.Space == nil {
		cfg.Space = memspace.New(wantLoc)
	} else if cfg.Space.Location() != wantLoc {
		return nil, glerrors.ConfigurationMismatchf(
			"%s executor for device %d bound to a %s memory space",
			cfg.Kind, cfg.DeviceID, cfg.Space.Location())
	}
	if cfg.Registry == nil {
		cfg.Registry = devreg.Default()
	}

	dev, err := cfg.Driver.OpenDevice(cfg.DeviceID)
	if err != nil {
		return nil, glerrors.DeviceErrorf("opening %s device %d: %v", cfg.Vendor, cfg.DeviceID, err)
	}
	queue, err := dev.NewQueue()
	if err != nil {
		_ = dev.Close()
		return nil, glerrors.DeviceErrorf("creating queue on %s device %d: %v", cfg.Vendor, cfg.DeviceID, err)
	}

	cfg.Registry.Acquire(cfg.DeviceID)
	if cfg.DeviceReset {
		drv, id := cfg.Driver, cfg.DeviceID
		cfg.Registry.SetResetAction(cfg.DeviceID, func() { _ = drv.Reset(id) })
	}

	return &Core{
		id:       uuid.NewString(),
		kind:     cfg.Kind,
		vendor:   cfg.Vendor,
		deviceID: cfg.DeviceID,
		master:   cfg.Master,
		space:    cfg.Space,
		registry: cfg.Registry,
		sinks:    cfg.Sinks,
		dev:      dev,
		queue:    queue,
	}, nil
}

// Kind implements exec.Executor.
func (c *Core) Kind() exec.Kind { return c.kind }

// ID implements exec.Executor.
func (c *Core) ID() string { return c.id }

// String implements fmt.Stringer.
func (c *Core) String() string {
	return fmt.Sprintf("%s executor on device %d (%s)", c.kind, c.deviceID, c.dev.Properties().Name)
}

// DeviceID returns the device the executor is bound to.
func (c *Core) DeviceID() int { return c.deviceID }

// Device returns the executor-owned vendor handle, for kernels that need the
// native contexts.
func (c *Core) Device() driver.Device { return c.dev }

// Run implements exec.Executor asynchronously: it enqueues the operation's
// callable on the device queue and returns immediately. A missing callable
// still fails fast, at call time.
func (c *Core) Run(op *exec.Operation) error {
	if c.closed.Load() {
		return glerrors.Closedf("Run(%q) on destroyed %s executor", op.Name(), c.kind)
	}
	fn, err := exec.Resolve(c.kind, op)
	if err != nil {
		return err
	}
	c.sinks.Launched(c, op.Name())
	c.queue.Enqueue(func() error { return fn(c) })
	c.sinks.Completed(c, op.Name())
	return nil
}

// Synchronize implements exec.Executor: it blocks until every previously
// enqueued operation finished and surfaces the first deferred failure.
func (c *Core) Synchronize() error {
	if c.closed.Load() {
		return glerrors.Closedf("Synchronize on destroyed %s executor", c.kind)
	}
	if err := c.queue.Synchronize(); err != nil {
		return glerrors.DeviceErrorf("asynchronous failure on %s device %d: %v", c.vendor, c.deviceID, err)
	}
	return nil
}

// MemSpace implements exec.Executor.
func (c *Core) MemSpace() *memspace.Space { return c.space }

// Master implements exec.Executor: the host executor driving this device.
func (c *Core) Master() exec.Executor { return c.master }

// SubExecutor implements exec.Executor.
func (c *Core) SubExecutor() exec.Executor { return c }

// Close implements exec.Executor. It treats destruction as an implicit
// synchronization, then releases the executor-owned queue and vendor handle
// and decrements the device registry; the reset action, if configured, runs
// when this was the last executor on the device.
//
// Cleanup proceeds even when outstanding work failed; the first error is
// returned. Closing twice is an error.
func (c *Core) Close() error {
	if c.closed.Swap(true) {
		return glerrors.Closedf("%s executor closed twice", c.kind)
	}
	var firstErr error
	if err := c.queue.Close(); err != nil {
		firstErr = glerrors.DeviceErrorf("draining %s device %d queue: %v", c.vendor, c.deviceID, err)
	}
	if err := c.dev.Close(); err != nil && firstErr == nil {
		firstErr = glerrors.DeviceErrorf("releasing %s device %d handle: %v", c.vendor, c.deviceID, err)
	}
	c.registry.Release(c.deviceID)
	return firstErr
}
