// Package devreg tracks how many executors are bound to each accelerator
// device and triggers a device-reset action when the last one goes away.
//
// Several executors may share one physical device. The vendor runtime keeps
// per-device state that should only be torn down once nothing references the
// device anymore, so the registry keeps a mutex-protected reference count per
// device id and runs the configured reset action exactly once when the count
// returns to zero.
//
// The registry is an injectable service rather than package-global state, so
// tests can instantiate an isolated registry per test run. A process-wide
// default instance is available through Default.
package devreg

import (
	"sync"

	"github.com/gomlx/exceptions"
)

// Registry holds per-device-id reference counts and reset actions.
//
// All methods are safe for concurrent use.
type Registry struct {
	mu      sync.Mutex
	devices map[int]*device
}

type device struct {
	mu    sync.Mutex
	count int

	// reset runs when count transitions to zero. resetDone guards against
	// running it twice within the same teardown cycle; it is re-armed by the
	// next Acquire.
	reset     func()
	resetDone bool
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{devices: make(map[int]*device)}
}

var (
	defaultRegistry     *Registry
	defaultRegistryOnce sync.Once
)

// Default returns the process-wide registry shared by executors that were not
// given an explicit one.
func Default() *Registry {
	defaultRegistryOnce.Do(func() {
		defaultRegistry = NewRegistry()
	})
	return defaultRegistry
}

// get returns the entry for deviceID, creating it if needed.
func (r *Registry) get(deviceID int) *device {
	r.mu.Lock()
	defer r.mu.Unlock()
	d, ok := r.devices[deviceID]
	if !ok {
		d = &device{}
		r.devices[deviceID] = d
	}
	return d
}

// SetResetAction configures the action to run when the device's count drops
// to zero. A nil action disables the reset. Replacing the action while
// executors are outstanding affects only the upcoming teardown.
func (r *Registry) SetResetAction(deviceID int, action func()) {
	d := r.get(deviceID)
	d.mu.Lock()
	defer d.mu.Unlock()
	d.reset = action
}

// Acquire registers one more executor bound to deviceID.
func (r *Registry) Acquire(deviceID int) {
	d := r.get(deviceID)
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.count == 0 {
		// New usage cycle, re-arm the reset.
		d.resetDone = false
	}
	d.count++
}

// Release unregisters one executor from deviceID. When the count reaches
// zero the configured reset action runs, at most once per teardown cycle.
//
// It panics if called more times than Acquire: the count can never go
// negative.
func (r *Registry) Release(deviceID int) {
	d := r.get(deviceID)
	var reset func()
	d.mu.Lock()
	if d.count == 0 {
		d.mu.Unlock()
		exceptions.Panicf("devreg.Release(device=%d): release without matching acquire", deviceID)
	}
	d.count--
	if d.count == 0 && d.reset != nil && !d.resetDone {
		d.resetDone = true
		reset = d.reset
	}
	d.mu.Unlock()
	// Run outside the device lock: the action may call back into the vendor
	// runtime, which can be slow or re-entrant.
	if reset != nil {
		reset()
	}
}

// Count returns the current number of executors bound to deviceID.
func (r *Registry) Count(deviceID int) int {
	d := r.get(deviceID)
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.count
}
