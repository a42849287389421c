// Package driver defines the surface the runtime consumes from an
// accelerator vendor library: device discovery, opaque per-device handles,
// work queues and device reset.
//
// The runtime never interprets the vendor contexts it is handed; it only
// creates them lazily when an executor binds to a device, and releases them
// through the destructor callback when the executor is destroyed.
//
// The in-process emulation in driver/emu is the default implementation and
// the one exercised by tests.
package driver

// Properties describes a device as reported by the vendor library.
type Properties struct {
	// Name is a human-readable device name.
	Name string

	// Multiprocessors and WarpSize describe the device's compute layout.
	Multiprocessors int
	WarpSize        int

	// Major and Minor are the compute-capability version.
	Major, Minor int

	// TotalMemory is the device memory size in bytes.
	TotalMemory uint64
}

// Driver is one vendor compute library.
//
// Implementations must be safe for concurrent use.
type Driver interface {
	// Name identifies the vendor, e.g. "cuda", "rocm" or "emu".
	Name() string

	// NumDevices returns how many devices the driver sees.
	NumDevices() int

	// OpenDevice creates the vendor contexts for the given device id.
	// Each call returns an independent handle: handles are never shared
	// across executors.
	OpenDevice(deviceID int) (Device, error)

	// Reset tears down all vendor state for the device. The device registry
	// calls it after the last executor bound to the device is destroyed.
	Reset(deviceID int) error
}

// Device is an open, executor-owned handle to one device.
type Device interface {
	// ID returns the device id the handle was opened on.
	ID() int

	// Properties reports the device description.
	Properties() Properties

	// NewQueue creates an in-order work queue on the device.
	NewQueue() (Queue, error)

	// Close releases the vendor contexts held by this handle. The handle is
	// unusable afterwards.
	Close() error
}

// Queue is an in-order asynchronous work queue (a stream, in vendor jargon).
//
// Enqueued tasks run one at a time in submission order. A task's failure does
// not stop the queue; the first failure is remembered and surfaced by the
// next Synchronize.
type Queue interface {
	// Enqueue submits a task and returns immediately.
	Enqueue(task func() error)

	// Synchronize blocks until every previously enqueued task has finished,
	// then returns the first task error since the last Synchronize, if any.
	Synchronize() error

	// Close drains the queue and releases it. The queue is unusable
	// afterwards.
	Close() error
}
