// Package rocm implements the ROCm accelerator executor.
//
// Like exec/cuda it is a thin vendor binding over exec/accel; the two differ
// only in their backend kind and the vendor library they open handles from.
package rocm

import (
	"strconv"

	"github.com/glera/glera/devreg"
	"github.com/glera/glera/driver"
	"github.com/glera/glera/driver/emu"
	glerrors "github.com/glera/glera/errors"
	"github.com/glera/glera/exec"
	"github.com/glera/glera/exec/accel"
	"github.com/glera/glera/exec/host"
	"github.com/glera/glera/memspace"
)

// BackendName is the name under which this backend registers its
// constructor; Vendor is the compute-library name drivers must report.
const (
	BackendName = "rocm"
	Vendor      = "rocm"
)

// DefaultDriver backs executors created without an explicit driver. It
// defaults to the software emulation; bindings to the real vendor runtime
// replace it at startup.
var DefaultDriver driver.Driver = emu.NewWithName(Vendor, 1)

func init() {
	exec.Register(BackendName, func(config string) (exec.Executor, error) {
		deviceID := 0
		if config != "" {
			var err error
			deviceID, err = strconv.Atoi(config)
			if err != nil {
				return nil, glerrors.ConfigurationMismatchf("rocm backend config %q is not a device id", config)
			}
		}
		master, err := host.New()
		if err != nil {
			return nil, err
		}
		return New(deviceID, master)
	})
}

// Executor is the ROCm backend.
type Executor struct {
	*accel.Core
}

var _ exec.Executor = (*Executor)(nil)

// Option configures a ROCm executor at construction.
type Option func(*accel.Config)

// WithDriver selects the vendor driver; it must report the "rocm" name.
func WithDriver(d driver.Driver) Option {
	return func(cfg *accel.Config) { cfg.Driver = d }
}

// WithSpace binds the executor to an existing device memory space.
func WithSpace(space *memspace.Space) Option {
	return func(cfg *accel.Config) { cfg.Space = space }
}

// WithRegistry selects the device registry tracking executors per device.
func WithRegistry(r *devreg.Registry) Option {
	return func(cfg *accel.Config) { cfg.Registry = r }
}

// WithDeviceReset makes the device reset once the last executor bound to it
// is destroyed.
func WithDeviceReset(reset bool) Option {
	return func(cfg *accel.Config) { cfg.DeviceReset = reset }
}

// WithSinks attaches event sinks.
func WithSinks(sinks ...exec.EventSink) Option {
	return func(cfg *accel.Config) { cfg.Sinks = append(cfg.Sinks, sinks...) }
}

// New creates a ROCm executor on the given device, driven by the given host
// master executor.
func New(deviceID int, master exec.Executor, opts ...Option) (*Executor, error) {
	cfg := accel.Config{
		Kind:     exec.ROCm,
		Vendor:   Vendor,
		DeviceID: deviceID,
		Master:   master,
		Driver:   DefaultDriver,
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	core, err := accel.New(cfg)
	if err != nil {
		return nil, err
	}
	return &Executor{Core: core}, nil
}
