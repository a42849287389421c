// Package emu is an in-process software emulation of an accelerator driver.
//
// Devices are plain host memory, and queues are goroutines consuming tasks in
// submission order, so enqueued work really is asynchronous: results are only
// guaranteed visible after Queue.Synchronize, exactly like a vendor stream.
//
// It backs the accelerator executors in tests and on machines without real
// devices.
package emu

import (
	"sync"
	"sync/atomic"

	"github.com/gomlx/exceptions"
	"github.com/pkg/errors"

	"github.com/glera/glera/driver"
)

// DriverName is the vendor name the emulation reports.
const DriverName = "emu"

// Driver implements driver.Driver in software.
type Driver struct {
	name       string
	numDevices int

	mu          sync.Mutex
	resetCounts map[int]int
}

var _ driver.Driver = (*Driver)(nil)

// New creates an emulated driver exposing numDevices devices.
func New(numDevices int) *Driver {
	return NewWithName(DriverName, numDevices)
}

// NewWithName creates an emulated driver that reports the given vendor name,
// so it can stand in for a specific vendor library.
func NewWithName(name string, numDevices int) *Driver {
	if numDevices <= 0 {
		exceptions.Panicf("emu.New: numDevices must be positive, got %d", numDevices)
	}
	return &Driver{
		name:        name,
		numDevices:  numDevices,
		resetCounts: make(map[int]int),
	}
}

// Name implements driver.Driver.
func (d *Driver) Name() string { return d.name }

// NumDevices implements driver.Driver.
func (d *Driver) NumDevices() int { return d.numDevices }

// OpenDevice implements driver.Driver.
func (d *Driver) OpenDevice(deviceID int) (driver.Device, error) {
	if deviceID < 0 || deviceID >= d.numDevices {
		return nil, errors.Errorf("emu: no device %d, driver has %d device(s)", deviceID, d.numDevices)
	}
	return &device{driver: d, id: deviceID}, nil
}

// Reset implements driver.Driver. The emulation only records the call.
func (d *Driver) Reset(deviceID int) error {
	if deviceID < 0 || deviceID >= d.numDevices {
		return errors.Errorf("emu: no device %d to reset", deviceID)
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.resetCounts[deviceID]++
	return nil
}

// ResetCount returns how many times the device has been reset.
func (d *Driver) ResetCount(deviceID int) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.resetCounts[deviceID]
}

type device struct {
	driver *Driver
	id     int
	closed atomic.Bool
}

var _ driver.Device = (*device)(nil)

func (dev *device) ID() int { return dev.id }

func (dev *device) Properties() driver.Properties {
	return driver.Properties{
		Name:            "Emulated Device",
		Multiprocessors: 16,
		WarpSize:        32,
		Major:           1,
		Minor:           0,
		TotalMemory:     4 << 30,
	}
}

func (dev *device) NewQueue() (driver.Queue, error) {
	if dev.closed.Load() {
		return nil, errors.Errorf("emu: device %d handle already closed", dev.id)
	}
	q := &queue{}
	q.cond.L = &q.mu
	go q.loop()
	return q, nil
}

func (dev *device) Close() error {
	if dev.closed.Swap(true) {
		return errors.Errorf("emu: device %d handle closed twice", dev.id)
	}
	return nil
}

type task struct {
	run func() error

	// sync is set instead of run for synchronization markers; it is closed
	// when every earlier task has finished.
	sync chan struct{}

	// stop makes the queue goroutine exit. Only Close submits it, after a
	// final drain.
	stop bool
}

// queue holds pending tasks in an unbounded list, so Enqueue never blocks
// behind a slow task; one goroutine consumes the list in submission order.
type queue struct {
	closed atomic.Bool

	mu      sync.Mutex
	cond    sync.Cond // signaled when pending grows
	pending []task
	err     error // first task failure since the last Synchronize
}

var _ driver.Queue = (*queue)(nil)

func (q *queue) loop() {
	for {
		q.mu.Lock()
		for len(q.pending) == 0 {
			q.cond.Wait()
		}
		t := q.pending[0]
		q.pending = q.pending[1:]
		q.mu.Unlock()
		switch {
		case t.stop:
			return
		case t.sync != nil:
			close(t.sync)
		default:
			if err := t.run(); err != nil {
				q.mu.Lock()
				if q.err == nil {
					q.err = err
				}
				q.mu.Unlock()
			}
		}
	}
}

func (q *queue) push(t task) {
	q.mu.Lock()
	q.pending = append(q.pending, t)
	q.cond.Signal()
	q.mu.Unlock()
}

func (q *queue) Enqueue(run func() error) {
	if q.closed.Load() {
		exceptions.Panicf("emu: Enqueue on a closed queue")
	}
	q.push(task{run: run})
}

func (q *queue) Synchronize() error {
	if q.closed.Load() {
		return errors.New("emu: Synchronize on a closed queue")
	}
	marker := make(chan struct{})
	q.push(task{sync: marker})
	<-marker
	q.mu.Lock()
	defer q.mu.Unlock()
	err := q.err
	q.err = nil
	return err
}

func (q *queue) Close() error {
	if q.closed.Swap(true) {
		return errors.New("emu: queue closed twice")
	}
	// Drain before releasing: destruction is an implicit synchronization.
	marker := make(chan struct{})
	q.push(task{sync: marker})
	<-marker
	q.push(task{stop: true})
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.err
}
