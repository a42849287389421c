// Package memspace implements memory spaces: addressable pools of memory
// tied to one location, which is either the host, one accelerator device, or
// the distributed pool shared by the ranks of a distributed executor.
//
// A Space allocates Buffers and copies data between them. When two locations
// have no direct transfer path (two different devices, or devices of
// different vendors), the copy transparently stages through a host-resident
// buffer. Observers attached to a space are notified of every allocation and
// copy; they observe only and never affect behavior.
package memspace

import (
	"fmt"
	"reflect"
	"unsafe"

	"github.com/gomlx/exceptions"

	glerrors "github.com/glera/glera/errors"
)

// LocationKind distinguishes the three classes of memory location.
type LocationKind int

const (
	// Host is ordinary host (CPU) memory.
	Host LocationKind = iota

	// Device is the memory of one accelerator device.
	Device

	// Distributed is the per-rank slice of a distributed memory pool.
	Distributed
)

// String implements fmt.Stringer.
func (k LocationKind) String() string {
	switch k {
	case Host:
		return "host"
	case Device:
		return "device"
	case Distributed:
		return "distributed"
	}
	return fmt.Sprintf("LocationKind(%d)", int(k))
}

// Location identifies where a space's memory lives.
// For Device locations, Vendor and DeviceID select the device.
type Location struct {
	Kind     LocationKind
	Vendor   string
	DeviceID int
}

// HostLocation is the location of plain host memory.
var HostLocation = Location{Kind: Host}

// DistributedLocation is the location of the distributed pool.
var DistributedLocation = Location{Kind: Distributed}

// DeviceLocation returns the location of a specific accelerator device.
func DeviceLocation(vendor string, deviceID int) Location {
	return Location{Kind: Device, Vendor: vendor, DeviceID: deviceID}
}

// String implements fmt.Stringer.
func (l Location) String() string {
	if l.Kind == Device {
		return fmt.Sprintf("%s:%d", l.Vendor, l.DeviceID)
	}
	return l.Kind.String()
}

// hostVisible reports whether the location's memory can be addressed
// directly from the host. Device memory cannot; it needs a staged transfer.
func (l Location) hostVisible() bool {
	return l.Kind != Device
}

// Observer is notified of allocations and copies on a space.
// Notifications are observation only; implementations must not rely on being
// called in any particular goroutine.
type Observer interface {
	Allocated(loc Location, numBytes int)
	Copied(src, dst Location, numBytes int)
}

// Space is a memory pool at one location.
type Space struct {
	loc       Location
	observers []Observer
}

// New creates a Space at the given location.
func New(loc Location, observers ...Observer) *Space {
	return &Space{loc: loc, observers: observers}
}

// NewHost creates a host memory space.
func NewHost(observers ...Observer) *Space {
	return New(HostLocation, observers...)
}

// NewDevice creates a memory space on one accelerator device.
func NewDevice(vendor string, deviceID int, observers ...Observer) *Space {
	return New(DeviceLocation(vendor, deviceID), observers...)
}

// NewDistributed creates the rank-local view of a distributed memory pool.
func NewDistributed(observers ...Observer) *Space {
	return New(DistributedLocation, observers...)
}

// Location returns the space's location.
func (s *Space) Location() Location { return s.loc }

// AddObserver attaches an observer. Not safe to call concurrently with
// allocations or copies on the same space.
func (s *Space) AddObserver(o Observer) {
	s.observers = append(s.observers, o)
}

func (s *Space) notifyAllocated(numBytes int) {
	for _, o := range s.observers {
		o.Allocated(s.loc, numBytes)
	}
}

func (s *Space) notifyCopied(src, dst Location, numBytes int) {
	for _, o := range s.observers {
		o.Copied(src, dst, numBytes)
	}
}

// Buffer is a typed block of memory owned by one Space.
//
// The flat data is always a slice of the element type it was allocated with;
// access it through Data. A freed buffer is invalid and must not be used.
type Buffer struct {
	space *Space
	flat  any
	valid bool
}

// Space returns the space the buffer belongs to.
func (b *Buffer) Space() *Space { return b.space }

// Valid reports whether the buffer is still usable (not freed).
func (b *Buffer) Valid() bool { return b != nil && b.valid }

// Len returns the number of elements in the buffer.
func (b *Buffer) Len() int {
	if b == nil || b.flat == nil {
		return 0
	}
	return reflect.ValueOf(b.flat).Len()
}

// elemSize returns the byte size of one element.
func (b *Buffer) elemSize() int {
	return int(reflect.TypeOf(b.flat).Elem().Size())
}

// Alloc allocates a buffer of n elements of type T on the space.
func Alloc[T any](s *Space, n int) *Buffer {
	if n < 0 {
		exceptions.Panicf("memspace.Alloc: negative length %d", n)
	}
	b := &Buffer{space: s, flat: make([]T, n), valid: true}
	var zero T
	s.notifyAllocated(n * int(unsafe.Sizeof(zero)))
	return b
}

// FromSlice wraps an existing host slice as a buffer of the space.
// The space must be host-visible; device spaces cannot adopt host memory.
func FromSlice[T any](s *Space, flat []T) (*Buffer, error) {
	if !s.loc.hostVisible() {
		return nil, glerrors.ConfigurationMismatchf(
			"cannot wrap a host slice in a %s memory space", s.loc)
	}
	return &Buffer{space: s, flat: flat, valid: true}, nil
}

// Data returns the buffer's flat data as a []T.
// It panics if the buffer is invalid or was allocated with another type:
// both are programming errors.
//
// For device spaces the returned slice is the backing storage used by
// enqueued kernels; reading it from the host is only well-defined after the
// owning executor synchronized.
func Data[T any](b *Buffer) []T {
	if !b.Valid() {
		exceptions.Panicf("memspace.Data: access to an invalid (freed?) buffer")
	}
	flat, ok := b.flat.([]T)
	if !ok {
		exceptions.Panicf("memspace.Data[%T]: buffer holds %T", *new(T), b.flat)
	}
	return flat
}

// Free releases the buffer. Any further use of the buffer is invalid.
func (s *Space) Free(b *Buffer) {
	if b == nil || !b.valid {
		return
	}
	b.valid = false
	b.flat = nil
}

// Copy moves n elements of type T from src to dst. The buffers may belong to
// different spaces; if neither side is host-visible and they are not the same
// device, the copy stages through a freshly allocated host buffer.
//
// Copying does not synchronize with asynchronous work: callers copy through
// their executor, which orders the copy against enqueued operations.
func Copy[T any](n int, src, dst *Buffer) error {
	if !src.Valid() || !dst.Valid() {
		return glerrors.DimensionMismatchf("copy with an invalid buffer (src valid=%v, dst valid=%v)",
			src.Valid(), dst.Valid())
	}
	if n < 0 || src.Len() < n || dst.Len() < n {
		return glerrors.DimensionMismatchf("copy of %d elements between buffers of %d (src) and %d (dst) elements",
			n, src.Len(), dst.Len())
	}
	srcFlat, ok := src.flat.([]T)
	if !ok {
		return glerrors.DimensionMismatchf("source buffer holds %T, not []%T", src.flat, *new(T))
	}
	dstFlat, ok := dst.flat.([]T)
	if !ok {
		return glerrors.DimensionMismatchf("destination buffer holds %T, not []%T", dst.flat, *new(T))
	}

	srcLoc, dstLoc := src.space.loc, dst.space.loc
	var zero T
	numBytes := n * int(unsafe.Sizeof(zero))
	if directPath(srcLoc, dstLoc) {
		copy(dstFlat[:n], srcFlat[:n])
		src.space.notifyCopied(srcLoc, dstLoc, numBytes)
		if dst.space != src.space {
			dst.space.notifyCopied(srcLoc, dstLoc, numBytes)
		}
		return nil
	}

	// No direct path: stage through the host.
	staging := make([]T, n)
	copy(staging, srcFlat[:n])
	src.space.notifyCopied(srcLoc, HostLocation, numBytes)
	copy(dstFlat[:n], staging)
	dst.space.notifyCopied(HostLocation, dstLoc, numBytes)
	return nil
}

// directPath reports whether elements can be transferred between the two
// locations without staging through the host.
func directPath(src, dst Location) bool {
	if src.hostVisible() || dst.hostVisible() {
		return true
	}
	// Device to device only within the same vendor and device.
	return src == dst
}

// CopyValToHost materializes the element at index idx of the buffer as a
// host-visible value.
func CopyValToHost[T any](b *Buffer, idx int) (T, error) {
	var zero T
	if !b.Valid() {
		return zero, glerrors.DimensionMismatchf("CopyValToHost on an invalid buffer")
	}
	flat, ok := b.flat.([]T)
	if !ok {
		return zero, glerrors.DimensionMismatchf("buffer holds %T, not []%T", b.flat, zero)
	}
	if idx < 0 || idx >= len(flat) {
		return zero, glerrors.DimensionMismatchf("index %d out of range for buffer of %d elements", idx, len(flat))
	}
	v := flat[idx]
	b.space.notifyCopied(b.space.loc, HostLocation, int(unsafe.Sizeof(zero)))
	return v, nil
}
