package memspace

import (
	"testing"

	"github.com/stretchr/testify/require"

	glerrors "github.com/glera/glera/errors"
)

// recordingObserver captures allocation and copy notifications.
type recordingObserver struct {
	allocs []int
	copies []copyEvent
}

type copyEvent struct {
	src, dst Location
	numBytes int
}

func (r *recordingObserver) Allocated(loc Location, numBytes int) {
	r.allocs = append(r.allocs, numBytes)
}

func (r *recordingObserver) Copied(src, dst Location, numBytes int) {
	r.copies = append(r.copies, copyEvent{src: src, dst: dst, numBytes: numBytes})
}

func TestLocationString(t *testing.T) {
	require.Equal(t, "host", HostLocation.String())
	require.Equal(t, "distributed", DistributedLocation.String())
	require.Equal(t, "cuda:1", DeviceLocation("cuda", 1).String())
}

func TestAllocAndData(t *testing.T) {
	obs := &recordingObserver{}
	s := NewHost(obs)
	b := Alloc[float64](s, 8)
	require.True(t, b.Valid())
	require.Equal(t, 8, b.Len())
	require.Same(t, s, b.Space())
	require.Equal(t, []int{8 * 8}, obs.allocs)

	data := Data[float64](b)
	require.Len(t, data, 8)
	data[3] = 2.5
	require.Equal(t, 2.5, Data[float64](b)[3])
}

func TestDataWrongTypePanics(t *testing.T) {
	b := Alloc[float32](NewHost(), 4)
	require.Panics(t, func() { Data[float64](b) })
}

func TestFreeInvalidatesBuffer(t *testing.T) {
	s := NewHost()
	b := Alloc[int32](s, 4)
	s.Free(b)
	require.False(t, b.Valid())
	require.Panics(t, func() { Data[int32](b) })
	// Double free is a no-op.
	s.Free(b)
}

func TestFromSlice(t *testing.T) {
	s := NewHost()
	flat := []float32{1, 2, 3}
	b, err := FromSlice(s, flat)
	require.NoError(t, err)
	require.Equal(t, 3, b.Len())

	// The buffer aliases the slice.
	Data[float32](b)[0] = 42
	require.Equal(t, float32(42), flat[0])

	_, err = FromSlice(NewDevice("cuda", 0), flat)
	require.ErrorIs(t, err, glerrors.ErrConfigurationMismatch)
}

func TestCopyHostToHost(t *testing.T) {
	obs := &recordingObserver{}
	s := NewHost(obs)
	src := Alloc[float64](s, 4)
	dst := Alloc[float64](s, 4)
	copy(Data[float64](src), []float64{1, 2, 3, 4})

	require.NoError(t, Copy[float64](4, src, dst))
	require.Equal(t, []float64{1, 2, 3, 4}, Data[float64](dst))

	// One direct copy event (same space notifies once), after two allocs.
	require.Len(t, obs.copies, 1)
	require.Equal(t, copyEvent{src: HostLocation, dst: HostLocation, numBytes: 32}, obs.copies[0])
}

func TestCopyStagesBetweenDevices(t *testing.T) {
	srcObs := &recordingObserver{}
	dstObs := &recordingObserver{}
	srcSpace := NewDevice("cuda", 0, srcObs)
	dstSpace := NewDevice("cuda", 1, dstObs)

	src := Alloc[int64](srcSpace, 3)
	dst := Alloc[int64](dstSpace, 3)
	copy(Data[int64](src), []int64{7, 8, 9})

	require.NoError(t, Copy[int64](3, src, dst))
	require.Equal(t, []int64{7, 8, 9}, Data[int64](dst))

	// The transfer staged through the host: device->host on the source
	// space, host->device on the destination space.
	require.Equal(t, []copyEvent{{src: DeviceLocation("cuda", 0), dst: HostLocation, numBytes: 24}}, srcObs.copies)
	require.Equal(t, []copyEvent{{src: HostLocation, dst: DeviceLocation("cuda", 1), numBytes: 24}}, dstObs.copies)
}

func TestCopySameDeviceIsDirect(t *testing.T) {
	obs := &recordingObserver{}
	s := NewDevice("rocm", 0, obs)
	src := Alloc[int32](s, 2)
	dst := Alloc[int32](s, 2)
	require.NoError(t, Copy[int32](2, src, dst))
	require.Len(t, obs.copies, 1)
}

func TestCopyDimensionMismatch(t *testing.T) {
	s := NewHost()
	src := Alloc[float64](s, 2)
	dst := Alloc[float64](s, 4)
	err := Copy[float64](3, src, dst)
	require.ErrorIs(t, err, glerrors.ErrDimensionMismatch)

	freed := Alloc[float64](s, 4)
	s.Free(freed)
	require.ErrorIs(t, Copy[float64](1, freed, dst), glerrors.ErrDimensionMismatch)
}

func TestCopyTypeMismatch(t *testing.T) {
	s := NewHost()
	src := Alloc[float64](s, 2)
	dst := Alloc[float32](s, 2)
	require.ErrorIs(t, Copy[float64](2, src, dst), glerrors.ErrDimensionMismatch)
}

func TestCopyValToHost(t *testing.T) {
	obs := &recordingObserver{}
	s := NewDevice("cuda", 0, obs)
	b := Alloc[float64](s, 4)
	copy(Data[float64](b), []float64{0.5, 1.5, 2.5, 3.5})

	v, err := CopyValToHost[float64](b, 2)
	require.NoError(t, err)
	require.Equal(t, 2.5, v)
	require.Equal(t, []copyEvent{{src: DeviceLocation("cuda", 0), dst: HostLocation, numBytes: 8}}, obs.copies)

	_, err = CopyValToHost[float64](b, 4)
	require.ErrorIs(t, err, glerrors.ErrDimensionMismatch)
	_, err = CopyValToHost[float32](b, 0)
	require.ErrorIs(t, err, glerrors.ErrDimensionMismatch)
}
