package dist

import (
	"unsafe"

	"github.com/x448/float16"
	"golang.org/x/exp/constraints"

	glerrors "github.com/glera/glera/errors"
)

// Number constrains the element types reductions operate on.
type Number interface {
	constraints.Integer | constraints.Float
}

// bytesView reinterprets a slice of trivially-copyable elements as raw
// bytes, without copying.
func bytesView[T any](s []T) []byte {
	if len(s) == 0 {
		return nil
	}
	var zero T
	return unsafe.Slice((*byte)(unsafe.Pointer(&s[0])), len(s)*int(unsafe.Sizeof(zero)))
}

// Send delivers buf to the given rank, blocking until the buffer is safely
// reusable. The element type must be trivially copyable (no pointers).
func Send[T any](e *Executor, buf []T, to, tag int) error {
	return e.comm.Send(to, tag, bytesView(buf))
}

// Recv receives exactly len(buf) elements from the given rank.
func Recv[T any](e *Executor, buf []T, from, tag int) error {
	return e.comm.Recv(from, tag, bytesView(buf))
}

// ISend is the non-blocking Send; the buffer is reusable after the returned
// request's Wait.
func ISend[T any](e *Executor, buf []T, to, tag int) (Request, error) {
	return e.comm.ISend(to, tag, bytesView(buf))
}

// IRecv is the non-blocking Recv; buf holds the message only after the
// returned request's Wait.
func IRecv[T any](e *Executor, buf []T, from, tag int) (Request, error) {
	return e.comm.IRecv(from, tag, bytesView(buf))
}

// Broadcast distributes buf from the root rank to every rank. All ranks
// pass a buffer of the same element count; on non-root ranks it is
// overwritten.
func Broadcast[T any](e *Executor, buf []T, root int) error {
	if e.MyRank() == root {
		for r := 0; r < e.NumRanks(); r++ {
			if r == root {
				continue
			}
			if err := Send(e, buf, r, tagBroadcast); err != nil {
				return err
			}
		}
		return nil
	}
	return Recv(e, buf, root, tagBroadcast)
}

// Gather collects len(send) elements from every rank into recv on the root,
// ordered by rank id. recv needs Size()*len(send) elements on the root and
// is ignored elsewhere.
func Gather[T any](e *Executor, send, recv []T, root int) error {
	count := len(send)
	if e.MyRank() != root {
		return Send(e, send, root, tagGather)
	}
	if len(recv) < e.NumRanks()*count {
		return glerrors.DimensionMismatchf(
			"gather into %d elements, need %d (%d ranks x %d)",
			len(recv), e.NumRanks()*count, e.NumRanks(), count)
	}
	copy(recv[root*count:(root+1)*count], send)
	for r := 0; r < e.NumRanks(); r++ {
		if r == root {
			continue
		}
		if err := Recv(e, recv[r*count:(r+1)*count], r, tagGather); err != nil {
			return err
		}
	}
	return nil
}

// Gatherv is the variable-length Gather: rank r contributes counts[r]
// elements, placed at recv[displs[r]:] on the root. counts and displs are
// only read on the root; every rank's send length must match its count.
func Gatherv[T any](e *Executor, send, recv []T, counts, displs []int, root int) error {
	if e.MyRank() != root {
		return Send(e, send, root, tagGather)
	}
	if len(counts) != e.NumRanks() || len(displs) != e.NumRanks() {
		return glerrors.DimensionMismatchf(
			"gatherv with %d counts and %d displacements for %d ranks",
			len(counts), len(displs), e.NumRanks())
	}
	for r := 0; r < e.NumRanks(); r++ {
		if displs[r] < 0 || displs[r]+counts[r] > len(recv) {
			return glerrors.DimensionMismatchf(
				"gatherv chunk [%d, %d) for rank %d outside receive buffer of %d elements",
				displs[r], displs[r]+counts[r], r, len(recv))
		}
	}
	if len(send) != counts[root] {
		return glerrors.DimensionMismatchf(
			"gatherv root contributes %d elements, count says %d", len(send), counts[root])
	}
	copy(recv[displs[root]:displs[root]+counts[root]], send)
	for r := 0; r < e.NumRanks(); r++ {
		if r == root {
			continue
		}
		if err := Recv(e, recv[displs[r]:displs[r]+counts[r]], r, tagGather); err != nil {
			return err
		}
	}
	return nil
}

// Scatter distributes len(recv) elements to every rank from send on the
// root, ordered by rank id. send needs Size()*len(recv) elements on the
// root and is ignored elsewhere.
func Scatter[T any](e *Executor, send, recv []T, root int) error {
	count := len(recv)
	if e.MyRank() != root {
		return Recv(e, recv, root, tagScatter)
	}
	if len(send) < e.NumRanks()*count {
		return glerrors.DimensionMismatchf(
			"scatter from %d elements, need %d (%d ranks x %d)",
			len(send), e.NumRanks()*count, e.NumRanks(), count)
	}
	for r := 0; r < e.NumRanks(); r++ {
		if r == root {
			continue
		}
		if err := Send(e, send[r*count:(r+1)*count], r, tagScatter); err != nil {
			return err
		}
	}
	copy(recv, send[root*count:(root+1)*count])
	return nil
}

// Scatterv is the variable-length Scatter: rank r receives counts[r]
// elements taken from send[displs[r]:] on the root. Non-root ranks pass a
// dummy (nil) send buffer; their recv length must match their count.
func Scatterv[T any](e *Executor, send []T, counts, displs []int, recv []T, root int) error {
	if e.MyRank() != root {
		return Recv(e, recv, root, tagScatter)
	}
	if len(counts) != e.NumRanks() || len(displs) != e.NumRanks() {
		return glerrors.DimensionMismatchf(
			"scatterv with %d counts and %d displacements for %d ranks",
			len(counts), len(displs), e.NumRanks())
	}
	for r := 0; r < e.NumRanks(); r++ {
		if displs[r] < 0 || displs[r]+counts[r] > len(send) {
			return glerrors.DimensionMismatchf(
				"scatterv chunk [%d, %d) for rank %d outside send buffer of %d elements",
				displs[r], displs[r]+counts[r], r, len(send))
		}
	}
	if len(recv) != counts[root] {
		return glerrors.DimensionMismatchf(
			"scatterv root receives %d elements, count says %d", len(recv), counts[root])
	}
	for r := 0; r < e.NumRanks(); r++ {
		if r == root {
			continue
		}
		if err := Send(e, send[displs[r]:displs[r]+counts[r]], r, tagScatter); err != nil {
			return err
		}
	}
	copy(recv, send[displs[root]:displs[root]+counts[root]])
	return nil
}

// AllGather is Gather followed by a broadcast: after it returns, every rank
// holds all contributions in recv, ordered by rank id.
func AllGather[T any](e *Executor, send, recv []T) error {
	root := e.RootRank()
	if len(recv) < e.NumRanks()*len(send) {
		return glerrors.DimensionMismatchf(
			"allgather into %d elements, need %d", len(recv), e.NumRanks()*len(send))
	}
	if err := Gather(e, send, recv, root); err != nil {
		return err
	}
	return Broadcast(e, recv[:e.NumRanks()*len(send)], root)
}

// AllReduce reduces in elementwise across all ranks with the given operator
// and returns the full result on every rank. Every rank must pass the same
// element count.
func AllReduce[T Number](e *Executor, in []T, op ReduceOp) ([]T, error) {
	root := e.RootRank()
	out := make([]T, len(in))
	if e.MyRank() == root {
		copy(out, in)
		tmp := make([]T, len(in))
		for r := 0; r < e.NumRanks(); r++ {
			if r == root {
				continue
			}
			if err := Recv(e, tmp, r, tagReduce); err != nil {
				return nil, err
			}
			for i := range out {
				out[i] = reduceElem(op, out[i], tmp[i])
			}
		}
	} else {
		if err := Send(e, in, root, tagReduce); err != nil {
			return nil, err
		}
	}
	if err := Broadcast(e, out, root); err != nil {
		return nil, err
	}
	return out, nil
}

// AllReduceScalar is AllReduce of a single value.
func AllReduceScalar[T Number](e *Executor, v T, op ReduceOp) (T, error) {
	out, err := AllReduce(e, []T{v}, op)
	if err != nil {
		var zero T
		return zero, err
	}
	return out[0], nil
}

// AllReduceFloat16 reduces half-precision elements across ranks,
// accumulating in float32 to avoid compounding rounding between ranks.
func AllReduceFloat16(e *Executor, in []float16.Float16, op ReduceOp) ([]float16.Float16, error) {
	wide := make([]float32, len(in))
	for i, h := range in {
		wide[i] = h.Float32()
	}
	reduced, err := AllReduce(e, wide, op)
	if err != nil {
		return nil, err
	}
	out := make([]float16.Float16, len(reduced))
	for i, f := range reduced {
		out[i] = float16.Fromfloat32(f)
	}
	return out, nil
}

func reduceElem[T Number](op ReduceOp, a, b T) T {
	switch op {
	case ReduceMin:
		return min(a, b)
	case ReduceMax:
		return max(a, b)
	default:
		return a + b
	}
}
