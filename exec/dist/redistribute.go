package dist

import (
	"golang.org/x/exp/constraints"

	glerrors "github.com/glera/glera/errors"
	"github.com/glera/glera/exec"
	"github.com/glera/glera/indexset"
	"github.com/glera/glera/memspace"
)

// The redistribution protocol moves rows of a dense, row-major object
// between a root-resident global buffer and rank-local blocks, according to
// per-rank IndexSets. A row is stride consecutive elements; row i of the
// global object lives at global[i*stride : (i+1)*stride].
//
// Ownership may be non-contiguous and out of rank order: a rank's local
// block holds its rows in IndexSet order (increasing global row index), and
// reconstruction places rows by their IndexSet positions, never by rank id.

// gatherOwnership collects every rank's owned row indices on the root.
// It returns, on the root only, the per-rank index lists; other ranks get
// nil. Every rank passes its own set.
func gatherOwnership[I constraints.Integer](e *Executor, owned *indexset.Set[I]) ([][]int64, error) {
	root := e.RootRank()
	mine := make([]int64, 0, owned.NumElems())
	owned.ForEach(func(index I) { mine = append(mine, int64(index)) })

	counts := make([]int64, e.NumRanks())
	if err := Gather(e, []int64{int64(len(mine))}, counts, root); err != nil {
		return nil, err
	}
	if e.MyRank() != root {
		if err := Gatherv(e, mine, nil, nil, nil, root); err != nil {
			return nil, err
		}
		return nil, nil
	}

	idxCounts := make([]int, e.NumRanks())
	idxDispls := make([]int, e.NumRanks())
	total := 0
	for r, c := range counts {
		idxCounts[r] = int(c)
		idxDispls[r] = total
		total += int(c)
	}
	flat := make([]int64, total)
	if err := Gatherv(e, mine, flat, idxCounts, idxDispls, root); err != nil {
		return nil, err
	}
	perRank := make([][]int64, e.NumRanks())
	for r := range perRank {
		perRank[r] = flat[idxDispls[r] : idxDispls[r]+idxCounts[r]]
	}
	return perRank, nil
}

// ScatterRows distributes the rows of a global buffer, fully populated only
// on the root rank, to their owning ranks. Every rank passes the IndexSet of
// the rows it is to own and receives its local block, rows in IndexSet
// order. Non-root ranks pass a dummy (nil) global buffer.
func ScatterRows[T any, I constraints.Integer](e *Executor, global []T, owned *indexset.Set[I], stride int) ([]T, error) {
	if stride <= 0 {
		return nil, glerrors.DimensionMismatchf("scatter of rows with stride %d", stride)
	}
	root := e.RootRank()
	domain := int(owned.Domain())
	if e.MyRank() == root && len(global) != domain*stride {
		// Checked before the ownership exchange, so a misconfigured root
		// fails without leaving traffic behind.
		return nil, glerrors.DimensionMismatchf(
			"global buffer of %d elements, domain of %d rows with stride %d needs %d",
			len(global), domain, stride, domain*stride)
	}
	perRank, err := gatherOwnership(e, owned)
	if err != nil {
		return nil, err
	}
	local := make([]T, int(owned.NumElems())*stride)

	if e.MyRank() != root {
		if err := Scatterv(e, nil, nil, nil, local, root); err != nil {
			return nil, err
		}
		return local, nil
	}

	// Pack each rank's rows, in IndexSet order, into one contiguous chunk
	// per rank; the chunk offsets become the scatter displacements.
	sendCounts := make([]int, e.NumRanks())
	sendDispls := make([]int, e.NumRanks())
	total := 0
	for r, indices := range perRank {
		sendCounts[r] = len(indices) * stride
		sendDispls[r] = total
		total += sendCounts[r]
	}
	packed := make([]T, total)
	off := 0
	for _, indices := range perRank {
		for _, row := range indices {
			copy(packed[off:off+stride], global[int(row)*stride:(int(row)+1)*stride])
			off += stride
		}
	}
	if err := Scatterv(e, packed, sendCounts, sendDispls, local, root); err != nil {
		return nil, err
	}
	return local, nil
}

// GatherRows reconstructs the global buffer from the ranks' local blocks.
// Each rank contributes its block plus its own IndexSet; rows are placed at
// the positions the IndexSet records, so interleaved and non-contiguous
// ownership reconstructs correctly. The global buffer is returned on the
// root rank and nil elsewhere.
func GatherRows[T any, I constraints.Integer](e *Executor, local []T, owned *indexset.Set[I], stride int) ([]T, error) {
	if stride <= 0 {
		return nil, glerrors.DimensionMismatchf("gather of rows with stride %d", stride)
	}
	if len(local) != int(owned.NumElems())*stride {
		return nil, glerrors.DimensionMismatchf(
			"local block of %d elements for %d owned rows with stride %d",
			len(local), owned.NumElems(), stride)
	}
	root := e.RootRank()
	perRank, err := gatherOwnership(e, owned)
	if err != nil {
		return nil, err
	}
	if e.MyRank() != root {
		if err := Gatherv(e, local, nil, nil, nil, root); err != nil {
			return nil, err
		}
		return nil, nil
	}

	blockCounts := make([]int, e.NumRanks())
	blockDispls := make([]int, e.NumRanks())
	total := 0
	for r, indices := range perRank {
		blockCounts[r] = len(indices) * stride
		blockDispls[r] = total
		total += blockCounts[r]
	}
	packed := make([]T, total)
	if err := Gatherv(e, local, packed, blockCounts, blockDispls, root); err != nil {
		return nil, err
	}
	global := make([]T, int(owned.Domain())*stride)
	for r, indices := range perRank {
		off := blockDispls[r]
		for _, row := range indices {
			copy(global[int(row)*stride:(int(row)+1)*stride], packed[off:off+stride])
			off += stride
		}
	}
	return global, nil
}

// AllGatherRows is GatherRows followed by a broadcast: every rank returns
// the full reconstructed global buffer.
func AllGatherRows[T any, I constraints.Integer](e *Executor, local []T, owned *indexset.Set[I], stride int) ([]T, error) {
	global, err := GatherRows(e, local, owned, stride)
	if err != nil {
		return nil, err
	}
	root := e.RootRank()
	if e.MyRank() != root {
		global = make([]T, int(owned.Domain())*stride)
	}
	if err := Broadcast(e, global, root); err != nil {
		return nil, err
	}
	return global, nil
}

// AllReducePartial combines rank-local partial results (an inner product or
// norm contribution computed on the rank's sub-executor) across all ranks.
//
// The partial lives in the sub-executor's memory space; it is staged through
// a host-resident copy first, because the sub-executor's backend may not be
// able to participate in the collective directly. The staging copy
// synchronizes the sub-executor, so asynchronously computed partials are
// complete before they enter the reduction.
func AllReducePartial[T Number](e *Executor, partial *memspace.Buffer, n int, op ReduceOp) ([]T, error) {
	staged := make([]T, n)
	hostBuf, err := memspace.FromSlice(memspace.NewHost(), staged)
	if err != nil {
		return nil, err
	}
	if err := exec.Copy[T](e.SubExecutor(), n, partial, hostBuf); err != nil {
		return nil, err
	}
	return AllReduce(e, staged, op)
}
