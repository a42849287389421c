// Package dist implements the distributed-rank executor and the collective
// and redistribution primitives built on top of it.
//
// A distributed executor represents one rank of a group. It owns a nested
// sub-executor for rank-local numeric work and a Comm, the opaque transport
// connecting the ranks. Collectives (broadcast, gather, scatter, all-reduce)
// are generic package functions layered over the transport's point-to-point
// primitives, and the redistribution protocol (ScatterRows, GatherRows)
// moves matrix/vector rows between the root and the ranks according to
// per-rank IndexSets.
//
// All ranks must call matching collectives in matching order; a mismatched
// collective sequence is undefined behavior and is not detected here.
package dist

import "fmt"

// Request is the handle of a non-blocking point-to-point call. The buffer
// involved is only safely reusable after Wait returns.
type Request interface {
	Wait() error
}

// Comm is one rank's endpoint of the group transport. Implementations wrap
// the actual distributed-transport library; NewLocalGroup provides an
// in-process implementation for tests and single-machine runs.
//
// Payloads are raw bytes; the generic wrappers in this package handle typed
// element views. Messages between the same pair of ranks with the same tag
// are delivered in send order.
type Comm interface {
	// Rank returns this endpoint's rank id, in [0, Size()).
	Rank() int

	// Size returns the number of ranks in the group.
	Size() int

	// Send delivers data to the given rank. It blocks until the buffer is
	// safely reusable. Tags must be non-negative; negative tags are
	// reserved for the collectives in this package.
	Send(to, tag int, data []byte) error

	// Recv receives a message from the given rank into data, blocking until
	// it arrived. The message must have exactly len(data) bytes.
	Recv(from, tag int, data []byte) error

	// ISend is the non-blocking Send; complete it with Request.Wait.
	ISend(to, tag int, data []byte) (Request, error)

	// IRecv is the non-blocking Recv; data is filled only once Request.Wait
	// returned.
	IRecv(from, tag int, data []byte) (Request, error)

	// Barrier blocks until every rank of the group reached it.
	Barrier() error

	// Split partitions the group: ranks passing the same color form a new
	// group, ordered by (key, rank). A negative color opts out and yields a
	// nil Comm. Every rank of the group must call Split.
	Split(color, key int) (Comm, error)
}

// Internal tags used by the collectives; user tags are non-negative, so
// these never collide with point-to-point traffic.
const (
	tagBroadcast = -1 - iota
	tagGather
	tagScatter
	tagReduce
)

// ReduceOp selects the associative operator of a reduction.
type ReduceOp int

const (
	// ReduceSum adds elements.
	ReduceSum ReduceOp = iota
	// ReduceMin keeps the smallest element.
	ReduceMin
	// ReduceMax keeps the largest element.
	ReduceMax
)

// String implements fmt.Stringer.
func (op ReduceOp) String() string {
	switch op {
	case ReduceSum:
		return "sum"
	case ReduceMin:
		return "min"
	case ReduceMax:
		return "max"
	}
	return fmt.Sprintf("ReduceOp(%d)", int(op))
}
