// Package indexset implements a compact set of integer indices over a fixed
// domain, stored as sorted, disjoint, half-open ranges.
//
// An IndexSet describes which rows of a global index domain a participant
// owns. Ownership is often contiguous, so the range representation is far
// more compact than a bitmap or a hash set, and iteration is always ordered.
//
// Ranges are kept maximally merged: adding an index or subset adjacent to an
// existing range extends that range instead of creating a new entry.
package indexset

import (
	"fmt"
	"sort"
	"strings"

	"github.com/gomlx/exceptions"
	"golang.org/x/exp/constraints"
)

// Span is a half-open range [Begin, End) of indices.
type Span[T constraints.Integer] struct {
	Begin, End T
}

// Len returns the number of indices in the span.
func (s Span[T]) Len() T { return s.End - s.Begin }

// Set is a sorted, disjoint collection of index spans within the domain
// [0, Domain()).
//
// The zero value is not usable, create one with New.
// A Set is not safe for concurrent mutation.
type Set[T constraints.Integer] struct {
	domain T
	spans  []Span[T]
}

// New creates an empty Set over the domain [0, domain).
func New[T constraints.Integer](domain T) *Set[T] {
	if domain < 0 {
		exceptions.Panicf("indexset.New: negative domain size %d", domain)
	}
	return &Set[T]{domain: domain}
}

// Domain returns the domain size the set was created with.
func (s *Set[T]) Domain() T { return s.domain }

// AddIndex adds a single index to the set.
// It panics if index is outside [0, Domain()).
func (s *Set[T]) AddIndex(index T) {
	s.AddSubset(index, index+1)
}

// AddSubset adds the half-open range [begin, end) to the set, merging with
// any overlapping or adjacent spans.
// It panics if the range is not contained in [0, Domain()) or if begin > end.
// An empty range (begin == end) is a no-op.
func (s *Set[T]) AddSubset(begin, end T) {
	if begin > end || begin < 0 || end > s.domain {
		exceptions.Panicf("indexset.AddSubset: range [%d, %d) invalid for domain [0, %d)",
			begin, end, s.domain)
	}
	if begin == end {
		return
	}
	// First span that could merge with [begin, end): the earliest span whose
	// end reaches begin (adjacency counts as a merge).
	lo := sort.Search(len(s.spans), func(i int) bool { return s.spans[i].End >= begin })
	// One past the last span that could merge: the first span starting
	// strictly after end.
	hi := sort.Search(len(s.spans), func(i int) bool { return s.spans[i].Begin > end })
	if lo == hi {
		// No overlap nor adjacency, insert a new span at lo.
		s.spans = append(s.spans, Span[T]{})
		copy(s.spans[lo+1:], s.spans[lo:])
		s.spans[lo] = Span[T]{Begin: begin, End: end}
		return
	}
	merged := Span[T]{Begin: min(begin, s.spans[lo].Begin), End: max(end, s.spans[hi-1].End)}
	s.spans[lo] = merged
	s.spans = append(s.spans[:lo+1], s.spans[hi:]...)
}

// Contains reports whether index is in the set.
func (s *Set[T]) Contains(index T) bool {
	i := sort.Search(len(s.spans), func(i int) bool { return s.spans[i].End > index })
	return i < len(s.spans) && s.spans[i].Begin <= index
}

// NumElems returns the number of indices in the set.
func (s *Set[T]) NumElems() T {
	var n T
	for _, sp := range s.spans {
		n += sp.Len()
	}
	return n
}

// IsEmpty reports whether the set holds no indices.
func (s *Set[T]) IsEmpty() bool { return len(s.spans) == 0 }

// LargestElement returns the largest index in the set.
// The second return value is false if the set is empty.
func (s *Set[T]) LargestElement() (T, bool) {
	if len(s.spans) == 0 {
		return 0, false
	}
	return s.spans[len(s.spans)-1].End - 1, true
}

// NumSpans returns the number of disjoint spans in the set.
func (s *Set[T]) NumSpans() int { return len(s.spans) }

// Spans returns the spans of the set in increasing order.
// The returned slice is owned by the set and must not be modified.
func (s *Set[T]) Spans() []Span[T] { return s.spans }

// ForEach calls fn for every index in the set, in increasing order.
func (s *Set[T]) ForEach(fn func(index T)) {
	for _, sp := range s.spans {
		for i := sp.Begin; i < sp.End; i++ {
			fn(i)
		}
	}
}

// Indices materializes all indices of the set, in increasing order.
func (s *Set[T]) Indices() []T {
	out := make([]T, 0, s.NumElems())
	s.ForEach(func(index T) { out = append(out, index) })
	return out
}

// Clone returns an independent copy of the set.
func (s *Set[T]) Clone() *Set[T] {
	clone := &Set[T]{domain: s.domain}
	clone.spans = append(clone.spans, s.spans...)
	return clone
}

// String returns a compact representation, e.g. "{[0,4) [7,9)} of [0,16)".
func (s *Set[T]) String() string {
	var b strings.Builder
	b.WriteString("{")
	for i, sp := range s.spans {
		if i > 0 {
			b.WriteString(" ")
		}
		_, _ = fmt.Fprintf(&b, "[%d,%d)", sp.Begin, sp.End)
	}
	_, _ = fmt.Fprintf(&b, "} of [0,%d)", s.domain)
	return b.String()
}
