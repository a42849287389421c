package indexset

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestAddSubsetMerging(t *testing.T) {
	testCases := []struct {
		name string
		add  [][2]int32
		want []Span[int32]
	}{
		{
			name: "disjoint spans stay sorted",
			add:  [][2]int32{{7, 9}, {0, 4}},
			want: []Span[int32]{{0, 4}, {7, 9}},
		},
		{
			name: "adjacent spans collapse",
			add:  [][2]int32{{0, 4}, {4, 8}},
			want: []Span[int32]{{0, 8}},
		},
		{
			name: "overlap merges",
			add:  [][2]int32{{0, 5}, {3, 8}},
			want: []Span[int32]{{0, 8}},
		},
		{
			name: "bridge swallows several spans",
			add:  [][2]int32{{0, 2}, {4, 6}, {8, 10}, {1, 9}},
			want: []Span[int32]{{0, 10}},
		},
		{
			name: "subset of existing span is a no-op",
			add:  [][2]int32{{0, 10}, {3, 5}},
			want: []Span[int32]{{0, 10}},
		},
		{
			name: "empty range is a no-op",
			add:  [][2]int32{{0, 4}, {6, 6}},
			want: []Span[int32]{{0, 4}},
		},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			s := New[int32](16)
			for _, r := range tc.add {
				s.AddSubset(r[0], r[1])
			}
			require.Equal(t, tc.want, s.Spans())
		})
	}
}

func TestAddIndex(t *testing.T) {
	s := New[int](10)
	for _, i := range []int{3, 5, 4, 0, 9} {
		s.AddIndex(i)
	}
	// 3,4,5 collapse into one span.
	require.Equal(t, 3, s.NumSpans())
	require.Equal(t, []int{0, 3, 4, 5, 9}, s.Indices())
	require.Equal(t, 5, s.NumElems())
}

func TestContains(t *testing.T) {
	s := New[int64](100)
	s.AddSubset(10, 20)
	s.AddIndex(42)
	for _, i := range []int64{10, 15, 19, 42} {
		require.True(t, s.Contains(i), "index %d", i)
	}
	for _, i := range []int64{0, 9, 20, 41, 43, 99} {
		require.False(t, s.Contains(i), "index %d", i)
	}
}

func TestLargestElement(t *testing.T) {
	s := New[int](50)
	_, ok := s.LargestElement()
	require.False(t, ok)
	require.True(t, s.IsEmpty())

	s.AddSubset(5, 12)
	s.AddIndex(3)
	largest, ok := s.LargestElement()
	require.True(t, ok)
	require.Equal(t, 11, largest)
	require.False(t, s.IsEmpty())
}

func TestOutOfDomainPanics(t *testing.T) {
	require.Panics(t, func() { New[int](-1) })
	s := New[int](8)
	require.Panics(t, func() { s.AddIndex(8) })
	require.Panics(t, func() { s.AddIndex(-1) })
	require.Panics(t, func() { s.AddSubset(2, 9) })
	require.Panics(t, func() { s.AddSubset(5, 3) })
}

func TestCloneIsIndependent(t *testing.T) {
	s := New[int](32)
	s.AddSubset(0, 8)
	c := s.Clone()
	c.AddSubset(16, 24)
	require.Equal(t, 1, s.NumSpans())
	require.Equal(t, 2, c.NumSpans())
	require.Equal(t, s.Domain(), c.Domain())
}

func TestForEachOrder(t *testing.T) {
	s := New[int](20)
	s.AddSubset(14, 17)
	s.AddSubset(2, 5)
	var got []int
	s.ForEach(func(index int) { got = append(got, index) })
	require.Equal(t, []int{2, 3, 4, 14, 15, 16}, got)
}

func TestString(t *testing.T) {
	s := New[int](16)
	s.AddSubset(0, 4)
	s.AddSubset(7, 9)
	require.Equal(t, "{[0,4) [7,9)} of [0,16)", s.String())
	require.Equal(t, "{} of [0,16)", fmt.Sprint(New[int](16)))
}
