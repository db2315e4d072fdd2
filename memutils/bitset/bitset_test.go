package bitset_test

import (
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/vkngwrapper/gpualloc/memutils/bitset"
)

func TestSetClearTest(t *testing.T) {
	b := bitset.New(100)
	require.Equal(t, 100, b.Size())
	require.Equal(t, 0, b.Count())

	b.Set(0)
	b.Set(63)
	b.Set(64)
	b.Set(99)
	b.Set(99)

	require.True(t, b.Test(0))
	require.True(t, b.Test(63))
	require.True(t, b.Test(64))
	require.True(t, b.Test(99))
	require.False(t, b.Test(1))
	require.Equal(t, 4, b.Count())

	b.Clear(63)
	b.Clear(63)
	require.False(t, b.Test(63))
	require.Equal(t, 3, b.Count())

	b.Reset()
	require.Equal(t, 0, b.Count())
	require.False(t, b.Test(0))
}

func TestOutOfRangePanics(t *testing.T) {
	b := bitset.New(10)

	require.Panics(t, func() { b.Set(10) })
	require.Panics(t, func() { b.Test(-1) })
	require.Panics(t, func() { b.SetRange(8, 3) })
}

func TestRanges(t *testing.T) {
	testCases := []struct {
		name  string
		size  int
		start int
		count int
	}{
		{name: "WithinWord", size: 64, start: 3, count: 10},
		{name: "WholeWord", size: 128, start: 64, count: 64},
		{name: "CrossWord", size: 200, start: 60, count: 80},
		{name: "Empty", size: 16, start: 4, count: 0},
		{name: "Everything", size: 130, start: 0, count: 130},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			b := bitset.New(tc.size)

			b.SetRange(tc.start, tc.count)
			require.Equal(t, tc.count, b.Count())
			require.True(t, b.AllSet(tc.start, tc.count))

			if tc.start > 0 {
				require.False(t, b.Test(tc.start-1))
			}
			if tc.start+tc.count < tc.size {
				require.False(t, b.Test(tc.start+tc.count))
				require.True(t, b.NoneSet(tc.start+tc.count, tc.size-tc.start-tc.count))
			}

			b.ClearRange(tc.start, tc.count)
			require.Equal(t, 0, b.Count())
			require.True(t, b.NoneSet(0, tc.size))
		})
	}
}

func TestPartialRanges(t *testing.T) {
	b := bitset.New(128)
	b.SetRange(10, 20)
	b.SetRange(20, 20)

	require.Equal(t, 30, b.Count())
	require.True(t, b.AllSet(10, 30))
	require.False(t, b.AllSet(9, 2))
	require.False(t, b.NoneSet(39, 2))

	b.ClearRange(0, 15)
	require.Equal(t, 25, b.Count())
	require.True(t, b.AllSet(15, 25))
}

func TestFirstClearAndSet(t *testing.T) {
	b := bitset.New(70)
	require.Equal(t, 0, b.FirstClear())
	require.Equal(t, -1, b.FirstSet())

	b.SetRange(0, 65)
	require.Equal(t, 65, b.FirstClear())
	require.Equal(t, 0, b.FirstSet())

	b.SetRange(65, 5)
	require.Equal(t, -1, b.FirstClear())

	b.ClearRange(0, 66)
	require.Equal(t, 66, b.FirstSet())
}

func TestVisit(t *testing.T) {
	b := bitset.New(200)
	b.Set(3)
	b.Set(64)
	b.Set(199)

	var visited []int
	b.Visit(func(index int) bool {
		visited = append(visited, index)
		return true
	})
	require.Equal(t, []int{3, 64, 199}, visited)

	visited = visited[:0]
	b.Visit(func(index int) bool {
		visited = append(visited, index)
		return false
	})
	require.Equal(t, []int{3}, visited)
}
