package memutils

import (
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/require"
)

func TestCheckPow2(t *testing.T) {
	require.NoError(t, CheckPow2(1, "one"))
	require.NoError(t, CheckPow2(64, "sixty-four"))

	err := CheckPow2(48, "page size")
	require.True(t, errors.Is(err, PowerOfTwoError))
	require.Contains(t, err.Error(), "page size is 48")

	require.Error(t, CheckPow2(0, "zero"))
}

func TestLog2(t *testing.T) {
	testCases := []struct {
		value int
		ceil  int
		floor int
	}{
		{value: 1, ceil: 0, floor: 0},
		{value: 2, ceil: 1, floor: 1},
		{value: 3, ceil: 2, floor: 1},
		{value: 4, ceil: 2, floor: 2},
		{value: 5, ceil: 3, floor: 2},
		{value: 16, ceil: 4, floor: 4},
		{value: 17, ceil: 5, floor: 4},
	}

	for _, tc := range testCases {
		require.Equal(t, tc.ceil, Log2Ceil(tc.value), "Log2Ceil(%d)", tc.value)
		require.Equal(t, tc.floor, Log2Floor(tc.value), "Log2Floor(%d)", tc.value)
	}

	require.Equal(t, 0, Log2Ceil(0))
	require.Equal(t, -1, Log2Floor(0))
}

func TestAlign(t *testing.T) {
	require.Equal(t, 256, AlignUp(1, 256))
	require.Equal(t, 256, AlignUp(256, 256))
	require.Equal(t, 0, AlignDown(255, 256))
	require.Equal(t, 3, DivideRoundingUp(9, 4))
	require.Equal(t, 2, DivideRoundingUp(8, 4))
}

func TestDetailedStatistics(t *testing.T) {
	var stats DetailedStatistics
	stats.Clear()

	stats.AddAllocation(64)
	stats.AddAllocation(16)
	stats.AddUnusedRange(48)

	var other DetailedStatistics
	other.Clear()
	other.BlockCount = 1
	other.BlockBytes = 128
	other.AddAllocation(128)

	stats.AddDetailedStatistics(&other)

	require.Equal(t, 3, stats.AllocationCount)
	require.Equal(t, 208, stats.AllocationBytes)
	require.Equal(t, 16, stats.AllocationSizeMin)
	require.Equal(t, 128, stats.AllocationSizeMax)
	require.Equal(t, 1, stats.UnusedRangeCount)
	require.Equal(t, 48, stats.UnusedRangeSizeMin)
	require.Equal(t, 1, stats.BlockCount)
}
