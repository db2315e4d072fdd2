package seglist_test

import (
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/require"
	"github.com/vkngwrapper/gpualloc/memutils"
	"github.com/vkngwrapper/gpualloc/memutils/seglist"
)

func TestNewBuildsOneBucketPerOrder(t *testing.T) {
	allocator, err := seglist.New(64, 1024, 4096)
	require.NoError(t, err)

	require.Equal(t, 4, allocator.MaxOrder())
	require.Equal(t, 64, allocator.SlotSize(0))
	require.Equal(t, 1024, allocator.SlotSize(4))
	require.Equal(t, 64, allocator.SlotsPerArena(0))
	require.Equal(t, 4, allocator.SlotsPerArena(4))
	require.Equal(t, 4096, allocator.ArenaBytes(4))

	_, err = seglist.New(64, 32, 4096)
	require.Error(t, err)

	_, err = seglist.New(48, 1024, 4096)
	require.True(t, errors.Is(err, memutils.PowerOfTwoError))
}

func TestOversizedClassesHoldOneSlot(t *testing.T) {
	allocator, err := seglist.New(64, 1024, 256)
	require.NoError(t, err)

	require.Equal(t, 1, allocator.SlotsPerArena(3))
	require.Equal(t, 1, allocator.SlotsPerArena(4))
	require.Equal(t, 1024, allocator.ArenaBytes(4))
}

func TestOrderForSize(t *testing.T) {
	allocator, err := seglist.New(64, 1024, 4096)
	require.NoError(t, err)

	testCases := []struct {
		size  int
		order int
	}{
		{size: 1, order: 0},
		{size: 64, order: 0},
		{size: 65, order: 1},
		{size: 200, order: 2},
		{size: 1024, order: 4},
	}

	for _, tc := range testCases {
		order, err := allocator.OrderForSize(tc.size)
		require.NoError(t, err)
		require.Equal(t, tc.order, order, "size %d", tc.size)
	}

	_, err = allocator.OrderForSize(1025)
	require.True(t, errors.Is(err, memutils.OutOfSpaceError))
}

func TestTryAllocateNeedsArena(t *testing.T) {
	allocator, err := seglist.New(64, 1024, 128)
	require.NoError(t, err)

	_, err = allocator.TryAllocate(64)
	require.True(t, errors.Is(err, memutils.OutOfSpaceError))

	require.Equal(t, 0, allocator.AddArena(0))

	first, err := allocator.TryAllocate(10)
	require.NoError(t, err)
	require.Equal(t, seglist.AllocInfo{Order: 0, Arena: 0, Slot: 0}, first)

	second, err := allocator.TryAllocate(64)
	require.NoError(t, err)
	require.Equal(t, seglist.AllocInfo{Order: 0, Arena: 0, Slot: 1}, second)
	require.Equal(t, 64, allocator.Offset(second))

	_, err = allocator.TryAllocate(64)
	require.True(t, errors.Is(err, memutils.OutOfSpaceError))
}

func TestAllocateAppendsArenas(t *testing.T) {
	allocator, err := seglist.New(64, 1024, 128)
	require.NoError(t, err)

	var infos []seglist.AllocInfo
	for i := 0; i < 5; i++ {
		info, err := allocator.Allocate(100)
		require.NoError(t, err)
		require.Equal(t, 1, info.Order)
		infos = append(infos, info)
	}

	require.Equal(t, 5, allocator.ArenaCount(1))
	require.Equal(t, 0, allocator.ArenaCount(0))
	require.Equal(t, 5, allocator.AllocationCount())

	require.NoError(t, allocator.Deallocate(infos[2]))
	reused, err := allocator.Allocate(128)
	require.NoError(t, err)
	require.Equal(t, infos[2], reused)
	require.Equal(t, 5, allocator.ArenaCount(1))
	require.NoError(t, allocator.Validate())
}

func TestClassesDoNotShareSlots(t *testing.T) {
	allocator, err := seglist.New(64, 1024, 1024)
	require.NoError(t, err)

	small, err := allocator.Allocate(64)
	require.NoError(t, err)
	large, err := allocator.Allocate(512)
	require.NoError(t, err)

	require.Equal(t, 0, small.Order)
	require.Equal(t, 3, large.Order)
	require.Equal(t, 1, allocator.ArenaCount(0))
	require.Equal(t, 1, allocator.ArenaCount(3))

	require.NoError(t, allocator.Deallocate(large))
	require.Equal(t, 1, allocator.ArenaCount(3))
}

func TestDeallocateRejectsInvalidSlots(t *testing.T) {
	allocator, err := seglist.New(64, 1024, 256)
	require.NoError(t, err)

	info, err := allocator.Allocate(64)
	require.NoError(t, err)
	require.NoError(t, allocator.Deallocate(info))

	testCases := []struct {
		name string
		info seglist.AllocInfo
	}{
		{name: "DoubleFree", info: info},
		{name: "BadOrder", info: seglist.AllocInfo{Order: 9}},
		{name: "BadArena", info: seglist.AllocInfo{Order: 0, Arena: 3}},
		{name: "BadSlot", info: seglist.AllocInfo{Order: 0, Arena: 0, Slot: 99}},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			err := allocator.Deallocate(tc.info)
			require.True(t, errors.Is(err, memutils.InvalidFreeError))
		})
	}
	require.Equal(t, 0, allocator.AllocationCount())
}

func TestStatistics(t *testing.T) {
	allocator, err := seglist.New(64, 256, 256)
	require.NoError(t, err)

	_, err = allocator.Allocate(64)
	require.NoError(t, err)
	_, err = allocator.Allocate(256)
	require.NoError(t, err)

	var stats memutils.Statistics
	allocator.AddStatistics(&stats)
	require.Equal(t, memutils.Statistics{
		BlockCount:      2,
		BlockBytes:      512,
		AllocationCount: 2,
		AllocationBytes: 320,
	}, stats)

	var detailed memutils.DetailedStatistics
	detailed.Clear()
	allocator.AddDetailedStatistics(&detailed)
	require.Equal(t, 3, detailed.UnusedRangeCount)
	require.Equal(t, 64, detailed.UnusedRangeSizeMax)
}
