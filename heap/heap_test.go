package heap_test

import (
	"io"
	"testing"
	"unsafe"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/require"
	"github.com/vkngwrapper/gpualloc/heap"
	"github.com/vkngwrapper/gpualloc/memutils"
	"github.com/vkngwrapper/gpualloc/platform"
	mock_platform "github.com/vkngwrapper/gpualloc/platform/mocks"
	"github.com/vkngwrapper/gpualloc/platform/soft"
	"go.uber.org/mock/gomock"
	"golang.org/x/exp/slog"
)

const pageSize = 64 * 1024

var testOptions = heap.CreateOptions{
	PageSize:           pageSize,
	BuddyArenaPages:    4,
	MaxTexturePageSize: 4 * pageSize,
	TextureArenaSize:   8 * pageSize,
}

type softRig struct {
	device *soft.Device
	fence  *soft.Fence
	ctx    *platform.RenderContext
}

func newSoftRig(t *testing.T, options soft.Options) softRig {
	logger := slog.New(slog.NewJSONHandler(io.Discard))
	device, err := soft.New(logger, options)
	require.NoError(t, err)

	fence := &soft.Fence{}
	ctx, err := platform.NewRenderContext(logger, device, fence)
	require.NoError(t, err)

	return softRig{device: device, fence: fence, ctx: ctx}
}

func smallBuffer() platform.ResourceDesc {
	return platform.BufferDesc(1000, platform.ResourceUsageConstantBuffer)
}

func TestBuddyHeapDeferredReclamation(t *testing.T) {
	rig := newSoftRig(t, soft.Options{})
	h, err := heap.NewBuddyHeap(rig.ctx, heap.DefaultBuffersHeap, platform.HeapTypeDefault, testOptions)
	require.NoError(t, err)

	first, err := h.Allocate(smallBuffer())
	require.NoError(t, err)
	require.Equal(t, heap.DefaultBuffersHeap, first.Heap)
	require.Equal(t, 0, first.Offset)
	require.Equal(t, 0, first.Arena)
	require.Equal(t, 1024, first.Size)
	require.Nil(t, first.MappedData)

	require.NoError(t, h.Deallocate(first))
	require.Equal(t, 0, h.AllocationCount())
	require.Equal(t, 1, h.PendingCount())

	// The fence has not reached the value the free was tagged with
	require.Equal(t, 0, h.DelayedDelete(rig.ctx.Timeline.CurrentValue(), rig.fence.CompletedValue()))
	require.Equal(t, 1, rig.device.LiveResources())

	second, err := h.Allocate(smallBuffer())
	require.NoError(t, err)
	require.NotEqual(t, first.Offset, second.Offset)

	rig.fence.Complete(rig.ctx.Timeline.Advance())
	require.Equal(t, 1, h.DelayedDelete(rig.ctx.Timeline.CurrentValue(), rig.fence.CompletedValue()))
	require.Equal(t, 0, h.PendingCount())
	require.Equal(t, 1, rig.device.LiveResources())

	third, err := h.Allocate(smallBuffer())
	require.NoError(t, err)
	require.Equal(t, 0, third.Offset)
	require.Equal(t, 1, h.ArenaCount())

	require.NoError(t, h.Deallocate(second))
	require.NoError(t, h.Deallocate(third))
	require.NoError(t, h.Destroy())
	require.Equal(t, 0, rig.device.LiveResources())
	require.Equal(t, 0, rig.device.LiveArenas())
}

func TestBuddyHeapGrowsWithoutMovingAllocations(t *testing.T) {
	rig := newSoftRig(t, soft.Options{})
	h, err := heap.NewBuddyHeap(rig.ctx, heap.DefaultBuffersHeap, platform.HeapTypeDefault, testOptions)
	require.NoError(t, err)

	var allocs []*heap.AllocInfo
	var addresses []uint64
	for i := 0; i < 4; i++ {
		alloc, err := h.Allocate(smallBuffer())
		require.NoError(t, err)
		allocs = append(allocs, alloc)
		addresses = append(addresses, alloc.Resource.GPUAddress())
	}
	require.Equal(t, 1, h.ArenaCount())

	grown, err := h.Allocate(smallBuffer())
	require.NoError(t, err)
	require.Equal(t, 2, h.ArenaCount())
	require.Equal(t, 1, grown.Arena)
	require.Equal(t, 0, grown.Offset)

	offsets := map[int]bool{}
	for i, alloc := range allocs {
		require.Equal(t, 0, alloc.Arena)
		require.Equal(t, addresses[i], alloc.Resource.GPUAddress())
		require.False(t, offsets[alloc.Offset])
		offsets[alloc.Offset] = true
	}

	var stats memutils.Statistics
	h.AddStatistics(&stats)
	require.Equal(t, 2, stats.BlockCount)
	require.Equal(t, 5, stats.AllocationCount)
	require.Equal(t, 8*pageSize, stats.BlockBytes)
	require.Equal(t, 5*pageSize, stats.AllocationBytes)

	require.NoError(t, h.Destroy())
	require.Equal(t, 0, rig.device.LiveArenas())
}

func TestHeapRejectsStaleHandles(t *testing.T) {
	rig := newSoftRig(t, soft.Options{})
	h, err := heap.NewBuddyHeap(rig.ctx, heap.DefaultBuffersHeap, platform.HeapTypeDefault, testOptions)
	require.NoError(t, err)

	alloc, err := h.Allocate(smallBuffer())
	require.NoError(t, err)

	foreign := *alloc
	foreign.Heap = heap.UploadBuffersHeap
	require.True(t, errors.Is(h.Deallocate(&foreign), heap.ErrStaleHandle))
	require.Equal(t, 1, h.AllocationCount())

	require.True(t, errors.Is(h.Deallocate(nil), heap.ErrStaleHandle))

	require.NoError(t, h.Deallocate(alloc))
	require.True(t, errors.Is(h.Deallocate(alloc), heap.ErrStaleHandle))
	require.Equal(t, 1, h.PendingCount())

	require.NoError(t, h.Destroy())
}

func TestHeapOversizedRequest(t *testing.T) {
	rig := newSoftRig(t, soft.Options{})
	buffers, err := heap.NewBuddyHeap(rig.ctx, heap.DefaultBuffersHeap, platform.HeapTypeDefault, testOptions)
	require.NoError(t, err)

	_, err = buffers.Allocate(platform.BufferDesc(5*pageSize, 0))
	require.True(t, errors.Is(err, heap.ErrHeapExhausted))
	require.Equal(t, 0, buffers.ArenaCount())

	textures, err := heap.NewSegListHeap(rig.ctx, heap.TexturesHeap, platform.HeapTypeDefault, testOptions)
	require.NoError(t, err)

	_, err = textures.Allocate(platform.TextureDesc(1024, 1024, platform.FormatR8G8B8A8Unorm, 0))
	require.True(t, errors.Is(err, heap.ErrHeapExhausted))
	require.Equal(t, 0, textures.ArenaCount())
}

func TestUploadHeapMapsResources(t *testing.T) {
	rig := newSoftRig(t, soft.Options{})
	h, err := heap.NewBuddyHeap(rig.ctx, heap.UploadBuffersHeap, platform.HeapTypeUpload, testOptions)
	require.NoError(t, err)

	alloc, err := h.Allocate(platform.BufferDesc(16, platform.ResourceUsageCopySource))
	require.NoError(t, err)
	require.NotNil(t, alloc.MappedData)

	data := unsafe.Slice((*byte)(alloc.MappedData), 16)
	for i := range data {
		data[i] = byte(i)
	}

	arena := alloc.Resource.(*soft.Resource).Arena()
	require.Equal(t, byte(15), arena.Bytes()[alloc.Offset+15])

	require.NoError(t, h.Deallocate(alloc))
	rig.fence.Complete(rig.ctx.Timeline.Advance())
	require.Equal(t, 1, h.DelayedDelete(rig.ctx.Timeline.CurrentValue(), rig.fence.CompletedValue()))
	require.NoError(t, h.Destroy())
}

func TestSegListHeapSizeClasses(t *testing.T) {
	rig := newSoftRig(t, soft.Options{})
	h, err := heap.NewSegListHeap(rig.ctx, heap.TexturesHeap, platform.HeapTypeDefault, testOptions)
	require.NoError(t, err)

	large := platform.TextureDesc(256, 256, platform.FormatR8G8B8A8Unorm, platform.ResourceUsageShaderResource)
	small := platform.TextureDesc(4, 4, platform.FormatR8G8B8A8Unorm, platform.ResourceUsageShaderResource)

	firstLarge, err := h.Allocate(large)
	require.NoError(t, err)
	require.Equal(t, 4*pageSize, firstLarge.Size)
	require.Equal(t, 1, h.ArenaCount())

	firstSmall, err := h.Allocate(small)
	require.NoError(t, err)
	require.Equal(t, 2, h.ArenaCount())
	require.Equal(t, 1, firstSmall.Arena)
	require.Equal(t, 0, firstSmall.Offset)

	secondLarge, err := h.Allocate(large)
	require.NoError(t, err)
	require.Equal(t, 2, h.ArenaCount())
	require.Equal(t, firstLarge.Arena, secondLarge.Arena)
	require.Equal(t, 4*pageSize, secondLarge.Offset)

	thirdLarge, err := h.Allocate(large)
	require.NoError(t, err)
	require.Equal(t, 3, h.ArenaCount())
	require.Equal(t, 2, thirdLarge.Arena)

	require.NoError(t, h.Deallocate(secondLarge))
	rig.fence.Complete(rig.ctx.Timeline.Advance())
	require.Equal(t, 1, h.DelayedDelete(rig.ctx.Timeline.CurrentValue(), rig.fence.CompletedValue()))

	reused, err := h.Allocate(large)
	require.NoError(t, err)
	require.Equal(t, firstLarge.Arena, reused.Arena)
	require.Equal(t, 4*pageSize, reused.Offset)

	require.NoError(t, h.Destroy())
	require.Equal(t, 0, rig.device.LiveResources())
	require.Equal(t, 0, rig.device.LiveArenas())
}

func TestHeapSurfacesDeviceBudgetFailure(t *testing.T) {
	rig := newSoftRig(t, soft.Options{MemoryBudget: 4 * pageSize})
	h, err := heap.NewBuddyHeap(rig.ctx, heap.DefaultBuffersHeap, platform.HeapTypeDefault, testOptions)
	require.NoError(t, err)

	for i := 0; i < 4; i++ {
		_, err := h.Allocate(smallBuffer())
		require.NoError(t, err)
	}

	_, err = h.Allocate(smallBuffer())
	require.True(t, errors.Is(err, platform.ErrOutOfDeviceMemory))
	require.Equal(t, 1, h.ArenaCount())
	require.Equal(t, 4, h.AllocationCount())

	require.NoError(t, h.Destroy())
	require.Equal(t, 0, rig.device.LiveArenas())
}

func TestHeapReleasesRegionWhenPlacementFails(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	device := mock_platform.NewMockDevice(ctrl)
	fence := mock_platform.NewMockFence(ctrl)
	fence.EXPECT().CompletedValue().Return(uint64(0)).AnyTimes()

	ctx, err := platform.NewRenderContext(slog.New(slog.NewJSONHandler(io.Discard)), device, fence)
	require.NoError(t, err)

	h, err := heap.NewBuddyHeap(ctx, heap.DefaultBuffersHeap, platform.HeapTypeDefault, testOptions)
	require.NoError(t, err)

	device.EXPECT().ResourceAllocationInfo(gomock.Any()).Return(platform.AllocationInfo{Size: 1024, Alignment: pageSize}, nil).AnyTimes()

	placementFailure := errors.New("placement failed")
	arena := mock_platform.NewMockArena(ctrl)
	device.EXPECT().CreateArena(platform.HeapTypeDefault, 4*pageSize).Return(arena, nil)
	device.EXPECT().CreatePlacedResource(arena, 0, gomock.Any()).Return(nil, placementFailure)

	_, err = h.Allocate(smallBuffer())
	require.True(t, errors.Is(err, placementFailure))
	require.Equal(t, 0, h.AllocationCount())

	resource := mock_platform.NewMockResource(ctrl)
	device.EXPECT().CreatePlacedResource(arena, 0, gomock.Any()).Return(resource, nil)

	alloc, err := h.Allocate(smallBuffer())
	require.NoError(t, err)
	require.Equal(t, 0, alloc.Offset)

	resource.EXPECT().Destroy().Return(nil)
	arena.EXPECT().Destroy().Return(nil)
	require.NoError(t, h.Destroy())
}

func TestHeapSurfacesArenaCreationFailure(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	device := mock_platform.NewMockDevice(ctrl)
	fence := mock_platform.NewMockFence(ctrl)
	fence.EXPECT().CompletedValue().Return(uint64(0)).AnyTimes()

	ctx, err := platform.NewRenderContext(slog.New(slog.NewJSONHandler(io.Discard)), device, fence)
	require.NoError(t, err)

	h, err := heap.NewSegListHeap(ctx, heap.TexturesHeap, platform.HeapTypeDefault, testOptions)
	require.NoError(t, err)

	device.EXPECT().ResourceAllocationInfo(gomock.Any()).Return(platform.AllocationInfo{Size: 2 * pageSize, Alignment: pageSize}, nil)
	device.EXPECT().CreateArena(platform.HeapTypeDefault, 8*pageSize).Return(nil, platform.ErrOutOfDeviceMemory)

	_, err = h.Allocate(platform.TextureDesc(128, 128, platform.FormatR16G16B16A16Float, 0))
	require.True(t, errors.Is(err, platform.ErrOutOfDeviceMemory))
	require.Equal(t, 0, h.ArenaCount())

	require.NoError(t, h.Destroy())
}

func TestHeapDestroyReleasesLeakedAllocations(t *testing.T) {
	rig := newSoftRig(t, soft.Options{})
	h, err := heap.NewBuddyHeap(rig.ctx, heap.ReadbackBuffersHeap, platform.HeapTypeReadback, testOptions)
	require.NoError(t, err)

	_, err = h.Allocate(smallBuffer())
	require.NoError(t, err)
	pending, err := h.Allocate(smallBuffer())
	require.NoError(t, err)
	require.NoError(t, h.Deallocate(pending))

	require.NoError(t, h.Destroy())
	require.Equal(t, 0, rig.device.LiveResources())
	require.Equal(t, 0, rig.device.LiveArenas())
}
