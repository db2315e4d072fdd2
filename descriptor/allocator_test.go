package descriptor_test

import (
	"io"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/require"
	"github.com/vkngwrapper/gpualloc/descriptor"
	"github.com/vkngwrapper/gpualloc/memutils"
	"github.com/vkngwrapper/gpualloc/platform"
	"github.com/vkngwrapper/gpualloc/platform/soft"
	"golang.org/x/exp/slog"
)

var testOptions = descriptor.CreateOptions{
	CpuHeapSize:    8,
	GpuSectionSize: 4,
}

type softRig struct {
	device *soft.Device
	fence  *soft.Fence
	ctx    *platform.RenderContext
}

func newSoftRig(t *testing.T) softRig {
	logger := slog.New(slog.NewJSONHandler(io.Discard))
	device, err := soft.New(logger, soft.Options{})
	require.NoError(t, err)

	fence := &soft.Fence{}
	ctx, err := platform.NewRenderContext(logger, device, fence)
	require.NoError(t, err)

	return softRig{device: device, fence: fence, ctx: ctx}
}

// endFrame completes everything recorded so far and reclaims it
func (r softRig) endFrame(allocator interface {
	DelayedDelete(cpuFence, completedFence uint64) int
}) int {
	r.fence.Complete(r.ctx.Timeline.Advance())
	return allocator.DelayedDelete(r.ctx.Timeline.CurrentValue(), r.fence.CompletedValue())
}

func TestCpuAllocateAppendsHeaps(t *testing.T) {
	rig := newSoftRig(t)
	allocator, err := descriptor.NewAllocator(rig.ctx, descriptor.RtvAllocator, platform.DescriptorHeapRtv, testOptions)
	require.NoError(t, err)

	full, err := allocator.CpuAllocate(8)
	require.NoError(t, err)
	require.Equal(t, descriptor.RtvAllocator, full.Allocator)
	require.Equal(t, 0, full.Start)
	require.Equal(t, 8, full.Count)
	require.False(t, full.ShaderVisible)
	require.Equal(t, 1, allocator.CpuHeapCount())

	next, err := allocator.CpuAllocate(3)
	require.NoError(t, err)
	require.Equal(t, 8, next.Start)
	require.Equal(t, 2, allocator.CpuHeapCount())
	require.Equal(t, 2, rig.device.LiveDescriptorHeaps())

	first, err := allocator.CpuHandle(full, 7)
	require.NoError(t, err)
	second, err := allocator.CpuHandle(next, 0)
	require.NoError(t, err)
	require.NotEqual(t, first, second)

	_, err = allocator.CpuHandle(next, 3)
	require.True(t, errors.Is(err, platform.ErrDescriptorOutOfRange))

	_, err = allocator.CpuAllocate(9)
	require.True(t, errors.Is(err, memutils.OutOfSpaceError))
	_, err = allocator.CpuAllocate(0)
	require.Error(t, err)

	_, err = allocator.GpuHandle(next, 0)
	require.Error(t, err)

	require.NoError(t, allocator.CpuDeallocate(full))
	require.NoError(t, allocator.CpuDeallocate(next))
	require.NoError(t, allocator.Destroy())
	require.Equal(t, 0, rig.device.LiveDescriptorHeaps())
}

func TestCpuDeallocateIsDeferred(t *testing.T) {
	rig := newSoftRig(t)
	allocator, err := descriptor.NewAllocator(rig.ctx, descriptor.CpuCbvSrvUavAllocator, platform.DescriptorHeapCbvSrvUav, testOptions)
	require.NoError(t, err)

	freed, err := allocator.CpuAllocate(4)
	require.NoError(t, err)
	require.Equal(t, 0, freed.Start)
	require.NoError(t, allocator.CpuDeallocate(freed))
	require.Equal(t, 1, allocator.PendingCount())

	require.Equal(t, 0, allocator.DelayedDelete(rig.ctx.Timeline.CurrentValue(), rig.fence.CompletedValue()))

	other, err := allocator.CpuAllocate(4)
	require.NoError(t, err)
	require.Equal(t, 4, other.Start)

	require.Equal(t, 1, rig.endFrame(allocator))
	require.Equal(t, 0, allocator.PendingCount())

	reused, err := allocator.CpuAllocate(4)
	require.NoError(t, err)
	require.Equal(t, 0, reused.Start)
	require.Equal(t, 1, allocator.CpuHeapCount())

	require.NoError(t, allocator.CpuDeallocate(reused))
	require.True(t, errors.Is(allocator.CpuDeallocate(reused), descriptor.ErrStaleAllocation))

	foreign := other
	foreign.Allocator = descriptor.DsvAllocator
	require.True(t, errors.Is(allocator.CpuDeallocate(foreign), descriptor.ErrStaleAllocation))

	resized := other
	resized.Count = 2
	require.True(t, errors.Is(allocator.CpuDeallocate(resized), descriptor.ErrStaleAllocation))

	shaderVisible := other
	shaderVisible.ShaderVisible = true
	require.True(t, errors.Is(allocator.CpuDeallocate(shaderVisible), descriptor.ErrStaleAllocation))

	require.Equal(t, 1, allocator.AllocationCount())
	require.NoError(t, allocator.Destroy())
}

func TestStaleRangeCannotFreeReusedSlots(t *testing.T) {
	rig := newSoftRig(t)
	allocator, err := descriptor.NewAllocator(rig.ctx, descriptor.RtvAllocator, platform.DescriptorHeapRtv, testOptions)
	require.NoError(t, err)

	old, err := allocator.CpuAllocate(4)
	require.NoError(t, err)
	require.NoError(t, allocator.CpuDeallocate(old))
	require.Equal(t, 1, rig.endFrame(allocator))

	fresh, err := allocator.CpuAllocate(4)
	require.NoError(t, err)
	require.Equal(t, old.Start, fresh.Start)
	require.Equal(t, old.Count, fresh.Count)
	require.NotEqual(t, old.Generation, fresh.Generation)

	require.True(t, errors.Is(allocator.CpuDeallocate(old), descriptor.ErrStaleAllocation))
	require.Equal(t, 1, allocator.AllocationCount())
	require.Equal(t, 0, allocator.PendingCount())

	require.NoError(t, allocator.CpuDeallocate(fresh))
	require.Equal(t, 1, rig.endFrame(allocator))
	require.NoError(t, allocator.Destroy())
}

func TestStaleShaderVisibleRangeCannotFreeReusedSlots(t *testing.T) {
	rig := newSoftRig(t)
	allocator, err := descriptor.NewAllocator(rig.ctx, descriptor.GpuCbvSrvUavAllocator, platform.DescriptorHeapCbvSrvUav, testOptions)
	require.NoError(t, err)

	_, err = allocator.GpuAllocate(2)
	require.True(t, errors.Is(err, descriptor.ErrGpuHeapExpanded))

	old, err := allocator.GpuAllocate(2)
	require.NoError(t, err)
	require.NoError(t, allocator.GpuDeallocate(old))
	require.Equal(t, 1, rig.endFrame(allocator))

	fresh, err := allocator.GpuAllocate(2)
	require.NoError(t, err)
	require.Equal(t, old.Start, fresh.Start)

	require.True(t, errors.Is(allocator.GpuDeallocate(old), descriptor.ErrStaleAllocation))
	require.Equal(t, 1, allocator.AllocationCount())
	require.Equal(t, 0, allocator.PendingCount())

	require.NoError(t, allocator.GpuDeallocate(fresh))
	require.Equal(t, 1, rig.endFrame(allocator))
	require.NoError(t, allocator.Destroy())
}

func TestGpuHeapExpansionPreservesIndices(t *testing.T) {
	rig := newSoftRig(t)
	allocator, err := descriptor.NewAllocator(rig.ctx, descriptor.GpuCbvSrvUavAllocator, platform.DescriptorHeapCbvSrvUav, testOptions)
	require.NoError(t, err)
	require.Nil(t, allocator.GpuHeap())

	_, err = allocator.GpuAllocate(1)
	require.True(t, errors.Is(err, descriptor.ErrGpuHeapExpanded))
	require.Equal(t, 4, allocator.GpuCapacity())
	firstHeap := allocator.GpuHeap()
	require.NotNil(t, firstHeap)

	var issued []descriptor.AllocInfo
	for i := 0; i < 4; i++ {
		info, err := allocator.GpuAllocate(1)
		require.NoError(t, err)
		require.True(t, info.ShaderVisible)
		require.Equal(t, i, info.Start)
		issued = append(issued, info)
	}

	_, err = allocator.GpuAllocate(1)
	require.True(t, errors.Is(err, descriptor.ErrGpuHeapExpanded))
	require.Equal(t, 8, allocator.GpuCapacity())
	secondHeap := allocator.GpuHeap()
	require.NotSame(t, firstHeap, secondHeap)
	require.Equal(t, 2, rig.device.LiveDescriptorHeaps())

	for i, info := range issued {
		require.Equal(t, i, info.Start)
		handle, err := allocator.GpuHandle(info, 0)
		require.NoError(t, err)
		require.Equal(t, secondHeap.GPUHandle(i), handle)
	}

	retried, err := allocator.GpuAllocate(1)
	require.NoError(t, err)
	require.Equal(t, 4, retried.Start)

	// The replaced heap stays alive until the frame that last referenced it completes
	require.Equal(t, 0, rig.endFrame(allocator))
	require.Equal(t, 1, rig.device.LiveDescriptorHeaps())

	_, err = allocator.GpuAllocate(5)
	require.True(t, errors.Is(err, memutils.OutOfSpaceError))

	var stats memutils.Statistics
	allocator.AddStatistics(&stats)
	require.Equal(t, 2, stats.BlockCount)
	require.Equal(t, 5, stats.AllocationCount)
	require.Equal(t, 8, stats.BlockBytes)

	for _, info := range append(issued, retried) {
		require.NoError(t, allocator.GpuDeallocate(info))
	}
	require.True(t, errors.Is(allocator.GpuDeallocate(retried), descriptor.ErrStaleAllocation))
	require.Equal(t, 5, rig.endFrame(allocator))

	require.NoError(t, allocator.Destroy())
	require.Equal(t, 0, rig.device.LiveDescriptorHeaps())
}

func TestGpuAllocateRequiresShaderVisibleKind(t *testing.T) {
	rig := newSoftRig(t)
	allocator, err := descriptor.NewAllocator(rig.ctx, descriptor.DsvAllocator, platform.DescriptorHeapDsv, testOptions)
	require.NoError(t, err)

	_, err = allocator.GpuAllocate(1)
	require.Error(t, err)
	require.False(t, errors.Is(err, descriptor.ErrGpuHeapExpanded))
	require.Equal(t, 0, rig.device.LiveDescriptorHeaps())
}

func TestAllocatorCopyDescriptors(t *testing.T) {
	rig := newSoftRig(t)
	allocator, err := descriptor.NewAllocator(rig.ctx, descriptor.GpuCbvSrvUavAllocator, platform.DescriptorHeapCbvSrvUav, testOptions)
	require.NoError(t, err)

	first, err := allocator.CpuAllocate(2)
	require.NoError(t, err)
	second, err := allocator.CpuAllocate(1)
	require.NoError(t, err)

	require.NoError(t, allocator.WriteDescriptor(first, 0, []byte("first-0")))
	require.NoError(t, allocator.WriteDescriptor(first, 1, []byte("first-1")))
	require.NoError(t, allocator.WriteDescriptor(second, 0, []byte("second-0")))

	_, err = allocator.GpuAllocate(3)
	require.True(t, errors.Is(err, descriptor.ErrGpuHeapExpanded))
	table, err := allocator.GpuAllocate(3)
	require.NoError(t, err)

	require.NoError(t, allocator.CopyDescriptors(table, []descriptor.AllocInfo{first, second}))

	for offset, expected := range []string{"first-0", "first-1", "second-0"} {
		payload, err := allocator.ReadDescriptor(table, offset)
		require.NoError(t, err)
		require.Equal(t, expected, string(payload[:len(expected)]))
	}

	require.Error(t, allocator.CopyDescriptors(second, []descriptor.AllocInfo{first}))

	require.NoError(t, allocator.Destroy())
}
