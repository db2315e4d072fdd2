package descriptor_test

import (
	"encoding/json"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/require"
	"github.com/vkngwrapper/gpualloc/descriptor"
	"github.com/vkngwrapper/gpualloc/platform"
)

func TestManagerAllocators(t *testing.T) {
	rig := newSoftRig(t)
	manager, err := descriptor.NewManager(rig.ctx, testOptions)
	require.NoError(t, err)

	for id, kind := range map[descriptor.AllocatorID]platform.DescriptorHeapKind{
		descriptor.CpuCbvSrvUavAllocator: platform.DescriptorHeapCbvSrvUav,
		descriptor.GpuCbvSrvUavAllocator: platform.DescriptorHeapCbvSrvUav,
		descriptor.RtvAllocator:          platform.DescriptorHeapRtv,
		descriptor.DsvAllocator:          platform.DescriptorHeapDsv,
	} {
		allocator, err := manager.Allocator(id)
		require.NoError(t, err)
		require.Equal(t, id, allocator.ID())
		require.Equal(t, kind, allocator.Kind())
	}

	_, err = manager.Allocator(descriptor.AllocatorID(9))
	require.True(t, errors.Is(err, descriptor.ErrStaleAllocation))

	require.NoError(t, manager.Destroy())
}

func TestManagerRoutesByKind(t *testing.T) {
	rig := newSoftRig(t)
	manager, err := descriptor.NewManager(rig.ctx, testOptions)
	require.NoError(t, err)

	rtv, err := manager.RtvAllocate(2)
	require.NoError(t, err)
	require.Equal(t, descriptor.RtvAllocator, rtv.Allocator)
	dsv, err := manager.DsvAllocate(1)
	require.NoError(t, err)
	require.Equal(t, descriptor.DsvAllocator, dsv.Allocator)

	rtvHandle, err := manager.GetRtvHandle(rtv, 1)
	require.NoError(t, err)
	dsvHandle, err := manager.GetDsvHandle(dsv, 0)
	require.NoError(t, err)
	require.NotEqual(t, rtvHandle, dsvHandle)

	_, err = manager.GetRtvHandle(dsv, 0)
	require.True(t, errors.Is(err, descriptor.ErrStaleAllocation))
	require.True(t, errors.Is(manager.RtvDeallocate(dsv), descriptor.ErrStaleAllocation))

	require.NoError(t, manager.RtvDeallocate(rtv))
	require.NoError(t, manager.DsvDeallocate(dsv))
	require.Equal(t, 2, rig.endFrame(manager))

	require.NoError(t, manager.Destroy())
	require.Equal(t, 0, rig.device.LiveDescriptorHeaps())
}

func TestManagerGathersTables(t *testing.T) {
	rig := newSoftRig(t)
	manager, err := descriptor.NewManager(rig.ctx, testOptions)
	require.NoError(t, err)
	require.Nil(t, manager.GpuHeap())

	var sources []descriptor.AllocInfo
	for i := 0; i < 3; i++ {
		src, err := manager.CpuCbvSrvUavAllocate(1)
		require.NoError(t, err)
		require.NoError(t, manager.WriteDescriptor(src, 0, []byte{byte(i + 1)}))
		sources = append(sources, src)
	}

	_, err = manager.GpuCbvSrvUavAllocate(4)
	require.True(t, errors.Is(err, descriptor.ErrGpuHeapExpanded))
	table, err := manager.GpuCbvSrvUavAllocate(4)
	require.NoError(t, err)
	require.NotNil(t, manager.GpuHeap())

	require.NoError(t, manager.CopyDescriptors(table, sources))

	gpuAllocator, err := manager.Allocator(descriptor.GpuCbvSrvUavAllocator)
	require.NoError(t, err)
	for i := 0; i < 3; i++ {
		payload, err := gpuAllocator.ReadDescriptor(table, i)
		require.NoError(t, err)
		require.Equal(t, byte(i+1), payload[0])
	}

	cpuHandle, err := manager.GetCpuCbvSrvUavHandle(sources[0], 0)
	require.NoError(t, err)
	require.NotZero(t, cpuHandle.Ptr)
	gpuHandle, err := manager.GetGpuCbvSrvUavHandle(table, 2)
	require.NoError(t, err)
	require.Equal(t, manager.GpuHeap().GPUHandle(table.Start+2), gpuHandle)

	var summary map[string]any
	require.NoError(t, json.Unmarshal([]byte(manager.BuildStatsString(false)), &summary))
	require.Contains(t, summary, "GpuCbvSrvUav")

	var detailed map[string]struct {
		Gpu struct {
			Capacity int
			Live     []struct{ Start, Count int }
		}
	}
	require.NoError(t, json.Unmarshal([]byte(manager.BuildStatsString(true)), &detailed))
	require.Equal(t, 4, detailed["GpuCbvSrvUav"].Gpu.Capacity)
	require.Len(t, detailed["GpuCbvSrvUav"].Gpu.Live, 1)
	require.Equal(t, 4, detailed["GpuCbvSrvUav"].Gpu.Live[0].Count)

	for _, src := range sources {
		require.NoError(t, manager.CpuCbvSrvUavDeallocate(src))
	}
	require.NoError(t, manager.GpuCbvSrvUavDeallocate(table))
	require.Equal(t, 4, rig.endFrame(manager))

	require.NoError(t, manager.Destroy())
	require.Equal(t, 0, rig.device.LiveDescriptorHeaps())
}
