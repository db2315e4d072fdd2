package descriptor

import (
	"github.com/cockroachdb/errors"
	"github.com/launchdarkly/go-jsonstream/v3/jwriter"
	"github.com/vkngwrapper/gpualloc/memutils"
	"github.com/vkngwrapper/gpualloc/platform"
)

// Manager owns one allocator per descriptor heap kind, plus a second CBV/SRV/UAV allocator for
// shader-visible ranges
type Manager struct {
	allocators [allocatorCount]*Allocator
}

// NewManager creates the four allocators against the same render context and options
func NewManager(ctx *platform.RenderContext, options CreateOptions) (*Manager, error) {
	kinds := [allocatorCount]platform.DescriptorHeapKind{
		CpuCbvSrvUavAllocator: platform.DescriptorHeapCbvSrvUav,
		GpuCbvSrvUavAllocator: platform.DescriptorHeapCbvSrvUav,
		RtvAllocator:          platform.DescriptorHeapRtv,
		DsvAllocator:          platform.DescriptorHeapDsv,
	}

	m := &Manager{}
	for id, kind := range kinds {
		allocator, err := NewAllocator(ctx, AllocatorID(id), kind, options)
		if err != nil {
			return nil, err
		}
		m.allocators[id] = allocator
	}

	return m, nil
}

// Allocator resolves an AllocatorID to the allocator it names
func (m *Manager) Allocator(id AllocatorID) (*Allocator, error) {
	if id < 0 || int(id) >= allocatorCount {
		return nil, errors.Wrapf(ErrStaleAllocation, "allocator id %d does not name an allocator", id)
	}

	return m.allocators[id], nil
}

func (m *Manager) CpuCbvSrvUavAllocate(count int) (AllocInfo, error) {
	return m.allocators[CpuCbvSrvUavAllocator].CpuAllocate(count)
}

// GpuCbvSrvUavAllocate allocates a shader-visible range. It returns ErrGpuHeapExpanded when the
// shader-visible heap has been replaced, in which case the caller copies its tables again and retries.
func (m *Manager) GpuCbvSrvUavAllocate(count int) (AllocInfo, error) {
	return m.allocators[GpuCbvSrvUavAllocator].GpuAllocate(count)
}

func (m *Manager) RtvAllocate(count int) (AllocInfo, error) {
	return m.allocators[RtvAllocator].CpuAllocate(count)
}

func (m *Manager) DsvAllocate(count int) (AllocInfo, error) {
	return m.allocators[DsvAllocator].CpuAllocate(count)
}

func (m *Manager) CpuCbvSrvUavDeallocate(info AllocInfo) error {
	return m.allocators[CpuCbvSrvUavAllocator].CpuDeallocate(info)
}

func (m *Manager) GpuCbvSrvUavDeallocate(info AllocInfo) error {
	return m.allocators[GpuCbvSrvUavAllocator].GpuDeallocate(info)
}

func (m *Manager) RtvDeallocate(info AllocInfo) error {
	return m.allocators[RtvAllocator].CpuDeallocate(info)
}

func (m *Manager) DsvDeallocate(info AllocInfo) error {
	return m.allocators[DsvAllocator].CpuDeallocate(info)
}

func (m *Manager) GetCpuCbvSrvUavHandle(info AllocInfo, offset int) (platform.CPUDescriptorHandle, error) {
	return m.allocators[CpuCbvSrvUavAllocator].CpuHandle(info, offset)
}

func (m *Manager) GetGpuCbvSrvUavHandle(info AllocInfo, offset int) (platform.GPUDescriptorHandle, error) {
	return m.allocators[GpuCbvSrvUavAllocator].GpuHandle(info, offset)
}

func (m *Manager) GetRtvHandle(info AllocInfo, offset int) (platform.CPUDescriptorHandle, error) {
	return m.allocators[RtvAllocator].CpuHandle(info, offset)
}

func (m *Manager) GetDsvHandle(info AllocInfo, offset int) (platform.CPUDescriptorHandle, error) {
	return m.allocators[DsvAllocator].CpuHandle(info, offset)
}

// GpuHeap returns the shader-visible CBV/SRV/UAV heap, or nil before the first shader-visible allocation
func (m *Manager) GpuHeap() platform.DescriptorHeap {
	return m.allocators[GpuCbvSrvUavAllocator].GpuHeap()
}

// WriteDescriptor writes one descriptor into a range owned by any of the manager's allocators
func (m *Manager) WriteDescriptor(info AllocInfo, offset int, payload []byte) error {
	allocator, err := m.Allocator(info.Allocator)
	if err != nil {
		return err
	}

	return allocator.WriteDescriptor(info, offset, payload)
}

// CopyDescriptors copies each source range into dst back to back, in order. Sources are usually CPU
// ranges and dst a shader-visible range, which is how scattered descriptors are gathered into one
// bindable table.
func (m *Manager) CopyDescriptors(dst AllocInfo, srcs []AllocInfo) error {
	dstAllocator, err := m.Allocator(dst.Allocator)
	if err != nil {
		return err
	}

	return copyDescriptors(dstAllocator, dst, srcs, m.Allocator)
}

// DelayedDelete reclaims every range whose fence has completed across all allocators and returns the
// total number reclaimed
func (m *Manager) DelayedDelete(cpuFence, completedFence uint64) int {
	reclaimed := 0
	for _, allocator := range m.allocators {
		reclaimed += allocator.DelayedDelete(cpuFence, completedFence)
	}

	return reclaimed
}

func (m *Manager) AddStatistics(stats *memutils.Statistics) {
	for _, allocator := range m.allocators {
		allocator.AddStatistics(stats)
	}
}

// BuildStatsString returns a json document summarizing every allocator, measured in descriptor slots.
// When detailed is true, every range is listed.
func (m *Manager) BuildStatsString(detailed bool) string {
	writer := jwriter.NewWriter()
	m.PrintJson(&writer, detailed)
	return string(writer.Bytes())
}

// PrintJson writes the json document produced by BuildStatsString to an existing writer
func (m *Manager) PrintJson(writer *jwriter.Writer, detailed bool) {
	objState := writer.Object()
	defer objState.End()

	for _, allocator := range m.allocators {
		if detailed {
			allocator.PrintDetailedMap(objState.Name(allocator.ID().String()))
			continue
		}

		var stats memutils.DetailedStatistics
		stats.Clear()
		allocator.AddDetailedStatistics(&stats)

		allocatorObj := objState.Name(allocator.ID().String()).Object()
		allocatorObj.Name("Kind").String(allocator.Kind().String())
		allocatorObj.Name("PendingCount").Int(allocator.PendingCount())
		stats.PrintJson(&allocatorObj)
		allocatorObj.End()
	}
}

// Destroy destroys every allocator
func (m *Manager) Destroy() error {
	var err error
	for _, allocator := range m.allocators {
		err = errors.CombineErrors(err, allocator.Destroy())
	}

	return err
}
