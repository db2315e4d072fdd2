package heap

import (
	"github.com/cockroachdb/errors"
	"github.com/launchdarkly/go-jsonstream/v3/jwriter"
	"github.com/vkngwrapper/gpualloc/memutils"
	"github.com/vkngwrapper/gpualloc/platform"
)

// Manager owns the four heaps a renderer places resources in: device-local buffers, upload buffers,
// readback buffers and textures. Allocations name their heap by HeapID, which the Manager resolves.
type Manager struct {
	ctx   *platform.RenderContext
	heaps [heapCount]Heap
}

// NewManager creates the four heaps against the same render context and options
func NewManager(ctx *platform.RenderContext, options CreateOptions) (*Manager, error) {
	if ctx == nil {
		return nil, errors.New("attempted to create a heap manager with a nil render context")
	}

	m := &Manager{ctx: ctx}

	var err error
	m.heaps[DefaultBuffersHeap], err = NewBuddyHeap(ctx, DefaultBuffersHeap, platform.HeapTypeDefault, options)
	if err != nil {
		return nil, err
	}
	m.heaps[UploadBuffersHeap], err = NewBuddyHeap(ctx, UploadBuffersHeap, platform.HeapTypeUpload, options)
	if err != nil {
		return nil, err
	}
	m.heaps[ReadbackBuffersHeap], err = NewBuddyHeap(ctx, ReadbackBuffersHeap, platform.HeapTypeReadback, options)
	if err != nil {
		return nil, err
	}
	m.heaps[TexturesHeap], err = NewSegListHeap(ctx, TexturesHeap, platform.HeapTypeDefault, options)
	if err != nil {
		return nil, err
	}

	return m, nil
}

func (m *Manager) GetDefaultBuffersHeap() Heap  { return m.heaps[DefaultBuffersHeap] }
func (m *Manager) GetUploadBuffersHeap() Heap   { return m.heaps[UploadBuffersHeap] }
func (m *Manager) GetReadbackBuffersHeap() Heap { return m.heaps[ReadbackBuffersHeap] }
func (m *Manager) GetTexturesHeap() Heap        { return m.heaps[TexturesHeap] }

// Heap resolves a HeapID to the heap it names
func (m *Manager) Heap(id HeapID) (Heap, error) {
	if id < 0 || int(id) >= heapCount {
		return nil, errors.Wrapf(ErrStaleHandle, "heap id %d does not name a heap", id)
	}

	return m.heaps[id], nil
}

// Deallocate logically frees an allocation in whichever heap it was placed in
func (m *Manager) Deallocate(info *AllocInfo) error {
	if info == nil {
		return errors.Wrap(ErrStaleHandle, "attempted to deallocate a nil allocation")
	}

	heap, err := m.Heap(info.Heap)
	if err != nil {
		return err
	}

	return heap.Deallocate(info)
}

// DelayedDelete reclaims every allocation whose fence has completed across all heaps and returns the
// total number reclaimed
func (m *Manager) DelayedDelete(cpuFence, completedFence uint64) int {
	reclaimed := 0
	for _, heap := range m.heaps {
		reclaimed += heap.DelayedDelete(cpuFence, completedFence)
	}

	return reclaimed
}

func (m *Manager) AddStatistics(stats *memutils.Statistics) {
	for _, heap := range m.heaps {
		heap.AddStatistics(stats)
	}
}

// BuildStatsString returns a json document summarizing every heap. When detailed is true, every
// allocation of every arena is listed.
func (m *Manager) BuildStatsString(detailed bool) string {
	writer := jwriter.NewWriter()
	m.PrintJson(&writer, detailed)
	return string(writer.Bytes())
}

// PrintJson writes the json document produced by BuildStatsString to an existing writer
func (m *Manager) PrintJson(writer *jwriter.Writer, detailed bool) {
	objState := writer.Object()
	defer objState.End()

	var total memutils.DetailedStatistics
	total.Clear()
	for _, heap := range m.heaps {
		heap.AddDetailedStatistics(&total)
	}

	totalObj := objState.Name("Total").Object()
	total.PrintJson(&totalObj)
	totalObj.End()

	heapsObj := objState.Name("Heaps").Object()
	for _, heap := range m.heaps {
		if detailed {
			heap.PrintDetailedMap(heapsObj.Name(heap.ID().String()))
			continue
		}

		var stats memutils.DetailedStatistics
		stats.Clear()
		heap.AddDetailedStatistics(&stats)

		heapObj := heapsObj.Name(heap.ID().String()).Object()
		heapObj.Name("HeapType").String(heap.HeapType().String())
		heapObj.Name("PendingCount").Int(heap.PendingCount())
		stats.PrintJson(&heapObj)
		heapObj.End()
	}
	heapsObj.End()
}

// Destroy destroys every heap. Live allocations are reported as leaks and destroyed.
func (m *Manager) Destroy() error {
	var err error
	for _, heap := range m.heaps {
		err = errors.CombineErrors(err, heap.Destroy())
	}

	return err
}
