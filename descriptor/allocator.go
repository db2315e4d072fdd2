package descriptor

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/cockroachdb/errors"
	"github.com/dolthub/swiss"
	"github.com/launchdarkly/go-jsonstream/v3/jwriter"
	"github.com/vkngwrapper/gpualloc/internal/utils"
	"github.com/vkngwrapper/gpualloc/memutils"
	"github.com/vkngwrapper/gpualloc/memutils/buddy"
	"github.com/vkngwrapper/gpualloc/platform"
	"golang.org/x/exp/slices"
	"golang.org/x/exp/slog"
)

type cpuHeap struct {
	heap      platform.DescriptorHeap
	allocator *buddy.Allocator
}

var nextGeneration atomic.Uint64

type liveRange struct {
	count      int
	generation uint64
}

type pendingRange struct {
	info    AllocInfo
	freedAt uint64
}

type retiredHeap struct {
	heap    platform.DescriptorHeap
	freedAt uint64
}

// Allocator hands out descriptor ranges of a single descriptor kind. The CPU side and the
// shader-visible side are guarded by separate locks and never share slots.
type Allocator struct {
	ctx    *platform.RenderContext
	logger *slog.Logger
	id     AllocatorID
	kind   platform.DescriptorHeapKind

	cpuHeapSize    int
	gpuSectionSize int

	cpuMutex   utils.OptionalMutex
	cpuHeaps   []cpuHeap
	cpuLive    *swiss.Map[int, liveRange]
	cpuPending []pendingRange

	gpuMutex    utils.OptionalMutex
	gpuHeap     platform.DescriptorHeap
	gpuSections []*buddy.Allocator
	gpuLive     *swiss.Map[int, liveRange]
	gpuPending  []pendingRange
	retired     []retiredHeap
}

// NewAllocator creates an allocator with no descriptor heaps. CPU heaps are created on demand and the
// shader-visible heap is created by the first GpuAllocate.
func NewAllocator(ctx *platform.RenderContext, id AllocatorID, kind platform.DescriptorHeapKind, options CreateOptions) (*Allocator, error) {
	if ctx == nil {
		return nil, errors.New("attempted to create a descriptor allocator with a nil render context")
	}

	options, err := options.withDefaults()
	if err != nil {
		return nil, err
	}

	useMutex := options.Flags&CreateExternallySynchronized == 0
	return &Allocator{
		ctx:    ctx,
		logger: ctx.Logger,
		id:     id,
		kind:   kind,

		cpuHeapSize:    options.CpuHeapSize,
		gpuSectionSize: options.GpuSectionSize,

		cpuMutex: utils.NewOptionalMutex(useMutex),
		cpuLive:  swiss.NewMap[int, liveRange](64),

		gpuMutex: utils.NewOptionalMutex(useMutex),
		gpuLive:  swiss.NewMap[int, liveRange](64),
	}, nil
}

func (a *Allocator) ID() AllocatorID                   { return a.id }
func (a *Allocator) Kind() platform.DescriptorHeapKind { return a.kind }

// CpuAllocate reserves count contiguous slots in a CPU heap. When every CPU heap is full, a new heap
// is appended and the request is retried once.
func (a *Allocator) CpuAllocate(count int) (AllocInfo, error) {
	if count <= 0 {
		return AllocInfo{}, errors.Newf("attempted to allocate %d descriptors", count)
	}
	maxCount := 1 << memutils.Log2Floor(a.cpuHeapSize)
	if count > maxCount {
		return AllocInfo{}, errors.Wrapf(memutils.OutOfSpaceError, "%d %s descriptors cannot fit in a cpu heap, which can hold at most %d contiguous descriptors", count, a.kind, maxCount)
	}

	a.cpuMutex.Lock()
	defer a.cpuMutex.Unlock()

	info, err := a.tryCpuAllocate(count)
	if !errors.Is(err, memutils.OutOfSpaceError) {
		return info, err
	}

	heap, err := a.ctx.Device.CreateDescriptorHeap(a.kind, a.cpuHeapSize, false)
	if err != nil {
		return AllocInfo{}, errors.Wrapf(err, "failed to create a cpu %s descriptor heap", a.kind)
	}
	allocator, err := buddy.New(a.cpuHeapSize, 1)
	if err != nil {
		return AllocInfo{}, errors.CombineErrors(err, heap.Destroy())
	}
	a.cpuHeaps = append(a.cpuHeaps, cpuHeap{heap: heap, allocator: allocator})

	a.logger.LogAttrs(context.Background(), slog.LevelDebug, "descriptor allocator added a cpu heap",
		slog.String("allocator", a.id.String()),
		slog.String("kind", a.kind.String()),
		slog.Int("heaps", len(a.cpuHeaps)),
	)

	return a.tryCpuAllocate(count)
}

func (a *Allocator) tryCpuAllocate(count int) (AllocInfo, error) {
	for heapIndex, heap := range a.cpuHeaps {
		region, err := heap.allocator.Allocate(count)
		if errors.Is(err, memutils.OutOfSpaceError) {
			continue
		} else if err != nil {
			return AllocInfo{}, err
		}

		info := AllocInfo{
			Allocator:  a.id,
			Start:      heapIndex*a.cpuHeapSize + region.PageID,
			Count:      count,
			Generation: nextGeneration.Add(1),
		}
		a.cpuLive.Put(info.Start, liveRange{count: count, generation: info.Generation})
		return info, nil
	}

	return AllocInfo{}, errors.Wrapf(memutils.OutOfSpaceError, "none of %d cpu heaps can hold %d descriptors", len(a.cpuHeaps), count)
}

// CpuDeallocate logically frees a CPU range. The slots are not reused until DelayedDelete observes
// the fence value current at the time of this call.
func (a *Allocator) CpuDeallocate(info AllocInfo) error {
	if info.ShaderVisible {
		return errors.Wrap(ErrStaleAllocation, "attempted to free a shader-visible range as a cpu range")
	}

	a.cpuMutex.Lock()
	defer a.cpuMutex.Unlock()

	return a.retire(info, a.cpuLive, &a.cpuPending)
}

// GpuAllocate reserves count contiguous slots in the shader-visible heap. When every section is full,
// the heap is doubled and ErrGpuHeapExpanded is returned: the caller must copy its descriptors into the
// new heap again and retry. Requests larger than one section fail with memutils.OutOfSpaceError.
func (a *Allocator) GpuAllocate(count int) (AllocInfo, error) {
	if !a.kind.CanBeShaderVisible() {
		return AllocInfo{}, errors.Newf("%s descriptors cannot be shader visible", a.kind)
	}
	if count <= 0 {
		return AllocInfo{}, errors.Newf("attempted to allocate %d descriptors", count)
	}
	if count > a.gpuSectionSize {
		return AllocInfo{}, errors.Wrapf(memutils.OutOfSpaceError, "%d descriptors cannot fit in a shader-visible heap section of %d descriptors", count, a.gpuSectionSize)
	}

	a.gpuMutex.Lock()
	defer a.gpuMutex.Unlock()

	for sectionIndex, section := range a.gpuSections {
		region, err := section.Allocate(count)
		if errors.Is(err, memutils.OutOfSpaceError) {
			continue
		} else if err != nil {
			return AllocInfo{}, err
		}

		info := AllocInfo{
			Allocator:     a.id,
			Start:         sectionIndex*a.gpuSectionSize + region.PageID,
			Count:         count,
			ShaderVisible: true,
			Generation:    nextGeneration.Add(1),
		}
		a.gpuLive.Put(info.Start, liveRange{count: count, generation: info.Generation})
		return info, nil
	}

	capacity, err := a.expandGpuHeap()
	if err != nil {
		return AllocInfo{}, err
	}

	return AllocInfo{}, errors.Wrapf(ErrGpuHeapExpanded, "shader-visible %s heap now holds %d descriptors", a.kind, capacity)
}

func (a *Allocator) expandGpuHeap() (int, error) {
	oldCapacity := len(a.gpuSections) * a.gpuSectionSize
	newCapacity := a.gpuSectionSize
	if oldCapacity > 0 {
		newCapacity = oldCapacity * 2
	}

	heap, err := a.ctx.Device.CreateDescriptorHeap(a.kind, newCapacity, true)
	if err != nil {
		return 0, errors.Wrapf(err, "failed to expand the shader-visible %s heap to %d descriptors", a.kind, newCapacity)
	}

	for len(a.gpuSections)*a.gpuSectionSize < newCapacity {
		section, err := buddy.New(a.gpuSectionSize, 1)
		if err != nil {
			return 0, errors.CombineErrors(err, heap.Destroy())
		}
		a.gpuSections = append(a.gpuSections, section)
	}

	if a.gpuHeap != nil {
		a.retired = append(a.retired, retiredHeap{heap: a.gpuHeap, freedAt: a.ctx.Timeline.CurrentValue()})
	}
	a.gpuHeap = heap

	a.logger.LogAttrs(context.Background(), slog.LevelDebug, "shader-visible descriptor heap expanded",
		slog.String("allocator", a.id.String()),
		slog.String("kind", a.kind.String()),
		slog.Int("oldCapacity", oldCapacity),
		slog.Int("newCapacity", newCapacity),
	)

	return newCapacity, nil
}

// GpuDeallocate logically frees a shader-visible range
func (a *Allocator) GpuDeallocate(info AllocInfo) error {
	if !info.ShaderVisible {
		return errors.Wrap(ErrStaleAllocation, "attempted to free a cpu range as a shader-visible range")
	}

	a.gpuMutex.Lock()
	defer a.gpuMutex.Unlock()

	return a.retire(info, a.gpuLive, &a.gpuPending)
}

func (a *Allocator) retire(info AllocInfo, live *swiss.Map[int, liveRange], pending *[]pendingRange) error {
	if info.Allocator != a.id {
		return errors.Wrapf(ErrStaleAllocation, "range belongs to allocator %s but was freed to allocator %s", info.Allocator, a.id)
	}

	entry, ok := live.Get(info.Start)
	if !ok || entry.count != info.Count {
		return errors.Wrapf(ErrStaleAllocation, "allocator %s has no live range of %d descriptors at %d", a.id, info.Count, info.Start)
	}
	if entry.generation != info.Generation {
		return errors.Wrapf(ErrStaleAllocation, "range of %d descriptors at %d was reallocated (generation %d, freed generation %d)", info.Count, info.Start, entry.generation, info.Generation)
	}

	live.Delete(info.Start)
	*pending = append(*pending, pendingRange{info: info, freedAt: a.ctx.Timeline.CurrentValue()})
	return nil
}

// DelayedDelete returns every logically freed range tagged at or below completedFence to its
// allocator and destroys retired shader-visible heaps. It returns the number of ranges reclaimed.
func (a *Allocator) DelayedDelete(cpuFence, completedFence uint64) int {
	memutils.DebugCheckFenceOrder(cpuFence, completedFence)

	a.cpuMutex.Lock()
	cpuReclaimed := reclaimRanges(&a.cpuPending, completedFence, func(info AllocInfo) {
		heap := a.cpuHeaps[info.Start/a.cpuHeapSize]
		a.release(heap.allocator, info.Start%a.cpuHeapSize, info.Count)
	})
	a.cpuMutex.Unlock()

	a.gpuMutex.Lock()
	defer a.gpuMutex.Unlock()

	gpuReclaimed := reclaimRanges(&a.gpuPending, completedFence, func(info AllocInfo) {
		a.release(a.gpuSections[info.Start/a.gpuSectionSize], info.Start%a.gpuSectionSize, info.Count)
	})

	heapsDestroyed := 0
	remaining := a.retired[:0]
	for _, retired := range a.retired {
		if retired.freedAt > completedFence {
			remaining = append(remaining, retired)
			continue
		}

		err := retired.heap.Destroy()
		if err != nil {
			panic(fmt.Sprintf("failed to destroy a retired shader-visible %s heap: %+v", a.kind, err))
		}
		heapsDestroyed++
	}
	for i := len(remaining); i < len(a.retired); i++ {
		a.retired[i] = retiredHeap{}
	}
	a.retired = remaining

	if cpuReclaimed+gpuReclaimed+heapsDestroyed > 0 {
		a.logger.LogAttrs(context.Background(), slog.LevelDebug, "descriptor allocator reclaimed ranges",
			slog.String("allocator", a.id.String()),
			slog.Int("cpuRanges", cpuReclaimed),
			slog.Int("gpuRanges", gpuReclaimed),
			slog.Int("retiredHeaps", heapsDestroyed),
			slog.Uint64("completedFence", completedFence),
		)
	}

	return cpuReclaimed + gpuReclaimed
}

func reclaimRanges(pending *[]pendingRange, completedFence uint64, reclaim func(info AllocInfo)) int {
	reclaimed := 0
	remaining := (*pending)[:0]
	for _, entry := range *pending {
		if entry.freedAt > completedFence {
			remaining = append(remaining, entry)
			continue
		}

		reclaim(entry.info)
		reclaimed++
	}

	*pending = remaining
	return reclaimed
}

func (a *Allocator) release(allocator *buddy.Allocator, pageID, count int) {
	err := allocator.Deallocate(buddy.AllocInfo{
		PageID:   pageID,
		NumPages: 1 << allocator.RequestOrder(count),
	})
	if err != nil {
		panic(fmt.Sprintf("allocator %s failed to release %d descriptors at %d: %+v", a.id, count, pageID, err))
	}
}

// locate resolves one slot of a range to the heap that holds it and the slot's index within that heap
func (a *Allocator) locate(info AllocInfo, offset int) (platform.DescriptorHeap, int, error) {
	if info.Allocator != a.id {
		return nil, 0, errors.Wrapf(ErrStaleAllocation, "range belongs to allocator %s but was used with allocator %s", info.Allocator, a.id)
	}
	if offset < 0 || offset >= info.Count {
		return nil, 0, errors.Wrapf(platform.ErrDescriptorOutOfRange, "offset %d in a range of %d descriptors", offset, info.Count)
	}

	if info.ShaderVisible {
		a.gpuMutex.Lock()
		defer a.gpuMutex.Unlock()

		if a.gpuHeap == nil || info.Start+info.Count > a.gpuHeap.Capacity() {
			return nil, 0, errors.Wrapf(platform.ErrDescriptorOutOfRange, "range at %d is outside the shader-visible heap", info.Start)
		}
		return a.gpuHeap, info.Start + offset, nil
	}

	a.cpuMutex.Lock()
	defer a.cpuMutex.Unlock()

	heapIndex := info.Start / a.cpuHeapSize
	if info.Start < 0 || heapIndex >= len(a.cpuHeaps) {
		return nil, 0, errors.Wrapf(platform.ErrDescriptorOutOfRange, "range at %d is outside every cpu heap", info.Start)
	}
	return a.cpuHeaps[heapIndex].heap, info.Start%a.cpuHeapSize + offset, nil
}

// CpuHandle returns the CPU handle of the slot offset descriptors into a range
func (a *Allocator) CpuHandle(info AllocInfo, offset int) (platform.CPUDescriptorHandle, error) {
	heap, index, err := a.locate(info, offset)
	if err != nil {
		return platform.CPUDescriptorHandle{}, err
	}

	return heap.CPUHandle(index), nil
}

// GpuHandle returns the GPU handle of the slot offset descriptors into a shader-visible range
func (a *Allocator) GpuHandle(info AllocInfo, offset int) (platform.GPUDescriptorHandle, error) {
	if !info.ShaderVisible {
		return platform.GPUDescriptorHandle{}, errors.Newf("cpu range at %d has no gpu handle", info.Start)
	}

	heap, index, err := a.locate(info, offset)
	if err != nil {
		return platform.GPUDescriptorHandle{}, err
	}

	return heap.GPUHandle(index), nil
}

// GpuHeap returns the current shader-visible heap, or nil before the first GpuAllocate
func (a *Allocator) GpuHeap() platform.DescriptorHeap {
	a.gpuMutex.Lock()
	defer a.gpuMutex.Unlock()

	return a.gpuHeap
}

// WriteDescriptor writes the payload of one descriptor into a range
func (a *Allocator) WriteDescriptor(info AllocInfo, offset int, payload []byte) error {
	heap, index, err := a.locate(info, offset)
	if err != nil {
		return err
	}

	return heap.WriteDescriptor(index, payload)
}

// ReadDescriptor reads back the payload of one descriptor in a range
func (a *Allocator) ReadDescriptor(info AllocInfo, offset int) ([]byte, error) {
	heap, index, err := a.locate(info, offset)
	if err != nil {
		return nil, err
	}

	return heap.ReadDescriptor(index)
}

// CopyDescriptors copies each source range into dst back to back, in order. Every range must belong to
// this allocator. The sources together must fit in dst.
func (a *Allocator) CopyDescriptors(dst AllocInfo, srcs []AllocInfo) error {
	return copyDescriptors(a, dst, srcs, func(id AllocatorID) (*Allocator, error) {
		if id != a.id {
			return nil, errors.Wrapf(ErrStaleAllocation, "source range belongs to allocator %s, not %s", id, a.id)
		}
		return a, nil
	})
}

func copyDescriptors(dstAllocator *Allocator, dst AllocInfo, srcs []AllocInfo, resolve func(id AllocatorID) (*Allocator, error)) error {
	total := 0
	for _, src := range srcs {
		total += src.Count
	}
	if total > dst.Count {
		return errors.Wrapf(platform.ErrDescriptorOutOfRange, "%d source descriptors overflow a destination range of %d", total, dst.Count)
	}

	dstOffset := 0
	for _, src := range srcs {
		if src.IsEmpty() {
			continue
		}

		srcAllocator, err := resolve(src.Allocator)
		if err != nil {
			return err
		}

		srcHeap, srcIndex, err := srcAllocator.locate(src, 0)
		if err != nil {
			return err
		}
		dstHeap, dstIndex, err := dstAllocator.locate(dst, dstOffset)
		if err != nil {
			return err
		}

		err = dstHeap.CopyFrom(dstIndex, srcHeap, srcIndex, src.Count)
		if err != nil {
			return errors.Wrapf(err, "failed to copy %d descriptors from %s[%d] to %s[%d]", src.Count, src.Allocator, src.Start, dst.Allocator, dst.Start+dstOffset)
		}

		dstOffset += src.Count
	}

	return nil
}

// AllocationCount returns the number of live ranges across both sides
func (a *Allocator) AllocationCount() int {
	a.cpuMutex.Lock()
	count := a.cpuLive.Count()
	a.cpuMutex.Unlock()

	a.gpuMutex.Lock()
	defer a.gpuMutex.Unlock()
	return count + a.gpuLive.Count()
}

// PendingCount returns the number of logically freed ranges across both sides
func (a *Allocator) PendingCount() int {
	a.cpuMutex.Lock()
	count := len(a.cpuPending)
	a.cpuMutex.Unlock()

	a.gpuMutex.Lock()
	defer a.gpuMutex.Unlock()
	return count + len(a.gpuPending)
}

func (a *Allocator) CpuHeapCount() int {
	a.cpuMutex.Lock()
	defer a.cpuMutex.Unlock()

	return len(a.cpuHeaps)
}

// GpuCapacity returns the number of slots in the current shader-visible heap
func (a *Allocator) GpuCapacity() int {
	a.gpuMutex.Lock()
	defer a.gpuMutex.Unlock()

	return len(a.gpuSections) * a.gpuSectionSize
}

// AddStatistics adds slot statistics for both sides. Each CPU heap and each shader-visible section
// counts as one block.
func (a *Allocator) AddStatistics(stats *memutils.Statistics) {
	a.cpuMutex.Lock()
	for _, heap := range a.cpuHeaps {
		heap.allocator.AddStatistics(stats)
	}
	a.cpuMutex.Unlock()

	a.gpuMutex.Lock()
	defer a.gpuMutex.Unlock()
	for _, section := range a.gpuSections {
		section.AddStatistics(stats)
	}
}

func (a *Allocator) AddDetailedStatistics(stats *memutils.DetailedStatistics) {
	a.cpuMutex.Lock()
	for _, heap := range a.cpuHeaps {
		heap.allocator.AddDetailedStatistics(stats)
	}
	a.cpuMutex.Unlock()

	a.gpuMutex.Lock()
	defer a.gpuMutex.Unlock()
	for _, section := range a.gpuSections {
		section.AddDetailedStatistics(stats)
	}
}

// PrintDetailedMap writes a json object describing every heap and every range of the allocator
func (a *Allocator) PrintDetailedMap(writer *jwriter.Writer) {
	a.cpuMutex.Lock()
	defer a.cpuMutex.Unlock()
	a.gpuMutex.Lock()
	defer a.gpuMutex.Unlock()

	objState := writer.Object()
	defer objState.End()

	objState.Name("Allocator").String(a.id.String())
	objState.Name("Kind").String(a.kind.String())

	cpuObj := objState.Name("Cpu").Object()
	cpuObj.Name("HeapSize").Int(a.cpuHeapSize)
	cpuObj.Name("HeapCount").Int(len(a.cpuHeaps))
	var cpuStats memutils.DetailedStatistics
	cpuStats.Clear()
	for _, heap := range a.cpuHeaps {
		heap.allocator.AddDetailedStatistics(&cpuStats)
	}
	cpuStats.PrintJson(&cpuObj)
	printRanges(cpuObj, a.cpuLive, a.cpuPending)
	cpuObj.End()

	gpuObj := objState.Name("Gpu").Object()
	gpuObj.Name("Capacity").Int(len(a.gpuSections) * a.gpuSectionSize)
	gpuObj.Name("SectionSize").Int(a.gpuSectionSize)
	gpuObj.Name("RetiredHeaps").Int(len(a.retired))
	var gpuStats memutils.DetailedStatistics
	gpuStats.Clear()
	for _, section := range a.gpuSections {
		section.AddDetailedStatistics(&gpuStats)
	}
	gpuStats.PrintJson(&gpuObj)
	printRanges(gpuObj, a.gpuLive, a.gpuPending)
	gpuObj.End()
}

func printRanges(json jwriter.ObjectState, live *swiss.Map[int, liveRange], pending []pendingRange) {
	starts := make([]int, 0, live.Count())
	live.Iter(func(start int, _ liveRange) bool {
		starts = append(starts, start)
		return false
	})
	slices.Sort(starts)

	liveArray := json.Name("Live").Array()
	for _, start := range starts {
		entry, _ := live.Get(start)
		rangeObj := liveArray.Object()
		rangeObj.Name("Start").Int(start)
		rangeObj.Name("Count").Int(entry.count)
		rangeObj.End()
	}
	liveArray.End()

	pendingArray := json.Name("Pending").Array()
	for _, entry := range pending {
		rangeObj := pendingArray.Object()
		rangeObj.Name("Start").Int(entry.info.Start)
		rangeObj.Name("Count").Int(entry.info.Count)
		rangeObj.Name("FreedAt").Float64(float64(entry.freedAt))
		rangeObj.End()
	}
	pendingArray.End()
}

// Destroy destroys every descriptor heap the allocator owns, including retired ones. Live ranges are
// reported as leaks.
func (a *Allocator) Destroy() error {
	a.cpuMutex.Lock()
	defer a.cpuMutex.Unlock()
	a.gpuMutex.Lock()
	defer a.gpuMutex.Unlock()

	a.reportLeaks(a.cpuLive, false)
	a.reportLeaks(a.gpuLive, true)

	var err error
	for _, heap := range a.cpuHeaps {
		err = errors.CombineErrors(err, heap.heap.Destroy())
	}
	for _, retired := range a.retired {
		err = errors.CombineErrors(err, retired.heap.Destroy())
	}
	if a.gpuHeap != nil {
		err = errors.CombineErrors(err, a.gpuHeap.Destroy())
	}

	a.cpuHeaps = nil
	a.cpuPending = nil
	a.gpuHeap = nil
	a.gpuSections = nil
	a.gpuPending = nil
	a.retired = nil
	a.cpuLive.Clear()
	a.gpuLive.Clear()

	return err
}

func (a *Allocator) reportLeaks(live *swiss.Map[int, liveRange], shaderVisible bool) {
	live.Iter(func(start int, entry liveRange) bool {
		a.logger.LogAttrs(context.Background(), slog.LevelWarn, "[UNRELEASED DESCRIPTORS] descriptor allocator destroyed with a live range",
			slog.String("allocator", a.id.String()),
			slog.Bool("shaderVisible", shaderVisible),
			slog.Int("start", start),
			slog.Int("count", entry.count),
		)
		return false
	})
}
