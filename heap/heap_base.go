package heap

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"sync"
	"sync/atomic"

	"github.com/cockroachdb/errors"
	"github.com/dolthub/swiss"
	"github.com/launchdarkly/go-jsonstream/v3/jwriter"
	"github.com/vkngwrapper/gpualloc/internal/utils"
	"github.com/vkngwrapper/gpualloc/memutils"
	"github.com/vkngwrapper/gpualloc/memutils/buddy"
	"github.com/vkngwrapper/gpualloc/memutils/seglist"
	"github.com/vkngwrapper/gpualloc/platform"
	"golang.org/x/exp/slog"
)

// Handles are unique across every heap in the process, so an AllocInfo from another Manager's heap
// with the same HeapID never names a live allocation here
var nextAllocationHandle atomic.Uint64

var allocationPool = sync.Pool{
	New: func() any {
		return &allocation{}
	},
}

// allocation is the heap's record of one placement, live or pending reclamation
type allocation struct {
	handle AllocationHandle
	desc   platform.ResourceDesc

	arena    int
	offset   int
	reserved int
	size     int

	buddyInfo   buddy.AllocInfo
	seglistInfo seglist.AllocInfo

	resource platform.Resource
	mapped   bool

	pending bool
	freedAt uint64
}

func (a *allocation) clear() {
	*a = allocation{}
}

// placer is the strategy-specific half of a heap: it owns the arenas and the region bookkeeping
type placer interface {
	strategyName() string
	// maxRequestSize is the largest reservation that can ever be placed
	maxRequestSize() int
	// place reserves size bytes, filling in the arena, offset and region of alloc. It returns
	// memutils.OutOfSpaceError when no existing arena has room.
	place(alloc *allocation, size int) error
	// grow appends one arena suitable for a request of size bytes
	grow(size int) error
	release(alloc *allocation) error

	arenaAt(index int) platform.Arena
	arenaCount() int
	addStatistics(stats *memutils.Statistics)
	addDetailedStatistics(stats *memutils.DetailedStatistics)
	destroyArenas() error
}

// heapBase implements the deferred reclamation state machine shared by both heap strategies
type heapBase struct {
	ctx      *platform.RenderContext
	logger   *slog.Logger
	id       HeapID
	heapType platform.HeapType
	placer   placer

	mutex   utils.OptionalRWMutex
	handles *swiss.Map[AllocationHandle, *allocation]
	pending []*allocation
}

func (h *heapBase) init(ctx *platform.RenderContext, id HeapID, heapType platform.HeapType, flags CreateFlags, p placer) {
	h.ctx = ctx
	h.logger = ctx.Logger
	h.id = id
	h.heapType = heapType
	h.placer = p
	h.mutex = utils.NewOptionalRWMutex(flags&CreateExternallySynchronized == 0)
	h.handles = swiss.NewMap[AllocationHandle, *allocation](64)
}

func (h *heapBase) ID() HeapID                  { return h.id }
func (h *heapBase) HeapType() platform.HeapType { return h.heapType }

func (h *heapBase) AllocationCount() int {
	h.mutex.RLock()
	defer h.mutex.RUnlock()

	return h.handles.Count()
}

func (h *heapBase) PendingCount() int {
	h.mutex.RLock()
	defer h.mutex.RUnlock()

	return len(h.pending)
}

func (h *heapBase) ArenaCount() int {
	h.mutex.RLock()
	defer h.mutex.RUnlock()

	return h.placer.arenaCount()
}

func (h *heapBase) Allocate(desc platform.ResourceDesc) (*AllocInfo, error) {
	requirements, err := h.ctx.Device.ResourceAllocationInfo(desc)
	if err != nil {
		return nil, errors.Wrapf(err, "heap %s failed to query allocation info for a %s", h.id, desc.Kind)
	}

	// Regions are naturally aligned to their own size, so reserving at least the alignment satisfies it
	reserve := requirements.Size
	if requirements.Alignment > reserve {
		reserve = requirements.Alignment
	}

	if reserve <= 0 {
		return nil, errors.Newf("heap %s cannot place a %s of non-positive size %d", h.id, desc.Kind, reserve)
	}
	if reserve > h.placer.maxRequestSize() {
		return nil, errors.Wrapf(ErrHeapExhausted, "heap %s cannot place %d bytes: the largest possible placement is %d bytes", h.id, reserve, h.placer.maxRequestSize())
	}

	h.mutex.Lock()
	defer h.mutex.Unlock()

	alloc := allocationPool.Get().(*allocation)
	alloc.desc = desc
	alloc.size = requirements.Size

	err = h.placer.place(alloc, reserve)
	if errors.Is(err, memutils.OutOfSpaceError) {
		err = h.placer.grow(reserve)
		if err != nil {
			alloc.clear()
			allocationPool.Put(alloc)
			return nil, errors.Wrapf(err, "heap %s failed to grow", h.id)
		}

		h.logger.LogAttrs(context.Background(), slog.LevelDebug, "heap grew",
			slog.String("heap", h.id.String()),
			slog.String("strategy", h.placer.strategyName()),
			slog.Int("arenas", h.placer.arenaCount()),
			slog.Int("request", reserve),
		)

		err = h.placer.place(alloc, reserve)
		if errors.Is(err, memutils.OutOfSpaceError) {
			err = errors.Mark(errors.Wrapf(err, "heap %s could not place %d bytes after growing", h.id, reserve), ErrHeapExhausted)
		}
	}
	if err != nil {
		alloc.clear()
		allocationPool.Put(alloc)
		return nil, err
	}

	resource, err := h.ctx.Device.CreatePlacedResource(h.placer.arenaAt(alloc.arena), alloc.offset, desc)
	if err != nil {
		h.abandon(alloc)
		return nil, errors.Wrapf(err, "heap %s failed to place a %s at arena %d offset %d", h.id, desc.Kind, alloc.arena, alloc.offset)
	}
	alloc.resource = resource

	info := &AllocInfo{
		Heap:     h.id,
		Resource: resource,
		Size:     alloc.size,
		Offset:   alloc.offset,
		Arena:    alloc.arena,
	}

	if h.heapType.HostVisible() {
		info.MappedData, err = resource.Map()
		if err != nil {
			destroyErr := resource.Destroy()
			h.abandon(alloc)
			return nil, errors.CombineErrors(errors.Wrapf(err, "heap %s failed to map a placed resource", h.id), destroyErr)
		}
		alloc.mapped = true
	}

	alloc.handle = AllocationHandle(nextAllocationHandle.Add(1))
	h.handles.Put(alloc.handle, alloc)
	info.Handle = alloc.handle

	return info, nil
}

// abandon releases the region of an allocation that never became live
func (h *heapBase) abandon(alloc *allocation) {
	err := h.placer.release(alloc)
	if err != nil {
		panic(fmt.Sprintf("heap %s failed to release the region of an abandoned allocation: %+v", h.id, err))
	}

	alloc.clear()
	allocationPool.Put(alloc)
}

func (h *heapBase) Deallocate(info *AllocInfo) error {
	if info == nil {
		return errors.Wrap(ErrStaleHandle, "attempted to deallocate a nil allocation")
	}
	if info.Heap != h.id {
		return errors.Wrapf(ErrStaleHandle, "allocation belongs to heap %s but was freed to heap %s", info.Heap, h.id)
	}

	h.mutex.Lock()
	defer h.mutex.Unlock()

	alloc, ok := h.handles.Get(info.Handle)
	if !ok {
		return errors.Wrapf(ErrStaleHandle, "heap %s has no live allocation with handle %d", h.id, info.Handle)
	}

	h.handles.Delete(info.Handle)
	alloc.pending = true
	alloc.freedAt = h.ctx.Timeline.CurrentValue()
	h.pending = append(h.pending, alloc)

	return nil
}

func (h *heapBase) DelayedDelete(cpuFence, completedFence uint64) int {
	memutils.DebugCheckFenceOrder(cpuFence, completedFence)

	h.mutex.Lock()
	defer h.mutex.Unlock()

	reclaimed := 0
	remaining := h.pending[:0]
	for _, alloc := range h.pending {
		if alloc.freedAt > completedFence {
			remaining = append(remaining, alloc)
			continue
		}

		h.reclaim(alloc)
		reclaimed++
	}

	for i := len(remaining); i < len(h.pending); i++ {
		h.pending[i] = nil
	}
	h.pending = remaining

	if reclaimed > 0 {
		h.logger.LogAttrs(context.Background(), slog.LevelDebug, "heap reclaimed allocations",
			slog.String("heap", h.id.String()),
			slog.Int("reclaimed", reclaimed),
			slog.Int("pending", len(h.pending)),
			slog.Uint64("cpuFence", cpuFence),
			slog.Uint64("completedFence", completedFence),
		)
	}

	return reclaimed
}

func (h *heapBase) reclaim(alloc *allocation) {
	if alloc.mapped {
		err := alloc.resource.Unmap()
		if err != nil {
			panic(fmt.Sprintf("heap %s failed to unmap a reclaimed resource: %+v", h.id, err))
		}
	}

	err := alloc.resource.Destroy()
	if err != nil {
		panic(fmt.Sprintf("heap %s failed to destroy a reclaimed resource: %+v", h.id, err))
	}

	err = h.placer.release(alloc)
	if err != nil {
		panic(fmt.Sprintf("heap %s failed to release the region at arena %d offset %d: %+v", h.id, alloc.arena, alloc.offset, err))
	}

	alloc.clear()
	allocationPool.Put(alloc)
}

func (h *heapBase) AddStatistics(stats *memutils.Statistics) {
	h.mutex.RLock()
	defer h.mutex.RUnlock()

	h.placer.addStatistics(stats)
}

func (h *heapBase) AddDetailedStatistics(stats *memutils.DetailedStatistics) {
	h.mutex.RLock()
	defer h.mutex.RUnlock()

	h.placer.addDetailedStatistics(stats)
}

func (h *heapBase) Destroy() error {
	h.mutex.Lock()
	defer h.mutex.Unlock()

	for _, alloc := range h.pending {
		h.reclaim(alloc)
	}
	h.pending = nil

	var leaked []*allocation
	h.handles.Iter(func(handle AllocationHandle, alloc *allocation) bool {
		leaked = append(leaked, alloc)
		return false
	})

	for _, alloc := range leaked {
		h.logger.LogAttrs(context.Background(), slog.LevelWarn, "[UNRELEASED MEMORY] heap destroyed with a live allocation",
			slog.String("heap", h.id.String()),
			slog.Uint64("handle", uint64(alloc.handle)),
			slog.Int("arena", alloc.arena),
			slog.Int("offset", alloc.offset),
			slog.Int("size", alloc.size),
			slog.String("kind", alloc.desc.Kind.String()),
		)

		h.handles.Delete(alloc.handle)
		h.reclaim(alloc)
	}

	return h.placer.destroyArenas()
}

func (h *heapBase) PrintDetailedMap(writer *jwriter.Writer) {
	h.mutex.RLock()
	defer h.mutex.RUnlock()

	objState := writer.Object()
	defer objState.End()

	objState.Name("Heap").String(h.id.String())
	objState.Name("HeapType").String(h.heapType.String())
	objState.Name("Strategy").String(h.placer.strategyName())

	var stats memutils.DetailedStatistics
	stats.Clear()
	h.placer.addDetailedStatistics(&stats)
	statsObj := objState.Name("Stats").Object()
	stats.PrintJson(&statsObj)
	statsObj.End()

	byArena := make([][]*allocation, h.placer.arenaCount())
	h.handles.Iter(func(handle AllocationHandle, alloc *allocation) bool {
		byArena[alloc.arena] = append(byArena[alloc.arena], alloc)
		return false
	})
	for _, alloc := range h.pending {
		byArena[alloc.arena] = append(byArena[alloc.arena], alloc)
	}

	arenasObj := objState.Name("Arenas").Object()
	for arenaIndex, allocs := range byArena {
		sort.Slice(allocs, func(i, j int) bool {
			return allocs[i].offset < allocs[j].offset
		})

		arenaObj := arenasObj.Name(strconv.Itoa(arenaIndex)).Object()
		arenaObj.Name("TotalBytes").Int(h.placer.arenaAt(arenaIndex).Size())
		h.printArenaAllocations(allocs, arenaObj)
		arenaObj.End()
	}
	arenasObj.End()
}

func (h *heapBase) printArenaAllocations(allocs []*allocation, json jwriter.ObjectState) {
	arrayState := json.Name("Allocations").Array()
	defer arrayState.End()

	for _, alloc := range allocs {
		obj := arrayState.Object()

		obj.Name("Offset").Int(alloc.offset)
		obj.Name("Size").Int(alloc.size)
		obj.Name("Reserved").Int(alloc.reserved)
		obj.Name("Kind").String(alloc.desc.Kind.String())
		if alloc.desc.Usage != 0 {
			obj.Name("Usage").String(alloc.desc.Usage.String())
		}

		if alloc.pending {
			obj.Name("State").String("LogicallyFreed")
			obj.Name("FreedAt").Float64(float64(alloc.freedAt))
		} else {
			obj.Name("State").String("Live")
			obj.Name("Handle").Float64(float64(alloc.handle))
		}

		obj.End()
	}
}
