package heap

import (
	"github.com/cockroachdb/errors"
	"github.com/vkngwrapper/gpualloc/memutils"
	"github.com/vkngwrapper/gpualloc/memutils/seglist"
	"github.com/vkngwrapper/gpualloc/platform"
)

// SegListHeap places resources in per-size-class arenas managed by a segregated list allocator. Each
// request is rounded up to a power-of-two multiple of the page size and never shares an arena with a
// request of a different class, so it suits textures, whose sizes cluster around a few classes.
type SegListHeap struct {
	heapBase

	allocator *seglist.Allocator
	arenas    []platform.Arena
	// classArenas maps a size class and its arena index within the class to an index into arenas
	classArenas [][]int
}

var _ Heap = &SegListHeap{}

// NewSegListHeap creates an empty SegListHeap. No arena is created until the first allocation.
func NewSegListHeap(ctx *platform.RenderContext, id HeapID, heapType platform.HeapType, options CreateOptions) (*SegListHeap, error) {
	if ctx == nil {
		return nil, errors.New("attempted to create a heap with a nil render context")
	}

	options, err := options.withDefaults()
	if err != nil {
		return nil, err
	}

	allocator, err := seglist.New(options.PageSize, options.MaxTexturePageSize, options.TextureArenaSize)
	if err != nil {
		return nil, err
	}

	h := &SegListHeap{
		allocator:   allocator,
		classArenas: make([][]int, allocator.MaxOrder()+1),
	}
	h.init(ctx, id, heapType, options.Flags, h)

	return h, nil
}

func (h *SegListHeap) strategyName() string { return "SegregatedList" }

func (h *SegListHeap) maxRequestSize() int { return h.allocator.MaxPageSize() }

func (h *SegListHeap) place(alloc *allocation, size int) error {
	info, err := h.allocator.TryAllocate(size)
	if err != nil {
		return err
	}

	alloc.arena = h.classArenas[info.Order][info.Arena]
	alloc.seglistInfo = info
	alloc.offset = h.allocator.Offset(info)
	alloc.reserved = h.allocator.SlotSize(info.Order)
	return nil
}

func (h *SegListHeap) grow(size int) error {
	order, err := h.allocator.OrderForSize(size)
	if err != nil {
		return err
	}

	arena, err := h.ctx.Device.CreateArena(h.heapType, h.allocator.ArenaBytes(order))
	if err != nil {
		return err
	}

	h.allocator.AddArena(order)
	h.classArenas[order] = append(h.classArenas[order], len(h.arenas))
	h.arenas = append(h.arenas, arena)
	return nil
}

func (h *SegListHeap) release(alloc *allocation) error {
	return h.allocator.Deallocate(alloc.seglistInfo)
}

func (h *SegListHeap) arenaAt(index int) platform.Arena { return h.arenas[index] }
func (h *SegListHeap) arenaCount() int                  { return len(h.arenas) }

func (h *SegListHeap) addStatistics(stats *memutils.Statistics) {
	h.allocator.AddStatistics(stats)
}

func (h *SegListHeap) addDetailedStatistics(stats *memutils.DetailedStatistics) {
	h.allocator.AddDetailedStatistics(stats)
}

func (h *SegListHeap) destroyArenas() error {
	if !h.allocator.IsEmpty() {
		panic("attempted to destroy a seglist heap that still holds allocations")
	}

	var err error
	for _, arena := range h.arenas {
		err = errors.CombineErrors(err, arena.Destroy())
	}
	h.arenas = nil
	for order := range h.classArenas {
		h.classArenas[order] = nil
	}

	return err
}
