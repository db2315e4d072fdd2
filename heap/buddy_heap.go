package heap

import (
	"github.com/cockroachdb/errors"
	"github.com/vkngwrapper/gpualloc/memutils"
	"github.com/vkngwrapper/gpualloc/memutils/buddy"
	"github.com/vkngwrapper/gpualloc/platform"
)

type buddyArena struct {
	arena     platform.Arena
	allocator *buddy.Allocator
}

// BuddyHeap places resources in a list of equally-sized arenas, each managed by a buddy allocator.
// Requests are rounded up to a power-of-two number of pages, so it suits buffers, whose sizes are
// mostly small and varied.
type BuddyHeap struct {
	heapBase

	pageSize   int
	arenaPages int
	arenas     []buddyArena
}

var _ Heap = &BuddyHeap{}

// NewBuddyHeap creates an empty BuddyHeap. No arena is created until the first allocation.
func NewBuddyHeap(ctx *platform.RenderContext, id HeapID, heapType platform.HeapType, options CreateOptions) (*BuddyHeap, error) {
	if ctx == nil {
		return nil, errors.New("attempted to create a heap with a nil render context")
	}

	options, err := options.withDefaults()
	if err != nil {
		return nil, err
	}
	if options.BuddyArenaPages <= 0 {
		return nil, errors.Newf("BuddyArenaPages must be positive but was %d", options.BuddyArenaPages)
	}

	h := &BuddyHeap{
		pageSize:   options.PageSize,
		arenaPages: options.BuddyArenaPages,
	}
	h.init(ctx, id, heapType, options.Flags, h)

	return h, nil
}

func (h *BuddyHeap) strategyName() string { return "Buddy" }

func (h *BuddyHeap) maxRequestSize() int {
	return h.pageSize << memutils.Log2Floor(h.arenaPages)
}

func (h *BuddyHeap) place(alloc *allocation, size int) error {
	for arenaIndex, arena := range h.arenas {
		info, err := arena.allocator.Allocate(size)
		if errors.Is(err, memutils.OutOfSpaceError) {
			continue
		} else if err != nil {
			return err
		}

		alloc.arena = arenaIndex
		alloc.buddyInfo = info
		alloc.offset = arena.allocator.Offset(info)
		alloc.reserved = info.NumPages * h.pageSize
		return nil
	}

	return errors.Wrapf(memutils.OutOfSpaceError, "none of %d buddy arenas can hold %d bytes", len(h.arenas), size)
}

func (h *BuddyHeap) grow(size int) error {
	allocator, err := buddy.New(h.arenaPages, h.pageSize)
	if err != nil {
		return err
	}

	arena, err := h.ctx.Device.CreateArena(h.heapType, allocator.Size())
	if err != nil {
		return err
	}

	h.arenas = append(h.arenas, buddyArena{arena: arena, allocator: allocator})
	return nil
}

func (h *BuddyHeap) release(alloc *allocation) error {
	if alloc.arena < 0 || alloc.arena >= len(h.arenas) {
		return errors.Wrapf(memutils.InvalidFreeError, "buddy heap has no arena %d", alloc.arena)
	}

	return h.arenas[alloc.arena].allocator.Deallocate(alloc.buddyInfo)
}

func (h *BuddyHeap) arenaAt(index int) platform.Arena { return h.arenas[index].arena }
func (h *BuddyHeap) arenaCount() int                  { return len(h.arenas) }

func (h *BuddyHeap) addStatistics(stats *memutils.Statistics) {
	for _, arena := range h.arenas {
		arena.allocator.AddStatistics(stats)
	}
}

func (h *BuddyHeap) addDetailedStatistics(stats *memutils.DetailedStatistics) {
	for _, arena := range h.arenas {
		arena.allocator.AddDetailedStatistics(stats)
	}
}

func (h *BuddyHeap) destroyArenas() error {
	var err error
	for _, arena := range h.arenas {
		if !arena.allocator.IsEmpty() {
			panic("attempted to destroy a buddy arena that still holds allocations")
		}
		err = errors.CombineErrors(err, arena.arena.Destroy())
	}
	h.arenas = nil

	return err
}
