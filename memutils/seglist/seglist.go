// Package seglist implements a segregated size-class allocator. Each power-of-two size class owns its
// own list of fixed-slot arenas, each tracked by a bitset. Classes never split or merge: a request is
// rounded up to its class and internal fragmentation is bounded by the class granularity.
package seglist

import (
	"github.com/cockroachdb/errors"
	"github.com/vkngwrapper/gpualloc/memutils"
	"github.com/vkngwrapper/gpualloc/memutils/bitset"
)

// AllocInfo identifies one slot: the size class, the arena within that class, and the slot within
// that arena
type AllocInfo struct {
	Order int
	Arena int
	Slot  int
}

type bucket struct {
	slotSize      int
	slotsPerArena int
	arenas        []*bitset.Bitset
}

// Allocator is a segregated list allocator. It is not synchronized: owners lock around it.
type Allocator struct {
	pageSize    int
	maxPageSize int
	arenaSize   int

	buckets         []bucket
	allocationCount int
}

// New creates an Allocator with one size class per power of two between pageSize and maxPageSize.
// Each arena of a class holds as many slots as fit in arenaSize, and always at least one.
func New(pageSize, maxPageSize, arenaSize int) (*Allocator, error) {
	err := memutils.CheckPow2(pageSize, "pageSize")
	if err != nil {
		return nil, err
	}
	err = memutils.CheckPow2(maxPageSize, "maxPageSize")
	if err != nil {
		return nil, err
	}
	if maxPageSize < pageSize {
		return nil, errors.Newf("maxPageSize %d is smaller than pageSize %d", maxPageSize, pageSize)
	}
	if arenaSize <= 0 {
		return nil, errors.Newf("arenaSize must be positive but was %d", arenaSize)
	}

	maxOrder := memutils.Log2Floor(maxPageSize / pageSize)
	a := &Allocator{
		pageSize:    pageSize,
		maxPageSize: maxPageSize,
		arenaSize:   arenaSize,
		buckets:     make([]bucket, maxOrder+1),
	}

	for order := range a.buckets {
		slotSize := pageSize << order
		slots := arenaSize / slotSize
		if slots < 1 {
			slots = 1
		}

		a.buckets[order] = bucket{
			slotSize:      slotSize,
			slotsPerArena: slots,
		}
	}

	return a, nil
}

func (a *Allocator) PageSize() int    { return a.pageSize }
func (a *Allocator) MaxPageSize() int { return a.maxPageSize }

// MaxOrder is the largest size class
func (a *Allocator) MaxOrder() int { return len(a.buckets) - 1 }

// AllocationCount is the number of live allocations across every class
func (a *Allocator) AllocationCount() int { return a.allocationCount }

// IsEmpty returns true when no allocations are live
func (a *Allocator) IsEmpty() bool { return a.allocationCount == 0 }

// SlotSize returns the size of one slot in the provided class
func (a *Allocator) SlotSize(order int) int { return a.buckets[order].slotSize }

// SlotsPerArena returns the number of slots in each arena of the provided class
func (a *Allocator) SlotsPerArena(order int) int { return a.buckets[order].slotsPerArena }

// ArenaBytes returns the size of one arena of the provided class
func (a *Allocator) ArenaBytes(order int) int {
	return a.buckets[order].slotSize * a.buckets[order].slotsPerArena
}

// ArenaCount returns the number of arenas that have been added to the provided class
func (a *Allocator) ArenaCount(order int) int { return len(a.buckets[order].arenas) }

// Offset returns the offset of a slot within its arena
func (a *Allocator) Offset(info AllocInfo) int {
	return info.Slot * a.buckets[info.Order].slotSize
}

// OrderForSize returns the smallest class whose slot can hold size units
func (a *Allocator) OrderForSize(size int) (int, error) {
	if size <= 0 {
		return 0, errors.Newf("attempted to allocate non-positive size %d", size)
	}
	if size > a.maxPageSize {
		return 0, errors.Wrapf(memutils.OutOfSpaceError, "request of %d is larger than the largest size class %d", size, a.maxPageSize)
	}

	return memutils.Log2Ceil(memutils.DivideRoundingUp(size, a.pageSize)), nil
}

// TryAllocate places a request in the first free slot of an existing arena of its class. When every
// arena of the class is full, or the class has no arena yet, it returns memutils.OutOfSpaceError.
func (a *Allocator) TryAllocate(size int) (AllocInfo, error) {
	order, err := a.OrderForSize(size)
	if err != nil {
		return AllocInfo{}, err
	}

	b := &a.buckets[order]
	for arenaIndex, arena := range b.arenas {
		slot := arena.FirstClear()
		if slot < 0 {
			continue
		}

		arena.Set(slot)
		a.allocationCount++
		return AllocInfo{Order: order, Arena: arenaIndex, Slot: slot}, nil
	}

	return AllocInfo{}, errors.Wrapf(memutils.OutOfSpaceError, "all %d arenas of size class %d are full", len(b.arenas), order)
}

// AddArena appends an empty arena to the provided class and returns its index
func (a *Allocator) AddArena(order int) int {
	b := &a.buckets[order]
	b.arenas = append(b.arenas, bitset.New(b.slotsPerArena))
	return len(b.arenas) - 1
}

// Allocate places a request in its class, appending a new arena to the class when every existing
// arena is full
func (a *Allocator) Allocate(size int) (AllocInfo, error) {
	info, err := a.TryAllocate(size)
	if err == nil || !errors.Is(err, memutils.OutOfSpaceError) {
		return info, err
	}

	order, err := a.OrderForSize(size)
	if err != nil {
		return AllocInfo{}, err
	}

	a.AddArena(order)
	return a.TryAllocate(size)
}

// Deallocate releases a slot. Freeing a slot that is not allocated returns memutils.InvalidFreeError
// and changes nothing.
func (a *Allocator) Deallocate(info AllocInfo) error {
	if info.Order < 0 || info.Order >= len(a.buckets) {
		return errors.Wrapf(memutils.InvalidFreeError, "size class %d does not exist", info.Order)
	}

	b := &a.buckets[info.Order]
	if info.Arena < 0 || info.Arena >= len(b.arenas) {
		return errors.Wrapf(memutils.InvalidFreeError, "size class %d has no arena %d", info.Order, info.Arena)
	}
	if info.Slot < 0 || info.Slot >= b.slotsPerArena {
		return errors.Wrapf(memutils.InvalidFreeError, "slot %d is outside arena %d of size class %d", info.Slot, info.Arena, info.Order)
	}

	arena := b.arenas[info.Arena]
	if !arena.Test(info.Slot) {
		return errors.Wrapf(memutils.InvalidFreeError, "slot %d of arena %d in size class %d is not allocated", info.Slot, info.Arena, info.Order)
	}

	arena.Clear(info.Slot)
	a.allocationCount--
	return nil
}

// VisitAllocations calls visitor for every live allocation until it returns false
func (a *Allocator) VisitAllocations(visitor func(info AllocInfo) bool) {
	for order := range a.buckets {
		for arenaIndex, arena := range a.buckets[order].arenas {
			keepGoing := true
			arena.Visit(func(slot int) bool {
				keepGoing = visitor(AllocInfo{Order: order, Arena: arenaIndex, Slot: slot})
				return keepGoing
			})
			if !keepGoing {
				return
			}
		}
	}
}

func (a *Allocator) AddStatistics(stats *memutils.Statistics) {
	for order := range a.buckets {
		b := &a.buckets[order]
		for _, arena := range b.arenas {
			stats.BlockCount++
			stats.BlockBytes += b.slotSize * b.slotsPerArena
			stats.AllocationCount += arena.Count()
			stats.AllocationBytes += arena.Count() * b.slotSize
		}
	}
}

func (a *Allocator) AddDetailedStatistics(stats *memutils.DetailedStatistics) {
	for order := range a.buckets {
		b := &a.buckets[order]
		for _, arena := range b.arenas {
			stats.BlockCount++
			stats.BlockBytes += b.slotSize * b.slotsPerArena

			for slot := 0; slot < b.slotsPerArena; slot++ {
				if arena.Test(slot) {
					stats.AddAllocation(b.slotSize)
				} else {
					stats.AddUnusedRange(b.slotSize)
				}
			}
		}
	}
}

func (a *Allocator) Validate() error {
	count := 0
	for order := range a.buckets {
		b := &a.buckets[order]
		if b.slotSize != a.pageSize<<order {
			return errors.Errorf("size class %d has slot size %d but should be %d", order, b.slotSize, a.pageSize<<order)
		}

		for arenaIndex, arena := range b.arenas {
			if arena.Size() != b.slotsPerArena {
				return errors.Errorf("arena %d of size class %d tracks %d slots but should track %d", arenaIndex, order, arena.Size(), b.slotsPerArena)
			}
			count += arena.Count()
		}
	}

	if count != a.allocationCount {
		return errors.Errorf("found %d allocated slots but %d allocations are recorded", count, a.allocationCount)
	}

	return nil
}
