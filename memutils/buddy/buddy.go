// Package buddy implements a power-of-two paged allocator over a single fixed-size arena. Blocks are
// split on allocation and merged with their buddy on deallocation. The allocator never grows: callers
// that receive memutils.OutOfSpaceError decide whether to add another arena.
package buddy

import (
	"fmt"

	"github.com/cockroachdb/errors"
	"github.com/vkngwrapper/gpualloc/memutils"
	"github.com/vkngwrapper/gpualloc/memutils/bitset"
)

// AllocInfo describes a region handed out by Allocator.Allocate. It does not own anything: it is
// passed back to Deallocate to release the region. The zero value describes an empty allocation.
type AllocInfo struct {
	PageID   int
	NumPages int
}

// IsEmpty returns true for the zero-size allocation
func (i AllocInfo) IsEmpty() bool {
	return i.NumPages == 0
}

// Allocator is a buddy allocator. It is not synchronized: owners lock around it.
type Allocator struct {
	pageSize   int
	arenaPages int
	order      int

	// freeLists holds the page ids of idle blocks at each order
	freeLists [][]int
	// freeBits marks, per order, which block indices are currently on the free list
	freeBits []*bitset.Bitset
	// allocBits marks, per order, which block indices are allocated as a unit
	allocBits []*bitset.Bitset

	freePages       int
	allocationCount int
}

// New creates an Allocator over an arena of arenaSizePages pages, each pageSize units large. pageSize
// must be a power of two. The allocator's order is ceil(log2(arenaSizePages)); when the arena size is not
// itself a power of two, the pages past the arena end are never handed out.
func New(arenaSizePages, pageSize int) (*Allocator, error) {
	if arenaSizePages <= 0 {
		return nil, errors.Newf("buddy arena must contain at least one page, but %d were requested", arenaSizePages)
	}
	err := memutils.CheckPow2(pageSize, "pageSize")
	if err != nil {
		return nil, err
	}

	a := &Allocator{
		pageSize:   pageSize,
		arenaPages: arenaSizePages,
		order:      memutils.Log2Ceil(arenaSizePages),
	}

	a.freeLists = make([][]int, a.order+1)
	a.freeBits = make([]*bitset.Bitset, a.order+1)
	a.allocBits = make([]*bitset.Bitset, a.order+1)
	for level := 0; level <= a.order; level++ {
		a.freeBits[level] = bitset.New(1 << (a.order - level))
		a.allocBits[level] = bitset.New(1 << (a.order - level))
	}

	// Seed the free lists with the largest aligned blocks that fit inside the arena
	pageID := 0
	for level := a.order; level >= 0; level-- {
		blockPages := 1 << level
		for pageID+blockPages <= arenaSizePages {
			a.pushFree(level, pageID)
			pageID += blockPages
		}
	}
	a.freePages = arenaSizePages

	return a, nil
}

func (a *Allocator) Order() int      { return a.order }
func (a *Allocator) PageSize() int   { return a.pageSize }
func (a *Allocator) ArenaPages() int { return a.arenaPages }
func (a *Allocator) FreePages() int  { return a.freePages }

// Size is the size of the arena in units
func (a *Allocator) Size() int { return a.arenaPages * a.pageSize }

// AllocationCount is the number of live allocations
func (a *Allocator) AllocationCount() int { return a.allocationCount }

// IsEmpty returns true when no allocations are live
func (a *Allocator) IsEmpty() bool { return a.allocationCount == 0 }

// FreeBlocks returns the number of idle blocks on the free list for the provided order
func (a *Allocator) FreeBlocks(order int) int {
	if order < 0 || order > a.order {
		return 0
	}
	return len(a.freeLists[order])
}

// Offset returns the offset of an allocation within the arena, in units
func (a *Allocator) Offset(info AllocInfo) int {
	return info.PageID * a.pageSize
}

func (a *Allocator) pushFree(level, pageID int) {
	a.freeLists[level] = append(a.freeLists[level], pageID)
	a.freeBits[level].Set(pageID >> level)
}

func (a *Allocator) popFree(level int) int {
	list := a.freeLists[level]
	pageID := list[len(list)-1]
	a.freeLists[level] = list[:len(list)-1]
	a.freeBits[level].Clear(pageID >> level)
	return pageID
}

func (a *Allocator) removeFree(level, pageID int) {
	list := a.freeLists[level]
	for i := len(list) - 1; i >= 0; i-- {
		if list[i] == pageID {
			list[i] = list[len(list)-1]
			a.freeLists[level] = list[:len(list)-1]
			a.freeBits[level].Clear(pageID >> level)
			return
		}
	}

	panic(fmt.Sprintf("buddy block at page %d order %d was marked idle but was not on the free list", pageID, level))
}

// RequestOrder returns the order of the block that Allocate would hand out for a request of size units
func (a *Allocator) RequestOrder(size int) int {
	return memutils.Log2Ceil(memutils.DivideRoundingUp(size, a.pageSize))
}

// Allocate reserves a block large enough for size units. The request is rounded up to a whole number of
// pages and then to a power-of-two number of pages. A zero size succeeds and returns the zero AllocInfo.
// If no block of sufficient order exists, memutils.OutOfSpaceError is returned: Allocate never retries.
func (a *Allocator) Allocate(size int) (AllocInfo, error) {
	if size < 0 {
		return AllocInfo{}, errors.Newf("attempted to allocate a negative size %d", size)
	}
	if size == 0 {
		return AllocInfo{}, nil
	}

	requestOrder := a.RequestOrder(size)
	if requestOrder > a.order {
		return AllocInfo{}, errors.Wrapf(memutils.OutOfSpaceError, "request of %d units needs order %d but arena order is %d", size, requestOrder, a.order)
	}

	foundOrder := -1
	for level := requestOrder; level <= a.order; level++ {
		if len(a.freeLists[level]) > 0 {
			foundOrder = level
			break
		}
	}

	if foundOrder < 0 {
		return AllocInfo{}, errors.Wrapf(memutils.OutOfSpaceError, "no free block of order %d or above", requestOrder)
	}

	pageID := a.popFree(foundOrder)
	for foundOrder > requestOrder {
		foundOrder--
		a.pushFree(foundOrder, pageID+(1<<foundOrder))
	}

	a.allocBits[requestOrder].Set(pageID >> requestOrder)
	a.freePages -= 1 << requestOrder
	a.allocationCount++

	return AllocInfo{PageID: pageID, NumPages: 1 << requestOrder}, nil
}

// Deallocate releases a block previously returned by Allocate and merges it with its buddy as far up as
// possible. Freeing a block that is not currently allocated, including freeing it twice, returns
// memutils.InvalidFreeError and changes nothing.
func (a *Allocator) Deallocate(info AllocInfo) error {
	if info.IsEmpty() {
		return nil
	}

	level := memutils.Log2Floor(info.NumPages)
	if info.NumPages != 1<<level || level > a.order {
		return errors.Wrapf(memutils.InvalidFreeError, "block of %d pages is not a valid buddy block", info.NumPages)
	}
	if info.PageID < 0 || info.PageID+info.NumPages > a.arenaPages || info.PageID%info.NumPages != 0 {
		return errors.Wrapf(memutils.InvalidFreeError, "block at page %d of %d pages is outside the arena or misaligned", info.PageID, info.NumPages)
	}

	blockIndex := info.PageID >> level
	if !a.allocBits[level].Test(blockIndex) {
		return errors.Wrapf(memutils.InvalidFreeError, "block at page %d of %d pages is not allocated", info.PageID, info.NumPages)
	}

	a.allocBits[level].Clear(blockIndex)
	a.freePages += info.NumPages
	a.allocationCount--

	pageID := info.PageID
	for level < a.order {
		buddyIndex := (pageID >> level) ^ 1
		if !a.freeBits[level].Test(buddyIndex) {
			break
		}

		buddyPageID := buddyIndex << level
		a.removeFree(level, buddyPageID)
		if buddyPageID < pageID {
			pageID = buddyPageID
		}
		level++
	}

	a.pushFree(level, pageID)
	memutils.DebugValidate(a)

	return nil
}

// VisitAllocations calls visitor for every live allocation until it returns false
func (a *Allocator) VisitAllocations(visitor func(info AllocInfo) bool) {
	keepGoing := true
	for level := 0; level <= a.order && keepGoing; level++ {
		a.allocBits[level].Visit(func(index int) bool {
			keepGoing = visitor(AllocInfo{PageID: index << level, NumPages: 1 << level})
			return keepGoing
		})
	}
}

// VisitFreeBlocks calls visitor for every idle block until it returns false
func (a *Allocator) VisitFreeBlocks(visitor func(info AllocInfo) bool) {
	for level := 0; level <= a.order; level++ {
		for _, pageID := range a.freeLists[level] {
			if !visitor(AllocInfo{PageID: pageID, NumPages: 1 << level}) {
				return
			}
		}
	}
}

func (a *Allocator) AddStatistics(stats *memutils.Statistics) {
	stats.BlockCount++
	stats.BlockBytes += a.Size()
	stats.AllocationCount += a.allocationCount
	stats.AllocationBytes += (a.arenaPages - a.freePages) * a.pageSize
}

func (a *Allocator) AddDetailedStatistics(stats *memutils.DetailedStatistics) {
	stats.BlockCount++
	stats.BlockBytes += a.Size()

	a.VisitAllocations(func(info AllocInfo) bool {
		stats.AddAllocation(info.NumPages * a.pageSize)
		return true
	})
	a.VisitFreeBlocks(func(info AllocInfo) bool {
		stats.AddUnusedRange(info.NumPages * a.pageSize)
		return true
	})
}

// Validate verifies that the free lists and bitsets agree with one another and that every page in the
// arena is covered by exactly one free or allocated block
func (a *Allocator) Validate() error {
	pages := bitset.New(a.arenaPages)
	freePages := 0
	allocatedPages := 0
	allocations := 0

	for level := 0; level <= a.order; level++ {
		if a.freeBits[level].Count() != len(a.freeLists[level]) {
			return errors.Errorf("order %d has %d free list entries but %d free bits", level, len(a.freeLists[level]), a.freeBits[level].Count())
		}

		for _, pageID := range a.freeLists[level] {
			if !a.freeBits[level].Test(pageID >> level) {
				return errors.Errorf("free block at page %d order %d is not marked free", pageID, level)
			}
			if pageID+(1<<level) > a.arenaPages {
				return errors.Errorf("free block at page %d order %d runs past the arena", pageID, level)
			}
			if !pages.NoneSet(pageID, 1<<level) {
				return errors.Errorf("free block at page %d order %d overlaps another block", pageID, level)
			}
			pages.SetRange(pageID, 1<<level)
			freePages += 1 << level
		}

		var err error
		a.allocBits[level].Visit(func(index int) bool {
			pageID := index << level
			if pageID+(1<<level) > a.arenaPages {
				err = errors.Errorf("allocated block at page %d order %d runs past the arena", pageID, level)
				return false
			}
			if !pages.NoneSet(pageID, 1<<level) {
				err = errors.Errorf("allocated block at page %d order %d overlaps another block", pageID, level)
				return false
			}
			pages.SetRange(pageID, 1<<level)
			allocatedPages += 1 << level
			allocations++
			return true
		})
		if err != nil {
			return err
		}
	}

	if freePages != a.freePages {
		return errors.Errorf("free lists cover %d pages but %d pages are recorded as free", freePages, a.freePages)
	}
	if freePages+allocatedPages != a.arenaPages {
		return errors.Errorf("blocks cover %d pages but the arena holds %d pages", freePages+allocatedPages, a.arenaPages)
	}
	if allocations != a.allocationCount {
		return errors.Errorf("found %d allocated blocks but %d allocations are recorded", allocations, a.allocationCount)
	}

	return nil
}
