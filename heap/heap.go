// Package heap places GPU resources inside growable backing arenas and reclaims them behind a fence
// watermark. A Heap never moves a live allocation: growth only appends arenas, so offsets and GPU
// addresses remain valid for the life of the allocation.
//
// Deallocation happens in two phases. Deallocate logically frees an allocation and tags it with the
// fence value that will be signaled once every command recorded so far has executed. The region stays
// reserved and the resource stays alive until DelayedDelete observes a completed fence value at or
// above that tag.
package heap

import (
	"unsafe"

	"github.com/cockroachdb/errors"
	"github.com/launchdarkly/go-jsonstream/v3/jwriter"
	"github.com/vkngwrapper/gpualloc/memutils"
	"github.com/vkngwrapper/gpualloc/platform"
)

// ErrHeapExhausted is returned when a request cannot be placed even after the heap has grown. It
// indicates a request larger than a single arena and is not recoverable.
var ErrHeapExhausted = errors.New("heap cannot place the request even after growing")

// ErrStaleHandle is returned when deallocating an allocation that is not live in the heap it names,
// including deallocating the same allocation twice
var ErrStaleHandle = errors.New("allocation handle is stale")

// HeapID is a non-owning reference to one of the heaps owned by a Manager
type HeapID int32

const (
	DefaultBuffersHeap HeapID = iota
	UploadBuffersHeap
	ReadbackBuffersHeap
	TexturesHeap

	heapCount int = iota
)

var heapIDMapping = make(map[HeapID]string)

func (id HeapID) String() string {
	str, ok := heapIDMapping[id]
	if !ok {
		return "unknown"
	}
	return str
}

func init() {
	heapIDMapping[DefaultBuffersHeap] = "DefaultBuffers"
	heapIDMapping[UploadBuffersHeap] = "UploadBuffers"
	heapIDMapping[ReadbackBuffersHeap] = "ReadbackBuffers"
	heapIDMapping[TexturesHeap] = "Textures"
}

// AllocationHandle is a weak reference into a heap's table of live allocations. Handles are never
// reused, so a handle that outlives its allocation is detected rather than aliasing a new one.
type AllocationHandle uint64

// AllocInfo describes one live resource placement. It is owned by the caller until it is passed to
// Deallocate, at which point the heap takes over the resource and its region.
type AllocInfo struct {
	// Heap is the heap that owns the allocation
	Heap HeapID
	// Handle identifies the allocation within its heap
	Handle AllocationHandle

	// Resource is the placed buffer or texture
	Resource platform.Resource
	// MappedData is the host pointer to the resource for host-visible heaps and nil otherwise
	MappedData unsafe.Pointer

	// Size is the size in bytes the device requires for the resource
	Size int
	// Offset is the byte offset of the resource within its arena
	Offset int
	// Arena is the index of the arena within the heap
	Arena int
}

// Heap is an allocation strategy over growable arenas. It is implemented by *BuddyHeap and
// *SegListHeap.
type Heap interface {
	ID() HeapID
	HeapType() platform.HeapType

	// Allocate places a new resource. When the heap is exhausted it grows by one arena and retries once.
	Allocate(desc platform.ResourceDesc) (*AllocInfo, error)
	// Deallocate logically frees an allocation. Its region is not reused until DelayedDelete reclaims it.
	Deallocate(info *AllocInfo) error
	// DelayedDelete reclaims every logically freed allocation tagged at or below completedFence and
	// returns the number reclaimed
	DelayedDelete(cpuFence, completedFence uint64) int

	AllocationCount() int
	PendingCount() int
	ArenaCount() int

	AddStatistics(stats *memutils.Statistics)
	AddDetailedStatistics(stats *memutils.DetailedStatistics)
	PrintDetailedMap(writer *jwriter.Writer)

	// Destroy releases every arena. Allocations that are still live are reported and destroyed.
	Destroy() error
}
