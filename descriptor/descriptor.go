// Package descriptor hands out ranges of descriptor slots. Non shader-visible descriptors are staged in a
// growable list of fixed-size CPU heaps. Shader-visible descriptors live in a single heap that doubles
// when it is exhausted, so that every slot stays addressable from one base handle.
//
// Like heap allocations, descriptor ranges are freed in two phases: the range is logically freed when
// deallocated and only returned to its allocator by DelayedDelete once the fence value recorded at
// deallocation has completed.
package descriptor

import (
	"github.com/cockroachdb/errors"
	"github.com/vkngwrapper/core/v2/common"
	"github.com/vkngwrapper/gpualloc/memutils"
)

// ErrGpuHeapExpanded is returned by GpuAllocate when the shader-visible heap was exhausted and has been
// replaced by a larger one. Slot indices issued before the expansion remain valid, but their descriptors
// must be copied into the new heap again. The caller retries the allocation.
var ErrGpuHeapExpanded = errors.New("shader-visible descriptor heap was expanded")

// ErrStaleAllocation is returned when deallocating a range that is not live in the allocator it names,
// including deallocating the same range twice
var ErrStaleAllocation = errors.New("descriptor allocation is stale")

// AllocatorID is a non-owning reference to one of the allocators owned by a Manager
type AllocatorID int32

const (
	CpuCbvSrvUavAllocator AllocatorID = iota
	GpuCbvSrvUavAllocator
	RtvAllocator
	DsvAllocator

	allocatorCount int = iota
)

var allocatorIDMapping = make(map[AllocatorID]string)

func (id AllocatorID) String() string {
	str, ok := allocatorIDMapping[id]
	if !ok {
		return "unknown"
	}
	return str
}

func init() {
	allocatorIDMapping[CpuCbvSrvUavAllocator] = "CpuCbvSrvUav"
	allocatorIDMapping[GpuCbvSrvUavAllocator] = "GpuCbvSrvUav"
	allocatorIDMapping[RtvAllocator] = "Rtv"
	allocatorIDMapping[DsvAllocator] = "Dsv"
}

// AllocInfo describes a contiguous range of descriptor slots
type AllocInfo struct {
	// Allocator is the allocator that owns the range
	Allocator AllocatorID
	// Start is the index of the first slot. For shader-visible ranges it is an index into the
	// shader-visible heap; otherwise it counts across the allocator's CPU heaps.
	Start int
	// Count is the number of slots in the range
	Count int
	// ShaderVisible is true for ranges in the shader-visible heap
	ShaderVisible bool
	// Generation identifies this allocation of the range. Slots that are freed and allocated again
	// receive a new generation, so a stale AllocInfo cannot free the new owner's range.
	Generation uint64
}

// IsEmpty returns true for the zero AllocInfo
func (i AllocInfo) IsEmpty() bool {
	return i.Count == 0
}

// CreateFlags indicate specific allocator behaviors to activate or deactivate
type CreateFlags int32

var createFlagsMapping = common.NewFlagStringMapping[CreateFlags]()

func (f CreateFlags) Register(str string) {
	createFlagsMapping.Register(f, str)
}
func (f CreateFlags) String() string {
	return createFlagsMapping.FlagsToString(f)
}

const (
	// CreateExternallySynchronized ensures that allocators created with this flag will not be
	// synchronized internally. The consumer must guarantee they are used from only one thread at a time.
	CreateExternallySynchronized CreateFlags = 1 << iota
)

func init() {
	CreateExternallySynchronized.Register("CreateExternallySynchronized")
}

const (
	defaultCpuHeapSize    int = 1024
	defaultGpuSectionSize int = 4096
)

// CreateOptions contains optional settings when creating allocators. Zero values select defaults.
type CreateOptions struct {
	Flags CreateFlags

	// CpuHeapSize is the number of slots in each CPU heap, and so the largest CPU range
	CpuHeapSize int
	// GpuSectionSize is the number of slots in each section of the shader-visible heap. The first
	// expansion creates a heap of one section and each later expansion doubles it. It must be a power
	// of two.
	GpuSectionSize int
}

func (o CreateOptions) withDefaults() (CreateOptions, error) {
	if o.CpuHeapSize == 0 {
		o.CpuHeapSize = defaultCpuHeapSize
	}
	if o.GpuSectionSize == 0 {
		o.GpuSectionSize = defaultGpuSectionSize
	}

	if o.CpuHeapSize < 0 {
		return o, errors.Newf("CpuHeapSize must be positive but was %d", o.CpuHeapSize)
	}
	err := memutils.CheckPow2(o.GpuSectionSize, "GpuSectionSize")
	if err != nil {
		return o, err
	}

	return o, nil
}
