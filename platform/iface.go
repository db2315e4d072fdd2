package platform

//go:generate mockgen -source iface.go -destination ./mocks/platform.go -package mock_platform

import "unsafe"

// Device is the graphics device boundary. Implementations create backing arenas, place resources
// inside them and create descriptor heaps and command recording contexts. Failures are returned as
// errors and are not recovered from by this module.
type Device interface {
	// ResourceAllocationInfo reports the size and alignment a resource requires when placed in an arena
	ResourceAllocationInfo(desc ResourceDesc) (AllocationInfo, error)
	// CreateArena creates a backing arena of size bytes from the provided heap type
	CreateArena(heapType HeapType, size int) (Arena, error)
	// CreatePlacedResource creates a resource inside arena at offset. The caller guarantees the region
	// is reserved and suitably aligned.
	CreatePlacedResource(arena Arena, offset int, desc ResourceDesc) (Resource, error)
	// CreateDescriptorHeap creates a heap of capacity fixed-stride descriptor slots
	CreateDescriptorHeap(kind DescriptorHeapKind, capacity int, shaderVisible bool) (DescriptorHeap, error)
	// CreateCommandContext creates a command recording context
	CreateCommandContext() (CommandContext, error)
}

// Arena is a block of backing memory that resources are placed in
type Arena interface {
	HeapType() HeapType
	Size() int
	Destroy() error
}

// Resource is a buffer or texture placed in an Arena
type Resource interface {
	Desc() ResourceDesc
	Size() int
	GPUAddress() uint64
	// Map returns a host pointer to the start of the resource. Only resources in host-visible heaps
	// can be mapped.
	Map() (unsafe.Pointer, error)
	Unmap() error
	Destroy() error
}

// DescriptorHeap is a contiguous table of fixed-stride descriptor slots
type DescriptorHeap interface {
	Kind() DescriptorHeapKind
	Capacity() int
	Stride() int
	ShaderVisible() bool

	CPUHandle(index int) CPUDescriptorHandle
	// GPUHandle returns the zero handle for heaps that are not shader visible
	GPUHandle(index int) GPUDescriptorHandle

	WriteDescriptor(index int, payload []byte) error
	ReadDescriptor(index int) ([]byte, error)
	// CopyFrom copies count descriptors from src beginning at srcIndex into this heap beginning at dstIndex
	CopyFrom(dstIndex int, src DescriptorHeap, srcIndex, count int) error

	Destroy() error
}

// CommandContext is a command recording context that can be recycled once the GPU has finished
// executing the commands recorded into it
type CommandContext interface {
	Reset() error
	Destroy() error
}

// Fence reports the last value the GPU has signaled
type Fence interface {
	CompletedValue() uint64
}

// Queue accepts fence signals in submission order
type Queue interface {
	Signal(value uint64) error
}
