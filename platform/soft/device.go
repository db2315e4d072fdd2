// Package soft implements platform.Device entirely in host memory. It behaves like a device with a
// single unified memory pool: every arena is addressable by the CPU, although only resources in
// host-visible heap types may be mapped. It is used by tests and by gpuallocctl to drive the allocation
// core without a GPU.
package soft

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/cockroachdb/errors"
	"github.com/dolthub/swiss"
	"github.com/vkngwrapper/gpualloc/memutils"
	"github.com/vkngwrapper/gpualloc/platform"
	"golang.org/x/exp/slog"
)

const (
	// DefaultPlacementAlignment is the alignment of every placed resource, matching the 64KiB resource
	// placement alignment of desktop GPUs
	DefaultPlacementAlignment int = 64 * 1024
	// DefaultDescriptorStride is the size in bytes of one descriptor slot
	DefaultDescriptorStride int = 32
	// bufferSizeGranularity is the granularity that buffer sizes are rounded up to
	bufferSizeGranularity uint = 256

	gpuAddressBase uint64 = 1 << 32
)

// ErrOverlappingPlacement is returned when a resource is placed over a region of an arena that
// another live resource already occupies
var ErrOverlappingPlacement = errors.New("placed resource overlaps a live resource")

// Options configures a soft Device. Zero values select defaults.
type Options struct {
	// MemoryBudget is the maximum number of arena bytes that may be live at once. Zero means no limit.
	MemoryBudget int
	// PlacementAlignment is the alignment reported for every resource
	PlacementAlignment int
	// DescriptorStride is the size in bytes of one descriptor slot
	DescriptorStride int
}

// Device is a platform.Device backed by host memory
type Device struct {
	logger  *slog.Logger
	options Options

	mutex          sync.Mutex
	arenas         *swiss.Map[uint64, *Arena]
	nextObjectID   uint64
	nextGPUAddress uint64
	memoryInUse    int

	liveResources      atomic.Int64
	liveDescriptorHeap atomic.Int64
	liveContexts       atomic.Int64
}

var _ platform.Device = &Device{}

// New creates a soft Device
func New(logger *slog.Logger, options Options) (*Device, error) {
	if options.PlacementAlignment == 0 {
		options.PlacementAlignment = DefaultPlacementAlignment
	}
	if options.DescriptorStride == 0 {
		options.DescriptorStride = DefaultDescriptorStride
	}
	if options.MemoryBudget < 0 {
		return nil, errors.Newf("memory budget must not be negative but was %d", options.MemoryBudget)
	}
	err := memutils.CheckPow2(options.PlacementAlignment, "PlacementAlignment")
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &Device{
		logger:         logger,
		options:        options,
		arenas:         swiss.NewMap[uint64, *Arena](16),
		nextGPUAddress: gpuAddressBase,
	}, nil
}

// MemoryInUse is the number of arena bytes currently live
func (d *Device) MemoryInUse() int {
	d.mutex.Lock()
	defer d.mutex.Unlock()

	return d.memoryInUse
}

// LiveArenas is the number of arenas that have been created and not destroyed
func (d *Device) LiveArenas() int {
	d.mutex.Lock()
	defer d.mutex.Unlock()

	return d.arenas.Count()
}

// LiveResources is the number of placed resources that have been created and not destroyed
func (d *Device) LiveResources() int { return int(d.liveResources.Load()) }

// LiveDescriptorHeaps is the number of descriptor heaps that have been created and not destroyed
func (d *Device) LiveDescriptorHeaps() int { return int(d.liveDescriptorHeap.Load()) }

// LiveCommandContexts is the number of command contexts that have been created and not destroyed
func (d *Device) LiveCommandContexts() int { return int(d.liveContexts.Load()) }

func (d *Device) ResourceAllocationInfo(desc platform.ResourceDesc) (platform.AllocationInfo, error) {
	alignment := d.options.PlacementAlignment

	switch desc.Kind {
	case platform.ResourceKindBuffer:
		if desc.Size <= 0 {
			return platform.AllocationInfo{}, errors.Newf("buffer size must be positive but was %d", desc.Size)
		}
		return platform.AllocationInfo{
			Size:      memutils.AlignUp(desc.Size, bufferSizeGranularity),
			Alignment: alignment,
		}, nil
	case platform.ResourceKindTexture:
		texelSize := desc.Format.TexelSize()
		if texelSize == 0 {
			return platform.AllocationInfo{}, errors.Newf("texture format %s has no texel size", desc.Format)
		}
		if desc.Width <= 0 || desc.Height <= 0 {
			return platform.AllocationInfo{}, errors.Newf("texture dimensions %dx%d are invalid", desc.Width, desc.Height)
		}

		mipLevels := desc.MipLevels
		if mipLevels < 1 {
			mipLevels = 1
		}

		size := 0
		width, height := desc.Width, desc.Height
		for level := 0; level < mipLevels; level++ {
			size += width * height * texelSize
			if width > 1 {
				width /= 2
			}
			if height > 1 {
				height /= 2
			}
		}

		return platform.AllocationInfo{
			Size:      memutils.AlignUp(size, uint(alignment)),
			Alignment: alignment,
		}, nil
	}

	return platform.AllocationInfo{}, errors.Newf("unknown resource kind %s", desc.Kind)
}

func (d *Device) CreateArena(heapType platform.HeapType, size int) (platform.Arena, error) {
	if size <= 0 {
		return nil, errors.Newf("arena size must be positive but was %d", size)
	}

	d.mutex.Lock()
	defer d.mutex.Unlock()

	if d.options.MemoryBudget > 0 && d.memoryInUse+size > d.options.MemoryBudget {
		return nil, errors.Wrapf(platform.ErrOutOfDeviceMemory, "arena of %d bytes would exceed the budget of %d bytes with %d bytes in use", size, d.options.MemoryBudget, d.memoryInUse)
	}

	memory, release, err := allocateHostMemory(size)
	if err != nil {
		return nil, err
	}

	d.nextObjectID++
	arena := &Arena{
		device:     d,
		id:         d.nextObjectID,
		heapType:   heapType,
		memory:     memory,
		release:    release,
		gpuAddress: d.nextGPUAddress,
	}
	d.nextGPUAddress += uint64(memutils.AlignUp(size, uint(d.options.PlacementAlignment)))
	d.memoryInUse += size
	d.arenas.Put(arena.id, arena)

	d.logger.LogAttrs(context.Background(), slog.LevelDebug, "soft device created arena",
		slog.Uint64("id", arena.id),
		slog.String("heapType", heapType.String()),
		slog.Int("size", size),
	)

	return arena, nil
}

func (d *Device) destroyArena(arena *Arena) {
	d.mutex.Lock()
	defer d.mutex.Unlock()

	d.arenas.Delete(arena.id)
	d.memoryInUse -= len(arena.memory)
}

func (d *Device) CreatePlacedResource(arena platform.Arena, offset int, desc platform.ResourceDesc) (platform.Resource, error) {
	softArena, ok := arena.(*Arena)
	if !ok || softArena.device != d {
		return nil, errors.New("arena was not created by this device")
	}

	info, err := d.ResourceAllocationInfo(desc)
	if err != nil {
		return nil, err
	}

	if offset%info.Alignment != 0 {
		return nil, errors.Newf("offset %d does not satisfy placement alignment %d", offset, info.Alignment)
	}

	resource, err := softArena.place(offset, info.Size, desc)
	if err != nil {
		return nil, err
	}

	d.liveResources.Add(1)
	return resource, nil
}

func (d *Device) CreateDescriptorHeap(kind platform.DescriptorHeapKind, capacity int, shaderVisible bool) (platform.DescriptorHeap, error) {
	heap, err := NewDescriptorHeap(kind, capacity, d.options.DescriptorStride, shaderVisible)
	if err != nil {
		return nil, err
	}

	heap.onDestroy = func() { d.liveDescriptorHeap.Add(-1) }
	d.liveDescriptorHeap.Add(1)
	return heap, nil
}

func (d *Device) CreateCommandContext() (platform.CommandContext, error) {
	d.mutex.Lock()
	d.nextObjectID++
	id := d.nextObjectID
	d.mutex.Unlock()

	d.liveContexts.Add(1)
	return &CommandContext{device: d, id: id}, nil
}
