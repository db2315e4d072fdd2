// Package vulkan implements platform.Device on top of a vkngwrapper Vulkan device. Arenas are
// vkDeviceMemory blocks, placed resources are buffers and images bound into them at an offset.
// Descriptor heaps are kept in host memory, since Vulkan has no placed descriptor tables outside of
// descriptor buffers.
package vulkan

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/cockroachdb/errors"
	"github.com/vkngwrapper/core/v2/common"
	"github.com/vkngwrapper/core/v2/core1_0"
	"github.com/vkngwrapper/core/v2/core1_1"
	"github.com/vkngwrapper/core/v2/core1_2"
	"github.com/vkngwrapper/core/v2/driver"
	"github.com/vkngwrapper/gpualloc/platform"
	"github.com/vkngwrapper/gpualloc/platform/soft"
	"golang.org/x/exp/slog"
)

// Options configures a vulkan Device. Zero values select defaults.
type Options struct {
	// AllocationCallbacks are passed to every Vulkan create and destroy call
	AllocationCallbacks *driver.AllocationCallbacks
	// DescriptorStride is the size in bytes of one descriptor slot
	DescriptorStride int
	// QueueFamilyIndex is the queue family command pools are created for
	QueueFamilyIndex int
	// ExternallySynchronized turns off the per-arena mapping mutex
	ExternallySynchronized bool
}

// Device is a platform.Device backed by a Vulkan device
type Device struct {
	logger        *slog.Logger
	device        core1_0.Device
	extensionData *ExtensionData
	options       Options

	memoryProperties *core1_0.PhysicalDeviceMemoryProperties
	heapMemoryTypes  [3]int

	mutex  sync.Mutex
	arenas int

	liveResources atomic.Int64
}

var _ platform.Device = &Device{}

// New creates a Device and selects a memory type for every heap type. It fails if the device has no
// memory type suitable for one of them.
func New(logger *slog.Logger, device core1_0.Device, physicalDevice core1_0.PhysicalDevice, options Options) (*Device, error) {
	if options.DescriptorStride == 0 {
		options.DescriptorStride = soft.DefaultDescriptorStride
	}
	if logger == nil {
		logger = slog.Default()
	}

	d := &Device{
		logger:           logger,
		device:           device,
		extensionData:    NewExtensionData(device),
		options:          options,
		memoryProperties: physicalDevice.MemoryProperties(),
	}

	for _, heapType := range []platform.HeapType{platform.HeapTypeDefault, platform.HeapTypeUpload, platform.HeapTypeReadback} {
		preferences, err := heapTypePreferences(heapType)
		if err != nil {
			return nil, err
		}

		memoryTypeIndex, err := findMemoryTypeIndex(d.memoryProperties.MemoryTypes, ^uint32(0), preferences)
		if err != nil {
			return nil, errors.Wrapf(err, "failed to select a memory type for %s", heapType)
		}

		d.heapMemoryTypes[heapType] = memoryTypeIndex
		logger.LogAttrs(context.Background(), slog.LevelDebug, "selected memory type",
			slog.String("HeapType", heapType.String()),
			slog.Int("MemoryTypeIndex", memoryTypeIndex),
			slog.String("Flags", d.memoryProperties.MemoryTypes[memoryTypeIndex].PropertyFlags.String()),
		)
	}

	return d, nil
}

// MemoryTypeIndex returns the Vulkan memory type that backs arenas of the provided heap type
func (d *Device) MemoryTypeIndex(heapType platform.HeapType) int {
	return d.heapMemoryTypes[heapType]
}

// LiveArenas returns the number of arenas that have been created and not destroyed
func (d *Device) LiveArenas() int {
	d.mutex.Lock()
	defer d.mutex.Unlock()

	return d.arenas
}

// LiveResources returns the number of placed resources that have not been destroyed
func (d *Device) LiveResources() int { return int(d.liveResources.Load()) }

func (d *Device) bufferCreateInfo(desc platform.ResourceDesc) core1_0.BufferCreateInfo {
	var usage core1_0.BufferUsageFlags
	if desc.Usage&platform.ResourceUsageCopySource != 0 {
		usage |= core1_0.BufferUsageTransferSrc
	}
	if desc.Usage&platform.ResourceUsageCopyDest != 0 {
		usage |= core1_0.BufferUsageTransferDst
	}
	if desc.Usage&platform.ResourceUsageConstantBuffer != 0 {
		usage |= core1_0.BufferUsageUniformBuffer
	}
	if desc.Usage&(platform.ResourceUsageShaderResource|platform.ResourceUsageUnorderedAccess) != 0 {
		usage |= core1_0.BufferUsageStorageBuffer
	}
	if usage == 0 {
		usage = core1_0.BufferUsageTransferDst
	}
	if d.extensionData.BufferDeviceAddress != nil {
		usage |= core1_2.BufferUsageShaderDeviceAddress
	}

	return core1_0.BufferCreateInfo{
		Size:        desc.Size,
		Usage:       usage,
		SharingMode: core1_0.SharingModeExclusive,
	}
}

var vulkanFormats = map[platform.Format]core1_0.Format{
	platform.FormatR8G8B8A8Unorm:     core1_0.FormatR8G8B8A8UnsignedNormalized,
	platform.FormatR16G16B16A16Float: core1_0.FormatR16G16B16A16SignedFloat,
	platform.FormatR32Float:          core1_0.FormatR32SignedFloat,
	platform.FormatD32Float:          core1_0.FormatD32SignedFloat,
}

func (d *Device) imageCreateInfo(desc platform.ResourceDesc) (core1_0.ImageCreateInfo, error) {
	format, ok := vulkanFormats[desc.Format]
	if !ok {
		return core1_0.ImageCreateInfo{}, errors.Newf("texture format %s has no vulkan equivalent", desc.Format)
	}

	var usage core1_0.ImageUsageFlags
	if desc.Usage&platform.ResourceUsageCopySource != 0 {
		usage |= core1_0.ImageUsageTransferSrc
	}
	if desc.Usage&platform.ResourceUsageCopyDest != 0 {
		usage |= core1_0.ImageUsageTransferDst
	}
	if desc.Usage&platform.ResourceUsageShaderResource != 0 {
		usage |= core1_0.ImageUsageSampled
	}
	if desc.Usage&platform.ResourceUsageUnorderedAccess != 0 {
		usage |= core1_0.ImageUsageStorage
	}
	if desc.Usage&platform.ResourceUsageRenderTarget != 0 {
		usage |= core1_0.ImageUsageColorAttachment
	}
	if desc.Usage&platform.ResourceUsageDepthStencil != 0 {
		usage |= core1_0.ImageUsageDepthStencilAttachment
	}
	if usage == 0 {
		usage = core1_0.ImageUsageSampled
	}

	mipLevels := desc.MipLevels
	if mipLevels < 1 {
		mipLevels = 1
	}

	return core1_0.ImageCreateInfo{
		ImageType: core1_0.ImageType2D,
		Format:    format,
		Extent: core1_0.Extent3D{
			Width:  desc.Width,
			Height: desc.Height,
			Depth:  1,
		},
		MipLevels:     mipLevels,
		ArrayLayers:   1,
		Samples:       core1_0.Samples1,
		Tiling:        core1_0.ImageTilingOptimal,
		Usage:         usage,
		SharingMode:   core1_0.SharingModeExclusive,
		InitialLayout: core1_0.ImageLayoutUndefined,
	}, nil
}

func (d *Device) checkDesc(desc platform.ResourceDesc) error {
	switch desc.Kind {
	case platform.ResourceKindBuffer:
		if desc.Size <= 0 {
			return errors.Newf("buffer size must be positive but was %d", desc.Size)
		}
	case platform.ResourceKindTexture:
		if desc.Width <= 0 || desc.Height <= 0 {
			return errors.Newf("texture dimensions must be positive but were %dx%d", desc.Width, desc.Height)
		}
	default:
		return errors.Newf("unknown resource kind %s", desc.Kind)
	}

	return nil
}

func (d *Device) ResourceAllocationInfo(desc platform.ResourceDesc) (platform.AllocationInfo, error) {
	requirements, err := d.queryRequirements(desc)
	if err != nil {
		return platform.AllocationInfo{}, err
	}

	return platform.AllocationInfo{
		Size:      requirements.Size,
		Alignment: requirements.Alignment,
	}, nil
}

// queryRequirements creates a temporary buffer or image to read the memory requirements of desc
func (d *Device) queryRequirements(desc platform.ResourceDesc) (*core1_0.MemoryRequirements, error) {
	err := d.checkDesc(desc)
	if err != nil {
		return nil, err
	}

	if desc.Kind == platform.ResourceKindBuffer {
		buffer, _, err := d.device.CreateBuffer(d.options.AllocationCallbacks, d.bufferCreateInfo(desc))
		if err != nil {
			return nil, errors.Wrap(err, "failed to create temporary buffer")
		}
		defer buffer.Destroy(d.options.AllocationCallbacks)

		return buffer.MemoryRequirements(), nil
	}

	imageInfo, err := d.imageCreateInfo(desc)
	if err != nil {
		return nil, err
	}

	image, _, err := d.device.CreateImage(d.options.AllocationCallbacks, imageInfo)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create temporary image")
	}
	defer image.Destroy(d.options.AllocationCallbacks)

	return image.MemoryRequirements(), nil
}

func (d *Device) CreateArena(heapType platform.HeapType, size int) (platform.Arena, error) {
	if heapType < platform.HeapTypeDefault || heapType > platform.HeapTypeReadback {
		return nil, errors.Newf("unknown heap type %s", heapType)
	}
	if size <= 0 {
		return nil, errors.Newf("arena size must be positive but was %d", size)
	}

	allocInfo := core1_0.MemoryAllocateInfo{
		AllocationSize:  size,
		MemoryTypeIndex: d.heapMemoryTypes[heapType],
	}

	if d.extensionData.BufferDeviceAddress != nil {
		allocFlagsInfo := core1_1.MemoryAllocateFlagsInfo{
			Flags: core1_2.MemoryAllocateDeviceAddress,
		}
		allocFlagsInfo.Next = allocInfo.Next
		allocInfo.Next = allocFlagsInfo
	}

	memory, res, err := allocateSyncMemory(d.device, !d.options.ExternallySynchronized, d.options.AllocationCallbacks, allocInfo)
	if err != nil {
		if res == core1_0.VKErrorOutOfDeviceMemory || res == core1_0.VKErrorOutOfHostMemory {
			return nil, errors.Mark(errors.Wrapf(err, "failed to allocate %d bytes of %s", size, heapType), platform.ErrOutOfDeviceMemory)
		}
		return nil, errors.Wrapf(err, "failed to allocate %d bytes of %s", size, heapType)
	}

	d.mutex.Lock()
	d.arenas++
	d.mutex.Unlock()

	return &Arena{
		device:          d,
		heapType:        heapType,
		size:            size,
		memoryTypeIndex: allocInfo.MemoryTypeIndex,
		memory:          memory,
	}, nil
}

func (d *Device) CreatePlacedResource(arena platform.Arena, offset int, desc platform.ResourceDesc) (platform.Resource, error) {
	vkArena, ok := arena.(*Arena)
	if !ok || vkArena.device != d {
		return nil, errors.New("arena was not created by this device")
	}
	if vkArena.destroyed.Load() {
		return nil, errors.New("arena has been destroyed")
	}

	err := d.checkDesc(desc)
	if err != nil {
		return nil, err
	}

	resource := &Resource{
		arena:  vkArena,
		offset: offset,
		desc:   desc,
	}

	var requirements *core1_0.MemoryRequirements
	var res common.VkResult
	if desc.Kind == platform.ResourceKindBuffer {
		resource.buffer, _, err = d.device.CreateBuffer(d.options.AllocationCallbacks, d.bufferCreateInfo(desc))
		if err != nil {
			return nil, errors.Wrap(err, "failed to create buffer")
		}
		requirements = resource.buffer.MemoryRequirements()
	} else {
		imageInfo, err := d.imageCreateInfo(desc)
		if err != nil {
			return nil, err
		}
		resource.image, _, err = d.device.CreateImage(d.options.AllocationCallbacks, imageInfo)
		if err != nil {
			return nil, errors.Wrap(err, "failed to create image")
		}
		requirements = resource.image.MemoryRequirements()
	}
	resource.size = requirements.Size

	if requirements.MemoryTypeBits&(1<<vkArena.memoryTypeIndex) == 0 {
		resource.destroyObject()
		return nil, errors.Newf("resource cannot be placed in memory type %d", vkArena.memoryTypeIndex)
	}
	if requirements.Alignment > 0 && offset%requirements.Alignment != 0 {
		resource.destroyObject()
		return nil, errors.Newf("offset %d does not satisfy alignment %d", offset, requirements.Alignment)
	}
	if offset < 0 || offset+requirements.Size > vkArena.size {
		resource.destroyObject()
		return nil, errors.Newf("resource of %d bytes at offset %d does not fit in an arena of %d bytes", requirements.Size, offset, vkArena.size)
	}

	if resource.buffer != nil {
		res, err = vkArena.memory.bindBuffer(offset, resource.buffer)
	} else {
		res, err = vkArena.memory.bindImage(offset, resource.image)
	}
	if err != nil {
		resource.destroyObject()
		return nil, errors.Wrapf(err, "failed to bind resource memory: %s", res)
	}

	vkArena.placed.Add(1)
	d.liveResources.Add(1)
	return resource, nil
}

func (d *Device) CreateDescriptorHeap(kind platform.DescriptorHeapKind, capacity int, shaderVisible bool) (platform.DescriptorHeap, error) {
	return soft.NewDescriptorHeap(kind, capacity, d.options.DescriptorStride, shaderVisible)
}

func (d *Device) CreateCommandContext() (platform.CommandContext, error) {
	pool, res, err := d.device.CreateCommandPool(d.options.AllocationCallbacks, core1_0.CommandPoolCreateInfo{
		Flags:            core1_0.CommandPoolCreateTransient,
		QueueFamilyIndex: d.options.QueueFamilyIndex,
	})
	if err != nil {
		return nil, errors.Wrapf(err, "failed to create command pool: %s", res)
	}

	return &CommandContext{
		pool:      pool,
		callbacks: d.options.AllocationCallbacks,
	}, nil
}
