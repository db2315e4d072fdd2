package vulkan

import (
	"sync/atomic"
	"unsafe"

	"github.com/cockroachdb/errors"
	"github.com/vkngwrapper/core/v2/core1_0"
	"github.com/vkngwrapper/core/v2/core1_2"
	"github.com/vkngwrapper/gpualloc/platform"
	"golang.org/x/exp/slog"
)

// Arena is a single vkDeviceMemory allocation
type Arena struct {
	device          *Device
	heapType        platform.HeapType
	size            int
	memoryTypeIndex int
	memory          *syncMemory

	placed    atomic.Int64
	destroyed atomic.Bool
}

var _ platform.Arena = &Arena{}

func (a *Arena) HeapType() platform.HeapType { return a.heapType }
func (a *Arena) Size() int                   { return a.size }
func (a *Arena) MemoryTypeIndex() int        { return a.memoryTypeIndex }

// DeviceMemory returns the underlying vkDeviceMemory
func (a *Arena) DeviceMemory() core1_0.DeviceMemory { return a.memory.memory }

// PlacedCount returns the number of resources currently bound into the arena
func (a *Arena) PlacedCount() int { return int(a.placed.Load()) }

func (a *Arena) Destroy() error {
	if a.placed.Load() > 0 {
		return errors.Newf("arena still holds %d placed resources", a.placed.Load())
	}
	if !a.destroyed.CompareAndSwap(false, true) {
		return errors.New("arena was destroyed twice")
	}

	a.memory.free()

	a.device.mutex.Lock()
	a.device.arenas--
	a.device.mutex.Unlock()
	return nil
}

// Resource is a buffer or image bound into an Arena
type Resource struct {
	arena  *Arena
	offset int
	size   int
	desc   platform.ResourceDesc

	buffer core1_0.Buffer
	image  core1_0.Image

	mapped    bool
	destroyed bool
}

var _ platform.Resource = &Resource{}

func (r *Resource) Desc() platform.ResourceDesc { return r.desc }
func (r *Resource) Size() int                   { return r.size }
func (r *Resource) Offset() int                 { return r.offset }
func (r *Resource) Buffer() core1_0.Buffer      { return r.buffer }
func (r *Resource) Image() core1_0.Image        { return r.image }

// GPUAddress returns the buffer device address of a buffer, or 0 for images and for devices without
// buffer device address support
func (r *Resource) GPUAddress() uint64 {
	bufferDeviceAddress := r.arena.device.extensionData.BufferDeviceAddress
	if r.buffer == nil || bufferDeviceAddress == nil {
		return 0
	}

	address, err := bufferDeviceAddress.GetBufferDeviceAddress(core1_2.BufferDeviceAddressInfo{
		Buffer: r.buffer,
	})
	if err != nil {
		r.arena.device.logger.Error("failed to query buffer device address", slog.Any("error", err))
		return 0
	}
	return address
}

func (r *Resource) Map() (unsafe.Pointer, error) {
	if !r.arena.heapType.HostVisible() {
		return nil, errors.Wrapf(platform.ErrNotMappable, "resource lives in %s", r.arena.heapType)
	}
	if r.destroyed {
		return nil, errors.New("attempted to map a destroyed resource")
	}
	if r.mapped {
		return nil, errors.New("resource is already mapped")
	}

	data, res, err := r.arena.memory.mapMemory(1)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to map arena memory: %s", res)
	}

	r.mapped = true
	return unsafe.Add(data, r.offset), nil
}

func (r *Resource) Unmap() error {
	if !r.mapped {
		return errors.New("resource is not mapped")
	}

	r.mapped = false
	return r.arena.memory.unmapMemory(1)
}

func (r *Resource) destroyObject() {
	callbacks := r.arena.device.options.AllocationCallbacks
	if r.buffer != nil {
		r.buffer.Destroy(callbacks)
	}
	if r.image != nil {
		r.image.Destroy(callbacks)
	}
}

func (r *Resource) Destroy() error {
	if r.destroyed {
		return errors.New("resource was destroyed twice")
	}

	if r.mapped {
		err := r.Unmap()
		if err != nil {
			return err
		}
	}

	r.destroyObject()
	r.destroyed = true
	r.arena.placed.Add(-1)
	r.arena.device.liveResources.Add(-1)
	return nil
}
