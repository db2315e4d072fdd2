package soft

import (
	"sync"
	"unsafe"

	"github.com/cockroachdb/errors"
	"github.com/vkngwrapper/gpualloc/platform"
)

// Arena is a block of host memory standing in for a GPU heap
type Arena struct {
	device     *Device
	id         uint64
	heapType   platform.HeapType
	memory     []byte
	release    func([]byte) error
	gpuAddress uint64

	mutex     sync.Mutex
	placed    []*Resource
	destroyed bool
}

var _ platform.Arena = &Arena{}

func (a *Arena) HeapType() platform.HeapType { return a.heapType }
func (a *Arena) Size() int                   { return len(a.memory) }

// GPUAddress is the base virtual address the arena would occupy on a GPU
func (a *Arena) GPUAddress() uint64 { return a.gpuAddress }

// Bytes exposes the arena's backing memory
func (a *Arena) Bytes() []byte { return a.memory }

// PlacedCount is the number of live resources placed in the arena
func (a *Arena) PlacedCount() int {
	a.mutex.Lock()
	defer a.mutex.Unlock()

	return len(a.placed)
}

func (a *Arena) place(offset, size int, desc platform.ResourceDesc) (*Resource, error) {
	a.mutex.Lock()
	defer a.mutex.Unlock()

	if a.destroyed {
		return nil, errors.New("attempted to place a resource in a destroyed arena")
	}
	if offset < 0 || offset+size > len(a.memory) {
		return nil, errors.Newf("resource of %d bytes at offset %d does not fit in an arena of %d bytes", size, offset, len(a.memory))
	}

	for _, other := range a.placed {
		if offset < other.offset+other.size && other.offset < offset+size {
			return nil, errors.Wrapf(ErrOverlappingPlacement, "[%d, %d) overlaps [%d, %d)", offset, offset+size, other.offset, other.offset+other.size)
		}
	}

	resource := &Resource{
		arena:  a,
		offset: offset,
		size:   size,
		desc:   desc,
	}
	a.placed = append(a.placed, resource)
	return resource, nil
}

func (a *Arena) remove(resource *Resource) error {
	a.mutex.Lock()
	defer a.mutex.Unlock()

	for i, placed := range a.placed {
		if placed == resource {
			a.placed = append(a.placed[:i], a.placed[i+1:]...)
			return nil
		}
	}

	return errors.New("resource is not placed in this arena")
}

func (a *Arena) Destroy() error {
	a.mutex.Lock()
	defer a.mutex.Unlock()

	if a.destroyed {
		return errors.New("arena was destroyed twice")
	}
	if len(a.placed) > 0 {
		return errors.Newf("arena still has %d live resources placed in it", len(a.placed))
	}

	a.destroyed = true
	a.device.destroyArena(a)
	return a.release(a.memory)
}

// Resource is a buffer or texture placed in an Arena
type Resource struct {
	arena     *Arena
	offset    int
	size      int
	desc      platform.ResourceDesc
	mapped    bool
	destroyed bool
}

var _ platform.Resource = &Resource{}

func (r *Resource) Desc() platform.ResourceDesc { return r.desc }
func (r *Resource) Size() int                   { return r.size }
func (r *Resource) Offset() int                 { return r.offset }
func (r *Resource) Arena() *Arena               { return r.arena }
func (r *Resource) GPUAddress() uint64          { return r.arena.gpuAddress + uint64(r.offset) }

func (r *Resource) Map() (unsafe.Pointer, error) {
	if !r.arena.heapType.HostVisible() {
		return nil, errors.Wrapf(platform.ErrNotMappable, "resource lives in a %s arena", r.arena.heapType)
	}
	if r.destroyed {
		return nil, errors.New("attempted to map a destroyed resource")
	}

	r.mapped = true
	return unsafe.Pointer(&r.arena.memory[r.offset]), nil
}

func (r *Resource) Unmap() error {
	if !r.mapped {
		return errors.New("attempted to unmap a resource that is not mapped")
	}

	r.mapped = false
	return nil
}

func (r *Resource) Destroy() error {
	if r.destroyed {
		return errors.New("resource was destroyed twice")
	}

	err := r.arena.remove(r)
	if err != nil {
		return err
	}

	r.destroyed = true
	r.mapped = false
	r.arena.device.liveResources.Add(-1)
	return nil
}
