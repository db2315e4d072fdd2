package soft

import (
	"sync/atomic"
	"unsafe"

	"github.com/bytedance/gopkg/lang/mcache"
	"github.com/cockroachdb/errors"
	"github.com/vkngwrapper/gpualloc/platform"
)

var nextDescriptorHeapID uint64

// DescriptorHeap is a table of fixed-stride descriptor slots stored in host memory. Shader-visible heaps
// receive a distinct fake GPU base address so that handles from different heaps never compare equal.
type DescriptorHeap struct {
	kind          platform.DescriptorHeapKind
	capacity      int
	stride        int
	shaderVisible bool

	storage   []byte
	gpuBase   uint64
	destroyed bool
	onDestroy func()
}

var _ platform.DescriptorHeap = &DescriptorHeap{}

// NewDescriptorHeap creates a DescriptorHeap directly, without a Device. Other device implementations
// use it for descriptor storage when the underlying API has no descriptor heap object.
func NewDescriptorHeap(kind platform.DescriptorHeapKind, capacity, stride int, shaderVisible bool) (*DescriptorHeap, error) {
	if capacity <= 0 {
		return nil, errors.Newf("descriptor heap capacity must be positive but was %d", capacity)
	}
	if stride <= 0 {
		return nil, errors.Newf("descriptor stride must be positive but was %d", stride)
	}
	if shaderVisible && !kind.CanBeShaderVisible() {
		return nil, errors.Newf("%s descriptor heaps cannot be shader visible", kind)
	}

	storage := mcache.Malloc(capacity * stride)
	for i := range storage {
		storage[i] = 0
	}

	heap := &DescriptorHeap{
		kind:          kind,
		capacity:      capacity,
		stride:        stride,
		shaderVisible: shaderVisible,
		storage:       storage,
	}

	if shaderVisible {
		heap.gpuBase = atomic.AddUint64(&nextDescriptorHeapID, 1) << 40
	}

	return heap, nil
}

func (h *DescriptorHeap) Kind() platform.DescriptorHeapKind { return h.kind }
func (h *DescriptorHeap) Capacity() int                     { return h.capacity }
func (h *DescriptorHeap) Stride() int                       { return h.stride }
func (h *DescriptorHeap) ShaderVisible() bool               { return h.shaderVisible }

func (h *DescriptorHeap) checkRange(index, count int) error {
	if h.destroyed {
		return errors.New("descriptor heap has been destroyed")
	}
	if index < 0 || count < 0 || index+count > h.capacity {
		return errors.Wrapf(platform.ErrDescriptorOutOfRange, "descriptors [%d, %d) in a heap of %d", index, index+count, h.capacity)
	}
	return nil
}

func (h *DescriptorHeap) CPUHandle(index int) platform.CPUDescriptorHandle {
	base := platform.CPUDescriptorHandle{Ptr: uintptr(unsafe.Pointer(&h.storage[0]))}
	return base.Offset(index, h.stride)
}

func (h *DescriptorHeap) GPUHandle(index int) platform.GPUDescriptorHandle {
	if !h.shaderVisible {
		return platform.GPUDescriptorHandle{}
	}

	base := platform.GPUDescriptorHandle{Ptr: h.gpuBase}
	return base.Offset(index, h.stride)
}

func (h *DescriptorHeap) slot(index int) []byte {
	return h.storage[index*h.stride : (index+1)*h.stride]
}

func (h *DescriptorHeap) WriteDescriptor(index int, payload []byte) error {
	err := h.checkRange(index, 1)
	if err != nil {
		return err
	}
	if len(payload) > h.stride {
		return errors.Newf("descriptor payload of %d bytes exceeds the stride of %d bytes", len(payload), h.stride)
	}

	slot := h.slot(index)
	n := copy(slot, payload)
	for i := n; i < len(slot); i++ {
		slot[i] = 0
	}
	return nil
}

func (h *DescriptorHeap) ReadDescriptor(index int) ([]byte, error) {
	err := h.checkRange(index, 1)
	if err != nil {
		return nil, err
	}

	out := make([]byte, h.stride)
	copy(out, h.slot(index))
	return out, nil
}

func (h *DescriptorHeap) CopyFrom(dstIndex int, src platform.DescriptorHeap, srcIndex, count int) error {
	source, ok := src.(*DescriptorHeap)
	if !ok {
		return errors.New("source descriptor heap is not host backed")
	}
	if source.shaderVisible {
		return errors.New("shader-visible descriptor heaps cannot be used as a copy source")
	}
	if source.kind != h.kind {
		return errors.Newf("cannot copy %s descriptors into a %s heap", source.kind, h.kind)
	}
	if source.stride != h.stride {
		return errors.Newf("source stride %d does not match destination stride %d", source.stride, h.stride)
	}

	err := h.checkRange(dstIndex, count)
	if err != nil {
		return err
	}
	err = source.checkRange(srcIndex, count)
	if err != nil {
		return err
	}

	copy(h.storage[dstIndex*h.stride:(dstIndex+count)*h.stride], source.storage[srcIndex*h.stride:(srcIndex+count)*h.stride])
	return nil
}

func (h *DescriptorHeap) Destroy() error {
	if h.destroyed {
		return errors.New("descriptor heap was destroyed twice")
	}

	h.destroyed = true
	mcache.Free(h.storage)
	h.storage = nil

	if h.onDestroy != nil {
		h.onDestroy()
	}
	return nil
}
