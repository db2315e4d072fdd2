package platform

import (
	"github.com/vkngwrapper/core/v2/common"
)

// HeapType identifies which kind of backing memory an arena is carved from
type HeapType int32

const (
	// HeapTypeDefault is device-local memory that the CPU cannot address
	HeapTypeDefault HeapType = iota
	// HeapTypeUpload is host-visible, write-combined memory used to stage data for the GPU
	HeapTypeUpload
	// HeapTypeReadback is host-visible, host-cached memory used to read results back from the GPU
	HeapTypeReadback
)

var heapTypeMapping = make(map[HeapType]string)

func (t HeapType) String() string {
	str, ok := heapTypeMapping[t]
	if !ok {
		return "unknown"
	}
	return str
}

// HostVisible returns true for heap types whose resources can be mapped by the CPU
func (t HeapType) HostVisible() bool {
	return t == HeapTypeUpload || t == HeapTypeReadback
}

// ResourceKind distinguishes linear buffers from textures
type ResourceKind int32

const (
	ResourceKindBuffer ResourceKind = iota
	ResourceKindTexture
)

var resourceKindMapping = make(map[ResourceKind]string)

func (k ResourceKind) String() string {
	str, ok := resourceKindMapping[k]
	if !ok {
		return "unknown"
	}
	return str
}

// DescriptorHeapKind identifies the kind of descriptors a descriptor heap holds. Hardware requires
// every heap to be homogeneous.
type DescriptorHeapKind int32

const (
	DescriptorHeapCbvSrvUav DescriptorHeapKind = iota
	DescriptorHeapRtv
	DescriptorHeapDsv
)

var descriptorHeapKindMapping = make(map[DescriptorHeapKind]string)

func (k DescriptorHeapKind) String() string {
	str, ok := descriptorHeapKindMapping[k]
	if !ok {
		return "unknown"
	}
	return str
}

// CanBeShaderVisible returns true for descriptor kinds that can live in a shader-visible heap
func (k DescriptorHeapKind) CanBeShaderVisible() bool {
	return k == DescriptorHeapCbvSrvUav
}

// Format is the texel format of a texture
type Format int32

const (
	FormatUnknown Format = iota
	FormatR8G8B8A8Unorm
	FormatR16G16B16A16Float
	FormatR32Float
	FormatD32Float
)

var formatMapping = make(map[Format]string)
var formatTexelSizes = make(map[Format]int)

func (f Format) String() string {
	str, ok := formatMapping[f]
	if !ok {
		return "unknown"
	}
	return str
}

// TexelSize is the number of bytes occupied by a single texel, or 0 for FormatUnknown
func (f Format) TexelSize() int {
	return formatTexelSizes[f]
}

// ResourceUsageFlags describe how a resource will be bound
type ResourceUsageFlags int32

var resourceUsageMapping = common.NewFlagStringMapping[ResourceUsageFlags]()

func (f ResourceUsageFlags) Register(str string) {
	resourceUsageMapping.Register(f, str)
}
func (f ResourceUsageFlags) String() string {
	return resourceUsageMapping.FlagsToString(f)
}

const (
	ResourceUsageCopySource ResourceUsageFlags = 1 << iota
	ResourceUsageCopyDest
	ResourceUsageConstantBuffer
	ResourceUsageShaderResource
	ResourceUsageUnorderedAccess
	ResourceUsageRenderTarget
	ResourceUsageDepthStencil
)

func init() {
	heapTypeMapping[HeapTypeDefault] = "HeapTypeDefault"
	heapTypeMapping[HeapTypeUpload] = "HeapTypeUpload"
	heapTypeMapping[HeapTypeReadback] = "HeapTypeReadback"

	resourceKindMapping[ResourceKindBuffer] = "ResourceKindBuffer"
	resourceKindMapping[ResourceKindTexture] = "ResourceKindTexture"

	descriptorHeapKindMapping[DescriptorHeapCbvSrvUav] = "DescriptorHeapCbvSrvUav"
	descriptorHeapKindMapping[DescriptorHeapRtv] = "DescriptorHeapRtv"
	descriptorHeapKindMapping[DescriptorHeapDsv] = "DescriptorHeapDsv"

	formatMapping[FormatUnknown] = "FormatUnknown"
	formatMapping[FormatR8G8B8A8Unorm] = "FormatR8G8B8A8Unorm"
	formatMapping[FormatR16G16B16A16Float] = "FormatR16G16B16A16Float"
	formatMapping[FormatR32Float] = "FormatR32Float"
	formatMapping[FormatD32Float] = "FormatD32Float"

	formatTexelSizes[FormatR8G8B8A8Unorm] = 4
	formatTexelSizes[FormatR16G16B16A16Float] = 8
	formatTexelSizes[FormatR32Float] = 4
	formatTexelSizes[FormatD32Float] = 4

	ResourceUsageCopySource.Register("CopySource")
	ResourceUsageCopyDest.Register("CopyDest")
	ResourceUsageConstantBuffer.Register("ConstantBuffer")
	ResourceUsageShaderResource.Register("ShaderResource")
	ResourceUsageUnorderedAccess.Register("UnorderedAccess")
	ResourceUsageRenderTarget.Register("RenderTarget")
	ResourceUsageDepthStencil.Register("DepthStencil")
}

// ResourceDesc describes a buffer or texture to be placed in an arena. Buffers use Size, textures use
// the dimensions and Format.
type ResourceDesc struct {
	Kind  ResourceKind
	Usage ResourceUsageFlags

	Size int

	Width     int
	Height    int
	MipLevels int
	Format    Format
}

// BufferDesc builds the ResourceDesc for a linear buffer
func BufferDesc(size int, usage ResourceUsageFlags) ResourceDesc {
	return ResourceDesc{
		Kind:  ResourceKindBuffer,
		Usage: usage,
		Size:  size,
	}
}

// TextureDesc builds the ResourceDesc for a 2D texture with a single mip level
func TextureDesc(width, height int, format Format, usage ResourceUsageFlags) ResourceDesc {
	return ResourceDesc{
		Kind:      ResourceKindTexture,
		Usage:     usage,
		Width:     width,
		Height:    height,
		MipLevels: 1,
		Format:    format,
	}
}

// AllocationInfo is the size and placement alignment a device requires for a resource
type AllocationInfo struct {
	Size      int
	Alignment int
}

// CPUDescriptorHandle addresses a descriptor slot from the CPU
type CPUDescriptorHandle struct {
	Ptr uintptr
}

// Offset returns the handle count slots further along a heap with the provided stride
func (h CPUDescriptorHandle) Offset(count, stride int) CPUDescriptorHandle {
	return CPUDescriptorHandle{Ptr: h.Ptr + uintptr(count*stride)}
}

// GPUDescriptorHandle addresses a descriptor slot in a shader-visible heap from the GPU
type GPUDescriptorHandle struct {
	Ptr uint64
}

// Offset returns the handle count slots further along a heap with the provided stride
func (h GPUDescriptorHandle) Offset(count, stride int) GPUDescriptorHandle {
	return GPUDescriptorHandle{Ptr: h.Ptr + uint64(count*stride)}
}
