package platform

import "github.com/cockroachdb/errors"

// ErrOutOfDeviceMemory is returned by devices that cannot create an arena or resource because their
// backing memory is exhausted
var ErrOutOfDeviceMemory = errors.New("out of device memory")

// ErrNotMappable is returned when mapping a resource that does not live in a host-visible heap
var ErrNotMappable = errors.New("resource is not host visible")

// ErrDescriptorOutOfRange is returned when addressing a descriptor slot past the end of its heap
var ErrDescriptorOutOfRange = errors.New("descriptor index out of range")
