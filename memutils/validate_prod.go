//go:build !debug_mem_utils

package memutils

// DebugValidate will call Validate on the provided object and panics if any errors are returned. This
// method no-ops unless the debug_mem_utils build tag is present
func DebugValidate(validatable Validatable) {
}

// DebugCheckPow2 will verify that the numerical value passed in is a power of two, and panics if it is not.
// This method no-ops unless the debug_mem_utils build tag is present.
func DebugCheckPow2[T Number](value T, name string) {
}

// DebugCheckFenceOrder verifies that a completed fence value never runs ahead of the CPU fence value
// it was reported alongside, and panics if it does.
// This method no-ops unless the debug_mem_utils build tag is present.
func DebugCheckFenceOrder(cpuFence, completedFence uint64) {
}
