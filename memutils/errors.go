package memutils

import "github.com/cockroachdb/errors"

// PowerOfTwoError is the error returned from CheckPow2 or other methods if the number being tested is not a power of two
var PowerOfTwoError error = errors.New("number must be a power of two")

// OutOfSpaceError is returned by allocators that cannot satisfy a request from their current arenas.
// Allocators never grow on their own when returning this error: the owner decides whether to add an
// arena and retry.
var OutOfSpaceError error = errors.New("allocator has no free region large enough")

// InvalidFreeError is returned when a region is freed that is not currently allocated, which includes
// freeing the same region twice
var InvalidFreeError error = errors.New("region is not allocated")
