//go:build unix

package soft

import (
	"github.com/cockroachdb/errors"
	"golang.org/x/sys/unix"
)

// allocateHostMemory reserves size bytes of zeroed, page-backed memory outside the Go heap
func allocateHostMemory(size int) ([]byte, func([]byte) error, error) {
	data, err := unix.Mmap(-1, 0, size, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_ANON|unix.MAP_PRIVATE)
	if err != nil {
		return nil, nil, errors.Wrapf(err, "failed to map %d bytes of arena memory", size)
	}

	return data, unix.Munmap, nil
}
