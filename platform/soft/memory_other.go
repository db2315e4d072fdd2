//go:build !unix

package soft

import (
	"github.com/bytedance/gopkg/lang/dirtmake"
)

func allocateHostMemory(size int) ([]byte, func([]byte) error, error) {
	// Arena contents are undefined until written, as with device memory
	return dirtmake.Bytes(size, size), func([]byte) error { return nil }, nil
}
