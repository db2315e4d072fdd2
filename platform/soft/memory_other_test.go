//go:build !unix

package soft

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestAllocateHostMemorySizesArena(t *testing.T) {
	data, release, err := allocateHostMemory(4096)
	require.NoError(t, err)
	require.Len(t, data, 4096)
	require.Equal(t, 4096, cap(data))

	data[0] = 1
	data[4095] = 2
	require.NoError(t, release(data))
}
