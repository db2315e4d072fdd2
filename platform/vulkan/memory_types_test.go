package vulkan

import (
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/require"
	"github.com/vkngwrapper/core/v2/core1_0"
	"github.com/vkngwrapper/gpualloc/platform"
)

var discreteMemoryTypes = []core1_0.MemoryType{
	{PropertyFlags: core1_0.MemoryPropertyDeviceLocal, HeapIndex: 0},
	{PropertyFlags: core1_0.MemoryPropertyDeviceLocal | core1_0.MemoryPropertyHostVisible | core1_0.MemoryPropertyHostCoherent, HeapIndex: 0},
	{PropertyFlags: core1_0.MemoryPropertyHostVisible | core1_0.MemoryPropertyHostCoherent, HeapIndex: 1},
	{PropertyFlags: core1_0.MemoryPropertyHostVisible | core1_0.MemoryPropertyHostCoherent | core1_0.MemoryPropertyHostCached, HeapIndex: 1},
}

func findForHeapType(t *testing.T, memoryTypes []core1_0.MemoryType, memoryTypeBits uint32, heapType platform.HeapType) (int, error) {
	preferences, err := heapTypePreferences(heapType)
	require.NoError(t, err)

	return findMemoryTypeIndex(memoryTypes, memoryTypeBits, preferences)
}

func TestFindMemoryTypeIndex_Discrete(t *testing.T) {
	index, err := findForHeapType(t, discreteMemoryTypes, 0xffffffff, platform.HeapTypeDefault)
	require.NoError(t, err)
	require.Equal(t, 0, index)

	index, err = findForHeapType(t, discreteMemoryTypes, 0xffffffff, platform.HeapTypeUpload)
	require.NoError(t, err)
	require.Equal(t, 2, index)

	index, err = findForHeapType(t, discreteMemoryTypes, 0xffffffff, platform.HeapTypeReadback)
	require.NoError(t, err)
	require.Equal(t, 3, index)
}

func TestFindMemoryTypeIndex_RespectsTypeBits(t *testing.T) {
	// Only the resizable BAR type is allowed, so every heap type lands there despite the cost
	index, err := findForHeapType(t, discreteMemoryTypes, 0x2, platform.HeapTypeDefault)
	require.NoError(t, err)
	require.Equal(t, 1, index)

	index, err = findForHeapType(t, discreteMemoryTypes, 0x2, platform.HeapTypeUpload)
	require.NoError(t, err)
	require.Equal(t, 1, index)

	_, err = findForHeapType(t, discreteMemoryTypes, 0x1, platform.HeapTypeReadback)
	require.True(t, errors.Is(err, ErrNoMemoryType))
}

func TestFindMemoryTypeIndex_Unified(t *testing.T) {
	unified := []core1_0.MemoryType{
		{PropertyFlags: core1_0.MemoryPropertyDeviceLocal | core1_0.MemoryPropertyHostVisible | core1_0.MemoryPropertyHostCoherent},
		{PropertyFlags: core1_0.MemoryPropertyDeviceLocal | core1_0.MemoryPropertyHostVisible | core1_0.MemoryPropertyHostCoherent | core1_0.MemoryPropertyHostCached},
	}

	index, err := findForHeapType(t, unified, 0xffffffff, platform.HeapTypeDefault)
	require.NoError(t, err)
	require.Equal(t, 0, index)

	index, err = findForHeapType(t, unified, 0xffffffff, platform.HeapTypeUpload)
	require.NoError(t, err)
	require.Equal(t, 0, index)

	index, err = findForHeapType(t, unified, 0xffffffff, platform.HeapTypeReadback)
	require.NoError(t, err)
	require.Equal(t, 1, index)
}

func TestHeapTypePreferences_Unknown(t *testing.T) {
	_, err := heapTypePreferences(platform.HeapType(7))
	require.Error(t, err)
}
