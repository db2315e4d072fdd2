package vulkan

import (
	"math"
	"math/bits"

	"github.com/cockroachdb/errors"
	"github.com/vkngwrapper/core/v2/core1_0"
	"github.com/vkngwrapper/gpualloc/platform"
)

// ErrNoMemoryType is returned when the device exposes no memory type that can back a heap type
var ErrNoMemoryType = errors.New("no memory type satisfies the heap type")

type memoryPreferences struct {
	required     core1_0.MemoryPropertyFlags
	preferred    core1_0.MemoryPropertyFlags
	notPreferred core1_0.MemoryPropertyFlags
}

func heapTypePreferences(heapType platform.HeapType) (memoryPreferences, error) {
	switch heapType {
	case platform.HeapTypeDefault:
		return memoryPreferences{
			required:     core1_0.MemoryPropertyDeviceLocal,
			notPreferred: core1_0.MemoryPropertyHostVisible,
		}, nil
	case platform.HeapTypeUpload:
		return memoryPreferences{
			required:     core1_0.MemoryPropertyHostVisible | core1_0.MemoryPropertyHostCoherent,
			notPreferred: core1_0.MemoryPropertyHostCached | core1_0.MemoryPropertyDeviceLocal,
		}, nil
	case platform.HeapTypeReadback:
		return memoryPreferences{
			required:     core1_0.MemoryPropertyHostVisible | core1_0.MemoryPropertyHostCoherent,
			preferred:    core1_0.MemoryPropertyHostCached,
			notPreferred: core1_0.MemoryPropertyDeviceLocal,
		}, nil
	}

	return memoryPreferences{}, errors.Newf("unknown heap type %s", heapType)
}

// findMemoryTypeIndex picks the memory type allowed by memoryTypeBits that has every required flag
// and the fewest mismatched preferences
func findMemoryTypeIndex(memoryTypes []core1_0.MemoryType, memoryTypeBits uint32, preferences memoryPreferences) (int, error) {
	bestMemoryTypeIndex := -1
	minCost := math.MaxInt

	for memTypeIndex := 0; memTypeIndex < len(memoryTypes); memTypeIndex++ {
		memTypeBit := uint32(1 << memTypeIndex)

		if memTypeBit&memoryTypeBits == 0 {
			continue
		}

		flags := memoryTypes[memTypeIndex].PropertyFlags
		if preferences.required&flags != preferences.required {
			continue
		}

		missingPreferredFlags := preferences.preferred & ^flags
		presentNotPreferredFlags := preferences.notPreferred & flags
		cost := bits.OnesCount32(uint32(missingPreferredFlags)) + bits.OnesCount32(uint32(presentNotPreferredFlags))
		if cost == 0 {
			return memTypeIndex, nil
		} else if cost < minCost {
			bestMemoryTypeIndex = memTypeIndex
			minCost = cost
		}
	}

	if bestMemoryTypeIndex < 0 {
		return -1, errors.Wrapf(ErrNoMemoryType, "required flags %s", preferences.required)
	}

	return bestMemoryTypeIndex, nil
}
