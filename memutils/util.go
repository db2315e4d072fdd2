package memutils

import (
	"math/bits"

	cerrors "github.com/cockroachdb/errors"
)

type Number interface {
	~int | ~uint
}

func CheckPow2[T Number](number T, name string) error {
	if number <= 0 || number&(number-1) != 0 {
		return cerrors.Wrapf(PowerOfTwoError, "%s is %d", name, number)
	}
	return nil
}

func AlignUp(value int, alignment uint) int {
	return (value + int(alignment) - 1) & int(^(alignment - 1))
}

func AlignDown(value int, alignment uint) int {
	return value & int(^(alignment - 1))
}

// DivideRoundingUp divides value by divisor, rounding any remainder up
func DivideRoundingUp(value, divisor int) int {
	return (value + divisor - 1) / divisor
}

// Log2Ceil returns the smallest order such that 1<<order >= value. Values of 1 or less return 0.
func Log2Ceil(value int) int {
	if value <= 1 {
		return 0
	}
	return bits.Len(uint(value - 1))
}

// Log2Floor returns the largest order such that 1<<order <= value. Values of 0 or less return -1.
func Log2Floor(value int) int {
	if value <= 0 {
		return -1
	}
	return bits.Len(uint(value)) - 1
}
