package hgalloc

import (
	"math/bits"

	cerrors "github.com/cockroachdb/errors"
)

type Number interface {
	~int | ~uint
}

func CheckPow2[T Number](number T, name string) error {
	if number == 0 || number&(number-1) != 0 {
		return cerrors.Wrapf(PowerOfTwoError, "%s is %d", name, number)
	}
	return nil
}

// Log2 returns the base-2 logarithm of a power of two
func Log2(value uint32) uint {
	return uint(bits.TrailingZeros32(value))
}

// BucketCount returns the number of buckets of bucketSize slots needed to hold maxElements slots
func BucketCount(maxElements, bucketSize int) int {
	count := maxElements / bucketSize
	if maxElements%bucketSize != 0 {
		count++
	}
	return count
}
