package hgalloc_test

import (
	"testing"

	"github.com/Harry-George/hgalloc"
	"github.com/stretchr/testify/require"
)

func TestCheckPow2(t *testing.T) {
	require.NoError(t, hgalloc.CheckPow2(1, "value"))
	require.NoError(t, hgalloc.CheckPow2(2, "value"))
	require.NoError(t, hgalloc.CheckPow2(128, "value"))

	err := hgalloc.CheckPow2(6, "bucketSize")
	require.ErrorIs(t, err, hgalloc.PowerOfTwoError)
	require.Contains(t, err.Error(), "bucketSize is 6")

	require.ErrorIs(t, hgalloc.CheckPow2(0, "value"), hgalloc.PowerOfTwoError)
}

func TestLog2(t *testing.T) {
	require.Equal(t, uint(0), hgalloc.Log2(1))
	require.Equal(t, uint(3), hgalloc.Log2(8))
	require.Equal(t, uint(7), hgalloc.Log2(128))
}

func TestBucketCount(t *testing.T) {
	require.Equal(t, 1, hgalloc.BucketCount(8, 8))
	require.Equal(t, 2, hgalloc.BucketCount(10, 8))
	require.Equal(t, 25, hgalloc.BucketCount(200, 8))
	require.Equal(t, 1, hgalloc.BucketCount(3, 8))
}

func TestStatistics(t *testing.T) {
	var total hgalloc.Statistics
	total.Clear()

	total.AddStatistics(&hgalloc.Statistics{PoolCount: 1, BucketCount: 2, BucketBytes: 128, LiveCount: 9, FreeCount: 7, HighWaterMark: 16})
	total.AddStatistics(&hgalloc.Statistics{PoolCount: 1, BucketCount: 1, BucketBytes: 64, LiveCount: 3, FreeCount: 1, HighWaterMark: 4})

	require.Equal(t, hgalloc.Statistics{
		PoolCount:     2,
		BucketCount:   3,
		BucketBytes:   192,
		LiveCount:     12,
		FreeCount:     8,
		HighWaterMark: 20,
	}, total)

	total.Clear()
	require.Equal(t, hgalloc.Statistics{}, total)
}
