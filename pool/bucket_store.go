package pool

import (
	"math"

	"github.com/Harry-George/hgalloc"
)

// Index is the four-byte encoding of a slot: the high bits select a bucket and the low
// bits select a slot within it.
type Index uint32

// NilIndex is the Index value that encodes "no slot".
const NilIndex Index = math.MaxUint32

// MaxIndex is the largest Index that can refer to a live slot.
const MaxIndex Index = NilIndex - 1

// bucketStore owns the backing storage for a pool: a fixed-length set of buckets, each
// either unmaterialized (nil) or exactly bucketSize slots long. The store does not track
// which slots are live; that is the pool's job.
type bucketStore[T any] struct {
	buckets    [][]T
	bucketSize int
	shift      uint
	mask       Index

	// Materialization and release counts, kept so that bucket churn is observable
	// through statistics and tests.
	materializations int
	releases         int
}

func (s *bucketStore[T]) init(bucketCount, bucketSize int) {
	s.buckets = make([][]T, bucketCount)
	s.bucketSize = bucketSize
	s.shift = hgalloc.Log2(uint32(bucketSize))
	s.mask = Index(bucketSize - 1)
}

func (s *bucketStore[T]) bucketOf(p Index) int {
	return int(p >> s.shift)
}

func (s *bucketStore[T]) indexOf(p Index) int {
	return int(p & s.mask)
}

// slot resolves p to its backing slot. The slot's bucket must be materialized.
func (s *bucketStore[T]) slot(p Index) *T {
	bucket := s.bucketOf(p)
	hgalloc.DebugAssert(len(s.buckets[bucket]) > s.indexOf(p), "slot lookup in an unmaterialized bucket")
	return &s.buckets[bucket][s.indexOf(p)]
}

// slotOrMaterialize resolves p to its backing slot, reserving the bucket's storage first
// if it has none.
func (s *bucketStore[T]) slotOrMaterialize(p Index) *T {
	bucket := s.bucketOf(p)
	if s.buckets[bucket] == nil {
		s.buckets[bucket] = make([]T, s.bucketSize)
		s.materializations++
	}

	return &s.buckets[bucket][s.indexOf(p)]
}

// releaseBucket returns bucket's backing storage to the runtime. The bucket stays
// unmaterialized until slotOrMaterialize touches it again.
func (s *bucketStore[T]) releaseBucket(bucket int) {
	hgalloc.DebugAssert(s.buckets[bucket] != nil, "releasing a bucket that has no storage")
	s.buckets[bucket] = nil
	s.releases++
}

func (s *bucketStore[T]) materializedCount() int {
	count := 0
	for _, bucket := range s.buckets {
		if bucket != nil {
			count++
		}
	}
	return count
}

func (s *bucketStore[T]) clear() {
	for i := range s.buckets {
		s.buckets[i] = nil
	}
}
