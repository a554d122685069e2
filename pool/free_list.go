package pool

import (
	"unsafe"

	"github.com/Harry-George/hgalloc"
	"github.com/pkg/errors"
)

// freeList is one bucket's intrusive list of freed slots. The links live inside the
// slots themselves: the first four bytes of a freed slot hold the Index of the next
// freed slot in the same bucket, so freeing never allocates.
type freeList struct {
	head Index
	size int
}

// nextLink reinterprets the head of a slot as its free-list link. Only valid while the
// slot is free; while it is live those bytes belong to the element.
func nextLink[T any](slot *T) *Index {
	return (*Index)(unsafe.Pointer(slot))
}

// freeIndex tracks every freed slot in the pool: one intrusive list per bucket, the
// aggregate count, and a lower-bound hint for the smallest bucket with a free slot.
type freeIndex[T any] struct {
	store *bucketStore[T]
	lists []freeList

	total int
	// smallest is a hint, not an exact value: it never exceeds the true smallest
	// non-empty bucket, and pop tolerates the buckets it makes us scan past.
	smallest int
}

func (f *freeIndex[T]) init(store *bucketStore[T], bucketCount int) {
	f.store = store
	f.lists = make([]freeList, bucketCount)
	for i := range f.lists {
		f.lists[i].head = NilIndex
	}
}

// push threads slot p onto its bucket's free list. The slot must already be zeroed so
// the collector cannot see stale references through it.
func (f *freeIndex[T]) push(p Index) {
	hgalloc.DebugAssert(p != NilIndex, "pushing the nil index onto a free list")
	bucket := f.store.bucketOf(p)

	slot := f.store.slot(p)
	hgalloc.WriteFreePattern(unsafe.Pointer(slot), unsafe.Sizeof(*slot))
	*nextLink(slot) = f.lists[bucket].head
	f.lists[bucket].head = p

	f.lists[bucket].size++
	f.total++

	if bucket < f.smallest {
		f.smallest = bucket
	}
}

// pop detaches and returns the free slot from the smallest non-empty bucket. The caller
// must ensure total > 0.
func (f *freeIndex[T]) pop() (*T, Index) {
	for bucket := f.smallest; bucket < len(f.lists); bucket++ {
		list := &f.lists[bucket]
		if list.head == NilIndex {
			hgalloc.DebugAssert(list.size == 0, "free list with a nil head declares entries")
			continue
		}
		hgalloc.DebugAssert(list.size > 0, "free list with a live head declares no entries")

		p := list.head
		slot := f.store.slot(p)
		if !hgalloc.ValidateFreePattern(unsafe.Pointer(slot), unsafe.Sizeof(*slot)) {
			panic("FREED SLOT MODIFIED WHILE ON THE FREE LIST")
		}
		list.head = *nextLink(slot)

		list.size--
		f.total--
		f.smallest = bucket

		return slot, p
	}

	panic("pop from an empty free index")
}

func (f *freeIndex[T]) clear() {
	for i := range f.lists {
		f.lists[i] = freeList{head: NilIndex}
	}
	f.total = 0
	f.smallest = 0
}

// Validate walks every bucket's list and checks it against the declared counts.
func (f *freeIndex[T]) Validate() error {
	walkedTotal := 0

	for bucket := range f.lists {
		list := f.lists[bucket]
		if list.size == 0 && list.head != NilIndex {
			return errors.Errorf("free list for bucket %d declares no entries but has a live head", bucket)
		}
		if list.size != 0 && list.head == NilIndex {
			return errors.Errorf("free list for bucket %d declares %d entries but has a nil head", bucket, list.size)
		}
		if list.size > f.store.bucketSize {
			return errors.Errorf("free list for bucket %d declares %d entries, more than the bucket holds", bucket, list.size)
		}

		walked := 0
		for p := list.head; p != NilIndex; p = *nextLink(f.store.slot(p)) {
			if f.store.bucketOf(p) != bucket {
				return errors.Errorf("free list for bucket %d links to slot %d in bucket %d", bucket, p, f.store.bucketOf(p))
			}

			walked++
			if walked > f.store.bucketSize {
				return errors.Errorf("free list for bucket %d is longer than the bucket, the list must contain a cycle", bucket)
			}
		}

		if walked != list.size {
			return errors.Errorf("free list for bucket %d declares %d entries but links %d", bucket, list.size, walked)
		}
		walkedTotal += walked
	}

	if walkedTotal != f.total {
		return errors.Errorf("aggregate free count %d does not match the per-bucket sum %d", f.total, walkedTotal)
	}

	for bucket := 0; bucket < f.smallest; bucket++ {
		if f.lists[bucket].size != 0 {
			return errors.Errorf("smallest-bucket hint %d skips non-empty bucket %d", f.smallest, bucket)
		}
	}

	return nil
}
