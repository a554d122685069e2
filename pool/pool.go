package pool

import (
	"context"
	"fmt"
	"unsafe"

	"github.com/Harry-George/hgalloc"
	"github.com/Harry-George/hgalloc/internal/utils"
	"github.com/launchdarkly/go-jsonstream/v3/jwriter"
	"github.com/pkg/errors"
	"golang.org/x/exp/slog"
)

// Pool is a growing and shrinking slab allocator for elements of a single type. Storage
// is split into buckets of a fixed power-of-two size, materialized the first time a slot
// inside them is assigned. Freed slots are threaded onto per-bucket intrusive free lists
// and reused lowest-bucket-first, and a fully-free top bucket is eventually released
// back to the runtime.
//
// Alloc hands out Ptr handles of four bytes (in their RawIndex form) instead of native
// pointers. Elements never move once allocated, so a handle stays valid until it is
// reset or the pool is destroyed.
type Pool[T any] struct {
	logger *slog.Logger
	mutex  utils.OptionalMutex
	name   string

	store bucketStore[T]
	free  freeIndex[T]

	maxElements int
	// numElements is the high-water mark: one past the highest slot index ever assigned
	// outside the free list. It only moves down when the top bucket is evicted.
	numElements int

	// freeEventsSinceTick gates the eviction check so it runs once per bucketSize
	// releases rather than on every release.
	freeEventsSinceTick int

	onRelease func(*T)
	registry  *Registry
}

var _ StatsSource = &Pool[uint32]{}

// Alloc places value into a slot and returns the owning handle for it. The handle is nil
// when the pool is at capacity; that is the only out-of-capacity signal and it is
// non-fatal.
func (p *Pool[T]) Alloc(value T) Ptr[T] {
	p.mutex.Lock()
	defer p.mutex.Unlock()

	handle, _ := p.alloc(func(slot *T) error {
		*slot = value
		return nil
	})
	return handle
}

// AllocFunc reserves a slot, presents it zeroed to init, and returns the owning handle.
// When init returns an error the slot is abandoned and the pool's accounting is exactly
// as it was before the call. A nil handle with a nil error means the pool is at
// capacity.
func (p *Pool[T]) AllocFunc(init func(*T) error) (Ptr[T], error) {
	p.mutex.Lock()
	defer p.mutex.Unlock()

	return p.alloc(init)
}

func (p *Pool[T]) alloc(init func(*T) error) (Ptr[T], error) {
	var zero T

	if p.free.total > 0 {
		slot, index := p.free.pop()
		*slot = zero
		err := init(slot)
		if err != nil {
			*slot = zero
			p.free.push(index)
			return Ptr[T]{index: NilIndex}, err
		}
		return Ptr[T]{pool: p, index: index}, nil
	}

	if p.numElements < p.maxElements {
		index := Index(p.numElements)
		bucket := p.store.bucketOf(index)
		freshBucket := p.store.buckets[bucket] == nil
		slot := p.store.slotOrMaterialize(index)
		err := init(slot)
		if err != nil {
			// numElements was never bumped, so the slot stays unassigned. A bucket
			// materialized just for this slot is dropped again to preserve the rule
			// that storage exists only under assigned slots.
			*slot = zero
			if freshBucket {
				p.store.buckets[bucket] = nil
				p.store.materializations--
			}
			return Ptr[T]{index: NilIndex}, err
		}
		p.numElements++
		return Ptr[T]{pool: p, index: index}, nil
	}

	return Ptr[T]{index: NilIndex}, nil
}

// release is reached only through a handle, which guarantees the slot is live and owned.
func (p *Pool[T]) release(index Index) {
	p.mutex.Lock()
	defer p.mutex.Unlock()

	// The slot must reach the free list even if OnRelease panics.
	defer p.finishRelease(index)

	if p.onRelease != nil {
		p.onRelease(p.store.slot(index))
	}
}

func (p *Pool[T]) finishRelease(index Index) {
	var zero T
	slot := p.store.slot(index)
	// Zeroing first keeps the collector from seeing stale references through the
	// freed slot and releases anything the element still points at.
	*slot = zero
	p.free.push(index)

	p.freeEventsSinceTick++
	if p.freeEventsSinceTick == p.store.bucketSize {
		p.freeEventsSinceTick = 0
		p.evictTopBucketIfFree()
	}
}

// evictTopBucketIfFree releases the highest in-use bucket's storage when every assigned
// slot in it is free. Lower buckets are never released and nothing is compacted.
func (p *Pool[T]) evictTopBucketIfFree() {
	// Hysteresis: require half a bucket of slack beyond one bucket's worth of free
	// slots, so a workload hovering at a bucket boundary doesn't thrash.
	threshold := p.store.bucketSize + p.store.bucketSize/2
	if p.free.total <= threshold || p.numElements == 0 {
		return
	}

	topAssigned := Index(p.numElements - 1)
	topBucket := p.store.bucketOf(topAssigned)
	slotsUsedInTop := p.store.indexOf(topAssigned) + 1

	list := &p.free.lists[topBucket]
	if list.size != slotsUsedInTop {
		return
	}

	list.head = NilIndex
	list.size = 0
	p.free.total -= slotsUsedInTop
	p.numElements -= slotsUsedInTop
	if p.free.smallest > topBucket {
		p.free.smallest = topBucket
	}
	p.store.releaseBucket(topBucket)

	p.logger.Debug("Pool::evictTopBucket",
		slog.String("pool", p.name),
		slog.Int("bucket", topBucket),
		slog.Int("slotsReleased", slotsUsedInTop))
}

// Size returns the number of live elements.
func (p *Pool[T]) Size() int {
	p.mutex.Lock()
	defer p.mutex.Unlock()

	return p.numElements - p.free.total
}

// Capacity returns the maximum number of live elements the pool will hold.
func (p *Pool[T]) Capacity() int {
	return p.maxElements
}

// MaterializedBuckets returns how many buckets currently hold backing storage.
func (p *Pool[T]) MaterializedBuckets() int {
	p.mutex.Lock()
	defer p.mutex.Unlock()

	return p.store.materializedCount()
}

// Name returns the pool's diagnostic name.
func (p *Pool[T]) Name() string {
	return p.name
}

// Destroy tears the pool down and resets all state. If live elements remain it logs
// one diagnostic naming the element type and the live count, and runs OnRelease for
// each of them; their handles are dangling from this point and must not be used.
func (p *Pool[T]) Destroy() {
	p.mutex.Lock()

	live := p.numElements - p.free.total
	if live > 0 {
		var zero T
		p.logger.LogAttrs(context.Background(), slog.LevelError,
			"[UNRELEASED MEMORY] pool destroyed with live elements",
			slog.String("pool", p.name),
			slog.String("elementType", fmt.Sprintf("%T", zero)),
			slog.Int("liveCount", live))

		if p.onRelease != nil {
			p.releaseOutstanding()
		}
	}

	p.store.clear()
	p.free.clear()
	p.numElements = 0
	p.freeEventsSinceTick = 0

	registry := p.registry
	p.registry = nil

	// Unregister outside the pool mutex: the registry takes its own lock before
	// calling back into pools, so the two locks must never nest the other way.
	p.mutex.Unlock()
	if registry != nil {
		registry.Unregister(p.name)
	}
}

// releaseOutstanding runs OnRelease for every live slot, in index order.
func (p *Pool[T]) releaseOutstanding() {
	for bucket := range p.store.buckets {
		if p.store.buckets[bucket] == nil {
			continue
		}

		isFree := make([]bool, p.store.bucketSize)
		for q := p.free.lists[bucket].head; q != NilIndex; q = *nextLink(p.store.slot(q)) {
			isFree[p.store.indexOf(q)] = true
		}

		assigned := p.numElements - bucket*p.store.bucketSize
		if assigned > p.store.bucketSize {
			assigned = p.store.bucketSize
		}
		for i := 0; i < assigned; i++ {
			if !isFree[i] {
				p.onRelease(&p.store.buckets[bucket][i])
			}
		}
	}
}

// Validate performs internal consistency checks over the whole pool. When the pool is
// functioning correctly it cannot return an error; it exists to diagnose bookkeeping
// bugs and is expensive enough to keep out of production paths.
func (p *Pool[T]) Validate() error {
	p.mutex.Lock()
	defer p.mutex.Unlock()

	if p.numElements > p.maxElements {
		return errors.Errorf("high-water mark %d exceeds capacity %d", p.numElements, p.maxElements)
	}
	if p.free.total > p.numElements {
		return errors.Errorf("%d slots are free but only %d were ever assigned", p.free.total, p.numElements)
	}

	err := p.free.Validate()
	if err != nil {
		return err
	}

	topBucket := -1
	if p.numElements > 0 {
		topBucket = p.store.bucketOf(Index(p.numElements - 1))
	}
	for bucket := range p.store.buckets {
		materialized := p.store.buckets[bucket] != nil
		if bucket <= topBucket && !materialized {
			return errors.Errorf("bucket %d is below the high-water mark but has no storage", bucket)
		}
		if bucket > topBucket && materialized {
			return errors.Errorf("bucket %d is above the high-water mark but holds storage", bucket)
		}
		if bucket > topBucket && p.free.lists[bucket].size != 0 {
			return errors.Errorf("bucket %d is above the high-water mark but has free-list entries", bucket)
		}
	}

	if topBucket >= 0 {
		slotsUsedInTop := p.store.indexOf(Index(p.numElements-1)) + 1
		if p.free.lists[topBucket].size > slotsUsedInTop {
			return errors.Errorf("top bucket %d has %d free slots but only %d assigned", topBucket, p.free.lists[topBucket].size, slotsUsedInTop)
		}
	}

	return nil
}

// AddStatistics sums this pool's footprint into stats.
func (p *Pool[T]) AddStatistics(stats *hgalloc.Statistics) {
	p.mutex.Lock()
	defer p.mutex.Unlock()

	var zero T
	materialized := p.store.materializedCount()

	stats.PoolCount++
	stats.BucketCount += materialized
	stats.BucketBytes += materialized * p.store.bucketSize * int(unsafe.Sizeof(zero))
	stats.LiveCount += p.numElements - p.free.total
	stats.FreeCount += p.free.total
	stats.HighWaterMark += p.numElements
}

// BuildStatsJson streams a JSON object describing the pool, including a per-bucket
// breakdown.
func (p *Pool[T]) BuildStatsJson(writer *jwriter.Writer) {
	p.mutex.Lock()
	defer p.mutex.Unlock()

	obj := writer.Object()
	defer obj.End()

	obj.Name("Name").String(p.name)
	obj.Name("Capacity").Int(p.maxElements)
	obj.Name("HighWaterMark").Int(p.numElements)
	obj.Name("Live").Int(p.numElements - p.free.total)
	obj.Name("Free").Int(p.free.total)
	obj.Name("BucketSize").Int(p.store.bucketSize)
	obj.Name("MaterializedBuckets").Int(p.store.materializedCount())
	obj.Name("BucketMaterializations").Int(p.store.materializations)
	obj.Name("BucketReleases").Int(p.store.releases)

	buckets := obj.Name("Buckets").Array()
	defer buckets.End()
	for bucket := range p.store.buckets {
		bucketObj := buckets.Object()
		bucketObj.Name("Materialized").Bool(p.store.buckets[bucket] != nil)
		bucketObj.Name("FreeCount").Int(p.free.lists[bucket].size)
		bucketObj.End()
	}
}
