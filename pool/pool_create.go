package pool

import (
	"fmt"
	"unsafe"

	"github.com/Harry-George/hgalloc"
	"github.com/Harry-George/hgalloc/internal/utils"
	"github.com/cockroachdb/errors"
	"golang.org/x/exp/slog"
)

// CreateFlags indicate specific pool behaviors to activate or deactivate
type CreateFlags int32

const (
	// PoolCreateSynchronized guards every pool operation with an internal mutex. Pools are
	// single-threaded by default: without this flag the consumer must guarantee the pool and
	// every handle minted from it are used from one goroutine at a time.
	//
	// Dereferencing a handle is never synchronized. The flag makes the pool's bookkeeping
	// safe to share, not the elements themselves.
	PoolCreateSynchronized CreateFlags = 1 << iota
)

func (f CreateFlags) String() string {
	if f&PoolCreateSynchronized != 0 {
		return "PoolCreateSynchronized"
	}
	return ""
}

// CreateOptions contains the sizing parameters and optional settings for a new pool
type CreateOptions[T any] struct {
	// Flags indicates specific pool behaviors to activate or deactivate
	Flags CreateFlags

	// MaxElements is the total slot capacity of the pool. Alloc returns a nil handle once
	// this many elements are live. It must be at least BucketSize and at most pool.MaxIndex.
	MaxElements int
	// BucketSize is the number of slots in each lazily-materialized bucket. It must be a
	// power of two.
	BucketSize int

	// Name identifies the pool in diagnostics and the registry. When empty, a name is
	// derived from the element type.
	Name string

	// OnRelease, if set, runs on each element as its slot is released, before the slot is
	// returned to the free list. It is this pool's equivalent of a destructor: use it to
	// close or hand back resources owned by the element.
	OnRelease func(*T)

	// Registry, if set, receives the pool under Name at creation time. The pool
	// unregisters itself on Destroy.
	Registry *Registry
}

// New creates a pool of T with the provided capacity and bucket sizing.
//
// logger - destination for lifecycle diagnostics; nil selects slog.Default()
//
// options - sizing is mandatory, everything else may be left blank
func New[T any](logger *slog.Logger, options CreateOptions[T]) (*Pool[T], error) {
	var zero T
	if unsafe.Sizeof(zero) < uintptr(4) {
		return nil, errors.Wrapf(hgalloc.ElementTooSmallError, "%T is %d bytes", zero, unsafe.Sizeof(zero))
	}
	if unsafe.Alignof(zero) < uintptr(4) {
		return nil, errors.Wrapf(hgalloc.ElementAlignmentError, "%T is %d-byte aligned", zero, unsafe.Alignof(zero))
	}

	err := hgalloc.CheckPow2(options.BucketSize, "CreateOptions.BucketSize")
	if err != nil {
		return nil, err
	}
	if options.MaxElements < options.BucketSize {
		return nil, errors.Newf("CreateOptions.MaxElements (%d) must be at least CreateOptions.BucketSize (%d)", options.MaxElements, options.BucketSize)
	}
	if uint64(options.MaxElements) > uint64(MaxIndex) {
		return nil, errors.Newf("CreateOptions.MaxElements (%d) cannot exceed the largest representable index (%d)", options.MaxElements, MaxIndex)
	}

	if logger == nil {
		logger = slog.Default()
	}

	name := options.Name
	if name == "" {
		name = fmt.Sprintf("pool<%T>", zero)
	}

	pool := &Pool[T]{
		logger: logger,
		mutex:  utils.OptionalMutex{UseMutex: options.Flags&PoolCreateSynchronized != 0},
		name:   name,

		maxElements: options.MaxElements,
		onRelease:   options.OnRelease,
	}

	bucketCount := hgalloc.BucketCount(options.MaxElements, options.BucketSize)
	pool.store.init(bucketCount, options.BucketSize)
	pool.free.init(&pool.store, bucketCount)

	if options.Registry != nil {
		err = options.Registry.Register(name, pool)
		if err != nil {
			return nil, err
		}
		pool.registry = options.Registry
	}

	logger.Debug("Pool::New",
		slog.String("pool", name),
		slog.Int("maxElements", options.MaxElements),
		slog.Int("bucketSize", options.BucketSize),
		slog.Int("bucketCount", bucketCount))

	return pool, nil
}
