package pool

// Ptr is an owning reference to one live slot in a Pool. Its persistent form, RawIndex,
// is four bytes instead of the eight of a native pointer, which adds up when handles are
// embedded in large graphs.
//
// A Ptr is either nil or the unique owner of its slot. Ownership moves, it does not
// copy: transfer a handle with Move, never by assigning the struct, and there is
// deliberately no clone operation. Reset releases the slot; a handle that is never
// reset holds its slot until the pool is destroyed, which the pool reports as a leak.
//
// The zero value of Ptr is nil.
type Ptr[T any] struct {
	pool  *Pool[T]
	index Index
}

// Nil returns a nil handle.
func Nil[T any]() Ptr[T] {
	return Ptr[T]{index: NilIndex}
}

// IsNil returns true when the handle owns no slot.
func (p *Ptr[T]) IsNil() bool {
	return p.pool == nil || p.index == NilIndex
}

// Get resolves the handle to its element. It returns nil for a nil handle. The element
// is valid until the handle is reset or its pool is destroyed.
func (p *Ptr[T]) Get() *T {
	if p.IsNil() {
		return nil
	}
	return p.pool.store.slot(p.index)
}

// RawIndex returns the four-byte encoding of the handle: NilIndex for a nil handle, the
// slot's index otherwise. The raw index is stable for the lifetime of the handle.
func (p *Ptr[T]) RawIndex() Index {
	if p.IsNil() {
		return NilIndex
	}
	return p.index
}

// Reset releases the owned slot, if any, and leaves the handle nil. Reset is idempotent.
func (p *Ptr[T]) Reset() {
	if p.IsNil() {
		return
	}

	pool, index := p.pool, p.index
	p.pool = nil
	p.index = NilIndex
	pool.release(index)
}

// Move transfers ownership to the returned handle and leaves the receiver nil.
func (p *Ptr[T]) Move() Ptr[T] {
	moved := Ptr[T]{pool: p.pool, index: p.index}
	p.pool = nil
	p.index = NilIndex
	return moved
}

// Replace releases whatever the receiver owns, then takes ownership from other,
// leaving other nil. Replacing a handle with itself is a no-op.
func (p *Ptr[T]) Replace(other *Ptr[T]) {
	if p == other {
		return
	}
	p.Reset()
	*p = other.Move()
}
