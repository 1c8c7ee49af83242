// Package generic holds small type-parameterized containers shared across
// subsystems.
package generic

import "sync"

// Pool recycles values that are expensive to allocate on a hot path, such
// as collision event records drained once per tick. The zero value is not
// usable; construct with NewPool or NewHotPool.
type Pool[T any] struct {
	inner sync.Pool
}

// NewPool creates a pool that builds values lazily on the first Get that
// finds the pool empty.
func NewPool[T any](build func() T) *Pool[T] {
	return &Pool[T]{
		inner: sync.Pool{
			New: func() any {
				return build()
			},
		},
	}
}

// NewHotPool creates a pool pre-seeded with warm values, so the first burst
// of Gets after startup does not allocate.
func NewHotPool[T any](build func() T, warm int) *Pool[T] {
	p := NewPool(build)
	for i := 0; i < warm; i++ {
		p.inner.Put(build())
	}
	return p
}

// Get takes a value from the pool, building a fresh one when the pool is
// empty.
func (p *Pool[T]) Get() T {
	return p.inner.Get().(T)
}

// Put returns a value to the pool. The caller must not use it afterwards.
func (p *Pool[T]) Put(value T) {
	p.inner.Put(value)
}
