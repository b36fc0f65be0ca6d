// Package syncval provides a generic protected value with
// many-readers/one-writer semantics.
//
// The implementation keeps an atomic reader count and uses a sentinel
// value to mark an active writer. Acquisition loops yield the processor
// between failed compare-and-swap attempts instead of blocking in the
// kernel; expected hold times are map lookups and small copies, so the
// cooperative spin is cheaper than a full mutex under read-heavy load.
//
// A continuous stream of readers can starve a writer. That tradeoff is
// deliberate: registration and configuration writes are rare, lookups
// dominate. Do not reacquire the same Protected from inside one of its
// own critical sections; that deadlocks.
package syncval

import (
	"runtime"
	"sync/atomic"
)

// writing is the state sentinel for an exclusive writer. Any
// non-negative state is the count of active readers.
const writing int32 = -1

// Protected wraps a single value of type T behind reader/writer
// exclusion. The zero value is not usable; construct with New.
type Protected[T any] struct {
	state atomic.Int32
	value T
}

// New returns a Protected holding the given initial value.
func New[T any](initial T) *Protected[T] {
	return &Protected[T]{value: initial}
}

// acquireRead increments the reader count, spinning while a writer
// holds the value.
func (p *Protected[T]) acquireRead() {
	for {
		cur := p.state.Load()
		if cur != writing && p.state.CompareAndSwap(cur, cur+1) {
			return
		}
		runtime.Gosched()
	}
}

func (p *Protected[T]) releaseRead() {
	p.state.Add(-1)
}

// acquireWrite waits for all readers to drain, then claims exclusive
// access.
func (p *Protected[T]) acquireWrite() {
	for !p.state.CompareAndSwap(0, writing) {
		runtime.Gosched()
	}
}

func (p *Protected[T]) releaseWrite() {
	p.state.Store(0)
}

// Get returns the current value. Safe to call from any number of
// goroutines concurrently; never observes a partially written value.
func (p *Protected[T]) Get() T {
	p.acquireRead()
	v := p.value
	p.releaseRead()
	return v
}

// Set replaces the value and returns the previous one.
func (p *Protected[T]) Set(v T) T {
	p.acquireWrite()
	prev := p.value
	p.value = v
	p.releaseWrite()
	return prev
}

// Mutate runs fn with exclusive access to the value in place. Whatever
// state fn leaves behind is the new value, including when fn panics
// partway through; callers needing all-or-nothing semantics should use
// Update instead.
func (p *Protected[T]) Mutate(fn func(*T)) {
	p.acquireWrite()
	defer p.releaseWrite()
	fn(&p.value)
}

// Update applies fn to a copy of the current value and commits the
// result only when fn returns nil. On error the stored value is
// untouched and the error is returned to the caller.
func (p *Protected[T]) Update(fn func(T) (T, error)) error {
	p.acquireWrite()
	defer p.releaseWrite()
	next, err := fn(p.value)
	if err != nil {
		return err
	}
	p.value = next
	return nil
}
