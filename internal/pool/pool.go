// Package pool provides a fixed-capacity arena of pre-built entities.
//
// Entities are created once by Warm and live by value in a slice for the
// lifetime of the pool. Callers hold generational handles, never pointers, so
// a slot that has been returned and reacquired cannot be reached through an
// old handle.
package pool

import "errors"

var (
	// ErrPoolExhausted is returned by Acquire when every slot is in use.
	ErrPoolExhausted = errors.New("pool exhausted")
	// ErrStaleHandle is returned when a handle's generation no longer matches
	// its slot, e.g. a double release.
	ErrStaleHandle = errors.New("stale handle")
	// ErrInvalidHandle is returned for the zero handle or an out-of-range index.
	ErrInvalidHandle = errors.New("invalid handle")
)

// Stats is a point-in-time view of pool occupancy and traffic.
type Stats struct {
	Capacity  int    `json:"capacity"`
	Available int    `json:"available"`
	InUse     int    `json:"inUse"`
	Acquires  uint64 `json:"acquires"`
	Releases  uint64 `json:"releases"`
	Exhausted uint64 `json:"exhausted"`
	Rejected  uint64 `json:"rejected"`
}

// Pool is a fixed-capacity pool of T. Not safe for concurrent use.
type Pool[T any] struct {
	items       []T
	generations []uint32
	inUse       []bool
	available   []uint32 // LIFO stack of free slot indices
	inUseCount  int

	acquires  uint64
	releases  uint64
	exhausted uint64
	rejected  uint64
}

// Warm builds a pool of capacity entities using factory. The factory receives
// the slot index. The first Acquire returns slot 0.
func Warm[T any](capacity int, factory func(index int) T) *Pool[T] {
	if capacity < 0 {
		capacity = 0
	}
	p := &Pool[T]{
		items:       make([]T, capacity),
		generations: make([]uint32, capacity),
		inUse:       make([]bool, capacity),
		available:   make([]uint32, 0, capacity),
	}
	for i := 0; i < capacity; i++ {
		if factory != nil {
			p.items[i] = factory(i)
		}
		p.generations[i] = 1
	}
	// Push in reverse so the top of the stack is slot 0.
	for i := capacity - 1; i >= 0; i-- {
		p.available = append(p.available, uint32(i))
	}
	return p
}

// Acquire takes the most recently released slot.
func (p *Pool[T]) Acquire() (Handle, error) {
	n := len(p.available)
	if n == 0 {
		p.exhausted++
		return 0, ErrPoolExhausted
	}
	idx := p.available[n-1]
	p.available = p.available[:n-1]
	p.inUse[idx] = true
	p.inUseCount++
	p.acquires++
	return NewHandle(idx, p.generations[idx]), nil
}

// Release returns a slot to the pool. A rejected release leaves the pool
// untouched.
func (p *Pool[T]) Release(h Handle) error {
	idx, err := p.check(h)
	if err != nil {
		p.rejected++
		return err
	}
	p.inUse[idx] = false
	p.generations[idx]++
	if p.generations[idx] == 0 {
		p.generations[idx] = 1
	}
	p.inUseCount--
	p.available = append(p.available, idx)
	p.releases++
	return nil
}

// Lookup resolves a live handle to its slot.
func (p *Pool[T]) Lookup(h Handle) (*T, error) {
	idx, err := p.check(h)
	if err != nil {
		return nil, err
	}
	return &p.items[idx], nil
}

// Valid reports whether h refers to an in-use slot.
func (p *Pool[T]) Valid(h Handle) bool {
	_, err := p.check(h)
	return err == nil
}

func (p *Pool[T]) check(h Handle) (uint32, error) {
	if h.IsZero() {
		return 0, ErrInvalidHandle
	}
	idx := h.Index()
	if int(idx) >= len(p.items) {
		return 0, ErrInvalidHandle
	}
	if !p.inUse[idx] || p.generations[idx] != h.Generation() {
		return 0, ErrStaleHandle
	}
	return idx, nil
}

// Each calls fn for every in-use slot in index order. fn may release the
// slot it is visiting.
func (p *Pool[T]) Each(fn func(h Handle, item *T)) {
	for i := range p.items {
		if !p.inUse[i] {
			continue
		}
		fn(NewHandle(uint32(i), p.generations[i]), &p.items[i])
	}
}

// Slot returns the entity at index regardless of whether it is in use.
// Used by renderers and tests that inspect idle entities.
func (p *Pool[T]) Slot(index int) *T {
	if index < 0 || index >= len(p.items) {
		return nil
	}
	return &p.items[index]
}

func (p *Pool[T]) Cap() int       { return len(p.items) }
func (p *Pool[T]) Available() int { return len(p.available) }
func (p *Pool[T]) InUse() int     { return p.inUseCount }

// Stats returns occupancy and traffic counters.
func (p *Pool[T]) Stats() Stats {
	return Stats{
		Capacity:  len(p.items),
		Available: len(p.available),
		InUse:     p.inUseCount,
		Acquires:  p.acquires,
		Releases:  p.releases,
		Exhausted: p.exhausted,
		Rejected:  p.rejected,
	}
}
