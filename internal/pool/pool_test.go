package pool

import (
	"errors"
	"math/rand"
	"testing"
)

type slot struct {
	id    int
	value int
}

func newTestPool(n int) *Pool[slot] {
	return Warm(n, func(i int) slot { return slot{id: i} })
}

func checkInvariant(t *testing.T, p *Pool[slot]) {
	t.Helper()
	if p.Available()+p.InUse() != p.Cap() {
		t.Fatalf("available(%d) + inUse(%d) != cap(%d)", p.Available(), p.InUse(), p.Cap())
	}
}

// TestWarm verifies every entity is built up front
func TestWarm(t *testing.T) {
	p := newTestPool(4)
	if p.Cap() != 4 {
		t.Errorf("Expected cap 4, got %d", p.Cap())
	}
	if p.Available() != 4 {
		t.Errorf("Expected 4 available, got %d", p.Available())
	}
	for i := 0; i < 4; i++ {
		if p.Slot(i).id != i {
			t.Errorf("Slot %d built with id %d", i, p.Slot(i).id)
		}
	}
	if p.Slot(4) != nil || p.Slot(-1) != nil {
		t.Error("Out of range Slot should be nil")
	}
}

// TestAcquireExhaustion verifies the N+1th acquire fails
func TestAcquireExhaustion(t *testing.T) {
	tests := []struct {
		name     string
		capacity int
	}{
		{"empty", 0},
		{"single", 1},
		{"bullets", 100},
		{"targets", 20},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := newTestPool(tt.capacity)
			seen := make(map[Handle]bool)
			for i := 0; i < tt.capacity; i++ {
				h, err := p.Acquire()
				if err != nil {
					t.Fatalf("Acquire %d failed: %v", i, err)
				}
				if seen[h] {
					t.Fatalf("Acquire returned in-use handle %v", h)
				}
				seen[h] = true
				checkInvariant(t, p)
			}
			if _, err := p.Acquire(); !errors.Is(err, ErrPoolExhausted) {
				t.Errorf("Expected ErrPoolExhausted, got %v", err)
			}
			if p.Stats().Exhausted != 1 {
				t.Errorf("Expected 1 exhausted, got %d", p.Stats().Exhausted)
			}
			checkInvariant(t, p)
		})
	}
}

// TestLIFOReuse verifies the most recently released slot comes back first
func TestLIFOReuse(t *testing.T) {
	p := newTestPool(3)
	h0, _ := p.Acquire()
	h1, _ := p.Acquire()
	if h0.Index() != 0 || h1.Index() != 1 {
		t.Fatalf("Expected slots 0,1, got %d,%d", h0.Index(), h1.Index())
	}

	if err := p.Release(h0); err != nil {
		t.Fatalf("Release failed: %v", err)
	}
	h2, _ := p.Acquire()
	if h2.Index() != 0 {
		t.Errorf("Expected reuse of slot 0, got %d", h2.Index())
	}
	if h2.Generation() != h0.Generation()+1 {
		t.Errorf("Expected generation %d, got %d", h0.Generation()+1, h2.Generation())
	}
	if h2 == h0 {
		t.Error("Reacquired handle should differ from released handle")
	}
}

// TestDoubleRelease verifies the second release is rejected without touching the pool
func TestDoubleRelease(t *testing.T) {
	p := newTestPool(2)
	h, _ := p.Acquire()
	if err := p.Release(h); err != nil {
		t.Fatalf("First release failed: %v", err)
	}
	before := p.Stats()

	err := p.Release(h)
	if !errors.Is(err, ErrStaleHandle) {
		t.Fatalf("Expected ErrStaleHandle, got %v", err)
	}
	after := p.Stats()
	if after.Available != before.Available || after.InUse != before.InUse || after.Releases != before.Releases {
		t.Errorf("Rejected release changed pool: before %+v after %+v", before, after)
	}
	if after.Rejected != before.Rejected+1 {
		t.Errorf("Expected rejected count %d, got %d", before.Rejected+1, after.Rejected)
	}
	checkInvariant(t, p)
}

// TestStaleHandleAfterReuse verifies an old handle cannot reach the new owner
func TestStaleHandleAfterReuse(t *testing.T) {
	p := newTestPool(1)
	old, _ := p.Acquire()
	_ = p.Release(old)
	fresh, _ := p.Acquire()

	if _, err := p.Lookup(old); !errors.Is(err, ErrStaleHandle) {
		t.Errorf("Expected ErrStaleHandle from Lookup, got %v", err)
	}
	if err := p.Release(old); !errors.Is(err, ErrStaleHandle) {
		t.Errorf("Expected ErrStaleHandle from Release, got %v", err)
	}
	if !p.Valid(fresh) {
		t.Error("Fresh handle should still be valid")
	}
}

// TestInvalidHandles tests zero and out-of-range handles
func TestInvalidHandles(t *testing.T) {
	p := newTestPool(2)
	tests := []struct {
		name   string
		handle Handle
	}{
		{"zero", 0},
		{"out of range", NewHandle(5, 1)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := p.Release(tt.handle); !errors.Is(err, ErrInvalidHandle) {
				t.Errorf("Expected ErrInvalidHandle, got %v", err)
			}
			if _, err := p.Lookup(tt.handle); !errors.Is(err, ErrInvalidHandle) {
				t.Errorf("Expected ErrInvalidHandle, got %v", err)
			}
		})
	}
}

// TestLookupMutatesArena verifies Lookup returns the arena slot itself
func TestLookupMutatesArena(t *testing.T) {
	p := newTestPool(2)
	h, _ := p.Acquire()
	item, err := p.Lookup(h)
	if err != nil {
		t.Fatalf("Lookup failed: %v", err)
	}
	item.value = 42
	if p.Slot(int(h.Index())).value != 42 {
		t.Error("Lookup should return a pointer into the arena")
	}
}

// TestEachReleaseDuringIteration verifies releasing the visited slot is safe
func TestEachReleaseDuringIteration(t *testing.T) {
	p := newTestPool(5)
	for i := 0; i < 5; i++ {
		_, _ = p.Acquire()
	}

	visited := 0
	p.Each(func(h Handle, item *slot) {
		visited++
		if item.id%2 == 0 {
			if err := p.Release(h); err != nil {
				t.Errorf("Release during Each failed: %v", err)
			}
		}
	})
	if visited != 5 {
		t.Errorf("Expected 5 visits, got %d", visited)
	}
	if p.InUse() != 2 {
		t.Errorf("Expected 2 in use, got %d", p.InUse())
	}
	checkInvariant(t, p)
}

// TestRandomOperations runs a seeded random walk and checks the partition each step
func TestRandomOperations(t *testing.T) {
	const capacity = 16
	p := newTestPool(capacity)
	rng := rand.New(rand.NewSource(7))
	live := make([]Handle, 0, capacity)

	for step := 0; step < 5000; step++ {
		if rng.Intn(2) == 0 {
			h, err := p.Acquire()
			if len(live) == capacity {
				if !errors.Is(err, ErrPoolExhausted) {
					t.Fatalf("step %d: expected exhaustion, got %v", step, err)
				}
			} else {
				if err != nil {
					t.Fatalf("step %d: acquire failed: %v", step, err)
				}
				for _, l := range live {
					if l.Index() == h.Index() {
						t.Fatalf("step %d: slot %d handed out twice", step, h.Index())
					}
				}
				live = append(live, h)
			}
		} else if len(live) > 0 {
			i := rng.Intn(len(live))
			if err := p.Release(live[i]); err != nil {
				t.Fatalf("step %d: release failed: %v", step, err)
			}
			live[i] = live[len(live)-1]
			live = live[:len(live)-1]
		}
		checkInvariant(t, p)
		if p.InUse() != len(live) {
			t.Fatalf("step %d: expected %d in use, got %d", step, len(live), p.InUse())
		}
	}
}

// BenchmarkAcquireRelease measures hot path turnover
func BenchmarkAcquireRelease(b *testing.B) {
	p := newTestPool(100)
	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		h, _ := p.Acquire()
		_ = p.Release(h)
	}
}
