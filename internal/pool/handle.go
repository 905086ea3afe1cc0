package pool

import "fmt"

// Handle encodes a 32-bit slot index in the lower bits and a 32-bit generation
// in the upper bits. Release increments the slot generation, so every copy of
// a released handle becomes stale.
type Handle uint64

// NewHandle packs an index and generation.
func NewHandle(index uint32, generation uint32) Handle {
	return Handle(uint64(generation)<<32 | uint64(index))
}

func (h Handle) Index() uint32      { return uint32(h) }
func (h Handle) Generation() uint32 { return uint32(h >> 32) }
func (h Handle) IsZero() bool       { return h == 0 }

func (h Handle) String() string {
	if h.IsZero() {
		return "handle(nil)"
	}
	return fmt.Sprintf("handle(%d#%d)", h.Index(), h.Generation())
}
