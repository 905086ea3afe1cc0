package game

import (
	"sync/atomic"
	"time"

	"shooting-range/internal/pool"
)

// ResourceLimits caps what a snapshot carries. Pools cap live entities;
// these cap how many of them are copied out per frame.
type ResourceLimits struct {
	MaxBullets int
	MaxTargets int
	MaxEffects int
}

// DefaultLimits matches the default pool sizes.
var DefaultLimits = ResourceLimits{
	MaxBullets: 100,
	MaxTargets: 20,
	MaxEffects: 64,
}

// BulletSnapshot is an immutable copy of bullet state for rendering
type BulletSnapshot struct {
	Slot     int     `json:"slot"`
	Handle   uint64  `json:"handle"`
	State    string  `json:"state"`
	Position Vec3    `json:"position"`
	Velocity Vec3    `json:"velocity"`
	Size     float64 `json:"size"`
	Visible  bool    `json:"visible"`
}

// TargetSnapshot is an immutable copy of target state for rendering
type TargetSnapshot struct {
	Slot          int     `json:"slot"`
	Handle        uint64  `json:"handle"`
	State         string  `json:"state"`
	Area          string  `json:"area"`
	Health        float64 `json:"health"`
	InitialHealth float64 `json:"initialHealth"`
	Tier          int     `json:"tier"`
	ScoreMarker   int     `json:"scoreMarker"`
	Position      Vec3    `json:"position"`
	Direction     Vec3    `json:"direction"`
	Radius        float64 `json:"radius"`
	Visible       bool    `json:"visible"`
}

// EffectSnapshot is an immutable visual effect
type EffectSnapshot struct {
	Kind   string  `json:"kind"`
	Point  Vec3    `json:"point"`
	Normal Vec3    `json:"normal"`
	Alpha  float64 `json:"alpha"`
}

// ShakeSnapshot captures screen shake state
type ShakeSnapshot struct {
	OffsetX   float64 `json:"offsetX"`
	OffsetY   float64 `json:"offsetY"`
	Intensity float64 `json:"intensity"`
}

// WeaponSnapshot captures the firing controller.
type WeaponSnapshot struct {
	State       string `json:"state"`
	TriggerHeld bool   `json:"triggerHeld"`
	Muzzle      Vec3   `json:"muzzle"`
	Forward     Vec3   `json:"forward"`
}

// RangeSnapshot is a complete immutable range state for rendering.
// Slices are pre-allocated and capped.
type RangeSnapshot struct {
	Sequence   uint64    `json:"sequence"`
	Timestamp  time.Time `json:"timestamp"`
	TickNumber uint64    `json:"tickNumber"`
	Session    string    `json:"session"`
	Clock      float64   `json:"clock"`
	RNGSeed    int64     `json:"rngSeed"`

	Bullets []BulletSnapshot `json:"bullets"`
	Targets []TargetSnapshot `json:"targets"`
	Effects []EffectSnapshot `json:"effects"`
	Shake   ShakeSnapshot    `json:"shake"`
	Weapon  WeaponSnapshot   `json:"weapon"`

	Bounds     Box        `json:"bounds"`
	Spawning   bool       `json:"spawning"`
	Score      int        `json:"score"`
	Destroyed  int        `json:"destroyed"`
	BulletPool pool.Stats `json:"bulletPool"`
	TargetPool pool.Stats `json:"targetPool"`
}

// Clone returns a deep copy safe to hand to other goroutines.
func (s *RangeSnapshot) Clone() RangeSnapshot {
	c := *s
	c.Bullets = append([]BulletSnapshot(nil), s.Bullets...)
	c.Targets = append([]TargetSnapshot(nil), s.Targets...)
	c.Effects = append([]EffectSnapshot(nil), s.Effects...)
	return c
}

// SnapshotPool pre-allocates snapshots to avoid GC pressure.
// Triple buffered: the tick writes one while readers see the last published.
type SnapshotPool struct {
	snapshots [3]RangeSnapshot
	limits    ResourceLimits
	writeIdx  uint32 // atomic - producer index
	readIdx   uint32 // atomic - consumer index
	sequence  uint64 // atomic - monotonic sequence
}

// NewSnapshotPool creates a pool with pre-allocated slices
func NewSnapshotPool(limits ResourceLimits) *SnapshotPool {
	p := &SnapshotPool{limits: limits}
	for i := range p.snapshots {
		p.snapshots[i] = RangeSnapshot{
			Bullets: make([]BulletSnapshot, 0, limits.MaxBullets),
			Targets: make([]TargetSnapshot, 0, limits.MaxTargets),
			Effects: make([]EffectSnapshot, 0, limits.MaxEffects),
		}
	}
	return p
}

// AcquireWrite gets the next write slot with reset slices.
func (p *SnapshotPool) AcquireWrite() *RangeSnapshot {
	idx := atomic.AddUint32(&p.writeIdx, 1) % 3
	snap := &p.snapshots[idx]

	snap.Bullets = snap.Bullets[:0]
	snap.Targets = snap.Targets[:0]
	snap.Effects = snap.Effects[:0]
	snap.Shake = ShakeSnapshot{}

	snap.Sequence = atomic.AddUint64(&p.sequence, 1)
	snap.Timestamp = time.Now()
	return snap
}

// PublishWrite makes the last written snapshot the one readers see.
func (p *SnapshotPool) PublishWrite() {
	atomic.StoreUint32(&p.readIdx, atomic.LoadUint32(&p.writeIdx))
}

// AcquireRead gets the latest published snapshot.
func (p *SnapshotPool) AcquireRead() *RangeSnapshot {
	idx := atomic.LoadUint32(&p.readIdx) % 3
	return &p.snapshots[idx]
}

// GetLimits returns the resource limits
func (p *SnapshotPool) GetLimits() ResourceLimits {
	return p.limits
}
