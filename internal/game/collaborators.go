package game

import (
	"math/rand"

	"shooting-range/internal/pool"
)

// Tag classifies the other side of a collision.
type Tag uint8

const (
	TagNone Tag = iota
	TagTarget
	TagBoundary
	TagDeathArea
)

func (t Tag) String() string {
	switch t {
	case TagTarget:
		return "target"
	case TagBoundary:
		return "boundary"
	case TagDeathArea:
		return "death_area"
	default:
		return "none"
	}
}

// HitResult is the outcome of delivering damage.
type HitResult uint8

const (
	HitNone      HitResult = iota // contact had nothing damageable
	HitIgnored                    // receiver was not in a state to take damage
	HitDamaged                    // damage applied, receiver still alive
	HitDestroyed                  // damage applied, receiver destroyed
)

func (r HitResult) String() string {
	switch r {
	case HitIgnored:
		return "ignored"
	case HitDamaged:
		return "damaged"
	case HitDestroyed:
		return "destroyed"
	default:
		return "none"
	}
}

// Damageable receives bullet hits.
type Damageable interface {
	Hit(damage float64, now float64) HitResult
}

// Releaser returns a slot to its pool. Entities hold one of these instead of
// a pointer to the pool itself.
type Releaser interface {
	Release(h pool.Handle) error
}

// Contact is a discrete collision event delivered to a bullet.
type Contact struct {
	Tag    Tag
	Point  Vec3
	Normal Vec3
	Target Damageable
}

// EffectKind selects which visual effect to play.
type EffectKind uint8

const (
	EffectBulletHit EffectKind = iota
	EffectTargetDestroy
)

func (k EffectKind) String() string {
	if k == EffectTargetDestroy {
		return "destroy"
	}
	return "hit"
}

// EffectPlayer plays a visual effect and reports how long it runs, in
// seconds. Entities schedule their own release from that duration.
type EffectPlayer interface {
	Play(kind EffectKind, point, normal Vec3) float64
}

// Animator fires named animation triggers on an entity.
type Animator interface {
	Trigger(h pool.Handle, name string)
}

// SoundPlayer plays a named sound cue.
type SoundPlayer interface {
	Play(cue string)
}

// Sound cue names.
const (
	CueShot      = "shot"
	CueImpact    = "impact"
	CueExplosion = "explosion"
)

// AnimTargetHit is fired on a target that survives a hit.
const AnimTargetHit = "TargetHit"

// Random is the sampling source for spawns. Swap in a seeded source for
// deterministic runs.
type Random interface {
	Float64Range(min, max float64) float64
	Intn(n int) int
}

type seededRandom struct {
	rng *rand.Rand
}

// NewRandom returns a Random backed by a seeded math/rand generator.
func NewRandom(seed int64) Random {
	return &seededRandom{rng: rand.New(rand.NewSource(seed))}
}

func (r *seededRandom) Float64Range(min, max float64) float64 {
	if max <= min {
		return min
	}
	return min + r.rng.Float64()*(max-min)
}

func (r *seededRandom) Intn(n int) int {
	if n <= 0 {
		return 0
	}
	return r.rng.Intn(n)
}

type nopEffects struct{}

func (nopEffects) Play(EffectKind, Vec3, Vec3) float64 { return 0 }

type nopAnimator struct{}

func (nopAnimator) Trigger(pool.Handle, string) {}

type nopSounds struct{}

func (nopSounds) Play(string) {}
