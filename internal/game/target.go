package game

import (
	"fmt"
	"math"

	"shooting-range/internal/pool"
)

// TargetState is the lifecycle state of a pooled target.
type TargetState uint8

const (
	TargetIdle TargetState = iota
	TargetActive
	TargetDestroying
)

func (s TargetState) String() string {
	switch s {
	case TargetActive:
		return "active"
	case TargetDestroying:
		return "destroying"
	default:
		return "idle"
	}
}

// DestroyCause records how a target's life ended.
type DestroyCause uint8

const (
	CauseNone DestroyCause = iota
	CauseDamage
	CauseInstantKill
)

func (c DestroyCause) String() string {
	switch c {
	case CauseDamage:
		return "damage"
	case CauseInstantKill:
		return "instant_kill"
	default:
		return "none"
	}
}

// NoScoreMarker means no score marker is showing.
const NoScoreMarker = -1

// VisualTier maps health to a tier index with ceiling rounding:
// health 1.1 and 2.0 both land in tier 1, anything <= 0 in tier 0.
func VisualTier(health float64, tiers int) int {
	if tiers <= 0 || health <= 0 {
		return 0
	}
	tier := int(math.Ceil(health)) - 1
	if tier < 0 {
		return 0
	}
	if tier > tiers-1 {
		return tiers - 1
	}
	return tier
}

// TargetParams are the per-pool settings shared by every target.
type TargetParams struct {
	Speed  float64 // units per second along the launch direction
	Radius float64 // collision sphere
	Tiers  int     // visual tier count
}

// Target is a pooled shooting target.
type Target struct {
	Slot int

	handle pool.Handle
	owner  Releaser
	params TargetParams

	state         TargetState
	Health        float64
	InitialHealth float64
	Alive         bool
	Visible       bool
	Tier          int
	ScoreMarker   int
	Cause         DestroyCause

	Position    Vec3
	Direction   Vec3
	Orientation Vec3
	Area        string // spawn area name, for scoring

	despawn deadline

	effects EffectPlayer
	anim    Animator
	sounds  SoundPlayer
}

// NewTarget builds an idle target for pool slot index.
func NewTarget(slot int, params TargetParams, effects EffectPlayer, anim Animator, sounds SoundPlayer) Target {
	if effects == nil {
		effects = nopEffects{}
	}
	if anim == nil {
		anim = nopAnimator{}
	}
	if sounds == nil {
		sounds = nopSounds{}
	}
	if params.Tiers <= 0 {
		params.Tiers = 1
	}
	return Target{
		Slot:        slot,
		params:      params,
		ScoreMarker: NoScoreMarker,
		effects:     effects,
		anim:        anim,
		sounds:      sounds,
	}
}

func (t *Target) State() TargetState   { return t.state }
func (t *Target) Handle() pool.Handle  { return t.handle }
func (t *Target) Radius() float64      { return t.params.Radius }
func (t *Target) Params() TargetParams { return t.params }

// Bind records the handle the pool just granted.
func (t *Target) Bind(h pool.Handle, owner Releaser) error {
	if t.state != TargetIdle {
		return transitionError("target", t.state, "bind")
	}
	t.handle = h
	t.owner = owner
	return nil
}

// Reset prepares the target for a new life. Idle only.
func (t *Target) Reset(health float64) error {
	if t.state != TargetIdle {
		return transitionError("target", t.state, "reset")
	}
	t.Health = health
	t.InitialHealth = health
	t.Alive = false
	t.Visible = false
	t.Direction = Vec3{}
	t.Orientation = Vec3{}
	t.Position = Vec3{}
	t.ScoreMarker = NoScoreMarker
	t.Cause = CauseNone
	t.Tier = VisualTier(health, t.params.Tiers)
	t.despawn.Cancel()
	return nil
}

// Place moves an idle target to its spawn point.
func (t *Target) Place(p Vec3, area string) error {
	if t.state != TargetIdle {
		return transitionError("target", t.state, "place")
	}
	t.Position = p
	t.Area = area
	return nil
}

// Activate makes the target visible and collidable.
func (t *Target) Activate() error {
	if t.state != TargetIdle {
		return transitionError("target", t.state, "activate")
	}
	t.state = TargetActive
	t.Alive = true
	t.Visible = true
	return nil
}

// Launch sets the movement direction and facing.
func (t *Target) Launch(direction, orientation Vec3) error {
	if t.state != TargetActive {
		return transitionError("target", t.state, "launch")
	}
	t.Direction = direction.Normalize()
	t.Orientation = orientation.Normalize()
	return nil
}

// Hit applies damage. Lethal damage starts the destruction sequence;
// otherwise the hit animation fires. Health only goes down: damage that is
// not a positive number is ignored.
func (t *Target) Hit(damage float64, now float64) HitResult {
	if t.state != TargetActive || !(damage > 0) {
		return HitIgnored
	}
	t.Health -= damage
	t.Tier = VisualTier(t.Health, t.params.Tiers)
	if t.Health <= 0 {
		t.destroy(now)
		return HitDestroyed
	}
	t.anim.Trigger(t.handle, AnimTargetHit)
	return HitDamaged
}

func (t *Target) destroy(now float64) {
	t.state = TargetDestroying
	t.Alive = false
	t.Visible = false
	t.Direction = Vec3{}
	t.Cause = CauseDamage
	t.ScoreMarker = VisualTier(t.InitialHealth, t.params.Tiers)
	d := t.effects.Play(EffectTargetDestroy, t.Position, Vec3{Y: 1})
	t.sounds.Play(CueExplosion)
	t.despawn.Arm(now, d)
}

// InstantKill removes an active target without the destruction effect and
// returns it to the pool in the same call.
func (t *Target) InstantKill() error {
	if t.state != TargetActive {
		return transitionError("target", t.state, "instant kill")
	}
	t.Health = 0
	t.Tier = 0
	t.Cause = CauseInstantKill
	t.despawn.Cancel()
	return t.release()
}

// OnTrigger handles area sensors. Death areas kill instantly.
func (t *Target) OnTrigger(tag Tag) error {
	if tag != TagDeathArea {
		return nil
	}
	return t.InstantKill()
}

// Tick moves an active target and recomputes its tier, or returns a
// destroyed target to its pool once the destruction effect has finished.
func (t *Target) Tick(dt, now float64) (released bool, err error) {
	switch t.state {
	case TargetActive:
		t.Position = t.Position.Add(t.Direction.Scale(t.params.Speed * dt))
		t.Tier = VisualTier(t.Health, t.params.Tiers)
	case TargetDestroying:
		if t.despawn.Expired(now) {
			return true, t.release()
		}
	}
	return false, nil
}

// Recall returns the target to its pool immediately, whatever state it is in.
func (t *Target) Recall() error {
	if t.handle.IsZero() {
		return nil
	}
	t.despawn.Cancel()
	return t.release()
}

func (t *Target) release() error {
	h, owner := t.handle, t.owner
	t.state = TargetIdle
	t.Alive = false
	t.Visible = false
	t.Direction = Vec3{}
	t.handle = 0
	t.owner = nil
	if owner == nil {
		return fmt.Errorf("target %d release %v: %w", t.Slot, h, pool.ErrStaleHandle)
	}
	if err := owner.Release(h); err != nil {
		return fmt.Errorf("target %d release %v: %w", t.Slot, h, err)
	}
	return nil
}
