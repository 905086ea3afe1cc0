package game

import (
	"fmt"

	"shooting-range/internal/pool"
)

// BulletState is the lifecycle state of a pooled bullet.
type BulletState uint8

const (
	BulletIdle      BulletState = iota // in the pool, or acquired and not yet launched
	BulletLaunched                     // in flight
	BulletResolving                    // hit something, waiting out the hit effect
)

func (s BulletState) String() string {
	switch s {
	case BulletLaunched:
		return "launched"
	case BulletResolving:
		return "resolving"
	default:
		return "idle"
	}
}

// Bullet size is derived from damage and kept inside this band.
const (
	MinBulletSize = 0.05
	MaxBulletSize = 1.0
)

// BulletSize maps weapon damage to a visual bullet size.
func BulletSize(damage float64) float64 {
	return clamp(damage*0.1, MinBulletSize, MaxBulletSize)
}

// BulletConfig is applied by the weapon right before launch.
type BulletConfig struct {
	Damage    float64
	Speed     float64
	Size      float64
	Direction Vec3
}

// Bullet is a pooled projectile. It never outlives its pool; "destroying"
// a bullet means returning its slot.
type Bullet struct {
	Slot int

	handle pool.Handle
	owner  Releaser

	cfg   BulletConfig
	state BulletState

	Position Vec3
	Previous Vec3 // position before the last Advance, for swept tests
	Velocity Vec3
	Visible  bool
	Age      float64

	resolve deadline

	effects EffectPlayer
	sounds  SoundPlayer
}

// NewBullet builds an idle bullet for pool slot index.
func NewBullet(slot int, effects EffectPlayer, sounds SoundPlayer) Bullet {
	if effects == nil {
		effects = nopEffects{}
	}
	if sounds == nil {
		sounds = nopSounds{}
	}
	return Bullet{Slot: slot, effects: effects, sounds: sounds}
}

func (b *Bullet) State() BulletState   { return b.state }
func (b *Bullet) Handle() pool.Handle  { return b.handle }
func (b *Bullet) Config() BulletConfig { return b.cfg }

// Bind records the handle the pool just granted.
func (b *Bullet) Bind(h pool.Handle, owner Releaser) error {
	if b.state != BulletIdle {
		return transitionError("bullet", b.state, "bind")
	}
	b.handle = h
	b.owner = owner
	return nil
}

// Configure sets damage, speed, size and direction. Idle only.
func (b *Bullet) Configure(cfg BulletConfig) error {
	if b.state != BulletIdle {
		return transitionError("bullet", b.state, "configure")
	}
	cfg.Direction = cfg.Direction.Normalize()
	b.cfg = cfg
	return nil
}

// Launch puts the bullet in flight from origin along its configured direction.
func (b *Bullet) Launch(origin Vec3) error {
	if b.state != BulletIdle {
		return transitionError("bullet", b.state, "launch")
	}
	b.Position = origin
	b.Previous = origin
	b.Velocity = b.cfg.Direction.Scale(b.cfg.Speed)
	b.Visible = true
	b.Age = 0
	b.state = BulletLaunched
	return nil
}

// Advance integrates the bullet position while in flight.
func (b *Bullet) Advance(dt float64) {
	if b.state != BulletLaunched {
		return
	}
	b.Previous = b.Position
	b.Position = b.Position.Add(b.Velocity.Scale(dt))
	b.Age += dt
}

// OnCollision resolves a contact. A target contact delivers the bullet's
// damage exactly once. The bullet then stops, hides, plays its hit effect and
// waits for the effect's duration before returning to the pool.
func (b *Bullet) OnCollision(c Contact, now float64) (HitResult, error) {
	if b.state != BulletLaunched {
		return HitIgnored, transitionError("bullet", b.state, "collide")
	}
	b.state = BulletResolving

	result := HitNone
	if c.Tag == TagTarget && c.Target != nil {
		result = c.Target.Hit(b.cfg.Damage, now)
	}

	b.Velocity = Vec3{}
	b.Visible = false
	b.Position = c.Point
	d := b.effects.Play(EffectBulletHit, c.Point, c.Normal)
	b.sounds.Play(CueImpact)
	b.resolve.Arm(now, d)
	return result, nil
}

// Tick returns the bullet to its pool once the hit effect has finished.
// released reports whether the bullet left the Resolving state this tick.
func (b *Bullet) Tick(now float64) (released bool, err error) {
	if b.state != BulletResolving || !b.resolve.Expired(now) {
		return false, nil
	}
	return true, b.release()
}

// Recall cancels any pending continuation and returns the bullet to its pool
// immediately, whatever state it is in.
func (b *Bullet) Recall() error {
	if b.handle.IsZero() {
		return nil
	}
	b.resolve.Cancel()
	b.Velocity = Vec3{}
	b.Visible = false
	return b.release()
}

func (b *Bullet) release() error {
	h, owner := b.handle, b.owner
	b.state = BulletIdle
	b.Visible = false
	b.handle = 0
	b.owner = nil
	if owner == nil {
		return fmt.Errorf("bullet %d release %v: %w", b.Slot, h, pool.ErrStaleHandle)
	}
	if err := owner.Release(h); err != nil {
		return fmt.Errorf("bullet %d release %v: %w", b.Slot, h, err)
	}
	return nil
}
