package game

import (
	"errors"
	"math"

	"go.uber.org/zap"

	"shooting-range/internal/pool"
)

// FireState is the weapon's firing state.
type FireState uint8

const (
	FireIdle    FireState = iota
	FireLatched           // semi-auto shot taken, waiting for trigger release
	FireBurst             // multi-shot sequence in progress
)

func (s FireState) String() string {
	switch s {
	case FireLatched:
		return "firing"
	case FireBurst:
		return "firing_burst"
	default:
		return "idle"
	}
}

// DefaultFireRate replaces a non-positive fire rate.
const DefaultFireRate = 0.1

// WeaponConfig describes how the weapon fires.
type WeaponConfig struct {
	FireRate          float64 // seconds between shots in a sequence
	MaxBulletsPerFire int
	Damage            float64
	BulletSpeed       float64
	BurstOnly         bool // trigger release does not cut a sequence short
	RearmOnFire       bool // semi-auto re-arms without waiting for release
	Muzzle            Vec3
	AimOffset         Vec3
	Forward           Vec3 // initial facing before any Aim call
}

// DefaultWeaponConfig matches the stock range pistol.
func DefaultWeaponConfig() WeaponConfig {
	return WeaponConfig{
		FireRate:          DefaultFireRate,
		MaxBulletsPerFire: 1,
		Damage:            1,
		BulletSpeed:       5,
		Muzzle:            Vec3{Y: 1.5},
		AimOffset:         Vec3{Y: -0.05},
		Forward:           Vec3{Z: 1},
	}
}

// Normalize corrects out-of-range values in place and reports each fix.
func (c *WeaponConfig) Normalize() []*ConfigurationError {
	var errs []*ConfigurationError
	if c.FireRate <= 0 {
		errs = append(errs, &ConfigurationError{Field: "weapon.fire_rate", Value: c.FireRate, Fallback: DefaultFireRate, Reason: "must be positive"})
		c.FireRate = DefaultFireRate
	}
	if c.MaxBulletsPerFire < 1 {
		errs = append(errs, &ConfigurationError{Field: "weapon.max_bullets_per_fire", Value: c.MaxBulletsPerFire, Fallback: 1, Reason: "must be at least 1"})
		c.MaxBulletsPerFire = 1
	}
	if c.Damage <= 0 || math.IsNaN(c.Damage) || math.IsInf(c.Damage, 0) {
		errs = append(errs, &ConfigurationError{Field: "weapon.damage", Value: c.Damage, Fallback: 1.0, Reason: "must be positive and finite"})
		c.Damage = 1
	}
	if c.BulletSpeed <= 0 {
		errs = append(errs, &ConfigurationError{Field: "weapon.bullet_speed", Value: c.BulletSpeed, Fallback: 5.0, Reason: "must be positive"})
		c.BulletSpeed = 5
	}
	if c.Forward.IsZero() {
		c.Forward = Vec3{Z: 1}
	}
	return errs
}

// BulletPool is the slice of the bullet pool the weapon needs.
// *pool.Pool[Bullet] satisfies it.
type BulletPool interface {
	Acquire() (pool.Handle, error)
	Lookup(h pool.Handle) (*Bullet, error)
	Release(h pool.Handle) error
}

// Shot describes one attempted shot within a sequence.
type Shot struct {
	Index   int // 1-based position in the sequence
	Handle  pool.Handle
	Skipped bool // pool exhausted
	At      float64
	Origin  Vec3
	Forward Vec3
}

// SequenceReport is emitted when a firing sequence ends.
type SequenceReport struct {
	Requested   int  `json:"requested"`
	Launched    int  `json:"launched"`
	Skipped     int  `json:"skipped"`
	Interrupted bool `json:"interrupted"`
}

// WeaponFireController turns trigger edges into bullets.
type WeaponFireController struct {
	cfg     WeaponConfig
	bullets BulletPool
	log     *zap.Logger
	sounds  SoundPlayer

	state      FireState
	held       bool
	forward    Vec3
	shotsTaken int
	launched   int
	skipped    int
	nextShotAt float64

	onShot     func(Shot)
	onSequence func(SequenceReport)
}

// NewWeaponFireController builds a controller drawing from bullets.
// Out-of-range settings are corrected and logged.
func NewWeaponFireController(cfg WeaponConfig, bullets BulletPool, sounds SoundPlayer, log *zap.Logger) *WeaponFireController {
	if log == nil {
		log = zap.NewNop()
	}
	if sounds == nil {
		sounds = nopSounds{}
	}
	for _, e := range cfg.Normalize() {
		log.Warn("weapon configuration corrected", zap.Error(e))
	}
	return &WeaponFireController{
		cfg:     cfg,
		bullets: bullets,
		log:     log,
		sounds:  sounds,
		forward: cfg.Forward.Normalize(),
	}
}

// SetCallbacks registers shot and sequence observers. Either may be nil.
func (w *WeaponFireController) SetCallbacks(onShot func(Shot), onSequence func(SequenceReport)) {
	w.onShot = onShot
	w.onSequence = onSequence
}

func (w *WeaponFireController) State() FireState     { return w.state }
func (w *WeaponFireController) Config() WeaponConfig { return w.cfg }
func (w *WeaponFireController) Forward() Vec3        { return w.forward }
func (w *WeaponFireController) TriggerHeld() bool    { return w.held }

// Aim points the weapon at a world-space point. A point at the muzzle
// leaves the facing unchanged.
func (w *WeaponFireController) Aim(point Vec3) {
	dir := point.Add(w.cfg.AimOffset).Sub(w.cfg.Muzzle).Normalize()
	if dir.IsZero() {
		return
	}
	w.forward = dir
}

// PullTrigger handles a trigger press. Only a press from Idle starts a
// sequence; a held trigger does not repeat.
func (w *WeaponFireController) PullTrigger(now float64) bool {
	if w.held {
		return false
	}
	w.held = true
	if w.state != FireIdle {
		return false
	}

	w.shotsTaken, w.launched, w.skipped = 0, 0, 0
	if w.cfg.MaxBulletsPerFire == 1 {
		w.fire(now, now)
		w.finish(false)
		if !w.cfg.RearmOnFire {
			w.state = FireLatched
		}
		return true
	}

	w.state = FireBurst
	w.fire(now, now)
	w.nextShotAt = now + w.cfg.FireRate
	return true
}

// ReleaseTrigger handles a trigger release.
func (w *WeaponFireController) ReleaseTrigger(now float64) {
	w.held = false
	switch w.state {
	case FireLatched:
		w.state = FireIdle
	case FireBurst:
		if !w.cfg.BurstOnly {
			w.finish(true)
		}
	}
}

// Tick fires any shots of the current sequence that are due.
func (w *WeaponFireController) Tick(now float64) {
	for w.state == FireBurst && now >= w.nextShotAt {
		at := w.nextShotAt
		w.fire(at, now)
		if w.state != FireBurst {
			return
		}
		w.nextShotAt = at + w.cfg.FireRate
	}
}

// FullReset cancels any sequence in flight. Safe to call when idle.
func (w *WeaponFireController) FullReset() {
	if w.state == FireBurst {
		w.finish(true)
	}
	w.state = FireIdle
	w.held = false
	w.nextShotAt = 0
}

// fire takes the shot scheduled for at. Shots that fell due between ticks
// are already in flight by now-at when the tick runs.
func (w *WeaponFireController) fire(at, now float64) {
	w.shotsTaken++
	shot := Shot{Index: w.shotsTaken, At: at, Origin: w.cfg.Muzzle, Forward: w.forward}

	h, err := w.launch(now - at)
	if err != nil {
		shot.Skipped = true
		w.skipped++
		if !errors.Is(err, pool.ErrPoolExhausted) {
			w.log.Error("bullet launch failed", zap.Error(err))
		}
	} else {
		shot.Handle = h
		w.launched++
		w.sounds.Play(CueShot)
	}
	if w.onShot != nil {
		w.onShot(shot)
	}

	if w.state == FireBurst && w.shotsTaken >= w.cfg.MaxBulletsPerFire {
		w.finish(false)
	}
}

func (w *WeaponFireController) launch(late float64) (pool.Handle, error) {
	h, err := w.bullets.Acquire()
	if err != nil {
		return 0, err
	}
	b, err := w.bullets.Lookup(h)
	if err == nil {
		err = b.Bind(h, w.bullets)
	}
	if err == nil {
		err = b.Configure(BulletConfig{
			Damage:    w.cfg.Damage,
			Speed:     w.cfg.BulletSpeed,
			Size:      BulletSize(w.cfg.Damage),
			Direction: w.forward,
		})
	}
	if err == nil {
		err = b.Launch(w.cfg.Muzzle)
	}
	if err == nil && late > 0 {
		b.Advance(late)
	}
	if err != nil {
		if rerr := w.bullets.Release(h); rerr != nil {
			w.log.Error("bullet release after failed launch", zap.Stringer("handle", h), zap.Error(rerr))
		}
		return 0, err
	}
	return h, nil
}

// finish closes the current sequence and reports it.
func (w *WeaponFireController) finish(interrupted bool) {
	report := SequenceReport{
		Requested:   w.cfg.MaxBulletsPerFire,
		Launched:    w.launched,
		Skipped:     w.skipped,
		Interrupted: interrupted,
	}
	if w.state == FireBurst {
		w.state = FireIdle
	}
	w.nextShotAt = 0
	if w.onSequence != nil {
		w.onSequence(report)
	}
}
