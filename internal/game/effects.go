package game

// EffectDurations holds the intrinsic playback length of each effect, in
// seconds. Bullets and targets read these back through EffectPlayer.Play.
type EffectDurations struct {
	BulletHit     float64
	TargetDestroy float64
}

// DefaultEffectDurations matches the stock particle systems.
func DefaultEffectDurations() EffectDurations {
	return EffectDurations{BulletHit: 0.3, TargetDestroy: 1.0}
}

// ImpactFlash is a live visual effect.
type ImpactFlash struct {
	Kind     EffectKind
	Point    Vec3
	Normal   Vec3
	Duration float64
	Timer    float64 // seconds left
}

// Alpha fades linearly over the flash's life.
func (f *ImpactFlash) Alpha() float64 {
	if f.Duration <= 0 {
		return 0
	}
	return f.Timer / f.Duration
}

// Update ages the flash. Returns false once it has finished.
func (f *ImpactFlash) Update(dt float64) bool {
	f.Timer -= dt
	return f.Timer > 0
}

// MaxShakeIntensity caps screen shake.
const MaxShakeIntensity = 1.0

// ScreenShake is camera shake triggered by target destruction.
type ScreenShake struct {
	Intensity float64
	Timer     float64
	OffsetX   float64
	OffsetY   float64
}

// Update decays the shake. Offsets come from a small LCG so replays match.
func (s *ScreenShake) Update(dt float64, seed int64) bool {
	s.Timer -= dt
	s.Intensity *= 0.8

	seed += int64(s.Timer * 1000)
	x := float64((seed*1103515245+12345)&0xff) / 256.0
	y := float64((seed*1103515245*2+12345)&0xff) / 256.0
	s.OffsetX = (x - 0.5) * 2 * s.Intensity
	s.OffsetY = (y - 0.5) * 2 * s.Intensity

	return s.Timer > 0 && s.Intensity > 0.01
}

// EffectBoard is the default EffectPlayer. It keeps a bounded list of live
// flashes for snapshots; once the cap is hit new flashes are not drawn, but
// Play still reports the full duration so entity timing is unaffected.
type EffectBoard struct {
	durations EffectDurations
	flashes   []ImpactFlash
	max       int
	dropped   uint64
	shake     ScreenShake
}

// NewEffectBoard builds a board holding at most max live flashes.
func NewEffectBoard(durations EffectDurations, max int) *EffectBoard {
	if max < 1 {
		max = 1
	}
	return &EffectBoard{
		durations: durations,
		flashes:   make([]ImpactFlash, 0, max),
		max:       max,
	}
}

// Play starts an effect and returns its duration.
func (b *EffectBoard) Play(kind EffectKind, point, normal Vec3) float64 {
	d := b.Duration(kind)
	if kind == EffectTargetDestroy {
		b.shake = ScreenShake{Intensity: MaxShakeIntensity * 0.5, Timer: d * 0.5}
	}
	if len(b.flashes) >= b.max {
		b.dropped++
		return d
	}
	b.flashes = append(b.flashes, ImpactFlash{Kind: kind, Point: point, Normal: normal, Duration: d, Timer: d})
	return d
}

// Duration returns the configured length of an effect.
func (b *EffectBoard) Duration(kind EffectKind) float64 {
	if kind == EffectTargetDestroy {
		return b.durations.TargetDestroy
	}
	return b.durations.BulletHit
}

// Update ages every flash (zero-allocation in-place filtering).
func (b *EffectBoard) Update(dt float64, seed int64) {
	n := 0
	for i := range b.flashes {
		if b.flashes[i].Update(dt) {
			b.flashes[n] = b.flashes[i]
			n++
		}
	}
	b.flashes = b.flashes[:n]

	if b.shake.Timer > 0 && !b.shake.Update(dt, seed) {
		b.shake = ScreenShake{}
	}
}

// Clear drops every live effect.
func (b *EffectBoard) Clear() {
	b.flashes = b.flashes[:0]
	b.shake = ScreenShake{}
}

func (b *EffectBoard) Flashes() []ImpactFlash { return b.flashes }
func (b *EffectBoard) Shake() ScreenShake     { return b.shake }
func (b *EffectBoard) Dropped() uint64        { return b.dropped }
