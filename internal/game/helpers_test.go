package game

import (
	"shooting-range/internal/pool"
)

// fixedEffects reports fixed durations and records every play.
type fixedEffects struct {
	hit, destroy float64
	played       []EffectKind
}

func (f *fixedEffects) Play(kind EffectKind, _, _ Vec3) float64 {
	f.played = append(f.played, kind)
	if kind == EffectTargetDestroy {
		return f.destroy
	}
	return f.hit
}

type recordingAnimator struct {
	triggers []string
}

func (a *recordingAnimator) Trigger(_ pool.Handle, name string) {
	a.triggers = append(a.triggers, name)
}

type recordingSounds struct {
	cues []string
}

func (s *recordingSounds) Play(cue string) { s.cues = append(s.cues, cue) }

// scriptedRandom replays fixed values; Float64Range maps each value in
// [0,1) onto the requested range.
type scriptedRandom struct {
	floats []float64
	ints   []int
	fi, ii int
}

func (r *scriptedRandom) Float64Range(min, max float64) float64 {
	v := 0.5
	if len(r.floats) > 0 {
		v = r.floats[r.fi%len(r.floats)]
		r.fi++
	}
	return min + v*(max-min)
}

func (r *scriptedRandom) Intn(n int) int {
	v := 0
	if len(r.ints) > 0 {
		v = r.ints[r.ii%len(r.ints)]
		r.ii++
	}
	if n <= 0 {
		return 0
	}
	return v % n
}

func newBulletPool(n int, fx EffectPlayer) *pool.Pool[Bullet] {
	return pool.Warm(n, func(i int) Bullet { return NewBullet(i, fx, nil) })
}

func newTargetPool(n int, fx EffectPlayer, anim Animator) *pool.Pool[Target] {
	params := TargetParams{Speed: 5, Radius: 0.5, Tiers: 3}
	return pool.Warm(n, func(i int) Target { return NewTarget(i, params, fx, anim, nil) })
}

// spawnTarget acquires, resets and activates a target at p.
func spawnTarget(t interface{ Fatalf(string, ...interface{}) }, p *pool.Pool[Target], health float64, at Vec3) (pool.Handle, *Target) {
	h, err := p.Acquire()
	if err != nil {
		t.Fatalf("Acquire target failed: %v", err)
	}
	tg, _ := p.Lookup(h)
	if err := tg.Bind(h, p); err != nil {
		t.Fatalf("Bind failed: %v", err)
	}
	if err := tg.Reset(health); err != nil {
		t.Fatalf("Reset failed: %v", err)
	}
	_ = tg.Place(at, "test")
	if err := tg.Activate(); err != nil {
		t.Fatalf("Activate failed: %v", err)
	}
	return h, tg
}
