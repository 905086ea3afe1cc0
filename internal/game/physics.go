package game

import (
	"math"

	"shooting-range/internal/game/spatial"
	"shooting-range/internal/pool"
)

// Physics is the default collision source: swept bullet/target tests over a
// floor grid, a world boundary for bullets, and death-area sensors for
// targets.
type Physics struct {
	bounds     Box
	deathZones []Shape
	grid       *spatial.Grid
	maxRadius  float64
}

// NewPhysics builds a collision source for the given world.
func NewPhysics(bounds Box, deathZones []Shape, cellSize float64, maxTargets int) *Physics {
	lo, hi := bounds.Bounds()
	return &Physics{
		bounds:     bounds,
		deathZones: deathZones,
		grid:       spatial.NewGrid(lo.X, lo.Z, hi.X-lo.X, hi.Z-lo.Z, cellSize, maxTargets),
	}
}

func (p *Physics) Bounds() Box              { return p.bounds }
func (p *Physics) DeathZones() []Shape      { return p.deathZones }
func (p *Physics) GridStats() spatial.Stats { return p.grid.Stats() }

// Rebuild indexes every active target by slot.
func (p *Physics) Rebuild(targets *pool.Pool[Target]) {
	p.grid.Clear()
	p.maxRadius = 0
	targets.Each(func(_ pool.Handle, t *Target) {
		if t.State() != TargetActive {
			return
		}
		p.grid.Insert(uint32(t.Slot), t.Position.X, t.Position.Z)
		if r := t.Radius(); r > p.maxRadius {
			p.maxRadius = r
		}
	})
}

// Sweep finds the first contact along the bullet's last step. Targets win
// over the boundary when both are crossed in the same step.
func (p *Physics) Sweep(b *Bullet, targets *pool.Pool[Target]) (Contact, bool) {
	if b.State() != BulletLaunched {
		return Contact{}, false
	}
	from, to := b.Previous, b.Position
	half := b.Config().Size * 0.5

	mid := from.Add(to).Scale(0.5)
	reach := from.DistTo(to)*0.5 + p.maxRadius + half
	bestT := math.Inf(1)
	var best *Target
	for _, id := range p.grid.QueryRadius(mid.X, mid.Z, reach) {
		t := targets.Slot(int(id))
		if t == nil || t.State() != TargetActive {
			continue
		}
		if hitT, ok := segmentSphere(from, to, t.Position, t.Radius()+half); ok && hitT < bestT {
			bestT, best = hitT, t
		}
	}
	if best != nil {
		point := from.Add(to.Sub(from).Scale(bestT))
		normal := point.Sub(best.Position).Normalize()
		if normal.IsZero() {
			normal = b.Config().Direction.Scale(-1)
		}
		return Contact{Tag: TagTarget, Point: point, Normal: normal, Target: best}, true
	}

	if !p.bounds.Contains(to) {
		point, normal := p.clampToBounds(to)
		return Contact{Tag: TagBoundary, Point: point, Normal: normal}, true
	}
	return Contact{}, false
}

// Sense returns TagDeathArea when a target is inside a death zone or has
// left the world.
func (p *Physics) Sense(t *Target) Tag {
	if t.State() != TargetActive {
		return TagNone
	}
	if !p.bounds.Contains(t.Position) {
		return TagDeathArea
	}
	for _, z := range p.deathZones {
		if z.Contains(t.Position) {
			return TagDeathArea
		}
	}
	return TagNone
}

// clampToBounds pulls a point back inside the world and returns the inward
// normal of the face it was pushed through furthest.
func (p *Physics) clampToBounds(v Vec3) (Vec3, Vec3) {
	lo, hi := p.bounds.Bounds()
	c := Vec3{clamp(v.X, lo.X, hi.X), clamp(v.Y, lo.Y, hi.Y), clamp(v.Z, lo.Z, hi.Z)}
	d := v.Sub(c)
	ax, ay, az := math.Abs(d.X), math.Abs(d.Y), math.Abs(d.Z)
	var n Vec3
	switch {
	case ax >= ay && ax >= az:
		n.X = -math.Copysign(1, d.X)
	case ay >= az:
		n.Y = -math.Copysign(1, d.Y)
	default:
		n.Z = -math.Copysign(1, d.Z)
	}
	return c, n
}

// segmentSphere returns the fraction along from->to where the segment first
// touches the sphere. A segment starting inside reports 0.
func segmentSphere(from, to, center Vec3, radius float64) (float64, bool) {
	d := to.Sub(from)
	f := from.Sub(center)
	c := f.Dot(f) - radius*radius
	if c <= 0 {
		return 0, true
	}
	a := d.Dot(d)
	if a == 0 {
		return 0, false
	}
	b := 2 * f.Dot(d)
	disc := b*b - 4*a*c
	if disc < 0 {
		return 0, false
	}
	t := (-b - math.Sqrt(disc)) / (2 * a)
	if t < 0 || t > 1 {
		return 0, false
	}
	return t, true
}
