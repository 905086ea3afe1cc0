package game

import (
	"math"
	"testing"
)

func testPhysics(deathZones ...Shape) *Physics {
	bounds := Box{Center: Vec3{Z: 10}, Size: Vec3{X: 20, Y: 20, Z: 20}}
	return NewPhysics(bounds, deathZones, 2, 8)
}

func near(a, b float64) bool { return math.Abs(a-b) < 1e-9 }

// TestSegmentSphere tests the swept narrow phase
func TestSegmentSphere(t *testing.T) {
	tests := []struct {
		name     string
		from, to Vec3
		center   Vec3
		radius   float64
		hit      bool
		frac     float64
	}{
		{"head on", Vec3{}, Vec3{Z: 10}, Vec3{Z: 5}, 1, true, 0.4},
		{"starts inside", Vec3{Z: 5}, Vec3{Z: 10}, Vec3{Z: 5}, 1, true, 0},
		{"passes beside", Vec3{}, Vec3{Z: 10}, Vec3{X: 2, Z: 5}, 1, false, 0},
		{"stops short", Vec3{}, Vec3{Z: 3}, Vec3{Z: 5}, 1, false, 0},
		{"behind", Vec3{Z: 7}, Vec3{Z: 10}, Vec3{Z: 5}, 1, false, 0},
		{"zero length outside", Vec3{}, Vec3{}, Vec3{Z: 5}, 1, false, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			frac, hit := segmentSphere(tt.from, tt.to, tt.center, tt.radius)
			if hit != tt.hit {
				t.Fatalf("Expected hit=%v, got %v", tt.hit, hit)
			}
			if hit && !near(frac, tt.frac) {
				t.Errorf("Expected fraction %v, got %v", tt.frac, frac)
			}
		})
	}
}

// TestSweepTarget finds the nearest target along the bullet's step
func TestSweepTarget(t *testing.T) {
	phys := testPhysics()
	targets := newTargetPool(4, &fixedEffects{}, nil)
	spawnTarget(t, targets, 1, Vec3{Z: 8})
	_, nearest := spawnTarget(t, targets, 1, Vec3{Z: 5})
	spawnTarget(t, targets, 1, Vec3{X: 6, Z: 5})

	bullets := newBulletPool(1, &fixedEffects{})
	_, b := launchBullet(t, bullets, BulletConfig{Damage: 1, Speed: 10, Size: 0.1, Direction: Vec3{Z: 1}})
	b.Advance(1)

	phys.Rebuild(targets)
	c, ok := phys.Sweep(b, targets)
	if !ok {
		t.Fatal("Expected a contact")
	}
	if c.Tag != TagTarget {
		t.Fatalf("Expected target contact, got %s", c.Tag)
	}
	if c.Target != nearest {
		t.Error("Expected the nearer target to win")
	}
	if !near(c.Point.Z, 4.45) {
		t.Errorf("Expected contact at z=4.45, got %v", c.Point.Z)
	}
	if !near(c.Normal.Z, -1) {
		t.Errorf("Expected normal facing the shooter, got %v", c.Normal)
	}
}

// TestSweepIgnoresInactive verifies destroying targets no longer block
func TestSweepIgnoresInactive(t *testing.T) {
	phys := testPhysics()
	targets := newTargetPool(1, &fixedEffects{destroy: 1}, nil)
	_, tg := spawnTarget(t, targets, 1, Vec3{Z: 5})
	tg.Hit(1, 0)

	bullets := newBulletPool(1, &fixedEffects{})
	_, b := launchBullet(t, bullets, BulletConfig{Speed: 10, Size: 0.1, Direction: Vec3{Z: 1}})
	b.Advance(1)

	phys.Rebuild(targets)
	if c, ok := phys.Sweep(b, targets); ok {
		t.Errorf("Expected no contact, got %s", c.Tag)
	}
	if phys.GridStats().TotalEntities != 0 {
		t.Error("Destroying target should not be indexed")
	}
}

// TestSweepBoundary verifies a bullet leaving the world hits the boundary
func TestSweepBoundary(t *testing.T) {
	phys := testPhysics()
	targets := newTargetPool(1, &fixedEffects{}, nil)
	bullets := newBulletPool(1, &fixedEffects{})
	_, b := launchBullet(t, bullets, BulletConfig{Speed: 10, Size: 0.1, Direction: Vec3{Z: 1}})

	phys.Rebuild(targets)
	b.Advance(1.5)
	if _, ok := phys.Sweep(b, targets); ok {
		t.Fatal("Bullet still inside the world should not collide")
	}
	b.Advance(1)
	c, ok := phys.Sweep(b, targets)
	if !ok || c.Tag != TagBoundary {
		t.Fatalf("Expected boundary contact, got %v %v", ok, c.Tag)
	}
	if c.Point.Z != 20 {
		t.Errorf("Expected contact clamped to z=20, got %v", c.Point.Z)
	}
	if c.Normal != (Vec3{Z: -1}) {
		t.Errorf("Expected inward normal, got %v", c.Normal)
	}
	if c.Target != nil {
		t.Error("Boundary contact should have no target")
	}
}

// TestSense tests death-area detection
func TestSense(t *testing.T) {
	phys := testPhysics(Sphere{Center: Vec3{X: 5, Z: 10}, Radius: 1})
	targets := newTargetPool(4, &fixedEffects{}, nil)

	tests := []struct {
		name     string
		at       Vec3
		expected Tag
	}{
		{"inside world", Vec3{Z: 10}, TagNone},
		{"in death zone", Vec3{X: 5.5, Z: 10}, TagDeathArea},
		{"out of bounds", Vec3{X: 11, Z: 10}, TagDeathArea},
		{"behind shooter", Vec3{Z: -1}, TagDeathArea},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, tg := spawnTarget(t, targets, 1, tt.at)
			defer tg.Recall()
			if got := phys.Sense(tg); got != tt.expected {
				t.Errorf("Expected %s, got %s", tt.expected, got)
			}
		})
	}

	if got := phys.Sense(targets.Slot(0)); got != TagNone {
		t.Errorf("Idle target should sense nothing, got %s", got)
	}
}
