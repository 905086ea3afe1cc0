package game

import (
	"math"
	"testing"

	"go.uber.org/zap"

	"shooting-range/internal/pool"
)

type weaponRig struct {
	w       *WeaponFireController
	shots   []Shot
	reports []SequenceReport
}

func newWeaponRig(cfg WeaponConfig, capacity int) *weaponRig {
	rig := &weaponRig{}
	p := newBulletPool(capacity, nil)
	rig.w = NewWeaponFireController(cfg, p, nil, zap.NewNop())
	rig.w.SetCallbacks(
		func(s Shot) { rig.shots = append(rig.shots, s) },
		func(r SequenceReport) { rig.reports = append(rig.reports, r) },
	)
	return rig
}

func (r *weaponRig) launched() int {
	n := 0
	for _, s := range r.shots {
		if !s.Skipped {
			n++
		}
	}
	return n
}

// TestBurstPoolExhaustion fires 3 shots into a pool of 2
func TestBurstPoolExhaustion(t *testing.T) {
	cfg := DefaultWeaponConfig()
	cfg.MaxBulletsPerFire = 3
	cfg.FireRate = 0.1
	rig := newWeaponRig(cfg, 2)

	rig.w.PullTrigger(0)
	for now := 0.0; now <= 1.0; now += 0.05 {
		rig.w.Tick(now)
	}

	if got := rig.launched(); got != 2 {
		t.Errorf("Expected 2 launches, got %d", got)
	}
	if len(rig.shots) != 3 {
		t.Errorf("Expected 3 shot attempts, got %d", len(rig.shots))
	}
	if !rig.shots[2].Skipped {
		t.Error("Third shot should be skipped")
	}
	if len(rig.reports) != 1 {
		t.Fatalf("Expected 1 sequence report, got %d", len(rig.reports))
	}
	want := SequenceReport{Requested: 3, Launched: 2, Skipped: 1}
	if rig.reports[0] != want {
		t.Errorf("Expected report %+v, got %+v", want, rig.reports[0])
	}
	if rig.w.State() != FireIdle {
		t.Errorf("Expected idle after sequence, got %v", rig.w.State())
	}
}

// TestBurstCadence verifies shot times and no trailing delay after the last shot
func TestBurstCadence(t *testing.T) {
	cfg := DefaultWeaponConfig()
	cfg.MaxBulletsPerFire = 3
	cfg.FireRate = 0.25
	rig := newWeaponRig(cfg, 10)

	rig.w.PullTrigger(1)
	rig.w.Tick(1.2)
	if len(rig.shots) != 1 {
		t.Fatalf("Expected 1 shot before the first interval, got %d", len(rig.shots))
	}
	rig.w.Tick(1.25)
	rig.w.Tick(1.5)
	if len(rig.shots) != 3 {
		t.Fatalf("Expected 3 shots, got %d", len(rig.shots))
	}
	for i, want := range []float64{1, 1.25, 1.5} {
		if rig.shots[i].At != want {
			t.Errorf("Shot %d expected at %v, got %v", i+1, want, rig.shots[i].At)
		}
	}
	if rig.w.State() != FireIdle {
		t.Error("Sequence should end on the final shot")
	}

	rig.w.ReleaseTrigger(1.5)
	if !rig.w.PullTrigger(1.5) {
		t.Error("A new sequence should start right after the final shot")
	}
}

// TestSemiAuto tests single shot latching until release
func TestSemiAuto(t *testing.T) {
	tests := []struct {
		name      string
		rearm     bool
		wantState FireState
	}{
		{"latched", false, FireLatched},
		{"rearm", true, FireIdle},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultWeaponConfig()
			cfg.RearmOnFire = tt.rearm
			rig := newWeaponRig(cfg, 5)

			if !rig.w.PullTrigger(0) {
				t.Fatal("First pull should fire")
			}
			if rig.w.State() != tt.wantState {
				t.Errorf("Expected %v, got %v", tt.wantState, rig.w.State())
			}
			if rig.w.PullTrigger(0.5) {
				t.Error("Held trigger should not fire again")
			}
			rig.w.Tick(5)
			if rig.launched() != 1 {
				t.Errorf("Expected 1 launch, got %d", rig.launched())
			}

			rig.w.ReleaseTrigger(1)
			if rig.w.State() != FireIdle {
				t.Errorf("Expected idle after release, got %v", rig.w.State())
			}
			rig.w.PullTrigger(1.1)
			if rig.launched() != 2 {
				t.Errorf("Expected 2 launches after re-pull, got %d", rig.launched())
			}
		})
	}
}

// TestTriggerReleaseDuringSequence tests automatic vs burst-only release
func TestTriggerReleaseDuringSequence(t *testing.T) {
	tests := []struct {
		name        string
		burstOnly   bool
		wantShots   int
		interrupted bool
	}{
		{"automatic stops", false, 2, true},
		{"burst only completes", true, 5, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultWeaponConfig()
			cfg.MaxBulletsPerFire = 5
			cfg.FireRate = 0.5
			cfg.BurstOnly = tt.burstOnly
			rig := newWeaponRig(cfg, 10)

			rig.w.PullTrigger(0)
			rig.w.Tick(0.5)
			rig.w.ReleaseTrigger(0.6)
			rig.w.Tick(10)

			if len(rig.shots) != tt.wantShots {
				t.Errorf("Expected %d shots, got %d", tt.wantShots, len(rig.shots))
			}
			if len(rig.reports) != 1 {
				t.Fatalf("Expected 1 report, got %d", len(rig.reports))
			}
			if rig.reports[0].Interrupted != tt.interrupted {
				t.Errorf("Expected interrupted=%v, got %v", tt.interrupted, rig.reports[0].Interrupted)
			}
		})
	}
}

// TestFullReset tests cancelling an in-flight sequence and resetting when idle
func TestFullReset(t *testing.T) {
	cfg := DefaultWeaponConfig()
	cfg.MaxBulletsPerFire = 10
	rig := newWeaponRig(cfg, 20)

	rig.w.FullReset() // idle: no-op
	if len(rig.reports) != 0 {
		t.Error("Reset while idle should not report a sequence")
	}

	rig.w.PullTrigger(0)
	rig.w.FullReset()
	rig.w.Tick(5)
	if len(rig.shots) != 1 {
		t.Errorf("Expected no shots after reset, got %d", len(rig.shots))
	}
	if rig.w.State() != FireIdle || rig.w.TriggerHeld() {
		t.Error("Reset should leave the weapon idle with the trigger up")
	}
	if len(rig.reports) != 1 || !rig.reports[0].Interrupted {
		t.Errorf("Expected one interrupted report, got %+v", rig.reports)
	}
}

// TestWeaponConfigCorrection verifies out-of-range firing settings fall back
// to safe values and are reported
func TestWeaponConfigCorrection(t *testing.T) {
	tests := []struct {
		name  string
		field string
		set   func(c *WeaponConfig)
		check func(c WeaponConfig) bool
	}{
		{"zero fire rate", "weapon.fire_rate", func(c *WeaponConfig) { c.FireRate = 0 }, func(c WeaponConfig) bool { return c.FireRate == DefaultFireRate }},
		{"negative fire rate", "weapon.fire_rate", func(c *WeaponConfig) { c.FireRate = -1 }, func(c WeaponConfig) bool { return c.FireRate == DefaultFireRate }},
		{"negative damage", "weapon.damage", func(c *WeaponConfig) { c.Damage = -1 }, func(c WeaponConfig) bool { return c.Damage == 1 }},
		{"zero damage", "weapon.damage", func(c *WeaponConfig) { c.Damage = 0 }, func(c WeaponConfig) bool { return c.Damage == 1 }},
		{"nan damage", "weapon.damage", func(c *WeaponConfig) { c.Damage = math.NaN() }, func(c WeaponConfig) bool { return c.Damage == 1 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultWeaponConfig()
			tt.set(&cfg)
			errs := cfg.Normalize()
			if len(errs) != 1 || errs[0].Field != tt.field {
				t.Fatalf("Expected one %s error, got %v", tt.field, errs)
			}
			if !tt.check(cfg) {
				t.Errorf("Expected %s to be corrected, got %+v", tt.field, cfg)
			}

			raw := DefaultWeaponConfig()
			tt.set(&raw)
			w := NewWeaponFireController(raw, newBulletPool(1, nil), nil, nil)
			if !tt.check(w.Config()) {
				t.Errorf("Controller kept %s uncorrected: %+v", tt.field, w.Config())
			}
		})
	}
}

// TestLateBurstShotsAdvanced verifies shots that fell due between ticks are
// already travelling when the tick launches them
func TestLateBurstShotsAdvanced(t *testing.T) {
	cfg := DefaultWeaponConfig()
	cfg.Muzzle = Vec3{}
	cfg.MaxBulletsPerFire = 3
	cfg.FireRate = 0.1
	cfg.BulletSpeed = 10
	p := newBulletPool(3, nil)
	w := NewWeaponFireController(cfg, p, nil, nil)
	var handles []pool.Handle
	w.SetCallbacks(func(s Shot) { handles = append(handles, s.Handle) }, nil)

	w.PullTrigger(0)
	w.Tick(0.25)

	if len(handles) != 3 {
		t.Fatalf("Expected 3 shots, got %d", len(handles))
	}
	want := []float64{0, 1.5, 0.5}
	for i, h := range handles {
		b, err := p.Lookup(h)
		if err != nil {
			t.Fatalf("Lookup shot %d failed: %v", i, err)
		}
		if !near(b.Position.Z, want[i]) {
			t.Errorf("Shot %d: expected z %v, got %v", i, want[i], b.Position.Z)
		}
		if !near(b.Age, want[i]/10) {
			t.Errorf("Shot %d: expected age %v, got %v", i, want[i]/10, b.Age)
		}
	}
}

// TestAim tests forward computation from an aim point
func TestAim(t *testing.T) {
	cfg := DefaultWeaponConfig()
	cfg.Muzzle = Vec3{}
	cfg.AimOffset = Vec3{}
	rig := newWeaponRig(cfg, 1)

	rig.w.Aim(Vec3{X: 3, Z: 4})
	got := rig.w.Forward()
	if got.X != 0.6 || got.Z != 0.8 {
		t.Errorf("Expected forward (0.6,0,0.8), got %+v", got)
	}

	rig.w.Aim(Vec3{})
	if rig.w.Forward() != got {
		t.Error("Aiming at the muzzle should keep the previous facing")
	}

	rig.w.PullTrigger(0)
	if rig.shots[0].Forward != got {
		t.Errorf("Shot should use the aimed forward, got %+v", rig.shots[0].Forward)
	}
}
