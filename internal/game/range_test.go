package game

import (
	"bufio"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"go.uber.org/zap"
)

func testRangeConfig() RangeConfig {
	cfg := DefaultRangeConfig()
	cfg.Seed = 7
	cfg.TargetCapacity = 1
	cfg.BulletCapacity = 4
	cfg.Areas = []SpawnArea{{
		Name:  "lane",
		Shape: Box{Center: Vec3{Y: 1.5, Z: 10}},
	}}
	cfg.Weapon.Muzzle = Vec3{Y: 1.5}
	cfg.Weapon.AimOffset = Vec3{}
	cfg.Weapon.BulletSpeed = 20
	cfg.Effects = EffectDurations{BulletHit: 0.2, TargetDestroy: 1.0}
	return cfg
}

func stepFor(r *Range, seconds, dt float64) {
	for i := 0; i < int(seconds/dt+0.5); i++ {
		r.Step(dt)
	}
}

// TestRangeEndToEnd fires one bullet at a 1-health target and respawns into its slot
func TestRangeEndToEnd(t *testing.T) {
	r := NewRange(testRangeConfig(), Options{Logger: zap.NewNop()})

	first, err := r.SpawnTarget(1)
	if err != nil {
		t.Fatalf("SpawnTarget failed: %v", err)
	}
	if !r.PullTrigger() {
		t.Fatal("PullTrigger did not fire")
	}
	r.ReleaseTrigger()

	// 10 units at 20 u/s: the hit lands within the first second.
	stepFor(r, 0.6, 0.05)
	stats := r.Stats()
	if stats.Counters.DestroyedByDamage != 1 {
		t.Fatalf("Expected 1 destroyed target, got %+v", stats.Counters)
	}
	if stats.Targets.InUse != 1 {
		t.Fatal("Target slot should stay in use during the destruction effect")
	}
	snap := r.GetSnapshot()
	if len(snap.Targets) != 1 || snap.Targets[0].State != TargetDestroying.String() {
		t.Fatalf("Expected a destroying target in the snapshot, got %+v", snap.Targets)
	}
	if snap.Targets[0].ScoreMarker != 0 {
		t.Errorf("Expected score marker 0, got %d", snap.Targets[0].ScoreMarker)
	}

	// Destruction effect is 1s long.
	stepFor(r, 1.1, 0.05)
	stats = r.Stats()
	if stats.Targets.InUse != 0 {
		t.Fatalf("Target should be back in the pool, in use = %d", stats.Targets.InUse)
	}
	if stats.Bullets.InUse != 0 {
		t.Errorf("Bullet should be back in the pool, in use = %d", stats.Bullets.InUse)
	}
	if stats.Score != 100 {
		t.Errorf("Expected score 100, got %d", stats.Score)
	}

	second, err := r.SpawnTarget(1)
	if err != nil {
		t.Fatalf("Respawn failed: %v", err)
	}
	if second.Handle.Index() != first.Handle.Index() {
		t.Errorf("Expected slot %d to be reused, got %d", first.Handle.Index(), second.Handle.Index())
	}
	if second.Handle.Generation() != first.Handle.Generation()+1 {
		t.Errorf("Expected generation %d, got %d", first.Handle.Generation()+1, second.Handle.Generation())
	}
	if stats.Counters.StaleHandles != 0 {
		t.Errorf("Unexpected stale handles: %d", stats.Counters.StaleHandles)
	}
}

// TestRangeDeathZone verifies the instant-kill path frees the slot without an effect
func TestRangeDeathZone(t *testing.T) {
	cfg := testRangeConfig()
	cfg.Areas[0].Direction = Vec3{X: 1}
	cfg.DeathZones = []Shape{Box{Center: Vec3{X: 5, Y: 1.5, Z: 10}, Size: Vec3{X: 2, Y: 4, Z: 4}}}
	r := NewRange(cfg, Options{})

	if _, err := r.SpawnTarget(3); err != nil {
		t.Fatalf("SpawnTarget failed: %v", err)
	}
	stepFor(r, 1.0, 0.05)

	stats := r.Stats()
	if stats.Counters.InstantKills != 1 {
		t.Fatalf("Expected 1 instant kill, got %+v", stats.Counters)
	}
	if stats.Targets.InUse != 0 {
		t.Error("Instant kill should free the slot immediately")
	}
	if stats.Score != 0 {
		t.Errorf("Instant kills should not score, got %d", stats.Score)
	}
	if n := len(r.GetSnapshot().Effects); n != 0 {
		t.Errorf("Instant kill should not leave effects, got %d", n)
	}
}

// TestRangeBoundary verifies a miss is caught by the world boundary
func TestRangeBoundary(t *testing.T) {
	r := NewRange(testRangeConfig(), Options{})
	r.PullTrigger()
	stepFor(r, 3, 0.05)

	stats := r.Stats()
	if stats.Counters.BoundaryHits != 1 {
		t.Errorf("Expected 1 boundary hit, got %+v", stats.Counters)
	}
	if stats.Bullets.InUse != 0 {
		t.Errorf("Bullet should be returned after the boundary hit")
	}
}

// TestRangeSpawning verifies the scheduler fills the pool and skips when full
func TestRangeSpawning(t *testing.T) {
	r := NewRange(testRangeConfig(), Options{})
	if err := r.StartSpawning(); err != nil {
		t.Fatalf("StartSpawning failed: %v", err)
	}
	stepFor(r, 30, 0.1)
	r.StopSpawning()

	stats := r.Stats()
	if stats.Counters.TargetsSpawned != 1 {
		t.Errorf("Expected 1 spawn into a pool of 1, got %d", stats.Counters.TargetsSpawned)
	}
	if stats.Counters.SpawnsSkipped == 0 {
		t.Error("Expected skipped spawns once the pool was full")
	}
	if stats.Spawning {
		t.Error("Spawning should be stopped")
	}
}

// TestRangeClear recalls everything in flight
func TestRangeClear(t *testing.T) {
	r := NewRange(testRangeConfig(), Options{})
	_, _ = r.SpawnTarget(2)
	r.PullTrigger()
	r.Step(0.05)
	r.Clear()

	stats := r.Stats()
	if stats.Bullets.InUse != 0 || stats.Targets.InUse != 0 {
		t.Errorf("Clear left entities in use: bullets %d targets %d", stats.Bullets.InUse, stats.Targets.InUse)
	}
	if stats.Weapon != FireIdle.String() {
		t.Errorf("Expected idle weapon, got %s", stats.Weapon)
	}
}

// TestRangeStartStop verifies the tick loop runs and stops cleanly
func TestRangeStartStop(t *testing.T) {
	cfg := testRangeConfig()
	cfg.TickRate = 100
	r := NewRange(cfg, Options{})

	ticks := make(chan TickStats, 1000)
	r.SetTickHook(func(s TickStats) {
		select {
		case ticks <- s:
		default:
		}
	})

	r.Start()
	r.Start() // second start is a no-op
	time.Sleep(100 * time.Millisecond)
	r.Stop()
	r.Stop()

	if r.Clock() <= 0 {
		t.Error("Clock should have advanced")
	}
	if len(ticks) == 0 {
		t.Error("Tick hook never ran")
	}
}

// TestRangeEventLog verifies events are written as JSONL with the session id
func TestRangeEventLog(t *testing.T) {
	path := filepath.Join(t.TempDir(), "events.jsonl")
	r := NewRange(testRangeConfig(), Options{})
	if err := r.StartEventLog(path); err != nil {
		t.Fatalf("StartEventLog failed: %v", err)
	}
	_, _ = r.SpawnTarget(1)
	r.PullTrigger()
	stepFor(r, 2, 0.05)
	r.StopEventLog()

	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer f.Close()

	types := map[string]int{}
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		var ev struct {
			Type    string `json:"type"`
			Session string `json:"session"`
		}
		if err := json.Unmarshal(sc.Bytes(), &ev); err != nil {
			t.Fatalf("Bad line %q: %v", sc.Text(), err)
		}
		if ev.Session != r.Session() {
			t.Errorf("Expected session %s, got %s", r.Session(), ev.Session)
		}
		types[ev.Type]++
	}
	for _, want := range []string{"tick", "shot", "hit", "target_spawned", "target_destroyed", "target_despawned", "bullet_returned"} {
		if types[want] == 0 {
			t.Errorf("No %s events written (got %v)", want, types)
		}
	}
	if stats := r.GetEventLogStats(); stats.Running || stats.Pending != 0 {
		t.Errorf("Unexpected event log state after stop: %+v", stats)
	}
}
