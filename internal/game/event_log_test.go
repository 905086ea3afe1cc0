package game

import (
	"bufio"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
)

func countLines(t *testing.T, path string) int {
	t.Helper()
	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer f.Close()
	n := 0
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		var ev Event
		if err := json.Unmarshal(sc.Bytes(), &ev); err != nil {
			t.Fatalf("Line %d is not an event: %v", n+1, err)
		}
		n++
	}
	return n
}

// TestEventLogWrite tests that emitted events reach disk in order
func TestEventLogWrite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "events.jsonl")
	el := NewEventLog(0, 0, nil)

	if el.EmitSimple(EventTypeShot, 1, "s", SourceWeapon, nil) {
		t.Error("Emit should fail before Start")
	}
	if err := el.Start(path); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	for i := 0; i < 100; i++ {
		if !el.EmitSimple(EventTypeTick, uint64(i), "s", SourceRange, TickPayload{Clock: float64(i)}) {
			t.Fatalf("Emit %d rejected", i)
		}
	}
	el.Stop()
	el.Stop()

	if n := countLines(t, path); n != 100 {
		t.Errorf("Expected 100 lines, got %d", n)
	}
	stats := el.GetStats()
	if stats.Total != 100 || stats.Pending != 0 || stats.Running {
		t.Errorf("Unexpected stats %+v", stats)
	}

	// Restart appends to the same file.
	if err := el.Start(path); err != nil {
		t.Fatalf("Restart failed: %v", err)
	}
	el.EmitSimple(EventTypeWeaponReset, 101, "s", SourceWeapon, nil)
	el.Stop()
	if n := countLines(t, path); n != 101 {
		t.Errorf("Expected 101 lines after restart, got %d", n)
	}
}

// TestEventLogRateLimit verifies the per-source limiter drops bursts
func TestEventLogRateLimit(t *testing.T) {
	el := NewEventLog(1000, 10, nil)
	if err := el.Start(""); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer el.Stop()

	accepted := 0
	for i := 0; i < 20; i++ {
		if el.EmitSimple(EventTypeHit, 0, "s", SourceBullet, nil) {
			accepted++
		}
	}
	if accepted != 1 {
		t.Errorf("Expected a burst of 1 from a 10/s source, got %d", accepted)
	}
	if el.GetDroppedCount() != 19 {
		t.Errorf("Expected 19 dropped, got %d", el.GetDroppedCount())
	}
	if !el.EmitSimple(EventTypeTargetSpawned, 0, "s", SourceSpawner, nil) {
		t.Error("Other sources should not be throttled")
	}
}

// TestEventTypeNames verifies events serialize their type by name
func TestEventTypeNames(t *testing.T) {
	data, err := json.Marshal(NewEvent(EventTypeTargetDestroyed, 3, "s", SourceTarget, TargetPayload{Tier: 2}))
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}
	var raw map[string]interface{}
	if err := json.Unmarshal(data, &raw); err != nil {
		t.Fatalf("Unmarshal failed: %v", err)
	}
	if raw["type"] != "target_destroyed" {
		t.Errorf("Expected type target_destroyed, got %v", raw["type"])
	}
	if EventType(200).String() != "unknown" {
		t.Error("Unknown types should print as unknown")
	}
}
