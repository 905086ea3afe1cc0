package scripting

import (
	"math"
	"os"
	"path/filepath"
	"testing"

	"shooting-range/internal/game"
)

// TestShippedScoring loads the repository scoring script
func TestShippedScoring(t *testing.T) {
	e, err := NewEngine(filepath.Join("..", "..", "scripts"), nil)
	if err != nil {
		t.Fatalf("NewEngine failed: %v", err)
	}
	defer e.Close()

	if !e.HasScore() {
		t.Fatal("calc_score not loaded")
	}
	tests := []struct {
		tier     int
		health   float64
		expected int
	}{
		{0, 1, 100},
		{1, 2, 200},
		{2, 3, 350},
	}
	for _, tt := range tests {
		if got := e.Score(tt.tier, tt.health); got != tt.expected {
			t.Errorf("Score(%d, %v): expected %d, got %d", tt.tier, tt.health, tt.expected, got)
		}
	}
}

// TestScoreFallback tests every path back to the Go default
func TestScoreFallback(t *testing.T) {
	tests := []struct {
		name string
		src  string
	}{
		{"missing", ""},
		{"runtime error", "function calc_score(t, h) error('boom') end"},
		{"non-number", "function calc_score(t, h) return 'lots' end"},
		{"nan", "function calc_score(t, h) return 0/0 end"},
		{"infinite", "function calc_score(t, h) return math.huge end"},
		{"negative infinite", "function calc_score(t, h) return -1/0 end"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e, err := NewEngine("", nil)
			if err != nil {
				t.Fatalf("NewEngine failed: %v", err)
			}
			defer e.Close()
			if tt.src != "" {
				if err := e.LoadString(tt.src); err != nil {
					t.Fatalf("LoadString failed: %v", err)
				}
			}
			if got, want := e.Score(2, 3), game.DefaultScore(2, 3); got != want {
				t.Errorf("Expected fallback %d, got %d", want, got)
			}
		})
	}
}

// TestBadScript fails engine creation
// TestScoreClamped tests oversized finite results saturate
func TestScoreClamped(t *testing.T) {
	tests := []struct {
		name     string
		src      string
		expected int
	}{
		{"huge", "function calc_score(t, h) return 1e300 end", math.MaxInt32},
		{"tiny", "function calc_score(t, h) return -1e300 end", math.MinInt32},
		{"fraction", "function calc_score(t, h) return 12.9 end", 12},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e, err := NewEngine("", nil)
			if err != nil {
				t.Fatalf("NewEngine failed: %v", err)
			}
			defer e.Close()
			if err := e.LoadString(tt.src); err != nil {
				t.Fatalf("LoadString failed: %v", err)
			}
			if got := e.Score(1, 1); got != tt.expected {
				t.Errorf("Expected %d, got %d", tt.expected, got)
			}
		})
	}
}

func TestBadScript(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "broken.lua"), []byte("function ("), 0644); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}
	if _, err := NewEngine(dir, nil); err == nil {
		t.Error("Expected a load error")
	}
}

// TestScoreboardUsesScript wires the engine into the scoreboard
func TestScoreboardUsesScript(t *testing.T) {
	e, _ := NewEngine("", nil)
	defer e.Close()
	if err := e.LoadString("function calc_score(t, h) return t * 10 + h end"); err != nil {
		t.Fatalf("LoadString failed: %v", err)
	}
	sb := game.NewScoreboard(e.Score, 3)
	if pts := sb.Record("lane", 2, 3); pts != 23 {
		t.Errorf("Expected 23 points, got %d", pts)
	}
}
