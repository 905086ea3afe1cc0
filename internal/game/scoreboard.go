package game

import (
	"sort"
	"sync"
)

// ScoreFunc computes points for a destroyed target from its score marker
// tier and initial health.
type ScoreFunc func(tier int, initialHealth float64) int

// DefaultScore gives 100 points per tier step.
func DefaultScore(tier int, _ float64) int {
	return (tier + 1) * 100
}

// ScoreEntry is one spawn area's standing.
type ScoreEntry struct {
	Area      string `json:"area"`
	Points    int    `json:"points"`
	Destroyed int    `json:"destroyed"`
	Rank      int    `json:"rank"`
}

// Scoreboard tallies points for damage kills, ranked by spawn area.
// Instant kills score nothing.
type Scoreboard struct {
	mu      sync.RWMutex
	score   ScoreFunc
	entries map[string]*ScoreEntry
	total   int
	kills   int
	byTier  []int
}

// NewScoreboard builds an empty board. A nil score uses DefaultScore.
func NewScoreboard(score ScoreFunc, tiers int) *Scoreboard {
	if score == nil {
		score = DefaultScore
	}
	if tiers < 1 {
		tiers = 1
	}
	return &Scoreboard{
		score:   score,
		entries: make(map[string]*ScoreEntry),
		byTier:  make([]int, tiers),
	}
}

// Record credits a destroyed target and returns the points awarded.
func (sb *Scoreboard) Record(area string, tier int, initialHealth float64) int {
	pts := sb.score(tier, initialHealth)

	sb.mu.Lock()
	defer sb.mu.Unlock()
	e, ok := sb.entries[area]
	if !ok {
		e = &ScoreEntry{Area: area}
		sb.entries[area] = e
	}
	e.Points += pts
	e.Destroyed++
	sb.total += pts
	sb.kills++
	if tier >= 0 && tier < len(sb.byTier) {
		sb.byTier[tier]++
	}
	return pts
}

// Total returns the session score and damage kills.
func (sb *Scoreboard) Total() (points, destroyed int) {
	sb.mu.RLock()
	defer sb.mu.RUnlock()
	return sb.total, sb.kills
}

// ByTier returns damage kills per score marker tier.
func (sb *Scoreboard) ByTier() []int {
	sb.mu.RLock()
	defer sb.mu.RUnlock()
	return append([]int(nil), sb.byTier...)
}

// GetTop returns the n best areas, highest points first. n <= 0 returns all.
func (sb *Scoreboard) GetTop(n int) []ScoreEntry {
	sb.mu.RLock()
	result := make([]ScoreEntry, 0, len(sb.entries))
	for _, e := range sb.entries {
		result = append(result, *e)
	}
	sb.mu.RUnlock()

	sort.Slice(result, func(i, j int) bool {
		if result[i].Points != result[j].Points {
			return result[i].Points > result[j].Points
		}
		return result[i].Area < result[j].Area
	})
	if n > 0 && n < len(result) {
		result = result[:n]
	}
	for i := range result {
		result[i].Rank = i + 1
	}
	return result
}

// GetRank returns an area's 1-based rank, or 0 if it has not scored.
func (sb *Scoreboard) GetRank(area string) int {
	for _, e := range sb.GetTop(0) {
		if e.Area == area {
			return e.Rank
		}
	}
	return 0
}

// Clear resets the board.
func (sb *Scoreboard) Clear() {
	sb.mu.Lock()
	defer sb.mu.Unlock()
	sb.entries = make(map[string]*ScoreEntry)
	sb.total, sb.kills = 0, 0
	for i := range sb.byTier {
		sb.byTier[i] = 0
	}
}
