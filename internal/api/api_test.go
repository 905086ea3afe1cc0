package api_test

import (
	"bytes"
	"encoding/json"
	"errors"
	"image"
	"image/png"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"shooting-range/internal/api"
	"shooting-range/internal/game"
	"shooting-range/internal/pool"
)

// MockRange implements api.RangeController for testing
type MockRange struct {
	mu        sync.Mutex
	held      bool
	pulls     int
	resets    int
	spawning  bool
	aim       game.Vec3
	spawnErr  error
	startErr  error
	spawned   []int
	cleared   bool
	targets   []game.TargetSnapshot
	scoreRows []game.ScoreEntry
}

func (m *MockRange) GetSnapshot() game.RangeSnapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	return game.RangeSnapshot{
		Session:  "test-session",
		Targets:  append([]game.TargetSnapshot(nil), m.targets...),
		Spawning: m.spawning,
		Weapon:   game.WeaponSnapshot{TriggerHeld: m.held, Forward: m.aim},
	}
}

func (m *MockRange) Stats() game.RangeStats {
	m.mu.Lock()
	defer m.mu.Unlock()
	return game.RangeStats{
		Session:  "test-session",
		Spawning: m.spawning,
		Weapon:   "ready",
		Bullets:  pool.Stats{Capacity: 4, Available: 4},
		Targets:  pool.Stats{Capacity: 2, Available: 1, InUse: 1},
		Score:    300,
	}
}

func (m *MockRange) Scoreboard() []game.ScoreEntry { return m.scoreRows }

func (m *MockRange) PullTrigger() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.held = true
	m.pulls++
	return true
}

func (m *MockRange) ReleaseTrigger() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.held = false
}

func (m *MockRange) ResetWeapon() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.resets++
}

func (m *MockRange) Aim(p game.Vec3) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.aim = p
}

func (m *MockRange) StartSpawning() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.startErr != nil {
		return m.startErr
	}
	m.spawning = true
	return nil
}

func (m *MockRange) StopSpawning() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.spawning = false
}

func (m *MockRange) SpawnTarget(health int) (game.SpawnReport, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.spawnErr != nil {
		return game.SpawnReport{}, m.spawnErr
	}
	m.spawned = append(m.spawned, health)
	return game.SpawnReport{
		Handle:   pool.Handle(1<<32 | 0),
		Area:     "lane",
		Health:   health,
		Attempts: 1,
	}, nil
}

func (m *MockRange) Clear() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cleared = true
}

func (m *MockRange) pullCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.pulls
}

type stubRenderer struct{ err error }

func (s stubRenderer) WritePNG(w io.Writer, _ *game.RangeSnapshot) error {
	if s.err != nil {
		return s.err
	}
	return png.Encode(w, image.NewRGBA(image.Rect(0, 0, 4, 4)))
}

func newTestServer(t *testing.T, rng api.RangeController, r api.FrameRenderer) *httptest.Server {
	t.Helper()
	limiter := api.NewIPRateLimiter(api.RateLimitConfig{
		RequestsPerSecond: 1000,
		Burst:             1000,
		CleanupInterval:   time.Hour,
	})
	t.Cleanup(limiter.Stop)

	ts := httptest.NewServer(api.NewRouter(api.RouterConfig{
		Range:       rng,
		Renderer:    r,
		RateLimiter: limiter,
	}))
	t.Cleanup(ts.Close)
	return ts
}

func post(t *testing.T, url, body string) *http.Response {
	t.Helper()
	resp, err := http.Post(url, "application/json", bytes.NewReader([]byte(body)))
	if err != nil {
		t.Fatalf("Request failed: %v", err)
	}
	return resp
}

func TestAPIGetState(t *testing.T) {
	mock := &MockRange{targets: []game.TargetSnapshot{{Slot: 0, State: "active"}, {Slot: 1, State: "active"}}}
	ts := newTestServer(t, mock, nil)

	resp, err := http.Get(ts.URL + "/api/state")
	if err != nil {
		t.Fatalf("Request failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Errorf("Expected 200, got %d", resp.StatusCode)
	}

	var snap game.RangeSnapshot
	if err := json.NewDecoder(resp.Body).Decode(&snap); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if len(snap.Targets) != 2 {
		t.Errorf("Expected 2 targets, got %d", len(snap.Targets))
	}
	if snap.Session != "test-session" {
		t.Errorf("Expected session test-session, got %q", snap.Session)
	}
}

func TestAPIViews(t *testing.T) {
	mock := &MockRange{scoreRows: []game.ScoreEntry{{Area: "left", Destroyed: 3, Points: 300}}}
	ts := newTestServer(t, mock, nil)

	tests := []struct {
		path string
		key  string
	}{
		{"/api/stats", "counters"},
		{"/api/pools", "targets"},
		{"/api/score", "areas"},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			resp, err := http.Get(ts.URL + tt.path)
			if err != nil {
				t.Fatalf("Request failed: %v", err)
			}
			defer resp.Body.Close()
			if resp.StatusCode != http.StatusOK {
				t.Fatalf("Expected 200, got %d", resp.StatusCode)
			}
			var result map[string]json.RawMessage
			if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
				t.Fatalf("Failed to decode response: %v", err)
			}
			if _, ok := result[tt.key]; !ok {
				t.Errorf("Expected key %q in %v", tt.key, result)
			}
		})
	}
}

func TestAPIGetWeapons(t *testing.T) {
	ts := newTestServer(t, &MockRange{}, nil)

	resp, err := http.Get(ts.URL + "/api/weapons")
	if err != nil {
		t.Fatalf("Request failed: %v", err)
	}
	defer resp.Body.Close()

	var weapons []game.Weapon
	if err := json.NewDecoder(resp.Body).Decode(&weapons); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if len(weapons) != len(game.Weapons) {
		t.Errorf("Expected %d weapons, got %d", len(game.Weapons), len(weapons))
	}
}

func TestAPITriggerControl(t *testing.T) {
	mock := &MockRange{}
	ts := newTestServer(t, mock, nil)

	resp := post(t, ts.URL+"/api/trigger/pull", "")
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("Pull: expected 200, got %d", resp.StatusCode)
	}
	if !mock.GetSnapshot().Weapon.TriggerHeld {
		t.Error("Trigger should be held after pull")
	}

	resp = post(t, ts.URL+"/api/trigger/release", "")
	resp.Body.Close()
	if mock.GetSnapshot().Weapon.TriggerHeld {
		t.Error("Trigger should be released")
	}

	resp = post(t, ts.URL+"/api/weapon/reset", "")
	resp.Body.Close()
	if mock.resets != 1 {
		t.Errorf("Expected 1 reset, got %d", mock.resets)
	}

	resp = post(t, ts.URL+"/api/aim", `{"x":1,"y":2,"z":3}`)
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("Aim: expected 200, got %d", resp.StatusCode)
	}
	if mock.aim != (game.Vec3{X: 1, Y: 2, Z: 3}) {
		t.Errorf("Expected aim (1,2,3), got %v", mock.aim)
	}

	resp = post(t, ts.URL+"/api/aim", `{bad}`)
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("Bad aim: expected 400, got %d", resp.StatusCode)
	}
}

func TestAPISpawner(t *testing.T) {
	mock := &MockRange{}
	ts := newTestServer(t, mock, nil)

	resp := post(t, ts.URL+"/api/spawner/start", "")
	resp.Body.Close()
	if !mock.spawning {
		t.Error("Spawner should be running after start")
	}
	resp = post(t, ts.URL+"/api/spawner/stop", "")
	resp.Body.Close()
	if mock.spawning {
		t.Error("Spawner should be stopped")
	}

	mock.startErr = game.ErrNoSpawnAreas
	resp = post(t, ts.URL+"/api/spawner/start", "")
	resp.Body.Close()
	if resp.StatusCode != http.StatusConflict {
		t.Errorf("Expected 409 without areas, got %d", resp.StatusCode)
	}
}

func TestAPITargetSpawn(t *testing.T) {
	tests := []struct {
		name       string
		body       string
		spawnErr   error
		wantStatus int
	}{
		{"valid", `{"health": 3}`, nil, http.StatusOK},
		{"zero health", `{"health": 0}`, nil, http.StatusBadRequest},
		{"too much health", `{"health": 101}`, nil, http.StatusBadRequest},
		{"invalid json", `{invalid}`, nil, http.StatusBadRequest},
		{"pool exhausted", `{"health": 1}`, pool.ErrPoolExhausted, http.StatusServiceUnavailable},
		{"no areas", `{"health": 1}`, game.ErrNoSpawnAreas, http.StatusConflict},
		{"other error", `{"health": 1}`, errors.New("boom"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mock := &MockRange{spawnErr: tt.spawnErr}
			ts := newTestServer(t, mock, nil)

			resp := post(t, ts.URL+"/api/targets/spawn", tt.body)
			defer resp.Body.Close()
			if resp.StatusCode != tt.wantStatus {
				t.Errorf("Expected %d, got %d", tt.wantStatus, resp.StatusCode)
			}
			if tt.wantStatus != http.StatusOK {
				return
			}
			var result map[string]interface{}
			json.NewDecoder(resp.Body).Decode(&result)
			if result["area"] != "lane" {
				t.Errorf("Expected area lane, got %v", result["area"])
			}
			if len(mock.spawned) != 1 || mock.spawned[0] != 3 {
				t.Errorf("Expected one spawn with health 3, got %v", mock.spawned)
			}
		})
	}
}

func TestAPIClear(t *testing.T) {
	mock := &MockRange{}
	ts := newTestServer(t, mock, nil)

	resp := post(t, ts.URL+"/api/clear", "")
	resp.Body.Close()
	if !mock.cleared {
		t.Error("Range should be cleared")
	}
}

func TestAPIFrame(t *testing.T) {
	t.Run("disabled", func(t *testing.T) {
		ts := newTestServer(t, &MockRange{}, nil)
		resp, err := http.Get(ts.URL + "/api/frame.png")
		if err != nil {
			t.Fatalf("Request failed: %v", err)
		}
		resp.Body.Close()
		if resp.StatusCode != http.StatusNotImplemented {
			t.Errorf("Expected 501, got %d", resp.StatusCode)
		}
	})

	t.Run("png", func(t *testing.T) {
		ts := newTestServer(t, &MockRange{}, stubRenderer{})
		resp, err := http.Get(ts.URL + "/api/frame.png")
		if err != nil {
			t.Fatalf("Request failed: %v", err)
		}
		defer resp.Body.Close()
		if ct := resp.Header.Get("Content-Type"); ct != "image/png" {
			t.Errorf("Expected image/png, got %q", ct)
		}
		if _, err := png.Decode(resp.Body); err != nil {
			t.Errorf("Expected valid PNG, got %v", err)
		}
	})
}

func TestAPIRateLimit(t *testing.T) {
	ts := httptest.NewServer(api.NewRouter(api.RouterConfig{
		Range:           &MockRange{},
		RateLimitConfig: &api.RateLimitConfig{RequestsPerSecond: 0.001, Burst: 1, CleanupInterval: time.Hour},
	}))
	defer ts.Close()

	codes := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		resp, err := http.Get(ts.URL + "/api/stats")
		if err != nil {
			t.Fatalf("Request failed: %v", err)
		}
		resp.Body.Close()
		codes = append(codes, resp.StatusCode)
	}
	if codes[0] != http.StatusOK {
		t.Errorf("Expected first request 200, got %d", codes[0])
	}
	if codes[2] != http.StatusTooManyRequests {
		t.Errorf("Expected 429 after burst, got %d", codes[2])
	}
}

func TestAPITargetSpawnThrottled(t *testing.T) {
	spawns := api.NewIPRateLimiter(api.RateLimitConfig{RequestsPerSecond: 0.001, Burst: 1, Reason: "spawn_rate"})
	defer spawns.Stop()
	ts := httptest.NewServer(api.NewRouter(api.RouterConfig{
		Range:           &MockRange{},
		RateLimitConfig: &api.RateLimitConfig{RequestsPerSecond: 1000, Burst: 1000, CleanupInterval: time.Hour},
		SpawnLimiter:    spawns,
	}))
	defer ts.Close()

	first := post(t, ts.URL+"/api/targets/spawn", `{"health": 1}`)
	first.Body.Close()
	if first.StatusCode != http.StatusOK {
		t.Fatalf("Expected first spawn 200, got %d", first.StatusCode)
	}
	second := post(t, ts.URL+"/api/targets/spawn", `{"health": 1}`)
	second.Body.Close()
	if second.StatusCode != http.StatusTooManyRequests {
		t.Errorf("Expected 429 for second spawn, got %d", second.StatusCode)
	}

	// other routes keep their own budget
	pull := post(t, ts.URL+"/api/trigger/pull", "")
	pull.Body.Close()
	if pull.StatusCode != http.StatusOK {
		t.Errorf("Expected trigger pull 200, got %d", pull.StatusCode)
	}
}

func TestWebSocketBroadcastAndCommands(t *testing.T) {
	mock := &MockRange{}
	srv := api.NewServer(api.ServerConfig{
		Range:        mock,
		RateLimit:    api.RateLimitConfig{RequestsPerSecond: 1000, Burst: 1000},
		BroadcastFPS: 50,
	})
	hub := srv.Hub()
	go hub.Run()
	hub.StartBroadcastLoop(50)
	defer hub.Stop()

	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("Dial failed: %v", err)
	}
	defer conn.Close()

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, msg, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("Expected a broadcast, got %v", err)
	}
	var envelope struct {
		Event string            `json:"event"`
		Data  game.RangeSnapshot `json:"data"`
	}
	if err := json.Unmarshal(msg, &envelope); err != nil {
		t.Fatalf("Failed to decode broadcast: %v", err)
	}
	if envelope.Event != "range:state" {
		t.Errorf("Expected range:state, got %q", envelope.Event)
	}
	if envelope.Data.Session != "test-session" {
		t.Errorf("Expected session test-session, got %q", envelope.Data.Session)
	}

	if err := conn.WriteJSON(map[string]string{"cmd": "pull"}); err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	deadline := time.Now().Add(2 * time.Second)
	for mock.pullCount() == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if mock.pullCount() != 1 {
		t.Errorf("Expected 1 pull from websocket command, got %d", mock.pullCount())
	}
}

func TestWebSocketRejectsOrigin(t *testing.T) {
	srv := api.NewServer(api.ServerConfig{
		Range:     &MockRange{},
		Origins:   []string{"http://range.example"},
		RateLimit: api.RateLimitConfig{RequestsPerSecond: 1000, Burst: 1000},
	})
	go srv.Hub().Run()
	defer srv.Hub().Stop()

	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
	header := http.Header{"Origin": []string{"http://evil.example"}}
	_, resp, err := websocket.DefaultDialer.Dial(url, header)
	if err == nil {
		t.Fatal("Expected dial to fail for foreign origin")
	}
	if resp == nil || resp.StatusCode != http.StatusForbidden {
		t.Errorf("Expected 403, got %v", resp)
	}
}
