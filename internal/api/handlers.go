package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"shooting-range/internal/game"
	"shooting-range/internal/pool"
)

// MaxSpawnHealth caps debug spawns.
const MaxSpawnHealth = 100

func (h *routerHandlers) handleGetState(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, h.rng.GetSnapshot())
}

func (h *routerHandlers) handleGetStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, h.rng.Stats())
}

func (h *routerHandlers) handleGetPools(w http.ResponseWriter, r *http.Request) {
	stats := h.rng.Stats()
	writeJSON(w, map[string]pool.Stats{
		"bullets": stats.Bullets,
		"targets": stats.Targets,
	})
}

func (h *routerHandlers) handleGetScore(w http.ResponseWriter, r *http.Request) {
	stats := h.rng.Stats()
	writeJSON(w, map[string]interface{}{
		"score":     stats.Score,
		"destroyed": stats.Counters.DestroyedByDamage,
		"areas":     h.rng.Scoreboard(),
	})
}

func (h *routerHandlers) handleGetFrame(w http.ResponseWriter, r *http.Request) {
	if h.renderer == nil {
		writeError(w, "Rendering disabled", http.StatusNotImplemented)
		return
	}
	snap := h.rng.GetSnapshot()
	start := time.Now()
	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "no-store")
	if err := h.renderer.WritePNG(w, &snap); err != nil {
		writeError(w, err.Error(), http.StatusInternalServerError)
		return
	}
	RecordRender(time.Since(start))
}

func (h *routerHandlers) handleGetWeapons(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, game.GetAllWeapons())
}

func (h *routerHandlers) handleTriggerPull(w http.ResponseWriter, r *http.Request) {
	fired := h.rng.PullTrigger()
	writeJSON(w, map[string]interface{}{
		"fired":  fired,
		"weapon": h.rng.Stats().Weapon,
	})
}

func (h *routerHandlers) handleTriggerRelease(w http.ResponseWriter, r *http.Request) {
	h.rng.ReleaseTrigger()
	writeJSON(w, map[string]interface{}{
		"success": true,
		"weapon":  h.rng.Stats().Weapon,
	})
}

func (h *routerHandlers) handleWeaponReset(w http.ResponseWriter, r *http.Request) {
	h.rng.ResetWeapon()
	writeJSON(w, map[string]bool{"success": true})
}

func (h *routerHandlers) handleAim(w http.ResponseWriter, r *http.Request) {
	var req game.Vec3
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "Invalid request", http.StatusBadRequest)
		return
	}
	h.rng.Aim(req)
	writeJSON(w, h.rng.GetSnapshot().Weapon)
}

func (h *routerHandlers) handleSpawnerStart(w http.ResponseWriter, r *http.Request) {
	if err := h.rng.StartSpawning(); err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, game.ErrNoSpawnAreas) {
			status = http.StatusConflict
		}
		writeError(w, err.Error(), status)
		return
	}
	writeJSON(w, map[string]bool{"success": true})
}

func (h *routerHandlers) handleSpawnerStop(w http.ResponseWriter, r *http.Request) {
	h.rng.StopSpawning()
	writeJSON(w, map[string]bool{"success": true})
}

func (h *routerHandlers) handleTargetSpawn(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Health int `json:"health"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "Invalid request", http.StatusBadRequest)
		return
	}
	if req.Health < 1 || req.Health > MaxSpawnHealth {
		writeError(w, "Health must be between 1 and 100", http.StatusBadRequest)
		return
	}

	report, err := h.rng.SpawnTarget(req.Health)
	switch {
	case errors.Is(err, pool.ErrPoolExhausted):
		writeError(w, "Target pool exhausted", http.StatusServiceUnavailable)
		return
	case errors.Is(err, game.ErrNoSpawnAreas):
		writeError(w, err.Error(), http.StatusConflict)
		return
	case err != nil:
		writeError(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, map[string]interface{}{
		"handle":   report.Handle.String(),
		"slot":     report.Handle.Index(),
		"area":     report.Area,
		"point":    report.Point,
		"health":   report.Health,
		"attempts": report.Attempts,
	})
}

func (h *routerHandlers) handleClear(w http.ResponseWriter, r *http.Request) {
	h.rng.Clear()
	writeJSON(w, map[string]bool{"success": true})
}

func writeJSON(w http.ResponseWriter, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, message string, code int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}
