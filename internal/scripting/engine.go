// Package scripting hosts the Lua scoring rules.
package scripting

import (
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sync"

	lua "github.com/yuin/gopher-lua"
	"go.uber.org/zap"

	"shooting-range/internal/game"
)

// Engine wraps a single gopher-lua VM. Calls are serialized.
type Engine struct {
	mu  sync.Mutex
	vm  *lua.LState
	log *zap.Logger
}

// NewEngine creates a Lua engine and loads every .lua file in scriptsDir.
// A missing directory loads nothing and every call falls back to Go.
func NewEngine(scriptsDir string, log *zap.Logger) (*Engine, error) {
	if log == nil {
		log = zap.NewNop()
	}
	vm := lua.NewState(lua.Options{
		SkipOpenLibs: false,
	})
	vm.SetGlobal("API_VERSION", lua.LNumber(1))

	e := &Engine{vm: vm, log: log}
	if err := e.loadDir(scriptsDir); err != nil {
		vm.Close()
		return nil, fmt.Errorf("load scripts: %w", err)
	}
	return e, nil
}

// LoadString runs a chunk of Lua source, replacing any globals it defines.
func (e *Engine) LoadString(src string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.vm.DoString(src)
}

func (e *Engine) loadDir(dir string) error {
	if dir == "" {
		return nil
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".lua" {
			continue
		}
		path := filepath.Join(dir, entry.Name())
		if err := e.vm.DoFile(path); err != nil {
			return fmt.Errorf("load %s: %w", path, err)
		}
		e.log.Debug("loaded lua script", zap.String("file", path))
	}
	return nil
}

// Score calls Lua calc_score(tier, initial_health). Missing functions,
// runtime errors, non-numeric and non-finite results fall back to
// game.DefaultScore; finite results are clamped to the int32 range.
// The method value satisfies game.ScoreFunc.
func (e *Engine) Score(tier int, initialHealth float64) int {
	e.mu.Lock()
	defer e.mu.Unlock()

	fn := e.vm.GetGlobal("calc_score")
	if fn == lua.LNil {
		return game.DefaultScore(tier, initialHealth)
	}
	if err := e.vm.CallByParam(lua.P{
		Fn:      fn,
		NRet:    1,
		Protect: true,
	}, lua.LNumber(tier), lua.LNumber(initialHealth)); err != nil {
		e.log.Error("lua calc_score error", zap.Error(err))
		return game.DefaultScore(tier, initialHealth)
	}

	result := e.vm.Get(-1)
	e.vm.Pop(1)
	n, ok := result.(lua.LNumber)
	if !ok {
		e.log.Error("lua calc_score returned non-number", zap.String("type", result.Type().String()))
		return game.DefaultScore(tier, initialHealth)
	}
	f := float64(n)
	if math.IsNaN(f) || math.IsInf(f, 0) {
		e.log.Error("lua calc_score returned non-finite number", zap.Float64("result", f))
		return game.DefaultScore(tier, initialHealth)
	}
	return int(math.Max(math.MinInt32, math.Min(math.MaxInt32, f)))
}

// HasScore reports whether a calc_score function is loaded.
func (e *Engine) HasScore() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.vm.GetGlobal("calc_score") != lua.LNil
}

// Close releases the Lua VM.
func (e *Engine) Close() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.vm.Close()
}
