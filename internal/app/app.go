// Package app assembles a Range and its collaborators from configuration.
package app

import (
	"fmt"

	"go.uber.org/zap"

	"shooting-range/internal/audio"
	"shooting-range/internal/config"
	"shooting-range/internal/data"
	"shooting-range/internal/game"
	"shooting-range/internal/scripting"
)

// App owns a range and whatever it was built with.
type App struct {
	Range   *game.Range
	Areas   *data.AreaTable   // nil when the built-in lane is used
	Scripts *scripting.Engine // nil when scripting is off
	Sounds  *audio.Bank       // nil when audio is off
	log     *zap.Logger
}

// Build validates cfg, loads spawn data, scripts and sounds, and constructs
// the range. The range is not started.
func Build(cfg *config.Config, log *zap.Logger) (*App, error) {
	if log == nil {
		log = zap.NewNop()
	}
	for _, e := range cfg.Validate() {
		log.Warn("configuration corrected", zap.Error(e))
	}

	a := &App{log: log}
	var areas []game.SpawnArea
	var deathZones []game.Shape
	if cfg.Data.SpawnAreas != "" {
		table, err := data.LoadSpawnAreas(cfg.Data.SpawnAreas)
		if err != nil {
			return nil, err
		}
		a.Areas = table
		areas, deathZones = table.Areas(), table.DeathZones()
		log.Info("spawn areas loaded",
			zap.String("path", cfg.Data.SpawnAreas),
			zap.Int("areas", len(areas)),
			zap.Int("deathZones", len(deathZones)))
	}

	opts := game.Options{Logger: log}

	if cfg.Scripts.Dir != "" {
		eng, err := scripting.NewEngine(cfg.Scripts.Dir, log)
		if err != nil {
			return nil, fmt.Errorf("load scripts: %w", err)
		}
		a.Scripts = eng
		if eng.HasScore() {
			opts.Score = eng.Score
		}
	}

	if cfg.Audio.Enabled {
		bank, err := audio.NewBank(audio.Config{
			SampleRate: cfg.Audio.SampleRate,
			Volume:     cfg.Audio.Volume,
			Dir:        cfg.Audio.Dir,
		}, log)
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("load sounds: %w", err)
		}
		a.Sounds = bank
		opts.Sounds = bank
	}

	a.Range = game.NewRange(cfg.RangeConfig(areas, deathZones), opts)
	return a, nil
}

// Close releases scripts and audio. It does not stop the range.
func (a *App) Close() {
	if a.Sounds != nil {
		a.Sounds.Close()
	}
	if a.Scripts != nil {
		a.Scripts.Close()
	}
}
