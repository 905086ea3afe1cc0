// Package config loads range settings from a TOML file with environment
// overrides on top.
//
// Precedence: defaults() < config file < environment.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"

	"github.com/BurntSushi/toml"

	"shooting-range/internal/game"
)

// =============================================================================
// SECTIONS
// =============================================================================

// Config holds the complete application configuration.
type Config struct {
	Server   ServerConfig   `toml:"server"`
	Range    RangeConfig    `toml:"range"`
	Pools    PoolsConfig    `toml:"pools"`
	Weapon   WeaponConfig   `toml:"weapon"`
	Target   TargetConfig   `toml:"target"`
	Spawner  SpawnerConfig  `toml:"spawner"`
	Effects  EffectsConfig  `toml:"effects"`
	Logging  LoggingConfig  `toml:"logging"`
	EventLog EventLogConfig `toml:"event_log"`
	Debug    DebugConfig    `toml:"debug"`
	Data     DataConfig     `toml:"data"`
	Scripts  ScriptsConfig  `toml:"scripts"`
	Audio    AudioConfig    `toml:"audio"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port              int      `toml:"port"`
	AllowedOrigins    []string `toml:"allowed_origins"`
	RequestsPerSecond float64  `toml:"requests_per_second"` // per client IP
	Burst             int      `toml:"burst"`
	BroadcastFPS      int      `toml:"broadcast_fps"` // websocket snapshot rate
	FrameWidth        int      `toml:"frame_width"`
	FrameHeight       int      `toml:"frame_height"`
	IPCSocket         string   `toml:"ipc_socket"` // local viewer feed, empty disables
	IPCFPS            int      `toml:"ipc_fps"`
}

// RangeConfig holds the world and tick settings.
type RangeConfig struct {
	TickRate   int      `toml:"tick_rate"`
	Seed       int64    `toml:"seed"` // 0 picks one from the clock
	Bounds     game.Box `toml:"bounds"`
	CellSize   float64  `toml:"cell_size"`
	MaxEffects int      `toml:"max_effects"`
}

// PoolsConfig sizes the entity pools.
type PoolsConfig struct {
	Bullets int `toml:"bullets"`
	Targets int `toml:"targets"`
}

// WeaponConfig selects a preset or spells out firing settings. A non-empty
// preset wins over the explicit firing fields.
type WeaponConfig struct {
	Preset            string    `toml:"preset"`
	FireRate          float64   `toml:"fire_rate"`
	MaxBulletsPerFire int       `toml:"max_bullets_per_fire"`
	Damage            float64   `toml:"damage"`
	BulletSpeed       float64   `toml:"bullet_speed"`
	BurstOnly         bool      `toml:"burst_only"`
	RearmOnFire       bool      `toml:"rearm_on_fire"`
	Muzzle            game.Vec3 `toml:"muzzle"`
	AimOffset         game.Vec3 `toml:"aim_offset"`
}

type TargetConfig struct {
	Speed  float64 `toml:"speed"`
	Radius float64 `toml:"radius"`
	Tiers  int     `toml:"tiers"`
}

type SpawnerConfig struct {
	MinInterval    float64 `toml:"min_interval"`
	MaxInterval    float64 `toml:"max_interval"`
	MinHealth      int     `toml:"min_health"`
	MaxHealth      int     `toml:"max_health"`
	SampleAttempts int     `toml:"sample_attempts"`
	AutoStart      bool    `toml:"auto_start"`
}

// EffectsConfig holds effect durations in seconds.
type EffectsConfig struct {
	BulletHit     float64 `toml:"bullet_hit"`
	TargetDestroy float64 `toml:"target_destroy"`
}

type LoggingConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"` // "json" or "console"
	Output string `toml:"output"` // file path, empty is stderr
}

type EventLogConfig struct {
	Path         string `toml:"path"` // empty disables the file
	MaxPerSec    int    `toml:"max_per_sec"`
	MaxPerSource int    `toml:"max_per_source"`
}

// DebugConfig controls the localhost pprof/metrics server.
type DebugConfig struct {
	Enabled bool   `toml:"enabled"`
	Address string `toml:"address"`
}

type DataConfig struct {
	SpawnAreas string `toml:"spawn_areas"` // YAML file, empty uses the built-in lane
}

type ScriptsConfig struct {
	Dir string `toml:"dir"` // directory holding scoring.lua, empty disables scripting
}

// AudioConfig holds cue bank settings.
type AudioConfig struct {
	Enabled    bool    `toml:"enabled"`
	SampleRate int     `toml:"sample_rate"`
	Volume     float64 `toml:"volume"` // 0.0 to 1.0
	Dir        string  `toml:"dir"`    // optional <cue>.wav / <cue>.ogg overrides
}

// =============================================================================
// LOADING
// =============================================================================

// Load reads path over the defaults and applies environment overrides. A
// missing file is not an error.
func Load(path string) (*Config, error) {
	cfg := defaults()
	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, fs.ErrNotExist):
		case err != nil:
			return nil, fmt.Errorf("read config %s: %w", path, err)
		default:
			if err := toml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("parse config %s: %w", path, err)
			}
		}
	}
	cfg.applyEnv()
	return cfg, nil
}

func defaults() *Config {
	r := game.DefaultRangeConfig()
	w := game.DefaultWeaponConfig()
	s := game.DefaultSpawnerConfig()
	return &Config{
		Server: ServerConfig{
			Port:              3000,
			AllowedOrigins:    []string{"*"},
			RequestsPerSecond: 20,
			Burst:             40,
			BroadcastFPS:      15,
			FrameWidth:        640,
			FrameHeight:       640,
			IPCFPS:            30,
		},
		Range: RangeConfig{
			TickRate:   r.TickRate,
			Bounds:     r.Bounds,
			CellSize:   r.CellSize,
			MaxEffects: r.Limits.MaxEffects,
		},
		Pools: PoolsConfig{
			Bullets: r.BulletCapacity,
			Targets: r.TargetCapacity,
		},
		Weapon: WeaponConfig{
			FireRate:          w.FireRate,
			MaxBulletsPerFire: w.MaxBulletsPerFire,
			Damage:            w.Damage,
			BulletSpeed:       w.BulletSpeed,
			Muzzle:            w.Muzzle,
			AimOffset:         w.AimOffset,
		},
		Target: TargetConfig{
			Speed:  r.Target.Speed,
			Radius: r.Target.Radius,
			Tiers:  r.Target.Tiers,
		},
		Spawner: SpawnerConfig{
			MinInterval:    s.MinInterval,
			MaxInterval:    s.MaxInterval,
			MinHealth:      s.MinHealth,
			MaxHealth:      s.MaxHealth,
			SampleAttempts: s.SampleAttempts,
		},
		Effects: EffectsConfig{
			BulletHit:     r.Effects.BulletHit,
			TargetDestroy: r.Effects.TargetDestroy,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "console",
		},
		EventLog: EventLogConfig{
			MaxPerSec:    game.MaxEventsPerSec,
			MaxPerSource: game.MaxEventsPerSource,
		},
		Debug: DebugConfig{
			Enabled: true,
			Address: "127.0.0.1:6060",
		},
		Audio: AudioConfig{
			Enabled:    false,
			SampleRate: 44100,
			Volume:     0.3,
		},
	}
}

func (c *Config) applyEnv() {
	if p := getEnvInt("PORT", 0); p > 0 {
		c.Server.Port = p
	}
	if tr := getEnvInt("TICK_RATE", 0); tr > 0 {
		c.Range.TickRate = tr
	}
	if lvl := os.Getenv("LOG_LEVEL"); lvl != "" {
		c.Logging.Level = lvl
	}
	if p := os.Getenv("EVENT_LOG_PATH"); p != "" {
		c.EventLog.Path = p
	}
	if seed := getEnvInt64("RANGE_SEED", 0); seed != 0 {
		c.Range.Seed = seed
	}
	if os.Getenv("DISABLE_DEBUG_SERVER") == "true" {
		c.Debug.Enabled = false
	}
	if v := getEnvFloat("AUDIO_VOLUME", -1); v >= 0 {
		c.Audio.Volume = v
	}
}

// =============================================================================
// VALIDATION
// =============================================================================

// Validate corrects out-of-range values in place and returns one error per
// correction. Nothing here is fatal.
func (c *Config) Validate() []*game.ConfigurationError {
	var errs []*game.ConfigurationError
	fix := func(field string, value, fallback interface{}, reason string) {
		errs = append(errs, &game.ConfigurationError{Field: field, Value: value, Fallback: fallback, Reason: reason})
	}
	d := defaults()

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		fix("server.port", c.Server.Port, d.Server.Port, "out of range")
		c.Server.Port = d.Server.Port
	}
	if c.Server.BroadcastFPS <= 0 {
		fix("server.broadcast_fps", c.Server.BroadcastFPS, d.Server.BroadcastFPS, "must be positive")
		c.Server.BroadcastFPS = d.Server.BroadcastFPS
	}
	if c.Server.IPCFPS <= 0 {
		fix("server.ipc_fps", c.Server.IPCFPS, d.Server.IPCFPS, "must be positive")
		c.Server.IPCFPS = d.Server.IPCFPS
	}
	if c.Range.TickRate <= 0 {
		fix("range.tick_rate", c.Range.TickRate, d.Range.TickRate, "must be positive")
		c.Range.TickRate = d.Range.TickRate
	}
	if c.Range.Bounds.Size.X <= 0 || c.Range.Bounds.Size.Y <= 0 || c.Range.Bounds.Size.Z <= 0 {
		fix("range.bounds.size", c.Range.Bounds.Size, d.Range.Bounds.Size, "must be positive on every axis")
		c.Range.Bounds = d.Range.Bounds
	}
	if c.Range.CellSize <= 0 {
		fix("range.cell_size", c.Range.CellSize, d.Range.CellSize, "must be positive")
		c.Range.CellSize = d.Range.CellSize
	}
	if c.Range.MaxEffects < 1 {
		fix("range.max_effects", c.Range.MaxEffects, d.Range.MaxEffects, "must be at least 1")
		c.Range.MaxEffects = d.Range.MaxEffects
	}
	if c.Pools.Bullets < 1 {
		fix("pools.bullets", c.Pools.Bullets, d.Pools.Bullets, "must be at least 1")
		c.Pools.Bullets = d.Pools.Bullets
	}
	if c.Pools.Targets < 1 {
		fix("pools.targets", c.Pools.Targets, d.Pools.Targets, "must be at least 1")
		c.Pools.Targets = d.Pools.Targets
	}
	if c.Weapon.Preset != "" {
		if _, ok := game.Weapons[c.Weapon.Preset]; !ok {
			fix("weapon.preset", c.Weapon.Preset, game.DefaultWeaponID, "unknown preset")
			c.Weapon.Preset = game.DefaultWeaponID
		}
	}

	w := c.weapon()
	errs = append(errs, w.Normalize()...)
	c.Weapon.FireRate = w.FireRate
	c.Weapon.MaxBulletsPerFire = w.MaxBulletsPerFire
	c.Weapon.Damage = w.Damage
	c.Weapon.BulletSpeed = w.BulletSpeed

	if c.Target.Speed < 0 {
		fix("target.speed", c.Target.Speed, d.Target.Speed, "must not be negative")
		c.Target.Speed = d.Target.Speed
	}
	if c.Target.Radius <= 0 {
		fix("target.radius", c.Target.Radius, d.Target.Radius, "must be positive")
		c.Target.Radius = d.Target.Radius
	}
	if c.Target.Tiers < 1 {
		fix("target.tiers", c.Target.Tiers, d.Target.Tiers, "must be at least 1")
		c.Target.Tiers = d.Target.Tiers
	}

	s := c.spawner()
	errs = append(errs, s.Normalize()...)
	c.Spawner.MinInterval, c.Spawner.MaxInterval = s.MinInterval, s.MaxInterval
	c.Spawner.MinHealth, c.Spawner.MaxHealth = s.MinHealth, s.MaxHealth
	c.Spawner.SampleAttempts = s.SampleAttempts

	if c.Effects.BulletHit < 0 {
		fix("effects.bullet_hit", c.Effects.BulletHit, d.Effects.BulletHit, "must not be negative")
		c.Effects.BulletHit = d.Effects.BulletHit
	}
	if c.Effects.TargetDestroy < 0 {
		fix("effects.target_destroy", c.Effects.TargetDestroy, d.Effects.TargetDestroy, "must not be negative")
		c.Effects.TargetDestroy = d.Effects.TargetDestroy
	}
	if c.Logging.Format != "json" && c.Logging.Format != "console" {
		fix("logging.format", c.Logging.Format, d.Logging.Format, "must be json or console")
		c.Logging.Format = d.Logging.Format
	}
	if c.Audio.Volume < 0 || c.Audio.Volume > 1 {
		fix("audio.volume", c.Audio.Volume, d.Audio.Volume, "must be within 0..1")
		c.Audio.Volume = d.Audio.Volume
	}
	if c.Audio.SampleRate <= 0 {
		fix("audio.sample_rate", c.Audio.SampleRate, d.Audio.SampleRate, "must be positive")
		c.Audio.SampleRate = d.Audio.SampleRate
	}
	return errs
}

// =============================================================================
// CONVERSION
// =============================================================================

// RangeConfig builds the game configuration. Nil areas keep the built-in
// lane.
func (c *Config) RangeConfig(areas []game.SpawnArea, deathZones []game.Shape) game.RangeConfig {
	rc := game.DefaultRangeConfig()
	rc.TickRate = c.Range.TickRate
	rc.Seed = c.Range.Seed
	rc.Bounds = c.Range.Bounds
	rc.CellSize = c.Range.CellSize
	rc.BulletCapacity = c.Pools.Bullets
	rc.TargetCapacity = c.Pools.Targets
	rc.Weapon = c.weapon()
	rc.Target = game.TargetParams{Speed: c.Target.Speed, Radius: c.Target.Radius, Tiers: c.Target.Tiers}
	rc.Spawner = c.spawner()
	rc.Effects = game.EffectDurations{BulletHit: c.Effects.BulletHit, TargetDestroy: c.Effects.TargetDestroy}
	rc.Limits = game.ResourceLimits{
		MaxBullets: c.Pools.Bullets,
		MaxTargets: c.Pools.Targets,
		MaxEffects: c.Range.MaxEffects,
	}
	rc.EventsPerSec = c.EventLog.MaxPerSec
	rc.EventsPerSource = c.EventLog.MaxPerSource
	if areas != nil {
		rc.Areas = areas
	}
	rc.DeathZones = deathZones
	return rc
}

func (c *Config) weapon() game.WeaponConfig {
	w := game.DefaultWeaponConfig()
	w.FireRate = c.Weapon.FireRate
	w.MaxBulletsPerFire = c.Weapon.MaxBulletsPerFire
	w.Damage = c.Weapon.Damage
	w.BulletSpeed = c.Weapon.BulletSpeed
	w.BurstOnly = c.Weapon.BurstOnly
	w.RearmOnFire = c.Weapon.RearmOnFire
	w.Muzzle = c.Weapon.Muzzle
	w.AimOffset = c.Weapon.AimOffset
	if c.Weapon.Preset != "" {
		w = game.GetWeapon(c.Weapon.Preset).Apply(w)
	}
	return w
}

func (c *Config) spawner() game.SpawnerConfig {
	return game.SpawnerConfig{
		MinInterval:    c.Spawner.MinInterval,
		MaxInterval:    c.Spawner.MaxInterval,
		MinHealth:      c.Spawner.MinHealth,
		MaxHealth:      c.Spawner.MaxHealth,
		SampleAttempts: c.Spawner.SampleAttempts,
	}
}

// =============================================================================
// HELPER FUNCTIONS
// =============================================================================

func getEnvInt(key string, defaultVal int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return defaultVal
}

func getEnvInt64(key string, defaultVal int64) int64 {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.ParseInt(v, 10, 64); err == nil {
			return i
		}
	}
	return defaultVal
}

func getEnvFloat(key string, defaultVal float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return defaultVal
}
