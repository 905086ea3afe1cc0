package game

import (
	"errors"
	"fmt"
	"math"

	"go.uber.org/zap"

	"shooting-range/internal/pool"
)

// EffectiveInterval is the wait before the next spawn given the current base
// interval and the seconds elapsed since spawning started. It shrinks as the
// session goes on and never reaches zero.
func EffectiveInterval(base, elapsed float64) float64 {
	return math.Pow(base/(elapsed*0.5+1), 0.4)
}

// SpawnerConfig controls spawn cadence and target health.
type SpawnerConfig struct {
	MinInterval    float64
	MaxInterval    float64
	MinHealth      int
	MaxHealth      int
	SampleAttempts int
}

// DefaultSpawnerConfig returns the stock cadence.
func DefaultSpawnerConfig() SpawnerConfig {
	return SpawnerConfig{
		MinInterval:    2,
		MaxInterval:    4,
		MinHealth:      1,
		MaxHealth:      3,
		SampleAttempts: MaxSampleAttempts,
	}
}

// Normalize corrects out-of-range values in place and reports each fix.
func (c *SpawnerConfig) Normalize() []*ConfigurationError {
	var errs []*ConfigurationError
	if c.MinInterval <= 0 {
		errs = append(errs, &ConfigurationError{Field: "spawner.min_interval", Value: c.MinInterval, Fallback: 2.0, Reason: "must be positive"})
		c.MinInterval = 2
	}
	if c.MaxInterval < c.MinInterval {
		errs = append(errs, &ConfigurationError{Field: "spawner.max_interval", Value: c.MaxInterval, Fallback: c.MinInterval, Reason: "below min_interval"})
		c.MaxInterval = c.MinInterval
	}
	if c.MinHealth < 1 {
		errs = append(errs, &ConfigurationError{Field: "spawner.min_health", Value: c.MinHealth, Fallback: 1, Reason: "must be at least 1"})
		c.MinHealth = 1
	}
	if c.MaxHealth < c.MinHealth {
		errs = append(errs, &ConfigurationError{Field: "spawner.max_health", Value: c.MaxHealth, Fallback: c.MinHealth, Reason: "below min_health"})
		c.MaxHealth = c.MinHealth
	}
	if c.SampleAttempts < 1 {
		errs = append(errs, &ConfigurationError{Field: "spawner.sample_attempts", Value: c.SampleAttempts, Fallback: MaxSampleAttempts, Reason: "must be at least 1"})
		c.SampleAttempts = MaxSampleAttempts
	}
	return errs
}

// TargetPool is the slice of the target pool the scheduler needs.
// *pool.Pool[Target] satisfies it.
type TargetPool interface {
	Acquire() (pool.Handle, error)
	Lookup(h pool.Handle) (*Target, error)
	Release(h pool.Handle) error
}

// SpawnReport describes one spawn attempt.
type SpawnReport struct {
	Handle   pool.Handle
	Area     string
	Point    Vec3
	Health   int
	Attempts int  // point samples used
	Skipped  bool // pool exhausted
	At       float64
}

// SpawnScheduler activates pooled targets on a decaying cadence.
type SpawnScheduler struct {
	cfg     SpawnerConfig
	areas   []SpawnArea
	targets TargetPool
	rng     Random
	log     *zap.Logger

	running   bool
	startedAt float64
	base      float64
	nextAt    float64
	lastArea  int

	onSpawn func(SpawnReport)
}

// NewSpawnScheduler builds a stopped scheduler.
func NewSpawnScheduler(cfg SpawnerConfig, areas []SpawnArea, targets TargetPool, rng Random, log *zap.Logger) *SpawnScheduler {
	if log == nil {
		log = zap.NewNop()
	}
	for _, e := range cfg.Normalize() {
		log.Warn("spawner configuration corrected", zap.Error(e))
	}
	return &SpawnScheduler{
		cfg:      cfg,
		areas:    areas,
		targets:  targets,
		rng:      rng,
		log:      log,
		lastArea: -1,
	}
}

// SetCallback registers a spawn observer.
func (s *SpawnScheduler) SetCallback(onSpawn func(SpawnReport)) { s.onSpawn = onSpawn }

func (s *SpawnScheduler) Running() bool      { return s.running }
func (s *SpawnScheduler) NextAt() float64    { return s.nextAt }
func (s *SpawnScheduler) Base() float64      { return s.base }
func (s *SpawnScheduler) Areas() []SpawnArea { return s.areas }
func (s *SpawnScheduler) LastArea() int      { return s.lastArea }

// Start begins a spawning session at now.
func (s *SpawnScheduler) Start(now float64) error {
	if len(s.areas) == 0 {
		return ErrNoSpawnAreas
	}
	s.running = true
	s.startedAt = now
	s.base = s.rng.Float64Range(s.cfg.MinInterval, s.cfg.MaxInterval)
	s.nextAt = now + EffectiveInterval(s.base, 0)
	return nil
}

// Stop ends the session. Live targets are left alone.
func (s *SpawnScheduler) Stop() { s.running = false }

// Elapsed returns session time at now.
func (s *SpawnScheduler) Elapsed(now float64) float64 {
	if !s.running {
		return 0
	}
	return now - s.startedAt
}

// Tick spawns at most one target when the next spawn is due.
func (s *SpawnScheduler) Tick(now float64) {
	if !s.running || now < s.nextAt {
		return
	}
	health := s.cfg.MinHealth + s.rng.Intn(s.cfg.MaxHealth-s.cfg.MinHealth+1)
	if _, err := s.spawn(health, now); err != nil && !errors.Is(err, pool.ErrPoolExhausted) {
		s.log.Error("spawn failed", zap.Error(err))
	}
	s.base = s.rng.Float64Range(s.cfg.MinInterval, s.cfg.MaxInterval)
	s.nextAt = now + EffectiveInterval(s.base, now-s.startedAt)
}

// SpawnNow spawns one target with a fixed health outside the cadence.
func (s *SpawnScheduler) SpawnNow(health int, now float64) (SpawnReport, error) {
	if len(s.areas) == 0 {
		return SpawnReport{}, ErrNoSpawnAreas
	}
	if health < 1 {
		health = 1
	}
	return s.spawn(health, now)
}

func (s *SpawnScheduler) spawn(health int, now float64) (SpawnReport, error) {
	idx := s.rng.Intn(len(s.areas))
	area := s.areas[idx]
	s.lastArea = idx
	point, attempts := SamplePoint(area.Shape, s.rng, s.cfg.SampleAttempts)

	report := SpawnReport{Area: area.Name, Point: point, Health: health, Attempts: attempts, At: now}
	h, err := s.targets.Acquire()
	if err != nil {
		report.Skipped = true
		s.emit(report)
		return report, err
	}
	report.Handle = h

	if err := s.activate(h, area, point, health); err != nil {
		if rerr := s.targets.Release(h); rerr != nil {
			s.log.Error("target release after failed spawn", zap.Stringer("handle", h), zap.Error(rerr))
		}
		report.Skipped = true
		report.Handle = 0
		s.emit(report)
		return report, fmt.Errorf("spawn in %s: %w", area.Name, err)
	}
	s.emit(report)
	return report, nil
}

func (s *SpawnScheduler) activate(h pool.Handle, area SpawnArea, point Vec3, health int) error {
	t, err := s.targets.Lookup(h)
	if err != nil {
		return err
	}
	if err := t.Bind(h, s.targets); err != nil {
		return err
	}
	if err := t.Reset(float64(health)); err != nil {
		return err
	}
	if err := t.Place(point, area.Name); err != nil {
		return err
	}
	if err := t.Activate(); err != nil {
		return err
	}
	return t.Launch(area.Direction, area.Forward)
}

func (s *SpawnScheduler) emit(r SpawnReport) {
	if s.onSpawn != nil {
		s.onSpawn(r)
	}
}
