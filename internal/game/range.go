package game

import (
	"errors"
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"shooting-range/internal/game/spatial"
	"shooting-range/internal/pool"
)

// RangeConfig is everything needed to build a Range.
type RangeConfig struct {
	TickRate        int
	Seed            int64 // 0 picks a seed from the clock
	Bounds          Box
	DeathZones      []Shape
	Areas           []SpawnArea
	BulletCapacity  int
	TargetCapacity  int
	CellSize        float64
	Weapon          WeaponConfig
	Target          TargetParams
	Spawner         SpawnerConfig
	Effects         EffectDurations
	Limits          ResourceLimits
	EventsPerSec    int
	EventsPerSource int
}

// DefaultRangeConfig is a 40x40 range with one lane spawning across the
// shooter's view.
func DefaultRangeConfig() RangeConfig {
	return RangeConfig{
		TickRate:       30,
		Bounds:         Box{Center: Vec3{Y: 5, Z: 20}, Size: Vec3{X: 40, Y: 10, Z: 40}},
		BulletCapacity: 100,
		TargetCapacity: 20,
		CellSize:       2,
		Areas: []SpawnArea{{
			Name:      "left",
			Shape:     Box{Center: Vec3{X: -15, Y: 2, Z: 20}, Size: Vec3{X: 4, Y: 2, Z: 10}},
			Direction: Vec3{X: 1},
			Forward:   Vec3{Z: -1},
		}},
		Weapon:  DefaultWeaponConfig(),
		Target:  TargetParams{Speed: 5, Radius: 0.5, Tiers: 3},
		Spawner: DefaultSpawnerConfig(),
		Effects: DefaultEffectDurations(),
		Limits:  DefaultLimits,
	}
}

// Options are the optional collaborators of a Range.
type Options struct {
	Logger   *zap.Logger
	Sounds   SoundPlayer
	Animator Animator
	Score    ScoreFunc
}

// Counters are cumulative range totals.
type Counters struct {
	ShotsFired         uint64 `json:"shotsFired"`
	ShotsSkipped       uint64 `json:"shotsSkipped"`
	Sequences          uint64 `json:"sequences"`
	Hits               uint64 `json:"hits"`
	BoundaryHits       uint64 `json:"boundaryHits"`
	HitReactions       uint64 `json:"hitReactions"`
	TargetsSpawned     uint64 `json:"targetsSpawned"`
	SpawnsSkipped      uint64 `json:"spawnsSkipped"`
	DestroyedByDamage  uint64 `json:"destroyedByDamage"`
	InstantKills       uint64 `json:"instantKills"`
	StaleHandles       uint64 `json:"staleHandles"`
	InvalidTransitions uint64 `json:"invalidTransitions"`
}

// RangeStats is a monitoring view of the range.
type RangeStats struct {
	Session        string        `json:"session"`
	Tick           uint64        `json:"tick"`
	Clock          float64       `json:"clock"`
	Running        bool          `json:"running"`
	Spawning       bool          `json:"spawning"`
	Weapon         string        `json:"weapon"`
	Bullets        pool.Stats    `json:"bullets"`
	Targets        pool.Stats    `json:"targets"`
	Counters       Counters      `json:"counters"`
	Score          int           `json:"score"`
	EffectsDropped uint64        `json:"effectsDropped"`
	Grid           spatial.Stats `json:"grid"`
	EventLog       EventLogStats `json:"eventLog"`
}

// TickStats is handed to the tick hook after every step.
type TickStats struct {
	Duration     time.Duration
	BulletsInUse int
	TargetsInUse int
	Counters     Counters
	EventLog     EventLogStats
}

// Range owns both pools and drives the weapon, spawner, bullets and targets
// once per tick. All public methods are safe for concurrent use.
type Range struct {
	mu sync.Mutex

	cfg     RangeConfig
	session string
	log     *zap.Logger

	bullets    *pool.Pool[Bullet]
	targets    *pool.Pool[Target]
	weapon     *WeaponFireController
	spawner    *SpawnScheduler
	physics    *Physics
	effects    *EffectBoard
	scoreboard *Scoreboard
	animator   Animator

	snapshotPool *SnapshotPool
	eventLog     *EventLog

	// Deterministic RNG for replay consistency
	rng     *rand.Rand
	rngSeed int64

	clock     float64
	tickCount uint64
	counters  Counters

	tickRate int
	running  bool
	ticker   *time.Ticker
	stopChan chan struct{}
	done     chan struct{}
	onTick   func(TickStats)
}

// NewRange builds a range from cfg. Out-of-range settings are corrected
// and logged.
func NewRange(cfg RangeConfig, opts Options) *Range {
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}
	if cfg.TickRate <= 0 {
		log.Warn("range configuration corrected", zap.Error(&ConfigurationError{Field: "range.tick_rate", Value: cfg.TickRate, Fallback: 30, Reason: "must be positive"}))
		cfg.TickRate = 30
	}
	seed := cfg.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}

	r := &Range{
		cfg:      cfg,
		session:  uuid.New().String(),
		log:      log,
		effects:  NewEffectBoard(cfg.Effects, cfg.Limits.MaxEffects),
		rng:      rand.New(rand.NewSource(seed)),
		rngSeed:  seed,
		tickRate: cfg.TickRate,
	}
	r.log = log.With(zap.String("session", r.session))
	r.animator = opts.Animator
	if r.animator == nil {
		r.animator = hitCounter{r}
	}
	sounds := opts.Sounds
	if sounds == nil {
		sounds = nopSounds{}
	}

	r.bullets = pool.Warm(cfg.BulletCapacity, func(i int) Bullet {
		return NewBullet(i, r.effects, sounds)
	})
	r.targets = pool.Warm(cfg.TargetCapacity, func(i int) Target {
		return NewTarget(i, cfg.Target, r.effects, r.animator, sounds)
	})
	r.physics = NewPhysics(cfg.Bounds, cfg.DeathZones, cfg.CellSize, cfg.TargetCapacity)
	r.scoreboard = NewScoreboard(opts.Score, cfg.Target.Tiers)
	r.snapshotPool = NewSnapshotPool(cfg.Limits)
	r.eventLog = NewEventLog(cfg.EventsPerSec, cfg.EventsPerSource, r.log)

	r.weapon = NewWeaponFireController(cfg.Weapon, r.bullets, sounds, r.log)
	r.weapon.SetCallbacks(r.onShot, r.onSequence)
	r.spawner = NewSpawnScheduler(cfg.Spawner, cfg.Areas, r.targets, NewRandom(seed), r.log)
	r.spawner.SetCallback(r.onSpawn)

	r.produceSnapshot()
	return r
}

// Session returns the range session id stamped on events and snapshots.
func (r *Range) Session() string { return r.session }

// SetTickHook registers a function called after every step, under the lock.
func (r *Range) SetTickHook(fn func(TickStats)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.onTick = fn
}

// Start begins the fixed-rate tick loop.
func (r *Range) Start() {
	r.mu.Lock()
	if r.running {
		r.mu.Unlock()
		return
	}
	r.running = true
	r.stopChan = make(chan struct{})
	r.done = make(chan struct{})
	r.ticker = time.NewTicker(time.Second / time.Duration(r.tickRate))
	ticker, stop, done := r.ticker, r.stopChan, r.done
	r.mu.Unlock()

	go func() {
		defer close(done)
		dt := 1.0 / float64(r.tickRate)
		for {
			select {
			case <-ticker.C:
				r.Step(dt)
			case <-stop:
				return
			}
		}
	}()

	r.log.Info("range started", zap.Int("tickRate", r.tickRate))
}

// Stop halts the tick loop and waits for the last tick. Safe to call twice.
func (r *Range) Stop() {
	r.mu.Lock()
	if !r.running {
		r.mu.Unlock()
		return
	}
	r.running = false
	r.ticker.Stop()
	close(r.stopChan)
	done := r.done
	r.mu.Unlock()

	<-done
	r.mu.Lock()
	ticks := r.tickCount
	r.mu.Unlock()
	r.log.Info("range stopped", zap.Uint64("ticks", ticks))
}

// Step advances the simulation by dt seconds.
func (r *Range) Step(dt float64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.step(dt)
}

func (r *Range) step(dt float64) {
	start := time.Now()
	r.tickCount++
	r.clock += dt
	now := r.clock

	r.emit(EventTypeTick, SourceRange, TickPayload{
		RNGSeed:      r.rngSeed,
		Clock:        now,
		BulletsInUse: r.bullets.InUse(),
		TargetsInUse: r.targets.InUse(),
		DeltaTimeNs:  int64(dt * 1e9),
	})
	r.rngSeed = r.rng.Int63()

	r.weapon.Tick(now)
	r.spawner.Tick(now)
	r.updateTargets(dt, now)
	r.updateBullets(dt, now)
	r.effects.Update(dt, r.rngSeed)

	r.produceSnapshot()

	if r.onTick != nil {
		r.onTick(TickStats{
			Duration:     time.Since(start),
			BulletsInUse: r.bullets.InUse(),
			TargetsInUse: r.targets.InUse(),
			Counters:     r.counters,
			EventLog:     r.eventLog.GetStats(),
		})
	}
}

// updateTargets moves targets, finishes destruction windows and applies
// death-area sensors.
func (r *Range) updateTargets(dt, now float64) {
	r.targets.Each(func(h pool.Handle, t *Target) {
		released, err := t.Tick(dt, now)
		if err != nil {
			r.staleHandle("target", t.Slot, err)
		}
		if released {
			r.emit(EventTypeTargetDespawned, SourceTarget, r.targetPayload(h, t, 0))
			return
		}
		if r.physics.Sense(t) != TagDeathArea {
			return
		}
		payload := r.targetPayload(h, t, 0)
		if err := t.OnTrigger(TagDeathArea); err != nil {
			r.staleHandle("target", t.Slot, err)
		}
		r.counters.InstantKills++
		payload.Cause = CauseInstantKill.String()
		r.emit(EventTypeTargetDestroyed, SourceTarget, payload)
		r.emit(EventTypeTargetDespawned, SourceTarget, payload)
	})
}

// updateBullets integrates bullets, resolves contacts against this tick's
// target positions and returns finished bullets to the pool.
func (r *Range) updateBullets(dt, now float64) {
	r.physics.Rebuild(r.targets)
	r.bullets.Each(func(h pool.Handle, b *Bullet) {
		b.Advance(dt)
		if c, ok := r.physics.Sweep(b, r.targets); ok {
			r.resolveContact(h, b, c, now)
		}
		released, err := b.Tick(now)
		if err != nil {
			r.staleHandle("bullet", b.Slot, err)
		}
		if released {
			r.emit(EventTypeBulletReturned, SourceBullet, ShotPayload{Handle: uint64(h)})
		}
	})
}

func (r *Range) resolveContact(h pool.Handle, b *Bullet, c Contact, now float64) {
	var target *Target
	var targetHandle pool.Handle
	if t, ok := c.Target.(*Target); ok {
		target, targetHandle = t, t.Handle()
	}

	result, err := b.OnCollision(c, now)
	if err != nil {
		r.invalidTransition(err)
		return
	}
	if c.Tag == TagBoundary {
		r.counters.BoundaryHits++
	} else {
		r.counters.Hits++
	}

	payload := HitPayload{Bullet: uint64(h), Target: uint64(targetHandle), Tag: c.Tag.String(), Result: result.String(), Point: c.Point}
	if target != nil {
		payload.Health = target.Health
	}
	r.emit(EventTypeHit, SourceBullet, payload)

	if result == HitDestroyed && target != nil {
		r.counters.DestroyedByDamage++
		pts := r.scoreboard.Record(target.Area, target.ScoreMarker, target.InitialHealth)
		r.emit(EventTypeTargetDestroyed, SourceTarget, r.targetPayload(targetHandle, target, pts))
		r.log.Debug("target destroyed",
			zap.Stringer("handle", targetHandle),
			zap.String("area", target.Area),
			zap.Int("marker", target.ScoreMarker),
			zap.Int("points", pts))
	}
}

// hitCounter is the default Animator: it counts hit reactions. Triggers
// arrive from inside a step, so the range lock is already held.
type hitCounter struct{ r *Range }

func (c hitCounter) Trigger(_ pool.Handle, name string) {
	if name == AnimTargetHit {
		c.r.counters.HitReactions++
	}
}

func (r *Range) onShot(s Shot) {
	if s.Skipped {
		r.counters.ShotsSkipped++
		r.emit(EventTypeShotSkipped, SourceWeapon, ShotPayload{Index: s.Index, Forward: s.Forward})
		return
	}
	r.counters.ShotsFired++
	r.emit(EventTypeShot, SourceWeapon, ShotPayload{Index: s.Index, Handle: uint64(s.Handle), Forward: s.Forward})
}

func (r *Range) onSequence(rep SequenceReport) {
	r.counters.Sequences++
	r.emit(EventTypeSequenceDone, SourceWeapon, rep)
}

func (r *Range) onSpawn(s SpawnReport) {
	if s.Skipped {
		r.counters.SpawnsSkipped++
		r.emit(EventTypeSpawnSkipped, SourceSpawner, s)
		return
	}
	r.counters.TargetsSpawned++
	r.emit(EventTypeTargetSpawned, SourceSpawner, TargetPayload{
		Handle:        uint64(s.Handle),
		Area:          s.Area,
		Health:        float64(s.Health),
		InitialHealth: float64(s.Health),
		Position:      s.Point,
	})
}

func (r *Range) staleHandle(entity string, slot int, err error) {
	if !errors.Is(err, pool.ErrStaleHandle) && !errors.Is(err, pool.ErrInvalidHandle) {
		r.invalidTransition(err)
		return
	}
	r.counters.StaleHandles++
	r.log.Error("stale handle", zap.String("entity", entity), zap.Int("slot", slot), zap.Error(err))
	r.emit(EventTypeStaleHandle, SourceRange, StaleHandlePayload{Entity: entity, Slot: slot, Error: err.Error()})
}

func (r *Range) invalidTransition(err error) {
	r.counters.InvalidTransitions++
	r.log.Warn("rejected transition", zap.Error(err))
}

func (r *Range) targetPayload(h pool.Handle, t *Target, points int) TargetPayload {
	return TargetPayload{
		Handle:        uint64(h),
		Area:          t.Area,
		Health:        t.Health,
		InitialHealth: t.InitialHealth,
		Tier:          t.ScoreMarker,
		Cause:         t.Cause.String(),
		Points:        points,
		Position:      t.Position,
	}
}

func (r *Range) emit(t EventType, source string, payload interface{}) {
	r.eventLog.EmitSimple(t, r.tickCount, r.session, source, payload)
}

// ============================================================================
// Controls
// ============================================================================

// PullTrigger presses the trigger at the current sim time.
func (r *Range) PullTrigger() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.weapon.PullTrigger(r.clock)
}

// ReleaseTrigger releases the trigger.
func (r *Range) ReleaseTrigger() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.weapon.ReleaseTrigger(r.clock)
}

// ResetWeapon cancels any firing sequence.
func (r *Range) ResetWeapon() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.weapon.FullReset()
	r.emit(EventTypeWeaponReset, SourceWeapon, nil)
}

// Aim points the weapon at a world-space point.
func (r *Range) Aim(p Vec3) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.weapon.Aim(p)
}

// StartSpawning begins a spawn session.
func (r *Range) StartSpawning() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.spawner.Start(r.clock); err != nil {
		return err
	}
	r.log.Info("spawning started", zap.Int("areas", len(r.spawner.Areas())))
	return nil
}

// StopSpawning ends the spawn session.
func (r *Range) StopSpawning() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.spawner.Stop()
}

// SpawnTarget spawns one target with fixed health right away.
func (r *Range) SpawnTarget(health int) (SpawnReport, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.spawner.SpawnNow(health, r.clock)
}

// Clear recalls every bullet and target, drops effects and resets the
// weapon. The score is kept.
func (r *Range) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.weapon.FullReset()
	r.bullets.Each(func(_ pool.Handle, b *Bullet) {
		if err := b.Recall(); err != nil {
			r.staleHandle("bullet", b.Slot, err)
		}
	})
	r.targets.Each(func(_ pool.Handle, t *Target) {
		if err := t.Recall(); err != nil {
			r.staleHandle("target", t.Slot, err)
		}
	})
	r.effects.Clear()
	r.produceSnapshot()
}

// ============================================================================
// Views
// ============================================================================

// Clock returns the simulation time in seconds.
func (r *Range) Clock() float64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.clock
}

// GetSnapshot returns a copy of the latest published snapshot.
func (r *Range) GetSnapshot() RangeSnapshot {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.snapshotPool.AcquireRead().Clone()
}

// Stats returns counters, pool occupancy and event log state.
func (r *Range) Stats() RangeStats {
	r.mu.Lock()
	defer r.mu.Unlock()
	score, _ := r.scoreboard.Total()
	return RangeStats{
		Session:        r.session,
		Tick:           r.tickCount,
		Clock:          r.clock,
		Running:        r.running,
		Spawning:       r.spawner.Running(),
		Weapon:         r.weapon.State().String(),
		Bullets:        r.bullets.Stats(),
		Targets:        r.targets.Stats(),
		Counters:       r.counters,
		Score:          score,
		EffectsDropped: r.effects.Dropped(),
		Grid:           r.physics.GridStats(),
		EventLog:       r.eventLog.GetStats(),
	}
}

// Scoreboard returns area standings, best first.
func (r *Range) Scoreboard() []ScoreEntry {
	return r.scoreboard.GetTop(0)
}

// StartEventLog begins writing events to filePath.
func (r *Range) StartEventLog(filePath string) error {
	return r.eventLog.Start(filePath)
}

// StopEventLog flushes and closes the event log.
func (r *Range) StopEventLog() {
	r.eventLog.Stop()
}

// GetEventLogStats returns event log counters.
func (r *Range) GetEventLogStats() EventLogStats {
	return r.eventLog.GetStats()
}

// produceSnapshot copies current state into the next snapshot buffer.
// Called with the lock held.
func (r *Range) produceSnapshot() {
	snap := r.snapshotPool.AcquireWrite()
	limits := r.snapshotPool.GetLimits()
	snap.TickNumber = r.tickCount
	snap.Session = r.session
	snap.Clock = r.clock
	snap.RNGSeed = r.rngSeed
	snap.Bounds = r.cfg.Bounds
	snap.Spawning = r.spawner.Running()
	snap.Score, snap.Destroyed = r.scoreboard.Total()
	snap.BulletPool = r.bullets.Stats()
	snap.TargetPool = r.targets.Stats()
	snap.Weapon = WeaponSnapshot{
		State:       r.weapon.State().String(),
		TriggerHeld: r.weapon.TriggerHeld(),
		Muzzle:      r.weapon.Config().Muzzle,
		Forward:     r.weapon.Forward(),
	}

	r.bullets.Each(func(h pool.Handle, b *Bullet) {
		if len(snap.Bullets) >= limits.MaxBullets {
			return
		}
		snap.Bullets = append(snap.Bullets, BulletSnapshot{
			Slot:     b.Slot,
			Handle:   uint64(h),
			State:    b.State().String(),
			Position: b.Position,
			Velocity: b.Velocity,
			Size:     b.Config().Size,
			Visible:  b.Visible,
		})
	})
	r.targets.Each(func(h pool.Handle, t *Target) {
		if len(snap.Targets) >= limits.MaxTargets {
			return
		}
		snap.Targets = append(snap.Targets, TargetSnapshot{
			Slot:          t.Slot,
			Handle:        uint64(h),
			State:         t.State().String(),
			Area:          t.Area,
			Health:        t.Health,
			InitialHealth: t.InitialHealth,
			Tier:          t.Tier,
			ScoreMarker:   t.ScoreMarker,
			Position:      t.Position,
			Direction:     t.Direction,
			Radius:        t.Radius(),
			Visible:       t.Visible,
		})
	})
	for i := range r.effects.Flashes() {
		if len(snap.Effects) >= limits.MaxEffects {
			break
		}
		f := &r.effects.Flashes()[i]
		snap.Effects = append(snap.Effects, EffectSnapshot{
			Kind:   f.Kind.String(),
			Point:  f.Point,
			Normal: f.Normal,
			Alpha:  f.Alpha(),
		})
	}
	shake := r.effects.Shake()
	snap.Shake = ShakeSnapshot{OffsetX: shake.OffsetX, OffsetY: shake.OffsetY, Intensity: shake.Intensity}

	r.snapshotPool.PublishWrite()
}
