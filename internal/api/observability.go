package api

import (
	"errors"
	"net/http"
	"net/http/pprof"
	"os"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"shooting-range/internal/game"
)

// Metrics with bounded cardinality (no per-entity labels)
var (
	tickDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "range_tick_duration_seconds",
		Help:    "Time spent in a range step",
		Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.025},
	})

	renderDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "range_render_duration_seconds",
		Help:    "Time spent rendering a frame",
		Buckets: []float64{0.005, 0.01, 0.02, 0.033, 0.05, 0.1},
	})

	poolInUse = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "range_pool_in_use",
		Help: "Pool slots currently handed out",
	}, []string{"pool"}) // Bounded: "bullet", "target"

	shotsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "range_shots_total",
		Help: "Shots attempted by the weapon",
	}, []string{"result"}) // Bounded: "fired", "skipped"

	hitsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "range_bullet_contacts_total",
		Help: "Bullet contacts",
	}, []string{"tag"}) // Bounded: "target", "boundary"

	targetsSpawned = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "range_target_spawns_total",
		Help: "Target spawn attempts",
	}, []string{"result"}) // Bounded: "spawned", "skipped"

	targetsDestroyed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "range_targets_destroyed_total",
		Help: "Targets destroyed",
	}, []string{"cause"}) // Bounded: "damage", "instant_kill"

	staleHandles = promauto.NewCounter(prometheus.CounterOpts{
		Name: "range_stale_handles_total",
		Help: "Releases through out-of-date handles",
	})

	invalidTransitions = promauto.NewCounter(prometheus.CounterOpts{
		Name: "range_invalid_transitions_total",
		Help: "Operations rejected by entity state machines",
	})

	eventLogTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "event_log_total",
		Help: "Total events logged",
	})

	eventLogDropped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "event_log_dropped_total",
		Help: "Events dropped due to rate limiting or buffer full",
	})

	connectionRejected = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "connection_rejected_total",
		Help: "Connections rejected by rate limiter or origin check",
	}, []string{"reason"}) // Bounded: "rate_limit", "origin", "ws_total_limit", "ws_ip_limit"

	requestLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "HTTP request latency",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "endpoint"}) // endpoint is the route pattern, not the URL

	requestTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "Total HTTP requests",
	}, []string{"method", "endpoint", "status"})

	wsConnectionsActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "websocket_connections_active",
		Help: "Currently active WebSocket connections",
	})

	wsMessagesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "websocket_messages_total",
		Help: "Total WebSocket messages sent",
	})
)

// ObservabilityConfig configures the debug server
type ObservabilityConfig struct {
	Enabled       bool
	ListenAddr    string // localhost only unless ALLOW_DEBUG_EXTERNAL=true
	BasicAuthUser string
	BasicAuthPass string
}

// DefaultObservabilityConfig returns safe defaults
func DefaultObservabilityConfig() ObservabilityConfig {
	return ObservabilityConfig{
		Enabled:    true,
		ListenAddr: "127.0.0.1:6060",
	}
}

// DebugHandler serves pprof, /metrics and /health.
func DebugHandler(cfg ObservabilityConfig) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/debug/pprof/", pprof.Index)
	mux.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
	mux.HandleFunc("/debug/pprof/profile", pprof.Profile)
	mux.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
	mux.HandleFunc("/debug/pprof/trace", pprof.Trace)

	mux.Handle("/metrics", promhttp.Handler())

	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})

	if cfg.BasicAuthUser != "" {
		return basicAuthMiddleware(cfg.BasicAuthUser, cfg.BasicAuthPass, mux)
	}
	return mux
}

// StartDebugServer starts the observability server in the background and
// returns it for shutdown. Returns nil when disabled.
func StartDebugServer(cfg ObservabilityConfig, log *zap.Logger) *http.Server {
	if log == nil {
		log = zap.NewNop()
	}
	if !cfg.Enabled {
		log.Info("debug server disabled")
		return nil
	}

	if cfg.ListenAddr != "127.0.0.1:6060" && cfg.ListenAddr != "localhost:6060" {
		if os.Getenv("ALLOW_DEBUG_EXTERNAL") != "true" {
			log.Warn("debug server forced to localhost", zap.String("requested", cfg.ListenAddr))
			cfg.ListenAddr = "127.0.0.1:6060"
		}
	}

	srv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           DebugHandler(cfg),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		log.Info("debug server starting",
			zap.String("pprof", "http://"+cfg.ListenAddr+"/debug/pprof/"),
			zap.String("metrics", "http://"+cfg.ListenAddr+"/metrics"))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Warn("debug server error", zap.Error(err))
		}
	}()
	return srv
}

func basicAuthMiddleware(user, pass string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		u, p, ok := r.BasicAuth()
		if !ok || u != user || p != pass {
			w.Header().Set("WWW-Authenticate", `Basic realm="debug"`)
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// TickObserver turns the range's cumulative counters into metric deltas.
// Register Observe with Range.SetTickHook.
type TickObserver struct {
	mu      sync.Mutex
	last    game.Counters
	lastLog game.EventLogStats
}

// NewTickObserver creates an observer starting from zero.
func NewTickObserver() *TickObserver {
	return &TickObserver{}
}

// Observe records one step.
func (o *TickObserver) Observe(s game.TickStats) {
	o.mu.Lock()
	defer o.mu.Unlock()

	tickDuration.Observe(s.Duration.Seconds())
	poolInUse.WithLabelValues("bullet").Set(float64(s.BulletsInUse))
	poolInUse.WithLabelValues("target").Set(float64(s.TargetsInUse))

	c, p := s.Counters, o.last
	addDelta(shotsTotal.WithLabelValues("fired"), c.ShotsFired, p.ShotsFired)
	addDelta(shotsTotal.WithLabelValues("skipped"), c.ShotsSkipped, p.ShotsSkipped)
	addDelta(hitsTotal.WithLabelValues("target"), c.Hits, p.Hits)
	addDelta(hitsTotal.WithLabelValues("boundary"), c.BoundaryHits, p.BoundaryHits)
	addDelta(targetsSpawned.WithLabelValues("spawned"), c.TargetsSpawned, p.TargetsSpawned)
	addDelta(targetsSpawned.WithLabelValues("skipped"), c.SpawnsSkipped, p.SpawnsSkipped)
	addDelta(targetsDestroyed.WithLabelValues("damage"), c.DestroyedByDamage, p.DestroyedByDamage)
	addDelta(targetsDestroyed.WithLabelValues("instant_kill"), c.InstantKills, p.InstantKills)
	addDelta(staleHandles, c.StaleHandles, p.StaleHandles)
	addDelta(invalidTransitions, c.InvalidTransitions, p.InvalidTransitions)
	addDelta(eventLogTotal, s.EventLog.Total, o.lastLog.Total)
	addDelta(eventLogDropped, s.EventLog.Dropped, o.lastLog.Dropped)

	o.last = c
	o.lastLog = s.EventLog
}

func addDelta(c prometheus.Counter, now, prev uint64) {
	if now > prev {
		c.Add(float64(now - prev))
	}
}

// RecordRender records render timing for metrics
func RecordRender(duration time.Duration) {
	renderDuration.Observe(duration.Seconds())
}

// RecordConnectionRejected increments the rejection counter
func RecordConnectionRejected(reason string) {
	connectionRejected.WithLabelValues(reason).Inc()
}

// RecordRequest records HTTP request metrics
func RecordRequest(method, endpoint string, status int, duration time.Duration) {
	requestLatency.WithLabelValues(method, endpoint).Observe(duration.Seconds())
	requestTotal.WithLabelValues(method, endpoint, http.StatusText(status)).Inc()
}

// UpdateWSConnections updates WebSocket connection count
func UpdateWSConnections(count int) {
	wsConnectionsActive.Set(float64(count))
}

// IncrementWSMessages increments WebSocket message counter
func IncrementWSMessages() {
	wsMessagesTotal.Inc()
}
