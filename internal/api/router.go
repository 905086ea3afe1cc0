package api

import (
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"shooting-range/internal/game"
)

// RangeController is the slice of game.Range the API drives.
// Keep this minimal so tests can stub it.
type RangeController interface {
	GetSnapshot() game.RangeSnapshot
	Stats() game.RangeStats
	Scoreboard() []game.ScoreEntry

	PullTrigger() bool
	ReleaseTrigger()
	ResetWeapon()
	Aim(p game.Vec3)
	StartSpawning() error
	StopSpawning()
	SpawnTarget(health int) (game.SpawnReport, error)
	Clear()
}

// FrameRenderer draws a snapshot as a PNG.
type FrameRenderer interface {
	WritePNG(w io.Writer, snap *game.RangeSnapshot) error
}

// RouterConfig contains all dependencies needed to construct the HTTP router.
//
// Example usage in tests:
//
//	router := api.NewRouter(api.RouterConfig{
//	    Range: stub,
//	    RateLimitConfig: &api.RateLimitConfig{RequestsPerSecond: 1000, Burst: 1000},
//	})
//	ts := httptest.NewServer(router)
type RouterConfig struct {
	// Range is the simulation (required)
	Range RangeController

	// Renderer serves /api/frame.png. Nil answers 501.
	Renderer FrameRenderer

	// RateLimiter is an optional pre-configured rate limiter.
	// If nil, a new one will be created using RateLimitConfig and the
	// caller owns stopping it via the returned router's lifetime.
	RateLimiter *IPRateLimiter

	// RateLimitConfig is only used if RateLimiter is nil.
	RateLimitConfig *RateLimitConfig

	// SpawnLimiter throttles POST /api/targets/spawn on top of RateLimiter.
	// Nil creates one from DefaultSpawnRateLimitConfig.
	SpawnLimiter *IPRateLimiter

	// CORSOrigins defaults to DefaultOrigins.
	CORSOrigins []string

	// Logger receives one line per request. Nil disables request logging.
	Logger *zap.Logger
}

type routerHandlers struct {
	rng      RangeController
	renderer FrameRenderer
}

// NewRouter constructs the HTTP router with all middleware and routes.
//
// It opens no listeners; only the rate limiter's cleanup goroutine is
// started when no limiter is passed in.
func NewRouter(cfg RouterConfig) *chi.Mux {
	r := chi.NewRouter()

	// Middleware - order matters
	if cfg.Logger != nil {
		r.Use(requestLogger(cfg.Logger))
	}
	r.Use(middleware.Recoverer)

	// Rate limiting before CORS to reject early
	rateLimiter := cfg.RateLimiter
	if rateLimiter == nil {
		rateLimitCfg := DefaultRateLimitConfig
		if cfg.RateLimitConfig != nil {
			rateLimitCfg = *cfg.RateLimitConfig
		}
		rateLimiter = NewIPRateLimiter(rateLimitCfg)
	}
	r.Use(rateLimiter.Middleware)

	spawnLimiter := cfg.SpawnLimiter
	if spawnLimiter == nil {
		spawnLimiter = NewIPRateLimiter(DefaultSpawnRateLimitConfig)
	}

	corsOrigins := cfg.CORSOrigins
	if corsOrigins == nil {
		corsOrigins = DefaultOrigins
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   corsOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"*"},
		AllowCredentials: false,
	}))

	h := &routerHandlers{
		rng:      cfg.Range,
		renderer: cfg.Renderer,
	}

	r.Route("/api", func(r chi.Router) {
		// Views
		r.Get("/state", h.handleGetState)
		r.Get("/stats", h.handleGetStats)
		r.Get("/pools", h.handleGetPools)
		r.Get("/score", h.handleGetScore)
		r.Get("/frame.png", h.handleGetFrame)
		r.Get("/weapons", h.handleGetWeapons)

		// Weapon control
		r.Post("/trigger/pull", h.handleTriggerPull)
		r.Post("/trigger/release", h.handleTriggerRelease)
		r.Post("/weapon/reset", h.handleWeaponReset)
		r.Post("/aim", h.handleAim)

		// Targets
		r.Post("/spawner/start", h.handleSpawnerStart)
		r.Post("/spawner/stop", h.handleSpawnerStop)
		r.With(spawnLimiter.Middleware).Post("/targets/spawn", h.handleTargetSpawn)
		r.Post("/clear", h.handleClear)
	})

	r.Get("/", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/api/state", http.StatusFound)
	})

	return r
}

// requestLogger logs each request with zap and records request metrics by
// route pattern.
func requestLogger(log *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)

			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}
			endpoint := "unmatched"
			if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
				endpoint = rctx.RoutePattern()
			}
			elapsed := time.Since(start)
			RecordRequest(r.Method, endpoint, status, elapsed)
			log.Debug("http request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", status),
				zap.Int("bytes", ww.BytesWritten()),
				zap.Duration("elapsed", elapsed),
				zap.String("ip", GetClientIP(r)))
		})
	}
}
