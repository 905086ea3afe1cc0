package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

// ServerConfig configures the public API server.
type ServerConfig struct {
	Range        RangeController
	Renderer     FrameRenderer
	Origins      []string
	RateLimit    RateLimitConfig
	BroadcastFPS int
	Logger       *zap.Logger
}

// Server is the HTTP API server with WebSocket support.
// It combines the HTTP router with WebSocket hub for real-time updates.
type Server struct {
	cfg         ServerConfig
	router      *chi.Mux
	wsHub       *WebSocketHub
	rateLimiter *IPRateLimiter
	httpServer  *http.Server
	log         *zap.Logger
}

// NewServer creates a new API server.
//
// IMPORTANT: Background workers do NOT start until Start() is called.
// Tests can construct the server and use Router() without goroutines
// beyond the rate limiter cleanup.
func NewServer(cfg ServerConfig) *Server {
	log := cfg.Logger
	if log == nil {
		log = zap.NewNop()
	}
	if cfg.RateLimit.RequestsPerSecond <= 0 {
		cfg.RateLimit = DefaultRateLimitConfig
	}
	s := &Server{
		cfg:         cfg,
		wsHub:       NewWebSocketHub(cfg.Range, cfg.Origins, log),
		rateLimiter: NewIPRateLimiter(cfg.RateLimit),
		log:         log.Named("api"),
	}

	s.router = NewRouter(RouterConfig{
		Range:       cfg.Range,
		Renderer:    cfg.Renderer,
		RateLimiter: s.rateLimiter,
		// HTTP and WebSocket spawns draw from the same per-IP budget.
		SpawnLimiter: s.wsHub.spawns,
		CORSOrigins:  cfg.Origins,
		Logger:      s.log,
	})

	// Add WebSocket routes (these need the wsHub instance)
	s.router.Get("/ws", s.wsHub.HandleWebSocket)

	return s
}

// Start runs the hub workers and serves addr. It blocks until the
// listener fails or Shutdown is called; Shutdown yields a nil error.
func (s *Server) Start(addr string) error {
	go s.wsHub.Run()
	s.wsHub.StartBroadcastLoop(s.cfg.BroadcastFPS)

	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 5 * time.Second,
	}
	s.log.Info("API server starting", zap.String("addr", addr))

	err := s.httpServer.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Router returns the HTTP handler for use with httptest.
//
//	server := api.NewServer(api.ServerConfig{Range: rng})
//	ts := httptest.NewServer(server.Router())
//	defer ts.Close()
//	resp, _ := http.Get(ts.URL + "/api/state")
func (s *Server) Router() http.Handler {
	return s.router
}

// Hub exposes the WebSocket hub.
func (s *Server) Hub() *WebSocketHub {
	return s.wsHub
}

// Shutdown stops background workers and drains the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.wsHub.Stop()
	s.rateLimiter.Stop()
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}
