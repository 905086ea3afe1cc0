package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"shooting-range/internal/api"
	"shooting-range/internal/app"
	"shooting-range/internal/config"
	"shooting-range/internal/ipc"
	"shooting-range/internal/render"
)

func main() {
	configPath := flag.String("config", "range.toml", "TOML configuration file")
	flag.Parse()

	// Load .env file from parent directory
	if err := godotenv.Load("../.env"); err != nil {
		// Try current directory as fallback
		_ = godotenv.Load(".env")
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	logger, err := config.NewLogger(cfg.Logging)
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer logger.Sync()

	if err := run(cfg, logger); err != nil {
		logger.Fatal("server failed", zap.Error(err))
	}
}

func run(cfg *config.Config, logger *zap.Logger) error {
	a, err := app.Build(cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close()
	rng := a.Range

	logger.Info("range configured",
		zap.String("session", rng.Session()),
		zap.Int("tickRate", cfg.Range.TickRate),
		zap.Int("bullets", cfg.Pools.Bullets),
		zap.Int("targets", cfg.Pools.Targets),
		zap.String("weapon", cfg.Weapon.Preset))

	if a.Sounds != nil {
		if err := a.Sounds.StartSpeaker(); err != nil {
			// Non-fatal, the range runs without sound
			logger.Warn("audio disabled", zap.Error(err))
		}
	}

	if cfg.EventLog.Path != "" {
		if err := rng.StartEventLog(cfg.EventLog.Path); err != nil {
			logger.Warn("event log disabled", zap.Error(err))
		} else {
			logger.Info("event log started", zap.String("path", cfg.EventLog.Path))
		}
	}

	observer := api.NewTickObserver()
	rng.SetTickHook(observer.Observe)

	debugSrv := api.StartDebugServer(api.ObservabilityConfig{
		Enabled:       cfg.Debug.Enabled,
		ListenAddr:    cfg.Debug.Address,
		BasicAuthUser: os.Getenv("DEBUG_USER"),
		BasicAuthPass: os.Getenv("DEBUG_PASS"),
	}, logger)

	server := api.NewServer(api.ServerConfig{
		Range:    rng,
		Renderer: render.New(render.Config{Width: cfg.Server.FrameWidth, Height: cfg.Server.FrameHeight}),
		Origins:  cfg.Server.AllowedOrigins,
		RateLimit: api.RateLimitConfig{
			RequestsPerSecond: cfg.Server.RequestsPerSecond,
			Burst:             cfg.Server.Burst,
		},
		BroadcastFPS: cfg.Server.BroadcastFPS,
		Logger:       logger,
	})

	var publisher *ipc.Publisher
	if cfg.Server.IPCSocket != "" {
		publisher = ipc.NewPublisher(cfg.Server.IPCSocket, rng, cfg.Server.IPCFPS, cfg.Range.TickRate, logger)
		if err := publisher.Start(); err != nil {
			logger.Warn("viewer feed disabled", zap.Error(err))
			publisher = nil
		}
	}

	rng.Start()
	if cfg.Spawner.AutoStart {
		if err := rng.StartSpawning(); err != nil {
			logger.Warn("spawner not started", zap.Error(err))
		}
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Start(fmt.Sprintf(":%d", cfg.Server.Port))
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	var serveErr error
	select {
	case sig := <-quit:
		logger.Info("shutting down", zap.String("signal", sig.String()))
	case serveErr = <-errCh:
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		logger.Warn("api shutdown", zap.Error(err))
	}
	if debugSrv != nil {
		debugSrv.Shutdown(ctx)
	}
	if publisher != nil {
		publisher.Stop()
	}
	rng.Stop()
	rng.StopEventLog()

	stats := rng.Stats()
	logger.Info("range stopped",
		zap.Uint64("ticks", stats.Tick),
		zap.Int("score", stats.Score),
		zap.Uint64("shots", stats.Counters.ShotsFired),
		zap.Uint64("destroyed", stats.Counters.DestroyedByDamage))
	return serveErr
}
