// Command rangeview plays a range in the terminal, either in-process or by
// attaching to a running server.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/gdamore/tcell/v2"
	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"shooting-range/internal/app"
	"shooting-range/internal/config"
	"shooting-range/internal/ipc"
	"shooting-range/internal/view"
)

func main() {
	configPath := flag.String("config", "range.toml", "TOML configuration file")
	logPath := flag.String("log", "rangeview.log", "log file; the terminal is busy")
	sound := flag.Bool("sound", false, "play sound cues; overrides audio.enabled when given")
	fps := flag.Int("fps", 30, "redraw rate")
	attach := flag.String("attach", "", "follow a running server's viewer socket instead of running a range")
	flag.Parse()

	_ = godotenv.Load(".env")

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	applySoundFlag(cfg, flag.CommandLine, *sound)
	cfg.Logging.Format = "json"
	cfg.Logging.Output = *logPath

	logger, err := config.NewLogger(cfg.Logging)
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer logger.Sync()

	if *attach != "" {
		err = runAttached(*attach, logger, *fps)
	} else {
		err = run(cfg, logger, *fps)
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// applySoundFlag lets an explicit -sound switch audio either way; without it
// the config file decides.
func applySoundFlag(cfg *config.Config, fs *flag.FlagSet, sound bool) {
	fs.Visit(func(f *flag.Flag) {
		if f.Name == "sound" {
			cfg.Audio.Enabled = sound
		}
	})
}

func run(cfg *config.Config, logger *zap.Logger, fps int) error {
	a, err := app.Build(cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	if a.Sounds != nil {
		if err := a.Sounds.StartSpeaker(); err != nil {
			// Non-fatal, the range runs without sound
			logger.Warn("audio disabled", zap.Error(err))
		}
	}

	a.Range.Start()
	defer a.Range.Stop()
	if cfg.Spawner.AutoStart {
		if err := a.Range.StartSpawning(); err != nil {
			logger.Warn("spawner not started", zap.Error(err))
		}
	}

	return play(a.Range, logger, fps)
}

// runAttached drives a server through its viewer socket.
func runAttached(socket string, logger *zap.Logger, fps int) error {
	sub := ipc.NewSubscriber(socket, logger)
	sub.Start()
	defer sub.Stop()
	return play(sub, logger, fps)
}

func play(rng view.Controller, logger *zap.Logger, fps int) error {
	screen, err := tcell.NewScreen()
	if err != nil {
		return err
	}
	if err := screen.Init(); err != nil {
		return err
	}
	defer screen.Fini()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	view.New(screen, rng, logger).Run(ctx, fps)
	return nil
}
