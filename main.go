package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/arijanluiken/chartscript/internal/supervisor"
	"github.com/arijanluiken/chartscript/pkg/config"
)

func main() {
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load config")
	}

	level, err := zerolog.ParseLevel(cfg.Logging.Level)
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	log.Info().
		Str("database", cfg.Database.Path).
		Int("api_port", cfg.API.Port).
		Str("script_dir", cfg.Script.Dir).
		Int("max_bars", cfg.Script.MaxBars).
		Str("log_level", level.String()).
		Msg("Chartscript starting")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	sup := supervisor.New(cfg)
	if err := sup.Start(ctx); err != nil {
		log.Fatal().Err(err).Msg("Failed to start supervisor")
	}

	// Wait for interrupt signal
	<-ctx.Done()

	log.Info().Msg("Shutting down chartscript")
	sup.Stop()
}
