package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	router "github.com/kojjob/syncforge-sub000/internal/adapters/http"
	wssignal "github.com/kojjob/syncforge-sub000/internal/adapters/signal"
	"github.com/kojjob/syncforge-sub000/internal/analytics"
	"github.com/kojjob/syncforge-sub000/internal/app"
	"github.com/kojjob/syncforge-sub000/internal/config"
	"github.com/kojjob/syncforge-sub000/internal/core"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// Initialize zerolog global logger early so config.Load can use it.
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	// Human-friendly output for terminal; in production you may want JSON only.
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	zerolog.SetGlobalLevel(zerolog.InfoLevel)

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}

	var (
		directory core.Directory
		store     core.EventStore
	)
	if cfg.DatabaseURL != "" {
		pg, err := app.NewPGDirectory(ctx, cfg.DatabaseURL)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to connect to room directory")
		}
		defer pg.Close()
		directory = pg
		store = app.NewPGEventStore(pg)
	} else {
		log.Warn().Msg("no database_url configured, using in-memory directory")
		directory = app.NewMemoryDirectory()
		store = app.NewMemoryEventStore()
	}

	var emitter core.Emitter
	if cfg.NatsURL != "" {
		nats, err := analytics.Connect(cfg.NatsURL)
		if err != nil {
			// Analytics is fire-and-forget; the rooms run without it.
			log.Warn().Err(err).Msg("nats unavailable, engine signals disabled")
		} else {
			defer nats.Close()
			emitter = nats
		}
	}

	presence := core.NewPresenceTable()
	gate := core.NewThrottleGate(cfg.ThrottleInterval)
	registry := app.NewRegistry(presence, gate, emitter)
	verifier := app.NewTokenVerifier(cfg.Secret)
	ctl := wssignal.NewController(registry, directory, verifier, store, cfg)

	r := router.SetupRouter(ctx, cfg, ctl, registry, verifier)
	addr := fmt.Sprintf(":%d", cfg.Port)

	srv := &http.Server{
		Addr:    addr,
		Handler: r,
	}

	go func() {
		log.Info().Str("addr", addr).Msg("SyncForge room engine started")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("server error")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("Shutting down")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}
	log.Info().Msg("Server exited gracefully")
}
