package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/mikepea/marknotes/pkg/marknotes/config"
	"github.com/mikepea/marknotes/pkg/marknotes/database"
	"github.com/mikepea/marknotes/pkg/marknotes/logging"
	"github.com/mikepea/marknotes/pkg/marknotes/server"
)

// @title Marknotes API
// @version 1.0
// @description Encrypted markdown notes organized into organizations.

// @BasePath /api

// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
// @description Session token. Format: "Bearer {token}"

func main() {
	cfg, err := config.Load()
	if err != nil {
		bootLog := zerolog.New(os.Stderr).With().Timestamp().Logger()
		bootLog.Fatal().Err(err).Msg("invalid configuration")
	}
	log := logging.New(cfg)

	// Connect to database (migrations run on open)
	if err := database.Connect(cfg.DBPath); err != nil {
		log.Fatal().Err(err).Str("path", cfg.DBPath).Msg("failed to open database")
	}
	log.Info().Str("path", cfg.DBPath).Msg("database ready")

	app, err := server.Build(cfg, database.GetDB(), log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to build server")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Older deployments encoded archive and trash state in file names.
	if n, err := app.Manager.MigrateAllLegacySuffixes(ctx); err != nil {
		log.Warn().Err(err).Int("migrated", n).Msg("legacy migration incomplete")
	} else if n > 0 {
		log.Info().Int("migrated", n).Msg("legacy documents migrated")
	}

	app.Scheduler.Start(ctx)
	defer app.Scheduler.Stop()

	srv := server.NewHTTPServer(cfg, app)
	go func() {
		log.Info().Str("addr", srv.Addr).Str("env", cfg.Environment).Msg("starting marknotes server")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("server failed")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("graceful shutdown failed")
	}
}
