// Command etl-api runs the long-lived operator service: the HTTP API for
// triggering and inspecting runs, plus an optional cron schedule when
// CRON_SPEC is set.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "go-report-etl/docs"
	"go-report-etl/internal/api"
	"go-report-etl/internal/config"
	"go-report-etl/internal/pipeline"
	"go-report-etl/internal/scheduler"
	"go-report-etl/internal/store"
	"go-report-etl/pkg/logger"
)

// @title Report ETL API
// @version 1.0
// @description Operator API for triggering and inspecting report runs.
// @BasePath /api/v1
func main() {
	cfg, err := config.Load()
	if err != nil {
		fallback := logger.New(logger.Config{Level: "info"})
		fallback.Fatal().Err(err).Msg("invalid configuration")
	}

	log := logger.New(logger.Config{Level: cfg.LogLevel, Pretty: cfg.LogPretty})
	logger.SetGlobalLogger(log)

	st, err := store.Open(cfg.RunDBPath)
	if err != nil {
		log.Fatal().Err(err).Str("path", cfg.RunDBPath).Msg("opening run store")
	}
	defer st.Close()

	orc := pipeline.New(pipeline.Options{
		Config: cfg,
		Log:    log,
		Store:  st,
	})

	srv := api.New(api.Config{
		Port:    cfg.APIPort,
		Log:     log,
		Trigger: orc,
		History: st,
	})

	var daemon *scheduler.Daemon
	if cfg.CronSpec != "" {
		daemon = scheduler.New(log)
		if err := daemon.Schedule(cfg.CronSpec, orc); err != nil {
			log.Fatal().Err(err).Str("spec", cfg.CronSpec).Msg("invalid cron spec")
		}
		daemon.Start()
	}

	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("http server failed")
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	<-ctx.Done()

	log.Info().Msg("shutting down")
	if daemon != nil {
		daemon.Stop()
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("shutdown failed")
	}
}
