// Command etl executes one full orchestration pass over the configured
// reports and exits. Exit code 1 means the run aborted or at least one
// report failed; details land in the run store and the traceback
// artifacts.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"go-report-etl/internal/config"
	"go-report-etl/internal/pipeline"
	"go-report-etl/internal/store"
	"go-report-etl/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fallback := logger.New(logger.Config{Level: "info"})
		fallback.Fatal().Err(err).Msg("invalid configuration")
	}

	log := logger.New(logger.Config{Level: cfg.LogLevel, Pretty: cfg.LogPretty})
	logger.SetGlobalLogger(log)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

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

	summary, err := orc.Run(ctx)
	if err != nil {
		log.Error().Err(err).Msg("run aborted")
		os.Exit(1)
	}
	if summary.Failed > 0 {
		os.Exit(1)
	}
}
