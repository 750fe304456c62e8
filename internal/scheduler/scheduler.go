// Package scheduler fires full orchestration runs on a cron schedule.
package scheduler

import (
	"context"
	"errors"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"go-report-etl/internal/model"
	"go-report-etl/internal/pipeline"
)

// Runner triggers one orchestration pass. *pipeline.Orchestrator
// satisfies it.
type Runner interface {
	Run(ctx context.Context) (*model.RunSummary, error)
}

// Daemon wraps a cron runner. Overlapping fires are skipped by the
// orchestrator's single-flight guard rather than queued.
type Daemon struct {
	cron *cron.Cron
	log  zerolog.Logger
}

func New(log zerolog.Logger) *Daemon {
	return &Daemon{
		cron: cron.New(cron.WithSeconds()),
		log:  log.With().Str("component", "scheduler").Logger(),
	}
}

// Schedule registers the run trigger. The spec uses six-field cron
// syntax with a leading seconds column, or descriptors like @hourly and
// @every 30m.
func (d *Daemon) Schedule(spec string, runner Runner) error {
	_, err := d.cron.AddFunc(spec, func() {
		summary, err := runner.Run(context.Background())
		switch {
		case errors.Is(err, pipeline.ErrRunActive):
			d.log.Warn().Msg("scheduled run skipped, previous run still active")
		case err != nil:
			d.log.Error().Err(err).Msg("scheduled run failed")
		default:
			d.log.Info().
				Str("run_id", summary.RunID).
				Int("processed", summary.Processed).
				Int("failed", summary.Failed).
				Msg("scheduled run finished")
		}
	})
	if err != nil {
		return err
	}
	d.log.Info().Str("schedule", spec).Msg("run schedule registered")
	return nil
}

func (d *Daemon) Start() {
	d.cron.Start()
	d.log.Info().Msg("schedule daemon started")
}

// Stop waits for an in-flight fire to return before reporting stopped.
func (d *Daemon) Stop() {
	<-d.cron.Stop().Done()
	d.log.Info().Msg("schedule daemon stopped")
}
