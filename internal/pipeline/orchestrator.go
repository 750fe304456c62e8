// Package pipeline orchestrates full runs: it discovers descriptor files
// in priority order, executes every enabled job behind a fault boundary,
// consumes one-shot priority tags and records the outcome in the run
// store.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"go-report-etl/internal/browser"
	"go-report-etl/internal/config"
	"go-report-etl/internal/fetch"
	"go-report-etl/internal/model"
	"go-report-etl/internal/process"
	"go-report-etl/internal/sink"
	"go-report-etl/internal/store"
)

// ErrRunActive is returned when a run is requested while another one is
// still executing.
var ErrRunActive = errors.New("a run is already active")

// Sink is the persistence boundary jobs write through. *sink.Sink
// satisfies it.
type Sink interface {
	process.Uploader
	ExecSQL(ctx context.Context, spec *model.SQLExecSpec) error
}

// Options wires an Orchestrator. Store may be nil, which disables run
// history. Launcher, Sink and Now default to the Chrome launcher, a
// sink built from the config and the real clock.
type Options struct {
	Config   *config.Config
	Log      zerolog.Logger
	Store    *store.Store
	Sink     Sink
	Launcher browser.Launcher
	Now      func() time.Time
}

// Orchestrator executes runs of the configured reports. At most one run
// is active at a time; overlapping triggers fail fast instead of piling
// up browser sessions.
type Orchestrator struct {
	opts   Options
	active atomic.Bool
}

func New(opts Options) *Orchestrator {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Launcher == nil {
		opts.Launcher = browser.NewChromeLauncher()
	}
	if opts.Sink == nil {
		opts.Sink = &sink.Sink{
			EngineString: opts.Config.SQLEngineString,
			ScriptsDir:   opts.Config.SQLDir,
			Log:          opts.Log,
		}
	}
	return &Orchestrator{opts: opts}
}

// Run executes one full pass over the configured reports and blocks
// until it finishes. A concurrent call fails fast with ErrRunActive.
func (o *Orchestrator) Run(ctx context.Context) (*model.RunSummary, error) {
	if !o.active.CompareAndSwap(false, true) {
		return nil, ErrRunActive
	}
	defer o.active.Store(false)
	return o.run(ctx, uuid.NewString())
}

// RunAsync starts a run in the background and returns its id right away
// so callers can poll the run store. The run detaches from the caller's
// request context.
func (o *Orchestrator) RunAsync() (string, error) {
	if !o.active.CompareAndSwap(false, true) {
		return "", ErrRunActive
	}
	runID := uuid.NewString()
	go func() {
		defer o.active.Store(false)
		if _, err := o.run(context.Background(), runID); err != nil {
			o.opts.Log.Error().Err(err).Str("run_id", runID).Msg("background run failed")
		}
	}()
	return runID, nil
}

func (o *Orchestrator) run(ctx context.Context, runID string) (*model.RunSummary, error) {
	log := o.opts.Log.With().Str("run_id", runID).Logger()
	startedAt := o.opts.Now()

	log.Info().Msg("Importing config files...")
	files, err := Discover(o.opts.Config.ConfigDir)
	if err != nil {
		return nil, err
	}
	jobFiles, err := loadJobFiles(files)
	if err != nil {
		return nil, err
	}

	summary := &model.RunSummary{RunID: runID, StartedAt: startedAt, ConfigFiles: len(files)}
	if o.opts.Store != nil {
		if err := o.opts.Store.CreateRun(runID, startedAt, len(files)); err != nil {
			return nil, fmt.Errorf("recording run start: %w", err)
		}
	}

jobs:
	for _, file := range jobFiles {
		for _, job := range file.Jobs {
			if ctx.Err() != nil {
				log.Warn().Msg("run interrupted, skipping remaining jobs")
				break jobs
			}
			if !job.Enabled {
				continue
			}
			o.runJob(ctx, runID, job, summary, log)
		}
	}

	// Tags are consumed even when jobs failed, otherwise a broken [P]
	// file would jump the queue on every subsequent run.
	for _, rename := range ConsumeOneShotTags(files, log) {
		log.Info().Str("from", rename.OldName).Str("to", rename.NewName).Msg("priority tag consumed")
		if o.opts.Store == nil {
			continue
		}
		event := store.TagEvent{RunID: runID, OldName: rename.OldName, NewName: rename.NewName, RenamedAt: o.opts.Now()}
		if err := o.opts.Store.SaveTagEvent(event); err != nil {
			log.Error().Err(err).Msg("recording tag rename")
		}
	}

	summary.FinishedAt = o.opts.Now()
	summary.Elapsed = summary.FinishedAt.Sub(summary.StartedAt)

	log.Info().Msgf("Total time: %.2f seconds", summary.Elapsed.Seconds())
	log.Info().Msgf("Total config files: %d", summary.ConfigFiles)
	log.Info().Msgf("Total reports: %d", summary.Processed)
	if summary.Failed > 0 {
		log.Error().Msgf("Total errors: %d", summary.Failed)
		log.Error().Strs("reports", summary.FailedJobs).Msg("Reports with errors")
	}

	if o.opts.Store != nil {
		if err := o.opts.Store.FinishRun(summary); err != nil {
			log.Error().Err(err).Msg("recording run finish")
		}
	}
	return summary, nil
}

// runJob executes one report inside a fault boundary: any error becomes
// a recorded failure with a traceback artifact and the run moves on.
func (o *Orchestrator) runJob(ctx context.Context, runID string, job model.JobDescriptor, summary *model.RunSummary, runLog zerolog.Logger) {
	identity := job.Identity()
	log := runLog.With().Str("report", identity).Logger()
	startedAt := o.opts.Now()

	err := o.executeJob(ctx, job, log)
	elapsed := o.opts.Now().Sub(startedAt)

	record := store.Job{
		RunID:      runID,
		Service:    job.Service,
		SubService: job.SubService,
		ElapsedMS:  elapsed.Milliseconds(),
		CreatedAt:  startedAt,
	}
	if err != nil {
		summary.RecordFailure(identity)
		record.Status = model.JobStatusFailed
		record.Error = err.Error()
		record.Artifact = o.writeTraceback(job, err, log)
		log.Error().Err(err).Msgf("Error processing %s", identity)
	} else {
		summary.RecordSuccess()
		record.Status = model.JobStatusOK
		log.Info().Msgf("%s: Processed in %.2f seconds", identity, elapsed.Seconds())
	}
	if o.opts.Store != nil {
		if serr := o.opts.Store.SaveJob(record); serr != nil {
			log.Error().Err(serr).Msg("recording job result")
		}
	}
}

// executeJob runs the acquire, transform, upload and SQL phases of one
// job. Panics surface as errors so a misbehaving capability cannot take
// down the whole run.
func (o *Orchestrator) executeJob(ctx context.Context, job model.JobDescriptor, log zerolog.Logger) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v\n%s", r, debug.Stack())
		}
	}()

	if err := job.Validate(); err != nil {
		return err
	}

	fetcher, err := fetch.New(fetch.Options{
		Service:    job.Service,
		SubService: job.SubService,
		Spec:       job.Downloader,
		Config:     o.opts.Config,
		Launcher:   o.opts.Launcher,
		Log:        log,
		Now:        o.opts.Now,
	})
	if err != nil {
		return err
	}
	log.Info().Msgf("%s: Downloading file", job.Identity())
	paths, err := fetcher.Fetch(ctx)
	if err != nil {
		return err
	}

	// Jobs without a processor stop after acquisition; upload and SQL
	// never run on raw files.
	if job.Processor == nil {
		return nil
	}
	proc, err := process.New(process.Options{
		Service:    job.Service,
		SubService: job.SubService,
		Spec:       job.Processor,
		Log:        log,
	})
	if err != nil {
		return err
	}
	log.Info().Msgf("%s: Reading file", job.Identity())
	if _, err := proc.Process(ctx, paths); err != nil {
		return err
	}

	if job.Upload != nil {
		log.Info().Msgf("%s: Uploading to DB", job.Identity())
		if err := proc.Upload(ctx, o.opts.Sink, job.Upload); err != nil {
			return err
		}
	}
	if job.SQLExec != nil {
		log.Info().Msgf("%s: Executing SQL", job.Identity())
		if err := o.opts.Sink.ExecSQL(ctx, job.SQLExec); err != nil {
			return err
		}
	}
	return nil
}

func (o *Orchestrator) writeTraceback(job model.JobDescriptor, jobErr error, log zerolog.Logger) string {
	path, err := WriteTraceback(o.opts.Config.LogDir, job.Service, job.SubService, jobErr)
	if err != nil {
		log.Error().Err(err).Msg("writing traceback artifact")
		return ""
	}
	log.Debug().Str("artifact", path).Msg("traceback artifact written")
	return path
}
