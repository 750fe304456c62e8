// Package fetch implements the acquisition capabilities jobs select by
// name. A capability is built per job, validates its configuration and
// required endpoints before any session or network work, and returns the
// local paths it produced.
package fetch

import (
	"context"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"go-report-etl/internal/browser"
	"go-report-etl/internal/config"
	"go-report-etl/internal/model"
)

// Fetcher acquires one or more files for a job.
type Fetcher interface {
	Fetch(ctx context.Context) ([]string, error)
}

// Options carries everything one job's capability needs. Now and
// HTTPClient exist for tests; nil picks the real clock and a client with
// the dashboard timeout.
type Options struct {
	Service    string
	SubService string
	Spec       *model.FetchSpec
	Config     *config.Config
	Launcher   browser.Launcher
	Log        zerolog.Logger
	Now        func() time.Time
	HTTPClient *http.Client
}

// New resolves the capability named by the spec. The set is closed; an
// unknown name is a ConfigError before any work happens.
func New(opts Options) (Fetcher, error) {
	switch opts.Spec.Name {
	case "localpath":
		return newLocalPath(opts)
	case "localfolder":
		return newLocalFolder(opts)
	case "internaldash":
		return newInternalDash(opts)
	case "qualtrics":
		return newQualtrics(opts)
	case "qualtricsSurveyData":
		return newQualtricsSurvey(opts)
	case "feedbackIntranet":
		return newIntranet(opts)
	}
	return nil, model.Configf("unknown downloader %q", opts.Spec.Name)
}

// naming builds the destination policy for this job's files.
func (o Options) naming() model.NamingPolicy {
	return model.NamingPolicy{
		RootDir:           o.Spec.RootDownloadDir,
		Service:           o.Service,
		SubService:        o.SubService,
		CapabilityName:    o.Spec.Name,
		IncludeCapability: o.Spec.AddDownloaderName,
		IncludeStem:       o.Spec.AddOriginalName,
		Timestamp:         o.Spec.AddTimestamp,
		FullTimestamp:     o.Spec.AddFullTimestamp,
	}
}

// jobNow is the current instant in the job's zone. Date ranges and file
// timestamps both resolve against it, never against the host zone.
func (o Options) jobNow() (time.Time, error) {
	loc, err := time.LoadLocation(o.Spec.Timezone)
	if err != nil {
		return time.Time{}, model.Configf("invalid tz %q: %v", o.Spec.Timezone, err)
	}
	base := time.Now()
	if o.Now != nil {
		base = o.Now()
	}
	return base.In(loc), nil
}
