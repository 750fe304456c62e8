package model

import "time"

// Run statuses as recorded in the run store.
const (
	RunStatusRunning   = "running"
	RunStatusCompleted = "completed"
	RunStatusFailed    = "completed_with_errors"
)

// Job statuses as recorded per executed report.
const (
	JobStatusOK     = "ok"
	JobStatusFailed = "failed"
)

// RunSummary aggregates the outcome of one orchestration run. It is
// assembled incrementally and read-only after the run completes.
type RunSummary struct {
	RunID       string        `json:"run_id"`
	StartedAt   time.Time     `json:"started_at"`
	FinishedAt  time.Time     `json:"finished_at"`
	ConfigFiles int           `json:"config_files"`
	Processed   int           `json:"processed"`
	Failed      int           `json:"failed"`
	FailedJobs  []string      `json:"failed_jobs,omitempty"`
	Elapsed     time.Duration `json:"elapsed"`
}

// RecordSuccess counts one processed report.
func (s *RunSummary) RecordSuccess() {
	s.Processed++
}

// RecordFailure counts one failed report and remembers its identity.
func (s *RunSummary) RecordFailure(identity string) {
	s.Failed++
	s.FailedJobs = append(s.FailedJobs, identity)
}

// Status maps the error count to the terminal run status.
func (s RunSummary) Status() string {
	if s.Failed > 0 {
		return RunStatusFailed
	}
	return RunStatusCompleted
}
