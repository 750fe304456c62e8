// Package store persists run history in SQLite: one row per orchestration
// run, one per executed report, and one per one-shot tag rename. The
// operator API reads it; the orchestrator writes it.
package store

import (
	"database/sql"
	"errors"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"go-report-etl/internal/model"
)

// Run is one orchestration run as stored.
type Run struct {
	ID          string     `json:"id"`
	Status      string     `json:"status"`
	StartedAt   time.Time  `json:"started_at"`
	FinishedAt  *time.Time `json:"finished_at,omitempty"`
	ConfigFiles int        `json:"config_files"`
	Processed   int        `json:"processed"`
	Failed      int        `json:"failed"`
	ElapsedMS   int64      `json:"elapsed_ms"`
}

// Job is one report execution within a run.
type Job struct {
	RunID      string    `json:"run_id"`
	Service    string    `json:"service"`
	SubService string    `json:"sub_service"`
	Status     string    `json:"status"`
	ElapsedMS  int64     `json:"elapsed_ms"`
	Error      string    `json:"error,omitempty"`
	Artifact   string    `json:"artifact,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

// JobError is the failure view of a run: only failed reports, with the
// error text and the traceback artifact path.
type JobError struct {
	Service    string `json:"service"`
	SubService string `json:"sub_service"`
	Error      string `json:"error"`
	Artifact   string `json:"artifact,omitempty"`
}

// TagEvent is one filename rename performed by the post-run tag sweep.
type TagEvent struct {
	RunID     string    `json:"run_id"`
	OldName   string    `json:"old_name"`
	NewName   string    `json:"new_name"`
	RenamedAt time.Time `json:"renamed_at"`
}

// Store wraps the SQLite run database.
type Store struct {
	db *sql.DB
}

// Open opens (or creates) the run database and ensures the schema.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, err
	}
	// SQLite allows one writer; a single pooled connection also keeps
	// :memory: databases shared across goroutines.
	db.SetMaxOpenConns(1)
	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error { return s.db.Close() }

func (s *Store) migrate() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS runs (
			id TEXT PRIMARY KEY,
			status TEXT,
			started_at DATETIME,
			finished_at DATETIME,
			config_files INTEGER,
			processed INTEGER,
			failed INTEGER,
			elapsed_ms INTEGER
		);`,
		`CREATE TABLE IF NOT EXISTS run_jobs (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			run_id TEXT,
			service TEXT,
			sub_service TEXT,
			status TEXT,
			elapsed_ms INTEGER,
			error TEXT,
			artifact TEXT,
			created_at DATETIME
		);`,
		`CREATE TABLE IF NOT EXISTS tag_events (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			run_id TEXT,
			old_name TEXT,
			new_name TEXT,
			renamed_at DATETIME
		);`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

// CreateRun records a run the moment it starts.
func (s *Store) CreateRun(id string, startedAt time.Time, configFiles int) error {
	_, err := s.db.Exec(
		`INSERT INTO runs (id, status, started_at, config_files, processed, failed, elapsed_ms)
		 VALUES (?, ?, ?, ?, 0, 0, 0)`,
		id, model.RunStatusRunning, startedAt.UTC(), configFiles)
	return err
}

// FinishRun stores the final counters and status of a completed run.
func (s *Store) FinishRun(summary *model.RunSummary) error {
	_, err := s.db.Exec(
		`UPDATE runs SET status = ?, finished_at = ?, config_files = ?, processed = ?, failed = ?, elapsed_ms = ?
		 WHERE id = ?`,
		summary.Status(), summary.FinishedAt.UTC(), summary.ConfigFiles,
		summary.Processed, summary.Failed, summary.Elapsed.Milliseconds(), summary.RunID)
	return err
}

// SaveJob records one executed report.
func (s *Store) SaveJob(job Job) error {
	_, err := s.db.Exec(
		`INSERT INTO run_jobs (run_id, service, sub_service, status, elapsed_ms, error, artifact, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		job.RunID, job.Service, job.SubService, job.Status, job.ElapsedMS,
		job.Error, job.Artifact, job.CreatedAt.UTC())
	return err
}

// SaveTagEvent records one post-run filename rename.
func (s *Store) SaveTagEvent(event TagEvent) error {
	_, err := s.db.Exec(
		`INSERT INTO tag_events (run_id, old_name, new_name, renamed_at) VALUES (?, ?, ?, ?)`,
		event.RunID, event.OldName, event.NewName, event.RenamedAt.UTC())
	return err
}

// ListRuns returns all runs, newest first.
func (s *Store) ListRuns() ([]Run, error) {
	rows, err := s.db.Query(
		`SELECT id, status, started_at, finished_at, config_files, processed, failed, elapsed_ms
		 FROM runs ORDER BY started_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

// GetRun fetches one run by id.
func (s *Store) GetRun(id string) (*Run, error) {
	row := s.db.QueryRow(
		`SELECT id, status, started_at, finished_at, config_files, processed, failed, elapsed_ms
		 FROM runs WHERE id = ?`, id)
	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &model.NotFoundError{Resource: "run " + id}
	}
	if err != nil {
		return nil, err
	}
	return &run, nil
}

// GetRunJobs returns every report executed in a run, in execution order.
func (s *Store) GetRunJobs(runID string) ([]Job, error) {
	rows, err := s.db.Query(
		`SELECT run_id, service, sub_service, status, elapsed_ms, error, artifact, created_at
		 FROM run_jobs WHERE run_id = ? ORDER BY id`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var jobs []Job
	for rows.Next() {
		var job Job
		if err := rows.Scan(&job.RunID, &job.Service, &job.SubService, &job.Status,
			&job.ElapsedMS, &job.Error, &job.Artifact, &job.CreatedAt); err != nil {
			return nil, err
		}
		jobs = append(jobs, job)
	}
	return jobs, rows.Err()
}

// GetRunErrors returns the failed reports of a run.
func (s *Store) GetRunErrors(runID string) ([]JobError, error) {
	rows, err := s.db.Query(
		`SELECT service, sub_service, error, artifact
		 FROM run_jobs WHERE run_id = ? AND status = ? ORDER BY id`,
		runID, model.JobStatusFailed)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var failures []JobError
	for rows.Next() {
		var f JobError
		if err := rows.Scan(&f.Service, &f.SubService, &f.Error, &f.Artifact); err != nil {
			return nil, err
		}
		failures = append(failures, f)
	}
	return failures, rows.Err()
}

// ListTagEvents returns the renames performed after a run.
func (s *Store) ListTagEvents(runID string) ([]TagEvent, error) {
	rows, err := s.db.Query(
		`SELECT run_id, old_name, new_name, renamed_at
		 FROM tag_events WHERE run_id = ? ORDER BY id`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []TagEvent
	for rows.Next() {
		var ev TagEvent
		if err := rows.Scan(&ev.RunID, &ev.OldName, &ev.NewName, &ev.RenamedAt); err != nil {
			return nil, err
		}
		events = append(events, ev)
	}
	return events, rows.Err()
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanRun(row rowScanner) (Run, error) {
	var run Run
	var finished sql.NullTime
	err := row.Scan(&run.ID, &run.Status, &run.StartedAt, &finished,
		&run.ConfigFiles, &run.Processed, &run.Failed, &run.ElapsedMS)
	if err != nil {
		return Run{}, err
	}
	if finished.Valid {
		run.FinishedAt = &finished.Time
	}
	return run, nil
}
