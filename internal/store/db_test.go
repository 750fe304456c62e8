package store

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go-report-etl/internal/model"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestRunLifecycle(t *testing.T) {
	s := openTestStore(t)
	started := time.Date(2024, 3, 10, 15, 0, 0, 0, time.UTC)

	require.NoError(t, s.CreateRun("run-1", started, 3))

	run, err := s.GetRun("run-1")
	require.NoError(t, err)
	assert.Equal(t, model.RunStatusRunning, run.Status)
	assert.Nil(t, run.FinishedAt)
	assert.Equal(t, 3, run.ConfigFiles)
	assert.WithinDuration(t, started, run.StartedAt, time.Second)

	summary := &model.RunSummary{
		RunID:       "run-1",
		StartedAt:   started,
		FinishedAt:  started.Add(90 * time.Second),
		ConfigFiles: 3,
		Processed:   2,
		Failed:      1,
		Elapsed:     90 * time.Second,
	}
	require.NoError(t, s.FinishRun(summary))

	run, err = s.GetRun("run-1")
	require.NoError(t, err)
	assert.Equal(t, model.RunStatusFailed, run.Status)
	require.NotNil(t, run.FinishedAt)
	assert.Equal(t, 2, run.Processed)
	assert.Equal(t, 1, run.Failed)
	assert.Equal(t, int64(90000), run.ElapsedMS)
}

func TestGetRun_Unknown(t *testing.T) {
	s := openTestStore(t)

	_, err := s.GetRun("missing")

	var notFound *model.NotFoundError
	require.ErrorAs(t, err, &notFound)
	assert.Contains(t, err.Error(), "missing")
}

func TestListRuns_NewestFirst(t *testing.T) {
	s := openTestStore(t)
	base := time.Date(2024, 3, 10, 15, 0, 0, 0, time.UTC)
	require.NoError(t, s.CreateRun("older", base, 1))
	require.NoError(t, s.CreateRun("newer", base.Add(time.Hour), 1))

	runs, err := s.ListRuns()
	require.NoError(t, err)

	require.Len(t, runs, 2)
	assert.Equal(t, "newer", runs[0].ID)
	assert.Equal(t, "older", runs[1].ID)
}

func TestJobsAndErrors(t *testing.T) {
	s := openTestStore(t)
	now := time.Date(2024, 3, 10, 15, 0, 0, 0, time.UTC)
	require.NoError(t, s.CreateRun("run-1", now, 2))

	require.NoError(t, s.SaveJob(Job{
		RunID: "run-1", Service: "ventas", SubService: "diario",
		Status: model.JobStatusOK, ElapsedMS: 1200, CreatedAt: now,
	}))
	require.NoError(t, s.SaveJob(Job{
		RunID: "run-1", Service: "formacion", SubService: "consolidado",
		Status: model.JobStatusFailed, ElapsedMS: 300,
		Error: "sheet BD is missing column GERENCIA", Artifact: "logs/traceback_formacion_consolidado.txt",
		CreatedAt: now.Add(time.Second),
	}))

	jobs, err := s.GetRunJobs("run-1")
	require.NoError(t, err)
	require.Len(t, jobs, 2)
	assert.Equal(t, "ventas", jobs[0].Service)
	assert.Equal(t, model.JobStatusOK, jobs[0].Status)
	assert.Equal(t, "formacion", jobs[1].Service)

	failures, err := s.GetRunErrors("run-1")
	require.NoError(t, err)
	require.Len(t, failures, 1)
	assert.Equal(t, "formacion", failures[0].Service)
	assert.Contains(t, failures[0].Error, "GERENCIA")
	assert.Equal(t, "logs/traceback_formacion_consolidado.txt", failures[0].Artifact)
}

func TestTagEvents(t *testing.T) {
	s := openTestStore(t)
	at := time.Date(2024, 3, 10, 16, 0, 0, 0, time.UTC)

	require.NoError(t, s.SaveTagEvent(TagEvent{
		RunID: "run-1", OldName: "[P]ventas.yaml", NewName: "ventas.yaml", RenamedAt: at,
	}))

	events, err := s.ListTagEvents("run-1")
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, "[P]ventas.yaml", events[0].OldName)
	assert.Equal(t, "ventas.yaml", events[0].NewName)
	assert.WithinDuration(t, at, events[0].RenamedAt, time.Second)
}
