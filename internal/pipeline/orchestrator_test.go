package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go-report-etl/internal/config"
	"go-report-etl/internal/frame"
	"go-report-etl/internal/model"
	"go-report-etl/internal/sink"
	"go-report-etl/internal/store"
)

// fakeSink records uploads and SQL executions instead of touching a
// database.
type fakeSink struct {
	uploads []sink.Target
	execs   []*model.SQLExecSpec
}

func (f *fakeSink) Upload(_ context.Context, _ *frame.Frame, target sink.Target) error {
	f.uploads = append(f.uploads, target)
	return nil
}

func (f *fakeSink) ExecSQL(_ context.Context, spec *model.SQLExecSpec) error {
	f.execs = append(f.execs, spec)
	return nil
}

type panicSink struct{ fakeSink }

func (p *panicSink) Upload(context.Context, *frame.Frame, sink.Target) error {
	panic("boom")
}

func newTestStore(t *testing.T) *store.Store {
	t.Helper()
	st, err := store.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	return st
}

func testConfig(t *testing.T) (*config.Config, string) {
	t.Helper()
	root := t.TempDir()
	cfg := &config.Config{
		ConfigDir: filepath.Join(root, "reports"),
		LogDir:    filepath.Join(root, "logs"),
		SQLDir:    filepath.Join(root, "sql"),
	}
	require.NoError(t, os.MkdirAll(cfg.ConfigDir, 0o755))
	return cfg, root
}

func writeDescriptor(t *testing.T, cfg *config.Config, name, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(cfg.ConfigDir, name), []byte(content), 0o644))
}

func writeSource(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

// localJob renders a single-job descriptor that copies src through the
// localpath capability.
func localJob(service, sub, src, downloads string) string {
	return fmt.Sprintf(`- enabled: true
  servicio: %s
  sub_servicio: %s
  downloader:
    name: localpath
    local_fullpath: %s
    root_download_dir: %s
    tz: UTC
`, service, sub, src, downloads)
}

func TestRun_ExecutesJobsAndRecordsHistory(t *testing.T) {
	cfg, root := testConfig(t)
	downloads := filepath.Join(root, "downloads")
	src := writeSource(t, root, "origen.csv", "\"ID\",\"NOMBRE\"\n\"1\",\"ANA\"\n")

	writeDescriptor(t, cfg, "[H]ventas.yaml", localJob("ventas", "diario", src, downloads)+`- enabled: false
  servicio: ventas
  sub_servicio: apagado
  downloader:
    name: localpath
    local_fullpath: /no/existe.csv
`)
	writeDescriptor(t, cfg, "cobranza.yaml", localJob("cobranza", "mensual", filepath.Join(root, "falta.csv"), downloads))

	st := newTestStore(t)
	orc := New(Options{Config: cfg, Log: zerolog.Nop(), Store: st, Sink: &fakeSink{}})

	summary, err := orc.Run(context.Background())

	require.NoError(t, err)
	assert.Equal(t, 2, summary.ConfigFiles)
	assert.Equal(t, 1, summary.Processed)
	assert.Equal(t, 1, summary.Failed)
	assert.Equal(t, []string{"cobranza - mensual"}, summary.FailedJobs)

	run, err := st.GetRun(summary.RunID)
	require.NoError(t, err)
	assert.Equal(t, model.RunStatusFailed, run.Status)
	assert.Equal(t, 2, run.ConfigFiles)
	assert.Equal(t, 1, run.Processed)
	assert.Equal(t, 1, run.Failed)
	require.NotNil(t, run.FinishedAt)

	jobs, err := st.GetRunJobs(summary.RunID)
	require.NoError(t, err)
	require.Len(t, jobs, 2) // the disabled job never executes
	assert.Equal(t, "ventas", jobs[0].Service)
	assert.Equal(t, model.JobStatusOK, jobs[0].Status)
	assert.Equal(t, "cobranza", jobs[1].Service)
	assert.Equal(t, model.JobStatusFailed, jobs[1].Status)

	failures, err := st.GetRunErrors(summary.RunID)
	require.NoError(t, err)
	require.Len(t, failures, 1)
	assert.Equal(t, "cobranza", failures[0].Service)
	assert.Contains(t, failures[0].Error, "falta.csv")

	wantArtifact := filepath.Join(cfg.LogDir, "traceback_cobranza_mensual.txt")
	assert.Equal(t, wantArtifact, failures[0].Artifact)
	raw, err := os.ReadFile(wantArtifact)
	require.NoError(t, err)
	assert.Contains(t, string(raw), "report: cobranza - mensual")
	assert.Contains(t, string(raw), "falta.csv")
}

func TestRun_MiddleJobFailureLeavesOtherDownloadsIntact(t *testing.T) {
	cfg, root := testConfig(t)
	downloads := filepath.Join(root, "downloads")
	src := writeSource(t, root, "origen.csv", "\"ID\"\n\"1\"\n")

	writeDescriptor(t, cfg, "lote.yaml",
		localJob("ventas", "diario", src, downloads)+
			localJob("cobranza", "mensual", filepath.Join(root, "falta.csv"), downloads)+
			localJob("tesoreria", "cierre", src, downloads))

	orc := New(Options{Config: cfg, Log: zerolog.Nop(), Sink: &fakeSink{}})

	summary, err := orc.Run(context.Background())

	require.NoError(t, err)
	assert.Equal(t, 2, summary.Processed)
	assert.Equal(t, 1, summary.Failed)
	assert.Equal(t, []string{"cobranza - mensual"}, summary.FailedJobs)

	for _, dir := range []string{
		filepath.Join(downloads, "ventas", "diario"),
		filepath.Join(downloads, "tesoreria", "cierre"),
	} {
		entries, err := os.ReadDir(dir)
		require.NoError(t, err)
		assert.Len(t, entries, 1, "expected one copied file in %s", dir)
	}
}

func TestRun_UploadAndSQLGoThroughSink(t *testing.T) {
	cfg, root := testConfig(t)
	downloads := filepath.Join(root, "downloads")
	src := writeSource(t, root, "origen.csv", "\"ID\",\"NOMBRE\"\n\"1\",\"ANA\"\n")

	writeDescriptor(t, cfg, "ventas.yaml", fmt.Sprintf(`- enabled: true
  servicio: ventas
  sub_servicio: diario
  downloader:
    name: localpath
    local_fullpath: %s
    root_download_dir: %s
    tz: UTC
  processor:
    name: csv
  upload:
    database: reportes
    table: ventas_diario
  sql_exec:
    database: reportes
    sql_file: refresh.sql
`, src, downloads))

	fs := &fakeSink{}
	orc := New(Options{Config: cfg, Log: zerolog.Nop(), Store: newTestStore(t), Sink: fs})

	summary, err := orc.Run(context.Background())

	require.NoError(t, err)
	assert.Equal(t, 1, summary.Processed)
	assert.Zero(t, summary.Failed)

	require.Len(t, fs.uploads, 1)
	assert.Equal(t, sink.Target{
		Database:    "reportes",
		Schema:      "dbo",
		Table:       "ventas_diario",
		IfExists:    "replace",
		VarcharSize: 2500,
	}, fs.uploads[0])

	require.Len(t, fs.execs, 1)
	assert.Equal(t, "reportes", fs.execs[0].Database)
	assert.Equal(t, []string{"refresh.sql"}, []string(fs.execs[0].Files))
}

func TestRun_NoProcessorSkipsUploadAndSQL(t *testing.T) {
	cfg, root := testConfig(t)
	downloads := filepath.Join(root, "downloads")
	src := writeSource(t, root, "origen.csv", "\"ID\"\n\"1\"\n")

	writeDescriptor(t, cfg, "ventas.yaml", fmt.Sprintf(`- enabled: true
  servicio: ventas
  sub_servicio: crudo
  downloader:
    name: localpath
    local_fullpath: %s
    root_download_dir: %s
    tz: UTC
  upload:
    database: reportes
    table: ventas_crudo
  sql_exec:
    database: reportes
    sql_query: DELETE FROM x
`, src, downloads))

	fs := &fakeSink{}
	orc := New(Options{Config: cfg, Log: zerolog.Nop(), Sink: fs})

	summary, err := orc.Run(context.Background())

	require.NoError(t, err)
	assert.Equal(t, 1, summary.Processed)
	assert.Empty(t, fs.uploads)
	assert.Empty(t, fs.execs)
}

func TestRun_PanicInOneJobDoesNotStopTheRun(t *testing.T) {
	cfg, root := testConfig(t)
	downloads := filepath.Join(root, "downloads")
	src := writeSource(t, root, "origen.csv", "\"ID\"\n\"1\"\n")

	writeDescriptor(t, cfg, "a_sube.yaml", fmt.Sprintf(`- enabled: true
  servicio: ventas
  sub_servicio: diario
  downloader:
    name: localpath
    local_fullpath: %s
    root_download_dir: %s
    tz: UTC
  processor:
    name: csv
  upload:
    database: reportes
    table: ventas_diario
`, src, downloads))
	writeDescriptor(t, cfg, "b_simple.yaml", localJob("cobranza", "mensual", src, downloads))

	st := newTestStore(t)
	orc := New(Options{Config: cfg, Log: zerolog.Nop(), Store: st, Sink: &panicSink{}})

	summary, err := orc.Run(context.Background())

	require.NoError(t, err)
	assert.Equal(t, 1, summary.Processed)
	assert.Equal(t, 1, summary.Failed)
	assert.Equal(t, []string{"ventas - diario"}, summary.FailedJobs)

	failures, err := st.GetRunErrors(summary.RunID)
	require.NoError(t, err)
	require.Len(t, failures, 1)
	assert.Contains(t, failures[0].Error, "panic: boom")
}

func TestRun_MalformedDescriptorAbortsBeforeAnyJob(t *testing.T) {
	cfg, root := testConfig(t)
	downloads := filepath.Join(root, "downloads")
	src := writeSource(t, root, "origen.csv", "\"ID\"\n\"1\"\n")

	writeDescriptor(t, cfg, "aaa_roto.yaml", "{{{")
	writeDescriptor(t, cfg, "zzz_bueno.yaml", localJob("ventas", "diario", src, downloads))

	st := newTestStore(t)
	orc := New(Options{Config: cfg, Log: zerolog.Nop(), Store: st, Sink: &fakeSink{}})

	_, err := orc.Run(context.Background())

	require.Error(t, err)
	var cfgErr *model.ConfigError
	assert.True(t, errors.As(err, &cfgErr))

	runs, err := st.ListRuns()
	require.NoError(t, err)
	assert.Empty(t, runs)
	assert.NoDirExists(t, downloads)
}

func TestRun_ConsumesOneShotTagEvenAfterFailure(t *testing.T) {
	cfg, root := testConfig(t)
	downloads := filepath.Join(root, "downloads")

	writeDescriptor(t, cfg, "[P]urgente.yaml", localJob("ventas", "diario", filepath.Join(root, "falta.csv"), downloads))

	st := newTestStore(t)
	orc := New(Options{Config: cfg, Log: zerolog.Nop(), Store: st, Sink: &fakeSink{}})

	summary, err := orc.Run(context.Background())

	require.NoError(t, err)
	assert.Equal(t, 1, summary.Failed)
	assert.FileExists(t, filepath.Join(cfg.ConfigDir, "urgente.yaml"))
	assert.NoFileExists(t, filepath.Join(cfg.ConfigDir, "[P]urgente.yaml"))

	events, err := st.ListTagEvents(summary.RunID)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, "[P]urgente.yaml", events[0].OldName)
	assert.Equal(t, "urgente.yaml", events[0].NewName)
}

func TestRun_SingleFlight(t *testing.T) {
	cfg, _ := testConfig(t)
	orc := New(Options{Config: cfg, Log: zerolog.Nop(), Sink: &fakeSink{}})
	orc.active.Store(true)

	_, err := orc.Run(context.Background())
	assert.ErrorIs(t, err, ErrRunActive)

	id, err := orc.RunAsync()
	assert.ErrorIs(t, err, ErrRunActive)
	assert.Empty(t, id)
}

func TestRunAsync_CompletesInBackground(t *testing.T) {
	cfg, root := testConfig(t)
	downloads := filepath.Join(root, "downloads")
	src := writeSource(t, root, "origen.csv", "\"ID\"\n\"1\"\n")
	writeDescriptor(t, cfg, "ventas.yaml", localJob("ventas", "diario", src, downloads))

	st := newTestStore(t)
	orc := New(Options{Config: cfg, Log: zerolog.Nop(), Store: st, Sink: &fakeSink{}})

	runID, err := orc.RunAsync()
	require.NoError(t, err)
	require.NotEmpty(t, runID)

	assert.Eventually(t, func() bool {
		run, err := st.GetRun(runID)
		return err == nil && run.Status == model.RunStatusCompleted
	}, 5*time.Second, 20*time.Millisecond)
}

func TestWriteTraceback(t *testing.T) {
	dir := t.TempDir()
	cause := errors.New("connection refused")
	jobErr := fmt.Errorf("uploading to db: %w", cause)

	path, err := WriteTraceback(dir, "ventas", "diario", jobErr)

	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "traceback_ventas_diario.txt"), path)

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	content := string(raw)
	assert.Contains(t, content, "report: ventas - diario")
	assert.Contains(t, content, "- uploading to db: connection refused")
	assert.Contains(t, content, "  - connection refused")
}
