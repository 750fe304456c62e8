package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"go-report-etl/internal/frame"
	"go-report-etl/internal/model"
	"go-report-etl/internal/pipeline"
	"go-report-etl/internal/store"
)

// Trigger starts a background run. *pipeline.Orchestrator satisfies it.
type Trigger interface {
	RunAsync() (string, error)
}

// History reads recorded runs. *store.Store satisfies it.
type History interface {
	ListRuns() ([]store.Run, error)
	GetRun(id string) (*store.Run, error)
	GetRunJobs(runID string) ([]store.Job, error)
	GetRunErrors(runID string) ([]store.JobError, error)
	ListTagEvents(runID string) ([]store.TagEvent, error)
}

// RunHandler serves the run endpoints.
type RunHandler struct {
	Trigger Trigger
	History History
	Log     zerolog.Logger
}

// TriggerResponse acknowledges an accepted run.
type TriggerResponse struct {
	RunID  string `json:"run_id"`
	Status string `json:"status"`
}

// ErrorResponse is the JSON error body.
type ErrorResponse struct {
	Error string `json:"error"`
}

// StepsResponse lists the cleaning operations jobs may reference.
type StepsResponse struct {
	Steps []string `json:"steps"`
}

// TriggerRun starts a run in the background
// @Summary Trigger a run
// @Description Start a full pass over the configured reports. The run executes in the background; poll the run endpoints for progress. Only one run may be active at a time.
// @Tags runs
// @Produce json
// @Success 202 {object} handler.TriggerResponse
// @Failure 409 {object} handler.ErrorResponse "a run is already active"
// @Failure 500 {object} handler.ErrorResponse
// @Router /runs [post]
func (h *RunHandler) TriggerRun(w http.ResponseWriter, r *http.Request) {
	runID, err := h.Trigger.RunAsync()
	if err != nil {
		if errors.Is(err, pipeline.ErrRunActive) {
			writeError(w, http.StatusConflict, err)
			return
		}
		h.Log.Error().Err(err).Msg("triggering run failed")
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusAccepted, TriggerResponse{RunID: runID, Status: "accepted"})
}

// ListRuns returns every recorded run, newest first
// @Summary List runs
// @Tags runs
// @Produce json
// @Success 200 {array} store.Run
// @Failure 500 {object} handler.ErrorResponse
// @Router /runs [get]
func (h *RunHandler) ListRuns(w http.ResponseWriter, r *http.Request) {
	runs, err := h.History.ListRuns()
	if err != nil {
		h.fail(w, err)
		return
	}
	if runs == nil {
		runs = []store.Run{}
	}
	writeJSON(w, http.StatusOK, runs)
}

// GetRun returns one run with its counters
// @Summary Get run
// @Tags runs
// @Produce json
// @Param id path string true "Run ID"
// @Success 200 {object} store.Run
// @Failure 404 {object} handler.ErrorResponse
// @Failure 500 {object} handler.ErrorResponse
// @Router /runs/{id} [get]
func (h *RunHandler) GetRun(w http.ResponseWriter, r *http.Request) {
	run, err := h.History.GetRun(chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, run)
}

// GetRunJobs returns the reports executed by one run
// @Summary List run jobs
// @Tags runs
// @Produce json
// @Param id path string true "Run ID"
// @Success 200 {array} store.Job
// @Failure 404 {object} handler.ErrorResponse
// @Failure 500 {object} handler.ErrorResponse
// @Router /runs/{id}/jobs [get]
func (h *RunHandler) GetRunJobs(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if _, err := h.History.GetRun(id); err != nil {
		h.fail(w, err)
		return
	}
	jobs, err := h.History.GetRunJobs(id)
	if err != nil {
		h.fail(w, err)
		return
	}
	if jobs == nil {
		jobs = []store.Job{}
	}
	writeJSON(w, http.StatusOK, jobs)
}

// GetRunErrors returns the failed reports of one run
// @Summary List run errors
// @Tags runs
// @Produce json
// @Param id path string true "Run ID"
// @Success 200 {array} store.JobError
// @Failure 404 {object} handler.ErrorResponse
// @Failure 500 {object} handler.ErrorResponse
// @Router /runs/{id}/errors [get]
func (h *RunHandler) GetRunErrors(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if _, err := h.History.GetRun(id); err != nil {
		h.fail(w, err)
		return
	}
	failures, err := h.History.GetRunErrors(id)
	if err != nil {
		h.fail(w, err)
		return
	}
	if failures == nil {
		failures = []store.JobError{}
	}
	writeJSON(w, http.StatusOK, failures)
}

// ListRenames returns the priority-tag renames performed by one run
// @Summary List run renames
// @Tags runs
// @Produce json
// @Param id path string true "Run ID"
// @Success 200 {array} store.TagEvent
// @Failure 404 {object} handler.ErrorResponse
// @Failure 500 {object} handler.ErrorResponse
// @Router /runs/{id}/renames [get]
func (h *RunHandler) ListRenames(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if _, err := h.History.GetRun(id); err != nil {
		h.fail(w, err)
		return
	}
	events, err := h.History.ListTagEvents(id)
	if err != nil {
		h.fail(w, err)
		return
	}
	if events == nil {
		events = []store.TagEvent{}
	}
	writeJSON(w, http.StatusOK, events)
}

// ListCleaningSteps returns the cleaning operation names descriptors may use
// @Summary List cleaning steps
// @Tags catalog
// @Produce json
// @Success 200 {object} handler.StepsResponse
// @Router /cleaning-steps [get]
func ListCleaningSteps(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, StepsResponse{Steps: frame.StepNames()})
}

// fail maps storage errors to status codes.
func (h *RunHandler) fail(w http.ResponseWriter, err error) {
	var notFound *model.NotFoundError
	if errors.As(err, &notFound) {
		writeError(w, http.StatusNotFound, err)
		return
	}
	h.Log.Error().Err(err).Msg("run endpoint failed")
	writeError(w, http.StatusInternalServerError, err)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, ErrorResponse{Error: err.Error()})
}
