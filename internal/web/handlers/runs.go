package handlers

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"path/filepath"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/kozaktomas/face-folio/internal/facematch"
	"github.com/kozaktomas/face-folio/internal/sorter"
)

// RunsHandler handles the run endpoints: reference sorts and auto-discovery.
type RunsHandler struct {
	sorter *sorter.Sorter
	runs   *RunManager
	logger *slog.Logger
}

// NewRunsHandler creates a new runs handler
func NewRunsHandler(s *sorter.Sorter, rm *RunManager, logger *slog.Logger) *RunsHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &RunsHandler{
		sorter: s,
		runs:   rm,
		logger: logger,
	}
}

// PortraitResponse describes one discovered portrait.
type PortraitResponse struct {
	Index    int    `json:"index"`
	Name     string `json:"name"`
	ImageURL string `json:"image_url"`
}

// TagRequest names a portrait.
type TagRequest struct {
	Name      string `json:"name"`
	Overwrite bool   `json:"overwrite"`
}

// StartSort starts a reference sort run
func (h *RunsHandler) StartSort(w http.ResponseWriter, r *http.Request) {
	var req RunRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondError(w, http.StatusBadRequest, errInvalidRequestBody)
		return
	}
	if req.Reference == "" || req.Event == "" || req.Output == "" {
		respondError(w, http.StatusBadRequest, "reference, event and output are required")
		return
	}

	job, ok := h.createRun(w, RunKindSort, req)
	if !ok {
		return
	}
	go h.runSort(job)

	respondJSON(w, http.StatusAccepted, job.Snapshot())
}

// StartDiscover starts the discovery phase of an auto-discovery run
func (h *RunsHandler) StartDiscover(w http.ResponseWriter, r *http.Request) {
	var req RunRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondError(w, http.StatusBadRequest, errInvalidRequestBody)
		return
	}
	if req.Event == "" || req.Output == "" {
		respondError(w, http.StatusBadRequest, "event and output are required")
		return
	}
	req.Reference = ""

	job, ok := h.createRun(w, RunKindDiscover, req)
	if !ok {
		return
	}
	go h.runDiscover(job)

	respondJSON(w, http.StatusAccepted, job.Snapshot())
}

func (h *RunsHandler) createRun(w http.ResponseWriter, kind RunKind, req RunRequest) (*RunJob, bool) {
	if h.sorter.Running() {
		respondError(w, http.StatusConflict, errRunActive.Error())
		return nil, false
	}
	job, err := h.runs.CreateRun(uuid.New().String(), kind, req)
	if err != nil {
		respondError(w, http.StatusConflict, err.Error())
		return nil, false
	}
	h.logger.Info("run created", "run", job.ID(), "kind", kind,
		"event", sanitizeForLog(req.Event), "output", sanitizeForLog(req.Output))
	return job, true
}

// Status returns the state of a run
func (h *RunsHandler) Status(w http.ResponseWriter, r *http.Request) {
	job := h.lookup(w, r)
	if job == nil {
		return
	}
	respondJSON(w, http.StatusOK, job.Snapshot())
}

// List returns all runs
func (h *RunsHandler) List(w http.ResponseWriter, r *http.Request) {
	runs := h.runs.ListRuns()
	out := make([]RunStatus, 0, len(runs))
	for _, job := range runs {
		out = append(out, job.Snapshot())
	}
	respondJSON(w, http.StatusOK, out)
}

// Events streams run events via SSE
func (h *RunsHandler) Events(w http.ResponseWriter, r *http.Request) {
	streamSSEEvents(w, r,
		func(id string) SSEJob {
			job := h.runs.GetRun(id)
			if job == nil {
				return nil
			}
			return job
		},
		func(job SSEJob) any {
			return job.(*RunJob).Snapshot()
		},
	)
}

// Cancel cancels a run
func (h *RunsHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	job := h.lookup(w, r)
	if job == nil {
		return
	}
	job.Cancel()
	respondJSON(w, http.StatusOK, map[string]bool{"cancelled": true})
}

// Portraits lists the portraits found by a discovery run
func (h *RunsHandler) Portraits(w http.ResponseWriter, r *http.Request) {
	job := h.lookup(w, r)
	if job == nil {
		return
	}
	if job.Kind() != RunKindDiscover {
		respondError(w, http.StatusBadRequest, "run has no portraits")
		return
	}

	portraits := job.PortraitList()
	out := make([]PortraitResponse, 0, len(portraits))
	for _, p := range portraits {
		out = append(out, PortraitResponse{
			Index:    p.Index,
			Name:     portraitName(p),
			ImageURL: fmt.Sprintf("/api/v1/runs/%s/portraits/%d/image", job.ID(), p.Index),
		})
	}
	respondJSON(w, http.StatusOK, out)
}

// PortraitImage serves the JPEG of one portrait
func (h *RunsHandler) PortraitImage(w http.ResponseWriter, r *http.Request) {
	_, rec, ok := h.lookupPortrait(w, r)
	if !ok {
		return
	}
	w.Header().Set("Cache-Control", "no-store")
	http.ServeFile(w, r, rec.Path)
}

// TagPortrait names one portrait while the run awaits tags
func (h *RunsHandler) TagPortrait(w http.ResponseWriter, r *http.Request) {
	job, rec, ok := h.lookupPortrait(w, r)
	if !ok {
		return
	}
	if job.GetStatus() != JobStatusAwaitingTags {
		respondError(w, http.StatusConflict, errNotAwaitingTags.Error())
		return
	}

	var req TagRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondError(w, http.StatusBadRequest, errInvalidRequestBody)
		return
	}

	renamed, err := facematch.RenamePortrait(rec, req.Name, req.Overwrite)
	switch {
	case errors.Is(err, facematch.ErrEmptyName):
		respondError(w, http.StatusBadRequest, err.Error())
		return
	case errors.Is(err, facematch.ErrNameTaken):
		respondError(w, http.StatusConflict, err.Error())
		return
	case err != nil:
		h.logger.Error("tagging portrait failed", "run", job.ID(), "index", rec.Index, "error", err)
		respondError(w, http.StatusInternalServerError, "failed to tag portrait")
		return
	}
	for _, index := range job.replacePortrait(renamed) {
		h.logger.Info("portrait replaced", "run", job.ID(), "index", index, "by", renamed.Index)
	}
	job.SendEvent(JobEvent{Type: "tagged", Data: map[string]any{"index": renamed.Index, "name": portraitName(renamed)}})

	respondJSON(w, http.StatusOK, PortraitResponse{
		Index:    renamed.Index,
		Name:     portraitName(renamed),
		ImageURL: fmt.Sprintf("/api/v1/runs/%s/portraits/%d/image", job.ID(), renamed.Index),
	})
}

// Resume sorts the event photos using the tagged portraits
func (h *RunsHandler) Resume(w http.ResponseWriter, r *http.Request) {
	job := h.lookup(w, r)
	if job == nil {
		return
	}
	if h.sorter.Running() {
		respondError(w, http.StatusConflict, errRunActive.Error())
		return
	}
	if err := h.runs.Reactivate(job); err != nil {
		respondError(w, http.StatusConflict, err.Error())
		return
	}
	go h.runResume(job)

	respondJSON(w, http.StatusAccepted, job.Snapshot())
}

func (h *RunsHandler) lookup(w http.ResponseWriter, r *http.Request) *RunJob {
	runID := chi.URLParam(r, "runId")
	if runID == "" {
		respondError(w, http.StatusBadRequest, "missing run ID")
		return nil
	}
	job := h.runs.GetRun(runID)
	if job == nil {
		respondError(w, http.StatusNotFound, "run not found")
		return nil
	}
	return job
}

func (h *RunsHandler) lookupPortrait(w http.ResponseWriter, r *http.Request) (*RunJob, facematch.PortraitRecord, bool) {
	job := h.lookup(w, r)
	if job == nil {
		return nil, facematch.PortraitRecord{}, false
	}
	index, err := strconv.Atoi(chi.URLParam(r, "index"))
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid portrait index")
		return nil, facematch.PortraitRecord{}, false
	}
	rec, ok := job.Portrait(index)
	if !ok {
		respondError(w, http.StatusNotFound, "portrait not found")
		return nil, facematch.PortraitRecord{}, false
	}
	return job, rec, true
}

// start moves a run to running and returns its context.
func (h *RunsHandler) start(job *RunJob, message string) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	job.setCancel(cancel)
	job.update(func(s *RunStatus) {
		if s.Status == JobStatusCancelled {
			cancel()
			return
		}
		s.Status = JobStatusRunning
		s.Error = ""
		s.FailedStep = ""
	})
	job.SendEvent(JobEvent{Type: "started", Message: message})
	return ctx, cancel
}

// reporter forwards pipeline progress to the run state and its listeners.
func (h *RunsHandler) reporter(job *RunJob) func(string, float64) {
	return func(msg string, fraction float64) {
		percent := int(fraction * 100)
		job.update(func(s *RunStatus) {
			s.Progress = percent
			s.Message = msg
		})
		job.SendEvent(JobEvent{Type: "progress", Message: msg, Data: map[string]int{"progress": percent}})
	}
}

func (h *RunsHandler) runSort(job *RunJob) {
	ctx, cancel := h.start(job, "Sort started")
	defer cancel()

	req := job.Snapshot().Request
	result, err := h.sorter.ReferenceSort(ctx, sorter.SortRequest{
		Reference: req.Reference,
		Event:     req.Event,
		Output:    req.Output,
	}, h.reporter(job))
	if err != nil {
		h.failJob(job, err)
		return
	}
	h.completeJob(job, newRunResult(result))
}

func (h *RunsHandler) runDiscover(job *RunJob) {
	ctx, cancel := h.start(job, "Discovery started")
	defer cancel()

	req := job.Snapshot().Request
	result, err := h.sorter.Discover(ctx, sorter.DiscoverRequest{Event: req.Event, Output: req.Output}, h.reporter(job))
	if err != nil {
		h.failJob(job, err)
		return
	}
	job.setPortraits(result.Portraits)
	if result.State == sorter.StepCompleted {
		h.completeJob(job, &RunResult{Images: result.Images, Errors: imageErrors(result.Errors)})
		return
	}

	job.update(func(s *RunStatus) { s.Status = JobStatusAwaitingTags })
	job.SendEvent(JobEvent{Type: "awaiting_tags", Message: "Portraits are ready for tagging", Data: map[string]int{"portraits": len(result.Portraits)}})
	h.logger.Info("run awaiting tags", "run", job.ID(), "portraits", len(result.Portraits))
}

func (h *RunsHandler) runResume(job *RunJob) {
	ctx, cancel := h.start(job, "Sorting started")
	defer cancel()

	req := job.Snapshot().Request
	result, err := h.sorter.Resume(ctx, sorter.DiscoverRequest{Event: req.Event, Output: req.Output}, h.reporter(job))
	if err != nil {
		h.failJob(job, err)
		return
	}
	h.completeJob(job, newRunResult(result))
}

func (h *RunsHandler) completeJob(job *RunJob, result *RunResult) {
	now := time.Now()
	job.update(func(s *RunStatus) {
		s.Status = JobStatusCompleted
		s.Progress = 100
		s.Result = result
		s.CompletedAt = &now
	})
	job.SendEvent(JobEvent{Type: "completed", Data: result})
	h.logger.Info("run completed", "run", job.ID())
}

func (h *RunsHandler) failJob(job *RunJob, err error) {
	now := time.Now()
	if errors.Is(err, context.Canceled) {
		job.update(func(s *RunStatus) {
			s.Status = JobStatusCancelled
			s.CompletedAt = &now
		})
		h.logger.Info("run cancelled", "run", job.ID())
		return
	}

	var failure *sorter.Failure
	step := ""
	if errors.As(err, &failure) {
		step = string(failure.Step)
	}
	job.update(func(s *RunStatus) {
		s.Status = JobStatusFailed
		s.Error = err.Error()
		s.FailedStep = step
		s.CompletedAt = &now
	})
	job.SendEvent(JobEvent{Type: "job_error", Message: err.Error()})
	h.logger.Error("run failed", "run", job.ID(), "step", step, "error", err)
}

func newRunResult(result *sorter.SortResult) *RunResult {
	out := &RunResult{
		People:  result.People,
		Images:  result.Images,
		Matched: result.Matched,
		Errors:  imageErrors(result.Errors),
	}
	if route := result.Route; route != nil {
		out.Copied = route.Copied
		out.Skipped = route.Skipped
		out.Unmatched = route.Unmatched
		out.PerPerson = route.PerPerson
	}
	return out
}

func imageErrors(errs []facematch.ImageError) []string {
	if len(errs) == 0 {
		return nil
	}
	out := make([]string, 0, len(errs))
	for _, e := range errs {
		out = append(out, e.Error())
	}
	return out
}

func portraitName(rec facematch.PortraitRecord) string {
	base := filepath.Base(rec.Path)
	return base[:len(base)-len(filepath.Ext(base))]
}
