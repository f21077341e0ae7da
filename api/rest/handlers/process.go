package handlers

import (
	"errors"
	"net/http"

	"picturas-orchestrator/core/engine"
	"picturas-orchestrator/core/models"
	"picturas-orchestrator/core/repository"
	"picturas-orchestrator/storage"

	"github.com/gorilla/mux"
)

// ProcessHandler handles pipeline execution HTTP requests
type ProcessHandler struct {
	engine    *engine.Engine
	artifacts *repository.ArtifactRepository
	events    *repository.EventRepository
	objects   *storage.ObjectStore
}

// NewProcessHandler creates a new process handler
func NewProcessHandler(
	eng *engine.Engine,
	artifacts *repository.ArtifactRepository,
	events *repository.EventRepository,
	objects *storage.ObjectStore,
) *ProcessHandler {
	return &ProcessHandler{
		engine:    eng,
		artifacts: artifacts,
		events:    events,
		objects:   objects,
	}
}

// StartProcess handles POST /v1/projects/{user}/{project}/process
func (h *ProcessHandler) StartProcess(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)

	correlations, err := h.engine.StartPipeline(r.Context(), vars["user"], vars["project"])
	if errors.Is(err, models.ErrEmptyPipeline) {
		http.Error(w, "No tools selected", http.StatusBadRequest)
		return
	}
	if err != nil && len(correlations) == 0 {
		http.Error(w, "Failed to start processing: "+err.Error(), http.StatusInternalServerError)
		return
	}
	if err != nil {
		// Some images started, some did not; report what is running.
		writeJSON(w, http.StatusMultiStatus, map[string]interface{}{
			"correlations": correlations,
			"error":        err.Error(),
		})
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]interface{}{"correlations": correlations})
}

// StartPreview handles POST /v1/projects/{user}/{project}/preview/{img}
func (h *ProcessHandler) StartPreview(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)

	correlationID, err := h.engine.StartPreview(r.Context(), vars["user"], vars["project"], vars["img"])
	if errors.Is(err, models.ErrEmptyPipeline) {
		http.Error(w, "No tools selected", http.StatusBadRequest)
		return
	}
	if errors.Is(err, models.ErrNotFound) {
		http.Error(w, "No image with such id", http.StatusNotFound)
		return
	}
	if err != nil {
		http.Error(w, "Failed to start preview: "+err.Error(), http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]string{"correlationId": correlationID})
}

// CancelImage handles POST /v1/projects/{user}/{project}/cancel/{img}
func (h *ProcessHandler) CancelImage(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)

	outcome, err := h.engine.CancelImage(r.Context(), vars["project"], vars["img"])
	if err != nil {
		http.Error(w, "Failed to cancel: "+err.Error(), http.StatusInternalServerError)
		return
	}

	switch outcome {
	case engine.CancelNotFound:
		http.Error(w, "No processing in flight for this image", http.StatusNotFound)
	case engine.CancelAlreadyTerminal:
		http.Error(w, "Processing already finished", http.StatusConflict)
	default:
		writeJSON(w, http.StatusAccepted, map[string]string{"status": string(outcome)})
	}
}

// ResultsResponse splits finalized outputs by kind, mirroring how clients
// render them
type ResultsResponse struct {
	Imgs  []ResultEntry `json:"imgs"`
	Texts []ResultEntry `json:"texts"`
}

// ResultEntry is one finalized output with a time-limited URL
type ResultEntry struct {
	ImageID string `json:"og_img_id"`
	Name    string `json:"name"`
	URL     string `json:"url"`
}

// ListResults handles GET /v1/projects/{user}/{project}/process/url
func (h *ProcessHandler) ListResults(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	ctx := r.Context()

	results, err := h.artifacts.List(ctx, vars["project"], models.ArtifactResult)
	if err != nil {
		http.Error(w, "Failed to list results: "+err.Error(), http.StatusInternalServerError)
		return
	}

	resp := ResultsResponse{Imgs: []ResultEntry{}, Texts: []ResultEntry{}}
	for _, res := range results {
		url, err := h.objects.PresignGet(ctx, res.ObjectKey)
		if err != nil {
			http.Error(w, "Failed to sign result URL", http.StatusInternalServerError)
			return
		}
		entry := ResultEntry{ImageID: res.ImageID, Name: res.FileName, URL: url}
		if res.OutputType == models.OutputTypeText {
			resp.Texts = append(resp.Texts, entry)
		} else {
			resp.Imgs = append(resp.Imgs, entry)
		}
	}

	writeJSON(w, http.StatusOK, resp)
}

// StatusEntry is one in-flight process record
type StatusEntry struct {
	ImageID       string `json:"imageId"`
	CorrelationID string `json:"correlationId"`
	Kind          string `json:"kind"`
	Position      int    `json:"position"`
	Status        string `json:"status"`
	StartedAt     string `json:"startedAt"`
}

// Status handles GET /v1/projects/{user}/{project}/process/status
func (h *ProcessHandler) Status(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)

	records, err := h.engine.ListActive(r.Context(), vars["project"])
	if err != nil {
		http.Error(w, "Failed to list active processes: "+err.Error(), http.StatusInternalServerError)
		return
	}

	resp := make([]StatusEntry, 0, len(records))
	for _, rec := range records {
		resp = append(resp, StatusEntry{
			ImageID:       rec.ImageID,
			CorrelationID: rec.CorrelationID,
			Kind:          string(rec.Kind),
			Position:      rec.CurrentPosition,
			Status:        string(rec.Status),
			StartedAt:     timeString(rec.StartedAt),
		})
	}
	writeJSON(w, http.StatusOK, resp)
}

// Events handles GET /v1/projects/{user}/{project}/process/events
func (h *ProcessHandler) Events(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)

	events, err := h.events.ListByProject(r.Context(), vars["project"], 100)
	if err != nil {
		http.Error(w, "Failed to list events: "+err.Error(), http.StatusInternalServerError)
		return
	}

	type eventEntry struct {
		ImageID       string `json:"imageId"`
		CorrelationID string `json:"correlationId"`
		Transition    string `json:"transition"`
		Detail        string `json:"detail,omitempty"`
		At            string `json:"at"`
	}
	resp := make([]eventEntry, 0, len(events))
	for _, event := range events {
		resp = append(resp, eventEntry{
			ImageID:       event.ImageID,
			CorrelationID: event.CorrelationID,
			Transition:    event.Transition,
			Detail:        event.Detail,
			At:            timeString(event.CreatedAt),
		})
	}
	writeJSON(w, http.StatusOK, resp)
}
