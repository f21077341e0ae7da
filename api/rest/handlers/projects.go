package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"picturas-orchestrator/core/models"
	"picturas-orchestrator/core/repository"
	"picturas-orchestrator/core/routing"
	"picturas-orchestrator/storage"

	"github.com/gorilla/mux"
)

// ProjectHandler handles project, image and tool-chain HTTP requests
type ProjectHandler struct {
	projects  *repository.ProjectRepository
	artifacts *repository.ArtifactRepository
	objects   *storage.ObjectStore
	routes    *routing.Registry
}

// NewProjectHandler creates a new project handler
func NewProjectHandler(
	projects *repository.ProjectRepository,
	artifacts *repository.ArtifactRepository,
	objects *storage.ObjectStore,
	routes *routing.Registry,
) *ProjectHandler {
	return &ProjectHandler{
		projects:  projects,
		artifacts: artifacts,
		objects:   objects,
		routes:    routes,
	}
}

// CreateProjectRequest is the body of POST /v1/projects/{user}
type CreateProjectRequest struct {
	Name string `json:"name"`
}

// CreateProject handles POST /v1/projects/{user}
func (h *ProjectHandler) CreateProject(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)

	var req CreateProjectRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if req.Name == "" {
		http.Error(w, "Project name is required", http.StatusBadRequest)
		return
	}

	project := &models.Project{UserID: vars["user"], Name: req.Name}
	if err := h.projects.CreateProject(r.Context(), project); err != nil {
		http.Error(w, "Failed to create project: "+err.Error(), http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusCreated, map[string]string{
		"id":   project.ID,
		"name": project.Name,
	})
}

// ListProjects handles GET /v1/projects/{user}
func (h *ProjectHandler) ListProjects(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)

	projects, err := h.projects.ListProjects(r.Context(), vars["user"])
	if err != nil {
		http.Error(w, "Failed to list projects: "+err.Error(), http.StatusInternalServerError)
		return
	}

	type entry struct {
		ID   string `json:"id"`
		Name string `json:"name"`
	}
	resp := make([]entry, 0, len(projects))
	for _, p := range projects {
		resp = append(resp, entry{ID: p.ID, Name: p.Name})
	}
	writeJSON(w, http.StatusOK, resp)
}

// ProjectResponse is the body of GET /v1/projects/{user}/{project}
type ProjectResponse struct {
	ID    string          `json:"id"`
	Name  string          `json:"name"`
	Tools []ToolResponse  `json:"tools"`
	Imgs  []ImageResponse `json:"imgs"`
}

// ToolResponse is one pipeline step in a project response
type ToolResponse struct {
	ID        string                 `json:"id"`
	Position  int                    `json:"position"`
	Procedure string                 `json:"procedure"`
	Params    map[string]interface{} `json:"params"`
}

// ImageResponse is one image in a project response
type ImageResponse struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	URL  string `json:"url"`
}

// GetProject handles GET /v1/projects/{user}/{project}
func (h *ProjectHandler) GetProject(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)

	project, err := h.projects.GetProject(r.Context(), vars["user"], vars["project"])
	if errors.Is(err, models.ErrNotFound) {
		http.Error(w, "Project not found", http.StatusNotFound)
		return
	}
	if err != nil {
		http.Error(w, "Failed to fetch project: "+err.Error(), http.StatusInternalServerError)
		return
	}

	tools, err := h.projects.GetTools(r.Context(), project.ID)
	if err != nil {
		http.Error(w, "Failed to fetch tools: "+err.Error(), http.StatusInternalServerError)
		return
	}
	images, err := h.projects.ListImages(r.Context(), project.ID)
	if err != nil {
		http.Error(w, "Failed to fetch images: "+err.Error(), http.StatusInternalServerError)
		return
	}

	resp := ProjectResponse{
		ID:    project.ID,
		Name:  project.Name,
		Tools: make([]ToolResponse, 0, len(tools)),
		Imgs:  make([]ImageResponse, 0, len(images)),
	}
	for _, t := range tools {
		resp.Tools = append(resp.Tools, ToolResponse{
			ID: t.ID, Position: t.Position, Procedure: t.Procedure, Params: t.Params,
		})
	}
	for _, img := range images {
		url, err := h.objects.PresignGet(r.Context(), img.ObjectKey)
		if err != nil {
			http.Error(w, "Failed to sign image URL", http.StatusInternalServerError)
			return
		}
		resp.Imgs = append(resp.Imgs, ImageResponse{ID: img.ID, Name: img.Name, URL: url})
	}

	writeJSON(w, http.StatusOK, resp)
}

// RenameProject handles PUT /v1/projects/{user}/{project}
func (h *ProjectHandler) RenameProject(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)

	var req CreateProjectRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Name == "" {
		http.Error(w, "Project name is required", http.StatusBadRequest)
		return
	}

	err := h.projects.RenameProject(r.Context(), vars["user"], vars["project"], req.Name)
	if errors.Is(err, models.ErrNotFound) {
		http.Error(w, "Project not found", http.StatusNotFound)
		return
	}
	if err != nil {
		http.Error(w, "Failed to rename project: "+err.Error(), http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// DeleteProject handles DELETE /v1/projects/{user}/{project}. Object-storage
// copies of images, results and previews are removed as well.
func (h *ProjectHandler) DeleteProject(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	ctx := r.Context()

	project, err := h.projects.GetProject(ctx, vars["user"], vars["project"])
	if errors.Is(err, models.ErrNotFound) {
		http.Error(w, "Project not found", http.StatusNotFound)
		return
	}
	if err != nil {
		http.Error(w, "Failed to fetch project: "+err.Error(), http.StatusInternalServerError)
		return
	}

	images, err := h.projects.ListImages(ctx, project.ID)
	if err != nil {
		http.Error(w, "Failed to list images: "+err.Error(), http.StatusInternalServerError)
		return
	}
	for _, img := range images {
		h.objects.Delete(ctx, img.ObjectKey)
	}
	for _, artifactType := range []models.ArtifactType{models.ArtifactResult, models.ArtifactPreview} {
		artifacts, err := h.artifacts.List(ctx, project.ID, artifactType)
		if err != nil {
			http.Error(w, "Failed to list artifacts: "+err.Error(), http.StatusInternalServerError)
			return
		}
		for _, a := range artifacts {
			h.objects.Delete(ctx, a.ObjectKey)
		}
		if err := h.artifacts.DeleteByProject(ctx, project.ID, artifactType); err != nil {
			http.Error(w, "Failed to delete artifacts: "+err.Error(), http.StatusInternalServerError)
			return
		}
	}

	if err := h.projects.DeleteProject(ctx, vars["user"], vars["project"]); err != nil {
		http.Error(w, "Failed to delete project: "+err.Error(), http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// UploadImage handles POST /v1/projects/{user}/{project}/img (multipart,
// field "image")
func (h *ProjectHandler) UploadImage(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	ctx := r.Context()
	userID, projectID := vars["user"], vars["project"]

	if _, err := h.projects.GetProject(ctx, userID, projectID); err != nil {
		http.Error(w, "Project not found", http.StatusNotFound)
		return
	}

	file, header, err := r.FormFile("image")
	if err != nil {
		http.Error(w, "No file found", http.StatusBadRequest)
		return
	}
	defer file.Close()

	existing, err := h.projects.ListImages(ctx, projectID)
	if err != nil {
		http.Error(w, "Failed to list images: "+err.Error(), http.StatusInternalServerError)
		return
	}
	for _, img := range existing {
		if img.Name == header.Filename {
			http.Error(w, "This project already has an image with that name", http.StatusBadRequest)
			return
		}
	}

	key := storage.Key(userID, projectID, storage.SpaceSource, header.Filename)
	contentType := header.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	if err := h.objects.Put(ctx, key, file, contentType); err != nil {
		http.Error(w, "Failed to store image: "+err.Error(), http.StatusInternalServerError)
		return
	}

	img := &models.Image{
		ProjectID: projectID,
		Name:      header.Filename,
		SourceURI: fmt.Sprintf("./images/users/%s/projects/%s/src/%s", userID, projectID, header.Filename),
		OutputURI: fmt.Sprintf("./images/users/%s/projects/%s/out/%s", userID, projectID, header.Filename),
		ObjectKey: key,
	}
	if err := h.projects.AddImage(ctx, img); err != nil {
		http.Error(w, "Failed to register image: "+err.Error(), http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusCreated, map[string]string{"id": img.ID, "name": img.Name})
}

// DeleteImage handles DELETE /v1/projects/{user}/{project}/img/{img}
func (h *ProjectHandler) DeleteImage(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	ctx := r.Context()
	projectID, imageID := vars["project"], vars["img"]

	img, err := h.projects.GetImage(ctx, projectID, imageID)
	if errors.Is(err, models.ErrNotFound) {
		http.Error(w, "No image with such id", http.StatusNotFound)
		return
	}
	if err != nil {
		http.Error(w, "Failed to fetch image: "+err.Error(), http.StatusInternalServerError)
		return
	}

	h.objects.Delete(ctx, img.ObjectKey)

	// The image's finalized outputs go with it.
	for _, artifactType := range []models.ArtifactType{models.ArtifactResult, models.ArtifactPreview} {
		artifacts, err := h.artifacts.ListByImage(ctx, projectID, imageID, artifactType)
		if err != nil {
			continue
		}
		for _, a := range artifacts {
			h.objects.Delete(ctx, a.ObjectKey)
			h.artifacts.Delete(ctx, a.ID)
		}
	}

	if err := h.projects.DeleteImage(ctx, projectID, imageID); err != nil {
		http.Error(w, "Failed to delete image: "+err.Error(), http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ToolRequest is the body for adding or reordering tools
type ToolRequest struct {
	Procedure string                 `json:"procedure"`
	Params    map[string]interface{} `json:"params"`
}

// AddTool handles POST /v1/projects/{user}/{project}/tool
func (h *ProjectHandler) AddTool(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)

	var req ToolRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if req.Procedure == "" || req.Params == nil {
		http.Error(w, "A tool should have a procedure and corresponding parameters", http.StatusBadRequest)
		return
	}
	if _, err := h.routes.QueueFor(req.Procedure); err != nil {
		http.Error(w, "Unknown procedure: "+req.Procedure, http.StatusBadRequest)
		return
	}

	tool := &models.Tool{
		ProjectID: vars["project"],
		Procedure: req.Procedure,
		Params:    req.Params,
	}
	if err := h.projects.AddTool(r.Context(), tool); err != nil {
		http.Error(w, "Failed to add tool: "+err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]interface{}{"id": tool.ID, "position": tool.Position})
}

// UpdateTool handles PUT /v1/projects/{user}/{project}/tool/{tool}. Position
// and procedure are preserved; only params change.
func (h *ProjectHandler) UpdateTool(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)

	var req struct {
		Params map[string]interface{} `json:"params"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Params == nil {
		http.Error(w, "Tool params are required", http.StatusBadRequest)
		return
	}

	err := h.projects.UpdateToolParams(r.Context(), vars["project"], vars["tool"], req.Params)
	if errors.Is(err, models.ErrNotFound) {
		http.Error(w, "No such tool", http.StatusNotFound)
		return
	}
	if err != nil {
		http.Error(w, "Failed to update tool: "+err.Error(), http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// DeleteTool handles DELETE /v1/projects/{user}/{project}/tool/{tool}
func (h *ProjectHandler) DeleteTool(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)

	err := h.projects.DeleteTool(r.Context(), vars["project"], vars["tool"])
	if errors.Is(err, models.ErrNotFound) {
		http.Error(w, "No such tool", http.StatusNotFound)
		return
	}
	if err != nil {
		http.Error(w, "Failed to delete tool: "+err.Error(), http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ReorderTools handles POST /v1/projects/{user}/{project}/reorder. The chain
// is rewritten with positions assigned from request order.
func (h *ProjectHandler) ReorderTools(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)

	var req []ToolRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	tools := make([]models.Tool, 0, len(req))
	for _, t := range req {
		if t.Procedure == "" {
			http.Error(w, "A tool should have a procedure", http.StatusBadRequest)
			return
		}
		if _, err := h.routes.QueueFor(t.Procedure); err != nil {
			http.Error(w, "Unknown procedure: "+t.Procedure, http.StatusBadRequest)
			return
		}
		params := t.Params
		if params == nil {
			params = map[string]interface{}{}
		}
		tools = append(tools, models.Tool{Procedure: t.Procedure, Params: params})
	}

	if err := h.projects.ReorderTools(r.Context(), vars["project"], tools); err != nil {
		http.Error(w, "Failed to reorder tools: "+err.Error(), http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// timeString formats timestamps in API responses
func timeString(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}
