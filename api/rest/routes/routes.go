package routes

import (
	"picturas-orchestrator/api/rest/handlers"
	"picturas-orchestrator/core/engine"
	"picturas-orchestrator/core/repository"
	"picturas-orchestrator/core/routing"
	"picturas-orchestrator/storage"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// SetupRoutes configures all API routes
func SetupRoutes(
	r *mux.Router,
	db *repository.DB,
	eng *engine.Engine,
	objects *storage.ObjectStore,
	toolRoutes *routing.Registry,
) {
	projectRepo := repository.NewProjectRepository(db)
	artifactRepo := repository.NewArtifactRepository(db)
	eventRepo := repository.NewEventRepository(db)

	projectHandler := handlers.NewProjectHandler(projectRepo, artifactRepo, objects, toolRoutes)
	processHandler := handlers.NewProcessHandler(eng, artifactRepo, eventRepo, objects)

	api := r.PathPrefix("/v1").Subrouter()

	// Project endpoints
	api.HandleFunc("/projects/{user}", projectHandler.CreateProject).Methods("POST")
	api.HandleFunc("/projects/{user}", projectHandler.ListProjects).Methods("GET")
	api.HandleFunc("/projects/{user}/{project}", projectHandler.GetProject).Methods("GET")
	api.HandleFunc("/projects/{user}/{project}", projectHandler.RenameProject).Methods("PUT")
	api.HandleFunc("/projects/{user}/{project}", projectHandler.DeleteProject).Methods("DELETE")

	// Image endpoints
	api.HandleFunc("/projects/{user}/{project}/img", projectHandler.UploadImage).Methods("POST")
	api.HandleFunc("/projects/{user}/{project}/img/{img}", projectHandler.DeleteImage).Methods("DELETE")

	// Tool-chain endpoints
	api.HandleFunc("/projects/{user}/{project}/tool", projectHandler.AddTool).Methods("POST")
	api.HandleFunc("/projects/{user}/{project}/tool/{tool}", projectHandler.UpdateTool).Methods("PUT")
	api.HandleFunc("/projects/{user}/{project}/tool/{tool}", projectHandler.DeleteTool).Methods("DELETE")
	api.HandleFunc("/projects/{user}/{project}/reorder", projectHandler.ReorderTools).Methods("POST")

	// Pipeline execution endpoints
	api.HandleFunc("/projects/{user}/{project}/process", processHandler.StartProcess).Methods("POST")
	api.HandleFunc("/projects/{user}/{project}/process/url", processHandler.ListResults).Methods("GET")
	api.HandleFunc("/projects/{user}/{project}/process/status", processHandler.Status).Methods("GET")
	api.HandleFunc("/projects/{user}/{project}/process/events", processHandler.Events).Methods("GET")
	api.HandleFunc("/projects/{user}/{project}/preview/{img}", processHandler.StartPreview).Methods("POST")
	api.HandleFunc("/projects/{user}/{project}/cancel/{img}", processHandler.CancelImage).Methods("POST")

	r.Handle("/metrics", promhttp.Handler()).Methods("GET")
}
