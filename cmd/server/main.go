package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"picturas-orchestrator/api/rest/routes"
	"picturas-orchestrator/config"
	"picturas-orchestrator/core/engine"
	"picturas-orchestrator/core/monitoring"
	"picturas-orchestrator/core/repository"
	"picturas-orchestrator/core/routing"
	"picturas-orchestrator/core/transport"
	"picturas-orchestrator/storage"

	"github.com/gorilla/mux"
	"github.com/lmittmann/tint"
	"github.com/mattn/go-isatty"
	"github.com/prometheus/client_golang/prometheus"
)

func main() {
	cfg := config.Load()

	logger := slog.New(tint.NewHandler(os.Stdout, &tint.Options{
		NoColor:    !isatty.IsTerminal(os.Stdout.Fd()),
		TimeFormat: time.Kitchen,
	}))

	// Initialize database
	db, err := repository.NewDB(cfg.DatabaseURL)
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer db.Close()
	if err := db.Migrate(); err != nil {
		logger.Error("failed to migrate schema", "error", err)
		os.Exit(1)
	}
	logger.Info("database connected")

	// Tool routing table
	toolRoutes, err := routing.Load(cfg.RoutesFile)
	if err != nil {
		logger.Error("failed to load tool routes", "file", cfg.RoutesFile, "error", err)
		os.Exit(1)
	}
	logger.Info("tool routes loaded", "procedures", toolRoutes.Procedures())

	// Object storage
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	objects, err := storage.New(ctx, storage.Config{
		Endpoint:  cfg.S3Endpoint,
		Region:    cfg.S3Region,
		Bucket:    cfg.S3Bucket,
		AccessKey: cfg.S3AccessKey,
		SecretKey: cfg.S3SecretKey,
		URLExpiry: cfg.URLExpiry,
	})
	if err != nil {
		logger.Error("failed to init object storage", "error", err)
		os.Exit(1)
	}

	// Message transport
	broker := transport.NewRabbit(cfg.AMQPURL, logger)
	defer broker.Close()

	// Engine
	metrics := monitoring.New(prometheus.DefaultRegisterer)
	processRepo := repository.NewProcessRepository(db)
	projectRepo := repository.NewProjectRepository(db)
	artifactRepo := repository.NewArtifactRepository(db)
	eventRepo := repository.NewEventRepository(db)
	eng := engine.New(processRepo, projectRepo, artifactRepo, eventRepo, objects, toolRoutes, broker, metrics, logger)

	// Completion consumer; redials on connection loss
	go func() {
		for {
			err := broker.Consume(ctx, cfg.ResultsQueue, eng.HandleCompletion)
			if ctx.Err() != nil {
				return
			}
			logger.Error("completion consumer stopped, restarting", "error", err)
			time.Sleep(2 * time.Second)
		}
	}()

	// Setup routes
	r := mux.NewRouter()
	routes.SetupRoutes(r, db, eng, objects, toolRoutes)

	// Health check endpoint
	r.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	}).Methods("GET")

	// Start server
	server := &http.Server{
		Addr:    ":" + cfg.ServerPort,
		Handler: r,
	}

	go func() {
		logger.Info("starting server", "port", cfg.ServerPort)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server failed", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down")
	cancel()
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("forced shutdown", "error", err)
	}
	logger.Info("server exited")
}
