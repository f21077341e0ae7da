package engine

import (
	"context"
	"log/slog"
	"time"

	"picturas-orchestrator/core/models"
	"picturas-orchestrator/core/monitoring"
	"picturas-orchestrator/core/routing"
)

// Ledger is the durable store of in-flight process records. Exactly one
// non-terminal record exists per (image, kind); creating the record before
// publishing its invocation and deleting it when the completion is consumed
// is the engine's only concurrency-control mechanism.
type Ledger interface {
	Create(ctx context.Context, rec *models.ProcessRecord) error
	GetByCorrelationID(ctx context.Context, correlationID string) (*models.ProcessRecord, error)
	GetActiveByImage(ctx context.Context, projectID, imageID string, kind models.Kind) (*models.ProcessRecord, error)
	ListByProject(ctx context.Context, projectID string) ([]*models.ProcessRecord, error)
	CountActive(ctx context.Context, projectID string, kind models.Kind) (int, error)
	MarkCancelled(ctx context.Context, correlationID string, at time.Time) error
	Delete(ctx context.Context, id string) error
}

// ProjectSource reads pipeline specs and image metadata. GetTools is queried
// fresh on every advance so mid-run chain edits reach un-dispatched steps.
type ProjectSource interface {
	GetTools(ctx context.Context, projectID string) ([]models.Tool, error)
	ListImages(ctx context.Context, projectID string) ([]*models.Image, error)
	GetImage(ctx context.Context, projectID, imageID string) (*models.Image, error)
}

// ArtifactStore persists finalized results and preview outputs
type ArtifactStore interface {
	Save(ctx context.Context, artifact *models.Artifact) (string, error)
	List(ctx context.Context, projectID string, artifactType models.ArtifactType) ([]*models.Artifact, error)
	DeleteByProject(ctx context.Context, projectID string, artifactType models.ArtifactType) error
}

// EventLog records pipeline transitions for auditing. Failures here are
// logged and swallowed; the audit trail never blocks a pipeline.
type EventLog interface {
	Record(ctx context.Context, event *models.ProcessEvent) error
}

// Objects is the slice of object storage the engine touches: presigning
// client-facing URLs and purging stale outputs
type Objects interface {
	PresignGet(ctx context.Context, key string) (string, error)
	Delete(ctx context.Context, key string) error
}

// Publisher is the outbound half of the message transport
type Publisher interface {
	Publish(ctx context.Context, routingKey string, body []byte) error
}

// Engine is the pipeline execution core: it starts runs, dispatches steps,
// consumes completions and advances or finalizes each image's chain.
type Engine struct {
	ledger    Ledger
	projects  ProjectSource
	artifacts ArtifactStore
	events    EventLog
	objects   Objects
	routes    *routing.Registry
	publisher Publisher
	notifier  *Notifier
	metrics   *monitoring.Metrics
	logger    *slog.Logger
}

// New creates an engine
func New(
	ledger Ledger,
	projects ProjectSource,
	artifacts ArtifactStore,
	events EventLog,
	objects Objects,
	routes *routing.Registry,
	publisher Publisher,
	metrics *monitoring.Metrics,
	logger *slog.Logger,
) *Engine {
	return &Engine{
		ledger:    ledger,
		projects:  projects,
		artifacts: artifacts,
		events:    events,
		objects:   objects,
		routes:    routes,
		publisher: publisher,
		notifier:  NewNotifier(publisher, logger),
		metrics:   metrics,
		logger:    logger,
	}
}

// recordEvent appends to the audit trail, best-effort
func (e *Engine) recordEvent(ctx context.Context, rec *models.ProcessRecord, transition, detail string) {
	err := e.events.Record(ctx, &models.ProcessEvent{
		ProjectID:     rec.ProjectID,
		ImageID:       rec.ImageID,
		CorrelationID: rec.CorrelationID,
		Transition:    transition,
		Detail:        detail,
	})
	if err != nil {
		e.logger.Warn("event record failed", "correlation_id", rec.CorrelationID, "error", err)
	}
}
