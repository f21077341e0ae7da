package engine

import (
	"context"
	"errors"
	"fmt"

	"picturas-orchestrator/core/models"
)

// StartPipeline begins a full run of the project's tool chain over all of
// its images. Previous results are purged first. Returns the correlation id
// opened for each image; images that failed to start are reported in the
// joined error while the rest keep running.
func (e *Engine) StartPipeline(ctx context.Context, userID, projectID string) (map[string]string, error) {
	tools, err := e.projects.GetTools(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("fetch tools: %w", err)
	}
	if len(tools) == 0 {
		return nil, models.ErrEmptyPipeline
	}
	first := toolAt(tools, 0)
	if first == nil {
		return nil, fmt.Errorf("tool chain of project %s has no position 0", projectID)
	}

	if err := e.purgeArtifacts(ctx, projectID, models.ArtifactResult); err != nil {
		return nil, err
	}

	images, err := e.projects.ListImages(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("list images: %w", err)
	}
	if len(images) == 0 {
		return nil, fmt.Errorf("project %s has no images", projectID)
	}

	correlations := make(map[string]string, len(images))
	var startErrs []error
	for _, img := range images {
		cid, err := e.startImage(ctx, userID, projectID, img, first)
		if err != nil {
			startErrs = append(startErrs, fmt.Errorf("image %s: %w", img.ID, err))
			continue
		}
		correlations[img.ID] = cid
	}

	if len(correlations) > 0 {
		e.metrics.PipelinesStarted.WithLabelValues(string(models.KindRequest)).Inc()
	}
	return correlations, errors.Join(startErrs...)
}

// startImage opens the position-0 ledger record for one image and dispatches
// the first step. Create-then-dispatch, never the reverse.
func (e *Engine) startImage(ctx context.Context, userID, projectID string, img *models.Image, first *models.Tool) (string, error) {
	rec := &models.ProcessRecord{
		UserID:          userID,
		ProjectID:       projectID,
		ImageID:         img.ID,
		CorrelationID:   models.NewCorrelationID(models.KindRequest),
		Kind:            models.KindRequest,
		CurrentPosition: 0,
		InputURI:        img.SourceURI,
		OutputURI:       img.OutputURI,
	}
	if err := e.ledger.Create(ctx, rec); err != nil {
		return "", fmt.Errorf("ledger create: %w", err)
	}
	if err := e.dispatch(ctx, rec, first.Procedure, first.Params); err != nil {
		return "", err
	}
	return rec.CorrelationID, nil
}

// purgeArtifacts removes a project's stored artifacts of one type, both the
// database rows and the object-storage copies
func (e *Engine) purgeArtifacts(ctx context.Context, projectID string, artifactType models.ArtifactType) error {
	stale, err := e.artifacts.List(ctx, projectID, artifactType)
	if err != nil {
		return fmt.Errorf("list %s artifacts: %w", artifactType, err)
	}
	for _, artifact := range stale {
		if err := e.objects.Delete(ctx, artifact.ObjectKey); err != nil {
			e.logger.Warn("stale artifact object not deleted", "key", artifact.ObjectKey, "error", err)
		}
	}
	if err := e.artifacts.DeleteByProject(ctx, projectID, artifactType); err != nil {
		return fmt.Errorf("purge %s artifacts: %w", artifactType, err)
	}
	return nil
}

// ListActive returns a project's in-flight ledger records, the operational
// window onto what is still running (or stuck)
func (e *Engine) ListActive(ctx context.Context, projectID string) ([]*models.ProcessRecord, error) {
	return e.ledger.ListByProject(ctx, projectID)
}
