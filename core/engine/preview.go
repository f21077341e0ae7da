package engine

import (
	"context"
	"fmt"

	"picturas-orchestrator/core/models"
)

// StartPreview begins a preview run of the full current tool chain for one
// image, always from position 0. A new preview supersedes the previous one:
// existing preview artifacts for the project are purged before anything is
// dispatched.
func (e *Engine) StartPreview(ctx context.Context, userID, projectID, imageID string) (string, error) {
	tools, err := e.projects.GetTools(ctx, projectID)
	if err != nil {
		return "", fmt.Errorf("fetch tools: %w", err)
	}
	if len(tools) == 0 {
		return "", models.ErrEmptyPipeline
	}
	first := toolAt(tools, 0)
	if first == nil {
		return "", fmt.Errorf("tool chain of project %s has no position 0", projectID)
	}

	if err := e.purgeArtifacts(ctx, projectID, models.ArtifactPreview); err != nil {
		return "", err
	}

	img, err := e.projects.GetImage(ctx, projectID, imageID)
	if err != nil {
		return "", fmt.Errorf("fetch image: %w", err)
	}

	rec := &models.ProcessRecord{
		UserID:          userID,
		ProjectID:       projectID,
		ImageID:         img.ID,
		CorrelationID:   models.NewCorrelationID(models.KindPreview),
		Kind:            models.KindPreview,
		CurrentPosition: 0,
		InputURI:        img.SourceURI,
		OutputURI:       previewURI(userID, projectID, img.Name),
	}
	if err := e.ledger.Create(ctx, rec); err != nil {
		return "", fmt.Errorf("ledger create: %w", err)
	}
	if err := e.dispatch(ctx, rec, first.Procedure, first.Params); err != nil {
		return "", err
	}

	e.metrics.PipelinesStarted.WithLabelValues(string(models.KindPreview)).Inc()
	return rec.CorrelationID, nil
}

// previewURI derives the preview destination for an image. Same layout the
// tool workers use for source and output spaces.
func previewURI(userID, projectID, imageName string) string {
	return fmt.Sprintf("./images/users/%s/projects/%s/preview/%s", userID, projectID, imageName)
}
