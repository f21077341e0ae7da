package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path"

	"picturas-orchestrator/core/models"
	"picturas-orchestrator/core/monitoring"
	"picturas-orchestrator/storage"
)

// Generic error surfaced to the user when completion handling itself fails
const (
	genericErrorCode = "30000"
	genericErrorMsg  = "An error happened while processing the project"
)

// HandleCompletion consumes one tool completion message. It never panics the
// consume loop: faults are converted into a best-effort error notification to
// the owning user and returned for logging only. Reprocessing a redelivered
// message is a no-op because the first delivery deletes the ledger record.
func (e *Engine) HandleCompletion(ctx context.Context, body []byte) error {
	var msg models.ToolCompletionMessage
	if err := json.Unmarshal(body, &msg); err != nil {
		e.logger.Warn("dropping malformed completion", "error", err)
		return nil
	}

	rec, err := e.ledger.GetByCorrelationID(ctx, msg.CorrelationID)
	if errors.Is(err, models.ErrNotFound) {
		// Stale or duplicate delivery; at-least-once makes these routine.
		e.metrics.StaleDeliveries.Inc()
		e.logger.Debug("dropping stale completion", "correlation_id", msg.CorrelationID)
		return nil
	}
	if err != nil {
		return fmt.Errorf("ledger lookup %s: %w", msg.CorrelationID, err)
	}

	// Close this correlation id. Every branch below either terminates the
	// image's chain or opens a new record with a new id.
	if err := e.ledger.Delete(ctx, rec.ID); err != nil {
		return e.fault(ctx, rec, fmt.Errorf("ledger delete: %w", err))
	}

	// Cancellation recorded in the ledger wins over the completion,
	// regardless of arrival order.
	if rec.Status == models.ProcessStatusCancelled {
		e.metrics.Completions.WithLabelValues(monitoring.OutcomeCancelled).Inc()
		e.recordEvent(ctx, rec, models.TransitionCancelled, "")
		if rec.Kind == models.KindPreview {
			e.notifier.PreviewCancelled(ctx, rec.UserID)
		} else {
			e.notifier.ProcessCancelled(ctx, rec.UserID)
		}
		return nil
	}

	if msg.Status == models.CompletionError {
		e.metrics.Completions.WithLabelValues(monitoring.OutcomeError).Inc()
		code, errMsg := genericErrorCode, genericErrorMsg
		if msg.Error != nil {
			code, errMsg = msg.Error.Code, msg.Error.Msg
		}
		e.recordEvent(ctx, rec, models.TransitionErrored, code)
		if rec.Kind == models.KindPreview {
			e.notifier.PreviewError(ctx, rec.UserID, code, errMsg)
		} else {
			e.notifier.ProcessError(ctx, rec.UserID, code, errMsg)
		}
		return nil
	}

	return e.advance(ctx, rec, &msg)
}

// advance handles a successful completion: persist what finished, then either
// finalize the image's chain or dispatch the next step under a fresh
// correlation id.
func (e *Engine) advance(ctx context.Context, rec *models.ProcessRecord, msg *models.ToolCompletionMessage) error {
	if msg.Output == nil {
		return e.fault(ctx, rec, fmt.Errorf("ok completion %s carries no output", rec.CorrelationID))
	}

	// Always the current chain, not a cached copy: edits made while this
	// step was outstanding apply from the next step on.
	tools, err := e.projects.GetTools(ctx, rec.ProjectID)
	if err != nil {
		return e.fault(ctx, rec, fmt.Errorf("fetch tools: %w", err))
	}

	nextPos := rec.CurrentPosition + 1
	textOutput := msg.Output.Type == models.OutputTypeText
	finished := nextPos >= len(tools)

	// A text output is an artifact in its own right the moment it lands; an
	// image output becomes one only when the chain has run out of steps.
	if textOutput || finished {
		if err := e.persistArtifact(ctx, rec, msg); err != nil {
			return e.fault(ctx, rec, err)
		}
	}

	if rec.Kind == models.KindRequest {
		// Progress ping per completed step; the client counts these.
		e.notifier.ProcessUpdate(ctx, rec.UserID)
	}

	if finished {
		e.metrics.Completions.WithLabelValues(monitoring.OutcomeCompleted).Inc()
		e.recordEvent(ctx, rec, models.TransitionCompleted, "")
		if rec.Kind == models.KindPreview {
			if err := e.maybeEmitPreviewReady(ctx, rec); err != nil {
				return e.fault(ctx, rec, err)
			}
		}
		return nil
	}

	tool := toolAt(tools, nextPos)
	if tool == nil {
		return e.fault(ctx, rec, fmt.Errorf("no tool at position %d for project %s", nextPos, rec.ProjectID))
	}

	// Text side-channels do not consume the image stream: the next step
	// keeps reading what this one read. Image outputs chain in place.
	inputURI, outputURI := msg.Output.ImageURI, msg.Output.ImageURI
	if textOutput {
		inputURI, outputURI = rec.InputURI, rec.OutputURI
	}

	next := &models.ProcessRecord{
		UserID:          rec.UserID,
		ProjectID:       rec.ProjectID,
		ImageID:         rec.ImageID,
		CorrelationID:   models.NewCorrelationID(rec.Kind),
		Kind:            rec.Kind,
		CurrentPosition: nextPos,
		InputURI:        inputURI,
		OutputURI:       outputURI,
	}
	if err := e.ledger.Create(ctx, next); err != nil {
		return e.fault(ctx, rec, fmt.Errorf("ledger create: %w", err))
	}
	if err := e.dispatch(ctx, next, tool.Procedure, tool.Params); err != nil {
		return e.fault(ctx, rec, err)
	}

	e.metrics.Completions.WithLabelValues(monitoring.OutcomeAdvanced).Inc()
	e.recordEvent(ctx, next, models.TransitionAdvanced, tool.Procedure)
	return nil
}

// persistArtifact records a finalized output for the image
func (e *Engine) persistArtifact(ctx context.Context, rec *models.ProcessRecord, msg *models.ToolCompletionMessage) error {
	artifactType := models.ArtifactResult
	space := storage.SpaceOutput
	if rec.Kind == models.KindPreview {
		artifactType = models.ArtifactPreview
		space = storage.SpacePreview
	}

	fileName := path.Base(msg.Output.ImageURI)
	artifact := &models.Artifact{
		UserID:     rec.UserID,
		ProjectID:  rec.ProjectID,
		ImageID:    rec.ImageID,
		Type:       artifactType,
		OutputType: msg.Output.Type,
		FileName:   fileName,
		FileURI:    msg.Output.ImageURI,
		ObjectKey:  storage.Key(rec.UserID, rec.ProjectID, space, fileName),
	}
	if _, err := e.artifacts.Save(ctx, artifact); err != nil {
		return fmt.Errorf("persist artifact: %w", err)
	}
	e.metrics.ArtifactsPersists.WithLabelValues(string(artifactType)).Inc()
	return nil
}

// maybeEmitPreviewReady fires the aggregate preview notification once no
// preview correlation ids remain outstanding for the project
func (e *Engine) maybeEmitPreviewReady(ctx context.Context, rec *models.ProcessRecord) error {
	outstanding, err := e.ledger.CountActive(ctx, rec.ProjectID, models.KindPreview)
	if err != nil {
		return fmt.Errorf("count outstanding previews: %w", err)
	}
	if outstanding > 0 {
		return nil
	}

	previews, err := e.artifacts.List(ctx, rec.ProjectID, models.ArtifactPreview)
	if err != nil {
		return fmt.Errorf("list previews: %w", err)
	}

	var payload models.PreviewPayload
	for _, p := range previews {
		url, err := e.objects.PresignGet(ctx, p.ObjectKey)
		if err != nil {
			return fmt.Errorf("presign preview %s: %w", p.ObjectKey, err)
		}
		if p.OutputType == models.OutputTypeText {
			payload.TextResults = append(payload.TextResults, url)
		} else {
			payload.ImageURL = url
		}
	}

	e.notifier.PreviewReady(ctx, rec.UserID, payload)
	return nil
}

// fault converts a mid-handling failure into a generic user notification.
// The delivery is acknowledged upstream either way; a stuck record never
// completes but cannot corrupt another image's state.
func (e *Engine) fault(ctx context.Context, rec *models.ProcessRecord, err error) error {
	e.logger.Error("completion handling failed",
		"correlation_id", rec.CorrelationID,
		"image_id", rec.ImageID,
		"error", err,
	)
	if rec.Kind == models.KindPreview {
		e.notifier.PreviewError(ctx, rec.UserID, genericErrorCode, genericErrorMsg)
	} else {
		e.notifier.ProcessError(ctx, rec.UserID, genericErrorCode, genericErrorMsg)
	}
	return err
}

func toolAt(tools []models.Tool, position int) *models.Tool {
	for i := range tools {
		if tools[i].Position == position {
			return &tools[i]
		}
	}
	return nil
}
