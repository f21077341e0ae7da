package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"picturas-orchestrator/core/models"
)

// CancelOutcome reports what a cancellation request found
type CancelOutcome string

const (
	CancelNotFound        CancelOutcome = "not_found"
	CancelAlreadyTerminal CancelOutcome = "already_terminal"
	CancelDone            CancelOutcome = "cancelled"
)

// CancelImage cancels whatever full-pipeline run is outstanding for an
// image. Cancellation is cooperative: the invocation already sent to a
// worker is not retracted, but its result will be discarded and no further
// steps dispatched. The cancellation notification goes out immediately,
// independent of when (or whether) the worker's completion arrives.
func (e *Engine) CancelImage(ctx context.Context, projectID, imageID string) (CancelOutcome, error) {
	rec, err := e.ledger.GetActiveByImage(ctx, projectID, imageID, models.KindRequest)
	if errors.Is(err, models.ErrNotFound) {
		return CancelNotFound, nil
	}
	if err != nil {
		return "", fmt.Errorf("ledger lookup: %w", err)
	}
	return e.cancelRecord(ctx, rec)
}

// Cancel cancels the run owning a correlation id
func (e *Engine) Cancel(ctx context.Context, correlationID string) (CancelOutcome, error) {
	rec, err := e.ledger.GetByCorrelationID(ctx, correlationID)
	if errors.Is(err, models.ErrNotFound) {
		return CancelNotFound, nil
	}
	if err != nil {
		return "", fmt.Errorf("ledger lookup: %w", err)
	}
	return e.cancelRecord(ctx, rec)
}

func (e *Engine) cancelRecord(ctx context.Context, rec *models.ProcessRecord) (CancelOutcome, error) {
	if rec.Status != models.ProcessStatusProcessing {
		return CancelAlreadyTerminal, nil
	}

	if err := e.ledger.MarkCancelled(ctx, rec.CorrelationID, time.Now()); err != nil {
		if errors.Is(err, models.ErrNotFound) {
			// The completion raced us and closed the record already.
			return CancelAlreadyTerminal, nil
		}
		return "", fmt.Errorf("mark cancelled: %w", err)
	}

	e.metrics.Cancellations.Inc()
	e.recordEvent(ctx, rec, models.TransitionCancelled, "user request")
	if rec.Kind == models.KindPreview {
		e.notifier.PreviewCancelled(ctx, rec.UserID)
	} else {
		e.notifier.ProcessCancelled(ctx, rec.UserID)
	}
	e.logger.Info("pipeline cancelled",
		"correlation_id", rec.CorrelationID,
		"image_id", rec.ImageID,
	)
	return CancelDone, nil
}
