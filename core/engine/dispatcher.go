package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"picturas-orchestrator/core/models"
)

// dispatch publishes the tool invocation for a ledger record. The record
// must already be durably written: record-before-send keeps the correlation
// recoverable if the process dies between publish and anything else.
func (e *Engine) dispatch(ctx context.Context, rec *models.ProcessRecord, procedure string, params map[string]interface{}) error {
	queue, err := e.routes.QueueFor(procedure)
	if err != nil {
		return err
	}

	msg := models.NewToolInvocation(rec.CorrelationID, time.Now(), rec.InputURI, rec.OutputURI, procedure, params)
	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal invocation: %w", err)
	}

	if err := e.publisher.Publish(ctx, queue, body); err != nil {
		return fmt.Errorf("publish invocation: %w", err)
	}

	e.metrics.StepsDispatched.WithLabelValues(procedure).Inc()
	e.recordEvent(ctx, rec, models.TransitionDispatched, procedure)
	e.logger.Info("step dispatched",
		"correlation_id", rec.CorrelationID,
		"procedure", procedure,
		"position", rec.CurrentPosition,
		"queue", queue,
	)
	return nil
}
