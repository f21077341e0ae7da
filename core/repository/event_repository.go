package repository

import (
	"context"

	"picturas-orchestrator/core/models"
)

// EventRepository handles database operations for pipeline transition events
type EventRepository struct {
	db *DB
}

// NewEventRepository creates a new event repository
func NewEventRepository(db *DB) *EventRepository {
	return &EventRepository{db: db}
}

// Record appends a transition event for an image's pipeline
func (r *EventRepository) Record(ctx context.Context, event *models.ProcessEvent) error {
	query := `
		INSERT INTO process_events (project_id, img_id, correlation_id, transition, detail)
		VALUES ($1, $2, $3, $4, $5)
	`
	_, err := r.db.ExecContext(ctx, query,
		event.ProjectID,
		event.ImageID,
		event.CorrelationID,
		event.Transition,
		event.Detail,
	)
	return err
}

// ListByProject retrieves the most recent events for a project
func (r *EventRepository) ListByProject(ctx context.Context, projectID string, limit int) ([]models.ProcessEvent, error) {
	query := `
		SELECT id, project_id, img_id, correlation_id, transition, detail, created_at
		FROM process_events
		WHERE project_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`
	rows, err := r.db.QueryContext(ctx, query, projectID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []models.ProcessEvent
	for rows.Next() {
		var event models.ProcessEvent
		err := rows.Scan(
			&event.ID,
			&event.ProjectID,
			&event.ImageID,
			&event.CorrelationID,
			&event.Transition,
			&event.Detail,
			&event.CreatedAt,
		)
		if err != nil {
			return nil, err
		}
		events = append(events, event)
	}
	return events, rows.Err()
}
