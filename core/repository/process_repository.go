package repository

import (
	"context"
	"database/sql"
	"time"

	"picturas-orchestrator/core/models"

	"github.com/google/uuid"
)

// ProcessRepository is the durable ledger of in-flight process records
type ProcessRepository struct {
	db *DB
}

// NewProcessRepository creates a new process repository
func NewProcessRepository(db *DB) *ProcessRepository {
	return &ProcessRepository{db: db}
}

// Create inserts a new ledger record. Callers must do this before publishing
// the matching tool invocation, never after.
func (r *ProcessRepository) Create(ctx context.Context, rec *models.ProcessRecord) error {
	if rec.ID == "" {
		rec.ID = uuid.New().String()
	}
	if rec.Status == "" {
		rec.Status = models.ProcessStatusProcessing
	}
	if rec.StartedAt.IsZero() {
		rec.StartedAt = time.Now()
	}

	query := `
		INSERT INTO processes (
			id, user_id, project_id, img_id, correlation_id, kind,
			cur_pos, input_uri, output_uri, status, started_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`
	_, err := r.db.ExecContext(ctx, query,
		rec.ID,
		rec.UserID,
		rec.ProjectID,
		rec.ImageID,
		rec.CorrelationID,
		rec.Kind,
		rec.CurrentPosition,
		rec.InputURI,
		rec.OutputURI,
		rec.Status,
		rec.StartedAt,
	)
	return err
}

// GetByCorrelationID fetches the record an incoming completion belongs to
func (r *ProcessRepository) GetByCorrelationID(ctx context.Context, correlationID string) (*models.ProcessRecord, error) {
	query := `
		SELECT id, user_id, project_id, img_id, correlation_id, kind,
			cur_pos, input_uri, output_uri, status, started_at, cancelled_at
		FROM processes
		WHERE correlation_id = $1
	`
	return r.scanOne(r.db.QueryRowContext(ctx, query, correlationID))
}

// GetActiveByImage fetches the non-terminal record for an image, if any
func (r *ProcessRepository) GetActiveByImage(ctx context.Context, projectID, imageID string, kind models.Kind) (*models.ProcessRecord, error) {
	query := `
		SELECT id, user_id, project_id, img_id, correlation_id, kind,
			cur_pos, input_uri, output_uri, status, started_at, cancelled_at
		FROM processes
		WHERE project_id = $1 AND img_id = $2 AND kind = $3
	`
	return r.scanOne(r.db.QueryRowContext(ctx, query, projectID, imageID, kind))
}

// ListByProject lists all in-flight records for a project
func (r *ProcessRepository) ListByProject(ctx context.Context, projectID string) ([]*models.ProcessRecord, error) {
	query := `
		SELECT id, user_id, project_id, img_id, correlation_id, kind,
			cur_pos, input_uri, output_uri, status, started_at, cancelled_at
		FROM processes
		WHERE project_id = $1
		ORDER BY started_at
	`
	rows, err := r.db.QueryContext(ctx, query, projectID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []*models.ProcessRecord
	for rows.Next() {
		rec, err := r.scanRecord(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

// CountActive counts a project's records of one kind that are still
// processing. The preview aggregator uses this to detect the last
// outstanding image.
func (r *ProcessRepository) CountActive(ctx context.Context, projectID string, kind models.Kind) (int, error) {
	query := `
		SELECT COUNT(*) FROM processes
		WHERE project_id = $1 AND kind = $2 AND status = $3
	`
	var n int
	err := r.db.QueryRowContext(ctx, query, projectID, kind, models.ProcessStatusProcessing).Scan(&n)
	return n, err
}

// MarkCancelled flips a record to cancelled. The record is not deleted here;
// the advancer discards it when the in-flight completion arrives.
func (r *ProcessRepository) MarkCancelled(ctx context.Context, correlationID string, at time.Time) error {
	query := `
		UPDATE processes SET status = $1, cancelled_at = $2
		WHERE correlation_id = $3
	`
	res, err := r.db.ExecContext(ctx, query, models.ProcessStatusCancelled, at, correlationID)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return models.ErrNotFound
	}
	return nil
}

// Delete removes a record once its completion has been consumed
func (r *ProcessRepository) Delete(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM processes WHERE id = $1`, id)
	return err
}

func (r *ProcessRepository) scanOne(row *sql.Row) (*models.ProcessRecord, error) {
	rec, err := r.scanRecord(row)
	if err == sql.ErrNoRows {
		return nil, models.ErrNotFound
	}
	return rec, err
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func (r *ProcessRepository) scanRecord(row scanner) (*models.ProcessRecord, error) {
	var rec models.ProcessRecord
	var cancelledAt sql.NullTime

	err := row.Scan(
		&rec.ID,
		&rec.UserID,
		&rec.ProjectID,
		&rec.ImageID,
		&rec.CorrelationID,
		&rec.Kind,
		&rec.CurrentPosition,
		&rec.InputURI,
		&rec.OutputURI,
		&rec.Status,
		&rec.StartedAt,
		&cancelledAt,
	)
	if err != nil {
		return nil, err
	}
	if cancelledAt.Valid {
		rec.CancelledAt = &cancelledAt.Time
	}
	return &rec, nil
}
