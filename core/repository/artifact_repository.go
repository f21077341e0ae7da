package repository

import (
	"context"
	"database/sql"
	"time"

	"picturas-orchestrator/core/models"

	"github.com/google/uuid"
)

// ArtifactRepository handles database operations for finalized results and
// preview outputs
type ArtifactRepository struct {
	db *DB
}

// NewArtifactRepository creates a new artifact repository
func NewArtifactRepository(db *DB) *ArtifactRepository {
	return &ArtifactRepository{db: db}
}

// Save persists a finalized artifact and returns its id
func (r *ArtifactRepository) Save(ctx context.Context, artifact *models.Artifact) (string, error) {
	if artifact.ID == "" {
		artifact.ID = uuid.New().String()
	}
	artifact.CreatedAt = time.Now()

	query := `
		INSERT INTO artifacts (id, user_id, project_id, img_id, type, output_type, file_name, file_uri, object_key, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`
	_, err := r.db.ExecContext(ctx, query,
		artifact.ID,
		artifact.UserID,
		artifact.ProjectID,
		artifact.ImageID,
		artifact.Type,
		artifact.OutputType,
		artifact.FileName,
		artifact.FileURI,
		artifact.ObjectKey,
		artifact.CreatedAt,
	)
	if err != nil {
		return "", err
	}
	return artifact.ID, nil
}

// List returns a project's artifacts of one type, oldest first
func (r *ArtifactRepository) List(ctx context.Context, projectID string, artifactType models.ArtifactType) ([]*models.Artifact, error) {
	query := `
		SELECT id, user_id, project_id, img_id, type, output_type, file_name, file_uri, object_key, created_at
		FROM artifacts
		WHERE project_id = $1 AND type = $2
		ORDER BY created_at
	`
	rows, err := r.db.QueryContext(ctx, query, projectID, artifactType)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanArtifacts(rows)
}

// ListByImage returns one image's artifacts of one type
func (r *ArtifactRepository) ListByImage(ctx context.Context, projectID, imageID string, artifactType models.ArtifactType) ([]*models.Artifact, error) {
	query := `
		SELECT id, user_id, project_id, img_id, type, output_type, file_name, file_uri, object_key, created_at
		FROM artifacts
		WHERE project_id = $1 AND img_id = $2 AND type = $3
	`
	rows, err := r.db.QueryContext(ctx, query, projectID, imageID, artifactType)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanArtifacts(rows)
}

// Delete removes a single artifact
func (r *ArtifactRepository) Delete(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM artifacts WHERE id = $1`, id)
	return err
}

// DeleteByProject removes all of a project's artifacts of one type. Used to
// purge stale results before a new run and stale previews before a new
// preview.
func (r *ArtifactRepository) DeleteByProject(ctx context.Context, projectID string, artifactType models.ArtifactType) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM artifacts WHERE project_id = $1 AND type = $2`, projectID, artifactType)
	return err
}

func scanArtifacts(rows *sql.Rows) ([]*models.Artifact, error) {
	var artifacts []*models.Artifact
	for rows.Next() {
		var a models.Artifact
		err := rows.Scan(
			&a.ID, &a.UserID, &a.ProjectID, &a.ImageID,
			&a.Type, &a.OutputType, &a.FileName, &a.FileURI, &a.ObjectKey, &a.CreatedAt,
		)
		if err != nil {
			return nil, err
		}
		artifacts = append(artifacts, &a)
	}
	return artifacts, rows.Err()
}
