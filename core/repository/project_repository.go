package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"picturas-orchestrator/core/models"

	"github.com/google/uuid"
)

// ProjectRepository handles database operations for projects, their images
// and their tool chains
type ProjectRepository struct {
	db *DB
}

// NewProjectRepository creates a new project repository
func NewProjectRepository(db *DB) *ProjectRepository {
	return &ProjectRepository{db: db}
}

// CreateProject creates a new project
func (r *ProjectRepository) CreateProject(ctx context.Context, project *models.Project) error {
	if project.ID == "" {
		project.ID = uuid.New().String()
	}
	now := time.Now()
	project.CreatedAt = now
	project.UpdatedAt = now

	query := `
		INSERT INTO projects (id, user_id, name, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5)
	`
	_, err := r.db.ExecContext(ctx, query, project.ID, project.UserID, project.Name, now, now)
	return err
}

// GetProject retrieves a user's project by id
func (r *ProjectRepository) GetProject(ctx context.Context, userID, projectID string) (*models.Project, error) {
	query := `
		SELECT id, user_id, name, created_at, updated_at
		FROM projects
		WHERE user_id = $1 AND id = $2
	`
	var p models.Project
	err := r.db.QueryRowContext(ctx, query, userID, projectID).Scan(
		&p.ID, &p.UserID, &p.Name, &p.CreatedAt, &p.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, models.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// ListProjects lists a user's projects
func (r *ProjectRepository) ListProjects(ctx context.Context, userID string) ([]*models.Project, error) {
	query := `
		SELECT id, user_id, name, created_at, updated_at
		FROM projects
		WHERE user_id = $1
		ORDER BY created_at
	`
	rows, err := r.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var projects []*models.Project
	for rows.Next() {
		var p models.Project
		if err := rows.Scan(&p.ID, &p.UserID, &p.Name, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, err
		}
		projects = append(projects, &p)
	}
	return projects, rows.Err()
}

// RenameProject updates a project's name
func (r *ProjectRepository) RenameProject(ctx context.Context, userID, projectID, name string) error {
	query := `UPDATE projects SET name = $1, updated_at = NOW() WHERE user_id = $2 AND id = $3`
	res, err := r.db.ExecContext(ctx, query, name, userID, projectID)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return models.ErrNotFound
	}
	return nil
}

// DeleteProject removes a project; images and tools cascade
func (r *ProjectRepository) DeleteProject(ctx context.Context, userID, projectID string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM projects WHERE user_id = $1 AND id = $2`, userID, projectID)
	return err
}

// AddImage registers an uploaded image in a project
func (r *ProjectRepository) AddImage(ctx context.Context, img *models.Image) error {
	if img.ID == "" {
		img.ID = uuid.New().String()
	}
	img.CreatedAt = time.Now()

	query := `
		INSERT INTO project_images (id, project_id, name, source_uri, output_uri, object_key, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	_, err := r.db.ExecContext(ctx, query,
		img.ID, img.ProjectID, img.Name, img.SourceURI, img.OutputURI, img.ObjectKey, img.CreatedAt,
	)
	return err
}

// GetImage retrieves one image of a project
func (r *ProjectRepository) GetImage(ctx context.Context, projectID, imageID string) (*models.Image, error) {
	query := `
		SELECT id, project_id, name, source_uri, output_uri, object_key, created_at
		FROM project_images
		WHERE project_id = $1 AND id = $2
	`
	var img models.Image
	err := r.db.QueryRowContext(ctx, query, projectID, imageID).Scan(
		&img.ID, &img.ProjectID, &img.Name, &img.SourceURI, &img.OutputURI, &img.ObjectKey, &img.CreatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, models.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &img, nil
}

// ListImages lists a project's images
func (r *ProjectRepository) ListImages(ctx context.Context, projectID string) ([]*models.Image, error) {
	query := `
		SELECT id, project_id, name, source_uri, output_uri, object_key, created_at
		FROM project_images
		WHERE project_id = $1
		ORDER BY created_at
	`
	rows, err := r.db.QueryContext(ctx, query, projectID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var images []*models.Image
	for rows.Next() {
		var img models.Image
		err := rows.Scan(&img.ID, &img.ProjectID, &img.Name, &img.SourceURI, &img.OutputURI, &img.ObjectKey, &img.CreatedAt)
		if err != nil {
			return nil, err
		}
		images = append(images, &img)
	}
	return images, rows.Err()
}

// DeleteImage removes one image from a project
func (r *ProjectRepository) DeleteImage(ctx context.Context, projectID, imageID string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM project_images WHERE project_id = $1 AND id = $2`, projectID, imageID)
	return err
}

// GetTools returns a project's tool chain ordered by position. The advancer
// calls this on every step so mid-run edits are honored for the steps that
// have not been dispatched yet.
func (r *ProjectRepository) GetTools(ctx context.Context, projectID string) ([]models.Tool, error) {
	query := `
		SELECT id, project_id, position, procedure, params_json
		FROM project_tools
		WHERE project_id = $1
		ORDER BY position
	`
	rows, err := r.db.QueryContext(ctx, query, projectID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var tools []models.Tool
	for rows.Next() {
		var t models.Tool
		var paramsJSON string
		if err := rows.Scan(&t.ID, &t.ProjectID, &t.Position, &t.Procedure, &paramsJSON); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(paramsJSON), &t.Params); err != nil {
			return nil, err
		}
		tools = append(tools, t)
	}
	return tools, rows.Err()
}

// AddTool appends a tool at the end of the chain
func (r *ProjectRepository) AddTool(ctx context.Context, tool *models.Tool) error {
	if tool.ID == "" {
		tool.ID = uuid.New().String()
	}
	paramsJSON, err := json.Marshal(tool.Params)
	if err != nil {
		return err
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	var next int
	err = tx.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(position) + 1, 0) FROM project_tools WHERE project_id = $1`,
		tool.ProjectID,
	).Scan(&next)
	if err != nil {
		return err
	}
	tool.Position = next

	_, err = tx.ExecContext(ctx,
		`INSERT INTO project_tools (id, project_id, position, procedure, params_json) VALUES ($1, $2, $3, $4, $5)`,
		tool.ID, tool.ProjectID, tool.Position, tool.Procedure, string(paramsJSON),
	)
	if err != nil {
		return err
	}
	return tx.Commit()
}

// UpdateToolParams replaces a tool's params, keeping position and procedure
func (r *ProjectRepository) UpdateToolParams(ctx context.Context, projectID, toolID string, params map[string]interface{}) error {
	paramsJSON, err := json.Marshal(params)
	if err != nil {
		return err
	}
	query := `UPDATE project_tools SET params_json = $1 WHERE project_id = $2 AND id = $3`
	res, err := r.db.ExecContext(ctx, query, string(paramsJSON), projectID, toolID)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return models.ErrNotFound
	}
	return nil
}

// DeleteTool removes a tool and closes the position gap it leaves
func (r *ProjectRepository) DeleteTool(ctx context.Context, projectID, toolID string) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	var position int
	err = tx.QueryRowContext(ctx,
		`SELECT position FROM project_tools WHERE project_id = $1 AND id = $2`,
		projectID, toolID,
	).Scan(&position)
	if err == sql.ErrNoRows {
		return models.ErrNotFound
	}
	if err != nil {
		return err
	}

	_, err = tx.ExecContext(ctx, `DELETE FROM project_tools WHERE project_id = $1 AND id = $2`, projectID, toolID)
	if err != nil {
		return err
	}
	_, err = tx.ExecContext(ctx,
		`UPDATE project_tools SET position = position - 1 WHERE project_id = $1 AND position > $2`,
		projectID, position,
	)
	if err != nil {
		return err
	}
	return tx.Commit()
}

// ReorderTools rewrites the whole chain with positions taken from slice order
func (r *ProjectRepository) ReorderTools(ctx context.Context, projectID string, tools []models.Tool) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `DELETE FROM project_tools WHERE project_id = $1`, projectID)
	if err != nil {
		return err
	}

	for i, t := range tools {
		if t.ID == "" {
			t.ID = uuid.New().String()
		}
		paramsJSON, err := json.Marshal(t.Params)
		if err != nil {
			return err
		}
		_, err = tx.ExecContext(ctx,
			`INSERT INTO project_tools (id, project_id, position, procedure, params_json) VALUES ($1, $2, $3, $4, $5)`,
			t.ID, projectID, i, t.Procedure, string(paramsJSON),
		)
		if err != nil {
			return err
		}
	}
	return tx.Commit()
}
