package repository

import (
	"database/sql"

	_ "github.com/lib/pq"
)

// DB wraps the shared database handle used by all repositories
type DB struct {
	*sql.DB
}

// NewDB opens a PostgreSQL connection and verifies it
func NewDB(databaseURL string) (*DB, error) {
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, err
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, err
	}
	return &DB{DB: db}, nil
}

// Migrate creates the schema if it does not exist yet
func (db *DB) Migrate() error {
	schema := `
		CREATE TABLE IF NOT EXISTS projects (
			id UUID PRIMARY KEY,
			user_id TEXT NOT NULL,
			name TEXT NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);

		CREATE TABLE IF NOT EXISTS project_images (
			id UUID PRIMARY KEY,
			project_id UUID NOT NULL REFERENCES projects(id) ON DELETE CASCADE,
			name TEXT NOT NULL,
			source_uri TEXT NOT NULL,
			output_uri TEXT NOT NULL,
			object_key TEXT NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			UNIQUE (project_id, name)
		);

		CREATE TABLE IF NOT EXISTS project_tools (
			id UUID PRIMARY KEY,
			project_id UUID NOT NULL REFERENCES projects(id) ON DELETE CASCADE,
			position INT NOT NULL,
			procedure TEXT NOT NULL,
			params_json TEXT NOT NULL DEFAULT '{}',
			UNIQUE (project_id, position)
		);

		CREATE TABLE IF NOT EXISTS processes (
			id UUID PRIMARY KEY,
			user_id TEXT NOT NULL,
			project_id UUID NOT NULL,
			img_id UUID NOT NULL,
			correlation_id TEXT NOT NULL UNIQUE,
			kind TEXT NOT NULL,
			cur_pos INT NOT NULL,
			input_uri TEXT NOT NULL,
			output_uri TEXT NOT NULL,
			status TEXT NOT NULL DEFAULT 'processing',
			started_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			cancelled_at TIMESTAMPTZ
		);

		CREATE TABLE IF NOT EXISTS artifacts (
			id UUID PRIMARY KEY,
			user_id TEXT NOT NULL,
			project_id UUID NOT NULL,
			img_id UUID NOT NULL,
			type TEXT NOT NULL,
			output_type TEXT NOT NULL,
			file_name TEXT NOT NULL,
			file_uri TEXT NOT NULL DEFAULT '',
			object_key TEXT NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);

		CREATE TABLE IF NOT EXISTS process_events (
			id BIGSERIAL PRIMARY KEY,
			project_id UUID NOT NULL,
			img_id UUID NOT NULL,
			correlation_id TEXT NOT NULL,
			transition TEXT NOT NULL,
			detail TEXT NOT NULL DEFAULT '',
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);
	`
	_, err := db.Exec(schema)
	return err
}
