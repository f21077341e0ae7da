package models

import "time"

// Project groups a user's images and the tool chain applied to them
type Project struct {
	ID        string
	UserID    string
	Name      string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Tool is one step of a project's pipeline. Positions form a contiguous
// 0-based sequence; the repository keeps them that way on insert/delete.
type Tool struct {
	ID        string
	ProjectID string
	Position  int
	Procedure string
	Params    map[string]interface{}
}

// Image is a source image registered in a project
type Image struct {
	ID        string
	ProjectID string
	Name      string
	SourceURI string // where tool workers read the original from
	OutputURI string // final destination of the full pipeline
	ObjectKey string // key in the src/ object-storage space
	CreatedAt time.Time
}

// ArtifactType separates durable pipeline results from preview outputs
type ArtifactType string

const (
	ArtifactResult  ArtifactType = "result"
	ArtifactPreview ArtifactType = "preview"
)

// Artifact is a finalized output of a pipeline or preview run for one image
type Artifact struct {
	ID         string
	UserID     string
	ProjectID  string
	ImageID    string
	Type       ArtifactType
	OutputType string // "image" or "text", as reported by the worker
	FileName   string
	FileURI    string // where the worker wrote the output
	ObjectKey  string // where the uploaded copy lives in object storage
	CreatedAt  time.Time
}
