package models

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Kind distinguishes a full pipeline run from a preview run.
type Kind string

const (
	KindRequest Kind = "request"
	KindPreview Kind = "preview"
)

// NewCorrelationID returns a fresh correlation id for the given kind.
// The kind prefix stays on the wire because the tool workers echo the id
// back verbatim; internally the ledger carries the kind as its own column.
func NewCorrelationID(kind Kind) string {
	return fmt.Sprintf("%s-%s", kind, uuid.New())
}

// KindOfCorrelationID recovers the kind from a correlation id prefix. Used
// only when re-ingesting ids minted elsewhere; ledger rows are authoritative.
func KindOfCorrelationID(id string) Kind {
	if strings.HasPrefix(id, string(KindPreview)) {
		return KindPreview
	}
	return KindRequest
}

// ProcessStatus represents the state of an in-flight process record
type ProcessStatus string

const (
	ProcessStatusProcessing ProcessStatus = "processing"
	ProcessStatusCompleted  ProcessStatus = "completed"
	ProcessStatusCancelled  ProcessStatus = "cancelled"
	ProcessStatusError      ProcessStatus = "error"
)

// ProcessRecord is one ledger entry: a single image with one tool invocation
// outstanding. At most one non-terminal record exists per (image, kind); the
// record is created before its step is dispatched and deleted when the
// completion message is consumed.
type ProcessRecord struct {
	ID              string
	UserID          string
	ProjectID       string
	ImageID         string
	CorrelationID   string
	Kind            Kind
	CurrentPosition int
	InputURI        string
	OutputURI       string
	Status          ProcessStatus
	StartedAt       time.Time
	CancelledAt     *time.Time
}

// ProcessEvent is an audit-trail entry for a pipeline transition
type ProcessEvent struct {
	ID            int64
	ProjectID     string
	ImageID       string
	CorrelationID string
	Transition    string
	Detail        string
	CreatedAt     time.Time
}

// Transition names recorded in process_events
const (
	TransitionDispatched = "dispatched"
	TransitionAdvanced   = "advanced"
	TransitionCompleted  = "completed"
	TransitionCancelled  = "cancelled"
	TransitionErrored    = "errored"
)
