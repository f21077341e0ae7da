package models

import "errors"

// Sentinel errors shared across repositories and the engine
var (
	// ErrNotFound is returned when a looked-up entity does not exist. For
	// completion handling this marks a stale or duplicate delivery.
	ErrNotFound = errors.New("not found")

	// ErrEmptyPipeline is returned when a run is requested on a project
	// with no tools configured.
	ErrEmptyPipeline = errors.New("project has no tools configured")

	// ErrUnknownProcedure is returned when no queue is registered for a
	// tool's procedure name.
	ErrUnknownProcedure = errors.New("unknown procedure")
)
