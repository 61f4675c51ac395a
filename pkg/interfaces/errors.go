package interfaces

import "errors"

// Error categories shared across components. Package-specific errors wrap
// these so the HTTP and realtime boundaries can map them with errors.Is.
var (
	ErrNotFound     = errors.New("not found")
	ErrUnauthorized = errors.New("unauthorized access")
	ErrValidation   = errors.New("validation failed")
	ErrConflict     = errors.New("conflicting state")
)

// Presence-level errors
var (
	ErrInvalidClassCode = errors.New("invalid or expired class code")
	ErrJoinRejected     = errors.New("join could not be resolved")
)
