package types

import "errors"

// Validation errors shared by the HTTP and realtime boundaries
var (
	ErrInvalidClassCode = errors.New("class code must be 6 alphanumeric characters")
	ErrInvalidStatus    = errors.New("status must be one of working, done, error")
	ErrInvalidUserID    = errors.New("identifier must be 1-64 characters, alphanumeric + underscore/hyphen only")
	ErrNameTooLong      = errors.New("display name exceeds 100 characters")
	ErrTextTooLarge     = errors.New("text exceeds 256KB limit")
	ErrInvalidPayload   = errors.New("invalid event payload")
	ErrInvalidEventType = errors.New("invalid event type")
)
