package session

import (
	"fmt"

	"classcast/pkg/interfaces"
)

// Session store error types
var (
	ErrClassNotFound     = fmt.Errorf("class %w", interfaces.ErrNotFound)
	ErrStudentNotFound   = fmt.Errorf("student %w", interfaces.ErrNotFound)
	ErrClassInactive     = fmt.Errorf("class is no longer accepting students: %w", interfaces.ErrConflict)
	ErrClassAlreadyEnded = fmt.Errorf("class is already ended: %w", interfaces.ErrConflict)
	ErrStaleUpdate       = fmt.Errorf("text update is older than the last applied sequence: %w", interfaces.ErrConflict)
	ErrUnauthorized      = fmt.Errorf("teacher does not own this class: %w", interfaces.ErrUnauthorized)
	ErrInvalidTeacherID  = fmt.Errorf("teacher id is malformed: %w", interfaces.ErrValidation)
)
