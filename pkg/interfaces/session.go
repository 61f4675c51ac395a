package interfaces

import (
	"context"

	"classcast/pkg/types"
)

// TeacherCreated is returned by CreateTeacher
type TeacherCreated struct {
	TeacherID string `json:"teacherId"`
	ClassCode string `json:"classCode"`
}

// StudentCreated is returned by CreateStudent
type StudentCreated struct {
	StudentID string `json:"studentId"`
	ClassCode string `json:"classCode"`
}

// PresenceManager is the membership and mutation surface shared by the HTTP
// API and the realtime router
type PresenceManager interface {
	CreateTeacher(ctx context.Context) (*TeacherCreated, error)
	CreateStudent(ctx context.Context, name, classCode string) (*StudentCreated, error)

	// HydrateTeacher and HydrateStudent return ErrJoinRejected when the
	// identifiers do not resolve
	HydrateTeacher(ctx context.Context, classCode, teacherID string) (*types.TeacherSnapshot, error)
	HydrateStudent(ctx context.Context, classCode, studentID string) (*types.StudentSnapshot, error)

	GetRoster(ctx context.Context, classCode string) ([]types.RosterEntry, error)
	GetProblem(ctx context.Context, classCode string) (*string, error)

	UpdateText(ctx context.Context, classCode, studentID, text string, seq uint64) error
	UpdateStatus(ctx context.Context, classCode, studentID string, status types.StudentStatus) error
	SetProblem(ctx context.Context, classCode, teacherID, text string) error
	OverwriteProblem(ctx context.Context, classCode, text string) error
	EndClass(ctx context.Context, classCode, teacherID string) error
}
