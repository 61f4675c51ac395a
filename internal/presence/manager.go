package presence

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"classcast/internal/identity"
	"classcast/internal/session"
	"classcast/pkg/interfaces"
	"classcast/pkg/types"
)

// journalTimeout bounds a single journal write
const journalTimeout = 5 * time.Second

// Manager is the membership layer between the transports and the Session Store.
// Store calls happen first; journal entries are queued once the store lock is
// released and written by a background writer, so no caller waits on disk.
type Manager struct {
	store   *session.Store
	journal interfaces.ActivityJournal
	writer  *journalWriter
}

// NewManager creates a presence manager. journal may be nil.
func NewManager(store *session.Store, journal interfaces.ActivityJournal) *Manager {
	m := &Manager{
		store:   store,
		journal: journal,
	}
	if journal != nil {
		m.writer = newJournalWriter(journal)
	}
	return m
}

// Flush waits until queued journal entries are written
func (m *Manager) Flush(ctx context.Context) error {
	if m.writer == nil {
		return nil
	}
	return m.writer.flush(ctx)
}

// Close writes queued journal entries and stops the writer. The journal itself
// is left open.
func (m *Manager) Close() {
	if m.writer != nil {
		m.writer.close()
	}
}

// CreateTeacher mints a teacher id and opens a class for it
func (m *Manager) CreateTeacher(ctx context.Context) (*interfaces.TeacherCreated, error) {
	teacherID := identity.NewTeacherID()

	classCode, err := m.store.CreateSession(teacherID)
	if err != nil {
		return nil, fmt.Errorf("failed to create class: %w", err)
	}

	log.Printf("Class created: class=%s teacher=%s", classCode, teacherID)
	m.record(classCode, types.ActivityClassCreated, teacherID, "")

	return &interfaces.TeacherCreated{TeacherID: teacherID, ClassCode: classCode}, nil
}

// CreateStudent adds a student to an active class. Unknown or ended classes
// yield ErrInvalidClassCode and leave no state behind.
func (m *Manager) CreateStudent(ctx context.Context, name, classCode string) (*interfaces.StudentCreated, error) {
	classCode = types.NormalizeClassCode(classCode)
	if !types.IsValidClassCode(classCode) {
		return nil, interfaces.ErrInvalidClassCode
	}

	record, err := m.store.AddStudent(classCode, name)
	if err != nil {
		if errors.Is(err, session.ErrClassNotFound) || errors.Is(err, session.ErrClassInactive) {
			return nil, interfaces.ErrInvalidClassCode
		}
		return nil, err
	}

	log.Printf("Student joined: class=%s student=%s", classCode, record.ID)
	m.record(classCode, types.ActivityStudentJoined, record.ID, record.Name)

	return &interfaces.StudentCreated{StudentID: record.ID, ClassCode: classCode}, nil
}

// HydrateTeacher returns the roster snapshot for a teacher view. An empty
// teacherID skips the ownership check.
func (m *Manager) HydrateTeacher(ctx context.Context, classCode, teacherID string) (*types.TeacherSnapshot, error) {
	classCode = types.NormalizeClassCode(classCode)

	if teacherID != "" {
		if err := m.store.VerifyTeacher(classCode, teacherID); err != nil {
			return nil, fmt.Errorf("%w: %v", interfaces.ErrJoinRejected, err)
		}
	}

	snapshot, err := m.store.Snapshot(classCode)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", interfaces.ErrJoinRejected, err)
	}
	return snapshot, nil
}

// HydrateStudent returns a student's own text and the problem statement
func (m *Manager) HydrateStudent(ctx context.Context, classCode, studentID string) (*types.StudentSnapshot, error) {
	classCode = types.NormalizeClassCode(classCode)

	snapshot, err := m.store.StudentSnapshot(classCode, studentID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", interfaces.ErrJoinRejected, err)
	}
	return snapshot, nil
}

// GetRoster returns the class roster in join order
func (m *Manager) GetRoster(ctx context.Context, classCode string) ([]types.RosterEntry, error) {
	return m.store.GetRoster(types.NormalizeClassCode(classCode))
}

// GetProblem returns the class problem statement
func (m *Manager) GetProblem(ctx context.Context, classCode string) (*string, error) {
	return m.store.GetProblemStatement(types.NormalizeClassCode(classCode))
}

// UpdateText stores a student's live text. Text edits are not journaled.
func (m *Manager) UpdateText(ctx context.Context, classCode, studentID, text string, seq uint64) error {
	return m.store.UpdateText(types.NormalizeClassCode(classCode), studentID, text, seq)
}

// UpdateStatus changes a student's status
func (m *Manager) UpdateStatus(ctx context.Context, classCode, studentID string, status types.StudentStatus) error {
	classCode = types.NormalizeClassCode(classCode)

	if err := m.store.SetStudentStatus(classCode, studentID, status); err != nil {
		return err
	}

	m.record(classCode, types.ActivityStatusChanged, studentID, string(status))
	return nil
}

// SetProblem writes the problem statement when teacherID owns the class
func (m *Manager) SetProblem(ctx context.Context, classCode, teacherID, text string) error {
	classCode = types.NormalizeClassCode(classCode)

	if err := m.store.SetProblemStatement(classCode, teacherID, text); err != nil {
		return err
	}

	m.record(classCode, types.ActivityProblemUpdated, teacherID, summarize(text))
	return nil
}

// OverwriteProblem writes the problem statement without an ownership check
func (m *Manager) OverwriteProblem(ctx context.Context, classCode, text string) error {
	classCode = types.NormalizeClassCode(classCode)

	if err := m.store.OverwriteProblemStatement(classCode, text); err != nil {
		return err
	}

	m.record(classCode, types.ActivityProblemUpdated, "", summarize(text))
	return nil
}

// EndClass closes a class to new students
func (m *Manager) EndClass(ctx context.Context, classCode, teacherID string) error {
	classCode = types.NormalizeClassCode(classCode)

	if err := m.store.EndSession(classCode, teacherID); err != nil {
		return err
	}

	log.Printf("Class ended: class=%s teacher=%s", classCode, teacherID)
	m.record(classCode, types.ActivityClassEnded, teacherID, "")
	return nil
}

// RecordExpired journals a class removed by the idle reaper
func (m *Manager) RecordExpired(ctx context.Context, classCode string) {
	m.record(classCode, types.ActivityClassExpired, "", "")
}

// RecordAnalysis journals an analysis request. classCode may be empty.
func (m *Manager) RecordAnalysis(ctx context.Context, classCode string, success bool) {
	if classCode == "" {
		return
	}
	m.record(classCode, types.ActivityAnalysisRequested, "", fmt.Sprintf("success=%t", success))
}

// ListActivity returns journal entries for a class
func (m *Manager) ListActivity(ctx context.Context, classCode string) ([]*types.Activity, error) {
	classCode = types.NormalizeClassCode(classCode)
	if m.journal == nil {
		return []*types.Activity{}, nil
	}
	// Read our own writes
	if err := m.Flush(ctx); err != nil && !errors.Is(err, ErrJournalClosed) {
		return nil, err
	}
	return m.journal.ListActivity(ctx, classCode)
}

// record queues a journal entry. It never blocks; failures are logged.
func (m *Manager) record(classCode, kind, actorID, detail string) {
	if m.writer == nil {
		return
	}

	m.writer.enqueue(&types.Activity{
		ClassCode: classCode,
		Kind:      kind,
		ActorID:   actorID,
		Detail:    detail,
	})
}

// summarize keeps journal details short
func summarize(text string) string {
	const maxDetail = 200
	runes := []rune(text)
	if len(runes) <= maxDetail {
		return text
	}
	return string(runes[:maxDetail]) + "..."
}
