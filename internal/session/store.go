package session

import (
	"fmt"
	"sync"
	"time"

	"classcast/internal/identity"
	"classcast/pkg/types"
)

// Store owns every classroom session, the global student index and the live
// text table. A single RWMutex covers each read-modify-write sequence, so
// "check code is free then insert" and "check teacher then write" are atomic.
// Store never performs I/O.
type Store struct {
	mu       sync.RWMutex
	sessions map[string]*types.ClassroomSession // classCode -> session
	students map[string]*types.StudentRecord    // studentID -> record (owned by the session roster)
	texts    map[string]string                  // studentID -> live text
	textSeq  map[string]uint64                  // studentID -> last applied sequence number
	now      func() time.Time
}

// NewStore creates an empty store
func NewStore() *Store {
	return &Store{
		sessions: make(map[string]*types.ClassroomSession),
		students: make(map[string]*types.StudentRecord),
		texts:    make(map[string]string),
		textSeq:  make(map[string]uint64),
		now:      time.Now,
	}
}

// CreateSession inserts an active session with an empty roster and returns its class code
func (s *Store) CreateSession(teacherID string) (string, error) {
	if !types.IsValidUserID(teacherID) {
		return "", ErrInvalidTeacherID
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	code := identity.NewClassCode(func(candidate string) bool {
		_, taken := s.sessions[candidate]
		return taken
	})

	now := s.now()
	s.sessions[code] = &types.ClassroomSession{
		ClassCode:    code,
		TeacherID:    teacherID,
		Students:     make([]*types.StudentRecord, 0),
		CreatedAt:    now,
		Active:       true,
		LastActivity: now,
	}

	return code, nil
}

// AddStudent appends a student to an active class. A rejected call leaves the store untouched.
func (s *Store) AddStudent(classCode, name string) (types.StudentRecord, error) {
	if err := types.ValidateName(name); err != nil {
		return types.StudentRecord{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	session, exists := s.sessions[classCode]
	if !exists {
		return types.StudentRecord{}, ErrClassNotFound
	}
	if !session.Active {
		return types.StudentRecord{}, ErrClassInactive
	}

	if name == "" {
		name = fmt.Sprintf("Student %d", len(session.Students)+1)
	}

	now := s.now()
	record := &types.StudentRecord{
		ID:        identity.NewStudentID(),
		Name:      name,
		JoinTime:  now,
		ClassCode: classCode,
		Status:    types.StatusWorking,
	}

	session.Students = append(session.Students, record)
	session.LastActivity = now
	s.students[record.ID] = record
	s.texts[record.ID] = ""

	return *record, nil
}

// SetProblemStatement overwrites the problem statement when teacherID owns the class
func (s *Store) SetProblemStatement(classCode, teacherID, text string) error {
	if err := types.ValidateText(text); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	session, exists := s.sessions[classCode]
	if !exists {
		return ErrClassNotFound
	}
	if session.TeacherID != teacherID {
		return ErrUnauthorized
	}

	s.setProblemLocked(session, text)
	return nil
}

// OverwriteProblemStatement writes the problem statement without an ownership check.
// The realtime problem_updated event uses it.
func (s *Store) OverwriteProblemStatement(classCode, text string) error {
	if err := types.ValidateText(text); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	session, exists := s.sessions[classCode]
	if !exists {
		return ErrClassNotFound
	}

	s.setProblemLocked(session, text)
	return nil
}

func (s *Store) setProblemLocked(session *types.ClassroomSession, text string) {
	statement := text
	session.ProblemStatement = &statement
	session.LastActivity = s.now()
}

// GetProblemStatement returns the problem statement (nil when never set)
func (s *Store) GetProblemStatement(classCode string) (*string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	session, exists := s.sessions[classCode]
	if !exists {
		return nil, ErrClassNotFound
	}
	return copyString(session.ProblemStatement), nil
}

// SetStudentStatus overwrites a student's status. Roster order is unaffected.
// An unknown class or student is reported before an invalid status.
func (s *Store) SetStudentStatus(classCode, studentID string, status types.StudentStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	session, record, err := s.resolveLocked(classCode, studentID)
	if err != nil {
		return err
	}
	if !types.IsValidStatus(status) {
		return types.ErrInvalidStatus
	}

	record.Status = status
	session.LastActivity = s.now()
	return nil
}

// GetRoster returns the roster with live text in join order
func (s *Store) GetRoster(classCode string) ([]types.RosterEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	session, exists := s.sessions[classCode]
	if !exists {
		return nil, ErrClassNotFound
	}

	return s.rosterLocked(session), nil
}

func (s *Store) rosterLocked(session *types.ClassroomSession) []types.RosterEntry {
	roster := make([]types.RosterEntry, len(session.Students))
	for i, record := range session.Students {
		roster[i] = types.RosterEntry{
			StudentRecord: *record,
			CurrentText:   s.texts[record.ID],
		}
	}
	return roster
}

// Snapshot returns roster, problem statement and active flag under one read lock
func (s *Store) Snapshot(classCode string) (*types.TeacherSnapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	session, exists := s.sessions[classCode]
	if !exists {
		return nil, ErrClassNotFound
	}

	return &types.TeacherSnapshot{
		ClassCode:        classCode,
		Students:         s.rosterLocked(session),
		ProblemStatement: copyString(session.ProblemStatement),
		Active:           session.Active,
	}, nil
}

// StudentSnapshot returns one student's text and status together with the class problem statement
func (s *Store) StudentSnapshot(classCode, studentID string) (*types.StudentSnapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	session, record, err := s.resolveLocked(classCode, studentID)
	if err != nil {
		return nil, err
	}

	return &types.StudentSnapshot{
		StudentID:        record.ID,
		ClassCode:        classCode,
		Text:             s.texts[record.ID],
		Status:           record.Status,
		ProblemStatement: copyString(session.ProblemStatement),
	}, nil
}

// GetText returns a student's live text
func (s *Store) GetText(studentID string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	text, exists := s.texts[studentID]
	return text, exists
}

// SetText overwrites a student's live text. Last write wins.
func (s *Store) SetText(studentID, text string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.texts[studentID]; !exists {
		return false
	}
	s.writeTextLocked(studentID, text)
	return true
}

// UpdateText writes text for a student that must belong to classCode.
// A non-zero seq not greater than the last applied one is rejected with ErrStaleUpdate.
func (s *Store) UpdateText(classCode, studentID, text string, seq uint64) error {
	if err := types.ValidateText(text); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, _, err := s.resolveLocked(classCode, studentID); err != nil {
		return err
	}

	if seq > 0 {
		if seq <= s.textSeq[studentID] {
			return ErrStaleUpdate
		}
		s.textSeq[studentID] = seq
	}

	s.writeTextLocked(studentID, text)
	return nil
}

func (s *Store) writeTextLocked(studentID, text string) {
	s.texts[studentID] = text
	if record, ok := s.students[studentID]; ok {
		if session, ok := s.sessions[record.ClassCode]; ok {
			session.LastActivity = s.now()
		}
	}
}

func (s *Store) resolveLocked(classCode, studentID string) (*types.ClassroomSession, *types.StudentRecord, error) {
	session, exists := s.sessions[classCode]
	if !exists {
		return nil, nil, ErrClassNotFound
	}
	record, exists := s.students[studentID]
	if !exists || record.ClassCode != classCode {
		return nil, nil, ErrStudentNotFound
	}
	return session, record, nil
}

// GetSession returns a copy of the session
func (s *Store) GetSession(classCode string) (*types.ClassroomSession, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	session, exists := s.sessions[classCode]
	if !exists {
		return nil, ErrClassNotFound
	}
	return cloneSession(session), nil
}

// IsActive reports whether classCode exists and still accepts students
func (s *Store) IsActive(classCode string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	session, exists := s.sessions[classCode]
	return exists && session.Active
}

// VerifyTeacher checks that teacherID owns classCode
func (s *Store) VerifyTeacher(classCode, teacherID string) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	session, exists := s.sessions[classCode]
	if !exists {
		return ErrClassNotFound
	}
	if session.TeacherID != teacherID {
		return ErrUnauthorized
	}
	return nil
}

// EndSession marks a class inactive. Existing students keep their records and text.
func (s *Store) EndSession(classCode, teacherID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	session, exists := s.sessions[classCode]
	if !exists {
		return ErrClassNotFound
	}
	if session.TeacherID != teacherID {
		return ErrUnauthorized
	}
	if !session.Active {
		return ErrClassAlreadyEnded
	}

	session.Active = false
	session.LastActivity = s.now()
	return nil
}

// ReapIdle evicts classes idle for longer than ttl along with their students'
// live text and returns the evicted class codes
func (s *Store) ReapIdle(ttl time.Duration) []string {
	if ttl <= 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	cutoff := s.now().Add(-ttl)
	var evicted []string

	for code, session := range s.sessions {
		if session.LastActivity.After(cutoff) {
			continue
		}
		for _, record := range session.Students {
			delete(s.students, record.ID)
			delete(s.texts, record.ID)
			delete(s.textSeq, record.ID)
		}
		delete(s.sessions, code)
		evicted = append(evicted, code)
	}

	return evicted
}

// GetStats returns store statistics
func (s *Store) GetStats() map[string]int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	active := 0
	for _, session := range s.sessions {
		if session.Active {
			active++
		}
	}

	return map[string]int{
		"classes":        len(s.sessions),
		"active_classes": active,
		"students":       len(s.students),
	}
}

func cloneSession(session *types.ClassroomSession) *types.ClassroomSession {
	clone := *session
	clone.ProblemStatement = copyString(session.ProblemStatement)
	clone.Students = make([]*types.StudentRecord, len(session.Students))
	for i, record := range session.Students {
		r := *record
		clone.Students[i] = &r
	}
	return &clone
}

func copyString(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}
