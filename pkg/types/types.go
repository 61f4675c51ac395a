package types

import (
	"encoding/json"
	"time"
)

// Connection roles asserted by a join event
const (
	RoleTeacher = "teacher"
	RoleStudent = "student"
)

// StudentStatus is the coarse progress flag a student (or teacher) sets on a roster entry
type StudentStatus string

const (
	StatusWorking StudentStatus = "working"
	StatusDone    StudentStatus = "done"
	StatusError   StudentStatus = "error"
)

// Client -> server event names
const (
	EventStudentTextUpdate   = "student_text_update"
	EventTeacherJoin         = "teacher_join"
	EventStudentJoin         = "student_join"
	EventProblemUpdated      = "problem_updated"
	EventStudentStatusUpdate = "student_status_update"
)

// Server -> client event names
const (
	EventTextUpdated             = "text_updated"
	EventAllStudentsData         = "all_students_data"
	EventStudentCurrentText      = "student_current_text"
	EventProblemStatementUpdated = "problem_statement_updated"
	EventStudentStatusChanged    = "student_status_changed"
	EventJoinRejected            = "join_rejected"
	EventClassEnded              = "class_ended"
)

// Activity kinds written to the journal
const (
	ActivityClassCreated      = "class_created"
	ActivityStudentJoined     = "student_joined"
	ActivityStatusChanged     = "status_changed"
	ActivityProblemUpdated    = "problem_updated"
	ActivityClassEnded        = "class_ended"
	ActivityClassExpired      = "class_expired"
	ActivityAnalysisRequested = "analysis_requested"
)

// ClassroomSession is one teacher-owned class keyed by its class code.
// Students keeps join order; the Store never reorders it.
type ClassroomSession struct {
	ClassCode        string           `json:"classCode"`
	TeacherID        string           `json:"teacherId"`
	Students         []*StudentRecord `json:"students"`
	CreatedAt        time.Time        `json:"createdAt"`
	Active           bool             `json:"active"`
	ProblemStatement *string          `json:"problemStatement"`
	LastActivity     time.Time        `json:"-"`
}

// StudentRecord is a roster entry. ClassCode is a back-reference only.
type StudentRecord struct {
	ID        string        `json:"id"`
	Name      string        `json:"name"`
	JoinTime  time.Time     `json:"joinTime"`
	ClassCode string        `json:"classCode"`
	Status    StudentStatus `json:"status"`
}

// RosterEntry is a StudentRecord joined with the student's live text
type RosterEntry struct {
	StudentRecord
	CurrentText string `json:"currentText"`
}

// Event is the envelope for every message on a realtime connection.
// Data is decoded lazily by the router once Type is known.
type Event struct {
	Type      string          `json:"type"`
	Data      json.RawMessage `json:"data,omitempty"`
	Timestamp time.Time       `json:"timestamp"`
}

// NewEvent marshals payload into a server -> client envelope
func NewEvent(eventType string, payload interface{}) (*Event, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, ErrInvalidPayload
	}
	return &Event{
		Type:      eventType,
		Data:      data,
		Timestamp: time.Now(),
	}, nil
}

// Decode unmarshals the event data into v
func (e *Event) Decode(v interface{}) error {
	if len(e.Data) == 0 {
		return ErrInvalidPayload
	}
	if err := json.Unmarshal(e.Data, v); err != nil {
		return ErrInvalidPayload
	}
	return nil
}

// TextUpdatePayload carries student_text_update. Seq is optional; zero means
// plain last-write-wins.
type TextUpdatePayload struct {
	StudentID string `json:"studentId"`
	ClassCode string `json:"classCode"`
	Text      string `json:"text"`
	Seq       uint64 `json:"seq,omitempty"`
}

// TeacherJoinPayload carries teacher_join
type TeacherJoinPayload struct {
	ClassCode string `json:"classCode"`
	TeacherID string `json:"teacherId,omitempty"`
}

// StudentJoinPayload carries student_join
type StudentJoinPayload struct {
	StudentID string `json:"studentId"`
	ClassCode string `json:"classCode"`
}

// ProblemUpdatePayload carries problem_updated and problem_statement_updated
type ProblemUpdatePayload struct {
	ClassCode        string `json:"classCode"`
	ProblemStatement string `json:"problemStatement"`
}

// StatusUpdatePayload carries student_status_update and student_status_changed
type StatusUpdatePayload struct {
	StudentID string        `json:"studentId"`
	ClassCode string        `json:"classCode"`
	Status    StudentStatus `json:"status"`
}

// TextUpdatedPayload is broadcast after a text write
type TextUpdatedPayload struct {
	StudentID string `json:"studentId"`
	ClassCode string `json:"classCode"`
	Text      string `json:"text"`
}

// TeacherSnapshot is the all_students_data payload
type TeacherSnapshot struct {
	ClassCode        string        `json:"classCode"`
	Students         []RosterEntry `json:"students"`
	ProblemStatement *string       `json:"problemStatement"`
	Active           bool          `json:"active"`
}

// StudentSnapshot is the student_current_text payload
type StudentSnapshot struct {
	StudentID        string        `json:"studentId"`
	ClassCode        string        `json:"classCode"`
	Text             string        `json:"text"`
	Status           StudentStatus `json:"status"`
	ProblemStatement *string       `json:"problemStatement"`
}

// JoinRejectedPayload tells a connection its join could not be resolved
type JoinRejectedPayload struct {
	Event  string `json:"event"`
	Reason string `json:"reason"`
}

// ClassEndedPayload is broadcast when a class is ended or reaped
type ClassEndedPayload struct {
	ClassCode string `json:"classCode"`
	Reason    string `json:"reason"`
}

// Activity is one journal entry
type Activity struct {
	ID        string    `json:"id"`
	ClassCode string    `json:"classCode"`
	Kind      string    `json:"kind"`
	ActorID   string    `json:"actorId"`
	Detail    string    `json:"detail"`
	CreatedAt time.Time `json:"createdAt"`
}
