package router

import (
	"context"
	"errors"
	"fmt"
	"log"

	"classcast/pkg/interfaces"
	"classcast/pkg/types"
)

// Class-ended reasons
const (
	ReasonEnded   = "ended"
	ReasonExpired = "expired"
)

// Topics is the fan-out surface the router needs from the connection registry
type Topics interface {
	interfaces.Broadcaster
	Subscribe(conn interfaces.Connection, classCode string) error
	Unsubscribe(conn interfaces.Connection)
	DropClass(classCode string) []interfaces.Connection
}

// Router implements the EventRouter interface. Each event is handled
// independently: resolve identifiers, mutate through presence, then fan out.
type Router struct {
	presence    interfaces.PresenceManager
	topics      Topics
	rateLimiter *RateLimiter
}

// NewRouter creates an event router
func NewRouter(presence interfaces.PresenceManager, topics Topics, eventsPerMinute int) *Router {
	return &Router{
		presence:    presence,
		topics:      topics,
		rateLimiter: NewRateLimiter(eventsPerMinute),
	}
}

// RateLimiter exposes the per-connection limiter for maintenance
func (r *Router) RateLimiter() *RateLimiter {
	return r.rateLimiter
}

// RouteEvent handles one client event received on conn
func (r *Router) RouteEvent(ctx context.Context, conn interfaces.Connection, event *types.Event) error {
	if conn == nil {
		return ErrNilConnection
	}
	if event == nil || !types.IsClientEventType(event.Type) {
		return ErrUnknownEventType
	}

	if !r.rateLimiter.Allow(conn.ID()) {
		return ErrRateLimitExceeded
	}

	switch event.Type {
	case types.EventStudentTextUpdate:
		return r.handleTextUpdate(ctx, event)
	case types.EventTeacherJoin:
		return r.handleTeacherJoin(ctx, conn, event)
	case types.EventStudentJoin:
		return r.handleStudentJoin(ctx, conn, event)
	case types.EventProblemUpdated:
		return r.handleProblemUpdated(ctx, event)
	case types.EventStudentStatusUpdate:
		return r.handleStatusUpdate(ctx, event)
	default:
		return ErrUnknownEventType
	}
}

// handleTextUpdate writes live text and echoes it to the class
func (r *Router) handleTextUpdate(ctx context.Context, event *types.Event) error {
	var payload types.TextUpdatePayload
	if err := event.Decode(&payload); err != nil {
		return ErrMalformedPayload
	}
	classCode := types.NormalizeClassCode(payload.ClassCode)

	if err := r.presence.UpdateText(ctx, classCode, payload.StudentID, payload.Text, payload.Seq); err != nil {
		return fmt.Errorf("text update for %s: %w", payload.StudentID, err)
	}

	return r.broadcast(classCode, types.EventTextUpdated, types.TextUpdatedPayload{
		StudentID: payload.StudentID,
		ClassCode: classCode,
		Text:      payload.Text,
	})
}

// handleTeacherJoin binds a teacher view and sends the roster snapshot to it only
func (r *Router) handleTeacherJoin(ctx context.Context, conn interfaces.Connection, event *types.Event) error {
	var payload types.TeacherJoinPayload
	if err := event.Decode(&payload); err != nil {
		return r.rejectJoin(conn, event.Type, "malformed join payload")
	}
	classCode := types.NormalizeClassCode(payload.ClassCode)

	snapshot, err := r.presence.HydrateTeacher(ctx, classCode, payload.TeacherID)
	if err != nil {
		return r.rejectJoin(conn, event.Type, "unknown class code or teacher")
	}

	if err := r.bind(ctx, conn, payload.TeacherID, types.RoleTeacher, classCode); err != nil {
		return r.rejectJoin(conn, event.Type, err.Error())
	}

	return r.sendTo(conn, types.EventAllStudentsData, snapshot)
}

// handleStudentJoin binds a student view and sends its own text to it only
func (r *Router) handleStudentJoin(ctx context.Context, conn interfaces.Connection, event *types.Event) error {
	var payload types.StudentJoinPayload
	if err := event.Decode(&payload); err != nil {
		return r.rejectJoin(conn, event.Type, "malformed join payload")
	}
	classCode := types.NormalizeClassCode(payload.ClassCode)

	snapshot, err := r.presence.HydrateStudent(ctx, classCode, payload.StudentID)
	if err != nil {
		return r.rejectJoin(conn, event.Type, "unknown class code or student")
	}

	if err := r.bind(ctx, conn, payload.StudentID, types.RoleStudent, classCode); err != nil {
		return r.rejectJoin(conn, event.Type, err.Error())
	}

	return r.sendTo(conn, types.EventStudentCurrentText, snapshot)
}

// handleProblemUpdated overwrites the problem statement without an ownership check
func (r *Router) handleProblemUpdated(ctx context.Context, event *types.Event) error {
	var payload types.ProblemUpdatePayload
	if err := event.Decode(&payload); err != nil {
		return ErrMalformedPayload
	}
	classCode := types.NormalizeClassCode(payload.ClassCode)

	if err := r.presence.OverwriteProblem(ctx, classCode, payload.ProblemStatement); err != nil {
		return fmt.Errorf("problem update for %s: %w", classCode, err)
	}

	return r.AnnounceProblem(classCode, payload.ProblemStatement)
}

// handleStatusUpdate records a status change and fans it out
func (r *Router) handleStatusUpdate(ctx context.Context, event *types.Event) error {
	var payload types.StatusUpdatePayload
	if err := event.Decode(&payload); err != nil {
		return ErrMalformedPayload
	}
	classCode := types.NormalizeClassCode(payload.ClassCode)

	if err := r.presence.UpdateStatus(ctx, classCode, payload.StudentID, payload.Status); err != nil {
		return fmt.Errorf("status update for %s: %w", payload.StudentID, err)
	}

	return r.AnnounceStatus(classCode, payload.StudentID, payload.Status)
}

// AnnounceProblem broadcasts problem_statement_updated to a class
func (r *Router) AnnounceProblem(classCode, problemStatement string) error {
	return r.broadcast(classCode, types.EventProblemStatementUpdated, types.ProblemUpdatePayload{
		ClassCode:        classCode,
		ProblemStatement: problemStatement,
	})
}

// AnnounceStatus broadcasts student_status_changed to a class
func (r *Router) AnnounceStatus(classCode, studentID string, status types.StudentStatus) error {
	return r.broadcast(classCode, types.EventStudentStatusChanged, types.StatusUpdatePayload{
		StudentID: studentID,
		ClassCode: classCode,
		Status:    status,
	})
}

// AnnounceClassEnded tells a class it is over and drops its topic
func (r *Router) AnnounceClassEnded(classCode, reason string) error {
	err := r.broadcast(classCode, types.EventClassEnded, types.ClassEndedPayload{
		ClassCode: classCode,
		Reason:    reason,
	})

	dropped := r.topics.DropClass(classCode)
	log.Printf("Class topic closed: class=%s reason=%s connections=%d", classCode, reason, len(dropped))

	return err
}

// bind attaches conn to the class topic. The class is checked again after
// subscribing since the reaper deletes a class before dropping its topic.
func (r *Router) bind(ctx context.Context, conn interfaces.Connection, userID, role, classCode string) error {
	if err := conn.Bind(userID, role, classCode); err != nil {
		return err
	}
	if err := r.topics.Subscribe(conn, classCode); err != nil {
		return err
	}
	if _, err := r.presence.GetProblem(ctx, classCode); errors.Is(err, interfaces.ErrNotFound) {
		r.topics.Unsubscribe(conn)
		return ErrClassRemoved
	}
	log.Printf("Connection bound: conn=%s role=%s user=%s class=%s", conn.ID(), role, userID, classCode)
	return nil
}

// rejectJoin answers an unresolved join on the requesting connection only
func (r *Router) rejectJoin(conn interfaces.Connection, eventType, reason string) error {
	if err := r.sendTo(conn, types.EventJoinRejected, types.JoinRejectedPayload{
		Event:  eventType,
		Reason: reason,
	}); err != nil {
		log.Printf("Failed to send join rejection: conn=%s error=%v", conn.ID(), err)
	}
	return fmt.Errorf("%w: %s", interfaces.ErrJoinRejected, reason)
}

func (r *Router) sendTo(conn interfaces.Connection, eventType string, payload interface{}) error {
	event, err := types.NewEvent(eventType, payload)
	if err != nil {
		return err
	}
	return conn.WriteJSON(event)
}

func (r *Router) broadcast(classCode, eventType string, payload interface{}) error {
	event, err := types.NewEvent(eventType, payload)
	if err != nil {
		return err
	}
	r.topics.Broadcast(classCode, event)
	return nil
}

// IsJoinRejection reports whether err came from an unresolved join
func IsJoinRejection(err error) bool {
	return errors.Is(err, interfaces.ErrJoinRejected)
}
