package integration

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"classcast/internal/analysis"
	"classcast/internal/api"
	"classcast/internal/database"
	"classcast/internal/hub"
	"classcast/internal/presence"
	"classcast/internal/router"
	"classcast/internal/session"
	ws "classcast/internal/websocket"
	dbconfig "classcast/pkg/database"
	"classcast/pkg/interfaces"
	"classcast/pkg/types"
)

// stack is the full service wired the way the application wires it, served
// from an httptest server
type stack struct {
	server   *httptest.Server
	store    *session.Store
	registry *ws.Registry
	router   *router.Router
	journal  *database.Manager
	presence *presence.Manager
}

func newStack(t *testing.T, scope ws.Scope, dbPath string) *stack {
	t.Helper()

	if dbPath == "" {
		dbPath = filepath.Join(t.TempDir(), "journal.db")
	}

	journal, err := database.NewManager(&dbconfig.Config{
		DatabasePath:    dbPath,
		MaxConnections:  10,
		ConnMaxLifetime: time.Hour,
		ConnMaxIdleTime: 10 * time.Minute,
	})
	if err != nil {
		t.Fatalf("Failed to create journal: %v", err)
	}

	store := session.NewStore()
	presenceManager := presence.NewManager(store, journal)
	registry := ws.NewRegistry(scope)
	eventRouter := router.NewRouter(presenceManager, registry, router.DefaultEventsPerMinute)
	eventHub := hub.NewHub(eventRouter)

	ctx, cancel := context.WithCancel(context.Background())
	if err := eventHub.Start(ctx); err != nil {
		t.Fatalf("Failed to start hub: %v", err)
	}

	handler := ws.NewHandler(registry, eventHub, ws.DefaultSettings())
	handler.OnDisconnect(eventRouter.RateLimiter().Forget)
	apiServer := api.NewServer(api.Dependencies{
		Presence:  presenceManager,
		Announcer: eventRouter,
		Analyzer:  analysis.NewGateway("http://127.0.0.1:0", "", time.Second),
		Journal:   journal,
		Registry:  registry,
		Store:     store,
		WebSocket: http.HandlerFunc(handler.HandleWebSocket),
	})

	server := httptest.NewServer(apiServer)

	t.Cleanup(func() {
		registry.CloseAll()
		server.Close()
		_ = eventHub.Stop()
		cancel()
		presenceManager.Close()
		if err := journal.Close(); err != nil {
			t.Logf("Failed to close journal: %v", err)
		}
	})

	return &stack{server: server, store: store, registry: registry, router: eventRouter, journal: journal, presence: presenceManager}
}

func (s *stack) post(t *testing.T, path, body string, out interface{}) int {
	t.Helper()

	resp, err := http.Post(s.server.URL+path, "application/json", bytes.NewReader([]byte(body)))
	if err != nil {
		t.Fatalf("POST %s failed: %v", path, err)
	}
	defer resp.Body.Close()

	if out != nil && resp.StatusCode == http.StatusOK {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			t.Fatalf("Failed to decode %s: %v", path, err)
		}
	}
	return resp.StatusCode
}

func (s *stack) createClass(t *testing.T) interfaces.TeacherCreated {
	t.Helper()

	var created interfaces.TeacherCreated
	if code := s.post(t, "/create-teacher", "", &created); code != http.StatusOK {
		t.Fatalf("create-teacher status = %d", code)
	}
	return created
}

func (s *stack) addStudent(t *testing.T, classCode, name string) string {
	t.Helper()

	var created interfaces.StudentCreated
	body := fmt.Sprintf(`{"name":%q,"classCode":%q}`, name, classCode)
	if code := s.post(t, "/create-student", body, &created); code != http.StatusOK {
		t.Fatalf("create-student status = %d", code)
	}
	return created.StudentID
}

// client is one browser tab
type client struct {
	t    *testing.T
	conn *websocket.Conn
}

func (s *stack) connect(t *testing.T) *client {
	t.Helper()

	url := "ws" + strings.TrimPrefix(s.server.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("Failed to dial: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })
	return &client{t: t, conn: conn}
}

func (c *client) send(eventType string, payload interface{}) {
	c.t.Helper()

	event, err := types.NewEvent(eventType, payload)
	if err != nil {
		c.t.Fatalf("Failed to build event: %v", err)
	}
	if err := c.conn.WriteJSON(event); err != nil {
		c.t.Fatalf("Failed to send %s: %v", eventType, err)
	}
}

// expect reads until an event of eventType arrives, failing after a deadline
func (c *client) expect(eventType string) *types.Event {
	c.t.Helper()

	deadline := time.Now().Add(3 * time.Second)
	for {
		_ = c.conn.SetReadDeadline(deadline)
		var event types.Event
		if err := c.conn.ReadJSON(&event); err != nil {
			c.t.Fatalf("Waiting for %s: %v", eventType, err)
		}
		if event.Type == eventType {
			return &event
		}
	}
}

// silent asserts no event of eventType arrives within wait
func (c *client) silent(eventType string, wait time.Duration) {
	c.t.Helper()

	deadline := time.Now().Add(wait)
	for {
		_ = c.conn.SetReadDeadline(deadline)
		var event types.Event
		if err := c.conn.ReadJSON(&event); err != nil {
			return
		}
		if event.Type == eventType {
			c.t.Fatalf("Unexpected %s: %s", eventType, string(event.Data))
		}
	}
}

func (c *client) joinTeacher(classCode, teacherID string) *types.TeacherSnapshot {
	c.t.Helper()

	c.send(types.EventTeacherJoin, types.TeacherJoinPayload{ClassCode: classCode, TeacherID: teacherID})
	var snapshot types.TeacherSnapshot
	if err := c.expect(types.EventAllStudentsData).Decode(&snapshot); err != nil {
		c.t.Fatalf("Failed to decode snapshot: %v", err)
	}
	return &snapshot
}

func (c *client) joinStudent(classCode, studentID string) *types.StudentSnapshot {
	c.t.Helper()

	c.send(types.EventStudentJoin, types.StudentJoinPayload{ClassCode: classCode, StudentID: studentID})
	var snapshot types.StudentSnapshot
	if err := c.expect(types.EventStudentCurrentText).Decode(&snapshot); err != nil {
		c.t.Fatalf("Failed to decode student snapshot: %v", err)
	}
	return &snapshot
}
