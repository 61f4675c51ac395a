package websocket

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"classcast/pkg/interfaces"
	"classcast/pkg/types"
)

// mockSubmitter collects submitted events
type mockSubmitter struct {
	mu     sync.Mutex
	events []*types.Event
	conns  []interfaces.Connection
	got    chan struct{}
}

func newMockSubmitter() *mockSubmitter {
	return &mockSubmitter{got: make(chan struct{}, 100)}
}

func (m *mockSubmitter) SubmitEvent(conn interfaces.Connection, event *types.Event) error {
	m.mu.Lock()
	m.events = append(m.events, event)
	m.conns = append(m.conns, conn)
	m.mu.Unlock()
	m.got <- struct{}{}
	return nil
}

func (m *mockSubmitter) wait(t *testing.T) {
	t.Helper()
	select {
	case <-m.got:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for submitted event")
	}
}

func (m *mockSubmitter) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.events)
}

func startHandlerServer(t *testing.T, settings Settings) (*Registry, *mockSubmitter, string) {
	t.Helper()
	registry := NewRegistry(ScopeClass)
	submitter := newMockSubmitter()
	handler := NewHandler(registry, submitter, settings)

	server := httptest.NewServer(http.HandlerFunc(handler.HandleWebSocket))
	t.Cleanup(server.Close)

	return registry, submitter, "ws" + strings.TrimPrefix(server.URL, "http")
}

func dial(t *testing.T, url string) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial failed: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}

// FUNCTIONAL VALIDATION TEST: connections register unbound and forward decoded events
func TestHandler_ForwardsClientEvents(t *testing.T) {
	registry, submitter, url := startHandlerServer(t, Settings{})
	client := dial(t, url)

	waitFor(t, func() bool { return registry.GetStats()["total_connections"] == 1 })

	frame := `{"type":"student_text_update","data":{"studentId":"s1","classCode":"ABC123","text":"hello","seq":3}}`
	if err := client.WriteMessage(websocket.TextMessage, []byte(frame)); err != nil {
		t.Fatalf("write failed: %v", err)
	}
	submitter.wait(t)

	submitter.mu.Lock()
	event := submitter.events[0]
	conn := submitter.conns[0]
	submitter.mu.Unlock()

	if event.Type != types.EventStudentTextUpdate {
		t.Errorf("unexpected event type %s", event.Type)
	}
	var payload types.TextUpdatePayload
	if err := event.Decode(&payload); err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if payload.Text != "hello" || payload.Seq != 3 {
		t.Errorf("unexpected payload %+v", payload)
	}
	if conn.IsBound() {
		t.Error("connection should remain unbound until a join is processed")
	}
}

func TestHandler_DropsMalformedAndUnknownEvents(t *testing.T) {
	_, submitter, url := startHandlerServer(t, Settings{})
	client := dial(t, url)

	frames := []string{
		`not json`,
		`{"type":"delete_everything","data":{}}`,
		`{"type":"teacher_join","data":{"classCode":"ABC123"}}`,
	}
	for _, frame := range frames {
		if err := client.WriteMessage(websocket.TextMessage, []byte(frame)); err != nil {
			t.Fatalf("write failed: %v", err)
		}
	}

	submitter.wait(t)
	time.Sleep(50 * time.Millisecond)

	if got := submitter.count(); got != 1 {
		t.Errorf("expected only the valid event to be submitted, got %d", got)
	}
}

// FUNCTIONAL VALIDATION TEST: disconnect releases the connection only
func TestHandler_DisconnectUnregisters(t *testing.T) {
	registry, _, url := startHandlerServer(t, Settings{})
	client := dial(t, url)

	waitFor(t, func() bool { return registry.GetStats()["total_connections"] == 1 })

	_ = client.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	_ = client.Close()

	waitFor(t, func() bool { return registry.GetStats()["total_connections"] == 0 })
}

func TestHandler_DisconnectHooks(t *testing.T) {
	registry := NewRegistry(ScopeClass)
	handler := NewHandler(registry, newMockSubmitter(), Settings{})

	released := make(chan string, 1)
	handler.OnDisconnect(func(connID string) { released <- connID })

	server := httptest.NewServer(http.HandlerFunc(handler.HandleWebSocket))
	t.Cleanup(server.Close)

	client := dial(t, "ws"+strings.TrimPrefix(server.URL, "http"))
	waitFor(t, func() bool { return registry.GetStats()["total_connections"] == 1 })

	var connID string
	registry.mu.RLock()
	for id := range registry.connections {
		connID = id
	}
	registry.mu.RUnlock()
	_ = client.Close()

	select {
	case got := <-released:
		if got != connID {
			t.Errorf("hook got conn %q, want %q", got, connID)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("disconnect hook never ran")
	}
}

// FUNCTIONAL VALIDATION TEST: a text at the size cap survives JSON escaping on the wire
func TestHandler_AcceptsEscapedTextAtCap(t *testing.T) {
	_, submitter, url := startHandlerServer(t, Settings{})
	client := dial(t, url)

	// Every control byte escapes to six bytes in JSON
	text := strings.Repeat("\x01", types.MaxTextBytes)
	event, err := types.NewEvent(types.EventStudentTextUpdate, types.TextUpdatePayload{
		StudentID: "s1",
		ClassCode: "ABC123",
		Text:      text,
		Seq:       1,
	})
	if err != nil {
		t.Fatalf("NewEvent failed: %v", err)
	}
	if err := client.WriteJSON(event); err != nil {
		t.Fatalf("write failed: %v", err)
	}
	submitter.wait(t)

	submitter.mu.Lock()
	got := submitter.events[0]
	submitter.mu.Unlock()

	var payload types.TextUpdatePayload
	if err := got.Decode(&payload); err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if len(payload.Text) != types.MaxTextBytes {
		t.Errorf("text length = %d, want %d", len(payload.Text), types.MaxTextBytes)
	}
}

func TestHandler_ServerEventsReachClient(t *testing.T) {
	registry, submitter, url := startHandlerServer(t, Settings{})
	client := dial(t, url)

	_ = client.WriteMessage(websocket.TextMessage, []byte(`{"type":"teacher_join","data":{"classCode":"ABC123"}}`))
	submitter.wait(t)

	submitter.mu.Lock()
	conn := submitter.conns[0]
	submitter.mu.Unlock()

	if err := conn.Bind("", types.RoleTeacher, "ABC123"); err != nil {
		t.Fatalf("bind failed: %v", err)
	}
	if err := registry.Subscribe(conn, "ABC123"); err != nil {
		t.Fatalf("subscribe failed: %v", err)
	}

	event, _ := types.NewEvent(types.EventProblemStatementUpdated, map[string]string{"problemStatement": "Sum a list"})
	if registry.Broadcast("ABC123", event) != 1 {
		t.Fatal("expected broadcast to reach the client connection")
	}

	_ = client.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := client.ReadMessage()
	if err != nil {
		t.Fatalf("read failed: %v", err)
	}
	if !strings.Contains(string(data), "problem_statement_updated") {
		t.Errorf("unexpected frame %s", data)
	}
}

func TestHandler_OriginCheck(t *testing.T) {
	_, _, url := startHandlerServer(t, Settings{AllowedOrigins: []string{"https://class.example.org"}})

	header := http.Header{}
	header.Set("Origin", "https://evil.example.com")
	if _, resp, err := websocket.DefaultDialer.Dial(url, header); err == nil {
		t.Error("expected disallowed origin to be rejected")
	} else if resp != nil && resp.StatusCode != http.StatusForbidden {
		t.Errorf("expected 403, got %d", resp.StatusCode)
	}

	header.Set("Origin", "https://class.example.org")
	conn, _, err := websocket.DefaultDialer.Dial(url, header)
	if err != nil {
		t.Fatalf("allowed origin rejected: %v", err)
	}
	_ = conn.Close()
}
