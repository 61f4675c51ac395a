package websocket

import (
	"encoding/json"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"classcast/pkg/interfaces"
	"classcast/pkg/types"
)

// EventSubmitter accepts decoded client events for processing
type EventSubmitter interface {
	SubmitEvent(conn interfaces.Connection, event *types.Event) error
}

// Handler upgrades HTTP requests to realtime connections and pumps their events
type Handler struct {
	registry  *Registry
	submitter EventSubmitter
	settings  Settings
	upgrader  websocket.Upgrader

	onDisconnect []func(connID string)
}

// NewHandler creates a handler. Connections start Unbound; roles are asserted by join events.
func NewHandler(registry *Registry, submitter EventSubmitter, settings Settings) *Handler {
	settings = settings.withDefaults()
	h := &Handler{
		registry:  registry,
		submitter: submitter,
		settings:  settings,
	}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:   settings.ReadBufferSize,
		WriteBufferSize:  settings.WriteBufferSize,
		HandshakeTimeout: 10 * time.Second,
		CheckOrigin:      h.checkOrigin,
	}
	return h
}

// OnDisconnect registers fn to run after a connection is released. Register
// hooks before serving.
func (h *Handler) OnDisconnect(fn func(connID string)) {
	h.onDisconnect = append(h.onDisconnect, fn)
}

func (h *Handler) checkOrigin(r *http.Request) bool {
	if len(h.settings.AllowedOrigins) == 0 {
		return true
	}
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true // non-browser clients
	}
	for _, allowed := range h.settings.AllowedOrigins {
		if allowed == "*" || strings.EqualFold(allowed, origin) {
			return true
		}
	}
	return false
}

// HandleWebSocket upgrades the request and starts the read pump
func (h *Handler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("WebSocket upgrade failed: %v", err)
		return
	}

	wsConn := NewConnection(conn, h.settings)
	if err := h.registry.Add(wsConn); err != nil {
		log.Printf("Failed to register connection: %v", err)
		_ = wsConn.Close()
		return
	}

	log.Printf("Connection opened: conn=%s remote=%s", wsConn.ID(), r.RemoteAddr)
	go h.handleConnection(wsConn)
}

// handleConnection reads client events until the connection fails.
// Disconnect only releases the connection; classroom state is untouched.
func (h *Handler) handleConnection(conn *Connection) {
	defer func() {
		h.registry.Remove(conn)
		_ = conn.Close()
		for _, fn := range h.onDisconnect {
			fn(conn.ID())
		}
		log.Printf("Connection closed: conn=%s user=%s class=%s", conn.ID(), conn.GetUserID(), conn.GetClassCode())
	}()

	conn.conn.SetReadLimit(h.settings.MaxMessageBytes)
	if err := conn.conn.SetReadDeadline(time.Now().Add(h.settings.PongTimeout)); err != nil {
		log.Printf("Failed to set read deadline: %v", err)
		return
	}
	conn.conn.SetPongHandler(func(string) error {
		return conn.conn.SetReadDeadline(time.Now().Add(h.settings.PongTimeout))
	})

	for {
		messageType, data, err := conn.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Printf("WebSocket error: conn=%s error=%v", conn.ID(), err)
			}
			return
		}

		// Any inbound frame proves liveness
		_ = conn.conn.SetReadDeadline(time.Now().Add(h.settings.PongTimeout))

		if messageType != websocket.TextMessage {
			continue
		}

		var event types.Event
		if err := json.Unmarshal(data, &event); err != nil {
			log.Printf("Dropping malformed event: conn=%s error=%v", conn.ID(), err)
			continue
		}
		if !types.IsClientEventType(event.Type) {
			log.Printf("Dropping unknown event: conn=%s type=%q", conn.ID(), event.Type)
			continue
		}

		if err := h.submitter.SubmitEvent(conn, &event); err != nil {
			log.Printf("Failed to submit event: conn=%s type=%s error=%v", conn.ID(), event.Type, err)
		}
	}
}
