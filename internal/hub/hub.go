package hub

import (
	"context"
	"log"
	"sync"
	"time"

	"classcast/pkg/interfaces"
	"classcast/pkg/types"
)

// eventBuffer absorbs classroom keystroke bursts
const eventBuffer = 1000

// Hub serializes client events from every connection through one goroutine
// and hands them to the router
type Hub struct {
	eventChannel    chan *EventContext
	shutdownChannel chan struct{}

	router interfaces.EventRouter

	running bool
	mu      sync.RWMutex
}

// EventContext wraps an event with the connection it arrived on
type EventContext struct {
	Conn      interfaces.Connection
	Event     *types.Event
	Timestamp time.Time
}

// NewHub creates a new hub
func NewHub(router interfaces.EventRouter) *Hub {
	return &Hub{
		eventChannel:    make(chan *EventContext, eventBuffer),
		shutdownChannel: make(chan struct{}),
		router:          router,
	}
}

// Start begins hub processing
func (h *Hub) Start(ctx context.Context) error {
	h.mu.Lock()
	if h.running {
		h.mu.Unlock()
		return ErrHubAlreadyRunning
	}
	h.running = true
	h.mu.Unlock()

	log.Println("Starting event hub...")
	go h.run(ctx)

	return nil
}

// Stop shuts the hub down. Queued events are discarded.
func (h *Hub) Stop() error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if !h.running {
		return ErrHubNotRunning
	}
	h.running = false

	log.Println("Stopping event hub...")

	select {
	case <-h.shutdownChannel:
	default:
		close(h.shutdownChannel)
	}

	return nil
}

// IsRunning reports whether the hub is processing events
func (h *Hub) IsRunning() bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.running
}

// SubmitEvent queues an event for routing without blocking the reader
func (h *Hub) SubmitEvent(conn interfaces.Connection, event *types.Event) error {
	if conn == nil || event == nil {
		return ErrNilEvent
	}

	h.mu.RLock()
	if !h.running {
		h.mu.RUnlock()
		return ErrHubNotRunning
	}
	h.mu.RUnlock()

	eventCtx := &EventContext{
		Conn:      conn,
		Event:     event,
		Timestamp: time.Now(),
	}

	select {
	case h.eventChannel <- eventCtx:
		return nil
	default:
		return ErrEventChannelFull
	}
}

// run is the main hub processing loop
func (h *Hub) run(ctx context.Context) {
	defer log.Println("Hub processing stopped")

	for {
		select {
		case eventCtx := <-h.eventChannel:
			h.handleEvent(ctx, eventCtx)

		case <-h.shutdownChannel:
			log.Println("Hub shutdown requested")
			return

		case <-ctx.Done():
			log.Println("Hub context cancelled")
			h.mu.Lock()
			h.running = false
			h.mu.Unlock()
			return
		}
	}
}

// handleEvent routes one event. A failing or panicking event never stops the loop;
// errors on the realtime boundary are logged, not answered.
func (h *Hub) handleEvent(ctx context.Context, eventCtx *EventContext) {
	defer func() {
		if rec := recover(); rec != nil {
			log.Printf("Recovered from panic routing event: type=%s conn=%s panic=%v",
				eventCtx.Event.Type, eventCtx.Conn.ID(), rec)
		}
	}()

	if err := h.router.RouteEvent(ctx, eventCtx.Conn, eventCtx.Event); err != nil {
		log.Printf("Event dropped: type=%s conn=%s error=%v",
			eventCtx.Event.Type, eventCtx.Conn.ID(), err)
		return
	}

	if latency := time.Since(eventCtx.Timestamp); latency > time.Second {
		log.Printf("Slow event: type=%s conn=%s latency=%s", eventCtx.Event.Type, eventCtx.Conn.ID(), latency)
	}
}
