package websocket

import (
	"fmt"
	"log"
	"sync"

	"classcast/pkg/interfaces"
	"classcast/pkg/types"
)

// Scope selects which bound connections receive a class broadcast
type Scope string

const (
	// ScopeClass delivers only to connections subscribed to the class
	ScopeClass Scope = "class"
	// ScopeGlobal delivers to every subscribed connection regardless of class
	ScopeGlobal Scope = "global"
)

// ParseScope validates a configured scope name
func ParseScope(name string) (Scope, error) {
	switch Scope(name) {
	case ScopeClass, ScopeGlobal:
		return Scope(name), nil
	case "":
		return ScopeClass, nil
	default:
		return "", fmt.Errorf("unknown broadcast scope %q", name)
	}
}

// Registry tracks live connections and their class topics.
// Every connection is registered on upgrade; a bound connection additionally
// subscribes to exactly one class topic.
type Registry struct {
	mu          sync.RWMutex
	scope       Scope
	connections map[string]interfaces.Connection            // connID -> Connection
	classes     map[string]map[string]interfaces.Connection // classCode -> connID -> Connection
	topicOf     map[string]string                           // connID -> classCode
}

// NewRegistry creates an empty registry
func NewRegistry(scope Scope) *Registry {
	if scope == "" {
		scope = ScopeClass
	}
	return &Registry{
		scope:       scope,
		connections: make(map[string]interfaces.Connection),
		classes:     make(map[string]map[string]interfaces.Connection),
		topicOf:     make(map[string]string),
	}
}

// Scope returns the configured broadcast scope
func (r *Registry) Scope() Scope {
	return r.scope
}

// Add registers an unbound connection
func (r *Registry) Add(conn interfaces.Connection) error {
	if conn == nil {
		return ErrNilConnection
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.connections[conn.ID()] = conn
	return nil
}

// Remove drops a connection and its topic subscription. Idempotent.
func (r *Registry) Remove(conn interfaces.Connection) {
	if conn == nil {
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	id := conn.ID()
	delete(r.connections, id)
	r.unsubscribeLocked(id)
}

// Subscribe adds a bound connection to its class topic
func (r *Registry) Subscribe(conn interfaces.Connection, classCode string) error {
	if conn == nil {
		return ErrNilConnection
	}
	if !conn.IsBound() {
		return ErrConnectionUnbound
	}
	if conn.GetClassCode() != classCode {
		return ErrClassMismatch
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	id := conn.ID()
	if _, exists := r.connections[id]; !exists {
		return ErrUnknownConnection
	}

	r.unsubscribeLocked(id)
	if r.classes[classCode] == nil {
		r.classes[classCode] = make(map[string]interfaces.Connection)
	}
	r.classes[classCode][id] = conn
	r.topicOf[id] = classCode

	return nil
}

// Unsubscribe removes conn from its class topic. The connection stays registered.
func (r *Registry) Unsubscribe(conn interfaces.Connection) {
	if conn == nil {
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.unsubscribeLocked(conn.ID())
}

func (r *Registry) unsubscribeLocked(id string) {
	classCode, subscribed := r.topicOf[id]
	if !subscribed {
		return
	}
	delete(r.topicOf, id)
	if topic, exists := r.classes[classCode]; exists {
		delete(topic, id)
		if len(topic) == 0 {
			delete(r.classes, classCode)
		}
	}
}

// Broadcast queues event to the connections in scope for classCode and
// returns how many accepted it. Failed sends are dropped.
func (r *Registry) Broadcast(classCode string, event *types.Event) int {
	if event == nil {
		return 0
	}

	targets := r.recipients(classCode)

	delivered := 0
	for _, conn := range targets {
		if err := conn.WriteJSON(event); err != nil {
			log.Printf("Broadcast dropped: conn=%s class=%s type=%s error=%v", conn.ID(), classCode, event.Type, err)
			continue
		}
		delivered++
	}

	return delivered
}

func (r *Registry) recipients(classCode string) []interfaces.Connection {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.scope == ScopeGlobal {
		targets := make([]interfaces.Connection, 0, len(r.topicOf))
		for _, topic := range r.classes {
			for _, conn := range topic {
				targets = append(targets, conn)
			}
		}
		return targets
	}

	topic := r.classes[classCode]
	targets := make([]interfaces.Connection, 0, len(topic))
	for _, conn := range topic {
		targets = append(targets, conn)
	}
	return targets
}

// ClassConnections returns the connections subscribed to classCode
func (r *Registry) ClassConnections(classCode string) []interfaces.Connection {
	r.mu.RLock()
	defer r.mu.RUnlock()

	connections := make([]interfaces.Connection, 0, len(r.classes[classCode]))
	for _, conn := range r.classes[classCode] {
		connections = append(connections, conn)
	}
	return connections
}

// DropClass removes the class topic and returns its former subscribers.
// The connections stay registered but receive nothing further for that class.
func (r *Registry) DropClass(classCode string) []interfaces.Connection {
	r.mu.Lock()
	defer r.mu.Unlock()

	topic := r.classes[classCode]
	dropped := make([]interfaces.Connection, 0, len(topic))
	for id, conn := range topic {
		delete(r.topicOf, id)
		dropped = append(dropped, conn)
	}
	delete(r.classes, classCode)

	return dropped
}

// GetConnection returns a registered connection by id
func (r *Registry) GetConnection(id string) (interfaces.Connection, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	conn, exists := r.connections[id]
	return conn, exists
}

// CloseAll closes every registered connection
func (r *Registry) CloseAll() {
	r.mu.RLock()
	connections := make([]interfaces.Connection, 0, len(r.connections))
	for _, conn := range r.connections {
		connections = append(connections, conn)
	}
	r.mu.RUnlock()

	for _, conn := range connections {
		if err := conn.Close(); err != nil {
			log.Printf("Failed to close connection %s: %v", conn.ID(), err)
		}
	}
}

// GetStats returns registry statistics
func (r *Registry) GetStats() map[string]int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return map[string]int{
		"total_connections": len(r.connections),
		"bound_connections": len(r.topicOf),
		"active_classes":    len(r.classes),
	}
}
