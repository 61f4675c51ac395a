package websocket

import (
	"context"
	"encoding/json"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"classcast/pkg/types"
)

// Connection implements the interfaces.Connection interface.
// Writes are serialized through a single writer goroutine.
type Connection struct {
	conn      *websocket.Conn
	id        string
	settings  Settings
	writeCh   chan []byte
	userID    string // set by a join event
	role      string
	classCode string
	bound     bool
	ctx       context.Context
	cancel    context.CancelFunc
	closeOnce sync.Once
	mu        sync.RWMutex // protects binding fields
}

// NewConnection wraps conn and starts its writer goroutine
func NewConnection(conn *websocket.Conn, settings Settings) *Connection {
	settings = settings.withDefaults()
	ctx, cancel := context.WithCancel(context.Background())
	c := &Connection{
		conn:     conn,
		id:       uuid.NewString(),
		settings: settings,
		writeCh:  make(chan []byte, settings.SendBuffer),
		ctx:      ctx,
		cancel:   cancel,
	}

	go c.writeLoop()

	return c
}

// writeLoop is the only goroutine writing data frames and pings
func (c *Connection) writeLoop() {
	ticker := time.NewTicker(c.settings.PingInterval)
	defer func() {
		ticker.Stop()
		_ = c.Close()
	}()

	for {
		select {
		case data := <-c.writeCh:
			if err := c.conn.SetWriteDeadline(time.Now().Add(c.settings.WriteTimeout)); err != nil {
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				log.Printf("Write failed: conn=%s error=%v", c.id, err)
				return
			}

		case <-ticker.C:
			if err := c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(c.settings.WriteTimeout)); err != nil {
				return
			}

		case <-c.ctx.Done():
			return
		}
	}
}

// WriteJSON queues v for delivery. Delivery is best effort: a full buffer drops the message.
func (c *Connection) WriteJSON(v interface{}) error {
	select {
	case <-c.ctx.Done():
		return ErrConnectionClosed
	default:
	}

	data, err := json.Marshal(v)
	if err != nil {
		return ErrInvalidJSON
	}

	select {
	case c.writeCh <- data:
		return nil
	case <-c.ctx.Done():
		return ErrConnectionClosed
	default:
		return ErrSendBufferFull
	}
}

// Close closes the connection once
func (c *Connection) Close() error {
	var err error
	c.closeOnce.Do(func() {
		c.cancel()
		if c.conn != nil {
			err = c.conn.Close()
		}
	})
	return err
}

// Done is closed when the connection shuts down
func (c *Connection) Done() <-chan struct{} {
	return c.ctx.Done()
}

// ID returns the server-assigned connection id
func (c *Connection) ID() string {
	return c.id
}

// Bind moves the connection from Unbound to Bound. Bound is terminal.
func (c *Connection) Bind(userID, role, classCode string) error {
	if role != types.RoleTeacher && role != types.RoleStudent {
		return ErrInvalidBinding
	}
	// teacher_join may omit the teacher id
	if classCode == "" || (role == types.RoleStudent && userID == "") {
		return ErrInvalidBinding
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.bound {
		if c.userID == userID && c.role == role && c.classCode == classCode {
			return nil // repeated join for the same identity
		}
		return ErrAlreadyBound
	}

	c.userID = userID
	c.role = role
	c.classCode = classCode
	c.bound = true

	return nil
}

func (c *Connection) IsBound() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.bound
}

func (c *Connection) GetUserID() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.userID
}

func (c *Connection) GetRole() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.role
}

func (c *Connection) GetClassCode() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.classCode
}
