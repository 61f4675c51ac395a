package interfaces

// Connection represents a realtime client connection
type Connection interface {
	// WriteJSON queues a JSON message for the client (thread-safe)
	WriteJSON(v interface{}) error

	// Close closes the connection and releases its resources
	Close() error

	// ID returns the server-assigned connection identifier
	ID() string

	// GetUserID returns the teacher or student id asserted by the join event
	GetUserID() string

	// GetRole returns "teacher" or "student" once bound
	GetRole() string

	// GetClassCode returns the class this connection is bound to
	GetClassCode() string

	// IsBound reports whether a join event has bound the connection
	IsBound() bool

	// Bind records the role asserted by a successful join
	Bind(userID, role, classCode string) error
}
