package websocket

import "errors"

// Connection-related errors
var (
	ErrConnectionClosed = errors.New("connection closed")
	ErrSendBufferFull   = errors.New("send buffer full, message dropped")
	ErrInvalidJSON      = errors.New("invalid JSON data")
	ErrAlreadyBound     = errors.New("connection is already bound")
	ErrInvalidBinding   = errors.New("invalid role binding")
)

// Registry-related errors
var (
	ErrNilConnection     = errors.New("connection cannot be nil")
	ErrConnectionUnbound = errors.New("connection must be bound before subscribing")
	ErrClassMismatch     = errors.New("connection is bound to a different class")
	ErrUnknownConnection = errors.New("connection is not registered")
)
