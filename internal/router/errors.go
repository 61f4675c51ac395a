package router

import (
	"errors"
	"fmt"

	"classcast/pkg/interfaces"
)

// Router-specific error types
var (
	ErrUnknownEventType  = errors.New("unknown event type")
	ErrMalformedPayload  = fmt.Errorf("malformed event payload: %w", interfaces.ErrValidation)
	ErrRateLimitExceeded = errors.New("rate limit exceeded")
	ErrNilConnection     = errors.New("event has no connection")
	ErrClassRemoved      = fmt.Errorf("class removed during join: %w", interfaces.ErrNotFound)
)
