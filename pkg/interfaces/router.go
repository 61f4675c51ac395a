package interfaces

import (
	"context"

	"classcast/pkg/types"
)

// EventRouter turns client events into state changes and fan-out
type EventRouter interface {
	// RouteEvent handles one event received on conn
	RouteEvent(ctx context.Context, conn Connection, event *types.Event) error
}

// Broadcaster delivers server events to the viewers of a class
type Broadcaster interface {
	// Broadcast sends event to every bound connection in scope for classCode
	// and returns the number of connections it was queued to
	Broadcast(classCode string, event *types.Event) int
}
