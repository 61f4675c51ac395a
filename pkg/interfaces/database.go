package interfaces

import (
	"context"

	"classcast/pkg/types"
)

// ActivityJournal persists the classroom audit trail
type ActivityJournal interface {
	// RecordActivity appends one entry
	RecordActivity(ctx context.Context, activity *types.Activity) error

	// ListActivity returns a class's entries oldest first
	ListActivity(ctx context.Context, classCode string) ([]*types.Activity, error)

	// HealthCheck verifies the journal is reachable
	HealthCheck(ctx context.Context) error

	// Close flushes pending writes and releases the database
	Close() error
}
