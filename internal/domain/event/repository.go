package event

import (
	"context"
)

// Repository is the event store adapter contract. Implementations live
// in infrastructure/persistence.
type Repository interface {
	// PendingBatch returns up to limit PENDING rows, oldest first.
	PendingBatch(ctx context.Context, limit int) ([]*Event, error)

	// MarkProcessed transitions a row PENDING -> PROCESSED. It reports
	// whether this caller won the claim; false means another processor
	// already moved the row out of PENDING.
	MarkProcessed(ctx context.Context, id int64) (bool, error)

	// MarkFailed transitions a row PENDING -> FAILED with the same claim
	// semantics as MarkProcessed.
	MarkFailed(ctx context.Context, id int64) (bool, error)

	// Insert creates a new PENDING row. The bot itself only inserts rows
	// from the linking flow; everything else is written by the game plugin.
	Insert(ctx context.Context, e *Event) error
}
