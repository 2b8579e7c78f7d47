package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/bridgemc/bridge-community-bot/internal/domain/event"
)

// EventRepository implements event.Repository over the
// pending_notifications table.
type EventRepository struct {
	conn *Connection
}

// NewEventRepository creates a new EventRepository.
func NewEventRepository(conn *Connection) *EventRepository {
	return &EventRepository{conn: conn}
}

// PendingBatch returns up to limit PENDING rows, oldest first.
func (r *EventRepository) PendingBatch(ctx context.Context, limit int) ([]*event.Event, error) {
	query := `
		SELECT id, discord_id, minecraft_uuid, notification_type, notification_data,
		       state, created_at, processed_at
		FROM pending_notifications
		WHERE state = $1
		ORDER BY created_at ASC
		LIMIT $2
	`

	rows, err := r.conn.Query(ctx, query, event.StatePending, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query pending events: %w", err)
	}
	defer rows.Close()

	var events []*event.Event
	for rows.Next() {
		var e event.Event
		var discordID, minecraftUUID *string
		var rawKind, state string
		var payload []byte

		err := rows.Scan(
			&e.ID,
			&discordID,
			&minecraftUUID,
			&rawKind,
			&payload,
			&state,
			&e.CreatedAt,
			&e.ProcessedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan event row: %w", err)
		}

		if discordID != nil {
			e.DiscordID = *discordID
		}
		if minecraftUUID != nil {
			e.MinecraftUUID = *minecraftUUID
		}
		e.RawKind = rawKind
		e.Kind, _ = event.ParseKind(rawKind)
		e.Payload = payload
		e.State = event.State(state)

		events = append(events, &e)
	}

	return events, rows.Err()
}

// MarkProcessed transitions a row PENDING -> PROCESSED. The WHERE clause
// on the current state makes the claim conditional: an affected-row count
// of zero means another processor won.
func (r *EventRepository) MarkProcessed(ctx context.Context, id int64) (bool, error) {
	return r.transition(ctx, id, event.StateProcessed)
}

// MarkFailed transitions a row PENDING -> FAILED with claim semantics.
func (r *EventRepository) MarkFailed(ctx context.Context, id int64) (bool, error) {
	return r.transition(ctx, id, event.StateFailed)
}

func (r *EventRepository) transition(ctx context.Context, id int64, to event.State) (bool, error) {
	query := `
		UPDATE pending_notifications
		SET state = $1, processed_at = $2
		WHERE id = $3 AND state = $4
	`

	tag, err := r.conn.Exec(ctx, query, to, time.Now().UTC(), id, event.StatePending)
	if err != nil {
		return false, fmt.Errorf("failed to transition event %d to %s: %w", id, to, err)
	}

	return tag.RowsAffected() == 1, nil
}

// Insert creates a new PENDING row.
func (r *EventRepository) Insert(ctx context.Context, e *event.Event) error {
	query := `
		INSERT INTO pending_notifications
			(discord_id, minecraft_uuid, notification_type, notification_data, state, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id
	`

	payload := e.Payload
	if len(payload) == 0 {
		payload = []byte("{}")
	}

	createdAt := e.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	err := r.conn.QueryRow(ctx, query,
		nullable(e.DiscordID),
		nullable(e.MinecraftUUID),
		string(e.Kind),
		payload,
		event.StatePending,
		createdAt,
	).Scan(&e.ID)
	if err != nil {
		return fmt.Errorf("failed to insert event: %w", err)
	}

	e.State = event.StatePending
	e.CreatedAt = createdAt
	return nil
}

// nullable maps an empty string to SQL NULL.
func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
