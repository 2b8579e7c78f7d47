package tiertest

import (
	"context"
	"errors"
)

var (
	// ErrResultNotFound is returned when a result row does not exist.
	ErrResultNotFound = errors.New("tiertest: result not found")

	// ErrConfigNotFound is returned when a guild has no destination config.
	ErrConfigNotFound = errors.New("tiertest: destination config not found")

	// ErrRequestNotFound is returned when a ticket row does not exist.
	ErrRequestNotFound = errors.New("tiertest: request not found")
)

// ResultRepository persists tier test results and their delivery ledger.
type ResultRepository interface {
	// UnpublishedBatch returns up to limit unpublished results, oldest
	// completed first.
	UnpublishedBatch(ctx context.Context, limit int) ([]*Result, error)

	// MarkPublished sets published=true. Idempotent; a published row is
	// never selected by UnpublishedBatch again.
	MarkPublished(ctx context.Context, id int64) error

	// DeliveredChannels returns the set of channel ids a result has
	// already been posted to.
	DeliveredChannels(ctx context.Context, resultID int64) (map[string]bool, error)

	// RecordDelivery appends to the delivery ledger. Recording the same
	// (result, channel) pair twice is a no-op.
	RecordDelivery(ctx context.Context, d Delivery) error
}

// DestinationRepository persists per-guild leaderboard destinations.
type DestinationRepository interface {
	// All returns every configured guild.
	All(ctx context.Context) ([]DestinationConfig, error)

	// Get returns one guild's config. Returns ErrConfigNotFound when the
	// guild is not configured.
	Get(ctx context.Context, guildID string) (*DestinationConfig, error)

	// Upsert creates or replaces a guild's config.
	Upsert(ctx context.Context, cfg DestinationConfig) error
}

// RequestRepository persists tier-test tickets.
type RequestRepository interface {
	Create(ctx context.Context, req *Request) error

	// GetByChannel returns the ticket bound to a channel.
	// Returns ErrRequestNotFound when no ticket exists.
	GetByChannel(ctx context.Context, channelID string) (*Request, error)

	// OpenByDiscordID returns the user's ticket that is still pending or
	// in progress. Returns ErrRequestNotFound when none is open.
	OpenByDiscordID(ctx context.Context, discordID string) (*Request, error)

	// UpdateStatus moves a ticket through its lifecycle.
	UpdateStatus(ctx context.Context, id int64, status RequestStatus) error
}
