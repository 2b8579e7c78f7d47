// Package identity contains the account-link domain model: the bijective
// mapping between a Minecraft identity (UUID) and a Discord identity.
package identity

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

var (
	// ErrLinkNotFound is returned when no link row exists for an identity.
	ErrLinkNotFound = errors.New("identity: link not found")

	// ErrAlreadyLinked is returned when either side of a proposed link
	// already participates in a link row.
	ErrAlreadyLinked = errors.New("identity: already linked")

	// ErrInvalidUUID is returned for malformed Minecraft UUIDs.
	ErrInvalidUUID = errors.New("identity: invalid minecraft uuid")
)

// Link is one row of the discord_links table. At most one row exists per
// Minecraft UUID and per Discord id.
type Link struct {
	MinecraftUUID     string
	DiscordID         string
	MinecraftUsername string
	LinkedAt          time.Time
}

// NewLink validates identities and builds a Link.
func NewLink(minecraftUUID, discordID, minecraftUsername string) (*Link, error) {
	if _, err := uuid.Parse(minecraftUUID); err != nil {
		return nil, ErrInvalidUUID
	}
	if discordID == "" {
		return nil, errors.New("identity: discord id is empty")
	}

	return &Link{
		MinecraftUUID:     minecraftUUID,
		DiscordID:         discordID,
		MinecraftUsername: minecraftUsername,
		LinkedAt:          time.Now().UTC(),
	}, nil
}

// Repository persists identity links.
type Repository interface {
	// GetByMinecraftUUID returns the link for a game identity.
	// Returns ErrLinkNotFound when no row exists.
	GetByMinecraftUUID(ctx context.Context, minecraftUUID string) (*Link, error)

	// GetByDiscordID returns the link for a chat identity.
	// Returns ErrLinkNotFound when no row exists.
	GetByDiscordID(ctx context.Context, discordID string) (*Link, error)

	// Create inserts a link. Returns ErrAlreadyLinked when either identity
	// is already linked.
	Create(ctx context.Context, link *Link) error

	// Delete removes the link for a chat identity (explicit unlink).
	Delete(ctx context.Context, discordID string) error

	// All returns every link row, for full role sync.
	All(ctx context.Context) ([]*Link, error)
}

// Resolver is the read-only view used by event handlers.
type Resolver interface {
	GetByMinecraftUUID(ctx context.Context, minecraftUUID string) (*Link, error)
}
