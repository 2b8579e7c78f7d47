// Package chat defines the capability set the bot consumes from the chat
// platform. Core logic only ever talks to the Gateway interface; the
// Discord REST implementation lives in infrastructure/external/discord.
// Every membership and role query goes through a call here - the core
// never reads a shared client-side cache - so the whole engine runs
// against an in-memory fake in tests.
package chat

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrMemberNotFound is returned when a user is not a member of a guild.
	// Absence is an expected state, not a failure.
	ErrMemberNotFound = errors.New("chat: member not found")

	// ErrChannelNotFound is returned when a channel lookup matches nothing.
	ErrChannelNotFound = errors.New("chat: channel not found")

	// ErrRoleNotFound is returned when a role lookup matches nothing.
	ErrRoleNotFound = errors.New("chat: role not found")

	// ErrInsufficientHierarchy is returned when the bot's highest role sits
	// at or below the role it tries to manage. Steady-state misconfiguration,
	// surfaced as a typed condition so callers can skip instead of fail.
	ErrInsufficientHierarchy = errors.New("chat: insufficient role hierarchy")

	// ErrForbidden is returned when the bot lacks a permission outright.
	ErrForbidden = errors.New("chat: forbidden")
)

// Permission is a Discord permission bit.
type Permission uint64

const (
	PermissionViewChannel     Permission = 1 << 10
	PermissionSendMessages    Permission = 1 << 11
	PermissionManageRoles     Permission = 1 << 28
	PermissionManageNicknames Permission = 1 << 27
)

// PermissionSet is a bitmask of permissions.
type PermissionSet uint64

// Has reports whether the set contains p.
func (s PermissionSet) Has(p Permission) bool {
	return uint64(s)&uint64(p) != 0
}

// Guild is a community the bot is a member of.
type Guild struct {
	ID      string
	Name    string
	OwnerID string
}

// Member is a user's membership in one guild.
type Member struct {
	UserID   string
	Username string
	Nickname string

	// RoleIDs are the roles the member currently holds.
	RoleIDs []string
}

// DisplayName returns the nickname when set, the username otherwise.
func (m *Member) DisplayName() string {
	if m.Nickname != "" {
		return m.Nickname
	}
	return m.Username
}

// HasRole reports whether the member holds the role.
func (m *Member) HasRole(roleID string) bool {
	for _, id := range m.RoleIDs {
		if id == roleID {
			return true
		}
	}
	return false
}

// Role is a guild role.
type Role struct {
	ID   string
	Name string

	// Position is the role's place in the guild hierarchy; higher wins.
	Position int
}

// Channel is a guild channel reference.
type Channel struct {
	ID      string
	GuildID string
	Name    string
}

// OverwriteType distinguishes permission overwrite targets.
type OverwriteType int

const (
	OverwriteRole OverwriteType = iota
	OverwriteMember
)

// PermissionOverwrite grants or denies permissions on a channel for one
// role or member.
type PermissionOverwrite struct {
	TargetID string
	Type     OverwriteType
	Allow    PermissionSet
	Deny     PermissionSet
}

// Embed is a formatted message card.
type Embed struct {
	Title       string
	Description string
	Color       int
	Author      *EmbedAuthor
	Thumbnail   string
	Fields      []EmbedField
	Footer      string
	Timestamp   time.Time
}

// EmbedAuthor is the author line of an embed.
type EmbedAuthor struct {
	Name    string
	IconURL string
}

// EmbedField is one field of an embed.
type EmbedField struct {
	Name   string
	Value  string
	Inline bool
}

// Gateway is the full capability set consumed from the chat platform.
type Gateway interface {
	// Guilds lists the communities the bot is in.
	Guilds(ctx context.Context) ([]Guild, error)

	// Guild returns one community.
	Guild(ctx context.Context, guildID string) (*Guild, error)

	// Member fetches a member by user id. Returns ErrMemberNotFound when
	// the user is not in the guild.
	Member(ctx context.Context, guildID, userID string) (*Member, error)

	// BotMember returns the bot's own membership in the guild.
	BotMember(ctx context.Context, guildID string) (*Member, error)

	// BotPermissions returns the bot's guild-level permissions.
	BotPermissions(ctx context.Context, guildID string) (PermissionSet, error)

	// Roles lists the guild's roles with hierarchy positions.
	Roles(ctx context.Context, guildID string) ([]Role, error)

	// AddRole grants a role. Returns ErrInsufficientHierarchy when the
	// role outranks the bot.
	AddRole(ctx context.Context, guildID, userID, roleID string) error

	// RemoveRole revokes a role, with the same hierarchy semantics.
	RemoveRole(ctx context.Context, guildID, userID, roleID string) error

	// SetNickname renames a member. Returns ErrForbidden or
	// ErrInsufficientHierarchy as applicable.
	SetNickname(ctx context.Context, guildID, userID, nickname string) error

	// FindChannel returns the first guild channel whose name matches any
	// of names, in order. Returns ErrChannelNotFound when none do.
	FindChannel(ctx context.Context, guildID string, names ...string) (*Channel, error)

	// SendEmbed posts an embed to a channel.
	SendEmbed(ctx context.Context, channelID string, embed Embed) error

	// SendMessage posts plain content with optional embeds.
	SendMessage(ctx context.Context, channelID, content string, embeds ...Embed) error

	// CreatePrivateChannel creates a text channel visible only to the
	// overwrite targets.
	CreatePrivateChannel(ctx context.Context, guildID, name string, overwrites []PermissionOverwrite) (*Channel, error)

	// DeleteChannel removes a channel. Deleting an already-gone channel
	// returns ErrChannelNotFound.
	DeleteChannel(ctx context.Context, channelID string) error
}
