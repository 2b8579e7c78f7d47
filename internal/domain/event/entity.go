// Package event contains the domain model for pending notification rows.
// Rows are written by the game server plugin into the shared database and
// consumed exactly once by the bot's dispatcher. A row never re-enters
// the pending state and is never deleted; the table doubles as an audit
// trail of everything the bot has reflected into Discord.
package event

import (
	"errors"
	"time"
)

var (
	// ErrEventNotFound is returned when an event row does not exist.
	ErrEventNotFound = errors.New("event: not found")

	// ErrUnknownKind is returned for event kinds the dispatcher has no handler for.
	ErrUnknownKind = errors.New("event: unknown kind")

	// ErrInvalidPayload is returned when the payload blob cannot be decoded
	// into the shape its kind requires.
	ErrInvalidPayload = errors.New("event: invalid payload")
)

// Kind identifies what happened on the game server.
type Kind string

const (
	// KindLink - a player finished linking their Minecraft account.
	KindLink Kind = "LINK"

	// KindGameResult - a regular match finished.
	KindGameResult Kind = "GAME_RESULT"

	// KindHighscore - a match finished with a new personal record.
	KindHighscore Kind = "HIGHSCORE"

	// KindRankUp - a player's victory rank increased.
	KindRankUp Kind = "RANK_UP"
)

// ParseKind normalizes raw column values. The game plugin has written
// both legacy lowercase values and the current uppercase ones, so both
// spellings map to the same kind. Unknown values yield the zero Kind
// with ok=false; Event.RawKind keeps the original spelling for logs,
// and the dispatcher drops zero-kind rows as explicit no-ops instead
// of failing them.
func ParseKind(raw string) (Kind, bool) {
	switch raw {
	case "LINK", "LINK_SUCCESS", "new_link":
		return KindLink, true
	case "GAME_RESULT", "game_result":
		return KindGameResult, true
	case "HIGHSCORE", "highscore":
		return KindHighscore, true
	case "RANK_UP", "rank_up":
		return KindRankUp, true
	default:
		return "", false
	}
}

// State is the processing state of an event row.
type State string

const (
	// StatePending - not yet picked up by the dispatcher.
	StatePending State = "PENDING"

	// StateProcessed - handled successfully (or dropped as an explicit no-op).
	StateProcessed State = "PROCESSED"

	// StateFailed - handling failed; terminal. An operator resets the row
	// to PENDING to requeue it, the bot never does.
	StateFailed State = "FAILED"
)

// IsTerminal reports whether the state permits no further transitions.
func (s State) IsTerminal() bool {
	return s == StateProcessed || s == StateFailed
}

// Event is one pending notification row.
type Event struct {
	ID int64

	// DiscordID is the target chat identity, when the writer knew it.
	DiscordID string

	// MinecraftUUID is the source game identity, when present.
	MinecraftUUID string

	Kind Kind

	// RawKind preserves the column value before normalization, for logs.
	RawKind string

	// Payload is the raw JSON blob; decoded once at dispatch time.
	Payload []byte

	State       State
	CreatedAt   time.Time
	ProcessedAt *time.Time
}
