// Package tiertest contains the tier-test domain model: completed skill
// test results written by the game server and the per-guild leaderboard
// destinations they are published to.
package tiertest

import (
	"strconv"
	"strings"
	"time"
)

// Label is a tier rank label such as "HT1" or "LT3". The informal
// hierarchy, high to low, is GT (god), HT (high), MT (mid), LT (low);
// LT is subdivided by a trailing number where LT1 is the floor.
type Label string

// normalized returns the label in canonical uppercase form.
func (l Label) normalized() string {
	return strings.ToUpper(strings.TrimSpace(string(l)))
}

// IsHigh reports whether the label is significant enough for the
// high-tier channel. GT, HT and MT labels always are; an LT label is
// only when its number is above 1. Unlabeled results never are.
func (l Label) IsHigh() bool {
	tier := l.normalized()
	if tier == "" {
		return false
	}

	if strings.Contains(tier, "GT") || strings.Contains(tier, "HT") || strings.Contains(tier, "MT") {
		return true
	}

	if n, ok := l.lowTierNumber(); ok {
		return n > 1
	}

	return false
}

// lowTierNumber extracts the number of an LT label.
func (l Label) lowTierNumber() (int, bool) {
	tier := l.normalized()
	idx := strings.Index(tier, "LT")
	if idx < 0 {
		return 0, false
	}

	digits := tier[idx+2:]
	end := 0
	for end < len(digits) && digits[end] >= '0' && digits[end] <= '9' {
		end++
	}
	if end == 0 {
		return 0, false
	}

	n, err := strconv.Atoi(digits[:end])
	if err != nil {
		return 0, false
	}
	return n, true
}

// Division returns the human-readable division name.
func (l Label) Division() string {
	tier := l.normalized()
	switch {
	case strings.Contains(tier, "GT"):
		return "God Tier"
	case strings.Contains(tier, "HT"):
		return "High Tier"
	case strings.Contains(tier, "MT"):
		return "Mid Tier"
	case strings.Contains(tier, "LT"):
		return "Low Tier"
	default:
		return "Sin División"
	}
}

// Emoji returns the marker used in result cards.
func (l Label) Emoji() string {
	tier := l.normalized()
	switch {
	case tier == "":
		return "❓"
	case strings.Contains(tier, "GT"):
		return "👑"
	case strings.Contains(tier, "HT"):
		return "💎"
	case strings.Contains(tier, "MT"):
		return "⭐"
	case strings.Contains(tier, "LT"):
		return "🔥"
	default:
		return "🎯"
	}
}

// Color returns the embed accent color for the label.
func (l Label) Color() int {
	tier := l.normalized()
	switch {
	case tier == "":
		return 0x7289da
	case strings.Contains(tier, "GT"):
		return 0xff0000
	case strings.Contains(tier, "HT"):
		return 0xff6b35
	case strings.Contains(tier, "MT"):
		return 0xffd700
	}

	if n, ok := l.lowTierNumber(); ok {
		switch {
		case n <= 3:
			return 0x00ff88
		case n <= 6:
			return 0x00d9ff
		default:
			return 0x9d4edd
		}
	}

	return 0x7289da
}

// Result is one completed tier test row.
type Result struct {
	ID            int64
	MinecraftUUID string
	PlayerName    string
	Tier          Label
	CompletedAt   time.Time

	// Published flips false -> true exactly once, after every configured
	// destination has been delivered (tracked per destination, see
	// Delivery).
	Published bool
}

// DestinationConfig is one guild's leaderboard channel configuration.
// Written by the setup flow, read-only to the publisher. A guild without
// a row simply receives no leaderboard posts.
type DestinationConfig struct {
	GuildID string

	// PrimaryChannelID receives every result.
	PrimaryChannelID string

	// HighTierChannelID additionally receives results whose label IsHigh.
	// Optional.
	HighTierChannelID string
}

// Delivery records a successful post of one result to one channel, so a
// crash between destinations does not strand a row half-published: the
// next tick re-drives only the channels still missing.
type Delivery struct {
	ResultID    int64
	GuildID     string
	ChannelID   string
	DeliveredAt time.Time
}

// RequestStatus is the lifecycle state of a tier-test ticket.
type RequestStatus string

const (
	RequestPending   RequestStatus = "pending"
	RequestCompleted RequestStatus = "completed"
	RequestClosed    RequestStatus = "closed"
)

// Request is one tier-test ticket row, bound to the private channel the
// test is coordinated in.
type Request struct {
	ID            int64
	DiscordID     string
	MinecraftUUID string
	ChannelID     string
	Status        RequestStatus
	CreatedAt     time.Time
}
