package event

import (
	"encoding/json"
	"fmt"
)

// Payload is the closed set of decoded event payloads. Exactly one shape
// exists per kind; the dispatcher decodes the blob once and hands the
// typed value to the handler.
type Payload interface {
	payloadKind() Kind
}

// LinkPayload accompanies KindLink events.
type LinkPayload struct {
	MinecraftUsername string `json:"minecraft_username"`
}

func (LinkPayload) payloadKind() Kind { return KindLink }

// GameResultPayload accompanies KindGameResult and KindHighscore events.
type GameResultPayload struct {
	PlayerName string `json:"player_name"`
	UUID       string `json:"uuid"`

	// Message is an optional free-text headline.
	Message string `json:"message,omitempty"`

	// Stats is the headline stat map (wins, streak, etc.). Values are
	// heterogeneous; they are stringified at render time.
	Stats map[string]any `json:"stats,omitempty"`

	// ExtraInfo is an optional trailing note.
	ExtraInfo string `json:"extra_info,omitempty"`
}

func (GameResultPayload) payloadKind() Kind { return KindGameResult }

// RankUpPayload accompanies KindRankUp events.
type RankUpPayload struct {
	PlayerName   string `json:"player_name"`
	UUID         string `json:"uuid"`
	OldRankName  string `json:"old_rank_name,omitempty"`
	NewRankName  string `json:"new_rank_name"`
	NewRankLevel int    `json:"new_rank_level"`
	TotalWins    int    `json:"total_wins,omitempty"`
	RewardMoney  int    `json:"reward_money,omitempty"`
}

func (RankUpPayload) payloadKind() Kind { return KindRankUp }

// EncodePayload serializes a payload for insertion. The bot only writes
// LINK rows itself; the game plugin writes everything else.
func EncodePayload(p Payload) ([]byte, error) {
	raw, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	return raw, nil
}

// DecodePayload decodes the raw blob for the given kind. A blob that is
// not valid JSON for its kind yields ErrInvalidPayload; the row is then
// failed rather than crashing the poll loop.
func DecodePayload(kind Kind, raw []byte) (Payload, error) {
	if len(raw) == 0 {
		raw = []byte("{}")
	}

	switch kind {
	case KindLink:
		var p LinkPayload
		if err := json.Unmarshal(raw, &p); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
		}
		return p, nil

	case KindGameResult, KindHighscore:
		var p GameResultPayload
		if err := json.Unmarshal(raw, &p); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
		}
		return p, nil

	case KindRankUp:
		var p RankUpPayload
		if err := json.Unmarshal(raw, &p); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
		}
		return p, nil

	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownKind, kind)
	}
}
