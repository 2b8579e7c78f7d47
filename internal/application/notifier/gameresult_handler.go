package notifier

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/bridgemc/bridge-community-bot/config"
	"github.com/bridgemc/bridge-community-bot/internal/domain/chat"
	"github.com/bridgemc/bridge-community-bot/internal/domain/event"
	"github.com/bridgemc/bridge-community-bot/internal/domain/tiertest"
	"github.com/bridgemc/bridge-community-bot/pkg/logger"
)

// GameResultHandler posts match summaries. The destination is resolved
// per guild from the leaderboard_config row: general results go to the
// primary channel, highscores to the high-tier channel. A guild without
// config, or without the relevant channel, is silently skipped; absence
// of configuration is a valid state.
type GameResultHandler struct {
	destinations tiertest.DestinationRepository
	gateway      chat.Gateway
	flags        *config.FeatureFlags
	logger       *slog.Logger
}

// NewGameResultHandler creates a GameResultHandler.
func NewGameResultHandler(
	destinations tiertest.DestinationRepository,
	gateway chat.Gateway,
	flags *config.FeatureFlags,
	logger *slog.Logger,
) *GameResultHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &GameResultHandler{
		destinations: destinations,
		gateway:      gateway,
		flags:        flags,
		logger:       logger.With("handler", "game_result"),
	}
}

// Handle renders the summary card and delivers it to every configured
// guild. Per-guild delivery failures are logged and do not fail the
// event.
func (h *GameResultHandler) Handle(ctx context.Context, e *event.Event, payload event.Payload) error {
	result, ok := payload.(event.GameResultPayload)
	if !ok {
		return fmt.Errorf("game result handler: unexpected payload type %T", payload)
	}

	log := h.logger.With(logger.EventID(e.ID), "player", result.PlayerName)

	configs, err := h.destinations.All(ctx)
	if err != nil {
		return fmt.Errorf("game result handler: load destination config: %w", err)
	}
	if len(configs) == 0 {
		log.Debug("no destinations configured")
		return nil
	}

	embed := h.renderEmbed(e.Kind, result)

	for _, cfg := range configs {
		if h.flags != nil && !h.flags.IsEnabledFor(config.FeatureGameResults, config.FeatureContext{GuildID: cfg.GuildID}) {
			continue
		}

		channelID := cfg.PrimaryChannelID
		if e.Kind == event.KindHighscore {
			channelID = cfg.HighTierChannelID
		}
		if channelID == "" {
			continue
		}

		if err := h.gateway.SendEmbed(ctx, channelID, embed); err != nil {
			if errors.Is(err, chat.ErrChannelNotFound) {
				log.Info("result channel gone, skipping guild", logger.GuildID(cfg.GuildID))
				continue
			}
			log.Warn("result delivery failed",
				logger.GuildID(cfg.GuildID),
				logger.ChannelID(channelID),
				"error", err,
			)
		}
	}
	return nil
}

// renderEmbed builds the summary card: player headline, the stat map
// as inline fields in stable order, and the optional free-text note.
func (h *GameResultHandler) renderEmbed(kind event.Kind, result event.GameResultPayload) chat.Embed {
	title := "🎮 Resultado de partida"
	color := 0x00bfff
	if kind == event.KindHighscore {
		title = "🏆 ¡Nuevo récord!"
		color = 0xffd700
	}

	embed := chat.Embed{
		Title:       title,
		Description: result.Message,
		Color:       color,
		Author:      &chat.EmbedAuthor{Name: result.PlayerName},
		Timestamp:   time.Now().UTC(),
	}

	keys := make([]string, 0, len(result.Stats))
	for k := range result.Stats {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		embed.Fields = append(embed.Fields, chat.EmbedField{
			Name:   k,
			Value:  fmt.Sprintf("%v", result.Stats[k]),
			Inline: true,
		})
	}

	if result.ExtraInfo != "" {
		embed.Footer = result.ExtraInfo
	}
	return embed
}
