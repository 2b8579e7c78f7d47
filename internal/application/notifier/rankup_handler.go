package notifier

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/bridgemc/bridge-community-bot/config"
	"github.com/bridgemc/bridge-community-bot/internal/application/rolesync"
	"github.com/bridgemc/bridge-community-bot/internal/domain/chat"
	"github.com/bridgemc/bridge-community-bot/internal/domain/event"
	"github.com/bridgemc/bridge-community-bot/internal/domain/identity"
	"github.com/bridgemc/bridge-community-bot/internal/domain/rank"
	"github.com/bridgemc/bridge-community-bot/pkg/logger"
)

// RankUpHandler reconciles the promoted player's rank roles in every
// guild where they are a member, then announces the promotion to the
// achievements channel when the new rank clears the significance
// threshold.
type RankUpHandler struct {
	links      identity.Resolver
	reconciler *rolesync.Reconciler
	gateway    chat.Gateway
	catalog    *rank.Catalog
	flags      *config.FeatureFlags
	logger     *slog.Logger

	// minAnnounceLevel is the lowest rank level announced publicly.
	minAnnounceLevel int

	// achievementChannels are tried in order when locating the
	// announcements channel.
	achievementChannels []string
}

// NewRankUpHandler creates a RankUpHandler.
func NewRankUpHandler(
	links identity.Resolver,
	reconciler *rolesync.Reconciler,
	gateway chat.Gateway,
	catalog *rank.Catalog,
	flags *config.FeatureFlags,
	cfg config.DispatcherConfig,
	logger *slog.Logger,
) *RankUpHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &RankUpHandler{
		links:               links,
		reconciler:          reconciler,
		gateway:             gateway,
		catalog:             catalog,
		flags:               flags,
		logger:              logger.With("handler", "rank_up"),
		minAnnounceLevel:    cfg.AnnounceMinRankLevel,
		achievementChannels: cfg.AchievementChannelNames,
	}
}

// Handle runs reconciliation everywhere the player is present, then
// announces. An unlinked player is a logged no-op, not a failure.
func (h *RankUpHandler) Handle(ctx context.Context, e *event.Event, payload event.Payload) error {
	promo, ok := payload.(event.RankUpPayload)
	if !ok {
		return fmt.Errorf("rank up handler: unexpected payload type %T", payload)
	}

	log := h.logger.With(logger.EventID(e.ID), "rank", promo.NewRankName, "player", promo.PlayerName)

	discordID := e.DiscordID
	if discordID == "" && promo.UUID != "" {
		link, err := h.links.GetByMinecraftUUID(ctx, promo.UUID)
		if err != nil {
			if errors.Is(err, identity.ErrLinkNotFound) {
				log.Info("player not linked, nothing to reflect")
				return nil
			}
			return fmt.Errorf("rank up handler: resolve link: %w", err)
		}
		discordID = link.DiscordID
	}
	if discordID == "" {
		log.Info("rank up without target identity, nothing to do")
		return nil
	}

	guilds, err := h.gateway.Guilds(ctx)
	if err != nil {
		return fmt.Errorf("rank up handler: list guilds: %w", err)
	}

	for _, guild := range guilds {
		glog := log.With(logger.GuildID(guild.ID))

		if _, err := h.gateway.Member(ctx, guild.ID, discordID); err != nil {
			if !errors.Is(err, chat.ErrMemberNotFound) {
				glog.Warn("member lookup failed", "error", err)
			}
			continue
		}

		if h.flags == nil || h.flags.IsEnabledFor(config.FeatureRoleSync, config.FeatureContext{GuildID: guild.ID}) {
			if _, err := h.reconciler.Reconcile(ctx, guild.ID, discordID, promo.NewRankName); err != nil {
				glog.Warn("reconciliation failed", "error", err)
			}
		}

		if h.shouldAnnounce(guild.ID, promo.NewRankLevel) {
			h.announce(ctx, guild.ID, discordID, promo, glog)
		}
	}
	return nil
}

// shouldAnnounce applies the significance threshold and the per-guild
// feature flag.
func (h *RankUpHandler) shouldAnnounce(guildID string, level int) bool {
	if level < h.minAnnounceLevel {
		return false
	}
	if h.flags != nil && !h.flags.IsEnabledFor(config.FeatureRankAnnouncements, config.FeatureContext{GuildID: guildID}) {
		return false
	}
	return true
}

// announce posts to the achievements channel found by name convention.
// A guild without one is a silent skip.
func (h *RankUpHandler) announce(ctx context.Context, guildID, discordID string, promo event.RankUpPayload, log *slog.Logger) {
	channel, err := h.gateway.FindChannel(ctx, guildID, h.achievementChannels...)
	if err != nil {
		if !errors.Is(err, chat.ErrChannelNotFound) {
			log.Warn("achievements channel lookup failed", "error", err)
		}
		return
	}

	embed := chat.Embed{
		Title:       "⬆️ ¡Ascenso de rango!",
		Description: fmt.Sprintf("**%s** ha alcanzado el rango **%s**", promo.PlayerName, promo.NewRankName),
		Color:       h.catalog.Color(promo.NewRankName),
		Timestamp:   time.Now().UTC(),
	}
	if promo.OldRankName != "" {
		embed.Fields = append(embed.Fields, chat.EmbedField{
			Name: "Rango anterior", Value: promo.OldRankName, Inline: true,
		})
	}
	if promo.TotalWins > 0 {
		embed.Fields = append(embed.Fields, chat.EmbedField{
			Name: "Victorias", Value: fmt.Sprintf("%d", promo.TotalWins), Inline: true,
		})
	}
	if promo.RewardMoney > 0 {
		embed.Fields = append(embed.Fields, chat.EmbedField{
			Name: "Recompensa", Value: fmt.Sprintf("$%d", promo.RewardMoney), Inline: true,
		})
	}
	mention := fmt.Sprintf("<@%s>", discordID)
	if err := h.gateway.SendMessage(ctx, channel.ID, mention, embed); err != nil {
		log.Warn("rank announcement failed", logger.ChannelID(channel.ID), "error", err)
		return
	}

	log.Info("rank announced", logger.ChannelID(channel.ID))
}
