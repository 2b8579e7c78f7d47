package notifier

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/bridgemc/bridge-community-bot/config"
	"github.com/bridgemc/bridge-community-bot/internal/domain/chat"
	"github.com/bridgemc/bridge-community-bot/internal/domain/event"
	"github.com/bridgemc/bridge-community-bot/pkg/logger"
)

// LinkHandler reflects a fresh account link into Discord: in every
// guild where the linked user is a member, their nickname is overridden
// with the minecraft username. Each guild where the rename is not
// possible is a logged skip, never a failure.
type LinkHandler struct {
	gateway chat.Gateway
	flags   *config.FeatureFlags
	logger  *slog.Logger
}

// NewLinkHandler creates a LinkHandler.
func NewLinkHandler(gateway chat.Gateway, flags *config.FeatureFlags, logger *slog.Logger) *LinkHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &LinkHandler{
		gateway: gateway,
		flags:   flags,
		logger:  logger.With("handler", "link"),
	}
}

// Handle applies the nickname override guild by guild.
func (h *LinkHandler) Handle(ctx context.Context, e *event.Event, payload event.Payload) error {
	link, ok := payload.(event.LinkPayload)
	if !ok {
		return fmt.Errorf("link handler: unexpected payload type %T", payload)
	}

	log := h.logger.With(logger.EventID(e.ID), logger.DiscordID(e.DiscordID))

	if e.DiscordID == "" || link.MinecraftUsername == "" {
		log.Info("link event without target identity, nothing to do")
		return nil
	}

	guilds, err := h.gateway.Guilds(ctx)
	if err != nil {
		return fmt.Errorf("link handler: list guilds: %w", err)
	}

	for _, guild := range guilds {
		if h.flags != nil && !h.flags.IsEnabledFor(config.FeatureNicknameSync, config.FeatureContext{GuildID: guild.ID}) {
			continue
		}
		h.renameInGuild(ctx, guild, e.DiscordID, link.MinecraftUsername, log)
	}
	return nil
}

// renameInGuild applies the override in one guild. All outcomes are
// terminal here; nothing propagates to the event state.
func (h *LinkHandler) renameInGuild(ctx context.Context, guild chat.Guild, userID, nickname string, log *slog.Logger) {
	glog := log.With(logger.GuildID(guild.ID))

	member, err := h.gateway.Member(ctx, guild.ID, userID)
	if err != nil {
		if errors.Is(err, chat.ErrMemberNotFound) {
			return
		}
		glog.Warn("member lookup failed", "error", err)
		return
	}

	if guild.OwnerID == member.UserID {
		glog.Info("nickname skipped", logger.SkipReason("member_is_guild_owner"))
		return
	}

	perms, err := h.gateway.BotPermissions(ctx, guild.ID)
	if err != nil {
		glog.Warn("permission lookup failed", "error", err)
		return
	}
	if !perms.Has(chat.PermissionManageNicknames) {
		glog.Info("nickname skipped", logger.SkipReason("no_manage_nicknames_permission"))
		return
	}

	if member.Nickname == nickname {
		return
	}

	if err := h.gateway.SetNickname(ctx, guild.ID, userID, nickname); err != nil {
		switch {
		case errors.Is(err, chat.ErrForbidden), errors.Is(err, chat.ErrInsufficientHierarchy):
			glog.Info("nickname skipped", logger.SkipReason("hierarchy_forbids_rename"))
		default:
			glog.Warn("nickname override failed", "error", err)
		}
		return
	}

	glog.Info("nickname overridden", "nickname", nickname)
}
