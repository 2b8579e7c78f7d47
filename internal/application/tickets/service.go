// Package tickets manages tier-test request tickets: a private channel
// per request, visible to the requester and the tester team, torn down
// after a grace period once the ticket is closed.
package tickets

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/bridgemc/bridge-community-bot/internal/domain/chat"
	"github.com/bridgemc/bridge-community-bot/internal/domain/tiertest"
	"github.com/bridgemc/bridge-community-bot/pkg/logger"
)

var (
	// ErrTicketOpen is returned when the user already has an open ticket.
	ErrTicketOpen = errors.New("tickets: ticket already open")

	// ErrTesterRoleNotFound is returned when no guild role matches any of
	// the configured tester role names.
	ErrTesterRoleNotFound = errors.New("tickets: tester role not found")
)

// Service owns the ticket lifecycle.
type Service struct {
	requests tiertest.RequestRepository
	gateway  chat.Gateway

	closeDelay      time.Duration
	testerRoleNames []string
	logger          *slog.Logger

	mu       sync.Mutex
	teardown map[string]*time.Timer
}

// NewService creates a ticket Service.
func NewService(
	requests tiertest.RequestRepository,
	gateway chat.Gateway,
	closeDelay time.Duration,
	testerRoleNames []string,
	logger *slog.Logger,
) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	if closeDelay <= 0 {
		closeDelay = 30 * time.Second
	}
	if len(testerRoleNames) == 0 {
		testerRoleNames = []string{"tester", "tier tester"}
	}
	return &Service{
		requests:        requests,
		gateway:         gateway,
		closeDelay:      closeDelay,
		testerRoleNames: testerRoleNames,
		logger:          logger.With("component", "tickets"),
		teardown:        make(map[string]*time.Timer),
	}
}

// Create opens a ticket: a private channel visible to the requester and
// the tester role, with @everyone denied, plus the backing request row.
func (s *Service) Create(ctx context.Context, guildID, discordID, minecraftUUID, playerName string) (*tiertest.Request, error) {
	switch _, err := s.requests.OpenByDiscordID(ctx, discordID); {
	case err == nil:
		return nil, ErrTicketOpen
	case !errors.Is(err, tiertest.ErrRequestNotFound):
		return nil, fmt.Errorf("check open ticket: %w", err)
	}

	testerRole, err := s.findTesterRole(ctx, guildID)
	if err != nil {
		return nil, err
	}

	name := channelName(playerName)
	overwrites := []chat.PermissionOverwrite{
		{
			// @everyone shares its id with the guild
			TargetID: guildID,
			Type:     chat.OverwriteRole,
			Deny:     chat.PermissionSet(chat.PermissionViewChannel),
		},
		{
			TargetID: discordID,
			Type:     chat.OverwriteMember,
			Allow:    chat.PermissionSet(chat.PermissionViewChannel | chat.PermissionSendMessages),
		},
		{
			TargetID: testerRole.ID,
			Type:     chat.OverwriteRole,
			Allow:    chat.PermissionSet(chat.PermissionViewChannel | chat.PermissionSendMessages),
		},
	}

	channel, err := s.gateway.CreatePrivateChannel(ctx, guildID, name, overwrites)
	if err != nil {
		return nil, fmt.Errorf("create ticket channel: %w", err)
	}

	req := &tiertest.Request{
		DiscordID:     discordID,
		MinecraftUUID: minecraftUUID,
		ChannelID:     channel.ID,
		Status:        tiertest.RequestPending,
		CreatedAt:     time.Now().UTC(),
	}
	if err := s.requests.Create(ctx, req); err != nil {
		// Channel without a row is an orphan; best effort cleanup.
		if delErr := s.gateway.DeleteChannel(ctx, channel.ID); delErr != nil {
			s.logger.Warn("orphan ticket channel cleanup failed", logger.ChannelID(channel.ID), "error", delErr)
		}
		return nil, fmt.Errorf("create ticket row: %w", err)
	}

	welcome := chat.Embed{
		Title:       "🎯 Solicitud de Tier Test",
		Description: fmt.Sprintf("<@%s> ha solicitado un tier test. Un tester se pondrá en contacto pronto.", discordID),
		Color:       0x00bfff,
		Timestamp:   time.Now().UTC(),
	}
	if err := s.gateway.SendEmbed(ctx, channel.ID, welcome); err != nil {
		s.logger.Warn("ticket welcome message failed", logger.ChannelID(channel.ID), "error", err)
	}

	s.logger.Info("ticket opened",
		logger.GuildID(guildID),
		logger.DiscordID(discordID),
		logger.ChannelID(channel.ID),
	)
	return req, nil
}

// Complete marks the ticket in a channel as completed, once the test has
// been run and its result row written by the game server.
func (s *Service) Complete(ctx context.Context, channelID string) error {
	req, err := s.requests.GetByChannel(ctx, channelID)
	if err != nil {
		return fmt.Errorf("complete ticket: %w", err)
	}
	if err := s.requests.UpdateStatus(ctx, req.ID, tiertest.RequestCompleted); err != nil {
		return fmt.Errorf("complete ticket: %w", err)
	}
	s.logger.Info("ticket completed", logger.ChannelID(channelID))
	return nil
}

// Close closes the ticket in a channel and schedules the channel for
// deletion after the grace period, so participants can read the outcome.
func (s *Service) Close(ctx context.Context, channelID string) error {
	req, err := s.requests.GetByChannel(ctx, channelID)
	if err != nil {
		return fmt.Errorf("close ticket: %w", err)
	}
	if err := s.requests.UpdateStatus(ctx, req.ID, tiertest.RequestClosed); err != nil {
		return fmt.Errorf("close ticket: %w", err)
	}

	notice := chat.Embed{
		Title:       "🔒 Ticket cerrado",
		Description: fmt.Sprintf("Este canal se eliminará en %s.", s.closeDelay),
		Color:       0xff6b35,
		Timestamp:   time.Now().UTC(),
	}
	if err := s.gateway.SendEmbed(ctx, channelID, notice); err != nil {
		s.logger.Warn("ticket close notice failed", logger.ChannelID(channelID), "error", err)
	}

	s.scheduleTeardown(channelID)
	s.logger.Info("ticket closed", logger.ChannelID(channelID), "delete_in", s.closeDelay)
	return nil
}

// CancelTeardown aborts a pending channel deletion, for a ticket
// reopened within the grace period.
func (s *Service) CancelTeardown(channelID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	timer, ok := s.teardown[channelID]
	if !ok {
		return false
	}
	timer.Stop()
	delete(s.teardown, channelID)
	return true
}

// Shutdown stops all pending teardown timers. Closed tickets whose
// channel outlives the process are cleaned up manually.
func (s *Service) Shutdown() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, timer := range s.teardown {
		timer.Stop()
		delete(s.teardown, id)
	}
}

func (s *Service) scheduleTeardown(channelID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if timer, ok := s.teardown[channelID]; ok {
		timer.Stop()
	}
	s.teardown[channelID] = time.AfterFunc(s.closeDelay, func() {
		s.mu.Lock()
		delete(s.teardown, channelID)
		s.mu.Unlock()

		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := s.gateway.DeleteChannel(ctx, channelID); err != nil && !errors.Is(err, chat.ErrChannelNotFound) {
			s.logger.Warn("ticket channel deletion failed", logger.ChannelID(channelID), "error", err)
			return
		}
		s.logger.Info("ticket channel deleted", logger.ChannelID(channelID))
	})
}

func (s *Service) findTesterRole(ctx context.Context, guildID string) (*chat.Role, error) {
	roles, err := s.gateway.Roles(ctx, guildID)
	if err != nil {
		return nil, fmt.Errorf("load guild roles: %w", err)
	}
	for _, want := range s.testerRoleNames {
		for _, role := range roles {
			if strings.EqualFold(role.Name, want) {
				r := role
				return &r, nil
			}
		}
	}
	return nil, ErrTesterRoleNotFound
}

// channelName derives the ticket channel name from the player, following
// Discord's lowercase-dashed convention.
func channelName(playerName string) string {
	cleaned := strings.ToLower(strings.TrimSpace(playerName))
	cleaned = strings.ReplaceAll(cleaned, " ", "-")
	if cleaned == "" {
		cleaned = "solicitud"
	}
	return "tier-test-" + cleaned
}
