// Package linking implements the account-link flow: a Discord user asks
// for a short-lived code, types it into game chat, and the plugin calls
// back to redeem it, producing a link row plus a LINK event that drives
// the nickname sync.
package linking

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/bridgemc/bridge-community-bot/internal/domain/event"
	"github.com/bridgemc/bridge-community-bot/internal/domain/identity"
	"github.com/bridgemc/bridge-community-bot/pkg/logger"
)

var (
	// ErrRateLimited is returned when a user requests codes too quickly.
	ErrRateLimited = errors.New("linking: too many code requests")
)

// RateLimiter throttles code generation per Discord user. The Redis
// implementation lives in infrastructure; a nil limiter disables
// throttling.
type RateLimiter interface {
	Allow(ctx context.Context, identifier, action string) (bool, error)
}

// Service owns the linking-code lifecycle.
type Service struct {
	links   identity.Repository
	codes   identity.CodeRepository
	events  event.Repository
	limiter RateLimiter

	codeTTL    time.Duration
	codeLength int
	logger     *slog.Logger
}

// NewService creates a linking Service.
func NewService(
	links identity.Repository,
	codes identity.CodeRepository,
	events event.Repository,
	limiter RateLimiter,
	codeTTL time.Duration,
	codeLength int,
	logger *slog.Logger,
) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	if codeTTL <= 0 {
		codeTTL = 5 * time.Minute
	}
	if codeLength <= 0 {
		codeLength = 6
	}
	return &Service{
		links:      links,
		codes:      codes,
		events:     events,
		limiter:    limiter,
		codeTTL:    codeTTL,
		codeLength: codeLength,
		logger:     logger.With("component", "linking"),
	}
}

// GenerateCode issues a fresh linking code for a Discord user, replacing
// any outstanding one. The plaintext code is returned exactly once; only
// its hash is stored.
func (s *Service) GenerateCode(ctx context.Context, discordID, discordUsername string) (string, time.Time, error) {
	if discordID == "" {
		return "", time.Time{}, errors.New("linking: discord id is empty")
	}

	if _, err := s.links.GetByDiscordID(ctx, discordID); err == nil {
		return "", time.Time{}, identity.ErrAlreadyLinked
	} else if !errors.Is(err, identity.ErrLinkNotFound) {
		return "", time.Time{}, fmt.Errorf("generate code: check existing link: %w", err)
	}

	if s.limiter != nil {
		allowed, err := s.limiter.Allow(ctx, discordID, "link_code")
		if err != nil {
			// Degraded limiter must not block linking.
			s.logger.Warn("rate limiter unavailable", "error", err)
		} else if !allowed {
			return "", time.Time{}, ErrRateLimited
		}
	}

	code, err := identity.GenerateCode(s.codeLength)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("generate code: %w", err)
	}

	linkCode, err := identity.NewLinkCode(discordID, discordUsername, code, s.codeTTL)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("generate code: hash: %w", err)
	}

	if err := s.codes.Replace(ctx, linkCode); err != nil {
		return "", time.Time{}, fmt.Errorf("generate code: store: %w", err)
	}

	s.logger.Info("linking code issued", logger.DiscordID(discordID), "expires_at", linkCode.ExpiresAt)
	return code, linkCode.ExpiresAt, nil
}

// Redeem consumes a code typed into game chat. On success it creates the
// link row, queues a LINK event for the nickname sync, and burns the code.
func (s *Service) Redeem(ctx context.Context, code, minecraftUUID, minecraftUsername string) (*identity.Link, error) {
	if code == "" {
		return nil, identity.ErrCodeNotFound
	}

	now := time.Now().UTC()
	active, err := s.codes.Active(ctx, now)
	if err != nil {
		return nil, fmt.Errorf("redeem: load active codes: %w", err)
	}

	var match *identity.LinkCode
	for _, candidate := range active {
		if candidate.Matches(code) {
			match = candidate
			break
		}
	}
	if match == nil {
		return nil, identity.ErrCodeNotFound
	}
	if match.Expired(now) {
		return nil, identity.ErrCodeExpired
	}

	link, err := identity.NewLink(minecraftUUID, match.DiscordID, minecraftUsername)
	if err != nil {
		return nil, fmt.Errorf("redeem: %w", err)
	}

	if err := s.links.Create(ctx, link); err != nil {
		return nil, fmt.Errorf("redeem: create link: %w", err)
	}

	if err := s.queueLinkEvent(ctx, link); err != nil {
		// The link row is committed; the nickname sync just won't fire
		// until an operator requeues it.
		s.logger.Warn("link event insert failed", logger.DiscordID(link.DiscordID), "error", err)
	}

	if err := s.codes.Delete(ctx, match.DiscordID); err != nil {
		s.logger.Warn("redeemed code cleanup failed", logger.DiscordID(match.DiscordID), "error", err)
	}

	s.logger.Info("account linked",
		logger.DiscordID(link.DiscordID),
		"minecraft_uuid", link.MinecraftUUID,
		"minecraft_username", link.MinecraftUsername,
	)
	return link, nil
}

// Unlink removes a user's link row and any outstanding code.
func (s *Service) Unlink(ctx context.Context, discordID string) error {
	if err := s.links.Delete(ctx, discordID); err != nil {
		return fmt.Errorf("unlink: %w", err)
	}
	if err := s.codes.Delete(ctx, discordID); err != nil {
		s.logger.Warn("unlink code cleanup failed", logger.DiscordID(discordID), "error", err)
	}
	s.logger.Info("account unlinked", logger.DiscordID(discordID))
	return nil
}

// PurgeExpired drops stale codes. Runs as a scheduler job.
func (s *Service) PurgeExpired(ctx context.Context) (int64, error) {
	purged, err := s.codes.PurgeExpired(ctx, time.Now().UTC())
	if err != nil {
		return 0, fmt.Errorf("purge expired codes: %w", err)
	}
	if purged > 0 {
		s.logger.Info("expired linking codes purged", "count", purged)
	}
	return purged, nil
}

func (s *Service) queueLinkEvent(ctx context.Context, link *identity.Link) error {
	payload, err := event.EncodePayload(event.LinkPayload{
		MinecraftUsername: link.MinecraftUsername,
	})
	if err != nil {
		return err
	}

	return s.events.Insert(ctx, &event.Event{
		DiscordID:     link.DiscordID,
		MinecraftUUID: link.MinecraftUUID,
		Kind:          event.KindLink,
		RawKind:       string(event.KindLink),
		Payload:       payload,
		State:         event.StatePending,
		CreatedAt:     time.Now().UTC(),
	})
}
