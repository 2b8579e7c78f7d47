package rolesync

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/bridgemc/bridge-community-bot/internal/domain/chat"
	"github.com/bridgemc/bridge-community-bot/internal/domain/identity"
	"github.com/bridgemc/bridge-community-bot/internal/domain/rank"
	"github.com/bridgemc/bridge-community-bot/pkg/logger"
)

// SyncReport summarizes a full guild synchronization.
type SyncReport struct {
	// Total is the number of identity links walked.
	Total int

	// Applied counts members whose roles changed.
	Applied int

	// Skipped counts typed reconciliation skips.
	Skipped int

	// NotMembers counts linked users absent from the guild.
	NotMembers int

	// Failed counts links that errored; their user ids are in Errors.
	Failed int
	Errors []error
}

// Service owns the manual recovery path: re-reconcile every linked
// member of a guild against the game server's authoritative rank rows.
type Service struct {
	links      identity.Repository
	ranks      rank.Source
	reconciler *Reconciler
	logger     *slog.Logger
}

// NewService creates a sync Service.
func NewService(links identity.Repository, ranks rank.Source, reconciler *Reconciler, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		links:      links,
		ranks:      ranks,
		reconciler: reconciler,
		logger:     logger.With("component", "role_sync_service"),
	}
}

// SyncGuild walks all identity links and reconciles each linked member
// present in the guild. Per-member failures are collected, never abort
// the walk.
func (s *Service) SyncGuild(ctx context.Context, guildID string) (*SyncReport, error) {
	links, err := s.links.All(ctx)
	if err != nil {
		return nil, fmt.Errorf("sync guild %s: load links: %w", guildID, err)
	}

	report := &SyncReport{Total: len(links)}

	for _, link := range links {
		if err := ctx.Err(); err != nil {
			return report, err
		}

		rankName, err := s.ranks.VictoryRank(ctx, link.MinecraftUUID)
		if err != nil {
			if errors.Is(err, rank.ErrUnknownRank) {
				report.Skipped++
				continue
			}
			report.Failed++
			report.Errors = append(report.Errors, fmt.Errorf("rank for %s: %w", link.MinecraftUUID, err))
			continue
		}

		outcome, err := s.reconciler.Reconcile(ctx, guildID, link.DiscordID, rankName)
		if err != nil {
			if errors.Is(err, chat.ErrMemberNotFound) {
				report.NotMembers++
				continue
			}
			if errors.Is(err, rank.ErrUnknownRank) {
				// Rank name the catalog does not know; nothing to map.
				report.Skipped++
				continue
			}
			report.Failed++
			report.Errors = append(report.Errors, fmt.Errorf("reconcile %s: %w", link.DiscordID, err))
			continue
		}

		if outcome.Applied && outcome.Mutations() > 0 {
			report.Applied++
		} else if outcome.Skip != SkipNone {
			report.Skipped++
		}
	}

	s.logger.Info("guild sync finished",
		logger.GuildID(guildID),
		"total", report.Total,
		"applied", report.Applied,
		"skipped", report.Skipped,
		"not_members", report.NotMembers,
		"failed", report.Failed,
	)
	return report, nil
}
