// Package leaderboard publishes completed tier-test results to the
// configured guild channels. It is the second polling pipeline,
// independent of the notification dispatcher, with its own interval
// and its own re-entrancy guard.
package leaderboard

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/bridgemc/bridge-community-bot/config"
	"github.com/bridgemc/bridge-community-bot/internal/domain/chat"
	"github.com/bridgemc/bridge-community-bot/internal/domain/tiertest"
	"github.com/bridgemc/bridge-community-bot/pkg/logger"
)

// Publisher drains unpublished tier_test_results rows. Delivery is
// tracked per (result, channel) in the deliveries ledger, so a partial
// failure is re-driven on the next tick without re-sending channels
// that already got the card; published flips true only once every
// configured, reachable destination has been delivered.
type Publisher struct {
	results      tiertest.ResultRepository
	destinations tiertest.DestinationRepository
	gateway      chat.Gateway
	flags        *config.FeatureFlags
	batchSize    int
	logger       *slog.Logger

	inFlight atomic.Bool
}

// NewPublisher creates a Publisher.
func NewPublisher(
	results tiertest.ResultRepository,
	destinations tiertest.DestinationRepository,
	gateway chat.Gateway,
	flags *config.FeatureFlags,
	batchSize int,
	logger *slog.Logger,
) *Publisher {
	if logger == nil {
		logger = slog.Default()
	}
	if batchSize <= 0 {
		batchSize = 10
	}
	return &Publisher{
		results:      results,
		destinations: destinations,
		gateway:      gateway,
		flags:        flags,
		batchSize:    batchSize,
		logger:       logger.With("component", "leaderboard_publisher"),
	}
}

// PublishUnpublished runs one cycle. Returns the number of rows that
// reached the published state this cycle.
func (p *Publisher) PublishUnpublished(ctx context.Context) (int, error) {
	if !p.inFlight.CompareAndSwap(false, true) {
		p.logger.Debug("publish cycle already running, skipping")
		return 0, nil
	}
	defer p.inFlight.Store(false)

	batch, err := p.results.UnpublishedBatch(ctx, p.batchSize)
	if err != nil {
		return 0, fmt.Errorf("publish: load unpublished batch: %w", err)
	}
	if len(batch) == 0 {
		return 0, nil
	}

	configs, err := p.destinations.All(ctx)
	if err != nil {
		return 0, fmt.Errorf("publish: load destination config: %w", err)
	}

	published := 0
	for _, result := range batch {
		if err := ctx.Err(); err != nil {
			return published, err
		}
		if p.publishOne(ctx, result, configs) {
			published++
		}
	}
	return published, nil
}

// publishOne delivers one result card everywhere it still needs to go.
// Returns true when the row was marked published.
func (p *Publisher) publishOne(ctx context.Context, result *tiertest.Result, configs []tiertest.DestinationConfig) bool {
	log := p.logger.With(logger.ResultID(result.ID), "player", result.PlayerName, logger.TierLabel(string(result.Tier)))

	delivered, err := p.results.DeliveredChannels(ctx, result.ID)
	if err != nil {
		log.Warn("delivery ledger read failed", "error", err)
		return false
	}

	embed := p.renderEmbed(result)
	complete := true

	for _, cfg := range configs {
		if p.flags != nil && !p.flags.IsEnabledFor(config.FeatureLeaderboardPublish, config.FeatureContext{GuildID: cfg.GuildID}) {
			continue
		}

		for _, channelID := range p.targetChannels(result, cfg) {
			if channelID == "" || delivered[channelID] {
				continue
			}
			if !p.deliver(ctx, result, cfg.GuildID, channelID, embed, log) {
				complete = false
			}
		}
	}

	if !complete {
		return false
	}

	if err := p.results.MarkPublished(ctx, result.ID); err != nil {
		log.Warn("mark published failed", "error", err)
		return false
	}
	log.Info("result published")
	return true
}

// targetChannels returns the channels a result goes to in one guild:
// the primary channel always, the high-tier channel only for results
// clearing the significance predicate.
func (p *Publisher) targetChannels(result *tiertest.Result, cfg tiertest.DestinationConfig) []string {
	channels := []string{cfg.PrimaryChannelID}
	if result.Tier.IsHigh() && cfg.HighTierChannelID != "" {
		if p.flags == nil || p.flags.IsEnabledFor(config.FeatureLeaderboardHighTier, config.FeatureContext{GuildID: cfg.GuildID}) {
			channels = append(channels, cfg.HighTierChannelID)
		}
	}
	return channels
}

// deliver sends the card to one channel and records it in the ledger.
// A missing channel is unreachable configuration and does not block
// publication; any other failure does, so the next cycle retries.
func (p *Publisher) deliver(ctx context.Context, result *tiertest.Result, guildID, channelID string, embed chat.Embed, log *slog.Logger) bool {
	if err := p.gateway.SendEmbed(ctx, channelID, embed); err != nil {
		if errors.Is(err, chat.ErrChannelNotFound) {
			log.Info("destination channel gone, skipping", logger.GuildID(guildID), logger.ChannelID(channelID))
			return true
		}
		log.Warn("result delivery failed",
			logger.GuildID(guildID),
			logger.ChannelID(channelID),
			"error", err,
		)
		return false
	}

	err := p.results.RecordDelivery(ctx, tiertest.Delivery{
		ResultID:    result.ID,
		GuildID:     guildID,
		ChannelID:   channelID,
		DeliveredAt: time.Now().UTC(),
	})
	if err != nil {
		// The send went out but the ledger write failed; leave the row
		// unpublished so the next cycle reconciles, at the price of a
		// possible duplicate card.
		log.Warn("delivery ledger write failed", logger.ChannelID(channelID), "error", err)
		return false
	}
	return true
}

// renderEmbed builds the tier-test result card.
func (p *Publisher) renderEmbed(result *tiertest.Result) chat.Embed {
	tier := result.Tier

	embed := chat.Embed{
		Title:       fmt.Sprintf("%s Resultado de Tier Test", tier.Emoji()),
		Description: fmt.Sprintf("**%s** ha completado su tier test", result.PlayerName),
		Color:       tier.Color(),
		Fields: []chat.EmbedField{
			{Name: "Tier", Value: string(tier), Inline: true},
			{Name: "División", Value: tier.Division(), Inline: true},
		},
		Timestamp: result.CompletedAt,
	}
	if tier.IsHigh() {
		embed.Footer = "Resultado de tier alto"
	}
	return embed
}
