package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/bridgemc/bridge-community-bot/internal/domain/rank"
	"github.com/bridgemc/bridge-community-bot/internal/domain/tiertest"
)

// ResultRepository implements tiertest.ResultRepository over the
// tier_test_results table and its leaderboard_deliveries ledger.
type ResultRepository struct {
	conn *Connection
}

// NewResultRepository creates a new ResultRepository.
func NewResultRepository(conn *Connection) *ResultRepository {
	return &ResultRepository{conn: conn}
}

// UnpublishedBatch returns up to limit unpublished results joined with
// the player's display name, oldest completed first.
func (r *ResultRepository) UnpublishedBatch(ctx context.Context, limit int) ([]*tiertest.Result, error) {
	query := `
		SELECT ttr.id, ttr.minecraft_uuid, p.name, ttr.tier_rank, ttr.completed_at, ttr.published
		FROM tier_test_results ttr
		JOIN players p ON ttr.minecraft_uuid = p.uuid
		WHERE ttr.published = FALSE
		ORDER BY ttr.completed_at ASC
		LIMIT $1
	`

	rows, err := r.conn.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query unpublished results: %w", err)
	}
	defer rows.Close()

	var results []*tiertest.Result
	for rows.Next() {
		var res tiertest.Result
		var tier *string

		if err := rows.Scan(
			&res.ID,
			&res.MinecraftUUID,
			&res.PlayerName,
			&tier,
			&res.CompletedAt,
			&res.Published,
		); err != nil {
			return nil, fmt.Errorf("failed to scan result row: %w", err)
		}

		if tier != nil {
			res.Tier = tiertest.Label(*tier)
		}
		results = append(results, &res)
	}

	return results, rows.Err()
}

// MarkPublished sets published=true. Idempotent.
func (r *ResultRepository) MarkPublished(ctx context.Context, id int64) error {
	_, err := r.conn.Exec(ctx,
		`UPDATE tier_test_results SET published = TRUE WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to mark result %d published: %w", id, err)
	}
	return nil
}

// DeliveredChannels returns the channel ids a result was already posted to.
func (r *ResultRepository) DeliveredChannels(ctx context.Context, resultID int64) (map[string]bool, error) {
	rows, err := r.conn.Query(ctx,
		`SELECT channel_id FROM leaderboard_deliveries WHERE result_id = $1`, resultID)
	if err != nil {
		return nil, fmt.Errorf("failed to query deliveries: %w", err)
	}
	defer rows.Close()

	delivered := make(map[string]bool)
	for rows.Next() {
		var channelID string
		if err := rows.Scan(&channelID); err != nil {
			return nil, fmt.Errorf("failed to scan delivery row: %w", err)
		}
		delivered[channelID] = true
	}

	return delivered, rows.Err()
}

// RecordDelivery appends to the delivery ledger. ON CONFLICT makes the
// operation idempotent per (result, channel).
func (r *ResultRepository) RecordDelivery(ctx context.Context, d tiertest.Delivery) error {
	deliveredAt := d.DeliveredAt
	if deliveredAt.IsZero() {
		deliveredAt = time.Now().UTC()
	}

	_, err := r.conn.Exec(ctx, `
		INSERT INTO leaderboard_deliveries (result_id, guild_id, channel_id, delivered_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (result_id, channel_id) DO NOTHING
	`, d.ResultID, d.GuildID, d.ChannelID, deliveredAt)
	if err != nil {
		return fmt.Errorf("failed to record delivery: %w", err)
	}
	return nil
}

// DestinationRepository implements tiertest.DestinationRepository over
// the leaderboard_config table.
type DestinationRepository struct {
	conn *Connection
}

// NewDestinationRepository creates a new DestinationRepository.
func NewDestinationRepository(conn *Connection) *DestinationRepository {
	return &DestinationRepository{conn: conn}
}

// All returns every configured guild.
func (r *DestinationRepository) All(ctx context.Context) ([]tiertest.DestinationConfig, error) {
	query := `
		SELECT guild_id, normal_channel_id, high_channel_id
		FROM leaderboard_config
	`

	rows, err := r.conn.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query leaderboard config: %w", err)
	}
	defer rows.Close()

	var configs []tiertest.DestinationConfig
	for rows.Next() {
		var cfg tiertest.DestinationConfig
		var high *string

		if err := rows.Scan(&cfg.GuildID, &cfg.PrimaryChannelID, &high); err != nil {
			return nil, fmt.Errorf("failed to scan config row: %w", err)
		}
		if high != nil {
			cfg.HighTierChannelID = *high
		}
		configs = append(configs, cfg)
	}

	return configs, rows.Err()
}

// Get returns one guild's config.
func (r *DestinationRepository) Get(ctx context.Context, guildID string) (*tiertest.DestinationConfig, error) {
	var cfg tiertest.DestinationConfig
	var high *string

	err := r.conn.QueryRow(ctx, `
		SELECT guild_id, normal_channel_id, high_channel_id
		FROM leaderboard_config
		WHERE guild_id = $1
	`, guildID).Scan(&cfg.GuildID, &cfg.PrimaryChannelID, &high)
	if err != nil {
		if IsNoRows(err) {
			return nil, tiertest.ErrConfigNotFound
		}
		return nil, fmt.Errorf("failed to query config: %w", err)
	}

	if high != nil {
		cfg.HighTierChannelID = *high
	}
	return &cfg, nil
}

// Upsert creates or replaces a guild's config.
func (r *DestinationRepository) Upsert(ctx context.Context, cfg tiertest.DestinationConfig) error {
	_, err := r.conn.Exec(ctx, `
		INSERT INTO leaderboard_config (guild_id, normal_channel_id, high_channel_id)
		VALUES ($1, $2, $3)
		ON CONFLICT (guild_id) DO UPDATE SET
			normal_channel_id = EXCLUDED.normal_channel_id,
			high_channel_id = EXCLUDED.high_channel_id
	`, cfg.GuildID, cfg.PrimaryChannelID, nullable(cfg.HighTierChannelID))
	if err != nil {
		return fmt.Errorf("failed to upsert leaderboard config: %w", err)
	}
	return nil
}

// RequestRepository implements tiertest.RequestRepository over the
// tier_test_requests table.
type RequestRepository struct {
	conn *Connection
}

// NewRequestRepository creates a new RequestRepository.
func NewRequestRepository(conn *Connection) *RequestRepository {
	return &RequestRepository{conn: conn}
}

// Create inserts a ticket row.
func (r *RequestRepository) Create(ctx context.Context, req *tiertest.Request) error {
	createdAt := req.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	status := req.Status
	if status == "" {
		status = tiertest.RequestPending
	}

	err := r.conn.QueryRow(ctx, `
		INSERT INTO tier_test_requests (discord_id, minecraft_uuid, channel_id, status, created_at)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id
	`, req.DiscordID, req.MinecraftUUID, req.ChannelID, status, createdAt).Scan(&req.ID)
	if err != nil {
		return fmt.Errorf("failed to insert tier test request: %w", err)
	}

	req.Status = status
	req.CreatedAt = createdAt
	return nil
}

// GetByChannel returns the ticket bound to a channel.
func (r *RequestRepository) GetByChannel(ctx context.Context, channelID string) (*tiertest.Request, error) {
	var req tiertest.Request
	var status string

	err := r.conn.QueryRow(ctx, `
		SELECT id, discord_id, minecraft_uuid, channel_id, status, created_at
		FROM tier_test_requests
		WHERE channel_id = $1
	`, channelID).Scan(&req.ID, &req.DiscordID, &req.MinecraftUUID, &req.ChannelID, &status, &req.CreatedAt)
	if err != nil {
		if IsNoRows(err) {
			return nil, tiertest.ErrRequestNotFound
		}
		return nil, fmt.Errorf("failed to query tier test request: %w", err)
	}

	req.Status = tiertest.RequestStatus(status)
	return &req, nil
}

// OpenByDiscordID returns the user's ticket that has not been closed
// yet, newest first when the table somehow holds more than one.
func (r *RequestRepository) OpenByDiscordID(ctx context.Context, discordID string) (*tiertest.Request, error) {
	var req tiertest.Request
	var status string

	err := r.conn.QueryRow(ctx, `
		SELECT id, discord_id, minecraft_uuid, channel_id, status, created_at
		FROM tier_test_requests
		WHERE discord_id = $1 AND status <> $2
		ORDER BY created_at DESC
		LIMIT 1
	`, discordID, tiertest.RequestClosed).Scan(&req.ID, &req.DiscordID, &req.MinecraftUUID, &req.ChannelID, &status, &req.CreatedAt)
	if err != nil {
		if IsNoRows(err) {
			return nil, tiertest.ErrRequestNotFound
		}
		return nil, fmt.Errorf("failed to query open tier test request: %w", err)
	}

	req.Status = tiertest.RequestStatus(status)
	return &req, nil
}

// UpdateStatus moves a ticket through its lifecycle.
func (r *RequestRepository) UpdateStatus(ctx context.Context, id int64, status tiertest.RequestStatus) error {
	tag, err := r.conn.Exec(ctx,
		`UPDATE tier_test_requests SET status = $1 WHERE id = $2`, status, id)
	if err != nil {
		return fmt.Errorf("failed to update tier test request %d: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return tiertest.ErrRequestNotFound
	}
	return nil
}

// PlayerRankSource implements rank.Source over the players table,
// which the game server keeps authoritative.
type PlayerRankSource struct {
	conn *Connection
}

// NewPlayerRankSource creates a new PlayerRankSource.
func NewPlayerRankSource(conn *Connection) *PlayerRankSource {
	return &PlayerRankSource{conn: conn}
}

// VictoryRank returns the player's current rank name.
func (r *PlayerRankSource) VictoryRank(ctx context.Context, minecraftUUID string) (string, error) {
	var rankName *string
	err := r.conn.QueryRow(ctx,
		`SELECT victory_rank FROM players WHERE uuid = $1`, minecraftUUID).Scan(&rankName)
	if err != nil {
		if IsNoRows(err) {
			return "", rank.ErrUnknownRank
		}
		return "", fmt.Errorf("failed to query victory rank: %w", err)
	}

	if rankName == nil {
		return "", rank.ErrUnknownRank
	}
	return *rankName, nil
}
