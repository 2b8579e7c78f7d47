package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/bridgemc/bridge-community-bot/internal/domain/identity"
)

// LinkRepository implements identity.Repository over the discord_links
// table. Uniqueness on both identity columns enforces the bijection.
type LinkRepository struct {
	conn *Connection
}

// NewLinkRepository creates a new LinkRepository.
func NewLinkRepository(conn *Connection) *LinkRepository {
	return &LinkRepository{conn: conn}
}

// GetByMinecraftUUID returns the link for a game identity.
func (r *LinkRepository) GetByMinecraftUUID(ctx context.Context, minecraftUUID string) (*identity.Link, error) {
	query := `
		SELECT minecraft_uuid, discord_id, minecraft_username, linked_at
		FROM discord_links
		WHERE minecraft_uuid = $1
	`
	return r.scanOne(ctx, query, minecraftUUID)
}

// GetByDiscordID returns the link for a chat identity.
func (r *LinkRepository) GetByDiscordID(ctx context.Context, discordID string) (*identity.Link, error) {
	query := `
		SELECT minecraft_uuid, discord_id, minecraft_username, linked_at
		FROM discord_links
		WHERE discord_id = $1
	`
	return r.scanOne(ctx, query, discordID)
}

func (r *LinkRepository) scanOne(ctx context.Context, query string, arg any) (*identity.Link, error) {
	var link identity.Link
	err := r.conn.QueryRow(ctx, query, arg).Scan(
		&link.MinecraftUUID,
		&link.DiscordID,
		&link.MinecraftUsername,
		&link.LinkedAt,
	)
	if err != nil {
		if IsNoRows(err) {
			return nil, identity.ErrLinkNotFound
		}
		return nil, fmt.Errorf("failed to query link: %w", err)
	}
	return &link, nil
}

// Create inserts a link row.
func (r *LinkRepository) Create(ctx context.Context, link *identity.Link) error {
	query := `
		INSERT INTO discord_links (minecraft_uuid, discord_id, minecraft_username, linked_at)
		VALUES ($1, $2, $3, $4)
	`

	linkedAt := link.LinkedAt
	if linkedAt.IsZero() {
		linkedAt = time.Now().UTC()
	}

	_, err := r.conn.Exec(ctx, query,
		link.MinecraftUUID, link.DiscordID, link.MinecraftUsername, linkedAt)
	if err != nil {
		if IsUniqueViolation(err) {
			return identity.ErrAlreadyLinked
		}
		return fmt.Errorf("failed to insert link: %w", err)
	}
	return nil
}

// Delete removes the link for a chat identity.
func (r *LinkRepository) Delete(ctx context.Context, discordID string) error {
	tag, err := r.conn.Exec(ctx,
		`DELETE FROM discord_links WHERE discord_id = $1`, discordID)
	if err != nil {
		return fmt.Errorf("failed to delete link: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return identity.ErrLinkNotFound
	}
	return nil
}

// All returns every link row.
func (r *LinkRepository) All(ctx context.Context) ([]*identity.Link, error) {
	query := `
		SELECT minecraft_uuid, discord_id, minecraft_username, linked_at
		FROM discord_links
		ORDER BY linked_at ASC
	`

	rows, err := r.conn.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query links: %w", err)
	}
	defer rows.Close()

	var links []*identity.Link
	for rows.Next() {
		var link identity.Link
		if err := rows.Scan(
			&link.MinecraftUUID,
			&link.DiscordID,
			&link.MinecraftUsername,
			&link.LinkedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan link row: %w", err)
		}
		links = append(links, &link)
	}

	return links, rows.Err()
}

// LinkCodeRepository implements identity.CodeRepository over the
// linking_codes table.
type LinkCodeRepository struct {
	conn *Connection
}

// NewLinkCodeRepository creates a new LinkCodeRepository.
func NewLinkCodeRepository(conn *Connection) *LinkCodeRepository {
	return &LinkCodeRepository{conn: conn}
}

// Replace deletes any existing code for the user and stores the new one,
// atomically, so a user never holds two active codes.
func (r *LinkCodeRepository) Replace(ctx context.Context, code *identity.LinkCode) error {
	return r.conn.WithTx(ctx, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx,
			`DELETE FROM linking_codes WHERE discord_id = $1`, code.DiscordID); err != nil {
			return fmt.Errorf("failed to delete old linking code: %w", err)
		}

		_, err := tx.Exec(ctx, `
			INSERT INTO linking_codes (discord_id, discord_username, code_hash, expires_at)
			VALUES ($1, $2, $3, $4)
		`, code.DiscordID, code.DiscordUsername, code.CodeHash, code.ExpiresAt)
		if err != nil {
			return fmt.Errorf("failed to insert linking code: %w", err)
		}
		return nil
	})
}

// Active returns all unexpired codes.
func (r *LinkCodeRepository) Active(ctx context.Context, now time.Time) ([]*identity.LinkCode, error) {
	query := `
		SELECT discord_id, discord_username, code_hash, expires_at
		FROM linking_codes
		WHERE expires_at > $1
	`

	rows, err := r.conn.Query(ctx, query, now)
	if err != nil {
		return nil, fmt.Errorf("failed to query linking codes: %w", err)
	}
	defer rows.Close()

	var codes []*identity.LinkCode
	for rows.Next() {
		var c identity.LinkCode
		if err := rows.Scan(&c.DiscordID, &c.DiscordUsername, &c.CodeHash, &c.ExpiresAt); err != nil {
			return nil, fmt.Errorf("failed to scan linking code row: %w", err)
		}
		codes = append(codes, &c)
	}

	return codes, rows.Err()
}

// Delete removes the code for a user.
func (r *LinkCodeRepository) Delete(ctx context.Context, discordID string) error {
	_, err := r.conn.Exec(ctx,
		`DELETE FROM linking_codes WHERE discord_id = $1`, discordID)
	if err != nil {
		return fmt.Errorf("failed to delete linking code: %w", err)
	}
	return nil
}

// PurgeExpired removes rows past their TTL.
func (r *LinkCodeRepository) PurgeExpired(ctx context.Context, now time.Time) (int64, error) {
	tag, err := r.conn.Exec(ctx,
		`DELETE FROM linking_codes WHERE expires_at <= $1`, now)
	if err != nil {
		return 0, fmt.Errorf("failed to purge linking codes: %w", err)
	}
	return tag.RowsAffected(), nil
}
