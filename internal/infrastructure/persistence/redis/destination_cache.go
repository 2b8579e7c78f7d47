package redis

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/bridgemc/bridge-community-bot/internal/domain/tiertest"
	"github.com/bridgemc/bridge-community-bot/pkg/logger"
)

// allDestinationsKey caches the full destination list used by the
// leaderboard publisher each poll.
const allDestinationsKey = PrefixDestinations + "all"

// CachedDestinationRepository is a read-through cache over a
// tiertest.DestinationRepository. Cache failures degrade to the
// underlying repository and are logged, never surfaced.
type CachedDestinationRepository struct {
	inner  tiertest.DestinationRepository
	cache  *Cache
	ttl    time.Duration
	logger *slog.Logger
}

// NewCachedDestinationRepository wraps repo with Redis caching.
func NewCachedDestinationRepository(
	inner tiertest.DestinationRepository,
	cache *Cache,
	ttl time.Duration,
	logger *slog.Logger,
) *CachedDestinationRepository {
	if logger == nil {
		logger = slog.Default()
	}
	return &CachedDestinationRepository{
		inner:  inner,
		cache:  cache,
		ttl:    ttl,
		logger: logger,
	}
}

// All returns every configured guild, from cache when fresh.
func (r *CachedDestinationRepository) All(ctx context.Context) ([]tiertest.DestinationConfig, error) {
	var cached []tiertest.DestinationConfig
	err := r.cache.Get(ctx, allDestinationsKey, &cached)
	if err == nil {
		return cached, nil
	}
	if !errors.Is(err, ErrCacheMiss) {
		r.logger.Warn("destination cache read failed", "error", err)
	}

	configs, err := r.inner.All(ctx)
	if err != nil {
		return nil, err
	}

	if err := r.cache.Set(ctx, allDestinationsKey, configs, r.ttl); err != nil {
		r.logger.Warn("destination cache write failed", "error", err)
	}
	return configs, nil
}

// Get returns one guild's config, from cache when fresh.
func (r *CachedDestinationRepository) Get(ctx context.Context, guildID string) (*tiertest.DestinationConfig, error) {
	key := DestinationsKey(guildID)

	var cached tiertest.DestinationConfig
	err := r.cache.Get(ctx, key, &cached)
	if err == nil {
		return &cached, nil
	}
	if !errors.Is(err, ErrCacheMiss) {
		r.logger.Warn("destination cache read failed", "error", err, logger.GuildID(guildID))
	}

	cfg, err := r.inner.Get(ctx, guildID)
	if err != nil {
		return nil, err
	}

	if err := r.cache.Set(ctx, key, cfg, r.ttl); err != nil {
		r.logger.Warn("destination cache write failed", "error", err, logger.GuildID(guildID))
	}
	return cfg, nil
}

// Upsert writes through to the repository and invalidates stale entries.
func (r *CachedDestinationRepository) Upsert(ctx context.Context, cfg tiertest.DestinationConfig) error {
	if err := r.inner.Upsert(ctx, cfg); err != nil {
		return err
	}

	if err := r.cache.Delete(ctx, allDestinationsKey, DestinationsKey(cfg.GuildID)); err != nil {
		r.logger.Warn("destination cache invalidation failed", "error", err, logger.GuildID(cfg.GuildID))
	}
	return nil
}
