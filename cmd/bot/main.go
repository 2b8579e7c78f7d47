// Package main is the entry point for the Bridge community bot: the
// process that mirrors game-server state into Discord. It runs two
// polling pipelines against the shared database - the notification
// dispatcher and the leaderboard publisher - plus the periodic cleanup
// of expired linking codes.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/bridgemc/bridge-community-bot/config"
	"github.com/bridgemc/bridge-community-bot/internal/application/leaderboard"
	"github.com/bridgemc/bridge-community-bot/internal/application/linking"
	"github.com/bridgemc/bridge-community-bot/internal/application/notifier"
	"github.com/bridgemc/bridge-community-bot/internal/application/rolesync"
	"github.com/bridgemc/bridge-community-bot/internal/application/tickets"
	"github.com/bridgemc/bridge-community-bot/internal/domain/event"
	"github.com/bridgemc/bridge-community-bot/internal/domain/rank"
	"github.com/bridgemc/bridge-community-bot/internal/domain/tiertest"
	"github.com/bridgemc/bridge-community-bot/internal/infrastructure/external/discord"
	"github.com/bridgemc/bridge-community-bot/internal/infrastructure/persistence/postgres"
	"github.com/bridgemc/bridge-community-bot/internal/infrastructure/persistence/redis"
	"github.com/bridgemc/bridge-community-bot/internal/infrastructure/scheduler"
	"github.com/bridgemc/bridge-community-bot/pkg/logger"
)

// Linking codes per user per window. Generous: a legitimate user retries
// a handful of times at most, a spammer hammers the bcrypt path.
const (
	linkCodeRateLimit  = 5
	linkCodeRateWindow = 10 * time.Minute
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "fatal error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	log := logger.New(logger.Options{
		Level:  cfg.Observability.LogLevel,
		Format: cfg.Observability.LogFormat,
	})
	slog.SetDefault(log)

	log.Info("starting bridge community bot",
		"version", cfg.App.Version,
		"env", string(cfg.App.Environment),
		"debug", cfg.App.Debug,
	)

	// Database. Shared with the game server plugin; the plugin writes the
	// event and result rows this process consumes.
	log.Info("connecting to database")
	dbCfg := postgres.DefaultConfig()
	dbCfg.URL = cfg.Database.URL
	dbCfg.MaxConns = cfg.Database.MaxConns
	dbCfg.MinConns = cfg.Database.MinConns
	dbCfg.MaxConnLifetime = cfg.Database.ConnMaxLifetime
	dbCfg.MaxConnIdleTime = cfg.Database.ConnMaxIdleTime

	db, err := postgres.NewConnection(ctx, dbCfg)
	if err != nil {
		return fmt.Errorf("connect to database: %w", err)
	}
	defer func() {
		log.Info("closing database connection")
		db.Close()
	}()
	log.Info("database connection established")

	// Repositories.
	eventRepo := postgres.NewEventRepository(db)
	linkRepo := postgres.NewLinkRepository(db)
	codeRepo := postgres.NewLinkCodeRepository(db)
	resultRepo := postgres.NewResultRepository(db)
	requestRepo := postgres.NewRequestRepository(db)
	rankSource := postgres.NewPlayerRankSource(db)

	var destinationRepo tiertest.DestinationRepository = postgres.NewDestinationRepository(db)

	// Redis is optional: it caches destination config rows and throttles
	// linking-code generation. Without it both degrade gracefully.
	var codeLimiter linking.RateLimiter
	if !cfg.Redis.Disabled {
		log.Info("connecting to redis")
		redisCfg := redis.DefaultConfig()
		if cfg.Redis.Host != "" {
			redisCfg.Host = cfg.Redis.Host
		}
		if cfg.Redis.Port != 0 {
			redisCfg.Port = cfg.Redis.Port
		}
		redisCfg.Password = cfg.Redis.Password
		redisCfg.DB = cfg.Redis.DB

		cache, err := redis.NewCache(redisCfg)
		if err != nil {
			log.Warn("redis unavailable, caching and rate limiting disabled", "error", err)
		} else {
			defer cache.Close()
			destinationRepo = redis.NewCachedDestinationRepository(
				destinationRepo, cache, cfg.Leaderboard.ConfigCacheTTL, log,
			)
			codeLimiter = redis.NewRateLimiter(cache, linkCodeRateLimit, linkCodeRateWindow)
			log.Info("redis connection established")
		}
	}

	// Discord REST client.
	discordCfg := discord.DefaultClientConfig(cfg.Discord.Token)
	if cfg.Discord.BaseURL != "" {
		discordCfg.BaseURL = cfg.Discord.BaseURL
	}
	if cfg.Discord.RequestTimeout > 0 {
		discordCfg.Timeout = cfg.Discord.RequestTimeout
	}
	if cfg.Discord.MaxRetries > 0 {
		discordCfg.MaxRetries = cfg.Discord.MaxRetries
	}
	if cfg.Discord.RetryBaseDelay > 0 {
		discordCfg.RetryBaseDelay = cfg.Discord.RetryBaseDelay
	}
	if cfg.Discord.CircuitBreakerThreshold > 0 {
		discordCfg.BreakerThreshold = cfg.Discord.CircuitBreakerThreshold
	}
	if cfg.Discord.CircuitBreakerTimeout > 0 {
		discordCfg.BreakerTimeout = cfg.Discord.CircuitBreakerTimeout
	}
	discordCfg.Logger = log
	discordCfg.Debug = cfg.App.Debug
	gateway := discord.NewClient(discordCfg)

	// Application services.
	catalog := rank.DefaultCatalog()
	reconciler := rolesync.NewReconciler(gateway, catalog, log)
	roleSync := rolesync.NewService(linkRepo, rankSource, reconciler, log)

	linkService := linking.NewService(
		linkRepo, codeRepo, eventRepo, codeLimiter,
		cfg.Linking.CodeTTL, cfg.Linking.CodeLength, log,
	)

	var ticketService *tickets.Service
	if cfg.Tickets.Enabled {
		ticketService = tickets.NewService(
			requestRepo, gateway, cfg.Tickets.CloseDelay, cfg.Tickets.TesterRoleNames, log,
		)
		defer ticketService.Shutdown()
	}

	dispatcher := notifier.NewDispatcher(eventRepo, cfg.Dispatcher.BatchSize, log)
	dispatcher.RegisterHandler(event.KindLink,
		notifier.NewLinkHandler(gateway, cfg.Features, log))
	gameResults := notifier.NewGameResultHandler(destinationRepo, gateway, cfg.Features, log)
	dispatcher.RegisterHandler(event.KindGameResult, gameResults)
	dispatcher.RegisterHandler(event.KindHighscore, gameResults)
	dispatcher.RegisterHandler(event.KindRankUp,
		notifier.NewRankUpHandler(linkRepo, reconciler, gateway, catalog, cfg.Features, cfg.Dispatcher, log))

	publisher := leaderboard.NewPublisher(
		resultRepo, destinationRepo, gateway, cfg.Features, cfg.Leaderboard.BatchSize, log,
	)

	// Scheduler: the polling loops.
	sched := scheduler.New(log)

	if cfg.Dispatcher.Enabled {
		err := sched.Register(scheduler.FuncJob{
			JobName: "dispatch-notifications",
			Desc:    "claim and handle pending notification rows",
			Fn: func(ctx context.Context) error {
				_, err := dispatcher.Dispatch(ctx)
				return err
			},
		}, scheduler.NewIntervalSchedule(cfg.Dispatcher.PollInterval))
		if err != nil {
			return fmt.Errorf("register dispatcher job: %w", err)
		}
	}

	if cfg.Leaderboard.Enabled {
		err := sched.Register(scheduler.FuncJob{
			JobName: "publish-leaderboard",
			Desc:    "deliver unpublished tier test results",
			Fn: func(ctx context.Context) error {
				_, err := publisher.PublishUnpublished(ctx)
				return err
			},
		}, scheduler.NewIntervalSchedule(cfg.Leaderboard.PollInterval))
		if err != nil {
			return fmt.Errorf("register leaderboard job: %w", err)
		}
	}

	err = sched.Register(scheduler.FuncJob{
		JobName: "purge-link-codes",
		Desc:    "drop expired linking codes",
		Fn: func(ctx context.Context) error {
			_, err := linkService.PurgeExpired(ctx)
			return err
		},
	}, scheduler.NewIntervalSchedule(cfg.Linking.CodeTTL))
	if err != nil {
		return fmt.Errorf("register purge job: %w", err)
	}

	if err := sched.Start(ctx); err != nil {
		return fmt.Errorf("start scheduler: %w", err)
	}
	log.Info("scheduler started",
		"dispatcher_enabled", cfg.Dispatcher.Enabled,
		"leaderboard_enabled", cfg.Leaderboard.Enabled,
	)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)

	// SIGHUP triggers the admin recovery path: a full role sync of every
	// guild against the authoritative rank rows.
	running := true
	for running {
		select {
		case sig := <-sigCh:
			if sig == syscall.SIGHUP {
				go fullRoleSync(ctx, roleSync, gateway, log)
				continue
			}
			log.Info("received shutdown signal", "signal", sig.String())
			running = false
		case <-ctx.Done():
			log.Info("context cancelled")
			running = false
		}
	}

	log.Info("starting graceful shutdown", "timeout", cfg.App.ShutdownTimeout.String())
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.App.ShutdownTimeout)
	defer shutdownCancel()

	done := make(chan struct{})
	go func() {
		if err := sched.Stop(); err != nil {
			log.Warn("scheduler stop failed", "error", err)
		}
		close(done)
	}()

	select {
	case <-done:
		log.Info("shutdown complete")
	case <-shutdownCtx.Done():
		log.Warn("shutdown timed out, exiting anyway")
	}

	return nil
}

// fullRoleSync walks every guild and reconciles each linked member
// against the authoritative rank rows.
func fullRoleSync(ctx context.Context, roleSync *rolesync.Service, gateway *discord.Client, log *slog.Logger) {
	log.Info("full role sync requested")

	guilds, err := gateway.Guilds(ctx)
	if err != nil {
		log.Error("full role sync: list guilds failed", "error", err)
		return
	}

	for _, guild := range guilds {
		report, err := roleSync.SyncGuild(ctx, guild.ID)
		if err != nil {
			log.Error("full role sync failed", "guild_id", guild.ID, "error", err)
			continue
		}
		log.Info("full role sync done",
			"guild_id", guild.ID,
			"total", report.Total,
			"applied", report.Applied,
			"skipped", report.Skipped,
			"not_members", report.NotMembers,
			"failed", report.Failed,
		)
	}
}
