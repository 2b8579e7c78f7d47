package config

import (
	"hash/fnv"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"
)

// FeatureFlags manages feature toggles for the bot. Flags gate the
// side-effecting parts of event processing so a misbehaving feature can
// be switched off without redeploying.
type FeatureFlags struct {
	mu sync.RWMutex

	features map[string]*Feature

	// Per-guild overrides for testing and staged rollouts
	guildOverrides map[string]map[string]bool // guildID -> feature -> enabled
}

// Feature represents a single feature flag.
type Feature struct {
	Name        string
	Description string
	Enabled     bool

	// Rollout percentage (0-100). Guilds are bucketed by an FNV hash of
	// their id, so assignment is stable across restarts.
	RolloutPercent int

	// Time-based activation
	EnabledFrom  *time.Time
	EnabledUntil *time.Time
}

// FeatureContext provides context for feature flag evaluation.
type FeatureContext struct {
	GuildID string
}

// Predefined feature flag names.
const (
	// === Notification features ===
	FeatureNicknameSync      = "notify.nickname_sync"      // rename members to their linked game name
	FeatureGameResults       = "notify.game_results"       // post game result embeds
	FeatureRankAnnouncements = "notify.rank_announcements" // announce high rank-ups

	// === Role sync ===
	FeatureRoleSync = "roles.sync" // reconcile rank roles on rank-up events

	// === Leaderboard ===
	FeatureLeaderboardPublish  = "leaderboard.publish"   // publish tier test results
	FeatureLeaderboardHighTier = "leaderboard.high_tier" // duplicate high results to the high channel

	// === Tickets ===
	FeatureTickets = "tickets.enabled" // tier-test request channels
)

// defaultFeatures returns the built-in flag registry.
func defaultFeatures() map[string]*Feature {
	features := map[string]*Feature{
		FeatureNicknameSync: {
			Name:        FeatureNicknameSync,
			Description: "Rename linked members to their Minecraft username",
			Enabled:     true,
		},
		FeatureGameResults: {
			Name:        FeatureGameResults,
			Description: "Post game result and highscore embeds",
			Enabled:     true,
		},
		FeatureRankAnnouncements: {
			Name:        FeatureRankAnnouncements,
			Description: "Announce rank-ups at or above the significance threshold",
			Enabled:     true,
		},
		FeatureRoleSync: {
			Name:        FeatureRoleSync,
			Description: "Reconcile victory-rank roles against authoritative rank rows",
			Enabled:     true,
		},
		FeatureLeaderboardPublish: {
			Name:        FeatureLeaderboardPublish,
			Description: "Publish tier test results to configured channels",
			Enabled:     true,
		},
		FeatureLeaderboardHighTier: {
			Name:        FeatureLeaderboardHighTier,
			Description: "Duplicate high-tier results to the high channel",
			Enabled:     true,
		},
		FeatureTickets: {
			Name:        FeatureTickets,
			Description: "Tier-test request tickets with private channels",
			Enabled:     true,
		},
	}

	for _, f := range features {
		f.RolloutPercent = 100
	}

	return features
}

// LoadFeatureFlags builds the registry with environment overrides applied.
// FEATURE_<NAME>=false disables a flag, where <NAME> is the flag name
// uppercased with dots replaced by underscores.
func LoadFeatureFlags() *FeatureFlags {
	ff := &FeatureFlags{
		features:       defaultFeatures(),
		guildOverrides: make(map[string]map[string]bool),
	}

	for name, f := range ff.features {
		envKey := "FEATURE_" + strings.ToUpper(strings.ReplaceAll(name, ".", "_"))
		if val := os.Getenv(envKey); val != "" {
			if b, err := strconv.ParseBool(val); err == nil {
				f.Enabled = b
			}
		}
	}

	return ff
}

// IsEnabled evaluates a flag without guild context.
func (ff *FeatureFlags) IsEnabled(name string) bool {
	return ff.IsEnabledFor(name, FeatureContext{})
}

// IsEnabledFor evaluates a flag for the given context.
func (ff *FeatureFlags) IsEnabledFor(name string, ctx FeatureContext) bool {
	ff.mu.RLock()
	defer ff.mu.RUnlock()

	if ctx.GuildID != "" {
		if overrides, ok := ff.guildOverrides[ctx.GuildID]; ok {
			if enabled, ok := overrides[name]; ok {
				return enabled
			}
		}
	}

	f, ok := ff.features[name]
	if !ok || !f.Enabled {
		return false
	}

	now := time.Now()
	if f.EnabledFrom != nil && now.Before(*f.EnabledFrom) {
		return false
	}
	if f.EnabledUntil != nil && now.After(*f.EnabledUntil) {
		return false
	}

	if f.RolloutPercent < 100 {
		if ctx.GuildID == "" {
			return false
		}
		return bucketOf(ctx.GuildID) < f.RolloutPercent
	}

	return true
}

// SetOverride forces a flag on or off for one guild.
func (ff *FeatureFlags) SetOverride(guildID, name string, enabled bool) {
	ff.mu.Lock()
	defer ff.mu.Unlock()

	if ff.guildOverrides[guildID] == nil {
		ff.guildOverrides[guildID] = make(map[string]bool)
	}
	ff.guildOverrides[guildID][name] = enabled
}

// ClearOverride removes a per-guild override.
func (ff *FeatureFlags) ClearOverride(guildID, name string) {
	ff.mu.Lock()
	defer ff.mu.Unlock()

	if overrides, ok := ff.guildOverrides[guildID]; ok {
		delete(overrides, name)
	}
}

// SetEnabled toggles a flag globally.
func (ff *FeatureFlags) SetEnabled(name string, enabled bool) {
	ff.mu.Lock()
	defer ff.mu.Unlock()

	if f, ok := ff.features[name]; ok {
		f.Enabled = enabled
	}
}

// List returns a snapshot of all registered features.
func (ff *FeatureFlags) List() []Feature {
	ff.mu.RLock()
	defer ff.mu.RUnlock()

	out := make([]Feature, 0, len(ff.features))
	for _, f := range ff.features {
		out = append(out, *f)
	}
	return out
}

// bucketOf maps an id to a stable bucket in [0, 100).
func bucketOf(id string) int {
	h := fnv.New32a()
	h.Write([]byte(id))
	return int(h.Sum32() % 100)
}
