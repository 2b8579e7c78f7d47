package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultFlagsAreEnabled(t *testing.T) {
	ff := LoadFeatureFlags()

	for _, name := range []string{
		FeatureNicknameSync,
		FeatureGameResults,
		FeatureRankAnnouncements,
		FeatureRoleSync,
		FeatureLeaderboardPublish,
		FeatureLeaderboardHighTier,
		FeatureTickets,
	} {
		assert.True(t, ff.IsEnabled(name), "flag %s", name)
	}
}

func TestUnknownFlagIsDisabled(t *testing.T) {
	ff := LoadFeatureFlags()
	assert.False(t, ff.IsEnabled("notify.does_not_exist"))
}

func TestEnvVarDisablesFlag(t *testing.T) {
	t.Setenv("FEATURE_NOTIFY_NICKNAME_SYNC", "false")
	ff := LoadFeatureFlags()

	assert.False(t, ff.IsEnabled(FeatureNicknameSync))
	assert.True(t, ff.IsEnabled(FeatureGameResults))
}

func TestSetEnabledTogglesGlobally(t *testing.T) {
	ff := LoadFeatureFlags()

	ff.SetEnabled(FeatureRoleSync, false)
	assert.False(t, ff.IsEnabledFor(FeatureRoleSync, FeatureContext{GuildID: "g1"}))

	ff.SetEnabled(FeatureRoleSync, true)
	assert.True(t, ff.IsEnabledFor(FeatureRoleSync, FeatureContext{GuildID: "g1"}))
}

func TestGuildOverrideWinsOverGlobal(t *testing.T) {
	ff := LoadFeatureFlags()

	ff.SetOverride("g1", FeatureRankAnnouncements, false)
	assert.False(t, ff.IsEnabledFor(FeatureRankAnnouncements, FeatureContext{GuildID: "g1"}))
	assert.True(t, ff.IsEnabledFor(FeatureRankAnnouncements, FeatureContext{GuildID: "g2"}))

	ff.ClearOverride("g1", FeatureRankAnnouncements)
	assert.True(t, ff.IsEnabledFor(FeatureRankAnnouncements, FeatureContext{GuildID: "g1"}))
}

func TestOverrideCanEnableDisabledFlag(t *testing.T) {
	ff := LoadFeatureFlags()
	ff.SetEnabled(FeatureTickets, false)

	ff.SetOverride("g1", FeatureTickets, true)
	assert.True(t, ff.IsEnabledFor(FeatureTickets, FeatureContext{GuildID: "g1"}))
	assert.False(t, ff.IsEnabledFor(FeatureTickets, FeatureContext{GuildID: "g2"}))
}

func TestTimeWindowGating(t *testing.T) {
	ff := LoadFeatureFlags()
	future := time.Now().Add(time.Hour)

	ff.mu.Lock()
	ff.features[FeatureGameResults].EnabledFrom = &future
	ff.mu.Unlock()

	assert.False(t, ff.IsEnabled(FeatureGameResults))
}

func TestRolloutBucketIsStable(t *testing.T) {
	require.Equal(t, bucketOf("g1"), bucketOf("g1"))
	assert.GreaterOrEqual(t, bucketOf("g1"), 0)
	assert.Less(t, bucketOf("g1"), 100)
}

func TestPartialRolloutRequiresGuildContext(t *testing.T) {
	ff := LoadFeatureFlags()

	ff.mu.Lock()
	ff.features[FeatureLeaderboardHighTier].RolloutPercent = 0
	ff.mu.Unlock()

	assert.False(t, ff.IsEnabled(FeatureLeaderboardHighTier))
	assert.False(t, ff.IsEnabledFor(FeatureLeaderboardHighTier, FeatureContext{GuildID: "g1"}))
}

func TestListReturnsSnapshot(t *testing.T) {
	ff := LoadFeatureFlags()
	features := ff.List()
	assert.Len(t, features, 7)
}
