package event

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseKindNormalizesLegacySpellings(t *testing.T) {
	cases := []struct {
		raw  string
		want Kind
	}{
		{"LINK", KindLink},
		{"LINK_SUCCESS", KindLink},
		{"new_link", KindLink},
		{"GAME_RESULT", KindGameResult},
		{"game_result", KindGameResult},
		{"HIGHSCORE", KindHighscore},
		{"highscore", KindHighscore},
		{"RANK_UP", KindRankUp},
		{"rank_up", KindRankUp},
	}
	for _, tc := range cases {
		kind, ok := ParseKind(tc.raw)
		assert.True(t, ok, "raw %q", tc.raw)
		assert.Equal(t, tc.want, kind, "raw %q", tc.raw)
	}
}

func TestParseKindUnknownValueYieldsZeroKind(t *testing.T) {
	kind, ok := ParseKind("SOMETHING_NEW")
	assert.False(t, ok)
	assert.Equal(t, Kind(""), kind)
}

func TestDecodePayloadByKind(t *testing.T) {
	p, err := DecodePayload(KindLink, []byte(`{"minecraft_username":"Steve"}`))
	require.NoError(t, err)
	link, ok := p.(LinkPayload)
	require.True(t, ok)
	assert.Equal(t, "Steve", link.MinecraftUsername)

	p, err = DecodePayload(KindHighscore, []byte(`{"player_name":"Steve","stats":{"wins":12}}`))
	require.NoError(t, err)
	result, ok := p.(GameResultPayload)
	require.True(t, ok)
	assert.Equal(t, "Steve", result.PlayerName)
	assert.EqualValues(t, 12, result.Stats["wins"])

	p, err = DecodePayload(KindRankUp, []byte(`{"player_name":"Steve","new_rank_name":"Bridge Experto","new_rank_level":4}`))
	require.NoError(t, err)
	promo, ok := p.(RankUpPayload)
	require.True(t, ok)
	assert.Equal(t, "Bridge Experto", promo.NewRankName)
	assert.Equal(t, 4, promo.NewRankLevel)
}

func TestDecodePayloadEmptyBlobIsZeroValue(t *testing.T) {
	p, err := DecodePayload(KindLink, nil)
	require.NoError(t, err)
	assert.Equal(t, LinkPayload{}, p)
}

func TestDecodePayloadMalformedJSON(t *testing.T) {
	_, err := DecodePayload(KindRankUp, []byte(`{not json`))
	assert.ErrorIs(t, err, ErrInvalidPayload)
}

func TestDecodePayloadUnknownKind(t *testing.T) {
	_, err := DecodePayload(Kind("SOMETHING_NEW"), []byte(`{}`))
	assert.ErrorIs(t, err, ErrUnknownKind)
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	raw, err := EncodePayload(LinkPayload{MinecraftUsername: "Steve"})
	require.NoError(t, err)

	p, err := DecodePayload(KindLink, raw)
	require.NoError(t, err)
	assert.Equal(t, LinkPayload{MinecraftUsername: "Steve"}, p)
}

func TestStateIsTerminal(t *testing.T) {
	assert.False(t, StatePending.IsTerminal())
	assert.True(t, StateProcessed.IsTerminal())
	assert.True(t, StateFailed.IsTerminal())
}
