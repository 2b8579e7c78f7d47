package tiertest

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLabelIsHigh(t *testing.T) {
	cases := []struct {
		label Label
		high  bool
	}{
		{"GT1", true},
		{"GT3", true},
		{"HT1", true},
		{"HT5", true},
		{"MT1", true},
		{"MT2", true},
		{"LT1", false},
		{"LT2", true},
		{"LT5", true},
		{"LT9", true},
		{"lt3", true},
		{" ht2 ", true},
		{"", false},
		{"N/A", false},
		{"unranked", false},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.high, tc.label.IsHigh(), "label %q", tc.label)
	}
}

func TestLabelDivision(t *testing.T) {
	assert.Equal(t, "God Tier", Label("GT1").Division())
	assert.Equal(t, "High Tier", Label("HT2").Division())
	assert.Equal(t, "Mid Tier", Label("mt1").Division())
	assert.Equal(t, "Low Tier", Label("LT4").Division())
	assert.Equal(t, "Sin División", Label("N/A").Division())
}

func TestLabelEmoji(t *testing.T) {
	assert.Equal(t, "👑", Label("GT1").Emoji())
	assert.Equal(t, "💎", Label("HT1").Emoji())
	assert.Equal(t, "⭐", Label("MT1").Emoji())
	assert.Equal(t, "🔥", Label("LT3").Emoji())
	assert.Equal(t, "❓", Label("").Emoji())
}

func TestLabelColorByLowTierDepth(t *testing.T) {
	assert.Equal(t, 0xff0000, Label("GT1").Color())
	assert.Equal(t, 0x00ff88, Label("LT2").Color())
	assert.Equal(t, 0x00d9ff, Label("LT5").Color())
	assert.Equal(t, 0x9d4edd, Label("LT8").Color())
	assert.Equal(t, 0x7289da, Label("").Color())
}
