// Package rank contains the victory-rank catalog: the ordered sequence of
// named tiers a player climbs by winning Bridge matches. Ranks and levels
// are computed by the game server; the catalog is read-only to the bot
// and only describes presentation (role names, embed colors) and order.
package rank

import (
	"context"
	"errors"
)

// ErrUnknownRank is returned when a rank name is not in the catalog.
var ErrUnknownRank = errors.New("rank: unknown rank name")

// Tier is one step of the rank ladder.
type Tier struct {
	// Level is the 0-based position in the ladder, matching the
	// new_rank_level values the game plugin writes.
	Level int

	// Name is both the display name and the Discord role name bound to
	// this tier.
	Name string

	// Color is the embed accent color for announcements of this tier.
	Color int
}

// Catalog is the ordered rank ladder, low to high.
type Catalog struct {
	tiers  []Tier
	byName map[string]Tier
}

// NewCatalog builds a catalog from tiers ordered low to high.
func NewCatalog(tiers []Tier) *Catalog {
	byName := make(map[string]Tier, len(tiers))
	for _, t := range tiers {
		byName[t.Name] = t
	}
	return &Catalog{tiers: tiers, byName: byName}
}

// DefaultCatalog returns the Bridge ladder the game server ships with.
func DefaultCatalog() *Catalog {
	return NewCatalog([]Tier{
		{Level: 0, Name: "Bridge Novato", Color: 0x808080},
		{Level: 1, Name: "Bridge Aprendiz", Color: 0xc0c0c0},
		{Level: 2, Name: "Bridge Competidor", Color: 0x9370db},
		{Level: 3, Name: "Bridge Avanzado", Color: 0x00bfff},
		{Level: 4, Name: "Bridge Experto", Color: 0x00ff00},
		{Level: 5, Name: "Bridge Maestro", Color: 0xffd700},
		{Level: 6, Name: "Bridge Deidad", Color: 0xff0000},
	})
}

// Tiers returns the ladder, low to high.
func (c *Catalog) Tiers() []Tier {
	out := make([]Tier, len(c.tiers))
	copy(out, c.tiers)
	return out
}

// RoleNames returns every role name bound to a tier, low to high. The
// reconciler treats exactly this set as "rank roles" when computing the
// removal delta.
func (c *Catalog) RoleNames() []string {
	names := make([]string, 0, len(c.tiers))
	for _, t := range c.tiers {
		names = append(names, t.Name)
	}
	return names
}

// ByName looks a tier up by its role name.
func (c *Catalog) ByName(name string) (Tier, bool) {
	t, ok := c.byName[name]
	return t, ok
}

// Contains reports whether name is a catalog role name.
func (c *Catalog) Contains(name string) bool {
	_, ok := c.byName[name]
	return ok
}

// Color returns the embed color for a rank name, or a neutral gray for
// names outside the catalog.
func (c *Catalog) Color(name string) int {
	if t, ok := c.byName[name]; ok {
		return t.Color
	}
	return 0x808080
}

// Source provides the authoritative current rank of a player, as computed
// and persisted by the game server. Used by the manual full role sync.
type Source interface {
	// VictoryRank returns the player's current rank name.
	// Returns ErrUnknownRank when the player has no rank row.
	VictoryRank(ctx context.Context, minecraftUUID string) (string, error)
}
