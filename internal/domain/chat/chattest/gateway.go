// Package chattest provides an in-memory chat.Gateway for tests.
// Guilds, members, roles, and channels are plain maps; every mutation
// is recorded so tests can assert on call counts and role deltas.
package chattest

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/bridgemc/bridge-community-bot/internal/domain/chat"
)

// FakeGuild is the mutable in-memory state of one guild.
type FakeGuild struct {
	Guild    chat.Guild
	Members  map[string]*chat.Member
	Roles    []chat.Role
	Channels []chat.Channel

	// BotPerms is what BotPermissions reports for this guild.
	BotPerms chat.PermissionSet

	// BotUserID identifies the bot's own membership.
	BotUserID string
}

// Call records one mutation for assertions.
type Call struct {
	Op         string
	GuildID    string
	UserID     string
	RoleID     string
	ChannelID  string
	Nickname   string
	Content    string
	Embeds     []chat.Embed
	Overwrites []chat.PermissionOverwrite
}

// Gateway is an in-memory chat.Gateway.
type Gateway struct {
	mu     sync.Mutex
	guilds map[string]*FakeGuild
	calls  []Call

	// Errors to inject, keyed by op name ("AddRole", "SendEmbed", ...).
	failures map[string]error

	nextChannelID int
}

// NewGateway creates an empty fake gateway.
func NewGateway() *Gateway {
	return &Gateway{
		guilds:   make(map[string]*FakeGuild),
		failures: make(map[string]error),
	}
}

// AddGuild registers a guild. Returns the FakeGuild for further setup.
func (g *Gateway) AddGuild(id, name, ownerID string) *FakeGuild {
	g.mu.Lock()
	defer g.mu.Unlock()

	fg := &FakeGuild{
		Guild:     chat.Guild{ID: id, Name: name, OwnerID: ownerID},
		Members:   make(map[string]*chat.Member),
		BotPerms:  ^chat.PermissionSet(0),
		BotUserID: "bot",
	}
	fg.Members["bot"] = &chat.Member{UserID: "bot", Username: "bot"}
	g.guilds[id] = fg
	return fg
}

// AddMember adds a member to a guild.
func (fg *FakeGuild) AddMember(userID, username string, roleIDs ...string) *chat.Member {
	m := &chat.Member{UserID: userID, Username: username, RoleIDs: roleIDs}
	fg.Members[userID] = m
	return m
}

// AddRole adds a role definition to a guild.
func (fg *FakeGuild) AddRole(id, name string, position int) {
	fg.Roles = append(fg.Roles, chat.Role{ID: id, Name: name, Position: position})
}

// AddChannel adds a channel to a guild.
func (fg *FakeGuild) AddChannel(id, name string) {
	fg.Channels = append(fg.Channels, chat.Channel{ID: id, GuildID: fg.Guild.ID, Name: name})
}

// FailWith injects an error for every subsequent call of op.
func (g *Gateway) FailWith(op string, err error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.failures[op] = err
}

// Calls returns all recorded mutations.
func (g *Gateway) Calls() []Call {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make([]Call, len(g.calls))
	copy(out, g.calls)
	return out
}

// CallsOf returns recorded mutations of one op.
func (g *Gateway) CallsOf(op string) []Call {
	g.mu.Lock()
	defer g.mu.Unlock()
	var out []Call
	for _, c := range g.calls {
		if c.Op == op {
			out = append(out, c)
		}
	}
	return out
}

func (g *Gateway) record(c Call) {
	g.calls = append(g.calls, c)
}

func (g *Gateway) fail(op string) error {
	return g.failures[op]
}

func (g *Gateway) guild(id string) (*FakeGuild, error) {
	fg, ok := g.guilds[id]
	if !ok {
		return nil, fmt.Errorf("fake gateway: unknown guild %s", id)
	}
	return fg, nil
}

func (g *Gateway) Guilds(ctx context.Context) ([]chat.Guild, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.fail("Guilds"); err != nil {
		return nil, err
	}
	var out []chat.Guild
	for _, fg := range g.guilds {
		out = append(out, fg.Guild)
	}
	return out, nil
}

func (g *Gateway) Guild(ctx context.Context, guildID string) (*chat.Guild, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	fg, err := g.guild(guildID)
	if err != nil {
		return nil, err
	}
	guild := fg.Guild
	return &guild, nil
}

func (g *Gateway) Member(ctx context.Context, guildID, userID string) (*chat.Member, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.fail("Member"); err != nil {
		return nil, err
	}
	fg, err := g.guild(guildID)
	if err != nil {
		return nil, err
	}
	m, ok := fg.Members[userID]
	if !ok {
		return nil, chat.ErrMemberNotFound
	}
	cp := *m
	cp.RoleIDs = append([]string(nil), m.RoleIDs...)
	return &cp, nil
}

func (g *Gateway) BotMember(ctx context.Context, guildID string) (*chat.Member, error) {
	g.mu.Lock()
	botID := ""
	if fg, ok := g.guilds[guildID]; ok {
		botID = fg.BotUserID
	}
	g.mu.Unlock()
	return g.Member(ctx, guildID, botID)
}

func (g *Gateway) BotPermissions(ctx context.Context, guildID string) (chat.PermissionSet, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	fg, err := g.guild(guildID)
	if err != nil {
		return 0, err
	}
	return fg.BotPerms, nil
}

func (g *Gateway) Roles(ctx context.Context, guildID string) ([]chat.Role, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	fg, err := g.guild(guildID)
	if err != nil {
		return nil, err
	}
	return append([]chat.Role(nil), fg.Roles...), nil
}

func (g *Gateway) AddRole(ctx context.Context, guildID, userID, roleID string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.record(Call{Op: "AddRole", GuildID: guildID, UserID: userID, RoleID: roleID})
	if err := g.fail("AddRole"); err != nil {
		return err
	}
	fg, err := g.guild(guildID)
	if err != nil {
		return err
	}
	m, ok := fg.Members[userID]
	if !ok {
		return chat.ErrMemberNotFound
	}
	if !m.HasRole(roleID) {
		m.RoleIDs = append(m.RoleIDs, roleID)
	}
	return nil
}

func (g *Gateway) RemoveRole(ctx context.Context, guildID, userID, roleID string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.record(Call{Op: "RemoveRole", GuildID: guildID, UserID: userID, RoleID: roleID})
	if err := g.fail("RemoveRole"); err != nil {
		return err
	}
	fg, err := g.guild(guildID)
	if err != nil {
		return err
	}
	m, ok := fg.Members[userID]
	if !ok {
		return chat.ErrMemberNotFound
	}
	kept := m.RoleIDs[:0]
	for _, id := range m.RoleIDs {
		if id != roleID {
			kept = append(kept, id)
		}
	}
	m.RoleIDs = kept
	return nil
}

func (g *Gateway) SetNickname(ctx context.Context, guildID, userID, nickname string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.record(Call{Op: "SetNickname", GuildID: guildID, UserID: userID, Nickname: nickname})
	if err := g.fail("SetNickname"); err != nil {
		return err
	}
	fg, err := g.guild(guildID)
	if err != nil {
		return err
	}
	m, ok := fg.Members[userID]
	if !ok {
		return chat.ErrMemberNotFound
	}
	m.Nickname = nickname
	return nil
}

func (g *Gateway) FindChannel(ctx context.Context, guildID string, names ...string) (*chat.Channel, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.fail("FindChannel"); err != nil {
		return nil, err
	}
	fg, err := g.guild(guildID)
	if err != nil {
		return nil, err
	}
	for _, name := range names {
		for i := range fg.Channels {
			if strings.EqualFold(fg.Channels[i].Name, name) {
				ch := fg.Channels[i]
				return &ch, nil
			}
		}
	}
	return nil, chat.ErrChannelNotFound
}

func (g *Gateway) SendEmbed(ctx context.Context, channelID string, embed chat.Embed) error {
	return g.SendMessage(ctx, channelID, "", embed)
}

func (g *Gateway) SendMessage(ctx context.Context, channelID, content string, embeds ...chat.Embed) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.record(Call{Op: "SendMessage", ChannelID: channelID, Content: content, Embeds: embeds})
	if err := g.fail("SendMessage"); err != nil {
		return err
	}
	if err := g.failures["SendMessage:"+channelID]; err != nil {
		return err
	}
	return nil
}

func (g *Gateway) CreatePrivateChannel(ctx context.Context, guildID, name string, overwrites []chat.PermissionOverwrite) (*chat.Channel, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.record(Call{Op: "CreatePrivateChannel", GuildID: guildID, Content: name, Overwrites: overwrites})
	if err := g.fail("CreatePrivateChannel"); err != nil {
		return nil, err
	}
	fg, err := g.guild(guildID)
	if err != nil {
		return nil, err
	}
	g.nextChannelID++
	ch := chat.Channel{
		ID:      fmt.Sprintf("chan-%d", g.nextChannelID),
		GuildID: guildID,
		Name:    name,
	}
	fg.Channels = append(fg.Channels, ch)
	return &ch, nil
}

func (g *Gateway) DeleteChannel(ctx context.Context, channelID string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.record(Call{Op: "DeleteChannel", ChannelID: channelID})
	if err := g.fail("DeleteChannel"); err != nil {
		return err
	}
	for _, fg := range g.guilds {
		for i := range fg.Channels {
			if fg.Channels[i].ID == channelID {
				fg.Channels = append(fg.Channels[:i], fg.Channels[i+1:]...)
				return nil
			}
		}
	}
	return chat.ErrChannelNotFound
}

var _ chat.Gateway = (*Gateway)(nil)
