package rolesync

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bridgemc/bridge-community-bot/internal/domain/chat/chattest"
	"github.com/bridgemc/bridge-community-bot/internal/domain/identity"
	"github.com/bridgemc/bridge-community-bot/internal/domain/rank"
)

type fakeLinkRepo struct {
	links []*identity.Link
	err   error
}

func (r *fakeLinkRepo) GetByMinecraftUUID(ctx context.Context, uuid string) (*identity.Link, error) {
	for _, l := range r.links {
		if l.MinecraftUUID == uuid {
			return l, nil
		}
	}
	return nil, identity.ErrLinkNotFound
}

func (r *fakeLinkRepo) GetByDiscordID(ctx context.Context, id string) (*identity.Link, error) {
	for _, l := range r.links {
		if l.DiscordID == id {
			return l, nil
		}
	}
	return nil, identity.ErrLinkNotFound
}

func (r *fakeLinkRepo) Create(ctx context.Context, link *identity.Link) error {
	r.links = append(r.links, link)
	return nil
}

func (r *fakeLinkRepo) Delete(ctx context.Context, uuid string) error { return nil }

func (r *fakeLinkRepo) All(ctx context.Context) ([]*identity.Link, error) {
	return r.links, r.err
}

type fakeRankSource struct {
	ranks map[string]string
}

func (s *fakeRankSource) VictoryRank(ctx context.Context, uuid string) (string, error) {
	name, ok := s.ranks[uuid]
	if !ok {
		return "", rank.ErrUnknownRank
	}
	return name, nil
}

func TestSyncGuildReconcilesLinkedMembers(t *testing.T) {
	gw := chattest.NewGateway()
	fg := newTestGuild(gw)
	fg.AddMember("d1", "steve", "r-novato")
	fg.AddMember("d2", "alex", "r-maestro")

	links := &fakeLinkRepo{links: []*identity.Link{
		{MinecraftUUID: "uuid-1", DiscordID: "d1"},
		{MinecraftUUID: "uuid-2", DiscordID: "d2"},
		{MinecraftUUID: "uuid-3", DiscordID: "d3"}, // not in guild
	}}
	ranks := &fakeRankSource{ranks: map[string]string{
		"uuid-1": "Bridge Experto",
		"uuid-2": "Bridge Maestro", // already correct
		"uuid-3": "Bridge Novato",
	}}

	svc := NewService(links, ranks, newReconciler(gw), nil)
	report, err := svc.SyncGuild(context.Background(), "g1")
	require.NoError(t, err)

	assert.Equal(t, 3, report.Total)
	assert.Equal(t, 1, report.Applied)
	assert.Equal(t, 1, report.NotMembers)
	assert.Equal(t, 0, report.Failed)

	member, err := gw.Member(context.Background(), "g1", "d1")
	require.NoError(t, err)
	assert.Equal(t, []string{"r-experto"}, member.RoleIDs)
}

func TestSyncGuildSkipsPlayersWithoutRank(t *testing.T) {
	gw := chattest.NewGateway()
	fg := newTestGuild(gw)
	fg.AddMember("d1", "steve")

	links := &fakeLinkRepo{links: []*identity.Link{
		{MinecraftUUID: "uuid-1", DiscordID: "d1"},
	}}
	ranks := &fakeRankSource{ranks: map[string]string{}}

	svc := NewService(links, ranks, newReconciler(gw), nil)
	report, err := svc.SyncGuild(context.Background(), "g1")
	require.NoError(t, err)

	assert.Equal(t, 1, report.Skipped)
	assert.Empty(t, gw.CallsOf("AddRole"))
}

func TestSyncGuildPropagatesLinkLoadFailure(t *testing.T) {
	gw := chattest.NewGateway()
	newTestGuild(gw)

	links := &fakeLinkRepo{err: errors.New("db down")}
	svc := NewService(links, &fakeRankSource{}, newReconciler(gw), nil)

	_, err := svc.SyncGuild(context.Background(), "g1")
	assert.Error(t, err)
}
