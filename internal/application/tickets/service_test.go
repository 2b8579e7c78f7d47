package tickets

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bridgemc/bridge-community-bot/internal/domain/chat"
	"github.com/bridgemc/bridge-community-bot/internal/domain/chat/chattest"
	"github.com/bridgemc/bridge-community-bot/internal/domain/tiertest"
)

type fakeRequestRepo struct {
	rows      map[int64]*tiertest.Request
	nextID    int64
	createErr error
}

func newFakeRequestRepo() *fakeRequestRepo {
	return &fakeRequestRepo{rows: make(map[int64]*tiertest.Request)}
}

func (f *fakeRequestRepo) Create(_ context.Context, req *tiertest.Request) error {
	if f.createErr != nil {
		return f.createErr
	}
	f.nextID++
	req.ID = f.nextID
	f.rows[req.ID] = req
	return nil
}

func (f *fakeRequestRepo) GetByChannel(_ context.Context, channelID string) (*tiertest.Request, error) {
	for _, req := range f.rows {
		if req.ChannelID == channelID {
			return req, nil
		}
	}
	return nil, tiertest.ErrRequestNotFound
}

func (f *fakeRequestRepo) OpenByDiscordID(_ context.Context, discordID string) (*tiertest.Request, error) {
	for _, req := range f.rows {
		if req.DiscordID == discordID && req.Status != tiertest.RequestClosed {
			return req, nil
		}
	}
	return nil, tiertest.ErrRequestNotFound
}

func (f *fakeRequestRepo) UpdateStatus(_ context.Context, id int64, status tiertest.RequestStatus) error {
	req, ok := f.rows[id]
	if !ok {
		return tiertest.ErrRequestNotFound
	}
	req.Status = status
	return nil
}

func ticketGuild(gw *chattest.Gateway) *chattest.FakeGuild {
	fg := gw.AddGuild("g1", "The Bridge", "owner")
	fg.AddRole("r-tester", "Tester", 5)
	fg.AddMember("d1", "steve")
	return fg
}

func newTicketService(requests *fakeRequestRepo, gw *chattest.Gateway, delay time.Duration) *Service {
	return NewService(requests, gw, delay, []string{"tester"}, nil)
}

func overwriteFor(t *testing.T, overwrites []chat.PermissionOverwrite, targetID string) chat.PermissionOverwrite {
	t.Helper()
	for _, ow := range overwrites {
		if ow.TargetID == targetID {
			return ow
		}
	}
	t.Fatalf("no overwrite for target %q", targetID)
	return chat.PermissionOverwrite{}
}

func TestCreateOpensPrivateChannelWithOverwrites(t *testing.T) {
	gw := chattest.NewGateway()
	ticketGuild(gw)
	requests := newFakeRequestRepo()
	svc := newTicketService(requests, gw, time.Minute)

	req, err := svc.Create(context.Background(), "g1", "d1", "uuid-1", "Steve")
	require.NoError(t, err)
	assert.Equal(t, tiertest.RequestPending, req.Status)
	assert.NotEmpty(t, req.ChannelID)

	creates := gw.CallsOf("CreatePrivateChannel")
	require.Len(t, creates, 1)
	assert.Equal(t, "tier-test-steve", creates[0].Content)

	everyone := overwriteFor(t, creates[0].Overwrites, "g1")
	assert.True(t, everyone.Deny.Has(chat.PermissionViewChannel))
	assert.Equal(t, chat.OverwriteRole, everyone.Type)

	requester := overwriteFor(t, creates[0].Overwrites, "d1")
	assert.True(t, requester.Allow.Has(chat.PermissionViewChannel))
	assert.Equal(t, chat.OverwriteMember, requester.Type)

	tester := overwriteFor(t, creates[0].Overwrites, "r-tester")
	assert.True(t, tester.Allow.Has(chat.PermissionSendMessages))
	assert.Equal(t, chat.OverwriteRole, tester.Type)

	// welcome embed mentioning the requester
	sends := gw.CallsOf("SendMessage")
	require.Len(t, sends, 1)
	assert.Equal(t, req.ChannelID, sends[0].ChannelID)
	require.Len(t, sends[0].Embeds, 1)
	assert.Contains(t, sends[0].Embeds[0].Description, "<@d1>")
}

func TestCreateRejectsSecondOpenTicket(t *testing.T) {
	gw := chattest.NewGateway()
	ticketGuild(gw)
	requests := newFakeRequestRepo()
	svc := newTicketService(requests, gw, time.Minute)

	req, err := svc.Create(context.Background(), "g1", "d1", "uuid-1", "Steve")
	require.NoError(t, err)

	_, err = svc.Create(context.Background(), "g1", "d1", "uuid-1", "Steve")
	assert.ErrorIs(t, err, ErrTicketOpen)
	assert.Len(t, gw.CallsOf("CreatePrivateChannel"), 1)

	// closing the first ticket frees the user to open another
	require.NoError(t, svc.Close(context.Background(), req.ChannelID))
	svc.Shutdown()

	_, err = svc.Create(context.Background(), "g1", "d1", "uuid-1", "Steve")
	require.NoError(t, err)
}

func TestCreateWithoutTesterRole(t *testing.T) {
	gw := chattest.NewGateway()
	gw.AddGuild("g1", "The Bridge", "owner")
	svc := newTicketService(newFakeRequestRepo(), gw, time.Minute)

	_, err := svc.Create(context.Background(), "g1", "d1", "uuid-1", "Steve")
	assert.ErrorIs(t, err, ErrTesterRoleNotFound)
	assert.Empty(t, gw.CallsOf("CreatePrivateChannel"))
}

func TestCreateRowFailureTearsDownChannel(t *testing.T) {
	gw := chattest.NewGateway()
	ticketGuild(gw)
	requests := newFakeRequestRepo()
	requests.createErr = errors.New("db down")
	svc := newTicketService(requests, gw, time.Minute)

	_, err := svc.Create(context.Background(), "g1", "d1", "uuid-1", "Steve")
	require.Error(t, err)

	deletes := gw.CallsOf("DeleteChannel")
	require.Len(t, deletes, 1)
}

func TestCompleteTransitionsStatus(t *testing.T) {
	gw := chattest.NewGateway()
	ticketGuild(gw)
	requests := newFakeRequestRepo()
	svc := newTicketService(requests, gw, time.Minute)

	req, err := svc.Create(context.Background(), "g1", "d1", "uuid-1", "Steve")
	require.NoError(t, err)

	require.NoError(t, svc.Complete(context.Background(), req.ChannelID))
	assert.Equal(t, tiertest.RequestCompleted, requests.rows[req.ID].Status)
}

func TestCompleteUnknownChannel(t *testing.T) {
	gw := chattest.NewGateway()
	svc := newTicketService(newFakeRequestRepo(), gw, time.Minute)

	err := svc.Complete(context.Background(), "no-such-channel")
	assert.ErrorIs(t, err, tiertest.ErrRequestNotFound)
}

func TestCloseDeletesChannelAfterGracePeriod(t *testing.T) {
	gw := chattest.NewGateway()
	ticketGuild(gw)
	requests := newFakeRequestRepo()
	svc := newTicketService(requests, gw, 20*time.Millisecond)

	req, err := svc.Create(context.Background(), "g1", "d1", "uuid-1", "Steve")
	require.NoError(t, err)

	require.NoError(t, svc.Close(context.Background(), req.ChannelID))
	assert.Equal(t, tiertest.RequestClosed, requests.rows[req.ID].Status)
	assert.Empty(t, gw.CallsOf("DeleteChannel"))

	assert.Eventually(t, func() bool {
		return len(gw.CallsOf("DeleteChannel")) == 1
	}, time.Second, 5*time.Millisecond)
}

func TestCancelTeardownKeepsChannel(t *testing.T) {
	gw := chattest.NewGateway()
	ticketGuild(gw)
	requests := newFakeRequestRepo()
	svc := newTicketService(requests, gw, 30*time.Millisecond)

	req, err := svc.Create(context.Background(), "g1", "d1", "uuid-1", "Steve")
	require.NoError(t, err)
	require.NoError(t, svc.Close(context.Background(), req.ChannelID))

	assert.True(t, svc.CancelTeardown(req.ChannelID))
	assert.False(t, svc.CancelTeardown(req.ChannelID))

	time.Sleep(80 * time.Millisecond)
	assert.Empty(t, gw.CallsOf("DeleteChannel"))
}

func TestShutdownStopsPendingTimers(t *testing.T) {
	gw := chattest.NewGateway()
	ticketGuild(gw)
	requests := newFakeRequestRepo()
	svc := newTicketService(requests, gw, 30*time.Millisecond)

	req, err := svc.Create(context.Background(), "g1", "d1", "uuid-1", "Steve")
	require.NoError(t, err)
	require.NoError(t, svc.Close(context.Background(), req.ChannelID))

	svc.Shutdown()

	time.Sleep(80 * time.Millisecond)
	assert.Empty(t, gw.CallsOf("DeleteChannel"))
}

func TestChannelName(t *testing.T) {
	assert.Equal(t, "tier-test-steve", channelName("Steve"))
	assert.Equal(t, "tier-test-cool-player", channelName("  Cool Player "))
	assert.Equal(t, "tier-test-solicitud", channelName(""))
}
