package discord

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bridgemc/bridge-community-bot/internal/domain/chat"
)

func testClient(t *testing.T, handler http.Handler) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	cfg := DefaultClientConfig("test-token")
	cfg.BaseURL = srv.URL
	cfg.RetryBaseDelay = time.Millisecond
	return NewClient(cfg)
}

func TestRequestCarriesBotAuthorization(t *testing.T) {
	var gotAuth string
	client := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		w.Write([]byte(`[]`))
	}))

	_, err := client.Guilds(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "Bot test-token", gotAuth)
}

func TestMemberUnknownMemberCodeMapsToTypedError(t *testing.T) {
	client := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte(`{"code":10007,"message":"Unknown Member"}`))
	}))

	_, err := client.Member(context.Background(), "g1", "u1")
	assert.ErrorIs(t, err, chat.ErrMemberNotFound)
}

func TestAddRoleMapsMissingPermissionsToHierarchy(t *testing.T) {
	client := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		w.Write([]byte(`{"code":50013,"message":"Missing Permissions"}`))
	}))

	err := client.AddRole(context.Background(), "g1", "u1", "r1")
	assert.ErrorIs(t, err, chat.ErrInsufficientHierarchy)
}

func TestRemoveRoleUnknownRole(t *testing.T) {
	client := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte(`{"code":10011,"message":"Unknown Role"}`))
	}))

	err := client.RemoveRole(context.Background(), "g1", "u1", "r1")
	assert.ErrorIs(t, err, chat.ErrRoleNotFound)
}

func TestRateLimitedRequestIsRetried(t *testing.T) {
	var attempts atomic.Int32
	client := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if attempts.Add(1) == 1 {
			w.WriteHeader(http.StatusTooManyRequests)
			w.Write([]byte(`{"message":"You are being rate limited."}`))
			return
		}
		w.Write([]byte(`[{"id":"g1","name":"The Bridge"}]`))
	}))

	guilds, err := client.Guilds(context.Background())
	require.NoError(t, err)
	require.Len(t, guilds, 1)
	assert.Equal(t, "g1", guilds[0].ID)
	assert.EqualValues(t, 2, attempts.Load())
}

func TestServerErrorIsRetried(t *testing.T) {
	var attempts atomic.Int32
	client := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if attempts.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.Write([]byte(`[]`))
	}))

	_, err := client.Guilds(context.Background())
	require.NoError(t, err)
	assert.EqualValues(t, 3, attempts.Load())
}

func TestClientErrorIsNotRetried(t *testing.T) {
	var attempts atomic.Int32
	client := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts.Add(1)
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"code":50035,"message":"Invalid Form Body"}`))
	}))

	_, err := client.Guilds(context.Background())
	require.Error(t, err)
	assert.EqualValues(t, 1, attempts.Load())
}

func TestBotPermissionsUnionsHeldRoles(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/users/@me", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"id":"bot-1","username":"bridgebot"}`))
	})
	mux.HandleFunc("/guilds/g1/members/bot-1", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"user":{"id":"bot-1","username":"bridgebot"},"roles":["r1"]}`))
	})
	mux.HandleFunc("/guilds/g1/roles", func(w http.ResponseWriter, r *http.Request) {
		// @everyone (id == guild id) grants ViewChannel, r1 grants
		// ManageRoles, r2 is not held
		w.Write([]byte(`[
			{"id":"g1","name":"@everyone","position":0,"permissions":"1024"},
			{"id":"r1","name":"Bot","position":5,"permissions":"268435456"},
			{"id":"r2","name":"Admin","position":9,"permissions":"8"}
		]`))
	})
	client := testClient(t, mux)

	perms, err := client.BotPermissions(context.Background(), "g1")
	require.NoError(t, err)
	assert.True(t, perms.Has(chat.PermissionViewChannel))
	assert.True(t, perms.Has(chat.PermissionManageRoles))
	assert.False(t, perms.Has(chat.PermissionManageNicknames))
}

func TestBotPermissionsAdministratorExpandsToAll(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/users/@me", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"id":"bot-1","username":"bridgebot"}`))
	})
	mux.HandleFunc("/guilds/g1/members/bot-1", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"user":{"id":"bot-1","username":"bridgebot"},"roles":["r1"]}`))
	})
	mux.HandleFunc("/guilds/g1/roles", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`[{"id":"r1","name":"Admin","position":9,"permissions":"8"}]`))
	})
	client := testClient(t, mux)

	perms, err := client.BotPermissions(context.Background(), "g1")
	require.NoError(t, err)
	assert.True(t, perms.Has(chat.PermissionManageRoles))
	assert.True(t, perms.Has(chat.PermissionManageNicknames))
	assert.True(t, perms.Has(chat.PermissionViewChannel))
}

func TestFindChannelPrefersExactMatch(t *testing.T) {
	client := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`[
			{"id":"c1","name":"logros-viejos","type":0},
			{"id":"c2","name":"Logros","type":0},
			{"id":"c3","name":"logros-voz","type":2}
		]`))
	}))

	ch, err := client.FindChannel(context.Background(), "g1", "logros")
	require.NoError(t, err)
	assert.Equal(t, "c2", ch.ID)
	assert.Equal(t, "g1", ch.GuildID)
}

func TestFindChannelFallsBackToSubstring(t *testing.T) {
	client := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`[{"id":"c1","name":"logros-del-servidor","type":0}]`))
	}))

	ch, err := client.FindChannel(context.Background(), "g1", "logros")
	require.NoError(t, err)
	assert.Equal(t, "c1", ch.ID)
}

func TestFindChannelSkipsNonTextChannels(t *testing.T) {
	client := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`[{"id":"c1","name":"logros","type":2}]`))
	}))

	_, err := client.FindChannel(context.Background(), "g1", "logros")
	assert.ErrorIs(t, err, chat.ErrChannelNotFound)
}

func TestSendMessageUnknownChannel(t *testing.T) {
	client := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte(`{"code":10003,"message":"Unknown Channel"}`))
	}))

	err := client.SendMessage(context.Background(), "c1", "hola")
	assert.ErrorIs(t, err, chat.ErrChannelNotFound)
}

func TestCreatePrivateChannelSendsOverwrites(t *testing.T) {
	var gotBody []byte
	client := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotBody, _ = io.ReadAll(r.Body)
		w.Write([]byte(`{"id":"c9","name":"tier-test-steve","type":0}`))
	}))

	ch, err := client.CreatePrivateChannel(context.Background(), "g1", "tier-test-steve", []chat.PermissionOverwrite{
		{TargetID: "g1", Type: chat.OverwriteRole, Deny: chat.PermissionSet(chat.PermissionViewChannel)},
	})
	require.NoError(t, err)
	assert.Equal(t, "c9", ch.ID)
	assert.Contains(t, string(gotBody), `"permission_overwrites"`)
	assert.Contains(t, string(gotBody), `"deny":"1024"`)
}

func TestParsePermissions(t *testing.T) {
	perms, err := parsePermissions("268436480")
	require.NoError(t, err)
	assert.True(t, perms.Has(chat.PermissionViewChannel))
	assert.True(t, perms.Has(chat.PermissionManageRoles))

	perms, err = parsePermissions("")
	require.NoError(t, err)
	assert.EqualValues(t, 0, perms)

	_, err = parsePermissions("not-a-number")
	assert.Error(t, err)
}
