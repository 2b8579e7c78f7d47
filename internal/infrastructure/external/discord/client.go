// Package discord implements the chat.Gateway capability set over the
// Discord REST API (v10). All outbound calls go through a shared
// retrier and circuit breaker so a Discord outage degrades to skipped
// polling cycles instead of cascading failures.
package discord

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/bridgemc/bridge-community-bot/internal/domain/chat"
	"github.com/bridgemc/bridge-community-bot/pkg/circuitbreaker"
	"github.com/bridgemc/bridge-community-bot/pkg/retry"
)

// permissionAdministrator implies every other permission bit.
const permissionAdministrator = 1 << 3

// ClientConfig contains configuration for the Discord REST client.
type ClientConfig struct {
	// BaseURL is the Discord API base URL.
	BaseURL string

	// BotToken authenticates every request.
	BotToken string

	// Timeout is the HTTP request timeout.
	Timeout time.Duration

	// Logger for structured logging.
	Logger *slog.Logger

	// Debug enables per-request debug logging.
	Debug bool

	// MaxRetries caps the attempts per request, including the first.
	MaxRetries int

	// RetryBaseDelay is the initial backoff delay.
	RetryBaseDelay time.Duration

	// BreakerThreshold is the consecutive-failure count that opens the
	// circuit.
	BreakerThreshold int

	// BreakerTimeout is how long the circuit stays open before probing.
	BreakerTimeout time.Duration
}

// DefaultClientConfig returns sensible defaults.
func DefaultClientConfig(botToken string) ClientConfig {
	return ClientConfig{
		BaseURL:          "https://discord.com/api/v10",
		BotToken:         botToken,
		Timeout:          15 * time.Second,
		MaxRetries:       4,
		RetryBaseDelay:   250 * time.Millisecond,
		BreakerThreshold: 5,
		BreakerTimeout:   30 * time.Second,
	}
}

// Client is the Discord REST implementation of chat.Gateway.
type Client struct {
	config     ClientConfig
	httpClient *http.Client
	logger     *slog.Logger
	retrier    *retry.Retrier
	breaker    *circuitbreaker.CircuitBreaker

	// Bot identity, resolved lazily from /users/@me.
	botID   string
	botIDMu sync.Mutex
}

// NewClient creates a new Discord REST client.
func NewClient(config ClientConfig) *Client {
	if config.Logger == nil {
		config.Logger = slog.Default()
	}

	return &Client{
		config: config,
		httpClient: &http.Client{
			Timeout: config.Timeout,
		},
		logger: config.Logger,
		retrier: retry.New(
			retry.WithMaxAttempts(config.MaxRetries),
			retry.WithInitialDelay(config.RetryBaseDelay),
			retry.WithMaxDelay(5*time.Second),
			retry.WithMultiplier(2.0),
			retry.WithJitter(0.2),
		),
		breaker: circuitbreaker.New("discord",
			circuitbreaker.WithFailureThreshold(config.BreakerThreshold),
			circuitbreaker.WithTimeout(config.BreakerTimeout),
		),
	}
}

// Guilds lists the communities the bot is in.
func (c *Client) Guilds(ctx context.Context) ([]chat.Guild, error) {
	var dtos []guildDTO
	if err := c.doRequest(ctx, http.MethodGet, "/users/@me/guilds", nil, &dtos); err != nil {
		return nil, fmt.Errorf("list guilds: %w", err)
	}

	guilds := make([]chat.Guild, 0, len(dtos))
	for _, d := range dtos {
		guilds = append(guilds, guildFromDTO(d))
	}
	return guilds, nil
}

// Guild returns one community.
func (c *Client) Guild(ctx context.Context, guildID string) (*chat.Guild, error) {
	var dto guildDTO
	path := "/guilds/" + url.PathEscape(guildID)
	if err := c.doRequest(ctx, http.MethodGet, path, nil, &dto); err != nil {
		return nil, fmt.Errorf("get guild %s: %w", guildID, err)
	}

	g := guildFromDTO(dto)
	return &g, nil
}

// Member fetches a guild member.
func (c *Client) Member(ctx context.Context, guildID, userID string) (*chat.Member, error) {
	var dto memberDTO
	path := fmt.Sprintf("/guilds/%s/members/%s", url.PathEscape(guildID), url.PathEscape(userID))
	if err := c.doRequest(ctx, http.MethodGet, path, nil, &dto); err != nil {
		if isAPIError(err, codeUnknownMember) || isStatus(err, http.StatusNotFound) {
			return nil, chat.ErrMemberNotFound
		}
		return nil, fmt.Errorf("get member %s in guild %s: %w", userID, guildID, err)
	}

	return memberFromDTO(dto), nil
}

// BotMember returns the bot's own membership in the guild.
func (c *Client) BotMember(ctx context.Context, guildID string) (*chat.Member, error) {
	botID, err := c.botUserID(ctx)
	if err != nil {
		return nil, err
	}
	return c.Member(ctx, guildID, botID)
}

// BotPermissions returns the bot's guild-level permissions: the union
// of its role permissions plus @everyone, expanded when Administrator
// is present.
func (c *Client) BotPermissions(ctx context.Context, guildID string) (chat.PermissionSet, error) {
	member, err := c.BotMember(ctx, guildID)
	if err != nil {
		return 0, err
	}

	var dtos []roleDTO
	path := "/guilds/" + url.PathEscape(guildID) + "/roles"
	if err := c.doRequest(ctx, http.MethodGet, path, nil, &dtos); err != nil {
		return 0, fmt.Errorf("list roles for guild %s: %w", guildID, err)
	}

	held := make(map[string]bool, len(member.RoleIDs)+1)
	for _, id := range member.RoleIDs {
		held[id] = true
	}
	// The @everyone role shares the guild's id.
	held[guildID] = true

	var set chat.PermissionSet
	for _, d := range dtos {
		if !held[d.ID] {
			continue
		}
		perms, err := parsePermissions(d.Permissions)
		if err != nil {
			return 0, err
		}
		set |= perms
	}

	if set.Has(chat.Permission(permissionAdministrator)) {
		return ^chat.PermissionSet(0), nil
	}
	return set, nil
}

// Roles lists the guild's roles with hierarchy positions.
func (c *Client) Roles(ctx context.Context, guildID string) ([]chat.Role, error) {
	var dtos []roleDTO
	path := "/guilds/" + url.PathEscape(guildID) + "/roles"
	if err := c.doRequest(ctx, http.MethodGet, path, nil, &dtos); err != nil {
		return nil, fmt.Errorf("list roles for guild %s: %w", guildID, err)
	}

	roles := make([]chat.Role, 0, len(dtos))
	for _, d := range dtos {
		roles = append(roles, roleFromDTO(d))
	}
	return roles, nil
}

// AddRole grants a role to a member.
func (c *Client) AddRole(ctx context.Context, guildID, userID, roleID string) error {
	path := fmt.Sprintf("/guilds/%s/members/%s/roles/%s",
		url.PathEscape(guildID), url.PathEscape(userID), url.PathEscape(roleID))
	if err := c.doRequest(ctx, http.MethodPut, path, nil, nil); err != nil {
		return fmt.Errorf("add role %s to %s in guild %s: %w", roleID, userID, guildID, c.mapRoleError(err))
	}
	return nil
}

// RemoveRole revokes a role from a member.
func (c *Client) RemoveRole(ctx context.Context, guildID, userID, roleID string) error {
	path := fmt.Sprintf("/guilds/%s/members/%s/roles/%s",
		url.PathEscape(guildID), url.PathEscape(userID), url.PathEscape(roleID))
	if err := c.doRequest(ctx, http.MethodDelete, path, nil, nil); err != nil {
		return fmt.Errorf("remove role %s from %s in guild %s: %w", roleID, userID, guildID, c.mapRoleError(err))
	}
	return nil
}

// SetNickname renames a member.
func (c *Client) SetNickname(ctx context.Context, guildID, userID, nickname string) error {
	path := fmt.Sprintf("/guilds/%s/members/%s", url.PathEscape(guildID), url.PathEscape(userID))
	body := modifyMemberRequest{Nick: &nickname}
	if err := c.doRequest(ctx, http.MethodPatch, path, body, nil); err != nil {
		switch {
		case isAPIError(err, codeUnknownMember):
			return chat.ErrMemberNotFound
		case isAPIError(err, codeMissingPerms), isAPIError(err, codeMissingAccess):
			return chat.ErrForbidden
		}
		return fmt.Errorf("set nickname for %s in guild %s: %w", userID, guildID, err)
	}
	return nil
}

// FindChannel returns the first text channel whose name matches any of
// names, in order. An exact (case-insensitive) match wins over a
// substring match.
func (c *Client) FindChannel(ctx context.Context, guildID string, names ...string) (*chat.Channel, error) {
	var dtos []channelDTO
	path := "/guilds/" + url.PathEscape(guildID) + "/channels"
	if err := c.doRequest(ctx, http.MethodGet, path, nil, &dtos); err != nil {
		return nil, fmt.Errorf("list channels for guild %s: %w", guildID, err)
	}

	for _, name := range names {
		for _, d := range dtos {
			if d.Type == channelTypeGuildText && strings.EqualFold(d.Name, name) {
				ch := channelFromDTO(d)
				ch.GuildID = guildID
				return ch, nil
			}
		}
		lower := strings.ToLower(name)
		for _, d := range dtos {
			if d.Type == channelTypeGuildText && strings.Contains(strings.ToLower(d.Name), lower) {
				ch := channelFromDTO(d)
				ch.GuildID = guildID
				return ch, nil
			}
		}
	}

	return nil, chat.ErrChannelNotFound
}

// SendEmbed posts an embed to a channel.
func (c *Client) SendEmbed(ctx context.Context, channelID string, embed chat.Embed) error {
	return c.SendMessage(ctx, channelID, "", embed)
}

// SendMessage posts content with optional embeds.
func (c *Client) SendMessage(ctx context.Context, channelID, content string, embeds ...chat.Embed) error {
	body := createMessageRequest{Content: content}
	for _, e := range embeds {
		body.Embeds = append(body.Embeds, embedToDTO(e))
	}

	path := "/channels/" + url.PathEscape(channelID) + "/messages"
	if err := c.doRequest(ctx, http.MethodPost, path, body, nil); err != nil {
		switch {
		case isAPIError(err, codeUnknownChannel):
			return chat.ErrChannelNotFound
		case isAPIError(err, codeMissingPerms), isAPIError(err, codeMissingAccess):
			return chat.ErrForbidden
		}
		return fmt.Errorf("send message to channel %s: %w", channelID, err)
	}
	return nil
}

// CreatePrivateChannel creates a text channel visible only to the
// overwrite targets.
func (c *Client) CreatePrivateChannel(ctx context.Context, guildID, name string, overwrites []chat.PermissionOverwrite) (*chat.Channel, error) {
	body := createChannelRequest{
		Name: name,
		Type: channelTypeGuildText,
	}
	for _, o := range overwrites {
		body.Overwrites = append(body.Overwrites, overwriteToDTO(o))
	}

	var dto channelDTO
	path := "/guilds/" + url.PathEscape(guildID) + "/channels"
	if err := c.doRequest(ctx, http.MethodPost, path, body, &dto); err != nil {
		if isAPIError(err, codeMissingPerms) || isAPIError(err, codeMissingAccess) {
			return nil, chat.ErrForbidden
		}
		return nil, fmt.Errorf("create channel %s in guild %s: %w", name, guildID, err)
	}

	ch := channelFromDTO(dto)
	ch.GuildID = guildID
	return ch, nil
}

// DeleteChannel removes a channel.
func (c *Client) DeleteChannel(ctx context.Context, channelID string) error {
	path := "/channels/" + url.PathEscape(channelID)
	if err := c.doRequest(ctx, http.MethodDelete, path, nil, nil); err != nil {
		if isAPIError(err, codeUnknownChannel) || isStatus(err, http.StatusNotFound) {
			return chat.ErrChannelNotFound
		}
		return fmt.Errorf("delete channel %s: %w", channelID, err)
	}
	return nil
}

// Healthy checks if the Discord API is reachable with our token.
func (c *Client) Healthy(ctx context.Context) bool {
	_, err := c.botUserID(ctx)
	return err == nil
}

// botUserID resolves and caches the bot's own user id.
func (c *Client) botUserID(ctx context.Context) (string, error) {
	c.botIDMu.Lock()
	defer c.botIDMu.Unlock()

	if c.botID != "" {
		return c.botID, nil
	}

	var me userDTO
	if err := c.doRequest(ctx, http.MethodGet, "/users/@me", nil, &me); err != nil {
		return "", fmt.Errorf("get bot identity: %w", err)
	}

	c.botID = me.ID
	return c.botID, nil
}

// doRequest performs an HTTP request through the circuit breaker and
// retrier. Rate limits (429) and server errors retry with backoff;
// client errors surface immediately as permanent.
func (c *Client) doRequest(ctx context.Context, method, path string, body interface{}, result interface{}) error {
	return c.breaker.Execute(ctx, func(ctx context.Context) error {
		return c.retrier.Do(ctx, func(ctx context.Context) error {
			return c.doSingleRequest(ctx, method, path, body, result)
		})
	})
}

// doSingleRequest performs one HTTP round trip.
func (c *Client) doSingleRequest(ctx context.Context, method, path string, body interface{}, result interface{}) error {
	fullURL := c.config.BaseURL + path

	var bodyReader io.Reader
	if body != nil {
		jsonBody, err := json.Marshal(body)
		if err != nil {
			return retry.Permanent(fmt.Errorf("marshal body: %w", err))
		}
		bodyReader = bytes.NewReader(jsonBody)
	}

	req, err := http.NewRequestWithContext(ctx, method, fullURL, bodyReader)
	if err != nil {
		return retry.Permanent(fmt.Errorf("create request: %w", err))
	}

	req.Header.Set("Authorization", "Bot "+c.config.BotToken)
	req.Header.Set("Accept", "application/json")
	if bodyReader != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	if c.config.Debug {
		c.logger.Debug("discord api request", "method", method, "path", path)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		// Network failures are worth another attempt.
		return retry.Retryable(fmt.Errorf("http request: %w", err))
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return retry.Retryable(fmt.Errorf("read response: %w", err))
	}

	if resp.StatusCode == http.StatusTooManyRequests {
		return retry.Retryable(&apiErrorDTO{
			Code:    0,
			Message: "rate limited",
			Status:  resp.StatusCode,
		})
	}

	if resp.StatusCode >= 400 {
		apiErr := &apiErrorDTO{Status: resp.StatusCode}
		if err := json.Unmarshal(respBody, apiErr); err != nil {
			apiErr.Message = strings.TrimSpace(string(respBody))
		}
		if resp.StatusCode >= 500 {
			return retry.Retryable(apiErr)
		}
		return retry.Permanent(apiErr)
	}

	if result != nil && len(respBody) > 0 {
		if err := json.Unmarshal(respBody, result); err != nil {
			return retry.Permanent(fmt.Errorf("unmarshal response: %w", err))
		}
	}

	return nil
}

// mapRoleError converts Discord role mutation failures to the typed
// conditions the role reconciler understands.
func (c *Client) mapRoleError(err error) error {
	switch {
	case isAPIError(err, codeUnknownRole):
		return chat.ErrRoleNotFound
	case isAPIError(err, codeUnknownMember):
		return chat.ErrMemberNotFound
	case isAPIError(err, codeMissingPerms):
		// Discord reports both missing ManageRoles and outranked roles
		// as 50013; the reconciler pre-checks hierarchy, so a surviving
		// 50013 means a hierarchy change raced the check.
		return chat.ErrInsufficientHierarchy
	case isAPIError(err, codeMissingAccess):
		return chat.ErrForbidden
	}
	return err
}

func isAPIError(err error, code int) bool {
	var apiErr *apiErrorDTO
	return errors.As(err, &apiErr) && apiErr.Code == code
}

func isStatus(err error, status int) bool {
	var apiErr *apiErrorDTO
	return errors.As(err, &apiErr) && apiErr.Status == status
}
