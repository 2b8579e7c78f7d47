package discord

import (
	"fmt"
	"strconv"
	"time"

	"github.com/bridgemc/bridge-community-bot/internal/domain/chat"
)

// Wire representations of the Discord REST v10 objects we touch.
// Snowflakes stay strings end to end; permission bitfields arrive as
// decimal strings and are parsed into chat.PermissionSet.

type guildDTO struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	OwnerID string `json:"owner_id,omitempty"`
}

type userDTO struct {
	ID       string `json:"id"`
	Username string `json:"username"`
}

type memberDTO struct {
	User  *userDTO `json:"user,omitempty"`
	Nick  string   `json:"nick,omitempty"`
	Roles []string `json:"roles"`
}

type roleDTO struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Position int    `json:"position"`

	// Permissions is a decimal-string bitfield.
	Permissions string `json:"permissions"`
}

type channelDTO struct {
	ID      string `json:"id"`
	GuildID string `json:"guild_id,omitempty"`
	Name    string `json:"name"`
	Type    int    `json:"type"`
}

// channelTypeGuildText is the Discord channel type for text channels.
const channelTypeGuildText = 0

type overwriteDTO struct {
	ID    string `json:"id"`
	Type  int    `json:"type"`
	Allow string `json:"allow"`
	Deny  string `json:"deny"`
}

type createChannelRequest struct {
	Name       string         `json:"name"`
	Type       int            `json:"type"`
	Overwrites []overwriteDTO `json:"permission_overwrites,omitempty"`
}

type modifyMemberRequest struct {
	Nick *string `json:"nick,omitempty"`
}

type embedDTO struct {
	Title       string          `json:"title,omitempty"`
	Description string          `json:"description,omitempty"`
	Color       int             `json:"color,omitempty"`
	Author      *embedAuthorDTO `json:"author,omitempty"`
	Thumbnail   *embedImageDTO  `json:"thumbnail,omitempty"`
	Fields      []embedFieldDTO `json:"fields,omitempty"`
	Footer      *embedFooterDTO `json:"footer,omitempty"`
	Timestamp   string          `json:"timestamp,omitempty"`
}

type embedAuthorDTO struct {
	Name    string `json:"name"`
	IconURL string `json:"icon_url,omitempty"`
}

type embedImageDTO struct {
	URL string `json:"url"`
}

type embedFieldDTO struct {
	Name   string `json:"name"`
	Value  string `json:"value"`
	Inline bool   `json:"inline,omitempty"`
}

type embedFooterDTO struct {
	Text string `json:"text"`
}

type createMessageRequest struct {
	Content string     `json:"content,omitempty"`
	Embeds  []embedDTO `json:"embeds,omitempty"`
}

type apiErrorDTO struct {
	Code    int    `json:"code"`
	Message string `json:"message"`

	// Status is the HTTP status, filled in by the client.
	Status int `json:"-"`
}

func (e *apiErrorDTO) Error() string {
	return fmt.Sprintf("discord api error %d (status %d): %s", e.Code, e.Status, e.Message)
}

// Discord JSON error codes the client maps to typed conditions.
const (
	codeUnknownMember  = 10007
	codeUnknownChannel = 10003
	codeUnknownRole    = 10011
	codeMissingAccess  = 50001
	codeMissingPerms   = 50013
)

func guildFromDTO(d guildDTO) chat.Guild {
	return chat.Guild{
		ID:      d.ID,
		Name:    d.Name,
		OwnerID: d.OwnerID,
	}
}

func memberFromDTO(d memberDTO) *chat.Member {
	m := &chat.Member{
		Nickname: d.Nick,
		RoleIDs:  d.Roles,
	}
	if d.User != nil {
		m.UserID = d.User.ID
		m.Username = d.User.Username
	}
	return m
}

func roleFromDTO(d roleDTO) chat.Role {
	return chat.Role{
		ID:       d.ID,
		Name:     d.Name,
		Position: d.Position,
	}
}

func channelFromDTO(d channelDTO) *chat.Channel {
	return &chat.Channel{
		ID:      d.ID,
		GuildID: d.GuildID,
		Name:    d.Name,
	}
}

func overwriteToDTO(o chat.PermissionOverwrite) overwriteDTO {
	t := 0
	if o.Type == chat.OverwriteMember {
		t = 1
	}
	return overwriteDTO{
		ID:    o.TargetID,
		Type:  t,
		Allow: strconv.FormatUint(uint64(o.Allow), 10),
		Deny:  strconv.FormatUint(uint64(o.Deny), 10),
	}
}

func embedToDTO(e chat.Embed) embedDTO {
	d := embedDTO{
		Title:       e.Title,
		Description: e.Description,
		Color:       e.Color,
	}
	if e.Author != nil {
		d.Author = &embedAuthorDTO{Name: e.Author.Name, IconURL: e.Author.IconURL}
	}
	if e.Thumbnail != "" {
		d.Thumbnail = &embedImageDTO{URL: e.Thumbnail}
	}
	for _, f := range e.Fields {
		d.Fields = append(d.Fields, embedFieldDTO{Name: f.Name, Value: f.Value, Inline: f.Inline})
	}
	if e.Footer != "" {
		d.Footer = &embedFooterDTO{Text: e.Footer}
	}
	if !e.Timestamp.IsZero() {
		d.Timestamp = e.Timestamp.UTC().Format(time.RFC3339)
	}
	return d
}

func parsePermissions(raw string) (chat.PermissionSet, error) {
	if raw == "" {
		return 0, nil
	}
	bits, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parse permissions %q: %w", raw, err)
	}
	return chat.PermissionSet(bits), nil
}
