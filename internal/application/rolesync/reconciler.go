// Package rolesync reconciles a member's rank roles against the
// authoritative rank stored by the game server. Reconciliation is
// idempotent and leaves a member holding at most one catalog role.
package rolesync

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/bridgemc/bridge-community-bot/internal/domain/chat"
	"github.com/bridgemc/bridge-community-bot/internal/domain/rank"
	"github.com/bridgemc/bridge-community-bot/pkg/logger"
)

// SkipReason classifies why a reconciliation did not mutate anything.
// These are expected steady-state conditions, not errors.
type SkipReason string

const (
	// SkipNone means the reconciliation was applied.
	SkipNone SkipReason = ""

	// SkipNoManageRoles means the bot lacks the manage-roles permission.
	SkipNoManageRoles SkipReason = "no_manage_roles_permission"

	// SkipGuildOwner means the target member owns the guild.
	SkipGuildOwner SkipReason = "member_is_guild_owner"

	// SkipHierarchy means the target outranks the bot's highest role.
	SkipHierarchy SkipReason = "member_above_bot_hierarchy"

	// SkipRoleMissing means the guild has no role named after the rank.
	SkipRoleMissing SkipReason = "rank_role_missing"
)

// Outcome reports what a reconciliation did.
type Outcome struct {
	Applied bool
	Skip    SkipReason

	// Added is the role id granted, empty when already held.
	Added string

	// Removed are the other catalog role ids revoked.
	Removed []string
}

// Mutations returns the total number of role changes performed.
func (o Outcome) Mutations() int {
	n := len(o.Removed)
	if o.Added != "" {
		n++
	}
	return n
}

// Reconciler applies the single-rank-role invariant for one member at
// a time.
type Reconciler struct {
	gateway chat.Gateway
	catalog *rank.Catalog
	logger  *slog.Logger
}

// NewReconciler creates a Reconciler over the given catalog.
func NewReconciler(gateway chat.Gateway, catalog *rank.Catalog, logger *slog.Logger) *Reconciler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Reconciler{
		gateway: gateway,
		catalog: catalog,
		logger:  logger.With("component", "role_reconciler"),
	}
}

// Reconcile removes every catalog role the member holds except the one
// bound to newRankName, then grants that one if absent. Preconditions
// that cannot be satisfied produce a typed skip, never an error.
func (r *Reconciler) Reconcile(ctx context.Context, guildID, userID, newRankName string) (Outcome, error) {
	if !r.catalog.Contains(newRankName) {
		return Outcome{}, fmt.Errorf("reconcile: %w: %s", rank.ErrUnknownRank, newRankName)
	}

	member, err := r.gateway.Member(ctx, guildID, userID)
	if err != nil {
		return Outcome{}, fmt.Errorf("reconcile: fetch member: %w", err)
	}

	perms, err := r.gateway.BotPermissions(ctx, guildID)
	if err != nil {
		return Outcome{}, fmt.Errorf("reconcile: fetch bot permissions: %w", err)
	}
	if !perms.Has(chat.PermissionManageRoles) {
		return r.skipped(guildID, userID, SkipNoManageRoles), nil
	}

	guild, err := r.gateway.Guild(ctx, guildID)
	if err != nil {
		return Outcome{}, fmt.Errorf("reconcile: fetch guild: %w", err)
	}
	if guild.OwnerID == userID {
		return r.skipped(guildID, userID, SkipGuildOwner), nil
	}

	roles, err := r.gateway.Roles(ctx, guildID)
	if err != nil {
		return Outcome{}, fmt.Errorf("reconcile: fetch roles: %w", err)
	}

	byName := make(map[string]chat.Role, len(roles))
	byID := make(map[string]chat.Role, len(roles))
	for _, role := range roles {
		byName[role.Name] = role
		byID[role.ID] = role
	}

	target, ok := byName[newRankName]
	if !ok {
		return r.skipped(guildID, userID, SkipRoleMissing), nil
	}

	bot, err := r.gateway.BotMember(ctx, guildID)
	if err != nil {
		return Outcome{}, fmt.Errorf("reconcile: fetch bot member: %w", err)
	}

	botTop := topPosition(bot.RoleIDs, byID)
	if target.Position >= botTop || topPosition(member.RoleIDs, byID) >= botTop {
		return r.skipped(guildID, userID, SkipHierarchy), nil
	}

	// Catalog role ids present in this guild.
	catalogIDs := make(map[string]bool)
	for _, name := range r.catalog.RoleNames() {
		if role, ok := byName[name]; ok {
			catalogIDs[role.ID] = true
		}
	}

	outcome := Outcome{Applied: true}

	for _, roleID := range member.RoleIDs {
		if !catalogIDs[roleID] || roleID == target.ID {
			continue
		}
		if err := r.gateway.RemoveRole(ctx, guildID, userID, roleID); err != nil {
			return Outcome{}, fmt.Errorf("reconcile: remove role %s: %w", roleID, err)
		}
		outcome.Removed = append(outcome.Removed, roleID)
	}

	if !member.HasRole(target.ID) {
		if err := r.gateway.AddRole(ctx, guildID, userID, target.ID); err != nil {
			return Outcome{}, fmt.Errorf("reconcile: add role %s: %w", target.ID, err)
		}
		outcome.Added = target.ID
	}

	if outcome.Mutations() > 0 {
		r.logger.Info("rank roles reconciled",
			logger.GuildID(guildID),
			"user_id", userID,
			"rank", newRankName,
			"added", outcome.Added,
			"removed", len(outcome.Removed),
		)
	}
	return outcome, nil
}

func (r *Reconciler) skipped(guildID, userID string, reason SkipReason) Outcome {
	r.logger.Info("reconciliation skipped",
		logger.GuildID(guildID),
		"user_id", userID,
		logger.SkipReason(string(reason)),
	)
	return Outcome{Skip: reason}
}

// topPosition returns the highest role position among roleIDs.
func topPosition(roleIDs []string, byID map[string]chat.Role) int {
	top := 0
	for _, id := range roleIDs {
		if role, ok := byID[id]; ok && role.Position > top {
			top = role.Position
		}
	}
	return top
}
