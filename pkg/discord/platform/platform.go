// Package platform implements moderation.Platform on top of a discordgo session.
package platform

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/small-frappuccino/modcore/pkg/discord/cleanup"
	"github.com/small-frappuccino/modcore/pkg/log"
	"github.com/small-frappuccino/modcore/pkg/moderation"
)

const (
	// MaxTimeout is the longest communication timeout Discord accepts.
	MaxTimeout = 28 * 24 * time.Hour
	// BulkDeleteMaxAge is the age limit of Discord's bulk delete endpoint.
	BulkDeleteMaxAge = 14 * 24 * time.Hour

	MuteRoleName  = "Muted"
	MuteRoleColor = 0x818386
)

// LockDeny are the @everyone bits denied while a channel is locked.
const LockDeny int64 = discordgo.PermissionSendMessages |
	discordgo.PermissionAddReactions |
	discordgo.PermissionCreatePublicThreads |
	discordgo.PermissionCreatePrivateThreads |
	discordgo.PermissionSendMessagesInThreads

// MuteDeny are the bits denied to the mute role in every channel.
const MuteDeny int64 = discordgo.PermissionSendMessages |
	discordgo.PermissionAddReactions |
	discordgo.PermissionVoiceSpeak |
	discordgo.PermissionCreatePublicThreads |
	discordgo.PermissionCreatePrivateThreads |
	discordgo.PermissionSendMessagesInThreads

// Existing roles with one of these names are reused as the mute role.
var muteRoleNames = []string{"muted", "mute", "muet", "silencieux"}

// Discord wraps a session. State is consulted before REST for guilds,
// members and channels.
type Discord struct {
	session *discordgo.Session
	now     func() time.Time
}

var _ moderation.Platform = (*Discord)(nil)

// New creates a platform adapter for session.
func New(session *discordgo.Session) *Discord {
	return &Discord{session: session, now: time.Now}
}

// Session returns the wrapped session.
func (d *Discord) Session() *discordgo.Session { return d.session }

func opts(ctx context.Context, reason string) []discordgo.RequestOption {
	o := []discordgo.RequestOption{discordgo.WithContext(ctx)}
	if reason != "" {
		o = append(o, discordgo.WithAuditLogReason(reason))
	}
	return o
}

// wrap converts a discordgo error into a *moderation.PlatformError.
func wrap(op string, err error) error {
	if err == nil {
		return nil
	}
	pe := &moderation.PlatformError{Op: op, Message: err.Error(), Err: err}
	var rest *discordgo.RESTError
	if errors.As(err, &rest) {
		if rest.Response != nil {
			pe.Status = rest.Response.StatusCode
		}
		if rest.Message != nil {
			pe.Code = rest.Message.Code
			pe.Message = rest.Message.Message
		}
	}
	return pe
}

func (d *Discord) guild(ctx context.Context, guildID string) (*discordgo.Guild, error) {
	if d.session.State != nil {
		if g, err := d.session.State.Guild(guildID); err == nil && g != nil {
			return g, nil
		}
	}
	g, err := d.session.Guild(guildID, discordgo.WithContext(ctx))
	if err != nil {
		return nil, wrap("get_guild", err)
	}
	return g, nil
}

func (d *Discord) roles(ctx context.Context, guildID string) ([]*discordgo.Role, error) {
	if d.session.State != nil {
		if g, err := d.session.State.Guild(guildID); err == nil && g != nil && len(g.Roles) > 0 {
			return g.Roles, nil
		}
	}
	roles, err := d.session.GuildRoles(guildID, discordgo.WithContext(ctx))
	if err != nil {
		return nil, wrap("get_roles", err)
	}
	return roles, nil
}

func (d *Discord) member(ctx context.Context, guildID, userID string) (*discordgo.Member, error) {
	if d.session.State != nil {
		if m, err := d.session.State.Member(guildID, userID); err == nil && m != nil {
			return m, nil
		}
	}
	m, err := d.session.GuildMember(guildID, userID, discordgo.WithContext(ctx))
	if err != nil {
		return nil, wrap("get_member", err)
	}
	return m, nil
}

func (d *Discord) channel(ctx context.Context, channelID string) (*discordgo.Channel, error) {
	if d.session.State != nil {
		if c, err := d.session.State.Channel(channelID); err == nil && c != nil {
			return c, nil
		}
	}
	c, err := d.session.Channel(channelID, discordgo.WithContext(ctx))
	if err != nil {
		return nil, wrap("get_channel", err)
	}
	return c, nil
}

// SystemPrincipal resolves the bot's own member.
func (d *Discord) SystemPrincipal(ctx context.Context, guildID string) (moderation.Principal, error) {
	if d.session.State == nil || d.session.State.User == nil {
		return moderation.Principal{}, &moderation.PlatformError{Op: "system_principal", Message: "session has no user"}
	}
	return d.Principal(ctx, guildID, d.session.State.User.ID)
}

// Principal resolves a guild member with its rank, flags and capabilities.
func (d *Discord) Principal(ctx context.Context, guildID, userID string) (moderation.Principal, error) {
	g, err := d.guild(ctx, guildID)
	if err != nil {
		return moderation.Principal{}, err
	}
	m, err := d.member(ctx, guildID, userID)
	if err != nil {
		return moderation.Principal{}, err
	}
	roles, err := d.roles(ctx, guildID)
	if err != nil {
		return moderation.Principal{}, err
	}
	return principalFor(g.OwnerID, guildID, m, roles), nil
}

func principalFor(ownerID, guildID string, m *discordgo.Member, roles []*discordgo.Role) moderation.Principal {
	p := moderation.Principal{}
	if m.User != nil {
		p.ID = m.User.ID
		p.Username = m.User.Username
		p.Bot = m.User.Bot
	}

	byID := make(map[string]*discordgo.Role, len(roles))
	for _, r := range roles {
		byID[r.ID] = r
	}

	var perms int64
	if everyone, ok := byID[guildID]; ok {
		perms |= everyone.Permissions
	}
	for _, id := range m.Roles {
		r, ok := byID[id]
		if !ok {
			continue
		}
		perms |= r.Permissions
		p.RoleIDs = append(p.RoleIDs, r.ID)
		p.RoleNames = append(p.RoleNames, r.Name)
		if r.Position > p.Rank {
			p.Rank = r.Position
		}
	}

	p.Administrator = perms&discordgo.PermissionAdministrator != 0
	p.Capabilities = capabilitiesOf(perms)
	if p.ID != "" && p.ID == ownerID {
		p.Owner = true
		p.Rank = moderation.OwnerRank
	}
	return p
}

func capabilitiesOf(perms int64) moderation.Capability {
	var c moderation.Capability
	pairs := []struct {
		bit        int64
		capability moderation.Capability
	}{
		{discordgo.PermissionBanMembers, moderation.CapBanMembers},
		{discordgo.PermissionKickMembers, moderation.CapKickMembers},
		{discordgo.PermissionModerateMembers, moderation.CapModerateMembers},
		{discordgo.PermissionManageRoles, moderation.CapManageRoles},
		{discordgo.PermissionManageMessages, moderation.CapManageMessages},
		{discordgo.PermissionManageChannels, moderation.CapManageChannels},
		{discordgo.PermissionManageGuild, moderation.CapManageGuild},
	}
	for _, p := range pairs {
		if perms&p.bit != 0 {
			c |= p.capability
		}
	}
	return c
}

func (d *Discord) Ban(ctx context.Context, guildID, userID, reason string, deleteMessageDays int) error {
	if deleteMessageDays < 0 {
		deleteMessageDays = 0
	}
	if deleteMessageDays > 7 {
		deleteMessageDays = 7
	}
	err := d.session.GuildBanCreateWithReason(guildID, userID, reason, deleteMessageDays, discordgo.WithContext(ctx))
	return wrap("ban", err)
}

func (d *Discord) Unban(ctx context.Context, guildID, userID, reason string) error {
	return wrap("unban", d.session.GuildBanDelete(guildID, userID, opts(ctx, reason)...))
}

func (d *Discord) Kick(ctx context.Context, guildID, userID, reason string) error {
	err := d.session.GuildMemberDeleteWithReason(guildID, userID, reason, discordgo.WithContext(ctx))
	return wrap("kick", err)
}

// EnsureMuteRole returns roleID when it still exists, then any role named like
// a mute role, and otherwise creates one denied in every channel.
func (d *Discord) EnsureMuteRole(ctx context.Context, guildID, roleID string) (string, error) {
	roles, err := d.roles(ctx, guildID)
	if err != nil {
		return "", err
	}
	if roleID != "" {
		for _, r := range roles {
			if r.ID == roleID {
				return roleID, nil
			}
		}
	}
	for _, r := range roles {
		name := strings.ToLower(strings.TrimSpace(r.Name))
		for _, want := range muteRoleNames {
			if name == want {
				return r.ID, nil
			}
		}
	}

	color := MuteRoleColor
	var none int64
	role, err := d.session.GuildRoleCreate(guildID, &discordgo.RoleParams{
		Name:        MuteRoleName,
		Color:       &color,
		Permissions: &none,
	}, opts(ctx, "mute role")...)
	if err != nil {
		return "", wrap("create_mute_role", err)
	}

	channels, err := d.session.GuildChannels(guildID, discordgo.WithContext(ctx))
	if err != nil {
		log.DiscordLogger().Warn("Mute role created but channels could not be listed", "guildID", guildID, "roleID", role.ID, "error", err)
		return role.ID, nil
	}
	for _, ch := range channels {
		if err := d.session.ChannelPermissionSet(ch.ID, role.ID, discordgo.PermissionOverwriteTypeRole, 0, MuteDeny, discordgo.WithContext(ctx)); err != nil {
			log.DiscordLogger().Warn("Failed to apply mute role overwrite", "guildID", guildID, "channelID", ch.ID, "error", err)
		}
	}
	log.DiscordLogger().Info("Mute role created", "guildID", guildID, "roleID", role.ID, "channels", len(channels))
	return role.ID, nil
}

// Mute adds the mute role, then the timeout when until is set. Once the role
// is on, a failed timeout is logged and the mute stands: the role alone
// silences the member and the reversion removes it.
func (d *Discord) Mute(ctx context.Context, guildID, userID, roleID string, until *time.Time, reason string) error {
	if roleID != "" {
		if err := d.session.GuildMemberRoleAdd(guildID, userID, roleID, opts(ctx, reason)...); err != nil {
			return wrap("mute", err)
		}
	}
	if until == nil {
		return nil
	}
	t := *until
	if limit := d.now().Add(MaxTimeout); t.After(limit) {
		t = limit
	}
	if err := d.session.GuildMemberTimeout(guildID, userID, &t, opts(ctx, reason)...); err != nil {
		if roleID == "" {
			return wrap("timeout", err)
		}
		log.DiscordLogger().Warn("Timeout failed, member muted by role only", "guildID", guildID, "userID", userID, "roleID", roleID, "error", err)
	}
	return nil
}

func (d *Discord) Unmute(ctx context.Context, guildID, userID, roleID, reason string) error {
	m, err := d.member(ctx, guildID, userID)
	if err != nil {
		return err
	}
	if roleID != "" && hasRole(m, roleID) {
		if err := d.session.GuildMemberRoleRemove(guildID, userID, roleID, opts(ctx, reason)...); err != nil {
			return wrap("unmute", err)
		}
	}
	if m.CommunicationDisabledUntil != nil && m.CommunicationDisabledUntil.After(d.now()) {
		if err := d.session.GuildMemberTimeout(guildID, userID, nil, opts(ctx, reason)...); err != nil {
			return wrap("clear_timeout", err)
		}
	}
	return nil
}

func (d *Discord) IsMuted(ctx context.Context, guildID, userID, roleID string) (bool, error) {
	m, err := d.member(ctx, guildID, userID)
	if err != nil {
		if moderation.IsPlatformCode(err, moderation.CodeUnknownMember) || moderation.IsPlatformCode(err, moderation.CodeUnknownUser) {
			return false, nil
		}
		return false, err
	}
	if roleID != "" && hasRole(m, roleID) {
		return true, nil
	}
	return m.CommunicationDisabledUntil != nil && m.CommunicationDisabledUntil.After(d.now()), nil
}

func hasRole(m *discordgo.Member, roleID string) bool {
	for _, r := range m.Roles {
		if r == roleID {
			return true
		}
	}
	return false
}

// everyoneOverwrite returns the @everyone role overwrite of ch. The @everyone
// role shares the guild id.
func everyoneOverwrite(ch *discordgo.Channel, guildID string) moderation.ChannelOverwrite {
	for _, o := range ch.PermissionOverwrites {
		if o.ID == guildID && o.Type == discordgo.PermissionOverwriteTypeRole {
			return moderation.ChannelOverwrite{Exists: true, Allow: o.Allow, Deny: o.Deny}
		}
	}
	return moderation.ChannelOverwrite{}
}

func (d *Discord) LockChannel(ctx context.Context, guildID, channelID, reason string) (moderation.ChannelOverwrite, error) {
	ch, err := d.channel(ctx, channelID)
	if err != nil {
		return moderation.ChannelOverwrite{}, err
	}
	original := everyoneOverwrite(ch, guildID)
	allow := original.Allow &^ LockDeny
	deny := original.Deny | LockDeny
	if err := d.session.ChannelPermissionSet(channelID, guildID, discordgo.PermissionOverwriteTypeRole, allow, deny, opts(ctx, reason)...); err != nil {
		return moderation.ChannelOverwrite{}, wrap("lock", err)
	}
	return original, nil
}

func (d *Discord) UnlockChannel(ctx context.Context, guildID, channelID string, original *moderation.ChannelOverwrite, reason string) error {
	var restore moderation.ChannelOverwrite
	if original != nil {
		restore = *original
	} else {
		ch, err := d.channel(ctx, channelID)
		if err != nil {
			return err
		}
		cur := everyoneOverwrite(ch, guildID)
		restore = moderation.ChannelOverwrite{Exists: cur.Exists, Allow: cur.Allow, Deny: cur.Deny &^ LockDeny}
	}

	if !restore.Exists || (restore.Allow == 0 && restore.Deny == 0) {
		err := wrap("unlock", d.session.ChannelPermissionDelete(channelID, guildID, opts(ctx, reason)...))
		var pe *moderation.PlatformError
		// A missing overwrite is already unlocked; a missing channel is not.
		if errors.As(err, &pe) && pe.Status == http.StatusNotFound && pe.Code != moderation.CodeUnknownChannel {
			return nil
		}
		return err
	}
	err := d.session.ChannelPermissionSet(channelID, guildID, discordgo.PermissionOverwriteTypeRole, restore.Allow, restore.Deny, opts(ctx, reason)...)
	return wrap("unlock", err)
}

func (d *Discord) IsLocked(ctx context.Context, guildID, channelID string) (bool, error) {
	ch, err := d.channel(ctx, channelID)
	if err != nil {
		return false, err
	}
	ow := everyoneOverwrite(ch, guildID)
	return ow.Exists && ow.Deny&discordgo.PermissionSendMessages != 0, nil
}

// PurgeMessages deletes up to count of the most recent messages. Messages
// older than 14 days cannot be bulk deleted and are counted as skipped.
func (d *Discord) PurgeMessages(ctx context.Context, channelID string, count int, authorID string) (moderation.PurgeResult, error) {
	var res moderation.PurgeResult
	if count <= 0 {
		return res, nil
	}
	cutoff := d.now().Add(-BulkDeleteMaxAge)

	var (
		toDelete []string
		before   string
	)
	// Scan at most a few pages when filtering by author.
	for page := 0; page < 5 && len(toDelete)+res.Skipped < count; page++ {
		msgs, err := d.session.ChannelMessages(channelID, 100, before, "", "", discordgo.WithContext(ctx))
		if err != nil {
			return res, wrap("list_messages", err)
		}
		if len(msgs) == 0 {
			break
		}
		for _, m := range msgs {
			before = m.ID
			if len(toDelete)+res.Skipped >= count {
				break
			}
			if authorID != "" && (m.Author == nil || m.Author.ID != authorID) {
				continue
			}
			if !m.Timestamp.IsZero() && m.Timestamp.Before(cutoff) {
				res.Skipped++
				continue
			}
			toDelete = append(toDelete, m.ID)
		}
		if len(msgs) < 100 {
			break
		}
	}

	sort.Strings(toDelete)
	var firstErr error
	deleted, failed := cleanup.DeleteMessages(ctx, d.session, channelID, toDelete, cleanup.DeleteOptions{
		OnDeleteError: func(_ string, err error) {
			if firstErr == nil {
				firstErr = err
			}
		},
	})
	res.Deleted = deleted
	if failed > 0 {
		if deleted == 0 {
			return res, wrap("purge", firstErr)
		}
		log.DiscordLogger().Warn("Some messages could not be purged", "channelID", channelID, "deleted", deleted, "failed", failed, "err", firstErr)
	}
	return res, nil
}

// CanSendEmbeds reports whether the bot can view, send and embed in channelID.
func (d *Discord) CanSendEmbeds(ctx context.Context, channelID string) (bool, error) {
	if d.session.State == nil || d.session.State.User == nil {
		return false, fmt.Errorf("session has no user")
	}
	perms, err := d.session.UserChannelPermissions(d.session.State.User.ID, channelID, discordgo.WithContext(ctx))
	if err != nil {
		return false, wrap("channel_permissions", err)
	}
	need := int64(discordgo.PermissionViewChannel | discordgo.PermissionSendMessages | discordgo.PermissionEmbedLinks)
	return perms&discordgo.PermissionAdministrator != 0 || perms&need == need, nil
}
