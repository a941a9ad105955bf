package core

import (
	"context"
	"fmt"
	"strings"

	"github.com/bwmarrin/discordgo"
	"github.com/small-frappuccino/modcore/pkg/moderation"
)

// OptionExtractor reads interaction options by name. Missing options and
// options of another type yield the zero value.
type OptionExtractor struct {
	options []*discordgo.ApplicationCommandInteractionDataOption
}

func NewOptionExtractor(options []*discordgo.ApplicationCommandInteractionDataOption) *OptionExtractor {
	return &OptionExtractor{options: options}
}

func (e *OptionExtractor) find(name string) *discordgo.ApplicationCommandInteractionDataOption {
	for _, opt := range e.options {
		if opt.Name == name {
			return opt
		}
	}
	return nil
}

// String returns the trimmed value of a string option.
func (e *OptionExtractor) String(name string) string {
	if opt := e.find(name); opt != nil {
		if s, ok := opt.Value.(string); ok {
			return strings.TrimSpace(s)
		}
	}
	return ""
}

func (e *OptionExtractor) StringRequired(name string) (string, error) {
	value := e.String(name)
	if value == "" {
		return "", NewValidationError(name, fmt.Sprintf("Option '%s' is required", name))
	}
	return value, nil
}

// OptionalBool distinguishes an unset option from false.
func (e *OptionExtractor) OptionalBool(name string) *bool {
	if opt := e.find(name); opt != nil {
		if b, ok := opt.Value.(bool); ok {
			return &b
		}
	}
	return nil
}

func (e *OptionExtractor) Int(name string) int64 {
	if opt := e.find(name); opt != nil {
		switch v := opt.Value.(type) {
		case float64:
			return int64(v)
		case int64:
			return v
		case int:
			return int64(v)
		}
	}
	return 0
}

// ID returns the snowflake of a user, channel, role or mentionable option.
func (e *OptionExtractor) ID(name string) string {
	return e.String(name)
}

func (e *OptionExtractor) IDRequired(name string) (string, error) {
	return e.StringRequired(name)
}

// OwnerStore caches guild owners between restarts.
type OwnerStore interface {
	GuildOwnerID(ctx context.Context, guildID string) (string, bool, error)
	SetGuildOwnerID(ctx context.Context, guildID, ownerID string) error
}

// PermissionChecker classifies users against the guild policy.
type PermissionChecker struct {
	session  *discordgo.Session
	platform moderation.Platform
	owners   OwnerStore
}

func NewPermissionChecker(session *discordgo.Session, platform moderation.Platform) *PermissionChecker {
	return &PermissionChecker{session: session, platform: platform}
}

func (pc *PermissionChecker) SetOwnerStore(store OwnerStore) {
	pc.owners = store
}

// getOwnerID resolves the guild owner using state, then the store, then REST,
// writing REST results back to the store.
func (pc *PermissionChecker) getOwnerID(guildID string) (string, bool) {
	if pc.session != nil && pc.session.State != nil {
		if g, _ := pc.session.State.Guild(guildID); g != nil && g.OwnerID != "" {
			return g.OwnerID, true
		}
	}
	ctx := context.Background()
	if pc.owners != nil {
		if oid, ok, _ := pc.owners.GuildOwnerID(ctx, guildID); ok {
			return oid, true
		}
	}
	if pc.session != nil {
		if g, err := pc.session.Guild(guildID); err == nil && g != nil {
			if pc.owners != nil && g.OwnerID != "" {
				_ = pc.owners.SetGuildOwnerID(ctx, guildID, g.OwnerID)
			}
			return g.OwnerID, true
		}
	}
	return "", false
}

func (pc *PermissionChecker) IsOwner(guildID, userID string) bool {
	if guildID == "" {
		return false
	}
	ownerID, ok := pc.getOwnerID(guildID)
	return ok && ownerID == userID
}

// Privilege returns the moderation tier of the invoking user.
func (pc *PermissionChecker) Privilege(ctx *Context) (moderation.Privilege, error) {
	if ctx.GuildID == "" {
		return moderation.PrivilegeNone, nil
	}
	if ctx.IsOwner {
		return moderation.PrivilegeAdministrator, nil
	}
	if pc.platform == nil {
		return moderation.PrivilegeNone, nil
	}
	p, err := pc.platform.Principal(ctx.Context(), ctx.GuildID, ctx.UserID)
	if err != nil {
		return moderation.PrivilegeNone, err
	}
	return moderation.IsPrivileged(p, ctx.Policy), nil
}

// HasPermission reports whether the user reaches level. Lookup failures deny.
func (pc *PermissionChecker) HasPermission(ctx *Context, level moderation.Privilege) bool {
	got, err := pc.Privilege(ctx)
	if err != nil {
		ctx.Logger.Warn("Failed to resolve invoking member", "error", err)
		return false
	}
	return got >= level
}

// Mention formats a user id as a mention.
func Mention(userID string) string {
	if userID == "" {
		return ""
	}
	return "<@" + userID + ">"
}

// ChannelMention formats a channel id as a mention.
func ChannelMention(channelID string) string {
	if channelID == "" {
		return ""
	}
	return "<#" + channelID + ">"
}

// RoleMention formats a role id as a mention.
func RoleMention(roleID string) string {
	if roleID == "" {
		return ""
	}
	return "<@&" + roleID + ">"
}
