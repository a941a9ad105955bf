package core

import (
	"context"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/small-frappuccino/modcore/pkg/log"
	"github.com/small-frappuccino/modcore/pkg/moderation"
)

// policyTimeout bounds the policy lookup done before a handler runs.
const policyTimeout = 5 * time.Second

// ContextBuilder resolves the per-interaction Context handed to commands.
type ContextBuilder struct {
	session *discordgo.Session
	deps    *Deps
	checker *PermissionChecker
}

func NewContextBuilder(session *discordgo.Session, deps *Deps, checker *PermissionChecker) *ContextBuilder {
	if deps == nil {
		deps = &Deps{}
	}
	return &ContextBuilder{
		session: session,
		deps:    deps,
		checker: checker,
	}
}

// BuildContext resolves the guild policy and language for i. A policy that
// cannot be loaded falls back to the defaults so the command can still answer.
func (cb *ContextBuilder) BuildContext(parent context.Context, i *discordgo.InteractionCreate) *Context {
	userID := invokerID(i)
	guildID := i.GuildID

	ctx := &Context{
		Session:     cb.session,
		Interaction: i,
		Deps:        cb.deps,
		GuildID:     guildID,
		ChannelID:   i.ChannelID,
		UserID:      userID,
		Logger: log.ApplicationLogger().With(
			"command", GetCommandPath(i),
			"guildID", guildID,
			"userID", userID,
		),
		ctx: parent,
	}

	ctx.Language = cb.deps.DefaultLanguage
	if guildID == "" {
		return ctx
	}

	ctx.Policy = moderation.DefaultPolicy(guildID, cb.deps.DefaultLanguage)
	if cb.deps.Store != nil {
		lookup, cancel := context.WithTimeout(parent, policyTimeout)
		policy, err := cb.deps.Store.GuildPolicy(lookup, guildID)
		cancel()
		if err != nil {
			ctx.Logger.Warn("Falling back to default guild policy", "error", err)
		} else {
			ctx.Policy = policy
		}
	}
	ctx.Language = ctx.Policy.Language
	if cb.checker != nil {
		ctx.IsOwner = cb.checker.IsOwner(guildID, userID)
	}
	return ctx
}

// invokerID prefers the member user, set in guilds, over the DM user.
func invokerID(i *discordgo.InteractionCreate) string {
	switch {
	case i.Member != nil && i.Member.User != nil:
		return i.Member.User.ID
	case i.User != nil:
		return i.User.ID
	}
	return ""
}

// subCommand returns the invoked subcommand option, or nil.
func subCommand(i *discordgo.InteractionCreate) *discordgo.ApplicationCommandInteractionDataOption {
	if opts := i.ApplicationCommandData().Options; len(opts) > 0 && opts[0].Type == discordgo.ApplicationCommandOptionSubCommand {
		return opts[0]
	}
	return nil
}

func GetSubCommandName(i *discordgo.InteractionCreate) string {
	if sub := subCommand(i); sub != nil {
		return sub.Name
	}
	return ""
}

// GetSubCommandOptions returns the subcommand's options, or the command's own
// options when there is no subcommand.
func GetSubCommandOptions(i *discordgo.InteractionCreate) []*discordgo.ApplicationCommandInteractionDataOption {
	if sub := subCommand(i); sub != nil {
		return sub.Options
	}
	return i.ApplicationCommandData().Options
}

// GetCommandPath returns "name" or "name sub" for application commands.
func GetCommandPath(i *discordgo.InteractionCreate) string {
	if i == nil || i.Interaction == nil || i.Type != discordgo.InteractionApplicationCommand {
		return ""
	}
	if sub := subCommand(i); sub != nil {
		return i.ApplicationCommandData().Name + " " + sub.Name
	}
	return i.ApplicationCommandData().Name
}
