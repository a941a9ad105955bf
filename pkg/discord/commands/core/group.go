package core

import (
	"github.com/bwmarrin/discordgo"
	"github.com/small-frappuccino/modcore/pkg/i18n"
	"github.com/small-frappuccino/modcore/pkg/moderation"
)

// GroupCommand is a top-level command whose work is done by subcommands.
// Guild and moderator requirements are checked per subcommand.
type GroupCommand struct {
	name        string
	description string
	subs        []SubCommand
	checker     *PermissionChecker
}

func NewGroupCommand(name, description string, checker *PermissionChecker) *GroupCommand {
	return &GroupCommand{name: name, description: description, checker: checker}
}

// AddSubCommand appends sub, or replaces the subcommand of the same name in
// place.
func (gc *GroupCommand) AddSubCommand(sub SubCommand) {
	for i, s := range gc.subs {
		if s.Name() == sub.Name() {
			gc.subs[i] = sub
			return
		}
	}
	gc.subs = append(gc.subs, sub)
}

func (gc *GroupCommand) Name() string        { return gc.name }
func (gc *GroupCommand) Description() string { return gc.description }

func (gc *GroupCommand) Options() []*discordgo.ApplicationCommandOption {
	options := make([]*discordgo.ApplicationCommandOption, 0, len(gc.subs))
	for _, s := range gc.subs {
		options = append(options, &discordgo.ApplicationCommandOption{
			Type:        discordgo.ApplicationCommandOptionSubCommand,
			Name:        s.Name(),
			Description: s.Description(),
			Options:     s.Options(),
		})
	}
	return options
}

func (gc *GroupCommand) RequiresGuild() bool {
	for _, s := range gc.subs {
		if s.RequiresGuild() {
			return true
		}
	}
	return false
}

func (gc *GroupCommand) RequiresPermissions() bool { return false }

func (gc *GroupCommand) Handle(ctx *Context) error {
	name := GetSubCommandName(ctx.Interaction)
	if name == "" {
		return NewCommandError("No subcommand specified", true)
	}
	var sub SubCommand
	for _, s := range gc.subs {
		if s.Name() == name {
			sub = s
			break
		}
	}
	switch {
	case sub == nil:
		return NewCommandError("Unknown subcommand", true)
	case sub.RequiresGuild() && ctx.GuildID == "":
		return NewCommandError(ctx.T(i18n.CommonGuildOnly), true)
	case sub.RequiresPermissions() && (gc.checker == nil || !gc.checker.HasPermission(ctx, moderation.PrivilegeModerator)):
		return NewCommandError(ctx.T(i18n.DenyNotPrivileged), true)
	}
	return sub.Handle(ctx)
}
