package config

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/bwmarrin/discordgo"
	"github.com/small-frappuccino/modcore/pkg/discord/commands/core"
	"github.com/small-frappuccino/modcore/pkg/i18n"
	"github.com/small-frappuccino/modcore/pkg/moderation"
	"github.com/small-frappuccino/modcore/pkg/theme"
)

// EmbedChecker reports whether the bot can post embeds in a channel.
type EmbedChecker interface {
	CanSendEmbeds(ctx context.Context, channelID string) (bool, error)
}

// ConfigCommands registers the guild configuration commands.
type ConfigCommands struct {
	checker *core.PermissionChecker
}

func NewConfigCommands(checker *core.PermissionChecker) *ConfigCommands {
	return &ConfigCommands{checker: checker}
}

// RegisterCommands registers /setlang, /setlogs, /muterole, /modroles,
// /welcome and /config in router.
func (cc *ConfigCommands) RegisterCommands(router *core.CommandRouter) {
	checker := cc.checker
	if checker == nil {
		checker = router.PermissionChecker()
	}
	admin := adminGate{checker: checker}

	router.RegisterCommand(&setLangCommand{})
	router.RegisterCommand(&setLogsCommand{adminGate: admin})
	router.RegisterCommand(&muteRoleCommand{adminGate: admin})
	router.RegisterCommand(&welcomeCommand{adminGate: admin})
	router.RegisterCommand(&showConfigCommand{})

	group := core.NewGroupCommand("modroles", "Manage admin and moderator roles", checker)
	group.AddSubCommand(&modRolesAddSubCommand{adminGate: admin})
	group.AddSubCommand(&modRolesRemoveSubCommand{adminGate: admin})
	group.AddSubCommand(&modRolesListSubCommand{})
	router.RegisterCommand(group)
}

// adminGate restricts a command to the administrator tier. The router only
// checks the moderator tier.
type adminGate struct {
	checker *core.PermissionChecker
}

func (adminGate) RequiresGuild() bool       { return true }
func (adminGate) RequiresPermissions() bool { return true }

func (g adminGate) require(ctx *core.Context) error {
	if g.checker == nil || !g.checker.HasPermission(ctx, moderation.PrivilegeAdministrator) {
		return core.NewCommandError(ctx.T(i18n.DenyNotPrivileged), true)
	}
	return nil
}

func updatePolicy(ctx *core.Context, u moderation.PolicyUpdate) (moderation.GuildPolicy, error) {
	policy, err := ctx.Deps.Store.UpdateGuildPolicy(ctx.Context(), ctx.GuildID, u)
	if err != nil {
		ctx.Logger.Error("Failed to update guild policy", "error", err)
		return moderation.GuildPolicy{}, core.NewCommandError(ctx.T(i18n.DenyPersistence), true)
	}
	ctx.Policy = policy
	return policy, nil
}

func roleTypeOption() *discordgo.ApplicationCommandOption {
	return &discordgo.ApplicationCommandOption{
		Type:        discordgo.ApplicationCommandOptionString,
		Name:        "type",
		Description: "Role tier",
		Required:    true,
		Choices: []*discordgo.ApplicationCommandOptionChoice{
			{Name: "admin", Value: "admin"},
			{Name: "moderator", Value: "moderator"},
		},
	}
}

// setLangCommand goes through the moderation service so the change is journaled.
type setLangCommand struct{}

func (c *setLangCommand) Name() string        { return "setlang" }
func (c *setLangCommand) Description() string { return "Set the server language" }
func (c *setLangCommand) Options() []*discordgo.ApplicationCommandOption {
	choices := make([]*discordgo.ApplicationCommandOptionChoice, 0, len(moderation.SupportedLanguages))
	for _, lang := range moderation.SupportedLanguages {
		choices = append(choices, &discordgo.ApplicationCommandOptionChoice{Name: lang, Value: lang})
	}
	return []*discordgo.ApplicationCommandOption{
		{
			Type:        discordgo.ApplicationCommandOptionString,
			Name:        "language",
			Description: "fr, en or es",
			Required:    true,
			Choices:     choices,
		},
	}
}
func (c *setLangCommand) RequiresGuild() bool       { return true }
func (c *setLangCommand) RequiresPermissions() bool { return true }
func (c *setLangCommand) Handle(ctx *core.Context) error {
	lang, err := core.NewOptionExtractor(core.GetSubCommandOptions(ctx.Interaction)).StringRequired("language")
	if err != nil {
		return err
	}
	actor, err := ctx.Actor()
	if err != nil {
		return fmt.Errorf("resolve invoking member: %w", err)
	}
	res := ctx.Deps.Moderation.Execute(ctx.Context(), moderation.Request{
		GuildID:   ctx.GuildID,
		ChannelID: ctx.ChannelID,
		Kind:      moderation.KindSetLang,
		Actor:     actor,
		Language:  lang,
	})
	return ctx.RespondResult(res, i18n.Must(res.Policy.Language, i18n.SetLangSuccess, res.Policy.Language))
}

type setLogsCommand struct{ adminGate }

func (c *setLogsCommand) Name() string        { return "setlogs" }
func (c *setLogsCommand) Description() string { return "Choose the moderation log channel" }
func (c *setLogsCommand) Options() []*discordgo.ApplicationCommandOption {
	return []*discordgo.ApplicationCommandOption{
		{
			Type:         discordgo.ApplicationCommandOptionChannel,
			Name:         "channel",
			Description:  "Channel that receives moderation logs",
			Required:     true,
			ChannelTypes: []discordgo.ChannelType{discordgo.ChannelTypeGuildText, discordgo.ChannelTypeGuildNews},
		},
	}
}
func (c *setLogsCommand) Handle(ctx *core.Context) error {
	if err := c.require(ctx); err != nil {
		return err
	}
	channelID, err := core.NewOptionExtractor(core.GetSubCommandOptions(ctx.Interaction)).IDRequired("channel")
	if err != nil {
		return err
	}
	if checker, ok := ctx.Deps.Platform.(EmbedChecker); ok {
		allowed, err := checker.CanSendEmbeds(ctx.Context(), channelID)
		if err != nil {
			ctx.Logger.Warn("Failed to check log channel permissions", "channelID", channelID, "error", err)
		}
		if err != nil || !allowed {
			return core.NewCommandError(ctx.T(i18n.SetLogsMissing, core.ChannelMention(channelID)), true)
		}
	}
	if _, err := updatePolicy(ctx, moderation.PolicyUpdate{LogChannelID: &channelID}); err != nil {
		return err
	}
	return core.NewResponseBuilder(ctx.Session).Success(ctx.Interaction, ctx.T(i18n.SetLogsSuccess, core.ChannelMention(channelID)))
}

type muteRoleCommand struct{ adminGate }

func (c *muteRoleCommand) Name() string { return "muterole" }
func (c *muteRoleCommand) Description() string {
	return "Set the mute role, or create one when no role is given"
}
func (c *muteRoleCommand) Options() []*discordgo.ApplicationCommandOption {
	return []*discordgo.ApplicationCommandOption{
		{
			Type:        discordgo.ApplicationCommandOptionRole,
			Name:        "role",
			Description: "Existing role to use",
			Required:    false,
		},
	}
}
func (c *muteRoleCommand) Handle(ctx *core.Context) error {
	if err := c.require(ctx); err != nil {
		return err
	}
	roleID := core.NewOptionExtractor(core.GetSubCommandOptions(ctx.Interaction)).ID("role")
	key := i18n.MuteRoleSet
	if roleID == "" {
		ensured, err := ctx.Deps.Platform.EnsureMuteRole(ctx.Context(), ctx.GuildID, ctx.Policy.MuteRoleID)
		if err != nil {
			ctx.Logger.Error("Failed to prepare mute role", "error", err)
			return core.NewCommandError(ctx.T(i18n.DenialKey(string(moderation.ReasonFor(err)))), true)
		}
		if ensured != ctx.Policy.MuteRoleID {
			key = i18n.MuteRoleCreated
		}
		roleID = ensured
	}
	if _, err := updatePolicy(ctx, moderation.PolicyUpdate{MuteRoleID: &roleID}); err != nil {
		return err
	}
	return core.NewResponseBuilder(ctx.Session).Success(ctx.Interaction, ctx.T(key, core.RoleMention(roleID)))
}

type welcomeCommand struct{ adminGate }

func (c *welcomeCommand) Name() string        { return "welcome" }
func (c *welcomeCommand) Description() string { return "Configure welcome messages" }
func (c *welcomeCommand) Options() []*discordgo.ApplicationCommandOption {
	return []*discordgo.ApplicationCommandOption{
		{
			Type:         discordgo.ApplicationCommandOptionChannel,
			Name:         "channel",
			Description:  "Channel for welcome messages",
			Required:     true,
			ChannelTypes: []discordgo.ChannelType{discordgo.ChannelTypeGuildText},
		},
		{
			Type:        discordgo.ApplicationCommandOptionString,
			Name:        "message",
			Description: "Template; supports {user}, {server} and {count}",
			Required:    false,
			MaxLength:   1000,
		},
		{
			Type:        discordgo.ApplicationCommandOptionBoolean,
			Name:        "enabled",
			Description: "Turn welcome messages on or off (default on)",
			Required:    false,
		},
	}
}
func (c *welcomeCommand) Handle(ctx *core.Context) error {
	if err := c.require(ctx); err != nil {
		return err
	}
	extractor := core.NewOptionExtractor(core.GetSubCommandOptions(ctx.Interaction))
	channelID, err := extractor.IDRequired("channel")
	if err != nil {
		return err
	}
	enabled := true
	if v := extractor.OptionalBool("enabled"); v != nil {
		enabled = *v
	}
	update := moderation.PolicyUpdate{WelcomeChannelID: &channelID, WelcomeEnabled: &enabled}
	if message := extractor.String("message"); message != "" {
		update.WelcomeMessage = &message
	}
	if _, err := updatePolicy(ctx, update); err != nil {
		return err
	}
	state := ctx.T(i18n.ConfigDisabled)
	if enabled {
		state = ctx.T(i18n.ConfigEnabled)
	}
	return core.NewResponseBuilder(ctx.Session).Success(ctx.Interaction, ctx.T(i18n.WelcomeUpdated, core.ChannelMention(channelID), state))
}

type showConfigCommand struct{}

func (c *showConfigCommand) Name() string        { return "config" }
func (c *showConfigCommand) Description() string { return "Show the server configuration" }
func (c *showConfigCommand) Options() []*discordgo.ApplicationCommandOption {
	return nil
}
func (c *showConfigCommand) RequiresGuild() bool       { return true }
func (c *showConfigCommand) RequiresPermissions() bool { return true }
func (c *showConfigCommand) Handle(ctx *core.Context) error {
	embed := policyEmbed(ctx, ctx.Policy)
	return core.NewResponseBuilder(ctx.Session).Ephemeral().Build().Embed(ctx.Interaction, embed)
}

func policyEmbed(ctx *core.Context, p moderation.GuildPolicy) *discordgo.MessageEmbed {
	welcome := ctx.T(i18n.ConfigDisabled)
	if p.WelcomeEnabled {
		welcome = fmt.Sprintf("%s %s\n%s", ctx.T(i18n.ConfigEnabled), orNotSet(ctx, core.ChannelMention(p.WelcomeChannelID)), p.WelcomeMessage)
	}
	return &discordgo.MessageEmbed{
		Title: ctx.T(i18n.ConfigTitle),
		Color: theme.Of(theme.Info),
		Fields: []*discordgo.MessageEmbedField{
			{Name: ctx.T(i18n.ConfigLanguage), Value: p.Language, Inline: true},
			{Name: ctx.T(i18n.ConfigLogChannel), Value: orNotSet(ctx, core.ChannelMention(p.LogChannelID)), Inline: true},
			{Name: ctx.T(i18n.ConfigMuteRole), Value: orNotSet(ctx, core.RoleMention(p.MuteRoleID)), Inline: true},
			{Name: ctx.T(i18n.ConfigAdminRoles), Value: orNotSet(ctx, roleList(p.AdminRoles))},
			{Name: ctx.T(i18n.ConfigModRoles), Value: orNotSet(ctx, roleList(p.ModeratorRoles))},
			{Name: ctx.T(i18n.ConfigWelcome), Value: welcome},
		},
	}
}

func orNotSet(ctx *core.Context, s string) string {
	if strings.TrimSpace(s) == "" {
		return ctx.T(i18n.ConfigNotSet)
	}
	return s
}

func roleList(ids []string) string {
	mentions := make([]string, 0, len(ids))
	for _, id := range ids {
		mentions = append(mentions, core.RoleMention(id))
	}
	return strings.Join(mentions, ", ")
}

// rolesOf returns the configured roles of tier.
func rolesOf(p moderation.GuildPolicy, tier string) []string {
	if tier == "admin" {
		return p.AdminRoles
	}
	return p.ModeratorRoles
}

func rolesUpdate(tier string, roles []string) moderation.PolicyUpdate {
	if tier == "admin" {
		return moderation.PolicyUpdate{AdminRoles: &roles}
	}
	return moderation.PolicyUpdate{ModeratorRoles: &roles}
}

func roleOptions(ctx *core.Context) (tier, roleID string, err error) {
	extractor := core.NewOptionExtractor(core.GetSubCommandOptions(ctx.Interaction))
	if tier, err = extractor.StringRequired("type"); err != nil {
		return "", "", err
	}
	if tier != "admin" && tier != "moderator" {
		return "", "", core.NewValidationError("type", ctx.T(i18n.DenyInvalidRequest))
	}
	if roleID, err = extractor.IDRequired("role"); err != nil {
		return "", "", err
	}
	return tier, roleID, nil
}

type modRolesAddSubCommand struct{ adminGate }

func (c *modRolesAddSubCommand) Name() string        { return "add" }
func (c *modRolesAddSubCommand) Description() string { return "Grant a tier to a role" }
func (c *modRolesAddSubCommand) Options() []*discordgo.ApplicationCommandOption {
	return []*discordgo.ApplicationCommandOption{
		roleTypeOption(),
		{Type: discordgo.ApplicationCommandOptionRole, Name: "role", Description: "Role to add", Required: true},
	}
}
func (c *modRolesAddSubCommand) Handle(ctx *core.Context) error {
	if err := c.require(ctx); err != nil {
		return err
	}
	tier, roleID, err := roleOptions(ctx)
	if err != nil {
		return err
	}
	roles := rolesOf(ctx.Policy, tier)
	if !slices.Contains(roles, roleID) {
		roles = append(slices.Clone(roles), roleID)
		if _, err := updatePolicy(ctx, rolesUpdate(tier, roles)); err != nil {
			return err
		}
	}
	return core.NewResponseBuilder(ctx.Session).Success(ctx.Interaction, ctx.T(i18n.ModRolesAdded, core.RoleMention(roleID), tier))
}

type modRolesRemoveSubCommand struct{ adminGate }

func (c *modRolesRemoveSubCommand) Name() string        { return "remove" }
func (c *modRolesRemoveSubCommand) Description() string { return "Revoke a tier from a role" }
func (c *modRolesRemoveSubCommand) Options() []*discordgo.ApplicationCommandOption {
	return []*discordgo.ApplicationCommandOption{
		roleTypeOption(),
		{Type: discordgo.ApplicationCommandOptionRole, Name: "role", Description: "Role to remove", Required: true},
	}
}
func (c *modRolesRemoveSubCommand) Handle(ctx *core.Context) error {
	if err := c.require(ctx); err != nil {
		return err
	}
	tier, roleID, err := roleOptions(ctx)
	if err != nil {
		return err
	}
	roles := rolesOf(ctx.Policy, tier)
	if slices.Contains(roles, roleID) {
		kept := slices.DeleteFunc(slices.Clone(roles), func(id string) bool { return id == roleID })
		if _, err := updatePolicy(ctx, rolesUpdate(tier, kept)); err != nil {
			return err
		}
	}
	return core.NewResponseBuilder(ctx.Session).Success(ctx.Interaction, ctx.T(i18n.ModRolesRemoved, core.RoleMention(roleID), tier))
}

type modRolesListSubCommand struct{}

func (c *modRolesListSubCommand) Name() string        { return "list" }
func (c *modRolesListSubCommand) Description() string { return "List the roles of each tier" }
func (c *modRolesListSubCommand) Options() []*discordgo.ApplicationCommandOption {
	return nil
}
func (c *modRolesListSubCommand) RequiresGuild() bool       { return true }
func (c *modRolesListSubCommand) RequiresPermissions() bool { return true }
func (c *modRolesListSubCommand) Handle(ctx *core.Context) error {
	lines := make([]string, 0, 2)
	for _, tier := range []string{"admin", "moderator"} {
		roles := rolesOf(ctx.Policy, tier)
		if len(roles) == 0 {
			lines = append(lines, ctx.T(i18n.ModRolesNone, tier))
			continue
		}
		lines = append(lines, ctx.T(i18n.ModRolesList, tier, roleList(roles)))
	}
	return core.NewResponseBuilder(ctx.Session).Ephemeral().Info(ctx.Interaction, strings.Join(lines, "\n"))
}
