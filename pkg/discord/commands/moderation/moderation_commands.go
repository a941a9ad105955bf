package moderation

import (
	"fmt"
	"strings"

	"github.com/bwmarrin/discordgo"
	"github.com/small-frappuccino/modcore/pkg/discord/commands/core"
	"github.com/small-frappuccino/modcore/pkg/i18n"
	mod "github.com/small-frappuccino/modcore/pkg/moderation"
)

// messageLimit is Discord's cap on message content.
const messageLimit = 2000

// RegisterModerationCommands registers the moderation slash commands as
// top-level commands.
func RegisterModerationCommands(router *core.CommandRouter) {
	for _, cmd := range []core.Command{
		newBanCommand(),
		newUnbanCommand(),
		newKickCommand(),
		newMuteCommand(),
		newUnmuteCommand(),
		newWarnCommand(),
		newUnwarnCommand(),
		newWarningsCommand(),
		newClearCommand(),
		newLockCommand(),
		newUnlockCommand(),
		newHistoryCommand(),
	} {
		router.RegisterCommand(cmd)
	}
}

// moderatorCommand gates a command to guilds and the moderator tier.
type moderatorCommand struct{}

func (moderatorCommand) RequiresGuild() bool       { return true }
func (moderatorCommand) RequiresPermissions() bool { return true }

func userOption(description string, required bool) *discordgo.ApplicationCommandOption {
	return &discordgo.ApplicationCommandOption{
		Type:        discordgo.ApplicationCommandOptionUser,
		Name:        "user",
		Description: description,
		Required:    required,
	}
}

func reasonOption(required bool) *discordgo.ApplicationCommandOption {
	return &discordgo.ApplicationCommandOption{
		Type:        discordgo.ApplicationCommandOptionString,
		Name:        "reason",
		Description: "Reason recorded in the audit log",
		Required:    required,
		MaxLength:   mod.MaxReasonLength,
	}
}

func durationOption(description string) *discordgo.ApplicationCommandOption {
	return &discordgo.ApplicationCommandOption{
		Type:        discordgo.ApplicationCommandOptionString,
		Name:        "duration",
		Description: description,
		Required:    false,
	}
}

func channelOption(description string) *discordgo.ApplicationCommandOption {
	return &discordgo.ApplicationCommandOption{
		Type:         discordgo.ApplicationCommandOptionChannel,
		Name:         "channel",
		Description:  description,
		Required:     false,
		ChannelTypes: []discordgo.ChannelType{discordgo.ChannelTypeGuildText, discordgo.ChannelTypeGuildNews},
	}
}

func options(ctx *core.Context) *core.OptionExtractor {
	return core.NewOptionExtractor(core.GetSubCommandOptions(ctx.Interaction))
}

// newRequest starts a request on behalf of the invoking member.
func newRequest(ctx *core.Context, kind mod.ActionKind) (mod.Request, error) {
	actor, err := ctx.Actor()
	if err != nil {
		return mod.Request{}, fmt.Errorf("resolve invoking member: %w", err)
	}
	return mod.Request{
		GuildID:   ctx.GuildID,
		ChannelID: ctx.ChannelID,
		Kind:      kind,
		Actor:     actor,
	}, nil
}

// resolveTarget loads the member behind userID. When allowAbsent is set a
// user who is not in the guild resolves to a bare principal.
func resolveTarget(ctx *core.Context, userID string, allowAbsent bool) (mod.Principal, error) {
	p, err := ctx.Deps.Platform.Principal(ctx.Context(), ctx.GuildID, userID)
	if err == nil {
		return p, nil
	}
	if mod.IsPlatformCode(err, mod.CodeUnknownMember) || mod.IsPlatformCode(err, mod.CodeUnknownUser) {
		if allowAbsent {
			return mod.Principal{ID: userID}, nil
		}
		return mod.Principal{}, core.NewCommandError(ctx.T(i18n.CommonUnknownUser), true)
	}
	return mod.Principal{}, fmt.Errorf("resolve member %s: %w", userID, err)
}

func execute(ctx *core.Context, req mod.Request) mod.Result {
	return ctx.Deps.Moderation.Execute(ctx.Context(), req)
}

// actorLabel renders the actor of a journal entry.
func actorLabel(actorID string) string {
	if actorID == mod.SystemActorID {
		return "modcore"
	}
	return core.Mention(actorID)
}

func timestamp(unix int64) string {
	return fmt.Sprintf("<t:%d:d>", unix)
}

// joinLines appends lines under header until the message limit is reached.
func joinLines(header string, lines []string) string {
	var b strings.Builder
	b.WriteString(header)
	for _, line := range lines {
		if b.Len()+len(line)+5 > messageLimit {
			b.WriteString("\n…")
			break
		}
		b.WriteString("\n")
		b.WriteString(line)
	}
	return b.String()
}

type banCommand struct{ moderatorCommand }

func newBanCommand() *banCommand { return &banCommand{} }

func (c *banCommand) Name() string        { return "ban" }
func (c *banCommand) Description() string { return "Ban a user from the server" }

func (c *banCommand) Options() []*discordgo.ApplicationCommandOption {
	minDays := float64(0)
	return []*discordgo.ApplicationCommandOption{
		userOption("User to ban", true),
		reasonOption(false),
		{
			Type:        discordgo.ApplicationCommandOptionInteger,
			Name:        "delete_days",
			Description: "Days of messages to delete (0-7)",
			MinValue:    &minDays,
			MaxValue:    7,
		},
	}
}

func (c *banCommand) Handle(ctx *core.Context) error {
	opts := options(ctx)
	userID, err := opts.IDRequired("user")
	if err != nil {
		return err
	}
	req, err := newRequest(ctx, mod.KindBan)
	if err != nil {
		return err
	}
	if req.Target, err = resolveTarget(ctx, userID, true); err != nil {
		return err
	}
	req.Reason = opts.String("reason")
	req.DeleteMessageDays = int(opts.Int("delete_days"))

	res := execute(ctx, req)
	return ctx.RespondResult(res, ctx.T(i18n.BanSuccess, core.Mention(userID), ctx.Reason(req.Reason)))
}

type unbanCommand struct{ moderatorCommand }

func newUnbanCommand() *unbanCommand { return &unbanCommand{} }

func (c *unbanCommand) Name() string        { return "unban" }
func (c *unbanCommand) Description() string { return "Lift a ban by user ID" }

func (c *unbanCommand) Options() []*discordgo.ApplicationCommandOption {
	return []*discordgo.ApplicationCommandOption{
		{
			Type:        discordgo.ApplicationCommandOptionString,
			Name:        "user_id",
			Description: "ID of the banned user",
			Required:    true,
		},
		reasonOption(false),
	}
}

func (c *unbanCommand) Handle(ctx *core.Context) error {
	opts := options(ctx)
	userID, err := opts.StringRequired("user_id")
	if err != nil {
		return err
	}
	userID = strings.Trim(userID, "<@!>")
	if !isSnowflake(userID) {
		return core.NewValidationError("user_id", ctx.T(i18n.DenyInvalidRequest))
	}
	req, err := newRequest(ctx, mod.KindUnban)
	if err != nil {
		return err
	}
	req.Target = mod.Principal{ID: userID}
	req.Reason = opts.String("reason")

	res := execute(ctx, req)
	return ctx.RespondResult(res, ctx.T(i18n.UnbanSuccess, core.Mention(userID), ctx.Reason(req.Reason)))
}

func isSnowflake(s string) bool {
	if len(s) < 15 || len(s) > 21 {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

type kickCommand struct{ moderatorCommand }

func newKickCommand() *kickCommand { return &kickCommand{} }

func (c *kickCommand) Name() string        { return "kick" }
func (c *kickCommand) Description() string { return "Remove a member from the server" }

func (c *kickCommand) Options() []*discordgo.ApplicationCommandOption {
	return []*discordgo.ApplicationCommandOption{
		userOption("Member to kick", true),
		reasonOption(false),
	}
}

func (c *kickCommand) Handle(ctx *core.Context) error {
	opts := options(ctx)
	userID, err := opts.IDRequired("user")
	if err != nil {
		return err
	}
	req, err := newRequest(ctx, mod.KindKick)
	if err != nil {
		return err
	}
	if req.Target, err = resolveTarget(ctx, userID, false); err != nil {
		return err
	}
	req.Reason = opts.String("reason")

	res := execute(ctx, req)
	return ctx.RespondResult(res, ctx.T(i18n.KickSuccess, core.Mention(userID), ctx.Reason(req.Reason)))
}

type muteCommand struct{ moderatorCommand }

func newMuteCommand() *muteCommand { return &muteCommand{} }

func (c *muteCommand) Name() string        { return "mute" }
func (c *muteCommand) Description() string { return "Mute a member, optionally for a limited time" }

func (c *muteCommand) Options() []*discordgo.ApplicationCommandOption {
	return []*discordgo.ApplicationCommandOption{
		userOption("Member to mute", true),
		durationOption("Duration such as 10m, 2h or 7d; omit for a permanent mute"),
		reasonOption(false),
	}
}

func (c *muteCommand) Handle(ctx *core.Context) error {
	opts := options(ctx)
	userID, err := opts.IDRequired("user")
	if err != nil {
		return err
	}
	req, err := newRequest(ctx, mod.KindMute)
	if err != nil {
		return err
	}
	if req.Target, err = resolveTarget(ctx, userID, false); err != nil {
		return err
	}
	req.Duration = opts.String("duration")
	req.Reason = opts.String("reason")

	res := execute(ctx, req)
	var msg string
	if res.Sanction != nil && res.Sanction.Duration > 0 {
		msg = ctx.T(i18n.MuteSuccess, core.Mention(userID), mod.FormatDuration(res.Sanction.Duration), ctx.Reason(req.Reason))
	} else {
		msg = ctx.T(i18n.MuteSuccessPermanent, core.Mention(userID), ctx.Reason(req.Reason))
	}
	return ctx.RespondResult(res, msg)
}

type unmuteCommand struct{ moderatorCommand }

func newUnmuteCommand() *unmuteCommand { return &unmuteCommand{} }

func (c *unmuteCommand) Name() string        { return "unmute" }
func (c *unmuteCommand) Description() string { return "Lift a member's mute" }

func (c *unmuteCommand) Options() []*discordgo.ApplicationCommandOption {
	return []*discordgo.ApplicationCommandOption{
		userOption("Member to unmute", true),
		reasonOption(false),
	}
}

func (c *unmuteCommand) Handle(ctx *core.Context) error {
	opts := options(ctx)
	userID, err := opts.IDRequired("user")
	if err != nil {
		return err
	}
	req, err := newRequest(ctx, mod.KindUnmute)
	if err != nil {
		return err
	}
	if req.Target, err = resolveTarget(ctx, userID, false); err != nil {
		return err
	}
	req.Reason = opts.String("reason")

	res := execute(ctx, req)
	return ctx.RespondResult(res, ctx.T(i18n.UnmuteSuccess, core.Mention(userID), ctx.Reason(req.Reason)))
}

type warnCommand struct{ moderatorCommand }

func newWarnCommand() *warnCommand { return &warnCommand{} }

func (c *warnCommand) Name() string        { return "warn" }
func (c *warnCommand) Description() string { return "Warn a member" }

func (c *warnCommand) Options() []*discordgo.ApplicationCommandOption {
	return []*discordgo.ApplicationCommandOption{
		userOption("Member to warn", true),
		reasonOption(true),
	}
}

func (c *warnCommand) Handle(ctx *core.Context) error {
	opts := options(ctx)
	userID, err := opts.IDRequired("user")
	if err != nil {
		return err
	}
	reason, err := opts.StringRequired("reason")
	if err != nil {
		return err
	}
	req, err := newRequest(ctx, mod.KindWarn)
	if err != nil {
		return err
	}
	if req.Target, err = resolveTarget(ctx, userID, false); err != nil {
		return err
	}
	req.Reason = reason

	res := execute(ctx, req)
	var warningID string
	if res.Warning != nil {
		warningID = res.Warning.ID
	}
	msg := ctx.T(i18n.WarnSuccess, core.Mention(userID), res.WarningCount, warningID)
	if line := escalationLine(ctx, userID, res.Escalation); line != "" {
		msg += "\n" + line
	}
	return ctx.RespondResult(res, msg)
}

// escalationLine describes the automatic action a warning triggered.
func escalationLine(ctx *core.Context, userID string, esc *mod.Escalation) string {
	if esc == nil {
		return ""
	}
	if !esc.Applied {
		ctx.Logger.Warn("Warning escalation not applied", "kind", string(esc.Kind), "reason", string(esc.Reason), "error", esc.Err)
		return ctx.T(i18n.WarnEscalationFailed, core.Mention(userID))
	}
	if esc.Kind == mod.KindBan {
		return ctx.T(i18n.WarnEscalatedBan, core.Mention(userID))
	}
	duration := ctx.T(i18n.CommonPermanent)
	if esc.Duration > 0 {
		duration = mod.FormatDuration(esc.Duration)
	}
	return ctx.T(i18n.WarnEscalatedMute, core.Mention(userID), duration)
}

type unwarnCommand struct{ moderatorCommand }

func newUnwarnCommand() *unwarnCommand { return &unwarnCommand{} }

func (c *unwarnCommand) Name() string        { return "unwarn" }
func (c *unwarnCommand) Description() string { return "Remove an active warning by ID" }

func (c *unwarnCommand) Options() []*discordgo.ApplicationCommandOption {
	return []*discordgo.ApplicationCommandOption{
		{
			Type:        discordgo.ApplicationCommandOptionString,
			Name:        "warning_id",
			Description: "ID shown by /warnings",
			Required:    true,
		},
		reasonOption(false),
	}
}

func (c *unwarnCommand) Handle(ctx *core.Context) error {
	opts := options(ctx)
	warningID, err := opts.StringRequired("warning_id")
	if err != nil {
		return err
	}
	req, err := newRequest(ctx, mod.KindUnwarn)
	if err != nil {
		return err
	}
	req.WarningID = warningID
	req.Reason = opts.String("reason")

	res := execute(ctx, req)
	var target string
	if res.Warning != nil {
		target = core.Mention(res.Warning.TargetID)
	}
	return ctx.RespondResult(res, ctx.T(i18n.UnwarnSuccess, warningID, target))
}

type warningsCommand struct{ moderatorCommand }

func newWarningsCommand() *warningsCommand { return &warningsCommand{} }

func (c *warningsCommand) Name() string        { return "warnings" }
func (c *warningsCommand) Description() string { return "List a member's active warnings" }

func (c *warningsCommand) Options() []*discordgo.ApplicationCommandOption {
	return []*discordgo.ApplicationCommandOption{userOption("Member to inspect", true)}
}

func (c *warningsCommand) Handle(ctx *core.Context) error {
	userID, err := options(ctx).IDRequired("user")
	if err != nil {
		return err
	}
	warnings, err := ctx.Deps.Moderation.Warnings().Active(ctx.Context(), ctx.GuildID, userID)
	if err != nil {
		return fmt.Errorf("list warnings: %w", err)
	}

	responder := core.NewResponseBuilder(ctx.Session).Ephemeral()
	if len(warnings) == 0 {
		return responder.Info(ctx.Interaction, ctx.T(i18n.WarningsNone, core.Mention(userID)))
	}
	lines := make([]string, 0, len(warnings))
	for _, w := range warnings {
		lines = append(lines, ctx.T(i18n.WarningsLine, w.ID, timestamp(w.CreatedAt.Unix()), actorLabel(w.ActorID), ctx.Reason(w.Reason)))
	}
	header := ctx.T(i18n.WarningsHeader, core.Mention(userID), len(warnings))
	return responder.Info(ctx.Interaction, joinLines(header, lines))
}

type clearCommand struct{ moderatorCommand }

func newClearCommand() *clearCommand { return &clearCommand{} }

func (c *clearCommand) Name() string        { return "clear" }
func (c *clearCommand) Description() string { return "Delete recent messages in this channel" }

func (c *clearCommand) Options() []*discordgo.ApplicationCommandOption {
	minCount := float64(1)
	return []*discordgo.ApplicationCommandOption{
		{
			Type:        discordgo.ApplicationCommandOptionInteger,
			Name:        "count",
			Description: "Number of messages to inspect (1-100)",
			Required:    true,
			MinValue:    &minCount,
			MaxValue:    100,
		},
		userOption("Only delete messages from this user", false),
		reasonOption(false),
	}
}

func (c *clearCommand) Handle(ctx *core.Context) error {
	opts := options(ctx)
	req, err := newRequest(ctx, mod.KindClear)
	if err != nil {
		return err
	}
	req.Count = int(opts.Int("count"))
	req.Target = mod.Principal{ID: opts.ID("user")}
	req.Reason = opts.String("reason")

	res := execute(ctx, req)
	var deleted, skipped int
	if res.Purge != nil {
		deleted, skipped = res.Purge.Deleted, res.Purge.Skipped
	}
	return ctx.RespondResult(res, ctx.T(i18n.ClearSuccess, deleted, skipped))
}

type lockCommand struct{ moderatorCommand }

func newLockCommand() *lockCommand { return &lockCommand{} }

func (c *lockCommand) Name() string        { return "lock" }
func (c *lockCommand) Description() string { return "Stop @everyone from posting in a channel" }

func (c *lockCommand) Options() []*discordgo.ApplicationCommandOption {
	return []*discordgo.ApplicationCommandOption{
		channelOption("Channel to lock (defaults to this one)"),
		durationOption("Duration such as 30m or 1d; omit to lock until /unlock"),
		reasonOption(false),
	}
}

func (c *lockCommand) Handle(ctx *core.Context) error {
	opts := options(ctx)
	req, err := newRequest(ctx, mod.KindLock)
	if err != nil {
		return err
	}
	if channelID := opts.ID("channel"); channelID != "" {
		req.ChannelID = channelID
	}
	req.Duration = opts.String("duration")
	req.Reason = opts.String("reason")

	res := execute(ctx, req)
	channel := core.ChannelMention(req.ChannelID)
	msg := ctx.T(i18n.LockSuccess, channel)
	if res.Sanction != nil && res.Sanction.Duration > 0 {
		msg = ctx.T(i18n.LockSuccessTimed, channel, mod.FormatDuration(res.Sanction.Duration))
	}
	return ctx.RespondResult(res, msg)
}

type unlockCommand struct{ moderatorCommand }

func newUnlockCommand() *unlockCommand { return &unlockCommand{} }

func (c *unlockCommand) Name() string        { return "unlock" }
func (c *unlockCommand) Description() string { return "Restore posting in a locked channel" }

func (c *unlockCommand) Options() []*discordgo.ApplicationCommandOption {
	return []*discordgo.ApplicationCommandOption{
		channelOption("Channel to unlock (defaults to this one)"),
		reasonOption(false),
	}
}

func (c *unlockCommand) Handle(ctx *core.Context) error {
	opts := options(ctx)
	req, err := newRequest(ctx, mod.KindUnlock)
	if err != nil {
		return err
	}
	if channelID := opts.ID("channel"); channelID != "" {
		req.ChannelID = channelID
	}
	req.Reason = opts.String("reason")

	res := execute(ctx, req)
	return ctx.RespondResult(res, ctx.T(i18n.UnlockSuccess, core.ChannelMention(req.ChannelID)))
}

type historyCommand struct{ moderatorCommand }

func newHistoryCommand() *historyCommand { return &historyCommand{} }

func (c *historyCommand) Name() string        { return "history" }
func (c *historyCommand) Description() string { return "Show the moderation history of a user" }

func (c *historyCommand) Options() []*discordgo.ApplicationCommandOption {
	minLimit := float64(1)
	return []*discordgo.ApplicationCommandOption{
		userOption("User to inspect", true),
		{
			Type:        discordgo.ApplicationCommandOptionInteger,
			Name:        "limit",
			Description: "Number of entries to show",
			MinValue:    &minLimit,
			MaxValue:    float64(mod.DefaultHistoryLimit),
		},
	}
}

func (c *historyCommand) Handle(ctx *core.Context) error {
	opts := options(ctx)
	userID, err := opts.IDRequired("user")
	if err != nil {
		return err
	}
	limit := int(opts.Int("limit"))
	if limit <= 0 {
		limit = ctx.Deps.HistoryLimit
	}
	entries, err := ctx.Deps.Moderation.History(ctx.Context(), ctx.GuildID, userID, limit)
	if err != nil {
		return fmt.Errorf("load history: %w", err)
	}

	responder := core.NewResponseBuilder(ctx.Session).Ephemeral()
	if len(entries) == 0 {
		return responder.Info(ctx.Interaction, ctx.T(i18n.HistoryNone, core.Mention(userID)))
	}
	lines := make([]string, 0, len(entries))
	for _, s := range entries {
		lines = append(lines, ctx.T(i18n.HistoryLine,
			s.Kind,
			timestamp(s.CreatedAt.Unix()),
			actorLabel(s.ActorID),
			ctx.Reason(s.Reason),
			historyStatus(ctx, s),
		))
	}
	header := ctx.T(i18n.HistoryHeader, core.Mention(userID), len(entries))
	return responder.Info(ctx.Interaction, joinLines(header, lines))
}

// historyStatus shows the duration of timed entries and whether the sanction
// still stands.
func historyStatus(ctx *core.Context, s mod.Sanction) string {
	state := ctx.T(i18n.HistoryInactive)
	if s.Active {
		state = ctx.T(i18n.HistoryActive)
	}
	if s.Duration > 0 {
		return mod.FormatDuration(s.Duration) + ", " + state
	}
	if s.Kind.Temporary() || s.Kind == mod.KindBan {
		return ctx.T(i18n.CommonPermanent) + ", " + state
	}
	return state
}
