package core

import (
	"context"
	"errors"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/small-frappuccino/modcore/pkg/cooldown"
	"github.com/small-frappuccino/modcore/pkg/i18n"
	"github.com/small-frappuccino/modcore/pkg/moderation"
)

// handlerTimeout bounds a single command handler.
const handlerTimeout = 30 * time.Second

// CommandRegistry maps names to top-level commands.
type CommandRegistry struct {
	commands map[string]Command
}

func NewCommandRegistry() *CommandRegistry {
	return &CommandRegistry{commands: make(map[string]Command)}
}

// Register adds cmd, replacing any command with the same name.
func (r *CommandRegistry) Register(cmd Command) {
	r.commands[cmd.Name()] = cmd
}

func (r *CommandRegistry) Lookup(name string) (Command, bool) {
	cmd, ok := r.commands[name]
	return cmd, ok
}

// Commands returns the registered commands sorted by name.
func (r *CommandRegistry) Commands() []Command {
	out := make([]Command, 0, len(r.commands))
	for _, cmd := range r.commands {
		out = append(out, cmd)
	}
	slices.SortFunc(out, func(a, b Command) int { return strings.Compare(a.Name(), b.Name()) })
	return out
}

func (r *CommandRegistry) Len() int { return len(r.commands) }

// CommandRouter turns slash command interactions into handler calls. Before
// a handler runs, the router checks the guild requirement, the moderator
// gate and the per-user cooldown, answering ephemerally when one fails.
type CommandRouter struct {
	deps      *Deps
	registry  *CommandRegistry
	builder   *ContextBuilder
	responder *ResponseManager
	checker   *PermissionChecker
}

func NewCommandRouter(session *discordgo.Session, deps *Deps) *CommandRouter {
	if deps == nil {
		deps = &Deps{}
	}
	checker := NewPermissionChecker(session, deps.Platform)
	return &CommandRouter{
		deps:      deps,
		registry:  NewCommandRegistry(),
		builder:   NewContextBuilder(session, deps, checker),
		responder: NewResponseManager(session),
		checker:   checker,
	}
}

func (cr *CommandRouter) RegisterCommand(cmd Command) {
	cr.registry.Register(cmd)
}

func (cr *CommandRouter) Registry() *CommandRegistry { return cr.registry }

func (cr *CommandRouter) PermissionChecker() *PermissionChecker { return cr.checker }

// HandleInteraction is the discordgo handler for interaction events. Only
// application commands are handled.
func (cr *CommandRouter) HandleInteraction(_ *discordgo.Session, i *discordgo.InteractionCreate) {
	if i == nil || i.Interaction == nil || i.Type != discordgo.InteractionApplicationCommand {
		return
	}
	cr.handleSlashCommand(i)
}

func (cr *CommandRouter) handleSlashCommand(i *discordgo.InteractionCreate) {
	parent, cancel := context.WithTimeout(context.Background(), handlerTimeout)
	defer cancel()

	ctx := cr.builder.BuildContext(parent, i)
	ctx.Logger.Debug("Processing slash command")

	cmd, ok := cr.registry.Lookup(i.ApplicationCommandData().Name)
	if !ok {
		ctx.Logger.Error("Command not found")
		cr.deny(ctx, "Command not found")
		return
	}
	if denial := cr.admit(ctx, cmd); denial != "" {
		cr.deny(ctx, denial)
		return
	}

	ctx.Logger.Info("Executing command")
	if err := cmd.Handle(ctx); err != nil {
		ctx.Logger.Error("Command execution failed", "error", err)
		cr.respondError(ctx, err)
	}
}

// admit returns the localized reason cmd may not run, or "".
func (cr *CommandRouter) admit(ctx *Context, cmd Command) string {
	switch {
	case cmd.RequiresGuild() && ctx.GuildID == "":
		ctx.Logger.Warn("Command used outside of guild")
		return ctx.T(i18n.CommonGuildOnly)
	case cmd.RequiresPermissions() && !cr.checker.HasPermission(ctx, moderation.PrivilegeModerator):
		ctx.Logger.Warn("User without permission tried to use command")
		return ctx.T(i18n.DenyNotPrivileged)
	}
	if wait, limited := cr.cooldown(ctx, cmd); limited {
		return ctx.T(i18n.CommonCooldown, formatWait(wait))
	}
	return ""
}

// cooldown reserves the user's slot for cmd. Limiter failures let the
// command through.
func (cr *CommandRouter) cooldown(ctx *Context, cmd Command) (time.Duration, bool) {
	if cr.deps.Cooldown == nil || ctx.UserID == "" {
		return 0, false
	}
	ttl := cr.deps.CooldownTTL
	if p, ok := cmd.(CooldownProvider); ok {
		ttl = p.Cooldown()
	}
	if ttl <= 0 {
		return 0, false
	}
	ok, wait, err := cr.deps.Cooldown.Allow(ctx.Context(), cooldown.Key(ctx.UserID, cmd.Name()), ttl)
	if err != nil {
		ctx.Logger.Warn("Cooldown check failed", "error", err)
		return 0, false
	}
	return wait, !ok
}

func formatWait(d time.Duration) string {
	return max(d, time.Second).Round(time.Second).String()
}

func (cr *CommandRouter) deny(ctx *Context, message string) {
	logSendFailure(ctx.Logger, cr.responder.Ephemeral(ctx.Interaction, message))
}

func (cr *CommandRouter) respondError(ctx *Context, err error) {
	var cmdErr *CommandError
	var valErr *ValidationError
	switch {
	case errors.As(err, &cmdErr) && !cmdErr.Ephemeral:
		logSendFailure(ctx.Logger, cr.responder.Error(ctx.Interaction, cmdErr.Message))
	case errors.As(err, &cmdErr):
		cr.deny(ctx, cmdErr.Message)
	case errors.As(err, &valErr):
		cr.deny(ctx, valErr.Message)
	default:
		cr.deny(ctx, ctx.T(i18n.DenyInternal))
	}
}

func logSendFailure(logger *slog.Logger, err error) {
	if err != nil {
		logger.Warn("Failed to send error response", "error", err)
	}
}
