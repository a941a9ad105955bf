package core

import (
	"context"
	"log/slog"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/small-frappuccino/modcore/pkg/cooldown"
	"github.com/small-frappuccino/modcore/pkg/i18n"
	"github.com/small-frappuccino/modcore/pkg/moderation"
)

// Command is a top-level slash command.
type Command interface {
	Name() string
	Description() string
	Options() []*discordgo.ApplicationCommandOption
	Handle(ctx *Context) error
	RequiresGuild() bool
	// RequiresPermissions gates the command behind the moderator tier.
	RequiresPermissions() bool
}

// SubCommand is a command nested under a GroupCommand.
type SubCommand interface {
	Name() string
	Description() string
	Options() []*discordgo.ApplicationCommandOption
	Handle(ctx *Context) error
	RequiresGuild() bool
	RequiresPermissions() bool
}

// CooldownProvider overrides the router's default cooldown for a command.
// A zero duration disables the cooldown.
type CooldownProvider interface {
	Cooldown() time.Duration
}

// Deps are the collaborators shared by every command.
type Deps struct {
	Moderation *moderation.Service
	Store      moderation.Store
	Platform   moderation.Platform
	Cooldown   cooldown.Limiter

	// CooldownTTL applies to commands that do not implement CooldownProvider.
	CooldownTTL     time.Duration
	DefaultLanguage string
	// HistoryLimit is the default page size of /history.
	HistoryLimit int
}

// Context carries everything a handler needs for one interaction.
type Context struct {
	Session     *discordgo.Session
	Interaction *discordgo.InteractionCreate
	Logger      *slog.Logger
	Deps        *Deps
	GuildID     string
	ChannelID   string
	UserID      string
	IsOwner     bool
	Policy      moderation.GuildPolicy
	Language    string

	ctx context.Context
}

// Context returns the request context.
func (c *Context) Context() context.Context {
	if c.ctx == nil {
		return context.Background()
	}
	return c.ctx
}

// T translates key in the guild language.
func (c *Context) T(key i18n.Key, args ...any) string {
	return i18n.Must(c.Language, key, args...)
}

// Actor resolves the invoking member.
func (c *Context) Actor() (moderation.Principal, error) {
	if c.Deps == nil || c.Deps.Platform == nil {
		return moderation.Principal{ID: c.UserID, Owner: c.IsOwner}, nil
	}
	return c.Deps.Platform.Principal(c.Context(), c.GuildID, c.UserID)
}

// CommandError is a failure whose message is shown to the user as is.
type CommandError struct {
	Message   string
	Ephemeral bool
	Code      string
}

func (e *CommandError) Error() string {
	return e.Message
}

func NewCommandError(message string, ephemeral bool) *CommandError {
	return &CommandError{
		Message:   message,
		Ephemeral: ephemeral,
	}
}

// ValidationError reports a bad option value.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

func NewValidationError(field, message string) *ValidationError {
	return &ValidationError{
		Field:   field,
		Message: message,
	}
}
