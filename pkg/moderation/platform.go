package moderation

import (
	"context"
	"time"
)

// Platform is the chat platform as seen by the lifecycle. Implementations
// return *PlatformError for rejected mutations.
type Platform interface {
	// SystemPrincipal resolves the bot's own member in guildID.
	SystemPrincipal(ctx context.Context, guildID string) (Principal, error)
	// Principal resolves a guild member.
	Principal(ctx context.Context, guildID, userID string) (Principal, error)

	Ban(ctx context.Context, guildID, userID, reason string, deleteMessageDays int) error
	Unban(ctx context.Context, guildID, userID, reason string) error
	Kick(ctx context.Context, guildID, userID, reason string) error

	// EnsureMuteRole returns the guild's mute role, creating it when roleID is
	// empty or no longer exists.
	EnsureMuteRole(ctx context.Context, guildID, roleID string) (string, error)
	// Mute applies roleID and, when until is non-nil, a platform timeout ending at until.
	Mute(ctx context.Context, guildID, userID, roleID string, until *time.Time, reason string) error
	Unmute(ctx context.Context, guildID, userID, roleID, reason string) error
	// IsMuted is false for users who left the guild.
	IsMuted(ctx context.Context, guildID, userID, roleID string) (bool, error)

	// LockChannel denies posting to @everyone and returns the overwrite it replaced.
	LockChannel(ctx context.Context, guildID, channelID, reason string) (ChannelOverwrite, error)
	// UnlockChannel restores original, or clears the lock bits when original is nil.
	UnlockChannel(ctx context.Context, guildID, channelID string, original *ChannelOverwrite, reason string) error
	IsLocked(ctx context.Context, guildID, channelID string) (bool, error)

	// PurgeMessages deletes up to count recent messages, only from authorID when set.
	PurgeMessages(ctx context.Context, channelID string, count int, authorID string) (PurgeResult, error)
}

// Notifier receives lifecycle events for the moderation log. Implementations
// must not block for long.
type Notifier interface {
	SanctionApplied(ctx context.Context, s Sanction, policy GuildPolicy)
	ReversionResolved(ctx context.Context, r Reversion, policy GuildPolicy)
}

type nopNotifier struct{}

func (nopNotifier) SanctionApplied(context.Context, Sanction, GuildPolicy)    {}
func (nopNotifier) ReversionResolved(context.Context, Reversion, GuildPolicy) {}
