package logging

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/bwmarrin/discordgo"
	"github.com/small-frappuccino/modcore/pkg/i18n"
	"github.com/small-frappuccino/modcore/pkg/log"
	"github.com/small-frappuccino/modcore/pkg/moderation"
	"github.com/small-frappuccino/modcore/pkg/task"
)

const (
	// TaskTypeModerationLog posts one embed to a guild's moderation log channel.
	TaskTypeModerationLog = "moderation.log"
	// TaskTypeTargetNotice tells a member by DM that their mute expired.
	TaskTypeTargetNotice = "moderation.notice"
)

// Discord's "Cannot send messages to this user".
const errCodeCannotDM = 50007

// Dispatcher is the subset of *task.TaskRouter the notifier uses.
type Dispatcher interface {
	RegisterHandler(taskType string, handler task.TaskHandler)
	Dispatch(ctx context.Context, t task.Task) error
}

type logEntry struct {
	GuildID   string
	ChannelID string
	Embed     *discordgo.MessageEmbed
}

type targetNotice struct {
	GuildID  string
	UserID   string
	Language string
}

// ModerationNotifier sends moderation log embeds through the task router so
// the lifecycle never waits on Discord. Delivery failures are logged only.
type ModerationNotifier struct {
	session *discordgo.Session
	router  Dispatcher
}

var _ moderation.Notifier = (*ModerationNotifier)(nil)

// NewModerationNotifier registers the log task handler on router.
func NewModerationNotifier(session *discordgo.Session, router Dispatcher) *ModerationNotifier {
	n := &ModerationNotifier{session: session, router: router}
	router.RegisterHandler(TaskTypeModerationLog, n.handleLogTask)
	router.RegisterHandler(TaskTypeTargetNotice, n.handleNoticeTask)
	return n
}

// SanctionApplied logs a newly recorded sanction.
func (n *ModerationNotifier) SanctionApplied(ctx context.Context, s moderation.Sanction, policy moderation.GuildPolicy) {
	n.enqueue(ctx, policy, sanctionEmbed(s, policy.Language))
}

// ReversionResolved logs how an armed expiry ended. A member whose mute was
// lifted automatically is also told by DM.
func (n *ModerationNotifier) ReversionResolved(ctx context.Context, r moderation.Reversion, policy moderation.GuildPolicy) {
	if embed := reversionEmbed(r, policy.Language); embed != nil {
		n.enqueue(ctx, policy, embed)
	}
	if r.State == moderation.ReversionReverted && r.Kind == moderation.KindMute && isUserTarget(r.TargetID) {
		err := n.router.Dispatch(ctx, task.Task{
			Type:    TaskTypeTargetNotice,
			Payload: targetNotice{GuildID: r.GuildID, UserID: r.TargetID, Language: policy.Language},
			Options: task.TaskOptions{GroupKey: "notice:" + r.GuildID},
		})
		if err != nil {
			log.ErrorLoggerRaw().Error("Failed to enqueue mute expiry notice", "guildID", r.GuildID, "userID", r.TargetID, "err", err)
		}
	}
}

func isUserTarget(targetID string) bool {
	return targetID != "" && targetID != moderation.BulkTarget && !strings.HasPrefix(targetID, moderation.ChannelTarget(""))
}

func (n *ModerationNotifier) enqueue(ctx context.Context, policy moderation.GuildPolicy, embed *discordgo.MessageEmbed) {
	channelID := strings.TrimSpace(policy.LogChannelID)
	if channelID == "" || embed == nil {
		return
	}
	err := n.router.Dispatch(ctx, task.Task{
		Type:    TaskTypeModerationLog,
		Payload: logEntry{GuildID: policy.GuildID, ChannelID: channelID, Embed: embed},
		Options: task.TaskOptions{GroupKey: "modlog:" + policy.GuildID},
	})
	if err != nil {
		log.ErrorLoggerRaw().Error("Failed to enqueue moderation log", "guildID", policy.GuildID, "channelID", channelID, "err", err)
	}
}

func (n *ModerationNotifier) handleLogTask(ctx context.Context, payload any) error {
	entry, ok := payload.(logEntry)
	if !ok {
		return fmt.Errorf("moderation log: unexpected payload %T", payload)
	}
	channelID, ok := ResolveModerationLogChannel(n.session, entry.GuildID, entry.ChannelID)
	if !ok {
		// A misconfigured channel does not heal by retrying.
		return nil
	}
	if _, err := n.session.ChannelMessageSendEmbed(channelID, entry.Embed, discordgo.WithContext(ctx)); err != nil {
		return fmt.Errorf("send moderation log: %w", err)
	}
	return nil
}

func (n *ModerationNotifier) handleNoticeTask(ctx context.Context, payload any) error {
	notice, ok := payload.(targetNotice)
	if !ok {
		return fmt.Errorf("target notice: unexpected payload %T", payload)
	}
	guildName := notice.GuildID
	if n.session.State != nil {
		if g, err := n.session.State.Guild(notice.GuildID); err == nil && g.Name != "" {
			guildName = g.Name
		}
	}

	dm, err := n.session.UserChannelCreate(notice.UserID, discordgo.WithContext(ctx))
	if err == nil {
		_, err = n.session.ChannelMessageSend(dm.ID, i18n.Must(notice.Language, i18n.NoticeMuteExpired, guildName), discordgo.WithContext(ctx))
	}
	if err != nil {
		var rest *discordgo.RESTError
		if errors.As(err, &rest) && rest.Message != nil && rest.Message.Code == errCodeCannotDM {
			log.DiscordLogger().Info("Member does not accept DMs; mute expiry notice skipped", "guildID", notice.GuildID, "userID", notice.UserID)
			return nil
		}
		return fmt.Errorf("send mute expiry notice: %w", err)
	}
	return nil
}

// ResolveModerationLogChannel validates the configured moderation log channel.
func ResolveModerationLogChannel(session *discordgo.Session, guildID, channelID string) (string, bool) {
	channelID = strings.TrimSpace(channelID)
	if channelID == "" {
		return "", false
	}

	botID := ""
	if session != nil && session.State != nil && session.State.User != nil {
		botID = session.State.User.ID
	}

	if err := validateModerationLogChannel(session, guildID, channelID, botID); err != nil {
		log.ErrorLoggerRaw().Error("Moderation log channel validation failed", "guildID", guildID, "channelID", channelID, "err", err)
		return "", false
	}
	return channelID, true
}

func validateModerationLogChannel(session *discordgo.Session, guildID, channelID, botID string) error {
	if session == nil {
		return fmt.Errorf("session is nil")
	}
	if guildID == "" || channelID == "" {
		return fmt.Errorf("missing guildID or channelID")
	}

	var ch *discordgo.Channel
	if session.State != nil {
		if cached, _ := session.State.Channel(channelID); cached != nil {
			ch = cached
		}
	}
	if ch == nil {
		c, err := session.Channel(channelID)
		if err != nil {
			return fmt.Errorf("channel lookup failed: %w", err)
		}
		ch = c
	}

	if ch == nil {
		return fmt.Errorf("channel not found")
	}
	if ch.GuildID != "" && ch.GuildID != guildID {
		return fmt.Errorf("channel guild mismatch")
	}
	if ch.Type != discordgo.ChannelTypeGuildText && ch.Type != discordgo.ChannelTypeGuildNews {
		return fmt.Errorf("channel is not a guild text channel")
	}

	if botID == "" {
		return fmt.Errorf("bot identity not available")
	}

	perms, err := session.UserChannelPermissions(botID, channelID)
	if err != nil {
		return fmt.Errorf("permission check failed: %w", err)
	}
	if perms&discordgo.PermissionAdministrator != 0 {
		return nil
	}
	required := int64(discordgo.PermissionViewChannel | discordgo.PermissionSendMessages | discordgo.PermissionEmbedLinks)
	if perms&required != required {
		return fmt.Errorf("missing permissions (need view/send/embed)")
	}
	return nil
}
