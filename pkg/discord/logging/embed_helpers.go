package logging

import (
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/small-frappuccino/modcore/pkg/i18n"
	"github.com/small-frappuccino/modcore/pkg/moderation"
	"github.com/small-frappuccino/modcore/pkg/theme"
)

const embedFieldLimit = 1024

func formatUserLabel(username, userID string) string {
	userID = strings.TrimSpace(userID)
	username = strings.TrimSpace(username)
	if userID == "" {
		if username != "" {
			return "**" + username + "**"
		}
		return "Unknown"
	}
	if username == "" {
		return "<@" + userID + "> (`" + userID + "`)"
	}
	return fmt.Sprintf("**%s** (<@%s>, `%s`)", username, userID, userID)
}

func formatUserRef(userID string) string {
	return formatUserLabel("", userID)
}

func formatChannelLabel(channelID string) string {
	channelID = strings.TrimSpace(channelID)
	if channelID == "" {
		return "Unknown"
	}
	return "<#" + channelID + ">, `" + channelID + "`"
}

// formatTargetLabel renders the target column of a sanction, which is a
// user id, a channel_<id> marker or the bulk marker.
func formatTargetLabel(targetID string) string {
	switch {
	case targetID == moderation.BulkTarget:
		return "`" + targetID + "`"
	case strings.HasPrefix(targetID, "channel_"):
		return formatChannelLabel(strings.TrimPrefix(targetID, "channel_"))
	default:
		return formatUserRef(targetID)
	}
}

func formatActorLabel(actorID string) string {
	if actorID == "" || actorID == moderation.SystemActorID {
		return "`modcore`"
	}
	return formatUserRef(actorID)
}

func truncateField(s string) string {
	r := []rune(s)
	if len(r) <= embedFieldLimit {
		return s
	}
	return string(r[:embedFieldLimit-1]) + "…"
}

func sanctionEmbed(s moderation.Sanction, lang string) *discordgo.MessageEmbed {
	reason := s.Reason
	if strings.TrimSpace(reason) == "" {
		reason = i18n.Must(lang, i18n.CommonNoReason)
	}
	fields := []*discordgo.MessageEmbedField{
		{Name: i18n.Must(lang, i18n.LogTarget), Value: formatTargetLabel(s.TargetID), Inline: true},
		{Name: i18n.Must(lang, i18n.LogActor), Value: formatActorLabel(s.ActorID), Inline: true},
		{Name: i18n.Must(lang, i18n.LogReason), Value: truncateField(reason)},
	}
	if s.ExpiresAt != nil {
		fields = append(fields,
			&discordgo.MessageEmbedField{Name: i18n.Must(lang, i18n.LogDuration), Value: moderation.FormatDuration(s.Duration), Inline: true},
			&discordgo.MessageEmbedField{Name: i18n.Must(lang, i18n.LogExpires), Value: fmt.Sprintf("<t:%d:R>", s.ExpiresAt.Unix()), Inline: true},
		)
	} else if s.Kind.Temporary() {
		fields = append(fields, &discordgo.MessageEmbedField{Name: i18n.Must(lang, i18n.LogDuration), Value: i18n.Must(lang, i18n.CommonPermanent), Inline: true})
	}

	embed := &discordgo.MessageEmbed{
		Title:     i18n.Must(lang, i18n.LogTitle, string(s.Kind)),
		Color:     theme.ForAction(string(s.Kind)),
		Fields:    fields,
		Timestamp: s.CreatedAt.Format(time.RFC3339),
	}
	if s.ID > 0 {
		embed.Footer = &discordgo.MessageEmbedFooter{Text: fmt.Sprintf("#%d", s.ID)}
	}
	return embed
}

// reversionEmbed describes how a scheduled expiry ended. Pending and
// cancelled reversions produce nil: the first has not happened and the
// second is already logged by the manual inverse action.
func reversionEmbed(r moderation.Reversion, lang string) *discordgo.MessageEmbed {
	var (
		desc  string
		color int
	)
	switch r.State {
	case moderation.ReversionReverted:
		desc, color = i18n.Must(lang, i18n.LogReverted, string(r.Kind)), theme.Of(theme.Revert)
	case moderation.ReversionSuperseded:
		desc, color = i18n.Must(lang, i18n.LogSuperseded, string(r.Kind)), theme.Of(theme.Muted)
	case moderation.ReversionFailed:
		desc, color = i18n.Must(lang, i18n.LogReversionFailed, string(r.Kind), truncateField(r.LastError)), theme.Of(theme.Error)
	default:
		return nil
	}

	ts := r.UpdatedAt
	if ts.IsZero() {
		ts = r.DueAt
	}
	return &discordgo.MessageEmbed{
		Title:       i18n.Must(lang, i18n.LogTitle, string(r.Kind)),
		Description: desc,
		Color:       color,
		Fields: []*discordgo.MessageEmbedField{
			{Name: i18n.Must(lang, i18n.LogTarget), Value: formatTargetLabel(r.TargetID), Inline: true},
		},
		Footer:    &discordgo.MessageEmbedFooter{Text: fmt.Sprintf("#%d", r.SanctionID)},
		Timestamp: ts.Format(time.RFC3339),
	}
}
