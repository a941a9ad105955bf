package moderation

import (
	"strconv"
	"strings"
	"time"
)

// Supported guild languages.
const (
	LanguageFrench  = "fr"
	LanguageEnglish = "en"
	LanguageSpanish = "es"
)

// SupportedLanguages lists the languages a guild may select.
var SupportedLanguages = []string{LanguageFrench, LanguageEnglish, LanguageSpanish}

// NormalizeLanguage lowercases lang and reports whether it is supported.
func NormalizeLanguage(lang string) (string, bool) {
	lang = strings.ToLower(strings.TrimSpace(lang))
	for _, l := range SupportedLanguages {
		if l == lang {
			return l, true
		}
	}
	return lang, false
}

// DefaultWelcomeMessage supports {user}, {server} and {count}.
const DefaultWelcomeMessage = "Welcome {user} to {server}! You are member #{count}."

// GuildPolicy is the per-guild moderation configuration.
type GuildPolicy struct {
	GuildID          string
	Language         string
	LogChannelID     string
	MuteRoleID       string
	AdminRoles       []string
	ModeratorRoles   []string
	WelcomeEnabled   bool
	WelcomeChannelID string
	WelcomeMessage   string
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// DefaultPolicy is what a guild gets before anyone configures it.
func DefaultPolicy(guildID, language string) GuildPolicy {
	if l, ok := NormalizeLanguage(language); ok {
		language = l
	} else {
		language = LanguageEnglish
	}
	return GuildPolicy{
		GuildID:        guildID,
		Language:       language,
		WelcomeMessage: DefaultWelcomeMessage,
	}
}

// PolicyUpdate is a partial update; nil fields are left unchanged.
type PolicyUpdate struct {
	Language         *string
	LogChannelID     *string
	MuteRoleID       *string
	AdminRoles       *[]string
	ModeratorRoles   *[]string
	WelcomeEnabled   *bool
	WelcomeChannelID *string
	WelcomeMessage   *string
}

// Empty reports whether the update changes nothing.
func (u PolicyUpdate) Empty() bool {
	return u.Language == nil && u.LogChannelID == nil && u.MuteRoleID == nil &&
		u.AdminRoles == nil && u.ModeratorRoles == nil && u.WelcomeEnabled == nil &&
		u.WelcomeChannelID == nil && u.WelcomeMessage == nil
}

// Apply returns p with the non-nil fields of u applied.
func (p GuildPolicy) Apply(u PolicyUpdate) GuildPolicy {
	if u.Language != nil {
		p.Language = *u.Language
	}
	if u.LogChannelID != nil {
		p.LogChannelID = *u.LogChannelID
	}
	if u.MuteRoleID != nil {
		p.MuteRoleID = *u.MuteRoleID
	}
	if u.AdminRoles != nil {
		p.AdminRoles = append([]string(nil), (*u.AdminRoles)...)
	}
	if u.ModeratorRoles != nil {
		p.ModeratorRoles = append([]string(nil), (*u.ModeratorRoles)...)
	}
	if u.WelcomeEnabled != nil {
		p.WelcomeEnabled = *u.WelcomeEnabled
	}
	if u.WelcomeChannelID != nil {
		p.WelcomeChannelID = *u.WelcomeChannelID
	}
	if u.WelcomeMessage != nil {
		p.WelcomeMessage = *u.WelcomeMessage
	}
	return p
}

// RenderWelcome substitutes the welcome placeholders.
func RenderWelcome(template, userMention, serverName string, memberCount int) string {
	if template == "" {
		template = DefaultWelcomeMessage
	}
	r := strings.NewReplacer(
		"{user}", userMention,
		"{server}", serverName,
		"{count}", strconv.Itoa(memberCount),
	)
	return r.Replace(template)
}
