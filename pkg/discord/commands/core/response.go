package core

import (
	"github.com/bwmarrin/discordgo"
)

type tone int

const (
	toneSuccess tone = iota
	toneError
	toneWarning
	toneInfo
)

var tonePrefix = map[tone]string{
	toneSuccess: "✅ ",
	toneError:   "❌ ",
	toneWarning: "⚠️ ",
	toneInfo:    "ℹ️ ",
}

// ResponseManager answers interactions with short prefixed text or a
// prepared embed.
type ResponseManager struct {
	session   *discordgo.Session
	ephemeral bool
}

func NewResponseManager(session *discordgo.Session) *ResponseManager {
	return &ResponseManager{session: session}
}

func (rm *ResponseManager) Success(i *discordgo.InteractionCreate, message string) error {
	return rm.text(i, toneSuccess, message)
}

func (rm *ResponseManager) Error(i *discordgo.InteractionCreate, message string) error {
	return rm.text(i, toneError, message)
}

func (rm *ResponseManager) Warning(i *discordgo.InteractionCreate, message string) error {
	return rm.text(i, toneWarning, message)
}

func (rm *ResponseManager) Info(i *discordgo.InteractionCreate, message string) error {
	return rm.text(i, toneInfo, message)
}

// Ephemeral sends message as an error only the invoker sees.
func (rm *ResponseManager) Ephemeral(i *discordgo.InteractionCreate, message string) error {
	hidden := *rm
	hidden.ephemeral = true
	return hidden.Error(i, message)
}

func (rm *ResponseManager) Embed(i *discordgo.InteractionCreate, embed *discordgo.MessageEmbed) error {
	return rm.respond(i, discordgo.InteractionResponseChannelMessageWithSource, &discordgo.InteractionResponseData{
		Embeds: []*discordgo.MessageEmbed{embed},
	})
}

func (rm *ResponseManager) text(i *discordgo.InteractionCreate, t tone, message string) error {
	return rm.respond(i, discordgo.InteractionResponseChannelMessageWithSource, &discordgo.InteractionResponseData{
		Content: tonePrefix[t] + message,
	})
}

func (rm *ResponseManager) respond(i *discordgo.InteractionCreate, typ discordgo.InteractionResponseType, data *discordgo.InteractionResponseData) error {
	if rm.ephemeral {
		data.Flags |= discordgo.MessageFlagsEphemeral
	}
	return rm.session.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{Type: typ, Data: data})
}

// ResponseBuilder is a chainable way to get a configured ResponseManager.
type ResponseBuilder struct {
	rm ResponseManager
}

func NewResponseBuilder(session *discordgo.Session) *ResponseBuilder {
	return &ResponseBuilder{rm: ResponseManager{session: session}}
}

func (rb *ResponseBuilder) Ephemeral() *ResponseBuilder {
	rb.rm.ephemeral = true
	return rb
}

func (rb *ResponseBuilder) Build() *ResponseManager {
	rm := rb.rm
	return &rm
}

func (rb *ResponseBuilder) Success(i *discordgo.InteractionCreate, message string) error {
	return rb.Build().Success(i, message)
}

func (rb *ResponseBuilder) Error(i *discordgo.InteractionCreate, message string) error {
	return rb.Build().Error(i, message)
}

func (rb *ResponseBuilder) Warning(i *discordgo.InteractionCreate, message string) error {
	return rb.Build().Warning(i, message)
}

func (rb *ResponseBuilder) Info(i *discordgo.InteractionCreate, message string) error {
	return rb.Build().Info(i, message)
}
