package session

import (
	"errors"
	"fmt"

	"github.com/bwmarrin/discordgo"
	"github.com/small-frappuccino/modcore/pkg/errutil"
	"github.com/small-frappuccino/modcore/pkg/log"
)

// Intents needed by the moderation bot: guild and member state for the
// hierarchy checks, moderation events for bans, and messages for /clear.
const Intents = discordgo.IntentsGuilds |
	discordgo.IntentsGuildMembers |
	discordgo.IntentGuildModeration |
	discordgo.IntentsGuildMessages

var ErrEmptyToken = errors.New("discord bot token is empty")

// connector holds the discordgo calls so tests can replace them.
type connector struct {
	create func(token string) (*discordgo.Session, error)
	open   func(*discordgo.Session) error
	close  func(*discordgo.Session) error
}

var gateway = connector{
	create: func(token string) (*discordgo.Session, error) { return discordgo.New("Bot " + token) },
	open:   (*discordgo.Session).Open,
	close:  (*discordgo.Session).Close,
}

// NewDiscordSession creates a session with the bot's intents and state
// tracking, then opens the gateway connection.
func NewDiscordSession(token string) (*discordgo.Session, error) {
	return gateway.connect(token)
}

func (c connector) connect(token string) (*discordgo.Session, error) {
	if token == "" {
		log.Error().Errorf("Discord bot token is empty. Please set the token before starting the bot.")
		return nil, ErrEmptyToken
	}

	var s *discordgo.Session
	err := errutil.HandleDiscordError("create_session", func() (err error) {
		s, err = c.create(token)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Discord session: %w", err)
	}

	s.Identify.Intents = Intents
	if s.State != nil {
		s.State.TrackRoles = true
		s.State.TrackChannels = true
		s.State.TrackMembers = true
	}

	log.DiscordLogger().Info("Connecting to Discord...")
	if err := errutil.HandleDiscordError("connect", func() error { return c.open(s) }); err != nil {
		_ = c.close(s)
		return nil, fmt.Errorf("failed to connect to Discord: %w", err)
	}
	log.DiscordLogger().Info("Connected to Discord")
	return s, nil
}
