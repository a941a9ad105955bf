package logging

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/small-frappuccino/modcore/pkg/discord/perf"
	"github.com/small-frappuccino/modcore/pkg/i18n"
	"github.com/small-frappuccino/modcore/pkg/log"
	"github.com/small-frappuccino/modcore/pkg/moderation"
)

const (
	heartbeatInterval = time.Minute
	eventTimeout      = 10 * time.Second
)

// EventStore is the persistence the gateway handlers touch.
type EventStore interface {
	EnsureGuildPolicy(ctx context.Context, guildID, lang string) (moderation.GuildPolicy, bool, error)
	GuildPolicy(ctx context.Context, guildID string) (moderation.GuildPolicy, error)
	SetBotSince(ctx context.Context, guildID string, t time.Time) error
	SetGuildOwnerID(ctx context.Context, guildID, ownerID string) error
	SetLastEvent(ctx context.Context, t time.Time) error
	SetHeartbeat(ctx context.Context, t time.Time) error
}

// MemberLeaver clears per-member state when someone leaves a guild.
type MemberLeaver interface {
	MemberLeft(ctx context.Context, guildID, userID string) (int, error)
}

// MemberEventService handles guild and member gateway events: guild
// policies on join, welcome messages and warning cleanup on leave.
type MemberEventService struct {
	session         *discordgo.Session
	store           EventStore
	leaver          MemberLeaver
	defaultLanguage string
	perf            *perf.Gateway

	mu        sync.Mutex
	isRunning bool
	removers  []func()

	heartbeatTicker *time.Ticker
	heartbeatStop   chan struct{}
}

// NewMemberEventService creates a new instance of the member events service.
// defaultLanguage is used for guilds that report no locale.
func NewMemberEventService(session *discordgo.Session, store EventStore, leaver MemberLeaver, defaultLanguage string) *MemberEventService {
	if defaultLanguage == "" {
		defaultLanguage = i18n.Fallback
	}
	return &MemberEventService{
		session:         session,
		store:           store,
		leaver:          leaver,
		defaultLanguage: defaultLanguage,
	}
}

// SetGatewayTimer makes the handlers report their duration to g.
func (mes *MemberEventService) SetGatewayTimer(g *perf.Gateway) {
	mes.perf = g
}

// Start registers the event handlers and the heartbeat.
func (mes *MemberEventService) Start(ctx context.Context) error {
	mes.mu.Lock()
	defer mes.mu.Unlock()
	if mes.isRunning {
		return fmt.Errorf("member event service is already running")
	}
	mes.isRunning = true

	mes.removers = append(mes.removers,
		mes.session.AddHandler(mes.handleGuildCreate),
		mes.session.AddHandler(mes.handleGuildMemberAdd),
		mes.session.AddHandler(mes.handleGuildMemberRemove),
	)
	mes.startHeartbeat(ctx)
	mes.ensureGuildsListed()

	log.ApplicationLogger().Info("Member event service started")
	return nil
}

// Stop removes the handlers and stops the heartbeat.
func (mes *MemberEventService) Stop(context.Context) error {
	mes.mu.Lock()
	defer mes.mu.Unlock()
	if !mes.isRunning {
		return fmt.Errorf("member event service is not running")
	}
	mes.isRunning = false

	for _, remove := range mes.removers {
		remove()
	}
	mes.removers = nil
	mes.stopHeartbeat()

	log.ApplicationLogger().Info("Member event service stopped")
	return nil
}

// IsRunning returns whether the service is running
func (mes *MemberEventService) IsRunning() bool {
	mes.mu.Lock()
	defer mes.mu.Unlock()
	return mes.isRunning
}

func (mes *MemberEventService) handleGuildCreate(s *discordgo.Session, e *discordgo.GuildCreate) {
	if e == nil || e.Guild == nil || e.ID == "" || e.Unavailable {
		return
	}
	defer mes.perf.StartGatewayEvent("guild_create", slog.String("guildID", e.ID))()
	ctx, cancel := context.WithTimeout(context.Background(), eventTimeout)
	defer cancel()
	mes.markEvent(ctx)

	lang := mes.defaultLanguage
	if e.PreferredLocale != "" {
		lang = i18n.Detect(e.PreferredLocale)
	}
	policy, created, err := mes.store.EnsureGuildPolicy(ctx, e.ID, lang)
	if err != nil {
		log.ErrorLoggerRaw().Error("Failed to ensure guild policy", "guildID", e.ID, "err", err)
	} else if created {
		log.DiscordLogger().Info("Guild policy created", "guildID", e.ID, "guild", e.Name, "language", policy.Language, "locale", e.PreferredLocale)
	}

	if e.OwnerID != "" {
		if err := mes.store.SetGuildOwnerID(ctx, e.ID, e.OwnerID); err != nil {
			log.ErrorLoggerRaw().Error("Failed to cache guild owner", "guildID", e.ID, "err", err)
		}
	}
	if !e.JoinedAt.IsZero() {
		if err := mes.store.SetBotSince(ctx, e.ID, e.JoinedAt); err != nil {
			log.ErrorLoggerRaw().Error("Failed to record bot join time", "guildID", e.ID, "err", err)
		}
	}
}

// handleGuildMemberAdd sends the welcome message when the guild enabled it.
func (mes *MemberEventService) handleGuildMemberAdd(s *discordgo.Session, m *discordgo.GuildMemberAdd) {
	if m == nil || m.Member == nil || m.User == nil || m.User.Bot {
		return
	}
	defer mes.perf.StartGatewayEvent("guild_member_add", slog.String("guildID", m.GuildID))()
	ctx, cancel := context.WithTimeout(context.Background(), eventTimeout)
	defer cancel()
	mes.markEvent(ctx)

	policy, err := mes.store.GuildPolicy(ctx, m.GuildID)
	if err != nil {
		log.ErrorLoggerRaw().Error("Failed to load guild policy for welcome", "guildID", m.GuildID, "err", err)
		return
	}
	if !policy.WelcomeEnabled || policy.WelcomeChannelID == "" {
		return
	}

	serverName, memberCount := m.GuildID, 0
	if g, err := s.State.Guild(m.GuildID); err == nil && g != nil {
		serverName, memberCount = g.Name, g.MemberCount
	}

	content := moderation.RenderWelcome(policy.WelcomeMessage, m.User.Mention(), serverName, memberCount)
	_, err = s.ChannelMessageSendComplex(policy.WelcomeChannelID, &discordgo.MessageSend{
		Content: content,
		AllowedMentions: &discordgo.MessageAllowedMentions{
			Users: []string{m.User.ID},
		},
	}, discordgo.WithContext(ctx))
	if err != nil {
		log.ErrorLoggerRaw().Error("Failed to send welcome message", "guildID", m.GuildID, "channelID", policy.WelcomeChannelID, "userID", m.User.ID, "err", err)
		return
	}
	log.DiscordLogger().Info("Welcome message sent", "guildID", m.GuildID, "userID", m.User.ID)
}

// handleGuildMemberRemove deactivates the departed member's warnings.
func (mes *MemberEventService) handleGuildMemberRemove(s *discordgo.Session, m *discordgo.GuildMemberRemove) {
	if m == nil || m.Member == nil || m.User == nil || m.User.Bot {
		return
	}
	defer mes.perf.StartGatewayEvent("guild_member_remove", slog.String("guildID", m.GuildID))()
	ctx, cancel := context.WithTimeout(context.Background(), eventTimeout)
	defer cancel()
	mes.markEvent(ctx)

	if mes.leaver == nil {
		return
	}
	n, err := mes.leaver.MemberLeft(ctx, m.GuildID, m.User.ID)
	if err != nil {
		log.ErrorLoggerRaw().Error("Failed to clear warnings of departed member", "guildID", m.GuildID, "userID", m.User.ID, "err", err)
		return
	}
	if n > 0 {
		log.DiscordLogger().Info("Cleared warnings of departed member", "guildID", m.GuildID, "userID", m.User.ID, "count", n)
	}
}

// ensureGuildsListed replays guilds that reached the state cache before the
// handlers were registered.
func (mes *MemberEventService) ensureGuildsListed() {
	if mes.session == nil || mes.session.State == nil {
		return
	}
	mes.session.State.RLock()
	guilds := make([]*discordgo.Guild, 0, len(mes.session.State.Guilds))
	for _, g := range mes.session.State.Guilds {
		if g != nil && !g.Unavailable {
			cp := *g
			guilds = append(guilds, &cp)
		}
	}
	mes.session.State.RUnlock()

	for _, g := range guilds {
		mes.handleGuildCreate(mes.session, &discordgo.GuildCreate{Guild: g})
	}
}

func (mes *MemberEventService) markEvent(ctx context.Context) {
	if err := mes.store.SetLastEvent(ctx, time.Now()); err != nil {
		log.DatabaseLogger().Warn("Failed to record last event time", "err", err)
	}
}

// startHeartbeat persists liveness once a minute; assumes mes.mu is held.
func (mes *MemberEventService) startHeartbeat(ctx context.Context) {
	if mes.heartbeatTicker != nil {
		return
	}
	if err := mes.store.SetHeartbeat(ctx, time.Now()); err != nil {
		log.DatabaseLogger().Warn("Failed to record heartbeat", "err", err)
	}
	ticker := time.NewTicker(heartbeatInterval)
	stop := make(chan struct{})
	mes.heartbeatTicker, mes.heartbeatStop = ticker, stop
	go func() {
		for {
			select {
			case <-ticker.C:
				if err := mes.store.SetHeartbeat(context.Background(), time.Now()); err != nil {
					log.DatabaseLogger().Warn("Failed to record heartbeat", "err", err)
				}
			case <-stop:
				return
			}
		}
	}()
}

func (mes *MemberEventService) stopHeartbeat() {
	if mes.heartbeatTicker != nil {
		mes.heartbeatTicker.Stop()
		mes.heartbeatTicker = nil
	}
	if mes.heartbeatStop != nil {
		close(mes.heartbeatStop)
		mes.heartbeatStop = nil
	}
}
