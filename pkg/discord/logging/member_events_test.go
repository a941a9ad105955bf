package logging

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/small-frappuccino/modcore/pkg/discord/perf"
	"github.com/small-frappuccino/modcore/pkg/moderation"
)

type fakeEventStore struct {
	mu        sync.Mutex
	policies  map[string]moderation.GuildPolicy
	ensured   []string // guildID:lang
	owners    map[string]string
	botSince  map[string]time.Time
	events    int
	beats     int
	policyErr error
}

func newFakeEventStore() *fakeEventStore {
	return &fakeEventStore{
		policies: make(map[string]moderation.GuildPolicy),
		owners:   make(map[string]string),
		botSince: make(map[string]time.Time),
	}
}

func (f *fakeEventStore) EnsureGuildPolicy(_ context.Context, guildID, lang string) (moderation.GuildPolicy, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ensured = append(f.ensured, guildID+":"+lang)
	if p, ok := f.policies[guildID]; ok {
		return p, false, nil
	}
	p := moderation.DefaultPolicy(guildID, lang)
	f.policies[guildID] = p
	return p, true, nil
}

func (f *fakeEventStore) GuildPolicy(_ context.Context, guildID string) (moderation.GuildPolicy, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.policyErr != nil {
		return moderation.GuildPolicy{}, f.policyErr
	}
	if p, ok := f.policies[guildID]; ok {
		return p, nil
	}
	return moderation.DefaultPolicy(guildID, "en"), nil
}

func (f *fakeEventStore) SetBotSince(_ context.Context, guildID string, t time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.botSince[guildID] = t
	return nil
}

func (f *fakeEventStore) SetGuildOwnerID(_ context.Context, guildID, ownerID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.owners[guildID] = ownerID
	return nil
}

func (f *fakeEventStore) SetLastEvent(context.Context, time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events++
	return nil
}

func (f *fakeEventStore) SetHeartbeat(context.Context, time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.beats++
	return nil
}

type fakeLeaver struct {
	calls []string
	err   error
}

func (l *fakeLeaver) MemberLeft(_ context.Context, guildID, userID string) (int, error) {
	l.calls = append(l.calls, guildID+":"+userID)
	return 2, l.err
}

func TestGuildCreateSeedsPolicyFromLocale(t *testing.T) {
	t.Parallel()

	store := newFakeEventStore()
	mes := NewMemberEventService(&discordgo.Session{}, store, nil, "es")
	joined := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

	mes.handleGuildCreate(nil, &discordgo.GuildCreate{Guild: &discordgo.Guild{
		ID: "g1", Name: "Cafe", OwnerID: "owner", PreferredLocale: "fr", JoinedAt: joined,
	}})
	mes.handleGuildCreate(nil, &discordgo.GuildCreate{Guild: &discordgo.Guild{ID: "g2"}})
	mes.handleGuildCreate(nil, &discordgo.GuildCreate{Guild: &discordgo.Guild{ID: "g3", Unavailable: true}})

	if got := strings.Join(store.ensured, ","); got != "g1:fr,g2:es" {
		t.Fatalf("unexpected ensure calls %q", got)
	}
	if store.policies["g1"].Language != "fr" {
		t.Fatalf("expected french policy, got %+v", store.policies["g1"])
	}
	if store.owners["g1"] != "owner" {
		t.Fatalf("owner not cached: %+v", store.owners)
	}
	if !store.botSince["g1"].Equal(joined) {
		t.Fatalf("bot join time not recorded: %+v", store.botSince)
	}
	if _, ok := store.botSince["g2"]; ok {
		t.Fatal("zero join time should not be recorded")
	}
	if store.events != 2 {
		t.Fatalf("expected 2 marked events, got %d", store.events)
	}
}

func TestGuildMemberAddSendsWelcome(t *testing.T) {
	var (
		mu   sync.Mutex
		sent []discordgo.MessageSend
	)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost && strings.HasSuffix(r.URL.Path, "/channels/welcome/messages") {
			var body discordgo.MessageSend
			_ = json.NewDecoder(r.Body).Decode(&body)
			mu.Lock()
			sent = append(sent, body)
			mu.Unlock()
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"id":"m1","channel_id":"welcome"}`))
			return
		}
		w.WriteHeader(http.StatusNotFound)
	}))
	t.Cleanup(server.Close)
	oldChannels := discordgo.EndpointChannels
	discordgo.EndpointChannels = server.URL + "/channels/"
	t.Cleanup(func() { discordgo.EndpointChannels = oldChannels })

	session, err := discordgo.New("Bot test-token")
	if err != nil {
		t.Fatalf("discordgo.New: %v", err)
	}
	_ = session.State.GuildAdd(&discordgo.Guild{ID: "g1", Name: "Cafe", MemberCount: 12})

	store := newFakeEventStore()
	store.policies["g1"] = moderation.GuildPolicy{
		GuildID:          "g1",
		Language:         "en",
		WelcomeEnabled:   true,
		WelcomeChannelID: "welcome",
		WelcomeMessage:   "Hi {user}, welcome to {server} (#{count})",
	}
	store.policies["g2"] = moderation.GuildPolicy{GuildID: "g2", WelcomeEnabled: false, WelcomeChannelID: "welcome"}
	mes := NewMemberEventService(session, store, nil, "en")

	mes.handleGuildMemberAdd(session, &discordgo.GuildMemberAdd{Member: &discordgo.Member{GuildID: "g1", User: &discordgo.User{ID: "u1"}}})
	mes.handleGuildMemberAdd(session, &discordgo.GuildMemberAdd{Member: &discordgo.Member{GuildID: "g2", User: &discordgo.User{ID: "u2"}}})
	mes.handleGuildMemberAdd(session, &discordgo.GuildMemberAdd{Member: &discordgo.Member{GuildID: "g1", User: &discordgo.User{ID: "b1", Bot: true}}})

	mu.Lock()
	defer mu.Unlock()
	if len(sent) != 1 {
		t.Fatalf("expected exactly one welcome, got %d", len(sent))
	}
	if sent[0].Content != "Hi <@u1>, welcome to Cafe (#12)" {
		t.Fatalf("unexpected welcome %q", sent[0].Content)
	}
	if sent[0].AllowedMentions == nil || len(sent[0].AllowedMentions.Users) != 1 || sent[0].AllowedMentions.Users[0] != "u1" {
		t.Fatalf("welcome should only ping the new member: %+v", sent[0].AllowedMentions)
	}
}

func TestGuildMemberAddSkipsWhenPolicyFails(t *testing.T) {
	t.Parallel()

	store := newFakeEventStore()
	store.policyErr = errors.New("database is locked")
	mes := NewMemberEventService(&discordgo.Session{State: discordgo.NewState()}, store, nil, "en")
	mes.handleGuildMemberAdd(nil, &discordgo.GuildMemberAdd{Member: &discordgo.Member{GuildID: "g1", User: &discordgo.User{ID: "u1"}}})
	if store.events != 1 {
		t.Fatalf("event should still be marked, got %d", store.events)
	}
}

func TestGuildMemberRemoveClearsWarnings(t *testing.T) {
	t.Parallel()

	store := newFakeEventStore()
	leaver := &fakeLeaver{}
	mes := NewMemberEventService(&discordgo.Session{}, store, leaver, "en")
	reg := prometheus.NewRegistry()
	mes.SetGatewayTimer(perf.NewGateway(reg, 0))

	mes.handleGuildMemberRemove(nil, &discordgo.GuildMemberRemove{Member: &discordgo.Member{GuildID: "g1", User: &discordgo.User{ID: "u1"}}})
	mes.handleGuildMemberRemove(nil, &discordgo.GuildMemberRemove{Member: &discordgo.Member{GuildID: "g1", User: &discordgo.User{ID: "b1", Bot: true}}})

	if len(leaver.calls) != 1 || leaver.calls[0] != "g1:u1" {
		t.Fatalf("unexpected MemberLeft calls %v", leaver.calls)
	}

	leaver.err = errors.New("boom")
	mes.handleGuildMemberRemove(nil, &discordgo.GuildMemberRemove{Member: &discordgo.Member{GuildID: "g1", User: &discordgo.User{ID: "u2"}}})
	if len(leaver.calls) != 2 {
		t.Fatalf("expected second call despite earlier error, got %v", leaver.calls)
	}

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	if len(families) != 1 || families[0].GetName() != "modcore_gateway_handler_seconds" {
		t.Fatalf("expected handler timings, got %v", families)
	}
	if got := families[0].GetMetric()[0].GetHistogram().GetSampleCount(); got != 2 {
		t.Fatalf("expected 2 timed handlers, got %d", got)
	}
}

func TestMemberEventServiceLifecycle(t *testing.T) {
	t.Parallel()

	store := newFakeEventStore()
	session, err := discordgo.New("Bot test-token")
	if err != nil {
		t.Fatalf("discordgo.New: %v", err)
	}
	mes := NewMemberEventService(session, store, nil, "en")
	ctx := context.Background()

	if err := mes.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := mes.Start(ctx); err == nil {
		t.Fatal("expected second Start to fail")
	}
	if !mes.IsRunning() {
		t.Fatal("expected running")
	}
	store.mu.Lock()
	beats := store.beats
	store.mu.Unlock()
	if beats != 1 {
		t.Fatalf("expected an immediate heartbeat, got %d", beats)
	}
	if err := mes.Stop(ctx); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if err := mes.Stop(ctx); err == nil {
		t.Fatal("expected second Stop to fail")
	}
}
