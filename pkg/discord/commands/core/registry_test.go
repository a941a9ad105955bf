package core

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/small-frappuccino/modcore/pkg/cooldown"
	"github.com/small-frappuccino/modcore/pkg/moderation"
)

// testCommand doubles as a SubCommand.
type testCommand struct {
	name                string
	requiresGuild       bool
	requiresPermissions bool
	handler             func(*Context) error
}

func (tc testCommand) Name() string                                   { return tc.name }
func (tc testCommand) Description() string                            { return tc.name }
func (tc testCommand) Options() []*discordgo.ApplicationCommandOption { return nil }
func (tc testCommand) RequiresGuild() bool                            { return tc.requiresGuild }
func (tc testCommand) RequiresPermissions() bool                      { return tc.requiresPermissions }
func (tc testCommand) Handle(ctx *Context) error {
	if tc.handler == nil {
		return nil
	}
	return tc.handler(ctx)
}

// mustNotRun fails the test if the command handler is reached.
func mustNotRun(t *testing.T) func(*Context) error {
	return func(*Context) error {
		t.Errorf("handler should not run")
		return nil
	}
}

// stubPlatform only answers Principal; other methods are not used by the router.
type stubPlatform struct {
	moderation.Platform
	principals map[string]moderation.Principal
}

func (p stubPlatform) Principal(_ context.Context, _, userID string) (moderation.Principal, error) {
	if pr, ok := p.principals[userID]; ok {
		return pr, nil
	}
	return moderation.Principal{ID: userID}, nil
}

type stubStore struct {
	moderation.Store
	policy moderation.GuildPolicy
}

func (s stubStore) GuildPolicy(_ context.Context, guildID string) (moderation.GuildPolicy, error) {
	p := s.policy
	p.GuildID = guildID
	return p, nil
}

// callbacks collects the interaction responses posted to the fake API.
type callbacks struct {
	mu  sync.Mutex
	got []discordgo.InteractionResponse
}

func (c *callbacks) all() []discordgo.InteractionResponse {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]discordgo.InteractionResponse(nil), c.got...)
}

// only returns the single response, failing when there is not exactly one.
func (c *callbacks) only(t *testing.T) discordgo.InteractionResponse {
	t.Helper()
	got := c.all()
	if len(got) != 1 {
		t.Fatalf("expected 1 response, got %d", len(got))
	}
	return got[0]
}

// newTestSession points discordgo at a local server that records interaction
// callbacks and answers everything else with 200.
func newTestSession(t *testing.T) (*discordgo.Session, *callbacks) {
	t.Helper()
	rec := &callbacks{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasSuffix(r.URL.Path, "/callback") {
			var resp discordgo.InteractionResponse
			if json.NewDecoder(r.Body).Decode(&resp) == nil {
				rec.mu.Lock()
				rec.got = append(rec.got, resp)
				rec.mu.Unlock()
			}
		}
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(srv.Close)

	api, webhooks, guilds := discordgo.EndpointAPI, discordgo.EndpointWebhooks, discordgo.EndpointGuilds
	discordgo.EndpointAPI = srv.URL + "/"
	discordgo.EndpointWebhooks = srv.URL + "/webhooks/"
	discordgo.EndpointGuilds = srv.URL + "/guilds/"
	t.Cleanup(func() {
		discordgo.EndpointAPI, discordgo.EndpointWebhooks, discordgo.EndpointGuilds = api, webhooks, guilds
	})

	s, err := discordgo.New("Bot test-token")
	if err != nil {
		t.Fatalf("discordgo.New: %v", err)
	}
	return s, rec
}

func testDeps(lang string) *Deps {
	return &Deps{
		Store:           stubStore{policy: moderation.DefaultPolicy("", lang)},
		Platform:        stubPlatform{},
		DefaultLanguage: "en",
	}
}

func buildInteraction(command, guildID, userID string) *discordgo.InteractionCreate {
	return &discordgo.InteractionCreate{
		Interaction: &discordgo.Interaction{
			ID:      "interaction-" + command,
			AppID:   "app",
			Token:   "token",
			Type:    discordgo.InteractionApplicationCommand,
			GuildID: guildID,
			Member:  &discordgo.Member{User: &discordgo.User{ID: userID}},
			Data:    discordgo.ApplicationCommandInteractionData{ID: "cmd-" + command, Name: command},
		},
	}
}

func isEphemeral(resp discordgo.InteractionResponse) bool {
	return resp.Data != nil && resp.Data.Flags&discordgo.MessageFlagsEphemeral != 0
}

func TestCommandRegistryRegisterLookup(t *testing.T) {
	registry := NewCommandRegistry()
	registry.Register(testCommand{name: "ping"})
	if got, ok := registry.Lookup("ping"); !ok || got.Name() != "ping" {
		t.Fatalf("expected to find ping, got ok=%v", ok)
	}

	registry.Register(testCommand{name: "ping", requiresGuild: true})
	if got, _ := registry.Lookup("ping"); !got.RequiresGuild() {
		t.Fatal("expected re-registration to replace the command")
	}

	registry.Register(testCommand{name: "ban"})
	cmds := registry.Commands()
	if registry.Len() != 2 || cmds[0].Name() != "ban" || cmds[1].Name() != "ping" {
		t.Fatalf("expected commands sorted by name, got %d entries", registry.Len())
	}
}

func TestHandleInteractionIgnoresAutocomplete(t *testing.T) {
	session, rec := newTestSession(t)
	router := NewCommandRouter(session, testDeps("en"))
	router.RegisterCommand(testCommand{name: "ping", handler: mustNotRun(t)})

	i := buildInteraction("ping", "guild", "user")
	i.Type = discordgo.InteractionApplicationCommandAutocomplete
	router.HandleInteraction(session, i)

	if got := rec.all(); len(got) != 0 {
		t.Fatalf("expected no response, got %d", len(got))
	}
}

func TestHandleSlashCommandDenials(t *testing.T) {
	tests := []struct {
		name    string
		lang    string
		cmd     testCommand
		invoke  string
		guildID string
		want    []string
	}{
		{
			name:    "unknown command",
			lang:    "en",
			invoke:  "missing",
			guildID: "guild",
			want:    []string{"Command not found"},
		},
		{
			name:   "guild only",
			lang:   "en",
			cmd:    testCommand{name: "guild", requiresGuild: true},
			invoke: "guild",
			want:   []string{"only be used in a server"},
		},
		{
			name:    "not a moderator, localized",
			lang:    "fr",
			cmd:     testCommand{name: "secure", requiresPermissions: true},
			invoke:  "secure",
			guildID: "guild",
			want:    []string{"permission", "Vous"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			session, rec := newTestSession(t)
			router := NewCommandRouter(session, testDeps(tt.lang))
			if tt.cmd.name != "" {
				tt.cmd.handler = mustNotRun(t)
				router.RegisterCommand(tt.cmd)
			}

			router.handleSlashCommand(buildInteraction(tt.invoke, tt.guildID, "user"))

			resp := rec.only(t)
			for _, w := range tt.want {
				if !strings.Contains(resp.Data.Content, w) {
					t.Fatalf("response %q does not contain %q", resp.Data.Content, w)
				}
			}
			if !isEphemeral(resp) {
				t.Fatal("denials must be ephemeral")
			}
		})
	}
}

func TestHandleSlashCommandModeratorAllowed(t *testing.T) {
	session, _ := newTestSession(t)
	deps := testDeps("en")
	deps.Platform = stubPlatform{principals: map[string]moderation.Principal{
		"mod": {ID: "mod", RoleNames: []string{"Moderator"}},
	}}
	router := NewCommandRouter(session, deps)

	ran := false
	router.RegisterCommand(testCommand{name: "secure", requiresPermissions: true, handler: func(ctx *Context) error {
		ran = true
		if ctx.Policy.GuildID != "guild" || ctx.Language != "en" {
			t.Fatalf("unexpected context policy %+v lang %q", ctx.Policy, ctx.Language)
		}
		return nil
	}})

	router.handleSlashCommand(buildInteraction("secure", "guild", "mod"))
	if !ran {
		t.Fatalf("expected handler to run for a moderator")
	}
}

func TestHandleSlashCommandCooldown(t *testing.T) {
	session, rec := newTestSession(t)
	deps := testDeps("en")
	deps.Cooldown = cooldown.NewMemory()
	deps.CooldownTTL = time.Minute
	router := NewCommandRouter(session, deps)

	calls := 0
	router.RegisterCommand(testCommand{name: "ping", handler: func(*Context) error {
		calls++
		return nil
	}})

	router.handleSlashCommand(buildInteraction("ping", "guild", "user"))
	router.handleSlashCommand(buildInteraction("ping", "guild", "user"))
	router.handleSlashCommand(buildInteraction("ping", "guild", "other"))

	if calls != 2 {
		t.Fatalf("expected 2 handler calls, got %d", calls)
	}
	resp := rec.only(t)
	if !strings.Contains(resp.Data.Content, "Please wait") {
		t.Fatalf("unexpected cooldown content: %q", resp.Data.Content)
	}
}

func TestHandleSlashCommandCommandErrorMapping(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		expectFlag bool
		expectText string
	}{
		{name: "ephemeral", err: NewCommandError("boom", true), expectFlag: true, expectText: "boom"},
		{name: "public", err: NewCommandError("boom", false), expectFlag: false, expectText: "boom"},
		{name: "validation", err: NewValidationError("user", "bad user"), expectFlag: true, expectText: "bad user"},
		{name: "internal", err: context.DeadlineExceeded, expectFlag: true, expectText: "internal error"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			session, rec := newTestSession(t)
			router := NewCommandRouter(session, testDeps("en"))

			router.RegisterCommand(testCommand{name: "cmd", handler: func(*Context) error {
				return tt.err
			}})

			router.handleSlashCommand(buildInteraction("cmd", "guild", "user"))

			resp := rec.only(t)
			gotFlag := isEphemeral(resp)
			if gotFlag != tt.expectFlag {
				t.Fatalf("ephemeral flag mismatch: got %v want %v", gotFlag, tt.expectFlag)
			}
			if !strings.Contains(resp.Data.Content, tt.expectText) {
				t.Fatalf("unexpected content: %q", resp.Data.Content)
			}
		})
	}
}

func TestGroupCommandDispatch(t *testing.T) {
	checker := NewPermissionChecker(nil, stubPlatform{})
	group := NewGroupCommand("group", "", checker)

	handled := false
	group.AddSubCommand(testCommand{name: "inner"})
	group.AddSubCommand(testCommand{name: "runner", handler: func(*Context) error {
		handled = true
		return nil
	}})

	if opts := group.Options(); len(opts) != 2 || opts[0].Name != "inner" || opts[1].Name != "runner" {
		t.Fatalf("expected options in registration order, got %+v", opts)
	}

	interaction := buildInteraction("group", "guild", "user")
	interaction.Interaction.Data = discordgo.ApplicationCommandInteractionData{
		Name: "group",
		Options: []*discordgo.ApplicationCommandInteractionDataOption{
			{Name: "runner", Type: discordgo.ApplicationCommandOptionSubCommand},
		},
	}

	session, _ := discordgo.New("Bot test-group")
	_ = session.State.GuildAdd(&discordgo.Guild{ID: "guild", OwnerID: "user"})
	ctx := NewContextBuilder(session, testDeps("en"), checker).BuildContext(context.Background(), interaction)
	if !ctx.IsOwner {
		t.Fatalf("expected owner to be resolved from state")
	}
	if err := group.Handle(ctx); err != nil {
		t.Fatalf("group handle returned error: %v", err)
	}
	if !handled {
		t.Fatalf("expected subcommand handler to run")
	}
}

func TestGroupCommandSubcommandPermission(t *testing.T) {
	checker := NewPermissionChecker(nil, stubPlatform{})
	group := NewGroupCommand("group", "", checker)
	group.AddSubCommand(testCommand{name: "secure", requiresPermissions: true, handler: mustNotRun(t)})

	interaction := buildInteraction("group", "guild", "user")
	interaction.Interaction.Data = discordgo.ApplicationCommandInteractionData{
		Name:    "group",
		Options: []*discordgo.ApplicationCommandInteractionDataOption{{Name: "secure", Type: discordgo.ApplicationCommandOptionSubCommand}},
	}
	ctx := NewContextBuilder(nil, testDeps("en"), nil).BuildContext(context.Background(), interaction)

	err := group.Handle(ctx)
	cmdErr, ok := err.(*CommandError)
	if !ok || !cmdErr.Ephemeral {
		t.Fatalf("expected ephemeral command error, got %v", err)
	}
}

func TestOptionExtractor(t *testing.T) {
	ex := NewOptionExtractor([]*discordgo.ApplicationCommandInteractionDataOption{
		{Name: "reason", Type: discordgo.ApplicationCommandOptionString, Value: "  spam  "},
		{Name: "count", Type: discordgo.ApplicationCommandOptionInteger, Value: float64(12)},
		{Name: "enabled", Type: discordgo.ApplicationCommandOptionBoolean, Value: false},
		{Name: "user", Type: discordgo.ApplicationCommandOptionUser, Value: "123"},
	})

	if got := ex.String("reason"); got != "spam" {
		t.Fatalf("String = %q", got)
	}
	if got := ex.Int("count"); got != 12 {
		t.Fatalf("Int = %d", got)
	}
	if got := ex.OptionalBool("enabled"); got == nil || *got {
		t.Fatalf("OptionalBool = %v", got)
	}
	if got := ex.OptionalBool("missing"); got != nil {
		t.Fatalf("expected nil for missing bool")
	}
	if got := ex.ID("user"); got != "123" {
		t.Fatalf("ID = %q", got)
	}
	if _, err := ex.StringRequired("missing"); err == nil {
		t.Fatalf("expected validation error")
	}
	// Wrong-typed lookups do not panic.
	if got := ex.Int("reason"); got != 0 {
		t.Fatalf("Int on string = %d", got)
	}
}
