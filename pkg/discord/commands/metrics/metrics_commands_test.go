package metrics

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/small-frappuccino/modcore/pkg/discord/commands/core"
	"github.com/small-frappuccino/modcore/pkg/moderation"
	"github.com/small-frappuccino/modcore/pkg/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeStats struct {
	st  storage.Stats
	err error
}

func (f fakeStats) Stats(context.Context) (storage.Stats, error) { return f.st, f.err }

func runBotInfo(t *testing.T, opts Options) *discordgo.MessageEmbed {
	t.Helper()
	var got discordgo.InteractionResponse
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasSuffix(r.URL.Path, "/callback") {
			_ = json.NewDecoder(r.Body).Decode(&got)
		}
		w.WriteHeader(http.StatusNoContent)
	}))
	t.Cleanup(server.Close)
	oldAPI := discordgo.EndpointAPI
	discordgo.EndpointAPI = server.URL + "/"
	t.Cleanup(func() { discordgo.EndpointAPI = oldAPI })

	session, err := discordgo.New("Bot test-token")
	require.NoError(t, err)
	session.State.Guilds = []*discordgo.Guild{{ID: "g1"}, {ID: "g2"}}

	router := core.NewCommandRouter(session, &core.Deps{DefaultLanguage: "en"})
	RegisterMetricsCommands(router, opts)
	router.HandleInteraction(session, &discordgo.InteractionCreate{
		Interaction: &discordgo.Interaction{
			ID:    "interaction",
			AppID: "app",
			Token: "token",
			Type:  discordgo.InteractionApplicationCommand,
			User:  &discordgo.User{ID: "user"},
			Data:  discordgo.ApplicationCommandInteractionData{ID: "cmd", Name: "botinfo"},
		},
	})

	require.NotNil(t, got.Data)
	require.Len(t, got.Data.Embeds, 1)
	return got.Data.Embeds[0]
}

func fieldValue(embed *discordgo.MessageEmbed, name string) (string, bool) {
	for _, f := range embed.Fields {
		if f.Name == name {
			return f.Value, true
		}
	}
	return "", false
}

func TestBotInfoReportsEverySource(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := moderation.NewMetrics(reg)
	m.Actions.WithLabelValues("ban", "approved").Add(2)
	m.Actions.WithLabelValues("ban", "denied").Add(5)
	m.Actions.WithLabelValues("mute", "approved_with_error").Inc()
	m.PendingReversions.Set(3)

	embed := runBotInfo(t, Options{
		StartedAt: time.Now().Add(-90 * time.Minute),
		Stats:     fakeStats{st: storage.Stats{Sanctions: 10, ActiveSanctions: 4, ActiveWarnings: 2, PendingReversions: 3}},
		Gatherer:  reg,
		Host: func(context.Context) (HostStats, error) {
			return HostStats{CPUPercent: 12.5, MemUsed: 2 << 30, MemTotal: 8 << 30, MemPercent: 25, ProcessHeap: 512 << 10}, nil
		},
	})

	assert.Equal(t, "Bot information", embed.Title)

	uptime, ok := fieldValue(embed, "Uptime")
	require.True(t, ok)
	assert.True(t, strings.HasPrefix(uptime, "1h 30m"), uptime)

	guilds, _ := fieldValue(embed, "Servers")
	assert.Equal(t, "2", guilds)

	cpu, _ := fieldValue(embed, "CPU")
	assert.Equal(t, "12.5%", cpu)

	memory, _ := fieldValue(embed, "Memory")
	assert.Contains(t, memory, "2.0 GB / 8.0 GB")
	assert.Contains(t, memory, "512.0 KB")

	sanctions, _ := fieldValue(embed, "Sanctions")
	assert.Contains(t, sanctions, "10 total, 4 active, 2 active warnings")
	assert.Contains(t, sanctions, "ban 2, mute 1")

	reversions, _ := fieldValue(embed, "Pending expiries")
	assert.Equal(t, "3 pending, 3 armed", reversions)
}

func TestBotInfoToleratesFailingSources(t *testing.T) {
	embed := runBotInfo(t, Options{
		Stats: fakeStats{err: errors.New("database is locked")},
		Host: func(context.Context) (HostStats, error) {
			return HostStats{}, errors.New("no procfs")
		},
	})

	_, hasCPU := fieldValue(embed, "CPU")
	_, hasSanctions := fieldValue(embed, "Sanctions")
	assert.False(t, hasCPU)
	assert.False(t, hasSanctions)
	_, hasUptime := fieldValue(embed, "Uptime")
	assert.True(t, hasUptime)
}

func TestFormatBytes(t *testing.T) {
	assert.Equal(t, "512 B", formatBytes(512))
	assert.Equal(t, "1.5 KB", formatBytes(1536))
	assert.Equal(t, "1.0 GB", formatBytes(1<<30))
}
