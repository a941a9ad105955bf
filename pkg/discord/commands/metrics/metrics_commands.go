package metrics

import (
	"context"
	"fmt"
	"runtime"
	"sort"
	"strings"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"
	"github.com/small-frappuccino/modcore/pkg/discord/commands/core"
	"github.com/small-frappuccino/modcore/pkg/i18n"
	"github.com/small-frappuccino/modcore/pkg/moderation"
	"github.com/small-frappuccino/modcore/pkg/storage"
	"github.com/small-frappuccino/modcore/pkg/theme"
)

const sampleTimeout = 2 * time.Second

// StatsSource reports journal row counts.
type StatsSource interface {
	Stats(ctx context.Context) (storage.Stats, error)
}

// HostStats is a snapshot of the machine the bot runs on.
type HostStats struct {
	CPUPercent  float64
	MemUsed     uint64
	MemTotal    uint64
	MemPercent  float64
	ProcessHeap uint64
}

// Options configures /botinfo. Zero values disable the matching field.
type Options struct {
	StartedAt time.Time
	Stats     StatsSource
	Gatherer  prometheus.Gatherer
	// Host overrides the gopsutil sampler.
	Host func(ctx context.Context) (HostStats, error)
}

// RegisterMetricsCommands registers /botinfo.
func RegisterMetricsCommands(router *core.CommandRouter, opts Options) {
	if opts.Host == nil {
		opts.Host = sampleHost
	}
	if opts.StartedAt.IsZero() {
		opts.StartedAt = time.Now()
	}
	router.RegisterCommand(&botInfoCommand{opts: opts})
}

func sampleHost(ctx context.Context) (HostStats, error) {
	var hs HostStats
	percents, err := cpu.PercentWithContext(ctx, 0, false)
	if err != nil {
		return hs, fmt.Errorf("sample cpu: %w", err)
	}
	if len(percents) > 0 {
		hs.CPUPercent = percents[0]
	}
	vm, err := mem.VirtualMemoryWithContext(ctx)
	if err != nil {
		return hs, fmt.Errorf("sample memory: %w", err)
	}
	hs.MemUsed, hs.MemTotal, hs.MemPercent = vm.Used, vm.Total, vm.UsedPercent

	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)
	hs.ProcessHeap = ms.HeapAlloc
	return hs, nil
}

type botInfoCommand struct {
	opts Options
}

func (c *botInfoCommand) Name() string { return "botinfo" }
func (c *botInfoCommand) Description() string {
	return "Show bot uptime, host load and moderation counters"
}
func (c *botInfoCommand) Options() []*discordgo.ApplicationCommandOption {
	return nil
}
func (c *botInfoCommand) RequiresGuild() bool       { return false }
func (c *botInfoCommand) RequiresPermissions() bool { return false }

// Cooldown keeps host sampling cheap under spam.
func (c *botInfoCommand) Cooldown() time.Duration { return 10 * time.Second }

func (c *botInfoCommand) Handle(ctx *core.Context) error {
	sampleCtx, cancel := context.WithTimeout(ctx.Context(), sampleTimeout)
	defer cancel()

	fields := []*discordgo.MessageEmbedField{
		{Name: ctx.T(i18n.BotInfoUptime), Value: moderation.FormatDuration(time.Since(c.opts.StartedAt).Truncate(time.Second)), Inline: true},
		{Name: ctx.T(i18n.BotInfoGuilds), Value: fmt.Sprintf("%d", guildCount(ctx.Session)), Inline: true},
		{Name: ctx.T(i18n.BotInfoGoroutines), Value: fmt.Sprintf("%d", runtime.NumGoroutine()), Inline: true},
	}

	if hs, err := c.opts.Host(sampleCtx); err != nil {
		ctx.Logger.Warn("Failed to sample host stats", "error", err)
	} else {
		fields = append(fields,
			&discordgo.MessageEmbedField{Name: ctx.T(i18n.BotInfoCPU), Value: fmt.Sprintf("%.1f%%", hs.CPUPercent), Inline: true},
			&discordgo.MessageEmbedField{
				Name:   ctx.T(i18n.BotInfoMemory),
				Value:  fmt.Sprintf("%.1f%% (%s / %s), heap %s", hs.MemPercent, formatBytes(hs.MemUsed), formatBytes(hs.MemTotal), formatBytes(hs.ProcessHeap)),
				Inline: true,
			},
		)
	}

	var sanctions, reversions []string
	if c.opts.Stats != nil {
		if st, err := c.opts.Stats.Stats(sampleCtx); err != nil {
			ctx.Logger.Warn("Failed to read journal stats", "error", err)
		} else {
			sanctions = append(sanctions, fmt.Sprintf("%d total, %d active, %d active warnings", st.Sanctions, st.ActiveSanctions, st.ActiveWarnings))
			reversions = append(reversions, fmt.Sprintf("%d pending", st.PendingReversions))
		}
	}
	if c.opts.Gatherer != nil {
		if counts, armed, err := actionCounters(c.opts.Gatherer); err != nil {
			ctx.Logger.Warn("Failed to gather metrics", "error", err)
		} else {
			if len(counts) > 0 {
				sanctions = append(sanctions, formatCounts(counts))
			}
			reversions = append(reversions, fmt.Sprintf("%d armed", armed))
		}
	}
	if len(sanctions) > 0 {
		fields = append(fields, &discordgo.MessageEmbedField{Name: ctx.T(i18n.BotInfoSanctions), Value: strings.Join(sanctions, "\n")})
	}
	if len(reversions) > 0 {
		fields = append(fields, &discordgo.MessageEmbedField{Name: ctx.T(i18n.BotInfoReversions), Value: strings.Join(reversions, ", ")})
	}

	embed := &discordgo.MessageEmbed{
		Title:     ctx.T(i18n.BotInfoTitle),
		Color:     theme.Of(theme.Info),
		Fields:    fields,
		Footer:    &discordgo.MessageEmbedFooter{Text: runtime.Version()},
		Timestamp: time.Now().Format(time.RFC3339),
	}
	return core.NewResponseManager(ctx.Session).Embed(ctx.Interaction, embed)
}

func guildCount(s *discordgo.Session) int {
	if s == nil || s.State == nil {
		return 0
	}
	s.State.RLock()
	defer s.State.RUnlock()
	return len(s.State.Guilds)
}

// actionCounters sums approved requests per kind from modcore_actions_total
// and reads the armed reversion gauge.
func actionCounters(g prometheus.Gatherer) (map[string]float64, float64, error) {
	families, err := g.Gather()
	if err != nil {
		return nil, 0, err
	}
	counts := make(map[string]float64)
	var armed float64
	for _, mf := range families {
		switch mf.GetName() {
		case "modcore_actions_total":
			for _, m := range mf.GetMetric() {
				if label(m, "outcome") == "approved" || label(m, "outcome") == "approved_with_error" {
					counts[label(m, "kind")] += m.GetCounter().GetValue()
				}
			}
		case "modcore_reversions_armed":
			for _, m := range mf.GetMetric() {
				armed += m.GetGauge().GetValue()
			}
		}
	}
	return counts, armed, nil
}

func label(m *dto.Metric, name string) string {
	for _, lp := range m.GetLabel() {
		if lp.GetName() == name {
			return lp.GetValue()
		}
	}
	return ""
}

func formatCounts(counts map[string]float64) string {
	kinds := make([]string, 0, len(counts))
	for k := range counts {
		kinds = append(kinds, k)
	}
	sort.Strings(kinds)
	parts := make([]string, 0, len(kinds))
	for _, k := range kinds {
		parts = append(parts, fmt.Sprintf("%s %d", k, int64(counts[k])))
	}
	return strings.Join(parts, ", ")
}

func formatBytes(bytes uint64) string {
	const unit = 1024
	if bytes < unit {
		return fmt.Sprintf("%d B", bytes)
	}
	div, exp := uint64(unit), 0
	for n := bytes / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(bytes)/float64(div), "KMGTPE"[exp])
}
