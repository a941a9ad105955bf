package perf

import (
	"log/slog"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/small-frappuccino/modcore/pkg/log"
	"github.com/small-frappuccino/modcore/pkg/util"
)

const (
	envGatewayPerfThresholdMs     = "MODCORE_GATEWAY_PERF_THRESHOLD_MS"
	defaultGatewayPerfThresholdMs = int64(200)
)

// ThresholdFromEnv reads MODCORE_GATEWAY_PERF_THRESHOLD_MS. Zero or a
// negative value disables slow-handler logging.
func ThresholdFromEnv() time.Duration {
	ms := util.EnvInt64(envGatewayPerfThresholdMs, defaultGatewayPerfThresholdMs)
	if ms <= 0 {
		return 0
	}
	return time.Duration(ms) * time.Millisecond
}

// Gateway times gateway event handlers. A nil *Gateway records nothing.
type Gateway struct {
	threshold time.Duration
	durations *prometheus.HistogramVec
	slow      *prometheus.CounterVec
}

// NewGateway registers the handler histogram on reg.
func NewGateway(reg prometheus.Registerer, threshold time.Duration) *Gateway {
	f := promauto.With(reg)
	return &Gateway{
		threshold: threshold,
		durations: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "modcore_gateway_handler_seconds",
			Help:    "Time spent in gateway event handlers",
			Buckets: []float64{.005, .025, .1, .25, 1, 5},
		}, []string{"event"}),
		slow: f.NewCounterVec(prometheus.CounterOpts{
			Name: "modcore_gateway_slow_handlers_total",
			Help: "Gateway handlers that exceeded the slow threshold",
		}, []string{"event"}),
	}
}

// StartGatewayEvent tracks how long a gateway handler takes. The returned
// func records the duration and logs only when the handler was slow.
func (g *Gateway) StartGatewayEvent(event string, attrs ...slog.Attr) func() {
	if g == nil {
		return func() {}
	}
	name := strings.TrimSpace(event)
	if name == "" {
		name = "unknown"
	}

	start := time.Now()
	return func() {
		duration := time.Since(start)
		g.durations.WithLabelValues(name).Observe(duration.Seconds())
		if g.threshold <= 0 || duration < g.threshold {
			return
		}
		g.slow.WithLabelValues(name).Inc()

		args := make([]any, 0, len(attrs)+3)
		args = append(args,
			slog.String("event", name),
			slog.Duration("duration", duration),
			slog.Int64("duration_ms", duration.Milliseconds()),
		)
		for _, attr := range attrs {
			args = append(args, attr)
		}
		log.DiscordLogger().Warn("slow gateway event handler", args...)
	}
}
