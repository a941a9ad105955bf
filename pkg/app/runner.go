package app

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/small-frappuccino/modcore/pkg/config"
	"github.com/small-frappuccino/modcore/pkg/cooldown"
	"github.com/small-frappuccino/modcore/pkg/discord/commands"
	"github.com/small-frappuccino/modcore/pkg/discord/commands/core"
	"github.com/small-frappuccino/modcore/pkg/discord/commands/metrics"
	"github.com/small-frappuccino/modcore/pkg/discord/logging"
	"github.com/small-frappuccino/modcore/pkg/discord/perf"
	"github.com/small-frappuccino/modcore/pkg/discord/platform"
	"github.com/small-frappuccino/modcore/pkg/discord/session"
	"github.com/small-frappuccino/modcore/pkg/errutil"
	"github.com/small-frappuccino/modcore/pkg/i18n"
	"github.com/small-frappuccino/modcore/pkg/log"
	"github.com/small-frappuccino/modcore/pkg/moderation"
	"github.com/small-frappuccino/modcore/pkg/service"
	"github.com/small-frappuccino/modcore/pkg/storage"
	"github.com/small-frappuccino/modcore/pkg/task"
	"github.com/small-frappuccino/modcore/pkg/theme"
	"github.com/small-frappuccino/modcore/pkg/util"
)

// Run bootstraps the bot and blocks until an interrupt.
// appName affects config/cache/log paths. The token is read from the
// environment variable named by discord.token_env; when empty, a fallback
// $HOME/.local/bin/.env file is loaded and the variable re-checked.
func Run(appName string) error {
	started := time.Now()
	util.SetAppName(appName)

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	// Logger first so subsequent steps can log meaningfully
	if err := log.SetupLogger(log.Options{
		Dir:        cfg.Log.Dir,
		Level:      log.ParseLevel(cfg.Log.Level),
		MaxSizeMB:  cfg.Log.MaxSizeMB,
		MaxBackups: cfg.Log.MaxBackups,
		MaxAgeDays: cfg.Log.MaxAgeDays,
	}); err != nil {
		return fmt.Errorf("configure logger: %w", err)
	}
	defer log.GlobalLogger.Sync()

	if err := errutil.InitializeGlobalErrorHandler(log.GlobalLogger); err != nil {
		return fmt.Errorf("initialize global error handler: %w", err)
	}
	if cfg.Source != "" {
		log.ApplicationLogger().Info("Configuration loaded", "file", cfg.Source)
	}

	if err := theme.SetCurrent(cfg.Bot.Theme); err != nil {
		log.ApplicationLogger().Warn("Unknown theme; using default", "theme", cfg.Bot.Theme, "err", err)
	}
	if err := i18n.Validate(); err != nil {
		return fmt.Errorf("validate translations: %w", err)
	}

	log.ApplicationLogger().Info(formatStartupMessage(appName, AppVersion()))

	token, loadErr := util.LoadEnvWithLocalBinFallback(cfg.Discord.TokenEnv)
	if loadErr != nil {
		log.ApplicationLogger().Warn(fmt.Sprintf("Warning: %v", loadErr))
	}
	if token == "" {
		return fmt.Errorf("%s not set in environment or .env file", cfg.Discord.TokenEnv)
	}

	store := storage.NewStore(cfg.Database.Path)
	store.SetDefaultLanguage(cfg.Moderation.DefaultLanguage)
	if err := store.Init(); err != nil {
		return fmt.Errorf("initialize SQLite store: %w", err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			log.ErrorLoggerRaw().Error("Failed to close store", "err", err)
		}
	}()
	if err := store.SetStartedAt(context.Background(), started); err != nil {
		log.DatabaseLogger().Warn("Failed to record start time", "err", err)
	}

	log.DiscordLogger().Info("Attempting to authenticate with Discord API...")
	discordSession, err := session.NewDiscordSession(token)
	if err != nil {
		return fmt.Errorf("create discord session: %w", err)
	}
	defer func() { _ = discordSession.Close() }()
	if discordSession.State == nil || discordSession.State.User == nil {
		return fmt.Errorf("discord session state not properly initialized")
	}
	util.SetBotName(discordSession.State.User.Username)
	log.DiscordLogger().Info("Authenticated", "user", discordSession.State.User.Username, "id", discordSession.State.User.ID)

	routerCfg := task.Defaults()
	routerCfg.Registerer = prometheus.DefaultRegisterer
	routerCfg.OnFinalFailure = func(t task.Task, attempts int, err error) {
		log.ErrorLoggerRaw().Error("Task failed permanently", "type", t.Type, "group", t.Options.GroupKey, "attempts", attempts, "err", err)
	}
	router := task.NewRouter(routerCfg)

	plat := platform.New(discordSession)
	modMetrics := moderation.NewMetrics(prometheus.DefaultRegisterer)
	notifier := logging.NewModerationNotifier(discordSession, router)
	scheduler := moderation.NewScheduler(store, plat, router, moderation.SchedulerOptions{
		Metrics:  modMetrics,
		Notifier: notifier,
	})
	modService := moderation.NewService(store, plat, scheduler, moderation.ServiceOptions{
		Metrics:    modMetrics,
		Notifier:   notifier,
		Limits:     limitsFromConfig(cfg.Moderation),
		Thresholds: thresholdsFromConfig(cfg.Moderation),
	})

	limiter, err := cooldown.New(cooldown.Options{
		Backend:   cfg.Cooldown.Backend,
		RedisAddr: cfg.Cooldown.RedisAddr,
		RedisDB:   cfg.Cooldown.RedisDB,
		Prefix:    appName + ":cooldown:",
	})
	if err != nil {
		return fmt.Errorf("create cooldown limiter: %w", err)
	}
	defer func() {
		if err := limiter.Close(); err != nil {
			log.ErrorLoggerRaw().Error("Failed to close cooldown limiter", "err", err)
		}
	}()

	events := logging.NewMemberEventService(discordSession, store, modService, cfg.Moderation.DefaultLanguage)
	events.SetGatewayTimer(perf.NewGateway(prometheus.DefaultRegisterer, perf.ThresholdFromEnv()))

	serviceManager := service.NewServiceManager()
	for _, svc := range []service.Service{
		service.NewServiceWrapper("tasks", service.TypeTasks, service.PriorityHigh, nil,
			nil,
			func(context.Context) error { router.Close(); return nil },
		),
		service.NewServiceWrapper("scheduler", service.TypeScheduler, service.PriorityNormal, []string{"tasks"},
			func(ctx context.Context) error {
				report, err := scheduler.Start(ctx, cfg.Scheduler.SweepInterval)
				if err != nil {
					return err
				}
				log.ApplicationLogger().Info("Pending reversions recovered", "armed", report.Armed, "dispatched", report.Dispatched, "lost", report.Lost)
				return nil
			},
			func(context.Context) error { scheduler.Stop(); return nil },
		),
		service.NewServiceWrapper("events", service.TypeEvents, service.PriorityLow, []string{"scheduler"},
			events.Start,
			events.Stop,
		),
	} {
		if err := serviceManager.Register(svc); err != nil {
			return fmt.Errorf("register %s service: %w", svc.Name(), err)
		}
	}

	if err := serviceManager.StartAll(); err != nil {
		return fmt.Errorf("start services: %w", err)
	}

	commandHandler := commands.NewCommandHandler(discordSession, &core.Deps{
		Moderation:      modService,
		Store:           store,
		Platform:        plat,
		Cooldown:        limiter,
		CooldownTTL:     cfg.Cooldown.Default,
		DefaultLanguage: cfg.Moderation.DefaultLanguage,
		HistoryLimit:    cfg.Moderation.HistoryLimit,
	}, metrics.Options{
		StartedAt: started,
		Stats:     store,
		Gatherer:  prometheus.DefaultGatherer,
	})
	if err := commandHandler.SetupCommands(); err != nil {
		_ = serviceManager.StopAll()
		return fmt.Errorf("configure slash commands: %w", err)
	}

	log.ApplicationLogger().Info(fmt.Sprintf("%s initialized in %s", appName, time.Since(started).Round(time.Millisecond)))
	log.ApplicationLogger().Info(fmt.Sprintf("%s running. Press Ctrl+C to stop...", appName))

	util.WaitForInterrupt(context.Background())
	log.ApplicationLogger().Info(fmt.Sprintf("Stopping %s...", appName))

	// Commands go first so no interaction starts work on a stopped scheduler.
	if err := commandHandler.Shutdown(); err != nil {
		log.ErrorLoggerRaw().Error("Command handler shutdown failed", "err", err)
	}
	if err := serviceManager.StopAll(); err != nil {
		log.ErrorLoggerRaw().Error(fmt.Sprintf("Some services failed to stop cleanly: %v", err))
	}
	return nil
}

func limitsFromConfig(c config.ModerationConfig) moderation.Limits {
	l := moderation.DefaultLimits()
	if c.MaxMute > 0 {
		l.MaxMute = c.MaxMute
		l.MaxLock = c.MaxMute
	}
	return l
}

func thresholdsFromConfig(c config.ModerationConfig) moderation.Thresholds {
	t := moderation.DefaultThresholds()
	if c.AutoMuteThreshold > 0 {
		t.Mute = c.AutoMuteThreshold
	}
	if c.AutoBanThreshold > 0 {
		t.Ban = c.AutoBanThreshold
	}
	if c.AutoMuteDuration > 0 {
		t.MuteDuration = c.AutoMuteDuration
	}
	return t
}

func formatStartupMessage(appName, appVersion string) string {
	appName = strings.TrimSpace(appName)
	appVersion = strings.TrimSpace(appVersion)
	if appVersion == "" || appVersion == "dev" {
		return fmt.Sprintf("Starting %s...", appName)
	}
	return fmt.Sprintf("Starting %s %s...", appName, appVersion)
}
