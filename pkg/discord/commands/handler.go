package commands

import (
	"fmt"

	"github.com/bwmarrin/discordgo"
	"github.com/small-frappuccino/modcore/pkg/discord/commands/config"
	"github.com/small-frappuccino/modcore/pkg/discord/commands/core"
	"github.com/small-frappuccino/modcore/pkg/discord/commands/metrics"
	"github.com/small-frappuccino/modcore/pkg/discord/commands/moderation"
	"github.com/small-frappuccino/modcore/pkg/log"
)

// CommandHandler is the main handler that coordinates all bot commands
type CommandHandler struct {
	session        *discordgo.Session
	deps           *core.Deps
	metrics        metrics.Options
	commandManager *core.CommandManager
}

// NewCommandHandler creates a new CommandHandler instance
func NewCommandHandler(session *discordgo.Session, deps *core.Deps, metricsOpts metrics.Options) *CommandHandler {
	return &CommandHandler{
		session: session,
		deps:    deps,
		metrics: metricsOpts,
	}
}

// SetupCommands registers every command and syncs them with Discord.
func (ch *CommandHandler) SetupCommands() error {
	log.ApplicationLogger().Info("Setting up bot commands...")

	ch.commandManager = core.NewCommandManager(ch.session, ch.deps)
	ch.registerCommands()

	if err := ch.commandManager.SetupCommands(); err != nil {
		return fmt.Errorf("failed to setup commands: %w", err)
	}

	log.ApplicationLogger().Info("Bot commands setup completed successfully")
	return nil
}

func (ch *CommandHandler) registerCommands() {
	router := ch.commandManager.Router()

	if owners, ok := ch.deps.Store.(core.OwnerStore); ok {
		router.PermissionChecker().SetOwnerStore(owners)
	}

	moderation.RegisterModerationCommands(router)
	config.NewConfigCommands(router.PermissionChecker()).RegisterCommands(router)
	metrics.RegisterMetricsCommands(router, ch.metrics)

	log.ApplicationLogger().Info("Commands registered", "count", router.Registry().Len())
}

// Shutdown releases the cooldown limiter.
func (ch *CommandHandler) Shutdown() error {
	log.ApplicationLogger().Info("Shutting down command handler...")
	if ch.deps != nil && ch.deps.Cooldown != nil {
		return ch.deps.Cooldown.Close()
	}
	return nil
}
