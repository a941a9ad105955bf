package core

import (
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/bwmarrin/discordgo"
	"github.com/small-frappuccino/modcore/pkg/log"
)

// CommandManager keeps the global application commands on Discord in sync
// with the router's registry.
type CommandManager struct {
	session *discordgo.Session
	router  *CommandRouter
	logger  *slog.Logger
}

func NewCommandManager(session *discordgo.Session, deps *Deps) *CommandManager {
	return &CommandManager{
		session: session,
		router:  NewCommandRouter(session, deps),
		logger:  log.ApplicationLogger().With("component", "command_manager"),
	}
}

func (cm *CommandManager) Router() *CommandRouter {
	return cm.router
}

// syncPlan is what it takes to make Discord match the registry.
type syncPlan struct {
	create    []*discordgo.ApplicationCommand
	update    map[string]*discordgo.ApplicationCommand // remote id -> definition
	remove    []*discordgo.ApplicationCommand
	unchanged int
}

func planSync(remote []*discordgo.ApplicationCommand, local []Command) syncPlan {
	plan := syncPlan{update: make(map[string]*discordgo.ApplicationCommand)}
	byName := make(map[string]*discordgo.ApplicationCommand, len(remote))
	for _, rc := range remote {
		byName[rc.Name] = rc
	}
	for _, cmd := range local {
		want := &discordgo.ApplicationCommand{
			Name:        cmd.Name(),
			Description: cmd.Description(),
			Options:     cmd.Options(),
		}
		have, ok := byName[want.Name]
		delete(byName, want.Name)
		switch {
		case !ok:
			plan.create = append(plan.create, want)
		case SameCommand(have, want):
			plan.unchanged++
		default:
			plan.update[have.ID] = want
		}
	}
	for _, rc := range remote {
		if _, orphan := byName[rc.Name]; orphan {
			plan.remove = append(plan.remove, rc)
		}
	}
	return plan
}

// SetupCommands installs the interaction handler and applies the sync plan.
// Create and update failures abort; a failed orphan delete is only logged.
func (cm *CommandManager) SetupCommands() error {
	cm.session.AddHandler(cm.router.HandleInteraction)

	if cm.session.State == nil || cm.session.State.User == nil {
		return fmt.Errorf("session is not ready: missing bot user")
	}
	appID := cm.session.State.User.ID

	remote, err := cm.session.ApplicationCommands(appID, "")
	if err != nil {
		return fmt.Errorf("failed to fetch registered commands: %w", err)
	}
	plan := planSync(remote, cm.router.registry.Commands())

	for _, cmd := range plan.create {
		if _, err := cm.session.ApplicationCommandCreate(appID, "", cmd); err != nil {
			return fmt.Errorf("error creating command '%s': %w", cmd.Name, err)
		}
		cm.logger.Info("Command created", "command", cmd.Name)
	}
	for id, cmd := range plan.update {
		if _, err := cm.session.ApplicationCommandEdit(appID, "", id, cmd); err != nil {
			return fmt.Errorf("error updating command '%s': %w", cmd.Name, err)
		}
		cm.logger.Info("Command updated", "command", cmd.Name)
	}
	removed := 0
	for _, rc := range plan.remove {
		if err := cm.session.ApplicationCommandDelete(appID, "", rc.ID); err != nil {
			cm.logger.Warn("Error removing orphan command", "command", rc.Name, "error", err)
			continue
		}
		cm.logger.Info("Orphan command removed", "command", rc.Name)
		removed++
	}

	cm.logger.Info("Command synchronization completed",
		"created", len(plan.create),
		"updated", len(plan.update),
		"deleted", removed,
		"unchanged", plan.unchanged,
	)
	return nil
}

// SameCommand reports whether two definitions would render identically.
func SameCommand(a, b *discordgo.ApplicationCommand) bool {
	type shape struct {
		Name        string                                `json:"name"`
		Description string                                `json:"description"`
		Options     []*discordgo.ApplicationCommandOption `json:"options"`
	}
	ja, _ := json.Marshal(shape{a.Name, a.Description, a.Options})
	jb, _ := json.Marshal(shape{b.Name, b.Description, b.Options})
	return string(ja) == string(jb)
}
