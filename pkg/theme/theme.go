package theme

import (
	"fmt"
	"maps"
	"sync"
)

// Color is the int value used by discordgo.MessageEmbed.Color.
type Color = int

// Role is a semantic slot in a palette.
type Role string

const (
	Primary Role = "primary"
	Info    Role = "info"
	Success Role = "success"
	Warning Role = "warning"
	Error   Role = "error"
	Muted   Role = "muted"

	// Moderation log colors, one per action family.
	Ban    Role = "ban"
	Kick   Role = "kick"
	Mute   Role = "mute"
	Warn   Role = "warn"
	Lock   Role = "lock"
	Clear  Role = "clear"
	Revert Role = "revert"
	Config Role = "config"
)

var defaults = map[Role]Color{
	Primary: 0x5865F2,
	Info:    0x3B82F6,
	Success: 0x57F287,
	Warning: 0xF59E0B,
	Error:   0xED4245,
	Muted:   0x99AAB5,
	Kick:    0xE67E22,
	Mute:    0x818386,
	Lock:    0x7AA2F7,
}

// inherits names the role an unset role borrows from before the defaults.
var inherits = map[Role]Role{
	Ban:    Error,
	Warn:   Warning,
	Clear:  Muted,
	Revert: Success,
	Config: Info,
}

// Palette is a named set of role colors. Unset roles inherit.
type Palette struct {
	Name   string
	Colors map[Role]Color
}

// Color resolves r through the palette, its inherited role, then the defaults.
func (p Palette) Color(r Role) Color {
	if c, ok := p.Colors[r]; ok {
		return c
	}
	if parent, ok := inherits[r]; ok {
		return p.Color(parent)
	}
	return defaults[r]
}

var (
	mu       sync.RWMutex
	palettes = map[string]Palette{}
	current  = Palette{Name: "default"}
)

func init() {
	// Softer colors for servers that find the default reds too loud.
	if err := Register(Palette{Name: "pastel", Colors: map[Role]Color{
		Ban:    0xF28B82,
		Kick:   0xF6B26B,
		Mute:   0xB4A7D6,
		Warn:   0xFFE599,
		Lock:   0x9FC5E8,
		Revert: 0xB6D7A8,
	}}); err != nil {
		panic(err)
	}
}

// Register makes p selectable by name.
func Register(p Palette) error {
	if p.Name == "" || p.Name == "default" {
		return fmt.Errorf("theme: invalid palette name %q", p.Name)
	}
	mu.Lock()
	defer mu.Unlock()
	if _, dup := palettes[p.Name]; dup {
		return fmt.Errorf("theme: palette %q already registered", p.Name)
	}
	p.Colors = maps.Clone(p.Colors)
	palettes[p.Name] = p
	return nil
}

// SetCurrent selects the active palette. "" and "default" select the
// built-in colors.
func SetCurrent(name string) error {
	mu.Lock()
	defer mu.Unlock()
	if name == "" || name == "default" {
		current = Palette{Name: "default"}
		return nil
	}
	p, ok := palettes[name]
	if !ok {
		return fmt.Errorf("theme: palette %q not found", name)
	}
	current = p
	return nil
}

// Current returns the active palette.
func Current() Palette {
	mu.RLock()
	defer mu.RUnlock()
	return current
}

// Of returns the active color for r.
func Of(r Role) Color {
	return Current().Color(r)
}

// ForAction returns the moderation log color for an action kind. Inverse
// actions share the revert color.
func ForAction(kind string) Color {
	switch kind {
	case "ban", "kick", "mute", "warn", "lock", "clear":
		return Of(Role(kind))
	case "unban", "unmute", "unwarn", "unlock":
		return Of(Revert)
	case "setlang":
		return Of(Config)
	default:
		return Of(Primary)
	}
}
