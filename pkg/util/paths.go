package util

import (
	"os"
	"path/filepath"
	"runtime"
	"strings"
)

const defaultAppName = "modcore"

var (
	// ConfiguredAppName is set by the host before the session opens; it names
	// the config, cache and log directories.
	ConfiguredAppName string

	// DiscordBotName is the bot username reported by Discord after login.
	DiscordBotName string
)

// AppVersion is the version reported by /botinfo.
var AppVersion = "dev"

// SetAppName sets the configured application name used for on-disk layout.
func SetAppName(name string) {
	if strings.TrimSpace(name) == "" {
		return
	}
	ConfiguredAppName = sanitizeAppNameForPath(name)
}

// SetBotName records the Discord username. Paths keep using ConfiguredAppName when set.
func SetBotName(name string) {
	if strings.TrimSpace(name) == "" {
		return
	}
	DiscordBotName = sanitizeAppNameForPath(name)
}

// EffectiveBotName prefers the configured name, then the Discord username.
func EffectiveBotName() string {
	if n := strings.TrimSpace(ConfiguredAppName); n != "" {
		return n
	}
	if n := strings.TrimSpace(DiscordBotName); n != "" {
		return n
	}
	return defaultAppName
}

// ConfigDir returns the base path for configuration files:
//   - Linux/Unix:  ~/.config/<AppName>
//   - macOS:       ~/Library/Preferences/<AppName>
//   - Windows:     %APPDATA%/<AppName>
func ConfigDir() string {
	app := EffectiveBotName()
	switch runtime.GOOS {
	case "windows":
		return filepath.Join(windowsAppDataBase(), app)
	case "darwin":
		return filepath.Join(homeDir(), "Library", "Preferences", app)
	default:
		return filepath.Join(homeDir(), ".config", app)
	}
}

// CacheDir returns the base path for cache and data files:
//   - Linux/Unix:  ~/.cache/<AppName>
//   - macOS:       ~/Library/Caches/<AppName>
//   - Windows:     %APPDATA%/<AppName>/Cache
func CacheDir() string {
	app := EffectiveBotName()
	switch runtime.GOOS {
	case "windows":
		return filepath.Join(windowsAppDataBase(), app, "Cache")
	case "darwin":
		return filepath.Join(homeDir(), "Library", "Caches", app)
	default:
		return filepath.Join(homeDir(), ".cache", app)
	}
}

// LogDir returns the base path for log files:
//   - Linux/Unix:  ~/.log/<AppName>
//   - macOS:       ~/Library/Logs/<AppName>
//   - Windows:     %APPDATA%/<AppName>/Logs
func LogDir() string {
	app := EffectiveBotName()
	switch runtime.GOOS {
	case "windows":
		return filepath.Join(windowsAppDataBase(), app, "Logs")
	case "darwin":
		return filepath.Join(homeDir(), "Library", "Logs", app)
	default:
		return filepath.Join(homeDir(), ".log", app)
	}
}

// DatabasePath returns the default SQLite path: <CacheDir>/data/modcore.db
func DatabasePath() string {
	return filepath.Join(CacheDir(), "data", "modcore.db")
}

func homeDir() string {
	if h := strings.TrimSpace(os.Getenv("HOME")); h != "" {
		return h
	}
	if h, err := os.UserHomeDir(); err == nil && strings.TrimSpace(h) != "" {
		return h
	}
	if wd, err := os.Getwd(); err == nil {
		return wd
	}
	return "."
}

func windowsAppDataBase() string {
	if v := strings.TrimSpace(os.Getenv("APPDATA")); v != "" {
		return v
	}
	return filepath.Join(homeDir(), "AppData", "Roaming")
}

// sanitizeAppNameForPath makes name safe as a single directory segment on every
// platform. Windows rejects <>:"/\|?* and trailing dots or spaces.
func sanitizeAppNameForPath(name string) string {
	n := strings.NewReplacer(
		"/", "-", "\\", "-", "<", "-", ">", "-", ":", "-",
		"\"", "-", "|", "-", "?", "-", "*", "-", "\x00", "",
	).Replace(strings.TrimSpace(name))
	n = strings.TrimRight(n, " .")
	if n == "" {
		return defaultAppName
	}
	return n
}
