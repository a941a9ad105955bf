// Package config loads bot-wide settings from config.yaml, MODCORE_* environment
// variables and built-in defaults, in that order of precedence (env wins).
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/small-frappuccino/modcore/pkg/errutil"
	"github.com/small-frappuccino/modcore/pkg/util"
	"github.com/spf13/viper"
)

// EnvConfigPath names an explicit config file, bypassing the search path.
const EnvConfigPath = "MODCORE_CONFIG"

type Config struct {
	Database   DatabaseConfig   `mapstructure:"database"`
	Log        LogConfig        `mapstructure:"log"`
	Discord    DiscordConfig    `mapstructure:"discord"`
	Moderation ModerationConfig `mapstructure:"moderation"`
	Scheduler  SchedulerConfig  `mapstructure:"scheduler"`
	Cooldown   CooldownConfig   `mapstructure:"cooldown"`
	Bot        BotConfig        `mapstructure:"bot"`

	// Source is the config file that was read, empty when running on defaults.
	Source string `mapstructure:"-"`
}

type DatabaseConfig struct {
	Path string `mapstructure:"path"`
}

type LogConfig struct {
	Level      string `mapstructure:"level"`
	Dir        string `mapstructure:"dir"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days"`
}

type DiscordConfig struct {
	TokenEnv string `mapstructure:"token_env"`
}

type ModerationConfig struct {
	MaxMute           time.Duration `mapstructure:"max_mute"`
	AutoMuteThreshold int           `mapstructure:"auto_mute_threshold"`
	AutoBanThreshold  int           `mapstructure:"auto_ban_threshold"`
	AutoMuteDuration  time.Duration `mapstructure:"auto_mute_duration"`
	DefaultLanguage   string        `mapstructure:"default_language"`
	HistoryLimit      int           `mapstructure:"history_limit"`
}

type SchedulerConfig struct {
	SweepInterval time.Duration `mapstructure:"sweep_interval"`
}

type CooldownConfig struct {
	// Backend is "memory" or "redis".
	Backend   string        `mapstructure:"backend"`
	Default   time.Duration `mapstructure:"default"`
	RedisAddr string        `mapstructure:"redis_addr"`
	RedisDB   int           `mapstructure:"redis_db"`
}

type BotConfig struct {
	Theme string `mapstructure:"theme"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("database.path", util.DatabasePath())
	v.SetDefault("log.level", "info")
	v.SetDefault("log.dir", "")
	v.SetDefault("log.max_size_mb", 20)
	v.SetDefault("log.max_backups", 5)
	v.SetDefault("log.max_age_days", 28)
	v.SetDefault("discord.token_env", "MODCORE_BOT_TOKEN")
	v.SetDefault("moderation.max_mute", "720h")
	v.SetDefault("moderation.auto_mute_threshold", 3)
	v.SetDefault("moderation.auto_ban_threshold", 5)
	v.SetDefault("moderation.auto_mute_duration", "1h")
	v.SetDefault("moderation.default_language", "en")
	v.SetDefault("moderation.history_limit", 50)
	v.SetDefault("scheduler.sweep_interval", "1m")
	v.SetDefault("cooldown.backend", "memory")
	v.SetDefault("cooldown.default", "3s")
	v.SetDefault("cooldown.redis_addr", "")
	v.SetDefault("cooldown.redis_db", 0)
	v.SetDefault("bot.theme", "")
}

// Load reads configuration. Extra search directories are tried before the
// app config dir and the working directory. A missing file is not an error.
func Load(searchDirs ...string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("MODCORE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if explicit := strings.TrimSpace(os.Getenv(EnvConfigPath)); explicit != "" {
		v.SetConfigFile(explicit)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		for _, d := range searchDirs {
			v.AddConfigPath(d)
		}
		v.AddConfigPath(util.ConfigDir())
		v.AddConfigPath(".")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, errutil.HandleConfigError("read", v.ConfigFileUsed(), func() error { return err })
		}
	}

	var cfg Config
	if err := errutil.HandleConfigError("decode", v.ConfigFileUsed(), func() error { return v.Unmarshal(&cfg) }); err != nil {
		return nil, err
	}
	cfg.Source = v.ConfigFileUsed()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rejects settings the moderation core cannot run with.
func (c *Config) Validate() error {
	var errs []error
	if strings.TrimSpace(c.Database.Path) == "" {
		errs = append(errs, fmt.Errorf("database.path is empty"))
	}
	if c.Moderation.MaxMute <= 0 {
		errs = append(errs, fmt.Errorf("moderation.max_mute must be positive"))
	}
	if c.Moderation.AutoMuteThreshold <= 0 || c.Moderation.AutoBanThreshold <= c.Moderation.AutoMuteThreshold {
		errs = append(errs, fmt.Errorf("moderation thresholds must satisfy 0 < auto_mute_threshold < auto_ban_threshold"))
	}
	if c.Scheduler.SweepInterval < time.Second {
		errs = append(errs, fmt.Errorf("scheduler.sweep_interval must be at least 1s"))
	}
	switch c.Cooldown.Backend {
	case "memory":
	case "redis":
		if strings.TrimSpace(c.Cooldown.RedisAddr) == "" {
			errs = append(errs, fmt.Errorf("cooldown.redis_addr is required for the redis backend"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown cooldown.backend %q", c.Cooldown.Backend))
	}
	return errors.Join(errs...)
}
