package util

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// LoadEnvWithLocalBinFallback returns the value of tokenEnvName.
//
// Before reading it, the fallback file $HOME/.local/bin/.env is loaded when
// present. godotenv does not overwrite variables that are already set, so the
// process environment always wins. A .env in the working directory is never read.
func LoadEnvWithLocalBinFallback(tokenEnvName string) (string, error) {
	home, homeErr := os.UserHomeDir()
	var envPath string
	if homeErr == nil && home != "" {
		envPath = filepath.Join(home, ".local", "bin", ".env")
		if info, statErr := os.Stat(envPath); statErr == nil && !info.IsDir() {
			_ = godotenv.Load(envPath)
		}
	}

	if v := os.Getenv(tokenEnvName); v != "" {
		return v, nil
	}

	if envPath == "" {
		return "", fmt.Errorf("environment variable %q not set and home directory unresolved", tokenEnvName)
	}
	return "", fmt.Errorf("environment variable %q not set; attempted to load fallback file %s", tokenEnvName, envPath)
}

// EnvInt64 parses name as an int64, returning def on absence or parse failure.
func EnvInt64(name string, def int64) int64 {
	v := strings.TrimSpace(os.Getenv(name))
	if v == "" {
		return def
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return def
	}
	return n
}
