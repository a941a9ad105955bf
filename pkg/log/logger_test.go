package log

import (
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestSetupLoggerWritesCategoryFiles(t *testing.T) {
	dir := t.TempDir()
	prevDefault := slog.Default()
	t.Cleanup(func() {
		mu.Lock()
		if GlobalLogger != nil {
			_ = GlobalLogger.Sync()
		}
		GlobalLogger = nil
		mu.Unlock()
		slog.SetDefault(prevDefault)
	})

	if err := SetupLogger(Options{Dir: dir, Level: slog.LevelDebug, Quiet: true}); err != nil {
		t.Fatalf("SetupLogger: %v", err)
	}

	ApplicationLogger().Info("app started", "guild", "g1")
	DatabaseLogger().Debug("query ran")
	Error().Errorf("boom %d", 42)

	if err := GlobalLogger.Sync(); err != nil {
		t.Fatalf("Sync: %v", err)
	}

	assertContains(t, filepath.Join(dir, "application.log"), "app started", "guild=g1", "category=application")
	assertContains(t, filepath.Join(dir, "database.log"), "query ran")
	assertContains(t, filepath.Join(dir, "error.log"), "boom 42")
}

func TestLoggersFallBackBeforeSetup(t *testing.T) {
	mu.Lock()
	prev := GlobalLogger
	GlobalLogger = nil
	mu.Unlock()
	t.Cleanup(func() {
		mu.Lock()
		GlobalLogger = prev
		mu.Unlock()
	})

	if ApplicationLogger() == nil || ErrorLoggerRaw() == nil {
		t.Fatalf("expected default loggers before setup")
	}
}

func TestParseLevel(t *testing.T) {
	cases := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"WARN":    slog.LevelWarn,
		"error":   slog.LevelError,
		"":        slog.LevelInfo,
		"verbose": slog.LevelInfo,
	}
	for in, want := range cases {
		if got := ParseLevel(in); got != want {
			t.Fatalf("ParseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}

func assertContains(t *testing.T, path string, needles ...string) {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read %s: %v", path, err)
	}
	for _, n := range needles {
		if !strings.Contains(string(data), n) {
			t.Fatalf("expected %s to contain %q, got:\n%s", filepath.Base(path), n, data)
		}
	}
}
