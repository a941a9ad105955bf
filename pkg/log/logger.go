package log

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/small-frappuccino/modcore/pkg/util"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Category selects one of the per-concern log files.
type Category int

const (
	Application Category = iota
	DiscordEvents
	Database
	Errors
)

var categoryFiles = map[Category]string{
	Application:   "application.log",
	DiscordEvents: "discord_events.log",
	Database:      "database.log",
	Errors:        "error.log",
}

// Options controls where and how much is logged.
type Options struct {
	// Dir holds the category files. Empty means util.LogDir().
	Dir        string
	Level      slog.Level
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
	// Quiet disables the stdout/stderr mirror (tests).
	Quiet bool
}

// Logger bundles one slog.Logger per category, each backed by a rotating file.
type Logger struct {
	loggers map[Category]*slog.Logger
	files   []*lumberjack.Logger
}

var (
	mu sync.RWMutex
	// GlobalLogger is nil until SetupLogger succeeds.
	GlobalLogger *Logger
)

// SetupLogger opens the category files and installs the application logger as slog's default.
func SetupLogger(opts Options) error {
	dir := opts.Dir
	if strings.TrimSpace(dir) == "" {
		dir = util.LogDir()
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create log dir: %w", err)
	}
	if opts.MaxSizeMB <= 0 {
		opts.MaxSizeMB = 20
	}

	l := &Logger{loggers: make(map[Category]*slog.Logger, len(categoryFiles))}
	for cat, name := range categoryFiles {
		file := &lumberjack.Logger{
			Filename:   filepath.Join(dir, name),
			MaxSize:    opts.MaxSizeMB,
			MaxBackups: opts.MaxBackups,
			MaxAge:     opts.MaxAgeDays,
		}
		l.files = append(l.files, file)

		var w io.Writer = file
		if !opts.Quiet {
			mirror := io.Writer(os.Stdout)
			if cat == Errors {
				mirror = os.Stderr
			}
			w = io.MultiWriter(mirror, file)
		}
		h := slog.NewTextHandler(w, &slog.HandlerOptions{Level: opts.Level})
		l.loggers[cat] = slog.New(h).With("category", categoryLabel(cat))
	}

	mu.Lock()
	prev := GlobalLogger
	GlobalLogger = l
	mu.Unlock()
	if prev != nil {
		_ = prev.Sync()
	}

	slog.SetDefault(l.loggers[Application])
	return nil
}

// Sync closes the open log files. lumberjack reopens them on the next write.
func (l *Logger) Sync() error {
	if l == nil {
		return nil
	}
	var firstErr error
	for _, f := range l.files {
		if err := f.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// Category returns the slog.Logger for cat.
func (l *Logger) Category(cat Category) *slog.Logger {
	if l == nil {
		return slog.Default()
	}
	if lg, ok := l.loggers[cat]; ok {
		return lg
	}
	return slog.Default()
}

func categoryLabel(cat Category) string {
	switch cat {
	case DiscordEvents:
		return "discord"
	case Database:
		return "database"
	case Errors:
		return "error"
	default:
		return "application"
	}
}

func current() *Logger {
	mu.RLock()
	defer mu.RUnlock()
	return GlobalLogger
}

func ApplicationLogger() *slog.Logger { return current().Category(Application) }
func DiscordLogger() *slog.Logger     { return current().Category(DiscordEvents) }
func DatabaseLogger() *slog.Logger    { return current().Category(Database) }
func ErrorLoggerRaw() *slog.Logger    { return current().Category(Errors) }

// ParseLevel maps debug/info/warn/error to a slog.Level; unknown values mean info.
func ParseLevel(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// InfoPrinter offers printf-style info logging per category.
type InfoPrinter struct{}

// ErrorPrinter offers printf-style error logging.
type ErrorPrinter struct{}

func Info() InfoPrinter   { return InfoPrinter{} }
func Error() ErrorPrinter { return ErrorPrinter{} }

func (InfoPrinter) Applicationf(format string, args ...any) {
	ApplicationLogger().Info(fmt.Sprintf(format, args...))
}

func (InfoPrinter) Discordf(format string, args ...any) {
	DiscordLogger().Info(fmt.Sprintf(format, args...))
}

func (InfoPrinter) Databasef(format string, args ...any) {
	DatabaseLogger().Info(fmt.Sprintf(format, args...))
}

func (ErrorPrinter) Errorf(format string, args ...any) {
	ErrorLoggerRaw().Error(fmt.Sprintf(format, args...))
}
