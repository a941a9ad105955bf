package errutil

import (
	"fmt"
	"sync"

	"github.com/small-frappuccino/modcore/pkg/log"
)

// Helpers that run a function, log its failure on the error logger, and hand
// the error back:
//   - InitializeGlobalErrorHandler(logger *log.Logger) error
//   - HandleDiscordError(operation string, fn func() error) error
//   - HandleConfigError(operation, path string, fn func() error) error
//   - HandleStoreError(operation string, fn func() error) error

var (
	mu     sync.RWMutex
	logger *log.Logger
)

// InitializeGlobalErrorHandler sets the logger used by the helpers.
// The last non-nil logger wins.
func InitializeGlobalErrorHandler(l *log.Logger) error {
	if l == nil {
		return fmt.Errorf("nil logger provided")
	}
	mu.Lock()
	logger = l
	mu.Unlock()
	return nil
}

func errorLogger() *log.Logger {
	mu.RLock()
	defer mu.RUnlock()
	return logger
}

// HandleDiscordError runs fn and logs a failure as a Discord error.
// The error is returned unmodified so callers can still inspect REST codes.
func HandleDiscordError(operation string, fn func() error) error {
	if fn == nil {
		return fmt.Errorf("nil function provided")
	}
	err := fn()
	if err == nil {
		return nil
	}
	errorLogger().Category(log.Errors).Error("Discord operation failed", "operation", operation, "error", err)
	return err
}

// HandleConfigError runs fn and returns a failure wrapped with operation and path.
func HandleConfigError(operation, path string, fn func() error) error {
	if fn == nil {
		return fmt.Errorf("nil function provided")
	}
	err := fn()
	if err == nil {
		return nil
	}
	errorLogger().Category(log.Errors).Error("Config operation failed", "operation", operation, "path", path, "error", err)
	return fmt.Errorf("config %s %s: %w", operation, path, err)
}

// HandleStoreError runs fn and logs a failure on both the database and error loggers.
func HandleStoreError(operation string, fn func() error) error {
	if fn == nil {
		return fmt.Errorf("nil function provided")
	}
	err := fn()
	if err == nil {
		return nil
	}
	l := errorLogger()
	l.Category(log.Database).Warn("Store operation failed", "operation", operation, "error", err)
	l.Category(log.Errors).Error("Store operation failed", "operation", operation, "error", err)
	return err
}
