package util

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
)

// InterruptContext returns a context cancelled on SIGINT or SIGTERM.
func InterruptContext(parent context.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
}

// WaitForInterrupt blocks until SIGINT or SIGTERM arrives or ctx ends.
func WaitForInterrupt(ctx context.Context) {
	ctx, stop := InterruptContext(ctx)
	defer stop()

	<-ctx.Done()
	slog.Info("Received interrupt; shutting down", "cause", context.Cause(ctx))
}
