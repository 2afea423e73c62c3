// Package signalctl turns OS shutdown signals into a cancelled context that
// callers react to (cmd/foreman stops its orchestrator on it), and provides
// SingletonLock (an exclusive lock file on Windows, a no-op elsewhere),
// grounded on the teacher's internal/instance lifecycle manager.
package signalctl

import (
	"context"
	"os"
	"os/signal"
	"syscall"
)

// Notify registers for SIGINT/SIGTERM and returns a context that is
// cancelled the first time one arrives. Calling the returned stop function
// early unregisters the handler without waiting for a signal.
func Notify() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}
