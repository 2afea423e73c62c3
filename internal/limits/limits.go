// Package limits implements Concurrency Limits (C8): global, per-repo and
// per-user caps on simultaneously running executions (spec §5).
package limits

import (
	"fmt"
	"sync"

	"github.com/foremanhq/foreman/internal/model"
)

// Config holds the concurrency caps. A zero value for any field means
// "no limit" for that dimension.
type Config struct {
	Global  int
	PerRepo int
	PerUser int
}

// Limiter tracks in-flight executions against Config's caps. All checks
// and mutations happen under a single mutex; there is no separate
// "check" then "increment" window for callers to race through.
type Limiter struct {
	mu sync.Mutex

	cfg Config

	globalCount int
	repoCounts  map[string]int
	userCounts  map[string]int
	active      map[string]executionKey // executionID -> key, for registerCompletion
}

type executionKey struct {
	repositoryID string
	userID       string
}

// New creates a limiter enforcing cfg.
func New(cfg Config) *Limiter {
	return &Limiter{
		cfg:        cfg,
		repoCounts: make(map[string]int),
		userCounts: make(map[string]int),
		active:     make(map[string]executionKey),
	}
}

// CanStartExecution reports whether starting an execution for the given
// repository/user would stay within every configured cap. When it
// returns false, reason names the specific dimension (global, per-repo
// or per-user) that would be exceeded.
func (l *Limiter) CanStartExecution(repositoryID, userID string) (allowed bool, reason string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.canStartLocked(repositoryID, userID)
}

func (l *Limiter) canStartLocked(repositoryID, userID string) (bool, string) {
	if l.cfg.Global > 0 && l.globalCount >= l.cfg.Global {
		return false, fmt.Sprintf("Global concurrency limit reached (%d/%d)", l.globalCount, l.cfg.Global)
	}
	if l.cfg.PerRepo > 0 && repositoryID != "" && l.repoCounts[repositoryID] >= l.cfg.PerRepo {
		return false, fmt.Sprintf("Per-repository concurrency limit reached for %q (%d/%d)", repositoryID, l.repoCounts[repositoryID], l.cfg.PerRepo)
	}
	if l.cfg.PerUser > 0 && userID != "" && l.userCounts[userID] >= l.cfg.PerUser {
		return false, fmt.Sprintf("Per-user concurrency limit reached for %q (%d/%d)", userID, l.userCounts[userID], l.cfg.PerUser)
	}
	return true, ""
}

// RegisterStart atomically checks and reserves capacity for a new
// execution. Returns model.ErrConflict if any cap would be exceeded, or
// if executionID was already registered.
func (l *Limiter) RegisterStart(executionID, repositoryID, userID string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, exists := l.active[executionID]; exists {
		return fmt.Errorf("execution %s already registered: %w", executionID, model.ErrConflict)
	}
	if allowed, reason := l.canStartLocked(repositoryID, userID); !allowed {
		return fmt.Errorf("%s: %w", reason, model.ErrConflict)
	}

	l.globalCount++
	if repositoryID != "" {
		l.repoCounts[repositoryID]++
	}
	if userID != "" {
		l.userCounts[userID]++
	}
	l.active[executionID] = executionKey{repositoryID: repositoryID, userID: userID}
	return nil
}

// RegisterCompletion releases the capacity reserved by RegisterStart. It
// is a no-op if executionID was never registered (or already released),
// so it is safe to call once per execution regardless of how it ended.
func (l *Limiter) RegisterCompletion(executionID string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	key, exists := l.active[executionID]
	if !exists {
		return
	}
	delete(l.active, executionID)

	l.globalCount--
	if key.repositoryID != "" {
		l.repoCounts[key.repositoryID]--
		if l.repoCounts[key.repositoryID] <= 0 {
			delete(l.repoCounts, key.repositoryID)
		}
	}
	if key.userID != "" {
		l.userCounts[key.userID]--
		if l.userCounts[key.userID] <= 0 {
			delete(l.userCounts, key.userID)
		}
	}
}

// GlobalCount returns the current number of in-flight executions.
func (l *Limiter) GlobalCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.globalCount
}
