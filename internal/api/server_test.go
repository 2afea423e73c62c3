package api

import (
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/foremanhq/foreman/internal/assignment"
	"github.com/foremanhq/foreman/internal/catalog"
	"github.com/foremanhq/foreman/internal/events"
	"github.com/foremanhq/foreman/internal/limits"
	"github.com/foremanhq/foreman/internal/orchestrator"
	"github.com/foremanhq/foreman/internal/progress"
	"github.com/foremanhq/foreman/internal/queue"
	"github.com/foremanhq/foreman/internal/retry"
	"github.com/foremanhq/foreman/internal/statemachine"
	"github.com/foremanhq/foreman/internal/store"
	"github.com/foremanhq/foreman/internal/workerpool"
)

func newTestServer(t *testing.T) (*Server, *store.DB) {
	t.Helper()
	db, err := store.Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("failed to open test store: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	cat := catalog.New(db.Templates())
	if err := cat.InitializeBuiltIns(); err != nil {
		t.Fatalf("InitializeBuiltIns failed: %v", err)
	}

	pool, err := workerpool.New(db.Workers(), 10)
	if err != nil {
		t.Fatalf("workerpool.New failed: %v", err)
	}

	bus := events.NewBus(nil)
	q := queue.New()
	scorer := assignment.New()
	limiter := limits.New(limits.Config{Global: 10})
	retryer := retry.New()
	tracker := progress.New(db.WorkItems(), db.Traces(), statemachine.New())

	orch := orchestrator.New(
		db.WorkItems(), db.Executions(), q, cat, pool, scorer, limiter, retryer,
		tracker, bus, nil, orchestrator.Config{},
	)

	s := New(cat, db.WorkItems(), db.Workers(), db.Executions(), db.Traces(), bus, orch, nil, nil)
	return s, db
}

func TestTemplateListRoute(t *testing.T) {
	s, _ := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/templates", nil)
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestUnknownRouteIs404(t *testing.T) {
	s, _ := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/nonexistent", nil)
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}
