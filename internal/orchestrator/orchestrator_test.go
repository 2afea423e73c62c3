package orchestrator

import (
	"context"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/foremanhq/foreman/internal/assignment"
	"github.com/foremanhq/foreman/internal/catalog"
	"github.com/foremanhq/foreman/internal/events"
	"github.com/foremanhq/foreman/internal/executor"
	"github.com/foremanhq/foreman/internal/limits"
	"github.com/foremanhq/foreman/internal/model"
	"github.com/foremanhq/foreman/internal/progress"
	"github.com/foremanhq/foreman/internal/queue"
	"github.com/foremanhq/foreman/internal/retry"
	"github.com/foremanhq/foreman/internal/statemachine"
	"github.com/foremanhq/foreman/internal/store"
	"github.com/foremanhq/foreman/internal/workerpool"
)

// stubExecutor returns a fixed result or error for every request.
type stubExecutor struct {
	mu     sync.Mutex
	result executor.Result
	err    error
	calls  int
}

func (s *stubExecutor) Execute(ctx context.Context, req executor.Request) (executor.Result, error) {
	s.mu.Lock()
	s.calls++
	s.mu.Unlock()
	return s.result, s.err
}

func (s *stubExecutor) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

func (s *stubExecutor) setResult(r executor.Result, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.result = r
	s.err = err
}

type testHarness struct {
	db    *store.DB
	orch  *Orchestrator
	pool  *workerpool.Pool
	cat   *catalog.Catalog
	items *store.WorkItemRepo
	exec  *stubExecutor
}

func newHarness(t *testing.T) *testHarness {
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

	pool, err := workerpool.New(db.Workers(), 5)
	if err != nil {
		t.Fatalf("failed to create pool: %v", err)
	}

	bus := events.NewBus(nil)
	tracker := progress.New(db.WorkItems(), db.Traces(), statemachine.New())
	exec := &stubExecutor{result: executor.Result{TokensUsed: 1000, CostUSD: 0.05, ToolCallCount: 5}}

	cfg := Config{
		CycleInterval:             50 * time.Millisecond,
		MaxGlobalWorkers:          5,
		MaxRetryAttempts:          3,
		RetryBaseDelay:            time.Millisecond,
		RetryMaxDelay:             100 * time.Millisecond,
		AutoSpawnWorkers:          true,
		DefaultContextWindowLimit: 100000,
	}

	orch := New(
		db.WorkItems(),
		db.Executions(),
		queue.New(),
		cat,
		pool,
		assignment.New(),
		limits.New(limits.Config{Global: cfg.MaxGlobalWorkers}),
		retry.New(),
		tracker,
		bus,
		exec,
		cfg,
	)

	return &testHarness{db: db, orch: orch, pool: pool, cat: cat, items: db.WorkItems(), exec: exec}
}

func seedReadyItem(t *testing.T, items *store.WorkItemRepo, id string, itemType model.WorkItemType) *model.WorkItem {
	t.Helper()
	item := &model.WorkItem{ID: id, Title: "test item", Type: itemType, Status: model.StatusReady}
	if err := items.Put(item); err != nil {
		t.Fatalf("failed to seed item: %v", err)
	}
	return item
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("condition not met within %s", timeout)
}

func TestForceCycleAutoSpawnsWorkerAndCompletesItem(t *testing.T) {
	h := newHarness(t)
	seedReadyItem(t, h.items, "item-1", model.TypeFeature)

	if err := h.orch.ForceCycle(context.Background()); err != nil {
		t.Fatalf("ForceCycle failed: %v", err)
	}

	waitFor(t, time.Second, func() bool {
		got, err := h.items.Get("item-1")
		return err == nil && got.Status == model.StatusReview
	})

	if h.exec.callCount() != 1 {
		t.Errorf("expected exactly 1 executor call, got %d", h.exec.callCount())
	}
}

func TestBlockedItemExcludedFromCycle(t *testing.T) {
	h := newHarness(t)
	a := seedReadyItem(t, h.items, "item-a", model.TypeFeature)
	b := seedReadyItem(t, h.items, "item-b", model.TypeFeature)
	b.BlockedBy = []string{a.ID}
	if err := h.items.Put(b); err != nil {
		t.Fatalf("failed to update item-b: %v", err)
	}

	all, err := h.items.List(store.WorkItemFilter{})
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	h.orch.queue.RefreshQueue(all)

	if got := h.orch.queue.Len(); got != 1 {
		t.Fatalf("expected queue length 1, got %d", got)
	}
	if next := h.orch.queue.Peek(); next == nil || next.ID != a.ID {
		t.Errorf("expected item-a to be next, got %+v", next)
	}
}

func TestQueuePrioritizesBugsOverFeatures(t *testing.T) {
	h := newHarness(t)
	seedReadyItem(t, h.items, "bug-1", model.TypeBug)
	seedReadyItem(t, h.items, "feature-1", model.TypeFeature)

	all, _ := h.items.List(store.WorkItemFilter{})
	h.orch.queue.RefreshQueue(all)

	next := h.orch.queue.Peek()
	if next == nil || next.Type != model.TypeBug {
		t.Fatalf("expected bug to be prioritized, got %+v", next)
	}
}

func TestRetryEscalationAfterMaxAttempts(t *testing.T) {
	h := newHarness(t)
	h.exec.setResult(executor.Result{}, errContextTimeout())
	seedReadyItem(t, h.items, "item-1", model.TypeFeature)

	for i := 0; i < 4; i++ {
		if err := h.orch.ForceCycle(context.Background()); err != nil {
			t.Fatalf("ForceCycle %d failed: %v", i, err)
		}
		waitFor(t, time.Second, func() bool {
			return h.exec.callCount() == i+1
		})
		// allow the retry's short scheduled delay to elapse before the
		// next forced cycle drains it.
		time.Sleep(10 * time.Millisecond)
	}

	if !h.orch.retryer.IsEscalated("item-1") {
		t.Error("expected item-1 to be escalated after exhausting retries")
	}
	stats := h.orch.retryer.GetErrorStats("item-1")
	if stats.TotalFailures != 4 {
		t.Errorf("expected 4 recorded failures, got %d", stats.TotalFailures)
	}
}

func TestConcurrencyCapRespectedPerRepo(t *testing.T) {
	h := newHarness(t)
	h.orch.limiter = limits.New(limits.Config{PerRepo: 2})

	for _, id := range []string{"item-1", "item-2", "item-3"} {
		item := &model.WorkItem{ID: id, Title: "t", Type: model.TypeFeature, Status: model.StatusReady, RepositoryID: "repo-x"}
		if err := h.items.Put(item); err != nil {
			t.Fatalf("failed to seed %s: %v", id, err)
		}
	}

	if err := h.orch.ForceCycle(context.Background()); err != nil {
		t.Fatalf("ForceCycle failed: %v", err)
	}

	waitFor(t, time.Second, func() bool {
		return h.orch.limiter.GlobalCount() <= 2
	})

	if ok, reason := h.orch.limiter.CanStartExecution("repo-x", ""); ok {
		t.Error("expected repo-x to be at its per-repo cap")
	} else if !strings.Contains(reason, "Per-repository") {
		t.Errorf("expected deferral reason to name the per-repository dimension, got %q", reason)
	}
}

func TestBuiltInTemplateDeletionProtected(t *testing.T) {
	h := newHarness(t)
	templates, err := h.cat.List()
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(templates) == 0 {
		t.Fatal("expected built-in templates to be seeded")
	}
	if err := h.cat.Delete(templates[0].ID); err == nil {
		t.Error("expected deleting a built-in template to fail")
	}
}

func errContextTimeout() error {
	return &timeoutErr{}
}

type timeoutErr struct{}

func (e *timeoutErr) Error() string { return "connection timeout while calling agent" }
