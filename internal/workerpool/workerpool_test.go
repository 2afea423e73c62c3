package workerpool

import (
	"errors"
	"path/filepath"
	"testing"

	"github.com/foremanhq/foreman/internal/model"
	"github.com/foremanhq/foreman/internal/store"
)

func newTestPool(t *testing.T, maxWorkers int) *Pool {
	t.Helper()
	db, err := store.Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("failed to open test store: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	p, err := New(db.Workers(), maxWorkers)
	if err != nil {
		t.Fatalf("failed to create pool: %v", err)
	}
	return p
}

func TestSpawnRespectsCap(t *testing.T) {
	p := newTestPool(t, 1)

	if _, err := p.Spawn("tmpl-1", 1000); err != nil {
		t.Fatalf("Spawn failed: %v", err)
	}
	if _, err := p.Spawn("tmpl-1", 1000); !errors.Is(err, model.ErrConflict) {
		t.Fatalf("expected ErrConflict at capacity, got %v", err)
	}
}

func TestAssignAndCompleteWork(t *testing.T) {
	p := newTestPool(t, 2)
	w, err := p.Spawn("tmpl-1", 1000)
	if err != nil {
		t.Fatalf("Spawn failed: %v", err)
	}

	if err := p.AssignWork(w.ID, "wi-1", model.RoleImplementer); err != nil {
		t.Fatalf("AssignWork failed: %v", err)
	}
	got, _ := p.Get(w.ID)
	if got.Status != model.WorkerWorking {
		t.Errorf("expected working status, got %s", got.Status)
	}

	if err := p.CompleteWork(w.ID); err != nil {
		t.Fatalf("CompleteWork failed: %v", err)
	}
	got, _ = p.Get(w.ID)
	if got.Status != model.WorkerIdle {
		t.Errorf("expected idle status after completion, got %s", got.Status)
	}
}

func TestUpdateMetricsForcesErrorOnOverflow(t *testing.T) {
	p := newTestPool(t, 1)
	w, err := p.Spawn("tmpl-1", 100)
	if err != nil {
		t.Fatalf("Spawn failed: %v", err)
	}

	if err := p.UpdateMetrics(w.ID, 500, 0.01, 3, 150); err != nil {
		t.Fatalf("UpdateMetrics failed: %v", err)
	}
	got, _ := p.Get(w.ID)
	if got.Status != model.WorkerError {
		t.Errorf("expected worker forced to error on overflow, got %s", got.Status)
	}
}

func TestGetAvailableWorkers(t *testing.T) {
	p := newTestPool(t, 2)
	idle, err := p.Spawn("tmpl-1", 1000)
	if err != nil {
		t.Fatalf("Spawn failed: %v", err)
	}
	busy, err := p.Spawn("tmpl-1", 1000)
	if err != nil {
		t.Fatalf("Spawn failed: %v", err)
	}
	if err := p.AssignWork(busy.ID, "wi-1", model.RoleTester); err != nil {
		t.Fatalf("AssignWork failed: %v", err)
	}

	available := p.GetAvailableWorkers()
	if len(available) != 1 || available[0].ID != idle.ID {
		t.Errorf("expected only %s available, got %v", idle.ID, available)
	}
}

func TestPauseRejectsNonWorking(t *testing.T) {
	p := newTestPool(t, 1)
	w, err := p.Spawn("tmpl-1", 1000)
	if err != nil {
		t.Fatalf("Spawn failed: %v", err)
	}

	if err := p.Pause(w.ID); !errors.Is(err, model.ErrConflict) {
		t.Fatalf("expected ErrConflict pausing an idle worker, got %v", err)
	}
}

func TestPauseAndResumeRoundTrip(t *testing.T) {
	p := newTestPool(t, 1)
	w, err := p.Spawn("tmpl-1", 1000)
	if err != nil {
		t.Fatalf("Spawn failed: %v", err)
	}
	if err := p.AssignWork(w.ID, "wi-1", model.RoleImplementer); err != nil {
		t.Fatalf("AssignWork failed: %v", err)
	}

	if err := p.Pause(w.ID); err != nil {
		t.Fatalf("Pause failed: %v", err)
	}
	got, _ := p.Get(w.ID)
	if got.Status != model.WorkerPaused {
		t.Errorf("expected paused status, got %s", got.Status)
	}

	if err := p.Resume(w.ID); err != nil {
		t.Fatalf("Resume failed: %v", err)
	}
	got, _ = p.Get(w.ID)
	if got.Status != model.WorkerWorking {
		t.Errorf("expected working status after resume, got %s", got.Status)
	}
}

func TestResumeRejectsNonPaused(t *testing.T) {
	p := newTestPool(t, 1)
	w, err := p.Spawn("tmpl-1", 1000)
	if err != nil {
		t.Fatalf("Spawn failed: %v", err)
	}

	if err := p.Resume(w.ID); !errors.Is(err, model.ErrConflict) {
		t.Fatalf("expected ErrConflict resuming an idle worker, got %v", err)
	}
}

func TestTerminateSetsTerminatedAt(t *testing.T) {
	p := newTestPool(t, 1)
	w, err := p.Spawn("tmpl-1", 1000)
	if err != nil {
		t.Fatalf("Spawn failed: %v", err)
	}

	if err := p.Terminate(w.ID); err != nil {
		t.Fatalf("Terminate failed: %v", err)
	}
	got, _ := p.Get(w.ID)
	if got.Status != model.WorkerTerminated || got.TerminatedAt == nil {
		t.Errorf("expected terminated worker with timestamp, got %+v", got)
	}
	if p.CanSpawnMore() != true {
		t.Errorf("expected capacity to free up after termination")
	}
}
