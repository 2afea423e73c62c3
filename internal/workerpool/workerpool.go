// Package workerpool implements the Worker Pool (C4): spawning, pausing,
// resuming and terminating workers bound to a template, and tracking the
// budget that forces a worker into the error state on overflow (spec §4.4,
// §5).
package workerpool

import (
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/foremanhq/foreman/internal/model"
	"github.com/foremanhq/foreman/internal/store"
	"github.com/google/uuid"
)

// Pool manages the set of live workers. It owns no executor; assigning
// and completing work only updates bookkeeping, the orchestrator drives
// actual execution through the executor port.
type Pool struct {
	mu         sync.RWMutex
	repo       *store.WorkerRepo
	maxWorkers int
	workers    map[string]*model.Worker
}

// New creates a worker pool backed by repo, capped at maxWorkers
// concurrently active workers.
func New(repo *store.WorkerRepo, maxWorkers int) (*Pool, error) {
	p := &Pool{
		repo:       repo,
		maxWorkers: maxWorkers,
		workers:    make(map[string]*model.Worker),
	}

	existing, err := repo.List(store.WorkerFilter{})
	if err != nil {
		return nil, fmt.Errorf("failed to load existing workers: %w", err)
	}
	for _, w := range existing {
		p.workers[w.ID] = w
	}
	return p, nil
}

// CanSpawnMore reports whether the pool has room for another active
// worker.
func (p *Pool) CanSpawnMore() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.activeCountLocked() < p.maxWorkers
}

func (p *Pool) activeCountLocked() int {
	n := 0
	for _, w := range p.workers {
		if w.IsActive() {
			n++
		}
	}
	return n
}

// Spawn creates a new idle worker bound to templateID, failing if the
// pool is already at its concurrency cap.
func (p *Pool) Spawn(templateID string, contextWindowLimit int) (*model.Worker, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.activeCountLocked() >= p.maxWorkers {
		return nil, fmt.Errorf("worker pool at capacity (%d): %w", p.maxWorkers, model.ErrConflict)
	}

	now := time.Now()
	w := &model.Worker{
		ID:           uuid.New().String(),
		TemplateID:   templateID,
		Status:       model.WorkerIdle,
		Budget:       model.Budget{ContextWindowLimit: contextWindowLimit},
		SpawnedAt:    now,
		LastActiveAt: now,
	}

	if err := p.repo.Put(w); err != nil {
		return nil, err
	}
	p.workers[w.ID] = w
	log.Printf("[POOL] spawned worker %s (template %s)", w.ID, templateID)
	return w, nil
}

// AssignWork binds an idle worker to a work item and role, transitioning
// it to working.
func (p *Pool) AssignWork(workerID, workItemID string, role model.Role) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	w, ok := p.workers[workerID]
	if !ok {
		return fmt.Errorf("worker %s: %w", workerID, model.ErrNotFound)
	}
	if !w.IsAvailable() {
		return fmt.Errorf("worker %s is not idle (status %s): %w", workerID, w.Status, model.ErrConflict)
	}

	w.Status = model.WorkerWorking
	w.CurrentWorkItemID = workItemID
	w.CurrentRole = role
	w.LastActiveAt = time.Now()

	if err := p.repo.Put(w); err != nil {
		return err
	}
	log.Printf("[POOL] assigned worker %s to work item %s as %s", workerID, workItemID, role)
	return nil
}

// CompleteWork releases a worker back to idle after finishing its current
// assignment.
func (p *Pool) CompleteWork(workerID string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	w, ok := p.workers[workerID]
	if !ok {
		return fmt.Errorf("worker %s: %w", workerID, model.ErrNotFound)
	}

	w.Status = model.WorkerIdle
	w.CurrentWorkItemID = ""
	w.CurrentRole = ""
	w.LastActiveAt = time.Now()

	return p.repo.Put(w)
}

// UpdateMetrics accumulates budget usage for a worker and forces it into
// the error state if the context window overflows (spec §5).
func (p *Pool) UpdateMetrics(workerID string, tokensUsed int64, costUSD float64, toolCalls, contextWindowUsed int) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	w, ok := p.workers[workerID]
	if !ok {
		return fmt.Errorf("worker %s: %w", workerID, model.ErrNotFound)
	}

	w.Budget.TokensUsed += tokensUsed
	w.Budget.CostUSD += costUSD
	w.Budget.ToolCallCount += toolCalls
	w.Budget.ContextWindowUsed = contextWindowUsed
	w.LastActiveAt = time.Now()

	if w.Budget.Overflowed() && w.Status != model.WorkerError {
		w.Status = model.WorkerError
		log.Printf("[POOL] worker %s forced to error: context window overflow (%d/%d)",
			workerID, w.Budget.ContextWindowUsed, w.Budget.ContextWindowLimit)
	}

	return p.repo.Put(w)
}

// ReportError increments a worker's error count and marks it errored.
func (p *Pool) ReportError(workerID string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	w, ok := p.workers[workerID]
	if !ok {
		return fmt.Errorf("worker %s: %w", workerID, model.ErrNotFound)
	}
	w.Budget.ErrorCount++
	w.Status = model.WorkerError
	w.LastActiveAt = time.Now()
	return p.repo.Put(w)
}

// Pause marks a working worker as paused, leaving its assignment
// intact. Pausing a worker that isn't currently working is rejected.
func (p *Pool) Pause(workerID string) error {
	return p.setStatusIf(workerID, model.WorkerWorking, model.WorkerPaused)
}

// Resume returns a paused worker to its prior working state, or idle if
// it has no current assignment. Resuming a worker that isn't currently
// paused is rejected.
func (p *Pool) Resume(workerID string) error {
	p.mu.Lock()
	w, ok := p.workers[workerID]
	p.mu.Unlock()
	if !ok {
		return fmt.Errorf("worker %s: %w", workerID, model.ErrNotFound)
	}
	if w.CurrentWorkItemID != "" {
		return p.setStatusIf(workerID, model.WorkerPaused, model.WorkerWorking)
	}
	return p.setStatusIf(workerID, model.WorkerPaused, model.WorkerIdle)
}

// setStatusIf transitions workerID to status only if its current status
// is want, rejecting the call otherwise (spec §4.4: "pause rejects
// non-working", "resume rejects non-paused").
func (p *Pool) setStatusIf(workerID string, want, status model.WorkerStatus) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	w, ok := p.workers[workerID]
	if !ok {
		return fmt.Errorf("worker %s: %w", workerID, model.ErrNotFound)
	}
	if w.Status != want {
		return fmt.Errorf("worker %s is not %s (status %s): %w", workerID, want, w.Status, model.ErrConflict)
	}
	w.Status = status
	w.LastActiveAt = time.Now()
	return p.repo.Put(w)
}

// Terminate permanently retires a worker.
func (p *Pool) Terminate(workerID string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	w, ok := p.workers[workerID]
	if !ok {
		return fmt.Errorf("worker %s: %w", workerID, model.ErrNotFound)
	}
	now := time.Now()
	w.Status = model.WorkerTerminated
	w.TerminatedAt = &now
	log.Printf("[POOL] terminated worker %s", workerID)
	return p.repo.Put(w)
}

// GetPool returns a snapshot of every known worker.
func (p *Pool) GetPool() []*model.Worker {
	p.mu.RLock()
	defer p.mu.RUnlock()

	out := make([]*model.Worker, 0, len(p.workers))
	for _, w := range p.workers {
		out = append(out, w)
	}
	return out
}

// GetAvailableWorkers returns every idle worker.
func (p *Pool) GetAvailableWorkers() []*model.Worker {
	p.mu.RLock()
	defer p.mu.RUnlock()

	var out []*model.Worker
	for _, w := range p.workers {
		if w.IsAvailable() {
			out = append(out, w)
		}
	}
	return out
}

// GetWorkersByTemplate returns every active worker spawned from templateID.
func (p *Pool) GetWorkersByTemplate(templateID string) []*model.Worker {
	p.mu.RLock()
	defer p.mu.RUnlock()

	var out []*model.Worker
	for _, w := range p.workers {
		if w.TemplateID == templateID && w.IsActive() {
			out = append(out, w)
		}
	}
	return out
}

// Get returns a single worker by ID.
func (p *Pool) Get(workerID string) (*model.Worker, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	w, ok := p.workers[workerID]
	if !ok {
		return nil, fmt.Errorf("worker %s: %w", workerID, model.ErrNotFound)
	}
	return w, nil
}
