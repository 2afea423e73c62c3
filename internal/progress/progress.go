// Package progress implements the Progress Tracker (C10): a thin layer
// over the work item state machine that records trace events and
// notifies listeners as a worker moves through a work item (spec
// §4.10).
package progress

import (
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/foremanhq/foreman/internal/model"
	"github.com/foremanhq/foreman/internal/statemachine"
	"github.com/foremanhq/foreman/internal/store"
	"github.com/google/uuid"
)

// Listener receives every trace event the tracker records, in order,
// per work item.
type Listener func(t *model.Trace)

// Detach removes a previously added listener.
type Detach func()

// Tracker wraps the work item repository and state machine to emit
// lifecycle traces as workers progress through their assignments.
type Tracker struct {
	mu        sync.Mutex
	items     *store.WorkItemRepo
	traces    *store.TraceRepo
	machine   *statemachine.Machine
	listeners map[int]Listener
	nextID    int
}

// New returns a tracker backed by items and traces, using machine to
// enforce work item status transitions.
func New(items *store.WorkItemRepo, traces *store.TraceRepo, machine *statemachine.Machine) *Tracker {
	return &Tracker{
		items:     items,
		traces:    traces,
		machine:   machine,
		listeners: make(map[int]Listener),
	}
}

// AddListener registers l to receive every emitted trace and returns a
// thunk that detaches it.
func (t *Tracker) AddListener(l Listener) Detach {
	t.mu.Lock()
	id := t.nextID
	t.nextID++
	t.listeners[id] = l
	t.mu.Unlock()

	return func() {
		t.mu.Lock()
		delete(t.listeners, id)
		t.mu.Unlock()
	}
}

func (t *Tracker) notify(tr *model.Trace) {
	t.mu.Lock()
	listeners := make([]Listener, 0, len(t.listeners))
	for _, l := range t.listeners {
		listeners = append(listeners, l)
	}
	t.mu.Unlock()

	for _, l := range listeners {
		l(tr)
	}
}

func (t *Tracker) emit(workerID, workItemID string, eventType model.TraceEventType, data map[string]any) error {
	tr := &model.Trace{
		ID:         uuid.New().String(),
		WorkerID:   workerID,
		WorkItemID: workItemID,
		EventType:  eventType,
		Data:       data,
		Timestamp:  time.Now(),
	}
	if err := t.traces.Append(tr); err != nil {
		return fmt.Errorf("failed to record trace: %w", err)
	}
	t.notify(tr)
	return nil
}

// MarkStarted transitions itemID into in-progress and emits a started
// trace carrying the execution ID.
func (t *Tracker) MarkStarted(itemID, workerID, execID string) error {
	item, err := t.items.Get(itemID)
	if err != nil {
		return fmt.Errorf("failed to load work item %s: %w", itemID, err)
	}
	if err := t.machine.Transition(item, model.StatusInProgress, true); err != nil {
		return fmt.Errorf("failed to start work item %s: %w", itemID, err)
	}
	if err := t.items.Put(item); err != nil {
		return fmt.Errorf("failed to persist work item %s: %w", itemID, err)
	}

	log.Printf("[PROGRESS] item %s started by worker %s (execution %s)", itemID, workerID, execID)
	return t.emit(workerID, itemID, model.TraceStarted, map[string]any{"execution_id": execID})
}

// UpdateProgress records an in-progress percentage, clamped to [0,99].
// 100 is reserved for MarkCompleted's transition to review.
func (t *Tracker) UpdateProgress(itemID, workerID string, percent int, msg string) error {
	if percent < 0 {
		percent = 0
	}
	if percent > 99 {
		percent = 99
	}
	data := map[string]any{"percent": percent}
	if msg != "" {
		data["message"] = msg
	}
	return t.emit(workerID, itemID, model.TraceProgress, data)
}

// RecordMilestone emits a named milestone without altering work item
// status.
func (t *Tracker) RecordMilestone(itemID, workerID, name string, data map[string]any) error {
	if data == nil {
		data = make(map[string]any)
	}
	data["milestone"] = name
	return t.emit(workerID, itemID, model.TraceMilestone, data)
}

// MarkBlocked emits a blocked trace. It does not change work item
// status: blocking is informational, the item stays where it is until
// an operator or the orchestrator acts on it.
func (t *Tracker) MarkBlocked(itemID, workerID, reason string) error {
	log.Printf("[PROGRESS] item %s blocked by worker %s: %s", itemID, workerID, reason)
	return t.emit(workerID, itemID, model.TraceBlocked, map[string]any{"reason": reason})
}

// MarkCompleted transitions itemID to review and emits a completed trace.
// The tracker keeps no per-item in-memory history, so nothing is purged;
// persisted history is untouched.
func (t *Tracker) MarkCompleted(itemID, workerID, execID string) error {
	item, err := t.items.Get(itemID)
	if err != nil {
		return fmt.Errorf("failed to load work item %s: %w", itemID, err)
	}
	if err := t.machine.Transition(item, model.StatusReview, true); err != nil {
		return fmt.Errorf("failed to complete work item %s: %w", itemID, err)
	}
	if err := t.items.Put(item); err != nil {
		return fmt.Errorf("failed to persist work item %s: %w", itemID, err)
	}

	log.Printf("[PROGRESS] item %s completed by worker %s (execution %s), moved to review", itemID, workerID, execID)
	return t.emit(workerID, itemID, model.TraceCompleted, map[string]any{"execution_id": execID})
}

// MarkFailed emits a failed trace without transitioning work item
// status; retry/escalation decisions belong to the retry engine, not
// the tracker.
func (t *Tracker) MarkFailed(itemID, workerID, reason string) error {
	log.Printf("[PROGRESS] item %s failed under worker %s: %s", itemID, workerID, reason)
	return t.emit(workerID, itemID, model.TraceFailed, map[string]any{"reason": reason})
}
