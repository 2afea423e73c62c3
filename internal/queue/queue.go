// Package queue implements the Work-Item Queue Manager: a thread-safe
// priority queue over ready work items (spec §4.5).
package queue

import (
	"sort"
	"sync"

	"github.com/foremanhq/foreman/internal/model"
)

// typeRank orders work item types by scheduling priority: bugs first,
// features and tasks tied for second, research after, anything else last.
func typeRank(t model.WorkItemType) int {
	switch t {
	case model.TypeBug:
		return 0
	case model.TypeFeature, model.TypeTask:
		return 1
	case model.TypeResearch:
		return 2
	default:
		return 3
	}
}

// Queue is a thread-safe priority queue over work items in the ready
// status. It holds no persistence of its own; RefreshQueue rebuilds it
// from the authoritative set of items each orchestrator cycle.
type Queue struct {
	mu    sync.RWMutex
	items []*model.WorkItem
	index map[string]*model.WorkItem
}

// New creates an empty queue.
func New() *Queue {
	return &Queue{
		items: make([]*model.WorkItem, 0),
		index: make(map[string]*model.WorkItem),
	}
}

// IsReady reports whether a work item can be scheduled: it must be in the
// ready status and have no unresolved blockers.
func IsReady(item *model.WorkItem, doneByID map[string]bool) bool {
	if item.Status != model.StatusReady {
		return false
	}
	for _, blockerID := range item.BlockedBy {
		if !doneByID[blockerID] {
			return false
		}
	}
	return true
}

// Add inserts a work item, maintaining priority order.
func (q *Queue) Add(item *model.WorkItem) {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.items = append(q.items, item)
	q.index[item.ID] = item
	q.sortLocked()
}

// Peek returns the highest priority item without removing it.
func (q *Queue) Peek() *model.WorkItem {
	q.mu.RLock()
	defer q.mu.RUnlock()

	if len(q.items) == 0 {
		return nil
	}
	return q.items[0]
}

// Pop removes and returns the highest priority item.
func (q *Queue) Pop() *model.WorkItem {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.items) == 0 {
		return nil
	}

	item := q.items[0]
	q.items = q.items[1:]
	delete(q.index, item.ID)
	return item
}

// Remove removes an item by ID, reporting whether it was present.
func (q *Queue) Remove(id string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if _, exists := q.index[id]; !exists {
		return false
	}
	delete(q.index, id)
	for i, it := range q.items {
		if it.ID == id {
			q.items = append(q.items[:i], q.items[i+1:]...)
			break
		}
	}
	return true
}

// Requeue reinserts an item after a failed attempt, bumping its retry
// count so it sorts behind not-yet-retried peers of the same priority
// tier.
func (q *Queue) Requeue(item *model.WorkItem) {
	item.RetryCount++
	q.mu.Lock()
	defer q.mu.Unlock()

	if _, exists := q.index[item.ID]; exists {
		for i, it := range q.items {
			if it.ID == item.ID {
				q.items[i] = item
				q.sortLocked()
				return
			}
		}
	}
	q.items = append(q.items, item)
	q.index[item.ID] = item
	q.sortLocked()
}

// GetByID returns an item by ID, or nil if absent.
func (q *Queue) GetByID(id string) *model.WorkItem {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return q.index[id]
}

// Len returns the number of queued items.
func (q *Queue) Len() int {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return len(q.items)
}

// All returns a snapshot of every queued item, highest priority first.
func (q *Queue) All() []*model.WorkItem {
	q.mu.RLock()
	defer q.mu.RUnlock()

	out := make([]*model.WorkItem, len(q.items))
	copy(out, q.items)
	return out
}

// RefreshQueue rebuilds the queue from the authoritative set of work
// items, keeping only those that are ready and unblocked. Calling it
// repeatedly with the same input is idempotent: the resulting order and
// membership are a pure function of the input slice.
func (q *Queue) RefreshQueue(all []*model.WorkItem) {
	doneByID := make(map[string]bool, len(all))
	for _, item := range all {
		if item.Status == model.StatusDone {
			doneByID[item.ID] = true
		}
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	q.items = q.items[:0]
	for k := range q.index {
		delete(q.index, k)
	}
	for _, item := range all {
		if IsReady(item, doneByID) {
			q.items = append(q.items, item)
			q.index[item.ID] = item
		}
	}
	q.sortLocked()
}

// RefreshItem re-evaluates a single item against doneByID and adds or
// removes it from the queue accordingly, without touching any other
// queued item. Used by the orchestrator to re-admit an item whose
// retry just became due.
func (q *Queue) RefreshItem(item *model.WorkItem, doneByID map[string]bool) {
	ready := IsReady(item, doneByID)

	q.mu.Lock()
	_, queued := q.index[item.ID]
	q.mu.Unlock()

	switch {
	case ready && !queued:
		q.Add(item)
	case !ready && queued:
		q.Remove(item.ID)
	}
}

// sortLocked orders items by type priority, then by retry count (fewer
// retries first), then FIFO by creation time. Callers must hold q.mu.
func (q *Queue) sortLocked() {
	sort.Slice(q.items, func(i, j int) bool {
		ri, rj := typeRank(q.items[i].Type), typeRank(q.items[j].Type)
		if ri != rj {
			return ri < rj
		}
		if q.items[i].RetryCount != q.items[j].RetryCount {
			return q.items[i].RetryCount < q.items[j].RetryCount
		}
		return q.items[i].CreatedAt.Before(q.items[j].CreatedAt)
	})
}
