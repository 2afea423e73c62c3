// Package statemachine enforces the work item status transition table and
// the approval gate that guards selected transitions (spec §3, §4.7).
package statemachine

import (
	"fmt"
	"time"

	"github.com/foremanhq/foreman/internal/model"
)

// validTransitions mirrors the teacher's task status table, adapted to the
// backlog/ready/in-progress/review/done lifecycle.
var validTransitions = map[model.WorkItemStatus][]model.WorkItemStatus{
	model.StatusBacklog:    {model.StatusReady},
	model.StatusReady:      {model.StatusInProgress, model.StatusBacklog},
	model.StatusInProgress: {model.StatusReview, model.StatusBacklog},
	model.StatusReview:     {model.StatusDone, model.StatusInProgress},
	model.StatusDone:       {},
}

// Machine applies transitions to work items, gating on configured approval
// requirements and stamping startedAt/completedAt as invariants demand.
type Machine struct{}

// New returns a ready-to-use state machine. It holds no state of its own;
// every call is pure with respect to the work item passed in.
func New() *Machine {
	return &Machine{}
}

// CanTransition reports whether moving from one status to another is legal,
// without applying it.
func (m *Machine) CanTransition(from, to model.WorkItemStatus) bool {
	allowed, ok := validTransitions[from]
	if !ok {
		return false
	}
	for _, s := range allowed {
		if s == to {
			return true
		}
	}
	return false
}

// Transition moves the work item to newStatus, enforcing the transition
// table, the approval gate (RequiresApproval keyed by "<from>_<to>"), and
// the startedAt/completedAt stamping invariants from spec §3.
//
// approved is the caller's attestation that any required approval was
// already granted; callers that haven't checked approval should pass false.
func (m *Machine) Transition(item *model.WorkItem, newStatus model.WorkItemStatus, approved bool) error {
	if !m.CanTransition(item.Status, newStatus) {
		return fmt.Errorf("%w: from %s to %s", model.ErrInvalidTransition, item.Status, newStatus)
	}

	key := model.ApprovalKey(item.Status, newStatus)
	if item.RequiresApproval[key] && !approved {
		return fmt.Errorf("%w: transition %s requires approval", model.ErrApprovalRequired, key)
	}

	now := time.Now()
	prev := item.Status
	item.Status = newStatus
	item.UpdatedAt = now

	if prev != model.StatusInProgress && newStatus == model.StatusInProgress && item.StartedAt == nil {
		item.StartedAt = &now
	}
	if newStatus == model.StatusDone {
		item.CompletedAt = &now
	} else {
		item.CompletedAt = nil
	}

	return nil
}

// AllowedFrom lists the statuses reachable directly from the given status,
// used by the API layer to report legal next moves.
func (m *Machine) AllowedFrom(status model.WorkItemStatus) []model.WorkItemStatus {
	allowed := validTransitions[status]
	out := make([]model.WorkItemStatus, len(allowed))
	copy(out, allowed)
	return out
}
