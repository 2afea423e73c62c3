package statemachine

import (
	"errors"
	"testing"

	"github.com/foremanhq/foreman/internal/model"
)

func newItem(status model.WorkItemStatus) *model.WorkItem {
	return &model.WorkItem{
		ID:     "wi-1",
		Title:  "test item",
		Status: status,
	}
}

func TestTransitionAllowed(t *testing.T) {
	m := New()
	item := newItem(model.StatusReady)

	if err := m.Transition(item, model.StatusInProgress, false); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if item.Status != model.StatusInProgress {
		t.Errorf("expected status in-progress, got %s", item.Status)
	}
	if item.StartedAt == nil {
		t.Error("expected startedAt to be set")
	}
}

func TestTransitionRejectsInvalid(t *testing.T) {
	m := New()
	item := newItem(model.StatusBacklog)

	err := m.Transition(item, model.StatusDone, false)
	if !errors.Is(err, model.ErrInvalidTransition) {
		t.Fatalf("expected ErrInvalidTransition, got %v", err)
	}
}

func TestTransitionRequiresApproval(t *testing.T) {
	m := New()
	item := newItem(model.StatusReview)
	item.RequiresApproval = map[string]bool{
		model.ApprovalKey(model.StatusReview, model.StatusDone): true,
	}

	if err := m.Transition(item, model.StatusDone, false); !errors.Is(err, model.ErrApprovalRequired) {
		t.Fatalf("expected ErrApprovalRequired, got %v", err)
	}

	if err := m.Transition(item, model.StatusDone, true); err != nil {
		t.Fatalf("unexpected error with approval granted: %v", err)
	}
	if item.CompletedAt == nil {
		t.Error("expected completedAt to be set on done")
	}
}

func TestTransitionClearsCompletedAtOnReopen(t *testing.T) {
	m := New()
	item := newItem(model.StatusReview)
	if err := m.Transition(item, model.StatusInProgress, false); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if item.CompletedAt != nil {
		t.Error("expected completedAt to be nil when not done")
	}
}

func TestTransitionRejectsInProgressToReadyDirectly(t *testing.T) {
	m := New()
	item := newItem(model.StatusInProgress)

	err := m.Transition(item, model.StatusReady, true)
	if !errors.Is(err, model.ErrInvalidTransition) {
		t.Fatalf("expected ErrInvalidTransition for in-progress->ready, got %v", err)
	}
	if item.Status != model.StatusInProgress {
		t.Errorf("expected status to remain in-progress after rejected transition, got %s", item.Status)
	}
}

func TestAllowedFrom(t *testing.T) {
	m := New()
	allowed := m.AllowedFrom(model.StatusDone)
	if len(allowed) != 0 {
		t.Errorf("expected no transitions out of done, got %v", allowed)
	}
}
