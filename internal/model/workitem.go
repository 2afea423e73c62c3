package model

import (
	"fmt"
	"time"
)

// WorkItemStatus is the position of a work item in the status machine (spec §3).
type WorkItemStatus string

const (
	StatusBacklog    WorkItemStatus = "backlog"
	StatusReady      WorkItemStatus = "ready"
	StatusInProgress WorkItemStatus = "in-progress"
	StatusReview     WorkItemStatus = "review"
	StatusDone       WorkItemStatus = "done"
)

// WorkItemType influences both capability matching and queue priority.
type WorkItemType string

const (
	TypeFeature  WorkItemType = "feature"
	TypeBug      WorkItemType = "bug"
	TypeTask     WorkItemType = "task"
	TypeResearch WorkItemType = "research"
)

// SuccessCriterion is a single acceptance criterion on a work item.
type SuccessCriterion struct {
	ID          string     `json:"id"`
	Text        string     `json:"text"`
	Completed   bool       `json:"completed"`
	VerifiedBy  string     `json:"verified_by,omitempty"`
	VerifiedAt  *time.Time `json:"verified_at,omitempty"`
}

// WorkItem is a unit of work tracked through the status machine (spec §3).
type WorkItem struct {
	ID     string         `json:"id"`
	Title  string         `json:"title"`
	Type   WorkItemType   `json:"type"`
	Status WorkItemStatus `json:"status"`

	Description       string             `json:"description"`
	SuccessCriteria    []SuccessCriterion `json:"success_criteria,omitempty"`
	LinkedFiles        []string           `json:"linked_files,omitempty"`
	RepositoryID       string             `json:"repository_id,omitempty"`
	ExternalIssueID    string             `json:"external_issue_id,omitempty"`
	ExternalIssueURL   string             `json:"external_issue_url,omitempty"`

	ParentID  string   `json:"parent_id,omitempty"`
	ChildIDs  []string `json:"child_ids,omitempty"`
	BlockedBy []string `json:"blocked_by,omitempty"`

	AssignedAgents    map[Role]string `json:"assigned_agents,omitempty"`
	RequiresApproval  map[string]bool `json:"requires_approval,omitempty"`

	CreatedBy string `json:"created_by,omitempty"`

	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`

	RetryCount int `json:"retry_count"`
}

// IsTerminal reports whether the item has reached the final status.
func (w *WorkItem) IsTerminal() bool {
	return w.Status == StatusDone
}

// Validate enforces the no-self-edge invariant and basic field requirements.
func (w *WorkItem) Validate() error {
	if w.Title == "" {
		return fmt.Errorf("%w: title is required", ErrValidation)
	}
	if w.ParentID != "" && w.ParentID == w.ID {
		return fmt.Errorf("%w: work item cannot be its own parent", ErrValidation)
	}
	for _, b := range w.BlockedBy {
		if b == w.ID {
			return fmt.Errorf("%w: work item cannot block itself", ErrValidation)
		}
	}
	for _, c := range w.ChildIDs {
		if c == w.ID {
			return fmt.Errorf("%w: work item cannot be its own child", ErrValidation)
		}
	}
	return nil
}

// ApprovalKey builds the requiresApproval map key for a transition.
func ApprovalKey(from, to WorkItemStatus) string {
	return fmt.Sprintf("%s_%s", from, to)
}
