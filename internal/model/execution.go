package model

import "time"

// ExecutionStatus is the lifecycle of a single worker run against a work item.
type ExecutionStatus string

const (
	ExecutionPending   ExecutionStatus = "pending"
	ExecutionRunning   ExecutionStatus = "running"
	ExecutionSuccess   ExecutionStatus = "success"
	ExecutionError     ExecutionStatus = "error"
	ExecutionCancelled ExecutionStatus = "cancelled"
)

// ExecutionMetrics mirrors the worker budget at the point the execution
// finished, kept independently so historical executions are unaffected by
// later worker reuse.
type ExecutionMetrics struct {
	TokensUsed    int64   `json:"tokens_used"`
	CostUSD       float64 `json:"cost_usd"`
	ToolCallCount int     `json:"tool_call_count"`
	DurationMs    int64   `json:"duration_ms"`
}

// Execution is one attempt by a worker to make progress on a work item
// (spec §3).
type Execution struct {
	ID          string          `json:"id"`
	WorkerID    string          `json:"worker_id"`
	WorkItemID  string          `json:"work_item_id"`
	WorkspaceID string          `json:"workspace_id,omitempty"`
	TemplateID  string          `json:"template_id"`
	Status      ExecutionStatus `json:"status"`

	Metrics      ExecutionMetrics `json:"metrics"`
	ErrorMessage string           `json:"error_message,omitempty"`
	Output       string           `json:"output,omitempty"`

	StartedAt   time.Time  `json:"started_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// IsTerminal reports whether the execution has finished, successfully or not.
func (e *Execution) IsTerminal() bool {
	switch e.Status {
	case ExecutionSuccess, ExecutionError, ExecutionCancelled:
		return true
	default:
		return false
	}
}
