package model

import "time"

// WorkerStatus is the lifecycle state of a spawned worker (spec §3).
type WorkerStatus string

const (
	WorkerIdle       WorkerStatus = "idle"
	WorkerWorking    WorkerStatus = "working"
	WorkerPaused     WorkerStatus = "paused"
	WorkerError      WorkerStatus = "error"
	WorkerTerminated WorkerStatus = "terminated"
)

// Budget tracks the resource consumption a worker is allowed before it is
// forced into an error state (spec §3, §5).
type Budget struct {
	ContextWindowUsed  int     `json:"context_window_used"`
	ContextWindowLimit int     `json:"context_window_limit"`
	TokensUsed         int64   `json:"tokens_used"`
	CostUSD            float64 `json:"cost_usd"`
	ToolCallCount      int     `json:"tool_call_count"`
	ErrorCount         int     `json:"error_count"`
}

// Overflowed reports whether the worker has exhausted its context window.
func (b Budget) Overflowed() bool {
	return b.ContextWindowLimit > 0 && b.ContextWindowUsed >= b.ContextWindowLimit
}

// Worker is a running instance of a template, optionally bound to a work
// item (spec §3).
type Worker struct {
	ID         string       `json:"id"`
	TemplateID string       `json:"template_id"`
	SessionID  string       `json:"session_id,omitempty"`
	Status     WorkerStatus `json:"status"`

	CurrentWorkItemID string `json:"current_work_item_id,omitempty"`
	CurrentRole       Role   `json:"current_role,omitempty"`

	Budget Budget `json:"budget"`

	RepositoryExperience map[string]int `json:"repository_experience,omitempty"`

	SpawnedAt     time.Time  `json:"spawned_at"`
	LastActiveAt  time.Time  `json:"last_active_at"`
	TerminatedAt  *time.Time `json:"terminated_at,omitempty"`
}

// IsAvailable reports whether the worker can accept new work.
func (w *Worker) IsAvailable() bool {
	return w.Status == WorkerIdle
}

// IsActive reports whether the worker still counts against concurrency caps.
func (w *Worker) IsActive() bool {
	switch w.Status {
	case WorkerIdle, WorkerWorking, WorkerPaused:
		return true
	default:
		return false
	}
}
