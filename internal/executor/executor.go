// Package executor defines the narrow port the orchestrator uses to run a
// worker's turn. No concrete agent/LLM client ships in this repository —
// implementing the agent itself is explicitly out of scope (spec §1
// Non-goals); this package only describes the contract callers and test
// doubles implement.
package executor

import (
	"context"
	"time"
)

// Request describes one turn a worker should execute.
type Request struct {
	WorkerID     string
	WorkItemID   string
	SystemPrompt string
	Prompt       string
	MaxTurns     int
}

// Result is what a turn produced.
type Result struct {
	Output        string
	TokensUsed    int64
	CostUSD       float64
	ToolCallCount int
	Duration      time.Duration
	Err           error
}

// Executor runs a single worker turn to completion or cancellation. A
// concrete implementation might shell out to a CLI agent, call a hosted
// API, or drive a container — none of that is this package's concern.
type Executor interface {
	Execute(ctx context.Context, req Request) (Result, error)
}
