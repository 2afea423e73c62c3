package store

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/foremanhq/foreman/internal/model"
)

// ExecutionRepo persists Execution entities.
type ExecutionRepo struct {
	db *DB
}

// Executions returns the execution repository bound to this database.
func (d *DB) Executions() *ExecutionRepo {
	return &ExecutionRepo{db: d}
}

// ExecutionFilter narrows List results; zero-valued fields are ignored.
// DateFrom/DateTo filter on started_at, matching the REST surface's
// dateFrom/dateTo query params (spec §6).
type ExecutionFilter struct {
	WorkItemID string
	WorkerID   string
	Status     model.ExecutionStatus
	DateFrom   time.Time
	DateTo     time.Time
	Limit      int
	Offset     int
}

// Put inserts or updates an execution (upsert keyed by id).
func (r *ExecutionRepo) Put(e *model.Execution) error {
	return r.db.withTx(func(tx *sql.Tx) error {
		_, err := tx.Exec(`
			INSERT INTO executions
				(id, worker_id, work_item_id, workspace_id, template_id, status,
				 tokens_used, cost_usd, tool_call_count, duration_ms,
				 error_message, output, started_at, completed_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(id) DO UPDATE SET
				status = excluded.status,
				tokens_used = excluded.tokens_used,
				cost_usd = excluded.cost_usd,
				tool_call_count = excluded.tool_call_count,
				duration_ms = excluded.duration_ms,
				error_message = excluded.error_message,
				output = excluded.output,
				completed_at = excluded.completed_at`,
			e.ID, e.WorkerID, e.WorkItemID, nullString(e.WorkspaceID), e.TemplateID,
			e.Status, e.Metrics.TokensUsed, e.Metrics.CostUSD, e.Metrics.ToolCallCount,
			e.Metrics.DurationMs, nullString(e.ErrorMessage), nullString(e.Output),
			e.StartedAt, nullTime(e.CompletedAt),
		)
		if err != nil {
			return fmt.Errorf("failed to upsert execution %s: %w", e.ID, err)
		}
		return nil
	})
}

const executionColumns = `
	id, worker_id, work_item_id, workspace_id, template_id, status,
	tokens_used, cost_usd, tool_call_count, duration_ms, error_message,
	output, started_at, completed_at`

// Get retrieves an execution by ID.
func (r *ExecutionRepo) Get(id string) (*model.Execution, error) {
	row := r.db.conn.QueryRow(`SELECT `+executionColumns+` FROM executions WHERE id = ?`, id)
	e, err := scanExecution(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("execution %s: %w", id, model.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get execution: %w", err)
	}
	return e, nil
}

// List returns executions matching filter, most recent first.
func (r *ExecutionRepo) List(filter ExecutionFilter) ([]*model.Execution, error) {
	query := `SELECT ` + executionColumns + ` FROM executions WHERE 1=1`
	var args []interface{}

	if filter.WorkItemID != "" {
		query += " AND work_item_id = ?"
		args = append(args, filter.WorkItemID)
	}
	if filter.WorkerID != "" {
		query += " AND worker_id = ?"
		args = append(args, filter.WorkerID)
	}
	if filter.Status != "" {
		query += " AND status = ?"
		args = append(args, filter.Status)
	}
	if !filter.DateFrom.IsZero() {
		query += " AND started_at >= ?"
		args = append(args, filter.DateFrom)
	}
	if !filter.DateTo.IsZero() {
		query += " AND started_at <= ?"
		args = append(args, filter.DateTo)
	}
	query += " ORDER BY started_at DESC"
	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
		if filter.Offset > 0 {
			query += " OFFSET ?"
			args = append(args, filter.Offset)
		}
	}

	rows, err := r.db.conn.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query executions: %w", err)
	}
	defer rows.Close()

	var out []*model.Execution
	for rows.Next() {
		e, err := scanExecution(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan execution: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// Count returns the total number of executions matching filter, ignoring
// Limit/Offset — used by the REST surface to report `total`/`hasMore`
// alongside a page of results (spec §6).
func (r *ExecutionRepo) Count(filter ExecutionFilter) (int, error) {
	query := `SELECT COUNT(*) FROM executions WHERE 1=1`
	var args []interface{}

	if filter.WorkItemID != "" {
		query += " AND work_item_id = ?"
		args = append(args, filter.WorkItemID)
	}
	if filter.WorkerID != "" {
		query += " AND worker_id = ?"
		args = append(args, filter.WorkerID)
	}
	if filter.Status != "" {
		query += " AND status = ?"
		args = append(args, filter.Status)
	}
	if !filter.DateFrom.IsZero() {
		query += " AND started_at >= ?"
		args = append(args, filter.DateFrom)
	}
	if !filter.DateTo.IsZero() {
		query += " AND started_at <= ?"
		args = append(args, filter.DateTo)
	}

	var n int
	if err := r.db.conn.QueryRow(query, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count executions: %w", err)
	}
	return n, nil
}

func scanExecution(row rowScanner) (*model.Execution, error) {
	var e model.Execution
	var workspaceID, errorMessage, output sql.NullString
	var completedAt sql.NullTime

	err := row.Scan(
		&e.ID, &e.WorkerID, &e.WorkItemID, &workspaceID, &e.TemplateID, &e.Status,
		&e.Metrics.TokensUsed, &e.Metrics.CostUSD, &e.Metrics.ToolCallCount,
		&e.Metrics.DurationMs, &errorMessage, &output, &e.StartedAt, &completedAt,
	)
	if err != nil {
		return nil, err
	}

	e.WorkspaceID = workspaceID.String
	e.ErrorMessage = errorMessage.String
	e.Output = output.String
	e.CompletedAt = timePtr(completedAt)

	return &e, nil
}
