package store

import (
	"database/sql"
	"fmt"

	"github.com/foremanhq/foreman/internal/model"
)

// WorkerRepo persists Worker entities.
type WorkerRepo struct {
	db *DB
}

// Workers returns the worker repository bound to this database.
func (d *DB) Workers() *WorkerRepo {
	return &WorkerRepo{db: d}
}

// WorkerFilter narrows List results; zero-valued fields are ignored.
type WorkerFilter struct {
	Status     model.WorkerStatus
	TemplateID string
}

// Put inserts or updates a worker (upsert keyed by id).
func (r *WorkerRepo) Put(w *model.Worker) error {
	repoExperience, err := encodeJSON(w.RepositoryExperience)
	if err != nil {
		return fmt.Errorf("failed to encode repository_experience: %w", err)
	}

	return r.db.withTx(func(tx *sql.Tx) error {
		_, err := tx.Exec(`
			INSERT INTO workers
				(id, template_id, session_id, status, current_work_item_id,
				 current_role, context_window_used, context_window_limit,
				 tokens_used, cost_usd, tool_call_count, error_count,
				 repository_experience, spawned_at, last_active_at, terminated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(id) DO UPDATE SET
				session_id = excluded.session_id,
				status = excluded.status,
				current_work_item_id = excluded.current_work_item_id,
				current_role = excluded.current_role,
				context_window_used = excluded.context_window_used,
				context_window_limit = excluded.context_window_limit,
				tokens_used = excluded.tokens_used,
				cost_usd = excluded.cost_usd,
				tool_call_count = excluded.tool_call_count,
				error_count = excluded.error_count,
				repository_experience = excluded.repository_experience,
				last_active_at = excluded.last_active_at,
				terminated_at = excluded.terminated_at`,
			w.ID, w.TemplateID, nullString(w.SessionID), w.Status,
			nullString(w.CurrentWorkItemID), nullString(string(w.CurrentRole)),
			w.Budget.ContextWindowUsed, w.Budget.ContextWindowLimit,
			w.Budget.TokensUsed, w.Budget.CostUSD, w.Budget.ToolCallCount,
			w.Budget.ErrorCount, nullString(repoExperience),
			w.SpawnedAt, w.LastActiveAt, nullTime(w.TerminatedAt),
		)
		if err != nil {
			return fmt.Errorf("failed to upsert worker %s: %w", w.ID, err)
		}
		return nil
	})
}

const workerColumns = `
	id, template_id, session_id, status, current_work_item_id, current_role,
	context_window_used, context_window_limit, tokens_used, cost_usd,
	tool_call_count, error_count, repository_experience, spawned_at,
	last_active_at, terminated_at`

// Get retrieves a worker by ID.
func (r *WorkerRepo) Get(id string) (*model.Worker, error) {
	row := r.db.conn.QueryRow(`SELECT `+workerColumns+` FROM workers WHERE id = ?`, id)
	w, err := scanWorker(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("worker %s: %w", id, model.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get worker: %w", err)
	}
	return w, nil
}

// List returns workers matching filter.
func (r *WorkerRepo) List(filter WorkerFilter) ([]*model.Worker, error) {
	query := `SELECT ` + workerColumns + ` FROM workers WHERE 1=1`
	var args []interface{}

	if filter.Status != "" {
		query += " AND status = ?"
		args = append(args, filter.Status)
	}
	if filter.TemplateID != "" {
		query += " AND template_id = ?"
		args = append(args, filter.TemplateID)
	}
	query += " ORDER BY spawned_at DESC"

	rows, err := r.db.conn.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query workers: %w", err)
	}
	defer rows.Close()

	var out []*model.Worker
	for rows.Next() {
		w, err := scanWorker(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan worker: %w", err)
		}
		out = append(out, w)
	}
	return out, rows.Err()
}

// Delete removes a worker by ID.
func (r *WorkerRepo) Delete(id string) error {
	res, err := r.db.conn.Exec(`DELETE FROM workers WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete worker: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return fmt.Errorf("worker %s: %w", id, model.ErrNotFound)
	}
	return nil
}

func scanWorker(row rowScanner) (*model.Worker, error) {
	var w model.Worker
	var sessionID, currentWorkItemID, currentRole, repoExperience sql.NullString
	var terminatedAt sql.NullTime

	err := row.Scan(
		&w.ID, &w.TemplateID, &sessionID, &w.Status, &currentWorkItemID,
		&currentRole, &w.Budget.ContextWindowUsed, &w.Budget.ContextWindowLimit,
		&w.Budget.TokensUsed, &w.Budget.CostUSD, &w.Budget.ToolCallCount,
		&w.Budget.ErrorCount, &repoExperience, &w.SpawnedAt, &w.LastActiveAt,
		&terminatedAt,
	)
	if err != nil {
		return nil, err
	}

	w.SessionID = sessionID.String
	w.CurrentWorkItemID = currentWorkItemID.String
	w.CurrentRole = model.Role(currentRole.String)
	w.TerminatedAt = timePtr(terminatedAt)

	if err := decodeJSON(repoExperience.String, &w.RepositoryExperience); err != nil {
		return nil, fmt.Errorf("failed to decode repository_experience: %w", err)
	}

	return &w, nil
}
