package store

import (
	"database/sql"
	"fmt"

	"github.com/foremanhq/foreman/internal/model"
)

// TraceRepo persists append-only Trace entries.
type TraceRepo struct {
	db *DB
}

// Traces returns the trace repository bound to this database.
func (d *DB) Traces() *TraceRepo {
	return &TraceRepo{db: d}
}

// TraceFilter narrows List results; zero-valued fields are ignored.
type TraceFilter struct {
	WorkItemID string
	WorkerID   string
	EventType  model.TraceEventType
	Limit      int
}

// Append inserts a new trace entry. Traces are immutable once written.
func (r *TraceRepo) Append(t *model.Trace) error {
	data, err := encodeJSON(t.Data)
	if err != nil {
		return fmt.Errorf("failed to encode trace data: %w", err)
	}

	_, err = r.db.conn.Exec(`
		INSERT INTO traces (id, worker_id, work_item_id, event_type, data, timestamp)
		VALUES (?, ?, ?, ?, ?, ?)`,
		t.ID, nullString(t.WorkerID), nullString(t.WorkItemID), t.EventType,
		nullString(data), t.Timestamp,
	)
	if err != nil {
		return fmt.Errorf("failed to insert trace %s: %w", t.ID, err)
	}
	return nil
}

// List returns trace entries matching filter, oldest first so callers can
// replay a work item's history in order.
func (r *TraceRepo) List(filter TraceFilter) ([]*model.Trace, error) {
	query := `SELECT id, worker_id, work_item_id, event_type, data, timestamp FROM traces WHERE 1=1`
	var args []interface{}

	if filter.WorkItemID != "" {
		query += " AND work_item_id = ?"
		args = append(args, filter.WorkItemID)
	}
	if filter.WorkerID != "" {
		query += " AND worker_id = ?"
		args = append(args, filter.WorkerID)
	}
	if filter.EventType != "" {
		query += " AND event_type = ?"
		args = append(args, filter.EventType)
	}
	query += " ORDER BY timestamp ASC"
	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
	}

	rows, err := r.db.conn.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query traces: %w", err)
	}
	defer rows.Close()

	var out []*model.Trace
	for rows.Next() {
		var t model.Trace
		var workerID, workItemID, data sql.NullString
		if err := rows.Scan(&t.ID, &workerID, &workItemID, &t.EventType, &data, &t.Timestamp); err != nil {
			return nil, fmt.Errorf("failed to scan trace: %w", err)
		}
		t.WorkerID = workerID.String
		t.WorkItemID = workItemID.String
		if err := decodeJSON(data.String, &t.Data); err != nil {
			return nil, fmt.Errorf("failed to decode trace data: %w", err)
		}
		out = append(out, &t)
	}
	return out, rows.Err()
}
