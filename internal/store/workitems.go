package store

import (
	"database/sql"
	"fmt"

	"github.com/foremanhq/foreman/internal/model"
)

// WorkItemRepo persists WorkItem entities.
type WorkItemRepo struct {
	db *DB
}

// WorkItems returns the work item repository bound to this database.
func (d *DB) WorkItems() *WorkItemRepo {
	return &WorkItemRepo{db: d}
}

// WorkItemFilter narrows List results; zero-valued fields are ignored.
type WorkItemFilter struct {
	Status       model.WorkItemStatus
	Type         model.WorkItemType
	RepositoryID string
	ParentID     string
	Limit        int
}

// Put inserts or updates a work item (upsert keyed by id).
func (r *WorkItemRepo) Put(w *model.WorkItem) error {
	successCriteria, err := encodeJSON(w.SuccessCriteria)
	if err != nil {
		return fmt.Errorf("failed to encode success_criteria: %w", err)
	}
	linkedFiles, err := encodeJSON(w.LinkedFiles)
	if err != nil {
		return fmt.Errorf("failed to encode linked_files: %w", err)
	}
	childIDs, err := encodeJSON(w.ChildIDs)
	if err != nil {
		return fmt.Errorf("failed to encode child_ids: %w", err)
	}
	blockedBy, err := encodeJSON(w.BlockedBy)
	if err != nil {
		return fmt.Errorf("failed to encode blocked_by: %w", err)
	}
	assignedAgents, err := encodeJSON(w.AssignedAgents)
	if err != nil {
		return fmt.Errorf("failed to encode assigned_agents: %w", err)
	}
	requiresApproval, err := encodeJSON(w.RequiresApproval)
	if err != nil {
		return fmt.Errorf("failed to encode requires_approval: %w", err)
	}

	return r.db.withTx(func(tx *sql.Tx) error {
		_, err := tx.Exec(`
			INSERT INTO work_items
				(id, title, type, status, description, success_criteria, linked_files,
				 repository_id, external_issue_id, external_issue_url, parent_id,
				 child_ids, blocked_by, assigned_agents, requires_approval, created_by,
				 retry_count, created_at, updated_at, started_at, completed_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(id) DO UPDATE SET
				title = excluded.title,
				type = excluded.type,
				status = excluded.status,
				description = excluded.description,
				success_criteria = excluded.success_criteria,
				linked_files = excluded.linked_files,
				repository_id = excluded.repository_id,
				parent_id = excluded.parent_id,
				child_ids = excluded.child_ids,
				blocked_by = excluded.blocked_by,
				assigned_agents = excluded.assigned_agents,
				requires_approval = excluded.requires_approval,
				retry_count = excluded.retry_count,
				updated_at = excluded.updated_at,
				started_at = excluded.started_at,
				completed_at = excluded.completed_at`,
			w.ID, w.Title, w.Type, w.Status, nullString(w.Description),
			nullString(successCriteria), nullString(linkedFiles),
			nullString(w.RepositoryID), nullString(w.ExternalIssueID),
			nullString(w.ExternalIssueURL), nullString(w.ParentID),
			nullString(childIDs), nullString(blockedBy), nullString(assignedAgents),
			nullString(requiresApproval), nullString(w.CreatedBy), w.RetryCount,
			w.CreatedAt, w.UpdatedAt, nullTime(w.StartedAt), nullTime(w.CompletedAt),
		)
		if err != nil {
			return fmt.Errorf("failed to upsert work item %s: %w", w.ID, err)
		}
		return nil
	})
}

const workItemColumns = `
	id, title, type, status, description, success_criteria, linked_files,
	repository_id, external_issue_id, external_issue_url, parent_id,
	child_ids, blocked_by, assigned_agents, requires_approval, created_by,
	retry_count, created_at, updated_at, started_at, completed_at`

// Get retrieves a work item by ID.
func (r *WorkItemRepo) Get(id string) (*model.WorkItem, error) {
	row := r.db.conn.QueryRow(`SELECT `+workItemColumns+` FROM work_items WHERE id = ?`, id)
	w, err := scanWorkItem(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("work item %s: %w", id, model.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get work item: %w", err)
	}
	return w, nil
}

// List returns work items matching filter, newest first.
func (r *WorkItemRepo) List(filter WorkItemFilter) ([]*model.WorkItem, error) {
	query := `SELECT ` + workItemColumns + ` FROM work_items WHERE 1=1`
	var args []interface{}

	if filter.Status != "" {
		query += " AND status = ?"
		args = append(args, filter.Status)
	}
	if filter.Type != "" {
		query += " AND type = ?"
		args = append(args, filter.Type)
	}
	if filter.RepositoryID != "" {
		query += " AND repository_id = ?"
		args = append(args, filter.RepositoryID)
	}
	if filter.ParentID != "" {
		query += " AND parent_id = ?"
		args = append(args, filter.ParentID)
	}

	query += " ORDER BY created_at DESC"
	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
	}

	rows, err := r.db.conn.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query work items: %w", err)
	}
	defer rows.Close()

	var out []*model.WorkItem
	for rows.Next() {
		w, err := scanWorkItem(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan work item: %w", err)
		}
		out = append(out, w)
	}
	return out, rows.Err()
}

// Delete removes a work item, refusing if it still has children (spec §3).
func (r *WorkItemRepo) Delete(id string) error {
	item, err := r.Get(id)
	if err != nil {
		return err
	}
	if len(item.ChildIDs) > 0 {
		return fmt.Errorf("work item %s has %d children: %w", id, len(item.ChildIDs), model.ErrConflict)
	}
	if _, err := r.db.conn.Exec(`DELETE FROM work_items WHERE id = ?`, id); err != nil {
		return fmt.Errorf("failed to delete work item: %w", err)
	}
	return nil
}

func scanWorkItem(row rowScanner) (*model.WorkItem, error) {
	var w model.WorkItem
	var description, successCriteria, linkedFiles, repositoryID, externalIssueID,
		externalIssueURL, parentID, childIDs, blockedBy, assignedAgents,
		requiresApproval, createdBy sql.NullString
	var startedAt, completedAt sql.NullTime

	err := row.Scan(
		&w.ID, &w.Title, &w.Type, &w.Status, &description, &successCriteria,
		&linkedFiles, &repositoryID, &externalIssueID, &externalIssueURL,
		&parentID, &childIDs, &blockedBy, &assignedAgents, &requiresApproval,
		&createdBy, &w.RetryCount, &w.CreatedAt, &w.UpdatedAt, &startedAt, &completedAt,
	)
	if err != nil {
		return nil, err
	}

	w.Description = description.String
	w.RepositoryID = repositoryID.String
	w.ExternalIssueID = externalIssueID.String
	w.ExternalIssueURL = externalIssueURL.String
	w.ParentID = parentID.String
	w.CreatedBy = createdBy.String
	w.StartedAt = timePtr(startedAt)
	w.CompletedAt = timePtr(completedAt)

	if err := decodeJSON(successCriteria.String, &w.SuccessCriteria); err != nil {
		return nil, fmt.Errorf("failed to decode success_criteria: %w", err)
	}
	if err := decodeJSON(linkedFiles.String, &w.LinkedFiles); err != nil {
		return nil, fmt.Errorf("failed to decode linked_files: %w", err)
	}
	if err := decodeJSON(childIDs.String, &w.ChildIDs); err != nil {
		return nil, fmt.Errorf("failed to decode child_ids: %w", err)
	}
	if err := decodeJSON(blockedBy.String, &w.BlockedBy); err != nil {
		return nil, fmt.Errorf("failed to decode blocked_by: %w", err)
	}
	if err := decodeJSON(assignedAgents.String, &w.AssignedAgents); err != nil {
		return nil, fmt.Errorf("failed to decode assigned_agents: %w", err)
	}
	if err := decodeJSON(requiresApproval.String, &w.RequiresApproval); err != nil {
		return nil, fmt.Errorf("failed to decode requires_approval: %w", err)
	}

	return &w, nil
}
