package store

import (
	"database/sql"
	"fmt"

	"github.com/foremanhq/foreman/internal/model"
)

// TemplateRepo persists Template entities.
type TemplateRepo struct {
	db *DB
}

// Templates returns the template repository bound to this database.
func (d *DB) Templates() *TemplateRepo {
	return &TemplateRepo{db: d}
}

// Put inserts or updates a template (upsert keyed by id).
func (r *TemplateRepo) Put(t *model.Template) error {
	builtinTools, err := encodeJSON(t.BuiltinTools)
	if err != nil {
		return fmt.Errorf("failed to encode builtin_tools: %w", err)
	}
	mcpServers, err := encodeJSON(t.MCPServers)
	if err != nil {
		return fmt.Errorf("failed to encode mcp_servers: %w", err)
	}
	allowedTypes, err := encodeJSON(t.AllowedWorkItemTypes)
	if err != nil {
		return fmt.Errorf("failed to encode allowed_work_item_types: %w", err)
	}

	return r.db.withTx(func(tx *sql.Tx) error {
		_, err := tx.Exec(`
			INSERT INTO templates
				(id, name, system_prompt, permission_mode, max_turns, builtin_tools,
				 mcp_servers, allowed_work_item_types, default_role, created_by,
				 created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(id) DO UPDATE SET
				name = excluded.name,
				system_prompt = excluded.system_prompt,
				permission_mode = excluded.permission_mode,
				max_turns = excluded.max_turns,
				builtin_tools = excluded.builtin_tools,
				mcp_servers = excluded.mcp_servers,
				allowed_work_item_types = excluded.allowed_work_item_types,
				default_role = excluded.default_role,
				updated_at = excluded.updated_at`,
			t.ID, t.Name, t.SystemPrompt, t.PermissionMode, t.MaxTurns,
			nullString(builtinTools), nullString(mcpServers), allowedTypes,
			nullString(string(t.DefaultRole)), t.CreatedBy, t.CreatedAt, t.UpdatedAt,
		)
		if err != nil {
			return fmt.Errorf("failed to upsert template %s: %w", t.ID, err)
		}
		return nil
	})
}

// Get retrieves a template by ID.
func (r *TemplateRepo) Get(id string) (*model.Template, error) {
	row := r.db.conn.QueryRow(`
		SELECT id, name, system_prompt, permission_mode, max_turns, builtin_tools,
		       mcp_servers, allowed_work_item_types, default_role, created_by,
		       created_at, updated_at
		FROM templates WHERE id = ?`, id)
	t, err := scanTemplate(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("template %s: %w", id, model.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get template: %w", err)
	}
	return t, nil
}

// GetByName retrieves a template by its unique name.
func (r *TemplateRepo) GetByName(name string) (*model.Template, error) {
	row := r.db.conn.QueryRow(`
		SELECT id, name, system_prompt, permission_mode, max_turns, builtin_tools,
		       mcp_servers, allowed_work_item_types, default_role, created_by,
		       created_at, updated_at
		FROM templates WHERE name = ?`, name)
	t, err := scanTemplate(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("template %q: %w", name, model.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get template by name: %w", err)
	}
	return t, nil
}

// List returns all templates ordered by name.
func (r *TemplateRepo) List() ([]*model.Template, error) {
	rows, err := r.db.conn.Query(`
		SELECT id, name, system_prompt, permission_mode, max_turns, builtin_tools,
		       mcp_servers, allowed_work_item_types, default_role, created_by,
		       created_at, updated_at
		FROM templates ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("failed to query templates: %w", err)
	}
	defer rows.Close()

	var out []*model.Template
	for rows.Next() {
		t, err := scanTemplate(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan template: %w", err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// Delete removes a template by ID.
func (r *TemplateRepo) Delete(id string) error {
	res, err := r.db.conn.Exec(`DELETE FROM templates WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete template: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return fmt.Errorf("template %s: %w", id, model.ErrNotFound)
	}
	return nil
}

// rowScanner is satisfied by both *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanTemplate(row rowScanner) (*model.Template, error) {
	var t model.Template
	var builtinTools, mcpServers, allowedTypes, defaultRole sql.NullString

	err := row.Scan(
		&t.ID, &t.Name, &t.SystemPrompt, &t.PermissionMode, &t.MaxTurns,
		&builtinTools, &mcpServers, &allowedTypes, &defaultRole, &t.CreatedBy,
		&t.CreatedAt, &t.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if err := decodeJSON(builtinTools.String, &t.BuiltinTools); err != nil {
		return nil, fmt.Errorf("failed to decode builtin_tools: %w", err)
	}
	if err := decodeJSON(mcpServers.String, &t.MCPServers); err != nil {
		return nil, fmt.Errorf("failed to decode mcp_servers: %w", err)
	}
	if err := decodeJSON(allowedTypes.String, &t.AllowedWorkItemTypes); err != nil {
		return nil, fmt.Errorf("failed to decode allowed_work_item_types: %w", err)
	}
	t.DefaultRole = model.Role(defaultRole.String)

	return &t, nil
}
