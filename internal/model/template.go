// Package model defines the shared data model for the orchestrator: templates,
// work items, workers, executions and traces (spec §3).
package model

import (
	"fmt"
	"strings"
	"time"
)

// PermissionMode controls how much autonomy a spawned worker has.
type PermissionMode string

const (
	PermissionAskUser     PermissionMode = "ask-user"
	PermissionAcceptEdits PermissionMode = "accept-edits"
	PermissionBypass      PermissionMode = "bypass"
)

// Role is the functional specialization a template defaults to.
type Role string

const (
	RoleRefiner     Role = "refiner"
	RoleImplementer Role = "implementer"
	RoleTester      Role = "tester"
	RoleReviewer    Role = "reviewer"
)

// SystemOwner marks a template as a built-in, immutable blueprint.
const SystemOwner = "system"

// MCPKind selects how an MCP server descriptor is launched.
type MCPKind string

const (
	MCPStdio MCPKind = "stdio"
	MCPSSE   MCPKind = "sse"
)

// MCPDescriptor configures one MCP server a worker may attach to.
type MCPDescriptor struct {
	Name    string            `json:"name"`
	Kind    MCPKind           `json:"kind"`
	Command string            `json:"command,omitempty"`
	URL     string            `json:"url,omitempty"`
	Args    []string          `json:"args,omitempty"`
	Env     map[string]string `json:"env,omitempty"`
}

// Validate enforces the kind-conditional requirement from spec §3.
func (d MCPDescriptor) Validate() error {
	if d.Name == "" {
		return fmt.Errorf("%w: mcp descriptor name required", ErrValidation)
	}
	switch d.Kind {
	case MCPStdio:
		if d.Command == "" {
			return fmt.Errorf("%w: mcp %q: stdio descriptor requires a command", ErrValidation, d.Name)
		}
	case MCPSSE:
		if d.URL == "" {
			return fmt.Errorf("%w: mcp %q: sse descriptor requires a url", ErrValidation, d.Name)
		}
	default:
		return fmt.Errorf("%w: mcp %q: unknown kind %q", ErrValidation, d.Name, d.Kind)
	}
	return nil
}

// Template is a blueprint for a worker (spec §3).
type Template struct {
	ID   string `json:"id"`
	Name string `json:"name"`

	SystemPrompt     string          `json:"system_prompt"`
	PermissionMode   PermissionMode  `json:"permission_mode"`
	MaxTurns         int             `json:"max_turns"`
	BuiltinTools     []string        `json:"builtin_tools,omitempty"`
	MCPServers       []MCPDescriptor `json:"mcp_servers,omitempty"`

	AllowedWorkItemTypes []string `json:"allowed_work_item_types"`
	DefaultRole          Role     `json:"default_role,omitempty"`

	CreatedBy string    `json:"created_by"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// IsSystemOwned reports whether a template is a protected built-in.
func (t *Template) IsSystemOwned() bool {
	return t.CreatedBy == SystemOwner
}

// AllowsType reports whether the template's capability filter permits the given
// work item type, honoring the "*" wildcard from spec §3.
func (t *Template) AllowsType(workItemType string) bool {
	for _, allowed := range t.AllowedWorkItemTypes {
		if allowed == "*" || strings.EqualFold(allowed, workItemType) {
			return true
		}
	}
	return false
}

// Validate checks the invariants from spec §3: prompt length, max-turns range,
// non-empty capability filter, and MCP descriptor uniqueness/validity.
func (t *Template) Validate() error {
	if strings.TrimSpace(t.Name) == "" {
		return fmt.Errorf("%w: name is required", ErrValidation)
	}
	if len(t.SystemPrompt) < 20 {
		return fmt.Errorf("%w: system prompt must be at least 20 characters", ErrValidation)
	}
	switch t.PermissionMode {
	case PermissionAskUser, PermissionAcceptEdits, PermissionBypass:
	default:
		return fmt.Errorf("%w: unknown permission mode %q", ErrValidation, t.PermissionMode)
	}
	if t.MaxTurns < 1 || t.MaxTurns > 1000 {
		return fmt.Errorf("%w: max_turns must be between 1 and 1000", ErrValidation)
	}
	if len(t.AllowedWorkItemTypes) == 0 {
		return fmt.Errorf("%w: allowed_work_item_types must not be empty", ErrValidation)
	}
	if t.DefaultRole != "" {
		switch t.DefaultRole {
		case RoleRefiner, RoleImplementer, RoleTester, RoleReviewer:
		default:
			return fmt.Errorf("%w: unknown default role %q", ErrValidation, t.DefaultRole)
		}
	}

	seen := make(map[string]bool, len(t.MCPServers))
	for _, d := range t.MCPServers {
		if seen[d.Name] {
			return fmt.Errorf("%w: duplicate mcp server name %q", ErrValidation, d.Name)
		}
		seen[d.Name] = true
		if err := d.Validate(); err != nil {
			return err
		}
	}

	return nil
}
