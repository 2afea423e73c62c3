// Package catalog implements the Template Registry: CRUD over worker
// templates, built-in seeding, and capability lookups used by the
// Assignment Scorer (spec §4.2).
package catalog

import (
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/foremanhq/foreman/internal/model"
	"github.com/foremanhq/foreman/internal/store"
	"github.com/google/uuid"
)

// Catalog is the in-process front for the template repository. It keeps a
// read cache of the full template set, invalidated on every write, so
// capability lookups during assignment scoring avoid a database round
// trip on the hot path.
type Catalog struct {
	repo *store.TemplateRepo

	mu    sync.RWMutex
	cache []*model.Template
	fresh bool
}

// New wraps a template repository with the registry's business rules.
func New(repo *store.TemplateRepo) *Catalog {
	return &Catalog{repo: repo}
}

// Create validates and persists a new template, assigning it an ID.
func (c *Catalog) Create(t *model.Template) (*model.Template, error) {
	if err := t.Validate(); err != nil {
		return nil, err
	}

	if existing, err := c.repo.GetByName(t.Name); err == nil && existing != nil {
		return nil, fmt.Errorf("template %q: %w", t.Name, model.ErrDuplicateName)
	} else if err != nil && !errors.Is(err, model.ErrNotFound) {
		return nil, err
	}

	now := time.Now()
	t.ID = uuid.New().String()
	t.CreatedAt = now
	t.UpdatedAt = now

	if err := c.repo.Put(t); err != nil {
		return nil, err
	}
	c.invalidate()
	log.Printf("[CATALOG] created template %s (%s)", t.ID, t.Name)
	return t, nil
}

// Update validates and persists changes to an existing template. System
// templates may not be modified.
func (c *Catalog) Update(t *model.Template) (*model.Template, error) {
	existing, err := c.repo.Get(t.ID)
	if err != nil {
		return nil, err
	}
	if existing.IsSystemOwned() {
		return nil, fmt.Errorf("template %s: %w", t.ID, model.ErrSystemProtected)
	}
	if err := t.Validate(); err != nil {
		return nil, err
	}

	t.CreatedBy = existing.CreatedBy
	t.CreatedAt = existing.CreatedAt
	t.UpdatedAt = time.Now()

	if err := c.repo.Put(t); err != nil {
		return nil, err
	}
	c.invalidate()
	log.Printf("[CATALOG] updated template %s (%s)", t.ID, t.Name)
	return t, nil
}

// Delete removes a template. System templates may not be deleted.
func (c *Catalog) Delete(id string) error {
	existing, err := c.repo.Get(id)
	if err != nil {
		return err
	}
	if existing.IsSystemOwned() {
		return fmt.Errorf("template %s: %w", id, model.ErrSystemProtected)
	}
	if err := c.repo.Delete(id); err != nil {
		return err
	}
	c.invalidate()
	log.Printf("[CATALOG] deleted template %s (%s)", id, existing.Name)
	return nil
}

// Get retrieves a template by ID.
func (c *Catalog) Get(id string) (*model.Template, error) {
	return c.repo.Get(id)
}

// List returns every template, using the read cache when warm.
func (c *Catalog) List() ([]*model.Template, error) {
	c.mu.RLock()
	if c.fresh {
		out := make([]*model.Template, len(c.cache))
		copy(out, c.cache)
		c.mu.RUnlock()
		return out, nil
	}
	c.mu.RUnlock()

	all, err := c.repo.List()
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	c.cache = all
	c.fresh = true
	c.mu.Unlock()

	out := make([]*model.Template, len(all))
	copy(out, all)
	return out, nil
}

// FindForWorkItemType returns every template whose capability filter
// allows the given work item type.
func (c *Catalog) FindForWorkItemType(workItemType model.WorkItemType) ([]*model.Template, error) {
	all, err := c.List()
	if err != nil {
		return nil, err
	}

	var out []*model.Template
	for _, t := range all {
		if t.AllowsType(string(workItemType)) {
			out = append(out, t)
		}
	}
	return out, nil
}

// FindByRole returns every template whose default role matches.
func (c *Catalog) FindByRole(role model.Role) ([]*model.Template, error) {
	all, err := c.List()
	if err != nil {
		return nil, err
	}

	var out []*model.Template
	for _, t := range all {
		if t.DefaultRole == role {
			out = append(out, t)
		}
	}
	return out, nil
}

// GetBuiltIn returns every system-owned (immutable) template.
func (c *Catalog) GetBuiltIn() ([]*model.Template, error) {
	all, err := c.List()
	if err != nil {
		return nil, err
	}
	var out []*model.Template
	for _, t := range all {
		if t.IsSystemOwned() {
			out = append(out, t)
		}
	}
	return out, nil
}

// GetUserDefined returns every template created by userID.
func (c *Catalog) GetUserDefined(userID string) ([]*model.Template, error) {
	all, err := c.List()
	if err != nil {
		return nil, err
	}
	var out []*model.Template
	for _, t := range all {
		if t.CreatedBy == userID {
			out = append(out, t)
		}
	}
	return out, nil
}

// Clone duplicates an existing template under a new name and creator. The
// clone is never system-owned, even if the source is, so a cloned built-in
// can be freely edited or deleted.
func (c *Catalog) Clone(id, newName, creator string) (*model.Template, error) {
	src, err := c.repo.Get(id)
	if err != nil {
		return nil, err
	}

	clone := *src
	clone.ID = ""
	clone.Name = newName
	clone.CreatedBy = creator
	return c.Create(&clone)
}

func (c *Catalog) invalidate() {
	c.mu.Lock()
	c.fresh = false
	c.cache = nil
	c.mu.Unlock()
}

// InitializeBuiltIns seeds the four canonical system templates
// (refiner, implementer, tester, reviewer) if they don't already exist.
// It is idempotent: calling it against an already-seeded catalog is a
// no-op.
func (c *Catalog) InitializeBuiltIns() error {
	for _, t := range builtinTemplates() {
		if _, err := c.repo.GetByName(t.Name); err == nil {
			continue
		} else if !errors.Is(err, model.ErrNotFound) {
			return err
		}

		now := time.Now()
		t.ID = uuid.New().String()
		t.CreatedAt = now
		t.UpdatedAt = now
		if err := c.repo.Put(&t); err != nil {
			return fmt.Errorf("failed to seed built-in template %s: %w", t.Name, err)
		}
		log.Printf("[CATALOG] seeded built-in template %s", t.Name)
	}
	c.invalidate()
	return nil
}

func builtinTemplates() []model.Template {
	return []model.Template{
		{
			Name:                 "refiner",
			SystemPrompt:         "You refine raw issue descriptions into actionable, well-scoped work items with clear success criteria.",
			PermissionMode:       model.PermissionAskUser,
			MaxTurns:             20,
			AllowedWorkItemTypes: []string{"*"},
			DefaultRole:          model.RoleRefiner,
			CreatedBy:            model.SystemOwner,
		},
		{
			Name:                 "implementer",
			SystemPrompt:         "You implement features and bug fixes, writing tests alongside production code.",
			PermissionMode:       model.PermissionAcceptEdits,
			MaxTurns:             80,
			AllowedWorkItemTypes: []string{"feature", "bug", "task"},
			DefaultRole:          model.RoleImplementer,
			CreatedBy:            model.SystemOwner,
		},
		{
			Name:                 "tester",
			SystemPrompt:         "You write and run tests against a work item's success criteria and report gaps.",
			PermissionMode:       model.PermissionAcceptEdits,
			MaxTurns:             40,
			AllowedWorkItemTypes: []string{"feature", "bug"},
			DefaultRole:          model.RoleTester,
			CreatedBy:            model.SystemOwner,
		},
		{
			Name:                 "reviewer",
			SystemPrompt:         "You review completed work against its success criteria and either approve or request changes.",
			PermissionMode:       model.PermissionAskUser,
			MaxTurns:             20,
			AllowedWorkItemTypes: []string{"*"},
			DefaultRole:          model.RoleReviewer,
			CreatedBy:            model.SystemOwner,
		},
	}
}
