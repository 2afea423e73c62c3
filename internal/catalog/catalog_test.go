package catalog

import (
	"errors"
	"path/filepath"
	"testing"

	"github.com/foremanhq/foreman/internal/model"
	"github.com/foremanhq/foreman/internal/store"
)

func newTestCatalog(t *testing.T) *Catalog {
	t.Helper()
	db, err := store.Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("failed to open test store: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return New(db.Templates())
}

func validTemplate(name string) *model.Template {
	return &model.Template{
		Name:                 name,
		SystemPrompt:         "A sufficiently long system prompt for validation purposes.",
		PermissionMode:       model.PermissionAcceptEdits,
		MaxTurns:             30,
		AllowedWorkItemTypes: []string{"feature"},
	}
}

func TestCreateAssignsIDAndRejectsDuplicateName(t *testing.T) {
	c := newTestCatalog(t)

	created, err := c.Create(validTemplate("custom"))
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if created.ID == "" {
		t.Error("expected generated ID")
	}

	_, err = c.Create(validTemplate("custom"))
	if !errors.Is(err, model.ErrDuplicateName) {
		t.Fatalf("expected ErrDuplicateName, got %v", err)
	}
}

func TestCreateRejectsInvalidTemplate(t *testing.T) {
	c := newTestCatalog(t)
	bad := validTemplate("bad")
	bad.MaxTurns = 0

	if _, err := c.Create(bad); !errors.Is(err, model.ErrValidation) {
		t.Fatalf("expected ErrValidation, got %v", err)
	}
}

func TestInitializeBuiltInsIsIdempotent(t *testing.T) {
	c := newTestCatalog(t)

	if err := c.InitializeBuiltIns(); err != nil {
		t.Fatalf("InitializeBuiltIns failed: %v", err)
	}
	first, err := c.List()
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(first) != 4 {
		t.Fatalf("expected 4 built-in templates, got %d", len(first))
	}

	if err := c.InitializeBuiltIns(); err != nil {
		t.Fatalf("second InitializeBuiltIns failed: %v", err)
	}
	second, err := c.List()
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(second) != 4 {
		t.Fatalf("expected InitializeBuiltIns to be idempotent, got %d templates", len(second))
	}
}

func TestDeleteRejectsSystemTemplate(t *testing.T) {
	c := newTestCatalog(t)
	if err := c.InitializeBuiltIns(); err != nil {
		t.Fatalf("InitializeBuiltIns failed: %v", err)
	}
	all, _ := c.List()

	if err := c.Delete(all[0].ID); !errors.Is(err, model.ErrSystemProtected) {
		t.Fatalf("expected ErrSystemProtected, got %v", err)
	}
}

func TestFindForWorkItemTypeHonorsWildcard(t *testing.T) {
	c := newTestCatalog(t)
	if err := c.InitializeBuiltIns(); err != nil {
		t.Fatalf("InitializeBuiltIns failed: %v", err)
	}

	matches, err := c.FindForWorkItemType(model.TypeResearch)
	if err != nil {
		t.Fatalf("FindForWorkItemType failed: %v", err)
	}
	found := false
	for _, m := range matches {
		if m.Name == "refiner" {
			found = true
		}
	}
	if !found {
		t.Error("expected wildcard refiner template to match research items")
	}
}

func TestGetBuiltInAndUserDefined(t *testing.T) {
	c := newTestCatalog(t)
	if err := c.InitializeBuiltIns(); err != nil {
		t.Fatalf("InitializeBuiltIns failed: %v", err)
	}
	custom := validTemplate("custom")
	custom.CreatedBy = "alice"
	if _, err := c.Create(custom); err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	builtIn, err := c.GetBuiltIn()
	if err != nil {
		t.Fatalf("GetBuiltIn failed: %v", err)
	}
	if len(builtIn) != 4 {
		t.Fatalf("expected 4 built-in templates, got %d", len(builtIn))
	}

	userDefined, err := c.GetUserDefined("alice")
	if err != nil {
		t.Fatalf("GetUserDefined failed: %v", err)
	}
	if len(userDefined) != 1 || userDefined[0].Name != "custom" {
		t.Fatalf("expected alice's one custom template, got %+v", userDefined)
	}
}

func TestCloneDuplicatesUnderNewNameAndCreator(t *testing.T) {
	c := newTestCatalog(t)
	if err := c.InitializeBuiltIns(); err != nil {
		t.Fatalf("InitializeBuiltIns failed: %v", err)
	}
	all, _ := c.List()
	builtin := all[0]

	clone, err := c.Clone(builtin.ID, "my-"+builtin.Name, "bob")
	if err != nil {
		t.Fatalf("Clone failed: %v", err)
	}
	if clone.ID == builtin.ID {
		t.Error("expected clone to have a new ID")
	}
	if clone.IsSystemOwned() {
		t.Error("expected clone to not be system-owned")
	}
	if err := c.Delete(clone.ID); err != nil {
		t.Errorf("expected clone to be deletable, got %v", err)
	}
}

func TestListCacheInvalidatesOnWrite(t *testing.T) {
	c := newTestCatalog(t)
	if _, err := c.List(); err != nil {
		t.Fatalf("List failed: %v", err)
	}

	if _, err := c.Create(validTemplate("fresh")); err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	after, err := c.List()
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(after) != 1 {
		t.Fatalf("expected cache to reflect new write, got %d templates", len(after))
	}
}
