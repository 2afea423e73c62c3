package limits

import (
	"errors"
	"strings"
	"testing"

	"github.com/foremanhq/foreman/internal/model"
)

func TestRegisterStartRespectsGlobalCap(t *testing.T) {
	l := New(Config{Global: 1})

	if err := l.RegisterStart("e1", "repo-1", "user-1"); err != nil {
		t.Fatalf("first RegisterStart failed: %v", err)
	}
	if err := l.RegisterStart("e2", "repo-2", "user-2"); !errors.Is(err, model.ErrConflict) {
		t.Fatalf("expected ErrConflict at global cap, got %v", err)
	}
}

func TestRegisterStartRespectsPerRepoCap(t *testing.T) {
	l := New(Config{PerRepo: 1})

	if err := l.RegisterStart("e1", "repo-1", ""); err != nil {
		t.Fatalf("first RegisterStart failed: %v", err)
	}
	if err := l.RegisterStart("e2", "repo-1", ""); !errors.Is(err, model.ErrConflict) {
		t.Fatalf("expected ErrConflict at per-repo cap, got %v", err)
	}
	if err := l.RegisterStart("e3", "repo-2", ""); err != nil {
		t.Fatalf("expected independent repo to have capacity: %v", err)
	}
}

func TestRegisterStartRespectsPerUserCap(t *testing.T) {
	l := New(Config{PerUser: 1})

	if err := l.RegisterStart("e1", "", "user-1"); err != nil {
		t.Fatalf("first RegisterStart failed: %v", err)
	}
	if err := l.RegisterStart("e2", "", "user-1"); !errors.Is(err, model.ErrConflict) {
		t.Fatalf("expected ErrConflict at per-user cap, got %v", err)
	}
}

func TestRegisterCompletionReleasesCapacity(t *testing.T) {
	l := New(Config{Global: 1})

	if err := l.RegisterStart("e1", "repo-1", "user-1"); err != nil {
		t.Fatalf("RegisterStart failed: %v", err)
	}
	l.RegisterCompletion("e1")

	if err := l.RegisterStart("e2", "repo-1", "user-1"); err != nil {
		t.Fatalf("expected capacity freed after completion: %v", err)
	}
}

func TestRegisterStartRejectsDuplicateExecution(t *testing.T) {
	l := New(Config{})

	if err := l.RegisterStart("e1", "repo-1", "user-1"); err != nil {
		t.Fatalf("RegisterStart failed: %v", err)
	}
	if err := l.RegisterStart("e1", "repo-1", "user-1"); !errors.Is(err, model.ErrConflict) {
		t.Fatalf("expected ErrConflict on duplicate registration, got %v", err)
	}
}

func TestRegisterCompletionIsIdempotent(t *testing.T) {
	l := New(Config{Global: 1})

	if err := l.RegisterStart("e1", "", ""); err != nil {
		t.Fatalf("RegisterStart failed: %v", err)
	}
	l.RegisterCompletion("e1")
	l.RegisterCompletion("e1")

	if got := l.GlobalCount(); got != 0 {
		t.Errorf("expected global count 0 after double completion, got %d", got)
	}
}

func TestZeroConfigMeansNoLimit(t *testing.T) {
	l := New(Config{})
	for i := 0; i < 50; i++ {
		if ok, reason := l.CanStartExecution("repo-1", "user-1"); !ok {
			t.Fatalf("expected unlimited capacity at iteration %d, got reason %q", i, reason)
		}
		l.RegisterStart(string(rune('a'+i%26))+"-exec", "repo-1", "user-1")
	}
}

func TestCanStartExecutionNamesExceededDimension(t *testing.T) {
	l := New(Config{PerRepo: 1})
	if err := l.RegisterStart("e1", "repo-1", ""); err != nil {
		t.Fatalf("RegisterStart failed: %v", err)
	}

	ok, reason := l.CanStartExecution("repo-1", "")
	if ok {
		t.Fatal("expected per-repo cap to deny a second start")
	}
	if !strings.Contains(reason, "Per-repository") {
		t.Errorf("expected reason to name the per-repository dimension, got %q", reason)
	}

	if err := l.RegisterStart("e2", "repo-1", ""); err == nil || !strings.Contains(err.Error(), "Per-repository") {
		t.Errorf("expected RegisterStart error to name the per-repository dimension, got %v", err)
	}
}
