package notifications

import (
	"runtime"
	"testing"
)

func TestNewEscalationNotifierDefaults(t *testing.T) {
	n := NewEscalationNotifier("", "")
	if n.appID != "foreman" {
		t.Errorf("expected default appID 'foreman', got %q", n.appID)
	}
	if n.dashboardURL != "http://localhost:8080" {
		t.Errorf("expected default dashboardURL, got %q", n.dashboardURL)
	}
}

func TestNewEscalationNotifierCustom(t *testing.T) {
	n := NewEscalationNotifier("myapp", "http://example.com")
	if n.appID != "myapp" || n.dashboardURL != "http://example.com" {
		t.Errorf("expected custom fields to stick, got %+v", n)
	}
}

func TestEscalationNotifierIsSupported(t *testing.T) {
	n := NewEscalationNotifier("", "")
	if n.IsSupported() != (runtime.GOOS == "windows") {
		t.Errorf("IsSupported() = %v, want %v", n.IsSupported(), runtime.GOOS == "windows")
	}
}

func TestShowEscalationNonWindowsErrors(t *testing.T) {
	n := NewEscalationNotifier("", "")
	err := n.ShowEscalation("wi-1", "retries exhausted")
	if runtime.GOOS != "windows" && err == nil {
		t.Error("expected error on non-Windows platform")
	}
}
