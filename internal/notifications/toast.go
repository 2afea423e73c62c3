// Package notifications sends an OS-level desktop toast when a work item
// exhausts its retries, grounded on the teacher's ToastNotifier (spec
// §4.9 "escalate" hook, SPEC_FULL.md supplemented feature #2).
package notifications

import (
	"fmt"
	"runtime"

	"github.com/go-toast/toast"
)

// EscalationNotifier shows a Windows toast when a work item is escalated
// after its retries are exhausted. On non-Windows platforms ShowEscalation
// is a no-op that reports an error, matching the teacher's
// platform-gated behavior.
type EscalationNotifier struct {
	appID        string
	dashboardURL string
}

// NewEscalationNotifier builds a notifier for appID, defaulting to
// "foreman" if empty.
func NewEscalationNotifier(appID, dashboardURL string) *EscalationNotifier {
	if appID == "" {
		appID = "foreman"
	}
	if dashboardURL == "" {
		dashboardURL = "http://localhost:8080"
	}
	return &EscalationNotifier{appID: appID, dashboardURL: dashboardURL}
}

// ShowEscalation raises a high-priority toast naming the work item and the
// reason it was escalated.
func (n *EscalationNotifier) ShowEscalation(workItemID, reason string) error {
	if runtime.GOOS != "windows" {
		return fmt.Errorf("toast notifications only supported on Windows")
	}

	notification := toast.Notification{
		AppID:   n.appID,
		Title:   "Work item escalated",
		Message: fmt.Sprintf("%s: %s", workItemID, reason),
		Audio:   toast.IM,
		Actions: []toast.Action{
			{Type: "protocol", Label: "Open Dashboard", Arguments: n.dashboardURL},
		},
	}
	return notification.Push()
}

// IsSupported reports whether this platform can display toasts.
func (n *EscalationNotifier) IsSupported() bool {
	return runtime.GOOS == "windows"
}
