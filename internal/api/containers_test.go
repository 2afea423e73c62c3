package api

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestContainerLogsWithoutSourceIs404(t *testing.T) {
	s, _ := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/containers/abc/logs", nil)
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 when no log source is wired, got %d", rec.Code)
	}
}

type fakeLogSource struct{ body string }

func (f fakeLogSource) Logs(containerID string) (string, error) { return f.body, nil }
func (f fakeLogSource) StreamLogs(containerID string, w http.ResponseWriter) error {
	w.Write([]byte(f.body))
	return nil
}

func TestContainerLogsReturnsSourceOutput(t *testing.T) {
	s, _ := newTestServer(t)
	s.logs = fakeLogSource{body: "hello from container"}

	req := httptest.NewRequest(http.MethodGet, "/containers/abc/logs", nil)
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if rec.Body.String() != "hello from container" {
		t.Fatalf("unexpected body: %s", rec.Body.String())
	}
}
