package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestDashboardStatsShape(t *testing.T) {
	s, _ := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/dashboard/stats", nil)
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	var stats dashboardStats
	if err := json.Unmarshal(rec.Body.Bytes(), &stats); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if stats.WorkItems.Backlog != 0 || stats.WorkItems.Done != 0 {
		t.Fatalf("expected empty store to report zero counts, got %+v", stats.WorkItems)
	}
}

func TestDashboardStatsCachesWithinTTL(t *testing.T) {
	s, _ := newTestServer(t)

	calls := 0
	compute := func() (dashboardStats, error) {
		calls++
		return dashboardStats{}, nil
	}

	if _, err := s.statsCache.get(compute); err != nil {
		t.Fatalf("first get failed: %v", err)
	}
	if _, err := s.statsCache.get(compute); err != nil {
		t.Fatalf("second get failed: %v", err)
	}
	if calls != 1 {
		t.Fatalf("expected compute to run once within the TTL window, ran %d times", calls)
	}
}
