package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/foremanhq/foreman/internal/model"
)

func TestCreateAndGetWorkItem(t *testing.T) {
	s, _ := newTestServer(t)

	body, _ := json.Marshal(map[string]string{
		"title": "Fix the thing",
		"type":  string(model.TypeBug),
	})
	req := httptest.NewRequest(http.MethodPost, "/work-items", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}

	var created model.WorkItem
	if err := json.Unmarshal(rec.Body.Bytes(), &created); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if created.ID == "" {
		t.Fatal("expected generated ID")
	}
	if created.Status != model.StatusBacklog {
		t.Fatalf("expected default status backlog, got %s", created.Status)
	}

	getReq := httptest.NewRequest(http.MethodGet, "/work-items/"+created.ID, nil)
	getRec := httptest.NewRecorder()
	s.Router().ServeHTTP(getRec, getReq)
	if getRec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", getRec.Code, getRec.Body.String())
	}
}

func TestCreateWorkItemRejectsMissingTitle(t *testing.T) {
	s, _ := newTestServer(t)

	body, _ := json.Marshal(map[string]string{"type": string(model.TypeTask)})
	req := httptest.NewRequest(http.MethodPost, "/work-items", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d: %s", rec.Code, rec.Body.String())
	}
}
