package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/foremanhq/foreman/internal/model"
	"github.com/foremanhq/foreman/internal/store"
	"github.com/gorilla/mux"
)

// executionListResponse is the paginated envelope spec §6 describes for
// GET /executions: {items, total, hasMore}.
type executionListResponse struct {
	Items   []*model.Execution `json:"items"`
	Total   int                `json:"total"`
	HasMore bool               `json:"hasMore"`
}

func (s *Server) handleListExecutions(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := store.ExecutionFilter{
		WorkItemID: q.Get("workItemId"),
		WorkerID:   q.Get("workerId"),
		Status:     model.ExecutionStatus(q.Get("status")),
		Limit:      atoiDefault(q.Get("limit"), 50),
		Offset:     atoiDefault(q.Get("offset"), 0),
	}
	if df := q.Get("dateFrom"); df != "" {
		if t, err := time.Parse(time.RFC3339, df); err == nil {
			filter.DateFrom = t
		}
	}
	if dt := q.Get("dateTo"); dt != "" {
		if t, err := time.Parse(time.RFC3339, dt); err == nil {
			filter.DateTo = t
		}
	}

	items, err := s.executions.List(filter)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	total, err := s.executions.Count(filter)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, executionListResponse{
		Items:   items,
		Total:   total,
		HasMore: filter.Offset+len(items) < total,
	})
}

// executionDetail embeds the execution's traces, matching spec §6's
// "detail with embedded traces".
type executionDetail struct {
	*model.Execution
	Traces []*model.Trace `json:"traces"`
}

func (s *Server) handleGetExecution(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	exec, err := s.executions.Get(id)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	traces, err := s.traces.List(store.TraceFilter{WorkItemID: exec.WorkItemID})
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, executionDetail{Execution: exec, Traces: traces})
}

func (s *Server) handleListExecutionTraces(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	exec, err := s.executions.Get(id)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	filter := store.TraceFilter{
		WorkItemID: exec.WorkItemID,
		EventType:  model.TraceEventType(r.URL.Query().Get("eventType")),
	}
	traces, err := s.traces.List(filter)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, traces)
}

func atoiDefault(s string, def int) int {
	if s == "" {
		return def
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < 0 {
		return def
	}
	return n
}
