package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/foremanhq/foreman/internal/model"
	"github.com/foremanhq/foreman/internal/store"
	"github.com/google/uuid"
	"github.com/gorilla/mux"
)

func (s *Server) handleListWorkItems(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := store.WorkItemFilter{
		Status:       model.WorkItemStatus(q.Get("status")),
		Type:         model.WorkItemType(q.Get("type")),
		RepositoryID: q.Get("repositoryId"),
		ParentID:     q.Get("parentId"),
		Limit:        atoiDefault(q.Get("limit"), 0),
	}

	items, err := s.workItems.List(filter)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, items)
}

func (s *Server) handleCreateWorkItem(w http.ResponseWriter, r *http.Request) {
	var item model.WorkItem
	if err := json.NewDecoder(r.Body).Decode(&item); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	if err := item.Validate(); err != nil {
		writeDomainError(w, err)
		return
	}

	item.ID = uuid.New().String()
	if item.Status == "" {
		item.Status = model.StatusBacklog
	}
	now := time.Now()
	item.CreatedAt = now
	item.UpdatedAt = now

	if err := s.workItems.Put(&item); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, &item)
}

func (s *Server) handleGetWorkItem(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	item, err := s.workItems.Get(id)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, item)
}
