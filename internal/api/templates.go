package api

import (
	"encoding/json"
	"net/http"

	"github.com/foremanhq/foreman/internal/model"
	"github.com/gorilla/mux"
)

func (s *Server) handleListTemplates(w http.ResponseWriter, r *http.Request) {
	templates, err := s.catalog.List()
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, templates)
}

func (s *Server) handleCreateTemplate(w http.ResponseWriter, r *http.Request) {
	var t model.Template
	if err := json.NewDecoder(r.Body).Decode(&t); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	created, err := s.catalog.Create(&t)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

func (s *Server) handleBuiltInTemplates(w http.ResponseWriter, r *http.Request) {
	templates, err := s.catalog.GetBuiltIn()
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, templates)
}

func (s *Server) handleUserDefinedTemplates(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("userId")
	templates, err := s.catalog.GetUserDefined(userID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, templates)
}

func (s *Server) handleTemplatesByRole(w http.ResponseWriter, r *http.Request) {
	role := model.Role(r.URL.Query().Get("role"))
	templates, err := s.catalog.FindByRole(role)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, templates)
}

func (s *Server) handleTemplatesForType(w http.ResponseWriter, r *http.Request) {
	itemType := model.WorkItemType(r.URL.Query().Get("type"))
	templates, err := s.catalog.FindForWorkItemType(itemType)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, templates)
}

func (s *Server) handleGetTemplate(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	t, err := s.catalog.Get(id)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, t)
}

func (s *Server) handleUpdateTemplate(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	var t model.Template
	if err := json.NewDecoder(r.Body).Decode(&t); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	t.ID = id

	updated, err := s.catalog.Update(&t)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

func (s *Server) handleDeleteTemplate(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if err := s.catalog.Delete(id); err != nil {
		writeDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleCloneTemplate(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	var req struct {
		NewName string `json:"newName"`
		Creator string `json:"creator"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	clone, err := s.catalog.Clone(id, req.NewName, req.Creator)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, clone)
}
