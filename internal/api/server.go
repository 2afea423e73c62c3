// Package api implements the REST surface described in spec §6 — template
// CRUD, execution/trace lookup, dashboard stats, and a container log
// endpoint — on top of a gorilla/mux router, grounded on the teacher's
// internal/server.Server and internal/handlers package layout.
package api

import (
	"net/http"
	"time"

	"github.com/foremanhq/foreman/internal/catalog"
	"github.com/foremanhq/foreman/internal/events"
	"github.com/foremanhq/foreman/internal/orchestrator"
	"github.com/foremanhq/foreman/internal/store"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
)

// LogSource is the narrow port the container logs endpoint reads through;
// the container manager itself is an out-of-scope external collaborator
// (spec §1).
type LogSource interface {
	Logs(containerID string) (string, error)
	StreamLogs(containerID string, w http.ResponseWriter) error
}

// Server wires the persistence ports, template catalog, event bus and
// orchestrator into an http.Handler.
type Server struct {
	router *mux.Router

	catalog    *catalog.Catalog
	workItems  *store.WorkItemRepo
	workers    *store.WorkerRepo
	executions *store.ExecutionRepo
	traces     *store.TraceRepo
	bus        *events.Bus
	orch       *orchestrator.Orchestrator
	logs       LogSource
	repos      RepoSource

	statsCache statsCache
	upgrader   websocket.Upgrader
}

// New builds the API server. logs and repos may both be nil, in which case
// the container log endpoints respond 404 and the dashboard's repository
// counts are all zero.
func New(
	cat *catalog.Catalog,
	workItems *store.WorkItemRepo,
	workers *store.WorkerRepo,
	executions *store.ExecutionRepo,
	traces *store.TraceRepo,
	bus *events.Bus,
	orch *orchestrator.Orchestrator,
	logs LogSource,
	repos RepoSource,
) *Server {
	s := &Server{
		router:     mux.NewRouter(),
		catalog:    cat,
		workItems:  workItems,
		workers:    workers,
		executions: executions,
		traces:     traces,
		bus:        bus,
		orch:       orch,
		logs:       logs,
		repos:      repos,
		statsCache: statsCache{ttl: 5 * time.Second},
		upgrader:   websocket.Upgrader{CheckOrigin: func(r *http.Request) bool { return true }},
	}
	s.registerRoutes()
	return s
}

// Router returns the http.Handler to mount on an *http.Server.
func (s *Server) Router() http.Handler {
	return s.router
}

func (s *Server) registerRoutes() {
	api := s.router.PathPrefix("/").Subrouter()

	api.HandleFunc("/templates", s.handleListTemplates).Methods("GET")
	api.HandleFunc("/templates", s.handleCreateTemplate).Methods("POST")
	api.HandleFunc("/templates/builtin", s.handleBuiltInTemplates).Methods("GET")
	api.HandleFunc("/templates/user-defined", s.handleUserDefinedTemplates).Methods("GET")
	api.HandleFunc("/templates/by-role", s.handleTemplatesByRole).Methods("GET")
	api.HandleFunc("/templates/for-work-item-type", s.handleTemplatesForType).Methods("GET")
	api.HandleFunc("/templates/{id}", s.handleGetTemplate).Methods("GET")
	api.HandleFunc("/templates/{id}", s.handleUpdateTemplate).Methods("PATCH")
	api.HandleFunc("/templates/{id}", s.handleDeleteTemplate).Methods("DELETE")
	api.HandleFunc("/templates/{id}/clone", s.handleCloneTemplate).Methods("POST")

	api.HandleFunc("/executions", s.handleListExecutions).Methods("GET")
	api.HandleFunc("/executions/{id}", s.handleGetExecution).Methods("GET")
	api.HandleFunc("/executions/{id}/traces", s.handleListExecutionTraces).Methods("GET")

	api.HandleFunc("/dashboard/stats", s.handleDashboardStats).Methods("GET")

	api.HandleFunc("/work-items", s.handleListWorkItems).Methods("GET")
	api.HandleFunc("/work-items", s.handleCreateWorkItem).Methods("POST")
	api.HandleFunc("/work-items/{id}", s.handleGetWorkItem).Methods("GET")

	api.HandleFunc("/containers/{id}/logs", s.handleContainerLogs).Methods("GET")
	api.HandleFunc("/containers/{id}/logs/stream", s.handleContainerLogsStream).Methods("GET")

	s.router.HandleFunc("/ws", s.handleWebSocket)
}
