package api

import (
	"log"
	"net/http"

	"github.com/gorilla/mux"
)

// handleContainerLogs serves a snapshot of a container's logs through the
// LogSource port; the container manager itself is an out-of-scope external
// collaborator (spec §1).
func (s *Server) handleContainerLogs(w http.ResponseWriter, r *http.Request) {
	if s.logs == nil {
		writeError(w, http.StatusNotFound, "no container log source is currently wired")
		return
	}

	id := mux.Vars(r)["id"]
	logs, err := s.logs.Logs(id)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(logs))
}

// handleContainerLogsStream proxies a live log tail through the LogSource
// port, flushing chunks as they arrive.
func (s *Server) handleContainerLogsStream(w http.ResponseWriter, r *http.Request) {
	if s.logs == nil {
		writeError(w, http.StatusNotFound, "no container log source is currently wired")
		return
	}

	id := mux.Vars(r)["id"]
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	if err := s.logs.StreamLogs(id, w); err != nil {
		log.Printf("[API] container log stream for %s ended: %v", id, err)
	}
}
