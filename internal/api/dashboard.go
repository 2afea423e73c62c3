package api

import (
	"net/http"
	"sync"
	"time"

	"github.com/foremanhq/foreman/internal/model"
	"github.com/foremanhq/foreman/internal/store"
)

// RepoSource is the narrow port the dashboard reads repository sync counts
// through; the code-workspace cloner and source-control wrapper that
// actually perform syncing are out-of-scope external collaborators (spec
// §1). Stats may be called concurrently.
type RepoSource interface {
	Stats() (RepoStats, error)
}

// RepoStats buckets known repositories by sync state.
type RepoStats struct {
	Pending int `json:"pending"`
	Syncing int `json:"syncing"`
	Synced  int `json:"synced"`
	Error   int `json:"error"`
}

type agentStats struct {
	Idle       int `json:"idle"`
	Working    int `json:"working"`
	Paused     int `json:"paused"`
	Error      int `json:"error"`
	Terminated int `json:"terminated"`
}

type workItemStats struct {
	Backlog    int `json:"backlog"`
	Ready      int `json:"ready"`
	InProgress int `json:"in_progress"`
	Review     int `json:"review"`
	Done       int `json:"done"`
}

type dashboardStats struct {
	Repositories      RepoStats          `json:"repositories"`
	Agents            agentStats         `json:"agents"`
	WorkItems         workItemStats      `json:"workItems"`
	RecentCompletions []*model.WorkItem  `json:"recentCompletions"`
	RecentExecutions  []*model.Execution `json:"recentExecutions"`
}

// statsCache holds the dashboard's 5-second TTL cache (spec §6), avoiding
// a full repository scan on every poll from the UI.
type statsCache struct {
	ttl time.Duration

	mu      sync.Mutex
	value   dashboardStats
	expires time.Time
}

func (c *statsCache) get(compute func() (dashboardStats, error)) (dashboardStats, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if time.Now().Before(c.expires) {
		return c.value, nil
	}

	v, err := compute()
	if err != nil {
		return dashboardStats{}, err
	}
	c.value = v
	c.expires = time.Now().Add(c.ttl)
	return v, nil
}

func (s *Server) handleDashboardStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.statsCache.get(s.computeDashboardStats)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (s *Server) computeDashboardStats() (dashboardStats, error) {
	var stats dashboardStats

	if s.repos != nil {
		repoStats, err := s.repos.Stats()
		if err != nil {
			return dashboardStats{}, err
		}
		stats.Repositories = repoStats
	}

	workers, err := s.workers.List(store.WorkerFilter{})
	if err != nil {
		return dashboardStats{}, err
	}
	for _, worker := range workers {
		switch worker.Status {
		case model.WorkerIdle:
			stats.Agents.Idle++
		case model.WorkerWorking:
			stats.Agents.Working++
		case model.WorkerPaused:
			stats.Agents.Paused++
		case model.WorkerError:
			stats.Agents.Error++
		case model.WorkerTerminated:
			stats.Agents.Terminated++
		}
	}

	for _, status := range []model.WorkItemStatus{
		model.StatusBacklog, model.StatusReady, model.StatusInProgress,
		model.StatusReview, model.StatusDone,
	} {
		items, err := s.workItems.List(store.WorkItemFilter{Status: status})
		if err != nil {
			return dashboardStats{}, err
		}
		switch status {
		case model.StatusBacklog:
			stats.WorkItems.Backlog = len(items)
		case model.StatusReady:
			stats.WorkItems.Ready = len(items)
		case model.StatusInProgress:
			stats.WorkItems.InProgress = len(items)
		case model.StatusReview:
			stats.WorkItems.Review = len(items)
		case model.StatusDone:
			stats.WorkItems.Done = len(items)
			stats.RecentCompletions = items
			if len(stats.RecentCompletions) > 10 {
				stats.RecentCompletions = stats.RecentCompletions[:10]
			}
		}
	}

	recentExecs, err := s.executions.List(store.ExecutionFilter{Limit: 10})
	if err != nil {
		return dashboardStats{}, err
	}
	stats.RecentExecutions = recentExecs

	return stats, nil
}
