// Package assignment implements the Assignment Scorer (C6): ranking idle
// workers against a ready work item by capability fit and weighted
// signals (spec §4.6).
package assignment

import (
	"sort"

	"github.com/foremanhq/foreman/internal/model"
)

// Signal weights. Workload balance carries the most weight, then role
// match, then repo familiarity, then error rate, then recency as a
// tie-breaker.
const (
	WeightRoleMatch       = 0.8
	WeightRepoFamiliarity = 0.7
	WeightWorkloadInverse = 1.0
	WeightLowErrorRate    = 0.6
	WeightRecency         = 0.3
)

// Score is a worker's computed fitness for a work item, with the
// per-signal breakdown kept for explainability.
type Score struct {
	WorkerID string
	Total    float64
	Signals  map[string]float64
}

// RoleForStatus returns the role a work item needs filled next, derived
// from its position in the status machine rather than its type: backlog
// items need refining, ready items need implementing, in-progress items
// need testing, and items in review need reviewing (spec §4.6, §4.11).
func RoleForStatus(status model.WorkItemStatus) model.Role {
	switch status {
	case model.StatusBacklog:
		return model.RoleRefiner
	case model.StatusReady:
		return model.RoleImplementer
	case model.StatusInProgress:
		return model.RoleTester
	case model.StatusReview:
		return model.RoleReviewer
	default:
		return model.RoleImplementer
	}
}

// Scorer ranks candidate workers for a work item.
type Scorer struct{}

// New returns a ready-to-use scorer. It holds no state: every call is a
// pure function of its inputs.
func New() *Scorer {
	return &Scorer{}
}

// Rank scores every candidate worker against item and returns them sorted
// best-first. Workers whose template does not allow the item's type are
// excluded entirely.
func (s *Scorer) Rank(item *model.WorkItem, candidates []*model.Worker, templatesByID map[string]*model.Template, role model.Role) []Score {
	var scores []Score

	for _, w := range candidates {
		tmpl, ok := templatesByID[w.TemplateID]
		if !ok || !tmpl.AllowsType(string(item.Type)) {
			continue
		}

		signals := map[string]float64{
			"role_match":       s.roleMatchSignal(tmpl, role) * WeightRoleMatch,
			"repo_familiarity": s.repoFamiliaritySignal(w, item.RepositoryID) * WeightRepoFamiliarity,
			"workload_inverse": s.workloadInverseSignal(w) * WeightWorkloadInverse,
			"low_error_rate":   s.lowErrorRateSignal(w) * WeightLowErrorRate,
			"recency":          s.recencySignal(w) * WeightRecency,
		}

		total := 0.0
		for _, v := range signals {
			total += v
		}

		scores = append(scores, Score{WorkerID: w.ID, Total: total, Signals: signals})
	}

	sort.Slice(scores, func(i, j int) bool {
		return scores[i].Total > scores[j].Total
	})
	return scores
}

// Best returns the top-ranked worker for item, or ok=false if no
// candidate qualifies.
func (s *Scorer) Best(item *model.WorkItem, candidates []*model.Worker, templatesByID map[string]*model.Template, role model.Role) (Score, bool) {
	ranked := s.Rank(item, candidates, templatesByID, role)
	if len(ranked) == 0 {
		return Score{}, false
	}
	return ranked[0], true
}

// roleMatchSignal compares the desired role against the candidate's
// template default role rather than the worker's own CurrentRole, which
// is always empty for idle workers (the only candidates Rank ever sees).
func (s *Scorer) roleMatchSignal(tmpl *model.Template, role model.Role) float64 {
	if role == "" || tmpl.DefaultRole == role {
		return 1.0
	}
	return 0.0
}

func (s *Scorer) repoFamiliaritySignal(w *model.Worker, repositoryID string) float64 {
	if repositoryID == "" {
		return 0.0
	}
	count, ok := w.RepositoryExperience[repositoryID]
	if !ok || count == 0 {
		return 0.0
	}
	// Diminishing returns: 1 prior execution is already meaningful,
	// more adds less each time.
	score := 1.0 - 1.0/float64(count+1)
	return score
}

func (s *Scorer) workloadInverseSignal(w *model.Worker) float64 {
	// Workers with the most context window left score highest; a worker
	// already deep into its context window scores lower. A worker with no
	// context window limit set scores 1.
	if w.Budget.ContextWindowLimit == 0 {
		return 1.0
	}
	used := float64(w.Budget.ContextWindowUsed) / float64(w.Budget.ContextWindowLimit)
	if used > 1 {
		used = 1
	}
	return 1.0 - used
}

func (s *Scorer) lowErrorRateSignal(w *model.Worker) float64 {
	if w.Budget.ToolCallCount == 0 {
		return 1.0
	}
	rate := float64(w.Budget.ErrorCount) / float64(w.Budget.ToolCallCount)
	if rate > 1 {
		rate = 1
	}
	return 1.0 - rate
}

func (s *Scorer) recencySignal(w *model.Worker) float64 {
	// A worker that has been active more recently is marginally
	// preferred as a tie-breaker; callers normalize elsewhere, so this
	// signal is intentionally coarse (binary on having ever run).
	if !w.LastActiveAt.IsZero() {
		return 1.0
	}
	return 0.0
}

// RecordRepoExperience increments a worker's familiarity counter for a
// repository after it completes work there.
func RecordRepoExperience(w *model.Worker, repositoryID string) {
	if repositoryID == "" {
		return
	}
	if w.RepositoryExperience == nil {
		w.RepositoryExperience = make(map[string]int)
	}
	w.RepositoryExperience[repositoryID]++
}
