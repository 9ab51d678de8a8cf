// Package model defines the data structures for Foreman's persisted stores:
// features, human backlog, test ledger, sessions, agent state, and the
// progress journal.
package model

// FeatureList is the persisted feature collection. TotalCount and
// CompletedCount are caches and must equal a recount over Features.
type FeatureList struct {
	ProjectName    string    `json:"project_name"`
	TotalCount     int       `json:"total_count"`
	CompletedCount int       `json:"completed_count"`
	Features       []Feature `json:"features"`
}

// Feature is a unit of product work. Identifiers are stable and never
// reused; records are never deleted.
type Feature struct {
	ID                string          `json:"id"`
	Category          FeatureCategory `json:"category"`
	Description       string          `json:"description"`
	VerificationSteps []string        `json:"verification_steps"`
	Passes            bool            `json:"passes"`
	Priority          int             `json:"priority"`
	DependsOn         []string        `json:"depends_on,omitempty"`
	VerificationNotes string          `json:"verification_notes,omitempty"`
	CompletedAt       *string         `json:"completed_at,omitempty"`
}

// Recount returns the number of features with Passes == true.
func (fl *FeatureList) Recount() int {
	n := 0
	for i := range fl.Features {
		if fl.Features[i].Passes {
			n++
		}
	}
	return n
}

// Find returns the index of the feature with the given id, or -1.
func (fl *FeatureList) Find(id string) int {
	for i := range fl.Features {
		if fl.Features[i].ID == id {
			return i
		}
	}
	return -1
}

// DependenciesSatisfied reports whether every dependency of f has
// Passes == true in fl. A dependency that does not exist counts as
// unsatisfied.
func (fl *FeatureList) DependenciesSatisfied(f *Feature) bool {
	for _, dep := range f.DependsOn {
		idx := fl.Find(dep)
		if idx < 0 || !fl.Features[idx].Passes {
			return false
		}
	}
	return true
}

// StepEvidence is the per-step outcome supplied when completing a feature.
type StepEvidence struct {
	Step   string `json:"step"`
	Passed bool   `json:"passed"`
	Detail string `json:"detail,omitempty"`
}
