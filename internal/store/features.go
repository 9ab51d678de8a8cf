package store

import (
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/ofujimoto/foreman/internal/jsonfile"
	"github.com/ofujimoto/foreman/internal/lock"
	"github.com/ofujimoto/foreman/internal/model"
)

// FeatureStore persists the generated feature collection as a single JSON
// file, read-modify-written wholesale on each mutation.
type FeatureStore struct {
	path    string
	lockMap *lock.MutexMap
}

func NewFeatureStore(path string, lockMap *lock.MutexMap) *FeatureStore {
	if lockMap == nil {
		lockMap = lock.NewMutexMap()
	}
	return &FeatureStore{path: path, lockMap: lockMap}
}

// Load parses the persisted collection. A missing file degrades to an
// empty list for read-only callers; malformed content fails with
// ErrCorruptData.
func (s *FeatureStore) Load() (model.FeatureList, error) {
	var fl model.FeatureList
	err := jsonfile.Read(s.path, &fl)
	if os.IsNotExist(err) {
		return model.FeatureList{}, nil
	}
	if err != nil {
		return model.FeatureList{}, fmt.Errorf("%w: %s: %v", ErrCorruptData, s.path, err)
	}
	return fl, nil
}

// NextIncomplete returns the feature to work on next, or nil when every
// feature passes. Selection: filter to passes == false, stable-sort by
// ascending priority (ties keep original insertion order), return the
// first whose dependencies are all satisfied. If every incomplete feature
// is blocked, the first of the sorted list is returned anyway so a session
// still receives guidance instead of stalling.
func (s *FeatureStore) NextIncomplete() (*model.Feature, error) {
	fl, err := s.Load()
	if err != nil {
		return nil, err
	}

	var incomplete []model.Feature
	for _, f := range fl.Features {
		if !f.Passes {
			incomplete = append(incomplete, f)
		}
	}
	if len(incomplete) == 0 {
		return nil, nil
	}

	sort.SliceStable(incomplete, func(i, j int) bool {
		return incomplete[i].Priority < incomplete[j].Priority
	})

	for i := range incomplete {
		if fl.DependenciesSatisfied(&incomplete[i]) {
			f := incomplete[i]
			return &f, nil
		}
	}

	// Documented fallback: everything is blocked, hand out the highest
	// priority item regardless.
	f := incomplete[0]
	return &f, nil
}

// MarkComplete flips a feature to passing. Every evidence step must report
// success, otherwise the record is left unchanged and
// ErrVerificationIncomplete is returned. On success the completion time is
// stamped, step notes are concatenated, and the completed count cache is
// recomputed.
func (s *FeatureStore) MarkComplete(id string, evidence []model.StepEvidence) error {
	s.lockMap.Lock(s.path)
	defer s.lockMap.Unlock(s.path)

	fl, err := s.loadForMutation()
	if err != nil {
		return err
	}

	idx := fl.Find(id)
	if idx < 0 {
		return fmt.Errorf("%w: feature %s", ErrNotFound, id)
	}

	if len(evidence) == 0 {
		return fmt.Errorf("%w: feature %s: no evidence supplied", ErrVerificationIncomplete, id)
	}
	var failed []string
	for _, ev := range evidence {
		if !ev.Passed {
			failed = append(failed, ev.Step)
		}
	}
	if len(failed) > 0 {
		return fmt.Errorf("%w: feature %s: failing steps: %s", ErrVerificationIncomplete, id, strings.Join(failed, ", "))
	}

	notes := make([]string, 0, len(evidence))
	for _, ev := range evidence {
		line := fmt.Sprintf("%s: pass", ev.Step)
		if ev.Detail != "" {
			line += " (" + ev.Detail + ")"
		}
		notes = append(notes, line)
	}

	now := time.Now().UTC().Format(time.RFC3339)
	fl.Features[idx].Passes = true
	fl.Features[idx].CompletedAt = &now
	fl.Features[idx].VerificationNotes = strings.Join(notes, "\n")
	fl.CompletedCount = fl.Recount()

	return jsonfile.Write(s.path, fl)
}

// MarkFailing reverses a completion, used when a later verification
// invalidates a previously-passing feature.
func (s *FeatureStore) MarkFailing(id string) error {
	s.lockMap.Lock(s.path)
	defer s.lockMap.Unlock(s.path)

	fl, err := s.loadForMutation()
	if err != nil {
		return err
	}

	idx := fl.Find(id)
	if idx < 0 {
		return fmt.Errorf("%w: feature %s", ErrNotFound, id)
	}

	fl.Features[idx].Passes = false
	fl.Features[idx].CompletedAt = nil
	fl.Features[idx].VerificationNotes = ""
	fl.CompletedCount = fl.Recount()

	return jsonfile.Write(s.path, fl)
}

// Save replaces the whole collection, recomputing the count caches.
func (s *FeatureStore) Save(fl model.FeatureList) error {
	s.lockMap.Lock(s.path)
	defer s.lockMap.Unlock(s.path)

	fl.TotalCount = len(fl.Features)
	fl.CompletedCount = fl.Recount()
	return jsonfile.Write(s.path, fl)
}

// Counts returns (completed, total). Missing file reads as (0, 0).
func (s *FeatureStore) Counts() (int, int, error) {
	fl, err := s.Load()
	if err != nil {
		return 0, 0, err
	}
	return fl.Recount(), len(fl.Features), nil
}

func (s *FeatureStore) loadForMutation() (model.FeatureList, error) {
	if _, err := os.Stat(s.path); os.IsNotExist(err) {
		return model.FeatureList{}, fmt.Errorf("%w: %s", ErrMissingStore, s.path)
	}
	var fl model.FeatureList
	if err := jsonfile.Read(s.path, &fl); err != nil {
		return model.FeatureList{}, fmt.Errorf("%w: %s: %v", ErrCorruptData, s.path, err)
	}
	return fl, nil
}
