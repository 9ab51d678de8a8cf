// Package journal maintains the chronological progress log. The structured
// ProgressEntry records are the authoritative persisted form; the prose log
// is generated from them and never parsed back as a source of truth.
package journal

import (
	"fmt"
	"os"

	"github.com/ofujimoto/foreman/internal/jsonfile"
	"github.com/ofujimoto/foreman/internal/lock"
	"github.com/ofujimoto/foreman/internal/model"
)

const entryStatusCompleted = "completed"

// Store persists progress entries as an ordered JSON list and regenerates
// the prose log beside it after each append.
type Store struct {
	entriesPath string
	prosePath   string
	lockMap     *lock.MutexMap
}

func NewStore(entriesPath, prosePath string, lockMap *lock.MutexMap) *Store {
	if lockMap == nil {
		lockMap = lock.NewMutexMap()
	}
	return &Store{entriesPath: entriesPath, prosePath: prosePath, lockMap: lockMap}
}

// List returns all entries in chronological order. Missing file reads as
// empty.
func (s *Store) List() ([]model.ProgressEntry, error) {
	var entries []model.ProgressEntry
	err := jsonfile.Read(s.entriesPath, &entries)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read journal entries: %w", err)
	}
	return entries, nil
}

// Append adds an entry and regenerates the prose log. The entries file is
// the audit trail: appends are intentionally retained even when the
// session they record ultimately failed.
func (s *Store) Append(entry model.ProgressEntry) error {
	s.lockMap.Lock(s.entriesPath)
	defer s.lockMap.Unlock(s.entriesPath)

	entries, err := s.List()
	if err != nil {
		return err
	}
	entries = append(entries, entry)

	if err := jsonfile.Write(s.entriesPath, entries); err != nil {
		return err
	}
	if s.prosePath != "" {
		if err := os.WriteFile(s.prosePath, []byte(RenderText(entries)), 0644); err != nil {
			return fmt.Errorf("write prose log: %w", err)
		}
	}
	return nil
}

// Streak returns the length of the run of consecutive completed entries
// ending at the most recent entry.
func (s *Store) Streak() (int, error) {
	entries, err := s.List()
	if err != nil {
		return 0, err
	}
	streak := 0
	for i := len(entries) - 1; i >= 0; i-- {
		if entries[i].Status != entryStatusCompleted {
			break
		}
		streak++
	}
	return streak, nil
}

// Summary aggregates entry counts per agent type and per status.
type Summary struct {
	Total       int
	ByAgentType map[model.AgentType]int
	ByStatus    map[string]int
	TestsRun    int
	TestsPassed int
}

// Summarize scans all entries.
func (s *Store) Summarize() (Summary, error) {
	entries, err := s.List()
	if err != nil {
		return Summary{}, err
	}
	sum := Summary{
		ByAgentType: make(map[model.AgentType]int),
		ByStatus:    make(map[string]int),
	}
	for _, e := range entries {
		sum.Total++
		sum.ByAgentType[e.AgentType]++
		sum.ByStatus[e.Status]++
		sum.TestsRun += e.TestsRun
		sum.TestsPassed += e.TestsPassed
	}
	return sum, nil
}
