package store

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/ofujimoto/foreman/internal/jsonfile"
	"github.com/ofujimoto/foreman/internal/model"
)

// SessionStore keeps one JSON file per session under its directory.
type SessionStore struct {
	dir string
}

func NewSessionStore(dir string) *SessionStore {
	return &SessionStore{dir: dir}
}

// Create allocates a fresh session id, persists the record with status
// pending, and returns it.
func (s *SessionStore) Create(agentType model.AgentType) (*model.Session, error) {
	id, err := model.NewSessionID(agentType)
	if err != nil {
		return nil, err
	}

	sess := model.Session{
		ID:        id,
		AgentType: agentType,
		Status:    model.SessionPending,
		StartedAt: time.Now().UTC().Format(time.RFC3339),
	}

	if err := os.MkdirAll(s.dir, 0755); err != nil {
		return nil, fmt.Errorf("create sessions dir: %w", err)
	}
	if err := jsonfile.Write(s.sessionPath(id), sess); err != nil {
		return nil, err
	}
	return &sess, nil
}

// Start transitions a session to running.
func (s *SessionStore) Start(id string) error {
	return s.update(id, func(sess *model.Session) error {
		if err := model.ValidateSessionTransition(sess.Status, model.SessionRunning); err != nil {
			return err
		}
		sess.Status = model.SessionRunning
		sess.StartedAt = time.Now().UTC().Format(time.RFC3339)
		return nil
	})
}

// End transitions a session to a terminal status and records the result.
// An unknown id fails with ErrNotFound.
func (s *SessionStore) End(id string, status model.SessionStatus, result *model.SessionResult) error {
	if !model.IsSessionTerminal(status) {
		return fmt.Errorf("End requires a terminal status, got %q", status)
	}
	return s.update(id, func(sess *model.Session) error {
		if err := model.ValidateSessionTransition(sess.Status, status); err != nil {
			return err
		}
		now := time.Now().UTC().Format(time.RFC3339)
		sess.Status = status
		sess.EndedAt = &now
		sess.Result = result
		return nil
	})
}

// SetFeature records the feature a session is working on.
func (s *SessionStore) SetFeature(id, featureID string) error {
	return s.update(id, func(sess *model.Session) error {
		sess.FeatureID = featureID
		return nil
	})
}

// Get reads one session by id.
func (s *SessionStore) Get(id string) (*model.Session, error) {
	var sess model.Session
	err := jsonfile.Read(s.sessionPath(id), &sess)
	if os.IsNotExist(err) {
		return nil, fmt.Errorf("%w: session %s", ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: session %s: %v", ErrCorruptData, id, err)
	}
	return &sess, nil
}

// List returns all persisted sessions sorted by start time ascending.
// Unreadable session files are skipped rather than failing the whole scan.
func (s *SessionStore) List() ([]model.Session, error) {
	entries, err := os.ReadDir(s.dir)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read sessions dir: %w", err)
	}

	var sessions []model.Session
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".json") {
			continue
		}
		var sess model.Session
		if err := jsonfile.Read(filepath.Join(s.dir, e.Name()), &sess); err != nil {
			continue
		}
		sessions = append(sessions, sess)
	}

	sort.Slice(sessions, func(i, j int) bool {
		return sessions[i].StartedAt < sessions[j].StartedAt
	})
	return sessions, nil
}

// Statistics scans all sessions and aggregates counts, pass rate, and mean
// duration. O(n) per call; n is bounded by human-scale session cadence.
func (s *SessionStore) Statistics() (model.SessionStatistics, error) {
	sessions, err := s.List()
	if err != nil {
		return model.SessionStatistics{}, err
	}

	stats := model.SessionStatistics{
		ByStatus:    make(map[string]int),
		ByAgentType: make(map[string]int),
	}

	var completed, terminal int
	var totalDuration time.Duration
	var durationCount int64

	for _, sess := range sessions {
		stats.Total++
		stats.ByStatus[string(sess.Status)]++
		stats.ByAgentType[string(sess.AgentType)]++

		if model.IsSessionTerminal(sess.Status) {
			terminal++
			if sess.Status == model.SessionCompleted {
				completed++
			}
		}
		if sess.EndedAt != nil {
			start, err1 := time.Parse(time.RFC3339, sess.StartedAt)
			end, err2 := time.Parse(time.RFC3339, *sess.EndedAt)
			if err1 == nil && err2 == nil && end.After(start) {
				totalDuration += end.Sub(start)
				durationCount++
			}
		}
	}

	if terminal > 0 {
		stats.PassRate = float64(completed) / float64(terminal)
	}
	if durationCount > 0 {
		stats.MeanDurationMS = totalDuration.Milliseconds() / durationCount
	}
	return stats, nil
}

func (s *SessionStore) sessionPath(id string) string {
	return filepath.Join(s.dir, id+".json")
}

func (s *SessionStore) update(id string, fn func(*model.Session) error) error {
	sess, err := s.Get(id)
	if err != nil {
		return err
	}
	if err := fn(sess); err != nil {
		return err
	}
	return jsonfile.Write(s.sessionPath(id), sess)
}
