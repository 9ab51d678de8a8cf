package store

import (
	"log"
	"os"
	"time"

	"github.com/ofujimoto/foreman/internal/jsonfile"
	"github.com/ofujimoto/foreman/internal/lock"
	"github.com/ofujimoto/foreman/internal/model"
)

// rawAgentState mirrors model.AgentState with loose string enums so that
// coercion happens exactly once, at the deserialization boundary.
type rawAgentState struct {
	DesiredState string `json:"desired_state"`
	CurrentState string `json:"current_state"`
	UpdatedAt    string `json:"updated_at"`
	SetBy        string `json:"set_by"`
	Note         string `json:"note,omitempty"`
	Phase        string `json:"phase,omitempty"`
	IssueRef     string `json:"issue_ref,omitempty"`
	Restarts     int    `json:"restarts"`
	LastCommit   string `json:"last_commit,omitempty"`
}

// StateStore persists the single agent-state object. Reads never fail:
// a missing file, a parse error, or an invalid enum value all degrade to
// the pause default with a logged warning, because losing the ability to
// determine "should I keep running" must fail toward stopping.
type StateStore struct {
	path    string
	lockMap *lock.MutexMap
	logger  *log.Logger
}

func NewStateStore(path string, lockMap *lock.MutexMap, logger *log.Logger) *StateStore {
	if lockMap == nil {
		lockMap = lock.NewMutexMap()
	}
	if logger == nil {
		logger = log.Default()
	}
	return &StateStore{path: path, lockMap: lockMap, logger: logger}
}

// Read returns the current agent state, never an error.
func (s *StateStore) Read() model.AgentState {
	var raw rawAgentState
	err := jsonfile.Read(s.path, &raw)
	if os.IsNotExist(err) {
		s.logger.Printf("state_read_default path=%s reason=missing", s.path)
		return model.DefaultAgentState()
	}
	if err != nil {
		s.logger.Printf("state_read_default path=%s reason=parse_error error=%v", s.path, err)
		return model.DefaultAgentState()
	}

	state := model.AgentState{
		UpdatedAt:  raw.UpdatedAt,
		Note:       raw.Note,
		IssueRef:   raw.IssueRef,
		Restarts:   raw.Restarts,
		LastCommit: raw.LastCommit,
	}

	var known bool
	state.DesiredState, known = model.RunStateOrDefault(raw.DesiredState)
	if !known {
		s.logger.Printf("state_coerce field=desired_state value=%q coerced=pause", raw.DesiredState)
	}
	state.CurrentState, known = model.RunStateOrDefault(raw.CurrentState)
	if !known {
		s.logger.Printf("state_coerce field=current_state value=%q coerced=pause", raw.CurrentState)
	}
	if p, ok := model.ParsePhase(raw.Phase); ok {
		state.Phase = p
	} else if raw.Phase != "" {
		s.logger.Printf("state_coerce field=phase value=%q coerced=empty", raw.Phase)
	}
	switch model.Setter(raw.SetBy) {
	case model.SetterAgent, model.SetterHuman, model.SetterSystem:
		state.SetBy = model.Setter(raw.SetBy)
	default:
		state.SetBy = model.SetterSystem
	}

	return state
}

// Write applies a partial update: omitted fields are preserved, supplied
// enum fields are re-validated, and a transition to an unrecognized value
// is discarded with a warning rather than rejecting the whole write. Every
// write refreshes the timestamp and setter.
func (s *StateStore) Write(patch model.StatePatch) error {
	s.lockMap.Lock(s.path)
	defer s.lockMap.Unlock(s.path)

	state := s.Read()

	if patch.DesiredState != nil {
		if _, ok := model.ParseRunState(string(*patch.DesiredState)); ok {
			state.DesiredState = *patch.DesiredState
		} else {
			s.logger.Printf("state_write_discard field=desired_state value=%q", *patch.DesiredState)
		}
	}
	if patch.CurrentState != nil {
		if _, ok := model.ParseRunState(string(*patch.CurrentState)); ok {
			state.CurrentState = *patch.CurrentState
		} else {
			s.logger.Printf("state_write_discard field=current_state value=%q", *patch.CurrentState)
		}
	}
	if patch.Phase != nil {
		if _, ok := model.ParsePhase(string(*patch.Phase)); ok {
			state.Phase = *patch.Phase
		} else {
			s.logger.Printf("state_write_discard field=phase value=%q", *patch.Phase)
		}
	}
	if patch.Note != nil {
		state.Note = *patch.Note
	}
	if patch.IssueRef != nil {
		state.IssueRef = *patch.IssueRef
	}
	if patch.LastCommit != nil {
		state.LastCommit = *patch.LastCommit
	}
	if patch.Restarts != nil {
		state.Restarts = *patch.Restarts
	}

	state.UpdatedAt = time.Now().UTC().Format(time.RFC3339)
	if patch.SetBy != nil {
		state.SetBy = *patch.SetBy
	} else {
		state.SetBy = model.SetterSystem
	}

	return jsonfile.Write(s.path, state)
}

// Pause requests that the agent stop after the current step.
func (s *StateStore) Pause(setBy model.Setter, note string) error {
	return s.transition(model.RunPause, setBy, note)
}

// StartContinuous requests back-to-back work sessions.
func (s *StateStore) StartContinuous(setBy model.Setter, note string) error {
	return s.transition(model.RunContinuous, setBy, note)
}

// RequestRunOnce requests a single work session then pause.
func (s *StateStore) RequestRunOnce(setBy model.Setter, note string) error {
	return s.transition(model.RunOnce, setBy, note)
}

// RequestCleanup requests a cleanup session.
func (s *StateStore) RequestCleanup(setBy model.Setter, note string) error {
	return s.transition(model.RunCleanup, setBy, note)
}

// Terminate requests a permanent stop.
func (s *StateStore) Terminate(setBy model.Setter, note string) error {
	return s.transition(model.RunTerminated, setBy, note)
}

// SetCurrent records the observed state of the running process.
func (s *StateStore) SetCurrent(current model.RunState, setBy model.Setter) error {
	return s.Write(model.StatePatch{CurrentState: &current, SetBy: &setBy})
}

// IncrementRestarts bumps the restart counter.
func (s *StateStore) IncrementRestarts() error {
	state := s.Read()
	n := state.Restarts + 1
	setBy := model.SetterSystem
	return s.Write(model.StatePatch{Restarts: &n, SetBy: &setBy})
}

// Path returns the state file location, for watchers.
func (s *StateStore) Path() string {
	return s.path
}

func (s *StateStore) transition(desired model.RunState, setBy model.Setter, note string) error {
	return s.Write(model.StatePatch{DesiredState: &desired, SetBy: &setBy, Note: &note})
}
