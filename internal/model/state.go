package model

// AgentState is the single-object state file coordinating what the next
// invocation should do. Unknown enum values are coerced to pause on read.
type AgentState struct {
	DesiredState RunState `json:"desired_state"`
	CurrentState RunState `json:"current_state"`
	UpdatedAt    string   `json:"updated_at"`
	SetBy        Setter   `json:"set_by"`
	Note         string   `json:"note,omitempty"`
	Phase        Phase    `json:"phase,omitempty"`
	IssueRef     string   `json:"issue_ref,omitempty"`
	Restarts     int      `json:"restarts"`
	LastCommit   string   `json:"last_commit,omitempty"`
}

// DefaultAgentState is the safe fallback used when the state file is
// missing or unreadable.
func DefaultAgentState() AgentState {
	return AgentState{
		DesiredState: RunPause,
		CurrentState: RunPause,
		SetBy:        SetterSystem,
	}
}

// StatePatch is a partial update to AgentState. Nil fields are preserved
// from the last-read record, not zeroed.
type StatePatch struct {
	DesiredState *RunState
	CurrentState *RunState
	SetBy        *Setter
	Note         *string
	Phase        *Phase
	IssueRef     *string
	LastCommit   *string
	Restarts     *int
}
