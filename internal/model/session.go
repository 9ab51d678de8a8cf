package model

// Session is the append-only record of one agent invocation. One JSON file
// per session, keyed by ID.
type Session struct {
	ID              string          `json:"id"`
	AgentType       AgentType       `json:"agent_type"`
	Status          SessionStatus   `json:"status"`
	StartedAt       string          `json:"started_at"`
	EndedAt         *string         `json:"ended_at,omitempty"`
	FeatureID       string          `json:"feature_id,omitempty"`
	ParentSessionID string          `json:"parent_session_id,omitempty"`
	Metadata        SessionMetadata `json:"metadata"`
	Result          *SessionResult  `json:"result,omitempty"`
}

// SessionMetadata carries operational details of the agent invocation.
type SessionMetadata struct {
	Model      string   `json:"model,omitempty"`
	TokensUsed int      `json:"tokens_used,omitempty"`
	Tools      []string `json:"tools,omitempty"`
	Errors     []string `json:"errors,omitempty"`
}

// SessionResult summarizes what a completed session did.
type SessionResult struct {
	Success          bool     `json:"success"`
	Summary          string   `json:"summary,omitempty"`
	FilesModified    []string `json:"files_modified,omitempty"`
	TestsRun         int      `json:"tests_run,omitempty"`
	TestsPassed      int      `json:"tests_passed,omitempty"`
	FeatureCompleted bool     `json:"feature_completed,omitempty"`
}

// SessionStatistics aggregates over all persisted sessions.
type SessionStatistics struct {
	Total          int            `json:"total"`
	ByStatus       map[string]int `json:"by_status"`
	ByAgentType    map[string]int `json:"by_agent_type"`
	PassRate       float64        `json:"pass_rate"`
	MeanDurationMS int64          `json:"mean_duration_ms"`
}
