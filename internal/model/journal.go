package model

// ProgressEntry is the authoritative structured journal record, one per
// session. The prose progress log is generated from these records; it is
// never parsed back as a source of truth.
type ProgressEntry struct {
	SessionID     string    `json:"session_id"`
	Timestamp     string    `json:"timestamp"`
	AgentType     AgentType `json:"agent_type"`
	Summary       string    `json:"summary"`
	FeatureID     string    `json:"feature_id,omitempty"`
	Status        string    `json:"status"`
	FilesModified []string  `json:"files_modified,omitempty"`
	TestsRun      int       `json:"tests_run,omitempty"`
	TestsPassed   int       `json:"tests_passed,omitempty"`
	Issues        []string  `json:"issues,omitempty"`
	NextSteps     string    `json:"next_steps,omitempty"`
}
