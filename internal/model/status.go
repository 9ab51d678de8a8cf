package model

import "fmt"

// FeatureCategory classifies a feature record.
type FeatureCategory string

const (
	CategoryFunctional    FeatureCategory = "functional"
	CategoryUI            FeatureCategory = "ui"
	CategoryUX            FeatureCategory = "ux"
	CategoryPerformance   FeatureCategory = "performance"
	CategorySecurity      FeatureCategory = "security"
	CategoryAccessibility FeatureCategory = "accessibility"
	CategoryIntegration   FeatureCategory = "integration"
	CategoryErrorHandling FeatureCategory = "error-handling"
)

var validFeatureCategories = map[FeatureCategory]bool{
	CategoryFunctional:    true,
	CategoryUI:            true,
	CategoryUX:            true,
	CategoryPerformance:   true,
	CategorySecurity:      true,
	CategoryAccessibility: true,
	CategoryIntegration:   true,
	CategoryErrorHandling: true,
}

// ParseFeatureCategory reports whether s names a known category.
func ParseFeatureCategory(s string) (FeatureCategory, bool) {
	c := FeatureCategory(s)
	return c, validFeatureCategories[c]
}

// BacklogType is the kind of a human-submitted backlog item.
type BacklogType string

const (
	BacklogBug     BacklogType = "bug"
	BacklogFeature BacklogType = "feature"
	BacklogIdea    BacklogType = "idea"
)

var validBacklogTypes = map[BacklogType]bool{
	BacklogBug:     true,
	BacklogFeature: true,
	BacklogIdea:    true,
}

func ParseBacklogType(s string) (BacklogType, bool) {
	t := BacklogType(s)
	return t, validBacklogTypes[t]
}

// BacklogPriority orders human backlog items critical → low.
type BacklogPriority string

const (
	PriorityCritical BacklogPriority = "critical"
	PriorityHigh     BacklogPriority = "high"
	PriorityMedium   BacklogPriority = "medium"
	PriorityLow      BacklogPriority = "low"
)

// BacklogPriorityOrder is the scan order for backlog selection.
var BacklogPriorityOrder = []BacklogPriority{
	PriorityCritical,
	PriorityHigh,
	PriorityMedium,
	PriorityLow,
}

var validBacklogPriorities = map[BacklogPriority]bool{
	PriorityCritical: true,
	PriorityHigh:     true,
	PriorityMedium:   true,
	PriorityLow:      true,
}

func ParseBacklogPriority(s string) (BacklogPriority, bool) {
	p := BacklogPriority(s)
	return p, validBacklogPriorities[p]
}

// BacklogStatus is the workflow status of a backlog item.
type BacklogStatus string

const (
	BacklogStatusBacklog    BacklogStatus = "backlog"
	BacklogStatusInProgress BacklogStatus = "in_progress"
	BacklogStatusBlocked    BacklogStatus = "blocked"
	BacklogStatusDone       BacklogStatus = "done"
)

var validBacklogStatuses = map[BacklogStatus]bool{
	BacklogStatusBacklog:    true,
	BacklogStatusInProgress: true,
	BacklogStatusBlocked:    true,
	BacklogStatusDone:       true,
}

func ParseBacklogStatus(s string) (BacklogStatus, bool) {
	st := BacklogStatus(s)
	return st, validBacklogStatuses[st]
}

// AgentType identifies the role a session runs as.
type AgentType string

const (
	AgentInitializer AgentType = "initializer"
	AgentCoding      AgentType = "coding"
	AgentTesting     AgentType = "testing"
	AgentCleanup     AgentType = "cleanup"
)

var validAgentTypes = map[AgentType]bool{
	AgentInitializer: true,
	AgentCoding:      true,
	AgentTesting:     true,
	AgentCleanup:     true,
}

func ParseAgentType(s string) (AgentType, bool) {
	a := AgentType(s)
	return a, validAgentTypes[a]
}

// SessionStatus is the lifecycle status of a session record.
type SessionStatus string

const (
	SessionPending   SessionStatus = "pending"
	SessionRunning   SessionStatus = "running"
	SessionCompleted SessionStatus = "completed"
	SessionFailed    SessionStatus = "failed"
	SessionTimeout   SessionStatus = "timeout"
)

var terminalSessionStatuses = map[SessionStatus]bool{
	SessionCompleted: true,
	SessionFailed:    true,
	SessionTimeout:   true,
}

// Session status transitions: pending → running → terminal, one-way.
var validSessionTransitions = map[SessionStatus]map[SessionStatus]bool{
	SessionPending: {
		SessionRunning: true,
	},
	SessionRunning: {
		SessionCompleted: true,
		SessionFailed:    true,
		SessionTimeout:   true,
	},
}

// IsSessionTerminal reports whether s is a terminal session status.
func IsSessionTerminal(s SessionStatus) bool {
	return terminalSessionStatuses[s]
}

// ValidateSessionTransition rejects any transition outside pending →
// running → {completed|failed|timeout}.
func ValidateSessionTransition(from, to SessionStatus) error {
	if IsSessionTerminal(from) {
		return fmt.Errorf("cannot transition from terminal session status %q", from)
	}
	allowed, ok := validSessionTransitions[from]
	if !ok {
		return fmt.Errorf("unknown session status %q", from)
	}
	if !allowed[to] {
		return fmt.Errorf("invalid session transition: %q → %q", from, to)
	}
	return nil
}

// RunState is the coarse agent state machine value, used for both the
// desired and the observed side of the state file.
type RunState string

const (
	RunContinuous RunState = "continuous"
	RunOnce       RunState = "run_once"
	RunCleanup    RunState = "run_cleanup"
	RunPause      RunState = "pause"
	RunTerminated RunState = "terminated"
)

var validRunStates = map[RunState]bool{
	RunContinuous: true,
	RunOnce:       true,
	RunCleanup:    true,
	RunPause:      true,
	RunTerminated: true,
}

func ParseRunState(s string) (RunState, bool) {
	r := RunState(s)
	return r, validRunStates[r]
}

// RunStateOrDefault coerces unknown values to pause: losing the ability to
// decide "should I keep running" must fail toward stopping. Used only at
// the deserialization boundary so internal logic never sees an
// out-of-range value.
func RunStateOrDefault(s string) (RunState, bool) {
	if r, ok := ParseRunState(s); ok {
		return r, true
	}
	return RunPause, false
}

// Phase is the coarse project phase derived from backlog and session state.
type Phase string

const (
	PhaseInitializer Phase = "initializer"
	PhaseBuilding    Phase = "building"
	PhaseEnhancing   Phase = "enhancing"
	PhaseCleanup     Phase = "cleanup"
	PhaseComplete    Phase = "complete"
)

var validPhases = map[Phase]bool{
	PhaseInitializer: true,
	PhaseBuilding:    true,
	PhaseEnhancing:   true,
	PhaseCleanup:     true,
	PhaseComplete:    true,
}

func ParsePhase(s string) (Phase, bool) {
	p := Phase(s)
	return p, validPhases[p]
}

// Setter records who wrote a state change.
type Setter string

const (
	SetterAgent  Setter = "agent"
	SetterHuman  Setter = "human"
	SetterSystem Setter = "system"
)

var validSetters = map[Setter]bool{
	SetterAgent:  true,
	SetterHuman:  true,
	SetterSystem: true,
}

func ParseSetter(s string) (Setter, bool) {
	st := Setter(s)
	return st, validSetters[st]
}
