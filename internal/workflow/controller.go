// Package workflow runs the four-step cycle of one invocation: initialize
// the environment, select a unit of work, delegate coding to the agent,
// and verify the result. Coding and verification repeat inside a bounded
// retry loop; everything else runs exactly once.
package workflow

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/ofujimoto/foreman/internal/coordinator"
	"github.com/ofujimoto/foreman/internal/env"
	"github.com/ofujimoto/foreman/internal/events"
	"github.com/ofujimoto/foreman/internal/journal"
	"github.com/ofujimoto/foreman/internal/model"
	"github.com/ofujimoto/foreman/internal/store"
	"github.com/ofujimoto/foreman/internal/verify"
)

// State is the controller's position in the cycle.
type State string

const (
	StateIdle         State = "idle"
	StateInitializing State = "initializing"
	StateSelecting    State = "selecting"
	StateCoding       State = "coding"
	StateVerifying    State = "verifying"
	StateCompleted    State = "completed"
	StateFailed       State = "failed"
)

// NextAction is a step's verdict on how the cycle proceeds. Abort always
// stops the workflow immediately, regardless of remaining iterations.
type NextAction string

const (
	ActionContinue NextAction = "continue"
	ActionRetry    NextAction = "retry"
	ActionAbort    NextAction = "abort"
)

// Step names as they appear in step records.
const (
	StepInit   = "init"
	StepSelect = "select"
	StepCode   = "code"
	StepVerify = "verify"
)

// StepRecord is the audit record of one executed step.
type StepRecord struct {
	Name      string        `json:"name"`
	Iteration int           `json:"iteration,omitempty"`
	Action    NextAction    `json:"action"`
	Detail    string        `json:"detail,omitempty"`
	Duration  time.Duration `json:"duration"`
}

// StepResult is what a coder reports back for one coding step.
type StepResult struct {
	Action        NextAction
	Summary       string
	FilesModified []string
}

// CoderFunc delegates the actual code-writing to an external agent. The
// controller only records that an attempt occurred and honors the
// returned action. Injected so tests run without an agent.
type CoderFunc func(ctx context.Context, wc *Context) (StepResult, error)

// Verifier is the subset of the verification runner the controller needs.
type Verifier interface {
	Run(ctx context.Context) (verify.Result, error)
}

// Context is the ephemeral per-invocation state threaded through the
// cycle. It exists only for the duration of one Run call; continuity
// across restarts comes from the persisted stores, never from here.
type Context struct {
	SessionID     string
	State         State
	Step          int
	Directive     *coordinator.Directive
	Iteration     int
	MaxIterations int
	StartedAt     time.Time
	LastStepAt    time.Time
}

// Result is the outcome of one full Run.
type Result struct {
	Success      bool         `json:"success"`
	State        State        `json:"state"`
	SessionID    string       `json:"session_id,omitempty"`
	Iterations   int          `json:"iterations"`
	Steps        []StepRecord `json:"steps"`
	FailedChecks []string     `json:"failed_checks,omitempty"`
	Detail       string       `json:"detail,omitempty"`
}

// Controller orchestrates one workflow invocation against the persisted
// stores. At most one controller runs per project directory.
type Controller struct {
	cfg      model.Config
	features *store.FeatureStore
	backlog  *store.BacklogStore
	sessions *store.SessionStore
	state    *store.StateStore
	journal  *journal.Store
	coord    *coordinator.Coordinator
	envMgr   *env.Manager
	verifier Verifier
	coder    CoderFunc
	bus      *events.Bus
	logger   *log.Logger
}

// Deps bundles the stores and collaborators a controller needs. A nil
// Coder falls back to the no-op recorder: the external agent edits code
// out of band, so by default a coding step only records that the attempt
// window happened.
type Deps struct {
	Config   model.Config
	Features *store.FeatureStore
	Backlog  *store.BacklogStore
	Sessions *store.SessionStore
	State    *store.StateStore
	Journal  *journal.Store
	Coord    *coordinator.Coordinator
	Env      *env.Manager
	Verifier Verifier
	Coder    CoderFunc
	Bus      *events.Bus
	Logger   *log.Logger
}

func NewController(d Deps) *Controller {
	if d.Logger == nil {
		d.Logger = log.Default()
	}
	if d.Coder == nil {
		d.Coder = func(ctx context.Context, wc *Context) (StepResult, error) {
			return StepResult{Action: ActionContinue, Summary: "delegated to external agent"}, nil
		}
	}
	return &Controller{
		cfg:      d.Config,
		features: d.Features,
		backlog:  d.Backlog,
		sessions: d.Sessions,
		state:    d.State,
		journal:  d.Journal,
		coord:    d.Coord,
		envMgr:   d.Env,
		verifier: d.Verifier,
		coder:    d.Coder,
		bus:      d.Bus,
		logger:   d.Logger,
	}
}

// SetCoder overrides the coder. For tests and alternative agents.
func (c *Controller) SetCoder(fn CoderFunc) {
	c.coder = fn
}

// Run executes one full cycle. It creates and finalizes a session record,
// appends a journal entry, and updates the agent state file; partial
// progress from intermediate iterations is retained as an audit trail,
// never rolled back.
func (c *Controller) Run(ctx context.Context) (Result, error) {
	wc := &Context{
		State:         StateIdle,
		MaxIterations: c.cfg.Workflow.MaxIterations,
		StartedAt:     time.Now(),
	}
	if wc.MaxIterations <= 0 {
		wc.MaxIterations = 3
	}

	// Suspend the cycle as soon as a human flips the state file to pause
	// or terminated.
	ctx, stopWatch, err := c.watchStateFile(ctx)
	if err != nil {
		c.logger.Printf("workflow_watch_unavailable err=%v", err)
	} else {
		defer stopWatch()
	}

	res := Result{State: StateIdle}

	// Step 1: environment init. Terminal on failure; a dead environment
	// cannot be fixed by code changes.
	rec, ok := c.stepInit(ctx, wc)
	res.Steps = append(res.Steps, rec)
	if !ok {
		res.State = StateFailed
		res.Detail = rec.Detail
		return res, nil
	}

	// Step 2: select a unit of work.
	directive, rec, err := c.stepSelect(wc)
	res.Steps = append(res.Steps, rec)
	if err != nil {
		res.State = StateFailed
		res.Detail = rec.Detail
		return res, err
	}
	if directive == nil {
		// Nothing to do is a clean abort, not an error.
		res.Success = true
		res.State = StateCompleted
		res.Detail = "no incomplete work"
		return res, nil
	}
	wc.Directive = directive

	session, err := c.openSession(directive)
	if err != nil {
		res.State = StateFailed
		return res, err
	}
	wc.SessionID = session.ID
	res.SessionID = session.ID

	// Steps 3–4: the only retry loop, bounded by the iteration cap.
	var verifyRes verify.Result
	outcome := StateFailed
	detail := ""
	for wc.Iteration = 1; wc.Iteration <= wc.MaxIterations; wc.Iteration++ {
		res.Iterations = wc.Iteration

		codeRec, codeRes := c.stepCode(ctx, wc)
		res.Steps = append(res.Steps, codeRec)
		if codeRec.Action == ActionAbort {
			detail = codeRec.Detail
			break
		}
		if codeRec.Action == ActionRetry {
			continue
		}

		var verifyRec StepRecord
		verifyRec, verifyRes = c.stepVerify(ctx, wc)
		res.Steps = append(res.Steps, verifyRec)
		res.FailedChecks = verifyRes.FailedChecks
		if verifyRec.Action == ActionAbort {
			detail = verifyRec.Detail
			break
		}
		if verifyRes.Passed {
			outcome = StateCompleted
			detail = codeRes.Summary
			break
		}
		detail = verifyRec.Detail
	}

	res.State = outcome
	res.Success = outcome == StateCompleted
	res.Detail = detail

	if err := c.finalize(wc, &res, verifyRes); err != nil {
		return res, err
	}
	return res, nil
}

func (c *Controller) stepInit(ctx context.Context, wc *Context) (StepRecord, bool) {
	wc.State = StateInitializing
	wc.Step = 1
	start := time.Now()
	rec := StepRecord{Name: StepInit, Action: ActionContinue}

	if err := c.envMgr.Startup(ctx); err != nil {
		rec.Action = ActionAbort
		rec.Detail = err.Error()
	} else if err := c.envMgr.WaitReady(ctx); err != nil {
		rec.Action = ActionAbort
		rec.Detail = err.Error()
	}

	rec.Duration = time.Since(start)
	wc.LastStepAt = time.Now()
	c.publishStep(wc, rec)
	return rec, rec.Action != ActionAbort
}

func (c *Controller) stepSelect(wc *Context) (*coordinator.Directive, StepRecord, error) {
	wc.State = StateSelecting
	wc.Step = 2
	start := time.Now()
	rec := StepRecord{Name: StepSelect, Action: ActionContinue}

	directive, err := c.coord.NextDirective()
	rec.Duration = time.Since(start)
	wc.LastStepAt = time.Now()
	if err != nil {
		rec.Action = ActionAbort
		rec.Detail = err.Error()
		c.publishStep(wc, rec)
		return nil, rec, fmt.Errorf("select work: %w", err)
	}
	if directive == nil {
		rec.Action = ActionAbort
		rec.Detail = "no incomplete work"
	} else {
		rec.Detail = fmt.Sprintf("%s %s", directive.Source, directive.WorkID)
	}
	c.publishStep(wc, rec)
	return directive, rec, nil
}

func (c *Controller) stepCode(ctx context.Context, wc *Context) (StepRecord, StepResult) {
	wc.State = StateCoding
	wc.Step = 3
	start := time.Now()
	rec := StepRecord{Name: StepCode, Iteration: wc.Iteration}

	cctx, cancel := context.WithTimeout(ctx, time.Duration(c.cfg.Workflow.StepTimeoutSec)*time.Second)
	defer cancel()

	result, err := c.coder(cctx, wc)
	rec.Duration = time.Since(start)
	wc.LastStepAt = time.Now()
	switch {
	case errors.Is(cctx.Err(), context.DeadlineExceeded):
		rec.Action = ActionRetry
		rec.Detail = fmt.Sprintf("coding step timed out after %ds", c.cfg.Workflow.StepTimeoutSec)
	case ctx.Err() != nil:
		rec.Action = ActionAbort
		rec.Detail = "workflow suspended"
	case err != nil:
		rec.Action = ActionRetry
		rec.Detail = err.Error()
	default:
		rec.Action = result.Action
		rec.Detail = result.Summary
	}
	c.publishStep(wc, rec)
	return rec, result
}

func (c *Controller) stepVerify(ctx context.Context, wc *Context) (StepRecord, verify.Result) {
	wc.State = StateVerifying
	wc.Step = 4
	start := time.Now()
	rec := StepRecord{Name: StepVerify, Iteration: wc.Iteration}

	result, err := c.verifier.Run(ctx)
	rec.Duration = time.Since(start)
	wc.LastStepAt = time.Now()
	switch {
	case ctx.Err() != nil:
		rec.Action = ActionAbort
		rec.Detail = "workflow suspended"
	case err != nil:
		rec.Action = ActionRetry
		rec.Detail = err.Error()
	case result.Passed:
		rec.Action = ActionContinue
	default:
		rec.Action = ActionRetry
		rec.Detail = fmt.Sprintf("failed checks: %v", result.FailedChecks)
		c.publish(events.EventVerificationFailed, map[string]interface{}{
			"session_id":    wc.SessionID,
			"iteration":     wc.Iteration,
			"failed_checks": result.FailedChecks,
		})
	}
	c.publishStep(wc, rec)
	return rec, result
}

func (c *Controller) openSession(d *coordinator.Directive) (*model.Session, error) {
	session, err := c.sessions.Create(d.Role)
	if err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}
	if err := c.sessions.Start(session.ID); err != nil {
		return nil, fmt.Errorf("start session: %w", err)
	}
	if d.Source == coordinator.SourceFeatures && d.WorkID != "" {
		if err := c.sessions.SetFeature(session.ID, d.WorkID); err != nil {
			return nil, fmt.Errorf("bind feature: %w", err)
		}
	}
	if d.Source == coordinator.SourceBacklog {
		if err := c.backlog.MarkInProgress(d.WorkID); err != nil {
			return nil, fmt.Errorf("mark backlog in progress: %w", err)
		}
	}
	c.publish(events.EventSessionStarted, map[string]interface{}{
		"session_id": session.ID,
		"agent_type": string(d.Role),
		"work_id":    d.WorkID,
	})
	c.logger.Printf("session_start id=%s role=%s work=%s", session.ID, d.Role, d.WorkID)
	return session, nil
}

// finalize records the outcome in every persisted store: session record,
// work item, journal entry, and agent state.
func (c *Controller) finalize(wc *Context, res *Result, verifyRes verify.Result) error {
	d := wc.Directive
	featureCompleted := false

	if res.Success && d.WorkID != "" {
		switch d.Source {
		case coordinator.SourceFeatures:
			evidence := evidenceFromChecks(verifyRes)
			if err := c.features.MarkComplete(d.WorkID, evidence); err != nil {
				return fmt.Errorf("complete feature %s: %w", d.WorkID, err)
			}
			featureCompleted = true
			c.publish(events.EventFeatureCompleted, map[string]interface{}{
				"session_id": wc.SessionID,
				"feature_id": d.WorkID,
			})
		case coordinator.SourceBacklog:
			if err := c.backlog.MarkComplete(d.WorkID); err != nil {
				return fmt.Errorf("complete backlog item %s: %w", d.WorkID, err)
			}
		}
	}

	status := model.SessionFailed
	if res.Success {
		status = model.SessionCompleted
	}
	sessionResult := &model.SessionResult{
		Success:          res.Success,
		Summary:          res.Detail,
		TestsRun:         len(verifyRes.Checks),
		TestsPassed:      len(verifyRes.Checks) - len(verifyRes.FailedChecks),
		FeatureCompleted: featureCompleted,
	}
	if err := c.sessions.End(wc.SessionID, status, sessionResult); err != nil {
		return fmt.Errorf("end session: %w", err)
	}

	entry := model.ProgressEntry{
		SessionID:   wc.SessionID,
		Timestamp:   time.Now().Format(time.RFC3339),
		AgentType:   d.Role,
		Summary:     res.Detail,
		Status:      string(status),
		TestsRun:    sessionResult.TestsRun,
		TestsPassed: sessionResult.TestsPassed,
	}
	if d.Source == coordinator.SourceFeatures {
		entry.FeatureID = d.WorkID
	}
	if !res.Success && len(res.FailedChecks) > 0 {
		entry.Issues = res.FailedChecks
	}
	if err := c.journal.Append(entry); err != nil {
		return fmt.Errorf("append journal: %w", err)
	}

	phase := d.Phase
	if err := c.state.Write(model.StatePatch{
		CurrentState: runStatePtr(model.RunPause),
		SetBy:        setterPtr(model.SetterAgent),
		Phase:        &phase,
	}); err != nil {
		return fmt.Errorf("update state: %w", err)
	}

	c.publish(events.EventSessionEnded, map[string]interface{}{
		"session_id": wc.SessionID,
		"status":     string(status),
		"iterations": res.Iterations,
	})
	c.logger.Printf("session_end id=%s status=%s iterations=%d", wc.SessionID, status, res.Iterations)
	return nil
}

// evidenceFromChecks converts an aggregate verification result into
// per-step evidence. Skipped checks count as passed; they were
// non-blocking for the aggregate decision.
func evidenceFromChecks(vr verify.Result) []model.StepEvidence {
	evidence := make([]model.StepEvidence, 0, len(vr.Checks))
	for _, check := range vr.Checks {
		detail := check.Output
		if check.Status == verify.StatusSkipped {
			detail = "skipped: " + check.Output
		}
		evidence = append(evidence, model.StepEvidence{
			Step:   check.Name,
			Passed: check.Status != verify.StatusFailed,
			Detail: detail,
		})
	}
	return evidence
}

func (c *Controller) publishStep(wc *Context, rec StepRecord) {
	c.publish(events.EventStepCompleted, map[string]interface{}{
		"session_id": wc.SessionID,
		"step":       rec.Name,
		"iteration":  rec.Iteration,
		"action":     string(rec.Action),
		"duration":   rec.Duration.String(),
	})
}

func (c *Controller) publish(eventType events.EventType, data map[string]interface{}) {
	if c.bus != nil {
		c.bus.Publish(eventType, data)
	}
}

func runStatePtr(s model.RunState) *model.RunState { return &s }
func setterPtr(s model.Setter) *model.Setter       { return &s }
