// Package coordinator derives the project phase from persisted state and
// decides what the next agent invocation should work on.
package coordinator

import (
	"bytes"
	"fmt"
	"io/fs"
	"log"
	"text/template"

	"github.com/ofujimoto/foreman/internal/model"
	"github.com/ofujimoto/foreman/internal/store"
	"github.com/ofujimoto/foreman/templates"
)

// WorkSource names the queue a directive draws from.
type WorkSource string

const (
	SourceFeatures WorkSource = "features"
	SourceBacklog  WorkSource = "backlog"
	SourceLedger   WorkSource = "ledger"
)

// Directive is the decision for one invocation: which phase the project is
// in, which role should run, and what it should work on. A nil directive
// means there is nothing left to do.
type Directive struct {
	Phase           model.Phase
	Role            model.AgentType
	Source          WorkSource
	WorkID          string
	WorkDescription string
	Prompt          string
}

// Coordinator reads the persisted stores and produces directives.
type Coordinator struct {
	projectName string
	features    *store.FeatureStore
	backlog     *store.BacklogStore
	ledger      *store.TestLedger
	sessions    *store.SessionStore
	logger      *log.Logger
}

func New(projectName string, features *store.FeatureStore, backlog *store.BacklogStore, ledger *store.TestLedger, sessions *store.SessionStore, logger *log.Logger) *Coordinator {
	if logger == nil {
		logger = log.Default()
	}
	return &Coordinator{
		projectName: projectName,
		features:    features,
		backlog:     backlog,
		ledger:      ledger,
		sessions:    sessions,
		logger:      logger,
	}
}

// DerivePhase computes the coarse project phase from loaded state. The
// rules, in order:
//
//  1. no features and no completed initializer session → initializer
//  2. any feature not passing → building
//  3. any backlog item incomplete → enhancing
//  4. any ledger case unverified → enhancing
//  5. last session was not a cleanup session → cleanup
//  6. otherwise → complete
func DerivePhase(fl model.FeatureList, backlog []model.BacklogItem, ledger model.TestLedgerFile, sessions []model.Session) model.Phase {
	if len(fl.Features) == 0 && !hasCompletedInitializer(sessions) {
		return model.PhaseInitializer
	}
	if fl.Recount() < len(fl.Features) {
		return model.PhaseBuilding
	}
	for i := range backlog {
		if !backlog[i].Completed {
			return model.PhaseEnhancing
		}
	}
	for i := range ledger.Cases {
		if !ledger.Cases[i].Passes {
			return model.PhaseEnhancing
		}
	}
	if n := len(sessions); n == 0 || sessions[n-1].AgentType != model.AgentCleanup {
		return model.PhaseCleanup
	}
	return model.PhaseComplete
}

func hasCompletedInitializer(sessions []model.Session) bool {
	for i := range sessions {
		if sessions[i].AgentType == model.AgentInitializer && sessions[i].Status == model.SessionCompleted {
			return true
		}
	}
	return false
}

// Phase loads the stores and derives the current phase.
func (c *Coordinator) Phase() (model.Phase, error) {
	fl, backlog, ledger, sessions, err := c.loadAll()
	if err != nil {
		return "", err
	}
	return DerivePhase(fl, backlog, ledger, sessions), nil
}

// NextDirective decides what the next invocation works on. The human
// backlog pre-empts the feature list whenever it holds an incomplete item.
// Returns nil when the project is complete.
func (c *Coordinator) NextDirective() (*Directive, error) {
	fl, backlog, ledger, sessions, err := c.loadAll()
	if err != nil {
		return nil, err
	}
	phase := DerivePhase(fl, backlog, ledger, sessions)

	d := &Directive{Phase: phase}
	switch phase {
	case model.PhaseInitializer:
		d.Role = model.AgentInitializer
		d.Source = SourceFeatures

	case model.PhaseBuilding, model.PhaseEnhancing:
		item, err := c.backlog.NextItem()
		if err != nil {
			return nil, err
		}
		if item != nil {
			d.Role = model.AgentCoding
			d.Source = SourceBacklog
			d.WorkID = item.ID
			d.WorkDescription = item.Description
			break
		}
		feat, err := c.features.NextIncomplete()
		if err != nil {
			return nil, err
		}
		if feat != nil {
			d.Role = model.AgentCoding
			d.Source = SourceFeatures
			d.WorkID = feat.ID
			d.WorkDescription = feat.Description
			break
		}
		// Features and backlog are done; the enhancing phase came from an
		// unverified ledger case.
		tc := nextUnverifiedCase(ledger)
		if tc == nil {
			return nil, nil
		}
		d.Role = model.AgentTesting
		d.Source = SourceLedger
		d.WorkID = tc.ID
		d.WorkDescription = tc.Description

	case model.PhaseCleanup:
		d.Role = model.AgentCleanup
		d.Source = SourceFeatures

	case model.PhaseComplete:
		return nil, nil
	}

	prompt, err := RenderPrompt(d.Role, PromptContext{
		ProjectName:     c.projectName,
		Phase:           string(d.Phase),
		Source:          string(d.Source),
		WorkID:          d.WorkID,
		WorkDescription: d.WorkDescription,
	})
	if err != nil {
		return nil, err
	}
	d.Prompt = prompt

	c.logger.Printf("directive phase=%s role=%s source=%s work_id=%s",
		d.Phase, d.Role, d.Source, d.WorkID)
	return d, nil
}

func nextUnverifiedCase(ledger model.TestLedgerFile) *model.TestCase {
	for i := range ledger.Cases {
		if !ledger.Cases[i].Passes {
			return &ledger.Cases[i]
		}
	}
	return nil
}

func (c *Coordinator) loadAll() (model.FeatureList, []model.BacklogItem, model.TestLedgerFile, []model.Session, error) {
	fl, err := c.features.Load()
	if err != nil {
		return model.FeatureList{}, nil, model.TestLedgerFile{}, nil, fmt.Errorf("load features: %w", err)
	}
	backlog, err := c.backlog.Load()
	if err != nil {
		return model.FeatureList{}, nil, model.TestLedgerFile{}, nil, fmt.Errorf("load backlog: %w", err)
	}
	ledger, err := c.ledger.Load()
	if err != nil {
		return model.FeatureList{}, nil, model.TestLedgerFile{}, nil, fmt.Errorf("load test ledger: %w", err)
	}
	sessions, err := c.sessions.List()
	if err != nil {
		return model.FeatureList{}, nil, model.TestLedgerFile{}, nil, fmt.Errorf("list sessions: %w", err)
	}
	return fl, backlog, ledger, sessions, nil
}

// PromptContext is the data a role prompt template renders with.
type PromptContext struct {
	ProjectName     string
	Phase           string
	Source          string
	WorkID          string
	WorkDescription string
}

// RenderPrompt renders the embedded prompt template for a role.
func RenderPrompt(role model.AgentType, pc PromptContext) (string, error) {
	name := fmt.Sprintf("prompts/%s.md", role)
	data, err := fs.ReadFile(templates.FS, name)
	if err != nil {
		return "", fmt.Errorf("read prompt template %s: %w", name, err)
	}
	tmpl, err := template.New(name).Parse(string(data))
	if err != nil {
		return "", fmt.Errorf("parse prompt template %s: %w", name, err)
	}
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, pc); err != nil {
		return "", fmt.Errorf("render prompt %s: %w", name, err)
	}
	return buf.String(), nil
}
