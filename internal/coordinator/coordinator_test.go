package coordinator

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/ofujimoto/foreman/internal/lock"
	"github.com/ofujimoto/foreman/internal/model"
	"github.com/ofujimoto/foreman/internal/store"
)

type fixture struct {
	coord    *Coordinator
	features *store.FeatureStore
	backlog  *store.BacklogStore
	ledger   *store.TestLedger
	sessions *store.SessionStore
	dir      string
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	dir := t.TempDir()
	lm := lock.NewMutexMap()
	f := &fixture{
		features: store.NewFeatureStore(filepath.Join(dir, "features.json"), lm),
		backlog:  store.NewBacklogStore(filepath.Join(dir, "backlog.json"), lm),
		ledger:   store.NewTestLedger(filepath.Join(dir, "tests.json"), lm, nil),
		sessions: store.NewSessionStore(filepath.Join(dir, "sessions")),
		dir:      dir,
	}
	f.coord = New("demo", f.features, f.backlog, f.ledger, f.sessions, nil)
	return f
}

func (f *fixture) saveFeatures(t *testing.T, features []model.Feature) {
	t.Helper()
	if err := f.features.Save(model.FeatureList{ProjectName: "demo", Features: features}); err != nil {
		t.Fatalf("save features: %v", err)
	}
}

func (f *fixture) writeBacklog(t *testing.T, content string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(f.dir, "backlog.json"), []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func (f *fixture) completedSession(t *testing.T, agentType model.AgentType) {
	t.Helper()
	s, err := f.sessions.Create(agentType)
	if err != nil {
		t.Fatalf("create session: %v", err)
	}
	if err := f.sessions.Start(s.ID); err != nil {
		t.Fatalf("start session: %v", err)
	}
	if err := f.sessions.End(s.ID, model.SessionCompleted, &model.SessionResult{Success: true}); err != nil {
		t.Fatalf("end session: %v", err)
	}
}

func TestDerivePhase_Initializer(t *testing.T) {
	phase := DerivePhase(model.FeatureList{}, nil, model.TestLedgerFile{}, nil)
	if phase != model.PhaseInitializer {
		t.Errorf("phase = %s, want initializer", phase)
	}
}

func TestDerivePhase_Building(t *testing.T) {
	fl := model.FeatureList{Features: []model.Feature{
		{ID: "f-1", Passes: true},
		{ID: "f-2", Passes: false},
	}}
	if phase := DerivePhase(fl, nil, model.TestLedgerFile{}, nil); phase != model.PhaseBuilding {
		t.Errorf("phase = %s, want building", phase)
	}
}

func TestDerivePhase_EnhancingFromBacklog(t *testing.T) {
	fl := model.FeatureList{Features: []model.Feature{{ID: "f-1", Passes: true}}}
	backlog := []model.BacklogItem{{ID: "bl-1", Completed: false}}
	if phase := DerivePhase(fl, backlog, model.TestLedgerFile{}, nil); phase != model.PhaseEnhancing {
		t.Errorf("phase = %s, want enhancing", phase)
	}
}

func TestDerivePhase_EnhancingFromLedger(t *testing.T) {
	fl := model.FeatureList{Features: []model.Feature{{ID: "f-1", Passes: true}}}
	ledger := model.TestLedgerFile{Cases: []model.TestCase{{ID: "tc-1", Passes: false}}}
	if phase := DerivePhase(fl, nil, ledger, nil); phase != model.PhaseEnhancing {
		t.Errorf("phase = %s, want enhancing", phase)
	}
}

func TestDerivePhase_CleanupThenComplete(t *testing.T) {
	fl := model.FeatureList{Features: []model.Feature{{ID: "f-1", Passes: true}}}
	coding := []model.Session{{AgentType: model.AgentCoding, Status: model.SessionCompleted}}
	if phase := DerivePhase(fl, nil, model.TestLedgerFile{}, coding); phase != model.PhaseCleanup {
		t.Errorf("phase = %s, want cleanup after coding session", phase)
	}
	cleaned := append(coding, model.Session{AgentType: model.AgentCleanup, Status: model.SessionCompleted})
	if phase := DerivePhase(fl, nil, model.TestLedgerFile{}, cleaned); phase != model.PhaseComplete {
		t.Errorf("phase = %s, want complete after cleanup session", phase)
	}
}

func TestNextDirective_InitializerRole(t *testing.T) {
	f := newFixture(t)
	d, err := f.coord.NextDirective()
	if err != nil {
		t.Fatalf("NextDirective: %v", err)
	}
	if d == nil || d.Role != model.AgentInitializer {
		t.Fatalf("directive = %+v, want initializer role", d)
	}
	if !strings.Contains(d.Prompt, "initializer agent") {
		t.Errorf("prompt missing role text:\n%s", d.Prompt)
	}
	if !strings.Contains(d.Prompt, "demo") {
		t.Errorf("prompt missing project name:\n%s", d.Prompt)
	}
}

func TestNextDirective_BacklogPreemptsFeatures(t *testing.T) {
	f := newFixture(t)
	f.saveFeatures(t, []model.Feature{{ID: "f-1", Description: "feature work", Priority: 1}})
	f.writeBacklog(t, `[{"id":"bl-1","type":"bug","priority":"high","status":"backlog","description":"fix crash","created_at":"2026-01-01T00:00:00Z","completed":false}]`)

	d, err := f.coord.NextDirective()
	if err != nil {
		t.Fatalf("NextDirective: %v", err)
	}
	if d == nil || d.Source != SourceBacklog || d.WorkID != "bl-1" {
		t.Fatalf("directive = %+v, want backlog item bl-1", d)
	}
	if d.Role != model.AgentCoding {
		t.Errorf("role = %s, want coding", d.Role)
	}
	if !strings.Contains(d.Prompt, "fix crash") {
		t.Errorf("prompt missing work description:\n%s", d.Prompt)
	}
}

func TestNextDirective_FeatureWhenBacklogEmpty(t *testing.T) {
	f := newFixture(t)
	f.saveFeatures(t, []model.Feature{
		{ID: "f-2", Description: "later", Priority: 2},
		{ID: "f-1", Description: "first", Priority: 1},
	})

	d, err := f.coord.NextDirective()
	if err != nil {
		t.Fatalf("NextDirective: %v", err)
	}
	if d == nil || d.Source != SourceFeatures || d.WorkID != "f-1" {
		t.Fatalf("directive = %+v, want feature f-1", d)
	}
}

func TestNextDirective_TestingRoleForUnverifiedLedger(t *testing.T) {
	f := newFixture(t)
	f.saveFeatures(t, []model.Feature{{ID: "f-1", Passes: true, Priority: 1}})
	if err := f.ledger.Save(model.TestLedgerFile{Cases: []model.TestCase{
		{ID: "tc-1", Description: "login works", Passes: false},
	}}); err != nil {
		t.Fatal(err)
	}

	d, err := f.coord.NextDirective()
	if err != nil {
		t.Fatalf("NextDirective: %v", err)
	}
	if d == nil || d.Role != model.AgentTesting || d.WorkID != "tc-1" {
		t.Fatalf("directive = %+v, want testing role on tc-1", d)
	}
}

func TestNextDirective_CompleteReturnsNil(t *testing.T) {
	f := newFixture(t)
	f.saveFeatures(t, []model.Feature{{ID: "f-1", Passes: true, Priority: 1}})
	f.completedSession(t, model.AgentCleanup)

	d, err := f.coord.NextDirective()
	if err != nil {
		t.Fatalf("NextDirective: %v", err)
	}
	if d != nil {
		t.Errorf("directive = %+v, want nil when project complete", d)
	}
}

func TestRenderPrompt_AllRoles(t *testing.T) {
	for _, role := range []model.AgentType{model.AgentInitializer, model.AgentCoding, model.AgentTesting, model.AgentCleanup} {
		prompt, err := RenderPrompt(role, PromptContext{ProjectName: "demo", Phase: "building"})
		if err != nil {
			t.Errorf("RenderPrompt(%s): %v", role, err)
			continue
		}
		if !strings.Contains(prompt, "demo") {
			t.Errorf("prompt for %s missing project name", role)
		}
	}
}
