package setup

import (
	"os"
	"path/filepath"
	"testing"

	yamlv3 "gopkg.in/yaml.v3"

	"github.com/ofujimoto/foreman/internal/jsonfile"
	"github.com/ofujimoto/foreman/internal/model"
)

func TestRun_CreatesStructure(t *testing.T) {
	dir := t.TempDir()
	if err := Run(dir, "myproject"); err != nil {
		t.Fatalf("Run: %v", err)
	}

	base := filepath.Join(dir, Dir)
	for _, d := range []string{"sessions", "journal", "locks", "logs", "quarantine"} {
		info, err := os.Stat(filepath.Join(base, d))
		if err != nil || !info.IsDir() {
			t.Errorf("missing directory %s: %v", d, err)
		}
	}
	for _, f := range []string{
		"config.yaml",
		"features.json",
		"backlog.json",
		"tests.json",
		"state.json",
		filepath.Join("journal", "progress.md"),
		filepath.Join("journal", "entries.json"),
		filepath.Join("locks", "session.lock"),
	} {
		if _, err := os.Stat(filepath.Join(base, f)); err != nil {
			t.Errorf("missing file %s: %v", f, err)
		}
	}
}

func TestRun_ConfigAutoFill(t *testing.T) {
	dir := t.TempDir()
	if err := Run(dir, ""); err != nil {
		t.Fatalf("Run: %v", err)
	}

	data, err := os.ReadFile(filepath.Join(dir, Dir, "config.yaml"))
	if err != nil {
		t.Fatal(err)
	}
	var cfg model.Config
	if err := yamlv3.Unmarshal(data, &cfg); err != nil {
		t.Fatalf("parse config: %v", err)
	}
	if cfg.Project.Name != filepath.Base(dir) {
		t.Errorf("project name = %q, want directory basename %q", cfg.Project.Name, filepath.Base(dir))
	}
	if cfg.Foreman.ProjectRoot == "" || cfg.Foreman.Created == "" {
		t.Errorf("auto-filled fields missing: %+v", cfg.Foreman)
	}
	if cfg.Workflow.MaxIterations != 3 {
		t.Errorf("max_iterations = %d, want template default 3", cfg.Workflow.MaxIterations)
	}
}

func TestRun_SeedsPausedState(t *testing.T) {
	dir := t.TempDir()
	if err := Run(dir, "p"); err != nil {
		t.Fatalf("Run: %v", err)
	}

	var state model.AgentState
	if err := jsonfile.Read(filepath.Join(dir, Dir, "state.json"), &state); err != nil {
		t.Fatal(err)
	}
	if state.DesiredState != model.RunPause || state.CurrentState != model.RunPause {
		t.Errorf("seeded state = %+v, want pause/pause", state)
	}
	if state.SetBy != model.SetterSystem {
		t.Errorf("set_by = %s, want system", state.SetBy)
	}
}

func TestRun_SeedsEmptyStores(t *testing.T) {
	dir := t.TempDir()
	if err := Run(dir, "p"); err != nil {
		t.Fatalf("Run: %v", err)
	}

	var fl model.FeatureList
	if err := jsonfile.Read(filepath.Join(dir, Dir, "features.json"), &fl); err != nil {
		t.Fatal(err)
	}
	if fl.ProjectName != "p" || len(fl.Features) != 0 || fl.TotalCount != 0 {
		t.Errorf("features = %+v, want empty list for project p", fl)
	}

	var items []model.BacklogItem
	if err := jsonfile.Read(filepath.Join(dir, Dir, "backlog.json"), &items); err != nil {
		t.Fatal(err)
	}
	if len(items) != 0 {
		t.Errorf("backlog = %+v, want empty", items)
	}
}

func TestRun_RefusesReinit(t *testing.T) {
	dir := t.TempDir()
	if err := Run(dir, "p"); err != nil {
		t.Fatalf("first Run: %v", err)
	}
	if err := Run(dir, "p"); err == nil {
		t.Fatal("second Run succeeded, want refusal")
	}
}
