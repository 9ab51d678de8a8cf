// Package setup handles foreman project initialization.
package setup

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	yamlv3 "gopkg.in/yaml.v3"

	"github.com/ofujimoto/foreman/internal/jsonfile"
	"github.com/ofujimoto/foreman/internal/model"
	"github.com/ofujimoto/foreman/templates"
)

// Dir is the name of the per-project state directory.
const Dir = ".foreman"

// Run initializes the .foreman/ directory structure in the given project
// directory. projectName overrides the auto-detected name (defaults to the
// directory basename if empty). Refuses to re-initialize.
func Run(projectDir, projectName string) error {
	absDir, err := filepath.Abs(projectDir)
	if err != nil {
		return fmt.Errorf("resolve project dir: %w", err)
	}

	base := filepath.Join(absDir, Dir)

	if _, err := os.Stat(base); err == nil {
		return fmt.Errorf("%s already exists", base)
	}

	dirs := []string{
		"sessions",
		"journal",
		"locks",
		"logs",
		"quarantine",
	}
	for _, d := range dirs {
		if err := os.MkdirAll(filepath.Join(base, d), 0755); err != nil {
			return fmt.Errorf("create directory %s: %w", d, err)
		}
	}

	cfg, err := generateConfig(absDir, projectName)
	if err != nil {
		return fmt.Errorf("generate config: %w", err)
	}
	if err := writeConfig(filepath.Join(base, "config.yaml"), cfg); err != nil {
		return fmt.Errorf("write config.yaml: %w", err)
	}

	now := time.Now().Format(time.RFC3339)

	features := model.FeatureList{
		ProjectName: cfg.Project.Name,
		Features:    []model.Feature{},
	}
	if err := jsonfile.Write(filepath.Join(base, "features.json"), features); err != nil {
		return fmt.Errorf("write features.json: %w", err)
	}

	if err := jsonfile.Write(filepath.Join(base, "backlog.json"), []model.BacklogItem{}); err != nil {
		return fmt.Errorf("write backlog.json: %w", err)
	}

	ledger := model.TestLedgerFile{
		Version:   "1",
		CreatedAt: now,
		UpdatedAt: now,
		Cases:     []model.TestCase{},
	}
	if err := jsonfile.Write(filepath.Join(base, "tests.json"), ledger); err != nil {
		return fmt.Errorf("write tests.json: %w", err)
	}

	state := model.DefaultAgentState()
	state.UpdatedAt = now
	state.Note = "initialized"
	if err := jsonfile.Write(filepath.Join(base, "state.json"), state); err != nil {
		return fmt.Errorf("write state.json: %w", err)
	}

	if err := os.WriteFile(filepath.Join(base, "journal", "progress.md"), []byte("# Progress Log\n"), 0644); err != nil {
		return fmt.Errorf("write progress.md: %w", err)
	}
	if err := jsonfile.Write(filepath.Join(base, "journal", "entries.json"), []model.ProgressEntry{}); err != nil {
		return fmt.Errorf("write entries.json: %w", err)
	}

	// Session lock file placeholder; locked at run time via flock.
	if err := os.WriteFile(filepath.Join(base, "locks", "session.lock"), nil, 0600); err != nil {
		return fmt.Errorf("create session.lock: %w", err)
	}

	return nil
}

func generateConfig(projectDir, projectName string) (*model.Config, error) {
	data, err := fs.ReadFile(templates.FS, "config.yaml")
	if err != nil {
		return nil, fmt.Errorf("read config template: %w", err)
	}

	var cfg model.Config
	if err := yamlv3.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config template: %w", err)
	}

	if projectName != "" {
		cfg.Project.Name = projectName
	} else {
		cfg.Project.Name = filepath.Base(projectDir)
	}
	cfg.Foreman.ProjectRoot = projectDir
	cfg.Foreman.Created = time.Now().Format(time.RFC3339)

	return &cfg, nil
}

func writeConfig(path string, cfg *model.Config) error {
	data, err := yamlv3.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	return os.WriteFile(path, data, 0644)
}
