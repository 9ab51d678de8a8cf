package verify

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/ofujimoto/foreman/internal/env"
	"github.com/ofujimoto/foreman/internal/model"
)

func runnerFixture(t *testing.T, cfg model.ChecksConfig, envMgr *env.Manager) *Runner {
	t.Helper()
	cfg.Style.TimeoutSec = max(cfg.Style.TimeoutSec, 10)
	cfg.Build.TimeoutSec = max(cfg.Build.TimeoutSec, 10)
	cfg.Behavioral.TimeoutSec = max(cfg.Behavioral.TimeoutSec, 10)
	return NewRunner(cfg, t.TempDir(), envMgr, nil)
}

func findCheck(t *testing.T, res Result, name string) CheckResult {
	t.Helper()
	for _, c := range res.Checks {
		if c.Name == name {
			return c
		}
	}
	t.Fatalf("check %q not in result", name)
	return CheckResult{}
}

func TestRun_AllPass(t *testing.T) {
	r := runnerFixture(t, model.ChecksConfig{
		Style:      model.CheckCommand{Command: "true"},
		Build:      model.CheckCommand{Command: "true"},
		Behavioral: model.CheckCommand{Command: "echo behavioral ok"},
	}, nil)

	res, err := r.Run(context.Background())
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if !res.Passed {
		t.Errorf("Passed = false, failed: %v", res.FailedChecks)
	}
	if len(res.Checks) != 3 {
		t.Errorf("got %d checks, want 3", len(res.Checks))
	}
	if out := findCheck(t, res, CheckBehavioral).Output; !strings.Contains(out, "behavioral ok") {
		t.Errorf("behavioral output = %q", out)
	}
}

func TestRun_CollectsFailedCheckNames(t *testing.T) {
	r := runnerFixture(t, model.ChecksConfig{
		Style:      model.CheckCommand{Command: "echo lint error; exit 1"},
		Build:      model.CheckCommand{Command: "true"},
		Behavioral: model.CheckCommand{Command: "exit 2"},
	}, nil)

	res, err := r.Run(context.Background())
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if res.Passed {
		t.Error("Passed = true, want false")
	}
	if len(res.FailedChecks) != 2 {
		t.Errorf("FailedChecks = %v, want style and behavioral", res.FailedChecks)
	}
	style := findCheck(t, res, CheckStyle)
	if style.Status != StatusFailed || !strings.Contains(style.Output, "lint error") {
		t.Errorf("style check = %+v", style)
	}
}

func TestRun_SkippedCountsAsPassed(t *testing.T) {
	// No style command, no behavioral command, no liveness probe: both are
	// skipped and non-blocking.
	r := runnerFixture(t, model.ChecksConfig{
		Build: model.CheckCommand{Command: "true"},
	}, nil)

	res, err := r.Run(context.Background())
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if !res.Passed {
		t.Errorf("Passed = false with only skipped/passing checks: %+v", res.Checks)
	}
	if got := findCheck(t, res, CheckStyle).Status; got != StatusSkipped {
		t.Errorf("style status = %q, want skipped", got)
	}
	if got := findCheck(t, res, CheckBehavioral).Status; got != StatusSkipped {
		t.Errorf("behavioral status = %q, want skipped", got)
	}
}

func TestRun_MissingManifestSkips(t *testing.T) {
	r := runnerFixture(t, model.ChecksConfig{
		Style: model.CheckCommand{Command: "true", Manifest: "package.json"},
	}, nil)

	res, err := r.Run(context.Background())
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	got := findCheck(t, res, CheckStyle)
	if got.Status != StatusSkipped {
		t.Errorf("style status = %q, want skipped when manifest absent", got.Status)
	}
}

func TestRun_CommandTimeout(t *testing.T) {
	r := NewRunner(model.ChecksConfig{
		Style:      model.CheckCommand{Command: "sleep 5", TimeoutSec: 1},
		Build:      model.CheckCommand{Command: "true", TimeoutSec: 10},
		Behavioral: model.CheckCommand{Command: "true", TimeoutSec: 10},
	}, t.TempDir(), nil, nil)

	res, err := r.Run(context.Background())
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	style := findCheck(t, res, CheckStyle)
	if style.Status != StatusFailed {
		t.Errorf("style status = %q, want failed on timeout", style.Status)
	}
	if !strings.Contains(style.Error, "timed out") {
		t.Errorf("style error = %q, want timeout diagnostic", style.Error)
	}
}

func TestRun_BehavioralFallsBackToLivenessProbe(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	envMgr := env.NewManager(model.EnvironmentConfig{LivenessURL: srv.URL}, t.TempDir(), nil)
	r := runnerFixture(t, model.ChecksConfig{
		Style: model.CheckCommand{Command: "true"},
		Build: model.CheckCommand{Command: "true"},
	}, envMgr)

	res, err := r.Run(context.Background())
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	got := findCheck(t, res, CheckBehavioral)
	if got.Status != StatusPassed {
		t.Errorf("behavioral status = %q, want passed via probe", got.Status)
	}
}

func TestRun_WorkDirRespected(t *testing.T) {
	dir := t.TempDir()
	r := NewRunner(model.ChecksConfig{
		Style:      model.CheckCommand{Command: "test -f marker.txt", TimeoutSec: 10},
		Build:      model.CheckCommand{Command: "true", TimeoutSec: 10},
		Behavioral: model.CheckCommand{Command: "true", TimeoutSec: 10},
	}, dir, nil, nil)

	res, _ := r.Run(context.Background())
	if findCheck(t, res, CheckStyle).Status != StatusFailed {
		t.Fatal("expected style to fail before marker exists")
	}

	if err := os.WriteFile(filepath.Join(dir, "marker.txt"), []byte("x\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	res, _ = r.Run(context.Background())
	if findCheck(t, res, CheckStyle).Status != StatusPassed {
		t.Error("expected style to pass once marker exists")
	}
}
