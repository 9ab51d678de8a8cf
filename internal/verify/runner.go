// Package verify runs the independent post-coding checks and aggregates
// their verdicts. Retry policy belongs to the workflow controller, never
// here.
package verify

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/exec"
	"path/filepath"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/ofujimoto/foreman/internal/env"
	"github.com/ofujimoto/foreman/internal/model"
)

// CheckStatus is the verdict of one check.
type CheckStatus string

const (
	StatusPassed CheckStatus = "passed"
	StatusFailed CheckStatus = "failed"
	// StatusSkipped means the check could not even be attempted (no
	// command configured, manifest missing). Non-blocking: counts as
	// passed for aggregation.
	StatusSkipped CheckStatus = "skipped"
)

// Check names. These appear in aggregate results and diagnostics.
const (
	CheckStyle      = "style"
	CheckBuild      = "build"
	CheckBehavioral = "behavioral"
)

// CheckResult is the outcome of one check.
type CheckResult struct {
	Name     string        `json:"name"`
	Status   CheckStatus   `json:"status"`
	Output   string        `json:"output,omitempty"`
	Error    string        `json:"error,omitempty"`
	Duration time.Duration `json:"duration"`
}

// Result aggregates the three checks.
type Result struct {
	Passed       bool          `json:"passed"`
	Checks       []CheckResult `json:"checks"`
	FailedChecks []string      `json:"failed_checks,omitempty"`
	Duration     time.Duration `json:"duration"`
}

// Runner executes the style, build, and behavioral checks. The checks are
// independent; they run concurrently and all results are collected before
// the aggregate decision (a join point, not a race).
type Runner struct {
	cfg     model.ChecksConfig
	workDir string
	envMgr  *env.Manager
	logger  *log.Logger
}

func NewRunner(cfg model.ChecksConfig, workDir string, envMgr *env.Manager, logger *log.Logger) *Runner {
	if logger == nil {
		logger = log.Default()
	}
	return &Runner{cfg: cfg, workDir: workDir, envMgr: envMgr, logger: logger}
}

// Run executes all checks and aggregates. Check failures are data, not
// errors; the error return covers only infrastructure problems.
func (r *Runner) Run(ctx context.Context) (Result, error) {
	start := time.Now()
	results := make([]CheckResult, 3)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		results[0] = r.runCommand(gctx, CheckStyle, r.cfg.Style)
		return nil
	})
	g.Go(func() error {
		results[1] = r.runCommand(gctx, CheckBuild, r.cfg.Build)
		return nil
	})
	g.Go(func() error {
		results[2] = r.runBehavioral(gctx)
		return nil
	})
	if err := g.Wait(); err != nil {
		return Result{}, err
	}

	agg := Result{Passed: true, Checks: results, Duration: time.Since(start)}
	for _, c := range results {
		if c.Status == StatusFailed {
			agg.Passed = false
			agg.FailedChecks = append(agg.FailedChecks, c.Name)
		}
	}

	r.logger.Printf("verify_done passed=%v failed=%v duration=%s", agg.Passed, agg.FailedChecks, agg.Duration.Round(time.Millisecond))
	return agg, nil
}

func (r *Runner) runCommand(ctx context.Context, name string, cc model.CheckCommand) CheckResult {
	if cc.Command == "" {
		return CheckResult{Name: name, Status: StatusSkipped, Output: "no command configured"}
	}
	if cc.Manifest != "" {
		if _, err := os.Stat(filepath.Join(r.workDir, cc.Manifest)); err != nil {
			return CheckResult{Name: name, Status: StatusSkipped, Output: fmt.Sprintf("manifest %s not present", cc.Manifest)}
		}
	}

	start := time.Now()
	timeout := time.Duration(cc.TimeoutSec) * time.Second
	cctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(cctx, "sh", "-c", cc.Command)
	cmd.Dir = r.workDir
	out, err := cmd.CombinedOutput()
	duration := time.Since(start)

	result := CheckResult{Name: name, Output: string(out), Duration: duration}
	switch {
	case cctx.Err() == context.DeadlineExceeded:
		// Timeout is treated identically to a command failure.
		result.Status = StatusFailed
		result.Error = fmt.Sprintf("timed out after %s", timeout)
	case err != nil:
		result.Status = StatusFailed
		result.Error = err.Error()
	default:
		result.Status = StatusPassed
	}
	return result
}

// runBehavioral runs the configured behavioral check, falling back to an
// HTTP liveness probe when no richer test command is configured.
func (r *Runner) runBehavioral(ctx context.Context) CheckResult {
	if r.cfg.Behavioral.Command != "" {
		return r.runCommand(ctx, CheckBehavioral, r.cfg.Behavioral)
	}
	if r.envMgr == nil || !r.envMgr.HasLivenessURL() {
		return CheckResult{Name: CheckBehavioral, Status: StatusSkipped, Output: "no command and no liveness probe configured"}
	}

	start := time.Now()
	if r.envMgr.Probe(ctx) {
		return CheckResult{Name: CheckBehavioral, Status: StatusPassed, Output: "liveness probe answered", Duration: time.Since(start)}
	}
	return CheckResult{
		Name:     CheckBehavioral,
		Status:   StatusFailed,
		Error:    "liveness probe did not answer",
		Duration: time.Since(start),
	}
}
