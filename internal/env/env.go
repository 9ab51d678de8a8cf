// Package env starts the project's development environment and waits for
// it to become live.
package env

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os/exec"
	"time"

	"github.com/ofujimoto/foreman/internal/model"
)

// Manager shells out to the configured startup command and polls the
// liveness URL. The startup command is expected to background a long-lived
// process and be idempotent when the environment is already running.
type Manager struct {
	cfg        model.EnvironmentConfig
	workDir    string
	logger     *log.Logger
	httpClient *http.Client
}

func NewManager(cfg model.EnvironmentConfig, workDir string, logger *log.Logger) *Manager {
	if logger == nil {
		logger = log.Default()
	}
	return &Manager{
		cfg:     cfg,
		workDir: workDir,
		logger:  logger,
		httpClient: &http.Client{
			Timeout: 5 * time.Second,
		},
	}
}

// Startup invokes the startup command. No command configured is not an
// error; the environment is assumed to be managed externally.
func (m *Manager) Startup(ctx context.Context) error {
	if m.cfg.StartupCommand == "" {
		m.logger.Printf("env_startup_skip reason=no_command")
		return nil
	}

	cmd := exec.CommandContext(ctx, "sh", "-c", m.cfg.StartupCommand)
	cmd.Dir = m.workDir
	out, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("startup command failed: %w: %s", err, truncate(string(out), 500))
	}
	m.logger.Printf("env_startup_ok command=%q", m.cfg.StartupCommand)
	return nil
}

// WaitReady polls the liveness URL every poll interval until it answers
// with a non-5xx status or the ready ceiling is reached. Exceeding the
// ceiling is a failure, never an indefinite hang.
func (m *Manager) WaitReady(ctx context.Context) error {
	if m.cfg.LivenessURL == "" {
		m.logger.Printf("env_ready_skip reason=no_liveness_url")
		return nil
	}

	interval := time.Duration(m.cfg.PollIntervalSec) * time.Second
	if interval <= 0 {
		interval = time.Second
	}
	deadline := time.Now().Add(time.Duration(m.cfg.ReadyTimeoutSec) * time.Second)

	attempt := 0
	for {
		attempt++
		if ok := m.probe(ctx); ok {
			m.logger.Printf("env_ready attempts=%d", attempt)
			return nil
		}
		if time.Now().After(deadline) {
			return fmt.Errorf("environment not live after %ds (%d attempts): %s",
				m.cfg.ReadyTimeoutSec, attempt, m.cfg.LivenessURL)
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("liveness poll cancelled: %w", ctx.Err())
		case <-time.After(interval):
		}
	}
}

// Probe performs a single liveness check.
func (m *Manager) Probe(ctx context.Context) bool {
	return m.probe(ctx)
}

// HasLivenessURL reports whether a liveness endpoint is configured.
func (m *Manager) HasLivenessURL() bool {
	return m.cfg.LivenessURL != ""
}

func (m *Manager) probe(ctx context.Context) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, m.cfg.LivenessURL, nil)
	if err != nil {
		return false
	}
	resp, err := m.httpClient.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	return resp.StatusCode < 500
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
