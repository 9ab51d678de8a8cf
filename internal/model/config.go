package model

// Config is the per-project configuration, stored as config.yaml under the
// .foreman directory.
type Config struct {
	Project     ProjectConfig     `yaml:"project"`
	Foreman     ForemanConfig     `yaml:"foreman"`
	Agent       AgentConfig       `yaml:"agent"`
	Workflow    WorkflowConfig    `yaml:"workflow"`
	Environment EnvironmentConfig `yaml:"environment"`
	Checks      ChecksConfig      `yaml:"checks"`
	Evidence    EvidenceConfig    `yaml:"evidence"`
	Logging     LoggingConfig     `yaml:"logging"`
}

type ProjectConfig struct {
	Name        string `yaml:"name"`
	Description string `yaml:"description"`
}

type ForemanConfig struct {
	Version     string `yaml:"version"`
	Created     string `yaml:"created"`
	ProjectRoot string `yaml:"project_root"`
}

type AgentConfig struct {
	Model         string `yaml:"model"`
	MaxConcurrent int    `yaml:"max_concurrent"`
}

type WorkflowConfig struct {
	MaxIterations  int `yaml:"max_iterations"`
	StepTimeoutSec int `yaml:"step_timeout_sec"`
}

type EnvironmentConfig struct {
	StartupCommand  string `yaml:"startup_command"`
	LivenessURL     string `yaml:"liveness_url"`
	PollIntervalSec int    `yaml:"poll_interval_sec"`
	ReadyTimeoutSec int    `yaml:"ready_timeout_sec"`
}

type ChecksConfig struct {
	Style      CheckCommand `yaml:"style"`
	Build      CheckCommand `yaml:"build"`
	Behavioral CheckCommand `yaml:"behavioral"`
}

// CheckCommand describes one opaque external check. An empty Command means
// the check cannot be attempted and is reported as skipped (the behavioral
// check instead falls back to an HTTP liveness probe).
type CheckCommand struct {
	Command    string `yaml:"command"`
	Manifest   string `yaml:"manifest,omitempty"`
	TimeoutSec int    `yaml:"timeout_sec"`
}

type EvidenceConfig struct {
	FailureMarkers []string `yaml:"failure_markers"`
}

type LoggingConfig struct {
	Level string `yaml:"level"`
}

// ApplyDefaults fills zero-valued fields with operational defaults.
func (c *Config) ApplyDefaults() {
	if c.Agent.MaxConcurrent == 0 {
		c.Agent.MaxConcurrent = 1
	}
	if c.Workflow.MaxIterations == 0 {
		c.Workflow.MaxIterations = 3
	}
	if c.Workflow.StepTimeoutSec == 0 {
		c.Workflow.StepTimeoutSec = 600
	}
	if c.Environment.PollIntervalSec == 0 {
		c.Environment.PollIntervalSec = 1
	}
	if c.Environment.ReadyTimeoutSec == 0 {
		c.Environment.ReadyTimeoutSec = 60
	}
	if c.Checks.Style.TimeoutSec == 0 {
		c.Checks.Style.TimeoutSec = 120
	}
	if c.Checks.Build.TimeoutSec == 0 {
		c.Checks.Build.TimeoutSec = 300
	}
	if c.Checks.Behavioral.TimeoutSec == 0 {
		c.Checks.Behavioral.TimeoutSec = 300
	}
	if len(c.Evidence.FailureMarkers) == 0 {
		c.Evidence.FailureMarkers = []string{"ERROR", "FAILED", "Exception", "Traceback"}
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
}
