// Package config handles configuration and the .babysitter directory
// structure. Every project that runs babysitter gets a .babysitter/ folder
// created in its root, holding effects, run state, logs, and checkpoints.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	// BabysitterDir is the name of the directory created in each project.
	BabysitterDir = ".babysitter"

	defaultExecutorCommand = "agent"
	defaultScoreThreshold  = 80.0
)

const defaultProjectConfigYAML = `# babysitter project configuration
version: 1

# The agent executor command. Requests are written to its stdin as JSON and
# the schema-validated output is read back from its stdout.
executor:
  command: agent
  # args: [--headless]
  max_retries: 2
  timeout: 30m

# Gate settings. Runs pass when the validation score meets the threshold.
gate:
  score_threshold: 80

# Checkpoint settings. A review left unanswered past the window times out and
# the run completes unsuccessfully.
checkpoints:
  window: 24h

processes:
  # default: rest-api
`

// ExecutorConfig declares how the agent executor process is launched.
type ExecutorConfig struct {
	Command    string   `yaml:"command"`
	Args       []string `yaml:"args,omitempty"`
	Dir        string   `yaml:"dir,omitempty"`
	MaxRetries int      `yaml:"max_retries,omitempty"`
	Timeout    string   `yaml:"timeout,omitempty"`
}

// GateConfig captures validation gate preferences.
type GateConfig struct {
	ScoreThreshold float64 `yaml:"score_threshold,omitempty"`
}

// CheckpointConfig captures review window preferences.
type CheckpointConfig struct {
	Window string `yaml:"window,omitempty"`
}

// ProcessConfig captures process selection preferences.
type ProcessConfig struct {
	Default   string   `yaml:"default,omitempty"`
	Available []string `yaml:"available,omitempty"`
}

// ProjectConfig models .babysitter/config.yaml.
type ProjectConfig struct {
	Version     int              `yaml:"version"`
	Executor    ExecutorConfig   `yaml:"executor"`
	Gate        GateConfig       `yaml:"gate"`
	Checkpoints CheckpointConfig `yaml:"checkpoints"`
	Processes   ProcessConfig    `yaml:"processes"`
}

// Config holds the runtime configuration for babysitter.
type Config struct {
	// ProjectDir is the directory where the user ran `babysitter` from.
	ProjectDir string

	// StateDir is ProjectDir/.babysitter.
	StateDir string

	Project ProjectConfig
}

// InitStateDir creates the .babysitter directory structure in the given
// project directory. Called on startup before any run begins.
//
// Structure created:
// .babysitter/
// ├── effects/      <- Persisted dispatch inputs and results, keyed by run
// ├── runs/         <- Run state snapshots
// ├── logs/         <- Run logbooks
// ├── checkpoints/  <- File-based checkpoint prompts and decisions
// └── processes/    <- Project-local process definitions (YAML or Go)
func InitStateDir(projectDir string) error {
	stateDir := filepath.Join(projectDir, BabysitterDir)

	dirs := []string{
		filepath.Join(stateDir, "effects"),
		filepath.Join(stateDir, "runs"),
		filepath.Join(stateDir, "logs"),
		filepath.Join(stateDir, "checkpoints"),
		filepath.Join(stateDir, "processes"),
	}
	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}

	return ensureProjectConfig(filepath.Join(stateDir, "config.yaml"))
}

// NewConfig creates a Config populated from .babysitter/config.yaml, falling
// back to defaults when the file does not exist yet.
func NewConfig(projectDir string) (*Config, error) {
	cfg := &Config{
		ProjectDir: projectDir,
		StateDir:   filepath.Join(projectDir, BabysitterDir),
		Project:    defaultProjectConfig(),
	}
	if err := cfg.loadProjectConfig(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// EffectsDir returns the directory holding persisted dispatch effects.
func (c *Config) EffectsDir() string {
	return filepath.Join(c.StateDir, "effects")
}

// RunsDir returns the directory holding run state snapshots.
func (c *Config) RunsDir() string {
	return filepath.Join(c.StateDir, "runs")
}

// LogsDir returns the directory holding run logbooks.
func (c *Config) LogsDir() string {
	return filepath.Join(c.StateDir, "logs")
}

// CheckpointsDir returns the directory used by the file checkpoint resolver.
func (c *Config) CheckpointsDir() string {
	return filepath.Join(c.StateDir, "checkpoints")
}

// ProcessesDir returns the directory scanned for process definitions.
func (c *Config) ProcessesDir() string {
	return filepath.Join(c.StateDir, "processes")
}

// ProjectConfigPath returns the on-disk location for the project config file.
func (c *Config) ProjectConfigPath() string {
	return filepath.Join(c.StateDir, "config.yaml")
}

// ScoreThreshold returns the configured gate threshold.
func (c *Config) ScoreThreshold() float64 {
	if c.Project.Gate.ScoreThreshold <= 0 {
		return defaultScoreThreshold
	}
	return c.Project.Gate.ScoreThreshold
}

// ExecutorTimeout returns the configured executor timeout, or zero when the
// executor's own default should apply.
func (c *Config) ExecutorTimeout() time.Duration {
	trimmed := strings.TrimSpace(c.Project.Executor.Timeout)
	if trimmed == "" {
		return 0
	}
	d, err := time.ParseDuration(trimmed)
	if err != nil {
		return 0
	}
	return d
}

// CheckpointWindow returns the configured default review window, or zero when
// the engine's default should apply.
func (c *Config) CheckpointWindow() time.Duration {
	trimmed := strings.TrimSpace(c.Project.Checkpoints.Window)
	if trimmed == "" {
		return 0
	}
	d, err := time.ParseDuration(trimmed)
	if err != nil {
		return 0
	}
	return d
}

// DefaultProcess returns the configured default process identifier.
func (c *Config) DefaultProcess() string {
	return c.Project.Processes.Default
}

// SetDefaultProcess updates the default process identifier and persists the
// value back to .babysitter/config.yaml. The ID is also appended to the
// available list so the selector can display it on future launches.
func (c *Config) SetDefaultProcess(id string) error {
	id = strings.TrimSpace(id)
	if id == "" {
		return fmt.Errorf("config: process id is required")
	}
	c.Project.Processes.Default = id
	if !contains(c.Project.Processes.Available, id) {
		c.Project.Processes.Available = append(c.Project.Processes.Available, id)
	}
	return c.saveProjectConfig()
}

func (c *Config) loadProjectConfig() error {
	path := c.ProjectConfigPath()
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("config: read %s: %w", path, err)
	}

	var parsed ProjectConfig
	if err := yaml.Unmarshal(data, &parsed); err != nil {
		return fmt.Errorf("config: parse %s: %w", path, err)
	}

	parsed.applyDefaults()
	parsed.normalize(c.ProjectDir)
	if err := parsed.validate(); err != nil {
		return fmt.Errorf("config: %w", err)
	}

	c.Project = parsed
	return nil
}

func defaultProjectConfig() ProjectConfig {
	return ProjectConfig{
		Version: 1,
		Executor: ExecutorConfig{
			Command: defaultExecutorCommand,
		},
		Gate: GateConfig{ScoreThreshold: defaultScoreThreshold},
	}
}

func (pc *ProjectConfig) applyDefaults() {
	if pc.Version == 0 {
		pc.Version = 1
	}
	if strings.TrimSpace(pc.Executor.Command) == "" {
		pc.Executor.Command = defaultExecutorCommand
	}
	if pc.Gate.ScoreThreshold == 0 {
		pc.Gate.ScoreThreshold = defaultScoreThreshold
	}
}

func (pc *ProjectConfig) normalize(base string) {
	pc.Executor.Command = strings.TrimSpace(pc.Executor.Command)
	pc.Executor.Dir = resolvePath(base, pc.Executor.Dir)
	pc.Executor.Timeout = strings.TrimSpace(pc.Executor.Timeout)
	pc.Checkpoints.Window = strings.TrimSpace(pc.Checkpoints.Window)
	pc.Processes.Default = strings.TrimSpace(pc.Processes.Default)
	if pc.Processes.Default != "" && !contains(pc.Processes.Available, pc.Processes.Default) {
		pc.Processes.Available = append(pc.Processes.Available, pc.Processes.Default)
	}
}

func (pc *ProjectConfig) validate() error {
	if pc.Version < 1 {
		return fmt.Errorf("config version must be >= 1")
	}
	if pc.Executor.Command == "" {
		return fmt.Errorf("executor.command is required")
	}
	if pc.Executor.MaxRetries < 0 {
		return fmt.Errorf("executor.max_retries must be >= 0")
	}
	if pc.Executor.Timeout != "" {
		if _, err := time.ParseDuration(pc.Executor.Timeout); err != nil {
			return fmt.Errorf("executor.timeout %q: %w", pc.Executor.Timeout, err)
		}
	}
	if pc.Gate.ScoreThreshold < 0 || pc.Gate.ScoreThreshold > 100 {
		return fmt.Errorf("gate.score_threshold must be within [0,100]")
	}
	if pc.Checkpoints.Window != "" {
		if _, err := time.ParseDuration(pc.Checkpoints.Window); err != nil {
			return fmt.Errorf("checkpoints.window %q: %w", pc.Checkpoints.Window, err)
		}
	}
	return nil
}

func contains(values []string, target string) bool {
	for _, v := range values {
		if strings.EqualFold(strings.TrimSpace(v), target) {
			return true
		}
	}
	return false
}

func resolvePath(base, candidate string) string {
	trimmed := strings.TrimSpace(candidate)
	if trimmed == "" {
		return ""
	}
	if filepath.IsAbs(trimmed) {
		return filepath.Clean(trimmed)
	}
	return filepath.Clean(filepath.Join(base, trimmed))
}

func ensureProjectConfig(path string) error {
	if _, err := os.Stat(path); err == nil {
		return nil
	} else if !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return os.WriteFile(path, []byte(defaultProjectConfigYAML), 0o644)
}

func (c *Config) saveProjectConfig() error {
	if c == nil {
		return fmt.Errorf("config: nil receiver")
	}
	c.Project.applyDefaults()
	c.Project.normalize(c.ProjectDir)
	if err := c.Project.validate(); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	if err := os.MkdirAll(c.StateDir, 0o755); err != nil {
		return fmt.Errorf("config: ensure state dir: %w", err)
	}
	data, err := yaml.Marshal(c.Project)
	if err != nil {
		return fmt.Errorf("config: encode config: %w", err)
	}
	if err := os.WriteFile(c.ProjectConfigPath(), data, 0o644); err != nil {
		return fmt.Errorf("config: write project config: %w", err)
	}
	return nil
}
