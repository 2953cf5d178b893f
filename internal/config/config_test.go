package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLoadProjectConfigDefaultsWhenMissing(t *testing.T) {
	projectDir := t.TempDir()
	stateDir := filepath.Join(projectDir, BabysitterDir)
	if err := os.MkdirAll(stateDir, 0o755); err != nil {
		t.Fatal(err)
	}
	c := &Config{ProjectDir: projectDir, StateDir: stateDir, Project: defaultProjectConfig()}
	if err := c.loadProjectConfig(); err != nil {
		t.Fatalf("loadProjectConfig returned error: %v", err)
	}
	if c.Project.Version != 1 {
		t.Fatalf("expected default version == 1, got %d", c.Project.Version)
	}
	if c.Project.Executor.Command != defaultExecutorCommand {
		t.Fatalf("expected default executor command, got %q", c.Project.Executor.Command)
	}
	if c.ScoreThreshold() != defaultScoreThreshold {
		t.Fatalf("expected default score threshold, got %v", c.ScoreThreshold())
	}
}

func TestLoadProjectConfigParsesYaml(t *testing.T) {
	projectDir := t.TempDir()
	stateDir := filepath.Join(projectDir, BabysitterDir)
	if err := os.MkdirAll(stateDir, 0o755); err != nil {
		t.Fatal(err)
	}
	configYAML := strings.TrimSpace(`
version: 1
executor:
  command: claude
  args: [--headless]
  dir: workdir
  max_retries: 4
  timeout: 15m
gate:
  score_threshold: 92
checkpoints:
  window: 2h
processes:
  default: rest-api
  available:
    - rest-api
    - hotfix
`)
	if err := os.WriteFile(filepath.Join(stateDir, "config.yaml"), []byte(configYAML), 0o644); err != nil {
		t.Fatal(err)
	}
	c := &Config{ProjectDir: projectDir, StateDir: stateDir, Project: defaultProjectConfig()}
	if err := c.loadProjectConfig(); err != nil {
		t.Fatalf("loadProjectConfig returned error: %v", err)
	}
	if c.Project.Executor.Command != "claude" || c.Project.Executor.MaxRetries != 4 {
		t.Fatalf("executor not parsed: %+v", c.Project.Executor)
	}
	if !strings.HasPrefix(c.Project.Executor.Dir, projectDir) {
		t.Fatalf("expected executor dir to be resolved, got %s", c.Project.Executor.Dir)
	}
	if c.ExecutorTimeout() != 15*time.Minute {
		t.Fatalf("wrong executor timeout: %s", c.ExecutorTimeout())
	}
	if c.ScoreThreshold() != 92 {
		t.Fatalf("wrong score threshold: %v", c.ScoreThreshold())
	}
	if c.CheckpointWindow() != 2*time.Hour {
		t.Fatalf("wrong checkpoint window: %s", c.CheckpointWindow())
	}
	if c.DefaultProcess() != "rest-api" {
		t.Fatalf("wrong default process: %s", c.DefaultProcess())
	}
}

func TestLoadProjectConfigValidation(t *testing.T) {
	projectDir := t.TempDir()
	stateDir := filepath.Join(projectDir, BabysitterDir)
	if err := os.MkdirAll(stateDir, 0o755); err != nil {
		t.Fatal(err)
	}
	cases := map[string]string{
		"bad threshold": "version: 1\ngate:\n  score_threshold: 120\n",
		"bad timeout":   "version: 1\nexecutor:\n  command: agent\n  timeout: soon\n",
		"bad window":    "version: 1\ncheckpoints:\n  window: whenever\n",
	}
	for name, configYAML := range cases {
		if err := os.WriteFile(filepath.Join(stateDir, "config.yaml"), []byte(configYAML), 0o644); err != nil {
			t.Fatal(err)
		}
		c := &Config{ProjectDir: projectDir, StateDir: stateDir, Project: defaultProjectConfig()}
		if err := c.loadProjectConfig(); err == nil {
			t.Fatalf("%s: expected validation error but got none", name)
		}
	}
}

func TestInitStateDirCreatesStructure(t *testing.T) {
	projectDir := t.TempDir()
	if err := InitStateDir(projectDir); err != nil {
		t.Fatalf("InitStateDir returned error: %v", err)
	}
	c, err := NewConfig(projectDir)
	if err != nil {
		t.Fatalf("NewConfig returned error: %v", err)
	}
	for _, dir := range []string{c.EffectsDir(), c.RunsDir(), c.LogsDir(), c.CheckpointsDir(), c.ProcessesDir()} {
		info, err := os.Stat(dir)
		if err != nil || !info.IsDir() {
			t.Fatalf("expected directory %s, got %v", dir, err)
		}
	}
	if _, err := os.Stat(c.ProjectConfigPath()); err != nil {
		t.Fatalf("expected seeded config.yaml: %v", err)
	}
}

func TestSetDefaultProcessPersists(t *testing.T) {
	projectDir := t.TempDir()
	if err := InitStateDir(projectDir); err != nil {
		t.Fatal(err)
	}
	c, err := NewConfig(projectDir)
	if err != nil {
		t.Fatal(err)
	}
	if err := c.SetDefaultProcess("rest-api"); err != nil {
		t.Fatalf("SetDefaultProcess returned error: %v", err)
	}
	reloaded, err := NewConfig(projectDir)
	if err != nil {
		t.Fatal(err)
	}
	if reloaded.DefaultProcess() != "rest-api" {
		t.Fatalf("default process not persisted: %s", reloaded.DefaultProcess())
	}
	if !contains(reloaded.Project.Processes.Available, "rest-api") {
		t.Fatalf("available list not updated: %+v", reloaded.Project.Processes.Available)
	}
}
