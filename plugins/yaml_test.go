package plugins

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

const sampleDefinition = `
id: rest-api
name: REST API Delivery
phases:
  - name: scaffold
    task:
      title: Scaffold the service
      instructions:
        - Create the project skeleton
      output:
        required: [done]
        properties:
          done: {type: boolean}
  - name: testing
    needs:
      - phase: scaffold
        fields: [done]
    task:
      title: Write and run tests
      instructions:
        - Cover every endpoint
      output:
        properties:
          passed: {type: integer}
gate:
  task:
    title: Validate the delivery
    instructions:
      - Score the delivery
    output:
      required: [overallScore, passedChecks]
      properties:
        overallScore: {type: number, minimum: 0, maximum: 100}
        passedChecks: {type: array, items: {type: string}}
  rules:
    - field: overallScore
      op: ">="
      value: 85
  checkpoint:
    title: Release Review
    question: Ship this delivery?
    window: 30m
`

func TestParseDefinitionYAML(t *testing.T) {
	def, err := ParseDefinitionYAML([]byte(sampleDefinition))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if def.ID != "rest-api" {
		t.Fatalf("unexpected id %s", def.ID)
	}
	if len(def.Phases) != 2 {
		t.Fatalf("expected 2 phases, got %d", len(def.Phases))
	}
	if def.Phases[1].Needs[0].Fields[0] != "done" {
		t.Fatalf("unexpected needs: %+v", def.Phases[1].Needs)
	}
	if def.Gate.Checkpoint == nil || def.Gate.Checkpoint.Window != 30*time.Minute {
		t.Fatalf("expected 30m checkpoint window, got %+v", def.Gate.Checkpoint)
	}
	if len(def.Gate.Rules) != 1 || def.Gate.Rules[0].Value != 85 {
		t.Fatalf("unexpected rules: %+v", def.Gate.Rules)
	}
}

func TestParseDefinitionYAMLRejectsEmptyPayload(t *testing.T) {
	if _, err := ParseDefinitionYAML([]byte("  \n")); err == nil {
		t.Fatalf("expected error for empty payload")
	}
}

func TestParseDefinitionYAMLRejectsForwardDependency(t *testing.T) {
	bad := strings.Replace(sampleDefinition, "phase: scaffold", "phase: testing", 1)
	if _, err := ParseDefinitionYAML([]byte(bad)); err == nil {
		t.Fatalf("expected error for dependency on a non-earlier phase")
	}
}

func TestLoadDefinitionDir(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "rest-api.yaml"), []byte(sampleDefinition), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("ignored"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	defs, err := LoadDefinitionDir(dir)
	if err != nil {
		t.Fatalf("load dir: %v", err)
	}
	if len(defs) != 1 {
		t.Fatalf("expected one definition, got %d", len(defs))
	}
	if defs[0].Definition.ID != "rest-api" {
		t.Fatalf("unexpected id %s", defs[0].Definition.ID)
	}
}

func TestLoadDefinitionDirMissingIsEmpty(t *testing.T) {
	defs, err := LoadDefinitionDir(filepath.Join(t.TempDir(), "missing"))
	if err != nil {
		t.Fatalf("expected missing dir to be empty, got %v", err)
	}
	if defs != nil {
		t.Fatalf("expected nil defs, got %+v", defs)
	}
}
