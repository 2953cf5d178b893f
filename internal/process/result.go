package process

import (
	"time"

	"github.com/MaTriXy/babysitter-sub005/internal/artifact"
	"github.com/MaTriXy/babysitter-sub005/internal/task"
)

// Outcome names why a run ended the way it did.
type Outcome string

const (
	OutcomePassed             Outcome = "passed"
	OutcomeBelowThreshold     Outcome = "validation-below-threshold"
	OutcomeCheckpointRejected Outcome = "checkpoint-rejected"
)

// Metadata carries caller-supplied run identity. The engine never derives
// these internally.
type Metadata struct {
	ProcessID string    `json:"process_id"`
	StartedAt time.Time `json:"started_at"`
}

// Result is the terminal outcome of one process run.
type Result struct {
	Success        bool                   `json:"success"`
	Outcome        Outcome                `json:"outcome"`
	Implementation map[string]task.Result `json:"implementation"`
	TestResults    map[string]any         `json:"testResults,omitempty"`
	Validation     ValidationResult       `json:"validation"`
	Artifacts      []artifact.Ref         `json:"artifacts,omitempty"`
	Duration       time.Duration          `json:"duration"`
	Metadata       Metadata               `json:"metadata"`
}

// buildResult assembles the terminal Result once every phase, the gate, and
// any checkpoints have resolved.
func buildResult(plan *Plan, results map[string]task.Result, agg *artifact.Aggregator, validation ValidationResult, success bool, outcome Outcome, duration time.Duration, meta Metadata) Result {
	implementation := make(map[string]task.Result, len(results))
	for name, result := range results {
		implementation[name] = result.Clone()
	}
	return Result{
		Success:        success,
		Outcome:        outcome,
		Implementation: implementation,
		TestResults:    extractTestResults(plan, results),
		Validation:     validation,
		Artifacts:      agg.Refs(),
		Duration:       duration,
		Metadata:       meta,
	}
}

// extractTestResults finds the phase explicitly named (or labeled) "testing".
// A process without one simply has no test results; the lookup is by name,
// never by position.
func extractTestResults(plan *Plan, results map[string]task.Result) map[string]any {
	for _, phase := range plan.Phases {
		if phase.Name == TestingPhase || phase.Task.HasLabel(TestingPhase) {
			if result, ok := results[phase.Name]; ok {
				return result.Clone().Data
			}
			return nil
		}
	}
	return nil
}
