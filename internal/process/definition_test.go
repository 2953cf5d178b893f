package process

import (
	"strings"
	"testing"
	"time"

	"github.com/MaTriXy/babysitter-sub005/internal/schema"
)

func floatp(v float64) *float64 { return &v }

func gateOutputSchema() schema.Schema {
	return schema.Schema{
		Required: []string{"overallScore", "passedChecks"},
		Properties: map[string]schema.Property{
			"overallScore": {Type: schema.TypeNumber, Minimum: floatp(0), Maximum: floatp(100)},
			"passedChecks": {Type: schema.TypeArray, Items: &schema.Property{Type: schema.TypeString}},
		},
	}
}

func phaseSpec(title string) TaskSpec {
	return TaskSpec{
		Title:        title,
		Instructions: []string{"do the work"},
		Output: schema.Schema{
			Properties: map[string]schema.Property{
				"summary": {Type: schema.TypeString},
			},
		},
	}
}

func validDefinition() Definition {
	return Definition{
		ID:   "delivery",
		Name: "Delivery",
		Phases: []PhaseDef{
			{Name: "design", Task: phaseSpec("Design it")},
			{Name: "build", Task: phaseSpec("Build it"), Needs: []Need{{Phase: "design"}}},
		},
		Gate: GateDef{
			Task: TaskSpec{
				Title:        "Validate it",
				Instructions: []string{"score the delivery"},
				Output:       gateOutputSchema(),
			},
		},
	}
}

func TestDefinitionValidate(t *testing.T) {
	if err := validDefinition().Validate(); err != nil {
		t.Fatalf("valid definition rejected: %v", err)
	}
}

func TestDefinitionValidateRejectsDuplicatePhase(t *testing.T) {
	def := validDefinition()
	def.Phases[1].Name = "design"
	if err := def.Validate(); err == nil || !strings.Contains(err.Error(), "duplicate phase name") {
		t.Fatalf("expected duplicate phase error, got %v", err)
	}
}

func TestDefinitionValidateRejectsForwardNeed(t *testing.T) {
	def := validDefinition()
	def.Phases[0].Needs = []Need{{Phase: "build"}}
	if err := def.Validate(); err == nil || !strings.Contains(err.Error(), "not an earlier phase") {
		t.Fatalf("expected forward-need error, got %v", err)
	}
}

func TestDefinitionValidateRejectsSelfNeed(t *testing.T) {
	def := validDefinition()
	def.Phases[1].Needs = []Need{{Phase: "build"}}
	if err := def.Validate(); err == nil {
		t.Fatalf("expected self-need to be rejected")
	}
}

func TestDefinitionValidateRejectsGateCollision(t *testing.T) {
	def := validDefinition()
	def.Phases = append(def.Phases, PhaseDef{Name: DefaultGatePhase, Task: phaseSpec("Shadow the gate")})
	if err := def.Validate(); err == nil || !strings.Contains(err.Error(), "collides") {
		t.Fatalf("expected gate collision error, got %v", err)
	}
}

func TestDefinitionValidateRejectsCheckpointWithoutQuestion(t *testing.T) {
	def := validDefinition()
	def.Phases[0].Checkpoint = &CheckpointDef{Title: "Review"}
	if err := def.Validate(); err == nil || !strings.Contains(err.Error(), "question") {
		t.Fatalf("expected checkpoint question error, got %v", err)
	}
}

func TestCompileBuildsPlan(t *testing.T) {
	plan, err := validDefinition().Compile()
	if err != nil {
		t.Fatalf("compile: %v", err)
	}
	if len(plan.Phases) != 2 {
		t.Fatalf("expected 2 planned phases, got %d", len(plan.Phases))
	}
	if plan.Phases[1].Task.ID != "build" || plan.Phases[1].Task.Output == nil {
		t.Fatalf("planned task not built: %+v", plan.Phases[1].Task)
	}
	if plan.Gate.Phase != DefaultGatePhase {
		t.Fatalf("expected default gate phase, got %s", plan.Gate.Phase)
	}
	if plan.Gate.Predicate == nil {
		t.Fatalf("expected a compiled gate predicate")
	}
}

func TestCompileIsolatedFromSourceDefinition(t *testing.T) {
	def := validDefinition()
	plan, err := def.Compile()
	if err != nil {
		t.Fatalf("compile: %v", err)
	}
	def.Phases[0].Name = "mutated"
	if plan.Phases[0].Name != "design" {
		t.Fatalf("plan shares memory with the source definition")
	}
}

func TestCompileRejectsBadSchema(t *testing.T) {
	def := validDefinition()
	def.Phases[0].Task.Output = schema.Schema{
		Properties: map[string]schema.Property{"bad": {Type: "tuple"}},
	}
	if _, err := def.Compile(); err == nil {
		t.Fatalf("expected compile to reject unknown schema type")
	}
}

func TestCompileRejectsBadRule(t *testing.T) {
	def := validDefinition()
	def.Gate.Rules = []Rule{{Field: "overallScore", Op: "~=", Value: 80}}
	if _, err := def.Compile(); err == nil {
		t.Fatalf("expected compile to reject unknown rule op")
	}
}

func TestCloneIsDeep(t *testing.T) {
	def := validDefinition()
	def.Phases[0].Checkpoint = &CheckpointDef{Title: "Review", Question: "Proceed?", Window: time.Hour}
	clone := def.Clone()
	clone.Phases[0].Checkpoint.Window = time.Minute
	clone.Phases[1].Needs[0].Phase = "mutated"
	if def.Phases[0].Checkpoint.Window != time.Hour {
		t.Fatalf("clone shares checkpoint memory")
	}
	if def.Phases[1].Needs[0].Phase != "design" {
		t.Fatalf("clone shares needs memory")
	}
}
