// Package process implements the orchestration engine behind every process
// definition: an ordered phase runner with schema-validated task dispatch,
// artifact aggregation, a scored acceptance gate, and optional blocking human
// checkpoints.

package process

import (
	"fmt"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/MaTriXy/babysitter-sub005/internal/schema"
	"github.com/MaTriXy/babysitter-sub005/internal/task"
)

// Definition declares an executable process: its ordered phases, the terminal
// validation gate, and any checkpoints. Definitions are data; the engine
// treats the instruction text as opaque payload for the executor.
type Definition struct {
	ID          string            `json:"id" yaml:"id"`
	Name        string            `json:"name" yaml:"name"`
	Description string            `json:"description,omitempty" yaml:"description,omitempty"`
	Phases      []PhaseDef        `json:"phases" yaml:"phases"`
	Gate        GateDef           `json:"gate" yaml:"gate"`
	Metadata    map[string]string `json:"metadata,omitempty" yaml:"metadata,omitempty"`
}

// PhaseDef is one named step in the process's ordered task list.
type PhaseDef struct {
	Name       string         `json:"name" yaml:"name"`
	Task       TaskSpec       `json:"task" yaml:"task"`
	Needs      []Need         `json:"needs,omitempty" yaml:"needs,omitempty"`
	Checkpoint *CheckpointDef `json:"checkpoint,omitempty" yaml:"checkpoint,omitempty"`
}

// Need declares an explicit data dependency on a prior phase's output. An
// empty Fields list pulls every field that phase produced; otherwise exactly
// the named fields are passed.
type Need struct {
	Phase  string   `json:"phase" yaml:"phase"`
	Fields []string `json:"fields,omitempty" yaml:"fields,omitempty"`
}

// TaskSpec is the declarative form of a task definition. The output contract
// is compiled once, when the definition is compiled into a plan.
type TaskSpec struct {
	Title        string        `json:"title" yaml:"title"`
	Role         string        `json:"role,omitempty" yaml:"role,omitempty"`
	Instructions []string      `json:"instructions" yaml:"instructions"`
	Labels       []string      `json:"labels,omitempty" yaml:"labels,omitempty"`
	Output       schema.Schema `json:"output" yaml:"output"`
}

// GateDef declares the terminal validation phase and its success rules.
type GateDef struct {
	Phase      string         `json:"phase,omitempty" yaml:"phase,omitempty"`
	Task       TaskSpec       `json:"task" yaml:"task"`
	Rules      []Rule         `json:"rules,omitempty" yaml:"rules,omitempty"`
	Checkpoint *CheckpointDef `json:"checkpoint,omitempty" yaml:"checkpoint,omitempty"`
}

// CheckpointDef declares a blocking human review after a phase.
type CheckpointDef struct {
	Title    string        `json:"title" yaml:"title"`
	Question string        `json:"question" yaml:"question"`
	Window   time.Duration `json:"window,omitempty" yaml:"window,omitempty"`
}

// UnmarshalYAML accepts human-friendly window values like "30m" or "2h".
func (c *CheckpointDef) UnmarshalYAML(value *yaml.Node) error {
	var raw struct {
		Title    string `yaml:"title"`
		Question string `yaml:"question"`
		Window   string `yaml:"window"`
	}
	if err := value.Decode(&raw); err != nil {
		return err
	}
	c.Title = raw.Title
	c.Question = raw.Question
	if strings.TrimSpace(raw.Window) != "" {
		window, err := time.ParseDuration(strings.TrimSpace(raw.Window))
		if err != nil {
			return fmt.Errorf("process: checkpoint window %q: %w", raw.Window, err)
		}
		c.Window = window
	}
	return nil
}

// DefaultGatePhase names the gate phase when a definition leaves it blank.
const DefaultGatePhase = "validation"

// TestingPhase is the reserved phase name whose output becomes the process
// result's test results.
const TestingPhase = "testing"

// Clone returns a deep copy of the definition.
func (def Definition) Clone() Definition {
	clone := Definition{
		ID:          def.ID,
		Name:        def.Name,
		Description: def.Description,
		Gate:        def.Gate.clone(),
		Metadata:    cloneStringMap(def.Metadata),
	}
	if len(def.Phases) > 0 {
		clone.Phases = make([]PhaseDef, len(def.Phases))
		for i, phase := range def.Phases {
			clone.Phases[i] = phase.clone()
		}
	}
	return clone
}

func (p PhaseDef) clone() PhaseDef {
	clone := PhaseDef{Name: p.Name, Task: p.Task.clone()}
	if len(p.Needs) > 0 {
		clone.Needs = make([]Need, len(p.Needs))
		for i, need := range p.Needs {
			clone.Needs[i] = Need{Phase: need.Phase, Fields: cloneStrings(need.Fields)}
		}
	}
	if p.Checkpoint != nil {
		cp := *p.Checkpoint
		clone.Checkpoint = &cp
	}
	return clone
}

func (s TaskSpec) clone() TaskSpec {
	clone := s
	clone.Instructions = cloneStrings(s.Instructions)
	clone.Labels = cloneStrings(s.Labels)
	clone.Output = s.Output.Clone()
	return clone
}

func (g GateDef) clone() GateDef {
	clone := GateDef{Phase: g.Phase, Task: g.Task.clone()}
	if len(g.Rules) > 0 {
		clone.Rules = append([]Rule{}, g.Rules...)
	}
	if g.Checkpoint != nil {
		cp := *g.Checkpoint
		clone.Checkpoint = &cp
	}
	return clone
}

// Validate ensures the definition is self-consistent: unique phase names, and
// needs that reference strictly earlier phases so no phase can observe a
// later phase's output.
func (def Definition) Validate() error {
	if strings.TrimSpace(def.ID) == "" {
		return fmt.Errorf("process: id is required")
	}
	if len(def.Phases) == 0 {
		return fmt.Errorf("process %s: at least one phase is required", def.ID)
	}
	seen := map[string]int{}
	for idx, phase := range def.Phases {
		name := strings.TrimSpace(phase.Name)
		if name == "" {
			return fmt.Errorf("process %s phase[%d]: name is required", def.ID, idx)
		}
		if _, exists := seen[name]; exists {
			return fmt.Errorf("process %s: duplicate phase name %s", def.ID, name)
		}
		if err := phase.Task.validate(def.ID, name); err != nil {
			return err
		}
		for _, need := range phase.Needs {
			earlier, ok := seen[need.Phase]
			if !ok || earlier >= idx {
				return fmt.Errorf("process %s phase %s: needs %s which is not an earlier phase", def.ID, name, need.Phase)
			}
		}
		if err := phase.Checkpoint.validate(def.ID, name); err != nil {
			return err
		}
		seen[name] = idx
	}
	gatePhase := def.gatePhase()
	if _, exists := seen[gatePhase]; exists {
		return fmt.Errorf("process %s: gate phase %s collides with a declared phase", def.ID, gatePhase)
	}
	if err := def.Gate.Task.validate(def.ID, gatePhase); err != nil {
		return err
	}
	for _, rule := range def.Gate.Rules {
		if err := rule.validate(); err != nil {
			return fmt.Errorf("process %s gate: %w", def.ID, err)
		}
	}
	if err := def.Gate.Checkpoint.validate(def.ID, gatePhase); err != nil {
		return err
	}
	return nil
}

func (s TaskSpec) validate(processID, phase string) error {
	if strings.TrimSpace(s.Title) == "" {
		return fmt.Errorf("process %s phase %s: task title is required", processID, phase)
	}
	if len(s.Instructions) == 0 {
		return fmt.Errorf("process %s phase %s: task instructions are required", processID, phase)
	}
	return nil
}

func (c *CheckpointDef) validate(processID, phase string) error {
	if c == nil {
		return nil
	}
	if strings.TrimSpace(c.Question) == "" {
		return fmt.Errorf("process %s phase %s: checkpoint question is required", processID, phase)
	}
	if c.Window < 0 {
		return fmt.Errorf("process %s phase %s: checkpoint window must be >= 0", processID, phase)
	}
	return nil
}

func (def Definition) gatePhase() string {
	if strings.TrimSpace(def.Gate.Phase) != "" {
		return def.Gate.Phase
	}
	return DefaultGatePhase
}

// PhaseNames returns the declared phase names in order, gate excluded.
func (def Definition) PhaseNames() []string {
	names := make([]string, len(def.Phases))
	for i, phase := range def.Phases {
		names[i] = phase.Name
	}
	return names
}

// Plan is a compiled definition: every task built through its factory with a
// compiled output validator, ready for the runner.
type Plan struct {
	Definition Definition
	Phases     []PlannedPhase
	Gate       PlannedGate
}

// PlannedPhase pairs a phase name with its immutable task definition.
type PlannedPhase struct {
	Name       string
	Task       task.Definition
	Needs      []Need
	Checkpoint *CheckpointDef
}

// PlannedGate is the compiled terminal validation phase.
type PlannedGate struct {
	Phase      string
	Task       task.Definition
	Predicate  Predicate
	Checkpoint *CheckpointDef
}

// Compile validates the definition and builds the executable plan. The gate's
// predicate comes from the declared rules, or the default score threshold
// when no rules are given.
func (def Definition) Compile() (*Plan, error) {
	return def.CompileWith(nil)
}

// CompileWith builds the plan with an explicit gate predicate, overriding any
// declared rules. Passing nil derives the predicate from the definition.
func (def Definition) CompileWith(predicate Predicate) (*Plan, error) {
	if err := def.Validate(); err != nil {
		return nil, err
	}
	clone := def.Clone()
	plan := &Plan{Definition: clone}
	for _, phase := range clone.Phases {
		built, err := buildTask(clone.ID, phase.Name, phase.Task)
		if err != nil {
			return nil, err
		}
		plan.Phases = append(plan.Phases, PlannedPhase{
			Name:       phase.Name,
			Task:       built,
			Needs:      phase.Needs,
			Checkpoint: phase.Checkpoint,
		})
	}
	gatePhase := clone.gatePhase()
	gateTask, err := buildTask(clone.ID, gatePhase, clone.Gate.Task)
	if err != nil {
		return nil, err
	}
	if predicate == nil {
		predicate, err = compilePredicate(gatePhase, clone.Gate.Rules)
		if err != nil {
			return nil, err
		}
	}
	plan.Gate = PlannedGate{
		Phase:      gatePhase,
		Task:       gateTask,
		Predicate:  predicate,
		Checkpoint: clone.Gate.Checkpoint,
	}
	return plan, nil
}

// buildTask is the pure factory from spec to immutable task definition.
func buildTask(processID, phase string, spec TaskSpec) (task.Definition, error) {
	output, err := schema.Compile(spec.Output)
	if err != nil {
		return task.Definition{}, fmt.Errorf("process %s phase %s: %w", processID, phase, err)
	}
	def := task.Definition{
		ID:           phase,
		Title:        spec.Title,
		Role:         spec.Role,
		Instructions: cloneStrings(spec.Instructions),
		Labels:       cloneStrings(spec.Labels),
		Output:       output,
	}
	if err := def.Validate(); err != nil {
		return task.Definition{}, err
	}
	return def, nil
}

func cloneStrings(values []string) []string {
	if len(values) == 0 {
		return nil
	}
	clone := make([]string, len(values))
	copy(clone, values)
	return clone
}

func cloneStringMap(values map[string]string) map[string]string {
	if len(values) == 0 {
		return nil
	}
	clone := make(map[string]string, len(values))
	for key, value := range values {
		clone[key] = value
	}
	return clone
}
