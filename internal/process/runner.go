package process

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/MaTriXy/babysitter-sub005/internal/artifact"
	"github.com/MaTriXy/babysitter-sub005/internal/checkpoint"
	"github.com/MaTriXy/babysitter-sub005/internal/logbook"
	"github.com/MaTriXy/babysitter-sub005/internal/task"
)

// DefaultCheckpointWindow bounds a checkpoint that declares no window of its
// own. No response inside the window resolves to TimedOut.
const DefaultCheckpointWindow = 24 * time.Hour

// TaskDispatcher performs one task dispatch. The concrete implementation
// lives in the dispatch package; tests substitute stubs.
type TaskDispatcher interface {
	Dispatch(ctx context.Context, def task.Definition, input task.Params) (task.Result, error)
}

// Runner executes a compiled plan: phases strictly in declared order, at most
// one task in flight, every transition persisted.
type Runner struct {
	plan        *Plan
	dispatcher  TaskDispatcher
	checkpoints checkpoint.Resolver
	states      StateStore
	log         *logbook.Logbook
	clock       func() time.Time
}

// Option customizes a runner.
type Option func(*Runner)

// WithCheckpointResolver wires the reviewer boundary. Required when the plan
// declares any checkpoint.
func WithCheckpointResolver(resolver checkpoint.Resolver) Option {
	return func(r *Runner) {
		r.checkpoints = resolver
	}
}

// WithStateStore persists run state after every transition.
func WithStateStore(store StateStore) Option {
	return func(r *Runner) {
		if store != nil {
			r.states = store
		}
	}
}

// WithLogbook attaches a run logbook.
func WithLogbook(log *logbook.Logbook) Option {
	return func(r *Runner) {
		r.log = log
	}
}

// WithClock injects a deterministic clock (primarily for tests). Duration is
// measured with this clock, never with ambient time.
func WithClock(clock func() time.Time) Option {
	return func(r *Runner) {
		if clock != nil {
			r.clock = clock
		}
	}
}

// NewRunner wires a runner to its plan and dispatcher.
func NewRunner(plan *Plan, dispatcher TaskDispatcher, opts ...Option) (*Runner, error) {
	if plan == nil {
		return nil, fmt.Errorf("process: plan is required")
	}
	if dispatcher == nil {
		return nil, fmt.Errorf("process: dispatcher is required")
	}
	runner := &Runner{
		plan:       plan,
		dispatcher: dispatcher,
		states:     discardStore{},
		clock:      time.Now,
	}
	for _, opt := range opts {
		opt(runner)
	}
	if runner.checkpoints == nil && plan.declaresCheckpoints() {
		return nil, fmt.Errorf("process %s: plan declares checkpoints but no resolver is wired", plan.Definition.ID)
	}
	return runner, nil
}

func (p *Plan) declaresCheckpoints() bool {
	for _, phase := range p.Phases {
		if phase.Checkpoint != nil {
			return true
		}
	}
	return p.Gate.Checkpoint != nil
}

// RunRequest carries caller-supplied run identity and base parameters.
type RunRequest struct {
	RunID     string
	ProcessID string
	Params    task.Params
	StartedAt time.Time
}

// Run executes the plan to completion. It returns a well-formed Result
// (possibly with Success=false) or a PhaseExecutionError carrying the failed
// phase and every artifact collected before the failure.
func (r *Runner) Run(ctx context.Context, req RunRequest) (Result, error) {
	if strings.TrimSpace(req.RunID) == "" {
		return Result{}, fmt.Errorf("process: run id is required")
	}
	processID := req.ProcessID
	if processID == "" {
		processID = r.plan.Definition.ID
	}
	startedAt := req.StartedAt
	if startedAt.IsZero() {
		startedAt = r.clock()
	}
	meta := Metadata{ProcessID: processID, StartedAt: startedAt}
	runStart := r.clock()

	state := State{
		RunID:     req.RunID,
		ProcessID: processID,
		Status:    StatusPending,
		StartedAt: startedAt,
		UpdatedAt: runStart,
	}
	if err := r.states.Save(state); err != nil {
		return Result{}, fmt.Errorf("process: persist initial state: %w", err)
	}

	results := map[string]task.Result{}
	agg := artifact.NewAggregator()

	for i, phase := range r.plan.Phases {
		if err := r.transition(&state, StatusRunning, i, phase.Name, ""); err != nil {
			return Result{}, err
		}
		input := r.phaseInput(req.Params, phase, results)
		result, err := r.dispatcher.Dispatch(ctx, phase.Task, input)
		if err != nil {
			return Result{}, r.fail(ctx, &state, phase.Name, err, agg)
		}
		results[phase.Name] = result
		agg.Absorb(phase.Name, result.Artifacts)
		r.log.Info("phase %s completed (%d artifacts)", phase.Name, len(result.Artifacts))

		if phase.Checkpoint != nil {
			proceed, err := r.awaitCheckpoint(ctx, &state, i, phase.Name, phase.Checkpoint, results, agg)
			if err != nil {
				return Result{}, err
			}
			if !proceed {
				return r.complete(&state, results, agg, ValidationResult{}, false, OutcomeCheckpointRejected, runStart, meta)
			}
		}
	}

	gate := r.plan.Gate
	if err := r.transition(&state, StatusValidating, len(r.plan.Phases), gate.Phase, ""); err != nil {
		return Result{}, err
	}
	gateInput := r.phaseInput(req.Params, PlannedPhase{Name: gate.Phase, Needs: allPhaseNeeds(r.plan)}, results)
	gateResult, err := r.dispatcher.Dispatch(ctx, gate.Task, gateInput)
	if err != nil {
		return Result{}, r.fail(ctx, &state, gate.Phase, err, agg)
	}
	results[gate.Phase] = gateResult
	agg.Absorb(gate.Phase, gateResult.Artifacts)

	validation, err := ParseValidation(gateResult.Data)
	if err != nil {
		return Result{}, r.fail(ctx, &state, gate.Phase, err, agg)
	}
	passed, err := gate.Predicate(results)
	if err != nil {
		return Result{}, r.fail(ctx, &state, gate.Phase, err, agg)
	}
	r.log.Info("gate %s scored %.1f (passed=%t)", gate.Phase, validation.OverallScore, passed)

	if gate.Checkpoint != nil {
		proceed, err := r.awaitCheckpoint(ctx, &state, len(r.plan.Phases), gate.Phase, gate.Checkpoint, results, agg)
		if err != nil {
			return Result{}, err
		}
		if !proceed {
			return r.complete(&state, results, agg, validation, false, OutcomeCheckpointRejected, runStart, meta)
		}
	}

	outcome := OutcomePassed
	if !passed {
		outcome = OutcomeBelowThreshold
	}
	return r.complete(&state, results, agg, validation, passed, outcome, runStart, meta)
}

// phaseInput merges the immutable base parameters with exactly the declared
// prior-phase outputs, each namespaced under its producing phase's name.
func (r *Runner) phaseInput(base task.Params, phase PlannedPhase, results map[string]task.Result) task.Params {
	input := base.Clone()
	for _, need := range phase.Needs {
		result, ok := results[need.Phase]
		if !ok {
			continue
		}
		if len(need.Fields) == 0 {
			input[need.Phase] = result.Clone().Data
			continue
		}
		selected := make(map[string]any, len(need.Fields))
		for _, field := range need.Fields {
			if value, present := result.Data[field]; present {
				selected[field] = value
			}
		}
		input[need.Phase] = selected
	}
	return input
}

// allPhaseNeeds gives the gate visibility into every declared phase's output.
func allPhaseNeeds(plan *Plan) []Need {
	needs := make([]Need, len(plan.Phases))
	for i, phase := range plan.Phases {
		needs[i] = Need{Phase: phase.Name}
	}
	return needs
}

// awaitCheckpoint suspends the run until the reviewer resolves. It returns
// false for Reject and TimedOut. Cancellation surfaces as an error after the
// run transitions to Cancelled; a resolver fault of its own is an
// infrastructure failure and ends the run in Failed with the artifacts
// collected so far.
func (r *Runner) awaitCheckpoint(ctx context.Context, state *State, phaseIndex int, phase string, def *CheckpointDef, results map[string]task.Result, agg *artifact.Aggregator) (bool, error) {
	if err := r.transition(state, StatusAwaitingCheckpoint, phaseIndex, phase, def.Title); err != nil {
		return false, err
	}
	window := def.Window
	if window <= 0 {
		window = DefaultCheckpointWindow
	}
	ctrl, err := checkpoint.NewController(r.checkpoints, window)
	if err != nil {
		return false, err
	}
	prompt := checkpoint.Prompt{
		Title:    def.Title,
		Question: def.Question,
		Context:  checkpointContext(phase, results),
	}
	resolution, err := ctrl.Await(ctx, prompt)
	if err != nil {
		if ctx.Err() != nil {
			return false, r.cancel(state, phase, err)
		}
		return false, r.fail(ctx, state, phase, err, agg)
	}
	r.log.Info("checkpoint %q resolved: %s", def.Title, resolution)
	return resolution == checkpoint.Proceed, nil
}

// checkpointContext summarizes the run so far for the reviewer.
func checkpointContext(phase string, results map[string]task.Result) map[string]any {
	summary := map[string]any{"after_phase": phase}
	summary["completed_phases"] = len(results)
	if result, ok := results[phase]; ok {
		summary["phase_output"] = result.Clone().Data
	}
	return summary
}

func (r *Runner) transition(state *State, next Status, phaseIndex int, phase, reason string) error {
	from := state.Status
	if err := state.advance(next, phaseIndex, phase, reason, r.clock()); err != nil {
		return err
	}
	r.log.Transition(string(from), string(next))
	if err := r.states.Save(*state); err != nil {
		return fmt.Errorf("process: persist state: %w", err)
	}
	return nil
}

// fail ends the run in Failed (or Cancelled when the context was cancelled)
// and wraps the cause with the partial artifacts for diagnostics.
func (r *Runner) fail(ctx context.Context, state *State, phase string, cause error, agg *artifact.Aggregator) error {
	status := StatusFailed
	if ctx.Err() != nil {
		status = StatusCancelled
	}
	if err := state.advance(status, state.PhaseIndex, phase, cause.Error(), r.clock()); err == nil {
		_ = r.states.Save(*state)
	}
	r.log.Error("phase %s: %v", phase, cause)
	return &PhaseExecutionError{Phase: phase, Err: cause, Artifacts: agg.Refs()}
}

// cancel ends the run in Cancelled, preserving collected state for audit.
func (r *Runner) cancel(state *State, phase string, cause error) error {
	if err := state.advance(StatusCancelled, state.PhaseIndex, phase, cause.Error(), r.clock()); err == nil {
		_ = r.states.Save(*state)
	}
	r.log.Warn("run cancelled at %s: %v", phase, cause)
	return fmt.Errorf("process: run %s cancelled: %w", state.RunID, cause)
}

func (r *Runner) complete(state *State, results map[string]task.Result, agg *artifact.Aggregator, validation ValidationResult, success bool, outcome Outcome, runStart time.Time, meta Metadata) (Result, error) {
	reason := ""
	if !success {
		reason = string(outcome)
	}
	if err := state.advance(StatusCompleted, state.PhaseIndex, state.Phase, reason, r.clock()); err != nil {
		return Result{}, err
	}
	if err := r.states.Save(*state); err != nil {
		return Result{}, fmt.Errorf("process: persist final state: %w", err)
	}
	duration := r.clock().Sub(runStart)
	r.log.Info("run %s finished: success=%t outcome=%s duration=%s", state.RunID, success, outcome, duration)
	return buildResult(r.plan, results, agg, validation, success, outcome, duration, meta), nil
}
