// Package dispatch sends a task's input to the agent executor, validates the
// agent's output against the task's contract, and persists both documents in
// the effects store. Every invocation is keyed by a durable EffectID assigned
// before the external call, so a crashed or resumed run replays persisted
// results instead of re-invoking the executor.

package dispatch

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/MaTriXy/babysitter-sub005/internal/artifact"
	"github.com/MaTriXy/babysitter-sub005/internal/effects"
	"github.com/MaTriXy/babysitter-sub005/internal/executor"
	"github.com/MaTriXy/babysitter-sub005/internal/logbook"
	"github.com/MaTriXy/babysitter-sub005/internal/task"
)

// SchemaValidationError reports that the executor's output failed the task's
// declared output contract. Fatal to the phase.
type SchemaValidationError struct {
	TaskID     string
	Violations []error
}

// Error implements error.
func (e *SchemaValidationError) Error() string {
	details := make([]string, len(e.Violations))
	for i, v := range e.Violations {
		details[i] = v.Error()
	}
	return fmt.Sprintf("task %s output failed contract: %s", e.TaskID, strings.Join(details, "; "))
}

// AgentExecutionError reports that the executor could not be reached or
// itself failed. Fatal unless a cached result exists for the same EffectID.
type AgentExecutionError struct {
	TaskID string
	Err    error
}

// Error implements error.
func (e *AgentExecutionError) Error() string {
	return fmt.Sprintf("task %s executor failed: %v", e.TaskID, e.Err)
}

// Unwrap exposes the underlying cause.
func (e *AgentExecutionError) Unwrap() error {
	return e.Err
}

// EffectIDFunc derives the durable idempotency key for one task invocation.
type EffectIDFunc func(def task.Definition) string

// Dispatcher performs task dispatches for a single run.
type Dispatcher struct {
	runID    string
	store    *effects.Store
	exec     executor.Executor
	log      *logbook.Logbook
	effectID EffectIDFunc
}

// Option customizes a dispatcher.
type Option func(*Dispatcher)

// WithLogbook attaches a run logbook.
func WithLogbook(log *logbook.Logbook) Option {
	return func(d *Dispatcher) {
		d.log = log
	}
}

// WithEffectID overrides how idempotency keys are derived. The default keys
// by task ID, which is stable across resumed runs.
func WithEffectID(fn EffectIDFunc) Option {
	return func(d *Dispatcher) {
		if fn != nil {
			d.effectID = fn
		}
	}
}

// New builds a dispatcher scoped to one run's effect namespace.
func New(runID string, store *effects.Store, exec executor.Executor, opts ...Option) (*Dispatcher, error) {
	if strings.TrimSpace(runID) == "" {
		return nil, fmt.Errorf("dispatch: run id is required")
	}
	if store == nil {
		return nil, fmt.Errorf("dispatch: effects store is required")
	}
	if exec == nil {
		return nil, fmt.Errorf("dispatch: executor is required")
	}
	d := &Dispatcher{
		runID:    runID,
		store:    store,
		exec:     exec,
		effectID: func(def task.Definition) string { return def.ID },
	}
	for _, opt := range opts {
		opt(d)
	}
	return d, nil
}

// Dispatch sends one task to the executor and returns its validated result.
// If the effects store already holds a result for the task's EffectID, that
// result is returned without touching the executor.
func (d *Dispatcher) Dispatch(ctx context.Context, def task.Definition, input task.Params) (task.Result, error) {
	if err := def.Validate(); err != nil {
		return task.Result{}, err
	}
	effectID := d.effectID(def)

	var cached task.Result
	err := d.store.LoadResult(d.runID, effectID, &cached)
	switch {
	case err == nil:
		d.log.Dispatch(def.ID, effectID, true)
		return cached, nil
	case !errors.Is(err, effects.ErrResultNotFound):
		return task.Result{}, fmt.Errorf("dispatch: read cached result for %s: %w", effectID, err)
	}

	req := executor.Request{
		TaskID:       def.ID,
		Title:        def.Title,
		Role:         def.Role,
		Instructions: append([]string{}, def.Instructions...),
		Context:      input.Clone(),
		OutputSchema: def.Output.Schema(),
	}
	if err := d.store.SaveInput(d.runID, effectID, req); err != nil {
		return task.Result{}, fmt.Errorf("dispatch: persist input for %s: %w", effectID, err)
	}
	d.log.Dispatch(def.ID, effectID, false)

	resp, err := d.exec.Execute(ctx, req)
	if err != nil {
		return task.Result{}, &AgentExecutionError{TaskID: def.ID, Err: err}
	}
	if resp.Failure != "" {
		return task.Result{}, &AgentExecutionError{TaskID: def.ID, Err: errors.New(resp.Failure)}
	}
	if violations := def.Output.Validate(resp.Output); len(violations) > 0 {
		return task.Result{}, &SchemaValidationError{TaskID: def.ID, Violations: violations}
	}

	result := task.Result{Data: resp.Output}
	for _, locator := range resp.Artifacts {
		result.Artifacts = append(result.Artifacts, artifact.Ref{Locator: locator})
	}
	if err := d.store.SaveResult(d.runID, effectID, result); err != nil {
		return task.Result{}, fmt.Errorf("dispatch: persist result for %s: %w", effectID, err)
	}
	return result, nil
}
