package dispatch

import (
	"context"
	"errors"
	"testing"

	"github.com/MaTriXy/babysitter-sub005/internal/effects"
	"github.com/MaTriXy/babysitter-sub005/internal/executor"
	"github.com/MaTriXy/babysitter-sub005/internal/schema"
	"github.com/MaTriXy/babysitter-sub005/internal/task"
)

type stubExecutor struct {
	calls     int
	responses []executor.Response
	err       error
}

func (s *stubExecutor) Execute(_ context.Context, _ executor.Request) (executor.Response, error) {
	s.calls++
	if s.err != nil {
		return executor.Response{}, s.err
	}
	resp := s.responses[0]
	if len(s.responses) > 1 {
		s.responses = s.responses[1:]
	}
	return resp, nil
}

func testDefinition(t *testing.T) task.Definition {
	t.Helper()
	return task.Definition{
		ID:           "scaffold",
		Title:        "Scaffold project",
		Instructions: []string{"create the skeleton"},
		Output: schema.MustCompile(schema.Schema{
			Required: []string{"done"},
			Properties: map[string]schema.Property{
				"done": {Type: schema.TypeBoolean},
			},
		}),
	}
}

func newTestDispatcher(t *testing.T, exec executor.Executor) (*Dispatcher, *effects.Store) {
	t.Helper()
	store := effects.NewStore(t.TempDir())
	d, err := New("run-1", store, exec)
	if err != nil {
		t.Fatalf("new dispatcher: %v", err)
	}
	return d, store
}

func TestDispatchValidatesAndPersists(t *testing.T) {
	exec := &stubExecutor{responses: []executor.Response{{
		Output:    map[string]any{"done": true},
		Artifacts: []string{"src/server.go"},
	}}}
	d, store := newTestDispatcher(t, exec)

	result, err := d.Dispatch(context.Background(), testDefinition(t), task.Params{"project": "demo"})
	if err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	if result.Data["done"] != true {
		t.Fatalf("unexpected data: %+v", result.Data)
	}
	if len(result.Artifacts) != 1 || result.Artifacts[0].Locator != "src/server.go" {
		t.Fatalf("unexpected artifacts: %+v", result.Artifacts)
	}
	if !store.HasResult("run-1", "scaffold") {
		t.Fatalf("expected persisted result document")
	}
}

func TestDispatchIsIdempotentPerEffectID(t *testing.T) {
	exec := &stubExecutor{responses: []executor.Response{{Output: map[string]any{"done": true}}}}
	d, _ := newTestDispatcher(t, exec)
	def := testDefinition(t)

	if _, err := d.Dispatch(context.Background(), def, task.Params{}); err != nil {
		t.Fatalf("first dispatch: %v", err)
	}
	second, err := d.Dispatch(context.Background(), def, task.Params{})
	if err != nil {
		t.Fatalf("second dispatch: %v", err)
	}
	if exec.calls != 1 {
		t.Fatalf("expected executor invoked once, got %d", exec.calls)
	}
	if second.Data["done"] != true {
		t.Fatalf("expected cached result, got %+v", second.Data)
	}
}

func TestDispatchResumeAcrossDispatcherInstances(t *testing.T) {
	exec := &stubExecutor{responses: []executor.Response{{Output: map[string]any{"done": true}}}}
	store := effects.NewStore(t.TempDir())
	first, err := New("run-1", store, exec)
	if err != nil {
		t.Fatalf("new dispatcher: %v", err)
	}
	if _, err := first.Dispatch(context.Background(), testDefinition(t), task.Params{}); err != nil {
		t.Fatalf("dispatch: %v", err)
	}

	// A fresh dispatcher for the same run simulates an orchestrator restart.
	resumed, err := New("run-1", store, exec)
	if err != nil {
		t.Fatalf("new dispatcher: %v", err)
	}
	if _, err := resumed.Dispatch(context.Background(), testDefinition(t), task.Params{}); err != nil {
		t.Fatalf("resumed dispatch: %v", err)
	}
	if exec.calls != 1 {
		t.Fatalf("expected at most one executor call, got %d", exec.calls)
	}
}

func TestDispatchSchemaViolation(t *testing.T) {
	exec := &stubExecutor{responses: []executor.Response{{Output: map[string]any{"done": "yes"}}}}
	d, store := newTestDispatcher(t, exec)

	_, err := d.Dispatch(context.Background(), testDefinition(t), task.Params{})
	var schemaErr *SchemaValidationError
	if !errors.As(err, &schemaErr) {
		t.Fatalf("expected SchemaValidationError, got %v", err)
	}
	if schemaErr.TaskID != "scaffold" {
		t.Fatalf("unexpected task id %s", schemaErr.TaskID)
	}
	if store.HasResult("run-1", "scaffold") {
		t.Fatalf("malformed result must not be persisted")
	}
}

func TestDispatchExecutorFailure(t *testing.T) {
	exec := &stubExecutor{err: errors.New("connection refused")}
	d, _ := newTestDispatcher(t, exec)

	_, err := d.Dispatch(context.Background(), testDefinition(t), task.Params{})
	var agentErr *AgentExecutionError
	if !errors.As(err, &agentErr) {
		t.Fatalf("expected AgentExecutionError, got %v", err)
	}
	if !errors.Is(err, exec.err) {
		t.Fatalf("expected wrapped cause")
	}
}

func TestDispatchReportedAgentFailure(t *testing.T) {
	exec := &stubExecutor{responses: []executor.Response{{Failure: "sandbox quota exceeded"}}}
	d, _ := newTestDispatcher(t, exec)

	_, err := d.Dispatch(context.Background(), testDefinition(t), task.Params{})
	var agentErr *AgentExecutionError
	if !errors.As(err, &agentErr) {
		t.Fatalf("expected AgentExecutionError, got %v", err)
	}
}
