// Package executor defines the boundary to the external agent that performs
// the actual work described by a task's instructions. The engine only owns the
// request/response shapes; how the agent produces its output is out of scope.

package executor

import (
	"context"

	"github.com/MaTriXy/babysitter-sub005/internal/schema"
)

// Request is the document sent to the agent for one task.
type Request struct {
	TaskID       string         `json:"taskId"`
	Title        string         `json:"title"`
	Role         string         `json:"role,omitempty"`
	Instructions []string       `json:"instructions"`
	Context      map[string]any `json:"context,omitempty"`
	OutputSchema schema.Schema  `json:"outputSchema"`
}

// Response is the agent's reply. Exactly one of Output or Failure is set.
// Artifacts lists locators for deliverables the agent produced while working.
type Response struct {
	Output    map[string]any `json:"output,omitempty"`
	Artifacts []string       `json:"artifacts,omitempty"`
	Failure   string         `json:"failure,omitempty"`
}

// Executor performs a single task request. Implementations own their retry
// and degraded-mode behavior; callers treat any returned error as fatal.
type Executor interface {
	Execute(ctx context.Context, req Request) (Response, error)
}

// Func adapts a function to the Executor interface.
type Func func(ctx context.Context, req Request) (Response, error)

// Execute implements Executor.
func (f Func) Execute(ctx context.Context, req Request) (Response, error) {
	return f(ctx, req)
}
