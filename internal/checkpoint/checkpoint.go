// Package checkpoint implements the blocking human-review gate. A run
// suspends at a checkpoint until a reviewer resolves it; no response within
// the bounded window resolves to TimedOut, never to silent approval.

package checkpoint

import (
	"context"
	"fmt"
	"time"
)

// Resolution is the reviewer's decision.
type Resolution string

const (
	Proceed  Resolution = "proceed"
	Reject   Resolution = "reject"
	TimedOut Resolution = "timed-out"
)

// Prompt carries what the reviewer sees.
type Prompt struct {
	Title    string         `json:"title"`
	Question string         `json:"question"`
	Context  map[string]any `json:"context,omitempty"`
}

// Resolver obtains a decision for a prompt. Implementations block until the
// reviewer answers or the context is done.
type Resolver interface {
	Await(ctx context.Context, prompt Prompt) (Resolution, error)
}

// Func adapts a function to the Resolver interface.
type Func func(ctx context.Context, prompt Prompt) (Resolution, error)

// Await implements Resolver.
func (f Func) Await(ctx context.Context, prompt Prompt) (Resolution, error) {
	return f(ctx, prompt)
}

// Controller bounds a resolver with a review window. Exceeding the window
// yields TimedOut; cancellation of the parent context propagates as an error
// so the run transitions to Cancelled rather than Rejected.
type Controller struct {
	resolver Resolver
	window   time.Duration
}

// NewController wraps a resolver with a bounded review window.
func NewController(resolver Resolver, window time.Duration) (*Controller, error) {
	if resolver == nil {
		return nil, fmt.Errorf("checkpoint: resolver is required")
	}
	if window <= 0 {
		return nil, fmt.Errorf("checkpoint: review window must be positive")
	}
	return &Controller{resolver: resolver, window: window}, nil
}

// Await blocks until the checkpoint resolves.
func (c *Controller) Await(ctx context.Context, prompt Prompt) (Resolution, error) {
	waitCtx, cancel := context.WithTimeout(ctx, c.window)
	defer cancel()

	resolution, err := c.resolver.Await(waitCtx, prompt)
	if err != nil {
		if ctx.Err() != nil {
			// The run itself was cancelled, not the review window.
			return "", ctx.Err()
		}
		if waitCtx.Err() != nil {
			return TimedOut, nil
		}
		return "", err
	}
	switch resolution {
	case Proceed, Reject, TimedOut:
		return resolution, nil
	default:
		return "", fmt.Errorf("checkpoint: unknown resolution %q", resolution)
	}
}
