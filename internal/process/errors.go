package process

import (
	"fmt"

	"github.com/MaTriXy/babysitter-sub005/internal/artifact"
)

// PhaseExecutionError wraps any fatal phase failure with the failed phase's
// name and every artifact collected before the failure, so diagnostics are
// never silently dropped.
type PhaseExecutionError struct {
	Phase     string
	Err       error
	Artifacts []artifact.Ref
}

// Error implements error.
func (e *PhaseExecutionError) Error() string {
	return fmt.Sprintf("phase %s failed: %v", e.Phase, e.Err)
}

// Unwrap exposes the underlying cause.
func (e *PhaseExecutionError) Unwrap() error {
	return e.Err
}
