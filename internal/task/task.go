// Package task defines the immutable contract for a single unit of work
// dispatched to the agent executor. A definition is constructed once, carries
// its compiled output contract, and never changes after dispatch begins.

package task

import (
	"fmt"
	"strings"

	"github.com/MaTriXy/babysitter-sub005/internal/artifact"
	"github.com/MaTriXy/babysitter-sub005/internal/schema"
)

// Params carries the input fields handed to a task: the process's base
// parameters merged with the declared prior-phase outputs.
type Params map[string]any

// Clone returns a shallow copy of the params map.
func (p Params) Clone() Params {
	if len(p) == 0 {
		return Params{}
	}
	clone := make(Params, len(p))
	for key, value := range p {
		clone[key] = value
	}
	return clone
}

// Definition is the immutable shape of one unit of work.
type Definition struct {
	ID           string
	Title        string
	Role         string
	Instructions []string
	Labels       []string
	Output       *schema.Validator
}

// Validate ensures the definition is well-formed before dispatch.
func (d Definition) Validate() error {
	if strings.TrimSpace(d.ID) == "" {
		return fmt.Errorf("task: id is required")
	}
	if strings.TrimSpace(d.Title) == "" {
		return fmt.Errorf("task: title is required for %s", d.ID)
	}
	if d.Output == nil {
		return fmt.Errorf("task: output contract is required for %s", d.ID)
	}
	return nil
}

// HasLabel reports whether the definition carries the given label.
func (d Definition) HasLabel(label string) bool {
	for _, l := range d.Labels {
		if l == label {
			return true
		}
	}
	return false
}

// Factory builds a task definition from the input params it will receive.
// Keeping construction in a pure function avoids hidden mutable capture of
// per-call identifiers.
type Factory func(params Params) (Definition, error)

// Result captures the accepted outcome of one task dispatch.
type Result struct {
	Data      map[string]any `json:"data"`
	Artifacts []artifact.Ref `json:"artifacts,omitempty"`
}

// Clone returns a copy safe to merge into downstream phase inputs.
func (r Result) Clone() Result {
	clone := Result{}
	if len(r.Data) > 0 {
		clone.Data = make(map[string]any, len(r.Data))
		for key, value := range r.Data {
			clone.Data[key] = value
		}
	}
	if len(r.Artifacts) > 0 {
		clone.Artifacts = append([]artifact.Ref{}, r.Artifacts...)
	}
	return clone
}
