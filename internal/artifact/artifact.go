// Package artifact tracks references to the deliverables each phase produces.
// References are retained for audit in the exact order phases declared them;
// the aggregator never deduplicates because two phases touching the same
// output path still represent two produced deliverables.

package artifact

import (
	"fmt"
	"strings"
)

// Ref points at a deliverable produced by a phase.
type Ref struct {
	Locator string `json:"locator" yaml:"locator"`
	Phase   string `json:"phase,omitempty" yaml:"phase,omitempty"`
}

// Validate ensures the reference is usable.
func (r Ref) Validate() error {
	if strings.TrimSpace(r.Locator) == "" {
		return fmt.Errorf("artifact: locator is required")
	}
	return nil
}

// WithPhase stamps the producing phase onto the reference.
func (r Ref) WithPhase(phase string) Ref {
	r.Phase = phase
	return r
}

// Aggregator accumulates artifact references in phase-declaration order.
// It has no decision logic: appends only, duplicates preserved.
type Aggregator struct {
	refs []Ref
}

// NewAggregator returns an empty aggregator.
func NewAggregator() *Aggregator {
	return &Aggregator{}
}

// Absorb appends a phase's artifacts, stamping the producing phase onto each.
func (a *Aggregator) Absorb(phase string, refs []Ref) {
	for _, ref := range refs {
		a.refs = append(a.refs, ref.WithPhase(phase))
	}
}

// Refs returns a copy of the accumulated references in append order.
func (a *Aggregator) Refs() []Ref {
	if len(a.refs) == 0 {
		return nil
	}
	out := make([]Ref, len(a.refs))
	copy(out, a.refs)
	return out
}

// Len reports how many references have been absorbed.
func (a *Aggregator) Len() int {
	return len(a.refs)
}
