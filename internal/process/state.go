package process

import (
	"fmt"
	"time"
)

// Status enumerates the run state machine. Terminal states are Completed,
// Failed, and Cancelled; Running never re-enters an already-completed phase
// index.
type Status string

const (
	StatusPending            Status = "pending"
	StatusRunning            Status = "running"
	StatusAwaitingCheckpoint Status = "awaiting-checkpoint"
	StatusValidating         Status = "validating"
	StatusCompleted          Status = "completed"
	StatusFailed             Status = "failed"
	StatusCancelled          Status = "cancelled"
)

var transitions = map[Status][]Status{
	StatusPending:            {StatusRunning, StatusCancelled},
	StatusRunning:            {StatusRunning, StatusAwaitingCheckpoint, StatusValidating, StatusFailed, StatusCancelled},
	StatusAwaitingCheckpoint: {StatusRunning, StatusValidating, StatusCompleted, StatusFailed, StatusCancelled},
	StatusValidating:         {StatusAwaitingCheckpoint, StatusCompleted, StatusFailed, StatusCancelled},
}

// Terminal reports whether no further transitions are allowed.
func (s Status) Terminal() bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusCancelled:
		return true
	}
	return false
}

// CanTransition reports whether moving to next is a legal state change.
func (s Status) CanTransition(next Status) bool {
	for _, allowed := range transitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// State is the persisted snapshot of a run, written after every transition so
// a crashed orchestrator can resume from the effects store.
type State struct {
	RunID      string    `json:"run_id"`
	ProcessID  string    `json:"process_id"`
	Status     Status    `json:"status"`
	Reason     string    `json:"reason,omitempty"`
	PhaseIndex int       `json:"phase_index"`
	Phase      string    `json:"phase,omitempty"`
	Completed  []string  `json:"completed,omitempty"`
	StartedAt  time.Time `json:"started_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// advance moves the state machine, enforcing legal transitions and forward
// phase progress.
func (s *State) advance(next Status, phaseIndex int, phase, reason string, now time.Time) error {
	if !s.Status.CanTransition(next) {
		return fmt.Errorf("process: illegal transition %s -> %s for run %s", s.Status, next, s.RunID)
	}
	if next == StatusRunning && phaseIndex < s.PhaseIndex {
		return fmt.Errorf("process: run %s cannot re-enter completed phase index %d", s.RunID, phaseIndex)
	}
	s.Status = next
	s.PhaseIndex = phaseIndex
	s.Phase = phase
	s.Reason = reason
	s.UpdatedAt = now
	return nil
}
