package sequencer

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// PhaseID uniquely identifies a phase within a sequence
type PhaseID string

// PhaseState represents the state of an individual phase
type PhaseState string

const (
	PhaseStatePending         PhaseState = "pending"
	PhaseStateRunning         PhaseState = "running"
	PhaseStateAwaitingAdvance PhaseState = "awaiting_advance"
	PhaseStateCompleted       PhaseState = "completed"
	PhaseStateFailed          PhaseState = "failed"
)

var (
	ErrPhaseIncomplete  = errors.New("current phase has not signalled completion")
	ErrSequenceComplete = errors.New("sequence already completed")
)

// Phase is one named segment of the session. Run returns once every
// blocking wait of the phase has resolved.
type Phase interface {
	ID() PhaseID
	Run(ctx context.Context) error
}

// Gate is implemented by phases whose advance is conditional.
// Check is evaluated on every advance attempt. When it fails, Reject must
// surface a corrective affordance before the phase runs again. Commit is
// called exactly once, when Check passes.
type Gate interface {
	Check() error
	Reject(ctx context.Context, err error) error
	Commit() error
}

// GateError is returned by Advance when a gate refuses the transition
type GateError struct {
	Phase PhaseID
	Err   error
}

func (e *GateError) Error() string {
	return fmt.Sprintf("gate %s: %v", e.Phase, e.Err)
}

func (e *GateError) Unwrap() error {
	return e.Err
}

// PhaseExecution represents the execution state of a phase
type PhaseExecution struct {
	ID          PhaseID    `json:"id"`
	State       PhaseState `json:"state"`
	Attempts    int        `json:"attempts"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	Error       string     `json:"error,omitempty"`
}

// Event represents an event in the sequence lifecycle
type Event struct {
	SequenceID string    `json:"sequence_id"`
	PhaseID    PhaseID   `json:"phase_id,omitempty"`
	Type       string    `json:"type"`
	Timestamp  time.Time `json:"timestamp"`
	Error      string    `json:"error,omitempty"`
}

// Event types
const (
	EventPhaseStarted      = "phase_started"
	EventPhaseCompleted    = "phase_completed"
	EventPhaseFailed       = "phase_failed"
	EventGateRejected      = "gate_rejected"
	EventSequenceCompleted = "sequence_completed"
)
