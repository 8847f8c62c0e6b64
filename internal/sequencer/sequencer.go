package sequencer

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/benbjohnson/clock"
	"go.uber.org/zap"
)

// Sequencer owns an ordered list of phases and advances strictly forward
type Sequencer struct {
	id      string
	clock   clock.Clock
	logger  *zap.Logger
	phases  []Phase
	execs   []PhaseExecution
	current int
	events  chan Event
	mu      sync.RWMutex
}

// New creates a sequencer positioned on the first phase. Phase timestamps
// are read from clk.
func New(id string, clk clock.Clock, logger *zap.Logger, phases ...Phase) *Sequencer {
	if clk == nil {
		clk = clock.New()
	}
	execs := make([]PhaseExecution, len(phases))
	for i, p := range phases {
		execs[i] = PhaseExecution{
			ID:    p.ID(),
			State: PhaseStatePending,
		}
	}

	return &Sequencer{
		id:     id,
		clock:  clk,
		logger: logger,
		phases: phases,
		execs:  execs,
		events: make(chan Event, 100),
	}
}

// Events returns the lifecycle event channel. Events are dropped when nobody reads.
func (s *Sequencer) Events() <-chan Event {
	return s.events
}

// Current returns the phase the sequencer is on, or "" once every phase completed
func (s *Sequencer) Current() PhaseID {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.current >= len(s.phases) {
		return ""
	}
	return s.phases[s.current].ID()
}

// Done reports whether every phase has completed
func (s *Sequencer) Done() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current >= len(s.phases)
}

// Snapshot returns a copy of every phase execution
func (s *Sequencer) Snapshot() []PhaseExecution {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]PhaseExecution, len(s.execs))
	copy(out, s.execs)
	return out
}

// Execute runs the current phase until its blocking waits resolve.
// On success the phase is left awaiting Advance.
func (s *Sequencer) Execute(ctx context.Context) error {
	s.mu.Lock()
	if s.current >= len(s.phases) {
		s.mu.Unlock()
		return ErrSequenceComplete
	}
	idx := s.current
	if s.execs[idx].State == PhaseStateAwaitingAdvance {
		s.mu.Unlock()
		return nil
	}
	phase := s.phases[idx]
	now := s.clock.Now()
	s.execs[idx].State = PhaseStateRunning
	s.execs[idx].Attempts++
	s.execs[idx].Error = ""
	if s.execs[idx].StartedAt == nil {
		s.execs[idx].StartedAt = &now
	}
	s.mu.Unlock()

	s.emitEvent(Event{
		SequenceID: s.id,
		PhaseID:    phase.ID(),
		Type:       EventPhaseStarted,
		Timestamp:  now,
	})

	if err := phase.Run(ctx); err != nil {
		s.failPhase(idx, err)
		return fmt.Errorf("phase %s: %w", phase.ID(), err)
	}

	s.setState(idx, PhaseStateAwaitingAdvance)
	return nil
}

// Advance moves to the next phase. It is only legal once the current phase
// has signalled completion. A failing gate keeps the sequencer in place and
// returns a *GateError; the phase must then be executed again.
func (s *Sequencer) Advance() error {
	s.mu.RLock()
	if s.current >= len(s.phases) {
		s.mu.RUnlock()
		return ErrSequenceComplete
	}
	idx := s.current
	state := s.execs[idx].State
	phase := s.phases[idx]
	s.mu.RUnlock()

	if state != PhaseStateAwaitingAdvance {
		return ErrPhaseIncomplete
	}

	if gate, ok := phase.(Gate); ok {
		if err := gate.Check(); err != nil {
			s.setState(idx, PhaseStatePending)
			s.emitEvent(Event{
				SequenceID: s.id,
				PhaseID:    phase.ID(),
				Type:       EventGateRejected,
				Timestamp:  s.clock.Now(),
				Error:      err.Error(),
			})
			return &GateError{Phase: phase.ID(), Err: err}
		}
		if err := gate.Commit(); err != nil {
			s.failPhase(idx, err)
			return fmt.Errorf("commit %s: %w", phase.ID(), err)
		}
	}

	now := s.clock.Now()
	s.mu.Lock()
	s.execs[idx].State = PhaseStateCompleted
	s.execs[idx].CompletedAt = &now
	s.current++
	done := s.current >= len(s.phases)
	s.mu.Unlock()

	s.emitEvent(Event{
		SequenceID: s.id,
		PhaseID:    phase.ID(),
		Type:       EventPhaseCompleted,
		Timestamp:  now,
	})
	s.logger.Info("Phase completed",
		zap.String("sequenceID", s.id),
		zap.String("phaseID", string(phase.ID())))

	if done {
		s.emitEvent(Event{
			SequenceID: s.id,
			Type:       EventSequenceCompleted,
			Timestamp:  now,
		})
	}
	return nil
}

// Run executes and advances phases until the sequence completes, a phase
// fails or ctx is cancelled. Gate rejections are handed back to the phase
// and the phase is run again.
func (s *Sequencer) Run(ctx context.Context) error {
	for !s.Done() {
		if err := ctx.Err(); err != nil {
			return err
		}

		if err := s.Execute(ctx); err != nil {
			return err
		}

		err := s.Advance()
		var gateErr *GateError
		if errors.As(err, &gateErr) {
			s.logger.Info("Gate rejected advance",
				zap.String("sequenceID", s.id),
				zap.String("phaseID", string(gateErr.Phase)),
				zap.Error(gateErr.Err))

			gate := s.phases[s.index()].(Gate)
			if rerr := gate.Reject(ctx, gateErr.Err); rerr != nil {
				s.failPhase(s.index(), rerr)
				return fmt.Errorf("reject %s: %w", gateErr.Phase, rerr)
			}
			continue
		}
		if err != nil {
			return err
		}
	}
	return nil
}

func (s *Sequencer) index() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current
}

func (s *Sequencer) setState(idx int, state PhaseState) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.execs[idx].State = state
}

func (s *Sequencer) failPhase(idx int, err error) {
	now := s.clock.Now()
	s.mu.Lock()
	s.execs[idx].State = PhaseStateFailed
	s.execs[idx].Error = err.Error()
	s.execs[idx].CompletedAt = &now
	id := s.execs[idx].ID
	s.mu.Unlock()

	s.emitEvent(Event{
		SequenceID: s.id,
		PhaseID:    id,
		Type:       EventPhaseFailed,
		Timestamp:  now,
		Error:      err.Error(),
	})
	s.logger.Error("Phase failed",
		zap.String("sequenceID", s.id),
		zap.String("phaseID", string(id)),
		zap.Error(err))
}

// emitEvent emits a sequence event
func (s *Sequencer) emitEvent(event Event) {
	select {
	case s.events <- event:
	default:
		s.logger.Warn("Sequence event channel full, dropping event",
			zap.String("sequenceID", event.SequenceID),
			zap.String("type", event.Type))
	}
}
