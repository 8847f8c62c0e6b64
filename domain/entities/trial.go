package entities

import (
	"errors"
	"fmt"
	"time"
)

// Option is the participant's forced binary choice
type Option string

const (
	OptionYes  Option = "yes"
	OptionNo   Option = "no"
	OptionNone Option = "none"
)

// Valid reports whether o is a selectable option
func (o Option) Valid() bool {
	return o == OptionYes || o == OptionNo
}

// TrialPhase is the position of a trial in its state machine
type TrialPhase string

const (
	TrialPhaseInit             TrialPhase = "init"
	TrialPhaseAudioRequested   TrialPhase = "audio_requested"
	TrialPhaseAudioPlaying     TrialPhase = "audio_playing"
	TrialPhaseAwaitingResponse TrialPhase = "awaiting_response"
	TrialPhaseResponded        TrialPhase = "responded"
	TrialPhaseLogged           TrialPhase = "logged"
)

// TrialOutcome summarises how a trial ended
type TrialOutcome string

const (
	TrialOutcomeResponded   TrialOutcome = "responded"
	TrialOutcomeNoResponse  TrialOutcome = "no_response"
	TrialOutcomeAudioFailed TrialOutcome = "audio_failed"
)

var (
	ErrNoAudioAnchor = errors.New("audio start has not been observed for this trial")
	ErrInvalidOption = errors.New("option must be yes or no")
	ErrTrialLogged   = errors.New("trial has already been logged")
)

// TrialState is the mutable per-trial record owned by the trial controller.
// A new one is created for every trial and discarded once flattened.
type TrialState struct {
	Trial           int          `json:"trial"`
	Phase           TrialPhase   `json:"phase"`
	PlayRequestTime time.Time    `json:"play_request_time,omitempty"`
	AudioStart      Stamp        `json:"audio_start"`
	ReplayCount     int          `json:"replay_count"`
	Selected        Option       `json:"selected"`
	RTYes           ReactionTime `json:"rt_yes"`
	RTNo            ReactionTime `json:"rt_no"`
	Outcome         TrialOutcome `json:"outcome,omitempty"`
}

// NewTrialState returns a trial in Init with neutral defaults
func NewTrialState(trial int) *TrialState {
	return &TrialState{
		Trial:    trial,
		Phase:    TrialPhaseInit,
		Selected: OptionNone,
		RTYes:    NA(),
		RTNo:     NA(),
	}
}

// RequestPlayback records the instant the first play command is issued
func (t *TrialState) RequestPlayback(at time.Time) error {
	if t.Phase != TrialPhaseInit {
		return fmt.Errorf("request playback in phase %s", t.Phase)
	}
	t.PlayRequestTime = at
	t.Phase = TrialPhaseAudioRequested
	return nil
}

// MarkPlaying notes that the play command was accepted by the participant surface
func (t *TrialState) MarkPlaying() {
	if t.Phase == TrialPhaseAudioRequested {
		t.Phase = TrialPhaseAudioPlaying
	}
}

// HasAudioStart reports whether the RT anchor has been latched
func (t *TrialState) HasAudioStart() bool {
	return !t.AudioStart.IsZero()
}

// LatchAudioStart sets the RT anchor on the first playback-start event only.
// It returns true when this call set the anchor.
func (t *TrialState) LatchAudioStart(at Stamp) bool {
	if t.HasAudioStart() {
		return false
	}
	if t.Phase != TrialPhaseAudioRequested && t.Phase != TrialPhaseAudioPlaying {
		return false
	}
	t.AudioStart = at
	t.Phase = TrialPhaseAwaitingResponse
	return true
}

// Replay counts one replay. The anchor is left untouched.
func (t *TrialState) Replay() error {
	if t.Phase != TrialPhaseAwaitingResponse {
		return fmt.Errorf("replay in phase %s", t.Phase)
	}
	t.ReplayCount++
	return nil
}

// Select records the participant's choice. The RT of the chosen option is
// measured from the latched audio start and the other option is forced to NA.
// The device clock is used when it timed both the start and the choice.
func (t *TrialState) Select(option Option, at Stamp) error {
	if !option.Valid() {
		return ErrInvalidOption
	}
	if t.Phase == TrialPhaseLogged {
		return ErrTrialLogged
	}
	if !t.HasAudioStart() {
		return ErrNoAudioAnchor
	}

	rt := at.Since(t.AudioStart)
	t.Selected = option
	switch option {
	case OptionYes:
		t.RTYes, t.RTNo = rt, NA()
	case OptionNo:
		t.RTYes, t.RTNo = NA(), rt
	}
	t.Outcome = TrialOutcomeResponded
	t.Phase = TrialPhaseResponded
	return nil
}

// Fail ends the trial without a measurable response
func (t *TrialState) Fail(outcome TrialOutcome) {
	t.Selected = OptionNone
	t.RTYes, t.RTNo = NA(), NA()
	t.Outcome = outcome
	t.Phase = TrialPhaseResponded
}

// Flatten turns the trial into its result record and marks it logged.
// replayable controls whether ReplayCount is part of the record.
func (t *TrialState) Flatten(row StimulusRow, subject string, replayable bool, at time.Time) (ResultRecord, error) {
	if t.Phase == TrialPhaseLogged {
		return ResultRecord{}, ErrTrialLogged
	}
	if t.Phase != TrialPhaseResponded {
		return ResultRecord{}, fmt.Errorf("flatten in phase %s", t.Phase)
	}

	rec := ResultRecord{
		Trial:       t.Trial,
		Stimulus:    row.Stimulus,
		Type:        row.Type,
		Block:       row.Block,
		Order:       row.Order,
		Item:        row.Item,
		AudioFile:   row.AudioFile,
		Subject:     subject,
		RTYes:       t.RTYes,
		RTNo:        t.RTNo,
		Selected:    t.Selected,
		Outcome:     t.Outcome,
		CompletedAt: at,
	}
	if replayable {
		count := t.ReplayCount
		rec.ReplayCount = &count
	}
	t.Phase = TrialPhaseLogged
	return rec, nil
}
