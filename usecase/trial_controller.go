package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/satriahrh/lextale/domain"
	"github.com/satriahrh/lextale/domain/entities"
	"github.com/satriahrh/lextale/internal/metrics"
)

// TrialConfig holds per-trial timing limits. Zero means wait without bound.
type TrialConfig struct {
	PlaybackTimeout time.Duration
	ResponseTimeout time.Duration
}

// TrialController runs one stimulus row from playback to a logged record
type TrialController struct {
	config   TrialConfig
	recorder *Recorder
}

// NewTrialController creates a new trial controller
func NewTrialController(config TrialConfig, recorder *Recorder) *TrialController {
	return &TrialController{
		config:   config,
		recorder: recorder,
	}
}

// trialRun is the state of one trial while it is running
type trialRun struct {
	sc        *SessionContext
	row       entities.StimulusRow
	state     *entities.TrialState
	playbacks map[string]bool
}

// Run plays the stimulus, captures the participant's choice and hands the
// flattened record to the recorder.
func (tc *TrialController) Run(ctx context.Context, sc *SessionContext, index int, row entities.StimulusRow) (entities.ResultRecord, error) {
	run := &trialRun{
		sc:        sc,
		row:       row,
		state:     entities.NewTrialState(index),
		playbacks: make(map[string]bool),
	}

	if err := run.state.RequestPlayback(sc.Clock.Now()); err != nil {
		return entities.ResultRecord{}, err
	}
	if err := run.play(ctx); err != nil {
		return entities.ResultRecord{}, err
	}
	run.state.MarkPlaying()

	started, err := tc.awaitAudioStart(ctx, run)
	if err != nil {
		return entities.ResultRecord{}, err
	}

	if started {
		if err := sc.Presenter.Present(ctx, tc.choiceScreen(run)); err != nil {
			return entities.ResultRecord{}, fmt.Errorf("present choice: %w", err)
		}
		if err := tc.awaitResponse(ctx, run); err != nil {
			return entities.ResultRecord{}, err
		}
	} else {
		if err := tc.reportAudioFailure(ctx, run); err != nil {
			return entities.ResultRecord{}, err
		}
	}

	rec, err := run.state.Flatten(row, sc.Session.SubjectID, sc.Variant.HasReplay, sc.Clock.Now())
	if err != nil {
		return entities.ResultRecord{}, err
	}
	if err := tc.recorder.Record(ctx, sc, rec); err != nil {
		return rec, err
	}
	return rec, nil
}

// play issues a play command with a fresh playback id
func (r *trialRun) play(ctx context.Context) error {
	req := domain.PlaybackRequest{
		ID:    uuid.NewString(),
		Asset: r.row.AudioFile,
		Trial: r.state.Trial,
	}
	r.playbacks[req.ID] = true
	if err := r.sc.Presenter.Play(ctx, req); err != nil {
		return fmt.Errorf("play %s: %w", r.row.AudioFile, err)
	}
	return nil
}

// forTrial accepts events addressed to this trial only
func (r *trialRun) forTrial(types ...domain.EventType) func(domain.ParticipantEvent) bool {
	return func(ev domain.ParticipantEvent) bool {
		if ev.Trial != r.state.Trial {
			return false
		}
		for _, t := range types {
			if ev.Type == t {
				return true
			}
		}
		return false
	}
}

// awaitAudioStart waits for the first playback-start event of the trial.
// It returns false when playback failed or did not start in time.
func (tc *TrialController) awaitAudioStart(ctx context.Context, run *trialRun) (bool, error) {
	deadline, stop := run.sc.deadline(tc.config.PlaybackTimeout)
	defer stop()

	match := run.forTrial(domain.EventPlaybackStarted, domain.EventPlaybackFailed)
	for {
		ev, err := run.sc.await(ctx, deadline, match)
		if errors.Is(err, ErrEventTimeout) {
			metrics.PlaybackFailures.WithLabelValues("trial", "timeout").Inc()
			return false, nil
		}
		if err != nil {
			return false, err
		}
		if !run.playbacks[ev.PlaybackID] {
			run.sc.Logger.Debug("Ignoring event for unknown playback",
				zap.Int("trial", run.state.Trial),
				zap.String("playbackID", ev.PlaybackID))
			continue
		}

		switch ev.Type {
		case domain.EventPlaybackStarted:
			run.state.LatchAudioStart(ev.Stamp())
			return true, nil
		case domain.EventPlaybackFailed:
			metrics.PlaybackFailures.WithLabelValues("trial", "failed").Inc()
			run.sc.Logger.Warn("Trial audio failed",
				zap.Int("trial", run.state.Trial),
				zap.String("audioFile", run.row.AudioFile),
				zap.String("reason", ev.Reason))
			return false, nil
		}
	}
}

// awaitResponse handles replays and selections until the participant chooses
func (tc *TrialController) awaitResponse(ctx context.Context, run *trialRun) error {
	deadline, stop := run.sc.deadline(tc.config.ResponseTimeout)
	defer stop()

	match := run.forTrial(domain.EventSelect, domain.EventReplay, domain.EventPlaybackStarted, domain.EventPlaybackFailed)
	for {
		ev, err := run.sc.await(ctx, deadline, match)
		if errors.Is(err, ErrEventTimeout) {
			run.state.Fail(entities.TrialOutcomeNoResponse)
			run.sc.Logger.Info("No response before timeout", zap.Int("trial", run.state.Trial))
			return nil
		}
		if err != nil {
			return err
		}

		switch ev.Type {
		case domain.EventSelect:
			if err := run.state.Select(ev.Option, ev.Stamp()); err != nil {
				run.sc.Logger.Warn("Rejected selection",
					zap.Int("trial", run.state.Trial),
					zap.String("option", string(ev.Option)),
					zap.Error(err))
				continue
			}
			return nil

		case domain.EventReplay:
			if !run.sc.Variant.HasReplay {
				continue
			}
			if err := run.state.Replay(); err != nil {
				return err
			}
			metrics.Replays.Inc()
			if err := run.play(ctx); err != nil {
				return err
			}

		case domain.EventPlaybackStarted:
			// replays never move the anchor
			run.state.LatchAudioStart(ev.Stamp())

		case domain.EventPlaybackFailed:
			metrics.PlaybackFailures.WithLabelValues("replay", "failed").Inc()
			run.sc.Logger.Warn("Replay audio failed",
				zap.Int("trial", run.state.Trial),
				zap.String("reason", ev.Reason))
		}
	}
}

// reportAudioFailure ends the trial without a response and tells the participant
func (tc *TrialController) reportAudioFailure(ctx context.Context, run *trialRun) error {
	run.state.Fail(entities.TrialOutcomeAudioFailed)

	trial := run.state.Trial
	screen := domain.Screen{
		Kind:    domain.ScreenMessage,
		Phase:   run.sc.Session.Phase,
		Text:    "This item could not be played. Click Continue to go on to the next one.",
		Buttons: []domain.Button{{ID: domain.ButtonContinue, Label: "Continue"}},
		Trial:   &trial,
	}
	if err := run.sc.Presenter.Present(ctx, screen); err != nil {
		return fmt.Errorf("present audio failure: %w", err)
	}
	return run.sc.awaitButton(ctx, domain.ButtonContinue)
}

// choiceScreen renders the two options in their fixed slots
func (tc *TrialController) choiceScreen(run *trialRun) domain.Screen {
	v := run.sc.Variant
	trial := run.state.Trial

	slots := v.ChoiceLayout.Slots()
	choices := make([]domain.Choice, 0, len(slots))
	for pos, option := range slots {
		choice := domain.Choice{Option: option, Position: pos}
		if option == entities.OptionYes {
			choice.Label, choice.Color = v.YesLabel, "green"
		} else {
			choice.Label, choice.Color = v.NoLabel, "red"
		}
		choices = append(choices, choice)
	}

	return domain.Screen{
		Kind:    domain.ScreenTrial,
		Phase:   run.sc.Session.Phase,
		Choices: choices,
		Replay:  v.HasReplay,
		Trial:   &trial,
	}
}
