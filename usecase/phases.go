package usecase

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/satriahrh/lextale/domain"
	"github.com/satriahrh/lextale/domain/entities"
	"github.com/satriahrh/lextale/internal/metrics"
	"github.com/satriahrh/lextale/internal/sequencer"
)

// Phase identifiers, in session order
const (
	PhaseCalibration  sequencer.PhaseID = "calibration"
	PhasePreload      sequencer.PhaseID = "preload"
	PhaseInstructions sequencer.PhaseID = "instructions"
	PhaseTrials       sequencer.PhaseID = "trials"
	PhaseSubmit       sequencer.PhaseID = "submit"
	PhaseClosing      sequencer.PhaseID = "closing"
)

// SubjectRequiredMessage is shown when the participant tries to start without an id
const SubjectRequiredMessage = "You need to enter your participant ID to start the test"

var ErrPreloadTimeout = errors.New("assets were not preloaded in time")

// calibrationPhase runs the audio latency calibrator once
type calibrationPhase struct {
	svc *ExperimentService
	sc  *SessionContext
}

func (p *calibrationPhase) ID() sequencer.PhaseID { return PhaseCalibration }

func (p *calibrationPhase) Run(ctx context.Context) error {
	if err := p.svc.enterPhase(ctx, p.sc, PhaseCalibration); err != nil {
		return err
	}
	if _, err := p.svc.calibrator.Calibrate(ctx, p.sc); err != nil {
		return err
	}
	return p.svc.persist(ctx, p.sc)
}

// preloadPhase hands the asset manifest to the participant surface and
// suspends until it reports every asset loaded
type preloadPhase struct {
	svc *ExperimentService
	sc  *SessionContext
}

func (p *preloadPhase) ID() sequencer.PhaseID { return PhasePreload }

func (p *preloadPhase) Run(ctx context.Context) error {
	if err := p.svc.enterPhase(ctx, p.sc, PhasePreload); err != nil {
		return err
	}

	screen := domain.Screen{
		Kind:  domain.ScreenPreload,
		Phase: string(PhasePreload),
		Text:  "Loading the audio files, please wait...",
	}
	if err := p.sc.Presenter.Present(ctx, screen); err != nil {
		return fmt.Errorf("present preload: %w", err)
	}
	if err := p.sc.Presenter.Preload(ctx, p.svc.Manifest()); err != nil {
		return fmt.Errorf("send preload manifest: %w", err)
	}

	deadline, stop := p.sc.deadline(p.svc.config.PreloadTimeout)
	defer stop()

	_, err := p.sc.await(ctx, deadline, func(ev domain.ParticipantEvent) bool {
		return ev.Type == domain.EventPreloadComplete
	})
	if errors.Is(err, ErrEventTimeout) {
		return ErrPreloadTimeout
	}
	return err
}

// instructionsPhase shows the instructions and collects the participant id.
// The transition to trials is gated on the id being non-blank.
type instructionsPhase struct {
	svc       *ExperimentService
	sc        *SessionContext
	candidate string
	shown     bool
}

func (p *instructionsPhase) ID() sequencer.PhaseID { return PhaseInstructions }

func (p *instructionsPhase) screen(message string) domain.Screen {
	return domain.Screen{
		Kind:     domain.ScreenInstructions,
		Phase:    string(PhaseInstructions),
		Fragment: p.svc.config.InstructionsAsset,
		Input:    &domain.TextInput{Name: "subject", Placeholder: "Participant ID"},
		Buttons:  []domain.Button{{ID: domain.ButtonStartTest, Label: "Start the test"}},
		Error:    message,
	}
}

func (p *instructionsPhase) Run(ctx context.Context) error {
	if !p.shown {
		if err := p.svc.enterPhase(ctx, p.sc, PhaseInstructions); err != nil {
			return err
		}
		if err := p.sc.Presenter.Present(ctx, p.screen("")); err != nil {
			return fmt.Errorf("present instructions: %w", err)
		}
		p.shown = true
	}

	ev, err := p.sc.await(ctx, nil, func(ev domain.ParticipantEvent) bool {
		return ev.Type == domain.EventSubject
	})
	if err != nil {
		return err
	}
	p.candidate = ev.Text
	return nil
}

func (p *instructionsPhase) Check() error {
	return entities.ValidateSubjectID(p.candidate)
}

func (p *instructionsPhase) Reject(ctx context.Context, err error) error {
	metrics.GateRejections.WithLabelValues(string(PhaseInstructions)).Inc()
	p.sc.Logger.Info("Participant id rejected", zap.Error(err))
	return p.sc.Presenter.Present(ctx, p.screen(SubjectRequiredMessage))
}

func (p *instructionsPhase) Commit() error {
	if err := p.sc.Session.SetSubject(p.candidate, p.sc.Clock.Now()); err != nil {
		return err
	}
	p.sc.Logger = p.sc.Logger.With(zap.String("subject", p.sc.Session.SubjectID))
	return nil
}

// trialsPhase runs one trial per stimulus row, strictly in sequence
type trialsPhase struct {
	svc *ExperimentService
	sc  *SessionContext
}

func (p *trialsPhase) ID() sequencer.PhaseID { return PhaseTrials }

func (p *trialsPhase) Run(ctx context.Context) error {
	if err := p.svc.enterPhase(ctx, p.sc, PhaseTrials); err != nil {
		return err
	}
	for i, row := range p.svc.rows {
		if _, err := p.svc.trials.Run(ctx, p.sc, i+1, row); err != nil {
			return fmt.Errorf("trial %d: %w", i+1, err)
		}
	}
	return nil
}

// submitPhase hands the accumulated records to the result submitter.
// A failed submission is recorded on the session but does not stop it.
type submitPhase struct {
	svc *ExperimentService
	sc  *SessionContext
}

func (p *submitPhase) ID() sequencer.PhaseID { return PhaseSubmit }

func (p *submitPhase) Run(ctx context.Context) error {
	if err := p.svc.enterPhase(ctx, p.sc, PhaseSubmit); err != nil {
		return err
	}

	results := p.svc.recorder.Results(p.sc.Session, p.sc.Variant.HasReplay)
	if err := p.svc.submitter.Submit(ctx, results); err != nil {
		metrics.SubmissionErrors.Inc()
		p.sc.Logger.Error("Failed to submit results", zap.Error(err))
		p.sc.Session.SubmissionError = err.Error()
	} else {
		p.sc.Logger.Info("Results submitted",
			zap.Int("records", len(results.Records)),
			zap.Float64("score", results.Summary.Score))
	}

	p.sc.Session.Complete(p.sc.Clock.Now())
	return p.svc.persist(ctx, p.sc)
}

// closingPhase thanks the participant and waits for Finish
type closingPhase struct {
	svc *ExperimentService
	sc  *SessionContext
}

func (p *closingPhase) ID() sequencer.PhaseID { return PhaseClosing }

func (p *closingPhase) Run(ctx context.Context) error {
	p.sc.Session.EnterPhase(string(PhaseClosing), p.sc.Clock.Now())

	screen := domain.Screen{
		Kind:    domain.ScreenClosing,
		Phase:   string(PhaseClosing),
		Text:    "Thank you for participating!",
		Buttons: []domain.Button{{ID: domain.ButtonFinish, Label: "Finish"}},
	}
	if err := p.sc.Presenter.Present(ctx, screen); err != nil {
		return fmt.Errorf("present closing: %w", err)
	}
	if err := p.sc.awaitButton(ctx, domain.ButtonFinish); err != nil {
		return err
	}
	return p.sc.Presenter.End(ctx, string(entities.SessionStatusCompleted))
}
