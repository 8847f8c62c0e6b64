package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/satriahrh/lextale/domain"
	"github.com/satriahrh/lextale/domain/entities"
	"github.com/satriahrh/lextale/domain/repositories"
	"github.com/satriahrh/lextale/internal/metrics"
	"github.com/satriahrh/lextale/internal/sequencer"
)

// ExperimentConfig holds the assets and limits shared by every session
type ExperimentConfig struct {
	ToneAsset         string
	InstructionsAsset string
	PreloadTimeout    time.Duration
	PersistTimeout    time.Duration
}

// ExperimentService runs participant sessions through the phase sequence
type ExperimentService struct {
	config     ExperimentConfig
	sessions   repositories.SessionRepository
	submitter  repositories.ResultSubmitter
	calibrator *Calibrator
	trials     *TrialController
	recorder   *Recorder
	rows       []entities.StimulusRow
	logger     *zap.Logger
}

// NewExperimentService creates a new experiment service
func NewExperimentService(
	config ExperimentConfig,
	sessions repositories.SessionRepository,
	submitter repositories.ResultSubmitter,
	calibrator *Calibrator,
	trials *TrialController,
	recorder *Recorder,
	rows []entities.StimulusRow,
	logger *zap.Logger,
) *ExperimentService {
	if config.PersistTimeout <= 0 {
		config.PersistTimeout = 5 * time.Second
	}
	return &ExperimentService{
		config:     config,
		sessions:   sessions,
		submitter:  submitter,
		calibrator: calibrator,
		trials:     trials,
		recorder:   recorder,
		rows:       rows,
		logger:     logger,
	}
}

// Phases returns the phase list for one session, in order
func (s *ExperimentService) Phases(sc *SessionContext) []sequencer.Phase {
	return []sequencer.Phase{
		&calibrationPhase{svc: s, sc: sc},
		&preloadPhase{svc: s, sc: sc},
		&instructionsPhase{svc: s, sc: sc},
		&trialsPhase{svc: s, sc: sc},
		&submitPhase{svc: s, sc: sc},
		&closingPhase{svc: s, sc: sc},
	}
}

// Manifest lists the calibration tone, the instructions fragment and every
// stimulus audio file, without duplicates
func (s *ExperimentService) Manifest() domain.PreloadManifest {
	seen := make(map[string]bool)
	var assets []string
	add := func(asset string) {
		if asset == "" || seen[asset] {
			return
		}
		seen[asset] = true
		assets = append(assets, asset)
	}

	add(s.config.ToneAsset)
	add(s.config.InstructionsAsset)
	for _, row := range s.rows {
		add(row.AudioFile)
	}
	return domain.PreloadManifest{Assets: assets}
}

// RunSession drives one participant from calibration to closing. It blocks
// until the sequence completes, fails or ctx is cancelled.
func (s *ExperimentService) RunSession(ctx context.Context, sc *SessionContext) error {
	if sc.Session.IsExpired(sc.Clock.Now()) {
		return entities.ErrSessionNotActive
	}

	metrics.SessionsActive.Inc()
	defer metrics.SessionsActive.Dec()

	seq := sequencer.New(sc.Session.ID, sc.Clock, s.logger, s.Phases(sc)...)

	done := make(chan struct{})
	drained := make(chan struct{})
	go func() {
		defer close(drained)
		for {
			select {
			case ev := <-seq.Events():
				s.logger.Debug("Sequence event",
					zap.String("sessionID", ev.SequenceID),
					zap.String("phaseID", string(ev.PhaseID)),
					zap.String("type", ev.Type))
			case <-done:
				return
			}
		}
	}()

	sc.Logger.Info("Session started", zap.String("variant", sc.Variant.Name))
	err := seq.Run(ctx)
	close(done)
	<-drained

	if sc.Session.Status == entities.SessionStatusCompleted {
		// results are already submitted; leaving during closing is fine
		metrics.SessionsTotal.WithLabelValues(string(entities.SessionStatusCompleted)).Inc()
		sc.Logger.Info("Session completed", zap.Int("records", len(sc.Session.Records)))
		return nil
	}

	if err == nil {
		err = errors.New("sequence ended before results were submitted")
	}

	sc.Session.Fail(sc.Clock.Now())
	metrics.SessionsTotal.WithLabelValues(string(entities.SessionStatusFailed)).Inc()
	sc.Logger.Warn("Session failed",
		zap.String("phase", sc.Session.Phase),
		zap.Int("records", len(sc.Session.Records)),
		zap.Error(err))

	pctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.config.PersistTimeout)
	defer cancel()
	if perr := s.sessions.Update(pctx, sc.Session); perr != nil {
		sc.Logger.Error("Failed to persist failed session", zap.Error(perr))
	}
	if ctx.Err() == nil {
		_ = sc.Presenter.End(pctx, string(entities.SessionStatusFailed))
	}
	return err
}

// enterPhase notes the new phase on the session and persists it
func (s *ExperimentService) enterPhase(ctx context.Context, sc *SessionContext, phase sequencer.PhaseID) error {
	sc.Session.EnterPhase(string(phase), sc.Clock.Now())
	sc.Logger.Info("Entering phase", zap.String("phase", string(phase)))
	return s.persist(ctx, sc)
}

func (s *ExperimentService) persist(ctx context.Context, sc *SessionContext) error {
	if err := s.sessions.Update(ctx, sc.Session); err != nil {
		return fmt.Errorf("persist session: %w", err)
	}
	return nil
}
