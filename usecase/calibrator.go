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

var ErrPlaybackStalled = errors.New("calibration tone never started playing")

const audioFailedMessage = "The audio could not be played. Please check your speakers and try again."

// CalibratorConfig holds calibration settings
type CalibratorConfig struct {
	ToneAsset       string
	PlaybackTimeout time.Duration
	MaxAttempts     int
}

// Calibrator measures the delay between requesting playback and playback starting
type Calibrator struct {
	config CalibratorConfig
}

// NewCalibrator creates a new audio latency calibrator
func NewCalibrator(config CalibratorConfig) *Calibrator {
	if config.MaxAttempts <= 0 {
		config.MaxAttempts = 1
	}
	return &Calibrator{config: config}
}

// Calibrate plays the calibration tone once, stores the measured latency on
// the session and waits for the participant to confirm they heard it.
func (c *Calibrator) Calibrate(ctx context.Context, sc *SessionContext) (entities.CalibrationResult, error) {
	screen := domain.Screen{
		Kind:  domain.ScreenCalibration,
		Phase: sc.Session.Phase,
		Text:  sc.Variant.CalibrationCopy,
		Buttons: []domain.Button{
			{ID: domain.ButtonStartCalibration, Label: "Start Calibration"},
		},
	}

	var result entities.CalibrationResult
	for attempt := 1; ; attempt++ {
		if err := sc.Presenter.Present(ctx, screen); err != nil {
			return result, fmt.Errorf("present calibration: %w", err)
		}
		if err := sc.awaitButton(ctx, domain.ButtonStartCalibration); err != nil {
			return result, err
		}

		started, reason, err := c.playTone(ctx, sc)
		if err != nil {
			return result, err
		}
		if started != nil {
			result = *started
			result.Attempts = attempt
			break
		}

		metrics.PlaybackFailures.WithLabelValues("calibration", reason).Inc()
		sc.Logger.Warn("Calibration tone did not start",
			zap.Int("attempt", attempt),
			zap.String("reason", reason))

		if attempt >= c.config.MaxAttempts {
			return result, fmt.Errorf("%w after %d attempts", ErrPlaybackStalled, attempt)
		}
		screen.Error = audioFailedMessage
	}

	if err := sc.Session.SetCalibration(result, sc.Clock.Now()); err != nil {
		return result, err
	}
	metrics.AudioLatency.Observe(float64(result.LatencyMs) / 1000)
	sc.Logger.Info("Audio latency calibrated",
		zap.Int64("audioLatencyMs", result.LatencyMs),
		zap.String("clock", result.Clock),
		zap.Int("attempts", result.Attempts))

	ack := domain.Screen{
		Kind:    domain.ScreenCalibration,
		Phase:   sc.Session.Phase,
		Text:    "If you heard the tone, click Continue.",
		Buttons: []domain.Button{{ID: domain.ButtonContinue, Label: "Continue"}},
	}
	if err := sc.Presenter.Present(ctx, ack); err != nil {
		return result, fmt.Errorf("present calibration acknowledgement: %w", err)
	}
	if err := sc.awaitButton(ctx, domain.ButtonContinue); err != nil {
		return result, err
	}
	return result, nil
}

// playTone issues one play command and waits for it to start. A nil result
// with a reason means the tone failed or timed out.
func (c *Calibrator) playTone(ctx context.Context, sc *SessionContext) (*entities.CalibrationResult, string, error) {
	req := domain.PlaybackRequest{
		ID:    uuid.NewString(),
		Asset: c.config.ToneAsset,
		Trial: domain.CalibrationTrial,
	}

	requestTime := sc.Clock.Now()
	if err := sc.Presenter.Play(ctx, req); err != nil {
		return nil, "", fmt.Errorf("play calibration tone: %w", err)
	}

	deadline, stop := sc.deadline(c.config.PlaybackTimeout)
	defer stop()

	ev, err := sc.await(ctx, deadline, func(ev domain.ParticipantEvent) bool {
		return (ev.Type == domain.EventPlaybackStarted || ev.Type == domain.EventPlaybackFailed) &&
			ev.PlaybackID == req.ID
	})
	if errors.Is(err, ErrEventTimeout) {
		return nil, "timeout", nil
	}
	if err != nil {
		return nil, "", err
	}
	if ev.Type == domain.EventPlaybackFailed {
		return nil, "failed", nil
	}

	request := entities.Stamp{Server: requestTime, Client: ev.ClientRequestedAt}
	result := entities.NewCalibrationResult(request, ev.Stamp(), 0)
	return &result, "", nil
}
