package usecase

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/satriahrh/lextale/domain"
	"github.com/satriahrh/lextale/domain/entities"
)

func newTestService(h *harness, submitter *fakeSubmitter) *ExperimentService {
	recorder := NewRecorder(h.repo, entities.DefaultTypeLabels())
	return NewExperimentService(
		ExperimentConfig{ToneAsset: "tone.wav", InstructionsAsset: "intro1.html"},
		h.repo,
		submitter,
		NewCalibrator(CalibratorConfig{ToneAsset: "tone.wav"}),
		NewTrialController(TrialConfig{}, recorder),
		recorder,
		rows,
		zap.NewNop(),
	)
}

func runSessionAsync(ctx context.Context, svc *ExperimentService, h *harness) <-chan error {
	out := make(chan error, 1)
	go func() { out <- svc.RunSession(ctx, h.sc) }()
	return out
}

// passCalibration drives calibration with a 120ms latency
func passCalibration(t *testing.T, h *harness) {
	t.Helper()
	h.surface.nextScreen(t)
	h.press(domain.ButtonStartCalibration)
	h.started(h.surface.nextPlay(t), 1120)
	h.surface.nextScreen(t)
	h.press(domain.ButtonContinue)
}

func passPreload(t *testing.T, h *harness) {
	t.Helper()
	screen := h.surface.nextScreen(t)
	assert.Equal(t, domain.ScreenPreload, screen.Kind)
	h.send(domain.ParticipantEvent{Type: domain.EventPreloadComplete})
}

func enterSubject(h *harness, text string) {
	h.send(domain.ParticipantEvent{Type: domain.EventSubject, Text: text, Button: domain.ButtonStartTest})
}

func answerAll(t *testing.T, h *harness) {
	t.Helper()
	for i := range rows {
		trial := i + 1
		req := h.surface.nextPlay(t)
		require.Equal(t, trial, req.Trial)
		base := int64(trial * 10000)
		h.started(req, base)
		h.surface.nextScreen(t)
		h.selectOption(trial, entities.OptionYes, base+430)
	}
}

func TestRunSessionEndToEnd(t *testing.T) {
	h := newHarness(t, entities.DefaultVariant(), mockClock(1000))
	submitter := &fakeSubmitter{}
	svc := newTestService(h, submitter)

	done := runSessionAsync(context.Background(), svc, h)

	passCalibration(t, h)
	passPreload(t, h)

	instructions := h.surface.nextScreen(t)
	assert.Equal(t, domain.ScreenInstructions, instructions.Kind)
	assert.Equal(t, "intro1.html", instructions.Fragment)
	assert.Empty(t, instructions.Error)

	// blank ids never advance and always re-render the message
	for _, blank := range []string{"", "   "} {
		enterSubject(h, blank)
		rejected := h.surface.nextScreen(t)
		assert.Equal(t, domain.ScreenInstructions, rejected.Kind)
		assert.Equal(t, SubjectRequiredMessage, rejected.Error)
		assert.Empty(t, h.sc.Session.SubjectID)
	}

	enterSubject(h, "P07")
	answerAll(t, h)

	closing := h.surface.nextScreen(t)
	assert.Equal(t, domain.ScreenClosing, closing.Kind)
	assert.Equal(t, "Thank you for participating!", closing.Text)
	h.press(domain.ButtonFinish)

	require.NoError(t, <-done)

	assert.Equal(t, entities.SessionStatusCompleted, h.sc.Session.Status)
	assert.Equal(t, []string{"completed"}, h.surface.ended)
	require.Len(t, h.surface.manifests, 1)
	assert.Equal(t, []string{"tone.wav", "intro1.html", "w01.wav", "p01.wav", "w02.wav"}, h.surface.manifests[0].Assets)

	require.Len(t, submitter.results, 1)
	results := submitter.results[0]
	assert.Equal(t, "P07", results.Subject)
	require.NotNil(t, results.AudioLatency)
	assert.Equal(t, int64(120), *results.AudioLatency)
	require.Len(t, results.Records, 3)
	for _, rec := range results.Records {
		assert.Equal(t, "430", rec.RTYes.String())
		assert.Equal(t, "NA", rec.RTNo.String())
		assert.Equal(t, "P07", rec.Subject)
	}
	assert.Equal(t, 3, results.Summary.Responded)

	stored, err := h.repo.GetByID(context.Background(), h.sc.Session.ID)
	require.NoError(t, err)
	assert.Equal(t, entities.SessionStatusCompleted, stored.Status)
	assert.Equal(t, "P07", stored.SubjectID)
	assert.Len(t, stored.Records, 3)
	require.NotNil(t, stored.Calibration)
	assert.Equal(t, int64(120), stored.Calibration.LatencyMs)
}

func TestRunSessionSubmissionFailureIsNotFatal(t *testing.T) {
	h := newHarness(t, entities.DefaultVariant(), mockClock(1000))
	submitter := &fakeSubmitter{err: errors.New("disk full")}
	svc := newTestService(h, submitter)

	done := runSessionAsync(context.Background(), svc, h)
	passCalibration(t, h)
	passPreload(t, h)
	h.surface.nextScreen(t)
	enterSubject(h, "P08")
	answerAll(t, h)
	h.surface.nextScreen(t)
	h.press(domain.ButtonFinish)

	require.NoError(t, <-done)
	assert.Equal(t, "disk full", h.sc.Session.SubmissionError)

	stored, err := h.repo.GetByID(context.Background(), h.sc.Session.ID)
	require.NoError(t, err)
	assert.Equal(t, entities.SessionStatusCompleted, stored.Status)
	assert.Equal(t, "disk full", stored.SubmissionError)
}

func TestRunSessionDisconnectFailsSession(t *testing.T) {
	h := newHarness(t, entities.DefaultVariant(), mockClock(1000))
	svc := newTestService(h, &fakeSubmitter{})

	ctx, cancel := context.WithCancel(context.Background())
	done := runSessionAsync(ctx, svc, h)
	passCalibration(t, h)
	passPreload(t, h)
	h.surface.nextScreen(t)
	enterSubject(h, "P09")

	h.started(h.surface.nextPlay(t), 5000)
	h.surface.nextScreen(t)
	cancel()

	err := <-done
	assert.ErrorIs(t, err, context.Canceled)

	stored, gerr := h.repo.GetByID(context.Background(), h.sc.Session.ID)
	require.NoError(t, gerr)
	assert.Equal(t, entities.SessionStatusFailed, stored.Status)
	assert.Equal(t, string(PhaseTrials), stored.Phase)
	assert.Empty(t, stored.Records)
}

func TestRunSessionRejectsInactiveSession(t *testing.T) {
	h := newHarness(t, entities.DefaultVariant(), mockClock(0))
	h.sc.Session.Complete(h.sc.Clock.Now())
	svc := newTestService(h, &fakeSubmitter{})

	err := svc.RunSession(context.Background(), h.sc)
	assert.ErrorIs(t, err, entities.ErrSessionNotActive)
}
