package usecase

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/satriahrh/lextale/domain/entities"
	"github.com/satriahrh/lextale/domain/repositories"
	"github.com/satriahrh/lextale/internal/metrics"
)

// Recorder accumulates one result record per trial. Records are appended in
// completion order and never changed afterwards.
type Recorder struct {
	sessions repositories.SessionRepository
	labels   entities.TypeLabels
}

// NewRecorder creates a new result recorder
func NewRecorder(sessions repositories.SessionRepository, labels entities.TypeLabels) *Recorder {
	return &Recorder{
		sessions: sessions,
		labels:   labels,
	}
}

// Record appends rec to the session and persists it
func (r *Recorder) Record(ctx context.Context, sc *SessionContext, rec entities.ResultRecord) error {
	sc.Session.AppendRecord(rec, sc.Clock.Now())

	metrics.TrialsTotal.WithLabelValues(string(rec.Outcome)).Inc()
	if ms, ok := rec.RTYes.Milliseconds(); ok {
		metrics.ReactionTime.WithLabelValues(string(entities.OptionYes)).Observe(float64(ms) / 1000)
	}
	if ms, ok := rec.RTNo.Milliseconds(); ok {
		metrics.ReactionTime.WithLabelValues(string(entities.OptionNo)).Observe(float64(ms) / 1000)
	}

	sc.Logger.Info("Trial recorded",
		zap.Int("trial", rec.Trial),
		zap.String("stimulus", rec.Stimulus),
		zap.String("rtYes", rec.RTYes.String()),
		zap.String("rtNo", rec.RTNo.String()),
		zap.String("outcome", string(rec.Outcome)))

	if err := r.sessions.AppendRecord(ctx, sc.Session.ID, rec); err != nil {
		return fmt.Errorf("persist trial %d: %w", rec.Trial, err)
	}
	return nil
}

// Results returns the session's ordered records together with its summary
func (r *Recorder) Results(session *entities.Session, replayable bool) entities.ResultSet {
	records := session.RecordsCopy()
	return entities.ResultSet{
		SessionID:    session.ID,
		Subject:      session.SubjectID,
		Variant:      session.Variant,
		Replayable:   replayable,
		AudioLatency: session.AudioLatency(),
		Records:      records,
		Summary:      Score(records, r.labels),
	}
}
