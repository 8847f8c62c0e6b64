package usecase

import (
	"context"
	"errors"
	"time"

	"github.com/benbjohnson/clock"
	"go.uber.org/zap"

	"github.com/satriahrh/lextale/domain"
	"github.com/satriahrh/lextale/domain/entities"
	"github.com/satriahrh/lextale/domain/repositories"
)

var (
	ErrEventTimeout    = errors.New("timed out waiting for participant event")
	ErrParticipantGone = errors.New("participant event stream closed")
)

// SessionContext is everything a phase needs about one participant.
// It is owned by the single goroutine running the session; phases and
// trials receive it explicitly instead of reading shared state.
type SessionContext struct {
	Session   *entities.Session
	Variant   entities.Variant
	Events    <-chan domain.ParticipantEvent
	Presenter repositories.Presenter
	Clock     clock.Clock
	Logger    *zap.Logger
}

// NewSessionContext wires a session to its participant surface
func NewSessionContext(session *entities.Session, variant entities.Variant, events <-chan domain.ParticipantEvent, presenter repositories.Presenter, clk clock.Clock, logger *zap.Logger) *SessionContext {
	if clk == nil {
		clk = clock.New()
	}
	return &SessionContext{
		Session:   session,
		Variant:   variant.WithDefaults(),
		Events:    events,
		Presenter: presenter,
		Clock:     clk,
		Logger:    logger.With(zap.String("sessionID", session.ID)),
	}
}

// deadline returns a channel that fires after d, or nil when d is zero
func (sc *SessionContext) deadline(d time.Duration) (<-chan time.Time, func()) {
	if d <= 0 {
		return nil, func() {}
	}
	timer := sc.Clock.Timer(d)
	return timer.C, func() { timer.Stop() }
}

// await blocks until an event accepted by match arrives. Events that do not
// match are dropped. A nil deadline waits without bound.
func (sc *SessionContext) await(ctx context.Context, deadline <-chan time.Time, match func(domain.ParticipantEvent) bool) (domain.ParticipantEvent, error) {
	for {
		select {
		case <-ctx.Done():
			return domain.ParticipantEvent{}, ctx.Err()
		case <-deadline:
			return domain.ParticipantEvent{}, ErrEventTimeout
		case ev, ok := <-sc.Events:
			if !ok {
				return domain.ParticipantEvent{}, ErrParticipantGone
			}
			if ev.At.IsZero() {
				ev.At = sc.Clock.Now()
			}
			if match(ev) {
				return ev, nil
			}
			sc.Logger.Debug("Ignoring participant event",
				zap.String("type", string(ev.Type)),
				zap.Int("trial", ev.Trial),
				zap.String("phase", sc.Session.Phase))
		}
	}
}

// awaitButton waits for a press of the given button
func (sc *SessionContext) awaitButton(ctx context.Context, button string) error {
	_, err := sc.await(ctx, nil, func(ev domain.ParticipantEvent) bool {
		return ev.Type == domain.EventButton && ev.Button == button
	})
	return err
}
