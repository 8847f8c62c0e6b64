package websocket

import (
	"context"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"go.uber.org/zap"

	"github.com/satriahrh/lextale/adapters"
	"github.com/satriahrh/lextale/domain/entities"
)

type connectedSet map[string]bool

func (c connectedSet) Connected(sessionID string) bool {
	return c[sessionID]
}

func TestSessionCleanup_RunCleanup(t *testing.T) {
	repo := adapters.NewMemorySessionRepository()
	ctx := context.Background()
	now := time.Now()

	mock := clock.NewMock()
	mock.Set(now)

	newSession := func(lastActive time.Duration, status entities.SessionStatus) *entities.Session {
		s := entities.NewSession("default", time.Hour, now)
		s.LastActiveAt = now.Add(-lastActive)
		s.Status = status
		if err := repo.Create(ctx, s); err != nil {
			t.Fatalf("Create failed: %v", err)
		}
		return s
	}

	fresh := newSession(time.Minute, entities.SessionStatusActive)
	idle := newSession(time.Hour, entities.SessionStatusActive)
	idleConnected := newSession(time.Hour, entities.SessionStatusActive)
	done := newSession(time.Hour, entities.SessionStatusCompleted)

	service := NewSessionCleanupService(repo, connectedSet{idleConnected.ID: true}, 30*time.Minute, time.Minute, mock, zap.NewNop())

	expired, err := service.RunCleanup(ctx)
	if err != nil {
		t.Fatalf("RunCleanup failed: %v", err)
	}
	if expired != 1 {
		t.Errorf("Expected 1 expired session, got %d", expired)
	}

	wantStatus := map[string]entities.SessionStatus{
		fresh.ID:         entities.SessionStatusActive,
		idle.ID:          entities.SessionStatusExpired,
		idleConnected.ID: entities.SessionStatusActive,
		done.ID:          entities.SessionStatusCompleted,
	}
	for id, want := range wantStatus {
		got, _ := repo.GetByID(ctx, id)
		if got.Status != want {
			t.Errorf("Session %s status = %s, want %s", id, got.Status, want)
		}
	}

	// a second pass finds nothing new
	if expired, _ := service.RunCleanup(ctx); expired != 0 {
		t.Errorf("Expected no further expiries, got %d", expired)
	}
}

func TestSessionCleanup_RunStopsOnCancel(t *testing.T) {
	repo := adapters.NewMemorySessionRepository()
	mock := clock.NewMock()

	stale := entities.NewSession("default", time.Hour, mock.Now())
	stale.ExpiresAt = mock.Now().Add(time.Minute)
	stale.LastActiveAt = mock.Now()
	repo.Create(context.Background(), stale)

	service := NewSessionCleanupService(repo, connectedSet{}, 0, time.Minute, mock, zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- service.Run(ctx) }()

	deadline := time.Now().Add(2 * time.Second)
	for {
		// advancing the mock clock fires the ticker once the loop is waiting on it
		mock.Add(time.Minute)
		got, _ := repo.GetByID(context.Background(), stale.ID)
		if got.Status == entities.SessionStatusExpired {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("stale session was never expired")
		}
		time.Sleep(10 * time.Millisecond)
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Run returned %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not stop")
	}
}
