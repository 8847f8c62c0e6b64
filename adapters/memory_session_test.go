package adapters

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/satriahrh/lextale/domain/entities"
	"github.com/satriahrh/lextale/domain/repositories"
)

func TestMemorySessionRepository_CreateAndGet(t *testing.T) {
	repo := NewMemorySessionRepository()
	ctx := context.Background()

	session := entities.NewSession("default", time.Hour, time.Now())
	if err := repo.Create(ctx, session); err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	if err := repo.Create(ctx, session); err == nil {
		t.Error("Expected duplicate create to fail")
	}

	got, err := repo.GetByID(ctx, session.ID)
	if err != nil {
		t.Fatalf("GetByID failed: %v", err)
	}
	if got.ID != session.ID || got.Variant != "default" {
		t.Errorf("Unexpected session: %+v", got)
	}

	// modifying the returned copy must not change the stored session
	got.SubjectID = "changed"
	again, _ := repo.GetByID(ctx, session.ID)
	if again.SubjectID != "" {
		t.Error("GetByID returned shared storage")
	}

	if _, err := repo.GetByID(ctx, "missing"); !errors.Is(err, repositories.ErrSessionNotFound) {
		t.Errorf("Expected ErrSessionNotFound, got %v", err)
	}
}

func TestMemorySessionRepository_AppendRecord(t *testing.T) {
	repo := NewMemorySessionRepository()
	ctx := context.Background()

	session := entities.NewSession("replay", time.Hour, time.Now())
	_ = repo.Create(ctx, session)

	count := 1
	for i := 1; i <= 3; i++ {
		rec := entities.ResultRecord{Trial: i, RTYes: entities.Millis(int64(i * 100)), RTNo: entities.NA(), ReplayCount: &count}
		if err := repo.AppendRecord(ctx, session.ID, rec); err != nil {
			t.Fatalf("AppendRecord failed: %v", err)
		}
	}
	count = 99

	got, _ := repo.GetByID(ctx, session.ID)
	if len(got.Records) != 3 {
		t.Fatalf("Expected 3 records, got %d", len(got.Records))
	}
	for i, rec := range got.Records {
		if rec.Trial != i+1 {
			t.Errorf("Record %d has trial %d", i, rec.Trial)
		}
		if *rec.ReplayCount != 1 {
			t.Errorf("Stored ReplayCount changed to %d", *rec.ReplayCount)
		}
	}

	if err := repo.AppendRecord(ctx, "missing", entities.ResultRecord{}); !errors.Is(err, repositories.ErrSessionNotFound) {
		t.Errorf("Expected ErrSessionNotFound, got %v", err)
	}
}

func TestMemorySessionRepository_UpdateKeepsRecords(t *testing.T) {
	repo := NewMemorySessionRepository()
	ctx := context.Background()

	session := entities.NewSession("default", time.Hour, time.Now())
	_ = repo.Create(ctx, session)
	_ = repo.AppendRecord(ctx, session.ID, entities.ResultRecord{Trial: 1})

	// the caller's copy has no records; Update must not wipe the stored ones
	if err := session.SetSubject("P07", time.Now()); err != nil {
		t.Fatalf("SetSubject failed: %v", err)
	}
	session.Complete(time.Now())
	if err := repo.Update(ctx, session); err != nil {
		t.Fatalf("Update failed: %v", err)
	}

	got, _ := repo.GetByID(ctx, session.ID)
	if got.SubjectID != "P07" || got.Status != entities.SessionStatusCompleted {
		t.Errorf("Update not applied: %+v", got)
	}
	if len(got.Records) != 1 {
		t.Errorf("Expected 1 record after update, got %d", len(got.Records))
	}

	unknown := entities.NewSession("default", time.Hour, time.Now())
	if err := repo.Update(ctx, unknown); !errors.Is(err, repositories.ErrSessionNotFound) {
		t.Errorf("Expected ErrSessionNotFound, got %v", err)
	}
}

func TestMemorySessionRepository_ListByStatus(t *testing.T) {
	repo := NewMemorySessionRepository()
	ctx := context.Background()

	var ids []string
	for i := 0; i < 3; i++ {
		s := entities.NewSession("default", time.Hour, time.Now())
		s.CreatedAt = time.Now().Add(time.Duration(i) * time.Minute)
		if i == 1 {
			s.Complete(time.Now())
		}
		_ = repo.Create(ctx, s)
		ids = append(ids, s.ID)
	}

	active, err := repo.ListByStatus(ctx, entities.SessionStatusActive)
	if err != nil {
		t.Fatalf("ListByStatus failed: %v", err)
	}
	if len(active) != 2 {
		t.Fatalf("Expected 2 active sessions, got %d", len(active))
	}
	if active[0].ID != ids[0] || active[1].ID != ids[2] {
		t.Error("Sessions not returned oldest first")
	}

	completed, _ := repo.ListByStatus(ctx, entities.SessionStatusCompleted)
	if len(completed) != 1 || completed[0].ID != ids[1] {
		t.Errorf("Unexpected completed sessions: %v", completed)
	}
}

func TestMemorySessionRepository_AppendRecordTouchesSession(t *testing.T) {
	repo := NewMemorySessionRepository()
	ctx := context.Background()

	created := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	session := entities.NewSession("default", time.Hour, created)
	_ = repo.Create(ctx, session)

	logged := created.Add(5 * time.Minute)
	_ = repo.AppendRecord(ctx, session.ID, entities.ResultRecord{Trial: 1, CompletedAt: logged})
	got, _ := repo.GetByID(ctx, session.ID)
	if !got.LastActiveAt.Equal(logged) {
		t.Errorf("LastActiveAt = %v, want %v", got.LastActiveAt, logged)
	}

	// an older record never moves activity backwards
	_ = repo.AppendRecord(ctx, session.ID, entities.ResultRecord{Trial: 2, CompletedAt: created.Add(time.Minute)})
	got, _ = repo.GetByID(ctx, session.ID)
	if !got.LastActiveAt.Equal(logged) {
		t.Errorf("LastActiveAt moved back to %v", got.LastActiveAt)
	}
}
