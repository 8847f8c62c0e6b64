package mongo

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/satriahrh/lextale/config"
	"github.com/satriahrh/lextale/domain/entities"
	"github.com/satriahrh/lextale/domain/repositories"
)

// TestSessionRepository_Integration tests the MongoDB session repository
// This test requires a running MongoDB instance (skipped if MONGODB_URI is not set)
func TestSessionRepository_Integration(t *testing.T) {
	mongoURI := os.Getenv("MONGODB_URI")
	if mongoURI == "" {
		t.Skip("Skipping MongoDB integration test - MONGODB_URI not set")
	}

	ctx := context.Background()
	logger := zap.NewNop()

	store, err := Connect(ctx, config.DatabaseConfig{MongoURI: mongoURI, Name: "lextale_test"}, logger)
	if err != nil {
		t.Fatalf("Failed to connect to MongoDB: %v", err)
	}
	defer store.Close(ctx)
	defer func() {
		// Clean up test database
		store.Database.Drop(ctx)
	}()

	repo := store.Sessions()
	if err := repo.EnsureIndexes(ctx); err != nil {
		t.Fatalf("Failed to create indexes: %v", err)
	}

	t.Run("CreateAndGetSession", func(t *testing.T) {
		session := entities.NewSession("default", time.Hour, time.Now())
		if err := repo.Create(ctx, session); err != nil {
			t.Fatalf("Failed to create session: %v", err)
		}

		retrieved, err := repo.GetByID(ctx, session.ID)
		if err != nil {
			t.Fatalf("Failed to get session: %v", err)
		}
		if retrieved.Variant != "default" {
			t.Errorf("Expected variant default, got %s", retrieved.Variant)
		}
		if retrieved.Status != entities.SessionStatusActive {
			t.Errorf("Expected status active, got %s", retrieved.Status)
		}
	})

	t.Run("AppendRecordsKeepsOrderAndNA", func(t *testing.T) {
		session := entities.NewSession("replay", time.Hour, time.Now())
		if err := repo.Create(ctx, session); err != nil {
			t.Fatalf("Failed to create session: %v", err)
		}

		zero := 0
		records := []entities.ResultRecord{
			{Trial: 1, Stimulus: "pengyou", Subject: "P07", RTYes: entities.Millis(430), RTNo: entities.NA(), ReplayCount: &zero},
			{Trial: 2, Stimulus: "shuangbo", Subject: "P07", RTYes: entities.NA(), RTNo: entities.NA(), ReplayCount: &zero},
		}
		for _, rec := range records {
			if err := repo.AppendRecord(ctx, session.ID, rec); err != nil {
				t.Fatalf("Failed to append record: %v", err)
			}
		}

		retrieved, err := repo.GetByID(ctx, session.ID)
		if err != nil {
			t.Fatalf("Failed to get session: %v", err)
		}
		if len(retrieved.Records) != 2 {
			t.Fatalf("Expected 2 records, got %d", len(retrieved.Records))
		}
		if retrieved.Records[0].RTYes.String() != "430" || retrieved.Records[0].RTNo.String() != "NA" {
			t.Errorf("Unexpected RTs on first record: %s/%s", retrieved.Records[0].RTYes, retrieved.Records[0].RTNo)
		}
		if retrieved.Records[1].RTYes.Valid() || retrieved.Records[1].RTNo.Valid() {
			t.Error("Second record should have both RTs NA")
		}
	})

	t.Run("UpdateDoesNotTouchRecords", func(t *testing.T) {
		session := entities.NewSession("default", time.Hour, time.Now())
		if err := repo.Create(ctx, session); err != nil {
			t.Fatalf("Failed to create session: %v", err)
		}
		rec := entities.ResultRecord{Trial: 1, RTYes: entities.Millis(300), RTNo: entities.NA()}
		if err := repo.AppendRecord(ctx, session.ID, rec); err != nil {
			t.Fatalf("Failed to append record: %v", err)
		}

		now := time.Now()
		_ = session.SetSubject("P01", now)
		request := entities.Stamp{Server: now, Client: now.Add(-time.Hour)}
		started := entities.Stamp{Server: now.Add(150 * time.Millisecond), Client: now.Add(-time.Hour + 90*time.Millisecond)}
		_ = session.SetCalibration(entities.NewCalibrationResult(request, started, 1), now)
		session.Complete(now)
		if err := repo.Update(ctx, session); err != nil {
			t.Fatalf("Failed to update session: %v", err)
		}

		retrieved, err := repo.GetByID(ctx, session.ID)
		if err != nil {
			t.Fatalf("Failed to get session: %v", err)
		}
		if len(retrieved.Records) != 1 {
			t.Errorf("Expected record to survive update, got %d records", len(retrieved.Records))
		}
		if retrieved.SubjectID != "P01" || retrieved.Calibration == nil {
			t.Fatalf("Update not applied: %+v", retrieved)
		}
		if retrieved.Calibration.LatencyMs != 90 || retrieved.Calibration.Clock != entities.ClockClient {
			t.Errorf("Unexpected calibration: %+v", retrieved.Calibration)
		}

		completed, err := repo.ListByStatus(ctx, entities.SessionStatusCompleted)
		if err != nil {
			t.Fatalf("Failed to list sessions: %v", err)
		}
		found := false
		for _, s := range completed {
			if s.ID == session.ID {
				found = true
			}
		}
		if !found {
			t.Error("Completed session not listed")
		}
	})

	t.Run("MissingSession", func(t *testing.T) {
		_, err := repo.GetByID(ctx, "does-not-exist")
		if !errors.Is(err, repositories.ErrSessionNotFound) {
			t.Errorf("Expected ErrSessionNotFound, got %v", err)
		}
	})
}

func TestRecordDocumentNA(t *testing.T) {
	count := 2
	rec := entities.ResultRecord{
		Trial:       3,
		Stimulus:    "xuexiao",
		Type:        entities.StimulusTypeWord,
		RTYes:       entities.NA(),
		RTNo:        entities.Millis(812),
		ReplayCount: &count,
		Selected:    entities.OptionNo,
		Outcome:     entities.TrialOutcomeResponded,
	}

	doc := toRecordDocument(rec)
	if doc.RTYes != nil {
		t.Error("NA should be stored as null")
	}
	if doc.RTNo == nil || *doc.RTNo != 812 {
		t.Errorf("Expected RTNo 812, got %v", doc.RTNo)
	}

	back := fromRecordDocument(doc)
	if back.RTYes.String() != "NA" || back.RTNo.String() != "812" {
		t.Errorf("RTs changed: %s/%s", back.RTYes, back.RTNo)
	}
	if back.ReplayCount == nil || *back.ReplayCount != 2 {
		t.Errorf("ReplayCount changed: %v", back.ReplayCount)
	}
}
