package mongo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"

	"github.com/satriahrh/lextale/domain/entities"
	"github.com/satriahrh/lextale/domain/repositories"
)

// sessionDocument is the stored shape of a session
type sessionDocument struct {
	ID              string               `bson:"_id"`
	SubjectID       string               `bson:"subject_id"`
	Variant         string               `bson:"variant"`
	Status          string               `bson:"status"`
	Phase           string               `bson:"phase"`
	Calibration     *calibrationDocument `bson:"calibration,omitempty"`
	Records         []recordDocument     `bson:"records"`
	SubmissionError string               `bson:"submission_error,omitempty"`
	CreatedAt       time.Time            `bson:"created_at"`
	LastActiveAt    time.Time            `bson:"last_active_at"`
	ExpiresAt       time.Time            `bson:"expires_at"`
	CompletedAt     *time.Time           `bson:"completed_at,omitempty"`
}

type calibrationDocument struct {
	RequestTime    time.Time `bson:"request_time"`
	AudioStartTime time.Time `bson:"audio_start_time"`
	LatencyMs      int64     `bson:"audio_latency_ms"`
	Clock          string    `bson:"clock,omitempty"`
	Attempts       int       `bson:"attempts"`
}

// recordDocument stores NA reaction times as null
type recordDocument struct {
	Trial       int       `bson:"trial"`
	Stimulus    string    `bson:"stimulus"`
	Type        string    `bson:"type"`
	Block       string    `bson:"block"`
	Order       int       `bson:"order"`
	Item        string    `bson:"item"`
	AudioFile   string    `bson:"audio_file"`
	Subject     string    `bson:"subject"`
	RTYes       *int64    `bson:"rt_yes"`
	RTNo        *int64    `bson:"rt_no"`
	ReplayCount *int      `bson:"replay_count,omitempty"`
	Selected    string    `bson:"selected"`
	Outcome     string    `bson:"outcome"`
	CompletedAt time.Time `bson:"completed_at"`
}

// SessionRepository implements repositories.SessionRepository using MongoDB
type SessionRepository struct {
	collection *mongo.Collection
	logger     *zap.Logger
}

// NewSessionRepository creates a new MongoDB session repository
func NewSessionRepository(db *mongo.Database, logger *zap.Logger) *SessionRepository {
	return &SessionRepository{
		collection: db.Collection("sessions"),
		logger:     logger,
	}
}

// EnsureIndexes creates the indexes used by status listing and cleanup
func (r *SessionRepository) EnsureIndexes(ctx context.Context) error {
	statusCreatedIndex := mongo.IndexModel{
		Keys: bson.D{
			{Key: "status", Value: 1},
			{Key: "created_at", Value: 1},
		},
	}

	subjectIndex := mongo.IndexModel{
		Keys: bson.D{{Key: "subject_id", Value: 1}},
	}

	_, err := r.collection.Indexes().CreateMany(ctx, []mongo.IndexModel{
		statusCreatedIndex,
		subjectIndex,
	})
	if err != nil {
		return fmt.Errorf("failed to create session indexes: %w", err)
	}
	r.logger.Info("Session indexes created successfully")
	return nil
}

// Create implements repositories.SessionRepository
func (r *SessionRepository) Create(ctx context.Context, session *entities.Session) error {
	if session == nil {
		return errors.New("session cannot be nil")
	}
	if err := session.Validate(); err != nil {
		return err
	}

	if _, err := r.collection.InsertOne(ctx, toDocument(session)); err != nil {
		return fmt.Errorf("failed to create session: %w", err)
	}
	return nil
}

// GetByID implements repositories.SessionRepository
func (r *SessionRepository) GetByID(ctx context.Context, id string) (*entities.Session, error) {
	if id == "" {
		return nil, errors.New("session ID cannot be empty")
	}

	var doc sessionDocument
	err := r.collection.FindOne(ctx, bson.M{"_id": id}).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, repositories.ErrSessionNotFound
		}
		return nil, fmt.Errorf("failed to get session %s: %w", id, err)
	}

	return fromDocument(doc)
}

// Update implements repositories.SessionRepository. Records are only ever
// appended through AppendRecord, so they are not part of the update.
func (r *SessionRepository) Update(ctx context.Context, session *entities.Session) error {
	if session == nil {
		return errors.New("session cannot be nil")
	}
	if err := session.Validate(); err != nil {
		return err
	}

	doc := toDocument(session)
	set := bson.M{
		"subject_id":       doc.SubjectID,
		"variant":          doc.Variant,
		"status":           doc.Status,
		"phase":            doc.Phase,
		"submission_error": doc.SubmissionError,
		"last_active_at":   doc.LastActiveAt,
		"expires_at":       doc.ExpiresAt,
	}
	if doc.Calibration != nil {
		set["calibration"] = doc.Calibration
	}
	if doc.CompletedAt != nil {
		set["completed_at"] = doc.CompletedAt
	}

	result, err := r.collection.UpdateOne(ctx, bson.M{"_id": session.ID}, bson.M{"$set": set})
	if err != nil {
		return fmt.Errorf("failed to update session: %w", err)
	}
	if result.MatchedCount == 0 {
		return repositories.ErrSessionNotFound
	}
	return nil
}

// AppendRecord implements repositories.SessionRepository
func (r *SessionRepository) AppendRecord(ctx context.Context, sessionID string, record entities.ResultRecord) error {
	at := record.CompletedAt
	if at.IsZero() {
		at = time.Now()
	}
	update := bson.M{
		"$push": bson.M{"records": toRecordDocument(record)},
		"$max":  bson.M{"last_active_at": at},
	}

	result, err := r.collection.UpdateOne(ctx, bson.M{"_id": sessionID}, update)
	if err != nil {
		return fmt.Errorf("failed to append record: %w", err)
	}
	if result.MatchedCount == 0 {
		return repositories.ErrSessionNotFound
	}
	return nil
}

// ListByStatus implements repositories.SessionRepository
func (r *SessionRepository) ListByStatus(ctx context.Context, status entities.SessionStatus) ([]*entities.Session, error) {
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: 1}})
	cursor, err := r.collection.Find(ctx, bson.M{"status": string(status)}, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	defer cursor.Close(ctx)

	sessions := make([]*entities.Session, 0)
	for cursor.Next(ctx) {
		var doc sessionDocument
		if err := cursor.Decode(&doc); err != nil {
			return nil, fmt.Errorf("failed to decode session: %w", err)
		}
		session, err := fromDocument(doc)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, session)
	}
	if err := cursor.Err(); err != nil {
		return nil, fmt.Errorf("cursor error: %w", err)
	}
	return sessions, nil
}

func toDocument(s *entities.Session) sessionDocument {
	doc := sessionDocument{
		ID:              s.ID,
		SubjectID:       s.SubjectID,
		Variant:         s.Variant,
		Status:          string(s.Status),
		Phase:           s.Phase,
		Records:         make([]recordDocument, 0, len(s.Records)),
		SubmissionError: s.SubmissionError,
		CreatedAt:       s.CreatedAt,
		LastActiveAt:    s.LastActiveAt,
		ExpiresAt:       s.ExpiresAt,
		CompletedAt:     s.CompletedAt,
	}
	if c := s.Calibration; c != nil {
		doc.Calibration = &calibrationDocument{
			RequestTime:    c.RequestTime,
			AudioStartTime: c.AudioStartTime,
			LatencyMs:      c.LatencyMs,
			Clock:          c.Clock,
			Attempts:       c.Attempts,
		}
	}
	for _, rec := range s.Records {
		doc.Records = append(doc.Records, toRecordDocument(rec))
	}
	return doc
}

func fromDocument(doc sessionDocument) (*entities.Session, error) {
	s := &entities.Session{
		ID:              doc.ID,
		SubjectID:       doc.SubjectID,
		Variant:         doc.Variant,
		Status:          entities.SessionStatus(doc.Status),
		Phase:           doc.Phase,
		Records:         make([]entities.ResultRecord, 0, len(doc.Records)),
		SubmissionError: doc.SubmissionError,
		CreatedAt:       doc.CreatedAt,
		LastActiveAt:    doc.LastActiveAt,
		ExpiresAt:       doc.ExpiresAt,
		CompletedAt:     doc.CompletedAt,
	}
	if c := doc.Calibration; c != nil {
		s.Calibration = &entities.CalibrationResult{
			RequestTime:    c.RequestTime,
			AudioStartTime: c.AudioStartTime,
			LatencyMs:      c.LatencyMs,
			Clock:          c.Clock,
			Attempts:       c.Attempts,
		}
	}
	for _, rec := range doc.Records {
		s.Records = append(s.Records, fromRecordDocument(rec))
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return s, nil
}

func toRecordDocument(r entities.ResultRecord) recordDocument {
	doc := recordDocument{
		Trial:       r.Trial,
		Stimulus:    r.Stimulus,
		Type:        string(r.Type),
		Block:       r.Block,
		Order:       r.Order,
		Item:        r.Item,
		AudioFile:   r.AudioFile,
		Subject:     r.Subject,
		ReplayCount: r.ReplayCount,
		Selected:    string(r.Selected),
		Outcome:     string(r.Outcome),
		CompletedAt: r.CompletedAt,
	}
	if ms, ok := r.RTYes.Milliseconds(); ok {
		doc.RTYes = &ms
	}
	if ms, ok := r.RTNo.Milliseconds(); ok {
		doc.RTNo = &ms
	}
	return doc
}

func fromRecordDocument(doc recordDocument) entities.ResultRecord {
	rec := entities.ResultRecord{
		Trial:       doc.Trial,
		Stimulus:    doc.Stimulus,
		Type:        entities.StimulusType(doc.Type),
		Block:       doc.Block,
		Order:       doc.Order,
		Item:        doc.Item,
		AudioFile:   doc.AudioFile,
		Subject:     doc.Subject,
		RTYes:       entities.NA(),
		RTNo:        entities.NA(),
		ReplayCount: doc.ReplayCount,
		Selected:    entities.Option(doc.Selected),
		Outcome:     entities.TrialOutcome(doc.Outcome),
		CompletedAt: doc.CompletedAt,
	}
	if doc.RTYes != nil {
		rec.RTYes = entities.Millis(*doc.RTYes)
	}
	if doc.RTNo != nil {
		rec.RTNo = entities.Millis(*doc.RTNo)
	}
	return rec
}
