package adapters

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/satriahrh/lextale/domain/entities"
	"github.com/satriahrh/lextale/domain/repositories"
)

// MemorySessionRepository is an in-memory implementation of SessionRepository.
// It is the default store when no MongoDB URI is configured.
type MemorySessionRepository struct {
	mu       sync.RWMutex
	sessions map[string]*entities.Session // id -> session mapping
}

// NewMemorySessionRepository creates a new in-memory session repository
func NewMemorySessionRepository() *MemorySessionRepository {
	return &MemorySessionRepository{
		sessions: make(map[string]*entities.Session),
	}
}

// Create implements SessionRepository interface
func (m *MemorySessionRepository) Create(ctx context.Context, session *entities.Session) error {
	if session == nil {
		return errors.New("session cannot be nil")
	}

	if err := session.Validate(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.sessions[session.ID]; exists {
		return errors.New("session with this ID already exists")
	}

	m.sessions[session.ID] = cloneSession(session)
	return nil
}

// GetByID implements SessionRepository interface
func (m *MemorySessionRepository) GetByID(ctx context.Context, id string) (*entities.Session, error) {
	if id == "" {
		return nil, errors.New("session ID cannot be empty")
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	session, exists := m.sessions[id]
	if !exists {
		return nil, repositories.ErrSessionNotFound
	}

	// Return a copy to prevent external modifications
	return cloneSession(session), nil
}

// Update implements SessionRepository interface. Records are owned by
// AppendRecord and are left untouched.
func (m *MemorySessionRepository) Update(ctx context.Context, session *entities.Session) error {
	if session == nil {
		return errors.New("session cannot be nil")
	}

	if err := session.Validate(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	existing, exists := m.sessions[session.ID]
	if !exists {
		return repositories.ErrSessionNotFound
	}

	updated := cloneSession(session)
	updated.Records = existing.Records
	updated.CreatedAt = existing.CreatedAt // Preserve original creation time
	m.sessions[session.ID] = updated
	return nil
}

// AppendRecord implements SessionRepository interface
func (m *MemorySessionRepository) AppendRecord(ctx context.Context, sessionID string, record entities.ResultRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	session, exists := m.sessions[sessionID]
	if !exists {
		return repositories.ErrSessionNotFound
	}

	session.Records = append(session.Records, cloneRecord(record))
	session.Touch(recordedAt(record))
	return nil
}

// ListByStatus implements SessionRepository interface. Sessions are returned
// oldest first.
func (m *MemorySessionRepository) ListByStatus(ctx context.Context, status entities.SessionStatus) ([]*entities.Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make([]*entities.Session, 0)
	for _, session := range m.sessions {
		if session.Status == status {
			result = append(result, cloneSession(session))
		}
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].CreatedAt.Before(result[j].CreatedAt)
	})
	return result, nil
}

func cloneSession(s *entities.Session) *entities.Session {
	c := *s
	c.Records = make([]entities.ResultRecord, len(s.Records))
	for i, r := range s.Records {
		c.Records[i] = cloneRecord(r)
	}
	if s.Calibration != nil {
		calibration := *s.Calibration
		c.Calibration = &calibration
	}
	if s.CompletedAt != nil {
		completedAt := *s.CompletedAt
		c.CompletedAt = &completedAt
	}
	return &c
}

func cloneRecord(r entities.ResultRecord) entities.ResultRecord {
	if r.ReplayCount != nil {
		count := *r.ReplayCount
		r.ReplayCount = &count
	}
	return r
}

// recordedAt is when the record was logged, or now for records without a time
func recordedAt(record entities.ResultRecord) time.Time {
	if record.CompletedAt.IsZero() {
		return time.Now()
	}
	return record.CompletedAt
}
