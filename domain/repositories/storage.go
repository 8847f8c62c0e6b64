package repositories

import (
	"context"
	"errors"

	"github.com/satriahrh/lextale/domain/entities"
)

var ErrSessionNotFound = errors.New("session not found")

// SessionRepository defines data access methods for participant sessions
type SessionRepository interface {
	Create(ctx context.Context, session *entities.Session) error
	GetByID(ctx context.Context, id string) (*entities.Session, error)
	Update(ctx context.Context, session *entities.Session) error
	// AppendRecord adds one trial record without rewriting earlier ones
	AppendRecord(ctx context.Context, sessionID string, record entities.ResultRecord) error
	ListByStatus(ctx context.Context, status entities.SessionStatus) ([]*entities.Session, error)
}

// StimulusSource loads the stimulus table, one row per trial
type StimulusSource interface {
	Load(ctx context.Context) ([]entities.StimulusRow, error)
}

// ResultSubmitter hands a finished session's results to their destination
type ResultSubmitter interface {
	Submit(ctx context.Context, results entities.ResultSet) error
}
