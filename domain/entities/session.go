package entities

import (
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
)

// SessionStatus represents the status of a session
type SessionStatus string

const (
	SessionStatusActive    SessionStatus = "active"
	SessionStatusCompleted SessionStatus = "completed"
	SessionStatusFailed    SessionStatus = "failed"
	SessionStatusExpired   SessionStatus = "expired"
)

// DefaultSessionTTL is how long an idle session stays resumable
const DefaultSessionTTL = 2 * time.Hour

var (
	ErrBlankSubject       = errors.New("subject id is required")
	ErrSubjectAlreadySet  = errors.New("subject id is already set")
	ErrCalibrationSet     = errors.New("calibration has already been recorded")
	ErrSessionNotActive   = errors.New("session is not active")
	ErrInvalidSessionData = errors.New("invalid session")
)

// Session is one participant's run through the test
type Session struct {
	ID              string             `json:"id"`
	SubjectID       string             `json:"subject_id"`
	Variant         string             `json:"variant"`
	Status          SessionStatus      `json:"status"`
	Phase           string             `json:"phase"`
	Calibration     *CalibrationResult `json:"calibration,omitempty"`
	Records         []ResultRecord     `json:"records"`
	SubmissionError string             `json:"submission_error,omitempty"`
	CreatedAt       time.Time          `json:"created_at"`
	LastActiveAt    time.Time          `json:"last_active_at"`
	ExpiresAt       time.Time          `json:"expires_at"`
	CompletedAt     *time.Time         `json:"completed_at,omitempty"`
}

// NewSession creates a new active session for a variant, created at now
func NewSession(variant string, ttl time.Duration, now time.Time) *Session {
	if ttl <= 0 {
		ttl = DefaultSessionTTL
	}
	return &Session{
		ID:           uuid.NewString(),
		Variant:      variant,
		Status:       SessionStatusActive,
		Records:      make([]ResultRecord, 0),
		CreatedAt:    now,
		LastActiveAt: now,
		ExpiresAt:    now.Add(ttl),
	}
}

// ValidateSubjectID rejects empty and whitespace-only identifiers
func ValidateSubjectID(id string) error {
	if strings.TrimSpace(id) == "" {
		return ErrBlankSubject
	}
	return nil
}

// SetSubject stores the participant identifier exactly as entered. It can
// only be set once.
func (s *Session) SetSubject(id string, now time.Time) error {
	if err := ValidateSubjectID(id); err != nil {
		return err
	}
	if s.SubjectID != "" {
		return ErrSubjectAlreadySet
	}
	s.SubjectID = id
	s.Touch(now)
	return nil
}

// SetCalibration stores the latency measurement. It can only be set once.
func (s *Session) SetCalibration(c CalibrationResult, now time.Time) error {
	if s.Calibration != nil {
		return ErrCalibrationSet
	}
	s.Calibration = &c
	s.Touch(now)
	return nil
}

// AudioLatency returns the calibrated latency, if any
func (s *Session) AudioLatency() *int64 {
	if s.Calibration == nil {
		return nil
	}
	latency := s.Calibration.LatencyMs
	return &latency
}

// AppendRecord adds a trial result. Records are never modified once appended.
func (s *Session) AppendRecord(r ResultRecord, now time.Time) {
	s.Records = append(s.Records, r)
	s.Touch(now)
}

// RecordsCopy returns the records in completion order
func (s *Session) RecordsCopy() []ResultRecord {
	out := make([]ResultRecord, len(s.Records))
	copy(out, s.Records)
	return out
}

// EnterPhase notes the phase the participant is currently in
func (s *Session) EnterPhase(phase string, now time.Time) {
	s.Phase = phase
	s.Touch(now)
}

// Complete marks the session as finished
func (s *Session) Complete(now time.Time) {
	s.Status = SessionStatusCompleted
	s.CompletedAt = &now
	s.LastActiveAt = now
}

// Fail marks the session as aborted
func (s *Session) Fail(now time.Time) {
	s.Status = SessionStatusFailed
	s.CompletedAt = &now
	s.LastActiveAt = now
}

// Expire marks the session as expired
func (s *Session) Expire() {
	s.Status = SessionStatusExpired
}

// IsExpired checks if the session can no longer be run at now
func (s *Session) IsExpired(now time.Time) bool {
	return now.After(s.ExpiresAt) || s.Status != SessionStatusActive
}

// IsStale reports whether an active session has outlived its expiry or has
// been idle for longer than idle
func (s *Session) IsStale(now time.Time, idle time.Duration) bool {
	if s.Status != SessionStatusActive {
		return false
	}
	if now.After(s.ExpiresAt) {
		return true
	}
	return idle > 0 && now.Sub(s.LastActiveAt) > idle
}

// Touch records activity at now. It never moves LastActiveAt backwards.
func (s *Session) Touch(now time.Time) {
	if now.After(s.LastActiveAt) {
		s.LastActiveAt = now
	}
}

// Validate validates the session data
func (s *Session) Validate() error {
	if s.ID == "" {
		return errors.Join(ErrInvalidSessionData, errors.New("id is required"))
	}

	switch s.Status {
	case SessionStatusActive, SessionStatusCompleted, SessionStatusFailed, SessionStatusExpired:
	default:
		return errors.Join(ErrInvalidSessionData, errors.New("invalid session status"))
	}

	return nil
}
