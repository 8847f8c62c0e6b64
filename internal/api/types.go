package api

import (
	"time"

	"github.com/satriahrh/lextale/domain/entities"
)

// CreateSessionRequest represents the request payload for starting a session
type CreateSessionRequest struct {
	Variant string `json:"variant"`
}

// CreateSessionResponse carries the participant token for the new session
type CreateSessionResponse struct {
	SessionID string    `json:"session_id"`
	Variant   string    `json:"variant"`
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

// SessionResponse describes a session's progress
type SessionResponse struct {
	SessionID       string                      `json:"session_id"`
	Variant         string                      `json:"variant"`
	Status          entities.SessionStatus      `json:"status"`
	Phase           string                      `json:"phase"`
	Subject         string                      `json:"subject,omitempty"`
	Calibration     *entities.CalibrationResult `json:"calibration,omitempty"`
	Trials          int                         `json:"trials"`
	SubmissionError string                      `json:"submission_error,omitempty"`
	CreatedAt       time.Time                   `json:"created_at"`
	ExpiresAt       time.Time                   `json:"expires_at"`
}

// ErrorResponse represents an error response
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}
