package websocket

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/satriahrh/lextale/domain"
	"github.com/satriahrh/lextale/domain/entities"
)

// MessageType defines the type of WebSocket message
type MessageType string

// Inbound message types mirror domain.EventType; ping is handled by the client itself
const (
	MessageTypeButton          = MessageType(domain.EventButton)
	MessageTypeSubject         = MessageType(domain.EventSubject)
	MessageTypePlaybackStarted = MessageType(domain.EventPlaybackStarted)
	MessageTypePlaybackFailed  = MessageType(domain.EventPlaybackFailed)
	MessageTypeReplay          = MessageType(domain.EventReplay)
	MessageTypeSelect          = MessageType(domain.EventSelect)
	MessageTypePreloadComplete = MessageType(domain.EventPreloadComplete)
	MessageTypePing            MessageType = "ping"
)

// Outbound message types
const (
	MessageTypeScreen     MessageType = "screen"
	MessageTypePlay       MessageType = "play"
	MessageTypePreload    MessageType = "preload"
	MessageTypeSessionEnd MessageType = "session_end"
	MessageTypePong       MessageType = "pong"
	MessageTypeError      MessageType = "error"
)

// BaseMessage defines the common structure for all WebSocket messages
type BaseMessage struct {
	Type      MessageType `json:"type"`
	Timestamp string      `json:"timestamp,omitempty"`
	MessageID string      `json:"message_id,omitempty"`
}

// InboundMessage is any message sent by the participant's browser
type InboundMessage struct {
	BaseMessage
	Trial      int             `json:"trial"`
	PlaybackID string          `json:"playback_id,omitempty"`
	Button     string          `json:"button,omitempty"`
	Text       string          `json:"text,omitempty"`
	Option     entities.Option `json:"option,omitempty"`
	Reason     string          `json:"reason,omitempty"`
	Data       string          `json:"data,omitempty"`

	// Readings of the browser's monotonic clock in milliseconds
	// (performance.now). requested_at is when the play command arrived,
	// started_at when audio output began and selected_at when an option
	// was clicked.
	RequestedAt *float64 `json:"requested_at,omitempty"`
	StartedAt   *float64 `json:"started_at,omitempty"`
	SelectedAt  *float64 `json:"selected_at,omitempty"`
}

// clientEpoch anchors browser clock readings; only differences between
// readings of one page are meaningful.
var clientEpoch = time.Unix(0, 0).UTC()

func clientTime(ms *float64) time.Time {
	if ms == nil {
		return time.Time{}
	}
	return clientEpoch.Add(time.Duration(*ms * float64(time.Millisecond)))
}

// Event converts the message into a participant event received at at.
// The browser's clock readings are carried alongside the receipt time.
func (m *InboundMessage) Event(at time.Time) domain.ParticipantEvent {
	ev := domain.ParticipantEvent{
		Type:       domain.EventType(m.Type),
		Trial:      m.Trial,
		PlaybackID: m.PlaybackID,
		Button:     m.Button,
		Text:       m.Text,
		Option:     m.Option,
		Reason:     m.Reason,
		At:         at,
	}
	switch m.Type {
	case MessageTypePlaybackStarted:
		ev.ClientAt = clientTime(m.StartedAt)
		ev.ClientRequestedAt = clientTime(m.RequestedAt)
	case MessageTypeSelect:
		ev.ClientAt = clientTime(m.SelectedAt)
	}
	return ev
}

// ScreenMessage asks the browser to render a screen
type ScreenMessage struct {
	BaseMessage
	Screen domain.Screen `json:"screen"`
}

// PlayMessage asks the browser to play an asset and report when it starts
type PlayMessage struct {
	BaseMessage
	Playback domain.PlaybackRequest `json:"playback"`
}

// PreloadMessage lists the assets the browser should fetch up front
type PreloadMessage struct {
	BaseMessage
	Manifest domain.PreloadManifest `json:"manifest"`
}

// SessionEndMessage tells the browser the session is over
type SessionEndMessage struct {
	BaseMessage
	Status string `json:"status"`
}

// PongMessage represents a pong response
type PongMessage struct {
	BaseMessage
	Data string `json:"data,omitempty"`
}

// ErrorMessage represents an error response
type ErrorMessage struct {
	BaseMessage
	Code    string `json:"error_code"`
	Message string `json:"message"`
	Details string `json:"details,omitempty"`
}

// MessageValidator provides validation for WebSocket messages
type MessageValidator struct{}

// NewMessageValidator creates a new message validator
func NewMessageValidator() *MessageValidator {
	return &MessageValidator{}
}

// ValidateMessage validates an incoming message
func (v *MessageValidator) ValidateMessage(messageBytes []byte) (*InboundMessage, error) {
	var msg InboundMessage
	if err := json.Unmarshal(messageBytes, &msg); err != nil {
		return nil, fmt.Errorf("invalid JSON format: %w", err)
	}

	for name, ms := range map[string]*float64{
		"requested_at": msg.RequestedAt,
		"started_at":   msg.StartedAt,
		"selected_at":  msg.SelectedAt,
	} {
		if ms != nil && *ms < 0 {
			return nil, fmt.Errorf("%s must not be negative", name)
		}
	}

	switch msg.Type {
	case MessageTypePing, MessageTypeSubject, MessageTypePreloadComplete:
		// subject text is checked by the instructions gate, not here
	case MessageTypeButton:
		if msg.Button == "" {
			return nil, fmt.Errorf("button is required")
		}
	case MessageTypePlaybackStarted, MessageTypePlaybackFailed:
		if msg.PlaybackID == "" {
			return nil, fmt.Errorf("playback_id is required")
		}
	case MessageTypeReplay:
		if msg.Trial < 1 {
			return nil, fmt.Errorf("trial must be positive")
		}
	case MessageTypeSelect:
		if msg.Trial < 1 {
			return nil, fmt.Errorf("trial must be positive")
		}
		if !msg.Option.Valid() {
			return nil, fmt.Errorf("option must be one of: yes, no")
		}
	default:
		return nil, fmt.Errorf("unsupported message type: %s", msg.Type)
	}

	return &msg, nil
}

func newBase(t MessageType) BaseMessage {
	return BaseMessage{
		Type:      t,
		Timestamp: time.Now().Format(time.RFC3339Nano),
	}
}

// CreateErrorMessage creates a standardized error message
func CreateErrorMessage(code, message, details string) *ErrorMessage {
	return &ErrorMessage{
		BaseMessage: newBase(MessageTypeError),
		Code:        code,
		Message:     message,
		Details:     details,
	}
}

// CreatePongMessage creates a pong response message
func CreatePongMessage(data string) *PongMessage {
	return &PongMessage{
		BaseMessage: newBase(MessageTypePong),
		Data:        data,
	}
}
