package domain

import (
	"time"

	"github.com/satriahrh/lextale/domain/entities"
)

// EventType identifies a participant-originated event
type EventType string

const (
	EventButton          EventType = "button"
	EventSubject         EventType = "subject"
	EventPlaybackStarted EventType = "playback_started"
	EventPlaybackFailed  EventType = "playback_failed"
	EventReplay          EventType = "replay"
	EventSelect          EventType = "select"
	EventPreloadComplete EventType = "preload_complete"
)

// CalibrationTrial is the trial index carried by calibration playback
const CalibrationTrial = -1

// Button identifiers shared with the participant surface
const (
	ButtonStartCalibration = "start_calibration"
	ButtonContinue         = "continue"
	ButtonStartTest        = "start_test"
	ButtonFinish           = "finish"
)

// ParticipantEvent is an event delivered by the participant surface.
// At is stamped by the server when the event is received. ClientAt and
// ClientRequestedAt are the surface's own clock readings and stay zero when
// it did not report them.
type ParticipantEvent struct {
	Type       EventType       `json:"type"`
	Trial      int             `json:"trial"`
	PlaybackID string          `json:"playback_id,omitempty"`
	Button     string          `json:"button,omitempty"`
	Text       string          `json:"text,omitempty"`
	Option     entities.Option `json:"option,omitempty"`
	Reason     string          `json:"reason,omitempty"`
	At         time.Time       `json:"at"`

	ClientAt          time.Time `json:"-"`
	ClientRequestedAt time.Time `json:"-"`
}

// Stamp pairs the receipt time with the surface's reading of the same instant
func (e ParticipantEvent) Stamp() entities.Stamp {
	return entities.Stamp{Server: e.At, Client: e.ClientAt}
}

// ScreenKind tells the participant surface which template to render
type ScreenKind string

const (
	ScreenCalibration  ScreenKind = "calibration"
	ScreenPreload      ScreenKind = "preload"
	ScreenInstructions ScreenKind = "instructions"
	ScreenTrial        ScreenKind = "trial"
	ScreenMessage      ScreenKind = "message"
	ScreenClosing      ScreenKind = "closing"
)

// Button is a clickable affordance on a screen
type Button struct {
	ID    string `json:"id"`
	Label string `json:"label"`
}

// TextInput is a free-text field; its value is sent back with a subject event
type TextInput struct {
	Name        string `json:"name"`
	Placeholder string `json:"placeholder,omitempty"`
}

// Choice is one of the two forced-choice options. Position is the stable
// horizontal slot, 0 being leftmost.
type Choice struct {
	Option   entities.Option `json:"option"`
	Label    string          `json:"label"`
	Position int             `json:"position"`
	Color    string          `json:"color,omitempty"`
}

// Screen describes what the participant surface should display
type Screen struct {
	Kind     ScreenKind `json:"kind"`
	Phase    string     `json:"phase"`
	Text     string     `json:"text,omitempty"`
	Fragment string     `json:"fragment,omitempty"`
	Buttons  []Button   `json:"buttons,omitempty"`
	Input    *TextInput `json:"input,omitempty"`
	Choices  []Choice   `json:"choices,omitempty"`
	Replay   bool       `json:"replay,omitempty"`
	Error    string     `json:"error,omitempty"`
	Trial    *int       `json:"trial,omitempty"`
}

// PlaybackRequest asks the participant surface to play an asset
type PlaybackRequest struct {
	ID    string `json:"playback_id"`
	Asset string `json:"asset"`
	Trial int    `json:"trial"`
}

// PreloadManifest lists every asset the session will play or display
type PreloadManifest struct {
	Assets []string `json:"assets"`
}
