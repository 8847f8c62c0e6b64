// Package participant drives a session over the public API the way a
// browser would. It is used for smoke tests against a running server.
package participant

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/satriahrh/lextale/domain"
	"github.com/satriahrh/lextale/domain/entities"
)

var ErrUnexpectedStatus = errors.New("unexpected response status")

// Options configures a scripted participant
type Options struct {
	BaseURL string
	Variant string
	Subject string

	// Answer picks the option for a trial; nil always answers yes.
	Answer func(trial int) entities.Option

	// ReplaysPerTrial is how many times to press replay when offered.
	ReplaysPerTrial int

	// FailPlayback reports playback failure instead of start for these trials.
	FailPlayback map[int]bool
}

// Result summarizes what the bot went through
type Result struct {
	SessionID string
	Token     string
	Status    string
	Trials    int
	Screens   int
}

type createSessionResponse struct {
	SessionID string `json:"session_id"`
	Token     string `json:"token"`
}

// inbound is the union of every message the server sends
type inbound struct {
	Type     string                 `json:"type"`
	Screen   domain.Screen          `json:"screen"`
	Playback domain.PlaybackRequest `json:"playback"`
	Status   string                 `json:"status"`
	Message  string                 `json:"message"`
	Details  string                 `json:"details"`
}

// outbound is one participant event as a browser sends it. Clock readings
// are milliseconds since the page loaded.
type outbound struct {
	Type        domain.EventType `json:"type"`
	Trial       int              `json:"trial"`
	PlaybackID  string           `json:"playback_id,omitempty"`
	Button      string           `json:"button,omitempty"`
	Text        string           `json:"text,omitempty"`
	Option      entities.Option  `json:"option,omitempty"`
	Reason      string           `json:"reason,omitempty"`
	RequestedAt *float64         `json:"requested_at,omitempty"`
	StartedAt   *float64         `json:"started_at,omitempty"`
	SelectedAt  *float64         `json:"selected_at,omitempty"`
}

// Bot is a scripted participant
type Bot struct {
	opts   Options
	client *http.Client
	logger *zap.Logger

	// loaded plays the part of the page load for clock readings
	loaded time.Time
}

// NewBot creates a scripted participant
func NewBot(opts Options, logger *zap.Logger) *Bot {
	if opts.Answer == nil {
		opts.Answer = func(int) entities.Option { return entities.OptionYes }
	}
	if opts.Subject == "" {
		opts.Subject = "bot"
	}
	return &Bot{
		opts:   opts,
		client: http.DefaultClient,
		logger: logger,
	}
}

// Run creates a session and plays it through to the end
func (b *Bot) Run(ctx context.Context) (Result, error) {
	created, err := b.createSession(ctx)
	if err != nil {
		return Result{}, err
	}
	result := Result{SessionID: created.SessionID, Token: created.Token}

	wsURL, err := url.Parse(b.opts.BaseURL)
	if err != nil {
		return result, err
	}
	wsURL.Scheme = strings.Replace(wsURL.Scheme, "http", "ws", 1)
	wsURL.Path = "/ws"
	q := wsURL.Query()
	q.Set("token", created.Token)
	wsURL.RawQuery = q.Encode()

	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, wsURL.String(), nil)
	if err != nil {
		if resp != nil {
			return result, fmt.Errorf("websocket connection failed with status %d: %w", resp.StatusCode, err)
		}
		return result, fmt.Errorf("websocket connection failed: %w", err)
	}
	defer conn.Close()

	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()

	b.loaded = time.Now()
	b.logger.Info("Participant connected", zap.String("sessionID", created.SessionID))

	for {
		var msg inbound
		if err := conn.ReadJSON(&msg); err != nil {
			if ctx.Err() != nil {
				return result, ctx.Err()
			}
			return result, fmt.Errorf("read: %w", err)
		}

		switch msg.Type {
		case "screen":
			result.Screens++
			if err := b.onScreen(conn, msg.Screen, &result); err != nil {
				return result, err
			}

		case "play":
			requested := b.reading()
			ev := outbound{Type: domain.EventPlaybackStarted, Trial: msg.Playback.Trial, PlaybackID: msg.Playback.ID}
			if b.opts.FailPlayback[msg.Playback.Trial] {
				ev.Type = domain.EventPlaybackFailed
				ev.Reason = "scripted failure"
			} else {
				ev.RequestedAt, ev.StartedAt = requested, b.reading()
			}
			if err := send(conn, ev); err != nil {
				return result, err
			}

		case "preload":
			if err := send(conn, outbound{Type: domain.EventPreloadComplete}); err != nil {
				return result, err
			}

		case "error":
			b.logger.Warn("Server rejected message", zap.String("message", msg.Message), zap.String("details", msg.Details))

		case "session_end":
			result.Status = msg.Status
			b.logger.Info("Session ended", zap.String("status", msg.Status), zap.Int("trials", result.Trials))
			return result, nil
		}
	}
}

func (b *Bot) onScreen(conn *websocket.Conn, screen domain.Screen, result *Result) error {
	switch screen.Kind {
	case domain.ScreenInstructions:
		return send(conn, outbound{Type: domain.EventSubject, Text: b.opts.Subject})

	case domain.ScreenTrial:
		if screen.Trial == nil {
			return nil
		}
		trial := *screen.Trial
		// the choice screen is shown once; replays and the answer go out together
		if screen.Replay {
			for i := 0; i < b.opts.ReplaysPerTrial; i++ {
				if err := send(conn, outbound{Type: domain.EventReplay, Trial: trial}); err != nil {
					return err
				}
			}
		}
		result.Trials++
		return send(conn, outbound{Type: domain.EventSelect, Trial: trial, Option: b.opts.Answer(trial), SelectedAt: b.reading()})

	case domain.ScreenMessage:
		if screen.Trial != nil {
			result.Trials++
		}
	}

	if len(screen.Buttons) > 0 {
		return send(conn, outbound{Type: domain.EventButton, Button: screen.Buttons[0].ID})
	}
	return nil
}

// reading is the bot's monotonic clock in milliseconds
func (b *Bot) reading() *float64 {
	ms := float64(time.Since(b.loaded)) / float64(time.Millisecond)
	return &ms
}

func send(conn *websocket.Conn, ev outbound) error {
	if err := conn.WriteJSON(ev); err != nil {
		return fmt.Errorf("send %s: %w", ev.Type, err)
	}
	return nil
}

func (b *Bot) createSession(ctx context.Context) (createSessionResponse, error) {
	var created createSessionResponse

	body, _ := json.Marshal(map[string]string{"variant": b.opts.Variant})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, strings.TrimSuffix(b.opts.BaseURL, "/")+"/api/v1/sessions", bytes.NewReader(body))
	if err != nil {
		return created, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := b.client.Do(req)
	if err != nil {
		return created, fmt.Errorf("create session: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated {
		return created, fmt.Errorf("%w: create session returned %d", ErrUnexpectedStatus, resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(&created); err != nil {
		return created, fmt.Errorf("decode session: %w", err)
	}
	return created, nil
}
