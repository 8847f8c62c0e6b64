package websocket

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/satriahrh/lextale/domain"
	"github.com/satriahrh/lextale/domain/entities"
	"github.com/satriahrh/lextale/domain/repositories"
	"github.com/satriahrh/lextale/usecase"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer.
	maxMessageSize = 4 * 1024
)

var (
	ErrAlreadyConnected = errors.New("session already has a connected participant")
	ErrClientClosed     = errors.New("participant connection closed")
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
}

// SessionRunner drives one participant through the experiment
type SessionRunner interface {
	RunSession(ctx context.Context, sc *usecase.SessionContext) error
}

// VariantCatalog resolves a session's variant by name
type VariantCatalog interface {
	Variant(name string) (entities.Variant, error)
}

// Hub tracks one connected client per session and runs each session's
// experiment while its participant is connected.
type Hub struct {
	// Connected clients by session id.
	clients map[string]*Client

	// Mutex for thread-safe access to clients map
	mu sync.RWMutex

	// Running session goroutines
	wg sync.WaitGroup

	sessions repositories.SessionRepository
	runner   SessionRunner
	variants VariantCatalog
	clock    clock.Clock

	validator *MessageValidator
	logger    *zap.Logger
}

// NewHub creates a new WebSocket hub
func NewHub(
	sessions repositories.SessionRepository,
	runner SessionRunner,
	variants VariantCatalog,
	clk clock.Clock,
	logger *zap.Logger,
) *Hub {
	if clk == nil {
		clk = clock.New()
	}
	return &Hub{
		clients:   make(map[string]*Client),
		sessions:  sessions,
		runner:    runner,
		variants:  variants,
		clock:     clk,
		validator: NewMessageValidator(),
		logger:    logger,
	}
}

// Connected reports whether a participant is connected to the session
func (h *Hub) Connected(sessionID string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	_, ok := h.clients[sessionID]
	return ok
}

// ActiveSessions returns the number of connected participants
func (h *Hub) ActiveSessions() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func (h *Hub) register(client *Client) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[client.sessionID]; ok {
		return ErrAlreadyConnected
	}
	h.clients[client.sessionID] = client
	h.logger.Info("Client registered", zap.String("sessionID", client.sessionID))
	return nil
}

func (h *Hub) unregister(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if current, ok := h.clients[client.sessionID]; ok && current == client {
		delete(h.clients, client.sessionID)
		h.logger.Info("Client unregistered", zap.String("sessionID", client.sessionID))
	}
}

// Shutdown cancels every running session and waits for them to finish
// persisting, or for ctx to expire.
func (h *Hub) Shutdown(ctx context.Context) error {
	h.mu.RLock()
	for _, client := range h.clients {
		client.cancel()
	}
	h.mu.RUnlock()

	done := make(chan struct{})
	go func() {
		h.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// WriteData is one outbound websocket frame
type WriteData struct {
	// MessageType is the type of the websocket message.
	// Expect websocket.TextMessage or websocket.BinaryMessage
	Type    int
	Payload []byte
}

// Client is a middleman between the websocket connection and a running
// session. It implements repositories.Presenter.
type Client struct {
	hub *Hub

	// The websocket connection.
	conn *websocket.Conn

	// Buffered channel of outbound messages.
	send chan WriteData

	// Participant events; closed by the read pump on disconnect.
	events chan domain.ParticipantEvent

	// Closed once the client is shutting down.
	closed    chan struct{}
	closeOnce sync.Once

	cancel context.CancelFunc

	sessionID string
	logger    *zap.Logger
}

// HandleWebSocket upgrades the request and runs the session over it. The
// session must exist, be active and have no other participant connected.
func (h *Hub) HandleWebSocket(c echo.Context, sessionID string) error {
	ctx := c.Request().Context()

	session, err := h.sessions.GetByID(ctx, sessionID)
	if errors.Is(err, repositories.ErrSessionNotFound) {
		return echo.NewHTTPError(http.StatusNotFound, "session not found")
	}
	if err != nil {
		h.logger.Error("Failed to load session", zap.String("sessionID", sessionID), zap.Error(err))
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to load session")
	}
	if session.IsExpired(h.clock.Now()) {
		return echo.NewHTTPError(http.StatusConflict, entities.ErrSessionNotActive.Error())
	}

	variant, err := h.variants.Variant(session.Variant)
	if err != nil {
		h.logger.Error("Session has unknown variant",
			zap.String("sessionID", sessionID),
			zap.String("variant", session.Variant),
			zap.Error(err))
		return echo.NewHTTPError(http.StatusInternalServerError, "unknown variant")
	}

	runCtx, cancel := context.WithCancel(context.Background())
	client := &Client{
		hub:       h,
		send:      make(chan WriteData, 256),
		events:    make(chan domain.ParticipantEvent, 64),
		closed:    make(chan struct{}),
		cancel:    cancel,
		sessionID: sessionID,
		logger:    h.logger.With(zap.String("sessionID", sessionID)),
	}

	if err := h.register(client); err != nil {
		cancel()
		return echo.NewHTTPError(http.StatusConflict, err.Error())
	}

	conn, err := upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		h.unregister(client)
		cancel()
		h.logger.Error("WebSocket upgrade failed", zap.Error(err))
		return nil
	}
	client.conn = conn

	sc := usecase.NewSessionContext(session, variant, client.events, client, h.clock, h.logger)

	h.wg.Add(1)

	// Allow collection of memory referenced by the caller by doing all work in
	// new goroutines.
	go client.writePump()
	go client.readPump()
	go client.run(runCtx, sc)

	return nil
}

// run drives the session until it ends, then closes the connection
func (c *Client) run(ctx context.Context, sc *usecase.SessionContext) {
	defer c.hub.wg.Done()
	defer c.hub.unregister(c)
	defer c.close()
	defer c.cancel()

	if err := c.hub.runner.RunSession(ctx, sc); err != nil {
		c.logger.Warn("Session ended with error", zap.Error(err))
		return
	}
	c.logger.Info("Session ended")
}

func (c *Client) close() {
	c.closeOnce.Do(func() {
		close(c.closed)
	})
}

// readPump pumps messages from the websocket connection to the session.
func (c *Client) readPump() {
	defer func() {
		close(c.events)
		c.close()
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		messageType, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				c.logger.Error("WebSocket error", zap.Error(err))
			}
			return
		}
		// receipt time is the fallback when the browser sends no clock readings
		receivedAt := c.hub.clock.Now()

		if messageType != websocket.TextMessage {
			c.logger.Warn("Received unsupported message type", zap.Int("type", messageType))
			continue
		}

		msg, err := c.hub.validator.ValidateMessage(message)
		if err != nil {
			c.logger.Warn("Invalid message", zap.Error(err))
			c.trySend(CreateErrorMessage("invalid_message", "Invalid message format", err.Error()))
			continue
		}

		if msg.Type == MessageTypePing {
			c.trySend(CreatePongMessage(msg.Data))
			continue
		}

		select {
		case c.events <- msg.Event(receivedAt):
		case <-c.closed:
			return
		}
	}
}

// writePump pumps messages from the session to the websocket connection.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message := <-c.send:
			if err := c.write(message); err != nil {
				c.logger.Error("Failed to write message", zap.Error(err))
				c.close()
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.close()
				return
			}

		case <-c.closed:
			// flush what the session queued before it ended
			for {
				select {
				case message := <-c.send:
					if err := c.write(message); err != nil {
						return
					}
				default:
					c.conn.SetWriteDeadline(time.Now().Add(writeWait))
					c.conn.WriteMessage(websocket.CloseMessage,
						websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
					return
				}
			}
		}
	}
}

func (c *Client) write(message WriteData) error {
	c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return c.conn.WriteMessage(message.Type, message.Payload)
}

// enqueue queues a JSON message for the write pump
func (c *Client) enqueue(ctx context.Context, v interface{}) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return err
	}
	select {
	case <-c.closed:
		return ErrClientClosed
	default:
	}
	select {
	case c.send <- WriteData{Type: websocket.TextMessage, Payload: payload}:
		return nil
	case <-c.closed:
		return ErrClientClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// trySend queues a reply without blocking the read pump
func (c *Client) trySend(v interface{}) {
	payload, err := json.Marshal(v)
	if err != nil {
		return
	}
	select {
	case c.send <- WriteData{Type: websocket.TextMessage, Payload: payload}:
	default:
		c.logger.Warn("Dropping reply, send buffer full")
	}
}

// Present implements repositories.Presenter
func (c *Client) Present(ctx context.Context, screen domain.Screen) error {
	return c.enqueue(ctx, &ScreenMessage{
		BaseMessage: newBase(MessageTypeScreen),
		Screen:      screen,
	})
}

// Play implements repositories.Presenter
func (c *Client) Play(ctx context.Context, req domain.PlaybackRequest) error {
	return c.enqueue(ctx, &PlayMessage{
		BaseMessage: newBase(MessageTypePlay),
		Playback:    req,
	})
}

// Preload implements repositories.Presenter
func (c *Client) Preload(ctx context.Context, manifest domain.PreloadManifest) error {
	return c.enqueue(ctx, &PreloadMessage{
		BaseMessage: newBase(MessageTypePreload),
		Manifest:    manifest,
	})
}

// End implements repositories.Presenter
func (c *Client) End(ctx context.Context, status string) error {
	return c.enqueue(ctx, &SessionEndMessage{
		BaseMessage: newBase(MessageTypeSessionEnd),
		Status:      status,
	})
}
