package api

import (
	"bytes"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/satriahrh/lextale/adapters/submit"
	"github.com/satriahrh/lextale/domain/entities"
	"github.com/satriahrh/lextale/domain/repositories"
	"github.com/satriahrh/lextale/internal/auth"
	"github.com/satriahrh/lextale/usecase"
)

// WebSocketHandler accepts a participant connection for a session
type WebSocketHandler interface {
	HandleWebSocket(c echo.Context, sessionID string) error
}

// VariantCatalog resolves variants by name
type VariantCatalog interface {
	Variant(name string) (entities.Variant, error)
}

// Dependencies are the services the routes are served from
type Dependencies struct {
	Sessions   repositories.SessionRepository
	Variants   VariantCatalog
	Recorder   *usecase.Recorder
	Tokens     *auth.TokenIssuer
	WebSocket  WebSocketHandler
	SessionTTL time.Duration
	AssetsDir  string
	Clock      clock.Clock
	Logger     *zap.Logger
}

type handler struct {
	Dependencies
}

// InitRoutes initializes all API routes
func InitRoutes(e *echo.Echo, deps Dependencies) {
	if deps.Clock == nil {
		deps.Clock = clock.New()
	}
	h := &handler{Dependencies: deps}

	// Health check
	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{
			"status":  "ok",
			"service": "lextale-server",
		})
	})

	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	if deps.AssetsDir != "" {
		e.Static("/assets", deps.AssetsDir)
	}

	// API v1 routes
	v1 := e.Group("/api/v1")
	v1.POST("/sessions", h.createSession)

	participant := v1.Group("/sessions/:id", h.requireParticipant)
	participant.GET("", h.getSession)
	participant.GET("/results", h.getResults)

	// WebSocket endpoint with JWT validation
	e.GET("/ws", h.websocketWithAuth)
}

func (h *handler) createSession(c echo.Context) error {
	var req CreateSessionRequest
	if err := c.Bind(&req); err != nil {
		h.Logger.Error("Failed to bind create session request", zap.Error(err))
		return c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "invalid_request",
			Message: "Invalid request format",
		})
	}

	variant, err := h.Variants.Variant(req.Variant)
	if err != nil {
		return c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "unknown_variant",
			Message: err.Error(),
		})
	}

	ctx := c.Request().Context()
	session := entities.NewSession(variant.Name, h.SessionTTL, h.Clock.Now())
	if err := h.Sessions.Create(ctx, session); err != nil {
		h.Logger.Error("Failed to create session", zap.Error(err))
		return c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error:   "internal_error",
			Message: "Failed to create session",
		})
	}

	token, expiresAt, err := h.Tokens.GenerateParticipantToken(session.ID, variant.Name)
	if err != nil {
		h.Logger.Error("Failed to generate participant token",
			zap.String("sessionID", session.ID),
			zap.Error(err))
		return c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error:   "token_generation_failed",
			Message: "Failed to generate participant token",
		})
	}

	h.Logger.Info("Session created",
		zap.String("sessionID", session.ID),
		zap.String("variant", variant.Name))

	return c.JSON(http.StatusCreated, CreateSessionResponse{
		SessionID: session.ID,
		Variant:   variant.Name,
		Token:     token,
		ExpiresAt: expiresAt,
	})
}

func (h *handler) getSession(c echo.Context) error {
	session, resp := h.loadSession(c)
	if session == nil {
		return resp
	}

	return c.JSON(http.StatusOK, SessionResponse{
		SessionID:       session.ID,
		Variant:         session.Variant,
		Status:          session.Status,
		Phase:           session.Phase,
		Subject:         session.SubjectID,
		Calibration:     session.Calibration,
		Trials:          len(session.Records),
		SubmissionError: session.SubmissionError,
		CreatedAt:       session.CreatedAt,
		ExpiresAt:       session.ExpiresAt,
	})
}

func (h *handler) getResults(c echo.Context) error {
	session, resp := h.loadSession(c)
	if session == nil {
		return resp
	}

	variant, err := h.Variants.Variant(session.Variant)
	if err != nil {
		h.Logger.Error("Session has unknown variant",
			zap.String("sessionID", session.ID),
			zap.String("variant", session.Variant))
		return c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error:   "unknown_variant",
			Message: err.Error(),
		})
	}

	results := h.Recorder.Results(session, variant.HasReplay)

	if c.QueryParam("format") == "csv" {
		var buf bytes.Buffer
		if err := submit.WriteCSV(&buf, results); err != nil {
			h.Logger.Error("Failed to encode results", zap.String("sessionID", session.ID), zap.Error(err))
			return c.JSON(http.StatusInternalServerError, ErrorResponse{
				Error:   "internal_error",
				Message: "Failed to encode results",
			})
		}
		c.Response().Header().Set(echo.HeaderContentDisposition, `attachment; filename="`+session.ID+`.csv"`)
		return c.Blob(http.StatusOK, "text/csv", buf.Bytes())
	}

	return c.JSON(http.StatusOK, results)
}

// loadSession fetches the session named by the :id path parameter. On
// failure it returns nil and the already written error response.
func (h *handler) loadSession(c echo.Context) (*entities.Session, error) {
	session, err := h.Sessions.GetByID(c.Request().Context(), c.Param("id"))
	if errors.Is(err, repositories.ErrSessionNotFound) {
		return nil, c.JSON(http.StatusNotFound, ErrorResponse{
			Error:   "not_found",
			Message: "Session not found",
		})
	}
	if err != nil {
		h.Logger.Error("Failed to load session", zap.String("sessionID", c.Param("id")), zap.Error(err))
		return nil, c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error:   "internal_error",
			Message: "Failed to load session",
		})
	}
	return session, nil
}

// requireParticipant only lets a session's own token through
func (h *handler) requireParticipant(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		claims, resp := h.authenticate(c)
		if claims == nil {
			return resp
		}
		if claims.SessionID != c.Param("id") {
			return c.JSON(http.StatusForbidden, ErrorResponse{
				Error:   "forbidden",
				Message: "Token does not grant access to this session",
			})
		}
		return next(c)
	}
}

// authenticate validates the bearer token. On failure it returns nil claims
// and the already written error response.
func (h *handler) authenticate(c echo.Context) (*auth.ParticipantClaims, error) {
	token := bearerToken(c)
	if token == "" {
		h.Logger.Warn("Request rejected: missing token", zap.String("path", c.Path()))
		return nil, c.JSON(http.StatusUnauthorized, ErrorResponse{
			Error:   "missing_token",
			Message: "JWT token is required",
		})
	}

	claims, err := h.Tokens.ValidateToken(token)
	if err != nil {
		h.Logger.Warn("Request rejected: invalid token", zap.Error(err))
		return nil, c.JSON(http.StatusUnauthorized, ErrorResponse{
			Error:   "invalid_token",
			Message: "Invalid or expired JWT token",
		})
	}
	return claims, nil
}

// bearerToken reads the Authorization header, falling back to the token
// query parameter since browsers cannot set headers on websocket requests
func bearerToken(c echo.Context) string {
	authHeader := c.Request().Header.Get(echo.HeaderAuthorization)
	if token, ok := strings.CutPrefix(authHeader, "Bearer "); ok && token != "" {
		return token
	}
	return c.QueryParam("token")
}

// websocketWithAuth handles WebSocket connections with JWT authentication
func (h *handler) websocketWithAuth(c echo.Context) error {
	claims, resp := h.authenticate(c)
	if claims == nil {
		return resp
	}

	h.Logger.Info("WebSocket connection authenticated",
		zap.String("sessionID", claims.SessionID),
		zap.String("variant", claims.Variant))

	return h.WebSocket.HandleWebSocket(c, claims.SessionID)
}
