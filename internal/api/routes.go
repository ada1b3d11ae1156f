package api

import (
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/satriahrh/convai-relay/domain"
	"github.com/satriahrh/convai-relay/domain/entities"
	"github.com/satriahrh/convai-relay/domain/repositories"
	"github.com/satriahrh/convai-relay/internal/auth"
	"github.com/satriahrh/convai-relay/internal/metrics"
	"github.com/satriahrh/convai-relay/internal/websocket"
)

// Dependencies are the collaborators of the HTTP routes
type Dependencies struct {
	SignedURLs repositories.SignedURLProvider
	TTS        repositories.TextToSpeech
	Tickets    *auth.TicketIssuer
	Hub        *websocket.Hub
	Metrics    *metrics.Metrics
	StaticDir  string
}

type handlers struct {
	Dependencies
	logger *zap.Logger
}

// InitRoutes initializes all API routes
func InitRoutes(e *echo.Echo, deps Dependencies, logger *zap.Logger) {
	h := &handlers{Dependencies: deps, logger: logger}

	// Health check
	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{
			"status":  "ok",
			"service": "convai-relay",
		})
	})

	api := e.Group("/api")
	api.GET("/signed-url", h.signedURL)
	api.POST("/tts", h.textToSpeech)
	api.GET("/relay-url", h.relayURL)

	// WebSocket endpoint with ticket validation
	e.GET("/ws", h.websocketWithTicket)

	e.GET("/metrics", echo.WrapHandler(deps.Metrics.Handler()))

	if deps.StaticDir != "" {
		e.Static("/", deps.StaticDir)
		logger.Info("Serving static files", zap.String("dir", deps.StaticDir))
	}
}

func (h *handlers) signedURL(c echo.Context) error {
	started := time.Now()
	signedURL, err := h.SignedURLs.SignedURL(c.Request().Context())
	h.Metrics.RecordUpstream("signed_url", time.Since(started), errorKind(err))
	if err != nil {
		return h.upstreamFailure(c, "signed_url", err)
	}

	// never cached; each call is a new single-use credential
	c.Response().Header().Set("Cache-Control", "no-store")
	return c.JSON(http.StatusOK, SignedURLResponse{SignedURL: signedURL})
}

func (h *handlers) textToSpeech(c echo.Context) error {
	var req TTSRequest
	if err := c.Bind(&req); err != nil {
		h.logger.Warn("Failed to bind tts request", zap.Error(err))
		return c.JSON(http.StatusBadRequest, ErrorResponse{
			Error: "Invalid request format",
			Code:  CodeInvalidRequest,
		})
	}

	req.Text = strings.TrimSpace(req.Text)
	if req.Text == "" {
		return c.JSON(http.StatusBadRequest, ErrorResponse{
			Error: "text is required",
			Code:  CodeInvalidRequest,
		})
	}

	switch req.Format {
	case "":
		req.Format = entities.FormatMP3
	case entities.FormatMP3, entities.FormatPCM16000:
	default:
		return c.JSON(http.StatusBadRequest, ErrorResponse{
			Error: "format must be mp3 or pcm_16000",
			Code:  CodeInvalidRequest,
		})
	}

	started := time.Now()
	synthesis, err := h.TTS.Synthesize(c.Request().Context(), req.Text, req.Format)
	h.Metrics.RecordUpstream("text_to_speech", time.Since(started), errorKind(err))
	if err != nil {
		return h.upstreamFailure(c, "text_to_speech", err)
	}

	return c.JSON(http.StatusOK, TTSResponse{
		Audio:  base64.StdEncoding.EncodeToString(synthesis.Audio),
		Format: synthesis.Format,
	})
}

func (h *handlers) relayURL(c echo.Context) error {
	ticket, err := h.Tickets.Issue()
	if err != nil {
		h.logger.Error("Failed to issue relay ticket", zap.Error(err))
		return c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error: "Failed to issue relay ticket",
			Code:  CodeInternalError,
		})
	}

	scheme := "ws"
	if c.Scheme() == "https" {
		scheme = "wss"
	}
	relay := url.URL{
		Scheme:   scheme,
		Host:     c.Request().Host,
		Path:     "/ws",
		RawQuery: url.Values{"ticket": {ticket.Token}}.Encode(),
	}

	c.Response().Header().Set("Cache-Control", "no-store")
	return c.JSON(http.StatusOK, RelayURLResponse{
		RelayURL:  relay.String(),
		ExpiresAt: ticket.ExpiresAt,
	})
}

// websocketWithTicket admits a browser holding a fresh relay ticket
func (h *handlers) websocketWithTicket(c echo.Context) error {
	token := c.QueryParam("ticket")
	if token == "" {
		h.logger.Warn("WebSocket connection rejected: missing ticket")
		return c.JSON(http.StatusUnauthorized, ErrorResponse{
			Error: "ticket query parameter is required",
			Code:  CodeMissingTicket,
		})
	}

	claims, err := h.Tickets.Redeem(c.Request().Context(), token)
	if err != nil {
		if errors.Is(err, auth.ErrTicketInvalid) || errors.Is(err, auth.ErrTicketReused) {
			h.logger.Warn("WebSocket connection rejected", zap.Error(err))
			return c.JSON(http.StatusUnauthorized, ErrorResponse{
				Error: "Invalid, expired or reused ticket",
				Code:  CodeInvalidTicket,
			})
		}
		h.logger.Error("Failed to redeem relay ticket", zap.Error(err))
		return c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error: "Failed to redeem ticket",
			Code:  CodeInternalError,
		})
	}

	h.logger.Info("WebSocket connection authenticated", zap.String("ticketID", claims.ID))
	return websocket.HandleWebSocket(h.Hub, c)
}

// upstreamFailure maps the error taxonomy onto HTTP statuses
func (h *handlers) upstreamFailure(c echo.Context, operation string, err error) error {
	var configErr *domain.ConfigurationError
	if errors.As(err, &configErr) {
		h.logger.Error("Request failed on missing configuration",
			zap.String("operation", operation),
			zap.Strings("missing", configErr.Missing))
		message := "server is missing configuration"
		if len(configErr.Missing) > 0 {
			message = "server is missing " + strings.Join(configErr.Missing, ", ")
		}
		return c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error: message,
			Code:  CodeConfigurationError,
		})
	}

	h.logger.Error("Upstream request failed", zap.String("operation", operation), zap.Error(err))

	message := "upstream request failed"
	var upstreamErr *domain.UpstreamError
	if errors.As(err, &upstreamErr) {
		message = fmt.Sprintf("upstream returned status %d", upstreamErr.StatusCode)
	}
	return c.JSON(http.StatusBadGateway, ErrorResponse{
		Error: message,
		Code:  CodeUpstreamError,
	})
}

func errorKind(err error) string {
	switch {
	case err == nil:
		return ""
	case domain.IsConfigurationError(err):
		return "configuration"
	case domain.IsUpstreamError(err):
		return "upstream"
	default:
		return "transport"
	}
}
