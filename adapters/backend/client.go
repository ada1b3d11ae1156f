// Package backend is the client side of the proxy. It never sees the
// upstream credential: it asks our own server for signed URLs and speech.
package backend

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/satriahrh/convai-relay/domain"
	"github.com/satriahrh/convai-relay/domain/repositories"
)

const (
	defaultTimeout     = 30 * time.Second
	maxResponseBytes   = 24 << 20
	signedURLRoute     = "/api/signed-url"
	textToSpeechRoute  = "/api/tts"
	codeConfiguration  = "configuration_error"
	codeUpstream       = "upstream_error"
	maxErrorBodyLength = 512
)

// Client calls the proxy's signed URL and text-to-speech routes
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *zap.Logger
}

var (
	_ repositories.SignedURLProvider = (*Client)(nil)
	_ repositories.TextToSpeech      = (*Client)(nil)
)

type signedURLResponse struct {
	SignedURL string `json:"signedUrl"`
}

type speechRequest struct {
	Text   string `json:"text"`
	Format string `json:"format,omitempty"`
}

type speechResponse struct {
	Audio  string `json:"audio"`
	Format string `json:"format"`
}

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

// NewClient creates a client for the proxy at baseURL
func NewClient(baseURL string, timeout time.Duration, logger *zap.Logger) (*Client, error) {
	baseURL = strings.TrimRight(baseURL, "/")
	if _, err := url.ParseRequestURI(baseURL); err != nil {
		return nil, fmt.Errorf("invalid backend URL: %w", err)
	}
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Client{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger,
	}, nil
}

// SignedURL fetches a fresh signed websocket URL. Nothing is cached.
func (c *Client) SignedURL(ctx context.Context) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+signedURLRoute, nil)
	if err != nil {
		return "", fmt.Errorf("failed to create HTTP request: %w", err)
	}

	var body signedURLResponse
	if err := c.do(req, &body); err != nil {
		return "", err
	}
	if body.SignedURL == "" {
		return "", &domain.UpstreamError{StatusCode: http.StatusOK, Body: "empty signedUrl"}
	}

	c.logger.Debug("Fetched signed URL")
	return body.SignedURL, nil
}

// Synthesize asks the proxy to speak text in the given format
func (c *Client) Synthesize(ctx context.Context, text string, format string) (repositories.Synthesis, error) {
	payload, err := json.Marshal(speechRequest{Text: text, Format: format})
	if err != nil {
		return repositories.Synthesis{}, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+textToSpeechRoute, bytes.NewReader(payload))
	if err != nil {
		return repositories.Synthesis{}, fmt.Errorf("failed to create HTTP request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	var body speechResponse
	if err := c.do(req, &body); err != nil {
		return repositories.Synthesis{}, err
	}

	audio, err := base64.StdEncoding.DecodeString(body.Audio)
	if err != nil {
		return repositories.Synthesis{}, fmt.Errorf("invalid audio payload: %w", err)
	}
	if len(audio) == 0 {
		return repositories.Synthesis{}, &domain.UpstreamError{StatusCode: http.StatusOK, Body: "empty audio"}
	}

	c.logger.Debug("Received synthesized audio",
		zap.String("format", body.Format),
		zap.Int("bytes", len(audio)))
	return repositories.Synthesis{Audio: audio, Format: body.Format}, nil
}

func (c *Client) do(req *http.Request, out interface{}) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to execute HTTP request: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return fmt.Errorf("error reading response body: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return c.statusError(req.URL.Path, resp.StatusCode, data)
	}

	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

// statusError maps the proxy's error body back onto the error taxonomy
func (c *Client) statusError(route string, status int, data []byte) error {
	var body errorResponse
	_ = json.Unmarshal(data, &body)

	c.logger.Warn("Backend returned error",
		zap.String("route", route),
		zap.Int("statusCode", status),
		zap.String("code", body.Code))

	if body.Code == codeConfiguration {
		return &domain.ConfigurationError{}
	}

	message := body.Error
	if message == "" {
		message = string(data)
		if len(message) > maxErrorBodyLength {
			message = message[:maxErrorBodyLength]
		}
	}
	return &domain.UpstreamError{StatusCode: status, Body: message}
}
