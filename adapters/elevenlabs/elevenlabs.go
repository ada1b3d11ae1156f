package elevenlabs

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/satriahrh/convai-relay/domain"
	"github.com/satriahrh/convai-relay/domain/entities"
	"github.com/satriahrh/convai-relay/domain/repositories"
)

const (
	defaultAPIBaseURL   = "https://api.elevenlabs.io/v1"
	defaultVoiceID      = "21m00Tcm4TlvDq8ikWAM"   // Rachel voice
	defaultModelID      = "eleven_multilingual_v2" // Default model ID
	defaultStability    = 0.5                      // Default voice stability
	defaultClarity      = 0.75                     // Default voice clarity/similarity_boost
	defaultTimeout      = 30 * time.Second
	maxAudioBytes       = 16 << 20
	maxErrorBodyBytes   = 4 << 10
	mp3OutputFormat     = "mp3_44100_128"
	signedURLPath       = "/convai/conversation/get_signed_url"
	textToSpeechPathFmt = "/text-to-speech/%s"
)

// Config holds configuration for the ElevenLabs client.
//
// APIKey and AgentID are checked per request rather than at construction so
// the server can start without them and report a configuration error to
// callers instead.
type Config struct {
	APIKey     string  // xi-api-key credential
	AgentID    string  // conversational agent used for signed URLs
	APIBaseURL string  // Optional: defaults to https://api.elevenlabs.io/v1
	VoiceID    string  // Optional: voice used by the text fallback
	ModelID    string  // Optional: model used by the text fallback
	Stability  float64 // Optional: between 0 and 1
	Clarity    float64 // Optional: between 0 and 1
	Timeout    time.Duration
}

// Client talks to ElevenLabs on behalf of the backend. It is the only
// component that ever holds the credential.
type Client struct {
	apiKey     string
	agentID    string
	apiBaseURL string
	voiceID    string
	modelID    string
	stability  float64
	clarity    float64
	httpClient *http.Client
	logger     *zap.Logger

	maxAudioBytes int64
}

var (
	_ repositories.SignedURLProvider = (*Client)(nil)
	_ repositories.TextToSpeech      = (*Client)(nil)
)

// VoiceSettings represents voice settings for the text-to-speech API
type VoiceSettings struct {
	Stability       float64 `json:"stability"`
	SimilarityBoost float64 `json:"similarity_boost"`
	UseSpeakerBoost bool    `json:"use_speaker_boost,omitempty"`
}

// SpeechRequest is the request payload for the text-to-speech API
type SpeechRequest struct {
	Text          string        `json:"text"`
	ModelID       string        `json:"model_id"`
	VoiceSettings VoiceSettings `json:"voice_settings"`
}

type signedURLResponse struct {
	SignedURL string `json:"signed_url"`
}

// ValidateConfig validates the optional tuning values of a Config
func ValidateConfig(config Config) error {
	if config.Stability != 0 && (config.Stability < 0 || config.Stability > 1) {
		return fmt.Errorf("stability must be between 0 and 1, got %f", config.Stability)
	}
	if config.Clarity != 0 && (config.Clarity < 0 || config.Clarity > 1) {
		return fmt.Errorf("clarity must be between 0 and 1, got %f", config.Clarity)
	}
	if config.Timeout < 0 {
		return fmt.Errorf("timeout must be positive, got %s", config.Timeout)
	}
	if config.APIBaseURL != "" {
		if _, err := url.ParseRequestURI(config.APIBaseURL); err != nil {
			return fmt.Errorf("invalid API base URL: %w", err)
		}
	}
	return nil
}

// NewClient creates a new ElevenLabs client
func NewClient(config Config, logger *zap.Logger) (*Client, error) {
	if err := ValidateConfig(config); err != nil {
		return nil, err
	}

	apiBaseURL := strings.TrimRight(config.APIBaseURL, "/")
	if apiBaseURL == "" {
		apiBaseURL = defaultAPIBaseURL
	}

	voiceID := config.VoiceID
	if voiceID == "" {
		voiceID = defaultVoiceID
		logger.Info("Using default voice ID", zap.String("voiceID", voiceID))
	}

	modelID := config.ModelID
	if modelID == "" {
		modelID = defaultModelID
	}

	stability := config.Stability
	if stability == 0 {
		stability = defaultStability
	}

	clarity := config.Clarity
	if clarity == 0 {
		clarity = defaultClarity
	}

	timeout := config.Timeout
	if timeout == 0 {
		timeout = defaultTimeout
	}

	if config.APIKey == "" || config.AgentID == "" {
		logger.Warn("ElevenLabs credentials incomplete; requests will fail with a configuration error",
			zap.Bool("hasAPIKey", config.APIKey != ""),
			zap.Bool("hasAgentID", config.AgentID != ""))
	}

	return &Client{
		apiKey:     config.APIKey,
		agentID:    config.AgentID,
		apiBaseURL: apiBaseURL,
		voiceID:    voiceID,
		modelID:    modelID,
		stability:  stability,
		clarity:    clarity,
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger,

		maxAudioBytes: maxAudioBytes,
	}, nil
}

// SignedURL requests a short-lived websocket URL for the configured agent
func (c *Client) SignedURL(ctx context.Context) (string, error) {
	if missing := c.missing(true); len(missing) > 0 {
		return "", &domain.ConfigurationError{Missing: missing}
	}

	endpoint := c.apiBaseURL + signedURLPath + "?agent_id=" + url.QueryEscape(c.agentID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return "", fmt.Errorf("failed to create HTTP request: %w", err)
	}
	req.Header.Set("xi-api-key", c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to execute HTTP request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", c.upstreamError("signed_url", resp)
	}

	var body signedURLResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return "", fmt.Errorf("failed to decode signed URL response: %w", err)
	}
	if body.SignedURL == "" {
		return "", &domain.UpstreamError{StatusCode: resp.StatusCode, Body: "empty signed_url"}
	}

	c.logger.Debug("Obtained signed URL", zap.String("agentID", c.agentID))
	return body.SignedURL, nil
}

// Synthesize converts text to speech. Format is "mp3" (default) or "pcm_16000".
func (c *Client) Synthesize(ctx context.Context, text string, format string) (repositories.Synthesis, error) {
	if strings.TrimSpace(text) == "" {
		return repositories.Synthesis{}, fmt.Errorf("text cannot be empty")
	}
	if missing := c.missing(false); len(missing) > 0 {
		return repositories.Synthesis{}, &domain.ConfigurationError{Missing: missing}
	}

	outputFormat, err := outputFormatFor(format)
	if err != nil {
		return repositories.Synthesis{}, err
	}
	if format == "" {
		format = entities.FormatMP3
	}

	requestBody, err := json.Marshal(SpeechRequest{
		Text:    text,
		ModelID: c.modelID,
		VoiceSettings: VoiceSettings{
			Stability:       c.stability,
			SimilarityBoost: c.clarity,
			UseSpeakerBoost: true,
		},
	})
	if err != nil {
		return repositories.Synthesis{}, fmt.Errorf("failed to marshal request: %w", err)
	}

	endpoint := c.apiBaseURL + fmt.Sprintf(textToSpeechPathFmt, url.PathEscape(c.voiceID)) +
		"?output_format=" + outputFormat
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(requestBody))
	if err != nil {
		return repositories.Synthesis{}, fmt.Errorf("failed to create HTTP request: %w", err)
	}

	acceptHeader := "audio/mpeg"
	if strings.HasPrefix(outputFormat, "pcm") {
		acceptHeader = "audio/pcm"
	}
	req.Header.Set("Accept", acceptHeader)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("xi-api-key", c.apiKey)

	c.logger.Info("Converting text to speech",
		zap.Int("textLength", len(text)),
		zap.String("voiceID", c.voiceID),
		zap.String("outputFormat", outputFormat))

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return repositories.Synthesis{}, fmt.Errorf("failed to execute HTTP request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return repositories.Synthesis{}, c.upstreamError("text_to_speech", resp)
	}

	audio, err := io.ReadAll(io.LimitReader(resp.Body, c.maxAudioBytes+1))
	if err != nil {
		return repositories.Synthesis{}, fmt.Errorf("error reading response body: %w", err)
	}
	if int64(len(audio)) > c.maxAudioBytes {
		return repositories.Synthesis{}, &domain.UpstreamError{
			StatusCode: resp.StatusCode,
			Body:       fmt.Sprintf("audio exceeds %d bytes", c.maxAudioBytes),
		}
	}
	if len(audio) == 0 {
		return repositories.Synthesis{}, &domain.UpstreamError{StatusCode: resp.StatusCode, Body: "empty audio"}
	}

	c.logger.Info("Received synthesized audio",
		zap.String("contentType", resp.Header.Get("Content-Type")),
		zap.Int("totalBytes", len(audio)))

	return repositories.Synthesis{Audio: audio, Format: format}, nil
}

func (c *Client) missing(needAgent bool) []string {
	var missing []string
	if c.apiKey == "" {
		missing = append(missing, "ELEVENLABS_API_KEY")
	}
	if needAgent && c.agentID == "" {
		missing = append(missing, "ELEVENLABS_AGENT_ID")
	}
	return missing
}

func (c *Client) upstreamError(operation string, resp *http.Response) error {
	errorBody, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodyBytes))
	c.logger.Error("ElevenLabs API returned error",
		zap.String("operation", operation),
		zap.Int("statusCode", resp.StatusCode),
		zap.String("response", string(errorBody)))
	return &domain.UpstreamError{StatusCode: resp.StatusCode, Body: string(errorBody)}
}

func outputFormatFor(format string) (string, error) {
	switch format {
	case "", entities.FormatMP3:
		return mp3OutputFormat, nil
	case entities.FormatPCM16000:
		return entities.FormatPCM16000, nil
	default:
		return "", fmt.Errorf("unsupported audio format %q", format)
	}
}

// NewConfigFromEnv creates a new Config from environment variables
func NewConfigFromEnv() Config {
	config := Config{
		APIKey:     os.Getenv("ELEVENLABS_API_KEY"),
		AgentID:    os.Getenv("ELEVENLABS_AGENT_ID"),
		APIBaseURL: os.Getenv("ELEVENLABS_API_BASE_URL"),
		VoiceID:    os.Getenv("ELEVENLABS_VOICE_ID"),
		ModelID:    os.Getenv("ELEVENLABS_MODEL_ID"),
	}

	if stabilityStr := os.Getenv("ELEVENLABS_STABILITY"); stabilityStr != "" {
		if stability, err := strconv.ParseFloat(stabilityStr, 64); err == nil && stability >= 0 && stability <= 1 {
			config.Stability = stability
		}
	}

	if clarityStr := os.Getenv("ELEVENLABS_CLARITY"); clarityStr != "" {
		if clarity, err := strconv.ParseFloat(clarityStr, 64); err == nil && clarity >= 0 && clarity <= 1 {
			config.Clarity = clarity
		}
	}

	if timeoutStr := os.Getenv("ELEVENLABS_TIMEOUT_SECONDS"); timeoutStr != "" {
		if seconds, err := strconv.Atoi(timeoutStr); err == nil && seconds > 0 {
			config.Timeout = time.Duration(seconds) * time.Second
		}
	}

	return config
}
