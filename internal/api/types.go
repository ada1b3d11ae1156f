package api

import "time"

// Error codes returned in ErrorResponse.Code
const (
	CodeConfigurationError = "configuration_error"
	CodeUpstreamError      = "upstream_error"
	CodeInvalidRequest     = "invalid_request"
	CodeMissingTicket      = "missing_ticket"
	CodeInvalidTicket      = "invalid_ticket"
	CodeInternalError      = "internal_error"
)

// SignedURLResponse carries a single-use agent websocket URL
type SignedURLResponse struct {
	SignedURL string `json:"signedUrl"`
}

// TTSRequest represents the request payload for text-to-speech
type TTSRequest struct {
	Text   string `json:"text"`
	Format string `json:"format,omitempty"`
}

// TTSResponse carries base64 audio in the requested format
type TTSResponse struct {
	Audio  string `json:"audio"`
	Format string `json:"format"`
}

// RelayURLResponse carries a ticketed browser relay URL
type RelayURLResponse struct {
	RelayURL  string    `json:"relayUrl"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// ErrorResponse represents an error response
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}
