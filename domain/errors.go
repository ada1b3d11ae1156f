package domain

import (
	"errors"
	"fmt"
	"strings"
)

// ConfigurationError reports missing credentials or identifiers at the
// upstream boundary. It is fatal to the request that hit it and is never
// retried.
type ConfigurationError struct {
	Missing []string
}

func (e *ConfigurationError) Error() string {
	if len(e.Missing) == 0 {
		return "configuration error"
	}
	return fmt.Sprintf("configuration error: missing %s", strings.Join(e.Missing, ", "))
}

// UpstreamError reports a non-success response from a remote API.
type UpstreamError struct {
	StatusCode int
	Body       string
}

func (e *UpstreamError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("upstream returned status %d", e.StatusCode)
	}
	return fmt.Sprintf("upstream returned status %d: %s", e.StatusCode, e.Body)
}

// TransportError wraps socket level failures: dial errors, unexpected
// closure, undecodable frames.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("transport %s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// PlaybackError reports a fragment that could not be played. The sequencer
// skips the fragment and moves on.
type PlaybackError struct {
	FragmentID uint64
	Err        error
}

func (e *PlaybackError) Error() string {
	return fmt.Sprintf("playback of fragment %d failed: %v", e.FragmentID, e.Err)
}

func (e *PlaybackError) Unwrap() error { return e.Err }

// IsConfigurationError reports whether err carries a ConfigurationError.
func IsConfigurationError(err error) bool {
	var target *ConfigurationError
	return errors.As(err, &target)
}

// IsUpstreamError reports whether err carries an UpstreamError.
func IsUpstreamError(err error) bool {
	var target *UpstreamError
	return errors.As(err, &target)
}
