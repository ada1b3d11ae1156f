package websocket

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/satriahrh/convai-relay/domain/entities"
)

// MessageType defines the type of WebSocket message
type MessageType string

// Supported message types
const (
	// browser -> relay
	MessageTypeStart        MessageType = "start"
	MessageTypeStop         MessageType = "stop"
	MessageTypeText         MessageType = "text"
	MessageTypeAudioChunk   MessageType = "audio_chunk"
	MessageTypePlaybackDone MessageType = "playback_done"
	MessageTypePing         MessageType = "ping"

	// relay -> browser
	MessageTypeState   MessageType = "state"
	MessageTypeMessage MessageType = "message"
	MessageTypeAudio   MessageType = "audio"
	MessageTypePong    MessageType = "pong"
	MessageTypeError   MessageType = "error"
)

// Error codes sent to the browser
const (
	ErrorCodeInvalidMessage = "invalid_message"
	ErrorCodeInvalidAudio   = "invalid_audio"
)

// ErrInvalidAudio marks an audio_chunk whose payload is missing or not base64
var ErrInvalidAudio = errors.New("invalid audio")

// BaseMessage defines the common structure for all WebSocket messages
type BaseMessage struct {
	Type      MessageType `json:"type"`
	Timestamp string      `json:"timestamp,omitempty"`
}

// ControlMessage is a start or stop request
type ControlMessage struct {
	BaseMessage
}

// TextMessage asks for the text fallback
type TextMessage struct {
	BaseMessage
	Text string `json:"text"`
}

// AudioChunkMessage carries one base64 microphone frame. Binary websocket
// frames carry the same payload without the envelope.
type AudioChunkMessage struct {
	BaseMessage
	Audio string `json:"audio"`

	decoded []byte
}

// Frame returns the decoded audio
func (m *AudioChunkMessage) Frame() []byte {
	return m.decoded
}

// PlaybackDoneMessage acknowledges that the browser finished a fragment
type PlaybackDoneMessage struct {
	BaseMessage
	FragmentID uint64 `json:"fragment_id"`
}

// PingMessage represents a ping message for connection health check
type PingMessage struct {
	BaseMessage
	Data string `json:"data,omitempty"`
}

// PongMessage represents a pong response
type PongMessage struct {
	BaseMessage
	Data string `json:"data,omitempty"`
}

// StateMessage reports the conversation state and the recording indicator
type StateMessage struct {
	BaseMessage
	State     string `json:"state"`
	Recording bool   `json:"recording"`
}

// ChatMessage is one transcript entry
type ChatMessage struct {
	BaseMessage
	Role string `json:"role"`
	Text string `json:"text"`
}

// AudioMessage asks the browser to play one fragment and acknowledge it
type AudioMessage struct {
	BaseMessage
	FragmentID uint64 `json:"fragment_id"`
	Audio      string `json:"audio"`
	Format     string `json:"format"`
	Source     string `json:"source"`
}

// ErrorMessage represents an error response
type ErrorMessage struct {
	BaseMessage
	Code    string `json:"error_code"`
	Message string `json:"message"`
}

// MessageValidator provides validation for WebSocket messages
type MessageValidator struct{}

// NewMessageValidator creates a new message validator
func NewMessageValidator() *MessageValidator {
	return &MessageValidator{}
}

// ValidateMessage parses an incoming text frame into its typed form
func (v *MessageValidator) ValidateMessage(messageBytes []byte) (interface{}, error) {
	var base BaseMessage
	if err := json.Unmarshal(messageBytes, &base); err != nil {
		return nil, fmt.Errorf("invalid JSON format: %w", err)
	}

	switch base.Type {
	case MessageTypeStart, MessageTypeStop:
		return &ControlMessage{BaseMessage: base}, nil

	case MessageTypeText:
		var msg TextMessage
		if err := json.Unmarshal(messageBytes, &msg); err != nil {
			return nil, fmt.Errorf("invalid text message: %w", err)
		}
		return &msg, nil

	case MessageTypeAudioChunk:
		var msg AudioChunkMessage
		if err := json.Unmarshal(messageBytes, &msg); err != nil {
			return nil, fmt.Errorf("invalid audio chunk message: %w", err)
		}
		if err := v.validateAudioChunk(&msg); err != nil {
			return nil, err
		}
		return &msg, nil

	case MessageTypePlaybackDone:
		var msg PlaybackDoneMessage
		if err := json.Unmarshal(messageBytes, &msg); err != nil {
			return nil, fmt.Errorf("invalid playback done message: %w", err)
		}
		if msg.FragmentID == 0 {
			return nil, fmt.Errorf("fragment_id is required")
		}
		return &msg, nil

	case MessageTypePing:
		var msg PingMessage
		if err := json.Unmarshal(messageBytes, &msg); err != nil {
			return nil, fmt.Errorf("invalid ping message: %w", err)
		}
		return &msg, nil

	default:
		return nil, fmt.Errorf("unsupported message type: %s", base.Type)
	}
}

// validateAudioChunk decodes and checks the audio payload
func (v *MessageValidator) validateAudioChunk(msg *AudioChunkMessage) error {
	if strings.TrimSpace(msg.Audio) == "" {
		return fmt.Errorf("%w: audio is required", ErrInvalidAudio)
	}
	decoded, err := base64.StdEncoding.DecodeString(msg.Audio)
	if err != nil {
		return fmt.Errorf("%w: audio must be base64: %v", ErrInvalidAudio, err)
	}
	msg.decoded = decoded
	return nil
}

func newBase(t MessageType) BaseMessage {
	return BaseMessage{Type: t, Timestamp: time.Now().Format(time.RFC3339)}
}

// CreateErrorMessage creates a standardized error message
func CreateErrorMessage(code, message string) *ErrorMessage {
	return &ErrorMessage{
		BaseMessage: newBase(MessageTypeError),
		Code:        code,
		Message:     message,
	}
}

// CreatePongMessage creates a pong response message
func CreatePongMessage(data string) *PongMessage {
	return &PongMessage{
		BaseMessage: newBase(MessageTypePong),
		Data:        data,
	}
}

// CreateStateMessage reports state and recording together
func CreateStateMessage(state entities.ConversationState, recording bool) *StateMessage {
	return &StateMessage{
		BaseMessage: newBase(MessageTypeState),
		State:       state.String(),
		Recording:   recording,
	}
}

// CreateChatMessage converts a transcript entry
func CreateChatMessage(message entities.Message) *ChatMessage {
	return &ChatMessage{
		BaseMessage: BaseMessage{Type: MessageTypeMessage, Timestamp: message.Timestamp.Format(time.RFC3339)},
		Role:        string(message.Role),
		Text:        message.Text,
	}
}

// CreateAudioMessage wraps a fragment for the browser
func CreateAudioMessage(fragment entities.AudioFragment) *AudioMessage {
	return &AudioMessage{
		BaseMessage: newBase(MessageTypeAudio),
		FragmentID:  fragment.ID,
		Audio:       base64.StdEncoding.EncodeToString(fragment.Audio),
		Format:      fragment.Format,
		Source:      string(fragment.Source),
	}
}
