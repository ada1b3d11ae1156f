package websocket

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/satriahrh/convai-relay/domain/entities"
)

func TestMessageValidator_ValidateMessage(t *testing.T) {
	validator := NewMessageValidator()

	tests := []struct {
		name     string
		message  string
		wantType MessageType
		wantErr  bool
	}{
		{name: "start", message: `{"type":"start"}`, wantType: MessageTypeStart},
		{name: "stop", message: `{"type":"stop"}`, wantType: MessageTypeStop},
		{name: "text", message: `{"type":"text","text":"hello"}`, wantType: MessageTypeText},
		{name: "audio chunk", message: `{"type":"audio_chunk","audio":"SGVsbG8="}`, wantType: MessageTypeAudioChunk},
		{name: "playback done", message: `{"type":"playback_done","fragment_id":3}`, wantType: MessageTypePlaybackDone},
		{name: "ping", message: `{"type":"ping","data":"x"}`, wantType: MessageTypePing},
		{name: "invalid json", message: `{"type":`, wantErr: true},
		{name: "unknown type", message: `{"type":"listening_start"}`, wantErr: true},
		{name: "missing type", message: `{}`, wantErr: true},
		{name: "empty audio", message: `{"type":"audio_chunk","audio":""}`, wantErr: true},
		{name: "non base64 audio", message: `{"type":"audio_chunk","audio":"@@@"}`, wantErr: true},
		{name: "missing fragment id", message: `{"type":"playback_done"}`, wantErr: true},
		{name: "wrong field type", message: `{"type":"text","text":42}`, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg, err := validator.ValidateMessage([]byte(tt.message))
			if (err != nil) != tt.wantErr {
				t.Fatalf("ValidateMessage() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr {
				return
			}

			var got MessageType
			switch m := msg.(type) {
			case *ControlMessage:
				got = m.Type
			case *TextMessage:
				got = m.Type
			case *AudioChunkMessage:
				got = m.Type
			case *PlaybackDoneMessage:
				got = m.Type
			case *PingMessage:
				got = m.Type
			default:
				t.Fatalf("Unexpected message type %T", msg)
			}
			if got != tt.wantType {
				t.Errorf("Expected %s, got %s", tt.wantType, got)
			}
		})
	}
}

func TestMessageValidator_InvalidAudio(t *testing.T) {
	validator := NewMessageValidator()

	for _, message := range []string{
		`{"type":"audio_chunk","audio":""}`,
		`{"type":"audio_chunk","audio":"@@@"}`,
	} {
		if _, err := validator.ValidateMessage([]byte(message)); !errors.Is(err, ErrInvalidAudio) {
			t.Errorf("Expected ErrInvalidAudio for %s, got %v", message, err)
		}
	}
	if _, err := validator.ValidateMessage([]byte(`{"type":`)); errors.Is(err, ErrInvalidAudio) {
		t.Error("Malformed JSON must not be reported as invalid audio")
	}
}

func TestMessageValidator_DecodesAudio(t *testing.T) {
	validator := NewMessageValidator()

	msg, err := validator.ValidateMessage([]byte(`{"type":"audio_chunk","audio":"SGVsbG8="}`))
	if err != nil {
		t.Fatalf("ValidateMessage failed: %v", err)
	}
	chunk := msg.(*AudioChunkMessage)
	if string(chunk.Frame()) != "Hello" {
		t.Errorf("Expected decoded frame 'Hello', got %q", chunk.Frame())
	}
}

func TestCreateErrorMessage(t *testing.T) {
	errorMsg := CreateErrorMessage(ErrorCodeInvalidMessage, "Invalid message format")

	if errorMsg.Type != MessageTypeError {
		t.Errorf("Expected type %s, got %s", MessageTypeError, errorMsg.Type)
	}
	if errorMsg.Code != ErrorCodeInvalidMessage {
		t.Errorf("Expected code %s, got %s", ErrorCodeInvalidMessage, errorMsg.Code)
	}
	if _, err := time.Parse(time.RFC3339, errorMsg.Timestamp); err != nil {
		t.Errorf("Invalid timestamp format: %v", err)
	}

	data, _ := json.Marshal(errorMsg)
	var decoded map[string]interface{}
	json.Unmarshal(data, &decoded)
	if decoded["error_code"] != ErrorCodeInvalidMessage || decoded["message"] != "Invalid message format" {
		t.Errorf("Unexpected wire shape %s", data)
	}
}

func TestCreatePongMessage(t *testing.T) {
	pong := CreatePongMessage("ping-data")
	if pong.Type != MessageTypePong || pong.Data != "ping-data" {
		t.Errorf("Unexpected pong %+v", pong)
	}
}

func TestCreateStateMessage(t *testing.T) {
	data, _ := json.Marshal(CreateStateMessage(entities.StateActive, true))

	var decoded struct {
		Type      string `json:"type"`
		State     string `json:"state"`
		Recording bool   `json:"recording"`
	}
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("Failed to decode: %v", err)
	}
	if decoded.Type != "state" || decoded.State != "active" || !decoded.Recording {
		t.Errorf("Unexpected state message %s", data)
	}
}

func TestCreateChatMessage(t *testing.T) {
	msg := CreateChatMessage(entities.NewMessage(entities.MessageRoleAgent, "hello"))
	if msg.Type != MessageTypeMessage || msg.Role != "agent" || msg.Text != "hello" {
		t.Errorf("Unexpected chat message %+v", msg)
	}
}

func TestCreateAudioMessage(t *testing.T) {
	msg := CreateAudioMessage(entities.AudioFragment{
		ID:     4,
		Audio:  []byte("Hello"),
		Format: entities.FormatMP3,
		Source: entities.FragmentSourceTTS,
	})

	if msg.FragmentID != 4 || msg.Audio != "SGVsbG8=" || msg.Format != "mp3" || msg.Source != "tts" {
		t.Errorf("Unexpected audio message %+v", msg)
	}
}
