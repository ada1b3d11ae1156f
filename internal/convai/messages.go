package convai

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
)

// MessageType is the "type" discriminator of agent socket messages
type MessageType string

// Inbound and outbound message types
const (
	MessageTypePing                 MessageType = "ping"
	MessageTypePong                 MessageType = "pong"
	MessageTypeUserTranscript       MessageType = "user_transcript"
	MessageTypeAgentResponse        MessageType = "agent_response"
	MessageTypeAudio                MessageType = "audio"
	MessageTypeInitiationMetadata   MessageType = "conversation_initiation_metadata"
	MessageTypeInitiationClientData MessageType = "conversation_initiation_client_data"
)

// BaseMessage carries the discriminator shared by every inbound frame
type BaseMessage struct {
	Type MessageType `json:"type"`
}

// PingMessage asks the client to answer with a pong carrying the same event id
type PingMessage struct {
	BaseMessage
	PingEvent struct {
		EventID int64 `json:"event_id"`
		PingMs  int64 `json:"ping_ms,omitempty"`
	} `json:"ping_event"`
}

// UserTranscriptMessage is the agent's transcription of the user's speech
type UserTranscriptMessage struct {
	BaseMessage
	UserTranscriptionEvent struct {
		UserTranscript string `json:"user_transcript"`
	} `json:"user_transcription_event"`
}

// AgentResponseMessage is the text of what the agent says
type AgentResponseMessage struct {
	BaseMessage
	AgentResponseEvent struct {
		AgentResponse string `json:"agent_response"`
	} `json:"agent_response_event"`
}

// AudioMessage carries one fragment of synthesized agent speech
type AudioMessage struct {
	BaseMessage
	AudioEvent struct {
		AudioBase64 string `json:"audio_base_64"`
		EventID     int64  `json:"event_id,omitempty"`
	} `json:"audio_event"`
}

// InitiationMetadataMessage is announced by the agent once the socket is open
type InitiationMetadataMessage struct {
	BaseMessage
	Event struct {
		ConversationID         string `json:"conversation_id"`
		AgentOutputAudioFormat string `json:"agent_output_audio_format"`
		UserInputAudioFormat   string `json:"user_input_audio_format"`
	} `json:"conversation_initiation_metadata_event"`
}

// InitiationClientData declares the client ready. Sent once at open.
type InitiationClientData struct {
	Type MessageType `json:"type"`
}

// PongMessage answers a ping
type PongMessage struct {
	Type    MessageType `json:"type"`
	EventID int64       `json:"event_id"`
}

// UserAudioChunk carries one captured microphone frame
type UserAudioChunk struct {
	UserAudioChunk string `json:"user_audio_chunk"`
}

// Inbound is the classified form of an inbound frame. Exactly one of the
// payload fields is meaningful, according to Type.
type Inbound struct {
	Type           MessageType
	PingEventID    int64
	UserTranscript string
	AgentResponse  string
	Audio          []byte
	Metadata       *InitiationMetadataMessage
}

// Decode parses and classifies an inbound frame. Unknown types decode
// successfully with only Type set; the caller ignores them.
func Decode(data []byte) (*Inbound, error) {
	var base BaseMessage
	if err := json.Unmarshal(data, &base); err != nil {
		return nil, fmt.Errorf("invalid JSON format: %w", err)
	}

	in := &Inbound{Type: base.Type}

	switch base.Type {
	case MessageTypePing:
		var msg PingMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			return nil, fmt.Errorf("invalid ping message: %w", err)
		}
		in.PingEventID = msg.PingEvent.EventID

	case MessageTypeUserTranscript:
		var msg UserTranscriptMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			return nil, fmt.Errorf("invalid user transcript message: %w", err)
		}
		in.UserTranscript = msg.UserTranscriptionEvent.UserTranscript

	case MessageTypeAgentResponse:
		var msg AgentResponseMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			return nil, fmt.Errorf("invalid agent response message: %w", err)
		}
		in.AgentResponse = msg.AgentResponseEvent.AgentResponse

	case MessageTypeAudio:
		var msg AudioMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			return nil, fmt.Errorf("invalid audio message: %w", err)
		}
		if msg.AudioEvent.AudioBase64 != "" {
			audio, err := base64.StdEncoding.DecodeString(msg.AudioEvent.AudioBase64)
			if err != nil {
				return nil, fmt.Errorf("invalid audio payload: %w", err)
			}
			in.Audio = audio
		}

	case MessageTypeInitiationMetadata:
		var msg InitiationMetadataMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			return nil, fmt.Errorf("invalid initiation metadata message: %w", err)
		}
		in.Metadata = &msg
	}

	return in, nil
}

// NewPong answers the ping with the given event id
func NewPong(eventID int64) *PongMessage {
	return &PongMessage{Type: MessageTypePong, EventID: eventID}
}

// NewInitiation creates the client-ready message
func NewInitiation() *InitiationClientData {
	return &InitiationClientData{Type: MessageTypeInitiationClientData}
}

// NewUserAudioChunk encodes a captured frame for the socket
func NewUserAudioChunk(frame []byte) *UserAudioChunk {
	return &UserAudioChunk{UserAudioChunk: base64.StdEncoding.EncodeToString(frame)}
}
