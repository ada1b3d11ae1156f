package entities

import "fmt"

// ConversationState is the lifecycle state of a live voice session
type ConversationState int

const (
	StateIdle ConversationState = iota
	StateConnecting
	StateActive
	StateClosing
)

func (s ConversationState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateConnecting:
		return "connecting"
	case StateActive:
		return "active"
	case StateClosing:
		return "closing"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// CanStart reports whether a new session may be started from this state
func (s ConversationState) CanStart() bool {
	return s == StateIdle
}

// IsLive reports whether the state owns a socket (pending or open)
func (s ConversationState) IsLive() bool {
	return s == StateConnecting || s == StateActive
}

// FragmentSource tells where an audio fragment came from
type FragmentSource string

const (
	FragmentSourceAgent FragmentSource = "agent"
	FragmentSourceTTS   FragmentSource = "tts"
)

// Audio formats understood by the players.
const (
	FormatPCM16000 = "pcm_16000"
	FormatMP3      = "mp3"
)

// AudioFragment is an opaque encoded audio payload. The sequencer assigns
// ID in arrival order; fragments are consumed exactly once.
type AudioFragment struct {
	ID     uint64         `json:"id"`
	Audio  []byte         `json:"-"`
	Format string         `json:"format"`
	Source FragmentSource `json:"source"`
}

// SessionMetadata is what the agent announces right after the socket opens
type SessionMetadata struct {
	ConversationID    string `json:"conversation_id"`
	AgentOutputFormat string `json:"agent_output_audio_format"`
	UserInputFormat   string `json:"user_input_audio_format"`
}
