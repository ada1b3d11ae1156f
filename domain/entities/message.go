package entities

import (
	"sync"
	"time"
)

// MessageRole represents the role of a message sender
type MessageRole string

const (
	MessageRoleUser  MessageRole = "user"
	MessageRoleAgent MessageRole = "agent"
)

// Notices appended to the transcript by the text fallback and by failed starts.
const (
	AgentAudioPlaceholder = "[audio]"
	TextFailureNotice     = "Sorry, I could not process that."
	StartFailureNotice    = "Sorry, I could not start the conversation."
)

// Message is a single transcript entry. It is never mutated after creation.
type Message struct {
	Role      MessageRole `json:"role"`
	Text      string      `json:"text"`
	Timestamp time.Time   `json:"timestamp"`
}

// NewMessage creates a message stamped with the current time
func NewMessage(role MessageRole, text string) Message {
	return Message{
		Role:      role,
		Text:      text,
		Timestamp: time.Now(),
	}
}

// Transcript is the append-only, ordered message log of a conversation.
// Appends happen on a single goroutine; readers may snapshot concurrently.
type Transcript struct {
	mu       sync.RWMutex
	messages []Message
}

// NewTranscript creates an empty transcript
func NewTranscript() *Transcript {
	return &Transcript{
		messages: make([]Message, 0),
	}
}

// Append adds a message to the end of the log
func (t *Transcript) Append(message Message) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.messages = append(t.messages, message)
}

// Snapshot returns a copy of the log in arrival order
func (t *Transcript) Snapshot() []Message {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]Message, len(t.messages))
	copy(out, t.messages)
	return out
}

// Len returns the number of messages
func (t *Transcript) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.messages)
}

// Last returns the most recent message, if any
func (t *Transcript) Last() (Message, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if len(t.messages) == 0 {
		return Message{}, false
	}
	return t.messages[len(t.messages)-1], true
}
