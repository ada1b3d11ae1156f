package repositories

import "context"

// Synthesis is the result of a text-to-speech call
type Synthesis struct {
	Audio  []byte
	Format string
}

// TextToSpeech abstracts speech synthesis for the text fallback path
type TextToSpeech interface {
	// Synthesize converts text into a single audio payload in the requested format.
	// An empty format selects the implementation default.
	Synthesize(ctx context.Context, text string, format string) (Synthesis, error)
}
