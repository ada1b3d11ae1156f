package audio

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"github.com/ebitengine/oto/v3"
	"go.uber.org/zap"

	"github.com/satriahrh/convai-relay/domain/entities"
)

const drainPoll = 20 * time.Millisecond

// SpeakerPlayer renders pcm_16000 fragments on the default output device.
// Compressed formats are rejected; request pcm_16000 from the synthesizer.
type SpeakerPlayer struct {
	context *oto.Context
	logger  *zap.Logger
}

// NewSpeakerPlayer opens the output device. oto allows a single context per
// process, so create one player and share it.
func NewSpeakerPlayer(logger *zap.Logger) (*SpeakerPlayer, error) {
	ctx, ready, err := oto.NewContext(&oto.NewContextOptions{
		SampleRate:   SampleRate,
		ChannelCount: Channels,
		Format:       oto.FormatSignedInt16LE,
		// 100ms at 16kHz mono 16-bit
		BufferSize: 100 * time.Millisecond,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to init speaker: %w", err)
	}
	<-ready
	return &SpeakerPlayer{context: ctx, logger: logger}, nil
}

// Play blocks until the fragment has drained or ctx is cancelled.
func (s *SpeakerPlayer) Play(ctx context.Context, fragment entities.AudioFragment) error {
	if err := checkPlayable(fragment); err != nil {
		return err
	}
	if s.context == nil {
		return fmt.Errorf("speaker is not initialized")
	}

	player := s.context.NewPlayer(bytes.NewReader(fragment.Audio))
	defer player.Close()
	player.Play()

	ticker := time.NewTicker(drainPoll)
	defer ticker.Stop()
	for player.IsPlaying() {
		select {
		case <-ctx.Done():
			player.Pause()
			return ctx.Err()
		case <-ticker.C:
		}
	}

	if err := player.Err(); err != nil {
		return fmt.Errorf("speaker playback: %w", err)
	}
	s.logger.Debug("Fragment played", zap.Uint64("fragmentID", fragment.ID))
	return nil
}

func checkPlayable(fragment entities.AudioFragment) error {
	format := fragment.Format
	if format == "" {
		format = entities.FormatPCM16000
	}
	if format != entities.FormatPCM16000 {
		return fmt.Errorf("unsupported audio format %q", format)
	}
	if len(fragment.Audio)%2 != 0 {
		return fmt.Errorf("pcm payload has odd length %d", len(fragment.Audio))
	}
	return nil
}
