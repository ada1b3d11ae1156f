package repositories

import (
	"context"

	"github.com/satriahrh/convai-relay/domain/entities"
)

// AudioCapture wraps an input device that produces encoded audio frames
type AudioCapture interface {
	// Start begins delivering frames to onFrame at the device cadence
	Start(onFrame func(frame []byte)) error
	// Stop ends delivery and releases the device
	Stop() error
}

// AudioPlayer renders one fragment. Play blocks until playback completes,
// fails, or ctx is cancelled.
type AudioPlayer interface {
	Play(ctx context.Context, fragment entities.AudioFragment) error
}
