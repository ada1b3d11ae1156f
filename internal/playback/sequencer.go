// Package playback serializes audio fragments into strictly ordered,
// non-overlapping playback.
package playback

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/satriahrh/convai-relay/domain"
	"github.com/satriahrh/convai-relay/domain/entities"
	"github.com/satriahrh/convai-relay/domain/repositories"
)

// Sequencer is a FIFO of pending fragments plus a playing flag. At most one
// fragment plays at a time and fragments play in enqueue order. A failed
// fragment is skipped, never retried.
type Sequencer struct {
	player repositories.AudioPlayer
	logger *zap.Logger

	mu      sync.Mutex
	queue   []entities.AudioFragment
	playing bool
	closed  bool
	nextID  uint64
	idle    chan struct{}

	ctx    context.Context
	cancel context.CancelFunc

	// OnFinished, when set, is called after each fragment completes with the
	// playback error (nil on success). It runs on the playback goroutine.
	OnFinished func(fragment entities.AudioFragment, err error)
}

// NewSequencer creates a sequencer that renders through player
func NewSequencer(player repositories.AudioPlayer, logger *zap.Logger) *Sequencer {
	ctx, cancel := context.WithCancel(context.Background())
	idle := make(chan struct{})
	close(idle)
	return &Sequencer{
		player: player,
		logger: logger,
		queue:  make([]entities.AudioFragment, 0),
		idle:   idle,
		ctx:    ctx,
		cancel: cancel,
	}
}

// Enqueue appends a fragment to the tail and starts playback when nothing
// is playing. It returns the assigned fragment id, or false once closed.
func (s *Sequencer) Enqueue(fragment entities.AudioFragment) (uint64, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return 0, false
	}

	s.nextID++
	fragment.ID = s.nextID
	s.queue = append(s.queue, fragment)

	if !s.playing {
		s.idle = make(chan struct{})
		s.playNextLocked()
	}
	return fragment.ID, true
}

// playNextLocked pops the head and starts it. Callers hold s.mu.
func (s *Sequencer) playNextLocked() {
	if len(s.queue) == 0 || s.closed {
		s.playing = false
		close(s.idle)
		return
	}

	head := s.queue[0]
	s.queue[0] = entities.AudioFragment{}
	s.queue = s.queue[1:]
	s.playing = true

	go s.play(head)
}

func (s *Sequencer) play(fragment entities.AudioFragment) {
	err := s.player.Play(s.ctx, fragment)
	if err != nil {
		err = &domain.PlaybackError{FragmentID: fragment.ID, Err: err}
		s.logger.Warn("Skipping fragment after playback failure",
			zap.Uint64("fragmentID", fragment.ID),
			zap.String("source", string(fragment.Source)),
			zap.Error(err))
	} else {
		s.logger.Debug("Fragment played",
			zap.Uint64("fragmentID", fragment.ID),
			zap.Int("bytes", len(fragment.Audio)))
	}

	if s.OnFinished != nil {
		s.OnFinished(fragment, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.playing = false
	s.playNextLocked()
}

// Pending returns the number of fragments waiting behind the current one
func (s *Sequencer) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.queue)
}

// Playing reports whether a fragment is currently playing
func (s *Sequencer) Playing() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.playing
}

// WaitIdle blocks until the queue is drained and nothing is playing
func (s *Sequencer) WaitIdle(ctx context.Context) error {
	s.mu.Lock()
	idle := s.idle
	s.mu.Unlock()

	select {
	case <-idle:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close drops pending fragments, cancels the fragment in flight and rejects
// further enqueues. It is safe to call more than once.
func (s *Sequencer) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	dropped := len(s.queue)
	s.queue = nil
	s.mu.Unlock()

	s.cancel()
	if dropped > 0 {
		s.logger.Info("Dropped pending fragments on close", zap.Int("dropped", dropped))
	}
}
