package playback

import (
	"bytes"
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/satriahrh/convai-relay/domain"
	"github.com/satriahrh/convai-relay/domain/entities"
	"github.com/satriahrh/convai-relay/internal/testutil"
)

func fragment(b byte) entities.AudioFragment {
	return entities.AudioFragment{Audio: []byte{b}, Format: entities.FormatPCM16000, Source: entities.FragmentSourceAgent}
}

func waitIdle(t *testing.T, s *Sequencer) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := s.WaitIdle(ctx); err != nil {
		t.Fatalf("Sequencer did not drain: %v", err)
	}
}

func TestSequencerPlaysInOrderWithoutOverlap(t *testing.T) {
	// Earlier fragments are slower so any concurrency would reorder them.
	player := &testutil.RecordingPlayer{
		Delay: func(f entities.AudioFragment) time.Duration {
			return time.Duration(10-int(f.Audio[0])) * 3 * time.Millisecond
		},
	}
	sequencer := NewSequencer(player, zap.NewNop())

	for i := byte(1); i <= 8; i++ {
		if _, ok := sequencer.Enqueue(fragment(i)); !ok {
			t.Fatalf("Enqueue %d rejected", i)
		}
	}
	waitIdle(t, sequencer)

	played, failed, maxActive := player.Snapshot()
	if len(failed) != 0 {
		t.Errorf("Expected no failures, got %d", len(failed))
	}
	if maxActive != 1 {
		t.Errorf("Expected at most one fragment playing, observed %d", maxActive)
	}
	if len(played) != 8 {
		t.Fatalf("Expected 8 played fragments, got %d", len(played))
	}
	for i, audio := range played {
		if audio[0] != byte(i+1) {
			t.Errorf("Position %d: expected fragment %d, got %d", i, i+1, audio[0])
		}
	}
}

func TestSequencerSkipsFailedFragments(t *testing.T) {
	player := &testutil.RecordingPlayer{FailOn: [][]byte{{2}, {4}}}
	sequencer := NewSequencer(player, zap.NewNop())

	var mu sync.Mutex
	var playbackErrs []error
	sequencer.OnFinished = func(f entities.AudioFragment, err error) {
		if err != nil {
			mu.Lock()
			playbackErrs = append(playbackErrs, err)
			mu.Unlock()
		}
	}

	for i := byte(1); i <= 5; i++ {
		sequencer.Enqueue(fragment(i))
	}
	waitIdle(t, sequencer)

	played, failed, _ := player.Snapshot()
	if !bytes.Equal(bytes.Join(played, nil), []byte{1, 3, 5}) {
		t.Errorf("Expected fragments 1,3,5 played, got %v", played)
	}
	if !bytes.Equal(bytes.Join(failed, nil), []byte{2, 4}) {
		t.Errorf("Expected fragments 2,4 failed, got %v", failed)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(playbackErrs) != 2 {
		t.Fatalf("Expected 2 playback errors, got %d", len(playbackErrs))
	}
	var playbackErr *domain.PlaybackError
	if !errors.As(playbackErrs[0], &playbackErr) || playbackErr.FragmentID != 2 {
		t.Errorf("Expected PlaybackError for fragment 2, got %v", playbackErrs[0])
	}
}

func TestSequencerAssignsArrivalIDs(t *testing.T) {
	sequencer := NewSequencer(&testutil.RecordingPlayer{}, zap.NewNop())

	first, _ := sequencer.Enqueue(fragment(1))
	second, _ := sequencer.Enqueue(fragment(2))
	if first != 1 || second != 2 {
		t.Errorf("Expected ids 1 and 2, got %d and %d", first, second)
	}
	waitIdle(t, sequencer)
}

func TestSequencerResumesAfterDrain(t *testing.T) {
	player := &testutil.RecordingPlayer{}
	sequencer := NewSequencer(player, zap.NewNop())

	sequencer.Enqueue(fragment(1))
	waitIdle(t, sequencer)
	if sequencer.Playing() {
		t.Error("Sequencer should not be playing after drain")
	}

	sequencer.Enqueue(fragment(2))
	waitIdle(t, sequencer)

	played, _, _ := player.Snapshot()
	if len(played) != 2 {
		t.Errorf("Expected 2 played fragments, got %d", len(played))
	}
}

func TestSequencerClose(t *testing.T) {
	player := &testutil.RecordingPlayer{
		Delay: func(entities.AudioFragment) time.Duration { return time.Second },
	}
	sequencer := NewSequencer(player, zap.NewNop())

	sequencer.Enqueue(fragment(1))
	sequencer.Enqueue(fragment(2))
	sequencer.Enqueue(fragment(3))

	if pending := sequencer.Pending(); pending != 2 {
		t.Errorf("Expected 2 pending fragments, got %d", pending)
	}

	sequencer.Close()
	sequencer.Close()
	waitIdle(t, sequencer)

	if _, ok := sequencer.Enqueue(fragment(4)); ok {
		t.Error("Enqueue after Close should be rejected")
	}

	played, _, _ := player.Snapshot()
	if len(played) != 0 {
		t.Errorf("Expected nothing played after close, got %d", len(played))
	}
}
