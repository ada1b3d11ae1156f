package testutil

import (
	"bytes"
	"context"
	"errors"
	"sync"
	"time"

	"github.com/satriahrh/convai-relay/domain/entities"
	"github.com/satriahrh/convai-relay/domain/repositories"
)

// MockSignedURLProvider returns URL (or Err) and counts calls.
type MockSignedURLProvider struct {
	mu sync.Mutex

	URL   string
	Err   error
	Delay time.Duration
	Calls int
}

func (m *MockSignedURLProvider) SignedURL(ctx context.Context) (string, error) {
	m.mu.Lock()
	m.Calls++
	url, err, delay := m.URL, m.Err, m.Delay
	m.mu.Unlock()

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	return url, err
}

func (m *MockSignedURLProvider) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.Calls
}

// MockTextToSpeech returns Audio (or Err) for every request and records the texts.
type MockTextToSpeech struct {
	mu sync.Mutex

	Audio []byte
	Err   error
	Texts []string
}

func (m *MockTextToSpeech) Synthesize(_ context.Context, text string, format string) (repositories.Synthesis, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Texts = append(m.Texts, text)
	if m.Err != nil {
		return repositories.Synthesis{}, m.Err
	}
	if format == "" {
		format = entities.FormatMP3
	}
	return repositories.Synthesis{Audio: append([]byte(nil), m.Audio...), Format: format}, nil
}

// FakeCapture is a controllable microphone. Emit delivers a frame to the
// registered callback only while started, like a real device.
type FakeCapture struct {
	mu sync.Mutex

	StartErr   error
	onFrame    func([]byte)
	StartCalls int
	StopCalls  int
}

func (f *FakeCapture) Start(onFrame func(frame []byte)) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.StartCalls++
	if f.StartErr != nil {
		return f.StartErr
	}
	f.onFrame = onFrame
	return nil
}

func (f *FakeCapture) Stop() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.StopCalls++
	f.onFrame = nil
	return nil
}

// Running reports whether the capture is started
func (f *FakeCapture) Running() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.onFrame != nil
}

// Counts returns the number of Start and Stop calls
func (f *FakeCapture) Counts() (starts, stops int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.StartCalls, f.StopCalls
}

// Emit pushes a frame as the device would. It reports whether a callback
// was registered.
func (f *FakeCapture) Emit(frame []byte) bool {
	f.mu.Lock()
	onFrame := f.onFrame
	f.mu.Unlock()
	if onFrame == nil {
		return false
	}
	onFrame(frame)
	return true
}

// RecordingPlayer records the order of played fragments and the maximum
// observed overlap. Fragments whose audio equals FailOn fail.
type RecordingPlayer struct {
	mu sync.Mutex

	Delay     func(fragment entities.AudioFragment) time.Duration
	FailOn    [][]byte
	Played    [][]byte
	Failed    [][]byte
	active    int
	MaxActive int
}

var errInjected = errors.New("injected playback failure")

func (p *RecordingPlayer) Play(ctx context.Context, fragment entities.AudioFragment) error {
	p.mu.Lock()
	p.active++
	if p.active > p.MaxActive {
		p.MaxActive = p.active
	}
	delay := time.Duration(0)
	if p.Delay != nil {
		delay = p.Delay(fragment)
	}
	fail := false
	for _, f := range p.FailOn {
		if bytes.Equal(f, fragment.Audio) {
			fail = true
		}
	}
	p.mu.Unlock()

	defer func() {
		p.mu.Lock()
		p.active--
		p.mu.Unlock()
	}()

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if fail {
		p.Failed = append(p.Failed, fragment.Audio)
		return errInjected
	}
	p.Played = append(p.Played, fragment.Audio)
	return nil
}

// Snapshot returns copies of the played and failed lists and the max overlap
func (p *RecordingPlayer) Snapshot() (played, failed [][]byte, maxActive int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([][]byte(nil), p.Played...), append([][]byte(nil), p.Failed...), p.MaxActive
}

// Eventually polls cond until it holds or timeout elapses.
func Eventually(timeout time.Duration, cond func() bool) bool {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return true
		}
		time.Sleep(5 * time.Millisecond)
	}
	return cond()
}
