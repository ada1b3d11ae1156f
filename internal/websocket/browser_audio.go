package websocket

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/satriahrh/convai-relay/domain/entities"
	"github.com/satriahrh/convai-relay/domain/repositories"
)

var (
	errPlaybackTimeout = errors.New("browser did not acknowledge playback")
	errClientGone      = errors.New("browser disconnected")
	errSendBufferFull  = errors.New("browser send buffer full")
)

// BrowserCapture is the microphone of a connected browser. Frames arrive on
// the socket and are handed to the conversation only while capture is started.
type BrowserCapture struct {
	mu      sync.Mutex
	onFrame func([]byte)
}

var _ repositories.AudioCapture = (*BrowserCapture)(nil)

// Start implements AudioCapture interface
func (b *BrowserCapture) Start(onFrame func(frame []byte)) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.onFrame = onFrame
	return nil
}

// Stop implements AudioCapture interface
func (b *BrowserCapture) Stop() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.onFrame = nil
	return nil
}

// Deliver passes a frame from the browser on. It reports false when capture
// is stopped and the frame was dropped.
func (b *BrowserCapture) Deliver(frame []byte) bool {
	b.mu.Lock()
	onFrame := b.onFrame
	b.mu.Unlock()

	if onFrame == nil {
		return false
	}
	onFrame(frame)
	return true
}

// BrowserPlayer plays a fragment by sending it to the browser and waiting for
// its playback_done acknowledgement.
type BrowserPlayer struct {
	send    func(v interface{}) error
	done    <-chan struct{}
	timeout time.Duration

	mu      sync.Mutex
	waiting map[uint64]chan struct{}
}

var _ repositories.AudioPlayer = (*BrowserPlayer)(nil)

// NewBrowserPlayer creates a player. send queues a message for the browser;
// done is closed when the browser goes away.
func NewBrowserPlayer(send func(v interface{}) error, done <-chan struct{}, timeout time.Duration) *BrowserPlayer {
	return &BrowserPlayer{
		send:    send,
		done:    done,
		timeout: timeout,
		waiting: make(map[uint64]chan struct{}),
	}
}

// Play implements AudioPlayer interface
func (p *BrowserPlayer) Play(ctx context.Context, fragment entities.AudioFragment) error {
	ack := make(chan struct{})
	p.mu.Lock()
	p.waiting[fragment.ID] = ack
	p.mu.Unlock()

	defer func() {
		p.mu.Lock()
		delete(p.waiting, fragment.ID)
		p.mu.Unlock()
	}()

	if err := p.send(CreateAudioMessage(fragment)); err != nil {
		return err
	}

	timer := time.NewTimer(p.timeout)
	defer timer.Stop()

	select {
	case <-ack:
		return nil
	case <-timer.C:
		return errPlaybackTimeout
	case <-p.done:
		return errClientGone
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Ack marks a fragment as played. Unknown ids are ignored.
func (p *BrowserPlayer) Ack(fragmentID uint64) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	ack, ok := p.waiting[fragmentID]
	if !ok {
		return false
	}
	close(ack)
	delete(p.waiting, fragmentID)
	return true
}
