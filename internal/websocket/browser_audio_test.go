package websocket

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/satriahrh/convai-relay/domain/entities"
)

func TestBrowserCapture(t *testing.T) {
	capture := &BrowserCapture{}

	if capture.Deliver([]byte{1}) {
		t.Error("Deliver before Start should drop the frame")
	}

	var got [][]byte
	capture.Start(func(frame []byte) { got = append(got, frame) })
	if !capture.Deliver([]byte{2}) {
		t.Error("Deliver after Start should be accepted")
	}

	capture.Stop()
	if capture.Deliver([]byte{3}) {
		t.Error("Deliver after Stop should drop the frame")
	}

	if len(got) != 1 || got[0][0] != 2 {
		t.Errorf("Expected only frame 2 delivered, got %v", got)
	}
}

type sentCollector struct {
	ch chan interface{}
}

func (s *sentCollector) send(v interface{}) error {
	s.ch <- v
	return nil
}

func TestBrowserPlayerAck(t *testing.T) {
	sent := &sentCollector{ch: make(chan interface{}, 1)}
	player := NewBrowserPlayer(sent.send, make(chan struct{}), time.Second)

	result := make(chan error, 1)
	go func() {
		result <- player.Play(context.Background(), entities.AudioFragment{ID: 7, Audio: []byte("a"), Format: "mp3"})
	}()

	msg := (<-sent.ch).(*AudioMessage)
	if msg.FragmentID != 7 {
		t.Fatalf("Expected fragment 7 to be sent, got %d", msg.FragmentID)
	}
	if player.Ack(8) {
		t.Error("Ack of an unknown fragment should be ignored")
	}
	if !player.Ack(7) {
		t.Error("Ack of the playing fragment should be accepted")
	}

	select {
	case err := <-result:
		if err != nil {
			t.Errorf("Expected successful playback, got %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Play did not return after ack")
	}
}

func TestBrowserPlayerFailures(t *testing.T) {
	tests := []struct {
		name    string
		send    func(interface{}) error
		setup   func(done chan struct{}, cancel context.CancelFunc)
		wantErr error
	}{
		{
			name:    "timeout",
			send:    func(interface{}) error { return nil },
			setup:   func(chan struct{}, context.CancelFunc) {},
			wantErr: errPlaybackTimeout,
		},
		{
			name:    "send buffer full",
			send:    func(interface{}) error { return errSendBufferFull },
			setup:   func(chan struct{}, context.CancelFunc) {},
			wantErr: errSendBufferFull,
		},
		{
			name:    "send after disconnect",
			send:    func(interface{}) error { return errClientGone },
			setup:   func(chan struct{}, context.CancelFunc) {},
			wantErr: errClientGone,
		},
		{
			name:    "client gone",
			send:    func(interface{}) error { return nil },
			setup:   func(done chan struct{}, _ context.CancelFunc) { close(done) },
			wantErr: errClientGone,
		},
		{
			name:    "cancelled",
			send:    func(interface{}) error { return nil },
			setup:   func(_ chan struct{}, cancel context.CancelFunc) { cancel() },
			wantErr: context.Canceled,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			done := make(chan struct{})
			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()
			tt.setup(done, cancel)

			player := NewBrowserPlayer(tt.send, done, 20*time.Millisecond)
			err := player.Play(ctx, entities.AudioFragment{ID: 1})
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Expected %v, got %v", tt.wantErr, err)
			}
		})
	}
}
