package convai

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

type recordingHandler struct {
	mu     sync.Mutex
	frames []string
	closed chan error
}

func newRecordingHandler() *recordingHandler {
	return &recordingHandler{closed: make(chan error, 2)}
}

func (h *recordingHandler) OnFrame(data []byte) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.frames = append(h.frames, string(data))
}

func (h *recordingHandler) OnClose(err error) {
	h.closed <- err
}

func (h *recordingHandler) Frames() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]string(nil), h.frames...)
}

func startServer(t *testing.T, serve func(conn *websocket.Conn)) string {
	t.Helper()
	upgrader := websocket.Upgrader{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("Upgrade failed: %v", err)
			return
		}
		defer conn.Close()
		serve(conn)
	}))
	t.Cleanup(server.Close)
	return "ws" + strings.TrimPrefix(server.URL, "http")
}

func TestChannelDeliversFramesInOrder(t *testing.T) {
	url := startServer(t, func(conn *websocket.Conn) {
		for _, msg := range []string{`{"n":1}`, `{"n":2}`, `{"n":3}`} {
			conn.WriteMessage(websocket.TextMessage, []byte(msg))
		}
		conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, "bye"))
		time.Sleep(50 * time.Millisecond)
	})

	handler := newRecordingHandler()
	_, err := NewDialer(nil, zap.NewNop()).Dial(context.Background(), url, handler)
	if err != nil {
		t.Fatalf("Dial failed: %v", err)
	}

	select {
	case err := <-handler.closed:
		if err != nil {
			t.Errorf("Expected clean close, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("OnClose not called")
	}

	frames := handler.Frames()
	want := []string{`{"n":1}`, `{"n":2}`, `{"n":3}`}
	if len(frames) != len(want) {
		t.Fatalf("Expected %d frames, got %d", len(want), len(frames))
	}
	for i := range want {
		if frames[i] != want[i] {
			t.Errorf("Frame %d: expected %s, got %s", i, want[i], frames[i])
		}
	}
}

func TestChannelSendAndClose(t *testing.T) {
	received := make(chan string, 4)
	url := startServer(t, func(conn *websocket.Conn) {
		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				return
			}
			received <- string(data)
		}
	})

	handler := newRecordingHandler()
	channel, err := NewDialer(nil, zap.NewNop()).Dial(context.Background(), url, handler)
	if err != nil {
		t.Fatalf("Dial failed: %v", err)
	}

	if err := channel.Send(NewInitiation()); err != nil {
		t.Fatalf("Send failed: %v", err)
	}

	select {
	case msg := <-received:
		if msg != `{"type":"conversation_initiation_client_data"}` {
			t.Errorf("Unexpected message %s", msg)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Message not received within timeout")
	}

	if err := channel.Close(); err != nil {
		t.Errorf("Close failed: %v", err)
	}
	channel.Close()

	if err := channel.Send(NewPong(1)); !errors.Is(err, ErrChannelClosed) {
		t.Errorf("Expected ErrChannelClosed, got %v", err)
	}

	select {
	case err := <-handler.closed:
		if err != nil {
			t.Errorf("Local close should report nil, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("OnClose not called after local close")
	}

	select {
	case <-handler.closed:
		t.Error("OnClose called more than once")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestDialFailure(t *testing.T) {
	_, err := NewDialer(nil, zap.NewNop()).Dial(context.Background(), "ws://127.0.0.1:1/nope", newRecordingHandler())
	if err == nil {
		t.Fatal("Expected dial error")
	}
}
