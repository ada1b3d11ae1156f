package testutil

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

// FakeAgent is a websocket server speaking the agent protocol. After the
// client's first message it plays Script, then records everything else the
// client sends.
type FakeAgent struct {
	URL string

	server *httptest.Server
	script []string

	mu          sync.Mutex
	writeMu     sync.Mutex
	conn        *websocket.Conn
	received    []string
	connections int
}

// NewFakeAgent starts a fake agent that is shut down with the test
func NewFakeAgent(t testing.TB, script ...string) *FakeAgent {
	t.Helper()

	agent := &FakeAgent{script: script}
	upgrader := websocket.Upgrader{}

	agent.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		agent.mu.Lock()
		agent.conn = conn
		agent.connections++
		agent.mu.Unlock()

		first := true
		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				return
			}
			agent.mu.Lock()
			agent.received = append(agent.received, string(data))
			agent.mu.Unlock()

			if first {
				first = false
				for _, frame := range agent.script {
					if err := agent.write(conn, frame); err != nil {
						return
					}
				}
			}
		}
	}))
	t.Cleanup(agent.server.Close)

	agent.URL = "ws" + strings.TrimPrefix(agent.server.URL, "http")
	return agent
}

func (a *FakeAgent) write(conn *websocket.Conn, frame string) error {
	a.writeMu.Lock()
	defer a.writeMu.Unlock()
	return conn.WriteMessage(websocket.TextMessage, []byte(frame))
}

// Send pushes a frame on the current connection
func (a *FakeAgent) Send(frame string) error {
	a.mu.Lock()
	conn := a.conn
	a.mu.Unlock()
	if conn == nil {
		return websocket.ErrCloseSent
	}
	return a.write(conn, frame)
}

// Hangup closes the current connection from the server side
func (a *FakeAgent) Hangup() {
	a.mu.Lock()
	conn := a.conn
	a.mu.Unlock()
	if conn == nil {
		return
	}
	a.writeMu.Lock()
	conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, "agent hangup"),
		time.Now().Add(time.Second))
	a.writeMu.Unlock()
	conn.Close()
}

// Received returns every message the client sent, in order
func (a *FakeAgent) Received() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]string(nil), a.received...)
}

// Connections returns how many sockets were accepted
func (a *FakeAgent) Connections() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.connections
}
