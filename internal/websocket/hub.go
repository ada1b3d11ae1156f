package websocket

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/satriahrh/convai-relay/domain/entities"
	"github.com/satriahrh/convai-relay/domain/repositories"
	"github.com/satriahrh/convai-relay/internal/metrics"
	"github.com/satriahrh/convai-relay/internal/playback"
	"github.com/satriahrh/convai-relay/usecase"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer.
	maxMessageSize = 512 * 1024 // 512KB for audio chunks

	sendBufferSize = 256
)

// Options tune the relay
type Options struct {
	AllowedOrigin      string        // "*" or empty accepts any origin
	PlaybackAckTimeout time.Duration // how long a fragment may play in the browser
	SynthesisFormat    string        // format requested by the text fallback
}

// Hub maintains the set of connected browsers. Each browser owns one
// conversation that runs on the server with the real credential.
type Hub struct {
	// Registered clients.
	clients map[string]*Client

	// Register requests from the clients.
	register chan *Client

	// Unregister requests from clients.
	unregister chan *Client

	// Closed when Run returns.
	done chan struct{}

	// Mutex for thread-safe access to clients map
	mu sync.RWMutex

	signedURLs repositories.SignedURLProvider
	tts        repositories.TextToSpeech
	dialer     repositories.AgentDialer
	options    Options
	upgrader   websocket.Upgrader
	metrics    *metrics.Metrics

	logger *zap.Logger
}

// NewHub creates a new WebSocket hub
func NewHub(
	signedURLs repositories.SignedURLProvider,
	tts repositories.TextToSpeech,
	dialer repositories.AgentDialer,
	options Options,
	m *metrics.Metrics,
	logger *zap.Logger,
) *Hub {
	if options.PlaybackAckTimeout <= 0 {
		options.PlaybackAckTimeout = 30 * time.Second
	}

	h := &Hub{
		clients:    make(map[string]*Client),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		done:       make(chan struct{}),
		signedURLs: signedURLs,
		tts:        tts,
		dialer:     dialer,
		options:    options,
		metrics:    m,
		logger:     logger,
	}
	h.upgrader = websocket.Upgrader{
		CheckOrigin:     h.checkOrigin,
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
	}
	return h
}

func (h *Hub) checkOrigin(r *http.Request) bool {
	allowed := h.options.AllowedOrigin
	if allowed == "" || allowed == "*" {
		return true
	}
	origin := r.Header.Get("Origin")
	if origin == "" || origin == allowed {
		return true
	}
	h.logger.Warn("WebSocket origin rejected", zap.String("origin", origin))
	return false
}

// Run starts the hub's main loop. Connected browsers are closed when ctx ends.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)

	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			h.clients[client.id] = client
			h.mu.Unlock()
			h.metrics.RecordSessionStart()
			h.logger.Info("Client registered", zap.String("clientID", client.id))

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client.id]; ok {
				delete(h.clients, client.id)
				h.metrics.RecordSessionEnd()
			}
			h.mu.Unlock()
			h.logger.Info("Client unregistered", zap.String("clientID", client.id))

		case <-ctx.Done():
			h.mu.Lock()
			for _, client := range h.clients {
				client.close()
			}
			h.mu.Unlock()
			h.logger.Info("Hub stopped")
			return
		}
	}
}

// ClientCount returns the number of connected browsers
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

type WriteData struct {
	// MessageType is the type of the websocket message.
	// Expect websocket.TextMessage or websocket.BinaryMessage
	Type    int
	Payload []byte
}

// Client is a middleman between the websocket connection and its conversation.
type Client struct {
	hub *Hub

	// The websocket connection.
	conn *websocket.Conn

	// Buffered channel of outbound messages.
	send chan WriteData

	// Closed when the client goes away.
	done      chan struct{}
	closeOnce sync.Once

	id     string
	logger *zap.Logger

	validator    *MessageValidator
	capture      *BrowserCapture
	player       *BrowserPlayer
	sequencer    *playback.Sequencer
	conversation *usecase.ConversationService
	cancel       context.CancelFunc
	stopped      chan struct{}

	// loop-owned view used to build state messages
	state     entities.ConversationState
	recording bool
}

// HandleWebSocket upgrades an authenticated request and starts the client's
// conversation.
func HandleWebSocket(hub *Hub, c echo.Context) error {
	conn, err := hub.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		hub.logger.Error("WebSocket upgrade failed", zap.Error(err))
		return err
	}

	client := hub.newClient(conn)
	select {
	case hub.register <- client:
	case <-hub.done:
		client.close()
		return nil
	}

	// Allow collection of memory referenced by the caller by doing all work in
	// new goroutines.
	go client.writePump()
	go client.readPump()

	return nil
}

func (h *Hub) newClient(conn *websocket.Conn) *Client {
	id := uuid.NewString()
	logger := h.logger.With(zap.String("clientID", id))

	client := &Client{
		hub:       h,
		conn:      conn,
		send:      make(chan WriteData, sendBufferSize),
		done:      make(chan struct{}),
		id:        id,
		logger:    logger,
		validator: NewMessageValidator(),
		capture:   &BrowserCapture{},
		stopped:   make(chan struct{}),
	}
	client.player = NewBrowserPlayer(client.sendJSON, client.done, h.options.PlaybackAckTimeout)

	client.sequencer = playback.NewSequencer(client.player, logger)
	client.sequencer.OnFinished = func(fragment entities.AudioFragment, err error) {
		h.metrics.RecordFragment(string(fragment.Source), err)
	}

	client.conversation = usecase.NewConversationService(
		h.signedURLs, h.dialer, client.capture, h.tts, client.sequencer, logger)
	client.conversation.SetSynthesisFormat(h.options.SynthesisFormat)
	client.conversation.SetCallbacks(usecase.Callbacks{
		OnMessage: func(message entities.Message) {
			client.sendJSONWait(CreateChatMessage(message))
		},
		OnState: func(state entities.ConversationState) {
			client.state = state
			client.sendJSONWait(CreateStateMessage(client.state, client.recording))
		},
		OnRecording: func(recording bool) {
			client.recording = recording
			client.sendJSONWait(CreateStateMessage(client.state, client.recording))
		},
	})

	ctx, cancel := context.WithCancel(context.Background())
	client.cancel = cancel
	go func() {
		defer close(client.stopped)
		client.conversation.Run(ctx)
	}()

	return client
}

// close ends the conversation; writePump then closes the connection. Safe to
// call repeatedly.
func (c *Client) close() {
	c.closeOnce.Do(func() {
		close(c.done)
		c.cancel()
		c.sequencer.Close()
	})
}

// sendJSON queues a message for the browser without waiting. It fails with
// errClientGone once the client is gone and errSendBufferFull when the
// buffer is full.
func (c *Client) sendJSON(v interface{}) error {
	return c.queue(v, false)
}

// sendJSONWait queues a message the browser must not miss, waiting for room
// in the buffer until the client goes away.
func (c *Client) sendJSONWait(v interface{}) error {
	return c.queue(v, true)
}

func (c *Client) queue(v interface{}, wait bool) error {
	payload, err := json.Marshal(v)
	if err != nil {
		c.logger.Error("Failed to marshal message", zap.Error(err))
		return err
	}
	message := WriteData{Type: websocket.TextMessage, Payload: payload}

	select {
	case <-c.done:
		return errClientGone
	default:
	}

	select {
	case c.send <- message:
		return nil
	case <-c.done:
		return errClientGone
	default:
	}

	if !wait {
		c.logger.Warn("Send buffer full, dropping message")
		return errSendBufferFull
	}

	select {
	case c.send <- message:
		return nil
	case <-c.done:
		return errClientGone
	}
}

// readPump pumps messages from the websocket connection to the conversation.
func (c *Client) readPump() {
	defer func() {
		c.close()
		<-c.stopped
		select {
		case c.hub.unregister <- c:
		case <-c.hub.done:
		}
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		messageType, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.logger.Warn("WebSocket error", zap.Error(err))
			}
			break
		}

		switch messageType {
		case websocket.TextMessage:
			c.processMessage(message)
		case websocket.BinaryMessage:
			c.capture.Deliver(message)
		default:
			c.logger.Warn("Received unknown message type", zap.Int("type", messageType))
		}
	}
}

// writePump pumps messages from the conversation to the websocket connection.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
		// release anything waiting on sendJSONWait
		c.close()
	}()

	for {
		select {
		case message := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(message.Type, message.Payload); err != nil {
				c.logger.Debug("Failed to write message", zap.Error(err))
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}

		case <-c.done:
			c.conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(writeWait))
			return
		}
	}
}

// processMessage dispatches a control message from the browser
func (c *Client) processMessage(message []byte) {
	msg, err := c.validator.ValidateMessage(message)
	if err != nil {
		code := ErrorCodeInvalidMessage
		if errors.Is(err, ErrInvalidAudio) {
			code = ErrorCodeInvalidAudio
		}
		c.logger.Warn("Rejected browser message", zap.String("code", code), zap.Error(err))
		c.sendJSON(CreateErrorMessage(code, err.Error()))
		return
	}

	switch m := msg.(type) {
	case *ControlMessage:
		if m.Type == MessageTypeStart {
			c.conversation.Start()
		} else {
			c.conversation.Stop()
		}
	case *TextMessage:
		c.conversation.SendText(m.Text)
	case *AudioChunkMessage:
		c.capture.Deliver(m.Frame())
	case *PlaybackDoneMessage:
		if !c.player.Ack(m.FragmentID) {
			c.logger.Debug("Ignoring acknowledgement for unknown fragment", zap.Uint64("fragmentID", m.FragmentID))
		}
	case *PingMessage:
		c.sendJSON(CreatePongMessage(m.Data))
	}
}
