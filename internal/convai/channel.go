package convai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/satriahrh/convai-relay/domain"
	"github.com/satriahrh/convai-relay/domain/repositories"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Maximum message size allowed from peer.
	maxMessageSize = 1024 * 1024 // agent audio events can be large

	// Outbound frames queued before Send reports backpressure.
	sendBufferSize = 256
)

// ErrChannelClosed is returned by Send after the channel has been closed
var ErrChannelClosed = errors.New("agent channel closed")

// Dialer opens agent channels over gorilla websockets
type Dialer struct {
	dialer *websocket.Dialer
	logger *zap.Logger
}

var _ repositories.AgentDialer = (*Dialer)(nil)

// NewDialer creates a dialer. A nil websocket.Dialer selects the default one.
func NewDialer(dialer *websocket.Dialer, logger *zap.Logger) *Dialer {
	if dialer == nil {
		dialer = websocket.DefaultDialer
	}
	return &Dialer{dialer: dialer, logger: logger}
}

// Dial connects to url and starts the read and write pumps. The returned
// channel is open: the handshake has completed.
func (d *Dialer) Dial(ctx context.Context, url string, handler repositories.AgentChannelHandler) (repositories.AgentChannel, error) {
	conn, _, err := d.dialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, &domain.TransportError{Op: "dial", Err: err}
	}

	c := &Channel{
		conn:    conn,
		send:    make(chan []byte, sendBufferSize),
		done:    make(chan struct{}),
		handler: handler,
		logger:  d.logger,
	}

	go c.writePump()
	go c.readPump()

	return c, nil
}

// Channel is one live agent websocket. Writes are serialized through the
// write pump; inbound frames are handed to the handler by the read pump.
type Channel struct {
	conn    *websocket.Conn
	send    chan []byte
	done    chan struct{}
	handler repositories.AgentChannelHandler
	logger  *zap.Logger

	closeOnce sync.Once
	mu        sync.Mutex
	closed    bool
}

var _ repositories.AgentChannel = (*Channel)(nil)

// Send marshals message and queues it for the write pump
func (c *Channel) Send(message interface{}) error {
	payload, err := json.Marshal(message)
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}

	select {
	case <-c.done:
		return ErrChannelClosed
	default:
	}

	select {
	case c.send <- payload:
		return nil
	case <-c.done:
		return ErrChannelClosed
	default:
		return &domain.TransportError{Op: "send", Err: errors.New("send buffer full")}
	}
}

// Close sends a normal closure frame and closes the connection
func (c *Channel) Close() error {
	var err error
	c.closeOnce.Do(func() {
		c.mu.Lock()
		c.closed = true
		c.mu.Unlock()

		close(c.done)
		_ = c.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(writeWait))
		err = c.conn.Close()
	})
	return err
}

func (c *Channel) closedLocally() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// readPump pumps frames from the websocket connection to the handler.
func (c *Channel) readPump() {
	var readErr error
	defer func() {
		c.Close()
		c.handler.OnClose(readErr)
	}()

	c.conn.SetReadLimit(maxMessageSize)

	for {
		messageType, message, err := c.conn.ReadMessage()
		if err != nil {
			switch {
			case c.closedLocally():
			case websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway):
				c.logger.Info("Agent closed the connection", zap.Error(err))
			default:
				c.logger.Warn("Agent connection error", zap.Error(err))
				readErr = &domain.TransportError{Op: "read", Err: err}
			}
			return
		}

		if messageType != websocket.TextMessage {
			c.logger.Warn("Received unexpected message type", zap.Int("type", messageType))
			continue
		}

		c.handler.OnFrame(message)
	}
}

// writePump pumps queued messages to the websocket connection.
func (c *Channel) writePump() {
	for {
		select {
		case message := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				c.logger.Error("Failed to write message", zap.Error(err))
				c.conn.Close()
				return
			}

		case <-c.done:
			return
		}
	}
}
