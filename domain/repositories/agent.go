package repositories

import "context"

// AgentChannelHandler receives inbound traffic for a dialed agent channel.
// OnFrame is invoked sequentially in arrival order; OnClose is invoked once,
// after the last OnFrame.
type AgentChannelHandler interface {
	OnFrame(data []byte)
	OnClose(err error)
}

// AgentChannel is an open, bidirectional connection to the remote agent
type AgentChannel interface {
	// Send queues a JSON message for delivery. It never blocks on the network.
	Send(message interface{}) error
	// Close closes the connection. It is safe to call more than once.
	Close() error
}

// AgentDialer opens agent channels
type AgentDialer interface {
	Dial(ctx context.Context, url string, handler AgentChannelHandler) (AgentChannel, error)
}
