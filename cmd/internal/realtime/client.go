package realtime

import (
	"sync"
)

// Client is the outbound half of one websocket session.
//
// Design notes:
// - queue is never closed, so concurrent publishers cannot panic on send.
// - done is closed once by Close and stops the writer.
// - Send never blocks: a full queue drops the payload.
type Client struct {
	SessionID string

	queue     chan []byte
	done      chan struct{}
	closeOnce sync.Once
}

// NewClient constructs a Client with a bounded send queue.
func NewClient(sessionID string, sendQueueSize int) *Client {
	if sendQueueSize <= 0 {
		sendQueueSize = wsDefaultSendQueueSize
	}
	return &Client{
		SessionID: sessionID,
		queue:     make(chan []byte, sendQueueSize),
		done:      make(chan struct{}),
	}
}

// Send enqueues a serialized frame. It reports false when the client is closing or the queue is full.
func (c *Client) Send(b []byte) bool {
	if c == nil {
		return false
	}
	select {
	case <-c.done:
		return false
	default:
	}
	select {
	case <-c.done:
		return false
	case c.queue <- b:
		return true
	default:
		return false
	}
}

// Queue exposes pending frames to the writer goroutine.
func (c *Client) Queue() <-chan []byte { return c.queue }

// Done returns a channel that is closed when the client is shutting down.
func (c *Client) Done() <-chan struct{} {
	if c == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return c.done
}

// Close signals the writer to stop (idempotent).
func (c *Client) Close() {
	if c == nil {
		return
	}
	c.closeOnce.Do(func() {
		close(c.done)
	})
}
