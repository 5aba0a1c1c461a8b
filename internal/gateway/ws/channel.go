package ws

import (
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// channel adapts a WebSocket connection to the session.Channel interface.
// Sends enqueue onto a buffered queue drained by a single write pump, so
// fan-out never blocks on a slow socket; a full queue makes the channel
// unwritable for that frame.
type channel struct {
	conn         *websocket.Conn
	send         chan []byte
	writeTimeout time.Duration

	mu     sync.Mutex
	closed bool
}

func newChannel(conn *websocket.Conn, bufferSize int, writeTimeout time.Duration) *channel {
	if bufferSize <= 0 {
		bufferSize = 64
	}
	return &channel{
		conn:         conn,
		send:         make(chan []byte, bufferSize),
		writeTimeout: writeTimeout,
	}
}

// Send enqueues one frame for the write pump.
//
// Postcondition: The frame is queued, or an error if the channel is
// closed or its queue is full.
func (c *channel) Send(data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return fmt.Errorf("channel %s is closed", c.conn.RemoteAddr())
	}
	select {
	case c.send <- data:
		return nil
	default:
		return fmt.Errorf("channel %s send queue full", c.conn.RemoteAddr())
	}
}

// IsOpen reports whether the channel still accepts frames.
func (c *channel) IsOpen() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return !c.closed
}

// Close marks the channel unwritable and releases the write pump.
// Safe to call more than once.
func (c *channel) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.closed {
		c.closed = true
		close(c.send)
	}
}

func (c *channel) markClosed() {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
}

// writePump drains the send queue onto the socket. It exits when the
// queue is closed (clean shutdown) or a write fails, closing the
// underlying connection either way.
func (c *channel) writePump() {
	defer c.conn.Close()

	for data := range c.send {
		if c.writeTimeout > 0 {
			_ = c.conn.SetWriteDeadline(time.Now().Add(c.writeTimeout))
		}
		if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
			c.markClosed()
			return
		}
	}

	_ = c.conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
}
