package tcp

import (
	"fmt"
	"net"
	"sync"
	"time"
)

// lineChannel adapts a TCP connection to the session.Channel interface.
// Frames are written synchronously, one JSON object per line; the first
// failed write marks the channel unwritable for good.
type lineChannel struct {
	conn         net.Conn
	writeTimeout time.Duration

	mu     sync.Mutex
	closed bool
}

func newLineChannel(conn net.Conn, writeTimeout time.Duration) *lineChannel {
	return &lineChannel{
		conn:         conn,
		writeTimeout: writeTimeout,
	}
}

// Send writes one newline-terminated frame to the socket.
//
// Postcondition: The frame was written, or the channel is marked closed
// and an error is returned.
func (c *lineChannel) Send(data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return fmt.Errorf("channel %s is closed", c.conn.RemoteAddr())
	}

	if c.writeTimeout > 0 {
		_ = c.conn.SetWriteDeadline(time.Now().Add(c.writeTimeout))
	}

	frame := make([]byte, 0, len(data)+1)
	frame = append(frame, data...)
	frame = append(frame, '\n')
	if _, err := c.conn.Write(frame); err != nil {
		c.closed = true
		return fmt.Errorf("writing to %s: %w", c.conn.RemoteAddr(), err)
	}
	return nil
}

// IsOpen reports whether the channel still accepts frames.
func (c *lineChannel) IsOpen() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return !c.closed
}

// Close marks the channel unwritable. Safe to call more than once; the
// underlying connection is closed by the acceptor.
func (c *lineChannel) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
}
