package tcp

import (
	"bufio"
	"encoding/json"
	"fmt"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/draftwire/relay/internal/chat/broadcast"
	"github.com/draftwire/relay/internal/chat/room"
	"github.com/draftwire/relay/internal/chat/session"
	"github.com/draftwire/relay/internal/config"
)

type frame struct {
	Type    string         `json:"type"`
	Payload map[string]any `json:"payload"`
}

func startAcceptor(t *testing.T) string {
	t.Helper()

	cfg := config.TCPConfig{
		Enabled:      true,
		Host:         "127.0.0.1",
		Port:         0,
		ReadTimeout:  2 * time.Second,
		WriteTimeout: time.Second,
	}
	logger := zap.NewNop()
	ctrl := room.NewController(session.NewRegistry(), broadcast.NewPublisher(logger), room.WallClock, logger)
	a := NewAcceptor(cfg, ctrl, logger)

	go func() {
		if err := a.Start(); err != nil {
			t.Errorf("acceptor start: %v", err)
		}
	}()
	t.Cleanup(a.Stop)

	deadline := time.After(2 * time.Second)
	for a.Addr() == "" {
		select {
		case <-deadline:
			t.Fatal("acceptor did not start in time")
		default:
			time.Sleep(10 * time.Millisecond)
		}
	}
	return a.Addr()
}

type lineClient struct {
	conn   net.Conn
	reader *bufio.Reader
}

func dialLine(t *testing.T, addr string) *lineClient {
	t.Helper()
	conn, err := net.Dial("tcp", addr)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return &lineClient{conn: conn, reader: bufio.NewReader(conn)}
}

func (c *lineClient) send(t *testing.T, line string) {
	t.Helper()
	_, err := fmt.Fprintf(c.conn, "%s\n", line)
	require.NoError(t, err)
}

func (c *lineClient) read(t *testing.T) frame {
	t.Helper()
	require.NoError(t, c.conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	line, err := c.reader.ReadBytes('\n')
	require.NoError(t, err)
	var fr frame
	require.NoError(t, json.Unmarshal(line, &fr))
	return fr
}

func TestLineClientWelcomeSequence(t *testing.T) {
	addr := startAcceptor(t)
	client := dialLine(t, addr)

	welcome := client.read(t)
	assert.Equal(t, "SYSTEM", welcome.Type)
	assert.Equal(t, "Welcome, Guest-01, start typing to stream.", welcome.Payload["text"])

	count := client.read(t)
	assert.Equal(t, "PARTICIPANTS", count.Type)
	assert.EqualValues(t, 1, count.Payload["count"])
}

func TestLineClientsShareTheRoom(t *testing.T) {
	addr := startAcceptor(t)

	alice := dialLine(t, addr)
	alice.read(t)
	alice.read(t)

	bob := dialLine(t, addr)
	bob.read(t)
	bob.read(t)
	grown := alice.read(t)
	assert.EqualValues(t, 2, grown.Payload["count"])

	alice.send(t, `{"type":"JOIN","payload":{"name":"Alice"}}`)

	for _, c := range []*lineClient{alice, bob} {
		system := c.read(t)
		assert.Equal(t, "SYSTEM", system.Type)
		assert.Equal(t, "Alice is now chatting.", system.Payload["text"])
		count := c.read(t)
		assert.Equal(t, "PARTICIPANTS", count.Type)
		assert.EqualValues(t, 2, count.Payload["count"])
	}

	alice.send(t, `{"type":"COMMIT_MESSAGE","payload":{"text":"hi"}}`)
	for _, c := range []*lineClient{alice, bob} {
		committed := c.read(t)
		assert.Equal(t, "MESSAGE_COMMITTED", committed.Type)
		assert.Equal(t, "Alice", committed.Payload["author"])
		assert.Equal(t, "hi", committed.Payload["text"])
	}
}

func TestBlankAndInvalidLinesIgnored(t *testing.T) {
	addr := startAcceptor(t)
	client := dialLine(t, addr)
	client.read(t)
	client.read(t)

	client.send(t, "")
	client.send(t, "not json")
	client.send(t, `{"type":"STREAM_CHUNK","payload":{"chunk":"ok"}}`)

	chunk := client.read(t)
	assert.Equal(t, "STREAM_CHUNK", chunk.Type)
	assert.Equal(t, "ok", chunk.Payload["chunk"])
}

func TestLineClientDisconnectAnnounced(t *testing.T) {
	addr := startAcceptor(t)

	alice := dialLine(t, addr)
	alice.read(t)
	alice.read(t)

	bob := dialLine(t, addr)
	bob.read(t)
	bob.read(t)
	alice.read(t) // participants 2

	require.NoError(t, bob.conn.Close())

	left := alice.read(t)
	assert.Equal(t, "SYSTEM", left.Type)
	assert.Equal(t, "Guest-02 left the chat.", left.Payload["text"])
	count := alice.read(t)
	assert.EqualValues(t, 1, count.Payload["count"])
}
