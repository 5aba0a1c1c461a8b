// Package room implements the relay's command-driven state machine: it
// owns the session registry and decides which events each connect, client
// command, and disconnect fans out.
package room

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/draftwire/relay/internal/chat/broadcast"
	"github.com/draftwire/relay/internal/chat/protocol"
	"github.com/draftwire/relay/internal/chat/session"
)

// Clock supplies broadcast timestamps in milliseconds since epoch.
type Clock func() int64

// WallClock is the production Clock.
func WallClock() int64 {
	return time.Now().UnixMilli()
}

// Controller orchestrates the single room. Gateways call Connect, Handle,
// and Disconnect from concurrent connection goroutines; a controller-level
// mutex serializes transitions so each transition's broadcasts reach the
// wire as an uninterrupted pair.
type Controller struct {
	mu        sync.Mutex
	registry  *session.Registry
	publisher *broadcast.Publisher
	clock     Clock
	logger    *zap.Logger
}

// NewController creates a Controller over the given registry.
//
// Precondition: registry, publisher, clock, and logger must be non-nil.
func NewController(registry *session.Registry, publisher *broadcast.Publisher, clock Clock, logger *zap.Logger) *Controller {
	return &Controller{
		registry:  registry,
		publisher: publisher,
		clock:     clock,
		logger:    logger,
	}
}

// Connect registers a new channel, welcomes the session privately, and
// announces the new participant count to everyone.
//
// Postcondition: Returns the created session; its ID tags all subsequent
// commands from the same connection.
func (c *Controller) Connect(ch session.Channel) *session.Session {
	c.mu.Lock()
	defer c.mu.Unlock()

	sess := c.registry.Add(ch)

	welcome := fmt.Sprintf("Welcome, %s, start typing to stream.", sess.Name)
	c.publisher.Publish(protocol.System{Text: welcome}, []session.Channel{ch})
	c.publishParticipants()

	c.logger.Info("session connected",
		zap.String("session_id", sess.ID),
		zap.String("name", sess.Name),
		zap.Int("participants", c.registry.Count()),
	)
	return sess
}

// Handle processes one decoded client command on behalf of sessionID.
// Commands referencing an unknown session (a disconnect racing a late
// in-flight message) are dropped silently.
func (c *Controller) Handle(sessionID string, cmd protocol.Command) {
	c.mu.Lock()
	defer c.mu.Unlock()

	sess, ok := c.registry.Get(sessionID)
	if !ok {
		c.logger.Debug("dropping command for unknown session",
			zap.String("session_id", sessionID),
		)
		return
	}

	switch cmd := cmd.(type) {
	case protocol.Join:
		c.join(sess, cmd.Name)
	case protocol.StreamChunk:
		c.stream(sess, cmd.Chunk)
	case protocol.CommitMessage:
		c.commit(sess, cmd.Text)
	}
}

// Disconnect removes the session and announces the departure. Calling it
// again for the same ID is a no-op, so error-then-close on one connection
// produces a single leave broadcast.
func (c *Controller) Disconnect(sessionID string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	sess, ok := c.registry.Remove(sessionID)
	if !ok {
		return
	}

	c.broadcastSystem(fmt.Sprintf("%s left the chat.", sess.Name))
	c.publishParticipants()

	c.logger.Info("session disconnected",
		zap.String("session_id", sess.ID),
		zap.String("name", sess.Name),
		zap.Int("participants", c.registry.Count()),
	)
}

// join applies a rename. An unchanged or rejected name stays silent; an
// applied one is announced together with a participant-count refresh.
func (c *Controller) join(sess *session.Session, requested string) {
	name, applied := c.registry.Rename(sess.ID, requested)
	if !applied {
		return
	}
	c.broadcastSystem(fmt.Sprintf("%s is now chatting.", name))
	c.publishParticipants()
}

// stream broadcasts the sender's full draft snapshot to every session,
// the sender included. An empty chunk still broadcasts: receivers treat
// it as "this author's draft is cleared", not a no-op.
func (c *Controller) stream(sess *session.Session, chunk string) {
	c.publisher.Publish(protocol.Stream{
		Author:    sess.Name,
		Chunk:     chunk,
		Timestamp: c.clock(),
	}, c.registry.Channels())
}

// commit broadcasts a finalized message. Whitespace-only text is dropped
// without a broadcast.
func (c *Controller) commit(sess *session.Session, text string) {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return
	}
	c.publisher.Publish(protocol.Committed{
		Author:    sess.Name,
		Text:      trimmed,
		Timestamp: c.clock(),
	}, c.registry.Channels())
}

func (c *Controller) broadcastSystem(text string) {
	c.publisher.Publish(protocol.System{Text: text}, c.registry.Channels())
}

func (c *Controller) publishParticipants() {
	c.publisher.Publish(protocol.Participants{Count: c.registry.Count()}, c.registry.Channels())
}
