// Package broadcast delivers server events to sets of session channels.
package broadcast

import (
	"go.uber.org/zap"

	"github.com/draftwire/relay/internal/chat/protocol"
	"github.com/draftwire/relay/internal/chat/session"
)

// Publisher encodes an event once and writes it to every target channel.
// Delivery is best-effort: unwritable targets are skipped, never retried,
// and a single failed target does not affect the rest.
type Publisher struct {
	logger *zap.Logger
}

// NewPublisher creates a Publisher.
//
// Precondition: logger must be non-nil.
func NewPublisher(logger *zap.Logger) *Publisher {
	return &Publisher{logger: logger}
}

// Publish encodes ev and sends it to each target.
//
// Postcondition: Every open target received the frame or was skipped;
// per-target write failures never propagate to the caller.
func (p *Publisher) Publish(ev protocol.Event, targets []session.Channel) {
	data, err := protocol.Encode(ev)
	if err != nil {
		p.logger.Error("encoding event for broadcast", zap.Error(err))
		return
	}

	skipped := 0
	for _, ch := range targets {
		if !ch.IsOpen() {
			skipped++
			continue
		}
		if err := ch.Send(data); err != nil {
			skipped++
			p.logger.Debug("skipping unwritable channel", zap.Error(err))
		}
	}

	if skipped > 0 {
		p.logger.Debug("broadcast delivered partially",
			zap.Int("targets", len(targets)),
			zap.Int("skipped", skipped),
		)
	}
}
