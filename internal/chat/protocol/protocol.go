// Package protocol defines the JSON envelope wire format spoken between
// clients and the relay: typed client commands in, typed server events out.
// The codec is stateless; transports hand it one complete message at a time.
package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// Envelope type discriminators on the wire.
const (
	TypeJoin             = "JOIN"
	TypeStreamChunk      = "STREAM_CHUNK"
	TypeCommitMessage    = "COMMIT_MESSAGE"
	TypeSystem           = "SYSTEM"
	TypeMessageCommitted = "MESSAGE_COMMITTED"
	TypeParticipants     = "PARTICIPANTS"
)

// ErrInvalidEnvelope is wrapped by every Decode failure: malformed JSON,
// missing or unknown type discriminator, or invalid payload fields.
var ErrInvalidEnvelope = errors.New("invalid envelope")

// Command is a validated client command. The set of implementations is
// closed; dispatch sites switch over Join, StreamChunk, and CommitMessage.
type Command interface {
	isCommand()
}

// Join requests a display-name change for the sending session.
type Join struct {
	Name string
}

// StreamChunk carries a full snapshot of the sender's current draft.
// An empty Chunk is meaningful: it signals the draft was cleared.
type StreamChunk struct {
	Chunk string
}

// CommitMessage finalizes a message for broadcast.
type CommitMessage struct {
	Text string
}

func (Join) isCommand()          {}
func (StreamChunk) isCommand()   {}
func (CommitMessage) isCommand() {}

// Event is a server event bound for every connected client. The set of
// implementations is closed; Encode handles each exhaustively.
type Event interface {
	isEvent()
}

// System is an informational notice (welcome, join, leave, rename).
type System struct {
	Text string
}

// Stream is the broadcast form of a participant's live draft snapshot.
type Stream struct {
	Author    string
	Chunk     string
	Timestamp int64
}

// Committed is the broadcast form of a finalized message.
type Committed struct {
	Author    string
	Text      string
	Timestamp int64
}

// Participants reports the current participant count.
type Participants struct {
	Count int
}

func (System) isEvent()       {}
func (Stream) isEvent()       {}
func (Committed) isEvent()    {}
func (Participants) isEvent() {}

type envelope struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// Payload shapes use pointer fields so a missing key is distinguishable
// from an explicit empty string.
type joinPayload struct {
	Name *string `json:"name"`
}

type chunkPayload struct {
	Chunk *string `json:"chunk"`
}

type commitPayload struct {
	Text *string `json:"text"`
}

// Decode parses raw bytes into a validated client Command.
//
// Postcondition: Returns a Command, or an error wrapping ErrInvalidEnvelope.
// Callers drop failed decodes silently; the protocol has no error replies.
func Decode(raw []byte) (Command, error) {
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidEnvelope, err)
	}

	switch env.Type {
	case TypeJoin:
		var p joinPayload
		if err := json.Unmarshal(env.Payload, &p); err != nil {
			return nil, fmt.Errorf("%w: join payload: %v", ErrInvalidEnvelope, err)
		}
		if p.Name == nil || strings.TrimSpace(*p.Name) == "" {
			return nil, fmt.Errorf("%w: join requires a non-empty name", ErrInvalidEnvelope)
		}
		return Join{Name: *p.Name}, nil

	case TypeStreamChunk:
		var p chunkPayload
		if err := json.Unmarshal(env.Payload, &p); err != nil {
			return nil, fmt.Errorf("%w: stream chunk payload: %v", ErrInvalidEnvelope, err)
		}
		// Empty chunk is valid: it means "draft cleared".
		if p.Chunk == nil {
			return nil, fmt.Errorf("%w: stream chunk requires a chunk field", ErrInvalidEnvelope)
		}
		return StreamChunk{Chunk: *p.Chunk}, nil

	case TypeCommitMessage:
		var p commitPayload
		if err := json.Unmarshal(env.Payload, &p); err != nil {
			return nil, fmt.Errorf("%w: commit payload: %v", ErrInvalidEnvelope, err)
		}
		if p.Text == nil || strings.TrimSpace(*p.Text) == "" {
			return nil, fmt.Errorf("%w: commit requires non-empty text", ErrInvalidEnvelope)
		}
		return CommitMessage{Text: *p.Text}, nil

	case "":
		return nil, fmt.Errorf("%w: missing type", ErrInvalidEnvelope)
	default:
		return nil, fmt.Errorf("%w: unknown type %q", ErrInvalidEnvelope, env.Type)
	}
}

type systemPayload struct {
	Text string `json:"text"`
}

type streamPayload struct {
	Author    string `json:"author"`
	Chunk     string `json:"chunk"`
	Timestamp int64  `json:"timestamp"`
}

type committedPayload struct {
	Author    string `json:"author"`
	Text      string `json:"text"`
	Timestamp int64  `json:"timestamp"`
}

type participantsPayload struct {
	Count int `json:"count"`
}

// Encode serializes a server Event into its wire envelope.
//
// Postcondition: Returns one JSON object, or an error for a nil event.
func Encode(ev Event) ([]byte, error) {
	var env struct {
		Type    string `json:"type"`
		Payload any    `json:"payload"`
	}

	switch e := ev.(type) {
	case System:
		env.Type = TypeSystem
		env.Payload = systemPayload{Text: e.Text}
	case Stream:
		env.Type = TypeStreamChunk
		env.Payload = streamPayload{Author: e.Author, Chunk: e.Chunk, Timestamp: e.Timestamp}
	case Committed:
		env.Type = TypeMessageCommitted
		env.Payload = committedPayload{Author: e.Author, Text: e.Text, Timestamp: e.Timestamp}
	case Participants:
		env.Type = TypeParticipants
		env.Payload = participantsPayload{Count: e.Count}
	default:
		return nil, fmt.Errorf("encoding event: unsupported type %T", ev)
	}

	data, err := json.Marshal(env)
	if err != nil {
		return nil, fmt.Errorf("encoding %s envelope: %w", env.Type, err)
	}
	return data, nil
}
