package protocol

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeJoin(t *testing.T) {
	cmd, err := Decode([]byte(`{"type":"JOIN","payload":{"name":"Dana"}}`))
	require.NoError(t, err)
	assert.Equal(t, Join{Name: "Dana"}, cmd)
}

func TestDecodeJoinKeepsSurroundingWhitespace(t *testing.T) {
	// Trimming is the registry's job; the codec only rejects names that
	// trim to nothing.
	cmd, err := Decode([]byte(`{"type":"JOIN","payload":{"name":"  Dana "}}`))
	require.NoError(t, err)
	assert.Equal(t, Join{Name: "  Dana "}, cmd)
}

func TestDecodeStreamChunk(t *testing.T) {
	cmd, err := Decode([]byte(`{"type":"STREAM_CHUNK","payload":{"chunk":"hel"}}`))
	require.NoError(t, err)
	assert.Equal(t, StreamChunk{Chunk: "hel"}, cmd)
}

func TestDecodeStreamChunkEmptyIsValid(t *testing.T) {
	// An empty chunk means "draft cleared" and must decode.
	cmd, err := Decode([]byte(`{"type":"STREAM_CHUNK","payload":{"chunk":""}}`))
	require.NoError(t, err)
	assert.Equal(t, StreamChunk{Chunk: ""}, cmd)
}

func TestDecodeCommitMessage(t *testing.T) {
	cmd, err := Decode([]byte(`{"type":"COMMIT_MESSAGE","payload":{"text":"hi"}}`))
	require.NoError(t, err)
	assert.Equal(t, CommitMessage{Text: "hi"}, cmd)
}

func TestDecodeRejectsInvalidEnvelopes(t *testing.T) {
	cases := []struct {
		name string
		raw  string
	}{
		{"malformed json", `{"type":"JOIN"`},
		{"not an object", `"JOIN"`},
		{"missing type", `{"payload":{"name":"Dana"}}`},
		{"unknown type", `{"type":"SHOUT","payload":{"text":"hi"}}`},
		{"join missing payload", `{"type":"JOIN"}`},
		{"join missing name", `{"type":"JOIN","payload":{}}`},
		{"join mistyped name", `{"type":"JOIN","payload":{"name":7}}`},
		{"join blank name", `{"type":"JOIN","payload":{"name":"   "}}`},
		{"chunk missing field", `{"type":"STREAM_CHUNK","payload":{}}`},
		{"chunk mistyped field", `{"type":"STREAM_CHUNK","payload":{"chunk":[1]}}`},
		{"commit missing text", `{"type":"COMMIT_MESSAGE","payload":{}}`},
		{"commit mistyped text", `{"type":"COMMIT_MESSAGE","payload":{"text":false}}`},
		{"commit blank text", `{"type":"COMMIT_MESSAGE","payload":{"text":"   "}}`},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cmd, err := Decode([]byte(tc.raw))
			assert.Nil(t, cmd)
			assert.ErrorIs(t, err, ErrInvalidEnvelope)
		})
	}
}

func TestEncodeSystem(t *testing.T) {
	data, err := Encode(System{Text: "Dana is now chatting."})
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"SYSTEM","payload":{"text":"Dana is now chatting."}}`, string(data))
}

func TestEncodeStream(t *testing.T) {
	data, err := Encode(Stream{Author: "Guest-01", Chunk: "hel", Timestamp: 1700000000123})
	require.NoError(t, err)
	assert.JSONEq(t,
		`{"type":"STREAM_CHUNK","payload":{"author":"Guest-01","chunk":"hel","timestamp":1700000000123}}`,
		string(data))
}

func TestEncodeStreamEmptyChunk(t *testing.T) {
	data, err := Encode(Stream{Author: "Guest-01", Chunk: "", Timestamp: 42})
	require.NoError(t, err)
	assert.JSONEq(t,
		`{"type":"STREAM_CHUNK","payload":{"author":"Guest-01","chunk":"","timestamp":42}}`,
		string(data))
}

func TestEncodeCommitted(t *testing.T) {
	data, err := Encode(Committed{Author: "Dana", Text: "hi", Timestamp: 99})
	require.NoError(t, err)
	assert.JSONEq(t,
		`{"type":"MESSAGE_COMMITTED","payload":{"author":"Dana","text":"hi","timestamp":99}}`,
		string(data))
}

func TestEncodeParticipants(t *testing.T) {
	data, err := Encode(Participants{Count: 3})
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"PARTICIPANTS","payload":{"count":3}}`, string(data))
}

func TestEncodeNilEvent(t *testing.T) {
	_, err := Encode(nil)
	assert.Error(t, err)
}

func TestEncodedStreamRoundTripsThroughClientShape(t *testing.T) {
	// STREAM_CHUNK shares its discriminator with the client command, so
	// the encoded server event must decode as a valid chunk command.
	data, err := Encode(Stream{Author: "Guest-01", Chunk: "hello", Timestamp: 7})
	require.NoError(t, err)

	cmd, err := Decode(data)
	require.NoError(t, err)
	assert.Equal(t, StreamChunk{Chunk: "hello"}, cmd)
}
