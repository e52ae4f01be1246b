package contracts

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKind(t *testing.T) {
	t.Run("control kinds", func(t *testing.T) {
		assert.True(t, Ping().IsControl())
		assert.True(t, Pong().IsControl())
		assert.True(t, Ack().IsControl())
		assert.False(t, Custom("task").IsControl())
	})

	t.Run("custom cannot shadow control names", func(t *testing.T) {
		assert.Equal(t, Ack(), Custom("ack"))
		assert.Equal(t, KindAck, Custom("ack").Tag())
	})

	t.Run("name", func(t *testing.T) {
		assert.Equal(t, "ping", Ping().Name())
		assert.Equal(t, "report.created", Custom("report.created").Name())
	})
}

func TestKindJSON(t *testing.T) {
	t.Run("control round trip", func(t *testing.T) {
		data, err := json.Marshal(Ack())
		require.NoError(t, err)
		assert.Equal(t, `"ack"`, string(data))

		var k Kind
		require.NoError(t, json.Unmarshal(data, &k))
		assert.Equal(t, Ack(), k)
	})

	t.Run("custom round trip", func(t *testing.T) {
		data, err := json.Marshal(Custom("report.created"))
		require.NoError(t, err)
		assert.Equal(t, `"custom:report.created"`, string(data))

		var k Kind
		require.NoError(t, json.Unmarshal(data, &k))
		assert.Equal(t, Custom("report.created"), k)
	})

	t.Run("unknown name rejected", func(t *testing.T) {
		var k Kind
		assert.Error(t, json.Unmarshal([]byte(`"bogus"`), &k))
	})
}

func TestNewAck(t *testing.T) {
	original := NewEnvelope("alice", "bob", Custom("task"), nil, WithRequiresAck())
	ack := NewAck(original, "bob")

	assert.Equal(t, KindAck, ack.Kind.Tag())
	assert.Equal(t, "bob", ack.Sender)
	assert.Equal(t, "alice", ack.Recipient)
	assert.Equal(t, original.ID, ack.CorrelationID)
}

func TestNewPong(t *testing.T) {
	t.Run("replies to reply-to when set", func(t *testing.T) {
		ping := NewEnvelope("alice", "bob", Ping(), nil, WithReplyTo("alice-inbox"))
		pong := NewPong(ping, "bob")

		assert.Equal(t, "alice-inbox", pong.Recipient)
		assert.Equal(t, ping.CorrelationID, pong.CorrelationID)
	})

	t.Run("falls back to sender", func(t *testing.T) {
		ping := NewEnvelope("alice", "bob", Ping(), nil)
		pong := NewPong(ping, "bob")
		assert.Equal(t, "alice", pong.Recipient)
	})
}

func TestNewReply(t *testing.T) {
	request := NewEnvelope("alice", "bob", Custom("question"), []byte("?"),
		WithReplyTo("alice"), WithPriority(PriorityHigh))
	reply := NewReply(request, "bob", Custom("answer"), []byte("!"))

	assert.Equal(t, "alice", reply.Recipient)
	assert.Equal(t, request.CorrelationID, reply.CorrelationID)
	assert.Equal(t, PriorityHigh, reply.Priority)
	assert.Equal(t, []byte("!"), reply.Payload)
}
