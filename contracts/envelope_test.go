package contracts

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewEnvelope(t *testing.T) {
	t.Run("generates id and defaults", func(t *testing.T) {
		env := NewEnvelope("alice", "bob", Custom("greeting"), []byte("hi"))

		assert.NotEmpty(t, env.ID)
		assert.Equal(t, "alice", env.Sender)
		assert.Equal(t, "bob", env.Recipient)
		assert.Equal(t, PriorityNormal, env.Priority)
		assert.Equal(t, AtMostOnce, env.Guarantee)
		assert.Equal(t, StatusPending, env.Status)
		assert.False(t, env.CreatedAt.IsZero())
	})

	t.Run("correlation id defaults to own id", func(t *testing.T) {
		env := NewEnvelope("alice", "bob", Ping(), nil)
		assert.Equal(t, env.ID, env.CorrelationID)
	})

	t.Run("explicit correlation id is kept", func(t *testing.T) {
		env := NewEnvelope("alice", "bob", Ping(), nil, WithCorrelationID("corr-1"))
		assert.Equal(t, "corr-1", env.CorrelationID)
	})

	t.Run("expiry derived once from ttl", func(t *testing.T) {
		env := NewEnvelope("alice", "bob", Ping(), nil, WithTTL(60))
		assert.Equal(t, env.CreatedAt.Add(time.Minute), env.ExpiresAt)
	})

	t.Run("zero ttl never expires", func(t *testing.T) {
		env := NewEnvelope("alice", "bob", Ping(), nil)
		assert.True(t, env.ExpiresAt.IsZero())
		assert.False(t, env.IsExpiredAt(time.Now().Add(100*365*24*time.Hour)))
	})

	t.Run("requires ack implies at-least-once", func(t *testing.T) {
		env := NewEnvelope("alice", "bob", Custom("task"), nil, WithRequiresAck())
		assert.True(t, env.RequiresAck)
		assert.Equal(t, AtLeastOnce, env.Guarantee)
	})
}

func TestIsExpired(t *testing.T) {
	t.Run("past expiry is expired", func(t *testing.T) {
		env := NewEnvelope("alice", "bob", Ping(), nil, WithTTL(1))
		env.CreatedAt = time.Now().Add(-2 * time.Second)
		env.ExpiresAt = env.CreatedAt.Add(time.Second)

		assert.True(t, env.IsExpired())
	})

	t.Run("future expiry is not expired", func(t *testing.T) {
		env := NewEnvelope("alice", "bob", Ping(), nil, WithTTL(60))
		assert.False(t, env.IsExpired())
	})
}

func TestStatusTransitions(t *testing.T) {
	t.Run("legal forward path", func(t *testing.T) {
		env := NewEnvelope("alice", "bob", Custom("task"), nil)

		require.NoError(t, env.Transition(StatusProcessing))
		require.NoError(t, env.Transition(StatusRetry))
		require.NoError(t, env.Transition(StatusProcessing))
		require.NoError(t, env.Transition(StatusDelivered))
	})

	t.Run("terminal states reject transitions", func(t *testing.T) {
		env := NewEnvelope("alice", "bob", Custom("task"), nil)
		require.NoError(t, env.Transition(StatusProcessing))
		require.NoError(t, env.Transition(StatusDelivered))

		err := env.Transition(StatusRetry)
		assert.ErrorIs(t, err, ErrInvalidTransition)
		assert.Equal(t, StatusDelivered, env.Status)
	})

	t.Run("pending cannot jump to delivered", func(t *testing.T) {
		env := NewEnvelope("alice", "bob", Custom("task"), nil)
		assert.ErrorIs(t, env.Transition(StatusDelivered), ErrInvalidTransition)
	})

	t.Run("retry is bounded by caller not state machine", func(t *testing.T) {
		assert.True(t, StatusRetry.CanTransition(StatusFailed))
		assert.True(t, StatusProcessing.Terminal() == false)
		assert.True(t, StatusExpired.Terminal())
	})
}

func TestEnvelopeRoundTrip(t *testing.T) {
	env := NewEnvelope("alice", "bob", Custom("report.created"), []byte(`{"n":1}`),
		WithPriority(PriorityCritical),
		WithTTL(30),
		WithRequiresAck(),
		WithReplyTo("alice"),
		WithTopic("reports.*"),
	)
	env.RecordAttempt(time.Now().UTC(), false, assert.AnError)
	require.NoError(t, env.Transition(StatusProcessing))

	data, err := env.Marshal()
	require.NoError(t, err)

	decoded, err := UnmarshalEnvelope(data)
	require.NoError(t, err)

	assert.Equal(t, env.ID, decoded.ID)
	assert.True(t, env.CreatedAt.Equal(decoded.CreatedAt))
	assert.Equal(t, env.Sender, decoded.Sender)
	assert.Equal(t, env.Recipient, decoded.Recipient)
	assert.Equal(t, env.Kind, decoded.Kind)
	assert.Equal(t, env.Payload, decoded.Payload)
	assert.Equal(t, PriorityCritical, decoded.Priority)
	assert.Equal(t, env.CorrelationID, decoded.CorrelationID)
	assert.Equal(t, int64(30), decoded.TTLSeconds)
	assert.True(t, env.ExpiresAt.Equal(decoded.ExpiresAt))
	assert.True(t, decoded.RequiresAck)
	assert.Equal(t, AtLeastOnce, decoded.Guarantee)
	assert.Equal(t, StatusProcessing, decoded.Status)
	assert.Len(t, decoded.Attempts, 1)
	assert.Equal(t, assert.AnError.Error(), decoded.Attempts[0].Error)
}

func TestClone(t *testing.T) {
	env := NewEnvelope("alice", "bob", Custom("task"), []byte("data"))
	env.RecordAttempt(time.Now(), true, nil)

	dup := env.Clone()
	dup.Payload[0] = 'X'
	dup.Attempts[0].Success = false
	dup.RetryCount = 9

	assert.Equal(t, byte('d'), env.Payload[0])
	assert.True(t, env.Attempts[0].Success)
	assert.Zero(t, env.RetryCount)
}

func TestMarkAcknowledged(t *testing.T) {
	env := NewEnvelope("alice", "bob", Custom("task"), nil, WithRequiresAck())
	now := time.Now()
	env.MarkAcknowledged(now)

	assert.True(t, env.Acknowledged)
	assert.Equal(t, now, env.AckedAt)
}
