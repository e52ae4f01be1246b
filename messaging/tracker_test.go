package messaging

import (
	"context"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meshify/agentbus-go/contracts"
)

func TestDeliveryTrackerAcks(t *testing.T) {
	t.Run("resolve removes pending entry", func(t *testing.T) {
		tracker := NewDeliveryTracker()
		env := contracts.NewEnvelope("a", "b", contracts.Custom("task"), nil, contracts.WithRequiresAck())
		require.NoError(t, env.Transition(contracts.StatusProcessing))

		tracker.TrackAck(env)
		assert.Equal(t, 1, tracker.PendingAckCount())

		resolved, ok := tracker.ResolveAck(env.ID)
		require.True(t, ok)
		assert.True(t, resolved.Acknowledged)
		assert.Equal(t, contracts.StatusDelivered, resolved.Status)
		assert.Equal(t, 0, tracker.PendingAckCount())
	})

	t.Run("unknown id returns false", func(t *testing.T) {
		tracker := NewDeliveryTracker()
		_, ok := tracker.ResolveAck("missing")
		assert.False(t, ok)
	})

	t.Run("drop removes without acknowledging", func(t *testing.T) {
		tracker := NewDeliveryTracker()
		env := contracts.NewEnvelope("a", "b", contracts.Custom("task"), nil, contracts.WithRequiresAck())

		tracker.TrackAck(env)
		tracker.DropAck(env.ID)

		assert.Equal(t, 0, tracker.PendingAckCount())
		assert.False(t, env.Acknowledged)
	})
}

func TestDeliveryTrackerOverdueAcks(t *testing.T) {
	mock := clock.NewMock()
	tracker := NewDeliveryTracker(
		WithTrackerClock(mock),
		WithAckTimeout(30*time.Second),
	)

	fresh := contracts.NewEnvelope("a", "b", contracts.Custom("task"), nil, contracts.WithRequiresAck())
	tracker.TrackAck(fresh)

	mock.Add(20 * time.Second)
	assert.Empty(t, tracker.OverdueAcks())

	mock.Add(11 * time.Second)
	overdue := tracker.OverdueAcks()
	require.Len(t, overdue, 1)
	assert.Equal(t, fresh.ID, overdue[0].ID)
	assert.Equal(t, 0, tracker.PendingAckCount())
}

func TestReplyFutures(t *testing.T) {
	t.Run("resolved future delivers reply", func(t *testing.T) {
		tracker := NewDeliveryTracker()
		request := contracts.NewEnvelope("a", "b", contracts.Custom("question"), nil)
		future := tracker.RegisterReply(request.CorrelationID)

		reply := contracts.NewReply(request, "b", contracts.Custom("answer"), []byte("42"))
		require.True(t, tracker.ResolveReply(reply))

		got, err := future.Wait(context.Background(), time.Second)
		require.NoError(t, err)
		assert.Equal(t, []byte("42"), got.Payload)
		assert.Equal(t, 0, tracker.PendingReplyCount())
	})

	t.Run("timeout returns ErrRequestTimeout", func(t *testing.T) {
		tracker := NewDeliveryTracker()
		future := tracker.RegisterReply("corr-1")

		_, err := future.Wait(context.Background(), 20*time.Millisecond)
		assert.ErrorIs(t, err, contracts.ErrRequestTimeout)

		tracker.DropReply("corr-1")
		assert.Equal(t, 0, tracker.PendingReplyCount())
	})

	t.Run("reply after timeout is not delivered", func(t *testing.T) {
		tracker := NewDeliveryTracker()
		request := contracts.NewEnvelope("a", "b", contracts.Custom("question"), nil)
		future := tracker.RegisterReply(request.CorrelationID)

		_, err := future.Wait(context.Background(), 10*time.Millisecond)
		require.ErrorIs(t, err, contracts.ErrRequestTimeout)

		reply := contracts.NewReply(request, "b", contracts.Custom("answer"), nil)
		assert.False(t, tracker.ResolveReply(reply))
	})

	t.Run("context cancellation unblocks wait", func(t *testing.T) {
		tracker := NewDeliveryTracker()
		future := tracker.RegisterReply("corr-2")

		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		_, err := future.Wait(ctx, time.Minute)
		assert.ErrorIs(t, err, context.Canceled)
	})

	t.Run("unknown correlation id is ignored", func(t *testing.T) {
		tracker := NewDeliveryTracker()
		reply := contracts.NewEnvelope("b", "a", contracts.Custom("answer"), nil,
			contracts.WithCorrelationID("nobody-waiting"))
		assert.False(t, tracker.ResolveReply(reply))
	})
}
