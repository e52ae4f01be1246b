package messaging

import (
	"fmt"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meshify/agentbus-go/contracts"
)

func TestDeadLetterLogAdd(t *testing.T) {
	t.Run("snapshot is isolated from later mutation", func(t *testing.T) {
		log := NewDeadLetterLog()
		env := contracts.NewEnvelope("a", "b", contracts.Custom("task"), []byte("p"))
		log.Add(env, ReasonExpired)

		env.RetryCount = 99
		entries := log.Entries(0)
		require.Len(t, entries, 1)
		assert.Zero(t, entries[0].Envelope.RetryCount)
		assert.Equal(t, ReasonExpired, entries[0].Reason)
	})

	t.Run("entry limit drops oldest", func(t *testing.T) {
		log := NewDeadLetterLog(WithDeadLetterLimit(3))
		for i := 0; i < 5; i++ {
			log.Add(contracts.NewEnvelope("a", "b", contracts.Custom(fmt.Sprintf("m%d", i)), nil), ReasonExpired)
		}

		assert.Equal(t, 3, log.Len())
		entries := log.Entries(0)
		assert.Equal(t, "m4", entries[0].Envelope.Kind.Name())
		assert.Equal(t, "m2", entries[2].Envelope.Kind.Name())
	})
}

func TestDeadLetterLogEntries(t *testing.T) {
	log := NewDeadLetterLog()
	first := contracts.NewEnvelope("a", "b", contracts.Custom("first"), nil)
	second := contracts.NewEnvelope("a", "b", contracts.Custom("second"), nil)
	log.Add(first, ReasonMaxRetriesExceeded)
	log.Add(second, ReasonMaxRetriesExceeded)

	t.Run("newest first", func(t *testing.T) {
		entries := log.Entries(0)
		require.Len(t, entries, 2)
		assert.Equal(t, second.ID, entries[0].Envelope.ID)
		assert.Equal(t, first.ID, entries[1].Envelope.ID)
	})

	t.Run("limit truncates", func(t *testing.T) {
		entries := log.Entries(1)
		require.Len(t, entries, 1)
		assert.Equal(t, second.ID, entries[0].Envelope.ID)
	})
}

func TestDeadLetterLogPrune(t *testing.T) {
	mock := clock.NewMock()
	log := NewDeadLetterLog(
		WithDeadLetterClock(mock),
		WithRetention(7*24*time.Hour),
	)

	log.Add(contracts.NewEnvelope("a", "b", contracts.Custom("old"), nil), ReasonExpired)
	mock.Add(6 * 24 * time.Hour)
	log.Add(contracts.NewEnvelope("a", "b", contracts.Custom("recent"), nil), ReasonExpired)

	assert.Equal(t, 0, log.Prune())

	mock.Add(2 * 24 * time.Hour)
	assert.Equal(t, 1, log.Prune())

	entries := log.Entries(0)
	require.Len(t, entries, 1)
	assert.Equal(t, "recent", entries[0].Envelope.Kind.Name())
}
