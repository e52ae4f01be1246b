package agentbus

import (
	"errors"

	"github.com/meshify/agentbus-go/contracts"
	"github.com/meshify/agentbus-go/messaging"
)

// dispatchLoop drains the high-priority lane before the default lane and
// delivers envelopes to their recipients, sleeping briefly when idle.
func (b *Bus) dispatchLoop() {
	defer b.wg.Done()

	for {
		select {
		case <-b.ctx.Done():
			return
		default:
		}

		env, ok := b.highLane.Pop()
		if !ok {
			env, ok = b.defaultLane.Pop()
		}
		if !ok {
			timer := b.clk.Timer(b.idleWait)
			select {
			case <-timer.C:
			case <-b.ctx.Done():
				timer.Stop()
				return
			}
			continue
		}

		b.deliver(env)
	}
}

func (b *Bus) deliver(env *contracts.Envelope) {
	if env.IsExpiredAt(b.clk.Now()) {
		b.expire(env)
		return
	}

	if err := env.Transition(contracts.StatusProcessing); err != nil {
		b.logger.Warn("envelope in unexpected state at dispatch",
			"envelopeId", env.ID, "status", env.Status, "error", err)
	}

	handler, ok := b.registry.Lookup(env.Recipient)
	if !ok {
		env.RecordAttempt(b.clk.Now(), false, contracts.ErrUnknownRecipient)
		b.retryOrFail(env, contracts.ErrUnknownRecipient)
		return
	}

	// Registered before delivery so an ack arriving from within the handler
	// resolves correctly.
	if env.RequiresAck {
		b.tracker.TrackAck(env)
	}

	start := b.clk.Now()
	reply, err := handler(b.ctx, env)
	elapsed := b.clk.Now().Sub(start)

	env.RecordAttempt(start, err == nil, err)

	if err != nil {
		if env.RequiresAck {
			b.tracker.DropAck(env.ID)
		}
		b.logger.Warn("delivery failed",
			"envelopeId", env.ID,
			"recipient", env.Recipient,
			"attempt", len(env.Attempts),
			"error", err,
		)
		b.retryOrFail(env, err)
		return
	}

	b.counters.recordLatency(elapsed)

	// Requires-ack envelopes stay in the pending-ack map (status
	// processing) until the explicit ack arrives via Receive.
	if !env.RequiresAck {
		if terr := env.Transition(contracts.StatusDelivered); terr != nil {
			b.logger.Warn("envelope in unexpected state after delivery",
				"envelopeId", env.ID, "error", terr)
		}
		b.counters.add(&b.counters.delivered)
	}

	if reply != nil {
		if _, rerr := b.Receive(b.ctx, reply); rerr != nil {
			b.logger.Warn("failed to process handler reply",
				"envelopeId", env.ID, "replyId", reply.ID, "error", rerr)
		}
	}
}

// retryOrFail re-queues an envelope within its retry budget, otherwise
// dead-letters it.
func (b *Bus) retryOrFail(env *contracts.Envelope, cause error) {
	if env.RetryCount < b.maxRetries {
		env.RetryCount++
		if err := env.Transition(contracts.StatusRetry); err != nil {
			b.logger.Warn("retry transition failed", "envelopeId", env.ID, "error", err)
		}
		if err := b.enqueue(env); err != nil {
			b.deadLetter(env, err.Error())
			return
		}
		b.counters.add(&b.counters.retried)
		return
	}

	if err := env.Transition(contracts.StatusFailed); err != nil {
		b.logger.Warn("fail transition rejected", "envelopeId", env.ID, "error", err)
	}
	reason := messaging.ReasonMaxRetriesExceeded
	if errors.Is(cause, contracts.ErrUnknownRecipient) {
		reason = messaging.ReasonUnknownRecipient
	}
	b.deadLetter(env, reason)
	b.counters.add(&b.counters.failed)
}

// expire moves an envelope whose TTL elapsed straight to the dead-letter
// log.
func (b *Bus) expire(env *contracts.Envelope) {
	if err := env.Transition(contracts.StatusExpired); err != nil {
		b.logger.Warn("expire transition rejected", "envelopeId", env.ID, "error", err)
	}
	b.deadLetter(env, messaging.ReasonExpired)
	b.counters.add(&b.counters.expired)
}

// deadLetter removes the envelope from every live structure and records the
// failure.
func (b *Bus) deadLetter(env *contracts.Envelope, reason string) {
	b.tracker.DropAck(env.ID)
	if env.RequiresAck {
		b.deletePersisted(b.ctx, env.ID)
	}
	b.deadLetters.Add(env, reason)
	b.logger.Info("envelope dead-lettered",
		"envelopeId", env.ID,
		"recipient", env.Recipient,
		"reason", reason,
	)
}

// cleanupLoop periodically sweeps the lanes for expired envelopes, re-queues
// overdue unacknowledged deliveries, and prunes the dead-letter log.
func (b *Bus) cleanupLoop() {
	defer b.wg.Done()

	ticker := b.clk.Ticker(b.sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			b.sweep()
		case <-b.ctx.Done():
			return
		}
	}
}

func (b *Bus) sweep() {
	now := b.clk.Now()

	// Rebuild each lane without its expired entries. Drain preserves pop
	// order, so FIFO within a tier survives the reinsert.
	for _, lane := range []*messaging.PriorityLane{b.highLane, b.defaultLane} {
		for _, env := range lane.Drain() {
			if env.IsExpiredAt(now) {
				b.expire(env)
				continue
			}
			if err := lane.Push(env); err != nil {
				b.deadLetter(env, err.Error())
			}
		}
	}

	// Unacknowledged in-flight envelopes past their ack deadline are
	// re-queued, not dropped; the retry budget still bounds them.
	for _, env := range b.tracker.OverdueAcks() {
		b.retryOrFail(env, contracts.ErrAckTimeout)
	}

	if pruned := b.deadLetters.Prune(); pruned > 0 {
		b.logger.Info("pruned dead-letter entries", "count", pruned)
	}
}
