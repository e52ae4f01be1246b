package messaging

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/meshify/agentbus-go/contracts"
)

// ReplyFuture is a one-shot future resolved when a reply envelope with the
// matching correlation id arrives.
type ReplyFuture struct {
	correlationID string
	ch            chan *contracts.Envelope
	clk           clock.Clock

	mu        sync.Mutex
	completed bool
}

// Wait blocks until the future resolves, the timeout elapses, or the context
// is cancelled. Timeouts return ErrRequestTimeout.
func (f *ReplyFuture) Wait(ctx context.Context, timeout time.Duration) (*contracts.Envelope, error) {
	timer := f.clk.Timer(timeout)
	defer timer.Stop()

	select {
	case reply := <-f.ch:
		return reply, nil
	case <-timer.C:
		f.markCompleted()
		return nil, contracts.ErrRequestTimeout
	case <-ctx.Done():
		f.markCompleted()
		return nil, ctx.Err()
	}
}

func (f *ReplyFuture) markCompleted() {
	f.mu.Lock()
	f.completed = true
	f.mu.Unlock()
}

// complete delivers the reply unless the future already timed out.
func (f *ReplyFuture) complete(reply *contracts.Envelope) bool {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.completed {
		return false
	}
	f.completed = true
	select {
	case f.ch <- reply:
		return true
	default:
		return false
	}
}

type pendingAck struct {
	env      *contracts.Envelope
	deadline time.Time
}

// DeliveryTracker holds envelopes awaiting acknowledgment and request/reply
// futures keyed by correlation id. It owns no workers; the bus sweep calls
// OverdueAcks to decide redelivery.
type DeliveryTracker struct {
	clk        clock.Clock
	ackTimeout time.Duration
	logger     *slog.Logger

	mu             sync.RWMutex
	pendingAcks    map[string]*pendingAck  // envelope id
	pendingReplies map[string]*ReplyFuture // correlation id
}

// TrackerOption configures a DeliveryTracker.
type TrackerOption func(*DeliveryTracker)

// WithTrackerClock sets the clock used for ack deadlines and wait timers.
func WithTrackerClock(clk clock.Clock) TrackerOption {
	return func(t *DeliveryTracker) { t.clk = clk }
}

// WithTrackerLogger sets the logger.
func WithTrackerLogger(logger *slog.Logger) TrackerOption {
	return func(t *DeliveryTracker) { t.logger = logger }
}

// WithAckTimeout sets how long a delivered envelope may await its
// acknowledgment before the sweep re-queues it.
func WithAckTimeout(d time.Duration) TrackerOption {
	return func(t *DeliveryTracker) { t.ackTimeout = d }
}

// NewDeliveryTracker creates a tracker with a 30s default ack timeout.
func NewDeliveryTracker(opts ...TrackerOption) *DeliveryTracker {
	t := &DeliveryTracker{
		clk:            clock.New(),
		ackTimeout:     30 * time.Second,
		logger:         slog.Default(),
		pendingAcks:    make(map[string]*pendingAck),
		pendingReplies: make(map[string]*ReplyFuture),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// TrackAck registers an envelope as awaiting acknowledgment. The deadline is
// extended on redelivery by tracking again.
func (t *DeliveryTracker) TrackAck(env *contracts.Envelope) {
	t.mu.Lock()
	t.pendingAcks[env.ID] = &pendingAck{env: env, deadline: t.clk.Now().Add(t.ackTimeout)}
	t.mu.Unlock()
}

// ResolveAck removes and returns the envelope awaiting the given id,
// marking it acknowledged and delivered. Unknown ids return false.
func (t *DeliveryTracker) ResolveAck(envelopeID string) (*contracts.Envelope, bool) {
	t.mu.Lock()
	pending, ok := t.pendingAcks[envelopeID]
	if ok {
		delete(t.pendingAcks, envelopeID)
	}
	t.mu.Unlock()

	if !ok {
		t.logger.Warn("acknowledgment for unknown envelope", "envelopeId", envelopeID)
		return nil, false
	}

	pending.env.MarkAcknowledged(t.clk.Now())
	if err := pending.env.Transition(contracts.StatusDelivered); err != nil {
		t.logger.Warn("acknowledged envelope in unexpected state",
			"envelopeId", envelopeID, "status", pending.env.Status, "error", err)
	}
	return pending.env, true
}

// DropAck removes a pending-ack entry without acknowledging it. Used when an
// envelope expires or is dead-lettered while in flight.
func (t *DeliveryTracker) DropAck(envelopeID string) {
	t.mu.Lock()
	delete(t.pendingAcks, envelopeID)
	t.mu.Unlock()
}

// OverdueAcks removes and returns every pending envelope whose ack deadline
// has passed. The caller decides between re-queue and dead-letter.
func (t *DeliveryTracker) OverdueAcks() []*contracts.Envelope {
	now := t.clk.Now()

	t.mu.Lock()
	defer t.mu.Unlock()

	var overdue []*contracts.Envelope
	for id, pending := range t.pendingAcks {
		if now.After(pending.deadline) {
			overdue = append(overdue, pending.env)
			delete(t.pendingAcks, id)
		}
	}
	return overdue
}

// RegisterReply creates a future for the given correlation id.
func (t *DeliveryTracker) RegisterReply(correlationID string) *ReplyFuture {
	future := &ReplyFuture{
		correlationID: correlationID,
		ch:            make(chan *contracts.Envelope, 1),
		clk:           t.clk,
	}

	t.mu.Lock()
	t.pendingReplies[correlationID] = future
	t.mu.Unlock()
	return future
}

// ResolveReply completes the future registered under the reply's correlation
// id. Returns false when no future is waiting.
func (t *DeliveryTracker) ResolveReply(reply *contracts.Envelope) bool {
	t.mu.Lock()
	future, ok := t.pendingReplies[reply.CorrelationID]
	if ok {
		delete(t.pendingReplies, reply.CorrelationID)
	}
	t.mu.Unlock()

	if !ok {
		return false
	}
	if !future.complete(reply) {
		t.logger.Warn("reply arrived after request completed", "correlationId", reply.CorrelationID)
		return false
	}
	return true
}

// DropReply discards a future, leaving no dangling entry after a timeout.
func (t *DeliveryTracker) DropReply(correlationID string) {
	t.mu.Lock()
	delete(t.pendingReplies, correlationID)
	t.mu.Unlock()
}

// PendingAckCount returns the number of envelopes awaiting acknowledgment.
func (t *DeliveryTracker) PendingAckCount() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.pendingAcks)
}

// PendingReplyCount returns the number of unresolved request futures.
func (t *DeliveryTracker) PendingReplyCount() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.pendingReplies)
}
