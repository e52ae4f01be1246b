package agentbus

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/meshify/agentbus-go/contracts"
	"github.com/meshify/agentbus-go/messaging"
	"github.com/meshify/agentbus-go/persistence"
)

// Bridge mirrors topic publishes to an external transport so out-of-process
// consumers can participate in fan-out. Bridge failures are logged, never
// surfaced to publishers.
type Bridge interface {
	Publish(ctx context.Context, topic string, env *contracts.Envelope) error
	Close() error
}

const (
	stateCreated int32 = iota
	stateRunning
	stateClosed
)

// Bus orchestrates the lanes, router, tracker, scheduler, store and
// dead-letter log behind the public send/broadcast/publish/request API.
type Bus struct {
	logger *slog.Logger
	clk    clock.Clock

	registry    *AgentRegistry
	roster      Roster
	store       persistence.Store
	bridge      Bridge
	highLane    *messaging.PriorityLane
	defaultLane *messaging.PriorityLane
	router      *messaging.TopicRouter
	tracker     *messaging.DeliveryTracker
	scheduler   *messaging.Scheduler
	deadLetters *messaging.DeadLetterLog
	history     *historyRing

	maxRetries    int
	idleWait      time.Duration
	sweepInterval time.Duration

	counters counters
	state    atomic.Int32
	ctx      context.Context
	cancel   context.CancelFunc
	wg       sync.WaitGroup
}

// New creates a bus. Call Start to replay persisted envelopes and launch the
// workers.
func New(opts ...Option) *Bus {
	cfg := defaultBusConfig()
	for _, opt := range opts {
		opt(cfg)
	}

	b := &Bus{
		logger:        cfg.logger,
		clk:           cfg.clk,
		registry:      NewAgentRegistry(),
		roster:        cfg.roster,
		store:         cfg.store,
		bridge:        cfg.bridge,
		highLane:      messaging.NewPriorityLane("high_priority", cfg.criticalCapacity),
		defaultLane:   messaging.NewPriorityLane("default", cfg.laneCapacity),
		router:        messaging.NewTopicRouter(),
		history:       newHistoryRing(cfg.historyLimit),
		maxRetries:    cfg.maxRetries,
		idleWait:      cfg.idleWait,
		sweepInterval: cfg.sweepInterval,
	}
	if b.roster == nil {
		b.roster = b.registry
	}

	b.tracker = messaging.NewDeliveryTracker(
		messaging.WithTrackerClock(cfg.clk),
		messaging.WithTrackerLogger(cfg.logger),
		messaging.WithAckTimeout(cfg.ackTimeout),
	)
	b.scheduler = messaging.NewScheduler(
		func(env *contracts.Envelope) {
			if err := b.accept(context.Background(), env); err != nil {
				b.logger.Error("failed to release scheduled envelope",
					"envelopeId", env.ID, "error", err)
			}
		},
		messaging.WithSchedulerClock(cfg.clk),
		messaging.WithSchedulerInterval(cfg.schedulerInterval),
		messaging.WithSchedulerLogger(cfg.logger),
	)
	b.deadLetters = messaging.NewDeadLetterLog(
		messaging.WithDeadLetterClock(cfg.clk),
		messaging.WithDeadLetterLimit(cfg.deadLetterLimit),
		messaging.WithRetention(cfg.retention),
	)
	return b
}

// Register attaches an agent's delivery handler.
func (b *Bus) Register(agentID string, handler DeliveryHandler) {
	b.registry.Register(agentID, handler)
}

// Unregister detaches an agent.
func (b *Bus) Unregister(agentID string) {
	b.registry.Unregister(agentID)
}

// Start replays persisted envelopes and launches the dispatcher, scheduler
// and cleanup workers.
func (b *Bus) Start() error {
	if !b.state.CompareAndSwap(stateCreated, stateRunning) {
		return fmt.Errorf("%w: bus already started", contracts.ErrBusClosed)
	}

	b.ctx, b.cancel = context.WithCancel(context.Background())

	if err := b.recover(); err != nil {
		b.logger.Error("envelope recovery failed", "error", err)
	}

	b.scheduler.Start()
	b.wg.Add(2)
	go b.dispatchLoop()
	go b.cleanupLoop()

	b.logger.Info("bus started",
		"defaultLaneCapacity", b.defaultLane.Capacity(),
		"highLaneCapacity", b.highLane.Capacity(),
		"maxRetries", b.maxRetries,
	)
	return nil
}

// Stop terminates the workers and waits for them. Requires-ack envelopes
// still in flight remain persisted for redelivery on the next Start.
func (b *Bus) Stop() error {
	if !b.state.CompareAndSwap(stateRunning, stateClosed) {
		return fmt.Errorf("%w: bus not running", contracts.ErrBusClosed)
	}

	b.cancel()
	b.scheduler.Stop()
	b.wg.Wait()

	var errs []error
	if b.bridge != nil {
		if err := b.bridge.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if b.store != nil {
		if err := b.store.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	b.logger.Info("bus stopped")
	return errors.Join(errs...)
}

// Running reports whether the bus is accepting traffic.
func (b *Bus) Running() bool {
	return b.state.Load() == stateRunning
}

// recover re-enqueues every persisted envelope for immediate redelivery,
// preserving the original correlation ids (at-least-once: receivers must be
// idempotent on envelope id).
func (b *Bus) recover() error {
	if b.store == nil {
		return nil
	}
	envelopes, err := b.store.LoadAll(b.ctx)
	if err != nil {
		return err
	}
	for _, env := range envelopes {
		// A record persisted mid-flight may carry a non-restartable status.
		env.Status = contracts.StatusPending
		if err := b.enqueue(env); err != nil {
			b.logger.Error("failed to re-enqueue recovered envelope",
				"envelopeId", env.ID, "error", err)
		}
	}
	if len(envelopes) > 0 {
		b.logger.Info("recovered pending envelopes", "count", len(envelopes))
	}
	return nil
}

// Send queues a unicast envelope and returns its id.
func (b *Bus) Send(ctx context.Context, sender, recipient string, kind contracts.Kind, payload []byte, opts ...contracts.EnvelopeOption) (string, error) {
	if !b.Running() {
		return "", contracts.ErrBusClosed
	}

	env := contracts.NewEnvelope(sender, recipient, kind, payload, opts...)
	if err := b.accept(ctx, env); err != nil {
		return "", err
	}
	b.counters.add(&b.counters.sent)
	return env.ID, nil
}

// Broadcast fans an envelope out to every roster agent except the sender,
// returning the ids of the envelopes queued. Lane-full failures for
// individual recipients are joined into the returned error.
func (b *Bus) Broadcast(ctx context.Context, sender string, kind contracts.Kind, payload []byte, opts ...contracts.EnvelopeOption) ([]string, error) {
	if !b.Running() {
		return nil, contracts.ErrBusClosed
	}

	var (
		ids  []string
		errs []error
	)
	for _, agent := range b.roster.Agents() {
		if agent == sender {
			continue
		}
		env := contracts.NewEnvelope(sender, agent, kind, payload, opts...)
		if err := b.accept(ctx, env); err != nil {
			errs = append(errs, fmt.Errorf("broadcast to %s: %w", agent, err))
			continue
		}
		b.counters.add(&b.counters.sent)
		ids = append(ids, env.ID)
	}
	b.counters.add(&b.counters.broadcasts)
	return ids, errors.Join(errs...)
}

// Publish fans an envelope out to every subscriber resolved for the topic,
// best-effort (no acknowledgments). An attached bridge mirrors the publish
// to the external transport.
func (b *Bus) Publish(ctx context.Context, sender, topic string, kind contracts.Kind, payload []byte) error {
	if !b.Running() {
		return contracts.ErrBusClosed
	}

	var errs []error
	for _, subscriber := range b.router.Resolve(topic) {
		env := contracts.NewEnvelope(sender, subscriber, kind, payload,
			contracts.WithTopic(topic))
		if err := b.accept(ctx, env); err != nil {
			errs = append(errs, fmt.Errorf("publish to %s: %w", subscriber, err))
		}
	}
	b.counters.add(&b.counters.publishes)

	if b.bridge != nil {
		env := contracts.NewEnvelope(sender, "", kind, payload, contracts.WithTopic(topic))
		if err := b.bridge.Publish(ctx, topic, env); err != nil {
			b.logger.Warn("bridge publish failed", "topic", topic, "error", err)
		}
	}
	return errors.Join(errs...)
}

// Subscribe registers a subscriber for a topic or trailing-wildcard pattern.
func (b *Bus) Subscribe(topic, subscriber string) {
	b.router.Subscribe(topic, subscriber)
}

// Unsubscribe removes a subscription.
func (b *Bus) Unsubscribe(topic, subscriber string) {
	b.router.Unsubscribe(topic, subscriber)
}

// Request sends an envelope and blocks until a reply with the same
// correlation id arrives or the timeout elapses (ErrRequestTimeout). The
// reply payload is returned; the pending future is always cleaned up.
func (b *Bus) Request(ctx context.Context, sender, recipient string, kind contracts.Kind, payload []byte, timeout time.Duration) ([]byte, error) {
	if !b.Running() {
		return nil, contracts.ErrBusClosed
	}

	env := contracts.NewEnvelope(sender, recipient, kind, payload,
		contracts.WithReplyTo(sender))
	future := b.tracker.RegisterReply(env.CorrelationID)

	if err := b.accept(ctx, env); err != nil {
		b.tracker.DropReply(env.CorrelationID)
		return nil, err
	}
	b.counters.add(&b.counters.sent)

	reply, err := future.Wait(ctx, timeout)
	b.tracker.DropReply(env.CorrelationID)
	if err != nil {
		return nil, err
	}
	return reply.Payload, nil
}

// Schedule queues an envelope for delivery at deliverAt and returns its id.
// The envelope enters the persistence and lane path only when released.
func (b *Bus) Schedule(ctx context.Context, deliverAt time.Time, sender, recipient string, kind contracts.Kind, payload []byte, opts ...contracts.EnvelopeOption) (string, error) {
	if !b.Running() {
		return "", contracts.ErrBusClosed
	}

	env := contracts.NewEnvelope(sender, recipient, kind, payload, opts...)
	b.scheduler.Schedule(deliverAt, env)
	return env.ID, nil
}

// Receive is the single entry point for inbound envelopes, including ack and
// ping/pong control kinds. It returns an optional immediate reply (pong for
// a ping).
func (b *Bus) Receive(ctx context.Context, env *contracts.Envelope) (*contracts.Envelope, error) {
	if !b.Running() {
		return nil, contracts.ErrBusClosed
	}
	b.counters.add(&b.counters.received)

	switch env.Kind.Tag() {
	case contracts.KindAck:
		original, ok := b.tracker.ResolveAck(env.CorrelationID)
		if ok {
			b.deletePersisted(ctx, original.ID)
			b.counters.add(&b.counters.delivered)
			b.counters.add(&b.counters.acksReceived)
		}
		return nil, nil

	case contracts.KindPing:
		responder := env.Recipient
		if responder == "" {
			responder = "bus"
		}
		return contracts.NewPong(env, responder), nil
	}

	// Replies (pong or custom) resolve a pending request future when one is
	// waiting on the correlation id.
	if env.CorrelationID != env.ID && b.tracker.ResolveReply(env) {
		return nil, nil
	}

	if env.Recipient == "" {
		b.logger.Warn("dropping inbound envelope without recipient",
			"envelopeId", env.ID, "kind", env.Kind.Name())
		return nil, nil
	}
	return nil, b.accept(ctx, env)
}

// Statistics returns a snapshot of counters and gauges.
func (b *Bus) Statistics() Stats {
	var s Stats
	b.counters.snapshot(&s)
	s.DefaultLaneDepth = b.defaultLane.Len()
	s.DefaultLaneCap = b.defaultLane.Capacity()
	s.HighLaneDepth = b.highLane.Len()
	s.HighLaneCap = b.highLane.Capacity()
	s.ScheduledCount = b.scheduler.Len()
	s.DeadLetterDepth = b.deadLetters.Len()
	s.TopicCount = b.router.TopicCount()
	s.SubscriberCount = b.router.SubscriberCount()
	s.PendingAcks = b.tracker.PendingAckCount()
	s.PendingReplies = b.tracker.PendingReplyCount()
	return s
}

// MessageHistory returns up to limit recently accepted envelopes, newest
// first.
func (b *Bus) MessageHistory(limit int) []*contracts.Envelope {
	return b.history.Recent(limit)
}

// DeadLetters returns up to limit dead-letter entries, newest first.
func (b *Bus) DeadLetters(limit int) []*messaging.DeadLetterEntry {
	return b.deadLetters.Entries(limit)
}

// accept runs the common send path: persist when an ack is required, then
// enqueue into the lane for the envelope's priority tier.
func (b *Bus) accept(ctx context.Context, env *contracts.Envelope) error {
	b.history.Add(env)

	persisted := false
	if env.RequiresAck && b.store != nil {
		if err := b.store.Save(ctx, env); err != nil {
			b.counters.add(&b.counters.persistFailures)
			b.logger.Warn("persistence failure, delivering anyway",
				"envelopeId", env.ID, "error", err)
		} else {
			persisted = true
		}
	}

	if err := b.enqueue(env); err != nil {
		if persisted {
			b.deletePersisted(ctx, env.ID)
		}
		return err
	}
	return nil
}

func (b *Bus) enqueue(env *contracts.Envelope) error {
	return b.laneFor(env.Priority).Push(env)
}

func (b *Bus) laneFor(p contracts.Priority) *messaging.PriorityLane {
	if p == contracts.PriorityCritical {
		return b.highLane
	}
	return b.defaultLane
}

func (b *Bus) deletePersisted(ctx context.Context, id string) {
	if b.store == nil {
		return
	}
	if err := b.store.Delete(ctx, id); err != nil {
		b.counters.add(&b.counters.persistFailures)
		b.logger.Warn("failed to delete persisted envelope", "envelopeId", id, "error", err)
	}
}

// historyRing keeps snapshots of the most recent envelopes for inspection.
// Entries are clones taken at accept time; the dispatcher keeps mutating the
// live envelope afterwards.
type historyRing struct {
	mu      sync.Mutex
	entries []*contracts.Envelope
	limit   int
}

func newHistoryRing(limit int) *historyRing {
	return &historyRing{limit: limit}
}

func (h *historyRing) Add(env *contracts.Envelope) {
	snapshot := env.Clone()
	h.mu.Lock()
	h.entries = append(h.entries, snapshot)
	if len(h.entries) > h.limit {
		h.entries = h.entries[len(h.entries)-h.limit:]
	}
	h.mu.Unlock()
}

func (h *historyRing) Recent(limit int) []*contracts.Envelope {
	h.mu.Lock()
	defer h.mu.Unlock()

	n := len(h.entries)
	if limit <= 0 || limit > n {
		limit = n
	}
	out := make([]*contracts.Envelope, 0, limit)
	for i := n - 1; i >= n-limit; i-- {
		out = append(out, h.entries[i])
	}
	return out
}
