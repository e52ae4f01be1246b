package agentbus

import (
	"log/slog"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/meshify/agentbus-go/persistence"
)

// Default tuning values.
const (
	DefaultLaneCapacity      = 10000
	DefaultCriticalCapacity  = 5000
	DefaultMaxRetries        = 3
	DefaultAckTimeout        = 30 * time.Second
	DefaultIdleWait          = 100 * time.Millisecond
	DefaultSchedulerInterval = time.Second
	DefaultSweepInterval     = 60 * time.Second
	DefaultRetention         = 7 * 24 * time.Hour
	DefaultDeadLetterLimit   = 1000
	DefaultHistoryLimit      = 1000
)

type busConfig struct {
	logger            *slog.Logger
	clk               clock.Clock
	store             persistence.Store
	roster            Roster
	bridge            Bridge
	laneCapacity      int
	criticalCapacity  int
	maxRetries        int
	ackTimeout        time.Duration
	idleWait          time.Duration
	schedulerInterval time.Duration
	sweepInterval     time.Duration
	retention         time.Duration
	deadLetterLimit   int
	historyLimit      int
}

func defaultBusConfig() *busConfig {
	return &busConfig{
		logger:            slog.Default(),
		clk:               clock.New(),
		laneCapacity:      DefaultLaneCapacity,
		criticalCapacity:  DefaultCriticalCapacity,
		maxRetries:        DefaultMaxRetries,
		ackTimeout:        DefaultAckTimeout,
		idleWait:          DefaultIdleWait,
		schedulerInterval: DefaultSchedulerInterval,
		sweepInterval:     DefaultSweepInterval,
		retention:         DefaultRetention,
		deadLetterLimit:   DefaultDeadLetterLimit,
		historyLimit:      DefaultHistoryLimit,
	}
}

// Option configures the bus.
type Option func(*busConfig)

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *busConfig) { c.logger = logger }
}

// WithClock injects the clock driving all timers and deadlines.
func WithClock(clk clock.Clock) Option {
	return func(c *busConfig) { c.clk = clk }
}

// WithStore sets the durable store for requires-ack envelopes. Without one
// the bus runs purely in memory and loses pending messages on crash.
func WithStore(store persistence.Store) Option {
	return func(c *busConfig) { c.store = store }
}

// WithRoster overrides the broadcast roster. The default roster is the set
// of registered agents.
func WithRoster(roster Roster) Option {
	return func(c *busConfig) { c.roster = roster }
}

// WithBridge attaches an external fan-out transport mirroring topic
// publishes (best-effort).
func WithBridge(bridge Bridge) Option {
	return func(c *busConfig) { c.bridge = bridge }
}

// WithLaneCapacities sets the default and critical lane capacities.
func WithLaneCapacities(defaultCap, criticalCap int) Option {
	return func(c *busConfig) {
		c.laneCapacity = defaultCap
		c.criticalCapacity = criticalCap
	}
}

// WithMaxRetries sets the delivery retry budget per envelope.
func WithMaxRetries(n int) Option {
	return func(c *busConfig) { c.maxRetries = n }
}

// WithAckTimeout sets how long a delivered envelope may await its ack before
// the sweep re-queues it.
func WithAckTimeout(d time.Duration) Option {
	return func(c *busConfig) { c.ackTimeout = d }
}

// WithIdleWait sets how long the dispatcher sleeps when both lanes are empty.
func WithIdleWait(d time.Duration) Option {
	return func(c *busConfig) { c.idleWait = d }
}

// WithSchedulerInterval sets the delayed-delivery tick interval.
func WithSchedulerInterval(d time.Duration) Option {
	return func(c *busConfig) { c.schedulerInterval = d }
}

// WithSweepInterval sets the expiry/ack/dead-letter sweep interval.
func WithSweepInterval(d time.Duration) Option {
	return func(c *busConfig) { c.sweepInterval = d }
}

// WithDeadLetterRetention sets how long dead-letter entries are kept.
func WithDeadLetterRetention(d time.Duration) Option {
	return func(c *busConfig) { c.retention = d }
}

// WithDeadLetterLimit caps the dead-letter log size.
func WithDeadLetterLimit(n int) Option {
	return func(c *busConfig) { c.deadLetterLimit = n }
}

// WithHistoryLimit caps the message history ring.
func WithHistoryLimit(n int) Option {
	return func(c *busConfig) { c.historyLimit = n }
}
