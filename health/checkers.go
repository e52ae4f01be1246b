// Package health provides liveness checks over a running bus.
package health

import (
	"context"
	"time"

	"github.com/meshify/agentbus-go"
)

// Status is the outcome of a health check.
type Status string

const (
	StatusHealthy   Status = "healthy"
	StatusDegraded  Status = "degraded"
	StatusUnhealthy Status = "unhealthy"
)

// CheckResult carries the outcome and supporting details of one check.
type CheckResult struct {
	Name      string         `json:"name"`
	Status    Status         `json:"status"`
	Message   string         `json:"message,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
	Duration  time.Duration  `json:"duration"`
	Details   map[string]any `json:"details,omitempty"`
}

// Checker performs a single named health check.
type Checker interface {
	Name() string
	Check(ctx context.Context) CheckResult
}

// BusState is the slice of bus surface the checker needs. *agentbus.Bus
// satisfies it.
type BusState interface {
	Running() bool
	Statistics() agentbus.Stats
}

// BusChecker reports degraded when lanes approach saturation and unhealthy
// when the bus is not running.
type BusChecker struct {
	bus                 BusState
	saturationThreshold float64
	deadLetterThreshold int
}

// BusCheckerOption configures a BusChecker.
type BusCheckerOption func(*BusChecker)

// WithSaturationThreshold sets the lane fill ratio that flips the check to
// degraded.
func WithSaturationThreshold(ratio float64) BusCheckerOption {
	return func(c *BusChecker) { c.saturationThreshold = ratio }
}

// WithDeadLetterThreshold sets the dead-letter depth that flips the check to
// degraded.
func WithDeadLetterThreshold(n int) BusCheckerOption {
	return func(c *BusChecker) { c.deadLetterThreshold = n }
}

// NewBusChecker creates a checker with 90% saturation and 500 dead-letter
// thresholds.
func NewBusChecker(bus BusState, opts ...BusCheckerOption) *BusChecker {
	c := &BusChecker{
		bus:                 bus,
		saturationThreshold: 0.9,
		deadLetterThreshold: 500,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *BusChecker) Name() string { return "bus" }

// Check inspects the bus state and lane gauges.
func (c *BusChecker) Check(ctx context.Context) CheckResult {
	start := time.Now()
	result := CheckResult{
		Name:      c.Name(),
		Timestamp: start,
		Details:   make(map[string]any),
	}

	if !c.bus.Running() {
		result.Status = StatusUnhealthy
		result.Message = "bus is not running"
		result.Duration = time.Since(start)
		return result
	}

	stats := c.bus.Statistics()
	result.Details["default_lane_depth"] = stats.DefaultLaneDepth
	result.Details["high_lane_depth"] = stats.HighLaneDepth
	result.Details["dead_letter_depth"] = stats.DeadLetterDepth
	result.Details["pending_acks"] = stats.PendingAcks

	switch {
	case saturated(stats.DefaultLaneDepth, stats.DefaultLaneCap, c.saturationThreshold):
		result.Status = StatusDegraded
		result.Message = "default lane approaching capacity"
	case saturated(stats.HighLaneDepth, stats.HighLaneCap, c.saturationThreshold):
		result.Status = StatusDegraded
		result.Message = "high-priority lane approaching capacity"
	case stats.DeadLetterDepth >= c.deadLetterThreshold:
		result.Status = StatusDegraded
		result.Message = "dead-letter log growing"
	default:
		result.Status = StatusHealthy
		result.Message = "bus is healthy"
	}

	result.Duration = time.Since(start)
	return result
}

func saturated(depth, capacity int, threshold float64) bool {
	return capacity > 0 && float64(depth) >= float64(capacity)*threshold
}
