package messaging

import (
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/meshify/agentbus-go/contracts"
)

// Dead-letter reasons recorded with each entry.
const (
	ReasonExpired            = "expired"
	ReasonMaxRetriesExceeded = "max retries exceeded"
	ReasonUnknownRecipient   = "unknown recipient"
)

// DeadLetterEntry is a snapshot of an envelope that could not be delivered.
type DeadLetterEntry struct {
	Envelope *contracts.Envelope `json:"envelope"`
	Reason   string              `json:"reason"`
	At       time.Time           `json:"at"`
}

// DeadLetterLog retains failed and expired envelopes for inspection, bounded
// by both a maximum entry count and a retention window.
type DeadLetterLog struct {
	clk        clock.Clock
	maxEntries int
	retention  time.Duration

	mu      sync.RWMutex
	entries []*DeadLetterEntry
}

// DeadLetterOption configures a DeadLetterLog.
type DeadLetterOption func(*DeadLetterLog)

// WithDeadLetterClock sets the clock used for timestamps and pruning.
func WithDeadLetterClock(clk clock.Clock) DeadLetterOption {
	return func(l *DeadLetterLog) { l.clk = clk }
}

// WithDeadLetterLimit caps the number of retained entries; the oldest are
// dropped first.
func WithDeadLetterLimit(max int) DeadLetterOption {
	return func(l *DeadLetterLog) { l.maxEntries = max }
}

// WithRetention sets how long entries are kept before Prune removes them.
func WithRetention(d time.Duration) DeadLetterOption {
	return func(l *DeadLetterLog) { l.retention = d }
}

// NewDeadLetterLog creates a log retaining up to 1000 entries for 7 days.
func NewDeadLetterLog(opts ...DeadLetterOption) *DeadLetterLog {
	l := &DeadLetterLog{
		clk:        clock.New(),
		maxEntries: 1000,
		retention:  7 * 24 * time.Hour,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Add records an envelope snapshot with the failure reason.
func (l *DeadLetterLog) Add(env *contracts.Envelope, reason string) {
	entry := &DeadLetterEntry{
		Envelope: env.Clone(),
		Reason:   reason,
		At:       l.clk.Now(),
	}

	l.mu.Lock()
	l.entries = append(l.entries, entry)
	if len(l.entries) > l.maxEntries {
		l.entries = l.entries[len(l.entries)-l.maxEntries:]
	}
	l.mu.Unlock()
}

// Entries returns up to limit entries, newest first. A non-positive limit
// returns everything.
func (l *DeadLetterLog) Entries(limit int) []*DeadLetterEntry {
	l.mu.RLock()
	defer l.mu.RUnlock()

	n := len(l.entries)
	if limit <= 0 || limit > n {
		limit = n
	}

	out := make([]*DeadLetterEntry, 0, limit)
	for i := n - 1; i >= n-limit; i-- {
		out = append(out, l.entries[i])
	}
	return out
}

// Len returns the number of retained entries.
func (l *DeadLetterLog) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.entries)
}

// Prune drops entries older than the retention window and returns how many
// were removed.
func (l *DeadLetterLog) Prune() int {
	cutoff := l.clk.Now().Add(-l.retention)

	l.mu.Lock()
	defer l.mu.Unlock()

	// Entries are appended in time order, so find the first one to keep.
	keep := 0
	for keep < len(l.entries) && l.entries[keep].At.Before(cutoff) {
		keep++
	}
	if keep == 0 {
		return 0
	}
	removed := keep
	l.entries = append([]*DeadLetterEntry(nil), l.entries[keep:]...)
	return removed
}
