package agentbus

import (
	"sync"
	"time"
)

// Stats is a point-in-time snapshot of bus activity, returned by value.
type Stats struct {
	Sent             uint64        `json:"sent"`
	Received         uint64        `json:"received"`
	Delivered        uint64        `json:"delivered"`
	Failed           uint64        `json:"failed"`
	Retried          uint64        `json:"retried"`
	Expired          uint64        `json:"expired"`
	AcksReceived     uint64        `json:"acksReceived"`
	Broadcasts       uint64        `json:"broadcasts"`
	Publishes        uint64        `json:"publishes"`
	PersistFailures  uint64        `json:"persistFailures"`
	DefaultLaneDepth int           `json:"defaultLaneDepth"`
	DefaultLaneCap   int           `json:"defaultLaneCapacity"`
	HighLaneDepth    int           `json:"highLaneDepth"`
	HighLaneCap      int           `json:"highLaneCapacity"`
	ScheduledCount   int           `json:"scheduledCount"`
	DeadLetterDepth  int           `json:"deadLetterDepth"`
	TopicCount       int           `json:"topicCount"`
	SubscriberCount  int           `json:"subscriberCount"`
	PendingAcks      int           `json:"pendingAcks"`
	PendingReplies   int           `json:"pendingReplies"`
	AvgProcessing    time.Duration `json:"avgProcessing"`
}

// counters aggregates the monotonic counts mutated across workers.
type counters struct {
	mu              sync.Mutex
	sent            uint64
	received        uint64
	delivered       uint64
	failed          uint64
	retried         uint64
	expired         uint64
	acksReceived    uint64
	broadcasts      uint64
	publishes       uint64
	persistFailures uint64
	latencyTotal    time.Duration
	latencyCount    uint64
}

func (c *counters) add(field *uint64) {
	c.mu.Lock()
	*field++
	c.mu.Unlock()
}

func (c *counters) recordLatency(d time.Duration) {
	c.mu.Lock()
	c.latencyTotal += d
	c.latencyCount++
	c.mu.Unlock()
}

// snapshot copies the counter values into a Stats under the lock.
func (c *counters) snapshot(s *Stats) {
	c.mu.Lock()
	defer c.mu.Unlock()

	s.Sent = c.sent
	s.Received = c.received
	s.Delivered = c.delivered
	s.Failed = c.failed
	s.Retried = c.retried
	s.Expired = c.expired
	s.AcksReceived = c.acksReceived
	s.Broadcasts = c.broadcasts
	s.Publishes = c.publishes
	s.PersistFailures = c.persistFailures
	if c.latencyCount > 0 {
		s.AvgProcessing = c.latencyTotal / time.Duration(c.latencyCount)
	}
}
