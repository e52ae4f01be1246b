package messaging

import (
	"container/heap"
	"fmt"
	"sync"

	"github.com/meshify/agentbus-go/contracts"
)

// PriorityLane is a bounded queue ordered by (priority desc, insertion
// sequence asc): higher priorities pop first, FIFO within a tier.
type PriorityLane struct {
	name     string
	capacity int

	mu    sync.Mutex
	seq   uint64
	items laneHeap
}

// NewPriorityLane creates a lane with the given name and capacity.
func NewPriorityLane(name string, capacity int) *PriorityLane {
	return &PriorityLane{
		name:     name,
		capacity: capacity,
		items:    make(laneHeap, 0, 64),
	}
}

// Name returns the lane name.
func (l *PriorityLane) Name() string { return l.name }

// Capacity returns the lane capacity.
func (l *PriorityLane) Capacity() int { return l.capacity }

// Len returns the number of queued envelopes.
func (l *PriorityLane) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.items)
}

// Push enqueues an envelope, failing with ErrQueueFull at capacity.
func (l *PriorityLane) Push(env *contracts.Envelope) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if len(l.items) >= l.capacity {
		return fmt.Errorf("%w: lane %s at capacity %d", contracts.ErrQueueFull, l.name, l.capacity)
	}

	l.seq++
	heap.Push(&l.items, laneItem{env: env, rank: env.Priority.Rank(), seq: l.seq})
	return nil
}

// Pop removes and returns the highest-priority envelope. The second return
// is false when the lane is empty; Pop never blocks.
func (l *PriorityLane) Pop() (*contracts.Envelope, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if len(l.items) == 0 {
		return nil, false
	}
	item := heap.Pop(&l.items).(laneItem)
	return item.env, true
}

// Peek returns the envelope Pop would return without removing it.
func (l *PriorityLane) Peek() (*contracts.Envelope, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if len(l.items) == 0 {
		return nil, false
	}
	return l.items[0].env, true
}

// Drain removes and returns all envelopes in pop order. Used by the expiry
// sweep to rebuild the lane without expired entries.
func (l *PriorityLane) Drain() []*contracts.Envelope {
	l.mu.Lock()
	defer l.mu.Unlock()

	drained := make([]*contracts.Envelope, 0, len(l.items))
	for len(l.items) > 0 {
		item := heap.Pop(&l.items).(laneItem)
		drained = append(drained, item.env)
	}
	return drained
}

type laneItem struct {
	env  *contracts.Envelope
	rank int
	seq  uint64
}

type laneHeap []laneItem

func (h laneHeap) Len() int { return len(h) }

func (h laneHeap) Less(i, j int) bool {
	if h[i].rank != h[j].rank {
		return h[i].rank > h[j].rank
	}
	return h[i].seq < h[j].seq
}

func (h laneHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *laneHeap) Push(x any) { *h = append(*h, x.(laneItem)) }

func (h *laneHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}
