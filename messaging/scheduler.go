package messaging

import (
	"container/heap"
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/meshify/agentbus-go/contracts"
)

// ReleaseFunc feeds a due envelope back into the normal send path.
type ReleaseFunc func(env *contracts.Envelope)

// Scheduler holds envelopes for future delivery in a min-heap ordered by
// deliver-at time. A ticking worker releases due entries; nothing reaches a
// lane before its scheduled time.
type Scheduler struct {
	clk      clock.Clock
	interval time.Duration
	release  ReleaseFunc
	logger   *slog.Logger

	mu    sync.Mutex
	items schedHeap

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// SchedulerOption configures a Scheduler.
type SchedulerOption func(*Scheduler)

// WithSchedulerClock sets the clock driving the tick loop.
func WithSchedulerClock(clk clock.Clock) SchedulerOption {
	return func(s *Scheduler) { s.clk = clk }
}

// WithSchedulerInterval sets the tick interval.
func WithSchedulerInterval(d time.Duration) SchedulerOption {
	return func(s *Scheduler) { s.interval = d }
}

// WithSchedulerLogger sets the logger.
func WithSchedulerLogger(logger *slog.Logger) SchedulerOption {
	return func(s *Scheduler) { s.logger = logger }
}

// NewScheduler creates a scheduler releasing due envelopes through release.
// The default tick interval is one second.
func NewScheduler(release ReleaseFunc, opts ...SchedulerOption) *Scheduler {
	s := &Scheduler{
		clk:      clock.New(),
		interval: time.Second,
		release:  release,
		logger:   slog.Default(),
		items:    make(schedHeap, 0, 16),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Schedule queues an envelope for release at deliverAt. Past times release
// on the next tick.
func (s *Scheduler) Schedule(deliverAt time.Time, env *contracts.Envelope) {
	s.mu.Lock()
	heap.Push(&s.items, schedItem{at: deliverAt, env: env})
	s.mu.Unlock()

	s.logger.Debug("envelope scheduled",
		"envelopeId", env.ID,
		"deliverAt", deliverAt,
	)
}

// Len returns the number of envelopes awaiting release.
func (s *Scheduler) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.items)
}

// Start launches the tick worker. It runs until Stop.
func (s *Scheduler) Start() {
	s.ctx, s.cancel = context.WithCancel(context.Background())
	s.wg.Add(1)
	go s.run()
}

// Stop terminates the worker and waits for it to exit. Unreleased envelopes
// stay in the heap.
func (s *Scheduler) Stop() {
	if s.cancel != nil {
		s.cancel()
		s.wg.Wait()
	}
}

func (s *Scheduler) run() {
	defer s.wg.Done()

	ticker := s.clk.Ticker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			for _, env := range s.popDue(s.clk.Now()) {
				s.release(env)
			}
		case <-s.ctx.Done():
			return
		}
	}
}

// popDue removes and returns every heap-front entry due at or before now.
func (s *Scheduler) popDue(now time.Time) []*contracts.Envelope {
	s.mu.Lock()
	defer s.mu.Unlock()

	var due []*contracts.Envelope
	for len(s.items) > 0 && !s.items[0].at.After(now) {
		item := heap.Pop(&s.items).(schedItem)
		due = append(due, item.env)
	}
	return due
}

type schedItem struct {
	at  time.Time
	env *contracts.Envelope
}

type schedHeap []schedItem

func (h schedHeap) Len() int           { return len(h) }
func (h schedHeap) Less(i, j int) bool { return h[i].at.Before(h[j].at) }
func (h schedHeap) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }
func (h *schedHeap) Push(x any)        { *h = append(*h, x.(schedItem)) }
func (h *schedHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}
