// Package orchestration runs a component's work items one at a time.
//
// A Lane is a bounded queue drained by a single worker:
//   - Offer never blocks; a full or stopped lane rejects the item.
//   - At most one item is in flight, so a component never interleaves runs.
//   - Stopping the lane does not cancel the item in flight.
package orchestration

import (
	"context"
	"fmt"
	"sync"

	"github.com/lucci-labs/luccibot/pkg/logger"
)

// DefaultQueueSize is used when a lane is created with size <= 0.
const DefaultQueueSize = 16

// Lane is a single-worker bounded queue.
type Lane[T any] struct {
	name   string
	queue  chan T
	handle func(context.Context, T)

	stopOnce sync.Once
	stopped  chan struct{}

	mu    sync.Mutex
	stats LaneStats
}

// LaneStats is a snapshot of a lane's counters.
type LaneStats struct {
	Accepted  int64 `json:"accepted"`
	Rejected  int64 `json:"rejected"`
	Completed int64 `json:"completed"`
	Panicked  int64 `json:"panicked"`
	InFlight  bool  `json:"in_flight"`
	Queued    int   `json:"queued"`
}

// NewLane creates a lane named for logs. handle runs on the worker goroutine.
func NewLane[T any](name string, size int, handle func(context.Context, T)) *Lane[T] {
	if size <= 0 {
		size = DefaultQueueSize
	}
	return &Lane[T]{
		name:    name,
		queue:   make(chan T, size),
		handle:  handle,
		stopped: make(chan struct{}),
	}
}

// Offer enqueues item. It reports false when the lane is full or stopped.
func (l *Lane[T]) Offer(item T) bool {
	select {
	case <-l.stopped:
		l.count(func(s *LaneStats) { s.Rejected++ })
		return false
	default:
	}
	select {
	case l.queue <- item:
		l.count(func(s *LaneStats) { s.Accepted++ })
		return true
	default:
		l.count(func(s *LaneStats) { s.Rejected++ })
		return false
	}
}

// Run drains the lane until ctx is done or Stop is called. Items are handled
// with a context that is detached from ctx's cancellation.
func (l *Lane[T]) Run(ctx context.Context) error {
	work := context.WithoutCancel(ctx)
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-l.stopped:
			return nil
		case item := <-l.queue:
			l.exec(work, item)
		}
	}
}

// Stop makes Run return after the item in flight. Queued items are dropped.
func (l *Lane[T]) Stop() {
	l.stopOnce.Do(func() { close(l.stopped) })
}

// Stats returns the lane counters.
func (l *Lane[T]) Stats() LaneStats {
	l.mu.Lock()
	defer l.mu.Unlock()
	s := l.stats
	s.Queued = len(l.queue)
	return s
}

func (l *Lane[T]) exec(ctx context.Context, item T) {
	l.count(func(s *LaneStats) { s.InFlight = true })
	defer func() {
		if r := recover(); r != nil {
			l.count(func(s *LaneStats) { s.Panicked++ })
			logger.ErrorCF(l.name, "Work item panicked", map[string]interface{}{
				"panic": fmt.Sprint(r),
			})
		}
		l.count(func(s *LaneStats) {
			s.InFlight = false
			s.Completed++
		})
	}()
	l.handle(ctx, item)
}

func (l *Lane[T]) count(fn func(*LaneStats)) {
	l.mu.Lock()
	fn(&l.stats)
	l.mu.Unlock()
}
