// Package eventbus provides the in-process topic dispatcher underneath the hub.
// It knows nothing about message schemas: it fans opaque payloads out to the
// handlers registered on a topic and keeps per-topic ordering.
package eventbus

import (
	"fmt"
	"runtime/debug"
	"sync"

	"github.com/lucci-labs/luccibot/pkg/domain"
)

// Handler processes one payload. A returned error (or a panic) is reported to
// the bus error hook and never reaches the publisher or sibling handlers.
type Handler func(payload interface{}) error

// ErrorHook receives handler failures.
type ErrorHook func(topic domain.Topic, err error)

type registration struct {
	id      uint64
	handler Handler
}

// topicQueue serializes delivery for one topic. Whoever finds the queue idle
// drains it; concurrent or re-entrant publishers only append.
type topicQueue struct {
	mu       sync.Mutex
	pending  []interface{}
	draining bool
}

// InProcessEventBus is a synchronous in-process dispatcher over a fixed topic set.
type InProcessEventBus struct {
	handlers map[domain.Topic][]registration
	queues   map[domain.Topic]*topicQueue
	nextID   uint64
	onError  ErrorHook
	mu       sync.RWMutex
	closed   bool
}

// New creates a bus accepting exactly the given topics.
func New(topics []domain.Topic, onError ErrorHook) *InProcessEventBus {
	b := &InProcessEventBus{
		handlers: make(map[domain.Topic][]registration, len(topics)),
		queues:   make(map[domain.Topic]*topicQueue, len(topics)),
		onError:  onError,
	}
	for _, t := range topics {
		b.handlers[t] = nil
		b.queues[t] = &topicQueue{}
	}
	return b
}

// Publish hands payload to every handler registered on topic when its delivery
// starts, in subscription order. When the topic is idle the call delivers
// synchronously. When the topic is already being delivered (another goroutine,
// or a handler publishing to its own topic) the payload is queued behind the
// in-progress delivery and the goroutine already delivering hands it out, so
// every handler observes the publish order of a topic.
func (b *InProcessEventBus) Publish(topic domain.Topic, payload interface{}) error {
	b.mu.RLock()
	closed := b.closed
	q, ok := b.queues[topic]
	b.mu.RUnlock()

	if !ok {
		return fmt.Errorf("eventbus: %w: %q", domain.ErrUnknownTopic, topic)
	}
	if closed {
		return fmt.Errorf("eventbus: %w", domain.ErrClosed)
	}

	q.mu.Lock()
	q.pending = append(q.pending, payload)
	if q.draining {
		q.mu.Unlock()
		return nil
	}
	q.draining = true
	for len(q.pending) > 0 {
		next := q.pending[0]
		q.pending[0] = nil
		q.pending = q.pending[1:]
		q.mu.Unlock()
		b.deliver(topic, next)
		q.mu.Lock()
	}
	q.draining = false
	q.pending = nil
	q.mu.Unlock()
	return nil
}

func (b *InProcessEventBus) deliver(topic domain.Topic, payload interface{}) {
	b.mu.RLock()
	snapshot := make([]registration, len(b.handlers[topic]))
	copy(snapshot, b.handlers[topic])
	b.mu.RUnlock()

	for _, reg := range snapshot {
		if err := b.invoke(reg.handler, payload); err != nil {
			b.report(topic, err)
		}
	}
}

func (b *InProcessEventBus) invoke(h Handler, payload interface{}) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panic: %v\n%s", r, debug.Stack())
		}
	}()
	return h(payload)
}

func (b *InProcessEventBus) report(topic domain.Topic, err error) {
	if b.onError != nil {
		b.onError(topic, err)
	}
}

// Subscribe registers a handler for a topic and returns a subscription that
// can remove it again.
func (b *InProcessEventBus) Subscribe(topic domain.Topic, handler Handler) (*Subscription, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, ok := b.queues[topic]; !ok {
		return nil, fmt.Errorf("eventbus: %w: %q", domain.ErrUnknownTopic, topic)
	}
	b.nextID++
	id := b.nextID
	b.handlers[topic] = append(b.handlers[topic], registration{id: id, handler: handler})
	return &Subscription{bus: b, topic: topic, id: id}, nil
}

func (b *InProcessEventBus) unsubscribe(topic domain.Topic, id uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()

	regs := b.handlers[topic]
	for i, reg := range regs {
		if reg.id == id {
			b.handlers[topic] = append(regs[:i:i], regs[i+1:]...)
			return
		}
	}
}

// Close marks the bus as closed. Further publishes fail with domain.ErrClosed.
func (b *InProcessEventBus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.closed = true
}

// HandlerCount returns the number of handlers on a topic (for diagnostics).
func (b *InProcessEventBus) HandlerCount(topic domain.Topic) int {
	b.mu.RLock()
	defer b.mu.RUnlock()

	return len(b.handlers[topic])
}

// ---------------------------------------------------------------------------
// Subscription handle
// ---------------------------------------------------------------------------

// Subscription identifies one registered handler.
type Subscription struct {
	bus   *InProcessEventBus
	topic domain.Topic
	id    uint64
	once  sync.Once
}

// Topic returns the topic the handler is registered on.
func (s *Subscription) Topic() domain.Topic { return s.topic }

// Unsubscribe removes the handler. Safe to call more than once, and from
// inside a handler.
func (s *Subscription) Unsubscribe() {
	if s == nil {
		return
	}
	s.once.Do(func() {
		s.bus.unsubscribe(s.topic, s.id)
	})
}
