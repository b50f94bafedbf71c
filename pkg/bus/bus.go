// Package bus is the LucciBot message hub: a typed publish/subscribe surface
// over a fixed set of topics. Components talk to each other only through it.
// Every value is validated on the way in; invalid values are rejected to the
// publisher and never reach a subscriber.
package bus

import (
	"fmt"

	"github.com/lucci-labs/luccibot/pkg/domain"
	"github.com/lucci-labs/luccibot/pkg/infrastructure/eventbus"
	"github.com/lucci-labs/luccibot/pkg/logger"
)

// Subscription is the handle returned by every On* / Subscribe call.
type Subscription = eventbus.Subscription

// Hub is the central message hub.
type Hub struct {
	events *eventbus.InProcessEventBus
	now    domain.Clock
}

// Option configures a Hub.
type Option func(*Hub)

// WithClock pins the clock used to stamp log events.
func WithClock(c domain.Clock) Option {
	return func(h *Hub) { h.now = c }
}

// NewHub creates a hub over the fixed topic set.
func NewHub(opts ...Option) *Hub {
	h := &Hub{now: domain.SystemClock}
	for _, opt := range opts {
		opt(h)
	}
	h.events = eventbus.New(domain.AllTopics(), func(topic domain.Topic, err error) {
		logger.ErrorCF("hub", "Subscriber failed", map[string]interface{}{
			"topic": topic.String(),
			"error": err.Error(),
		})
	})
	return h
}

// Publish validates value against topic's schema and delivers it. The value's
// type must match the topic (e.g. LogEvent on "log").
func (h *Hub) Publish(topic domain.Topic, value Message) error {
	if !topic.Valid() {
		return fmt.Errorf("bus: %w: %q", domain.ErrUnknownTopic, topic)
	}
	if value == nil {
		return invalid(topic, "value", "must not be nil")
	}
	if value.Topic() != topic {
		return invalid(topic, "value", fmt.Sprintf("%T belongs on %q", value, value.Topic()))
	}
	if err := value.Validate(); err != nil {
		return err
	}
	return h.events.Publish(topic, normalize(value, h.now()))
}

// Subscribe registers a raw handler on topic. The handler receives the
// normalized message value (one of the types in types.go).
func (h *Hub) Subscribe(topic domain.Topic, handler func(Message) error) (*Subscription, error) {
	return h.events.Subscribe(topic, func(payload interface{}) error {
		msg, ok := payload.(Message)
		if !ok {
			return fmt.Errorf("unexpected payload %T", payload)
		}
		return handler(msg)
	})
}

// SubscriberCount returns the number of handlers registered on topic.
func (h *Hub) SubscriberCount(topic domain.Topic) int {
	return h.events.HandlerCount(topic)
}

// ErrHubClosed is returned by every publish after Close.
var ErrHubClosed = domain.ErrClosed

// Close stops all further delivery. Later publishes fail with ErrHubClosed.
func (h *Hub) Close() {
	h.events.Close()
}

// ---------------------------------------------------------------------------
// Typed emitters
// ---------------------------------------------------------------------------

func (h *Hub) PublishThought(m AgentThought) error { return h.Publish(m.Topic(), m) }
func (h *Hub) PublishInput(m UserInput) error      { return h.Publish(m.Topic(), m) }
func (h *Hub) PublishAction(m ActionRequest) error { return h.Publish(m.Topic(), m) }
func (h *Hub) PublishSign(m SignRequest) error     { return h.Publish(m.Topic(), m) }
func (h *Hub) PublishLog(m LogEvent) error         { return h.Publish(m.Topic(), m) }
func (h *Hub) PublishShutdown(m Shutdown) error    { return h.Publish(m.Topic(), m) }

// Log is shorthand for publishing a LogEvent stamped now.
func (h *Hub) Log(level domain.LogLevel, format string, args ...interface{}) error {
	return h.PublishLog(LogEvent{Level: level, Message: fmt.Sprintf(format, args...)})
}

// Thought is shorthand for publishing an AgentThought.
func (h *Hub) Thought(status domain.ThoughtStatus, message, details string) error {
	return h.PublishThought(AgentThought{Status: status, Message: message, Details: details})
}

// ---------------------------------------------------------------------------
// Typed listeners
// ---------------------------------------------------------------------------

func (h *Hub) OnThought(fn func(AgentThought)) *Subscription {
	return h.mustSubscribe(domain.TopicAgentThought, func(m Message) { fn(m.(AgentThought)) })
}

func (h *Hub) OnInput(fn func(UserInput)) *Subscription {
	return h.mustSubscribe(domain.TopicUserInput, func(m Message) { fn(m.(UserInput)) })
}

func (h *Hub) OnAction(fn func(ActionRequest)) *Subscription {
	return h.mustSubscribe(domain.TopicActionRequest, func(m Message) { fn(m.(ActionRequest)) })
}

func (h *Hub) OnSign(fn func(SignRequest)) *Subscription {
	return h.mustSubscribe(domain.TopicSignRequest, func(m Message) { fn(m.(SignRequest)) })
}

func (h *Hub) OnLog(fn func(LogEvent)) *Subscription {
	return h.mustSubscribe(domain.TopicLog, func(m Message) { fn(m.(LogEvent)) })
}

func (h *Hub) OnShutdown(fn func(Shutdown)) *Subscription {
	return h.mustSubscribe(domain.TopicShutdown, func(m Message) { fn(m.(Shutdown)) })
}

// mustSubscribe is only called with fixed topics, which cannot fail.
func (h *Hub) mustSubscribe(topic domain.Topic, fn func(Message)) *Subscription {
	sub, err := h.Subscribe(topic, func(m Message) error {
		fn(m)
		return nil
	})
	if err != nil {
		panic(fmt.Sprintf("bus: subscribe %s: %v", topic, err))
	}
	return sub
}
