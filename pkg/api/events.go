// Event bridge: taps the message hub and forwards operator-facing traffic to
// WebSocket clients.
package api

import (
	"sync"

	"github.com/lucci-labs/luccibot/pkg/bus"
	"github.com/lucci-labs/luccibot/pkg/logger"
)

// Frame types sent to clients.
const (
	EventLog     = "log"
	EventThought = "agent_thought"
	EventError   = "error"
)

// EventBridge forwards log and agent_thought messages to the client hub.
type EventBridge struct {
	bus  *bus.Hub
	hub  *WSHub
	mu   sync.Mutex
	subs []*bus.Subscription
}

// NewEventBridge creates a bridge from b to hub. Nothing is forwarded until
// Attach.
func NewEventBridge(b *bus.Hub, hub *WSHub) *EventBridge {
	return &EventBridge{bus: b, hub: hub}
}

// Attach subscribes to the hub topics. Calling it twice is a no-op.
func (eb *EventBridge) Attach() {
	eb.mu.Lock()
	defer eb.mu.Unlock()
	if eb.subs != nil {
		return
	}
	eb.subs = []*bus.Subscription{
		eb.bus.OnLog(func(e bus.LogEvent) { eb.hub.Broadcast(EventLog, e) }),
		eb.bus.OnThought(func(t bus.AgentThought) { eb.hub.Broadcast(EventThought, t) }),
	}
	logger.InfoC("events", "Event bridge attached")
}

// Detach stops forwarding.
func (eb *EventBridge) Detach() {
	eb.mu.Lock()
	defer eb.mu.Unlock()
	for _, s := range eb.subs {
		s.Unsubscribe()
	}
	eb.subs = nil
}
