// Package bustest provides a hub recorder for tests in other packages.
package bustest

import (
	"sync"
	"time"

	"github.com/lucci-labs/luccibot/pkg/bus"
	"github.com/lucci-labs/luccibot/pkg/domain"
)

// Entry is one recorded delivery, in global arrival order.
type Entry struct {
	Topic   domain.Topic
	Message bus.Message
}

// Recorder subscribes to every hub topic and keeps what it sees.
type Recorder struct {
	mu      sync.Mutex
	entries []Entry
	changed chan struct{}
	subs    []*bus.Subscription
}

// NewRecorder attaches a recorder to h.
func NewRecorder(h *bus.Hub) *Recorder {
	r := &Recorder{changed: make(chan struct{}, 1)}
	for _, topic := range domain.AllTopics() {
		topic := topic
		sub, err := h.Subscribe(topic, func(m bus.Message) error {
			r.mu.Lock()
			r.entries = append(r.entries, Entry{Topic: topic, Message: m})
			r.mu.Unlock()
			select {
			case r.changed <- struct{}{}:
			default:
			}
			return nil
		})
		if err != nil {
			panic(err)
		}
		r.subs = append(r.subs, sub)
	}
	return r
}

// Detach stops recording.
func (r *Recorder) Detach() {
	for _, s := range r.subs {
		s.Unsubscribe()
	}
}

// Entries returns a copy of everything recorded so far.
func (r *Recorder) Entries() []Entry {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Entry, len(r.entries))
	copy(out, r.entries)
	return out
}

// Reset forgets everything recorded so far.
func (r *Recorder) Reset() {
	r.mu.Lock()
	r.entries = nil
	r.mu.Unlock()
}

// WaitFor blocks until cond holds for the recorder or the timeout expires.
func (r *Recorder) WaitFor(timeout time.Duration, cond func(*Recorder) bool) bool {
	deadline := time.NewTimer(timeout)
	defer deadline.Stop()
	for {
		if cond(r) {
			return true
		}
		select {
		case <-r.changed:
		case <-deadline.C:
			return cond(r)
		}
	}
}

func (r *Recorder) Thoughts() []bus.AgentThought {
	var out []bus.AgentThought
	for _, e := range r.Entries() {
		if m, ok := e.Message.(bus.AgentThought); ok {
			out = append(out, m)
		}
	}
	return out
}

func (r *Recorder) Logs() []bus.LogEvent {
	var out []bus.LogEvent
	for _, e := range r.Entries() {
		if m, ok := e.Message.(bus.LogEvent); ok {
			out = append(out, m)
		}
	}
	return out
}

func (r *Recorder) Actions() []bus.ActionRequest {
	var out []bus.ActionRequest
	for _, e := range r.Entries() {
		if m, ok := e.Message.(bus.ActionRequest); ok {
			out = append(out, m)
		}
	}
	return out
}

func (r *Recorder) SignRequests() []bus.SignRequest {
	var out []bus.SignRequest
	for _, e := range r.Entries() {
		if m, ok := e.Message.(bus.SignRequest); ok {
			out = append(out, m)
		}
	}
	return out
}

func (r *Recorder) Inputs() []bus.UserInput {
	var out []bus.UserInput
	for _, e := range r.Entries() {
		if m, ok := e.Message.(bus.UserInput); ok {
			out = append(out, m)
		}
	}
	return out
}

// LogsAt returns the recorded logs of one level.
func (r *Recorder) LogsAt(level domain.LogLevel) []bus.LogEvent {
	var out []bus.LogEvent
	for _, l := range r.Logs() {
		if l.Level == level {
			out = append(out, l)
		}
	}
	return out
}

// LastThought returns the most recent thought, if any.
func (r *Recorder) LastThought() (bus.AgentThought, bool) {
	th := r.Thoughts()
	if len(th) == 0 {
		return bus.AgentThought{}, false
	}
	return th[len(th)-1], true
}

// Settled reports whether the latest thought is idle or error.
func (r *Recorder) Settled() bool {
	th, ok := r.LastThought()
	return ok && th.Status.Terminal()
}
