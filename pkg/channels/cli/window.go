package cli

import (
	"sync"

	"github.com/lucci-labs/luccibot/pkg/bus"
)

// DefaultWindowSize is how many log events the console keeps.
const DefaultWindowSize = 50

// LogWindow keeps the trailing log events, oldest first.
type LogWindow struct {
	mu      sync.Mutex
	size    int
	entries []bus.LogEvent
}

func NewLogWindow(size int) *LogWindow {
	if size <= 0 {
		size = DefaultWindowSize
	}
	return &LogWindow{size: size}
}

// Add appends e, evicting the oldest entry when full.
func (w *LogWindow) Add(e bus.LogEvent) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.entries = append(w.entries, e)
	if over := len(w.entries) - w.size; over > 0 {
		w.entries = append([]bus.LogEvent(nil), w.entries[over:]...)
	}
}

func (w *LogWindow) Clear() {
	w.mu.Lock()
	w.entries = nil
	w.mu.Unlock()
}

// Entries returns a copy of the window.
func (w *LogWindow) Entries() []bus.LogEvent {
	w.mu.Lock()
	defer w.mu.Unlock()
	out := make([]bus.LogEvent, len(w.entries))
	copy(out, w.entries)
	return out
}

func (w *LogWindow) Len() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.entries)
}
