// Package cli is the terminal front end: a readline prompt that submits user
// input to the hub and prints the operator log and agent status.
package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/chzyer/readline"

	"github.com/lucci-labs/luccibot/pkg/bus"
	"github.com/lucci-labs/luccibot/pkg/domain"
	"github.com/lucci-labs/luccibot/pkg/logger"
)

const clearScreen = "\033[H\033[2J"

// Options configures the console.
type Options struct {
	Prompt      string
	HistoryFile string
	Theme       domain.Theme
	WindowSize  int
	// Stdin and Stdout default to the process streams.
	Stdin  io.ReadCloser
	Stdout io.Writer
}

// Console is the interactive front end.
type Console struct {
	hub    *bus.Hub
	opts   Options
	styles Styles
	window *LogWindow

	mu      sync.Mutex
	out     io.Writer
	rl      *readline.Instance
	thought bus.AgentThought
	closed  bool

	subs []*bus.Subscription
}

// NewConsole creates a console and subscribes it to log, agent_thought and
// shutdown.
func NewConsole(hub *bus.Hub, opts Options) *Console {
	if opts.Prompt == "" {
		opts.Prompt = "lucci> "
	}
	if opts.Stdout == nil {
		opts.Stdout = os.Stdout
	}
	c := &Console{
		hub:     hub,
		opts:    opts,
		styles:  StylesFor(opts.Theme),
		window:  NewLogWindow(opts.WindowSize),
		out:     opts.Stdout,
		thought: bus.AgentThought{Status: domain.ThoughtIdle, Message: "Ready."},
	}
	c.subs = append(c.subs,
		hub.OnLog(c.onLog),
		hub.OnThought(c.onThought),
		hub.OnShutdown(func(bus.Shutdown) { c.close() }),
	)
	return c
}

// Window returns the log window.
func (c *Console) Window() *LogWindow { return c.window }

// Thought returns the latest agent status.
func (c *Console) Thought() bus.AgentThought {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.thought
}

// Run reads lines until exit, end of input, shutdown or ctx cancellation.
func (c *Console) Run(ctx context.Context) error {
	rl, err := readline.NewEx(&readline.Config{
		Prompt:            c.styles.RenderPrompt(c.opts.Prompt, c.Thought().Status),
		HistoryFile:       c.opts.HistoryFile,
		HistorySearchFold: true,
		InterruptPrompt:   "^C",
		EOFPrompt:         "exit",
		Stdin:             c.opts.Stdin,
		Stdout:            c.opts.Stdout,
	})
	if err != nil {
		return fmt.Errorf("cli: start readline: %w", err)
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		rl.Close()
		return nil
	}
	c.rl = rl
	c.out = rl.Stdout()
	c.mu.Unlock()

	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-ctx.Done():
			c.close()
		case <-stop:
		}
	}()
	defer c.close()

	for {
		line, err := rl.Readline()
		switch {
		case errors.Is(err, readline.ErrInterrupt):
			if line != "" {
				continue
			}
			c.requestShutdown("interrupt")
			return nil
		case errors.Is(err, io.EOF):
			c.requestShutdown("end of input")
			return nil
		case err != nil:
			if c.isClosed() {
				return nil
			}
			return fmt.Errorf("cli: read: %w", err)
		}
		if !c.Submit(line) {
			return nil
		}
	}
}

// Submit handles one entered line. It reports false when the console should
// stop reading.
func (c *Console) Submit(line string) bool {
	text := strings.TrimSpace(line)
	if text == "" {
		return true
	}

	switch strings.ToLower(text) {
	case "exit", "quit":
		c.requestShutdown("operator exit")
		return false
	case "clear":
		c.window.Clear()
		c.print(clearScreen)
	}

	if err := c.hub.PublishInput(bus.UserInput{Text: text}); err != nil {
		logger.WarnCF("cli", "Input rejected", map[string]interface{}{"error": err.Error()})
		c.println(c.styles.Levels[domain.LevelError].Render(err.Error()))
	}
	return true
}

// Close detaches the console from the hub.
func (c *Console) Close() {
	for _, s := range c.subs {
		s.Unsubscribe()
	}
	c.close()
}

func (c *Console) requestShutdown(reason string) {
	if err := c.hub.PublishShutdown(bus.Shutdown{Reason: reason}); err != nil {
		logger.ErrorCF("cli", "Shutdown publish failed", map[string]interface{}{"error": err.Error()})
	}
	c.close()
}

func (c *Console) close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	rl := c.rl
	c.mu.Unlock()
	if rl != nil {
		rl.Close()
	}
}

func (c *Console) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// ---------------------------------------------------------------------------
// Rendering
// ---------------------------------------------------------------------------

func (c *Console) onLog(e bus.LogEvent) {
	c.window.Add(e)
	c.println(c.styles.RenderLog(e))
}

func (c *Console) onThought(t bus.AgentThought) {
	c.mu.Lock()
	c.thought = t
	rl := c.rl
	c.mu.Unlock()

	if t.Status != domain.ThoughtIdle {
		c.println(c.styles.RenderThought(t))
	}
	if rl != nil {
		rl.SetPrompt(c.styles.RenderPrompt(c.opts.Prompt, t.Status))
		rl.Refresh()
	}
}

func (c *Console) print(s string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	fmt.Fprint(c.out, s)
}

func (c *Console) println(s string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	fmt.Fprintln(c.out, s)
}
