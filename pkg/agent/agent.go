// Package agent is the intent router. Each user input is classified into one
// route (swap, config, clear or chat) and handled through the hub. Every
// input ends with an idle or error thought.
package agent

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/lucci-labs/luccibot/pkg/bus"
	"github.com/lucci-labs/luccibot/pkg/config"
	"github.com/lucci-labs/luccibot/pkg/domain"
	"github.com/lucci-labs/luccibot/pkg/domain/provider"
	"github.com/lucci-labs/luccibot/pkg/logger"
	"github.com/lucci-labs/luccibot/pkg/orchestration"
	"github.com/lucci-labs/luccibot/pkg/providers"
)

// DefaultSystemPrompt opens every chat request.
const DefaultSystemPrompt = "You are LucciBot, a command-driven crypto assistant running in the operator's terminal. " +
	"Answer concisely. The operator can run 'swap <amount> <token>' to build a transaction."

const (
	DefaultActionDelay = 500 * time.Millisecond
	DefaultChatTimeout = 60 * time.Second
)

// ConfigStore is the part of the config store the agent uses.
type ConfigStore interface {
	Snapshot() config.Config
	DefaultProvider() string
	SetProvider(name string, patch config.ProviderPatch) error
	SetDefaultProvider(name string) error
	SetDefaultModel(model string) error
}

// Options tunes the agent. Zero delays take the defaults; negative disables.
type Options struct {
	ActionDelay  time.Duration
	ChatTimeout  time.Duration
	QueueSize    int
	SystemPrompt string
}

// Agent routes user input.
type Agent struct {
	hub   *bus.Hub
	cfg   ConfigStore
	chat  providers.ChatClient
	opts  Options
	rules []Rule
	lane  *orchestration.Lane[string]
	subs  []*bus.Subscription
}

// New creates an agent and subscribes it to user input and shutdown.
// Inputs are processed one at a time by Run.
func New(hub *bus.Hub, cfg ConfigStore, chat providers.ChatClient, opts Options) *Agent {
	if opts.ActionDelay == 0 {
		opts.ActionDelay = DefaultActionDelay
	}
	if opts.ChatTimeout <= 0 {
		opts.ChatTimeout = DefaultChatTimeout
	}
	if opts.SystemPrompt == "" {
		opts.SystemPrompt = DefaultSystemPrompt
	}

	a := &Agent{hub: hub, cfg: cfg, chat: chat, opts: opts}
	a.rules = bindRules(map[Route]func(context.Context, Command){
		RouteSwap:   a.handleSwap,
		RouteConfig: a.handleConfig,
		RouteClear:  a.handleClear,
		RouteChat:   a.handleChat,
	})
	a.lane = orchestration.NewLane("agent", opts.QueueSize, a.Handle)
	a.subs = append(a.subs,
		hub.OnInput(a.enqueue),
		hub.OnShutdown(func(bus.Shutdown) { a.lane.Stop() }),
	)
	return a
}

// Run processes queued inputs until ctx is done or shutdown is published.
func (a *Agent) Run(ctx context.Context) error {
	logger.InfoC("agent", "Agent started")
	return a.lane.Run(ctx)
}

// Close detaches the agent from the hub.
func (a *Agent) Close() {
	for _, s := range a.subs {
		s.Unsubscribe()
	}
	a.lane.Stop()
}

// Stats exposes the queue counters.
func (a *Agent) Stats() orchestration.LaneStats { return a.lane.Stats() }

func (a *Agent) enqueue(in bus.UserInput) {
	if a.lane.Offer(in.Text) {
		return
	}
	logger.WarnCF("agent", "Queue full, dropping input", map[string]interface{}{"text": in.Text})
	_ = a.hub.Log(domain.LevelWarn, "Agent is busy, input dropped: %s", in.Text)
}

// Handle processes one input to completion.
func (a *Agent) Handle(ctx context.Context, text string) {
	defer func() {
		if r := recover(); r != nil {
			logger.ErrorCF("agent", "Handler panicked", map[string]interface{}{
				"panic": fmt.Sprint(r),
				"text":  text,
			})
			_ = a.hub.Log(domain.LevelError, "Internal error: %v", r)
			_ = a.hub.Thought(domain.ThoughtError, "Internal error.", "")
		}
	}()

	_ = a.hub.Thought(domain.ThoughtThinking, "Parsing intent...", "")

	cmd := ParseCommand(text)
	for _, rule := range a.rules {
		if !rule.Match(cmd) {
			continue
		}
		logger.DebugCF("agent", "Input classified", map[string]interface{}{"route": string(rule.Name)})
		rule.Handle(ctx, cmd)
		return
	}
}

func (a *Agent) idle(message string) {
	_ = a.hub.Thought(domain.ThoughtIdle, message, "")
}

func (a *Agent) warn(format string, args ...interface{}) {
	_ = a.hub.Log(domain.LevelWarn, format, args...)
	a.idle("Ready.")
}

func (a *Agent) failed(thought string, err error, format string, args ...interface{}) {
	logger.ErrorCF("agent", thought, map[string]interface{}{"error": err.Error()})
	_ = a.hub.Log(domain.LevelError, format, args...)
	_ = a.hub.Thought(domain.ThoughtError, thought, "")
}

// ---------------------------------------------------------------------------
// Transaction path
// ---------------------------------------------------------------------------

func (a *Agent) handleSwap(ctx context.Context, cmd Command) {
	_ = a.hub.Thought(domain.ThoughtWorking, "Intent identified: Transaction", "Preparing to call Bridge...")

	if err := a.sleep(ctx, a.opts.ActionDelay); err != nil {
		a.failed("Transaction cancelled.", err, "Transaction cancelled: %v", err)
		return
	}

	if err := a.hub.PublishAction(bus.ActionRequest{Skill: "swap", Args: cmd.Args()}); err != nil {
		a.failed("Could not hand off transaction.", err, "Could not hand off transaction: %v", err)
		return
	}
	a.idle("Handed off to skill runner")
}

func (a *Agent) sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// ---------------------------------------------------------------------------
// Configuration path
// ---------------------------------------------------------------------------

const (
	usageSet   = "Usage: config set <provider> <apiKey> [model]"
	usageUse   = "Usage: config use <provider>"
	usageModel = "Usage: config model <model>"
)

func (a *Agent) handleConfig(_ context.Context, cmd Command) {
	switch strings.ToLower(cmd.Arg(1)) {
	case "set":
		a.configSet(cmd)
	case "use":
		a.configUse(cmd)
	case "model":
		a.configModel(cmd)
	case "show":
		a.configShow()
	default:
		a.warn("unknown config command %q. Try: config set | use | model | show", cmd.Arg(1))
	}
}

func (a *Agent) configSet(cmd Command) {
	name, key, model := strings.ToLower(cmd.Arg(2)), cmd.Arg(3), cmd.Arg(4)
	if name == "" || key == "" {
		a.warn(usageSet)
		return
	}

	patch := config.ProviderPatch{APIKey: &key}
	if model != "" {
		patch.ActiveModels = []string{model}
	}
	if err := a.cfg.SetProvider(name, patch); err != nil {
		a.configFailed(err)
		return
	}
	if a.cfg.DefaultProvider() == "" {
		if err := a.cfg.SetDefaultProvider(name); err != nil {
			a.configFailed(err)
			return
		}
	}

	logger.InfoCF("agent", "Provider updated", map[string]interface{}{
		"provider": name,
		"api_key":  config.MaskSecret(key),
		"model":    model,
	})
	_ = a.hub.Log(domain.LevelSuccess, "Provider '%s' updated", name)
	a.idle("Ready.")
}

func (a *Agent) configUse(cmd Command) {
	name := strings.ToLower(cmd.Arg(2))
	if name == "" {
		a.warn(usageUse)
		return
	}
	if err := a.cfg.SetDefaultProvider(name); err != nil {
		a.configFailed(err)
		return
	}
	_ = a.hub.Log(domain.LevelSuccess, "Default provider set to '%s'", name)
	a.idle("Ready.")
}

func (a *Agent) configModel(cmd Command) {
	model := cmd.Arg(2)
	if model == "" {
		a.warn(usageModel)
		return
	}
	if err := a.cfg.SetDefaultModel(model); err != nil {
		a.configFailed(err)
		return
	}
	_ = a.hub.Log(domain.LevelSuccess, "Default model set to '%s'", model)
	a.idle("Ready.")
}

func (a *Agent) configShow() {
	c := a.cfg.Snapshot().Masked()

	var b strings.Builder
	def := c.DefaultProvider
	if def == "" {
		def = "(none)"
	}
	fmt.Fprintf(&b, "Default provider: %s", def)
	if c.DefaultModel != "" {
		fmt.Fprintf(&b, ", default model: %s", c.DefaultModel)
	}

	var configured []string
	for _, name := range c.ProviderNames() {
		p := c.Providers[name]
		if p.APIKey == "" {
			continue
		}
		entry := fmt.Sprintf("%s %s", name, p.APIKey)
		if !p.Enabled {
			entry += " (disabled)"
		}
		configured = append(configured, entry)
	}
	if len(configured) == 0 {
		b.WriteString(". No provider has an API key.")
	} else {
		fmt.Fprintf(&b, ". Configured: %s", strings.Join(configured, ", "))
	}

	_ = a.hub.Log(domain.LevelInfo, "%s", b.String())
	a.idle("Ready.")
}

func (a *Agent) configFailed(err error) {
	a.failed("Configuration update failed.", err, "Failed to save config: %v", err)
}

// ---------------------------------------------------------------------------
// Clear
// ---------------------------------------------------------------------------

func (a *Agent) handleClear(context.Context, Command) {
	_ = a.hub.Log(domain.LevelInfo, "Console cleared.")
	a.idle("Ready.")
}

// ---------------------------------------------------------------------------
// Chat path
// ---------------------------------------------------------------------------

const noProviderHint = "No AI provider configured. Run 'config set <provider> <apiKey> [model]' to enable chat."

// splitProvider extracts an explicit "@provider" prefix.
func splitProvider(cmd Command) (name, prompt string) {
	first := cmd.Arg(0)
	if len(first) > 1 && strings.HasPrefix(first, "@") {
		rest := strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(cmd.Raw), first))
		return strings.ToLower(first[1:]), rest
	}
	return "", cmd.Raw
}

func (a *Agent) handleChat(ctx context.Context, cmd Command) {
	name, prompt := splitProvider(cmd)

	target, err := a.cfg.Snapshot().ResolveTarget(name)
	if err != nil {
		switch {
		case errors.Is(err, provider.ErrProviderDisabled):
			_ = a.hub.Log(domain.LevelInfo, "Provider '%s' is disabled. %s", target.Provider, noProviderHint)
		case errors.Is(err, provider.ErrNoAPIKey) && target.Provider != "":
			_ = a.hub.Log(domain.LevelInfo, "Provider '%s' has no API key. %s", target.Provider, noProviderHint)
		default:
			_ = a.hub.Log(domain.LevelInfo, noProviderHint)
		}
		a.idle("Ready.")
		return
	}
	if strings.TrimSpace(prompt) == "" {
		if name != "" {
			a.warn("Usage: @<provider> <message>")
		} else {
			a.warn("Nothing to send. Type a message or a command.")
		}
		return
	}

	callCtx, cancel := context.WithTimeout(ctx, a.opts.ChatTimeout)
	defer cancel()

	start := time.Now()
	resp, err := a.chat.Complete(callCtx, providers.ChatRequest{
		BaseURL: target.BaseURL,
		APIKey:  target.APIKey,
		Model:   target.Model,
		Messages: []providers.ChatMessage{
			{Role: domain.RoleSystem, Content: a.opts.SystemPrompt},
			{Role: domain.RoleUser, Content: prompt},
		},
	})
	if err != nil {
		a.failed("Chat request failed.", err, "Chat request to %s failed: %v", target.Provider, err)
		return
	}

	logger.InfoCF("agent", "Chat completed", map[string]interface{}{
		"provider":    target.Provider,
		"model":       target.Model,
		"duration_ms": time.Since(start).Milliseconds(),
	})
	_ = a.hub.Log(domain.LevelInfo, "%s", resp.Content)
	a.idle("Ready.")
}
