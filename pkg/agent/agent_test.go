package agent

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/lucci-labs/luccibot/pkg/bus"
	"github.com/lucci-labs/luccibot/pkg/bus/bustest"
	"github.com/lucci-labs/luccibot/pkg/config"
	"github.com/lucci-labs/luccibot/pkg/domain"
	"github.com/lucci-labs/luccibot/pkg/logger"
	"github.com/lucci-labs/luccibot/pkg/providers"
)

func TestMain(m *testing.M) {
	logger.Discard()
	goleak.VerifyTestMain(m)
}

type fakeChat struct {
	mu       sync.Mutex
	requests []providers.ChatRequest
	resp     *providers.ChatResponse
	err      error
}

func (f *fakeChat) Complete(_ context.Context, req providers.ChatRequest) (*providers.ChatResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, req)
	return f.resp, f.err
}

type fixture struct {
	hub   *bus.Hub
	rec   *bustest.Recorder
	store *config.Store
	chat  *fakeChat
	agent *Agent
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store, err := config.Open(filepath.Join(t.TempDir(), "config.json"))
	require.NoError(t, err)

	h := bus.NewHub()
	f := &fixture{
		hub:   h,
		rec:   bustest.NewRecorder(h),
		store: store,
		chat:  &fakeChat{resp: &providers.ChatResponse{Content: "gm"}},
	}
	f.agent = New(h, store, f.chat, Options{ActionDelay: -1})
	t.Cleanup(f.agent.Close)
	return f
}

func (f *fixture) handle(text string) {
	f.rec.Reset()
	f.agent.Handle(context.Background(), text)
}

func strPtr(s string) *string { return &s }

// ---------------------------------------------------------------------------
// Classification
// ---------------------------------------------------------------------------

func TestClassify(t *testing.T) {
	tests := []struct {
		text string
		want Route
	}{
		{"swap 10 eth", RouteSwap},
		{"  SWAP 1 BTC ", RouteSwap},
		{"swapping is fun", RouteSwap},
		{"config set openai sk", RouteConfig},
		{"Config show", RouteConfig},
		{"config swap", RouteConfig},
		{"clear", RouteClear},
		{"  CLEAR  ", RouteClear},
		{"clear the logs", RouteChat},
		{"hello there", RouteChat},
		{"@openai what is gas?", RouteChat},
		{"   ", RouteChat},
	}
	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			assert.Equal(t, tt.want, Classify(tt.text))
		})
	}
}

func TestParseCommandKeepsCasing(t *testing.T) {
	cmd := ParseCommand("  config set OpenAI sk-AbC  ")
	assert.Equal(t, "config set openai sk-abc", cmd.Normalized)
	assert.Equal(t, []string{"config", "set", "OpenAI", "sk-AbC"}, cmd.Tokens)
	assert.Equal(t, "sk-AbC", cmd.Arg(3))
	assert.Equal(t, "", cmd.Arg(9))
	assert.Equal(t, []string{}, ParseCommand("swap").Args())
}

// ---------------------------------------------------------------------------
// Transaction path
// ---------------------------------------------------------------------------

func TestSwapPublishesOneActionAfterWorkingThought(t *testing.T) {
	f := newFixture(t)
	f.handle("swap 10 eth")

	actions := f.rec.Actions()
	require.Len(t, actions, 1)
	assert.Equal(t, "swap", actions[0].Skill)
	assert.Equal(t, []string{"10", "eth"}, actions[0].Args)

	var order []string
	for _, e := range f.rec.Entries() {
		switch m := e.Message.(type) {
		case bus.AgentThought:
			order = append(order, string(m.Status))
		case bus.ActionRequest:
			order = append(order, "action")
		}
	}
	assert.Equal(t, []string{"thinking", "working", "action", "idle"}, order)
	assert.Empty(t, f.rec.SignRequests())
}

func TestSwapWaitsForActionDelay(t *testing.T) {
	f := newFixture(t)
	f.agent.opts.ActionDelay = 20 * time.Millisecond

	start := time.Now()
	f.handle("swap 1 eth")
	assert.GreaterOrEqual(t, time.Since(start), 20*time.Millisecond)
	assert.Len(t, f.rec.Actions(), 1)
}

// ---------------------------------------------------------------------------
// Configuration path
// ---------------------------------------------------------------------------

func TestConfigSet(t *testing.T) {
	f := newFixture(t)
	f.handle("config set openai sk-test gpt-4")

	p, ok := f.store.Provider("openai")
	require.True(t, ok)
	assert.Equal(t, "sk-test", p.APIKey)
	assert.Contains(t, p.ActiveModels, "gpt-4")
	assert.Equal(t, "openai", f.store.DefaultProvider(), "first provider becomes the default")

	success := f.rec.LogsAt(domain.LevelSuccess)
	require.Len(t, success, 1)
	assert.Equal(t, "Provider 'openai' updated", success[0].Message)
	assert.True(t, f.rec.Settled())

	require.NoError(t, f.store.SetProvider("openai", config.ProviderPatch{BaseURL: strPtr("http://localhost:1234/v1")}))
	p, _ = f.store.Provider("openai")
	assert.Equal(t, "sk-test", p.APIKey)
	assert.Equal(t, "http://localhost:1234/v1", p.BaseURL)
}

func TestConfigSetKeepsExistingDefault(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.store.SetDefaultProvider("anthropic"))

	f.handle("config set OpenAI sk-Mixed")
	assert.Equal(t, "anthropic", f.store.DefaultProvider())
	p, _ := f.store.Provider("openai")
	assert.Equal(t, "sk-Mixed", p.APIKey, "key casing is preserved")
	assert.Contains(t, p.ActiveModels, "gpt-4o", "models untouched without a model argument")
}

func TestConfigUsePersists(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.store.SetProvider("anthropic", config.ProviderPatch{APIKey: strPtr("sk-ant")}))

	f.handle("config use anthropic")
	assert.Equal(t, "anthropic", f.store.Snapshot().DefaultProvider)

	success := f.rec.LogsAt(domain.LevelSuccess)
	require.Len(t, success, 1)
	assert.Equal(t, "Default provider set to 'anthropic'", success[0].Message)

	f.store.Reload()
	assert.Equal(t, "anthropic", f.store.Snapshot().DefaultProvider)
}

func TestConfigModelAndShow(t *testing.T) {
	f := newFixture(t)
	f.handle("config model gpt-4o-mini")
	assert.Equal(t, "gpt-4o-mini", f.store.Snapshot().DefaultModel)
	require.Len(t, f.rec.LogsAt(domain.LevelSuccess), 1)

	require.NoError(t, f.store.SetProvider("openai", config.ProviderPatch{APIKey: strPtr("sk-secret-1234")}))
	require.NoError(t, f.store.SetDefaultProvider("openai"))
	f.handle("config show")

	infos := f.rec.LogsAt(domain.LevelInfo)
	require.Len(t, infos, 1)
	assert.Contains(t, infos[0].Message, "Default provider: openai")
	assert.Contains(t, infos[0].Message, "openai ****1234")
	assert.NotContains(t, infos[0].Message, "sk-secret")
	assert.True(t, f.rec.Settled())
}

func TestConfigUserErrors(t *testing.T) {
	tests := []string{
		"config set",
		"config set openai",
		"config use",
		"config model",
		"config",
		"config frobnicate",
	}
	for _, text := range tests {
		t.Run(text, func(t *testing.T) {
			f := newFixture(t)
			before := f.store.Snapshot()
			f.handle(text)

			assert.Len(t, f.rec.LogsAt(domain.LevelWarn), 1)
			assert.Empty(t, f.rec.LogsAt(domain.LevelSuccess))
			last, _ := f.rec.LastThought()
			assert.Equal(t, domain.ThoughtIdle, last.Status)
			assert.Equal(t, before, f.store.Snapshot())
		})
	}
}

type brokenStore struct{ *config.Store }

func (brokenStore) SetProvider(string, config.ProviderPatch) error { return errors.New("disk full") }

func TestConfigWriteFailure(t *testing.T) {
	f := newFixture(t)
	f.agent.Close()
	f.agent = New(f.hub, brokenStore{f.store}, f.chat, Options{ActionDelay: -1})
	defer f.agent.Close()

	f.handle("config set openai sk-test")
	errs := f.rec.LogsAt(domain.LevelError)
	require.Len(t, errs, 1)
	assert.Contains(t, errs[0].Message, "disk full")
	last, _ := f.rec.LastThought()
	assert.Equal(t, domain.ThoughtError, last.Status)
}

// ---------------------------------------------------------------------------
// Clear
// ---------------------------------------------------------------------------

func TestClear(t *testing.T) {
	f := newFixture(t)
	f.handle("clear")
	infos := f.rec.LogsAt(domain.LevelInfo)
	require.Len(t, infos, 1)
	assert.Equal(t, "Console cleared.", infos[0].Message)
	assert.True(t, f.rec.Settled())
}

// ---------------------------------------------------------------------------
// Chat path
// ---------------------------------------------------------------------------

func TestChatWithoutProviderEmitsOneInfoLog(t *testing.T) {
	for _, text := range []string{"hello", "what's the price of eth?", "   ", "@openai hi", "@nobody"} {
		t.Run(text, func(t *testing.T) {
			f := newFixture(t)
			f.handle(text)

			assert.Len(t, f.rec.LogsAt(domain.LevelInfo), 1)
			assert.Len(t, f.rec.Logs(), 1)
			assert.Empty(t, f.rec.Actions())
			assert.Empty(t, f.rec.SignRequests())
			last, _ := f.rec.LastThought()
			assert.Equal(t, domain.ThoughtIdle, last.Status)
			assert.Empty(t, f.chat.requests)
		})
	}
}

func TestChatUsesDefaultProvider(t *testing.T) {
	f := newFixture(t)
	f.handle("config set openai sk-test gpt-4")
	f.handle("What is a Nonce?")

	require.Len(t, f.chat.requests, 1)
	req := f.chat.requests[0]
	assert.Equal(t, "https://api.openai.com/v1", req.BaseURL)
	assert.Equal(t, "sk-test", req.APIKey)
	assert.Equal(t, "gpt-4", req.Model)
	require.Len(t, req.Messages, 2)
	assert.Equal(t, domain.RoleSystem, req.Messages[0].Role)
	assert.Equal(t, DefaultSystemPrompt, req.Messages[0].Content)
	assert.Equal(t, domain.RoleUser, req.Messages[1].Role)
	assert.Equal(t, "What is a Nonce?", req.Messages[1].Content)

	infos := f.rec.LogsAt(domain.LevelInfo)
	require.Len(t, infos, 1)
	assert.Equal(t, "gm", infos[0].Message)
	last, _ := f.rec.LastThought()
	assert.Equal(t, domain.ThoughtIdle, last.Status)
}

func TestBlankChatInputWarnsWithoutCalling(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.store.SetProvider("openai", config.ProviderPatch{APIKey: strPtr("sk-o")}))
	require.NoError(t, f.store.SetDefaultProvider("openai"))

	tests := []struct {
		input string
		want  string
	}{
		{"   ", "Nothing to send"},
		{"@openai", "Usage: @<provider> <message>"},
		{"@openai    ", "Usage: @<provider> <message>"},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			f.handle(tt.input)
			warns := f.rec.LogsAt(domain.LevelWarn)
			require.Len(t, warns, 1)
			assert.Contains(t, warns[0].Message, tt.want)
			if tt.input == "   " {
				assert.NotContains(t, warns[0].Message, "@<provider>")
			}
			last, _ := f.rec.LastThought()
			assert.Equal(t, domain.ThoughtIdle, last.Status)
		})
	}
	assert.Empty(t, f.chat.requests)
}

func TestChatExplicitProvider(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.store.SetProvider("openai", config.ProviderPatch{APIKey: strPtr("sk-o")}))
	require.NoError(t, f.store.SetProvider("anthropic", config.ProviderPatch{APIKey: strPtr("sk-a")}))
	require.NoError(t, f.store.SetDefaultProvider("openai"))

	f.handle("@Anthropic explain MEV")
	require.Len(t, f.chat.requests, 1)
	assert.Equal(t, "https://api.anthropic.com/v1", f.chat.requests[0].BaseURL)
	assert.Equal(t, "sk-a", f.chat.requests[0].APIKey)
	assert.Equal(t, "explain MEV", f.chat.requests[0].Messages[1].Content)
}

func TestChatFailure(t *testing.T) {
	f := newFixture(t)
	f.chat.err = &providers.HTTPError{StatusCode: 401, Detail: "bad key"}
	f.handle("config set openai sk-test")
	f.handle("hello")

	errs := f.rec.LogsAt(domain.LevelError)
	require.Len(t, errs, 1)
	assert.Contains(t, errs[0].Message, "401")
	assert.Empty(t, f.rec.LogsAt(domain.LevelInfo))
	last, _ := f.rec.LastThought()
	assert.Equal(t, domain.ThoughtError, last.Status)
}

func TestChatDisabledProvider(t *testing.T) {
	f := newFixture(t)
	off := false
	require.NoError(t, f.store.SetProvider("openai", config.ProviderPatch{APIKey: strPtr("sk"), Enabled: &off}))
	require.NoError(t, f.store.SetDefaultProvider("openai"))

	f.handle("hello")
	infos := f.rec.LogsAt(domain.LevelInfo)
	require.Len(t, infos, 1)
	assert.Contains(t, infos[0].Message, "disabled")
	assert.Empty(t, f.chat.requests)
}

// ---------------------------------------------------------------------------
// Worker
// ---------------------------------------------------------------------------

func TestEveryPathSettles(t *testing.T) {
	f := newFixture(t)
	f.handle("config set openai sk-test")
	for _, text := range []string{"swap 1 eth", "config use openai", "config nope", "clear", "hi", "@x y"} {
		f.handle(text)
		assert.True(t, f.rec.Settled(), text)
	}
}

func TestPanicInHandlerEndsInError(t *testing.T) {
	f := newFixture(t)
	f.agent.chat = nil
	f.handle("config set openai sk-test")
	f.handle("hello")

	last, _ := f.rec.LastThought()
	assert.Equal(t, domain.ThoughtError, last.Status)
}

func TestRunProcessesInputsInOrder(t *testing.T) {
	f := newFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- f.agent.Run(ctx) }()

	require.NoError(t, f.hub.PublishInput(bus.UserInput{Text: "swap 1 eth"}))
	require.NoError(t, f.hub.PublishInput(bus.UserInput{Text: "swap 2 btc"}))

	require.True(t, f.rec.WaitFor(5*time.Second, func(r *bustest.Recorder) bool {
		return len(r.Actions()) == 2 && r.Settled()
	}))
	actions := f.rec.Actions()
	assert.Equal(t, []string{"1", "eth"}, actions[0].Args)
	assert.Equal(t, []string{"2", "btc"}, actions[1].Args)

	// Thoughts of the two runs never interleave.
	var statuses []domain.ThoughtStatus
	for _, th := range f.rec.Thoughts() {
		statuses = append(statuses, th.Status)
	}
	assert.Equal(t, []domain.ThoughtStatus{
		domain.ThoughtThinking, domain.ThoughtWorking, domain.ThoughtIdle,
		domain.ThoughtThinking, domain.ThoughtWorking, domain.ThoughtIdle,
	}, statuses)

	require.NoError(t, f.hub.PublishShutdown(bus.Shutdown{Reason: "test"}))
	assert.NoError(t, <-done)
}

func TestBusyAgentRejectsWithWarning(t *testing.T) {
	h := bus.NewHub()
	rec := bustest.NewRecorder(h)
	store, err := config.Open(filepath.Join(t.TempDir(), "config.json"))
	require.NoError(t, err)
	a := New(h, store, &fakeChat{}, Options{ActionDelay: -1, QueueSize: 1})
	defer a.Close()

	require.NoError(t, h.PublishInput(bus.UserInput{Text: "one"}))
	require.NoError(t, h.PublishInput(bus.UserInput{Text: "two"}))

	warns := rec.LogsAt(domain.LevelWarn)
	require.Len(t, warns, 1)
	assert.Contains(t, warns[0].Message, "two")
	assert.Empty(t, rec.Thoughts(), "rejection leaves the thought state alone")
	assert.Equal(t, int64(1), a.Stats().Rejected)
}
