package cli

import (
	"bytes"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/lucci-labs/luccibot/pkg/bus"
	"github.com/lucci-labs/luccibot/pkg/bus/bustest"
	"github.com/lucci-labs/luccibot/pkg/domain"
	"github.com/lucci-labs/luccibot/pkg/logger"
)

func TestMain(m *testing.M) {
	logger.Discard()
	goleak.VerifyTestMain(m)
}

func newConsole(t *testing.T) (*Console, *bus.Hub, *bustest.Recorder, *bytes.Buffer) {
	t.Helper()
	h := bus.NewHub()
	rec := bustest.NewRecorder(h)
	out := &bytes.Buffer{}
	c := NewConsole(h, Options{Stdout: out, Theme: domain.ThemeDark})
	t.Cleanup(c.Close)
	return c, h, rec, out
}

func TestLogWindowKeepsTrailingEntries(t *testing.T) {
	w := NewLogWindow(0)
	for i := 0; i < 60; i++ {
		w.Add(bus.LogEvent{Level: domain.LevelInfo, Message: fmt.Sprintf("line %d", i)})
	}
	entries := w.Entries()
	require.Len(t, entries, DefaultWindowSize)
	assert.Equal(t, "line 10", entries[0].Message)
	assert.Equal(t, "line 59", entries[49].Message)

	w.Clear()
	assert.Equal(t, 0, w.Len())
}

func TestSubmitPublishesTrimmedInput(t *testing.T) {
	c, _, rec, _ := newConsole(t)

	assert.True(t, c.Submit("   "))
	assert.Empty(t, rec.Inputs())

	assert.True(t, c.Submit("  swap 10 eth \n"))
	inputs := rec.Inputs()
	require.Len(t, inputs, 1)
	assert.Equal(t, "swap 10 eth", inputs[0].Text)
}

func TestExitPublishesShutdown(t *testing.T) {
	for _, line := range []string{"exit", "QUIT", "  exit  "} {
		t.Run(line, func(t *testing.T) {
			c, _, rec, _ := newConsole(t)
			assert.False(t, c.Submit(line))

			var shutdowns int
			for _, e := range rec.Entries() {
				if _, ok := e.Message.(bus.Shutdown); ok {
					shutdowns++
				}
			}
			assert.Equal(t, 1, shutdowns)
			assert.Empty(t, rec.Inputs())
			assert.True(t, c.isClosed())
		})
	}
}

func TestClearEmptiesWindowAndForwardsInput(t *testing.T) {
	c, h, rec, _ := newConsole(t)
	require.NoError(t, h.Log(domain.LevelInfo, "old line"))
	require.Equal(t, 1, c.Window().Len())

	assert.True(t, c.Submit("Clear"))
	assert.Equal(t, 0, c.Window().Len())
	require.Len(t, rec.Inputs(), 1)

	// The agent's acknowledgement lands in the fresh window.
	require.NoError(t, h.Log(domain.LevelInfo, "Console cleared."))
	entries := c.Window().Entries()
	require.Len(t, entries, 1)
	assert.Equal(t, "Console cleared.", entries[0].Message)
}

func TestLogsAreRendered(t *testing.T) {
	c, h, _, out := newConsole(t)
	require.NoError(t, h.Log(domain.LevelWarn, "Usage: config use <provider>"))
	require.NoError(t, h.Log(domain.LevelSuccess, "Transaction 3f2c1a9e signed successfully."))

	text := out.String()
	assert.Contains(t, text, "WARN")
	assert.Contains(t, text, "Usage: config use <provider>")
	assert.Contains(t, text, "SUCCESS")
	assert.Equal(t, 2, c.Window().Len())
}

func TestThoughtIsLastWriteWins(t *testing.T) {
	c, h, _, out := newConsole(t)
	assert.Equal(t, domain.ThoughtIdle, c.Thought().Status)

	require.NoError(t, h.Thought(domain.ThoughtThinking, "Parsing intent...", ""))
	require.NoError(t, h.Thought(domain.ThoughtWorking, "Bridge executing skill: swap", "Args: 10 eth"))
	assert.Equal(t, "Bridge executing skill: swap", c.Thought().Message)

	require.NoError(t, h.Thought(domain.ThoughtIdle, "Ready.", ""))
	assert.Equal(t, domain.ThoughtIdle, c.Thought().Status)

	text := out.String()
	assert.Contains(t, text, "[working] Bridge executing skill: swap")
	assert.Contains(t, text, "Args: 10 eth")
	assert.NotContains(t, text, "Ready.", "idle is shown in the prompt only")
}

func TestShutdownClosesConsole(t *testing.T) {
	c, h, _, _ := newConsole(t)
	require.NoError(t, h.PublishShutdown(bus.Shutdown{Reason: "signal"}))
	assert.True(t, c.isClosed())
}

func TestStylesCoverEveryLevelAndStatus(t *testing.T) {
	for _, theme := range []domain.Theme{domain.ThemeLight, domain.ThemeDark, domain.ThemeSystem} {
		s := StylesFor(theme)
		for _, lvl := range domain.AllLogLevels() {
			assert.Contains(t, s.Levels, lvl, theme)
			assert.Contains(t, s.RenderLog(bus.LogEvent{Level: lvl, Message: "m", Timestamp: 1}), "m")
		}
		for _, st := range domain.AllThoughtStatuses() {
			assert.Contains(t, s.Thoughts, st, theme)
			assert.Contains(t, s.RenderPrompt("lucci> ", st), "lucci> ")
		}
	}
}
