package cli

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/lucci-labs/luccibot/pkg/bus"
	"github.com/lucci-labs/luccibot/pkg/domain"
)

// Palette is one set of colours.
type Palette struct {
	Text    lipgloss.TerminalColor
	Muted   lipgloss.TerminalColor
	Accent  lipgloss.TerminalColor
	Error   lipgloss.TerminalColor
	Success lipgloss.TerminalColor
	Warning lipgloss.TerminalColor
}

var (
	darkPalette = Palette{
		Text:    lipgloss.Color("#e0e0e0"),
		Muted:   lipgloss.Color("#888888"),
		Accent:  lipgloss.Color("#7c9fc7"),
		Error:   lipgloss.Color("#d46a6a"),
		Success: lipgloss.Color("#6ad47c"),
		Warning: lipgloss.Color("#d4a96a"),
	}
	lightPalette = Palette{
		Text:    lipgloss.Color("#1a1a1a"),
		Muted:   lipgloss.Color("#666666"),
		Accent:  lipgloss.Color("#2f5f9a"),
		Error:   lipgloss.Color("#b03030"),
		Success: lipgloss.Color("#237a34"),
		Warning: lipgloss.Color("#9a6a10"),
	}
	// follows the terminal background
	systemPalette = Palette{
		Text:    lipgloss.AdaptiveColor{Light: "#1a1a1a", Dark: "#e0e0e0"},
		Muted:   lipgloss.AdaptiveColor{Light: "#666666", Dark: "#888888"},
		Accent:  lipgloss.AdaptiveColor{Light: "#2f5f9a", Dark: "#7c9fc7"},
		Error:   lipgloss.AdaptiveColor{Light: "#b03030", Dark: "#d46a6a"},
		Success: lipgloss.AdaptiveColor{Light: "#237a34", Dark: "#6ad47c"},
		Warning: lipgloss.AdaptiveColor{Light: "#9a6a10", Dark: "#d4a96a"},
	}
)

// Styles renders hub messages for the terminal.
type Styles struct {
	Timestamp lipgloss.Style
	Prompt    lipgloss.Style
	Levels    map[domain.LogLevel]lipgloss.Style
	Thoughts  map[domain.ThoughtStatus]lipgloss.Style
	Details   lipgloss.Style
}

// StylesFor returns the styles for the operator's theme.
func StylesFor(theme domain.Theme) Styles {
	p := systemPalette
	switch theme {
	case domain.ThemeDark:
		p = darkPalette
	case domain.ThemeLight:
		p = lightPalette
	}

	return Styles{
		Timestamp: lipgloss.NewStyle().Foreground(p.Muted),
		Prompt:    lipgloss.NewStyle().Foreground(p.Accent).Bold(true),
		Levels: map[domain.LogLevel]lipgloss.Style{
			domain.LevelInfo:    lipgloss.NewStyle().Foreground(p.Text),
			domain.LevelWarn:    lipgloss.NewStyle().Foreground(p.Warning),
			domain.LevelError:   lipgloss.NewStyle().Foreground(p.Error).Bold(true),
			domain.LevelSuccess: lipgloss.NewStyle().Foreground(p.Success),
		},
		Thoughts: map[domain.ThoughtStatus]lipgloss.Style{
			domain.ThoughtThinking: lipgloss.NewStyle().Foreground(p.Accent).Italic(true),
			domain.ThoughtWorking:  lipgloss.NewStyle().Foreground(p.Warning).Italic(true),
			domain.ThoughtIdle:     lipgloss.NewStyle().Foreground(p.Muted),
			domain.ThoughtError:    lipgloss.NewStyle().Foreground(p.Error),
		},
		Details: lipgloss.NewStyle().Foreground(p.Muted).Italic(true),
	}
}

// RenderLog formats one log line: "15:04:05 WARN  message".
func (s Styles) RenderLog(e bus.LogEvent) string {
	ts := time.UnixMilli(e.Timestamp).Format("15:04:05")
	tag := fmt.Sprintf("%-7s", strings.ToUpper(e.Level.String()))
	style := s.Levels[e.Level]
	return s.Timestamp.Render(ts) + " " + style.Render(tag+e.Message)
}

// RenderThought formats the agent status line.
func (s Styles) RenderThought(t bus.AgentThought) string {
	line := s.Thoughts[t.Status].Render(fmt.Sprintf("[%s] %s", t.Status, t.Message))
	if t.Details != "" {
		line += " " + s.Details.Render(t.Details)
	}
	return line
}

// RenderPrompt formats the input prompt for the current status.
func (s Styles) RenderPrompt(prompt string, status domain.ThoughtStatus) string {
	marker := "●"
	if status == domain.ThoughtThinking || status == domain.ThoughtWorking {
		marker = "◐"
	}
	return s.Thoughts[status].Render(marker) + " " + s.Prompt.Render(prompt)
}
