package domain

// ---------------------------------------------------------------------------
// Shared value objects
// ---------------------------------------------------------------------------

// ThoughtStatus is the agent activity indicator carried by agent_thought.
type ThoughtStatus string

const (
	ThoughtThinking ThoughtStatus = "thinking"
	ThoughtIdle     ThoughtStatus = "idle"
	ThoughtWorking  ThoughtStatus = "working"
	ThoughtError    ThoughtStatus = "error"
)

// AllThoughtStatuses returns every known status.
func AllThoughtStatuses() []ThoughtStatus {
	return []ThoughtStatus{ThoughtThinking, ThoughtIdle, ThoughtWorking, ThoughtError}
}

func (ts ThoughtStatus) String() string { return string(ts) }

// Valid returns true if the status is recognized.
func (ts ThoughtStatus) Valid() bool {
	for _, s := range AllThoughtStatuses() {
		if s == ts {
			return true
		}
	}
	return false
}

// Terminal reports whether the status ends a handling turn.
func (ts ThoughtStatus) Terminal() bool {
	return ts == ThoughtIdle || ts == ThoughtError
}

// ---------------------------------------------------------------------------

// LogLevel classifies log events shown to the operator.
type LogLevel string

const (
	LevelInfo    LogLevel = "info"
	LevelWarn    LogLevel = "warn"
	LevelError   LogLevel = "error"
	LevelSuccess LogLevel = "success"
)

// AllLogLevels returns every known level.
func AllLogLevels() []LogLevel {
	return []LogLevel{LevelInfo, LevelWarn, LevelError, LevelSuccess}
}

func (l LogLevel) String() string { return string(l) }

// Valid returns true if the level is recognized.
func (l LogLevel) Valid() bool {
	for _, lv := range AllLogLevels() {
		if lv == l {
			return true
		}
	}
	return false
}

// ---------------------------------------------------------------------------

// MessageRole represents who sent a message in a chat conversation.
type MessageRole string

const (
	RoleUser      MessageRole = "user"
	RoleAssistant MessageRole = "assistant"
	RoleSystem    MessageRole = "system"
)

func (mr MessageRole) String() string { return string(mr) }

// ---------------------------------------------------------------------------

// Theme is the operator's preferred colour scheme.
type Theme string

const (
	ThemeLight  Theme = "light"
	ThemeDark   Theme = "dark"
	ThemeSystem Theme = "system"
)

func (t Theme) String() string { return string(t) }

// Valid returns true if the theme is recognized.
func (t Theme) Valid() bool {
	switch t {
	case ThemeLight, ThemeDark, ThemeSystem:
		return true
	}
	return false
}
