// Package skill defines the Skill bounded context.
// A Skill is an external program under the skills directory that the skill
// runner invokes with positional arguments. Its stdout is its only output.
package skill

import (
	"context"
	"os/exec"
	"path/filepath"
	"strings"
	"time"
)

// ---------------------------------------------------------------------------
// Skill
// ---------------------------------------------------------------------------

// DefaultTimeout bounds a skill run when the manifest does not say otherwise.
const DefaultTimeout = 30 * time.Second

// Skill is a resolved, runnable skill.
type Skill struct {
	Name        string        `json:"name" yaml:"name"`
	Description string        `json:"description,omitempty" yaml:"description,omitempty"`
	Path        string        `json:"path" yaml:"path"`
	Interpreter string        `json:"interpreter,omitempty" yaml:"interpreter,omitempty"`
	Timeout     time.Duration `json:"timeout" yaml:"timeout"`
	Metrics     SkillMetrics  `json:"metrics" yaml:"metrics"`
}

// Command builds the process for one run. Interpreted skills receive the
// script path first; direct skills are executed as-is.
func (s *Skill) Command(ctx context.Context, args []string) *exec.Cmd {
	if s.Interpreter == "" {
		return exec.CommandContext(ctx, s.Path, args...)
	}
	argv := append([]string{s.Path}, args...)
	return exec.CommandContext(ctx, s.Interpreter, argv...)
}

// Invocation renders the command line for logs.
func (s *Skill) Invocation(args []string) string {
	parts := make([]string, 0, len(args)+2)
	if s.Interpreter != "" {
		parts = append(parts, s.Interpreter)
	}
	parts = append(parts, s.Path)
	parts = append(parts, args...)
	return strings.Join(parts, " ")
}

// ---------------------------------------------------------------------------
// Value objects
// ---------------------------------------------------------------------------

// interpreters maps a script extension to the program that runs it. An empty
// extension means the file is executed directly.
var interpreters = []struct {
	Ext         string
	Interpreter string
}{
	{".ts", "bun"},
	{".js", "bun"},
	{".py", "python3"},
	{".sh", "sh"},
	{"", ""},
}

// InterpreterFor returns the interpreter for a script path.
func InterpreterFor(path string) (string, bool) {
	ext := filepath.Ext(path)
	for _, it := range interpreters {
		if it.Ext == ext {
			return it.Interpreter, true
		}
	}
	return "", false
}

// SkillMetrics tracks execution statistics.
type SkillMetrics struct {
	ExecutionCount  int64     `json:"execution_count"`
	ErrorCount      int64     `json:"error_count"`
	TotalDurationMS int64     `json:"total_duration_ms"`
	LastDurationMS  int64     `json:"last_duration_ms"`
	LastExecutedAt  time.Time `json:"last_executed_at"`
	LastError       string    `json:"last_error,omitempty"`
	LastErrorAt     time.Time `json:"last_error_at"`
}

// AvgDurationMS is the mean duration over all runs.
func (m SkillMetrics) AvgDurationMS() int64 {
	if m.ExecutionCount == 0 {
		return 0
	}
	return m.TotalDurationMS / m.ExecutionCount
}

// recordExecution tracks a run. Failed runs count as executions too.
func (m *SkillMetrics) recordExecution(d time.Duration, at time.Time) {
	ms := d.Milliseconds()
	m.ExecutionCount++
	m.TotalDurationMS += ms
	m.LastDurationMS = ms
	m.LastExecutedAt = at
}

func (m *SkillMetrics) recordError(errMsg string, at time.Time) {
	m.ErrorCount++
	m.LastError = errMsg
	m.LastErrorAt = at
}

// ---------------------------------------------------------------------------
// Domain errors
// ---------------------------------------------------------------------------

type SkillError string

func (e SkillError) Error() string { return string(e) }

const (
	ErrSkillNotFound    SkillError = "skill not found"
	ErrInvalidSkillName SkillError = "invalid skill name"
	ErrInvalidManifest  SkillError = "invalid skill manifest"
	ErrExecutionTimeout SkillError = "skill execution timed out"
	ErrExecutionFailed  SkillError = "skill execution failed"
)
