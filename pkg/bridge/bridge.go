// Package bridge is the skill runner: it executes the external program named
// by an action request and routes what it printed. JSON output becomes a sign
// request for the vault; anything else is reported as plain output.
package bridge

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/lucci-labs/luccibot/pkg/bus"
	"github.com/lucci-labs/luccibot/pkg/domain"
	"github.com/lucci-labs/luccibot/pkg/domain/skill"
	"github.com/lucci-labs/luccibot/pkg/logger"
	"github.com/lucci-labs/luccibot/pkg/orchestration"
)

// Outcome is what a single action request produced. Exactly one per request.
type Outcome int

const (
	OutcomeFailed Outcome = iota
	OutcomeSignRequest
	OutcomeOutput
)

func (o Outcome) String() string {
	switch o {
	case OutcomeSignRequest:
		return "sign_request"
	case OutcomeOutput:
		return "output"
	default:
		return "failed"
	}
}

// Options tunes the runner.
type Options struct {
	// QueueSize bounds pending action requests.
	QueueSize int
	// WaitDelay bounds how long output pipes are drained after a timed-out
	// skill is killed.
	WaitDelay time.Duration
}

// Bridge runs skills from a catalog.
type Bridge struct {
	hub     *bus.Hub
	catalog *skill.Catalog
	opts    Options
	lane    *orchestration.Lane[bus.ActionRequest]
	subs    []*bus.Subscription
}

// New creates a runner and subscribes it to action requests and shutdown.
// Requests are executed by Run.
func New(hub *bus.Hub, catalog *skill.Catalog, opts Options) *Bridge {
	if opts.WaitDelay <= 0 {
		opts.WaitDelay = 2 * time.Second
	}
	b := &Bridge{hub: hub, catalog: catalog, opts: opts}
	b.lane = orchestration.NewLane("bridge", opts.QueueSize, func(ctx context.Context, req bus.ActionRequest) {
		b.Execute(ctx, req)
	})
	b.subs = append(b.subs,
		hub.OnAction(b.enqueue),
		hub.OnShutdown(func(bus.Shutdown) { b.lane.Stop() }),
	)
	return b
}

// Run executes queued requests until ctx is done or shutdown is published.
func (b *Bridge) Run(ctx context.Context) error {
	logger.InfoCF("bridge", "Skill runner started", map[string]interface{}{
		"skills_dir": b.catalog.Dir(),
	})
	return b.lane.Run(ctx)
}

// Close detaches the runner from the hub.
func (b *Bridge) Close() {
	for _, s := range b.subs {
		s.Unsubscribe()
	}
	b.lane.Stop()
}

// Stats exposes the queue counters.
func (b *Bridge) Stats() orchestration.LaneStats { return b.lane.Stats() }

func (b *Bridge) enqueue(req bus.ActionRequest) {
	if b.lane.Offer(req) {
		return
	}
	// A dropped request still gets its one outcome.
	logger.WarnCF("bridge", "Queue full, dropping action", map[string]interface{}{"skill": req.Skill})
	b.fail(req.Skill, fmt.Errorf("skill runner is busy"))
}

// ---------------------------------------------------------------------------
// Execution
// ---------------------------------------------------------------------------

// Execute runs one request synchronously and publishes its outcome.
func (b *Bridge) Execute(ctx context.Context, req bus.ActionRequest) Outcome {
	_ = b.hub.Thought(domain.ThoughtWorking,
		fmt.Sprintf("Bridge executing skill: %s", req.Skill),
		fmt.Sprintf("Args: %s", strings.Join(req.Args, " ")))

	s, err := b.catalog.Resolve(req.Skill)
	if err != nil {
		return b.fail(req.Skill, err)
	}

	output, err := b.run(ctx, s, req.Args)
	if err != nil {
		return b.fail(req.Skill, err)
	}

	trimmed := bytes.TrimSpace(output)
	if len(trimmed) > 0 && json.Valid(trimmed) {
		err := b.hub.PublishSign(bus.SignRequest{
			Payload:     json.RawMessage(trimmed),
			Description: fmt.Sprintf("Result from %s", req.Skill),
		})
		if err != nil {
			return b.fail(req.Skill, fmt.Errorf("forward to vault: %w", err))
		}
		return OutcomeSignRequest
	}

	_ = b.hub.Log(domain.LevelInfo, "Output: %s", string(trimmed))
	_ = b.hub.Thought(domain.ThoughtIdle, "Task completed.", "")
	return OutcomeOutput
}

// run executes s and returns its stdout. Stderr is not read.
func (b *Bridge) run(ctx context.Context, s *skill.Skill, args []string) ([]byte, error) {
	runCtx, cancel := context.WithTimeout(ctx, s.Timeout)
	defer cancel()

	var stdout bytes.Buffer
	cmd := s.Command(runCtx, args)
	cmd.Stdout = &stdout
	cmd.WaitDelay = b.opts.WaitDelay

	logger.DebugCF("bridge", "Running skill", map[string]interface{}{
		"skill":   s.Name,
		"command": s.Invocation(args),
	})

	start := time.Now()
	runErr := cmd.Run()
	elapsed := time.Since(start)

	if runErr != nil {
		if errors.Is(runCtx.Err(), context.DeadlineExceeded) {
			runErr = fmt.Errorf("%w after %s", skill.ErrExecutionTimeout, s.Timeout)
		} else {
			runErr = fmt.Errorf("%w: %v", skill.ErrExecutionFailed, runErr)
		}
	}

	if err := b.catalog.RecordExecution(s.Name, elapsed, runErr); err != nil {
		logger.WarnCF("bridge", "Failed to save skill metrics", map[string]interface{}{"error": err.Error()})
	}
	logger.InfoCF("bridge", "Skill finished", map[string]interface{}{
		"skill":       s.Name,
		"duration_ms": elapsed.Milliseconds(),
		"ok":          runErr == nil,
	})
	return stdout.Bytes(), runErr
}

func (b *Bridge) fail(name string, err error) Outcome {
	logger.ErrorCF("bridge", "Skill failed", map[string]interface{}{
		"skill": name,
		"error": err.Error(),
	})
	_ = b.hub.Log(domain.LevelError, "Bridge Error: %s: %v", name, err)
	_ = b.hub.Thought(domain.ThoughtError, fmt.Sprintf("Failed to execute %s", name), "")
	return OutcomeFailed
}
