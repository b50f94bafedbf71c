package bus

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/lucci-labs/luccibot/pkg/domain"
	"github.com/lucci-labs/luccibot/pkg/domain/skill"
)

// ---------------------------------------------------------------------------
// Message schema: one struct per hub topic
// ---------------------------------------------------------------------------

// Message is implemented by every hub payload.
type Message interface {
	// Topic returns the hub topic this message travels on.
	Topic() domain.Topic
	// Validate checks the message against its schema.
	Validate() error
}

// UserInput is a line submitted by a front end.
type UserInput struct {
	Text string `json:"text"`
}

// AgentThought is the agent's current activity. Subscribers keep the latest one.
type AgentThought struct {
	Status  domain.ThoughtStatus `json:"status"`
	Message string               `json:"message"`
	Details string               `json:"details,omitempty"`
}

// LogEvent is an operator-facing log line. A zero Timestamp is filled in with
// the publish time (epoch milliseconds).
type LogEvent struct {
	Level     domain.LogLevel `json:"level"`
	Message   string          `json:"message"`
	Timestamp int64           `json:"timestamp"`
}

// ActionRequest names a skill program and its positional arguments.
type ActionRequest struct {
	Skill string   `json:"skill"`
	Args  []string `json:"args"`
}

// SignRequest carries a transaction-shaped payload to the vault. An empty
// TxID is generated at publish time.
type SignRequest struct {
	TxID        string          `json:"txId"`
	Payload     json.RawMessage `json:"payload"`
	Description string          `json:"description,omitempty"`
}

// Shutdown tells every subscriber to release resources and stop.
type Shutdown struct {
	Reason string `json:"reason,omitempty"`
}

func (UserInput) Topic() domain.Topic     { return domain.TopicUserInput }
func (AgentThought) Topic() domain.Topic  { return domain.TopicAgentThought }
func (LogEvent) Topic() domain.Topic      { return domain.TopicLog }
func (ActionRequest) Topic() domain.Topic { return domain.TopicActionRequest }
func (SignRequest) Topic() domain.Topic   { return domain.TopicSignRequest }
func (Shutdown) Topic() domain.Topic      { return domain.TopicShutdown }

// ---------------------------------------------------------------------------
// Validation
// ---------------------------------------------------------------------------

// ErrInvalidMessage is matched by every ValidationError via errors.Is.
var ErrInvalidMessage = errors.New("invalid message")

// ValidationError reports the first schema violation found in a message.
type ValidationError struct {
	Topic  domain.Topic
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("bus: invalid %s message: %s: %s", e.Topic, e.Field, e.Reason)
}

func (e *ValidationError) Unwrap() error { return ErrInvalidMessage }

func invalid(topic domain.Topic, field, reason string) error {
	return &ValidationError{Topic: topic, Field: field, Reason: reason}
}

// ValidSkillName reports whether name is an acceptable skill identifier.
func ValidSkillName(name string) bool { return skill.ValidName(name) }

func (m UserInput) Validate() error {
	if m.Text == "" {
		return invalid(m.Topic(), "text", "must not be empty")
	}
	return nil
}

func (m AgentThought) Validate() error {
	if !m.Status.Valid() {
		return invalid(m.Topic(), "status", fmt.Sprintf("unknown status %q", m.Status))
	}
	return nil
}

func (m LogEvent) Validate() error {
	if !m.Level.Valid() {
		return invalid(m.Topic(), "level", fmt.Sprintf("unknown level %q", m.Level))
	}
	if m.Timestamp < 0 {
		return invalid(m.Topic(), "timestamp", "must not be negative")
	}
	return nil
}

func (m ActionRequest) Validate() error {
	if !ValidSkillName(m.Skill) {
		return invalid(m.Topic(), "skill", fmt.Sprintf("%q is not a skill identifier", m.Skill))
	}
	return nil
}

func (m SignRequest) Validate() error {
	if m.TxID != "" {
		if _, err := domain.ParseID(m.TxID); err != nil {
			return invalid(m.Topic(), "txId", "must be a UUID")
		}
	}
	if len(m.Payload) == 0 {
		return invalid(m.Topic(), "payload", "must not be empty")
	}
	if !json.Valid(m.Payload) {
		return invalid(m.Topic(), "payload", "must be valid JSON")
	}
	return nil
}

func (m Shutdown) Validate() error { return nil }

// ---------------------------------------------------------------------------
// Normalization applied before delivery
// ---------------------------------------------------------------------------

func normalize(msg Message, now time.Time) Message {
	switch m := msg.(type) {
	case LogEvent:
		if m.Timestamp == 0 {
			m.Timestamp = domain.EpochMillis(now)
		}
		return m
	case ActionRequest:
		args := make([]string, len(m.Args))
		copy(args, m.Args)
		m.Args = args
		return m
	case SignRequest:
		if m.TxID == "" {
			m.TxID = domain.NewID().String()
		} else {
			id, _ := domain.ParseID(m.TxID)
			m.TxID = id.String()
		}
		payload := make(json.RawMessage, len(m.Payload))
		copy(payload, m.Payload)
		m.Payload = payload
		return m
	}
	return msg
}
