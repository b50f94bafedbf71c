package domain

// ---------------------------------------------------------------------------
// Hub topics: the closed set components communicate over
// ---------------------------------------------------------------------------

// Topic names a hub channel. The set is fixed; publishing anywhere else fails.
type Topic string

const (
	TopicAgentThought  Topic = "agent_thought"
	TopicUserInput     Topic = "user_input"
	TopicActionRequest Topic = "action_request"
	TopicSignRequest   Topic = "sign_request"
	TopicLog           Topic = "log"
	TopicShutdown      Topic = "shutdown"
)

// AllTopics returns every hub topic in a stable order.
func AllTopics() []Topic {
	return []Topic{
		TopicAgentThought, TopicUserInput, TopicActionRequest,
		TopicSignRequest, TopicLog, TopicShutdown,
	}
}

func (t Topic) String() string { return string(t) }

// Valid returns true if the topic is one of the fixed hub topics.
func (t Topic) Valid() bool {
	for _, tt := range AllTopics() {
		if tt == t {
			return true
		}
	}
	return false
}

// ---------------------------------------------------------------------------
// Domain errors
// ---------------------------------------------------------------------------

// Error is a string-typed sentinel error shared across components.
type Error string

func (e Error) Error() string { return string(e) }

const (
	ErrUnknownTopic Error = "unknown topic"
	ErrClosed       Error = "closed"
)
