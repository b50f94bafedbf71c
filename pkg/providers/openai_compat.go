package providers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"

	"github.com/lucci-labs/luccibot/pkg/domain"
)

// ChatMessage is one turn of a chat-completion conversation.
type ChatMessage struct {
	Role    domain.MessageRole
	Content string
}

// ChatRequest is a single completion call against an OpenAI-compatible endpoint.
type ChatRequest struct {
	BaseURL  string
	APIKey   string
	Model    string
	Messages []ChatMessage
}

// ChatResponse carries the first choice of a completion.
type ChatResponse struct {
	Content string
	Model   string
}

// EmptyResponse is reported when the endpoint returns no choices.
const EmptyResponse = "(empty response)"

// ChatClient sends chat completions.
type ChatClient interface {
	Complete(ctx context.Context, req ChatRequest) (*ChatResponse, error)
}

// HTTPError is a non-2xx answer from the endpoint.
type HTTPError struct {
	StatusCode int
	Detail     string
}

func (e *HTTPError) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("API request failed with status %d", e.StatusCode)
	}
	return fmt.Sprintf("API request failed with status %d: %s", e.StatusCode, e.Detail)
}

// ---------------------------------------------------------------------------
// OpenAI-compatible client
// ---------------------------------------------------------------------------

// OpenAICompatible talks to any endpoint implementing the OpenAI chat
// completions wire format. Exactly one HTTP request is made per call.
type OpenAICompatible struct {
	httpClient *http.Client
}

// NewOpenAICompatible creates a client. A nil httpClient gets a 120s timeout.
func NewOpenAICompatible(httpClient *http.Client) *OpenAICompatible {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 120 * time.Second}
	}
	return &OpenAICompatible{httpClient: httpClient}
}

// Complete sends req and returns the first choice.
func (p *OpenAICompatible) Complete(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
	if req.APIKey == "" {
		return nil, fmt.Errorf("API key not configured")
	}
	if req.BaseURL == "" {
		return nil, fmt.Errorf("API base not configured")
	}

	client := openai.NewClient(
		option.WithAPIKey(req.APIKey),
		option.WithBaseURL(strings.TrimRight(req.BaseURL, "/")+"/"),
		option.WithHTTPClient(p.httpClient),
		option.WithMaxRetries(0),
	)

	params := openai.ChatCompletionNewParams{
		Model:    openai.ChatModel(req.Model),
		Messages: toOpenAIMessages(req.Messages),
	}

	completion, err := client.Chat.Completions.New(ctx, params)
	if err != nil {
		var apiErr *openai.Error
		if errors.As(err, &apiErr) {
			return nil, &HTTPError{StatusCode: apiErr.StatusCode, Detail: apiErr.RawJSON()}
		}
		return nil, fmt.Errorf("failed to send request: %w", err)
	}

	resp := &ChatResponse{Content: EmptyResponse, Model: completion.Model}
	if len(completion.Choices) > 0 && completion.Choices[0].Message.Content != "" {
		resp.Content = completion.Choices[0].Message.Content
	}
	return resp, nil
}

func toOpenAIMessages(messages []ChatMessage) []openai.ChatCompletionMessageParamUnion {
	out := make([]openai.ChatCompletionMessageParamUnion, 0, len(messages))
	for _, m := range messages {
		switch m.Role {
		case domain.RoleSystem:
			out = append(out, openai.SystemMessage(m.Content))
		case domain.RoleAssistant:
			out = append(out, openai.AssistantMessage(m.Content))
		default:
			out = append(out, openai.UserMessage(m.Content))
		}
	}
	return out
}

var _ ChatClient = (*OpenAICompatible)(nil)
