// Package llm provides a small chat-completion client for OpenAI-compatible
// endpoints such as DeepSeek, with two interchangeable drivers and a typed
// error taxonomy used by the connection diagnostics.
package llm

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/seenimoa/tradegate/internal/config"
)

// Driver names accepted in llm.driver.
const (
	DriverHTTP = "http"
	DriverEino = "eino"
)

// Common errors returned by LLM providers.
var (
	ErrNoAPIKey     = errors.New("llm: API key not configured")
	ErrRateLimit    = errors.New("llm: rate limit exceeded")
	ErrProviderDown = errors.New("llm: provider unavailable")
	ErrEmptyReply   = errors.New("llm: empty reply")
	ErrUnknownDrv   = errors.New("llm: unknown driver")
)

// Role represents the role of a message sender.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message represents a single message in a conversation.
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// Usage tracks token consumption for a request.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// Response represents a complete response from the model.
type Response struct {
	Content  string        `json:"content"`
	Usage    Usage         `json:"usage"`
	Model    string        `json:"model"`
	Provider string        `json:"provider"`
	Latency  time.Duration `json:"latency"`
}

// ChatOptions configures a single chat request. Zero values fall back to
// the provider defaults.
type ChatOptions struct {
	Model       string  `json:"model,omitempty"`
	Temperature float64 `json:"temperature,omitempty"`
	MaxTokens   int     `json:"max_tokens,omitempty"`
}

// Provider is the interface both drivers implement.
type Provider interface {
	// Name returns the driver identifier.
	Name() string

	// Chat sends a conversation and returns the complete reply.
	Chat(ctx context.Context, messages []Message, opts *ChatOptions) (*Response, error)

	// Ping checks that the endpoint answers and the key is accepted.
	Ping(ctx context.Context) error
}

// UserMessage creates a user message.
func UserMessage(content string) Message {
	return Message{Role: RoleUser, Content: content}
}

// SystemMessage creates a system prompt message.
func SystemMessage(content string) Message {
	return Message{Role: RoleSystem, Content: content}
}

// New builds the provider selected by cfg.Driver.
func New(ctx context.Context, cfg config.LLMConfig) (Provider, error) {
	switch cfg.Driver {
	case DriverHTTP, "":
		return NewDeepSeekProvider(cfg.APIKey,
			WithBaseURL(cfg.BaseURL),
			WithModel(cfg.Model),
			WithTemperature(cfg.Temperature),
			WithMaxTokens(cfg.MaxTokens),
			WithTimeout(cfg.Timeout),
			WithRetries(cfg.MaxRetries, cfg.RetryWait),
			WithRateLimit(cfg.RateLimit, cfg.RateBurst),
		)
	case DriverEino:
		return NewEinoProvider(ctx, cfg)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownDrv, cfg.Driver)
	}
}

// String returns a human-readable summary of the response.
func (r *Response) String() string {
	truncated := r.Content
	if len(truncated) > 100 {
		truncated = truncated[:100] + "..."
	}
	return fmt.Sprintf("[%s/%s] %q, %d tokens, %v",
		r.Provider, r.Model, truncated, r.Usage.TotalTokens, r.Latency.Round(time.Millisecond))
}
