package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/cloudwego/eino-ext/components/model/openai"
	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"golang.org/x/time/rate"

	"github.com/seenimoa/tradegate/internal/config"
)

// EinoProvider drives the endpoint through the eino OpenAI-compatible
// ChatModel. Its errors are plain strings, so Classify falls back to
// pattern matching for them.
type EinoProvider struct {
	model   string
	baseURL string
	cm      model.ChatModel
	limiter *rate.Limiter
}

// NewEinoProvider creates the eino driver from the llm config section.
func NewEinoProvider(ctx context.Context, cfg config.LLMConfig) (*EinoProvider, error) {
	if cfg.APIKey == "" {
		return nil, ErrNoAPIKey
	}
	temp := float32(cfg.Temperature)
	mc := &openai.ChatModelConfig{
		BaseURL:     strings.TrimRight(cfg.BaseURL, "/"),
		APIKey:      cfg.APIKey,
		Model:       cfg.Model,
		Temperature: &temp,
		Timeout:     cfg.Timeout,
	}
	if cfg.MaxTokens > 0 {
		maxTokens := cfg.MaxTokens
		mc.MaxTokens = &maxTokens
	}
	cm, err := openai.NewChatModel(ctx, mc)
	if err != nil {
		return nil, fmt.Errorf("llm: eino chat model: %w", err)
	}

	p := &EinoProvider{model: cfg.Model, baseURL: cfg.BaseURL, cm: cm}
	if cfg.RateLimit > 0 {
		burst := cfg.RateBurst
		if burst < 1 {
			burst = 1
		}
		p.limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), burst)
	}
	return p, nil
}

func (p *EinoProvider) Name() string { return DriverEino }

// Model returns the default model name.
func (p *EinoProvider) Model() string { return p.model }

// Endpoint returns the API root in use.
func (p *EinoProvider) Endpoint() string { return p.baseURL }

// Chat sends the conversation through the eino ChatModel.
func (p *EinoProvider) Chat(ctx context.Context, messages []Message, opts *ChatOptions) (*Response, error) {
	start := time.Now()
	if p.limiter != nil {
		if err := p.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("llm: rate limiter: %w", err)
		}
	}

	in := make([]*schema.Message, 0, len(messages))
	for _, m := range messages {
		in = append(in, &schema.Message{Role: toSchemaRole(m.Role), Content: m.Content})
	}

	modelName := p.model
	var callOpts []model.Option
	if opts != nil {
		if opts.Model != "" {
			modelName = opts.Model
			callOpts = append(callOpts, model.WithModel(opts.Model))
		}
		if opts.MaxTokens > 0 {
			callOpts = append(callOpts, model.WithMaxTokens(opts.MaxTokens))
		}
		if opts.Temperature > 0 {
			callOpts = append(callOpts, model.WithTemperature(float32(opts.Temperature)))
		}
	}

	out, err := p.cm.Generate(ctx, in, callOpts...)
	if err != nil {
		// keep the context error reachable for Classify
		if ctxErr := ctx.Err(); ctxErr != nil && !errors.Is(err, ctxErr) {
			return nil, fmt.Errorf("llm: eino generate: %w (%v)", ctxErr, err)
		}
		return nil, fmt.Errorf("llm: eino generate: %w", err)
	}
	if out == nil {
		return nil, ErrEmptyReply
	}

	resp := &Response{
		Content:  out.Content,
		Model:    modelName,
		Provider: DriverEino,
		Latency:  time.Since(start),
	}
	if out.ResponseMeta != nil && out.ResponseMeta.Usage != nil {
		u := out.ResponseMeta.Usage
		resp.Usage = Usage{
			PromptTokens:     u.PromptTokens,
			CompletionTokens: u.CompletionTokens,
			TotalTokens:      u.TotalTokens,
		}
	}
	return resp, nil
}

// Ping issues a one-token completion; the ChatModel has no model listing.
func (p *EinoProvider) Ping(ctx context.Context) error {
	_, err := p.Chat(ctx, []Message{UserMessage("ping")}, &ChatOptions{MaxTokens: 1})
	return err
}

func toSchemaRole(r Role) schema.RoleType {
	switch r {
	case RoleSystem:
		return schema.System
	case RoleAssistant:
		return schema.Assistant
	default:
		return schema.User
	}
}
