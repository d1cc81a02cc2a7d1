package llm

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"golang.org/x/time/rate"
)

// DeepSeekProvider talks to an OpenAI-compatible /chat/completions
// endpoint. DeepSeek is the default target.
type DeepSeekProvider struct {
	apiKey      string
	baseURL     string
	model       string
	temperature float64
	maxTokens   int
	timeout     time.Duration
	retries     int
	retryWait   time.Duration
	limiter     *rate.Limiter
	client      *resty.Client
}

// Option configures the DeepSeek provider.
type Option func(*DeepSeekProvider)

// WithBaseURL sets the API root, e.g. https://api.deepseek.com/v1.
func WithBaseURL(url string) Option {
	return func(p *DeepSeekProvider) {
		if url != "" {
			p.baseURL = strings.TrimRight(url, "/")
		}
	}
}

// WithModel sets the default model.
func WithModel(model string) Option {
	return func(p *DeepSeekProvider) {
		if model != "" {
			p.model = model
		}
	}
}

// WithTemperature sets the default sampling temperature.
func WithTemperature(t float64) Option {
	return func(p *DeepSeekProvider) { p.temperature = t }
}

// WithMaxTokens sets the completion cap used when a call does not set one.
func WithMaxTokens(n int) Option {
	return func(p *DeepSeekProvider) {
		if n > 0 {
			p.maxTokens = n
		}
	}
}

// WithTimeout sets the per-request transport timeout.
func WithTimeout(d time.Duration) Option {
	return func(p *DeepSeekProvider) {
		if d > 0 {
			p.timeout = d
		}
	}
}

// WithRetries retries 429 and 5xx answers up to n times, starting at wait
// and backing off.
func WithRetries(n int, wait time.Duration) Option {
	return func(p *DeepSeekProvider) {
		p.retries = n
		if wait > 0 {
			p.retryWait = wait
		}
	}
}

// WithRateLimit paces outbound calls to perSecond with the given burst.
// Zero disables pacing.
func WithRateLimit(perSecond float64, burst int) Option {
	return func(p *DeepSeekProvider) {
		if perSecond <= 0 {
			p.limiter = nil
			return
		}
		if burst < 1 {
			burst = 1
		}
		p.limiter = rate.NewLimiter(rate.Limit(perSecond), burst)
	}
}

// NewDeepSeekProvider creates the http driver.
func NewDeepSeekProvider(apiKey string, opts ...Option) (*DeepSeekProvider, error) {
	if apiKey == "" {
		return nil, ErrNoAPIKey
	}
	p := &DeepSeekProvider{
		apiKey:      apiKey,
		baseURL:     "https://api.deepseek.com/v1",
		model:       "deepseek-chat",
		temperature: 0.1,
		timeout:     60 * time.Second,
		retryWait:   time.Second,
	}
	for _, opt := range opts {
		opt(p)
	}

	p.client = resty.New().
		SetBaseURL(p.baseURL).
		SetTimeout(p.timeout).
		SetAuthToken(p.apiKey).
		SetHeader("Content-Type", "application/json").
		SetRetryCount(p.retries).
		SetRetryWaitTime(p.retryWait).
		SetRetryMaxWaitTime(4 * p.retryWait).
		AddRetryCondition(func(r *resty.Response, err error) bool {
			if err != nil || r == nil {
				return false
			}
			code := r.StatusCode()
			return code == http.StatusTooManyRequests || code >= 500
		})
	return p, nil
}

func (p *DeepSeekProvider) Name() string { return DriverHTTP }

// Model returns the default model name.
func (p *DeepSeekProvider) Model() string { return p.model }

// Endpoint returns the API root in use.
func (p *DeepSeekProvider) Endpoint() string { return p.baseURL }

// Ping verifies the API key by listing models.
func (p *DeepSeekProvider) Ping(ctx context.Context) error {
	if err := p.wait(ctx); err != nil {
		return err
	}
	var apiErr errorResponse
	resp, err := p.client.R().
		SetContext(ctx).
		SetError(&apiErr).
		Get("/models")
	if err != nil {
		return fmt.Errorf("%w: %w", ErrProviderDown, err)
	}
	if resp.IsError() {
		return apiErr.toAPIError(resp)
	}
	return nil
}

// Chat sends a chat completion request.
func (p *DeepSeekProvider) Chat(ctx context.Context, messages []Message, opts *ChatOptions) (*Response, error) {
	start := time.Now()
	body := p.buildRequest(messages, opts)

	if err := p.wait(ctx); err != nil {
		return nil, err
	}

	var result chatResponse
	var apiErr errorResponse
	resp, err := p.client.R().
		SetContext(ctx).
		SetBody(body).
		SetResult(&result).
		SetError(&apiErr).
		Post("/chat/completions")
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrProviderDown, err)
	}
	if resp.IsError() {
		return nil, apiErr.toAPIError(resp)
	}
	if len(result.Choices) == 0 {
		return nil, ErrEmptyReply
	}

	model := result.Model
	if model == "" {
		model = body.Model
	}
	return &Response{
		Content:  result.Choices[0].Message.Content,
		Model:    model,
		Provider: DriverHTTP,
		Latency:  time.Since(start),
		Usage: Usage{
			PromptTokens:     result.Usage.PromptTokens,
			CompletionTokens: result.Usage.CompletionTokens,
			TotalTokens:      result.Usage.TotalTokens,
		},
	}, nil
}

// wait blocks on the rate limiter, if any.
func (p *DeepSeekProvider) wait(ctx context.Context) error {
	if p.limiter == nil {
		return nil
	}
	if err := p.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("llm: rate limiter: %w", err)
	}
	return nil
}

// ── Internal Types ──

type chatRequest struct {
	Model       string    `json:"model"`
	Messages    []Message `json:"messages"`
	Temperature *float64  `json:"temperature,omitempty"`
	MaxTokens   *int      `json:"max_tokens,omitempty"`
}

type chatResponse struct {
	ID      string `json:"id"`
	Model   string `json:"model"`
	Choices []struct {
		Index        int     `json:"index"`
		Message      Message `json:"message"`
		FinishReason string  `json:"finish_reason"`
	} `json:"choices"`
	Usage Usage `json:"usage"`
}

type errorResponse struct {
	Error struct {
		Message string `json:"message"`
		Type    string `json:"type"`
		Code    any    `json:"code"`
	} `json:"error"`
}

func (e *errorResponse) toAPIError(resp *resty.Response) *APIError {
	apiErr := &APIError{
		StatusCode: resp.StatusCode(),
		Type:       e.Error.Type,
		Message:    e.Error.Message,
	}
	if e.Error.Code != nil {
		apiErr.Code = fmt.Sprint(e.Error.Code)
	}
	if apiErr.Message == "" {
		body := resp.String()
		if len(body) > 512 {
			body = body[:512]
		}
		apiErr.Message = strings.TrimSpace(body)
	}
	return apiErr
}

func (p *DeepSeekProvider) buildRequest(messages []Message, opts *ChatOptions) chatRequest {
	r := chatRequest{Model: p.model, Messages: messages}
	temp := p.temperature
	maxTokens := p.maxTokens
	if opts != nil {
		if opts.Model != "" {
			r.Model = opts.Model
		}
		if opts.Temperature > 0 {
			temp = opts.Temperature
		}
		if opts.MaxTokens > 0 {
			maxTokens = opts.MaxTokens
		}
	}
	if temp > 0 {
		r.Temperature = &temp
	}
	if maxTokens > 0 {
		r.MaxTokens = &maxTokens
	}
	return r
}
