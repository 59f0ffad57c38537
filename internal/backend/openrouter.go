package backend

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
)

// DefaultOpenRouterURL is the OpenAI-compatible endpoint of OpenRouter.
const DefaultOpenRouterURL = "https://openrouter.ai/api/v1"

// Compile-time interface check.
var _ Invoker = (*OpenRouter)(nil)

// OpenRouter invokes models through OpenRouter's OpenAI-compatible chat
// completions API. The ref passed to Invoke is the OpenRouter model slug
// (e.g. "deepseek/deepseek-r1").
type OpenRouter struct {
	client      openai.Client
	temperature float64
}

// OpenRouterOption configures an OpenRouter adapter.
type OpenRouterOption func(*openRouterConfig)

type openRouterConfig struct {
	baseURL     string
	timeout     time.Duration
	temperature float64
	extra       []option.RequestOption
}

// WithBaseURL overrides the API base URL. Useful for tests and self-hosted
// gateways.
func WithBaseURL(u string) OpenRouterOption {
	return func(c *openRouterConfig) { c.baseURL = u }
}

// WithRequestTimeout sets the per-request HTTP timeout. Zero leaves the
// caller's context as the only deadline.
func WithRequestTimeout(d time.Duration) OpenRouterOption {
	return func(c *openRouterConfig) { c.timeout = d }
}

// WithTemperature sets the sampling temperature. The default is 0.
func WithTemperature(t float64) OpenRouterOption {
	return func(c *openRouterConfig) { c.temperature = t }
}

// WithRequestOptions appends raw client options, e.g. extra headers.
func WithRequestOptions(opts ...option.RequestOption) OpenRouterOption {
	return func(c *openRouterConfig) { c.extra = append(c.extra, opts...) }
}

// NewOpenRouter creates an adapter authenticated with apiKey. The SDK's
// built-in retries are disabled: a failed stage is fatal to its run.
func NewOpenRouter(apiKey string, opts ...OpenRouterOption) *OpenRouter {
	cfg := openRouterConfig{baseURL: DefaultOpenRouterURL}
	for _, o := range opts {
		o(&cfg)
	}

	reqOpts := []option.RequestOption{
		option.WithAPIKey(apiKey),
		option.WithBaseURL(strings.TrimSuffix(cfg.baseURL, "/") + "/"),
		option.WithMaxRetries(0),
	}
	if cfg.timeout > 0 {
		reqOpts = append(reqOpts, option.WithRequestTimeout(cfg.timeout))
	}
	reqOpts = append(reqOpts, cfg.extra...)

	return &OpenRouter{
		client:      openai.NewClient(reqOpts...),
		temperature: cfg.temperature,
	}
}

// Invoke sends prompt as a single user message to the model named by ref and
// returns the first choice's content.
func (o *OpenRouter) Invoke(ctx context.Context, prompt, ref string) (string, error) {
	resp, err := o.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model: openai.ChatModel(ref),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.UserMessage(prompt),
		},
		Temperature: openai.Float(o.temperature),
	})
	if err != nil {
		var apiErr *openai.Error
		if errors.As(err, &apiErr) {
			return "", Classify(ref, apiErr.StatusCode, err)
		}
		return "", Classify(ref, 0, err)
	}

	if len(resp.Choices) == 0 {
		return "", &PermanentError{Ref: ref, Err: fmt.Errorf("no choices: %w", ErrEmptyResponse)}
	}
	content := resp.Choices[0].Message.Content
	if strings.TrimSpace(content) == "" {
		return "", &TransientError{Ref: ref, Err: ErrEmptyResponse}
	}
	return content, nil
}
