// Package genai provides the chat-generation backend client for IntakeBridge.
//
// The client speaks the OpenAI chat-completions API; pointing it at an
// Ollama server's OpenAI-compatible endpoint only requires WithBaseURL.
// Backend failures are expected operational events: callers treat an error
// as "no reply available" rather than a fatal condition.
package genai

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

// Default generation parameters, matching the tuned interview behavior.
const (
	DefaultModel       = "gyn-assistant:latest"
	DefaultTimeout     = 30 * time.Second
	DefaultTemperature = 0.4
	DefaultTopP        = 0.9
)

// ErrNoChoicesReturned indicates the backend answered without any choices.
var ErrNoChoicesReturned = errors.New("no choices returned")

// chatService defines the minimal interface for chat completions, allowing
// tests to substitute a mock for the real OpenAI service.
type chatService interface {
	Create(ctx context.Context, params openai.ChatCompletionNewParams) (openai.ChatCompletion, error)
}

// openaiChatService adapts the openai-go completion service to chatService.
type openaiChatService struct {
	client openai.Client
}

func (s openaiChatService) Create(ctx context.Context, params openai.ChatCompletionNewParams) (openai.ChatCompletion, error) {
	resp, err := s.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return openai.ChatCompletion{}, err
	}
	return *resp, nil
}

// Opts holds configuration options for the GenAI client.
type Opts struct {
	APIKey      string
	BaseURL     string
	Model       string
	Timeout     time.Duration
	Temperature float64
	TopP        float64
}

// Option configures the GenAI client.
type Option func(*Opts)

// WithAPIKey sets the API key, overriding the OPENAI_API_KEY environment variable.
func WithAPIKey(key string) Option {
	return func(o *Opts) { o.APIKey = key }
}

// WithBaseURL points the client at an alternate chat-completions endpoint,
// e.g. http://localhost:11434/v1 for a local Ollama server.
func WithBaseURL(url string) Option {
	return func(o *Opts) { o.BaseURL = url }
}

// WithModel sets the default model used when a call does not name one.
func WithModel(model string) Option {
	return func(o *Opts) { o.Model = model }
}

// WithTimeout bounds each backend call.
func WithTimeout(d time.Duration) Option {
	return func(o *Opts) { o.Timeout = d }
}

// WithSampling sets the generation temperature and top-p.
func WithSampling(temperature, topP float64) Option {
	return func(o *Opts) {
		o.Temperature = temperature
		o.TopP = topP
	}
}

// ClientInterface defines the operations the session layer needs from the
// generation backend.
type ClientInterface interface {
	// GenerateWithMessages requests a completion using the client's
	// default model.
	GenerateWithMessages(ctx context.Context, messages []openai.ChatCompletionMessageParamUnion) (string, error)
	// GenerateWithModel requests a completion with an explicit model; an
	// empty model falls back to the client default.
	GenerateWithModel(ctx context.Context, model string, messages []openai.ChatCompletionMessageParamUnion) (string, error)
	// Model returns the client's default model name.
	Model() string
}

// Client wraps the OpenAI chat-completion service for interview generation.
type Client struct {
	chat        chatService
	model       string
	timeout     time.Duration
	temperature float64
	topP        float64
}

// Ensure Client satisfies ClientInterface.
var _ ClientInterface = (*Client)(nil)

// NewClient initializes a new GenAI client. The API key falls back to the
// OPENAI_API_KEY environment variable; when a custom base URL is configured
// (local Ollama), a missing key is tolerated since such servers ignore it.
func NewClient(opts ...Option) (*Client, error) {
	cfg := Opts{
		Model:       DefaultModel,
		Timeout:     DefaultTimeout,
		Temperature: DefaultTemperature,
		TopP:        DefaultTopP,
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	apiKey := cfg.APIKey
	if apiKey == "" {
		apiKey = os.Getenv("OPENAI_API_KEY")
	}
	if apiKey == "" && cfg.BaseURL == "" {
		return nil, fmt.Errorf("OPENAI_API_KEY not set")
	}

	reqOpts := []option.RequestOption{}
	if apiKey != "" {
		reqOpts = append(reqOpts, option.WithAPIKey(apiKey))
	}
	if cfg.BaseURL != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(cfg.BaseURL))
	}

	cli := openai.NewClient(reqOpts...)
	slog.Debug("genai.NewClient initialized", "model", cfg.Model, "base_url_set", cfg.BaseURL != "", "timeout", cfg.Timeout)
	return &Client{
		chat:        openaiChatService{client: cli},
		model:       cfg.Model,
		timeout:     cfg.Timeout,
		temperature: cfg.Temperature,
		topP:        cfg.TopP,
	}, nil
}

// Model returns the client's default model name.
func (c *Client) Model() string {
	return c.model
}

// GenerateWithMessages requests a completion using the default model.
func (c *Client) GenerateWithMessages(ctx context.Context, messages []openai.ChatCompletionMessageParamUnion) (string, error) {
	return c.GenerateWithModel(ctx, c.model, messages)
}

// GenerateWithModel requests a completion from the named model with the
// client's sampling parameters and bounded by its timeout.
func (c *Client) GenerateWithModel(ctx context.Context, model string, messages []openai.ChatCompletionMessageParamUnion) (string, error) {
	if model == "" {
		model = c.model
	}
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	params := openai.ChatCompletionNewParams{
		Model:       openai.ChatModel(model),
		Messages:    messages,
		Temperature: openai.Float(c.temperature),
		TopP:        openai.Float(c.topP),
	}

	resp, err := c.chat.Create(ctx, params)
	if err != nil {
		slog.Error("genai.GenerateWithModel backend call failed", "error", err, "model", model)
		return "", err
	}
	if len(resp.Choices) == 0 {
		slog.Error("genai.GenerateWithModel returned no choices", "model", model)
		return "", ErrNoChoicesReturned
	}
	slog.Debug("genai.GenerateWithModel succeeded", "model", model, "messages", len(messages))
	return resp.Choices[0].Message.Content, nil
}
