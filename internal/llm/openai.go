package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/sashabaranov/go-openai"
	"golang.org/x/time/rate"

	"github.com/paperchat/paperchat/internal/log"
)

// Defaults applied when a request leaves Model or MaxTokens unset.
const (
	DefaultModel     = "gpt-4o-mini"
	DefaultMaxTokens = 1000
)

// OpenAIConfig configures the OpenAI-backed client.
type OpenAIConfig struct {
	// BaseURL overrides the OpenAI API endpoint. Empty keeps the default,
	// which also lets tests point the client at a local stub server.
	BaseURL string

	// Model used when a request does not name one.
	Model string

	// MaxTokens used when a request does not set one.
	MaxTokens int

	// RequestsPerSecond caps outgoing calls across all users. Zero disables
	// limiting.
	RequestsPerSecond float64

	Logger log.Logger
}

func (c *OpenAIConfig) validate() error {
	if c.Model == "" {
		c.Model = DefaultModel
	}
	if c.MaxTokens <= 0 {
		c.MaxTokens = DefaultMaxTokens
	}
	if c.Logger == nil {
		c.Logger = log.NewNop()
	}
	return nil
}

// OpenAIClient implements Client on the OpenAI chat-completion API.
//
// Because the API key arrives with each request, the underlying SDK client
// is constructed per call. The SDK client is a thin wrapper over a shared
// http.Transport, so this costs one small allocation, not a new connection.
type OpenAIClient struct {
	cfg     OpenAIConfig
	limiter *rate.Limiter
	logger  log.Logger
}

// NewOpenAIClient creates a client with the given configuration.
func NewOpenAIClient(cfg OpenAIConfig) (*OpenAIClient, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	c := &OpenAIClient{cfg: cfg, logger: cfg.Logger}
	if cfg.RequestsPerSecond > 0 {
		c.limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), 1)
	}
	return c, nil
}

// Complete implements Client.
func (c *OpenAIClient) Complete(ctx context.Context, req Request) (string, error) {
	if strings.TrimSpace(req.APIKey) == "" {
		return "", ErrMissingAPIKey
	}
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return "", fmt.Errorf("waiting for rate limiter: %w", err)
		}
	}

	model := req.Model
	if model == "" {
		model = c.cfg.Model
	}
	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = c.cfg.MaxTokens
	}

	sdkConfig := openai.DefaultConfig(req.APIKey)
	if c.cfg.BaseURL != "" {
		sdkConfig.BaseURL = c.cfg.BaseURL
	}
	client := openai.NewClientWithConfig(sdkConfig)

	messages := make([]openai.ChatCompletionMessage, 0, len(req.Messages))
	for _, m := range req.Messages {
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    m.Role,
			Content: m.Content,
		})
	}

	resp, err := client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:     model,
		MaxTokens: maxTokens,
		Messages:  messages,
	})
	if err != nil {
		if isUnauthorized(err) {
			return "", fmt.Errorf("%w: %v", ErrInvalidAPIKey, err)
		}
		return "", fmt.Errorf("creating chat completion: %w", err)
	}

	if len(resp.Choices) == 0 {
		return "", ErrEmptyResponse
	}
	content := resp.Choices[0].Message.Content
	if strings.TrimSpace(content) == "" {
		return "", ErrEmptyResponse
	}

	c.logger.Debug("chat completion",
		"model", model,
		"messages", len(messages),
		"prompt_tokens", resp.Usage.PromptTokens,
		"completion_tokens", resp.Usage.CompletionTokens)
	return content, nil
}

func isUnauthorized(err error) bool {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) && apiErr.HTTPStatusCode == http.StatusUnauthorized {
		return true
	}
	var reqErr *openai.RequestError
	return errors.As(err, &reqErr) && reqErr.HTTPStatusCode == http.StatusUnauthorized
}
