// internal/llmclient/openai_client.go
package llmclient

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/xkilldash9x/webagents/api/schemas"
	"github.com/xkilldash9x/webagents/internal/config"
	"github.com/xkilldash9x/webagents/internal/observability"
)

// OpenAIClient talks to any OpenAI-compatible chat completion endpoint.
// Ollama is served through its /v1 compatibility layer.
type OpenAIClient struct {
	client   *openai.Client
	provider config.LLMProvider
	config   config.LLMModelConfig
	logger   *zap.Logger
}

// NewOpenAIClient initializes a client for api.openai.com (or cfg.Endpoint).
func NewOpenAIClient(cfg config.LLMModelConfig, logger *zap.Logger) (*OpenAIClient, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("OpenAI API Key is required")
	}
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.Endpoint != "" {
		clientCfg.BaseURL = cfg.Endpoint
	}
	return newOpenAICompatible(clientCfg, config.ProviderOpenAI, cfg, logger), nil
}

// NewOllamaClient initializes a client for a local Ollama server. No key is needed.
func NewOllamaClient(cfg config.LLMModelConfig, logger *zap.Logger) (*OpenAIClient, error) {
	base := strings.TrimRight(cfg.Endpoint, "/")
	if base == "" {
		base = "http://localhost:11434"
	}
	if !strings.HasSuffix(base, "/v1") {
		base += "/v1"
	}
	clientCfg := openai.DefaultConfig("ollama")
	clientCfg.BaseURL = base
	return newOpenAICompatible(clientCfg, config.ProviderOllama, cfg, logger), nil
}

func newOpenAICompatible(clientCfg openai.ClientConfig, provider config.LLMProvider, cfg config.LLMModelConfig, logger *zap.Logger) *OpenAIClient {
	clientCfg.HTTPClient = &http.Client{Timeout: cfg.APITimeout}
	return &OpenAIClient{
		client:   openai.NewClientWithConfig(clientCfg),
		provider: provider,
		config:   cfg,
		logger:   logger.Named("llm_client." + string(provider)),
	}
}

// Generate sends a system+user chat completion and retries transient failures.
func (c *OpenAIClient) Generate(ctx context.Context, req schemas.GenerationRequest) (string, error) {
	chatReq := c.buildRequest(req)

	b := backoff.NewExponentialBackOff()
	b.MaxElapsedTime = c.config.MaxRetryTime
	if b.MaxElapsedTime == 0 {
		b.MaxElapsedTime = 2 * time.Minute
	}
	b.MaxInterval = 30 * time.Second

	var content string
	operation := func() error {
		start := time.Now()
		resp, err := c.client.CreateChatCompletion(ctx, chatReq)
		elapsed := time.Since(start)
		observability.RecordLLMRequest(string(c.provider), err, elapsed)
		if err != nil {
			return c.classifyError(err)
		}
		if len(resp.Choices) == 0 {
			return backoff.Permanent(fmt.Errorf("%s API returned no choices", c.provider))
		}

		c.logger.Info("LLM generation complete",
			zap.String("model", chatReq.Model),
			zap.Duration("duration", elapsed),
			zap.Int("prompt_tokens", resp.Usage.PromptTokens),
			zap.Int("completion_tokens", resp.Usage.CompletionTokens),
			zap.Int("total_tokens", resp.Usage.TotalTokens),
		)
		content = resp.Choices[0].Message.Content
		return nil
	}

	if err := backoff.Retry(operation, backoff.WithContext(b, ctx)); err != nil {
		return "", err
	}
	return content, nil
}

func (c *OpenAIClient) buildRequest(req schemas.GenerationRequest) openai.ChatCompletionRequest {
	messages := make([]openai.ChatCompletionMessage, 0, 2)
	if req.SystemPrompt != "" {
		messages = append(messages, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleSystem, Content: req.SystemPrompt})
	}
	messages = append(messages, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleUser, Content: req.UserPrompt})

	maxTokens := req.Options.MaxTokens
	if maxTokens == 0 {
		maxTokens = c.config.MaxTokens
	}

	chatReq := openai.ChatCompletionRequest{
		Model:       c.config.Model,
		Messages:    messages,
		Temperature: float32(req.Options.Temperature),
		TopP:        float32(req.Options.TopP),
		MaxTokens:   maxTokens,
	}
	if req.Options.ForceJSONFormat {
		chatReq.ResponseFormat = &openai.ChatCompletionResponseFormat{Type: openai.ChatCompletionResponseFormatTypeJSONObject}
	}
	return chatReq
}

// classifyError marks rate limits and server errors as retryable.
func (c *OpenAIClient) classifyError(err error) error {
	status := 0
	var apiErr *openai.APIError
	var reqErr *openai.RequestError
	switch {
	case errors.As(err, &apiErr):
		status = apiErr.HTTPStatusCode
	case errors.As(err, &reqErr):
		status = reqErr.HTTPStatusCode
	}

	wrapped := fmt.Errorf("%s API error: %w", c.provider, err)
	switch {
	case status == http.StatusTooManyRequests, status >= 500:
		c.logger.Warn("Transient LLM error, retrying...", zap.Int("status", status), zap.Error(err))
		return wrapped
	case status == 0 && !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded):
		// Transport failure before an HTTP status was received.
		c.logger.Warn("Network error during LLM request, retrying...", zap.Error(err))
		return wrapped
	default:
		c.logger.Error("LLM API returned error status", zap.Int("status", status), zap.Error(err))
		return backoff.Permanent(wrapped)
	}
}

// Close is a no-op; the HTTP transport is shared.
func (c *OpenAIClient) Close() error { return nil }
