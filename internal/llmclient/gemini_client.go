// internal/llmclient/gemini_client.go
package llmclient

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"
	"google.golang.org/genai"

	"github.com/xkilldash9x/webagents/api/schemas"
	"github.com/xkilldash9x/webagents/internal/config"
	"github.com/xkilldash9x/webagents/internal/observability"
)

// GeminiClient implements schemas.LLMClient on the Google GenAI SDK.
type GeminiClient struct {
	client *genai.Client
	config config.LLMModelConfig
	logger *zap.Logger
}

// NewGeminiClient initializes the client. The SDK dials lazily, so this never
// touches the network.
func NewGeminiClient(cfg config.LLMModelConfig, logger *zap.Logger) (*GeminiClient, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("Gemini API Key is required")
	}

	clientCfg := &genai.ClientConfig{
		APIKey:     cfg.APIKey,
		Backend:    genai.BackendGeminiAPI,
		HTTPClient: &http.Client{Timeout: cfg.APITimeout},
	}
	if cfg.Endpoint != "" {
		clientCfg.HTTPOptions = genai.HTTPOptions{BaseURL: cfg.Endpoint}
	}

	client, err := genai.NewClient(context.Background(), clientCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create genai client: %w", err)
	}

	return &GeminiClient{
		client: client,
		config: cfg,
		logger: logger.Named("llm_client.gemini"),
	}, nil
}

// Generate sends the prompts to Gemini with retries on transient errors.
func (c *GeminiClient) Generate(ctx context.Context, req schemas.GenerationRequest) (string, error) {
	genCfg := c.buildGenerationConfig(req)

	b := backoff.NewExponentialBackOff()
	b.MaxElapsedTime = c.config.MaxRetryTime
	if b.MaxElapsedTime == 0 {
		b.MaxElapsedTime = 2 * time.Minute
	}
	b.MaxInterval = 30 * time.Second

	var responseContent string
	operation := func() error {
		start := time.Now()
		resp, err := c.client.Models.GenerateContent(ctx, c.config.Model, genai.Text(req.UserPrompt), genCfg)
		duration := time.Since(start)
		observability.RecordLLMRequest(string(config.ProviderGemini), err, duration)
		if err != nil {
			return c.handleAPIError(err)
		}

		if len(resp.Candidates) == 0 {
			return backoff.Permanent(fmt.Errorf("gemini API returned no candidates"))
		}
		candidate := resp.Candidates[0]
		if candidate.FinishReason == genai.FinishReasonSafety || candidate.FinishReason == genai.FinishReasonBlocklist {
			return backoff.Permanent(fmt.Errorf("gemini API blocked the request (Reason: %s)", candidate.FinishReason))
		}
		text := resp.Text()
		if text == "" {
			return fmt.Errorf("gemini API returned empty content (Reason: %s)", candidate.FinishReason)
		}

		fields := []zap.Field{zap.Duration("duration", duration)}
		if resp.UsageMetadata != nil {
			fields = append(fields,
				zap.Int32("prompt_tokens", resp.UsageMetadata.PromptTokenCount),
				zap.Int32("completion_tokens", resp.UsageMetadata.CandidatesTokenCount),
				zap.Int32("total_tokens", resp.UsageMetadata.TotalTokenCount))
		}
		c.logger.Info("LLM generation complete (Gemini)", fields...)

		responseContent = text
		return nil
	}

	if err := backoff.Retry(operation, backoff.WithContext(b, ctx)); err != nil {
		return "", err
	}
	return responseContent, nil
}

func (c *GeminiClient) buildGenerationConfig(req schemas.GenerationRequest) *genai.GenerateContentConfig {
	maxTokens := req.Options.MaxTokens
	if maxTokens == 0 {
		maxTokens = c.config.MaxTokens
	}

	genCfg := &genai.GenerateContentConfig{
		Temperature:     genai.Ptr(float32(req.Options.Temperature)),
		MaxOutputTokens: int32(maxTokens),
		SafetySettings:  c.safetySettings(),
	}
	if req.Options.TopP > 0 {
		genCfg.TopP = genai.Ptr(float32(req.Options.TopP))
	}
	if req.Options.TopK > 0 {
		genCfg.TopK = genai.Ptr(float32(req.Options.TopK))
	}
	if req.SystemPrompt != "" {
		genCfg.SystemInstruction = genai.NewContentFromText(req.SystemPrompt, genai.RoleUser)
	}
	if req.Options.ForceJSONFormat {
		genCfg.ResponseMIMEType = "application/json"
	}
	return genCfg
}

func (c *GeminiClient) handleAPIError(err error) error {
	var apiErr genai.APIError
	if !errors.As(err, &apiErr) {
		c.logger.Warn("Network error during LLM request, retrying...", zap.Error(err))
		return err
	}

	c.logger.Error("Gemini API returned error status", zap.Int("status", apiErr.Code), zap.String("response", apiErr.Message))
	wrapped := fmt.Errorf("gemini API error: status %d: %w", apiErr.Code, err)
	switch apiErr.Code {
	case http.StatusTooManyRequests, http.StatusServiceUnavailable, http.StatusInternalServerError:
		return wrapped
	default:
		return backoff.Permanent(wrapped)
	}
}

func (c *GeminiClient) safetySettings() []*genai.SafetySetting {
	settings := make([]*genai.SafetySetting, 0, len(c.config.SafetyFilters))
	for category, threshold := range c.config.SafetyFilters {
		settings = append(settings, &genai.SafetySetting{
			Category:  genai.HarmCategory(category),
			Threshold: genai.HarmBlockThreshold(threshold),
		})
	}
	return settings
}

// Close is a no-op; the genai client holds no long-lived resources.
func (c *GeminiClient) Close() error { return nil }
