package llmclient

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/xkilldash9x/webagents/api/schemas"
	"github.com/xkilldash9x/webagents/internal/config"
)

// NewClient creates the LLMClient for a single provider configuration.
func NewClient(cfg config.LLMModelConfig, logger *zap.Logger) (schemas.LLMClient, error) {
	switch cfg.Provider {
	case config.ProviderOpenAI:
		return NewOpenAIClient(cfg, logger)
	case config.ProviderOllama:
		return NewOllamaClient(cfg, logger)
	case config.ProviderGemini:
		return NewGeminiClient(cfg, logger)
	case config.ProviderMock:
		return NewMockClient(DefaultMockResponse), nil
	default:
		return nil, fmt.Errorf("unknown or unsupported LLM provider configured: '%s'. Supported: [openai, ollama, gemini, mock]", cfg.Provider)
	}
}
