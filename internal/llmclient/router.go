package llmclient

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/xkilldash9x/webagents/api/schemas"
	"github.com/xkilldash9x/webagents/internal/config"
)

// LLMRouter implements the LLMClient interface and routes requests by tier.
type LLMRouter struct {
	logger  *zap.Logger
	clients map[schemas.ModelTier]schemas.LLMClient
}

// NewLLMRouter creates a new router with the specified clients for each tier.
// The same client may serve both tiers.
func NewLLMRouter(logger *zap.Logger, fastClient, powerfulClient schemas.LLMClient) (*LLMRouter, error) {
	if fastClient == nil || powerfulClient == nil {
		return nil, fmt.Errorf("both fast and powerful tier clients must be provided")
	}

	return &LLMRouter{
		logger: logger.Named("llm_router"),
		clients: map[schemas.ModelTier]schemas.LLMClient{
			schemas.TierFast:     fastClient,
			schemas.TierPowerful: powerfulClient,
		},
	}, nil
}

// NewRouterFromConfig builds the provider clients named by cfg and wraps them
// in a shared rate limiter when one is configured.
func NewRouterFromConfig(cfg config.LLMConfig, logger *zap.Logger) (*LLMRouter, error) {
	model, err := cfg.Active()
	if err != nil {
		return nil, err
	}

	build := func(m config.LLMModelConfig) (schemas.LLMClient, error) {
		if m.Provider == config.ProviderMock {
			return NewMockClient(cfg.MockResponse), nil
		}
		return NewClient(m, logger)
	}

	powerful, err := build(model)
	if err != nil {
		return nil, fmt.Errorf("failed to create powerful tier client: %w", err)
	}

	fast := powerful
	if cfg.FastModel != "" && cfg.FastModel != model.Model {
		fastCfg := model
		fastCfg.Model = cfg.FastModel
		if fast, err = build(fastCfg); err != nil {
			_ = powerful.Close()
			return nil, fmt.Errorf("failed to create fast tier client: %w", err)
		}
	}

	if cfg.RequestsPerSecond > 0 {
		burst := cfg.Burst
		if burst < 1 {
			burst = 1
		}
		limiter := rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), burst)
		shared := fast == powerful
		powerful = Limited(powerful, limiter)
		if shared {
			fast = powerful
		} else {
			fast = Limited(fast, limiter)
		}
	}

	logger.Info("LLM provider configured",
		zap.String("provider", string(model.Provider)),
		zap.String("model", model.Model),
		zap.String("fast_model", cfg.FastModel))
	return NewLLMRouter(logger, fast, powerful)
}

// GenerateResponse selects the appropriate client based on the request's Tier.
func (r *LLMRouter) GenerateResponse(ctx context.Context, req schemas.GenerationRequest) (string, error) {
	tier := req.Tier
	if tier == "" {
		tier = schemas.TierPowerful
	}

	client, ok := r.clients[tier]
	if !ok {
		return "", fmt.Errorf("no LLM client configured for tier: %s", tier)
	}

	r.logger.Debug("Routing LLM request", zap.String("tier", string(tier)))
	return client.Generate(ctx, req)
}

// Generate satisfies schemas.LLMClient.
func (r *LLMRouter) Generate(ctx context.Context, req schemas.GenerationRequest) (string, error) {
	return r.GenerateResponse(ctx, req)
}

// Close closes each distinct underlying client once.
func (r *LLMRouter) Close() error {
	fast := r.clients[schemas.TierFast]
	powerful := r.clients[schemas.TierPowerful]
	var errs []error
	if err := powerful.Close(); err != nil {
		errs = append(errs, err)
	}
	if fast != powerful {
		if err := fast.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
