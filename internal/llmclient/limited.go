package llmclient

import (
	"context"
	"fmt"

	"golang.org/x/time/rate"

	"github.com/xkilldash9x/webagents/api/schemas"
)

// limitedClient waits on a shared token bucket before each generation.
type limitedClient struct {
	inner   schemas.LLMClient
	limiter *rate.Limiter
}

// Limited wraps client so that calls are admitted by limiter.
func Limited(client schemas.LLMClient, limiter *rate.Limiter) schemas.LLMClient {
	if limiter == nil {
		return client
	}
	return &limitedClient{inner: client, limiter: limiter}
}

func (l *limitedClient) Generate(ctx context.Context, req schemas.GenerationRequest) (string, error) {
	if err := l.limiter.Wait(ctx); err != nil {
		return "", fmt.Errorf("llm rate limiter: %w", err)
	}
	return l.inner.Generate(ctx, req)
}

func (l *limitedClient) Close() error { return l.inner.Close() }
