package llmclient

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"

	"github.com/xkilldash9x/webagents/api/schemas"
)

func TestScriptedClient(t *testing.T) {
	c := NewScriptedClient("first", "second")
	ctx := context.Background()

	for _, want := range []string{"first", "second", "second"} {
		got, err := c.Generate(ctx, schemas.GenerationRequest{UserPrompt: want})
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
	assert.Len(t, c.Requests(), 3)
}

func TestMockClientDefaults(t *testing.T) {
	resp, err := NewMockClient("").Generate(context.Background(), schemas.GenerationRequest{})
	require.NoError(t, err)
	assert.Equal(t, DefaultMockResponse, resp)
}

func TestMockClientHonoursCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewMockClient("x").Generate(ctx, schemas.GenerationRequest{})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestLimitedClient(t *testing.T) {
	t.Run("nil limiter returns client unchanged", func(t *testing.T) {
		inner := NewMockClient("x")
		assert.Same(t, inner, Limited(inner, nil))
	})

	t.Run("wait error is returned", func(t *testing.T) {
		limiter := rate.NewLimiter(rate.Every(time.Hour), 1)
		require.True(t, limiter.Allow(), "drain the only token")

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
		defer cancel()
		_, err := Limited(NewMockClient("x"), limiter).Generate(ctx, schemas.GenerationRequest{})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "llm rate limiter")
	})
}
