package treesearch

import (
	"context"

	"golang.org/x/sync/errgroup"

	"github.com/xkilldash9x/webagents/api/schemas"
)

type sample struct {
	text string
	err  error
}

// drawSamples issues n identical requests, at most limit at a time. Results
// keep request order so downstream votes and averages are deterministic.
func drawSamples(ctx context.Context, llm schemas.LLMClient, req schemas.GenerationRequest, n, limit int) []sample {
	out := make([]sample, n)
	var g errgroup.Group
	if limit > 0 {
		g.SetLimit(limit)
	}
	for i := 0; i < n; i++ {
		g.Go(func() error {
			text, err := llm.Generate(ctx, req)
			out[i] = sample{text: text, err: err}
			return nil
		})
	}
	_ = g.Wait()
	return out
}
