package treesearch

import (
	"context"
	"regexp"
	"strconv"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/xkilldash9x/webagents/api/schemas"
	"github.com/xkilldash9x/webagents/internal/observability"
)

var finalScoreRegex = regexp.MustCompile(`Final Score: (\d+\.?\d*)`)

// ParseScore extracts and clamps the "Final Score: x" value of a response.
func ParseScore(response string) (float64, bool) {
	m := finalScoreRegex.FindStringSubmatch(response)
	if m == nil {
		return 0, false
	}
	v, err := strconv.ParseFloat(m[1], 64)
	if err != nil {
		return 0, false
	}
	return min(max(v, 0), 1), true
}

// ValueFunction estimates how close a node is to the goal by averaging
// several sampled LLM judgements.
type ValueFunction struct {
	llm         schemas.LLMClient
	samples     int
	temperature float64
	concurrency int
	logger      *zap.Logger

	parseFailures atomic.Int64
}

func NewValueFunction(llm schemas.LLMClient, samples int, temperature float64, concurrency int, logger *zap.Logger) *ValueFunction {
	if samples < 1 {
		samples = 1
	}
	return &ValueFunction{
		llm:         llm,
		samples:     samples,
		temperature: temperature,
		concurrency: concurrency,
		logger:      logger.Named("value"),
	}
}

// Score returns the mean of the valid samples, or 0 when none parsed.
func (v *ValueFunction) Score(ctx context.Context, goal string, n *Node) float64 {
	score, _, _ := v.ScoreDetailed(ctx, goal, n)
	return score
}

// ScoreDetailed also reports how many samples were usable. LLM errors count
// as failed samples.
func (v *ValueFunction) ScoreDetailed(ctx context.Context, goal string, n *Node) (score float64, valid, failed int) {
	req := schemas.GenerationRequest{
		SystemPrompt: valueIntro,
		UserPrompt:   valuePrompt(goal, n),
		Tier:         schemas.TierFast,
		Options:      schemas.GenerationOptions{Temperature: v.temperature},
	}

	var sum float64
	for i, s := range drawSamples(ctx, v.llm, req, v.samples, v.concurrency) {
		if s.err != nil {
			failed++
			v.logger.Warn("Value sample failed", zap.Int("sample", i), zap.Error(s.err))
			continue
		}
		x, ok := ParseScore(s.text)
		if !ok {
			failed++
			continue
		}
		sum += x
		valid++
	}

	if valid == 0 {
		v.parseFailures.Add(1)
		observability.RecordParseFailure("value_function")
		v.logger.Warn("No usable value sample, scoring 0", zap.Int("samples", v.samples))
		return 0, 0, failed
	}
	score = sum / float64(valid)
	v.logger.Debug("State scored", zap.Float64("score", score), zap.Int("valid", valid), zap.Int("failed", failed))
	return score, valid, failed
}

// ParseFailures counts evaluations that fell back to 0 for lack of a usable sample.
func (v *ValueFunction) ParseFailures() int64 {
	return v.parseFailures.Load()
}
