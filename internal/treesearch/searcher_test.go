package treesearch

import (
	"context"
	"errors"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/xkilldash9x/webagents/internal/config"
	"github.com/xkilldash9x/webagents/internal/network"
	"github.com/xkilldash9x/webagents/internal/replay"
	"github.com/xkilldash9x/webagents/internal/shopsim"
	"github.com/xkilldash9x/webagents/internal/webshop"
)

func TestNewSearcherValidatesLimits(t *testing.T) {
	cfg := testSearchConfig()
	cfg.Branching = 0
	_, err := NewSearcher(&memEnv{}, &scriptedLLM{}, "goal", cfg, zaptest.NewLogger(t))
	assert.Error(t, err)
}

func TestExpandOnEmptyFrontierFinishes(t *testing.T) {
	s, err := NewSearcher(&memEnv{}, &scriptedLLM{}, "goal", testSearchConfig(), zaptest.NewLogger(t))
	require.NoError(t, err)

	require.NoError(t, s.Expand(context.Background()))
	assert.True(t, s.State().Done)
	assert.True(t, s.ShouldFinish())
}

func TestRunStopsWithinMaxSteps(t *testing.T) {
	llm := &scriptedLLM{
		value:   func(string) string { return "Final Score: 0.3" },
		propose: func(obs string) string { return "```search['more widgets']```" },
	}
	cfg := testSearchConfig()
	cfg.MaxSteps = 4
	cfg.Budget = 10

	s, err := NewSearcher(&memEnv{}, llm, "Find a unicorn", cfg, zaptest.NewLogger(t))
	require.NoError(t, err)

	res, err := s.Run(context.Background())
	require.NoError(t, err)
	assert.LessOrEqual(t, res.Expansions, cfg.MaxSteps+1)
	assert.False(t, res.Done)
	assert.Empty(t, res.FinalAnswer)
	assert.Equal(t, cfg.MaxSteps+1, res.Counter)
}

func TestRunStopsAtBudget(t *testing.T) {
	llm := &scriptedLLM{
		value:   func(string) string { return "Final Score: 0.3" },
		propose: func(string) string { return "```search['x']```" },
	}
	cfg := testSearchConfig()
	cfg.MaxSteps = 10
	cfg.Budget = 2

	s, err := NewSearcher(&memEnv{}, llm, "goal", cfg, zaptest.NewLogger(t))
	require.NoError(t, err)
	res, err := s.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, res.Expansions)
}

func TestExpandRetriesAfterFailedTransition(t *testing.T) {
	env := &memEnv{flaky: map[string]error{"widget": errors.New("503 from shop")}}
	llm := &scriptedLLM{
		value:   func(string) string { return "Final Score: 0.5" },
		propose: func(string) string { return "```search['widget']```" },
	}
	cfg := testSearchConfig()
	cfg.Branching = 1
	cfg.MaxSteps = 5

	s, err := NewSearcher(env, llm, "goal", cfg, zaptest.NewLogger(t))
	require.NoError(t, err)
	ctx := context.Background()
	require.NoError(t, s.Initialize(ctx))

	// The failed step still leaves a child on the frontier.
	require.NoError(t, s.Expand(ctx))
	assert.Equal(t, 1, s.State().Frontier.Len())
	assert.False(t, s.State().Done)

	// Expanding the empty child retries the search.
	require.NoError(t, s.Expand(ctx))
	assert.Empty(t, s.State().Observation.URL)
	assert.Equal(t, []string{"search('widget')"}, s.State().History)
	require.Equal(t, 1, s.State().Frontier.Len())

	require.NoError(t, s.Expand(ctx))
	assert.Equal(t, "mem://widget", s.State().Observation.URL)
	assert.Len(t, env.steps, 3)
	assert.Equal(t, 4, s.State().Counter)
}

func TestRunHonoursCancellation(t *testing.T) {
	llm := &scriptedLLM{
		value:   func(string) string { return "Final Score: 0.3" },
		propose: func(string) string { return "```search['x']```" },
	}
	s, err := NewSearcher(&memEnv{}, llm, "goal", testSearchConfig(), zaptest.NewLogger(t))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	res, err := s.Run(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, res.Expansions)
}

// TestRunFindsProductOnSimulator drives the full loop against the bundled
// shop: search, open the matching item, stop on its detail page.
func TestRunFindsProductOnSimulator(t *testing.T) {
	logger := zaptest.NewLogger(t)
	srv := httptest.NewServer(shopsim.NewServer(nil, logger).Handler())
	defer srv.Close()

	httpClient, err := network.NewClient(config.NetworkConfig{}, logger)
	require.NoError(t, err)
	defer httpClient.CloseIdleConnections()
	env, err := webshop.NewClient(srv.URL, httpClient, logger)
	require.NoError(t, err)

	llm := &scriptedLLM{
		value: func(obs string) string {
			switch {
			case strings.Contains(obs, "Add to Cart"):
				return "Final Score: 0.9"
			case strings.Contains(obs, "SnapShot"):
				return "Final Score: 0.7"
			default:
				return "Final Score: 0.1"
			}
		},
		propose: func(obs string) string {
			if strings.Contains(obs, `"results":[]`) {
				return answerPhrase + " ```search['durable camera']```"
			}
			return answerPhrase + " ```choose['B0CAM002']```"
		},
	}

	rec := replay.NewRecorder(t.TempDir(), logger)
	rec.Start("Find a durable camera under $100", nil)

	s, err := NewSearcher(env, llm, "Find a durable camera under $100", testSearchConfig(), logger, WithRecorder(rec))
	require.NoError(t, err)
	res, err := s.Run(context.Background())
	require.NoError(t, err)

	assert.True(t, res.Done)
	assert.Contains(t, res.FinalAnswer, "B0CAM002")
	assert.Equal(t, []string{"search('durable camera')", "choose('B0CAM002')"}, res.BestHistory)
	assert.InDelta(t, 0.9, res.BestScore, 1e-9)
	assert.Equal(t, 3, res.Expansions)

	path, err := rec.End(replay.FinalResult{Success: true, BestScore: res.BestScore, FinalAnswer: res.FinalAnswer})
	require.NoError(t, err)
	assert.Equal(t, ".json", filepath.Ext(path))

	analysis, err := replay.AnalyzeSession(path)
	require.NoError(t, err)
	assert.Equal(t, 3, analysis.TotalStates)
	assert.Equal(t, map[string]int{"search": 1, "choose": 1}, analysis.ActionTypes)
	assert.True(t, analysis.Success)
}
