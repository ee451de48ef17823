package agentq

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/xkilldash9x/webagents/api/schemas"
	"github.com/xkilldash9x/webagents/internal/llmclient"
)

func TestParseCriticScores(t *testing.T) {
	candidates := []string{"CLICK -> el_1", "SCROLL -> down"}
	tests := []struct {
		name string
		text string
		want []float64
	}{
		{
			name: "json array by command",
			text: "```json\n[{\"command\": \"SCROLL -> down\", \"score\": 0.1}, {\"command\": \"CLICK -> el_1\", \"score\": 0.9}]\n```",
			want: []float64{0.9, 0.1},
		},
		{
			name: "json object with indices",
			text: `Here you go: {"scores": [{"index": 2, "score": 3}, {"index": 1, "score": 8}]}`,
			want: []float64{0.8, 0.3},
		},
		{
			name: "json map",
			text: `{"CLICK -> el_1": 0.75, "SCROLL -> down": 0.25}`,
			want: []float64{0.75, 0.25},
		},
		{
			name: "numbered lines",
			text: "1. 0.8\n2) 7/10",
			want: []float64{0.8, 0.7},
		},
		{
			name: "command lines",
			text: "SCROLL -> down: 0.2\nCLICK -> el_1: 9",
			want: []float64{0.9, 0.2},
		},
		{
			name: "score lines in order",
			text: "The click is promising. Score: 0.7\nScrolling rarely helps. Score: 2/10",
			want: []float64{0.7, 0.2},
		},
		{
			name: "bare numbers",
			text: "[0.6, 0.4]",
			want: []float64{0.6, 0.4},
		},
		{
			name: "clamped",
			text: "1. 15\n2. -3",
			want: []float64{1, 0},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := ParseCriticScores(tt.text, candidates)
			require.True(t, ok)
			assert.InDeltaSlice(t, tt.want, got, 1e-9)
		})
	}

	_, ok := ParseCriticScores("I would click the first one.", candidates)
	assert.False(t, ok)
	_, ok = ParseCriticScores("1. 0.9\nnot sure about the other one", candidates)
	assert.False(t, ok, "every candidate needs a score")
}

func TestScoreCandidates(t *testing.T) {
	st := NewState("buy shoes", 5, 3)
	candidates := []string{"CLICK -> el_1", "SCROLL -> down"}

	llm := llmclient.NewMockClient(`[{"command": "CLICK -> el_1", "score": 0.9}, {"command": "SCROLL -> down", "score": 0.3}]`)
	c := NewCritic(llm, zaptest.NewLogger(t))
	scores, err := c.ScoreCandidates(context.Background(), st, candidates)
	require.NoError(t, err)
	assert.InDeltaSlice(t, []float64{0.9, 0.3}, scores, 1e-9)

	req := llm.Requests()[0]
	assert.Equal(t, schemas.TierFast, req.Tier)
	assert.Contains(t, req.UserPrompt, "Objective: buy shoes")
	assert.Contains(t, req.UserPrompt, "2. SCROLL -> down")

	c = NewCritic(llmclient.NewMockClient("no idea"), zaptest.NewLogger(t))
	scores, err = c.ScoreCandidates(context.Background(), st, candidates)
	require.NoError(t, err)
	assert.Equal(t, []float64{neutralScore, neutralScore}, scores)
	assert.Equal(t, int64(1), c.ParseFailures())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = c.ScoreCandidates(ctx, st, candidates)
	assert.ErrorIs(t, err, context.Canceled)
}
