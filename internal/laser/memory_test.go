package laser

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func TestMemoryBufferAddOrUpdateMerges(t *testing.T) {
	m := NewMemoryBuffer()
	m.AddOrUpdate(Candidate{ItemID: "B1", Title: "Mug", Price: "9.99", Score: 0.4, ActionsTaken: []string{"search[mug]", "search[mug]"}}, 2)
	m.AddOrUpdate(Candidate{ItemID: "B1", Title: "", Price: "8.99", Score: unscored, ActionsTaken: []string{"search[mug]", "click[B1]"}}, 5)

	require.Equal(t, 1, m.Len())
	got, ok := m.Get("B1")
	require.True(t, ok)
	assert.Equal(t, "Mug", got.Title, "empty fields do not overwrite")
	assert.Equal(t, "8.99", got.Price)
	assert.InDelta(t, 0.4, got.Score, 1e-9, "an unscored update keeps the score")
	assert.Equal(t, []string{"search[mug]", "click[B1]"}, got.ActionsTaken)
	assert.Equal(t, 5, got.LastSeenStep)
	assert.Equal(t, 2, got.TimesSeen)
}

func TestMemoryBufferBestOrdering(t *testing.T) {
	m := NewMemoryBuffer()
	_, ok := m.Best()
	assert.False(t, ok)

	m.AddOrUpdate(Candidate{ItemID: "A", Score: 0.7}, 1)
	m.AddOrUpdate(Candidate{ItemID: "B", Score: 0.7}, 3)
	m.AddOrUpdate(Candidate{ItemID: "C", Score: 0.5}, 9)
	best, ok := m.Best()
	require.True(t, ok)
	assert.Equal(t, "B", best.ItemID, "later sighting breaks the score tie")

	m.AddOrUpdate(Candidate{ItemID: "A"}, 3)
	best, _ = m.Best()
	assert.Equal(t, "A", best.ItemID, "more sightings break the step tie")
}

func TestParseItemScore(t *testing.T) {
	tests := []struct {
		in    string
		want  float64
		valid bool
	}{
		{`{"score": 0.8}`, 0.8, true},
		{"Sure.\n{ \"score\" : 1.7 }", 1, true},
		{`{"score": 0}`, 0, true},
		{`score: 0.8`, 0, false},
		{`{"score": "high"}`, 0, false},
	}
	for _, tt := range tests {
		got, ok := ParseItemScore(tt.in)
		assert.Equal(t, tt.valid, ok, tt.in)
		assert.InDelta(t, tt.want, got, 1e-9, tt.in)
	}
}

func TestItemScorerFallbacks(t *testing.T) {
	ctx := context.Background()
	c := Candidate{ItemID: "B1", Title: "Mug"}

	t.Run("parsed", func(t *testing.T) {
		llm := new(MockLLMClient)
		llm.On("Generate", mock.Anything, mock.Anything).Return(`{"score": 0.9}`, nil).Once()
		s := NewItemScorer(llm, zaptest.NewLogger(t))
		assert.InDelta(t, 0.9, s.Score(ctx, "a mug", c), 1e-9)
		llm.AssertExpectations(t)
	})

	t.Run("unparseable scores half", func(t *testing.T) {
		llm := new(MockLLMClient)
		llm.On("Generate", mock.Anything, mock.Anything).Return("looks fine", nil).Once()
		s := NewItemScorer(llm, zaptest.NewLogger(t))
		assert.InDelta(t, 0.5, s.Score(ctx, "a mug", c), 1e-9)
		assert.EqualValues(t, 1, s.ParseFailures())
	})

	t.Run("error scores zero", func(t *testing.T) {
		llm := new(MockLLMClient)
		llm.On("Generate", mock.Anything, mock.Anything).Return("", errors.New("quota")).Once()
		s := NewItemScorer(llm, zaptest.NewLogger(t))
		assert.Zero(t, s.Score(ctx, "a mug", c))
		assert.Zero(t, s.ParseFailures())
	})
}
