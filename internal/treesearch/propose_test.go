package treesearch

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/xkilldash9x/webagents/internal/webshop"
)

func TestParseLLMAction(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want ParsedAction
	}{
		{
			name: "answer phrase with code block",
			in:   "Let's think. choose['ignored'] " + answerPhrase + " ```search['red mug']```",
			want: ParsedAction{Action: webshop.Action{Kind: webshop.ActionSearch, Arg: "red mug"}, OK: true},
		},
		{
			name: "bare choose with double quotes",
			in:   `choose["Buy Now"]`,
			want: ParsedAction{Action: webshop.Action{Kind: webshop.ActionChoose, Arg: "Buy Now"}, OK: true},
		},
		{
			name: "search beats choose",
			in:   "```choose['B01'] search['mug']```",
			want: ParsedAction{Action: webshop.Action{Kind: webshop.ActionSearch, Arg: "mug"}, OK: true},
		},
		{
			name: "stop",
			in:   answerPhrase + " ```stop['nothing fits']```",
			want: ParsedAction{Stop: "nothing fits"},
		},
		{
			name: "garbage",
			in:   "I am not sure what to do.",
			want: ParsedAction{},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ParseLLMAction(tt.in))
		})
	}
}

func TestProposerVotes(t *testing.T) {
	responses := []string{
		"```choose['B']```",
		"```search['a']```",
		"```choose['B']```",
		"nonsense",
		"```search['a']```",
		"```choose['C']```",
		"```stop['done']```",
	}
	i := 0
	llm := &scriptedLLM{
		value: func(string) string { return "" },
		propose: func(string) string {
			r := responses[i]
			i++
			return r
		},
	}

	p := NewProposer(llm, len(responses), 1.0, 0.95, 1, zaptest.NewLogger(t))
	got := p.Propose(context.Background(), "goal", &Node{})

	require.Len(t, got, 3)
	assert.Equal(t, "choose('B')", got[0].String())
	assert.Equal(t, "search('a')", got[1].String())
	assert.Equal(t, "choose('C')", got[2].String())
	assert.Equal(t, int64(1), p.ParseFailures())
}

func TestProposerCapsAtFive(t *testing.T) {
	n := 0
	llm := &scriptedLLM{propose: func(string) string {
		n++
		return "```search['q" + string(rune('a'+n)) + "']```"
	}}
	p := NewProposer(llm, 8, 1.0, 0.95, 1, zaptest.NewLogger(t))
	assert.Len(t, p.Propose(context.Background(), "goal", &Node{}), maxProposals)
}

func TestProposalPromptCarriesPreviousAction(t *testing.T) {
	n := (&Node{}).Extend(webshop.Observation{Query: "mug"}, "search('mug')")
	prompt := proposalPrompt("buy a mug", n)
	assert.Contains(t, prompt, "PREVIOUS ACTION: search('mug')")
	assert.Contains(t, prompt, `"query":"mug"`)
}
