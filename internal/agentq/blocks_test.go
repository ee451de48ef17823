package agentq

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const thoughtResponse = `Sure, here is my answer.
THOUGHT:
The results page is open, the first product looks right.
COMMANDS:
- CLICK [ID=el_3]
2. SCROLL [DOWN]
* CLICK [ID=el_3]

status: continue
because more steps remain`

func TestSplitOutputBlocks(t *testing.T) {
	b := SplitOutputBlocks(thoughtResponse)
	assert.Empty(t, b.Plan)
	assert.Equal(t, "The results page is open, the first product looks right.", b.Thought)
	assert.Equal(t, "- CLICK [ID=el_3]\n2. SCROLL [DOWN]\n* CLICK [ID=el_3]", b.Commands)
	assert.Equal(t, "continue\nbecause more steps remain", b.Status)

	b = SplitOutputBlocks("THOUGHT: first\nTHOUGHT: second")
	assert.Equal(t, "second", b.Thought, "a repeated header replaces the earlier block")

	assert.Equal(t, OutputBlocks{}, SplitOutputBlocks("no headers at all"))
}

func TestExtractCommands(t *testing.T) {
	cmds, status := ExtractCommands(thoughtResponse)
	assert.Equal(t, []string{"CLICK [ID=el_3]", "SCROLL [DOWN]"}, cmds)
	assert.Equal(t, "CONTINUE", status)

	cmds, status = ExtractCommands("THOUGHT: nothing to do")
	assert.Empty(t, cmds)
	assert.Empty(t, status)
}

func TestExtractAction(t *testing.T) {
	cmd, ok := ExtractAction(thoughtResponse)
	require.True(t, ok)
	assert.Equal(t, Command{Type: CmdClick, Target: "el_3", ByID: true}, *cmd)

	cmd, ok = ExtractAction("  NAVIGATE: https://example.com  ")
	require.True(t, ok, "a bare command line is parsed whole")
	assert.Equal(t, "https://example.com", cmd.Target)

	_, ok = ExtractAction("I am not sure what to do.")
	assert.False(t, ok)
}

func TestCritiqueDecision(t *testing.T) {
	tests := []struct {
		text string
		want bool
	}{
		{"COMPLETE. The capital of France is Paris.", true},
		{"complete - we found it", true},
		{"CONTINUE, the form is not submitted yet.", false},
		{"The task is INCOMPLETE, keep going.", false},
		{"목표를 달성했습니다. 충분한 정보입니다.", true},
		{"추가 정보가 필요합니다.", false},
		{"The objective has been achieved.", true},
		{"More work is needed before this is done.", false},
		{"Hmm.", false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, CritiqueDecision(tt.text), tt.text)
	}
}
