package llmutil

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type toolCall struct {
	Thought   string                 `json:"thought"`
	Name      string                 `json:"name"`
	Arguments map[string]interface{} `json:"arguments"`
}

func TestParseJSONResponse(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		wantName string
		wantErr  bool
	}{
		{"bare object", `{"name":"search","arguments":{"keywords":"shoes"}}`, "search", false},
		{"fenced json", "Here you go:\n```json\n{\"name\": \"select_item\", \"arguments\": {\"item_id\": \"B01\"}}\n```\nDone.", "select_item", false},
		{"fence without tag", "```\n{\"name\": \"buy_now\"}\n```", "buy_now", false},
		{"embedded in prose", `I think the best option is {"thought":"cheap","name":"next_page"} because...`, "next_page", false},
		{"garbage", "no json here", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseJSONResponse[toolCall](tt.input)
			if tt.wantErr {
				require.Error(t, err)
				assert.Contains(t, err.Error(), "failed to unmarshal LLM JSON response")
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantName, got.Name)
		})
	}
}

func TestParseJSONResponse_Array(t *testing.T) {
	got, err := ParseJSONResponse[[]map[string]float64]("Scores:\n[{\"score\": 7}, {\"score\": 3}]")
	require.NoError(t, err)
	require.Len(t, *got, 2)
	assert.Equal(t, 7.0, (*got)[0]["score"])
}

func TestFirstCodeBlock(t *testing.T) {
	body, ok := FirstCodeBlock("reasoning...\n```\nsearch['red shoes']\n```\n```\nchoose['x']\n```")
	assert.True(t, ok)
	assert.Equal(t, "search['red shoes']", body)

	body, ok = FirstCodeBlock("plain")
	assert.False(t, ok)
	assert.Equal(t, "plain", body)
}

func TestCleanResponse(t *testing.T) {
	in := "```markdown\n**PLAN:** open the site\n\n\n*THOUGHT*: click search\n```\n"
	assert.Equal(t, "PLAN: open the site\nTHOUGHT: click search", CleanResponse(in))
}

func TestTruncateChars(t *testing.T) {
	assert.Equal(t, "abc", TruncateChars("abc", 3))
	assert.Equal(t, "ab...", TruncateChars("abc", 2))
	assert.Equal(t, "日本...", TruncateChars("日本語", 2))
	assert.Equal(t, "", TruncateChars("abc", 0))
}
