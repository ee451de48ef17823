package replay

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFormatAction(t *testing.T) {
	tests := []struct {
		name string
		args map[string]any
		want string
	}{
		{"search", map[string]any{"keywords": "red mug"}, "search[red mug]"},
		{"Select_Item", map[string]any{"item_id": "B01"}, "click[B01]"},
		{"choose_item", map[string]any{"item_id": 42}, "click[42]"},
		{"description", nil, "click[description]"},
		{"features", nil, "click[features]"},
		{"reviews", nil, "click[reviews]"},
		{"buy", nil, "click[Buy Now]"},
		{"buy_now", nil, "click[Buy Now]"},
		{"previous", nil, "click[< Prev]"},
		{"previous_page", nil, "click[< Prev]"},
		{"next_page", nil, "click[Next >]"},
		{"back", nil, "click[Back to Search]"},
		{"dance", nil, ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, FormatAction(tt.name, tt.args), tt.name)
	}
}

func TestItemIDAcceptsAliases(t *testing.T) {
	assert.Equal(t, "B01", ItemID(map[string]any{"itemId": "B01"}))
	assert.Equal(t, "B02", ItemID(map[string]any{"id": "B02"}))
	assert.Empty(t, ItemID(nil))
}

func TestLoadDemosNormalizes(t *testing.T) {
	episodes, err := LoadDemos("testdata/demos.json")
	require.NoError(t, err)
	require.Len(t, episodes, 2)

	traj := episodes[0].Trajectory
	require.Len(t, traj, 4, "unknown entry types are dropped")

	assert.Equal(t, "click[B09QQLDJ93]", traj[1].ExpectedAction, "missing executed action is formatted")

	item := traj[2]
	assert.Nil(t, item.StepNumber)
	assert.Equal(t, "click[description]", item.ExpectedAction)
	assert.Equal(t, "ItemPage", item.State)
	assert.Len(t, item.AvailableActions, 3)

	require.NotNil(t, traj[3].StepNumber)
	assert.Equal(t, 3, *traj[3].StepNumber)
}

func TestParseDemosRejectsGarbage(t *testing.T) {
	_, err := ParseDemos([]byte(`{"not":"a list"}`))
	assert.Error(t, err)
}
