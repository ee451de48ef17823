package laser

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseObservationResultPage(t *testing.T) {
	p := ParseObservation(resultsPage)

	assert.Equal(t, PageInfo{Current: 1, Total: 50}, p.Page)
	require.Len(t, p.Items, 2)
	assert.Equal(t, ObsItem{ItemID: "B09QQLDJ93", Name: "QUEENTAS 24 Inch Clip in Hair Extensions", Price: "29.99"}, p.Items[0])
	assert.Equal(t, ObsItem{ItemID: "B07XYZ1234", Name: "Synthetic Wig Long Curly", Price: "45.00 to $60.00"}, p.Items[1])

	texts := make([]string, len(p.Buttons))
	for i, b := range p.Buttons {
		texts[i] = b.Text
	}
	assert.Equal(t, []string{"Back to Search", "Next >", "B09QQLDJ93", "B07XYZ1234"}, texts)
	assert.False(t, p.DescriptionViewed)
}

func TestParseObservationItemPage(t *testing.T) {
	text := itemPage + "\n\ndescription: soft natural hair\nreviews: (if this is shown, there are no reviews)\n[clicked button] Features [clicked button_]"
	p := ParseObservation(text)

	require.Len(t, p.Items, 1)
	assert.Equal(t, ObsItem{Name: "QUEENTAS 24 Inch Clip in Hair Extensions", Price: "29.99"}, p.Items[0])
	assert.True(t, p.DescriptionViewed)
	assert.False(t, p.ReviewsViewed, "placeholder sections are not views")
	assert.False(t, p.FeaturesViewed)
	assert.Equal(t, "description: soft natural hair", p.ItemDetails)

	last := p.Buttons[len(p.Buttons)-1]
	assert.Equal(t, Button{Text: "Features", Clicked: true}, last)
	assert.Zero(t, p.Page)
}

func TestParseObservationNameOnButtonLine(t *testing.T) {
	p := ParseObservation("[button] B01ABC [button_] Red Mug\n$9.50\n[button] B02DEF [button_]\nBlue Mug")
	require.Len(t, p.Items, 2)
	assert.Equal(t, "Red Mug", p.Items[0].Name)
	assert.Equal(t, "9.50", p.Items[0].Price)
	assert.Equal(t, "Blue Mug", p.Items[1].Name)
	assert.Empty(t, p.Items[1].Price, "the price scan stops at the next button")
}

func TestParseInstruction(t *testing.T) {
	tests := []struct {
		name     string
		text     string
		keywords []string
		maxPrice float64
	}{
		{
			name:     "lower than with dollars",
			text:     "i need a red mug, and price lower than 40.00 dollars",
			keywords: []string{"i", "need", "a", "red", "mug", "and"},
			maxPrice: 40,
		},
		{
			name:     "under at sentence end",
			text:     "Blue shoes. Price under 25.",
			keywords: []string{"Blue", "shoes"},
			maxPrice: 25,
		},
		{
			name:     "no limit",
			text:     "wireless headphones!",
			keywords: []string{"wireless", "headphones"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := ParseInstruction(tt.text)
			assert.Equal(t, tt.keywords, in.Keywords)
			assert.InDelta(t, tt.maxPrice, in.MaxPrice, 1e-9)
			assert.Equal(t, tt.text, in.Text)
		})
	}
}
