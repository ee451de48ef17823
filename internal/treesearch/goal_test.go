package treesearch

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/xkilldash9x/webagents/internal/webshop"
)

func itemPage(products ...webshop.Product) webshop.Observation {
	return webshop.Observation{
		Products:   products,
		Clickables: []webshop.Clickable{{Text: "Add to Cart", Target: "/cart/add/x"}},
	}
}

func TestGoalReached(t *testing.T) {
	camera := webshop.Product{ID: "C1", Title: "SnapShot Durable Camera", Price: 95}

	tests := []struct {
		name string
		goal string
		obs  webshop.Observation
		want bool
	}{
		{"matching item with buy button", "Find a durable camera under $100", itemPage(camera), true},
		{"results page without buy button", "Find a durable camera under $100",
			webshop.Observation{Products: []webshop.Product{camera}}, false},
		{"over price limit", "Find a durable camera under $50", itemPage(camera), false},
		{"missing keyword", "Find a waterproof camera", itemPage(camera), false},
		{"quoted brand", "I need a pair of men's walking shoes, size 10, brand 'Nike'",
			itemPage(webshop.Product{Title: "Nike Men's Walking Shoes Size 10", Price: 89.5}), true},
		{"memory size is not a title keyword", "Find the cheapest laptop with at least 16GB of RAM",
			itemPage(webshop.Product{Title: "StudentPro Laptop", Price: 619}), true},
		{"cart item", "Find a durable camera",
			webshop.Observation{CartItems: []webshop.Product{camera}}, true},
		{"cart item over limit", "Find a durable camera under $90",
			webshop.Observation{CartItems: []webshop.Product{camera}}, false},
		{"empty page", "Find a durable camera", webshop.Observation{}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, GoalReached(tt.goal, tt.obs))
		})
	}
}

func TestGoalTerms(t *testing.T) {
	keywords, limit := goalTerms("Find a durable camera under $100")
	assert.Equal(t, []string{"durable", "camera"}, keywords)
	assert.Equal(t, 100.0, limit)
}
