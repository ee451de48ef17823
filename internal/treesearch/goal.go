package treesearch

import (
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/xkilldash9x/webagents/internal/webshop"
)

var (
	keywordRegex    = regexp.MustCompile(`\b\w+\b|'\w+'|\$\d+|\d+gb|\d+inch`)
	priceLimitRegex = regexp.MustCompile(`\$(\d+)`)

	goalStopwords = map[string]struct{}{
		"find": {}, "a": {}, "an": {}, "the": {}, "under": {}, "with": {}, "at": {}, "least": {},
		"of": {}, "ram": {}, "cheapest": {}, "need": {}, "pair": {}, "brand": {}, "buy": {},
	}
)

// goalTerms returns the title keywords and the price ceiling of a goal.
func goalTerms(goal string) ([]string, float64) {
	lower := strings.ToLower(goal)

	var keywords []string
	for _, k := range keywordRegex.FindAllString(lower, -1) {
		if _, stop := goalStopwords[k]; stop {
			continue
		}
		if strings.HasPrefix(k, "$") || strings.HasSuffix(k, "gb") || strings.HasSuffix(k, "inch") {
			continue
		}
		// 'nike' is matched as nike.
		keywords = append(keywords, strings.Trim(k, "'"))
	}

	limit := math.Inf(1)
	if m := priceLimitRegex.FindStringSubmatch(lower); m != nil {
		if v, err := strconv.ParseFloat(m[1], 64); err == nil {
			limit = v
		}
	}
	return keywords, limit
}

func titleMatches(title string, keywords []string) bool {
	t := strings.ToLower(title)
	for _, k := range keywords {
		if !strings.Contains(t, k) {
			return false
		}
	}
	return true
}

// MatchGoal returns the product on obs that satisfies goal. A listed product
// counts only when it can be bought from this page; a cart item always counts.
// Neither may cost more than the goal's "$N" limit.
func MatchGoal(goal string, obs webshop.Observation) (webshop.Product, bool) {
	keywords, limit := goalTerms(goal)

	if obs.HasClickable("add to cart", "buy now") {
		for _, p := range obs.Products {
			if p.Price <= limit && titleMatches(p.Title, keywords) {
				return p, true
			}
		}
	}
	for _, p := range obs.CartItems {
		if p.Price <= limit && titleMatches(p.Title, keywords) {
			return p, true
		}
	}
	return webshop.Product{}, false
}

// GoalReached is the keyword and price heuristic used to stop the search.
func GoalReached(goal string, obs webshop.Observation) bool {
	_, ok := MatchGoal(goal, obs)
	return ok
}
