package laser

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/xkilldash9x/webagents/internal/replay"
	"github.com/xkilldash9x/webagents/internal/webshop"
)

// WebShopEnv plays the agent against a live shop, rendering each page in the
// "[button] X [button_]" text format the agent reads.
type WebShopEnv struct {
	client *webshop.Client
	logger *zap.Logger

	cur      webshop.Observation
	selected string
}

func NewWebShopEnv(client *webshop.Client, logger *zap.Logger) *WebShopEnv {
	return &WebShopEnv{client: client, logger: logger.Named("webshop_env")}
}

// Reset opens the home page and returns its text rendering.
func (e *WebShopEnv) Reset(ctx context.Context) (string, error) {
	obs, err := e.client.Reset(ctx)
	if err != nil {
		return "", err
	}
	e.cur, e.selected = obs, ""
	return RenderObservation(obs), nil
}

// clickLabels maps lowercase click targets onto shop labels.
var clickLabels = map[string]string{
	"description":    "Description",
	"features":       "Features",
	"reviews":        "Reviews",
	"< prev":         "< Prev",
	"next >":         "Next >",
	"back to search": "Back to Search",
}

// Step executes a search[...] or click[...] action. Buying adds the item to
// the cart and ends the episode. A click on a label the page does not offer
// is reported as an error without leaving the page.
func (e *WebShopEnv) Step(ctx context.Context, action string) (string, float64, bool, replay.StepInfo) {
	info := replay.StepInfo{Predicted: action, SelectedItemID: e.selected}
	kind, arg, ok := splitAction(action)
	if !ok {
		info.Error = fmt.Sprintf("malformed action %q", action)
		return RenderObservation(e.cur), 0, false, info
	}

	var (
		next webshop.Observation
		err  error
		done bool
	)
	switch kind {
	case "search":
		next, err = e.client.Search(ctx, arg)
	case "click":
		label := arg
		if l, ok := clickLabels[strings.ToLower(arg)]; ok {
			label = l
		}
		switch {
		case strings.EqualFold(label, "Buy Now"):
			label, done = "Add to Cart", true
		case strings.EqualFold(label, "Back to Search") && !e.cur.HasClickable(label):
			next, err = e.client.Reset(ctx)
			label = ""
		}
		if label != "" {
			if !e.cur.HasClickable(label) {
				info.Error = fmt.Sprintf("%q is not clickable on this page", arg)
				return RenderObservation(e.cur), 0, false, info
			}
			if itemIDPattern.MatchString(label) {
				e.selected = label
			}
			next, err = e.client.Choose(ctx, e.cur, label)
		}
	default:
		info.Error = fmt.Sprintf("unsupported action %q", kind)
		return RenderObservation(e.cur), 0, false, info
	}
	if err != nil {
		e.logger.Warn("Shop request failed", zap.String("action", action), zap.Error(err))
		info.Error = err.Error()
		return RenderObservation(e.cur), 0, true, info
	}

	e.cur = next
	info.SelectedItemID = e.selected
	return RenderObservation(next), 0, done, info
}

func splitAction(action string) (kind, arg string, ok bool) {
	open := strings.Index(action, "[")
	if open <= 0 || !strings.HasSuffix(action, "]") {
		return "", "", false
	}
	return strings.ToLower(action[:open]), strings.TrimSpace(action[open+1 : len(action)-1]), true
}

// RenderObservation writes a parsed page in the WebShop text format.
func RenderObservation(obs webshop.Observation) string {
	var b strings.Builder
	button := func(label string) { fmt.Fprintf(&b, "[button] %s [button_]\n", label) }

	switch {
	case len(obs.CartItems) > 0 && len(obs.Products) == 0:
		button("Back to Search")
		b.WriteString("\nThank you for shopping with us!\nYour cart:\n")
		for _, it := range obs.CartItems {
			fmt.Fprintf(&b, "%s\nPrice: $%.2f\n", it.Title, it.Price)
		}

	case obs.HasClickable("Buy Now") && len(obs.Products) > 0:
		p := obs.Products[0]
		button("Back to Search")
		button("< Prev")
		fmt.Fprintf(&b, "\n%s\nPrice: $%.2f\n", p.Title, p.Price)
		for _, l := range []string{"Description", "Features", "Reviews", "Buy Now"} {
			button(l)
		}
		if obs.Section != "" {
			fmt.Fprintf(&b, "\n%s\n", obs.Section)
		}

	case len(obs.Products) > 0:
		button("Back to Search")
		fmt.Fprintf(&b, "Page 1 (Total results: %d)\n", len(obs.Products))
		if obs.HasClickable("Next >") {
			button("Next >")
		}
		for _, p := range obs.Products {
			fmt.Fprintf(&b, "\n[button] %s [button_]\n%s\n$%.2f\n", p.ID, p.Title, p.Price)
		}

	case obs.Query != "":
		button("Back to Search")
		fmt.Fprintf(&b, "No results for %q.\n", obs.Query)

	default:
		b.WriteString("WebShop [SEP] Search\n")
		button("Search")
	}
	return strings.TrimRight(b.String(), "\n")
}
