package laser

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/xkilldash9x/webagents/internal/replay"
)

// Env executes WebShop action strings such as "search[red mug]" or
// "click[Buy Now]". replay.OfflineEnv and WebShopEnv both satisfy it.
type Env interface {
	Step(ctx context.Context, action string) (obs string, reward float64, done bool, info replay.StepInfo)
}

// Tool names.
const (
	ToolSearch       = "search"
	ToolSelectItem   = "select_item"
	ToolDescription  = "description"
	ToolFeatures     = "features"
	ToolReviews      = "reviews"
	ToolBuyNow       = "buy_now"
	ToolPreviousPage = "previous_page"
	ToolNextPage     = "next_page"
	ToolBackToSearch = "back_to_search"
)

// ToolCall is a named tool invocation.
type ToolCall struct {
	Name      string         `json:"name"`
	Arguments map[string]any `json:"arguments"`
}

func (c ToolCall) String() string {
	if len(c.Arguments) == 0 {
		return c.Name + "()"
	}
	keys := make([]string, 0, len(c.Arguments))
	for k := range c.Arguments {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = fmt.Sprintf("%s=%v", k, c.Arguments[k])
	}
	return c.Name + "(" + strings.Join(parts, ", ") + ")"
}

// ToolSpec describes a tool to the model.
type ToolSpec struct {
	Name        string
	Description string
	Args        map[string]string // argument name -> description
}

var (
	searchSpec = ToolSpec{
		Name:        ToolSearch,
		Description: "Search the shop with keywords taken from the instruction.",
		Args:        map[string]string{"keywords": "space separated search keywords"},
	}
	selectItemSpec = ToolSpec{
		Name:        ToolSelectItem,
		Description: "Open the item page of a product listed on the current result page.",
		Args:        map[string]string{"item_id": "the product id shown on its button, e.g. B09QQLDJ93"},
	}
	descriptionSpec  = ToolSpec{Name: ToolDescription, Description: "Show the item description."}
	featuresSpec     = ToolSpec{Name: ToolFeatures, Description: "Show the item features."}
	reviewsSpec      = ToolSpec{Name: ToolReviews, Description: "Show the item reviews."}
	buyNowSpec       = ToolSpec{Name: ToolBuyNow, Description: "Buy the current item. This ends the episode."}
	previousPageSpec = ToolSpec{Name: ToolPreviousPage, Description: "Return to the result list."}
	nextPageSpec     = ToolSpec{Name: ToolNextPage, Description: "Show the next page of results."}
	backToSearchSpec = ToolSpec{Name: ToolBackToSearch, Description: "Go back to the search page and start over."}
)

// Tools allowed in each state.
var (
	searchTools = []ToolSpec{searchSpec}
	resultTools = []ToolSpec{selectItemSpec, nextPageSpec, backToSearchSpec}
	itemTools   = []ToolSpec{descriptionSpec, featuresSpec, reviewsSpec, buyNowSpec, previousPageSpec}
)

// CanonicalToolName maps spellings seen in model output onto a tool name.
// Unknown names come back lowercased and otherwise untouched.
func CanonicalToolName(name string) string {
	n := strings.ToLower(strings.TrimSpace(name))
	n = strings.ReplaceAll(n, "-", "_")
	n = strings.ReplaceAll(n, " ", "_")
	switch n {
	case "search_items", "search_item":
		return ToolSearch
	case "selectitem", "click_item", "choose_item", "select":
		return ToolSelectItem
	case "buy", "buynow":
		return ToolBuyNow
	case "prev", "previous", "prev_page":
		return ToolPreviousPage
	case "next":
		return ToolNextPage
	case "back", "backtosearch":
		return ToolBackToSearch
	}
	return n
}

func allows(allowed []ToolSpec, name string) bool {
	for _, t := range allowed {
		if t.Name == name {
			return true
		}
	}
	return false
}

// Transition is the outcome of executing one tool.
type Transition struct {
	Action string
	Obs    string
	Reward float64
	Done   bool
	Info   replay.StepInfo
}

// ToolKit turns tool calls into env actions.
type ToolKit struct{}

var knownTools = map[string]bool{
	ToolSearch: true, ToolSelectItem: true, ToolDescription: true, ToolFeatures: true,
	ToolReviews: true, ToolBuyNow: true, ToolPreviousPage: true, ToolNextPage: true,
	ToolBackToSearch: true,
}

// Execute runs call against env. An unknown tool is not sent to the env and
// comes back as an error info.
func (ToolKit) Execute(ctx context.Context, env Env, call ToolCall) Transition {
	name := CanonicalToolName(call.Name)
	if !knownTools[name] {
		return Transition{Info: replay.StepInfo{Error: fmt.Sprintf("unknown tool: %s", call.Name)}}
	}
	action := replay.FormatAction(name, call.Arguments)
	obs, reward, done, info := env.Step(ctx, action)
	return Transition{Action: action, Obs: obs, Reward: reward, Done: done, Info: info}
}
