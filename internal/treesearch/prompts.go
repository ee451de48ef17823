package treesearch

import (
	"fmt"
	"strings"

	jsoniter "github.com/json-iterator/go"

	"github.com/xkilldash9x/webagents/internal/webshop"
)

const (
	answerPhrase   = "In summary, the next action I will perform is"
	actionSplitter = "```"
)

const proposalIntro = `You are an autonomous agent shopping on WebShop for a user.
You read the current OBSERVATION and perform actions to accomplish the OBJECTIVE.

You are given:
- OBJECTIVE: the task you must complete.
- OBSERVATION: a summary of the current page and its clickable buttons and links.
- PREVIOUS ACTION: the action you performed last.

Only two actions exist:
search['query']: type query into the search bar and submit it.
choose['label']: click the button or link whose text is exactly label.

Rules:
1. Only choose labels listed in available_actions.
2. Perform exactly one action.
3. Reason step by step and weigh alternative paths before deciding.
4. End with "` + answerPhrase + " " + actionSplitter + "action" + actionSplitter + `".`

var proposalExamples = [][2]string{
	{
		`OBSERVATION:
{"query":"","results":[],"available_actions":["Search","Home"]}
OBJECTIVE: Find a durable camera under $100.
PREVIOUS ACTION: None`,
		"Let's think step-by-step. The page is empty, so I should search for a durable camera.\n" +
			answerPhrase + " ```search['durable camera']```",
	},
	{
		`OBSERVATION:
{"query":"durable camera","results":[{"id":"B0123","title":"ProView Camera","price":129.99},{"id":"B0456","title":"SnapShot Camera","price":95}],"available_actions":["B0123","B0456","Back to Search"]}
OBJECTIVE: Find a durable camera under $100.
PREVIOUS ACTION: search['durable camera']`,
		"Let's think step-by-step. SnapShot Camera costs $95.00, which is under the limit. I will open it.\n" +
			answerPhrase + " ```choose['B0456']```",
	},
	{
		`OBSERVATION:
{"query":"","results":[{"id":"B0456","title":"SnapShot Camera","price":95}],"available_actions":["B0456","Add to Cart","Buy Now"]}
OBJECTIVE: Find a durable camera under $100.
PREVIOUS ACTION: choose['B0456']`,
		"Let's think step-by-step. This item matches every requirement, so I will add it to the cart.\n" +
			answerPhrase + " ```choose['Add to Cart']```",
	},
}

const valueIntro = `You evaluate states of a WebShop shopping session.
Given the OBSERVATION and the OBJECTIVE, rate how close the state is to achieving the objective,
from 0.0 (very bad) to 1.0 (very good).

Rules:
1. Reason step by step about why the state deserves its score.
2. Finish with "Final Score: <score>", for example "Final Score: 0.75".
3. Relevant products in the results deserve a high score.
4. A relevant item in the cart or on its detail page deserves a higher score.
5. Unrelated or error pages deserve a low score.`

var valueExamples = [][2]string{
	{
		`OBSERVATION:
{"query":"","results":[],"available_actions":["Search","Home"]}
OBJECTIVE: Find a durable camera under $100.`,
		"Let's think step-by-step. Nothing has been searched yet. This state is far from the goal.\nFinal Score: 0.1",
	},
	{
		`OBSERVATION:
{"query":"durable camera","results":[{"id":"B0123","title":"ProView Camera","price":129.99},{"id":"B0456","title":"SnapShot Camera","price":95}],"available_actions":["B0123","B0456"]}
OBJECTIVE: Find a durable camera under $100.`,
		"Let's think step-by-step. The results include SnapShot Camera under $100. This is a good state.\nFinal Score: 0.7",
	},
	{
		`OBSERVATION:
{"query":"","results":[{"id":"B0456","title":"SnapShot Camera","price":95}],"available_actions":["B0456","Add to Cart","Buy Now"]}
OBJECTIVE: Find a durable camera under $100.`,
		"Let's think step-by-step. The matching camera is open and can be bought. The goal is nearly achieved.\nFinal Score: 0.95",
	},
}

type productSummary struct {
	ID    string  `json:"id"`
	Title string  `json:"title"`
	Price float64 `json:"price"`
}

type obsSummary struct {
	Query            string           `json:"query"`
	Results          []productSummary `json:"results"`
	AvailableActions []string         `json:"available_actions"`
	Cart             []productSummary `json:"cart,omitempty"`
}

// summarize renders the compact view of obs given to the model: the query,
// five results and ten clickables. The value prompt also sees the cart.
func summarize(obs webshop.Observation, withCart bool) string {
	s := obsSummary{
		Query:            obs.Query,
		Results:          summarizeProducts(obs.Products, 5),
		AvailableActions: obs.ClickableTexts(10),
	}
	if withCart {
		s.Cart = summarizeProducts(obs.CartItems, 0)
	}
	out, err := jsoniter.ConfigCompatibleWithStandardLibrary.MarshalToString(s)
	if err != nil {
		return fmt.Sprintf("%+v", s)
	}
	return out
}

func summarizeProducts(ps []webshop.Product, limit int) []productSummary {
	if limit > 0 && len(ps) > limit {
		ps = ps[:limit]
	}
	out := make([]productSummary, len(ps))
	for i, p := range ps {
		out[i] = productSummary{ID: p.ID, Title: p.Title, Price: p.Price}
	}
	return out
}

func fewShot(examples [][2]string, current string) string {
	var b strings.Builder
	for _, ex := range examples {
		b.WriteString(ex[0])
		b.WriteString("\n")
		b.WriteString(ex[1])
		b.WriteString("\n\n---\n\n")
	}
	b.WriteString(current)
	return b.String()
}

func proposalPrompt(goal string, n *Node) string {
	return fewShot(proposalExamples, fmt.Sprintf("OBSERVATION:\n%s\nOBJECTIVE: %s\nPREVIOUS ACTION: %s",
		summarize(n.Observation, false), goal, n.LastAction()))
}

func valuePrompt(goal string, n *Node) string {
	return fewShot(valueExamples, fmt.Sprintf("OBSERVATION:\n%s\nOBJECTIVE: %s\n",
		summarize(n.Observation, true), goal))
}
