package replay

import (
	"bytes"
	"fmt"
	"os"
	"strings"

	jsoniter "github.com/json-iterator/go"
)

// Step is one normalized demonstration step. StepNumber is nil for actions
// recorded on an item page.
type Step struct {
	StepNumber        *int           `json:"step_number"`
	ObservationBefore string         `json:"observation_before_llm"`
	ActionName        string         `json:"llm_action_name"`
	ActionArguments   map[string]any `json:"llm_action_arguments"`
	ExpectedAction    string         `json:"action_executed_in_env"`
	Reward            float64        `json:"reward"`
	Done              bool           `json:"done"`
	ObservationAfter  string         `json:"observation_after_action"`
	State             string         `json:"state,omitempty"`
	AvailableActions  []any          `json:"available_actions,omitempty"`
}

// Episode is one recorded session of the demonstration file.
type Episode struct {
	SessionID   int    `json:"session_id"`
	Instruction string `json:"instruction"`
	Trajectory  []Step `json:"-"`
}

type rawAction struct {
	Name      string         `json:"name"`
	Arguments map[string]any `json:"arguments"`
}

// rawStep covers both trajectory entry layouts found in demonstration logs.
type rawStep struct {
	StepNumber              jsoniter.RawMessage `json:"step_number"`
	Type                    string              `json:"type"`
	ObservationBeforeLLM    string              `json:"observation_before_llm"`
	LLMActionName           string              `json:"llm_action_name"`
	LLMActionArguments      map[string]any      `json:"llm_action_arguments"`
	ActionExecutedInEnv     string              `json:"action_executed_in_env"`
	Reward                  float64             `json:"reward"`
	Done                    bool                `json:"done"`
	ObservationAfterAction  string              `json:"observation_after_action"`
	State                   string              `json:"state"`
	LLMAction               *rawAction          `json:"llm_action"`
	ObservationBeforeAction string              `json:"observation_before_action"`
	AvailableOptions        []any               `json:"available_options"`
}

type rawEpisode struct {
	SessionID   int       `json:"session_id"`
	Instruction string    `json:"instruction"`
	Trajectory  []rawStep `json:"trajectory"`
}

// LoadDemos reads a demonstration file and normalizes every trajectory.
func LoadDemos(path string) ([]Episode, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read demo file: %w", err)
	}
	return ParseDemos(data)
}

func ParseDemos(data []byte) ([]Episode, error) {
	var raw []rawEpisode
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("decode demo file: %w", err)
	}
	episodes := make([]Episode, len(raw))
	for i, r := range raw {
		episodes[i] = Episode{
			SessionID:   r.SessionID,
			Instruction: r.Instruction,
			Trajectory:  normalizeTrajectory(r.Trajectory),
		}
	}
	return episodes, nil
}

// normalizeTrajectory keeps numbered steps, fills in their executed action when
// missing, and turns item_page_action entries into unnumbered steps. Anything
// else is dropped.
func normalizeTrajectory(raw []rawStep) []Step {
	out := make([]Step, 0, len(raw))
	for _, r := range raw {
		switch {
		case len(r.StepNumber) > 0:
			st := Step{
				StepNumber:        parseStepNumber(r.StepNumber),
				ObservationBefore: r.ObservationBeforeLLM,
				ActionName:        r.LLMActionName,
				ActionArguments:   r.LLMActionArguments,
				ExpectedAction:    r.ActionExecutedInEnv,
				Reward:            r.Reward,
				Done:              r.Done,
				ObservationAfter:  r.ObservationAfterAction,
				State:             r.State,
			}
			if st.ExpectedAction == "" {
				st.ExpectedAction = FormatAction(st.ActionName, st.ActionArguments)
			}
			out = append(out, st)

		case r.Type == "item_page_action":
			var act rawAction
			if r.LLMAction != nil {
				act = *r.LLMAction
			}
			out = append(out, Step{
				ObservationBefore: r.ObservationBeforeAction,
				ActionName:        act.Name,
				ActionArguments:   act.Arguments,
				ExpectedAction:    FormatAction(act.Name, act.Arguments),
				Reward:            r.Reward,
				Done:              r.Done,
				ObservationAfter:  r.ObservationAfterAction,
				State:             "ItemPage",
				AvailableActions:  r.AvailableOptions,
			})
		}
	}
	return out
}

func parseStepNumber(raw jsoniter.RawMessage) *int {
	if bytes.Equal(bytes.TrimSpace(raw), []byte("null")) {
		return nil
	}
	var n int
	if err := json.Unmarshal(raw, &n); err != nil {
		return nil
	}
	return &n
}

// FormatAction renders a tool call as the action string the WebShop
// environment accepts. Unknown names render as "".
func FormatAction(name string, args map[string]any) string {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "search":
		return fmt.Sprintf("search[%s]", argString(args, "keywords"))
	case "select_item", "selectitem", "click_item", "choose_item":
		return fmt.Sprintf("click[%s]", argString(args, "item_id"))
	case "description":
		return "click[description]"
	case "features":
		return "click[features]"
	case "reviews":
		return "click[reviews]"
	case "buy_now", "buy-now", "buynow", "buy":
		return "click[Buy Now]"
	case "prev", "previous", "previous_page":
		return "click[< Prev]"
	case "next", "next_page":
		return "click[Next >]"
	case "back_to_search", "back":
		return "click[Back to Search]"
	default:
		return ""
	}
}

// ItemID returns the selected item id of a select_item call, accepting the
// key spellings seen in logs.
func ItemID(args map[string]any) string {
	for _, k := range []string{"item_id", "itemId", "id"} {
		if v := argString(args, k); v != "" {
			return v
		}
	}
	return ""
}

func argString(args map[string]any, key string) string {
	v, ok := args[key]
	if !ok || v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprint(v)
}
