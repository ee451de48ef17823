package laser

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/xkilldash9x/webagents/api/schemas"
	"github.com/xkilldash9x/webagents/internal/config"
	"github.com/xkilldash9x/webagents/internal/llmutil"
	"github.com/xkilldash9x/webagents/internal/observability"
	"github.com/xkilldash9x/webagents/internal/replay"
)

const (
	snapshotExcerptChars = 500
	noItemNote           = "no item selected (memory buffer empty)"
)

// Result is the outcome of one episode.
type Result struct {
	Instruction string           `json:"instruction"`
	Selected    *Candidate       `json:"selected,omitempty"`
	FromBuffer  bool             `json:"from_buffer"` // Selected came from the memory buffer, not a purchase
	Note        string           `json:"note,omitempty"`
	Steps       int              `json:"steps"`
	Exhausted   bool             `json:"exhausted"`
	FinalReward float64          `json:"final_reward"`
	Thoughts    []string         `json:"thoughts"`
	Actions     []string         `json:"actions"`
	Feedback    []FeedbackRecord `json:"feedback,omitempty"`
	Rethinks    []RethinkRecord  `json:"rethinks,omitempty"`
	Buffer      []Candidate      `json:"buffer,omitempty"`
}

// Agent walks the Search, Result and Item states until it buys something,
// runs out of steps, or the env ends the episode.
type Agent struct {
	policy Policy
	scorer *ItemScorer
	tools  ToolKit
	cfg    config.LaserConfig
	logger *zap.Logger
}

// NewAgent builds an agent. A nil scorer leaves buffer candidates unscored.
func NewAgent(policy Policy, scorer *ItemScorer, cfg config.LaserConfig, logger *zap.Logger) *Agent {
	if cfg.MaxInnerSteps <= 0 {
		cfg.MaxInnerSteps = 3
	}
	return &Agent{policy: policy, scorer: scorer, cfg: cfg, logger: logger.Named("laser")}
}

// Run plays one episode starting from initialObs.
func (a *Agent) Run(ctx context.Context, env Env, instruction, initialObs string) (Result, error) {
	st := NewState(instruction, initialObs)
	a.logger.Info("Starting episode", zap.String("instruction", instruction), zap.Int("max_steps", a.cfg.MaxSteps))

	exhausted := false
	for st.Current != StateStopping {
		if err := ctx.Err(); err != nil {
			observability.RecordAgentRun("laser", string(schemas.RunCanceled))
			return a.finish(st, exhausted), err
		}
		if st.StepCount >= a.cfg.MaxSteps {
			a.logger.Info("Step limit reached, stopping", zap.Int("steps", st.StepCount))
			exhausted = true
			st.Current, st.Route = StateStopping, RouteToStop
			break
		}

		switch st.Current {
		case StateItem:
			a.itemNode(ctx, env, st)
		default:
			a.pageNode(ctx, env, st)
		}
		a.logger.Debug("Step complete",
			zap.Int("step", st.StepCount),
			zap.String("state", string(st.Current)),
			zap.String("route", string(st.Route)))
	}

	res := a.finish(st, exhausted)
	observability.RecordAgentRun("laser", string(res.Outcome()))
	return res, nil
}

// Outcome is succeeded only when the agent bought an item itself. A pick
// from the memory buffer, or no item at all, counts as exhausted.
func (r Result) Outcome() schemas.RunStatus {
	if r.Selected != nil && !r.FromBuffer {
		return schemas.RunSucceeded
	}
	return schemas.RunExhausted
}

func toolsFor(s NodeState) []ToolSpec {
	switch s {
	case StateResult:
		return resultTools
	case StateItem:
		return itemTools
	default:
		return searchTools
	}
}

// decide asks the policy, substituting back_to_search when it fails.
func (a *Agent) decide(ctx context.Context, st *State, allowed []ToolSpec) Decision {
	d, err := a.policy.Decide(ctx, st, allowed)
	if err != nil {
		a.logger.Warn("Policy failed, returning to search", zap.String("state", string(st.Current)), zap.Error(err))
		return fallbackDecision(fmt.Sprintf("LLM call failed: %v", err))
	}
	return d
}

// execute runs d and appends it to the history.
func (a *Agent) execute(ctx context.Context, env Env, st *State, d Decision) Transition {
	tr := a.tools.Execute(ctx, env, d.Call)
	action := tr.Action
	if action == "" {
		action = d.Call.String()
	}
	st.record(d.Thought, action)
	st.Reward = tr.Reward
	a.logger.Debug("Executed action",
		zap.String("state", string(st.Current)),
		zap.String("action", action),
		zap.Bool("match", tr.Info.Match),
		zap.Bool("done", tr.Done))
	return tr
}

// terminal moves to Stopping when the env ended the episode or failed.
func (a *Agent) terminal(st *State, tr Transition) bool {
	if tr.Info.Error != "" {
		a.logger.Warn("Environment reported an error, stopping", zap.String("error", tr.Info.Error))
		st.Note = tr.Info.Error
	} else if !tr.Done {
		return false
	}
	st.Obs = tr.Obs
	st.Current, st.Route = StateStopping, RouteToStop
	return true
}

// nextState is where a tool leads outside the item micro-agent.
func nextState(tool string) (NodeState, Route) {
	switch tool {
	case ToolSelectItem, ToolDescription, ToolFeatures, ToolReviews:
		return StateItem, RouteToItem
	case ToolBackToSearch:
		return StateSearch, RouteToSearch
	case ToolBuyNow:
		return StateStopping, RouteToStop
	default:
		return StateResult, RouteToResult
	}
}

// pageNode handles one step on the search or result page.
func (a *Agent) pageNode(ctx context.Context, env Env, st *State) {
	from := st.Current
	d := a.decide(ctx, st, toolsFor(from))
	if ctx.Err() != nil {
		return
	}
	prevObs := st.Obs
	name := CanonicalToolName(d.Call.Name)
	if name == ToolSelectItem && from == StateResult {
		a.remember(ctx, st, prevObs, d)
	}
	tr := a.execute(ctx, env, st, d)

	if name == ToolBuyNow {
		a.selectItem(st, tr, prevObs, d)
	}
	if a.terminal(st, tr) {
		return
	}
	st.Obs = tr.Obs
	st.Current, st.Route = nextState(name)
	if from == StateResult && st.Current == StateResult {
		st.Route = RouteStayResult
	}
}

// remember adds the selected result entry to the memory buffer.
func (a *Agent) remember(ctx context.Context, st *State, obs string, d Decision) {
	id := replay.ItemID(d.Call.Arguments)
	parsed := ParseObservation(obs)
	c := Candidate{
		ItemID:          id,
		Page:            parsed.Page.Current,
		Keywords:        strings.Fields(st.Instruction),
		SnapshotExcerpt: llmutil.TruncateChars(obs, snapshotExcerptChars),
		Rationale:       d.Thought,
		SourceState:     string(StateResult),
		ActionsTaken:    append([]string(nil), st.ActionHistory...),
		Score:           unscored,
	}
	for _, it := range parsed.Items {
		if it.ItemID == id {
			c.Title, c.Price = it.Name, it.Price
			break
		}
	}
	if a.scorer != nil {
		c.Score = a.scorer.Score(ctx, st.Instruction, c)
	}
	st.Memory.AddOrUpdate(c, st.StepCount)
}

// selectItem records the bought item. Its id comes from the env when it
// tracks one, else from the last clicked item button.
func (a *Agent) selectItem(st *State, tr Transition, itemObs string, d Decision) {
	c := Candidate{
		ItemID:       tr.Info.SelectedItemID,
		Rationale:    d.Thought,
		SourceState:  string(StateItem),
		ActionsTaken: append([]string(nil), st.ActionHistory...),
		Score:        unscored,
	}
	if c.ItemID == "" {
		c.ItemID = st.lastClickedItem()
	}
	for _, it := range ParseObservation(itemObs).Items {
		if it.ItemID == "" || it.ItemID == c.ItemID {
			c.Title, c.Price = it.Name, it.Price
			break
		}
	}
	st.Memory.AddOrUpdate(c, st.StepCount)
	if merged, ok := st.Memory.Get(c.ItemID); ok {
		c = merged
	}
	if c.Title == "" {
		c.Title = "Unknown Item"
	}
	if c.Price == "" {
		c.Price = "N/A"
	}
	st.Selected = &c
	a.logger.Info("Item bought", zap.String("item_id", c.ItemID), zap.String("title", c.Title), zap.String("price", c.Price))
}

var infoTools = []string{ToolDescription, ToolFeatures, ToolReviews}

// redirect applies the item page guards: leaving is blocked until every
// info section was read, and a repeated section moves on to an unread one.
func redirect(name string, visited map[string]bool) string {
	var unvisited string
	for _, t := range infoTools {
		if !visited[t] {
			unvisited = t
			break
		}
	}
	if unvisited == "" {
		return name
	}
	switch {
	case name == ToolPreviousPage:
		return unvisited
	case visited[name]:
		return unvisited
	}
	return name
}

// itemNode runs the item page micro-agent: up to MaxInnerSteps reads of the
// info sections or a purchase, then back to the result list.
func (a *Agent) itemNode(ctx context.Context, env Env, st *State) {
	base := st.Obs
	visited := make(map[string]bool, len(infoTools))
	var notes []string

	for inner := 0; inner < a.cfg.MaxInnerSteps && st.StepCount < a.cfg.MaxSteps; inner++ {
		st.Obs = strings.Join(append([]string{base}, notes...), "\n\n")
		d := a.decide(ctx, st, itemTools)
		if ctx.Err() != nil {
			return
		}
		name := CanonicalToolName(d.Call.Name)
		if !d.Forced {
			if r := redirect(name, visited); r != name {
				a.logger.Debug("Redirecting item page action", zap.String("from", name), zap.String("to", r))
				d.Call = ToolCall{Name: r}
				name = r
			}
		}

		tr := a.execute(ctx, env, st, d)
		if name == ToolBuyNow {
			a.selectItem(st, tr, base, d)
			st.Obs = tr.Obs
			st.Current, st.Route = StateStopping, RouteToStop
			return
		}
		if a.terminal(st, tr) {
			return
		}

		switch name {
		case ToolDescription, ToolFeatures, ToolReviews:
			visited[name] = true
			notes = append(notes, name+":\n"+tr.Obs)
			st.Route = RouteStayItem
		default:
			st.Obs = tr.Obs
			st.Current, st.Route = nextState(name)
			return
		}
	}
	if st.StepCount >= a.cfg.MaxSteps {
		st.Obs = base
		return
	}

	d := Decision{Call: ToolCall{Name: ToolPreviousPage}, Thought: "item page steps exhausted, returning to results"}
	tr := a.execute(ctx, env, st, d)
	if a.terminal(st, tr) {
		return
	}
	st.Obs = tr.Obs
	st.Current, st.Route = StateResult, RouteToResult
}

// finish picks the answer: the bought item, else the best remembered one.
func (a *Agent) finish(st *State, exhausted bool) Result {
	res := Result{
		Instruction: st.Instruction,
		Note:        st.Note,
		Steps:       st.StepCount,
		Exhausted:   exhausted,
		FinalReward: st.Reward,
		Thoughts:    st.ThoughtHistory,
		Actions:     st.ActionHistory,
		Feedback:    st.Feedback,
		Rethinks:    st.Rethinks,
		Buffer:      st.Memory.Items(),
	}
	switch {
	case st.Selected != nil:
		res.Selected = st.Selected
	default:
		if best, ok := st.Memory.Best(); ok {
			res.Selected = &best
			res.FromBuffer = true
			a.logger.Info("No purchase, falling back to memory buffer",
				zap.String("item_id", best.ItemID), zap.Float64("score", best.Score))
		} else if res.Note == "" {
			res.Note = noItemNote
		}
	}
	return res
}
