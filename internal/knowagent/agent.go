// Package knowagent answers open-domain questions with an action-knowledge
// constrained ReAct loop over Wikipedia and web search.
package knowagent

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/xkilldash9x/webagents/api/schemas"
	"github.com/xkilldash9x/webagents/internal/config"
	"github.com/xkilldash9x/webagents/internal/llmutil"
	"github.com/xkilldash9x/webagents/internal/observability"
)

// Action names.
const (
	ActionRetrieve = "Retrieve"
	ActionSearch   = "Search"
	ActionLookup   = "Lookup"
	ActionFinish   = "Finish"
)

const (
	bestEffortChars  = 300
	unknownAnswer    = "Unknown"
	truncatedExcerpt = "[truncated wikipedia excerpt]"
)

var (
	strictActionRegex = regexp.MustCompile(`^(\w+)\[(.+)\]$`)
	fuzzyActionRegex  = regexp.MustCompile(`(?i)\b(Retrieve|Search|Lookup|Finish)\[([^\]\n]+)\]`)
)

// Action is a parsed Name[argument] step.
type Action struct {
	Name string
	Arg  string
}

func (a Action) String() string { return a.Name + "[" + a.Arg + "]" }

// ParseAction reads "Name[argument]". When the whole string does not have
// that shape, the first Name[...] of an allowed action anywhere in it is used.
// ok is false unless the name is allowed and the argument is non-empty.
func ParseAction(s string) (name, arg string, ok bool) {
	s = strings.TrimSpace(s)
	if m := strictActionRegex.FindStringSubmatch(s); m != nil {
		if n, allowed := canonicalAction(m[1]); allowed && strings.TrimSpace(m[2]) != "" {
			return n, strings.TrimSpace(m[2]), true
		}
	}
	if m := fuzzyActionRegex.FindStringSubmatch(s); m != nil {
		n, _ := canonicalAction(m[1])
		if a := strings.TrimSpace(m[2]); a != "" {
			return n, a, true
		}
	}
	return "", "", false
}

func canonicalAction(name string) (string, bool) {
	for _, a := range []string{ActionRetrieve, ActionSearch, ActionLookup, ActionFinish} {
		if strings.EqualFold(name, a) {
			return a, true
		}
	}
	return name, false
}

// State is the episode state carried between steps.
type State struct {
	Question          string
	Scratchpad        string
	Step              int
	Finished          bool
	Answer            string
	Passages          []string
	ConsecutiveSearch int
}

func (s *State) lastPassage() string {
	if len(s.Passages) == 0 {
		return ""
	}
	return s.Passages[len(s.Passages)-1]
}

// bestEffort is the answer used when the agent has to stop early.
func (s *State) bestEffort() string {
	p := s.lastPassage()
	if p == "" {
		return unknownAnswer
	}
	return llmutil.TruncateChars(p, bestEffortChars)
}

// Retriever runs the network-backed actions.
type Retriever interface {
	Retrieve(ctx context.Context, entity string) string
	Search(ctx context.Context, query string) string
}

// Result is the outcome of Run.
type Result struct {
	Question      string `json:"question"`
	Answer        string `json:"answer"`
	Finished      bool   `json:"finished"`
	Steps         int    `json:"steps"`
	Scratchpad    string `json:"scratchpad"`
	ParseFailures int64  `json:"parse_failures"`
}

type Agent struct {
	llm       schemas.LLMClient
	tools     Retriever
	cfg       config.KnowAgentConfig
	truncator *llmutil.Truncator
	logger    *zap.Logger

	parseFailures atomic.Int64
}

// NewAgent builds an agent. A nil truncator leaves the scratchpad untrimmed.
func NewAgent(llm schemas.LLMClient, tools Retriever, cfg config.KnowAgentConfig, truncator *llmutil.Truncator, logger *zap.Logger) *Agent {
	return &Agent{llm: llm, tools: tools, cfg: cfg, truncator: truncator, logger: logger.Named("knowagent")}
}

// ParseFailures counts actions that could not be parsed.
func (a *Agent) ParseFailures() int64 { return a.parseFailures.Load() }

// Decide generates the ActionPath, Thought and Action lines of the current
// step, appends them to the scratchpad and returns the action to execute
// after fallbacks and guards.
func (a *Agent) Decide(ctx context.Context, st *State) (Action, error) {
	path, err := a.generate(ctx, st, stageActionPath)
	if err != nil {
		return Action{}, err
	}
	st.Scratchpad += fmt.Sprintf("\nActionPath %d: %s", st.Step, path)

	thought, err := a.generate(ctx, st, stageThought)
	if err != nil {
		return Action{}, err
	}
	st.Scratchpad += fmt.Sprintf("\nThought %d: %s", st.Step, thought)

	raw, err := a.generate(ctx, st, stageAction)
	if err != nil {
		return Action{}, err
	}

	var act Action
	if name, arg, ok := ParseAction(raw); ok {
		act = Action{Name: name, Arg: arg}
	} else {
		a.parseFailures.Add(1)
		observability.RecordParseFailure("knowagent")
		act = a.fallback(st)
		a.logger.Warn("Unparseable action, using fallback",
			zap.Int("step", st.Step),
			zap.String("response", llmutil.TruncateChars(raw, 200)),
			zap.Stringer("fallback", act))
	}

	act = a.guard(st, act)
	st.Scratchpad += fmt.Sprintf("\nAction %d: %s", st.Step, act)
	return act, nil
}

// fallback replaces an unparseable action: search the question on the first
// step, otherwise finish with the best available answer.
func (a *Agent) fallback(st *State) Action {
	if st.Step <= 1 {
		return Action{Name: ActionSearch, Arg: st.Question}
	}
	return Action{Name: ActionFinish, Arg: st.bestEffort()}
}

// guard forces Finish late in the episode or after too many searches in a row.
func (a *Agent) guard(st *State, act Action) Action {
	consecutive := 0
	if act.Name == ActionSearch {
		consecutive = st.ConsecutiveSearch + 1
	}
	late := st.Step >= a.cfg.AutoFinishStep && act.Name != ActionFinish
	searching := act.Name == ActionSearch && consecutive >= a.cfg.MaxConsecutiveSearch
	if late || searching {
		a.logger.Warn("Auto-finish guard triggered",
			zap.Int("step", st.Step),
			zap.Int("consecutive_search", consecutive),
			zap.Stringer("replaced", act))
		act = Action{Name: ActionFinish, Arg: st.bestEffort()}
		consecutive = 0
	}
	st.ConsecutiveSearch = consecutive
	return act
}

func (a *Agent) generate(ctx context.Context, st *State, s stage) (string, error) {
	resp, err := a.llm.Generate(ctx, schemas.GenerationRequest{
		SystemPrompt: systemPrompt,
		UserPrompt:   stagePrompt(st.Question, a.truncate(st.Scratchpad), s, st.Step),
		Tier:         schemas.TierFast,
		Options:      schemas.GenerationOptions{Temperature: a.cfg.Temperature},
	})
	if err != nil {
		return "", fmt.Errorf("generating %s for step %d: %w", s, st.Step, err)
	}
	return firstLine(resp, s, st.Step), nil
}

// firstLine keeps the first non-empty line of resp, dropping an echoed
// "Stage N:" label.
func firstLine(resp string, s stage, step int) string {
	for _, line := range strings.Split(llmutil.CleanResponse(resp), "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		return strings.TrimSpace(strings.TrimPrefix(line, fmt.Sprintf("%s %d:", s, step)))
	}
	return ""
}

// truncate shrinks the scratchpad to ContextLen tokens by blanking the
// longest observations first.
func (a *Agent) truncate(scratchpad string) string {
	if a.truncator == nil || a.cfg.ContextLen <= 0 {
		return scratchpad
	}
	return TruncateScratchpad(scratchpad, a.cfg.ContextLen, a.truncator.Count)
}

// TruncateScratchpad replaces observation lines, longest first, with a
// placeholder until the text fits in maxTokens as measured by count.
func TruncateScratchpad(scratchpad string, maxTokens int, count func(string) int) string {
	lines := strings.Split(scratchpad, "\n")
	if count(scratchpad) <= maxTokens {
		return scratchpad
	}

	var obs []int
	for i, l := range lines {
		if strings.HasPrefix(l, "Observation") {
			obs = append(obs, i)
		}
	}
	sizes := make(map[int]int, len(obs))
	for _, i := range obs {
		sizes[i] = count(lines[i])
	}
	sort.SliceStable(obs, func(x, y int) bool { return sizes[obs[x]] > sizes[obs[y]] })

	for _, i := range obs {
		label, _, _ := strings.Cut(lines[i], ":")
		lines[i] = label + ": " + truncatedExcerpt
		if count(strings.Join(lines, "\n")) <= maxTokens {
			break
		}
	}
	return strings.Join(lines, "\n")
}

// execute runs act and appends its observation.
func (a *Agent) execute(ctx context.Context, st *State, act Action) {
	var obs string
	switch act.Name {
	case ActionRetrieve:
		obs = a.tools.Retrieve(ctx, act.Arg)
	case ActionSearch:
		obs = a.tools.Search(ctx, act.Arg)
	case ActionLookup:
		obs = Lookup(st.lastPassage(), act.Arg)
	case ActionFinish:
		st.Finished = true
		st.Answer = act.Arg
		obs = "Finished."
	}
	if act.Name != ActionFinish && obs != "" {
		st.Passages = append(st.Passages, obs)
	}
	st.Scratchpad += fmt.Sprintf("\nObservation %d: %s", st.Step, obs)
	st.Step++
}

// Run answers question, stopping at Finish or after MaxSteps steps.
func (a *Agent) Run(ctx context.Context, question string) (Result, error) {
	st := &State{Question: question, Step: 1}
	a.logger.Info("Starting question", zap.String("question", question), zap.Int("max_steps", a.cfg.MaxSteps))

	for !st.Finished && st.Step <= a.cfg.MaxSteps {
		act, err := a.Decide(ctx, st)
		if err != nil {
			if ctx.Err() != nil {
				observability.RecordAgentRun("knowagent", string(schemas.RunCanceled))
				return a.result(st), ctx.Err()
			}
			act = a.guard(st, a.fallback(st))
			a.logger.Warn("Decision failed, using fallback", zap.Int("step", st.Step), zap.Error(err), zap.Stringer("fallback", act))
			st.Scratchpad += fmt.Sprintf("\nAction %d: %s", st.Step, act)
		}
		a.logger.Debug("Executing action", zap.Int("step", st.Step), zap.Stringer("action", act))
		a.execute(ctx, st, act)
	}

	outcome := schemas.RunSucceeded
	if !st.Finished {
		outcome = schemas.RunExhausted
		a.logger.Info("Step limit reached without an answer", zap.Int("steps", st.Step-1))
	}
	observability.RecordAgentRun("knowagent", string(outcome))
	return a.result(st), nil
}

func (a *Agent) result(st *State) Result {
	return Result{
		Question:      st.Question,
		Answer:        st.Answer,
		Finished:      st.Finished,
		Steps:         st.Step - 1,
		Scratchpad:    strings.TrimPrefix(st.Scratchpad, "\n"),
		ParseFailures: a.parseFailures.Load(),
	}
}
