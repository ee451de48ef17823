// Package treesearch implements best-first search over a WebShop site: an LLM
// proposes actions, another LLM pass scores the resulting pages and the most
// promising page is expanded next.
package treesearch

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/xkilldash9x/webagents/api/schemas"
	"github.com/xkilldash9x/webagents/internal/config"
	"github.com/xkilldash9x/webagents/internal/observability"
	"github.com/xkilldash9x/webagents/internal/replay"
	"github.com/xkilldash9x/webagents/internal/webshop"
)

// SearchState is the mutable state of one search.
type SearchState struct {
	Goal      string
	Counter   int
	MaxSteps  int
	Budget    int
	Branching int

	// Observation and History describe the node most recently popped.
	Observation webshop.Observation
	History     []string

	Frontier    *Frontier
	Best        *Node
	BestScore   float64
	Done        bool
	FinalAnswer string
}

// SessionRecorder receives every scored state and executed action.
type SessionRecorder interface {
	LogState(snap replay.StateSnapshot, score float64)
	LogAction(action string, result replay.ActionResult)
}

// Result is what a finished search reports.
type Result struct {
	Goal          string   `json:"goal"`
	Done          bool     `json:"done"`
	FinalAnswer   string   `json:"final_answer,omitempty"`
	BestScore     float64  `json:"best_score"`
	BestHistory   []string `json:"best_history"`
	Counter       int      `json:"search_counter"`
	Expansions    int      `json:"expansions"`
	ParseFailures int64    `json:"parse_failures"`
}

type Searcher struct {
	env      webshop.Env
	value    *ValueFunction
	proposer *Proposer
	recorder SessionRecorder
	logger   *zap.Logger

	state      *SearchState
	expansions int
}

type Option func(*Searcher)

// WithRecorder attaches a session recorder.
func WithRecorder(r SessionRecorder) Option {
	return func(s *Searcher) { s.recorder = r }
}

func NewSearcher(env webshop.Env, llm schemas.LLMClient, goal string, cfg config.SearchConfig, logger *zap.Logger, opts ...Option) (*Searcher, error) {
	if cfg.MaxSteps <= 0 || cfg.Branching <= 0 || cfg.Budget <= 0 {
		return nil, fmt.Errorf("max_steps, branching and budget must be positive (got %d, %d, %d)",
			cfg.MaxSteps, cfg.Branching, cfg.Budget)
	}
	logger = logger.Named("treesearch")
	s := &Searcher{
		env:      env,
		value:    NewValueFunction(llm, cfg.Branching, cfg.ValueTemperature, cfg.Concurrency, logger),
		proposer: NewProposer(llm, cfg.Branching, cfg.ProposalTemperature, cfg.ProposalTopP, cfg.Concurrency, logger),
		logger:   logger,
		state: &SearchState{
			Goal:      goal,
			MaxSteps:  cfg.MaxSteps,
			Budget:    cfg.Budget,
			Branching: cfg.Branching,
			Frontier:  NewFrontier(),
			BestScore: -1,
		},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// State exposes the live search state.
func (s *Searcher) State() *SearchState { return s.state }

// Initialize loads the home page, scores it and seeds the frontier.
func (s *Searcher) Initialize(ctx context.Context) error {
	obs, err := s.env.Reset(ctx)
	if err != nil {
		return fmt.Errorf("reset environment: %w", err)
	}

	root := &Node{Observation: obs}
	score := s.value.Score(ctx, s.state.Goal, root)

	st := s.state
	st.Observation = obs
	st.History = nil
	st.Frontier = NewFrontier()
	st.Frontier.Push(score, root)
	st.Best, st.BestScore = root, score
	st.Done, st.FinalAnswer = false, ""
	st.Counter = 1
	s.expansions = 0

	s.logger.Info("Search initialized", zap.String("goal", st.Goal), zap.Float64("score", score))
	s.record(root, score)
	return nil
}

// Expand pops the best node and pushes its scored children. An empty frontier
// marks the search done without error.
func (s *Searcher) Expand(ctx context.Context) error {
	st := s.state
	node, score, err := st.Frontier.Pop()
	if errors.Is(err, ErrEmptyFrontier) {
		s.logger.Info("Frontier exhausted")
		st.Done = true
		return nil
	}
	s.expansions++
	observability.RecordFrontierExpansion()

	st.Observation, st.History = node.Observation, node.History
	s.logger.Info("Expanding node",
		zap.Int("step", st.Counter),
		zap.Float64("score", score),
		zap.String("previous_action", node.LastAction()))

	if score > st.BestScore {
		s.logger.Debug("New best node", zap.Float64("from", st.BestScore), zap.Float64("to", score))
		st.Best, st.BestScore = node, score
	}

	if p, ok := MatchGoal(st.Goal, node.Observation); ok {
		st.Done = true
		st.FinalAnswer = fmt.Sprintf("Found the target product: %s (%s) at $%.2f", p.Title, p.ID, p.Price)
		s.logger.Info("Goal reached", zap.String("product", p.ID))
		return nil
	}

	actions := s.proposer.Propose(ctx, st.Goal, node)
	if len(actions) == 0 {
		s.logger.Warn("No actions proposed, abandoning branch")
		st.Counter++
		return nil
	}

	for _, a := range actions {
		if err := ctx.Err(); err != nil {
			return err
		}
		// A failed transition still yields a child holding the empty
		// observation, so the branch can be retried from the frontier.
		obs, stepErr := s.env.Step(ctx, node.Observation, a)
		if stepErr != nil {
			s.logger.Warn("Transition failed", zap.String("action", a.String()), zap.Error(stepErr))
		}

		child := node.Extend(obs, a.String())
		childScore := s.value.Score(ctx, st.Goal, child)
		st.Frontier.Push(childScore, child)
		s.logger.Debug("Child scored", zap.String("action", a.String()), zap.Float64("score", childScore))

		if s.recorder != nil {
			result := replay.ActionResult{
				Score:       childScore,
				Query:       obs.Query,
				ResultCount: len(obs.Products),
			}
			if stepErr != nil {
				result.Error = stepErr.Error()
			}
			s.recorder.LogAction(a.String(), result)
		}
		s.record(child, childScore)
	}

	st.Counter++
	return nil
}

// ShouldFinish reports whether the search is over.
func (s *Searcher) ShouldFinish() bool {
	st := s.state
	return st.Done || st.Counter > st.MaxSteps || st.Counter > st.Budget
}

// Run initializes and expands until ShouldFinish or ctx is canceled. The
// partial result is returned alongside a cancellation error.
func (s *Searcher) Run(ctx context.Context) (Result, error) {
	if err := s.Initialize(ctx); err != nil {
		observability.RecordAgentRun("treesearch", string(schemas.RunFailed))
		return s.result(), err
	}
	for !s.ShouldFinish() {
		if err := ctx.Err(); err != nil {
			observability.RecordAgentRun("treesearch", string(schemas.RunCanceled))
			return s.result(), err
		}
		if err := s.Expand(ctx); err != nil {
			observability.RecordAgentRun("treesearch", string(schemas.RunCanceled))
			return s.result(), err
		}
	}

	res := s.result()
	outcome := schemas.RunExhausted
	if res.FinalAnswer != "" {
		outcome = schemas.RunSucceeded
	}
	observability.RecordAgentRun("treesearch", string(outcome))
	s.logger.Info("Search finished",
		zap.Bool("goal_reached", res.FinalAnswer != ""),
		zap.Float64("best_score", res.BestScore),
		zap.Int("expansions", res.Expansions))
	return res, nil
}

func (s *Searcher) result() Result {
	st := s.state
	r := Result{
		Goal:          st.Goal,
		Done:          st.Done,
		FinalAnswer:   st.FinalAnswer,
		BestScore:     st.BestScore,
		Counter:       st.Counter,
		Expansions:    s.expansions,
		ParseFailures: s.value.ParseFailures() + s.proposer.ParseFailures(),
	}
	if st.Best != nil {
		r.BestHistory = append([]string(nil), st.Best.History...)
	}
	return r
}

func (s *Searcher) record(n *Node, score float64) {
	if s.recorder == nil {
		return
	}
	s.recorder.LogState(replay.StateSnapshot{
		Counter:     s.state.Counter,
		URL:         n.Observation.URL,
		Query:       n.Observation.Query,
		ResultCount: len(n.Observation.Products),
		CartCount:   len(n.Observation.CartItems),
		History:     n.History,
		Frontier:    s.state.Frontier.Len(),
	}, score)
}
