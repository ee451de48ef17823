package agentq

import (
	"context"
	"fmt"
	"strings"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/xkilldash9x/webagents/api/schemas"
	"github.com/xkilldash9x/webagents/internal/config"
	"github.com/xkilldash9x/webagents/internal/llmutil"
	"github.com/xkilldash9x/webagents/internal/observability"
)

const (
	observationContentChars = 200
	elementListLimit        = 40
)

var openTableSuccess = []string{"reservation confirmed", "complete reservation", "you're all set"}

// Result summarises a finished episode.
type Result struct {
	Objective     string            `json:"objective"`
	Status        schemas.RunStatus `json:"status"`
	Done          bool              `json:"done"`
	Loops         int               `json:"loops"`
	Answer        string            `json:"answer"`
	NeedsUser     string            `json:"needs_user,omitempty"`
	FinalURL      string            `json:"final_url"`
	ErrorCount    int               `json:"error_count"`
	Scratchpad    []string          `json:"scratchpad"`
	ParseFailures int64             `json:"parse_failures"`
}

// Agent runs the plan, thought, action, explanation and critique loop.
type Agent struct {
	llm    schemas.LLMClient
	exec   *Executor
	critic *Critic
	cfg    config.AgentQConfig
	logger *zap.Logger

	parseFailures atomic.Int64
}

// NewAgent wires an agent. critic may be nil, in which case every candidate
// gets the neutral critic score.
func NewAgent(llm schemas.LLMClient, exec *Executor, critic *Critic, cfg config.AgentQConfig, logger *zap.Logger) *Agent {
	if cfg.MaxLoops <= 0 {
		cfg.MaxLoops = 5
	}
	if cfg.MinLoops < 0 {
		cfg.MinLoops = 0
	}
	if cfg.NoProgressLimit <= 0 {
		cfg.NoProgressLimit = 3
	}
	if cfg.ScratchpadEntries <= 0 {
		cfg.ScratchpadEntries = 10
	}
	return &Agent{
		llm:    llm,
		exec:   exec,
		critic: critic,
		cfg:    cfg,
		logger: logger.Named("agentq"),
	}
}

// Run drives the browser toward objective until the critique declares it done,
// the loop limit is reached, the model asks for user help or ctx is canceled.
// Only cancellation is returned as an error; the partial result comes with it.
func (a *Agent) Run(ctx context.Context, objective string) (*Result, error) {
	st := NewState(objective, a.cfg.MaxLoops, a.cfg.MinLoops)
	a.logger.Info("Starting objective", zap.String("objective", objective), zap.Int("max_loops", st.MaxLoops))

	if a.cfg.StartURL != "" {
		st.Action = &Command{Type: CmdNavigate, Target: a.cfg.StartURL}
		a.act(ctx, st)
		st.Action = nil
	}

	if err := a.plan(ctx, st); err != nil {
		return a.finish(st, schemas.RunCanceled), err
	}

	for !st.Done {
		if err := ctx.Err(); err != nil {
			return a.finish(st, schemas.RunCanceled), err
		}
		st.LoopCount++

		if err := a.think(ctx, st); err != nil {
			return a.finish(st, schemas.RunCanceled), err
		}
		a.act(ctx, st)
		if st.NeedsUser != "" {
			a.logger.Info("Stopping to ask the user", zap.String("question", st.NeedsUser))
			st.Done = true
			return a.finish(st, schemas.RunExhausted), nil
		}
		if err := a.explain(ctx, st); err != nil {
			return a.finish(st, schemas.RunCanceled), err
		}
		status, err := a.critique(ctx, st)
		if err != nil {
			return a.finish(st, schemas.RunCanceled), err
		}
		if st.Done {
			return a.finish(st, status), nil
		}
	}
	return a.finish(st, schemas.RunExhausted), nil
}

// ParseFailures counts thought responses with no usable command.
func (a *Agent) ParseFailures() int64 { return a.parseFailures.Load() }

func (a *Agent) finish(st *State, status schemas.RunStatus) *Result {
	observability.RecordAgentRun("agentq", string(status))
	a.logger.Info("Objective finished",
		zap.String("status", string(status)),
		zap.Int("loops", st.LoopCount),
		zap.Int("errors", st.ErrorCount))
	return &Result{
		Objective:     st.Objective,
		Status:        status,
		Done:          st.Done,
		Loops:         st.LoopCount,
		Answer:        st.Explanation,
		NeedsUser:     st.NeedsUser,
		FinalURL:      st.CurrentURL,
		ErrorCount:    st.ErrorCount,
		Scratchpad:    append([]string(nil), st.Scratchpad...),
		ParseFailures: a.parseFailures.Load(),
	}
}

func (a *Agent) generate(ctx context.Context, system, user string, tier schemas.ModelTier) (string, error) {
	return a.llm.Generate(ctx, schemas.GenerationRequest{
		SystemPrompt: system,
		UserPrompt:   user,
		Tier:         tier,
		Options:      schemas.GenerationOptions{Temperature: 0.2},
	})
}

func (a *Agent) plan(ctx context.Context, st *State) error {
	resp, err := a.generate(ctx, planSystemPrompt, planPrompt(st), schemas.TierPowerful)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		a.logger.Warn("Planning failed", zap.Error(err))
		st.addError(fmt.Sprintf("plan: %v", err))
		st.Plan = "Planning failed."
		return nil
	}
	st.Plan = llmutil.CleanResponse(resp)
	st.addPlan(st.Plan)
	a.logger.Debug("Plan ready", zap.String("plan", llmutil.TruncateChars(st.Plan, 200)))
	return nil
}

// think asks for the next commands, then picks one with the critic and UCB.
func (a *Agent) think(ctx context.Context, st *State) error {
	st.Action, st.CandidateCommands, st.CriticScores = nil, nil, nil

	resp, err := a.generate(ctx, thoughtSystemPrompt, a.thoughtPrompt(st), schemas.TierPowerful)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		a.logger.Warn("Thought failed", zap.Int("loop", st.LoopCount), zap.Error(err))
		st.addError(fmt.Sprintf("thought: %v", err))
		st.Thought = "Failed to decide the next action."
		st.addThought(st.Thought)
		return nil
	}

	blocks := SplitOutputBlocks(resp)
	st.Thought = orDefault(blocks.Thought, llmutil.CleanResponse(resp))
	lines, status := ExtractCommands(resp)
	st.Status = status

	var cmds []*Command
	seen := make(map[string]bool)
	for _, line := range lines {
		cmd, ok := ParseCommand(line)
		if !ok {
			a.logger.Debug("Unparseable command line", zap.String("line", line))
			continue
		}
		if key := cmd.String(); !seen[key] {
			seen[key] = true
			cmds = append(cmds, cmd)
		}
	}
	if len(cmds) == 0 {
		if cmd, ok := ExtractAction(resp); ok {
			cmds = append(cmds, cmd)
		}
	}
	st.addThought(st.Thought)

	if len(cmds) == 0 {
		a.parseFailures.Add(1)
		observability.RecordParseFailure("agentq_thought")
		a.logger.Debug("No command in thought", zap.String("response", llmutil.TruncateChars(resp, 200)))
		return nil
	}

	keys := make([]string, len(cmds))
	for i, c := range cmds {
		keys[i] = c.String()
	}
	st.CandidateCommands = keys

	choice := 0
	if len(cmds) > 1 {
		critic := neutralScores(len(keys))
		if a.critic != nil {
			scores, err := a.critic.ScoreCandidates(ctx, st, keys)
			if err != nil {
				return err
			}
			critic = scores
		}
		st.CriticScores = critic
		var ucb []float64
		choice, ucb = SelectCommand(keys, critic, st.QStats, a.cfg.CriticWeight, a.cfg.ExplorationC)
		a.logger.Debug("Selected command",
			zap.Strings("candidates", keys),
			zap.Float64s("critic", critic),
			zap.Float64s("ucb", ucb),
			zap.Int("choice", choice))
	}
	st.Action = cmds[choice]
	st.addAction(st.Action)
	return nil
}

// act executes the chosen command and folds the outcome into the state.
func (a *Agent) act(ctx context.Context, st *State) {
	if st.Action == nil {
		st.Observation = "No action to execute."
		st.addObservation(st.Observation)
		st.trackProgress()
		return
	}

	out := a.exec.Execute(ctx, st.Action)
	key := st.Action.String()
	st.LastCommand = key

	if out.AskUser {
		st.NeedsUser = out.Message
		st.Observation = "Asked the user for help: " + out.Message
		st.addObservation(st.Observation)
		return
	}

	reward := 0.0
	if out.Success {
		reward = 1
	}
	st.QStats.Update(key, reward)

	if snap := out.Snapshot; snap != nil {
		st.CurrentURL = snap.URL
		st.PageTitle = snap.Title
		st.PageContent = snap.Content
		st.Elements = snap.DescribeElements(elementListLimit)
	}

	if out.Success {
		st.LastError = ""
	} else {
		st.addError(out.Message)
	}
	st.Observation = describeOutcome(out, st.PageContent)
	st.addObservation(st.Observation)

	if streak := st.trackProgress(); streak > 0 {
		a.logger.Debug("No progress", zap.Int("streak", streak), zap.String("url", st.CurrentURL))
	}
}

// describeOutcome renders an executed command as the observation text.
func describeOutcome(out Outcome, pageContent string) string {
	var b strings.Builder
	if out.Success {
		b.WriteString(out.Message)
	} else {
		fmt.Fprintf(&b, "Action failed [%s]: %s", out.Code, out.Message)
	}
	if out.Data != "" {
		fmt.Fprintf(&b, "\nResult: %s", llmutil.TruncateChars(out.Data, observationContentChars))
	} else if out.Success && pageContent != "" {
		fmt.Fprintf(&b, "\nPage content: %s...", truncateRunes(pageContent, observationContentChars))
	}
	return b.String()
}

func (a *Agent) explain(ctx context.Context, st *State) error {
	resp, err := a.generate(ctx, explanationSystemPrompt, explanationPrompt(st), schemas.TierFast)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		st.addError(fmt.Sprintf("explanation: %v", err))
		st.Explanation = fmt.Sprintf("Could not interpret the result: %v", err)
		return nil
	}
	st.Explanation = llmutil.CleanResponse(resp)
	st.addExplanation(st.Explanation)
	return nil
}

// critique decides whether the episode is over and with which status.
func (a *Agent) critique(ctx context.Context, st *State) (schemas.RunStatus, error) {
	resp, err := a.generate(ctx, critiqueSystemPrompt, a.critiquePrompt(st), schemas.TierFast)
	if err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		a.logger.Warn("Critique failed, stopping", zap.Int("loop", st.LoopCount), zap.Error(err))
		st.addError(fmt.Sprintf("critique: %v", err))
		st.Critique = fmt.Sprintf("Critique failed: %v", err)
		st.Done = true
		st.addCritique(st.Critique, true)
		return schemas.RunFailed, nil
	}

	critique := llmutil.CleanResponse(resp)
	done := CritiqueDecision(resp)
	if done && st.LoopCount < st.MinLoops && st.Status != "COMPLETE" {
		done = false
		critique += fmt.Sprintf("\nContinuing: only %d of at least %d loops ran.", st.LoopCount, st.MinLoops)
	}
	if !done && openTableDone(st) {
		done = true
		critique += "\nHeuristic: OpenTable success indicators found."
	}

	status := schemas.RunSucceeded
	if !done && st.LoopCount >= st.MaxLoops {
		done = true
		status = schemas.RunExhausted
		critique += fmt.Sprintf("\nReached the maximum of %d loops.", st.MaxLoops)
	}

	st.Critique = critique
	st.Done = done
	st.addCritique(critique, done)
	return status, nil
}

func openTableDone(st *State) bool {
	if !strings.Contains(strings.ToLower(st.CurrentURL), "opentable.com") {
		return false
	}
	text := strings.ToLower(st.PageContent)
	for _, k := range openTableSuccess {
		if strings.Contains(text, k) {
			return true
		}
	}
	return false
}
