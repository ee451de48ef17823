package laser

import (
	"context"
	"strings"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/xkilldash9x/webagents/api/schemas"
	"github.com/xkilldash9x/webagents/internal/config"
	"github.com/xkilldash9x/webagents/internal/llmutil"
	"github.com/xkilldash9x/webagents/internal/observability"
	"github.com/xkilldash9x/webagents/internal/replay"
)

// Decision is the tool a policy chose and why. Forced decisions are executed
// as given, bypassing the item page guards.
type Decision struct {
	Call     ToolCall
	Thought  string
	Feedback string
	Forced   bool
}

// Policy picks the next tool for the current state.
type Policy interface {
	Decide(ctx context.Context, st *State, allowed []ToolSpec) (Decision, error)
}

func fallbackDecision(thought string) Decision {
	return Decision{Call: ToolCall{Name: ToolBackToSearch}, Thought: thought}
}

type toolCallResponse struct {
	Thought   string         `json:"thought"`
	Name      string         `json:"name"`
	Arguments map[string]any `json:"arguments"`
}

// LLMPolicy asks a model for a JSON tool call.
type LLMPolicy struct {
	llm       schemas.LLMClient
	cfg       config.LaserConfig
	truncator *llmutil.Truncator
	logger    *zap.Logger

	parseFailures atomic.Int64
}

// NewLLMPolicy builds a policy. A nil truncator disables history truncation.
func NewLLMPolicy(llm schemas.LLMClient, cfg config.LaserConfig, truncator *llmutil.Truncator, logger *zap.Logger) *LLMPolicy {
	return &LLMPolicy{llm: llm, cfg: cfg, truncator: truncator, logger: logger.Named("laser_policy")}
}

// ParseFailures counts answers that named no usable tool.
func (p *LLMPolicy) ParseFailures() int64 { return p.parseFailures.Load() }

// Decide asks for a tool call, re-prompts once with the mapping prompt when
// the answer names no allowed tool, and returns back_to_search when that
// fails too. With feedback enabled the choice is reviewed before returning.
func (p *LLMPolicy) Decide(ctx context.Context, st *State, allowed []ToolSpec) (Decision, error) {
	history := p.history(st)
	resp, err := p.generate(ctx, systemPrompt(st.Current, allowed), userPrompt(st, history), true)
	if err != nil {
		return Decision{}, err
	}

	d, ok := parseToolCall(resp, allowed)
	if !ok {
		p.parseFailures.Add(1)
		observability.RecordParseFailure("laser_policy")
		p.logger.Debug("No usable tool call, re-prompting with mapping prompt",
			zap.String("state", string(st.Current)),
			zap.String("response", llmutil.TruncateChars(resp, 200)))

		rationale := d.Thought
		if rationale == "" {
			rationale = llmutil.CleanResponse(resp)
		}
		mapped, err := p.generate(ctx, mappingSystemPrompt, mappingUserPrompt(st, rationale, allowed), true)
		if err != nil {
			return Decision{}, err
		}
		d, ok = parseToolCall(mapped, allowed)
		if !ok {
			p.parseFailures.Add(1)
			observability.RecordParseFailure("laser_policy")
			p.logger.Warn("Mapping prompt failed, returning to search", zap.String("state", string(st.Current)))
			return fallbackDecision(rationale + " (no valid tool call, returning to search)"), nil
		}
	}

	if p.cfg.EnableFeedback {
		d = p.review(ctx, st, allowed, history, d)
	}
	return d, nil
}

func (p *LLMPolicy) generate(ctx context.Context, system, user string, jsonOut bool) (string, error) {
	return p.llm.Generate(ctx, schemas.GenerationRequest{
		SystemPrompt: system,
		UserPrompt:   user,
		Tier:         schemas.TierPowerful,
		Options: schemas.GenerationOptions{
			Temperature:     p.cfg.Temperature,
			ForceJSONFormat: jsonOut,
		},
	})
}

func (p *LLMPolicy) history(st *State) string {
	h := st.History()
	if p.truncator == nil || p.cfg.ContextTokens <= 0 {
		return h
	}
	return p.truncator.KeepLast(h, p.cfg.ContextTokens)
}

// parseToolCall reads a tool call restricted to allowed. The returned
// decision carries the thought even when the call is unusable.
func parseToolCall(resp string, allowed []ToolSpec) (Decision, bool) {
	parsed, err := llmutil.ParseJSONResponse[toolCallResponse](resp)
	if err != nil {
		return Decision{}, false
	}
	d := Decision{Thought: strings.TrimSpace(parsed.Thought)}
	name := CanonicalToolName(parsed.Name)
	if !allows(allowed, name) {
		return d, false
	}
	args, ok := normalizeArgs(name, parsed.Arguments)
	if !ok {
		return d, false
	}
	d.Call = ToolCall{Name: name, Arguments: args}
	return d, true
}

// normalizeArgs keeps the one argument each tool takes under its canonical key.
func normalizeArgs(name string, args map[string]any) (map[string]any, bool) {
	switch name {
	case ToolSearch:
		for _, k := range []string{"keywords", "query", "keyword"} {
			if v, ok := args[k].(string); ok && strings.TrimSpace(v) != "" {
				return map[string]any{"keywords": strings.TrimSpace(v)}, true
			}
		}
		return nil, false
	case ToolSelectItem:
		id := strings.TrimSpace(replay.ItemID(args))
		if id == "" {
			return nil, false
		}
		return map[string]any{"item_id": id}, true
	default:
		return nil, true
	}
}

// StepSource exposes the recorded step a replay is waiting on.
type StepSource interface {
	CurrentStep() (replay.Step, bool)
}

// ReplayPolicy repeats the actions of a recorded session.
type ReplayPolicy struct {
	src StepSource
}

func NewReplayPolicy(src StepSource) *ReplayPolicy {
	return &ReplayPolicy{src: src}
}

func (p *ReplayPolicy) Decide(_ context.Context, _ *State, _ []ToolSpec) (Decision, error) {
	step, ok := p.src.CurrentStep()
	if !ok {
		return fallbackDecision("recording exhausted"), nil
	}
	name := CanonicalToolName(step.ActionName)
	if !knownTools[name] {
		return fallbackDecision("recorded action " + step.ActionName + " is not a tool"), nil
	}
	args, ok := normalizeArgs(name, step.ActionArguments)
	if !ok {
		args = step.ActionArguments
	}
	return Decision{
		Call:    ToolCall{Name: name, Arguments: args},
		Thought: "following recorded action " + step.ExpectedAction,
		Forced:  true,
	}, nil
}
