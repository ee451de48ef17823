package agentq

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"sync/atomic"

	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"

	"github.com/xkilldash9x/webagents/api/schemas"
	"github.com/xkilldash9x/webagents/internal/llmutil"
	"github.com/xkilldash9x/webagents/internal/observability"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

const neutralScore = 0.5

var (
	numberedScoreRe = regexp.MustCompile(`(?m)^\s*(\d+)\s*[.):]\s*(?:score\s*[:=]?\s*)?(-?\d+(?:\.\d+)?)\s*(?:/\s*10)?\s*$`)
	labelScoreRe    = regexp.MustCompile(`(?m)^\s*(?:\d+[.)]\s*)?(.+?)\s*(?:[:=]|->|-)\s*(-?\d+(?:\.\d+)?)\s*(?:/\s*10)?\s*$`)
	scoreLineRe     = regexp.MustCompile(`(?mi)\bscore\s*[:=]\s*(-?\d+(?:\.\d+)?)`)
	bareNumbersRe   = regexp.MustCompile(`^[\d\s.,;\-\[\]]+$`)
	numberRe        = regexp.MustCompile(`-?\d+(?:\.\d+)?`)
)

// Critic asks the model to rate candidate commands before one is executed.
type Critic struct {
	llm    schemas.LLMClient
	logger *zap.Logger

	parseFailures atomic.Int64
}

func NewCritic(llm schemas.LLMClient, logger *zap.Logger) *Critic {
	return &Critic{llm: llm, logger: logger.Named("agentq_critic")}
}

// ParseFailures counts critic answers that could not be read.
func (c *Critic) ParseFailures() int64 { return c.parseFailures.Load() }

// ScoreCandidates returns one score in [0,1] per candidate. Unreadable answers
// and model errors give every candidate the neutral 0.5; only cancellation is
// returned as an error.
func (c *Critic) ScoreCandidates(ctx context.Context, st *State, candidates []string) ([]float64, error) {
	if len(candidates) == 0 {
		return nil, nil
	}
	resp, err := c.llm.Generate(ctx, schemas.GenerationRequest{
		SystemPrompt: criticSystemPrompt,
		UserPrompt:   criticUserPrompt(st, candidates),
		Tier:         schemas.TierFast,
		Options:      schemas.GenerationOptions{Temperature: 0},
	})
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		c.logger.Warn("Critic request failed, using neutral scores", zap.Error(err))
		return neutralScores(len(candidates)), nil
	}

	scores, ok := ParseCriticScores(resp, candidates)
	if !ok {
		c.parseFailures.Add(1)
		observability.RecordParseFailure("agentq_critic")
		c.logger.Debug("Unparseable critic answer", zap.String("response", llmutil.TruncateChars(resp, 200)))
		return neutralScores(len(candidates)), nil
	}
	return scores, nil
}

func neutralScores(n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = neutralScore
	}
	return out
}

type criticEntry struct {
	Command string   `json:"command"`
	Index   int      `json:"index"`
	Score   *float64 `json:"score"`
}

type scored struct {
	label string
	index int // 1-based, 0 when absent
	score float64
}

// ParseCriticScores reads one score per candidate from a critic answer. It tries,
// in order: JSON entries of {command, score}, "N. score" lines, "command: score"
// lines, "score: x" lines in order, and an answer made only of numbers.
func ParseCriticScores(text string, candidates []string) ([]float64, bool) {
	if len(candidates) == 0 {
		return nil, true
	}
	for _, parse := range []func(string) []scored{parseJSONScores, parseNumberedScores, parseLabelScores} {
		if out, ok := assignScores(parse(text), candidates); ok {
			return out, true
		}
	}

	var ordered []scored
	for _, m := range scoreLineRe.FindAllStringSubmatch(text, -1) {
		if v, err := strconv.ParseFloat(m[1], 64); err == nil {
			ordered = append(ordered, scored{score: v})
		}
	}
	if out, ok := assignScores(ordered, candidates); ok {
		return out, true
	}

	trimmed := strings.TrimSpace(text)
	if trimmed != "" && bareNumbersRe.MatchString(trimmed) {
		var bare []scored
		for _, n := range numberRe.FindAllString(trimmed, -1) {
			if v, err := strconv.ParseFloat(n, 64); err == nil {
				bare = append(bare, scored{score: v})
			}
		}
		return assignScores(bare, candidates)
	}
	return nil, false
}

func parseJSONScores(text string) []scored {
	raw := []byte(llmutil.ExtractJSON(text))
	var entries []criticEntry
	if err := json.Unmarshal(raw, &entries); err != nil {
		var wrapped struct {
			Scores []criticEntry `json:"scores"`
		}
		if err := json.Unmarshal(raw, &wrapped); err == nil && len(wrapped.Scores) > 0 {
			entries = wrapped.Scores
		} else {
			var single criticEntry
			if err := json.Unmarshal(raw, &single); err == nil && single.Score != nil {
				entries = []criticEntry{single}
			} else {
				var byCommand map[string]float64
				if err := json.Unmarshal(raw, &byCommand); err != nil {
					return nil
				}
				for k, v := range byCommand {
					entries = append(entries, criticEntry{Command: k, Score: &v})
				}
			}
		}
	}
	out := make([]scored, 0, len(entries))
	for _, e := range entries {
		if e.Score == nil {
			continue
		}
		out = append(out, scored{label: e.Command, index: e.Index, score: *e.Score})
	}
	return out
}

func parseNumberedScores(text string) []scored {
	var out []scored
	for _, m := range numberedScoreRe.FindAllStringSubmatch(text, -1) {
		idx, err1 := strconv.Atoi(m[1])
		v, err2 := strconv.ParseFloat(m[2], 64)
		if err1 == nil && err2 == nil && idx > 0 {
			out = append(out, scored{index: idx, score: v})
		}
	}
	return out
}

func parseLabelScores(text string) []scored {
	var out []scored
	for _, m := range labelScoreRe.FindAllStringSubmatch(text, -1) {
		if v, err := strconv.ParseFloat(m[2], 64); err == nil {
			out = append(out, scored{label: m[1], score: v})
		}
	}
	return out
}

// assignScores maps parsed entries to candidates by index, then by label, then
// by position for unlabelled entries. Every candidate must receive a score.
func assignScores(entries []scored, candidates []string) ([]float64, bool) {
	if len(entries) == 0 {
		return nil, false
	}
	out := make([]float64, len(candidates))
	used := make([]bool, len(entries))
	for i, cand := range candidates {
		j := matchEntry(entries, used, i, cand)
		if j < 0 {
			return nil, false
		}
		used[j] = true
		out[i] = normalizeScore(entries[j].score)
	}
	return out, true
}

func matchEntry(entries []scored, used []bool, i int, cand string) int {
	for j, e := range entries {
		if !used[j] && e.index == i+1 {
			return j
		}
	}
	norm := normalizeLabel(cand)
	for j, e := range entries {
		if used[j] || e.label == "" || e.index != 0 {
			continue
		}
		l := normalizeLabel(e.label)
		if l == norm || strings.Contains(l, norm) || strings.Contains(norm, l) {
			return j
		}
	}
	if i < len(entries) && !used[i] && entries[i].label == "" && entries[i].index == 0 {
		return i
	}
	return -1
}

func normalizeLabel(s string) string {
	s = strings.Trim(strings.TrimSpace(s), "`\"'")
	return strings.ToLower(strings.Join(strings.Fields(s), " "))
}

// normalizeScore maps 0-10 ratings onto [0,1] and clamps.
func normalizeScore(v float64) float64 {
	if v > 1 && v <= 10 {
		v /= 10
	}
	return min(max(v, 0), 1)
}

func criticUserPrompt(st *State, candidates []string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Objective: %s\nCurrent URL: %s\nPage title: %s\n", st.Objective, orDefault(st.CurrentURL, "none"), orDefault(st.PageTitle, "none"))
	fmt.Fprintf(&b, "Page content:\n%s\n\nRecent history:\n%s\n\nCandidate commands:\n",
		llmutil.TruncateChars(orDefault(st.PageContent, "none"), 800), orDefault(st.FormattedScratchpad(6), "none"))
	for i, c := range candidates {
		fmt.Fprintf(&b, "%d. %s\n", i+1, c)
	}
	return b.String()
}
