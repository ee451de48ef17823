package laser

import (
	"context"
	"regexp"
	"strings"

	"go.uber.org/zap"
)

var (
	strongNegative = wordPattern("wrong", "mistake", "incorrect", "should not", "error", "bad choice",
		"inappropriate", "not suitable", "doesn't match", "not relevant", "poor decision",
		"reconsider", "think again", "not right")
	positive = wordPattern("good", "correct", "right", "appropriate", "suitable", "matches",
		"relevant", "well done", "excellent", "perfect", "accurate")
	weakNegative = wordPattern("but", "however", "although", "consider", "might want to",
		"perhaps", "could be better", "alternative", "instead")
)

// minWeakWords is the length above which hedged feedback counts as negative.
const minWeakWords = 5

func wordPattern(phrases ...string) *regexp.Regexp {
	quoted := make([]string, len(phrases))
	for i, p := range phrases {
		quoted[i] = regexp.QuoteMeta(p)
	}
	return regexp.MustCompile(`\b(?:` + strings.Join(quoted, "|") + `)\b`)
}

// ShouldRethink decides whether manager feedback rejects the action. Strong
// negatives win over praise; hedges only count in feedback longer than a few
// words.
func ShouldRethink(feedback string) bool {
	f := strings.ToLower(feedback)
	if strongNegative.MatchString(f) {
		return true
	}
	if positive.MatchString(f) {
		return false
	}
	return len(strings.Fields(f)) > minWeakWords && weakNegative.MatchString(f)
}

// review asks the manager about d and lets the model choose again while the
// feedback is negative, up to MaxRethinks times.
func (p *LLMPolicy) review(ctx context.Context, st *State, allowed []ToolSpec, history string, d Decision) Decision {
	for rethinks := 0; ; rethinks++ {
		fb, err := p.generate(ctx, managerSystemPrompt, managerUserPrompt(st, history, d.Thought, d.Call), false)
		if err != nil {
			p.logger.Warn("Manager feedback failed", zap.Error(err))
			return d
		}
		fb = strings.TrimSpace(fb)
		d.Feedback = fb
		rec := FeedbackRecord{Step: st.StepCount, State: st.Current, Thought: d.Thought, Action: d.Call.String(), Feedback: fb}

		if rethinks >= p.cfg.MaxRethinks || !ShouldRethink(fb) {
			st.Feedback = append(st.Feedback, rec)
			return d
		}
		rec.Rethought = true
		st.Feedback = append(st.Feedback, rec)

		resp, err := p.generate(ctx, rethinkSystemPrompt, rethinkUserPrompt(st, history, d.Call, fb, allowed), true)
		if err != nil {
			p.logger.Warn("Rethink failed, keeping original action", zap.Error(err))
			return d
		}
		nd, ok := parseToolCall(resp, allowed)
		if !ok {
			p.parseFailures.Add(1)
			p.logger.Debug("Rethink produced no usable tool, keeping original action")
			return d
		}
		p.logger.Info("Action rethought",
			zap.Int("step", st.StepCount),
			zap.String("original", d.Call.String()),
			zap.String("rethought", nd.Call.String()))
		st.Rethinks = append(st.Rethinks, RethinkRecord{
			Step:            st.StepCount,
			OriginalAction:  d.Call.String(),
			RethoughtAction: nd.Call.String(),
			Feedback:        fb,
		})
		nd.Feedback = fb
		d = nd
	}
}
