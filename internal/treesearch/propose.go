package treesearch

import (
	"context"
	"regexp"
	"strings"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/xkilldash9x/webagents/api/schemas"
	"github.com/xkilldash9x/webagents/internal/llmutil"
	"github.com/xkilldash9x/webagents/internal/observability"
	"github.com/xkilldash9x/webagents/internal/webshop"
)

const maxProposals = 5

var (
	searchActionRegex = regexp.MustCompile(`search\[['"](.*?)['"]\]`)
	chooseActionRegex = regexp.MustCompile(`choose\[['"](.*?)['"]\]`)
	stopActionRegex   = regexp.MustCompile(`stop\[['"](.*?)['"]\]`)
)

// ParsedAction is the outcome of reading one proposal response.
type ParsedAction struct {
	Action webshop.Action
	OK     bool   // Action is set
	Stop   string // argument of a stop[...] when the model gave up instead
}

// ParseLLMAction reads the single action a proposal response commits to.
// Search wins over choose, which wins over stop.
func ParseLLMAction(response string) ParsedAction {
	if i := strings.LastIndex(response, answerPhrase); i >= 0 {
		response = response[i+len(answerPhrase):]
	}
	raw := strings.TrimSpace(response)
	if blocks := strings.Split(raw, actionSplitter); len(blocks) > 1 {
		raw = blocks[1]
	}

	if m := searchActionRegex.FindStringSubmatch(raw); m != nil {
		return ParsedAction{Action: webshop.Action{Kind: webshop.ActionSearch, Arg: m[1]}, OK: true}
	}
	if m := chooseActionRegex.FindStringSubmatch(raw); m != nil {
		return ParsedAction{Action: webshop.Action{Kind: webshop.ActionChoose, Arg: m[1]}, OK: true}
	}
	if m := stopActionRegex.FindStringSubmatch(raw); m != nil {
		return ParsedAction{Stop: m[1]}
	}
	return ParsedAction{}
}

// Proposer samples candidate actions and keeps the most voted ones.
type Proposer struct {
	llm         schemas.LLMClient
	samples     int
	temperature float64
	topP        float64
	concurrency int
	logger      *zap.Logger

	parseFailures atomic.Int64
}

func NewProposer(llm schemas.LLMClient, samples int, temperature, topP float64, concurrency int, logger *zap.Logger) *Proposer {
	if samples < 1 {
		samples = 1
	}
	return &Proposer{
		llm:         llm,
		samples:     samples,
		temperature: temperature,
		topP:        topP,
		concurrency: concurrency,
		logger:      logger.Named("proposer"),
	}
}

// Propose returns up to five distinct actions ordered by vote count. Ties keep
// the order in which the actions were first sampled.
func (p *Proposer) Propose(ctx context.Context, goal string, n *Node) []webshop.Action {
	req := schemas.GenerationRequest{
		SystemPrompt: proposalIntro,
		UserPrompt:   proposalPrompt(goal, n),
		Tier:         schemas.TierPowerful,
		Options:      schemas.GenerationOptions{Temperature: p.temperature, TopP: p.topP},
	}

	var order []webshop.Action
	votes := make(map[webshop.Action]int)
	for i, s := range drawSamples(ctx, p.llm, req, p.samples, p.concurrency) {
		if s.err != nil {
			p.logger.Warn("Proposal sample failed", zap.Int("sample", i), zap.Error(s.err))
			continue
		}
		parsed := ParseLLMAction(s.text)
		switch {
		case parsed.OK:
			if votes[parsed.Action] == 0 {
				order = append(order, parsed.Action)
			}
			votes[parsed.Action]++
		case parsed.Stop != "":
			p.logger.Info("Model proposed to stop", zap.String("reason", parsed.Stop))
		default:
			p.parseFailures.Add(1)
			observability.RecordParseFailure("proposer")
			p.logger.Debug("Unparseable proposal", zap.String("response", llmutil.TruncateChars(s.text, 200)))
		}
	}

	// Insertion sort keeps first-seen order among equal counts.
	for i := 1; i < len(order); i++ {
		for j := i; j > 0 && votes[order[j]] > votes[order[j-1]]; j-- {
			order[j], order[j-1] = order[j-1], order[j]
		}
	}
	if len(order) > maxProposals {
		order = order[:maxProposals]
	}
	return order
}

func (p *Proposer) ParseFailures() int64 {
	return p.parseFailures.Load()
}
