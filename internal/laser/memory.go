package laser

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/xkilldash9x/webagents/api/schemas"
	"github.com/xkilldash9x/webagents/internal/llmutil"
	"github.com/xkilldash9x/webagents/internal/observability"
)

// unscored marks a candidate the scorer has not rated.
const unscored = -1.0

// Candidate is an item the agent looked at and may fall back on.
type Candidate struct {
	ItemID          string   `json:"item_id"`
	Title           string   `json:"title"`
	Price           string   `json:"price"`
	Page            int      `json:"page"`
	Keywords        []string `json:"keywords,omitempty"`
	SnapshotExcerpt string   `json:"snapshot_excerpt,omitempty"`
	Rationale       string   `json:"rationale,omitempty"`
	SourceState     string   `json:"source_state"`
	ActionsTaken    []string `json:"actions_taken,omitempty"`
	Score           float64  `json:"score"`
	LastSeenStep    int      `json:"last_seen_step"`
	TimesSeen       int      `json:"times_seen"`
}

// MemoryBuffer holds candidates keyed by item id in insertion order.
type MemoryBuffer struct {
	items []Candidate
}

func NewMemoryBuffer() *MemoryBuffer {
	return &MemoryBuffer{}
}

// AddOrUpdate inserts c or merges it into the entry with the same item id.
// Non-empty fields overwrite, actions are merged without duplicates, and the
// entry is marked as seen at step.
func (m *MemoryBuffer) AddOrUpdate(c Candidate, step int) {
	for i := range m.items {
		cur := &m.items[i]
		if cur.ItemID != c.ItemID {
			continue
		}
		mergeString(&cur.Title, c.Title)
		mergeString(&cur.Price, c.Price)
		mergeString(&cur.SnapshotExcerpt, c.SnapshotExcerpt)
		mergeString(&cur.Rationale, c.Rationale)
		mergeString(&cur.SourceState, c.SourceState)
		if c.Page > 0 {
			cur.Page = c.Page
		}
		if len(c.Keywords) > 0 {
			cur.Keywords = c.Keywords
		}
		if c.Score >= 0 {
			cur.Score = c.Score
		}
		cur.ActionsTaken = mergeActions(cur.ActionsTaken, c.ActionsTaken)
		cur.LastSeenStep = step
		cur.TimesSeen++
		return
	}
	c.ActionsTaken = mergeActions(nil, c.ActionsTaken)
	c.LastSeenStep = step
	c.TimesSeen = 1
	m.items = append(m.items, c)
}

// Best returns the candidate with the highest (score, last seen step, times
// seen). The earliest entry wins a full tie.
func (m *MemoryBuffer) Best() (Candidate, bool) {
	if len(m.items) == 0 {
		return Candidate{}, false
	}
	best := m.items[0]
	for _, c := range m.items[1:] {
		if better(c, best) {
			best = c
		}
	}
	return best, true
}

func better(a, b Candidate) bool {
	if a.Score != b.Score {
		return a.Score > b.Score
	}
	if a.LastSeenStep != b.LastSeenStep {
		return a.LastSeenStep > b.LastSeenStep
	}
	return a.TimesSeen > b.TimesSeen
}

// Get returns the entry for itemID.
func (m *MemoryBuffer) Get(itemID string) (Candidate, bool) {
	for _, c := range m.items {
		if c.ItemID == itemID {
			return c, true
		}
	}
	return Candidate{}, false
}

// Items returns a copy of the buffer.
func (m *MemoryBuffer) Items() []Candidate {
	return append([]Candidate(nil), m.items...)
}

func (m *MemoryBuffer) Len() int { return len(m.items) }

func mergeString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

func mergeActions(have, add []string) []string {
	seen := make(map[string]bool, len(have)+len(add))
	out := make([]string, 0, len(have)+len(add))
	for _, a := range append(append([]string(nil), have...), add...) {
		if seen[a] {
			continue
		}
		seen[a] = true
		out = append(out, a)
	}
	return out
}

var scorePattern = regexp.MustCompile(`\{\s*"score"\s*:\s*([\d\.]+)\s*\}`)

// ItemScorer rates how well a candidate fits the instruction.
type ItemScorer struct {
	llm    schemas.LLMClient
	logger *zap.Logger

	parseFailures atomic.Int64
}

func NewItemScorer(llm schemas.LLMClient, logger *zap.Logger) *ItemScorer {
	return &ItemScorer{llm: llm, logger: logger.Named("item_scorer")}
}

// Score returns a value in [0,1]. An unparseable answer scores 0.5 and an LLM
// error scores 0.
func (s *ItemScorer) Score(ctx context.Context, instruction string, c Candidate) float64 {
	req := schemas.GenerationRequest{
		SystemPrompt: scoringSystemPrompt,
		UserPrompt:   scoringUserPrompt(instruction, c),
		Tier:         schemas.TierFast,
		Options:      schemas.GenerationOptions{Temperature: 0},
	}
	resp, err := s.llm.Generate(ctx, req)
	if err != nil {
		s.logger.Warn("Item scoring failed", zap.String("item_id", c.ItemID), zap.Error(err))
		return 0
	}
	score, ok := ParseItemScore(resp)
	if !ok {
		s.parseFailures.Add(1)
		observability.RecordParseFailure("item_scorer")
		s.logger.Debug("Unparseable item score",
			zap.String("item_id", c.ItemID),
			zap.String("response", llmutil.TruncateChars(resp, 200)))
		return 0.5
	}
	return score
}

// ParseFailures reports how many scoring answers could not be parsed.
func (s *ItemScorer) ParseFailures() int64 { return s.parseFailures.Load() }

// ParseItemScore reads {"score": x} from text and clamps x to [0,1].
func ParseItemScore(text string) (float64, bool) {
	m := scorePattern.FindStringSubmatch(text)
	if m == nil {
		return 0, false
	}
	v, err := strconv.ParseFloat(m[1], 64)
	if err != nil {
		return 0, false
	}
	return min(max(v, 0), 1), true
}

func scoringUserPrompt(instruction string, c Candidate) string {
	return fmt.Sprintf("Instruction: %s\n\nItem id: %s\nTitle: %s\nPrice: %s\nKeywords: %s\nPage excerpt:\n%s\n\nRationale: %s",
		instruction, c.ItemID, c.Title, c.Price, strings.Join(c.Keywords, " "), c.SnapshotExcerpt, c.Rationale)
}
