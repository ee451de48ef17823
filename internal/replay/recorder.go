// Package replay records tree-search sessions and replays recorded LASER
// demonstrations against an offline WebShop environment.
package replay

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

const sessionTimeLayout = "20060102_150405"

// ErrNoSession is returned when logging or ending without an active session.
var ErrNoSession = errors.New("no active replay session")

// Session is the on-disk layout of one recorded search.
type Session struct {
	SessionID   string         `json:"session_id"`
	Goal        string         `json:"goal"`
	Config      map[string]any `json:"config"`
	StartTime   string         `json:"start_time"`
	States      []StateLog     `json:"states"`
	Actions     []ActionLog    `json:"actions"`
	Scores      []float64      `json:"scores"`
	EndTime     string         `json:"end_time,omitempty"`
	FinalResult *FinalResult   `json:"final_result,omitempty"`
}

type StateLog struct {
	Timestamp time.Time     `json:"timestamp"`
	State     StateSnapshot `json:"state"`
	Score     float64       `json:"score"`
}

// StateSnapshot summarizes a search node. Page bodies are not stored.
type StateSnapshot struct {
	Counter     int      `json:"search_counter"`
	URL         string   `json:"url,omitempty"`
	Query       string   `json:"query,omitempty"`
	ResultCount int      `json:"result_count"`
	CartCount   int      `json:"cart_count"`
	History     []string `json:"action_history"`
	Frontier    int      `json:"frontier"`
}

type ActionLog struct {
	Timestamp time.Time    `json:"timestamp"`
	Action    string       `json:"action"`
	Result    ActionResult `json:"result"`
}

type ActionResult struct {
	Score       float64 `json:"score"`
	Query       string  `json:"query,omitempty"`
	ResultCount int     `json:"result_count"`
	Error       string  `json:"error,omitempty"`
}

type FinalResult struct {
	Success     bool     `json:"success"`
	BestScore   float64  `json:"best_score"`
	FinalAnswer string   `json:"final_answer,omitempty"`
	BestHistory []string `json:"best_history,omitempty"`
	Expansions  int      `json:"expansions"`
}

// Recorder accumulates one session at a time and writes it as JSON on End.
type Recorder struct {
	dir    string
	logger *zap.Logger
	now    func() time.Time

	mu      sync.Mutex
	session *Session
}

func NewRecorder(dir string, logger *zap.Logger) *Recorder {
	if dir == "" {
		dir = "./runs"
	}
	return &Recorder{dir: dir, logger: logger.Named("replay"), now: time.Now}
}

// Start opens a new session and returns its id. Any unfinished session is discarded.
func (r *Recorder) Start(goal string, cfg map[string]any) string {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.session != nil {
		r.logger.Warn("Discarding unfinished session", zap.String("session_id", r.session.SessionID))
	}
	if cfg == nil {
		cfg = map[string]any{}
	}
	start := r.now()
	// The suffix keeps back-to-back demo runs from sharing a file.
	id := fmt.Sprintf("session_%s_%s", start.Format(sessionTimeLayout), uuid.NewString()[:8])
	r.session = &Session{
		SessionID: id,
		Goal:      goal,
		Config:    cfg,
		StartTime: start.Format(sessionTimeLayout),
		States:    []StateLog{},
		Actions:   []ActionLog{},
		Scores:    []float64{},
	}
	return id
}

// LogState appends a scored state. It is a no-op without an active session.
func (r *Recorder) LogState(snap StateSnapshot, score float64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.session == nil {
		return
	}
	r.session.States = append(r.session.States, StateLog{Timestamp: r.now(), State: snap, Score: score})
	r.session.Scores = append(r.session.Scores, score)
}

// LogAction appends an executed action. It is a no-op without an active session.
func (r *Recorder) LogAction(action string, result ActionResult) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.session == nil {
		return
	}
	r.session.Actions = append(r.session.Actions, ActionLog{Timestamp: r.now(), Action: action, Result: result})
}

// End closes the session and writes <dir>/<session_id>.json.
func (r *Recorder) End(final FinalResult) (string, error) {
	r.mu.Lock()
	s := r.session
	r.session = nil
	r.mu.Unlock()

	if s == nil {
		return "", ErrNoSession
	}
	s.EndTime = r.now().Format(sessionTimeLayout)
	s.FinalResult = &final

	if err := os.MkdirAll(r.dir, 0o755); err != nil {
		return "", fmt.Errorf("create replay dir: %w", err)
	}
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return "", fmt.Errorf("encode session: %w", err)
	}
	path := filepath.Join(r.dir, s.SessionID+".json")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("write session: %w", err)
	}
	r.logger.Info("Session saved", zap.String("path", path), zap.Int("states", len(s.States)))
	return path, nil
}

// LoadSession reads a recorded session file.
func LoadSession(path string) (*Session, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read session: %w", err)
	}
	var s Session
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("decode session %s: %w", path, err)
	}
	return &s, nil
}

// Analysis summarizes a recorded session.
type Analysis struct {
	Goal             string         `json:"goal"`
	TotalStates      int            `json:"total_states"`
	TotalActions     int            `json:"total_actions"`
	Success          bool           `json:"success"`
	FinalScore       float64        `json:"final_score"`
	MeanScore        float64        `json:"mean_score"`
	MaxScore         float64        `json:"max_score"`
	ScoreProgression []float64      `json:"score_progression"`
	ActionTypes      map[string]int `json:"action_types"`
	FinalAnswer      string         `json:"final_answer,omitempty"`
}

// AnalyzeSession loads path and summarizes it.
func AnalyzeSession(path string) (Analysis, error) {
	s, err := LoadSession(path)
	if err != nil {
		return Analysis{}, err
	}
	return Analyze(s), nil
}

func Analyze(s *Session) Analysis {
	a := Analysis{
		Goal:             s.Goal,
		TotalStates:      len(s.States),
		TotalActions:     len(s.Actions),
		ScoreProgression: make([]float64, 0, len(s.States)),
		ActionTypes:      make(map[string]int),
	}
	if s.FinalResult != nil {
		a.Success = s.FinalResult.Success
		a.FinalScore = s.FinalResult.BestScore
		a.FinalAnswer = s.FinalResult.FinalAnswer
	}

	var sum float64
	for i, st := range s.States {
		a.ScoreProgression = append(a.ScoreProgression, st.Score)
		sum += st.Score
		if i == 0 || st.Score > a.MaxScore {
			a.MaxScore = st.Score
		}
	}
	if len(s.States) > 0 {
		a.MeanScore = sum / float64(len(s.States))
	}

	for _, act := range s.Actions {
		a.ActionTypes[actionType(act.Action)]++
	}
	return a
}

// actionType is the verb of "search('x')", "choose[x]" or "kind: arg".
func actionType(action string) string {
	if i := strings.IndexAny(action, "([:"); i > 0 {
		return strings.TrimSpace(action[:i])
	}
	return action
}

// SortedActionTypes returns the action types by descending count, then name.
func (a Analysis) SortedActionTypes() []string {
	keys := make([]string, 0, len(a.ActionTypes))
	for k := range a.ActionTypes {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		ci, cj := a.ActionTypes[keys[i]], a.ActionTypes[keys[j]]
		if ci != cj {
			return ci > cj
		}
		return keys[i] < keys[j]
	})
	return keys
}
