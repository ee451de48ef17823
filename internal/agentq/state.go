package agentq

import (
	"fmt"
	"math"
	"strings"
)

const observationEntryChars = 100

// QStat is the running reward record of one command.
type QStat struct {
	Visits      int     `json:"visits"`
	TotalReward float64 `json:"total_reward"`
}

// Mean is the average reward, zero for an unvisited command.
func (q QStat) Mean() float64 {
	if q.Visits == 0 {
		return 0
	}
	return q.TotalReward / float64(q.Visits)
}

// QStats maps a command key to its statistics.
type QStats map[string]QStat

// Update records one execution of key with reward.
func (q QStats) Update(key string, reward float64) {
	s := q[key]
	s.Visits++
	s.TotalReward += reward
	q[key] = s
}

// Total is the number of executions across all commands.
func (q QStats) Total() int {
	n := 0
	for _, s := range q {
		n += s.Visits
	}
	return n
}

// UCB scores a candidate as w·critic + (1−w)·mean + c·sqrt(ln(N+1)/(n+1)).
func UCB(critic float64, stat QStat, total int, w, c float64) float64 {
	bonus := c * math.Sqrt(math.Log(float64(total)+1)/(float64(stat.Visits)+1))
	return w*critic + (1-w)*stat.Mean() + bonus
}

// SelectCommand returns the index of the highest UCB candidate and every score.
// keys[i] identifies candidate i in stats. Ties go to the earliest candidate.
func SelectCommand(keys []string, critic []float64, stats QStats, w, c float64) (int, []float64) {
	total := stats.Total()
	scores := make([]float64, len(keys))
	best := -1
	for i, k := range keys {
		cs := neutralScore
		if i < len(critic) {
			cs = critic[i]
		}
		scores[i] = UCB(cs, stats[k], total, w, c)
		if best < 0 || scores[i] > scores[best] {
			best = i
		}
	}
	return best, scores
}

// State is everything the loop knows about the episode.
type State struct {
	Objective   string
	Plan        string
	Thought     string
	Action      *Command
	Observation string
	Explanation string
	Critique    string
	Status      string

	LoopCount int
	MaxLoops  int
	MinLoops  int
	Done      bool

	CurrentURL  string
	PageTitle   string
	PageContent string
	Elements    string

	Scratchpad        []string
	CandidateCommands []string
	CriticScores      []float64
	QStats            QStats
	LastCommand       string

	NoProgressStreak int
	lastFingerprint  string
	LastError        string
	ErrorCount       int
	// NeedsUser holds the question when the agent stopped to ask for help.
	NeedsUser string
}

// NewState starts an episode.
func NewState(objective string, maxLoops, minLoops int) *State {
	return &State{
		Objective: objective,
		MaxLoops:  maxLoops,
		MinLoops:  minLoops,
		QStats:    make(QStats),
	}
}

func (s *State) addEntry(format string, args ...any) {
	s.Scratchpad = append(s.Scratchpad, fmt.Sprintf(format, args...))
}

func (s *State) addPlan(plan string) { s.addEntry("[PLAN] %s", plan) }

func (s *State) addThought(thought string) { s.addEntry("[THOUGHT-%d] %s", s.LoopCount, thought) }

func (s *State) addAction(cmd *Command) { s.addEntry("[ACTION-%d] %s", s.LoopCount, cmd) }

func (s *State) addObservation(obs string) {
	s.addEntry("[OBSERVATION-%d] %s...", s.LoopCount, truncateRunes(obs, observationEntryChars))
}

func (s *State) addExplanation(explanation string) {
	s.addEntry("[EXPLANATION-%d] %s", s.LoopCount, explanation)
}

func (s *State) addCritique(critique string, done bool) {
	status := "CONTINUE"
	if done {
		status = "COMPLETE"
	}
	s.addEntry("[CRITIQUE-%d] %s - %s", s.LoopCount, status, critique)
}

func (s *State) addError(msg string) {
	s.LastError = msg
	s.ErrorCount++
}

// FormattedScratchpad renders the last limit entries as "- entry" lines.
func (s *State) FormattedScratchpad(limit int) string {
	entries := s.Scratchpad
	if limit > 0 && len(entries) > limit {
		entries = entries[len(entries)-limit:]
	}
	lines := make([]string, len(entries))
	for i, e := range entries {
		lines[i] = "- " + e
	}
	return strings.Join(lines, "\n")
}

// trackProgress compares the page and observation with the previous loop and
// returns the updated no-progress streak.
func (s *State) trackProgress() int {
	fp := s.CurrentURL + "\x00" + s.Observation
	if s.lastFingerprint != "" && fp == s.lastFingerprint {
		s.NoProgressStreak++
	} else {
		s.NoProgressStreak = 0
	}
	s.lastFingerprint = fp
	return s.NoProgressStreak
}

func truncateRunes(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}

func orDefault(s, def string) string {
	if strings.TrimSpace(s) == "" {
		return def
	}
	return s
}
