// Package laser implements a state-space shopping agent. The agent moves
// between a search page, a result list and an item page, choosing one tool
// per step from the tools each state allows, and keeps a buffer of candidate
// items to fall back on when it never buys.
package laser

import (
	"fmt"
	"strings"
)

// NodeState is the page the agent believes it is on.
type NodeState string

const (
	StateSearch   NodeState = "Search"
	StateResult   NodeState = "Result"
	StateItem     NodeState = "Item"
	StateStopping NodeState = "Stopping"
)

// Route is the edge a node took out of the current step.
type Route string

const (
	RouteToResult   Route = "to_result"
	RouteToItem     Route = "to_item"
	RouteToSearch   Route = "to_search"
	RouteStayResult Route = "stay_result"
	RouteStayItem   Route = "stay_item"
	RouteToStop     Route = "to_stop"
)

// FeedbackRecord is one manager critique.
type FeedbackRecord struct {
	Step      int       `json:"step"`
	State     NodeState `json:"state"`
	Thought   string    `json:"thought"`
	Action    string    `json:"action"`
	Feedback  string    `json:"feedback"`
	Rethought bool      `json:"rethought"`
}

// RethinkRecord is an action replaced after negative feedback.
type RethinkRecord struct {
	Step            int    `json:"step"`
	OriginalAction  string `json:"original_action"`
	RethoughtAction string `json:"rethought_action"`
	Feedback        string `json:"feedback"`
}

// State is the mutable agent state threaded through the nodes.
type State struct {
	Instruction string
	Obs         string
	Current     NodeState
	Route       Route
	StepCount   int

	ThoughtHistory []string
	ActionHistory  []string

	Memory   *MemoryBuffer
	Selected *Candidate
	Note     string
	Reward   float64

	Feedback []FeedbackRecord
	Rethinks []RethinkRecord
}

// NewState returns the state of a fresh episode on the search page.
func NewState(instruction, obs string) *State {
	return &State{
		Instruction: instruction,
		Obs:         obs,
		Current:     StateSearch,
		Memory:      NewMemoryBuffer(),
	}
}

// History renders past rationales and actions as numbered pairs.
func (s *State) History() string {
	var b strings.Builder
	n := max(len(s.ThoughtHistory), len(s.ActionHistory))
	for i := 0; i < n; i++ {
		if i < len(s.ThoughtHistory) {
			fmt.Fprintf(&b, "Rationale%d: %s\n", i+1, s.ThoughtHistory[i])
		}
		if i < len(s.ActionHistory) {
			fmt.Fprintf(&b, "Action%d: %s\n", i+1, s.ActionHistory[i])
		}
	}
	return b.String()
}

// lastClickedItem returns the id of the most recent click on an item button.
func (s *State) lastClickedItem() string {
	for i := len(s.ActionHistory) - 1; i >= 0; i-- {
		a := s.ActionHistory[i]
		if !strings.HasPrefix(a, "click[") || !strings.HasSuffix(a, "]") {
			continue
		}
		id := a[len("click[") : len(a)-1]
		if itemIDPattern.MatchString(id) {
			return id
		}
	}
	return ""
}

func (s *State) record(thought, action string) {
	s.ThoughtHistory = append(s.ThoughtHistory, thought)
	s.ActionHistory = append(s.ActionHistory, action)
	s.StepCount++
}
