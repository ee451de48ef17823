package schemas

import (
	"encoding/json"
	"time"
)

// AgentRun is the persisted summary of one agent execution.
type AgentRun struct {
	ID          string          `json:"id"`
	Agent       string          `json:"agent"` // "treesearch", "laser", "knowagent" or "agentq".
	Goal        string          `json:"goal"`
	Status      RunStatus       `json:"status"`
	FinalAnswer string          `json:"final_answer"`
	Score       float64         `json:"score"`
	StartedAt   time.Time       `json:"started_at"`
	FinishedAt  time.Time       `json:"finished_at"`
	Details     json.RawMessage `json:"details,omitempty"`
	Steps       []RunStep       `json:"steps,omitempty"`
}

// RunStep is one recorded action inside an AgentRun.
type RunStep struct {
	Index       int     `json:"index"`
	Action      string  `json:"action"`
	Observation string  `json:"observation"`
	Score       float64 `json:"score"`
}
