package replay

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"
)

var (
	ErrSessionNotFound = errors.New("session not found in demo file")
	ErrEmptyTrajectory = errors.New("session has no replayable steps")
)

// StepInfo describes how a predicted action compared with the recording.
type StepInfo struct {
	Match          bool   `json:"match"`
	Expected       string `json:"expected_action"`
	Predicted      string `json:"predicted_action"`
	StepNumber     *int   `json:"step_number"`
	Index          int    `json:"index"`
	SelectedItemID string `json:"selected_item_id,omitempty"`
	Error          string `json:"error,omitempty"`
}

// Label is the step number, or the trajectory index for unnumbered steps.
func (i StepInfo) Label() int {
	if i.StepNumber != nil {
		return *i.StepNumber
	}
	return i.Index
}

// OfflineEnv replays recorded WebShop sessions. Observations come from the
// recording whatever action is taken; the env only reports whether the
// action matched.
type OfflineEnv struct {
	sessions map[int]Episode
	logger   *zap.Logger

	episode  *Episode
	index    int
	selected string
}

func NewOfflineEnv(episodes []Episode, logger *zap.Logger) *OfflineEnv {
	m := make(map[int]Episode, len(episodes))
	for _, ep := range episodes {
		m[ep.SessionID] = ep
	}
	return &OfflineEnv{sessions: m, logger: logger.Named("offline_env")}
}

// LoadOfflineEnv builds an env from a demonstration file.
func LoadOfflineEnv(path string, logger *zap.Logger) (*OfflineEnv, error) {
	episodes, err := LoadDemos(path)
	if err != nil {
		return nil, err
	}
	logger.Info("Demonstrations loaded", zap.String("path", path), zap.Int("episodes", len(episodes)))
	return NewOfflineEnv(episodes, logger), nil
}

// Instruction returns the recorded user instruction of a session.
func (e *OfflineEnv) Instruction(sessionID int) (string, bool) {
	ep, ok := e.sessions[sessionID]
	return ep.Instruction, ok
}

// Reset starts sessionID over and returns its first observation.
func (e *OfflineEnv) Reset(sessionID int) (string, error) {
	ep, ok := e.sessions[sessionID]
	if !ok {
		return "", fmt.Errorf("%w: %d", ErrSessionNotFound, sessionID)
	}
	e.episode = &ep
	e.index = 0
	e.selected = ""
	if len(ep.Trajectory) == 0 {
		return "", fmt.Errorf("%w: %d", ErrEmptyTrajectory, sessionID)
	}
	e.logger.Info("Session reset", zap.Int("session_id", sessionID), zap.Int("steps", len(ep.Trajectory)))
	return ep.Trajectory[0].ObservationBefore, nil
}

// Step compares action with the recorded one and advances. The last step is
// always done; stepping past it reports an error in the info.
func (e *OfflineEnv) Step(_ context.Context, action string) (string, float64, bool, StepInfo) {
	if e.episode == nil || e.index >= len(e.episode.Trajectory) {
		return "", 0, true, StepInfo{Predicted: action, Index: e.index, Error: "episode finished or not reset"}
	}
	cur := e.episode.Trajectory[e.index]

	if strings.EqualFold(cur.ActionName, "select_item") {
		if id := ItemID(cur.ActionArguments); id != "" {
			e.selected = id
		}
	}

	info := StepInfo{
		Match:          cur.ExpectedAction != "" && strings.TrimSpace(action) == strings.TrimSpace(cur.ExpectedAction),
		Expected:       cur.ExpectedAction,
		Predicted:      action,
		StepNumber:     cur.StepNumber,
		Index:          e.index,
		SelectedItemID: e.selected,
	}

	e.index++
	done := cur.Done
	var next string
	if e.index < len(e.episode.Trajectory) {
		next = e.episode.Trajectory[e.index].ObservationBefore
	} else {
		next = cur.ObservationAfter
		done = true
	}
	return next, cur.Reward, done, info
}

// CurrentStep returns the recorded step the env is waiting on.
func (e *OfflineEnv) CurrentStep() (Step, bool) {
	if e.episode == nil || e.index >= len(e.episode.Trajectory) {
		return Step{}, false
	}
	return e.episode.Trajectory[e.index], true
}
