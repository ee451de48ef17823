package replay

import (
	"context"

	"go.uber.org/zap"
)

// Policy picks an env action string for the current recorded step.
type Policy interface {
	PredictAction(ctx context.Context, obs string, step Step) string
}

// StubPolicy replays the recorded action, which makes a run a self-check of
// the demonstration file.
type StubPolicy struct{}

func (StubPolicy) PredictAction(_ context.Context, _ string, step Step) string {
	return FormatAction(step.ActionName, step.ActionArguments)
}

type StepReport struct {
	Label     int    `json:"step"`
	Match     bool   `json:"match"`
	Predicted string `json:"predicted"`
	Expected  string `json:"expected"`
}

type EpisodeReport struct {
	SessionID   int          `json:"session_id"`
	Matched     int          `json:"matched"`
	Total       int          `json:"total"`
	Accuracy    float64      `json:"accuracy"` // percent
	FinalReward float64      `json:"final_reward"`
	Steps       []StepReport `json:"steps"`
}

type Runner struct {
	env    *OfflineEnv
	logger *zap.Logger
}

func NewRunner(env *OfflineEnv, logger *zap.Logger) *Runner {
	return &Runner{env: env, logger: logger.Named("replay_runner")}
}

// RunEpisode replays sessionID with policy and scores every step.
func (r *Runner) RunEpisode(ctx context.Context, sessionID int, policy Policy) (EpisodeReport, error) {
	report := EpisodeReport{SessionID: sessionID}
	obs, err := r.env.Reset(sessionID)
	if err != nil {
		return report, err
	}

	for {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		step, ok := r.env.CurrentStep()
		if !ok {
			break
		}

		predicted := policy.PredictAction(ctx, obs, step)
		next, reward, done, info := r.env.Step(ctx, predicted)
		obs = next

		report.Total++
		if info.Match {
			report.Matched++
		}
		report.Steps = append(report.Steps, StepReport{
			Label:     info.Label(),
			Match:     info.Match,
			Predicted: info.Predicted,
			Expected:  info.Expected,
		})
		r.logger.Debug("Replayed step",
			zap.Int("step", info.Label()),
			zap.Bool("match", info.Match),
			zap.String("predicted", info.Predicted),
			zap.String("expected", info.Expected))

		if done {
			report.FinalReward = reward
			break
		}
	}

	if report.Total > 0 {
		report.Accuracy = float64(report.Matched) / float64(report.Total) * 100
	}
	r.logger.Info("Episode replayed",
		zap.Int("session_id", sessionID),
		zap.Int("matched", report.Matched),
		zap.Int("total", report.Total),
		zap.Float64("accuracy", report.Accuracy))
	return report, nil
}
