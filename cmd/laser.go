package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/xkilldash9x/webagents/api/schemas"
	"github.com/xkilldash9x/webagents/internal/config"
	"github.com/xkilldash9x/webagents/internal/laser"
	"github.com/xkilldash9x/webagents/internal/llmutil"
	"github.com/xkilldash9x/webagents/internal/network"
	"github.com/xkilldash9x/webagents/internal/observability"
	"github.com/xkilldash9x/webagents/internal/replay"
	"github.com/xkilldash9x/webagents/internal/webshop"
)

const (
	policyLLM      = "llm"
	policyRecorded = "recorded"
)

// laserEpisode is an env ready to play, with its instruction and first page.
type laserEpisode struct {
	env         laser.Env
	instruction string
	initialObs  string
	recording   laser.StepSource
}

func newLaserCmd() *cobra.Command {
	var policyName string

	cmd := &cobra.Command{
		Use:   "laser [instruction]",
		Short: "Run the LASER shopping agent",
		Long: `LASER moves between the Search, Result and Item states until it buys an item
or runs out of steps. In replay mode the instruction and pages come from a demonstration
file; in real mode the agent shops on the configured WebShop site.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			logger := observability.GetLogger()
			cfg, err := getConfigFromContext(ctx)
			if err != nil {
				return err
			}

			instruction := strings.TrimSpace(strings.Join(args, " "))
			if instruction == "" {
				instruction = strings.TrimSpace(os.Getenv("INSTRUCTION"))
			}

			ep, err := prepareLaserEpisode(ctx, cfg, logger, instruction)
			if err != nil {
				return err
			}

			var policy laser.Policy
			var scorer *laser.ItemScorer
			switch policyName {
			case policyRecorded:
				if ep.recording == nil {
					return errors.New("--policy recorded needs --mode replay")
				}
				policy = laser.NewReplayPolicy(ep.recording)
			case policyLLM:
				llm, err := newLLMClient(cfg.LLM, logger)
				if err != nil {
					return fmt.Errorf("failed to initialize LLM client: %w", err)
				}
				defer llm.Close()
				policy = laser.NewLLMPolicy(llm, cfg.Laser, llmutil.NewTruncator("", logger), logger)
				scorer = laser.NewItemScorer(llm, logger)
			default:
				return fmt.Errorf("unknown policy %q (supported: %s, %s)", policyName, policyLLM, policyRecorded)
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Mode: %s\nInstruction: %s\n", cfg.Laser.Mode, ep.instruction)

			agent := laser.NewAgent(policy, scorer, cfg.Laser, logger)
			run := newRun("laser", ep.instruction)
			res, runErr := agent.Run(ctx, ep.env, ep.instruction, ep.initialObs)

			var answer string
			var score float64
			if res.Selected != nil {
				answer, score = res.Selected.ItemID, res.Selected.Score
			}
			if res.FinalReward > 0 {
				score = res.FinalReward
			}
			finishRun(run, runStatus(runErr, res.Outcome()), answer, score, res)
			for i, action := range res.Actions {
				step := schemas.RunStep{Index: i, Action: action}
				if i < len(res.Thoughts) {
					step.Observation = res.Thoughts[i]
				}
				run.Steps = append(run.Steps, step)
			}
			saveRun(ctx, cfg, logger, run)

			if runErr != nil {
				return runErr
			}
			return printJSON(cmd.OutOrStdout(), res)
		},
	}

	cmd.Flags().String("mode", "replay", "Environment: 'replay' (demonstration file) or 'real' (live WebShop)")
	cmd.Flags().Int("session-id", 3, "Demonstration session to replay")
	cmd.Flags().String("demo-file", "webshop_demonstrations_0-100.json", "Demonstration file for replay mode")
	cmd.Flags().Int("max-steps", 15, "Maximum agent steps")
	cmd.Flags().Bool("enable-feedback", false, "Enable manager feedback and rethinking on item pages")
	cmd.Flags().StringVar(&policyName, "policy", policyLLM, "Decision policy: 'llm' or 'recorded' (replays the demonstration actions)")
	bindFlag(cmd, "mode", "laser.mode")
	bindFlag(cmd, "session-id", "laser.session_id")
	bindFlag(cmd, "demo-file", "laser.demo_file")
	bindFlag(cmd, "max-steps", "laser.max_steps")
	bindFlag(cmd, "enable-feedback", "laser.enable_feedback")
	return cmd
}

// prepareLaserEpisode builds the env for cfg.Laser.Mode. Replay mode takes
// its instruction from the demonstration file and rejects one given by the
// user; real mode requires it.
func prepareLaserEpisode(ctx context.Context, cfg *config.Config, logger *zap.Logger, instruction string) (*laserEpisode, error) {
	switch cfg.Laser.Mode {
	case "replay":
		if instruction != "" {
			return nil, errors.New("replay mode takes the instruction from the demonstration file; do not pass one")
		}
		env, err := replay.LoadOfflineEnv(cfg.Laser.DemoFile, logger)
		if err != nil {
			return nil, err
		}
		recorded, ok := env.Instruction(cfg.Laser.SessionID)
		if !ok {
			return nil, fmt.Errorf("session %d not found in %s", cfg.Laser.SessionID, cfg.Laser.DemoFile)
		}
		obs, err := env.Reset(cfg.Laser.SessionID)
		if err != nil {
			return nil, err
		}
		return &laserEpisode{env: env, instruction: recorded, initialObs: obs, recording: env}, nil

	case "real":
		if instruction == "" {
			return nil, errors.New("real mode requires an instruction (argument or $INSTRUCTION)")
		}
		httpClient, err := network.NewClient(cfg.Network, logger)
		if err != nil {
			return nil, err
		}
		client, err := webshop.NewClient(cfg.WebShop.BaseURL, httpClient, logger)
		if err != nil {
			return nil, err
		}
		env := laser.NewWebShopEnv(client, logger)
		obs, err := env.Reset(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to open %s: %w", cfg.WebShop.BaseURL, err)
		}
		return &laserEpisode{env: env, instruction: instruction, initialObs: obs}, nil

	default:
		return nil, fmt.Errorf("unknown laser mode %q", cfg.Laser.Mode)
	}
}
