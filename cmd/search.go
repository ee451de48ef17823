package cmd

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/xkilldash9x/webagents/api/schemas"
	"github.com/xkilldash9x/webagents/internal/config"
	"github.com/xkilldash9x/webagents/internal/network"
	"github.com/xkilldash9x/webagents/internal/observability"
	"github.com/xkilldash9x/webagents/internal/replay"
	"github.com/xkilldash9x/webagents/internal/treesearch"
	"github.com/xkilldash9x/webagents/internal/webshop"
)

// demoGoals run when search is called without a goal.
var demoGoals = []string{
	"Find a durable camera under $100",
	"I need a pair of men's walking shoes, size 10, brand 'Nike'",
	"Find the cheapest laptop with at least 16GB of RAM",
}

func newSearchCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "search [goal]",
		Short: "Run best-first tree search over a WebShop site",
		Long: `Search proposes actions with the LLM, scores every resulting page and
always expands the most promising page next. Without a goal it runs a set of demo goals.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			logger := observability.GetLogger()
			cfg, err := getConfigFromContext(ctx)
			if err != nil {
				return err
			}

			goals := demoGoals
			if goal := strings.TrimSpace(strings.Join(args, " ")); goal != "" {
				goals = []string{goal}
			}

			llm, err := newLLMClient(cfg.LLM, logger)
			if err != nil {
				return fmt.Errorf("failed to initialize LLM client: %w", err)
			}
			defer llm.Close()

			httpClient, err := network.NewClient(cfg.Network, logger)
			if err != nil {
				return err
			}
			env, err := webshop.NewClient(cfg.WebShop.BaseURL, httpClient, logger)
			if err != nil {
				return err
			}

			for i, goal := range goals {
				fmt.Fprintf(cmd.OutOrStdout(), "=== Goal %d/%d: %s\n", i+1, len(goals), goal)
				if err := runSearch(ctx, cmd.OutOrStdout(), cfg, logger, env, llm, goal); err != nil {
					return err
				}
			}
			return nil
		},
	}

	cmd.Flags().Int("max-steps", 3, "Maximum number of expansions")
	cmd.Flags().Int("branching", 2, "Samples per value and proposal call")
	cmd.Flags().Int("budget", 5, "Search budget")
	cmd.Flags().Bool("record", true, "Record the session to the replay directory")
	bindFlag(cmd, "max-steps", "search.max_steps")
	bindFlag(cmd, "branching", "search.branching")
	bindFlag(cmd, "budget", "search.budget")
	bindFlag(cmd, "record", "search.record")
	return cmd
}

// runSearch searches for one goal, records the session and persists the run.
func runSearch(ctx context.Context, out io.Writer, cfg *config.Config, logger *zap.Logger, env webshop.Env, llm schemas.LLMClient, goal string) error {
	var opts []treesearch.Option
	var rec *replay.Recorder
	if cfg.Search.Record {
		rec = replay.NewRecorder(cfg.Search.ReplayDir, logger)
		rec.Start(goal, map[string]any{
			"max_steps": cfg.Search.MaxSteps,
			"branching": cfg.Search.Branching,
			"budget":    cfg.Search.Budget,
		})
		opts = append(opts, treesearch.WithRecorder(rec))
	}

	searcher, err := treesearch.NewSearcher(env, llm, goal, cfg.Search, logger, opts...)
	if err != nil {
		return err
	}

	run := newRun("treesearch", goal)
	res, runErr := searcher.Run(ctx)

	onSuccess := schemas.RunExhausted
	if res.FinalAnswer != "" {
		onSuccess = schemas.RunSucceeded
	}
	finishRun(run, runStatus(runErr, onSuccess), res.FinalAnswer, res.BestScore, res)
	for i, action := range res.BestHistory {
		run.Steps = append(run.Steps, schemas.RunStep{Index: i, Action: action})
	}
	saveRun(ctx, cfg, logger, run)

	if rec != nil {
		path, err := rec.End(replay.FinalResult{
			Success:     res.FinalAnswer != "",
			BestScore:   res.BestScore,
			FinalAnswer: res.FinalAnswer,
			BestHistory: res.BestHistory,
			Expansions:  res.Expansions,
		})
		if err != nil {
			logger.Warn("Failed to write session file", zap.Error(err))
		} else {
			fmt.Fprintf(out, "Session saved to %s\n", path)
		}
	}

	if runErr != nil {
		return runErr
	}
	return printJSON(out, res)
}
