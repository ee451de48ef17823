package cmd

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/xkilldash9x/webagents/api/schemas"
	"github.com/xkilldash9x/webagents/internal/agentq"
	"github.com/xkilldash9x/webagents/internal/browser"
	"github.com/xkilldash9x/webagents/internal/config"
	"github.com/xkilldash9x/webagents/internal/observability"
)

// Allows running the agent against a fake browser in tests.
var newAgentQBrowser = func(ctx context.Context, cfg config.BrowserConfig, logger *zap.Logger) (agentq.Browser, func(), error) {
	s, err := browser.NewSession(ctx, cfg, logger)
	if err != nil {
		return nil, nil, err
	}
	return s, func() { _ = s.Close() }, nil
}

func newAgentQCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "agentq [objective]",
		Short: "Run the AgentQ browser agent",
		Long: `AgentQ plans, proposes browser commands, ranks them with a critic and executes
the best one in a Chrome session, critiquing its progress after every loop.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			logger := observability.GetLogger()
			cfg, err := getConfigFromContext(ctx)
			if err != nil {
				return err
			}
			objective := strings.TrimSpace(strings.Join(args, " "))

			llm, err := newLLMClient(cfg.LLM, logger)
			if err != nil {
				return fmt.Errorf("failed to initialize LLM client: %w", err)
			}
			defer llm.Close()

			b, closeBrowser, err := newAgentQBrowser(ctx, cfg.Browser, logger)
			if err != nil {
				return fmt.Errorf("failed to start browser: %w", err)
			}
			defer closeBrowser()

			agent := agentq.NewAgent(llm, agentq.NewExecutor(b, logger), agentq.NewCritic(llm, logger), cfg.AgentQ, logger)

			run := newRun("agentq", objective)
			res, runErr := agent.Run(ctx, objective)
			if res != nil {
				finishRun(run, runStatus(runErr, res.Status), res.Answer, 0, res)
				for i, entry := range res.Scratchpad {
					run.Steps = append(run.Steps, schemas.RunStep{Index: i, Action: entry})
				}
			} else {
				finishRun(run, runStatus(runErr, schemas.RunFailed), "", 0, nil)
			}
			saveRun(ctx, cfg, logger, run)

			if runErr != nil {
				return runErr
			}
			if res.NeedsUser != "" {
				fmt.Fprintf(cmd.OutOrStdout(), "The agent needs your help: %s\n", res.NeedsUser)
			}
			return printJSON(cmd.OutOrStdout(), res)
		},
	}

	cmd.Flags().Int("max-loops", 5, "Maximum plan-act-critique loops")
	cmd.Flags().String("start-url", "", "Page to open before the first loop")
	cmd.Flags().Int("debug-port", 0, "Attach to a Chrome already listening on this remote debugging port")
	cmd.Flags().Bool("headless", true, "Run Chrome headless")
	bindFlag(cmd, "max-loops", "agentq.max_loops")
	bindFlag(cmd, "start-url", "agentq.start_url")
	bindFlag(cmd, "debug-port", "browser.debug_port")
	bindFlag(cmd, "headless", "browser.headless")
	return cmd
}
