package cmd

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/xkilldash9x/webagents/api/schemas"
	"github.com/xkilldash9x/webagents/internal/knowagent"
	"github.com/xkilldash9x/webagents/internal/llmutil"
	"github.com/xkilldash9x/webagents/internal/network"
	"github.com/xkilldash9x/webagents/internal/observability"
)

func newKnowAgentCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "knowagent [question]",
		Short: "Answer a question with the KnowAgent retrieval agent",
		Long: `KnowAgent plans an action path, then retrieves Wikipedia pages, searches the web
and looks up sentences until it can finish with an answer. The question may also come
from $QUESTION.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			logger := observability.GetLogger()
			cfg, err := getConfigFromContext(ctx)
			if err != nil {
				return err
			}

			question := strings.TrimSpace(strings.Join(args, " "))
			if question == "" {
				question = strings.TrimSpace(os.Getenv("QUESTION"))
			}
			if question == "" {
				return errors.New("no question provided (argument or $QUESTION)")
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

			var cache knowagent.Cache
			if cfg.Redis.URL != "" {
				rc, err := knowagent.NewRedisCache(cfg.Redis, logger)
				if err != nil {
					logger.Warn("Tool cache unavailable, continuing without it", zap.Error(err))
				} else {
					defer rc.Close()
					cache = rc
				}
			}

			tools := knowagent.NewTools(httpClient, cfg.KnowAgent, cache, logger)
			agent := knowagent.NewAgent(llm, tools, cfg.KnowAgent, llmutil.NewTruncator("", logger), logger)

			run := newRun("knowagent", question)
			res, runErr := agent.Run(ctx, question)

			onSuccess := schemas.RunExhausted
			if res.Finished {
				onSuccess = schemas.RunSucceeded
			}
			finishRun(run, runStatus(runErr, onSuccess), res.Answer, 0, res)
			saveRun(ctx, cfg, logger, run)

			if runErr != nil {
				return runErr
			}
			return printJSON(cmd.OutOrStdout(), res)
		},
	}

	cmd.Flags().Int("max-steps", 12, "Maximum agent steps")
	bindFlag(cmd, "max-steps", "knowagent.max_steps")
	return cmd
}
