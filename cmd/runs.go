package cmd

import (
	"context"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/xkilldash9x/webagents/api/schemas"
	"github.com/xkilldash9x/webagents/internal/config"
	"github.com/xkilldash9x/webagents/internal/observability"
	"github.com/xkilldash9x/webagents/internal/store"
)

// runStore is the part of store.Store the commands use.
type runStore interface {
	SaveRun(ctx context.Context, run *schemas.AgentRun) error
	GetRun(ctx context.Context, id string) (*schemas.AgentRun, error)
	ListRuns(ctx context.Context, agent string, limit int) ([]schemas.AgentRun, error)
}

// storeProvider creates a run store. This abstraction allows for the injection
// of a mock store instead of a live database connection.
type storeProvider interface {
	// Create returns the store and a cleanup function releasing its resources.
	Create(ctx context.Context, cfg *config.Config) (runStore, func(), error)
}

// defaultStoreProvider connects to PostgreSQL.
type defaultStoreProvider struct{}

func (defaultStoreProvider) Create(ctx context.Context, cfg *config.Config) (runStore, func(), error) {
	if cfg.Database.URL == "" {
		return nil, nil, fmt.Errorf("database URL is not configured (WEBAGENTS_DATABASE_URL)")
	}
	logger := observability.GetLogger()
	s, pool, err := store.Connect(ctx, cfg.Database.URL, logger)
	if err != nil {
		return nil, nil, err
	}
	cleanup := func() {
		pool.Close()
		logger.Debug("Database connection pool closed")
	}
	return s, cleanup, nil
}

// runStoreProvider is replaced in tests.
var runStoreProvider storeProvider = defaultStoreProvider{}

func newRunsCmd() *cobra.Command {
	runsCmd := &cobra.Command{
		Use:   "runs",
		Short: "Inspect agent runs stored in the database",
	}
	runsCmd.AddCommand(newRunsListCmd(), newRunsShowCmd())
	return runsCmd
}

func newRunsListCmd() *cobra.Command {
	var agent string
	var limit int

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List the most recent runs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cfg, err := getConfigFromContext(ctx)
			if err != nil {
				return err
			}
			s, cleanup, err := runStoreProvider.Create(ctx, cfg)
			if err != nil {
				return fmt.Errorf("failed to initialize store: %w", err)
			}
			if cleanup != nil {
				defer cleanup()
			}

			runs, err := s.ListRuns(ctx, agent, limit)
			if err != nil {
				return err
			}
			writeRunTable(cmd.OutOrStdout(), runs)
			return nil
		},
	}
	cmd.Flags().StringVar(&agent, "agent", "", "Only list runs of this agent (treesearch, laser, knowagent, agentq)")
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Maximum number of runs")
	return cmd
}

func newRunsShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show [run-id]",
		Short: "Print one run with its steps as JSON",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cfg, err := getConfigFromContext(ctx)
			if err != nil {
				return err
			}
			s, cleanup, err := runStoreProvider.Create(ctx, cfg)
			if err != nil {
				return fmt.Errorf("failed to initialize store: %w", err)
			}
			if cleanup != nil {
				defer cleanup()
			}

			run, err := s.GetRun(ctx, args[0])
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), run)
		},
	}
}

func writeRunTable(w io.Writer, runs []schemas.AgentRun) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tAGENT\tSTATUS\tSTARTED\tDURATION\tGOAL")
	for _, r := range runs {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n",
			r.ID, r.Agent, r.Status,
			r.StartedAt.Local().Format(time.DateTime),
			r.FinishedAt.Sub(r.StartedAt).Round(time.Second),
			truncateGoal(r.Goal, 60))
	}
	_ = tw.Flush()
}

func truncateGoal(goal string, n int) string {
	runes := []rune(goal)
	if len(runes) <= n {
		return goal
	}
	return string(runes[:n-3]) + "..."
}
