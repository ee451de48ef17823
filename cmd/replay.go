package cmd

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/xkilldash9x/webagents/internal/observability"
	"github.com/xkilldash9x/webagents/internal/replay"
)

func newReplayCmd() *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "replay",
		Short: "Replay a demonstration session offline and score each step",
		Long: `Replay steps through a recorded WebShop session with a policy that repeats the
recorded actions, printing whether each predicted action matched and the overall accuracy.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			logger := observability.GetLogger()
			cfg, err := getConfigFromContext(ctx)
			if err != nil {
				return err
			}

			env, err := replay.LoadOfflineEnv(cfg.Laser.DemoFile, logger)
			if err != nil {
				return err
			}
			report, err := replay.NewRunner(env, logger).RunEpisode(ctx, cfg.Laser.SessionID, replay.StubPolicy{})
			if err != nil {
				return err
			}
			if asJSON {
				return printJSON(cmd.OutOrStdout(), report)
			}
			writeEpisodeReport(cmd.OutOrStdout(), report)
			return nil
		},
	}

	cmd.Flags().Int("session-id", 3, "Demonstration session to replay")
	cmd.Flags().String("demo-file", "webshop_demonstrations_0-100.json", "Demonstration file")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the report as JSON")
	bindFlag(cmd, "session-id", "laser.session_id")
	bindFlag(cmd, "demo-file", "laser.demo_file")
	return cmd
}

func writeEpisodeReport(w io.Writer, r replay.EpisodeReport) {
	fmt.Fprintf(w, "Session %d\n", r.SessionID)
	for _, s := range r.Steps {
		mark := "MATCH"
		if !s.Match {
			mark = "MISMATCH"
		}
		fmt.Fprintf(w, "  step %d: %-8s predicted=%q expected=%q\n", s.Label, mark, s.Predicted, s.Expected)
	}
	fmt.Fprintf(w, "Accuracy: %d/%d (%.1f%%)\n", r.Matched, r.Total, r.Accuracy)
	fmt.Fprintf(w, "Final reward: %.2f\n", r.FinalReward)
}
