package cmd

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/xkilldash9x/webagents/internal/replay"
)

func newAnalyzeCmd() *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "analyze [session-file]",
		Short: "Summarize a recorded tree search session",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			analysis, err := replay.AnalyzeSession(args[0])
			if err != nil {
				return err
			}
			if asJSON {
				return printJSON(cmd.OutOrStdout(), analysis)
			}
			writeAnalysis(cmd.OutOrStdout(), analysis)
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the analysis as JSON")
	return cmd
}

func writeAnalysis(w io.Writer, a replay.Analysis) {
	fmt.Fprintf(w, "Goal:          %s\n", a.Goal)
	fmt.Fprintf(w, "States:        %d\n", a.TotalStates)
	fmt.Fprintf(w, "Actions:       %d\n", a.TotalActions)
	fmt.Fprintf(w, "Success:       %t\n", a.Success)
	fmt.Fprintf(w, "Final score:   %.2f\n", a.FinalScore)
	fmt.Fprintf(w, "Mean score:    %.2f\n", a.MeanScore)
	fmt.Fprintf(w, "Max score:     %.2f\n", a.MaxScore)
	if a.FinalAnswer != "" {
		fmt.Fprintf(w, "Final answer:  %s\n", a.FinalAnswer)
	}

	scores := make([]string, len(a.ScoreProgression))
	for i, s := range a.ScoreProgression {
		scores[i] = fmt.Sprintf("%.2f", s)
	}
	fmt.Fprintf(w, "Progression:   [%s]\n", strings.Join(scores, ", "))

	if len(a.ActionTypes) > 0 {
		fmt.Fprintln(w, "Action types:")
		for _, name := range a.SortedActionTypes() {
			fmt.Fprintf(w, "  %-12s %d\n", name, a.ActionTypes[name])
		}
	}
}
