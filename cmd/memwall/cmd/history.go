package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Show past runs and cumulative token usage",
	RunE:  runHistory,
}

var (
	historyLimit int
	historyJSON  bool
)

func init() {
	rootCmd.AddCommand(historyCmd)
	historyCmd.Flags().IntVarP(&historyLimit, "limit", "n", 20, "Number of runs to show (0 for all)")
	historyCmd.Flags().BoolVar(&historyJSON, "json", false, "Output as JSON")
}

func runHistory(cmd *cobra.Command, _ []string) error {
	snap, err := loadSnapshot()
	if err != nil {
		return err
	}
	if !snap.Config.Session.Enabled {
		return fmt.Errorf("session history is disabled (session.enabled: false)")
	}
	sessions, err := openSessions(snap.Config)
	if err != nil {
		return err
	}
	defer sessions.Close()

	ctx := cmd.Context()
	runs, err := sessions.ListRuns(ctx, historyLimit)
	if err != nil {
		return err
	}
	totals, err := sessions.Totals(ctx)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if historyJSON {
		return writeJSON(out, map[string]any{"runs": runs, "totals": totals})
	}

	if len(runs) == 0 {
		fmt.Fprintln(out, "No runs recorded yet")
		return nil
	}
	for _, r := range runs {
		offload := "off"
		if r.OffloadEnabled {
			offload = "on"
		}
		fmt.Fprintf(out, "%s  %-8s %-9s offload %-3s  %-9s %3d/%-3d docs  %s\n",
			r.StartedAt.Local().Format("2006-01-02 15:04"),
			r.Scenario, r.Tier, offload, r.Status, r.Processed, r.Total,
			r.Elapsed.Round(time.Second))
	}
	fmt.Fprintf(out, "\n%d runs, %d input tokens, %d output tokens\n",
		totals.Runs, totals.InputTokens, totals.OutputTokens)
	return nil
}
