package cmd

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/hugo-lorenzo-mato/memwall/internal/console"
	"github.com/hugo-lorenzo-mato/memwall/internal/core"
	"github.com/hugo-lorenzo-mato/memwall/internal/events"
	"github.com/hugo-lorenzo-mato/memwall/internal/service"
	"github.com/hugo-lorenzo-mato/memwall/internal/telemetry"
)

var runCmd = &cobra.Command{
	Use:   "run <scenario> [tier]",
	Short: "Run a scenario in the terminal",
	Long: `Run a scenario headless, streaming its events to stdout.

The scenario may name its tier directly ("pmm_large") or as a second
argument. Interrupting the command stops the run after the current step.

Examples:
  memwall run pmm lite --offload
  memwall run ces2026 --json > run.jsonl
  memwall run pmm large --record transcripts/pmm-large.jsonl`,
	Args: cobra.RangeArgs(1, 2),
	RunE: runRun,
}

var (
	runTier        string
	runOffload     bool
	runJSON        bool
	runVerbose     bool
	runRecord      string
	runFailOnCrash bool
)

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().StringVar(&runTier, "tier", "", "Scenario tier (default: first tier)")
	runCmd.Flags().BoolVar(&runOffload, "offload", false, "Enable memory offload (default from config)")
	runCmd.Flags().BoolVar(&runJSON, "json", false, "Write one JSON frame per line instead of the console view")
	runCmd.Flags().BoolVarP(&runVerbose, "verbose", "v", false, "Show memory samples and document status")
	runCmd.Flags().StringVar(&runRecord, "record", "", "Write a JSON-lines transcript to this file")
	runCmd.Flags().BoolVar(&runFailOnCrash, "fail-on-crash", false, "Exit non-zero when the run crashes")
}

func runRun(cmd *cobra.Command, args []string) error {
	snap, err := loadSnapshot()
	if err != nil {
		return err
	}
	cfg := snap.Config
	logger := newLogger(cfg)

	sessions, err := openSessions(cfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := sessions.Close(); err != nil {
			logger.Warn("closing session store", "error", err)
		}
	}()

	launcher, err := service.NewLauncher(service.Deps{
		Configs:  staticSnapshot{snap},
		Sampler:  telemetry.NewHostSampler(),
		Sessions: sessions,
		Logger:   logger,
	})
	if err != nil {
		return err
	}

	req := service.Request{Scenario: args[0], Tier: runTier}
	if len(args) == 2 {
		req.Tier = args[1]
	}
	if cmd.Flags().Changed("offload") {
		offload := runOffload
		req.OffloadEnabled = &offload
	}
	plan, err := launcher.Plan(req)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	var display events.Transport
	if runJSON {
		display = events.NewJSONLTransport(out)
	} else {
		display = console.New(out, useColor(), runVerbose)
	}
	var recorder *events.Recorder
	if runRecord != "" {
		recorder = events.NewRecorder(runRecord)
		display = events.Fanout(display, recorder)
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	res, err := launcher.Execute(ctx, plan, display)
	if err != nil {
		return err
	}
	if recorder != nil {
		if err := recorder.Close(); err != nil {
			return err
		}
		logger.Info("transcript written", "path", runRecord, "frames", recorder.Frames())
	}

	logger.Debug("run finished", "run_id", plan.ID, "status", res.Status, "processed", res.Processed)
	if res.Status == core.RunCrashed && runFailOnCrash {
		return fmt.Errorf("run crashed after %d of %d documents", res.Processed, res.Total)
	}
	return nil
}
