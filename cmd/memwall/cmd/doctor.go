package cmd

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/hugo-lorenzo-mato/memwall/internal/config"
	"github.com/hugo-lorenzo-mato/memwall/internal/core"
	"github.com/hugo-lorenzo-mato/memwall/internal/generation"
	"github.com/hugo-lorenzo-mato/memwall/internal/service"
	"github.com/hugo-lorenzo-mato/memwall/internal/telemetry"
)

var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Check telemetry, generation backend and configuration",
	Long: `Verify that memory telemetry works on this host, the configured
generation backend is reachable with the required models, and the
configuration and scenario catalog are valid.`,
	RunE: runDoctor,
}

var doctorTimeout time.Duration

func init() {
	rootCmd.AddCommand(doctorCmd)
	doctorCmd.Flags().DurationVar(&doctorTimeout, "timeout", 10*time.Second, "Timeout for backend checks")
}

type doctorReport struct {
	out      io.Writer
	failures int
	warnings int
}

func (r *doctorReport) ok(format string, args ...any) {
	fmt.Fprintf(r.out, "  ✓ %s\n", fmt.Sprintf(format, args...))
}

func (r *doctorReport) warn(format string, args ...any) {
	r.warnings++
	fmt.Fprintf(r.out, "  ○ %s\n", fmt.Sprintf(format, args...))
}

func (r *doctorReport) fail(format string, args ...any) {
	r.failures++
	fmt.Fprintf(r.out, "  ✗ %s\n", fmt.Sprintf(format, args...))
}

func (r *doctorReport) section(name string) {
	fmt.Fprintln(r.out)
	fmt.Fprintln(r.out, name)
}

func runDoctor(cmd *cobra.Command, _ []string) error {
	report := &doctorReport{out: cmd.OutOrStdout()}
	ctx, cancel := context.WithTimeout(cmd.Context(), doctorTimeout)
	defer cancel()

	report.section("Configuration")
	snap, err := loadSnapshot()
	if err != nil {
		report.fail("%v", err)
		return fmt.Errorf("configuration check failed")
	}
	report.ok("config valid, %d scenarios", len(snap.Catalog.IDs()))
	cfg := snap.Config

	report.section("Telemetry")
	checkTelemetry(ctx, report, cfg)

	report.section("Generation backend")
	checkBackend(ctx, report, cfg)

	report.section("Session store")
	checkSessions(ctx, report, cfg)

	fmt.Fprintln(report.out)
	if report.failures > 0 {
		fmt.Fprintf(report.out, "%d checks failed\n", report.failures)
		return fmt.Errorf("doctor found %d problems", report.failures)
	}
	if report.warnings > 0 {
		fmt.Fprintf(report.out, "Ready, with %d warnings\n", report.warnings)
		return nil
	}
	fmt.Fprintln(report.out, "All checks passed")
	return nil
}

func checkTelemetry(ctx context.Context, report *doctorReport, cfg *config.Config) {
	sample := telemetry.NewHostSampler().Sample()
	if sample.MemTotalBytes == 0 {
		report.fail("memory statistics unavailable on this host")
		return
	}
	report.ok("RAM %.1f / %.1f GB (%.0f%%)",
		core.BytesToGB(sample.MemUsedBytes), core.BytesToGB(sample.MemTotalBytes), sample.MemPercent())

	info := telemetry.NewHostInfoCollector().Collect(ctx)
	if info.SwapTotalGB == 0 {
		report.warn("no swap configured; runs without offload will not reach the crash threshold")
	} else {
		report.ok("swap %.1f / %.1f GB, crash threshold +%.1f GB", info.SwapUsedGB, info.SwapTotalGB, cfg.Scheduler.CrashThresholdGB)
	}
	if info.CPUModel != "" {
		report.ok("CPU %s (%d cores)", info.CPUModel, info.CPUCores)
	}
	for _, gpu := range info.GPUs {
		if gpu.MemValid {
			report.ok("GPU %s, %.0f MB", gpu.Name, gpu.MemTotalMB)
		} else {
			report.ok("GPU %s", gpu.Name)
		}
	}
}

func checkBackend(ctx context.Context, report *doctorReport, cfg *config.Config) {
	gen := service.GeneratorFor(cfg, nil)
	client, ok := gen.(*generation.OllamaClient)
	if !ok {
		report.warn("ollama disabled, using the scripted generator")
		return
	}
	missing, err := client.CheckModels(ctx, cfg.Models.Text, cfg.Models.Vision)
	if err != nil {
		report.fail("ollama at %s: %v", cfg.Ollama.URL, err)
		return
	}
	report.ok("ollama reachable at %s", cfg.Ollama.URL)
	for _, m := range missing {
		report.fail("model %s not pulled (run 'ollama pull %s')", m, m)
	}
}

func checkSessions(ctx context.Context, report *doctorReport, cfg *config.Config) {
	if !cfg.Session.Enabled {
		report.warn("session history disabled")
		return
	}
	store, err := openSessions(cfg)
	if err != nil {
		report.fail("%v", err)
		return
	}
	defer store.Close()
	totals, err := store.Totals(ctx)
	if err != nil {
		report.fail("reading session store: %v", err)
		return
	}
	report.ok("%s, %d runs recorded", cfg.Session.Path, totals.Runs)
}
