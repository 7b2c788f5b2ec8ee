// Package console renders a run's event stream for a terminal. It is the
// display transport of the headless run command.
package console

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"

	"github.com/hugo-lorenzo-mato/memwall/internal/events"
)

var (
	colorPrimary = lipgloss.Color("#7C3AED")
	colorInfo    = lipgloss.Color("#3B82F6")
	colorSuccess = lipgloss.Color("#10B981")
	colorWarning = lipgloss.Color("#F59E0B")
	colorError   = lipgloss.Color("#EF4444")
	colorMuted   = lipgloss.Color("#9CA3AF")

	headerStyle  = lipgloss.NewStyle().Foreground(colorPrimary).Bold(true)
	sectionStyle = lipgloss.NewStyle().Foreground(colorInfo)
	mutedStyle   = lipgloss.NewStyle().Foreground(colorMuted)
	errorStyle   = lipgloss.NewStyle().Foreground(colorError).Bold(true)
	metricStyle  = lipgloss.NewStyle().Foreground(colorSuccess)

	badgeColors = map[string]lipgloss.Color{
		"PLANNING":  colorInfo,
		"EXECUTING": colorSuccess,
		"OBSERVING": colorPrimary,
		"ANALYZING": colorMuted,
		"ERROR":     colorError,
	}

	perfColors = map[string]lipgloss.Color{
		"optimal":  colorSuccess,
		"degraded": colorWarning,
		"critical": colorError,
	}
)

// Console writes frames as human-readable lines.
type Console struct {
	writer   io.Writer
	useColor bool
	verbose  bool
	width    int

	mu  sync.Mutex
	bar progress.Model
	md  *glamour.TermRenderer
}

// New creates a console. Verbose adds memory samples, pressure-derived
// performance and per-document status lines.
func New(w io.Writer, useColor, verbose bool) *Console {
	c := &Console{
		writer:   w,
		useColor: useColor,
		verbose:  verbose,
		width:    80,
		bar: progress.New(
			progress.WithScaledGradient("#7c3aed", "#3b82f6"),
			progress.WithoutPercentage(),
			progress.WithWidth(24),
		),
	}
	if useColor {
		// Plain markdown is printed if the renderer cannot be built.
		c.md, _ = glamour.NewTermRenderer(
			glamour.WithStandardStyle("dark"),
			glamour.WithWordWrap(c.width),
		)
	}
	return c
}

// Send implements events.Transport.
func (c *Console) Send(ctx context.Context, f events.Frame) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	switch d := f.Data.(type) {
	case events.InitData:
		c.init(d)
	case events.StatusData:
		c.printf("\n%s %s\n", c.paint(sectionStyle, "---"), d.Message)
	case events.DocumentData:
		pct := float64(d.Index+1) / float64(max(d.Total, 1))
		c.printf("%s %s %s %s\n",
			c.bar.ViewAs(pct),
			c.paint(mutedStyle, fmt.Sprintf("[%d/%d]", d.Index+1, d.Total)),
			d.Name,
			c.paint(mutedStyle, fmt.Sprintf("(%s, %.2f MB)", d.Category, d.SizeMB)))
	case events.DocumentStatusData:
		if c.verbose {
			c.printf("  %s document %d %s\n", c.paint(mutedStyle, "·"), d.Index+1, d.Status)
		}
	case events.ThoughtData:
		c.thought(d)
	case events.MemoryData:
		if c.verbose {
			c.memory(d)
		}
	case events.PerformanceData:
		if d.Measured || c.verbose {
			c.performance(d)
		}
	case events.MetricData:
		c.printf("  %s %s: %s (%d)\n", c.paint(metricStyle, "+"), d.Name, d.Label, d.Value)
	case events.CompleteData:
		c.complete(d)
	case events.CrashData:
		c.crash(d)
	case events.ImpactSummaryData:
		c.impact(d)
	}
	return nil
}

func (c *Console) init(d events.InitData) {
	offload := "off"
	if d.OffloadEnabled {
		offload = "on"
	}
	line := strings.Repeat("=", 60)
	c.printf("%s\n%s %s/%s  offload %s  %d documents\n%s\n",
		c.paint(headerStyle, line),
		c.paint(headerStyle, ">>>"),
		d.Scenario, d.Tier, offload, len(d.Documents),
		c.paint(headerStyle, line))
	if d.RunID != "" {
		c.printf("%s\n", c.paint(mutedStyle, "run "+d.RunID))
	}
}

func (c *Console) thought(d events.ThoughtData) {
	badge := fmt.Sprintf("[%s]", d.Status)
	if col, ok := badgeColors[d.Status]; ok {
		badge = c.paint(lipgloss.NewStyle().Foreground(col).Bold(true), badge)
	}
	author := d.Author
	if author == "" {
		author = d.Phase
	}
	c.printf("  %s %s %s\n", badge, c.paint(headerStyle, author), d.Text)
}

func (c *Console) memory(d events.MemoryData) {
	stale := ""
	if d.Staleness > 0 {
		stale = fmt.Sprintf(" stale=%d", d.Staleness)
	}
	c.printf("  %s ram %.1f/%.1f GB (%.0f%%) swap %.2f GB ctx %d tok kv %.2f GB%s\n",
		c.paint(mutedStyle, "mem"),
		d.RAMUsedGB, d.RAMTotalGB, d.RAMPercent, d.SwapUsedGB, d.ContextTokens, d.KVCacheGB, stale)
}

func (c *Console) performance(d events.PerformanceData) {
	status := d.Status
	if col, ok := perfColors[d.Status]; ok {
		status = c.paint(lipgloss.NewStyle().Foreground(col), d.Status)
	}
	label := "expected"
	if d.Measured {
		label = "measured"
	}
	c.printf("  %s ttft %.0fms  %.1f tok/s  %.1fms/tok  %s\n",
		c.paint(mutedStyle, label), d.TTFTMillis, d.TokensPerSecond, d.LatencyMillis, status)
}

func (c *Console) complete(d events.CompleteData) {
	c.printf("\n%s\n", c.paint(headerStyle, "Analysis complete"))
	c.printf("  Documents: %d/%d\n", d.Processed, d.Total)
	c.printf("  Peak RAM: %.2f GB  Peak swap: %.2f GB  Swap delta: %+.2f GB\n",
		d.PeakRAMGB, d.PeakSwapGB, d.SwapDeltaGB)
	c.printf("  Elapsed: %s\n", (time.Duration(d.ElapsedSeconds * float64(time.Second))).Round(100*time.Millisecond))
}

func (c *Console) crash(d events.CrashData) {
	c.printf("\n%s %s\n", c.paint(errorStyle, "!!! CRASH:"), c.paint(errorStyle, d.Reason))
	c.printf("  Processed %d of %d documents before memory ran out\n", d.Processed, d.Total)
	c.printf("  Swap grew %.2f GB; the workload needed about %.1f GB\n", d.SwapDeltaGB, d.RequiredCapacityGB)
}

func (c *Console) impact(d events.ImpactSummaryData) {
	doc := ImpactMarkdown(d)
	if c.md != nil {
		if out, err := c.md.Render(doc); err == nil {
			c.printf("%s", out)
			return
		}
	}
	c.printf("\n%s", doc)
}

// ImpactMarkdown formats the impact summary as a markdown table.
func ImpactMarkdown(d events.ImpactSummaryData) string {
	var b strings.Builder
	b.WriteString("## Impact Summary\n\n")
	b.WriteString("| Metric | Value |\n|---|---|\n")
	fmt.Fprintf(&b, "| Documents processed | %d/%d |\n", d.Processed, d.Total)
	fmt.Fprintf(&b, "| Context tokens | %d |\n", d.ContextTokens)
	fmt.Fprintf(&b, "| Memory saved | %.1f GB |\n", d.MemorySavedGB)
	fmt.Fprintf(&b, "| Local cost | $%.4f |\n", d.LocalCostUSD)
	fmt.Fprintf(&b, "| Cloud cost | $%.4f |\n", d.CloudCostUSD)
	fmt.Fprintf(&b, "| Elapsed | %.2f min |\n", d.ElapsedMinutes)
	if d.OffloadEnabled {
		fmt.Fprintf(&b, "| Estimated without offload | %.2f min |\n", d.EstimatedMinutesWithoutOffload)
	}
	fmt.Fprintf(&b, "| Cumulative tokens | %d in / %d out |\n", d.CumulativeInputTokens, d.CumulativeOutputTokens)
	return b.String()
}

func (c *Console) paint(style lipgloss.Style, text string) string {
	if !c.useColor {
		return text
	}
	return style.Render(text)
}

func (c *Console) printf(format string, args ...any) {
	fmt.Fprintf(c.writer, format, args...)
}
