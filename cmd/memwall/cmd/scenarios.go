package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/hugo-lorenzo-mato/memwall/internal/config"
)

var scenariosCmd = &cobra.Command{
	Use:   "scenarios [id]",
	Short: "List scenarios or show one in detail",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runScenarios,
}

var scenariosJSON bool

var (
	headingStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#7c3aed"))
	dimStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("#6b7280"))
)

func init() {
	rootCmd.AddCommand(scenariosCmd)
	scenariosCmd.Flags().BoolVar(&scenariosJSON, "json", false, "Output as JSON")
}

func runScenarios(cmd *cobra.Command, args []string) error {
	snap, err := loadSnapshot()
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()

	if len(args) == 1 {
		def, err := snap.Catalog.Lookup(args[0])
		if err != nil {
			return err
		}
		if scenariosJSON {
			return writeJSON(out, def)
		}
		printScenario(out, def, useColor())
		return nil
	}

	defs := snap.Catalog.List()
	if scenariosJSON {
		return writeJSON(out, defs)
	}
	color := useColor()
	for _, def := range defs {
		fmt.Fprintf(out, "%s  %s\n", style(color, headingStyle, def.ID), def.Name)
		for _, t := range def.Tiers {
			fmt.Fprintf(out, "  %-10s %3d docs  target %5.1f GB  %s\n",
				t.Name, t.TotalDocuments(), t.MemoryTargetGB, style(color, dimStyle, t.Description))
		}
	}
	return nil
}

func printScenario(out io.Writer, def config.ScenarioDef, color bool) {
	fmt.Fprintf(out, "%s  %s\n", style(color, headingStyle, def.ID), def.Name)
	if def.Description != "" {
		fmt.Fprintln(out, def.Description)
	}
	fmt.Fprintln(out)
	fmt.Fprintln(out, style(color, headingStyle, "Tiers"))
	for _, t := range def.Tiers {
		mix := make([]string, 0, len(t.Mix))
		for _, m := range t.Mix {
			mix = append(mix, fmt.Sprintf("%d %s", m.Count, m.Category))
		}
		fmt.Fprintf(out, "  %-10s %s\n", t.Name, strings.Join(mix, ", "))
	}
	fmt.Fprintln(out)
	fmt.Fprintln(out, style(color, headingStyle, "Phases"))
	for _, p := range def.Phases {
		final := ""
		if p.Final {
			final = " (final)"
		}
		fmt.Fprintf(out, "  %5.1f%%  %-22s %-14s %s%s\n", p.TriggerPercent, p.ID, p.Model, p.Agent, final)
	}
}

func style(color bool, s lipgloss.Style, text string) string {
	if !color {
		return text
	}
	return s.Render(text)
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
