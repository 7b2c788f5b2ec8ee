package scheduler

import (
	"regexp"
	"strings"

	"github.com/hugo-lorenzo-mato/memwall/internal/events"
)

// Metric names produced from tagged generation output.
const (
	MetricTopics   = "key_topics"
	MetricPatterns = "patterns_detected"
	MetricInsights = "insights_generated"
	MetricFlags    = "critical_flags"
)

var tagPattern = regexp.MustCompile(`(?i)\[(TOPIC|PATTERN|INSIGHT|FLAG):\s*([^\]]+)\]`)

var tagMetric = map[string]string{
	"TOPIC":   MetricTopics,
	"PATTERN": MetricPatterns,
	"INSIGHT": MetricInsights,
	"FLAG":    MetricFlags,
}

// findings counts distinct tagged values per metric for one run.
type findings struct {
	seen   map[string]map[string]bool
	counts map[string]int
}

func newFindings() *findings {
	return &findings{
		seen:   make(map[string]map[string]bool),
		counts: map[string]int{MetricTopics: 0, MetricPatterns: 0, MetricInsights: 0, MetricFlags: 0},
	}
}

// Extract returns one Metric event per newly seen tag value.
func (f *findings) Extract(text string) []events.Metric {
	var out []events.Metric
	for _, m := range tagPattern.FindAllStringSubmatch(text, -1) {
		name := tagMetric[strings.ToUpper(m[1])]
		value := strings.TrimSpace(m[2])
		key := strings.ToLower(value)
		if f.seen[name] == nil {
			f.seen[name] = make(map[string]bool)
		}
		if f.seen[name][key] {
			continue
		}
		f.seen[name][key] = true
		f.counts[name]++
		out = append(out, events.Metric{Name: name, Value: f.counts[name], Label: value})
	}
	return out
}

// Counts returns a copy of the per-metric totals.
func (f *findings) Counts() map[string]int {
	out := make(map[string]int, len(f.counts))
	for k, v := range f.counts {
		out[k] = v
	}
	return out
}
