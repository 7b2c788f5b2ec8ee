package events

import (
	"fmt"
	"math"
	"time"

	"github.com/hugo-lorenzo-mato/memwall/internal/core"
)

// Frame is one outbound message: {"type": ..., "data": {...}}.
type Frame struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

// InitData is the wire form of Init.
type InitData struct {
	RunID          string         `json:"run_id"`
	Scenario       string         `json:"scenario"`
	Tier           string         `json:"tier"`
	OffloadEnabled bool           `json:"offload_enabled"`
	Documents      []DocumentInfo `json:"documents"`
}

// ThoughtData is the wire form of Thought.
type ThoughtData struct {
	Text          string   `json:"text"`
	Author        string   `json:"author"`
	Status        string   `json:"status"`
	StepType      string   `json:"step_type"`
	Phase         string   `json:"phase,omitempty"`
	RelatedDocIDs []string `json:"related_doc_ids"`
}

// MemoryData is the wire form of Memory. Sizes are GB.
type MemoryData struct {
	Timestamp     time.Time `json:"timestamp"`
	RAMUsedGB     float64   `json:"ram_used_gb"`
	RAMTotalGB    float64   `json:"ram_total_gb"`
	RAMPercent    float64   `json:"ram_percent"`
	SwapUsedGB    float64   `json:"swap_used_gb"`
	ContextTokens int       `json:"context_tokens"`
	KVCacheGB     float64   `json:"kv_cache_gb"`
	LoadedModel   string    `json:"loaded_model"`
	Staleness     int       `json:"staleness"`
	Gap           bool      `json:"gap"`
}

// DocumentData is the wire form of Document.
type DocumentData struct {
	Name      string  `json:"name"`
	Index     int     `json:"index"`
	Total     int     `json:"total"`
	Category  string  `json:"category"`
	SizeBytes int64   `json:"size_bytes"`
	SizeMB    float64 `json:"size_mb"`
}

// DocumentStatusData is the wire form of DocumentStatus.
type DocumentStatusData struct {
	Index  int    `json:"index"`
	Status string `json:"status"`
}

// PerformanceData is the wire form of Performance.
type PerformanceData struct {
	TTFTMillis      float64 `json:"ttft_ms"`
	TokensPerSecond float64 `json:"tokens_per_second"`
	LatencyMillis   float64 `json:"latency_ms"`
	Status          string  `json:"status"`
	Measured        bool    `json:"measured"`
}

// StatusData is the wire form of Status.
type StatusData struct {
	Message string `json:"message"`
}

// MetricData is the wire form of Metric.
type MetricData struct {
	Name  string `json:"name"`
	Value int    `json:"value"`
	Label string `json:"label,omitempty"`
}

// CompleteData is the wire form of Complete.
type CompleteData struct {
	Processed      int            `json:"documents_processed"`
	Total          int            `json:"total_documents"`
	PeakRAMGB      float64        `json:"peak_ram_gb"`
	PeakSwapGB     float64        `json:"peak_swap_gb"`
	SwapDeltaGB    float64        `json:"swap_delta_gb"`
	Findings       map[string]int `json:"findings"`
	ElapsedSeconds float64        `json:"elapsed_seconds"`
}

// CrashData is the wire form of Crash.
type CrashData struct {
	Reason             string     `json:"reason"`
	Processed          int        `json:"documents_processed"`
	Total              int        `json:"total_documents"`
	RequiredCapacityGB float64    `json:"required_capacity_gb"`
	SwapDeltaGB        float64    `json:"swap_delta_gb"`
	Snapshot           MemoryData `json:"memory_snapshot"`
}

// ImpactSummaryData is the wire form of ImpactSummary.
type ImpactSummaryData struct {
	Processed                      int     `json:"documents_processed"`
	Total                          int     `json:"total_documents"`
	ContextTokens                  int     `json:"context_tokens"`
	MemorySavedGB                  float64 `json:"memory_saved_gb"`
	LocalCostUSD                   float64 `json:"local_cost_usd"`
	CloudCostUSD                   float64 `json:"cloud_cost_usd"`
	ElapsedMinutes                 float64 `json:"elapsed_minutes"`
	EstimatedMinutesWithoutOffload float64 `json:"estimated_minutes_without_offload"`
	OffloadEnabled                 bool    `json:"offload_enabled"`
	CumulativeInputTokens          int     `json:"cumulative_input_tokens"`
	CumulativeOutputTokens         int     `json:"cumulative_output_tokens"`
}

// Encode converts an event to its wire frame.
func Encode(e Event) (Frame, error) {
	var data any
	switch ev := e.(type) {
	case Init:
		docs := ev.Documents
		if docs == nil {
			docs = []DocumentInfo{}
		}
		data = InitData{
			RunID:          ev.RunID,
			Scenario:       ev.Scenario,
			Tier:           ev.Tier,
			OffloadEnabled: ev.OffloadEnabled,
			Documents:      docs,
		}
	case Thought:
		related := ev.RelatedDocIDs
		if related == nil {
			related = []string{}
		}
		data = ThoughtData{
			Text:          ev.Text,
			Author:        ev.Author,
			Status:        ev.Status,
			StepType:      string(ev.StepType),
			Phase:         ev.Phase,
			RelatedDocIDs: related,
		}
	case Memory:
		data = memoryData(ev.Sample)
	case Document:
		data = DocumentData{
			Name:      ev.Name,
			Index:     ev.Index,
			Total:     ev.Total,
			Category:  ev.Category,
			SizeBytes: ev.SizeBytes,
			SizeMB:    round(float64(ev.SizeBytes)/(1<<20), 2),
		}
	case DocumentStatus:
		data = DocumentStatusData{Index: ev.Index, Status: string(ev.Status)}
	case Performance:
		data = PerformanceData{
			TTFTMillis:      round(float64(ev.TTFT)/float64(time.Millisecond), 1),
			TokensPerSecond: round(ev.TokensPerSecond, 1),
			LatencyMillis:   round(float64(ev.Latency)/float64(time.Millisecond), 1),
			Status:          ev.Status,
			Measured:        ev.Measured,
		}
	case Status:
		data = StatusData{Message: ev.Message}
	case Metric:
		data = MetricData{Name: ev.Name, Value: ev.Value, Label: ev.Label}
	case Complete:
		findings := ev.Findings
		if findings == nil {
			findings = map[string]int{}
		}
		data = CompleteData{
			Processed:      ev.Processed,
			Total:          ev.Total,
			PeakRAMGB:      gb(ev.PeakMemBytes),
			PeakSwapGB:     gb(ev.PeakSwapBytes),
			SwapDeltaGB:    signedGB(ev.SwapDelta),
			Findings:       findings,
			ElapsedSeconds: round(ev.Elapsed.Seconds(), 1),
		}
	case Crash:
		data = CrashData{
			Reason:             ev.Record.Reason,
			Processed:          ev.Record.Processed,
			Total:              ev.Record.Total,
			RequiredCapacityGB: gb(ev.Record.RequiredCapacityBytes),
			SwapDeltaGB:        signedGB(ev.Record.SwapDeltaBytes),
			Snapshot:           memoryData(ev.Record.Snapshot),
		}
	case ImpactSummary:
		data = ImpactSummaryData{
			Processed:                      ev.Processed,
			Total:                          ev.Total,
			ContextTokens:                  ev.ContextTokens,
			MemorySavedGB:                  gb(ev.MemorySavedBytes),
			LocalCostUSD:                   round(ev.LocalCostUSD, 4),
			CloudCostUSD:                   round(ev.CloudCostUSD, 4),
			ElapsedMinutes:                 round(ev.Elapsed.Minutes(), 2),
			EstimatedMinutesWithoutOffload: round(ev.EstimatedWithoutOffload.Minutes(), 2),
			OffloadEnabled:                 ev.OffloadEnabled,
			CumulativeInputTokens:          ev.CumulativeInputTokens,
			CumulativeOutputTokens:         ev.CumulativeOutputTokens,
		}
	default:
		return Frame{}, fmt.Errorf("unknown event type %T", e)
	}
	return Frame{Type: e.EventType(), Data: data}, nil
}

func memoryData(s core.TelemetrySample) MemoryData {
	return MemoryData{
		Timestamp:     s.Timestamp,
		RAMUsedGB:     gb(s.MemUsedBytes),
		RAMTotalGB:    gb(s.MemTotalBytes),
		RAMPercent:    round(s.MemPercent(), 1),
		SwapUsedGB:    gb(s.SwapUsedBytes),
		ContextTokens: s.ContextTokens,
		KVCacheGB:     gb(s.KVCacheBytes),
		LoadedModel:   s.LoadedModel,
		Staleness:     s.Staleness,
		Gap:           s.Gap,
	}
}

func gb(b uint64) float64 {
	return round(core.BytesToGB(b), 3)
}

func signedGB(b int64) float64 {
	if b < 0 {
		return -gb(uint64(-b))
	}
	return gb(uint64(b))
}

func round(v float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(v*p) / p
}
