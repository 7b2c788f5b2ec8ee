// Package events defines the run event stream: a closed set of event types,
// their wire encoding, and the ordered multiplexer that feeds a transport.
package events

import (
	"time"

	"github.com/hugo-lorenzo-mato/memwall/internal/core"
)

// Event type constants as they appear on the wire.
const (
	TypeInit           = "init"
	TypeThought        = "thought"
	TypeMemory         = "memory"
	TypeDocument       = "document"
	TypeDocumentStatus = "document_status"
	TypePerformance    = "performance"
	TypeStatus         = "status"
	TypeMetric         = "metric"
	TypeComplete       = "complete"
	TypeCrash          = "crash"
	TypeImpactSummary  = "impact_summary"
)

// Event is implemented only by the types in this file. Adding a type means
// adding a case to Encode.
type Event interface {
	EventType() string
	sealed()
}

// DocumentInfo is the per-document metadata announced at run start.
type DocumentInfo struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Category  string `json:"category"`
	SizeBytes int64  `json:"size_bytes"`
}

// Init announces the run and the documents it will process.
type Init struct {
	RunID          string
	Scenario       string
	Tier           string
	OffloadEnabled bool
	Documents      []DocumentInfo
}

// Thought is narrative output from a generation step.
type Thought struct {
	Text          string
	Author        string
	Status        string
	StepType      core.StepType
	Phase         string
	RelatedDocIDs []string
}

// Memory carries one telemetry sample.
type Memory struct {
	Sample core.TelemetrySample
}

// Document announces a document entering processing.
type Document struct {
	Name      string
	Index     int
	Total     int
	Category  string
	SizeBytes int64
}

// DocumentStatus reports a document's processing state.
type DocumentStatus struct {
	Index  int
	Status core.DocumentStatus
}

// Performance reports generation speed. Measured is false for values
// derived from memory pressure rather than an actual generation.
type Performance struct {
	TTFT            time.Duration
	TokensPerSecond float64
	Latency         time.Duration
	Status          string
	Measured        bool
}

// Status is a free-text activity label.
type Status struct {
	Message string
}

// Metric updates a named counter.
type Metric struct {
	Name  string
	Value int
	Label string
}

// Complete summarizes a successful run.
type Complete struct {
	Processed     int
	Total         int
	PeakMemBytes  uint64
	PeakSwapBytes uint64
	SwapDelta     int64
	Findings      map[string]int
	Elapsed       time.Duration
}

// Crash carries the terminal crash record.
type Crash struct {
	Record core.CrashRecord
}

// ImpactSummary closes a completed run with cost and capacity estimates.
type ImpactSummary struct {
	Processed               int
	Total                   int
	ContextTokens           int
	MemorySavedBytes        uint64
	LocalCostUSD            float64
	CloudCostUSD            float64
	Elapsed                 time.Duration
	EstimatedWithoutOffload time.Duration
	OffloadEnabled          bool
	CumulativeInputTokens   int
	CumulativeOutputTokens  int
}

func (Init) EventType() string           { return TypeInit }
func (Thought) EventType() string        { return TypeThought }
func (Memory) EventType() string         { return TypeMemory }
func (Document) EventType() string       { return TypeDocument }
func (DocumentStatus) EventType() string { return TypeDocumentStatus }
func (Performance) EventType() string    { return TypePerformance }
func (Status) EventType() string         { return TypeStatus }
func (Metric) EventType() string         { return TypeMetric }
func (Complete) EventType() string       { return TypeComplete }
func (Crash) EventType() string          { return TypeCrash }
func (ImpactSummary) EventType() string  { return TypeImpactSummary }

func (Init) sealed()           {}
func (Thought) sealed()        {}
func (Memory) sealed()         {}
func (Document) sealed()       {}
func (DocumentStatus) sealed() {}
func (Performance) sealed()    {}
func (Status) sealed()         {}
func (Metric) sealed()         {}
func (Complete) sealed()       {}
func (Crash) sealed()          {}
func (ImpactSummary) sealed()  {}

// IsTerminalType reports whether a frame of this type ends a run's
// stream.
func IsTerminalType(eventType string) bool {
	return eventType == TypeCrash || eventType == TypeImpactSummary
}
