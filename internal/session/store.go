// Package session persists run history and the token totals that carry
// across runs.
package session

import (
	"context"
	"time"

	"github.com/hugo-lorenzo-mato/memwall/internal/core"
)

// RunRecord is the stored outcome of one run.
type RunRecord struct {
	ID             string         `json:"id"`
	Scenario       string         `json:"scenario"`
	Tier           string         `json:"tier"`
	OffloadEnabled bool           `json:"offload_enabled"`
	Status         core.RunStatus `json:"status"`
	Processed      int            `json:"documents_processed"`
	Total          int            `json:"total_documents"`
	InputTokens    int            `json:"input_tokens"`
	OutputTokens   int            `json:"output_tokens"`
	PeakMemBytes   uint64         `json:"peak_mem_bytes"`
	PeakSwapBytes  uint64         `json:"peak_swap_bytes"`
	SwapDeltaBytes int64          `json:"swap_delta_bytes"`
	Findings       map[string]int `json:"findings,omitempty"`
	Reason         string         `json:"reason,omitempty"`
	StartedAt      time.Time      `json:"started_at"`
	Elapsed        time.Duration  `json:"elapsed_ns"`
}

// TokenTotals are cumulative token counts over all stored runs.
type TokenTotals struct {
	Runs         int `json:"runs"`
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

// Store persists run records.
type Store interface {
	SaveRun(ctx context.Context, rec RunRecord) error
	// GetRun returns nil and no error when the run does not exist.
	GetRun(ctx context.Context, id string) (*RunRecord, error)
	// ListRuns returns the most recent runs first. limit <= 0 means all.
	ListRuns(ctx context.Context, limit int) ([]RunRecord, error)
	Totals(ctx context.Context) (TokenTotals, error)
	Close() error
}
