package console

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hugo-lorenzo-mato/memwall/internal/core"
	"github.com/hugo-lorenzo-mato/memwall/internal/events"
)

func send(t *testing.T, c *Console, e events.Event) {
	t.Helper()
	f, err := events.Encode(e)
	require.NoError(t, err)
	require.NoError(t, c.Send(context.Background(), f))
}

func TestConsole_PlainRun(t *testing.T) {
	var buf bytes.Buffer
	c := New(&buf, false, false)

	send(t, c, events.Init{RunID: "r1", Scenario: "pmm", Tier: "lite", OffloadEnabled: true,
		Documents: []events.DocumentInfo{{ID: "a"}, {ID: "b"}}})
	send(t, c, events.Status{Message: "Phase 1/5: Review"})
	send(t, c, events.Document{Name: "arxiv_001.txt", Index: 0, Total: 2, Category: "paper", SizeBytes: 1 << 20})
	send(t, c, events.Memory{Sample: core.TelemetrySample{MemUsedBytes: core.GiB, MemTotalBytes: 2 * core.GiB}})
	send(t, c, events.Thought{Text: "Reviewing", Author: "@Reviewer", Status: "PLANNING"})
	send(t, c, events.Metric{Name: "key_topics", Value: 1, Label: "HBM"})
	send(t, c, events.Performance{TTFT: 300 * time.Millisecond, TokensPerSecond: 40, Status: "optimal", Measured: true})

	out := buf.String()
	assert.Contains(t, out, ">>> pmm/lite  offload on  2 documents")
	assert.Contains(t, out, "--- Phase 1/5: Review")
	assert.Contains(t, out, "[1/2] arxiv_001.txt (paper, 1.00 MB)")
	assert.Contains(t, out, "[PLANNING] @Reviewer Reviewing")
	assert.Contains(t, out, "+ key_topics: HBM (1)")
	assert.Contains(t, out, "measured ttft 300ms  40.0 tok/s")
	assert.NotContains(t, out, "ram 1.0/2.0 GB", "memory lines are verbose only")
}

func TestConsole_VerboseShowsMemory(t *testing.T) {
	var buf bytes.Buffer
	c := New(&buf, false, true)
	send(t, c, events.Memory{Sample: core.TelemetrySample{MemUsedBytes: core.GiB, MemTotalBytes: 2 * core.GiB, Staleness: 2}})
	send(t, c, events.Performance{TTFT: time.Second, TokensPerSecond: 12, Status: "critical"})

	out := buf.String()
	assert.Contains(t, out, "ram 1.0/2.0 GB (50%)")
	assert.Contains(t, out, "stale=2")
	assert.Contains(t, out, "expected ttft 1000ms")
}

func TestConsole_CrashAndImpact(t *testing.T) {
	var buf bytes.Buffer
	c := New(&buf, false, false)
	send(t, c, events.Crash{Record: core.CrashRecord{
		Reason:         core.CrashReasonUnifiedMemory,
		Processed:      4,
		Total:          18,
		SwapDeltaBytes: int64(core.GBToBytes(2.3)),
	}})
	send(t, c, events.ImpactSummary{Processed: 18, Total: 18, OffloadEnabled: true,
		EstimatedWithoutOffload: 3 * time.Minute, CumulativeInputTokens: 10, CumulativeOutputTokens: 5})

	out := buf.String()
	assert.Contains(t, out, "!!! CRASH: "+core.CrashReasonUnifiedMemory)
	assert.Contains(t, out, "Processed 4 of 18 documents")
	assert.Contains(t, out, "Swap grew 2.30 GB")
	assert.Contains(t, out, "| Documents processed | 18/18 |")
	assert.Contains(t, out, "| Estimated without offload | 3.00 min |")
	assert.Contains(t, out, "| Cumulative tokens | 10 in / 5 out |")
}

func TestConsole_ColorRendersImpact(t *testing.T) {
	var buf bytes.Buffer
	c := New(&buf, true, false)
	send(t, c, events.ImpactSummary{Processed: 1, Total: 1})
	assert.NotEmpty(t, buf.String())
}

func TestConsole_CancelledContext(t *testing.T) {
	c := New(&bytes.Buffer{}, false, false)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, c.Send(ctx, events.Frame{Type: events.TypeStatus, Data: events.StatusData{}}), context.Canceled)
}

func TestImpactMarkdown_OmitsEstimateWithoutOffload(t *testing.T) {
	md := ImpactMarkdown(events.ImpactSummaryData{Processed: 3, Total: 5})
	assert.Contains(t, md, "| Documents processed | 3/5 |")
	assert.NotContains(t, md, "without offload")
}
