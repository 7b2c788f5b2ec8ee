package testutil

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hugo-lorenzo-mato/memwall/internal/core"
	"github.com/hugo-lorenzo-mato/memwall/internal/events"
	"github.com/hugo-lorenzo-mato/memwall/internal/generation"
)

func TestSwapSampler_Grows(t *testing.T) {
	s := SwapSampler(0.5)
	assert.Zero(t, s.Sample().SwapUsedBytes)
	assert.Equal(t, core.GBToBytes(0.5), s.Sample().SwapUsedBytes)
	assert.Equal(t, core.GBToBytes(1.0), s.Sample().SwapUsedBytes)
}

func TestInstantGenerator(t *testing.T) {
	ch, err := InstantGenerator("hello", 3, 1).Generate(context.Background(), generation.Request{})
	require.NoError(t, err)

	var chunks []generation.Chunk
	for c := range ch {
		chunks = append(chunks, c)
	}
	require.Len(t, chunks, 2)
	assert.Equal(t, "hello", chunks[0].Text)
	assert.True(t, chunks[1].Done)
	assert.Equal(t, 3, chunks[1].InputTokens)
}

func TestFrameLog(t *testing.T) {
	var hooked int
	log := &FrameLog{OnSend: func(events.Frame) { hooked++ }}
	require.NoError(t, log.Send(context.Background(), events.Frame{Type: events.TypeInit}))
	require.NoError(t, log.Send(context.Background(), events.Frame{Type: events.TypeStatus}))

	assert.Equal(t, []string{events.TypeInit, events.TypeStatus}, log.Types())
	assert.Equal(t, events.TypeStatus, log.Last().Type)
	assert.Len(t, log.Frames(), 2)
	assert.Equal(t, 2, hooked)
}

func TestConfigAndSnapshot(t *testing.T) {
	cfg := Config(t)
	assert.Equal(t, "0s", cfg.Scheduler.DocumentPacing)
	assert.False(t, cfg.Session.Enabled)

	snap := Snapshot(cfg).Current()
	assert.Same(t, cfg, snap.Config)
	assert.Contains(t, snap.Catalog.IDs(), "pmm")
}

func TestTempFile(t *testing.T) {
	dir := t.TempDir()
	path := TempFile(t, dir, "a/b.txt", "content")
	assert.Equal(t, filepath.Join(dir, "a", "b.txt"), path)
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "content", string(data))
}
