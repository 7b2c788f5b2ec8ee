package generation

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScriptedGenerator_ReplaysInOrder(t *testing.T) {
	g := &ScriptedGenerator{Responses: []string{"one\ntwo", "three"}}
	ctx := context.Background()

	for _, want := range []string{"one\ntwo", "three", "one\ntwo"} {
		ch, err := g.Generate(ctx, Request{Model: "m", Prompt: strings.Repeat("x", 40)})
		require.NoError(t, err)
		chunks := collect(t, ch)

		var text strings.Builder
		for _, c := range chunks[:len(chunks)-1] {
			text.WriteString(c.Text)
		}
		last := chunks[len(chunks)-1]
		assert.Equal(t, want, text.String())
		assert.True(t, last.Done)
		assert.Equal(t, 10, last.InputTokens)
	}
}

func TestScriptedGenerator_LoadDelayOnModelChange(t *testing.T) {
	g := &ScriptedGenerator{LoadDelay: 50 * time.Millisecond, Responses: []string{"ok"}}

	start := time.Now()
	collect(t, mustGenerate(t, g, "a"))
	assert.GreaterOrEqual(t, time.Since(start), 50*time.Millisecond)

	start = time.Now()
	collect(t, mustGenerate(t, g, "a"))
	assert.Less(t, time.Since(start), 50*time.Millisecond)
}

func TestScriptedGenerator_DefaultResponsesCarryTags(t *testing.T) {
	for _, r := range NewScriptedGenerator(0).Responses {
		assert.Regexp(t, `\[(TOPIC|PATTERN|INSIGHT|FLAG):`, r)
	}
}

func mustGenerate(t *testing.T, g Generator, model string) <-chan Chunk {
	t.Helper()
	ch, err := g.Generate(context.Background(), Request{Model: model})
	require.NoError(t, err)
	return ch
}
