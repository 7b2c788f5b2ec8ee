// Package corpus supplies the documents a run processes. Metadata is listed
// up front; content is loaded one batch at a time.
package corpus

import (
	"context"

	"github.com/hugo-lorenzo-mato/memwall/internal/core"
)

// Source lists documents and loads their content on demand.
type Source interface {
	Documents(ctx context.Context) ([]core.Document, error)
	// Load returns at most limit bytes of content. A negative limit reads
	// the whole document.
	Load(ctx context.Context, doc core.Document, limit int64) ([]byte, error)
}

// Slice is one category's share of a corpus, in processing order.
type Slice struct {
	Category     string
	Count        int
	AvgSizeBytes int64
}
