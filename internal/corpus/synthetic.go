package corpus

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/hugo-lorenzo-mato/memwall/internal/core"
)

const defaultAvgSize = 8 * 1024

// SyntheticSource generates a deterministic corpus from a category mix.
// Names and sizes depend only on the slices, so two sources built from the
// same mix list identical documents.
type SyntheticSource struct {
	slices []Slice
}

// NewSyntheticSource creates a synthetic source.
func NewSyntheticSource(slices []Slice) *SyntheticSource {
	return &SyntheticSource{slices: slices}
}

// Documents lists the generated corpus.
func (s *SyntheticSource) Documents(ctx context.Context) ([]core.Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var docs []core.Document
	for _, slice := range s.slices {
		avg := slice.AvgSizeBytes
		if avg <= 0 {
			avg = defaultAvgSize
		}
		for i := 1; i <= slice.Count; i++ {
			name := syntheticName(slice.Category, i)
			docs = append(docs, core.Document{
				ID:        strings.TrimSuffix(name, filepath.Ext(name)),
				Name:      name,
				Category:  slice.Category,
				SizeBytes: jitter(avg, name),
			})
		}
	}
	return docs, nil
}

// Load renders filler text of the document's size.
func (s *SyntheticSource) Load(ctx context.Context, doc core.Document, limit int64) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	size := doc.SizeBytes
	if limit >= 0 && limit < size {
		size = limit
	}
	header := fmt.Sprintf("# %s (%s)\n", doc.Name, doc.Category)
	var b strings.Builder
	b.Grow(int(size))
	b.WriteString(header)
	for int64(b.Len()) < size {
		b.WriteString(fillerFor(doc.Category))
	}
	return []byte(b.String()[:size]), nil
}

func syntheticName(category string, i int) string {
	switch category {
	case core.CategoryCompetitor:
		return fmt.Sprintf("competitor_%s.txt", letters(i))
	case core.CategoryPaper:
		return fmt.Sprintf("arxiv_%03d.txt", i)
	case core.CategorySocial:
		return fmt.Sprintf("social_signal_%d.txt", i)
	case core.CategoryNews:
		return fmt.Sprintf("ces_news_%02d.txt", i)
	case core.CategoryDossier:
		return fmt.Sprintf("competitive_dossier_%d.txt", i)
	case core.CategoryDocumentation:
		if i == 1 {
			return "README.md"
		}
		return fmt.Sprintf("README_%d.md", i)
	case core.CategoryVideo:
		return fmt.Sprintf("video_transcript_%d.txt", i)
	case core.CategoryImage:
		return fmt.Sprintf("infographic_%d.png", i)
	default:
		return fmt.Sprintf("%s_%03d.txt", category, i)
	}
}

// letters maps 1 -> a, 26 -> z, 27 -> aa.
func letters(i int) string {
	var out []byte
	for i > 0 {
		i--
		out = append([]byte{byte('a' + i%26)}, out...)
		i /= 26
	}
	return string(out)
}

// jitter spreads sizes within +/-25% of avg using an FNV-1a hash of name.
func jitter(avg int64, name string) int64 {
	var h uint32 = 2166136261
	for i := 0; i < len(name); i++ {
		h ^= uint32(name[i])
		h *= 16777619
	}
	spread := avg / 2
	if spread == 0 {
		return avg
	}
	return avg - avg/4 + int64(h)%spread
}

func fillerFor(category string) string {
	switch category {
	case core.CategoryPaper:
		return "We evaluate multi-agent pipelines whose working set grows with context length. "
	case core.CategorySocial:
		return "Ran out of VRAM again trying to keep a long context resident. "
	case core.CategoryCompetitor:
		return "The new release adds an agent panel that plans and executes multi-step tasks. "
	default:
		return "Local inference remains bounded by available memory capacity. "
	}
}
