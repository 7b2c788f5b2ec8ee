package corpus

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/hugo-lorenzo-mato/memwall/internal/core"
	"github.com/hugo-lorenzo-mato/memwall/internal/fsutil"
)

// DirSource reads a corpus laid out as one subdirectory per category.
// A category's directory may use the singular or plural name
// ("paper" or "papers"). Files are taken in name order, up to the slice's
// count when one is given.
type DirSource struct {
	root   string
	slices []Slice
	paths  map[string]string
}

// NewDirSource creates a source over root.
func NewDirSource(root string, slices []Slice) *DirSource {
	return &DirSource{root: root, slices: slices, paths: make(map[string]string)}
}

// ResolveDir picks the most specific corpus directory that exists:
// base/scenario/tier, then base/scenario, then base.
func ResolveDir(base, scenario, tier string) string {
	for _, dir := range []string{
		filepath.Join(base, scenario, tier),
		filepath.Join(base, scenario),
	} {
		if info, err := os.Stat(dir); err == nil && info.IsDir() {
			return dir
		}
	}
	return base
}

// Documents lists the corpus in slice order. A document's ID is its file
// name without extension; when that is already taken it is qualified by
// category, then by the full file name, so IDs stay unique.
func (s *DirSource) Documents(ctx context.Context) ([]core.Document, error) {
	s.paths = make(map[string]string)
	var docs []core.Document
	for _, slice := range s.slices {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		dir, ok := s.categoryDir(slice.Category)
		if !ok {
			continue
		}
		entries, err := os.ReadDir(dir)
		if err != nil {
			return nil, fmt.Errorf("reading %s: %w", dir, err)
		}
		sort.Slice(entries, func(i, j int) bool { return entries[i].Name() < entries[j].Name() })

		taken := 0
		for _, e := range entries {
			if e.IsDir() || strings.HasPrefix(e.Name(), ".") {
				continue
			}
			if slice.Count > 0 && taken >= slice.Count {
				break
			}
			info, err := e.Info()
			if err != nil {
				return nil, fmt.Errorf("stat %s: %w", e.Name(), err)
			}
			id := s.uniqueID(slice.Category, e.Name())
			s.paths[id] = filepath.Join(dir, e.Name())
			docs = append(docs, core.Document{
				ID:        id,
				Name:      e.Name(),
				Category:  slice.Category,
				SizeBytes: info.Size(),
			})
			taken++
		}
	}
	if len(docs) == 0 {
		return nil, core.ErrNotFound("corpus documents", s.root)
	}
	return docs, nil
}

// Load reads a document listed by Documents.
func (s *DirSource) Load(ctx context.Context, doc core.Document, limit int64) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	path, ok := s.paths[doc.ID]
	if !ok {
		return nil, core.ErrNotFound("document", doc.ID)
	}
	return fsutil.ReadFilePrefix(path, limit)
}

func (s *DirSource) uniqueID(category, name string) string {
	stem := strings.TrimSuffix(name, filepath.Ext(name))
	candidates := []string{stem, category + "/" + stem, category + "/" + name}
	for _, id := range candidates {
		if _, taken := s.paths[id]; !taken {
			return id
		}
	}
	return candidates[len(candidates)-1]
}

func (s *DirSource) categoryDir(category string) (string, bool) {
	for _, name := range []string{category, category + "s"} {
		dir := filepath.Join(s.root, name)
		if info, err := os.Stat(dir); err == nil && info.IsDir() {
			return dir, true
		}
	}
	return "", false
}
