package session

import (
	"context"
	"sort"
	"sync"
)

// MemoryStore keeps run history for the life of the process. It is used
// when persistence is disabled.
type MemoryStore struct {
	mu   sync.RWMutex
	runs map[string]RunRecord
}

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{runs: make(map[string]RunRecord)}
}

func (m *MemoryStore) SaveRun(_ context.Context, rec RunRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec.Findings = copyFindings(rec.Findings)
	m.runs[rec.ID] = rec
	return nil
}

func (m *MemoryStore) GetRun(_ context.Context, id string) (*RunRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rec, ok := m.runs[id]
	if !ok {
		return nil, nil
	}
	rec.Findings = copyFindings(rec.Findings)
	return &rec, nil
}

func (m *MemoryStore) ListRuns(_ context.Context, limit int) ([]RunRecord, error) {
	m.mu.RLock()
	out := make([]RunRecord, 0, len(m.runs))
	for _, rec := range m.runs {
		out = append(out, rec)
	}
	m.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if !out[i].StartedAt.Equal(out[j].StartedAt) {
			return out[i].StartedAt.After(out[j].StartedAt)
		}
		return out[i].ID < out[j].ID
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *MemoryStore) Totals(_ context.Context) (TokenTotals, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var t TokenTotals
	for _, rec := range m.runs {
		t.Runs++
		t.InputTokens += rec.InputTokens
		t.OutputTokens += rec.OutputTokens
	}
	return t, nil
}

func (m *MemoryStore) Close() error { return nil }

func copyFindings(in map[string]int) map[string]int {
	if in == nil {
		return nil
	}
	out := make(map[string]int, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
