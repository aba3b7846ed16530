package vector

import (
	"context"
	"math"
	"sort"
	"sync"
)

// Memory is an in-process Index with exact cosine scan. It backs unit tests
// and the local dev mode; behavior mirrors Postgres including the hard
// per-call caps.
//
// Safe for concurrent use.
type Memory struct {
	mu        sync.RWMutex
	records   map[string]Record
	dimension int
}

// NewMemory creates an empty in-memory index with the given dimension.
func NewMemory(dimension int) *Memory {
	return &Memory{
		records:   make(map[string]Record),
		dimension: dimension,
	}
}

// Dimension returns the configured vector width.
func (m *Memory) Dimension() int {
	return m.dimension
}

// Upsert inserts or overwrites records by ID.
func (m *Memory) Upsert(ctx context.Context, records []Record) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := validateUpsert(records, m.dimension); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range records {
		stored := r
		stored.Values = append([]float32(nil), r.Values...)
		m.records[r.ID] = stored
	}
	return nil
}

// Query returns up to TopK records by descending cosine similarity,
// optionally filtered to one source.
func (m *Memory) Query(ctx context.Context, values []float32, opts QueryOptions) ([]Match, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := validateQuery(opts); err != nil {
		return nil, err
	}
	if len(values) != m.dimension {
		return nil, ErrDimensionMismatch
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	matches := make([]Match, 0, len(m.records))
	for _, r := range m.records {
		if opts.Source != "" && r.Meta.Source != opts.Source {
			continue
		}
		matches = append(matches, Match{Record: r, Score: cosine(values, r.Values)})
	}

	// Sort by score descending, id ascending for a stable order.
	sort.Slice(matches, func(i, j int) bool {
		if matches[i].Score != matches[j].Score {
			return matches[i].Score > matches[j].Score
		}
		return matches[i].ID < matches[j].ID
	})

	if len(matches) > opts.TopK {
		matches = matches[:opts.TopK]
	}
	return matches, nil
}

// DeleteByIDs removes the given ids; missing ids are no-ops.
func (m *Memory) DeleteByIDs(ctx context.Context, ids []string) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	deleted := 0
	for _, id := range ids {
		if _, ok := m.records[id]; ok {
			delete(m.records, id)
			deleted++
		}
	}
	return deleted, nil
}

// Count returns the number of stored records. Test helper.
func (m *Memory) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.records)
}

// Has reports whether a record with the given id is stored. Test helper.
func (m *Memory) Has(id string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.records[id]
	return ok
}

// cosine computes cosine similarity; zero vectors score 0 rather than NaN so
// sweep queries with a dummy vector behave.
func cosine(a, b []float32) float64 {
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
