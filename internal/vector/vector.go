// Package vector wraps the external nearest-neighbor index behind a small
// client interface: upsert-by-id, query-by-vector-with-filter, and
// delete-by-ids.
//
// Two implementations are provided: Postgres (pgvector, production) and
// Memory (exact scan, tests and dev mode). The Sweeper implements bulk
// deletion as a query-then-delete loop, since the query API pages at a hard
// cap and the index has no delete-by-filter primitive.
package vector

import (
	"context"
	"errors"

	"github.com/murachan/murachan/internal/chunk"
)

// Hard per-call limits of the index. Page sizes used by callers are
// configuration; these are the ceilings they are validated against.
const (
	// MaxTopK is the maximum matches a single query returns when full
	// metadata is requested.
	MaxTopK = 50

	// MaxUpsertBatch is the maximum records per upsert call. The client
	// does not split oversized batches; batching is the ingestion
	// coordinator's job.
	MaxUpsertBatch = 100
)

var (
	// ErrDimensionMismatch indicates a vector's length does not match the
	// index's configured dimension. This is a configuration error, fatal
	// to the operation, never a per-item failure.
	ErrDimensionMismatch = errors.New("vector dimension mismatch")

	// ErrBatchTooLarge indicates an upsert batch exceeds MaxUpsertBatch.
	ErrBatchTooLarge = errors.New("upsert batch exceeds index limit")

	// ErrTopKTooLarge indicates a query requested more than MaxTopK
	// matches.
	ErrTopKTooLarge = errors.New("topK exceeds index limit")
)

// Record is the persisted unit: a chunk's embedding plus its metadata, keyed
// by the deterministic chunk id "{source}-{ordinal}".
type Record struct {
	ID     string
	Values []float32
	Meta   chunk.Metadata
}

// Match is a query result: the stored record and its similarity score.
// Scores are provider-defined and monotonic — higher is better; no specific
// range is assumed.
type Match struct {
	Record
	Score float64
}

// QueryOptions narrows a similarity query.
type QueryOptions struct {
	// TopK is the maximum number of matches. Required, capped at MaxTopK.
	TopK int

	// Source, when non-empty, restricts matches to records whose
	// metadata source equals it.
	Source string
}

// Index is the client interface over the nearest-neighbor store.
//
// Upsert is idempotent by ID: upserting the same id twice overwrites, never
// duplicates. DeleteByIDs treats missing ids as no-ops and returns the
// number of records actually removed.
type Index interface {
	Upsert(ctx context.Context, records []Record) error
	Query(ctx context.Context, values []float32, opts QueryOptions) ([]Match, error)
	DeleteByIDs(ctx context.Context, ids []string) (int, error)

	// Dimension is the index's configured vector width, fixed at
	// creation time.
	Dimension() int
}

// validateQuery applies the shared option checks for Index implementations.
func validateQuery(opts QueryOptions) error {
	if opts.TopK <= 0 || opts.TopK > MaxTopK {
		return ErrTopKTooLarge
	}
	return nil
}

// validateUpsert applies the shared batch checks for Index implementations.
func validateUpsert(records []Record, dimension int) error {
	if len(records) > MaxUpsertBatch {
		return ErrBatchTooLarge
	}
	for _, r := range records {
		if len(r.Values) != dimension {
			return ErrDimensionMismatch
		}
	}
	return nil
}
