package vector

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"

	"github.com/murachan/murachan/internal/chunk"
	"github.com/murachan/murachan/internal/log"
)

// querier is the common interface satisfied by both *pgxpool.Pool and pgx.Tx.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults
}

// queryTimeout bounds similarity queries so a slow index scan cannot block a
// conversational turn.
const queryTimeout = 10 * time.Second

// upsertSQL inserts or overwrites one record by id.
const upsertSQL = `INSERT INTO knowledge_chunks (id, embedding, metadata)
	VALUES ($1, $2, $3)
	ON CONFLICT (id) DO UPDATE
	SET embedding = EXCLUDED.embedding, metadata = EXCLUDED.metadata, updated_at = now()`

// Postgres is an Index backed by PostgreSQL + pgvector, cosine metric.
//
// The vector column width is fixed by migration; Dimension must match it.
// Safe for concurrent use.
type Postgres struct {
	pool      querier
	dimension int
	logger    log.Logger
}

// NewPostgres creates a pgvector-backed Index over an initialized pool.
// dimension must equal the vector column width created by the migrations.
func NewPostgres(pool *pgxpool.Pool, dimension int, logger log.Logger) (*Postgres, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	if dimension <= 0 {
		return nil, fmt.Errorf("%w: dimension %d", ErrDimensionMismatch, dimension)
	}
	if logger == nil {
		logger = log.NewNop()
	}
	return &Postgres{pool: pool, dimension: dimension, logger: logger}, nil
}

// Dimension returns the configured vector width.
func (p *Postgres) Dimension() int {
	return p.dimension
}

// Upsert writes one batch of records in a single round trip via pgx.Batch.
// The batch must already respect MaxUpsertBatch; oversized batches are
// rejected, not split.
func (p *Postgres) Upsert(ctx context.Context, records []Record) error {
	if len(records) == 0 {
		return nil
	}
	if err := validateUpsert(records, p.dimension); err != nil {
		return err
	}

	batch := &pgx.Batch{}
	for _, r := range records {
		meta, err := json.Marshal(r.Meta)
		if err != nil {
			return fmt.Errorf("marshaling metadata for %q: %w", r.ID, err)
		}
		batch.Queue(upsertSQL, r.ID, pgvector.NewVector(r.Values), meta)
	}

	results := p.pool.SendBatch(ctx, batch)
	defer func() {
		_ = results.Close()
	}()

	for range records {
		if _, err := results.Exec(); err != nil {
			return fmt.Errorf("upserting records: %w", err)
		}
	}

	p.logger.Debug("upserted records", "count", len(records))
	return nil
}

// Query returns up to TopK matches by descending cosine similarity. When
// opts.Source is set, matches are restricted with an equality filter on the
// metadata source field.
func (p *Postgres) Query(ctx context.Context, values []float32, opts QueryOptions) ([]Match, error) {
	if err := validateQuery(opts); err != nil {
		return nil, err
	}
	if len(values) != p.dimension {
		return nil, fmt.Errorf("%w: query vector has %d dimensions, index expects %d",
			ErrDimensionMismatch, len(values), p.dimension)
	}

	queryCtx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	vec := pgvector.NewVector(values)

	var rows pgx.Rows
	var err error
	if opts.Source != "" {
		rows, err = p.pool.Query(queryCtx,
			`SELECT id, embedding, metadata, 1 - (embedding <=> $1) AS score
			 FROM knowledge_chunks
			 WHERE metadata->>'source' = $2
			 ORDER BY embedding <=> $1
			 LIMIT $3`,
			vec, opts.Source, opts.TopK)
	} else {
		rows, err = p.pool.Query(queryCtx,
			`SELECT id, embedding, metadata, 1 - (embedding <=> $1) AS score
			 FROM knowledge_chunks
			 ORDER BY embedding <=> $1
			 LIMIT $2`,
			vec, opts.TopK)
	}
	if err != nil {
		return nil, fmt.Errorf("querying index: %w", err)
	}
	defer rows.Close()

	var matches []Match
	for rows.Next() {
		var (
			id       string
			stored   pgvector.Vector
			metaJSON []byte
			score    float64
		)
		if err := rows.Scan(&id, &stored, &metaJSON, &score); err != nil {
			return nil, fmt.Errorf("scanning match: %w", err)
		}

		var meta chunk.Metadata
		if err := json.Unmarshal(metaJSON, &meta); err != nil {
			p.logger.Warn("unparseable chunk metadata", "id", id, "error", err)
		}

		matches = append(matches, Match{
			Record: Record{ID: id, Values: stored.Slice(), Meta: meta},
			Score:  score,
		})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("reading matches: %w", err)
	}
	return matches, nil
}

// DeleteByIDs removes records by id; missing ids are no-ops.
func (p *Postgres) DeleteByIDs(ctx context.Context, ids []string) (int, error) {
	if len(ids) == 0 {
		return 0, nil
	}

	tag, err := p.pool.Exec(ctx, `DELETE FROM knowledge_chunks WHERE id = ANY($1)`, ids)
	if err != nil {
		return 0, fmt.Errorf("deleting records: %w", err)
	}
	return int(tag.RowsAffected()), nil
}
