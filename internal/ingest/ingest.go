// Package ingest orchestrates chunk → embed → upsert for documents in the
// knowledge bucket and drives full or partial corpus synchronization against
// the vector index.
//
// Re-indexing is delete-then-insert: before a document's fresh chunks are
// upserted, every existing vector for that source is swept. This guarantees
// no stale chunks survive when a new version chunks into fewer pieces than
// the old one. Within one document the delete always completes before the
// upsert begins; across documents no ordering is guaranteed, and SyncAll
// processes files sequentially so operations stay serialized per source.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/murachan/murachan/internal/blob"
	"github.com/murachan/murachan/internal/chunk"
	"github.com/murachan/murachan/internal/embed"
	"github.com/murachan/murachan/internal/log"
	"github.com/murachan/murachan/internal/vector"
)

// DefaultUpsertBatchSize is how many records go into one index upsert call.
// Must not exceed vector.MaxUpsertBatch; the index rejects oversized
// batches instead of splitting them.
const DefaultUpsertBatchSize = 100

// originalsPrefix is the bucket subtree holding pre-conversion source
// uploads. Only converted markdown is indexed.
const originalsPrefix = "originals/"

// editThreshold is the slack allowed between an original upload and its
// converted markdown before the markdown counts as manually edited.
// Conversion finishes within seconds; anything later is a hand edit.
const editThreshold = 5 * time.Second

// FileResult is the per-file outcome of a sync. Edited marks markdown
// modified after its originals/ counterpart was uploaded; re-converting the
// original would overwrite those edits.
type FileResult struct {
	File   string `json:"file"`
	Chunks int    `json:"chunks"`
	Error  string `json:"error,omitempty"`
	Edited bool   `json:"edited,omitempty"`
}

// SyncResult is the aggregate report of one sync invocation. It is a
// transient value, never persisted.
type SyncResult struct {
	Success        bool         `json:"success"`
	ProcessedFiles int          `json:"processed_files"`
	TotalChunks    int          `json:"total_chunks"`
	EditedCount    int          `json:"edited_count,omitempty"`
	Errors         []string     `json:"errors,omitempty"`
	Files          []FileResult `json:"files,omitempty"`
}

// Coordinator drives document ingestion. Create with New; safe for
// concurrent use as long as two operations never target the same source at
// the same time (see package doc).
type Coordinator struct {
	store     blob.Store
	index     vector.Index
	embedder  embed.Embedder
	chunker   *chunk.Chunker
	sweeper   *vector.Sweeper
	batchSize int
	logger    log.Logger
}

// New creates a Coordinator and fail-fast validates that the embedder's
// output dimensionality matches the index's configured dimension — a
// mismatch is a configuration error, not something to discover per file.
func New(store blob.Store, index vector.Index, embedder embed.Embedder,
	chunker *chunk.Chunker, sweeper *vector.Sweeper, batchSize int, logger log.Logger) (*Coordinator, error) {

	if embedder.Dimension() != index.Dimension() {
		return nil, fmt.Errorf("%w: embedder outputs %d dimensions, index expects %d",
			vector.ErrDimensionMismatch, embedder.Dimension(), index.Dimension())
	}
	if batchSize <= 0 || batchSize > vector.MaxUpsertBatch {
		batchSize = DefaultUpsertBatchSize
	}
	if logger == nil {
		logger = log.NewNop()
	}

	return &Coordinator{
		store:     store,
		index:     index,
		embedder:  embedder,
		chunker:   chunker,
		sweeper:   sweeper,
		batchSize: batchSize,
		logger:    logger,
	}, nil
}

// ProcessFile chunks, embeds and upserts one document. Zero chunks (empty
// or all-too-short content) is success with count 0 — the embedder and
// index are not touched. Any embedding or index failure aborts the file and
// is returned for the caller to record; nothing is retried here.
func (c *Coordinator) ProcessFile(ctx context.Context, filename, content string) (int, error) {
	chunks := c.chunker.Chunk(filename, content)
	if len(chunks) == 0 {
		c.logger.Debug("no chunks to index", "file", filename)
		return 0, nil
	}

	texts := make([]string, len(chunks))
	for i, ch := range chunks {
		texts[i] = ch.Text
	}

	vectors, err := c.embedder.EmbedDocuments(ctx, texts)
	if err != nil {
		return 0, fmt.Errorf("embedding %q: %w", filename, err)
	}
	if len(vectors) != len(chunks) {
		return 0, fmt.Errorf("embedding %q: got %d vectors for %d chunks", filename, len(vectors), len(chunks))
	}

	// Chunk ids are deterministic: same document content chunks the same
	// way, so re-ingestion writes the same ids.
	records := make([]vector.Record, len(chunks))
	for i, ch := range chunks {
		records[i] = vector.Record{
			ID:     fmt.Sprintf("%s-%d", filename, i),
			Values: vectors[i],
			Meta:   ch.Meta,
		}
	}

	for start := 0; start < len(records); start += c.batchSize {
		end := min(start+c.batchSize, len(records))
		if err := c.index.Upsert(ctx, records[start:end]); err != nil {
			return 0, fmt.Errorf("upserting %q: %w", filename, err)
		}
	}

	c.logger.Debug("indexed file", "file", filename, "chunks", len(chunks))
	return len(chunks), nil
}

// SyncAll re-indexes every markdown object in the bucket. Per-file failures
// are accumulated into the result and processing continues; only a failure
// to list the bucket is fatal.
func (c *Coordinator) SyncAll(ctx context.Context) (SyncResult, error) {
	run := uuid.NewString()
	logger := c.logger.With("sync_run", run)

	objects, err := c.store.List(ctx)
	if err != nil {
		return SyncResult{}, fmt.Errorf("listing bucket: %w", err)
	}

	originals := originalsUploadTimes(objects)

	result := SyncResult{Success: true}
	for _, obj := range objects {
		if !Indexable(obj.Key) {
			continue
		}

		file := c.syncObject(ctx, obj.Key)
		if editedSince(obj, originals) {
			file.Edited = true
			result.EditedCount++
		}
		result.Files = append(result.Files, file)
		if file.Error != "" {
			result.Success = false
			result.Errors = append(result.Errors, fmt.Sprintf("%s: %s", file.File, file.Error))
			logger.Warn("file sync failed", "file", file.File, "error", file.Error)
			continue
		}
		result.ProcessedFiles++
		result.TotalChunks += file.Chunks
	}

	logger.Info("sync complete",
		"processed", result.ProcessedFiles,
		"chunks", result.TotalChunks,
		"edited", result.EditedCount,
		"failed", len(result.Errors))
	return result, nil
}

// originalsUploadTimes maps each originals/ object's base name (prefix and
// extension stripped) to its upload time.
func originalsUploadTimes(objects []blob.Object) map[string]time.Time {
	times := make(map[string]time.Time)
	for _, obj := range objects {
		if !strings.HasPrefix(obj.Key, originalsPrefix) {
			continue
		}
		base := strings.TrimPrefix(obj.Key, originalsPrefix)
		if i := strings.LastIndex(base, "."); i != -1 {
			base = base[:i]
		}
		times[base] = obj.LastModified
	}
	return times
}

// editedSince reports whether a markdown object changed after its originals/
// counterpart was uploaded, beyond the conversion slack. Markdown without an
// original counterpart is never edited: it was authored directly.
func editedSince(obj blob.Object, originals map[string]time.Time) bool {
	uploaded, ok := originals[strings.TrimSuffix(obj.Key, ".md")]
	if !ok {
		return false
	}
	return obj.LastModified.Sub(uploaded) > editThreshold
}

// SyncOne re-indexes a single source key. A missing object yields a failed
// result with zero processed files, not a Go error — callers on the batch
// and admin paths want a structured report.
func (c *Coordinator) SyncOne(ctx context.Context, key string) SyncResult {
	file := c.syncObject(ctx, key)

	result := SyncResult{Files: []FileResult{file}}
	if file.Error != "" {
		result.Errors = []string{fmt.Sprintf("%s: %s", file.File, file.Error)}
		return result
	}
	result.Success = true
	result.ProcessedFiles = 1
	result.TotalChunks = file.Chunks
	return result
}

// syncObject fetches one object and runs the delete-then-process cycle. The
// sweep must complete before the upsert begins so the index never holds a
// mix of old and new chunks for the source.
func (c *Coordinator) syncObject(ctx context.Context, key string) FileResult {
	content, err := c.store.Get(ctx, key)
	if err != nil {
		if errors.Is(err, blob.ErrNotFound) {
			return FileResult{File: key, Error: "object not found"}
		}
		return FileResult{File: key, Error: err.Error()}
	}

	if _, err := c.sweeper.DeleteBySource(ctx, key); err != nil {
		return FileResult{File: key, Error: err.Error()}
	}

	chunks, err := c.ProcessFile(ctx, key, content)
	if err != nil {
		return FileResult{File: key, Error: err.Error()}
	}
	return FileResult{File: key, Chunks: chunks}
}

// Indexable reports whether a bucket key belongs to the indexed corpus:
// markdown only, and nothing under originals/. The event adapter uses the
// same test to decide which notifications to act on.
func Indexable(key string) bool {
	return strings.HasSuffix(key, ".md") && !strings.HasPrefix(key, originalsPrefix)
}
