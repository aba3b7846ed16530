package event

import (
	"context"

	"github.com/murachan/murachan/internal/ingest"
	"github.com/murachan/murachan/internal/log"
)

// Syncer re-indexes a single source. Satisfied by ingest.Coordinator.
type Syncer interface {
	SyncOne(ctx context.Context, key string) ingest.SyncResult
}

// Sweeper removes all vectors for a source. Satisfied by vector.Sweeper.
type Sweeper interface {
	DeleteBySource(ctx context.Context, source string) (int, error)
}

// Indexer maps notifications to index operations. Create with NewIndexer.
//
// Create-type notifications re-index the object via the syncer; a missing
// object is retried rather than swallowed, since it usually means the
// notification outran object visibility. Delete-type notifications sweep
// the source from the index. Keys outside the indexed corpus are acked
// without processing.
type Indexer struct {
	syncer  Syncer
	sweeper Sweeper
	logger  log.Logger
}

// NewIndexer creates the index-maintenance handler.
func NewIndexer(syncer Syncer, sweeper Sweeper, logger log.Logger) *Indexer {
	if logger == nil {
		logger = log.NewNop()
	}
	return &Indexer{syncer: syncer, sweeper: sweeper, logger: logger}
}

// Handle processes one notification and returns its disposition.
func (h *Indexer) Handle(ctx context.Context, n Notification) Disposition {
	key := n.Object.Key
	logger := h.logger.With("action", string(n.Action), "key", key)

	if !ingest.Indexable(key) {
		logger.Debug("ignoring non-indexable key")
		return Ack
	}

	switch {
	case n.Action.IsCreate():
		result := h.syncer.SyncOne(ctx, key)
		if !result.Success {
			logger.Warn("re-index failed, requesting redelivery", "errors", result.Errors)
			return Retry
		}
		logger.Info("re-indexed object", "chunks", result.TotalChunks)
		return Ack

	case n.Action.IsDelete():
		deleted, err := h.sweeper.DeleteBySource(ctx, key)
		if err != nil {
			logger.Warn("sweep failed, requesting redelivery", "error", err)
			return Retry
		}
		logger.Info("swept deleted object", "vectors", deleted)
		return Ack

	default:
		logger.Debug("ignoring unknown action")
		return Ack
	}
}

// HandleBatch processes a batch of notifications independently and returns
// one disposition per message, in input order. A failing message never
// blocks its neighbors.
func HandleBatch(ctx context.Context, h Handler, batch []Notification) []Disposition {
	dispositions := make([]Disposition, len(batch))
	for i, n := range batch {
		dispositions[i] = h.Handle(ctx, n)
	}
	return dispositions
}
