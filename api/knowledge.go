package api

import (
	"context"
	"net/http"

	"github.com/murachan/murachan/internal/ingest"
	"github.com/murachan/murachan/internal/log"
	"github.com/murachan/murachan/internal/search"
)

// SyncService drives corpus synchronization. Satisfied by ingest.Coordinator.
type SyncService interface {
	SyncAll(ctx context.Context) (ingest.SyncResult, error)
	SyncOne(ctx context.Context, key string) ingest.SyncResult
}

// SweepService removes vectors. Satisfied by vector.Sweeper.
type SweepService interface {
	DeleteBySource(ctx context.Context, source string) (int, error)
	DeleteAll(ctx context.Context) (int, error)
}

// SearchService answers knowledge queries. Satisfied by search.Searcher.
type SearchService interface {
	Search(ctx context.Context, query string) search.Output
}

// KnowledgeHandler exposes sync, deletion and search endpoints.
type KnowledgeHandler struct {
	syncer   SyncService
	sweeper  SweepService
	searcher SearchService
	logger   log.Logger
}

// NewKnowledgeHandler creates the knowledge endpoints handler.
func NewKnowledgeHandler(syncer SyncService, sweeper SweepService, searcher SearchService, logger log.Logger) *KnowledgeHandler {
	if logger == nil {
		logger = log.NewNop()
	}
	return &KnowledgeHandler{syncer: syncer, sweeper: sweeper, searcher: searcher, logger: logger}
}

// RegisterRoutes registers knowledge routes on the given mux. The {key...}
// wildcard spans slashes, so bucket keys with prefixes route correctly.
func (h *KnowledgeHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/knowledge/search", h.search)
	mux.HandleFunc("POST /admin/knowledge/sync", h.syncAll)
	mux.HandleFunc("POST /admin/knowledge/sync/{key...}", h.syncOne)
	mux.HandleFunc("DELETE /admin/knowledge", h.deleteAll)
	mux.HandleFunc("DELETE /admin/knowledge/{key...}", h.deleteOne)
}

// search runs the retrieval pipeline. Retrieval failures arrive as an error
// field in the output, not as a transport error, so the status is 200
// either way.
func (h *KnowledgeHandler) search(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query().Get("q")
	if query == "" {
		writeError(w, http.StatusBadRequest, "missing_query", "query parameter q is required")
		return
	}
	writeJSON(w, http.StatusOK, h.searcher.Search(r.Context(), query))
}

// syncAll re-indexes the whole bucket. Per-file failures are reported in
// the body; only a bucket listing failure is a server error.
func (h *KnowledgeHandler) syncAll(w http.ResponseWriter, r *http.Request) {
	result, err := h.syncer.SyncAll(r.Context())
	if err != nil {
		h.logger.Error("full sync failed", "error", err)
		writeError(w, http.StatusInternalServerError, "sync_failed", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// syncOne re-indexes a single source key.
func (h *KnowledgeHandler) syncOne(w http.ResponseWriter, r *http.Request) {
	key := r.PathValue("key")
	if key == "" {
		writeError(w, http.StatusBadRequest, "missing_key", "source key is required")
		return
	}
	result := h.syncer.SyncOne(r.Context(), key)
	status := http.StatusOK
	if !result.Success {
		status = http.StatusNotFound
	}
	writeJSON(w, status, result)
}

// DeleteResponse reports how many vectors a deletion removed.
type DeleteResponse struct {
	Deleted int `json:"deleted"`
}

// deleteAll removes every vector from the index.
func (h *KnowledgeHandler) deleteAll(w http.ResponseWriter, r *http.Request) {
	deleted, err := h.sweeper.DeleteAll(r.Context())
	if err != nil {
		h.logger.Error("delete all failed", "error", err)
		writeError(w, http.StatusInternalServerError, "delete_failed", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, DeleteResponse{Deleted: deleted})
}

// deleteOne removes all vectors for one source key.
func (h *KnowledgeHandler) deleteOne(w http.ResponseWriter, r *http.Request) {
	key := r.PathValue("key")
	if key == "" {
		writeError(w, http.StatusBadRequest, "missing_key", "source key is required")
		return
	}
	deleted, err := h.sweeper.DeleteBySource(r.Context(), key)
	if err != nil {
		h.logger.Error("delete by source failed", "key", key, "error", err)
		writeError(w, http.StatusInternalServerError, "delete_failed", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, DeleteResponse{Deleted: deleted})
}
