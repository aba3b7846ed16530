package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/murachan/murachan/internal/ingest"
	"github.com/murachan/murachan/internal/log"
	"github.com/murachan/murachan/internal/search"
)

// fakeSyncService records calls and fails for configured keys.
type fakeSyncService struct {
	allErr   error
	failKeys map[string]bool
	syncOnes []string
}

func (s *fakeSyncService) SyncAll(ctx context.Context) (ingest.SyncResult, error) {
	if s.allErr != nil {
		return ingest.SyncResult{}, s.allErr
	}
	return ingest.SyncResult{Success: true, ProcessedFiles: 2, TotalChunks: 9}, nil
}

func (s *fakeSyncService) SyncOne(ctx context.Context, key string) ingest.SyncResult {
	s.syncOnes = append(s.syncOnes, key)
	if s.failKeys[key] {
		return ingest.SyncResult{Errors: []string{key + ": object not found"}}
	}
	return ingest.SyncResult{Success: true, ProcessedFiles: 1, TotalChunks: 4}
}

type fakeSweepService struct {
	err     error
	sources []string
}

func (s *fakeSweepService) DeleteBySource(ctx context.Context, source string) (int, error) {
	s.sources = append(s.sources, source)
	if s.err != nil {
		return 0, s.err
	}
	return 4, nil
}

func (s *fakeSweepService) DeleteAll(ctx context.Context) (int, error) {
	if s.err != nil {
		return 0, s.err
	}
	return 42, nil
}

type fakeSearchService struct {
	out     search.Output
	queries []string
}

func (s *fakeSearchService) Search(ctx context.Context, query string) search.Output {
	s.queries = append(s.queries, query)
	return s.out
}

type fixture struct {
	syncer   *fakeSyncService
	sweeper  *fakeSweepService
	searcher *fakeSearchService
	handler  http.Handler
}

func newFixture() *fixture {
	f := &fixture{
		syncer:   &fakeSyncService{failKeys: map[string]bool{}},
		sweeper:  &fakeSweepService{},
		searcher: &fakeSearchService{},
	}
	knowledge := NewKnowledgeHandler(f.syncer, f.sweeper, f.searcher, log.NewNop())
	health := NewHealthHandler(nil, log.NewNop())
	f.handler = NewServer(health, knowledge, log.NewNop()).Handler()
	return f
}

func TestSearch(t *testing.T) {
	f := newFixture()
	f.searcher.out = search.Output{Results: []search.Result{
		{Content: "the summer festival is in August", Score: 0.9, Source: "festivals.md"},
	}}

	req := httptest.NewRequest(http.MethodGet, "/api/knowledge/search?q=festival", nil)
	w := httptest.NewRecorder()
	f.handler.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	var out search.Output
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	require.Len(t, out.Results, 1)
	assert.Equal(t, "festivals.md", out.Results[0].Source)
	assert.Equal(t, []string{"festival"}, f.searcher.queries)
}

func TestSearch_MissingQuery(t *testing.T) {
	f := newFixture()

	req := httptest.NewRequest(http.MethodGet, "/api/knowledge/search", nil)
	w := httptest.NewRecorder()
	f.handler.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Empty(t, f.searcher.queries)
}

func TestSearch_DegradedOutputStill200(t *testing.T) {
	f := newFixture()
	f.searcher.out = search.Output{Results: []search.Result{}, Error: "provider unavailable"}

	req := httptest.NewRequest(http.MethodGet, "/api/knowledge/search?q=x", nil)
	w := httptest.NewRecorder()
	f.handler.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	var out search.Output
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	assert.Equal(t, "provider unavailable", out.Error)
}

func TestSyncAll(t *testing.T) {
	f := newFixture()

	req := httptest.NewRequest(http.MethodPost, "/admin/knowledge/sync", nil)
	w := httptest.NewRecorder()
	f.handler.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	var result ingest.SyncResult
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &result))
	assert.True(t, result.Success)
	assert.Equal(t, 2, result.ProcessedFiles)
}

func TestSyncAll_ListFailure(t *testing.T) {
	f := newFixture()
	f.syncer.allErr = errors.New("bucket unreachable")

	req := httptest.NewRequest(http.MethodPost, "/admin/knowledge/sync", nil)
	w := httptest.NewRecorder()
	f.handler.ServeHTTP(w, req)

	assert.Equal(t, http.StatusInternalServerError, w.Code)
}

func TestSyncOne(t *testing.T) {
	f := newFixture()

	req := httptest.NewRequest(http.MethodPost, "/admin/knowledge/sync/guides/festivals.md", nil)
	w := httptest.NewRecorder()
	f.handler.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	// The wildcard must capture the whole remaining path.
	assert.Equal(t, []string{"guides/festivals.md"}, f.syncer.syncOnes)
}

func TestSyncOne_MissingObject(t *testing.T) {
	f := newFixture()
	f.syncer.failKeys["gone.md"] = true

	req := httptest.NewRequest(http.MethodPost, "/admin/knowledge/sync/gone.md", nil)
	w := httptest.NewRecorder()
	f.handler.ServeHTTP(w, req)

	require.Equal(t, http.StatusNotFound, w.Code)
	var result ingest.SyncResult
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &result))
	assert.False(t, result.Success)
	assert.Len(t, result.Errors, 1)
}

func TestDeleteOne(t *testing.T) {
	f := newFixture()

	req := httptest.NewRequest(http.MethodDelete, "/admin/knowledge/old.md", nil)
	w := httptest.NewRecorder()
	f.handler.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	var resp DeleteResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, 4, resp.Deleted)
	assert.Equal(t, []string{"old.md"}, f.sweeper.sources)
}

func TestDeleteAll(t *testing.T) {
	f := newFixture()

	req := httptest.NewRequest(http.MethodDelete, "/admin/knowledge", nil)
	w := httptest.NewRecorder()
	f.handler.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	var resp DeleteResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, 42, resp.Deleted)
	assert.Empty(t, f.sweeper.sources)
}

func TestDelete_SweepFailure(t *testing.T) {
	f := newFixture()
	f.sweeper.err = errors.New("index unavailable")

	req := httptest.NewRequest(http.MethodDelete, "/admin/knowledge/old.md", nil)
	w := httptest.NewRecorder()
	f.handler.ServeHTTP(w, req)

	assert.Equal(t, http.StatusInternalServerError, w.Code)
}
