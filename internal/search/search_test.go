package search

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/murachan/murachan/internal/chunk"
	"github.com/murachan/murachan/internal/log"
	"github.com/murachan/murachan/internal/vector"
)

const testDimension = 3

// stubEmbedder returns a fixed query vector or a fixed error.
type stubEmbedder struct {
	queryVector []float32
	queryErr    error
	queryCalls  int
}

func (e *stubEmbedder) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	vectors := make([][]float32, len(texts))
	for i := range texts {
		vectors[i] = e.queryVector
	}
	return vectors, nil
}

func (e *stubEmbedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	e.queryCalls++
	if e.queryErr != nil {
		return nil, e.queryErr
	}
	return e.queryVector, nil
}

func (e *stubEmbedder) Dimension() int { return testDimension }

// stubScorer returns canned scores keyed by passage content, defaulting to
// 0.5 for anything unlisted.
type stubScorer struct {
	scores map[string]float64
	err    error
	calls  int
}

func (s *stubScorer) Score(ctx context.Context, query string, passages []string) ([]float64, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	out := make([]float64, len(passages))
	for i, p := range passages {
		if v, ok := s.scores[p]; ok {
			out[i] = v
		} else {
			out[i] = 0.5
		}
	}
	return out, nil
}

// failingIndex fails Query; other operations delegate.
type failingIndex struct {
	vector.Index
}

func (f *failingIndex) Query(ctx context.Context, values []float32, opts vector.QueryOptions) ([]vector.Match, error) {
	return nil, errors.New("index unavailable")
}

func seedIndex(t *testing.T, contents ...string) *vector.Memory {
	t.Helper()
	index := vector.NewMemory(testDimension)
	records := make([]vector.Record, len(contents))
	for i, content := range contents {
		// Later records point further from the unit query vector (1,0,0)
		// so first-stage similarity order matches insertion order.
		records[i] = vector.Record{
			ID:     fmt.Sprintf("doc.md-%d", i),
			Values: []float32{1, float32(i) * 0.3, 0},
			Meta: chunk.Metadata{
				Source:  "doc.md",
				Section: fmt.Sprintf("Section %d", i),
				Content: content,
			},
		}
	}
	if err := index.Upsert(context.Background(), records); err != nil {
		t.Fatalf("seeding index: %v", err)
	}
	return index
}

func newSearcher(embedder *stubEmbedder, index vector.Index, scorer *stubScorer, cfg Config) *Searcher {
	return NewSearcher(embedder, index, NewReranker(scorer, Weights{}), cfg, log.NewNop())
}

func TestSearch_EmptyQuery(t *testing.T) {
	embedder := &stubEmbedder{queryVector: []float32{1, 0, 0}}
	s := newSearcher(embedder, vector.NewMemory(testDimension), &stubScorer{}, Config{})

	out := s.Search(context.Background(), "   ")
	if out.Error != "" {
		t.Errorf("Search() error = %q, want none", out.Error)
	}
	if len(out.Results) != 0 {
		t.Errorf("Search() results = %v, want empty", out.Results)
	}
	if embedder.queryCalls != 0 {
		t.Errorf("embedder called for blank query")
	}
}

func TestSearch_NoMatches(t *testing.T) {
	embedder := &stubEmbedder{queryVector: []float32{1, 0, 0}}
	scorer := &stubScorer{}
	s := newSearcher(embedder, vector.NewMemory(testDimension), scorer, Config{})

	out := s.Search(context.Background(), "anything")
	if out.Error != "" {
		t.Errorf("Search() error = %q, want none", out.Error)
	}
	if len(out.Results) != 0 {
		t.Errorf("Search() results = %v, want empty", out.Results)
	}
	if scorer.calls != 0 {
		t.Errorf("scorer called with zero matches")
	}
}

func TestSearch_EmbedFailureDegrades(t *testing.T) {
	embedder := &stubEmbedder{queryErr: errors.New("provider unavailable")}
	s := newSearcher(embedder, seedIndex(t, "a", "b"), &stubScorer{}, Config{})

	out := s.Search(context.Background(), "garbage collection schedule")
	if out.Error == "" {
		t.Error("Search() error empty, want degradation message")
	}
	if len(out.Results) != 0 {
		t.Errorf("Search() results = %v, want empty on failure", out.Results)
	}
}

func TestSearch_IndexFailureDegrades(t *testing.T) {
	embedder := &stubEmbedder{queryVector: []float32{1, 0, 0}}
	index := &failingIndex{Index: vector.NewMemory(testDimension)}
	s := newSearcher(embedder, index, &stubScorer{}, Config{})

	out := s.Search(context.Background(), "query")
	if out.Error == "" {
		t.Error("Search() error empty, want degradation message")
	}
	if len(out.Results) != 0 {
		t.Errorf("Search() results = %v, want empty on failure", out.Results)
	}
}

func TestSearch_ScorerFailureDegrades(t *testing.T) {
	embedder := &stubEmbedder{queryVector: []float32{1, 0, 0}}
	scorer := &stubScorer{err: errors.New("model overloaded")}
	s := newSearcher(embedder, seedIndex(t, "a", "b", "c"), scorer, Config{})

	out := s.Search(context.Background(), "query")
	if out.Error == "" {
		t.Error("Search() error empty, want degradation message")
	}
	if len(out.Results) != 0 {
		t.Errorf("Search() results = %v, want empty on failure", out.Results)
	}
}

func TestSearch_RerankReordersAndTruncates(t *testing.T) {
	// Five candidates; semantic scoring strongly prefers the ones the
	// vector stage ranked last.
	contents := []string{"alpha", "beta", "gamma", "delta", "epsilon"}
	scorer := &stubScorer{scores: map[string]float64{
		"alpha":   0.1,
		"beta":    0.1,
		"gamma":   0.2,
		"delta":   0.95,
		"epsilon": 1.0,
	}}
	embedder := &stubEmbedder{queryVector: []float32{1, 0, 0}}
	s := newSearcher(embedder, seedIndex(t, contents...), scorer, Config{TopK: 10, RerankTopK: 3})

	out := s.Search(context.Background(), "village festival dates")
	if out.Error != "" {
		t.Fatalf("Search() error = %q", out.Error)
	}
	if len(out.Results) != 3 {
		t.Fatalf("Search() returned %d results, want 3", len(out.Results))
	}
	// delta edges out epsilon: slightly lower semantic score, but better
	// first-stage similarity and position.
	if out.Results[0].Content != "delta" || out.Results[1].Content != "epsilon" {
		t.Errorf("Search() top results = %q, %q; want delta, epsilon",
			out.Results[0].Content, out.Results[1].Content)
	}
	for i := 1; i < len(out.Results); i++ {
		if out.Results[i].Score > out.Results[i-1].Score {
			t.Errorf("results not sorted by score: %v", out.Results)
		}
	}
}

func TestSearch_SourceAttribution(t *testing.T) {
	embedder := &stubEmbedder{queryVector: []float32{1, 0, 0}}
	s := newSearcher(embedder, seedIndex(t, "only passage"), &stubScorer{}, Config{})

	out := s.Search(context.Background(), "query")
	if out.Error != "" {
		t.Fatalf("Search() error = %q", out.Error)
	}
	if len(out.Results) != 1 {
		t.Fatalf("Search() returned %d results, want 1", len(out.Results))
	}
	got := out.Results[0]
	if got.Source != "doc.md" || got.Section != "Section 0" || got.Content != "only passage" {
		t.Errorf("Search() result = %+v, missing attribution", got)
	}
	if got.Score <= 0 {
		t.Errorf("Search() score = %v, want positive", got.Score)
	}
}

func TestRerank_BlendsAllThreeSignals(t *testing.T) {
	matches := []vector.Match{
		{Record: vector.Record{ID: "a", Meta: chunk.Metadata{Content: "first"}}, Score: 0.9},
		{Record: vector.Record{ID: "b", Meta: chunk.Metadata{Content: "second"}}, Score: 0.8},
		{Record: vector.Record{ID: "c", Meta: chunk.Metadata{Content: "third"}}, Score: 0.1},
	}

	// Semantic-only weights: order must follow the scorer, not the vector
	// stage.
	scorer := &stubScorer{scores: map[string]float64{"first": 0.1, "second": 0.2, "third": 0.9}}
	semanticOnly := NewReranker(scorer, Weights{Semantic: 1})
	got, err := semanticOnly.Rerank(context.Background(), "q", matches, 0)
	if err != nil {
		t.Fatalf("Rerank() error = %v", err)
	}
	if got[0].Match.ID != "c" {
		t.Errorf("semantic-only rerank top = %q, want c", got[0].Match.ID)
	}

	// Vector-only weights: order must follow first-stage similarity.
	vectorOnly := NewReranker(scorer, Weights{Vector: 1})
	got, err = vectorOnly.Rerank(context.Background(), "q", matches, 0)
	if err != nil {
		t.Fatalf("Rerank() error = %v", err)
	}
	if got[0].Match.ID != "a" {
		t.Errorf("vector-only rerank top = %q, want a", got[0].Match.ID)
	}

	// Position-only weights: original rank order is preserved.
	positionOnly := NewReranker(scorer, Weights{Position: 1})
	got, err = positionOnly.Rerank(context.Background(), "q", matches, 0)
	if err != nil {
		t.Fatalf("Rerank() error = %v", err)
	}
	for i, want := range []string{"a", "b", "c"} {
		if got[i].Match.ID != want {
			t.Errorf("position-only rerank[%d] = %q, want %q", i, got[i].Match.ID, want)
		}
	}
}

func TestRerank_ScoreCountMismatch(t *testing.T) {
	short := &shortScorer{}
	r := NewReranker(short, Weights{})
	matches := []vector.Match{
		{Record: vector.Record{ID: "a"}},
		{Record: vector.Record{ID: "b"}},
	}

	if _, err := r.Rerank(context.Background(), "q", matches, 0); err == nil {
		t.Fatal("Rerank() error = nil, want score count mismatch")
	}
}

// shortScorer always returns one score too few.
type shortScorer struct{}

func (s *shortScorer) Score(ctx context.Context, query string, passages []string) ([]float64, error) {
	return make([]float64, len(passages)-1), nil
}
