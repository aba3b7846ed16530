// Package search answers knowledge queries with two-stage retrieval: a
// similarity query over-fetches candidates from the vector index, then a
// reranker blends a secondary relevance score with the original similarity
// and rank position to pick the final few.
//
// Search sits inline in a conversational turn, so it never returns a Go
// error. Failures degrade to an empty result set with the Error field
// populated and the caller decides how to phrase that to the user.
package search

import (
	"context"
	"strings"

	"github.com/murachan/murachan/internal/embed"
	"github.com/murachan/murachan/internal/log"
	"github.com/murachan/murachan/internal/vector"
)

const (
	// DefaultTopK is the over-fetch size for the first-stage similarity
	// query.
	DefaultTopK = 10

	// DefaultRerankTopK is how many results survive reranking.
	DefaultRerankTopK = 3
)

// Result is one ranked knowledge hit with source attribution.
type Result struct {
	Content    string  `json:"content"`
	Score      float64 `json:"score"`
	Source     string  `json:"source"`
	Title      string  `json:"title,omitempty"`
	Section    string  `json:"section,omitempty"`
	Subsection string  `json:"subsection,omitempty"`
}

// Output is the search response. Error is set instead of returning a Go
// error; Results is empty whenever Error is set.
type Output struct {
	Results []Result `json:"results"`
	Error   string   `json:"error,omitempty"`
}

// Config tunes the two retrieval stages. Zero values take defaults.
type Config struct {
	TopK       int
	RerankTopK int
}

// Searcher runs the retrieval pipeline. Create with NewSearcher.
type Searcher struct {
	embedder embed.Embedder
	index    vector.Index
	reranker *Reranker
	cfg      Config
	logger   log.Logger
}

// NewSearcher wires the pipeline. TopK is clamped to the index query cap.
func NewSearcher(embedder embed.Embedder, index vector.Index, reranker *Reranker, cfg Config, logger log.Logger) *Searcher {
	if cfg.TopK <= 0 || cfg.TopK > vector.MaxTopK {
		cfg.TopK = DefaultTopK
	}
	if cfg.RerankTopK <= 0 || cfg.RerankTopK > cfg.TopK {
		cfg.RerankTopK = DefaultRerankTopK
	}
	if logger == nil {
		logger = log.NewNop()
	}
	return &Searcher{
		embedder: embedder,
		index:    index,
		reranker: reranker,
		cfg:      cfg,
		logger:   logger,
	}
}

// Search embeds the query, over-fetches similar chunks and reranks them.
// A blank query and a query matching nothing both return an empty result
// set without an error.
func (s *Searcher) Search(ctx context.Context, query string) Output {
	query = strings.TrimSpace(query)
	if query == "" {
		return Output{Results: []Result{}}
	}

	queryVector, err := s.embedder.EmbedQuery(ctx, query)
	if err != nil {
		s.logger.Warn("query embedding failed", "error", err)
		return Output{Results: []Result{}, Error: err.Error()}
	}

	matches, err := s.index.Query(ctx, queryVector, vector.QueryOptions{TopK: s.cfg.TopK})
	if err != nil {
		s.logger.Warn("index query failed", "error", err)
		return Output{Results: []Result{}, Error: err.Error()}
	}
	if len(matches) == 0 {
		return Output{Results: []Result{}}
	}

	reranked, err := s.reranker.Rerank(ctx, query, matches, s.cfg.RerankTopK)
	if err != nil {
		s.logger.Warn("rerank failed", "error", err)
		return Output{Results: []Result{}, Error: err.Error()}
	}

	results := make([]Result, len(reranked))
	for i, r := range reranked {
		results[i] = Result{
			Content:    r.Match.Meta.Content,
			Score:      r.Score,
			Source:     r.Match.Meta.Source,
			Title:      r.Match.Meta.Title,
			Section:    r.Match.Meta.Section,
			Subsection: r.Match.Meta.Subsection,
		}
	}
	return Output{Results: results}
}
