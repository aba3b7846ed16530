package search

import (
	"context"
	"fmt"
	"sort"

	"github.com/murachan/murachan/internal/vector"
)

// Weights blends the three rerank signals. The values are tuning knobs,
// not contracts; all three signals always participate.
type Weights struct {
	Semantic float64
	Vector   float64
	Position float64
}

// DefaultWeights favors the secondary relevance score while keeping the
// first-stage similarity and rank position in play.
func DefaultWeights() Weights {
	return Weights{Semantic: 0.5, Vector: 0.3, Position: 0.2}
}

// RelevanceScorer judges query/passage relevance independently of vector
// similarity. Implementations return one score in [0, 1] per passage, in
// input order.
type RelevanceScorer interface {
	Score(ctx context.Context, query string, passages []string) ([]float64, error)
}

// Reranked pairs a first-stage match with its blended score.
type Reranked struct {
	Match vector.Match
	Score float64
}

// Reranker reorders over-fetched matches by a weighted blend of semantic
// relevance, vector similarity and original rank position.
type Reranker struct {
	scorer  RelevanceScorer
	weights Weights
}

// NewReranker builds a Reranker. Zero-valued weights take the defaults.
func NewReranker(scorer RelevanceScorer, weights Weights) *Reranker {
	if weights == (Weights{}) {
		weights = DefaultWeights()
	}
	return &Reranker{scorer: scorer, weights: weights}
}

// Rerank scores each match and returns the top few by blended score. The
// position signal decays linearly with the original rank so earlier
// first-stage hits keep a small edge when the other signals tie.
func (r *Reranker) Rerank(ctx context.Context, query string, matches []vector.Match, topK int) ([]Reranked, error) {
	if len(matches) == 0 {
		return nil, nil
	}

	passages := make([]string, len(matches))
	for i, m := range matches {
		passages[i] = m.Meta.Content
	}

	semantic, err := r.scorer.Score(ctx, query, passages)
	if err != nil {
		return nil, fmt.Errorf("relevance scoring: %w", err)
	}
	if len(semantic) != len(matches) {
		return nil, fmt.Errorf("relevance scoring: got %d scores for %d passages", len(semantic), len(matches))
	}

	reranked := make([]Reranked, len(matches))
	for i, m := range matches {
		position := 1 - float64(i)/float64(len(matches))
		score := r.weights.Semantic*clamp01(semantic[i]) +
			r.weights.Vector*clamp01(m.Score) +
			r.weights.Position*position
		reranked[i] = Reranked{Match: m, Score: score}
	}

	sort.SliceStable(reranked, func(i, j int) bool {
		return reranked[i].Score > reranked[j].Score
	})

	if topK > 0 && topK < len(reranked) {
		reranked = reranked[:topK]
	}
	return reranked, nil
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
