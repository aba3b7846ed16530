package testutil

import (
	"context"
	"hash/fnv"
	"math"
)

// Embedder is a deterministic embed.Embedder substitute: the vector for a
// text is a pure function of its content, so identical texts land at the
// same point and similarity comparisons are stable across runs. No network,
// no credentials.
type Embedder struct {
	Dim int

	// DocumentCalls and QueryCalls count provider invocations.
	DocumentCalls int
	QueryCalls    int

	// Err, when set, fails every call.
	Err error
}

// NewEmbedder creates a deterministic embedder of the given dimension.
func NewEmbedder(dim int) *Embedder {
	return &Embedder{Dim: dim}
}

// EmbedDocuments returns one deterministic unit vector per text.
func (e *Embedder) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	e.DocumentCalls++
	if e.Err != nil {
		return nil, e.Err
	}
	vectors := make([][]float32, len(texts))
	for i, text := range texts {
		vectors[i] = e.vectorFor(text)
	}
	return vectors, nil
}

// EmbedQuery embeds a query the same way as a document, so a query equal to
// an indexed text is its nearest neighbor.
func (e *Embedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	e.QueryCalls++
	if e.Err != nil {
		return nil, e.Err
	}
	return e.vectorFor(text), nil
}

// Dimension returns the configured vector width.
func (e *Embedder) Dimension() int { return e.Dim }

// vectorFor hashes the text into a reproducible unit vector.
func (e *Embedder) vectorFor(text string) []float32 {
	h := fnv.New64a()
	h.Write([]byte(text))
	seed := h.Sum64()

	v := make([]float32, e.Dim)
	var norm float64
	for i := range v {
		// xorshift64 keeps the sequence reproducible per seed.
		seed ^= seed << 13
		seed ^= seed >> 7
		seed ^= seed << 17
		val := float64(int64(seed%2000)-1000) / 1000.0
		v[i] = float32(val)
		norm += val * val
	}

	norm = math.Sqrt(norm)
	if norm == 0 {
		v[0] = 1
		return v
	}
	for i := range v {
		v[i] = float32(float64(v[i]) / norm)
	}
	return v
}
