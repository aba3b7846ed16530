// Package embed converts chunk texts into fixed-dimension vectors using the
// Gemini embedding API.
//
// The provider distinguishes document embeddings from query embeddings; the
// two sides of the asymmetry are exposed as EmbedDocuments and EmbedQuery and
// must not be mixed, or retrieval quality degrades.
//
// Output dimensionality is pinned by configuration, never inferred from
// responses: the vector index column width is fixed at migration time and a
// mismatch is a configuration error.
package embed

import (
	"context"
	"fmt"

	"golang.org/x/time/rate"
	"google.golang.org/genai"

	"github.com/murachan/murachan/internal/log"
)

// Gemini task types. Document and query embeddings are asymmetric; indexing
// must use the document type and retrieval the query type.
const (
	taskDocument = "RETRIEVAL_DOCUMENT"
	taskQuery    = "RETRIEVAL_QUERY"
)

const (
	// DefaultModel is the default Gemini embedding model.
	DefaultModel = "gemini-embedding-001"

	// DefaultDimension is the embedding width. gemini-embedding-001
	// outputs 3072 dimensions natively but supports truncation via
	// OutputDimensionality; the pgvector schema uses 768.
	DefaultDimension = 768

	// DefaultBatchSize is the provider's max texts per embedding call.
	// Larger inputs are paged internally, preserving order.
	DefaultBatchSize = 100

	// DefaultRequestsPerMinute bounds embedding calls against provider
	// quota.
	DefaultRequestsPerMinute = 120
)

// Embedder converts texts into fixed-dimension vectors.
//
// EmbedDocuments returns one vector per input, same order as the input; any
// provider failure fails the whole batch — no partial arrays. Callers decide
// retry policy.
type Embedder interface {
	EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error)
	EmbedQuery(ctx context.Context, text string) ([]float32, error)

	// Dimension is the configured output dimensionality.
	Dimension() int
}

// Config holds embedding configuration.
type Config struct {
	Model             string
	Dimension         int
	BatchSize         int
	RequestsPerMinute int
}

func (c Config) withDefaults() Config {
	if c.Model == "" {
		c.Model = DefaultModel
	}
	if c.Dimension <= 0 {
		c.Dimension = DefaultDimension
	}
	if c.BatchSize <= 0 {
		c.BatchSize = DefaultBatchSize
	}
	if c.RequestsPerMinute <= 0 {
		c.RequestsPerMinute = DefaultRequestsPerMinute
	}
	return c
}

// Gemini is an Embedder backed by the Gemini embedding API.
// Safe for concurrent use.
type Gemini struct {
	cfg     Config
	limiter *rate.Limiter
	logger  log.Logger

	// embedFn performs one provider call for at most BatchSize texts.
	// Overridable in tests.
	embedFn func(ctx context.Context, texts []string, task string) ([][]float32, error)
}

// NewGemini creates a Gemini embedder over an API client, typically obtained
// from a ClientCache.
func NewGemini(client *genai.Client, cfg Config, logger log.Logger) *Gemini {
	cfg = cfg.withDefaults()

	g := &Gemini{
		cfg:     cfg,
		limiter: rate.NewLimiter(rate.Limit(float64(cfg.RequestsPerMinute)/60.0), 1),
		logger:  logger,
	}
	g.embedFn = func(ctx context.Context, texts []string, task string) ([][]float32, error) {
		return embedContent(ctx, client, cfg, texts, task)
	}
	return g
}

// Dimension returns the configured output dimensionality.
func (g *Gemini) Dimension() int {
	return g.cfg.Dimension
}

// EmbedDocuments embeds a batch of chunk texts, paging requests at the
// provider batch cap while preserving global order. A failure on any page
// aborts the whole batch.
func (g *Gemini) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	vectors := make([][]float32, 0, len(texts))
	for start := 0; start < len(texts); start += g.cfg.BatchSize {
		end := min(start+g.cfg.BatchSize, len(texts))

		if err := g.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("waiting on embed rate limit: %w", err)
		}

		page, err := g.embedFn(ctx, texts[start:end], taskDocument)
		if err != nil {
			return nil, fmt.Errorf("embedding texts %d-%d: %w", start, end-1, err)
		}
		vectors = append(vectors, page...)
	}

	g.logger.Debug("embedded documents", "texts", len(texts), "dimension", g.cfg.Dimension)
	return vectors, nil
}

// EmbedQuery embeds a single retrieval query, task-typed as a query.
func (g *Gemini) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	if err := g.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("waiting on embed rate limit: %w", err)
	}

	vectors, err := g.embedFn(ctx, []string{text}, taskQuery)
	if err != nil {
		return nil, fmt.Errorf("embedding query: %w", err)
	}
	if len(vectors) != 1 {
		return nil, fmt.Errorf("expected 1 query embedding, got %d", len(vectors))
	}
	return vectors[0], nil
}

// embedContent performs one Gemini embedding call and validates the response
// shape against the configured dimension.
func embedContent(ctx context.Context, client *genai.Client, cfg Config, texts []string, task string) ([][]float32, error) {
	contents := make([]*genai.Content, len(texts))
	for i, text := range texts {
		contents[i] = genai.NewContentFromText(text, genai.RoleUser)
	}

	dim := int32(cfg.Dimension) // #nosec G115 -- dimension validated by config
	resp, err := client.Models.EmbedContent(ctx, cfg.Model, contents, &genai.EmbedContentConfig{
		TaskType:             task,
		OutputDimensionality: &dim,
	})
	if err != nil {
		return nil, fmt.Errorf("embed call failed: %w", err)
	}

	if len(resp.Embeddings) != len(texts) {
		return nil, fmt.Errorf("expected %d embeddings, got %d", len(texts), len(resp.Embeddings))
	}

	vectors := make([][]float32, len(resp.Embeddings))
	for i, emb := range resp.Embeddings {
		if emb == nil || len(emb.Values) == 0 {
			return nil, fmt.Errorf("empty embedding at index %d", i)
		}
		if len(emb.Values) != cfg.Dimension {
			return nil, fmt.Errorf("embedding dimension %d does not match configured %d",
				len(emb.Values), cfg.Dimension)
		}
		vectors[i] = emb.Values
	}
	return vectors, nil
}
