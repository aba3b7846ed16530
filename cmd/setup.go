package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/murachan/murachan/db"
	"github.com/murachan/murachan/internal/blob"
	"github.com/murachan/murachan/internal/chunk"
	"github.com/murachan/murachan/internal/config"
	"github.com/murachan/murachan/internal/embed"
	"github.com/murachan/murachan/internal/ingest"
	"github.com/murachan/murachan/internal/log"
	"github.com/murachan/murachan/internal/search"
	"github.com/murachan/murachan/internal/vector"
)

// app bundles the wired pipeline for one command invocation.
type app struct {
	cfg    *config.Config
	logger log.Logger
	pool   *pgxpool.Pool

	store       *blob.Dir
	embedder    *embed.Gemini
	index       *vector.Postgres
	sweeper     *vector.Sweeper
	coordinator *ingest.Coordinator
	searcher    *search.Searcher
}

// setup loads configuration, migrates the database and wires the pipeline.
// The caller must Close the returned app.
func setup(ctx context.Context) (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}

	logger := log.New(log.Config{Level: parseLevel(cfg.LogLevel), JSON: cfg.LogJSON})
	slog.SetDefault(logger)

	if err := db.Migrate(cfg.DSN()); err != nil {
		return nil, fmt.Errorf("migrating database: %w", err)
	}
	pool, err := db.Connect(ctx, cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("connecting to database: %w", err)
	}

	store, err := blob.NewDir(cfg.KnowledgeDir)
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("opening knowledge directory: %w", err)
	}

	clients := embed.NewClientCache()
	client, err := clients.Client(ctx, cfg.GeminiAPIKey)
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("creating Gemini client: %w", err)
	}

	embedder := embed.NewGemini(client, embed.Config{
		Model:             cfg.EmbedderModel,
		Dimension:         cfg.Dimension,
		BatchSize:         cfg.EmbedBatchSize,
		RequestsPerMinute: cfg.EmbedRPM,
	}, logger.With("component", "embed"))

	index, err := vector.NewPostgres(pool, cfg.Dimension, logger.With("component", "vector"))
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("wiring vector index: %w", err)
	}
	sweeper := vector.NewSweeper(index, cfg.SweepPageSize, logger.With("component", "sweep"))

	chunker := chunk.New(chunk.Config{
		MaxChunkSize:   cfg.ChunkSize,
		Overlap:        cfg.ChunkOverlap,
		MinChunkLength: cfg.MinChunkLength,
	})

	coordinator, err := ingest.New(store, index, embedder, chunker, sweeper,
		cfg.UpsertBatchSize, logger.With("component", "ingest"))
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("wiring coordinator: %w", err)
	}

	scorer := search.NewGeminiScorer(client, cfg.RerankerModel)
	reranker := search.NewReranker(scorer, search.Weights{
		Semantic: cfg.WeightSemantic,
		Vector:   cfg.WeightVector,
		Position: cfg.WeightPosition,
	})
	searcher := search.NewSearcher(embedder, index, reranker, search.Config{
		TopK:       cfg.SearchTopK,
		RerankTopK: cfg.RerankTopK,
	}, logger.With("component", "search"))

	return &app{
		cfg:         cfg,
		logger:      logger,
		pool:        pool,
		store:       store,
		embedder:    embedder,
		index:       index,
		sweeper:     sweeper,
		coordinator: coordinator,
		searcher:    searcher,
	}, nil
}

// Close releases the database pool.
func (a *app) Close() {
	a.pool.Close()
}

func parseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
