package search_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/murachan/murachan/internal/blob"
	"github.com/murachan/murachan/internal/chunk"
	"github.com/murachan/murachan/internal/ingest"
	"github.com/murachan/murachan/internal/log"
	"github.com/murachan/murachan/internal/search"
	"github.com/murachan/murachan/internal/testutil"
	"github.com/murachan/murachan/internal/vector"
)

// evenScorer rates every passage the same, so ordering falls back to
// vector similarity and position.
type evenScorer struct{}

func (evenScorer) Score(ctx context.Context, query string, passages []string) ([]float64, error) {
	scores := make([]float64, len(passages))
	for i := range scores {
		scores[i] = 0.5
	}
	return scores, nil
}

// TestIngestThenRetrieve walks the full pipeline: markdown files on disk,
// sync into the index, then query and expect the matching document back
// with source attribution.
func TestIngestThenRetrieve(t *testing.T) {
	ctx := context.Background()
	root := t.TempDir()

	festival := `# Village Festivals

## Summer Festival

The summer festival takes place on the first weekend of August at the
riverside park. Stalls open at noon and the fireworks start at nine in
the evening. Visitors should use the shuttle bus from the station.
`
	garbage := `# Waste Collection

## Burnable Waste

Burnable waste is collected every Tuesday and Friday morning. Bags must
be placed at the collection point before eight in the morning, using the
designated yellow bags sold at the village office.
`
	writeFile(t, root, "festivals.md", festival)
	writeFile(t, root, "garbage.md", garbage)
	writeFile(t, root, "originals/festivals.pdf", "binary blob")

	store, err := blob.NewDir(root)
	if err != nil {
		t.Fatalf("NewDir() error = %v", err)
	}

	const dim = 32
	embedder := testutil.NewEmbedder(dim)
	index := vector.NewMemory(dim)
	sweeper := vector.NewSweeper(index, 10, log.NewNop())
	chunker := chunk.New(chunk.Config{MaxChunkSize: 400, Overlap: 40, MinChunkLength: 20})

	coordinator, err := ingest.New(store, index, embedder, chunker, sweeper, 100, log.NewNop())
	if err != nil {
		t.Fatalf("ingest.New() error = %v", err)
	}

	result, err := coordinator.SyncAll(ctx)
	if err != nil {
		t.Fatalf("SyncAll() error = %v", err)
	}
	if !result.Success || result.ProcessedFiles != 2 {
		t.Fatalf("SyncAll() = %+v, want 2 files indexed", result)
	}

	searcher := search.NewSearcher(embedder, index,
		search.NewReranker(evenScorer{}, search.Weights{}),
		search.Config{TopK: 10, RerankTopK: 3}, log.NewNop())

	// The deterministic embedder maps identical text to identical vectors,
	// so querying with a chunk's own text must surface its document first.
	festivalChunks := chunker.Chunk("festivals.md", festival)
	if len(festivalChunks) == 0 {
		t.Fatal("chunker produced no chunks for the festival document")
	}
	query := festivalChunks[0].Text

	out := searcher.Search(ctx, query)
	if out.Error != "" {
		t.Fatalf("Search() error = %q", out.Error)
	}
	if len(out.Results) == 0 {
		t.Fatal("Search() returned no results")
	}
	top := out.Results[0]
	if top.Source != "festivals.md" {
		t.Errorf("Search() top source = %q, want festivals.md", top.Source)
	}
	if top.Title != "Village Festivals" {
		t.Errorf("Search() top title = %q, want Village Festivals", top.Title)
	}
	if top.Content == "" {
		t.Error("Search() top result has no content")
	}

	// Deleting the document makes it unretrievable.
	if _, err := sweeper.DeleteBySource(ctx, "festivals.md"); err != nil {
		t.Fatalf("DeleteBySource() error = %v", err)
	}
	out = searcher.Search(ctx, query)
	if out.Error != "" {
		t.Fatalf("Search() error = %q", out.Error)
	}
	for _, r := range out.Results {
		if r.Source == "festivals.md" {
			t.Errorf("deleted source still retrievable: %+v", r)
		}
	}
}

func writeFile(t *testing.T, root, key, content string) {
	t.Helper()
	path := filepath.Join(root, filepath.FromSlash(key))
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("creating dir: %v", err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("writing %s: %v", key, err)
	}
}
