package chunk

import (
	"fmt"
	"reflect"
	"strings"
	"testing"
	"unicode/utf8"
)

func TestChunk_EmptyInput(t *testing.T) {
	c := New(Config{})

	for _, input := range []string{"", "   ", "\n\n\t  \n"} {
		if got := c.Chunk("a.md", input); len(got) != 0 {
			t.Errorf("Chunk(%q) = %d chunks, want 0", input, len(got))
		}
	}
}

func TestChunk_Deterministic(t *testing.T) {
	c := New(Config{MaxChunkSize: 200, Overlap: 20, MinChunkLength: 10})

	var sb strings.Builder
	sb.WriteString("# Village History\n\n")
	for i := range 40 {
		fmt.Fprintf(&sb, "The village was founded long ago, paragraph %d with some padding text. ", i)
	}
	text := sb.String()

	first := c.Chunk("history.md", text)
	second := c.Chunk("history.md", text)

	if len(first) == 0 {
		t.Fatal("expected at least one chunk")
	}
	if !reflect.DeepEqual(first, second) {
		t.Error("identical input produced different chunk sequences")
	}
}

func TestChunk_HeadingMetadata(t *testing.T) {
	c := New(Config{MinChunkLength: 10})

	text := `# Otoineppu Village

An introduction to the village with enough text to pass the length filter.

## History

The village was established in the early twentieth century along the river,
and grew around the railway station.

### Founding

Settlers arrived and cleared the land for farming near the big bend.

## Access

The village is reachable by rail and by national highway during all seasons.
`

	chunks := c.Chunk("village.md", text)
	if len(chunks) < 4 {
		t.Fatalf("got %d chunks, want at least 4", len(chunks))
	}

	byText := func(substr string) *Chunk {
		for i := range chunks {
			if strings.Contains(chunks[i].Text, substr) {
				return &chunks[i]
			}
		}
		t.Fatalf("no chunk containing %q", substr)
		return nil
	}

	intro := byText("introduction")
	if intro.Meta.Title != "Otoineppu Village" || intro.Meta.Section != "" {
		t.Errorf("intro metadata = %+v", intro.Meta)
	}

	history := byText("twentieth century")
	if history.Meta.Section != "History" || history.Meta.Subsection != "" {
		t.Errorf("history metadata = %+v", history.Meta)
	}

	founding := byText("Settlers arrived")
	if founding.Meta.Section != "History" || founding.Meta.Subsection != "Founding" {
		t.Errorf("founding metadata = %+v", founding.Meta)
	}

	access := byText("reachable by rail")
	if access.Meta.Section != "Access" || access.Meta.Subsection != "" {
		t.Errorf("access metadata = %+v, subsection must reset on new section", access.Meta)
	}

	for i, ch := range chunks {
		if ch.Meta.Source != "village.md" {
			t.Errorf("chunk %d source = %q", i, ch.Meta.Source)
		}
		if ch.Meta.Content != ch.Text {
			t.Errorf("chunk %d content does not duplicate text", i)
		}
	}
}

func TestChunk_WindowBoundsAndOverlap(t *testing.T) {
	cfg := Config{MaxChunkSize: 100, Overlap: 20, MinChunkLength: 10}
	c := New(cfg)

	words := make([]string, 200)
	for i := range words {
		words[i] = fmt.Sprintf("word%03d", i)
	}
	text := strings.Join(words, " ")

	chunks := c.Chunk("plain.txt", text)
	if len(chunks) < 2 {
		t.Fatalf("got %d chunks, want several", len(chunks))
	}

	for i, ch := range chunks {
		if len(ch.Text) > cfg.MaxChunkSize {
			t.Errorf("chunk %d length %d exceeds max %d", i, len(ch.Text), cfg.MaxChunkSize)
		}
		// No heading structure in plain text.
		if ch.Meta.Title != "" || ch.Meta.Section != "" {
			t.Errorf("chunk %d unexpectedly tagged: %+v", i, ch.Meta)
		}
	}

	// Consecutive chunks share overlapping text: the first word of chunk
	// n+1 must appear in chunk n.
	for i := 0; i+1 < len(chunks); i++ {
		firstWord := strings.Fields(chunks[i+1].Text)[0]
		if !strings.Contains(chunks[i].Text, firstWord) {
			t.Errorf("chunks %d and %d do not overlap", i, i+1)
		}
	}
}

func TestChunk_MultibyteWindowCuts(t *testing.T) {
	cfg := Config{MaxChunkSize: 800, Overlap: 80, MinChunkLength: 100}
	c := New(cfg)

	// Spaceless Japanese: every window cut lands inside a run of
	// multi-byte runes, so a byte-offset cut would split one.
	text := strings.Repeat("村の歴史は古く、開拓者が川沿いに定住した。祭りは毎年八月に開催される。", 40)

	chunks := c.Chunk("history.md", text)
	if len(chunks) < 2 {
		t.Fatalf("got %d chunks, want several", len(chunks))
	}

	for i, ch := range chunks {
		if !utf8.ValidString(ch.Text) {
			t.Errorf("chunk %d is not valid UTF-8: ends %q", i, ch.Text[max(0, len(ch.Text)-12):])
		}
		if n := utf8.RuneCountInString(ch.Text); n > cfg.MaxChunkSize {
			t.Errorf("chunk %d is %d runes, max %d", i, n, cfg.MaxChunkSize)
		}
	}

	// Reassembly check: consecutive chunks overlap, so each chunk's start
	// must appear in its predecessor's tail.
	for i := 0; i+1 < len(chunks); i++ {
		head := string([]rune(chunks[i+1].Text)[:10])
		if !strings.Contains(chunks[i].Text, head) {
			t.Errorf("chunks %d and %d do not overlap", i, i+1)
		}
	}
}

func TestChunk_MinLengthCountsRunes(t *testing.T) {
	c := New(Config{MaxChunkSize: 200, Overlap: 0, MinChunkLength: 40})

	// 50 runes but 150 bytes: passes a rune-counted filter, would be
	// kept either way; 30 runes must be dropped even though its byte
	// length exceeds the minimum.
	kept := strings.Repeat("村", 50)
	dropped := strings.Repeat("村", 30)

	if got := c.Chunk("a.md", kept); len(got) != 1 {
		t.Errorf("Chunk(50 runes) = %d chunks, want 1", len(got))
	}
	if got := c.Chunk("b.md", dropped); len(got) != 0 {
		t.Errorf("Chunk(30 runes) = %d chunks, want 0", len(got))
	}
}

func TestChunk_MinLengthFilter(t *testing.T) {
	c := New(Config{MinChunkLength: 100})

	// Each section body is well under 100 characters.
	text := "## A\n\nshort\n\n## B\n\nalso short\n"
	if got := c.Chunk("short.md", text); len(got) != 0 {
		t.Errorf("got %d chunks, want 0 (all below min length)", len(got))
	}
}

func TestParseHeading(t *testing.T) {
	tests := []struct {
		line      string
		wantLevel int
		wantText  string
	}{
		{"# Title", 1, "Title"},
		{"## Section", 2, "Section"},
		{"### Subsection", 3, "Subsection"},
		{"#### too deep", 0, ""},
		{"#missing space", 0, ""},
		{"plain text", 0, ""},
		{"  ## Indented ", 2, "Indented"},
	}

	for _, tt := range tests {
		level, text := parseHeading(tt.line)
		if level != tt.wantLevel || text != tt.wantText {
			t.Errorf("parseHeading(%q) = (%d, %q), want (%d, %q)",
				tt.line, level, text, tt.wantLevel, tt.wantText)
		}
	}
}
