// Package chunk splits documents into bounded, overlapping segments for
// embedding. It supports two strategies:
//
//   - Heading-aware markdown splitting, tagging each chunk with the nearest
//     enclosing title/section/subsection.
//   - Fixed-size sliding window with configurable size and overlap, used for
//     heading-free text and for blocks that exceed the maximum chunk size.
//
// Chunking is deterministic: the same input and configuration always yield
// the same ordered chunk sequence. Vector IDs are derived from chunk
// ordinals, so determinism is what makes re-ingestion idempotent.
package chunk

import (
	"strings"
	"unicode/utf8"
)

// Default chunking parameters. All are overridable via Config; see
// config.Chunking.
const (
	// DefaultMaxChunkSize bounds a chunk's length in characters.
	DefaultMaxChunkSize = 800

	// DefaultOverlap is the number of trailing characters repeated at the
	// start of the next window chunk.
	DefaultOverlap = 80

	// DefaultMinChunkLength drops fragments too short to embed usefully.
	DefaultMinChunkLength = 100
)

// Metadata is the positional metadata carried by every chunk. It is a closed
// struct rather than an open map; optional heading fields are empty strings
// when the source has no markup structure.
type Metadata struct {
	// Source is the blob key of the originating document.
	Source string `json:"source"`

	// Title, Section and Subsection hold the nearest enclosing #, ## and
	// ### headings at the chunk's position, when present.
	Title      string `json:"title,omitempty"`
	Section    string `json:"section,omitempty"`
	Subsection string `json:"subsection,omitempty"`

	// Content duplicates the chunk text so downstream consumers can read
	// it back from index metadata without a second fetch.
	Content string `json:"content"`
}

// Chunk is one bounded segment of a document plus its metadata. Chunks are
// ephemeral; they exist only between chunking and embedding.
type Chunk struct {
	Text string
	Meta Metadata
}

// Config controls splitting behavior.
type Config struct {
	// MaxChunkSize is the maximum chunk length in characters.
	MaxChunkSize int

	// Overlap is the sliding-window overlap in characters. Must be
	// smaller than MaxChunkSize.
	Overlap int

	// MinChunkLength drops chunks shorter than this many characters.
	MinChunkLength int
}

// withDefaults fills zero fields with package defaults.
func (c Config) withDefaults() Config {
	if c.MaxChunkSize <= 0 {
		c.MaxChunkSize = DefaultMaxChunkSize
	}
	if c.Overlap < 0 || c.Overlap >= c.MaxChunkSize {
		c.Overlap = DefaultOverlap
	}
	if c.MinChunkLength <= 0 {
		c.MinChunkLength = DefaultMinChunkLength
	}
	return c
}

// Chunker splits document text into chunks. Safe for concurrent use; it
// holds only immutable configuration.
type Chunker struct {
	cfg Config
}

// New creates a Chunker. Zero-valued config fields fall back to defaults.
func New(cfg Config) *Chunker {
	return &Chunker{cfg: cfg.withDefaults()}
}

// Chunk splits text into ordered chunks tagged with source metadata.
// Empty or whitespace-only input yields zero chunks; callers treat that as
// success, not an error.
//
// If the text contains markdown headings, blocks are cut at heading
// boundaries and tagged with the heading path; oversized blocks are further
// split with the sliding window. Heading-free text goes straight through
// the window splitter.
func (c *Chunker) Chunk(source, text string) []Chunk {
	if strings.TrimSpace(text) == "" {
		return nil
	}

	blocks := splitByHeadings(text)

	var chunks []Chunk
	for _, b := range blocks {
		for _, piece := range slidingWindow(b.text, c.cfg.MaxChunkSize, c.cfg.Overlap) {
			piece = strings.TrimSpace(piece)
			if utf8.RuneCountInString(piece) < c.cfg.MinChunkLength {
				continue
			}
			chunks = append(chunks, Chunk{
				Text: piece,
				Meta: Metadata{
					Source:     source,
					Title:      b.title,
					Section:    b.section,
					Subsection: b.subsection,
					Content:    piece,
				},
			})
		}
	}
	return chunks
}

// block is a run of text under one heading path.
type block struct {
	title      string
	section    string
	subsection string
	text       string
}

// splitByHeadings cuts markdown text at #/##/### boundaries, tracking the
// heading path for each resulting block. Text without headings comes back as
// a single untagged block.
func splitByHeadings(text string) []block {
	lines := strings.Split(text, "\n")

	var blocks []block
	cur := block{}
	var buf []string

	flush := func() {
		body := strings.TrimSpace(strings.Join(buf, "\n"))
		if body != "" {
			b := cur
			b.text = body
			blocks = append(blocks, b)
		}
		buf = buf[:0]
	}

	for _, line := range lines {
		switch level, heading := parseHeading(line); level {
		case 1:
			flush()
			cur.title = heading
			cur.section = ""
			cur.subsection = ""
			buf = append(buf, line)
		case 2:
			flush()
			cur.section = heading
			cur.subsection = ""
			buf = append(buf, line)
		case 3:
			flush()
			cur.subsection = heading
			buf = append(buf, line)
		default:
			buf = append(buf, line)
		}
	}
	flush()

	return blocks
}

// parseHeading returns the markdown heading level (1-3) and text, or 0 for a
// non-heading line. Deeper headings are treated as body text.
func parseHeading(line string) (int, string) {
	trimmed := strings.TrimSpace(line)
	if !strings.HasPrefix(trimmed, "#") {
		return 0, ""
	}

	level := 0
	for level < len(trimmed) && trimmed[level] == '#' {
		level++
	}
	if level > 3 || level == len(trimmed) || trimmed[level] != ' ' {
		return 0, ""
	}
	return level, strings.TrimSpace(trimmed[level:])
}

// slidingWindow splits text into pieces of at most size characters, each
// piece starting overlap characters before the previous piece's end. Cuts
// prefer the last whitespace inside the window so words stay intact. All
// positions are rune offsets, so cuts never split a multi-byte character
// even in spaceless CJK text.
func slidingWindow(text string, size, overlap int) []string {
	runes := []rune(text)
	if len(runes) <= size {
		return []string{text}
	}

	var pieces []string
	start := 0
	for start < len(runes) {
		end := start + size
		if end >= len(runes) {
			pieces = append(pieces, string(runes[start:]))
			break
		}

		// Cut at the last whitespace in the window when one exists in
		// the second half, so cuts don't land mid-word.
		cut := end
		for i := end - 1; i > start+size/2; i-- {
			if runes[i] == ' ' || runes[i] == '\t' || runes[i] == '\n' {
				cut = i
				break
			}
		}

		pieces = append(pieces, string(runes[start:cut]))

		next := cut - overlap
		if next <= start {
			next = cut
		}
		start = next
	}
	return pieces
}
