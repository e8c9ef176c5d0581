package chunker

import (
	"strings"
	"unicode/utf8"
)

// Metadata keys set on every chunk.
const (
	MetaChunkIndex      = "chunk_index"
	MetaChunkSize       = "chunk_size"
	MetaSourceFile      = "source_file"
	MetaSourceTextIndex = "source_text_index"
)

// DefaultSeparators are tried in order, paragraph breaks first. The trailing
// empty string splits into single characters. Lists without it are accepted:
// parts longer than the chunk size are then sliced during packing.
var DefaultSeparators = []string{"\n\n", "\n", ". ", " ", ""}

// Config holds the chunking parameters. Sizes are measured in characters.
type Config struct {
	ChunkSize    int
	ChunkOverlap int
	Separators   []string
}

// DefaultConfig returns the default chunking configuration.
func DefaultConfig() Config {
	return Config{
		ChunkSize:    500,
		ChunkOverlap: 50,
		Separators:   append([]string(nil), DefaultSeparators...),
	}
}

// Validate checks if the configuration is usable.
func (c Config) Validate() error {
	if c.ChunkSize <= 0 {
		return ErrInvalidChunkSize
	}
	if c.ChunkOverlap < 0 {
		return ErrInvalidOverlap
	}
	if c.ChunkOverlap >= c.ChunkSize {
		return ErrOverlapTooLarge
	}
	if len(c.Separators) == 0 {
		return ErrNoSeparators
	}
	for _, sep := range c.Separators[:len(c.Separators)-1] {
		if sep == "" {
			return ErrFallbackNotLast
		}
	}
	return nil
}

// Chunk is a contiguous fragment of source text.
type Chunk struct {
	Text string
	// Index is the zero-based position among emitted chunks.
	Index int
	// Size is the fragment length in characters before trimming.
	Size     int
	Metadata map[string]any
}

// Chunker splits text into overlapping, size-bounded chunks, preferring to
// cut at the configured separators.
type Chunker struct {
	config Config
}

// New creates a chunker. A nil separator list selects DefaultSeparators.
func New(cfg Config) (*Chunker, error) {
	if cfg.Separators == nil {
		cfg.Separators = DefaultSeparators
	}
	cfg.Separators = append([]string(nil), cfg.Separators...)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Chunker{config: cfg}, nil
}

// ChunkSize returns the configured maximum chunk length.
func (c *Chunker) ChunkSize() int { return c.config.ChunkSize }

// ChunkOverlap returns the configured overlap length.
func (c *Chunker) ChunkOverlap() int { return c.config.ChunkOverlap }

// Chunk splits text into chunks. Empty or whitespace-only input yields nil.
func (c *Chunker) Chunk(text string) []Chunk {
	if strings.TrimSpace(text) == "" {
		return nil
	}

	var chunks []Chunk
	emit := func(piece []rune) {
		trimmed := strings.TrimSpace(string(piece))
		if trimmed == "" {
			return
		}
		idx := len(chunks)
		chunks = append(chunks, Chunk{
			Text:  trimmed,
			Index: idx,
			Size:  len(piece),
			Metadata: map[string]any{
				MetaChunkIndex: idx,
				MetaChunkSize:  len(piece),
			},
		})
	}

	size := c.config.ChunkSize
	var current []rune
	for _, part := range c.split(text) {
		p := []rune(part)
		if len(current)+len(p) > size && len(current) > 0 {
			emit(current)
			current = append(c.overlap(current), p...)
		} else {
			current = append(current, p...)
		}

		// A single part can be larger than the limit; slice it down.
		for len(current) > size {
			head := current[:size]
			emit(head)
			current = append(c.overlap(head), current[size:]...)
		}
	}

	if len(current) > 0 {
		emit(current)
	}
	return chunks
}

// split breaks text into atomic parts, applying each separator to the parts
// produced by the previous one. Non-empty separators stay attached to the end
// of every piece except the last piece of each part.
func (c *Chunker) split(text string) []string {
	parts := []string{text}
	for _, sep := range c.config.Separators {
		if sep == "" {
			chars := make([]string, 0, utf8.RuneCountInString(text))
			for _, part := range parts {
				for _, r := range part {
					chars = append(chars, string(r))
				}
			}
			return chars
		}

		next := make([]string, 0, len(parts))
		for _, part := range parts {
			if !strings.Contains(part, sep) {
				next = append(next, part)
				continue
			}
			pieces := strings.Split(part, sep)
			for _, piece := range pieces[:len(pieces)-1] {
				next = append(next, piece+sep)
			}
			next = append(next, pieces[len(pieces)-1])
		}
		parts = next
	}
	return parts
}

// overlap returns a fresh copy of the tail of text that seeds the next chunk.
// It cuts after the last space before the overlap start when that space lies
// within half the overlap window, otherwise exactly at the overlap start.
func (c *Chunker) overlap(text []rune) []rune {
	n := c.config.ChunkOverlap
	if n == 0 {
		return nil
	}
	if len(text) <= n {
		return append([]rune(nil), text...)
	}

	start := len(text) - n
	lastSpace := -1
	for i := start - 1; i >= 0; i-- {
		if text[i] == ' ' {
			lastSpace = i
			break
		}
	}
	if lastSpace >= 0 && lastSpace > start-n/2 {
		start = lastSpace + 1
	}
	return append([]rune(nil), text[start:]...)
}
