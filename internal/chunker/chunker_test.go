package chunker

import (
	"strings"
	"testing"
	"unicode"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newChunker(t *testing.T, size, overlap int, seps ...string) *Chunker {
	t.Helper()
	cfg := Config{ChunkSize: size, ChunkOverlap: overlap}
	if len(seps) > 0 {
		cfg.Separators = seps
	}
	c, err := New(cfg)
	require.NoError(t, err)
	return c
}

func texts(chunks []Chunk) []string {
	out := make([]string, len(chunks))
	for i, c := range chunks {
		out[i] = c.Text
	}
	return out
}

func sizes(chunks []Chunk) []int {
	out := make([]int, len(chunks))
	for i, c := range chunks {
		out[i] = c.Size
	}
	return out
}

func TestNew(t *testing.T) {
	tests := []struct {
		name string
		cfg  Config
		err  error
	}{
		{name: "zero size", cfg: Config{ChunkSize: 0}, err: ErrInvalidChunkSize},
		{name: "negative overlap", cfg: Config{ChunkSize: 10, ChunkOverlap: -1}, err: ErrInvalidOverlap},
		{name: "overlap equal to size", cfg: Config{ChunkSize: 10, ChunkOverlap: 10}, err: ErrOverlapTooLarge},
		{name: "empty separator list", cfg: Config{ChunkSize: 10, Separators: []string{}}, err: ErrNoSeparators},
		{name: "fallback not last", cfg: Config{ChunkSize: 10, Separators: []string{"", " "}}, err: ErrFallbackNotLast},
		{name: "defaults", cfg: DefaultConfig()},
		{name: "nil separators use defaults", cfg: Config{ChunkSize: 10, ChunkOverlap: 2}},
		{name: "no fallback", cfg: Config{ChunkSize: 10, Separators: []string{"\n"}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, err := New(tt.cfg)
			if tt.err != nil {
				require.ErrorIs(t, err, tt.err)
				assert.Nil(t, c)
				return
			}
			require.NoError(t, err)
			assert.NotNil(t, c)
		})
	}

	t.Run("Should copy the separator list", func(t *testing.T) {
		seps := []string{" ", ""}
		c, err := New(Config{ChunkSize: 10, ChunkOverlap: 3, Separators: seps})
		require.NoError(t, err)
		seps[0] = "x"
		assert.Equal(t, []string{"abcdefghij", "hij klmno"}, texts(c.Chunk("abcdefghij klmno")))
	})
}

func TestChunker_Chunk(t *testing.T) {
	tests := []struct {
		name    string
		size    int
		overlap int
		seps    []string
		text    string
		want    []string
		sizes   []int
	}{
		{
			name:    "hard overlap cut",
			size:    10,
			overlap: 3,
			seps:    []string{" ", ""},
			text:    "abcdefghij klmno",
			want:    []string{"abcdefghij", "hij klmno"},
			sizes:   []int{10, 9},
		},
		{
			name:    "overlap snaps to word boundary",
			size:    10,
			overlap: 6,
			seps:    []string{" ", ""},
			text:    "ab cdefghij klm",
			want:    []string{"ab cdefghi", "cdefghij k", "ghij klm"},
			sizes:   []int{10, 10, 8},
		},
		{
			name:    "space outside half window is ignored",
			size:    10,
			overlap: 4,
			text:    "the quick brown fox jumps",
			want:    []string{"the quick", "ick brown", "own fox ju", "x jumps"},
			sizes:   []int{10, 10, 10, 7},
		},
		{
			name:    "oversized part is sliced",
			size:    10,
			overlap: 3,
			seps:    []string{"\n"},
			text:    "abcdefghijklmnopqrstuvwxy",
			want:    []string{"abcdefghij", "hijklmnopq", "opqrstuvwx", "vwxy"},
			sizes:   []int{10, 10, 10, 4},
		},
		{
			name:  "word separators without fallback",
			size:  12,
			seps:  []string{" "},
			text:  "alpha beta gamma",
			want:  []string{"alpha beta", "gamma"},
			sizes: []int{11, 5},
		},
		{
			name:  "whitespace-only chunk is dropped",
			size:  5,
			text:  "abcde     fghij",
			want:  []string{"abcde", "fghij"},
			sizes: []int{5, 5},
		},
		{
			name:    "lengths are counted in characters",
			size:    4,
			overlap: 1,
			text:    "héllo wörld",
			want:    []string{"héll", "lo w", "wörl", "ld"},
			sizes:   []int{4, 4, 4, 2},
		},
		{
			name:  "short text is a single chunk",
			size:  100,
			text:  "  Python is a high-level programming language.  ",
			want:  []string{"Python is a high-level programming language."},
			sizes: []int{48},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newChunker(t, tt.size, tt.overlap, tt.seps...)
			chunks := c.Chunk(tt.text)
			assert.Equal(t, tt.want, texts(chunks))
			assert.Equal(t, tt.sizes, sizes(chunks))
		})
	}
}

func TestChunker_ChunkEmpty(t *testing.T) {
	c := newChunker(t, 10, 2)
	for _, in := range []string{"", " ", "\n\n\t  \r\n"} {
		assert.Empty(t, c.Chunk(in), "input %q", in)
	}
}

func TestChunker_Metadata(t *testing.T) {
	c := newChunker(t, 5, 0)
	chunks := c.Chunk("abcde     fghij")
	require.Len(t, chunks, 2)
	for i, ch := range chunks {
		assert.Equal(t, i, ch.Index)
		assert.Equal(t, i, ch.Metadata[MetaChunkIndex])
		assert.Equal(t, ch.Size, ch.Metadata[MetaChunkSize])
		assert.NotContains(t, ch.Metadata, MetaSourceFile)
	}
}

const sample = `Retrieval-augmented generation combines a search step with a language model.

Documents are split into chunks. Each chunk is embedded into a vector and stored.
At query time the question is embedded as well, and the nearest chunks are handed
to the model as context. Überschrift: naïve façade — résumé.

A final paragraph without much structure that keeps going and going so that the
chunker has to fall back to smaller separators before it can pack everything.`

func TestChunker_Properties(t *testing.T) {
	configs := []struct{ size, overlap int }{
		{size: 20, overlap: 0},
		{size: 20, overlap: 5},
		{size: 50, overlap: 10},
		{size: 64, overlap: 40},
		{size: 200, overlap: 50},
		{size: 7, overlap: 6},
	}
	for _, cfg := range configs {
		c := newChunker(t, cfg.size, cfg.overlap)
		first := c.Chunk(sample)
		require.NotEmpty(t, first)

		t.Run("Should be deterministic", func(t *testing.T) {
			assert.Equal(t, first, c.Chunk(sample))
		})

		t.Run("Should keep chunks within the size bound", func(t *testing.T) {
			for _, ch := range first {
				assert.LessOrEqual(t, ch.Size, cfg.size)
				assert.LessOrEqual(t, utf8.RuneCountInString(ch.Text), ch.Size)
				assert.NotEmpty(t, ch.Text)
				assert.Equal(t, strings.TrimSpace(ch.Text), ch.Text)
			}
		})

		t.Run("Should number chunks contiguously from zero", func(t *testing.T) {
			for i, ch := range first {
				assert.Equal(t, i, ch.Index)
			}
		})
	}
}

func stripSpace(s string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return -1
		}
		return r
	}, s)
}

func TestChunker_RoundTripWithoutOverlap(t *testing.T) {
	for _, size := range []int{3, 16, 80, 1000} {
		c := newChunker(t, size, 0)
		var b strings.Builder
		for _, ch := range c.Chunk(sample) {
			b.WriteString(ch.Text)
		}
		assert.Equal(t, stripSpace(sample), stripSpace(b.String()), "size %d", size)
	}
}

func TestChunker_OverlapCarriesTail(t *testing.T) {
	c := newChunker(t, 10, 3, " ", "")
	chunks := c.Chunk("abcdefghij klmnopqrstu vwxyz")
	require.Greater(t, len(chunks), 1)
	for i := 1; i < len(chunks); i++ {
		prev := []rune(chunks[i-1].Text)
		tail := string(prev[len(prev)-1:])
		assert.Contains(t, chunks[i].Text[:4], tail, "chunk %d should start with the tail of chunk %d", i, i-1)
	}
}

func TestChunker_overlap(t *testing.T) {
	t.Run("Should return nothing when overlap is zero", func(t *testing.T) {
		c := newChunker(t, 10, 0)
		assert.Empty(t, c.overlap([]rune("abcdef")))
	})

	t.Run("Should return the whole text when it fits the overlap", func(t *testing.T) {
		c := newChunker(t, 10, 5)
		assert.Equal(t, "abc", string(c.overlap([]rune("abc"))))
		assert.Equal(t, "abcde", string(c.overlap([]rune("abcde"))))
	})

	t.Run("Should cut after a nearby space", func(t *testing.T) {
		c := newChunker(t, 20, 6)
		// start = 4, space at 2 is within the half window (> 1)
		assert.Equal(t, "cdefghi", string(c.overlap([]rune("ab cdefghi"))))
	})

	t.Run("Should cut exactly at the overlap start otherwise", func(t *testing.T) {
		c := newChunker(t, 20, 6)
		// start = 4, space at 0 is too far back
		assert.Equal(t, "efghij", string(c.overlap([]rune(" bcdefghij"))))
	})

	t.Run("Should not alias the input", func(t *testing.T) {
		c := newChunker(t, 20, 3)
		in := []rune("abcdefgh")
		out := c.overlap(in)
		out[0] = 'X'
		assert.Equal(t, "abcdefgh", string(in))
	})
}

func TestChunker_split(t *testing.T) {
	t.Run("Should reattach separators except on the last piece", func(t *testing.T) {
		c := newChunker(t, 10, 0, "\n\n", ". ")
		parts := c.split("One. Two.\n\nThree. Four")
		assert.Equal(t, []string{"One. ", "Two.\n\n", "Three. ", "Four"}, parts)
	})

	t.Run("Should explode into characters on the empty separator", func(t *testing.T) {
		c := newChunker(t, 10, 0, " ", "")
		assert.Equal(t, []string{"a", "é", " ", "b"}, c.split("aé b"))
	})
}
