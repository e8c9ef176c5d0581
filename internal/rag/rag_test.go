package rag

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ragflow/internal/llm"
	"ragflow/internal/retriever"
	"ragflow/internal/store"
)

type fakeRetriever struct {
	chunks []retriever.RetrievedChunk
	err    error
	filter store.Filter
}

func (f *fakeRetriever) RetrieveWithScores(_ context.Context, _ string, filter store.Filter) ([]retriever.RetrievedChunk, error) {
	f.filter = filter
	return f.chunks, f.err
}

func (f *fakeRetriever) TopK() int { return 3 }

type fakeGenerator struct {
	calls  int
	msgs   []llm.Message
	params llm.Params
	reply  string
	err    error
}

func (f *fakeGenerator) Generate(_ context.Context, msgs []llm.Message, params llm.Params) (string, error) {
	f.calls++
	f.msgs, f.params = msgs, params
	return f.reply, f.err
}

func (f *fakeGenerator) HealthCheck(context.Context) bool { return f.err == nil }
func (f *fakeGenerator) BaseURL() string                  { return "http://fake" }

type fakeCounter struct{ n int }

func (f fakeCounter) Count(context.Context) (int, error) { return f.n, nil }

func newEngine(t *testing.T, r Retriever, g llm.Generator, cfg Config) *Engine {
	t.Helper()
	e, err := New(r, g, fakeCounter{n: 7}, cfg)
	require.NoError(t, err)
	return e
}

func TestEngine_Query(t *testing.T) {
	t.Run("Should answer without generating when nothing is retrieved", func(t *testing.T) {
		gen := &fakeGenerator{reply: "unused"}
		e := newEngine(t, &fakeRetriever{}, gen, Config{})

		ans, err := e.Query(t.Context(), "What is Go?", QueryOptions{})
		require.NoError(t, err)
		assert.Equal(t, NoContextAnswer, ans.Text)
		assert.Empty(t, ans.Contexts)
		assert.Zero(t, ans.RetrievedCount)
		assert.Zero(t, gen.calls)
	})

	t.Run("Should build the prompt from retrieved chunks", func(t *testing.T) {
		r := &fakeRetriever{chunks: []retriever.RetrievedChunk{
			{ID: "1", Text: "Go is a compiled language.", Similarity: 0.9},
			{ID: "2", Text: "Go has goroutines.", Similarity: 0.7},
		}}
		gen := &fakeGenerator{reply: "Go is compiled."}
		e := newEngine(t, r, gen, Config{})

		params := llm.Params{Temperature: 0.1, MaxTokens: 100}
		ans, err := e.Query(t.Context(), "What is Go?", QueryOptions{
			SystemPrompt: "Answer briefly.",
			Params:       params,
			Filter:       store.Filter{"source_file": "go.md"},
		})
		require.NoError(t, err)
		assert.Equal(t, "Go is compiled.", ans.Text)
		assert.Equal(t, 2, ans.RetrievedCount)
		assert.Len(t, ans.Contexts, 2)
		assert.Equal(t, "What is Go?", ans.Query)
		assert.Equal(t, params, gen.params)
		assert.Equal(t, store.Filter{"source_file": "go.md"}, r.filter)

		require.Len(t, gen.msgs, 2)
		assert.Equal(t, llm.Message{Role: llm.RoleSystem, Content: "Answer briefly."}, gen.msgs[0])
		assert.Equal(t, llm.RoleUser, gen.msgs[1].Role)
		assert.Equal(t, "Based on the following context, please answer the question.\n\n"+
			"Context:\nContext 1:\nGo is a compiled language.\n\nContext 2:\nGo has goroutines.\n\n"+
			"Question: What is Go?\n\nAnswer:", gen.msgs[1].Content)
	})

	t.Run("Should propagate generator errors", func(t *testing.T) {
		boom := errors.New("connection refused")
		r := &fakeRetriever{chunks: []retriever.RetrievedChunk{{Text: "x"}}}
		_, err := newEngine(t, r, &fakeGenerator{err: boom}, Config{}).Query(t.Context(), "q", QueryOptions{})
		require.ErrorIs(t, err, boom)
	})

	t.Run("Should propagate retrieval errors", func(t *testing.T) {
		boom := errors.New("store closed")
		_, err := newEngine(t, &fakeRetriever{err: boom}, &fakeGenerator{}, Config{}).Query(t.Context(), "q", QueryOptions{})
		require.ErrorIs(t, err, boom)
	})

	t.Run("Should trim trailing contexts to the token budget", func(t *testing.T) {
		long := strings.Repeat("hello ", 50)
		r := &fakeRetriever{chunks: []retriever.RetrievedChunk{{Text: long}, {Text: long}, {Text: long}}}
		gen := &fakeGenerator{reply: "ok"}
		e := newEngine(t, r, gen, Config{MaxContextTokens: 120})

		ans, err := e.Query(t.Context(), "q", QueryOptions{})
		require.NoError(t, err)
		assert.Len(t, ans.Contexts, 2)
		assert.Equal(t, 3, ans.RetrievedCount)
		assert.Contains(t, gen.msgs[0].Content, "Context 2:")
		assert.NotContains(t, gen.msgs[0].Content, "Context 3:")
	})

	t.Run("Should keep the best chunk even when it exceeds the budget", func(t *testing.T) {
		long := strings.Repeat("hello ", 50)
		r := &fakeRetriever{chunks: []retriever.RetrievedChunk{{Text: long}, {Text: "short"}}}
		e := newEngine(t, r, &fakeGenerator{reply: "ok"}, Config{MaxContextTokens: 10})

		ans, err := e.Query(t.Context(), "q", QueryOptions{})
		require.NoError(t, err)
		assert.Len(t, ans.Contexts, 1)
	})
}

func TestBuildMessages(t *testing.T) {
	t.Run("Should omit the system message when empty", func(t *testing.T) {
		msgs := BuildMessages([]string{"ctx"}, "q", "", nil)
		require.Len(t, msgs, 1)
		assert.Equal(t, llm.RoleUser, msgs[0].Role)
	})

	t.Run("Should place history between system prompt and question", func(t *testing.T) {
		history := []llm.Message{
			{Role: llm.RoleUser, Content: "earlier"},
			{Role: llm.RoleAssistant, Content: "reply"},
		}
		msgs := BuildMessages([]string{"ctx"}, "q", "sys", history)
		require.Len(t, msgs, 4)
		assert.Equal(t, llm.RoleSystem, msgs[0].Role)
		assert.Equal(t, "earlier", msgs[1].Content)
		assert.Equal(t, "reply", msgs[2].Content)
		assert.True(t, strings.HasSuffix(msgs[3].Content, "Question: q\n\nAnswer:"))
	})
}

func TestEngine_Stats(t *testing.T) {
	e := newEngine(t, &fakeRetriever{}, &fakeGenerator{}, Config{
		EmbeddingModel: "nomic-embed-text",
		ChunkSize:      500,
		ChunkOverlap:   50,
	})
	stats, err := e.Stats(t.Context())
	require.NoError(t, err)
	assert.Equal(t, &Stats{
		TotalChunks:    7,
		EmbeddingModel: "nomic-embed-text",
		ChunkSize:      500,
		ChunkOverlap:   50,
		TopK:           3,
	}, stats)
}
