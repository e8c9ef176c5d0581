package rag

import (
	"context"
	"fmt"
	"strings"

	"github.com/tiktoken-go/tokenizer"

	"ragflow/internal/llm"
	"ragflow/internal/logger"
	"ragflow/internal/retriever"
	"ragflow/internal/store"
)

// NoContextAnswer is returned without calling the generator when nothing
// relevant is stored.
const NoContextAnswer = "No relevant context found in the knowledge base."

// Retriever finds scored context for a query.
type Retriever interface {
	RetrieveWithScores(ctx context.Context, query string, filter store.Filter) ([]retriever.RetrievedChunk, error)
	TopK() int
}

// Counter reports the number of stored chunks.
type Counter interface {
	Count(ctx context.Context) (int, error)
}

// Config describes the engine for Stats and bounds the prompt size.
type Config struct {
	EmbeddingModel string
	ChunkSize      int
	ChunkOverlap   int
	// MaxContextTokens drops trailing contexts until the rest fit; 0 disables.
	MaxContextTokens int
}

// QueryOptions tune a single question.
type QueryOptions struct {
	SystemPrompt string
	Params       llm.Params
	Filter       store.Filter
	// History is prior conversation inserted before the current prompt.
	History []llm.Message
}

// Answer is the result of a query. Contexts are the chunks actually sent to
// the generator; RetrievedCount counts every chunk retrieved.
type Answer struct {
	Text           string
	Contexts       []retriever.RetrievedChunk
	RetrievedCount int
	Query          string
}

// Stats summarizes the knowledge base and the active settings.
type Stats struct {
	TotalChunks    int
	EmbeddingModel string
	ChunkSize      int
	ChunkOverlap   int
	TopK           int
}

// Engine answers questions from retrieved context.
type Engine struct {
	retriever Retriever
	generator llm.Generator
	counter   Counter
	config    Config
	codec     tokenizer.Codec
}

func New(r Retriever, g llm.Generator, c Counter, cfg Config) (*Engine, error) {
	e := &Engine{retriever: r, generator: g, counter: c, config: cfg}
	if cfg.MaxContextTokens > 0 {
		codec, err := tokenizer.Get(tokenizer.Cl100kBase)
		if err != nil {
			return nil, fmt.Errorf("load tokenizer: %w", err)
		}
		e.codec = codec
	}
	return e, nil
}

// Generator exposes the generation backend, e.g. for health checks.
func (e *Engine) Generator() llm.Generator { return e.generator }

// Query retrieves context for query and asks the generator to answer from it.
func (e *Engine) Query(ctx context.Context, query string, opts QueryOptions) (*Answer, error) {
	log := logger.FromContext(ctx)

	retrieved, err := e.retriever.RetrieveWithScores(ctx, query, opts.Filter)
	if err != nil {
		return nil, fmt.Errorf("retrieve: %w", err)
	}
	if len(retrieved) == 0 {
		return &Answer{
			Text:     NoContextAnswer,
			Contexts: []retriever.RetrievedChunk{},
			Query:    query,
		}, nil
	}

	used := e.fitContexts(retrieved)
	if len(used) < len(retrieved) {
		log.Debug("trimmed context to token budget", "kept", len(used), "retrieved", len(retrieved))
	}

	texts := make([]string, len(used))
	for i, c := range used {
		texts[i] = c.Text
	}
	msgs := BuildMessages(texts, query, opts.SystemPrompt, opts.History)

	text, err := e.generator.Generate(ctx, msgs, opts.Params)
	if err != nil {
		return nil, fmt.Errorf("generate: %w", err)
	}
	return &Answer{
		Text:           text,
		Contexts:       used,
		RetrievedCount: len(retrieved),
		Query:          query,
	}, nil
}

// fitContexts drops chunks from the tail until the rest fit the token
// budget. The best chunk is always kept.
func (e *Engine) fitContexts(chunks []retriever.RetrievedChunk) []retriever.RetrievedChunk {
	if e.codec == nil || e.config.MaxContextTokens <= 0 {
		return chunks
	}
	total := 0
	for i, c := range chunks {
		ids, _, err := e.codec.Encode(c.Text)
		if err != nil {
			return chunks[:max(i, 1)]
		}
		total += len(ids)
		if total > e.config.MaxContextTokens {
			return chunks[:max(i, 1)]
		}
	}
	return chunks
}

// BuildMessages assembles the conversation sent to the generator: an optional
// system prompt, prior history, then the context-stuffed question.
func BuildMessages(contexts []string, query, systemPrompt string, history []llm.Message) []llm.Message {
	var msgs []llm.Message
	if systemPrompt != "" {
		msgs = append(msgs, llm.Message{Role: llm.RoleSystem, Content: systemPrompt})
	}
	msgs = append(msgs, history...)
	msgs = append(msgs, llm.Message{Role: llm.RoleUser, Content: UserPrompt(contexts, query)})
	return msgs
}

// UserPrompt renders the numbered context blocks followed by the question.
func UserPrompt(contexts []string, query string) string {
	blocks := make([]string, len(contexts))
	for i, c := range contexts {
		blocks[i] = fmt.Sprintf("Context %d:\n%s", i+1, c)
	}

	var b strings.Builder
	b.WriteString("Based on the following context, please answer the question.\n\n")
	b.WriteString("Context:\n")
	b.WriteString(strings.Join(blocks, "\n\n"))
	b.WriteString("\n\nQuestion: ")
	b.WriteString(query)
	b.WriteString("\n\nAnswer:")
	return b.String()
}

// Stats reports the chunk count along with the active settings.
func (e *Engine) Stats(ctx context.Context) (*Stats, error) {
	n, err := e.counter.Count(ctx)
	if err != nil {
		return nil, fmt.Errorf("count chunks: %w", err)
	}
	return &Stats{
		TotalChunks:    n,
		EmbeddingModel: e.config.EmbeddingModel,
		ChunkSize:      e.config.ChunkSize,
		ChunkOverlap:   e.config.ChunkOverlap,
		TopK:           e.retriever.TopK(),
	}, nil
}
