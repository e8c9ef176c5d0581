package retriever

import (
	"context"
	"fmt"

	"ragflow/internal/store"
)

// RetrievedChunk is a search hit with its similarity score.
type RetrievedChunk struct {
	ID         string
	Text       string
	Metadata   map[string]any
	Distance   float64
	Similarity float64
}

// Score converts store hits into scored chunks. Order and length are kept;
// similarity is 1 - distance and a missing distance counts as 0.
func Score(hits []store.SearchResult) []RetrievedChunk {
	out := make([]RetrievedChunk, len(hits))
	for i, h := range hits {
		var d float64
		if h.Distance != nil {
			d = *h.Distance
		}
		out[i] = RetrievedChunk{
			ID:         h.ID,
			Text:       h.Text,
			Metadata:   h.Metadata,
			Distance:   d,
			Similarity: 1.0 - d,
		}
	}
	return out
}

// QueryEmbedder embeds a single query.
type QueryEmbedder interface {
	EmbedOne(ctx context.Context, text string) ([]float32, error)
}

// Searcher finds the nearest stored chunks to a vector.
type Searcher interface {
	Search(ctx context.Context, vector []float32, topK int, filter store.Filter) ([]store.SearchResult, error)
}

type Retriever struct {
	embedder QueryEmbedder
	searcher Searcher
	topK     int
}

func New(embedder QueryEmbedder, searcher Searcher, topK int) *Retriever {
	return &Retriever{embedder: embedder, searcher: searcher, topK: topK}
}

func (r *Retriever) TopK() int { return r.topK }

// Retrieve embeds query and returns the raw nearest hits.
func (r *Retriever) Retrieve(ctx context.Context, query string, filter store.Filter) ([]store.SearchResult, error) {
	vec, err := r.embedder.EmbedOne(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	hits, err := r.searcher.Search(ctx, vec, r.topK, filter)
	if err != nil {
		return nil, fmt.Errorf("search: %w", err)
	}
	return hits, nil
}

// RetrieveWithScores is Retrieve followed by Score.
func (r *Retriever) RetrieveWithScores(ctx context.Context, query string, filter store.Filter) ([]RetrievedChunk, error) {
	hits, err := r.Retrieve(ctx, query, filter)
	if err != nil {
		return nil, err
	}
	return Score(hits), nil
}
