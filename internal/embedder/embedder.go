package embedder

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"ragflow/internal/config"
)

// Embedder turns text into vectors. EmbedBatch returns one vector per input,
// in input order, and every vector from one instance has the same dimension.
type Embedder interface {
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
	EmbedOne(ctx context.Context, text string) ([]float32, error)
	Model() string
}

var ErrEmptyEmbedding = errors.New("embedder returned no vector")

// New builds the embedder selected by cfg.Provider, wrapped in a query cache
// when cfg.CacheSize is positive.
func New(cfg config.EmbeddingConfig) (Embedder, error) {
	var e Embedder
	switch strings.ToLower(cfg.Provider) {
	case "ollama", "":
		e = NewOllamaEmbedder(cfg.BaseURL, cfg.Model)
	case "openai":
		e = NewOpenAIEmbedder(cfg.BaseURL, cfg.APIKey, cfg.Model)
	default:
		return nil, fmt.Errorf("unknown embedding provider %q", cfg.Provider)
	}
	if cfg.CacheSize > 0 {
		return NewCachedEmbedder(e, cfg.CacheSize)
	}
	return e, nil
}

func first(vectors [][]float32) ([]float32, error) {
	if len(vectors) == 0 || len(vectors[0]) == 0 {
		return nil, ErrEmptyEmbedding
	}
	return vectors[0], nil
}
