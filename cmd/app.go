package cmd

import (
	"context"
	"fmt"

	"ragflow/internal/chunker"
	"ragflow/internal/config"
	"ragflow/internal/embedder"
	"ragflow/internal/index"
	"ragflow/internal/llm"
	"ragflow/internal/logger"
	"ragflow/internal/rag"
	"ragflow/internal/retriever"
	"ragflow/internal/store"
)

// app is the wired pipeline shared by every command.
type app struct {
	store     *store.SQLiteStore
	embedder  embedder.Embedder
	retriever *retriever.Retriever
	generator llm.Generator
	engine    *rag.Engine
	indexer   *index.Indexer
}

func newApp(ctx context.Context, cfg *config.Config, idxCfg index.Config) (*app, error) {
	log := logger.FromContext(ctx)

	ch, err := chunker.New(cfg.Chunking())
	if err != nil {
		return nil, err
	}
	emb, err := embedder.New(cfg.Embedding)
	if err != nil {
		return nil, err
	}
	gen, err := llm.New(cfg.Generator)
	if err != nil {
		return nil, err
	}

	st, err := store.Open(cfg.Store.Path)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}

	ret := retriever.New(emb, st, cfg.Retrieval.TopK)
	engine, err := rag.New(ret, gen, st, rag.Config{
		EmbeddingModel:   emb.Model(),
		ChunkSize:        cfg.Chunker.ChunkSize,
		ChunkOverlap:     cfg.Chunker.ChunkOverlap,
		MaxContextTokens: cfg.Retrieval.MaxContextTokens,
	})
	if err != nil {
		st.Close()
		return nil, err
	}

	if idxCfg.BatchSize == 0 {
		idxCfg.BatchSize = cfg.Embedding.BatchSize
	}

	log.Debug("pipeline ready",
		"db", cfg.Store.Path,
		"embedding", cfg.Embedding.Provider+"/"+emb.Model(),
		"generation", cfg.Generator.Provider,
		"chunk_size", cfg.Chunker.ChunkSize,
		"chunk_overlap", cfg.Chunker.ChunkOverlap,
	)

	return &app{
		store:     st,
		embedder:  emb,
		retriever: ret,
		generator: gen,
		engine:    engine,
		indexer:   index.New(st, emb, ch, idxCfg),
	}, nil
}

func (a *app) Close() error {
	return a.store.Close()
}
