package index

import (
	"context"
	"errors"
	"fmt"
	"os"
	"runtime"
	"strconv"

	"github.com/google/uuid"

	"ragflow/internal/chunker"
	"ragflow/internal/logger"
	"ragflow/internal/store"
	"ragflow/internal/walker"
)

// ErrFileNotFound is returned when a path named for indexing does not exist.
var ErrFileNotFound = errors.New("file not found")

// Store is the part of the vector store the indexer writes to.
type Store interface {
	Add(ctx context.Context, texts []string, vectors [][]float32, metadatas []map[string]any, ids []string) error
	SourceHash(ctx context.Context, path string) (string, error)
	SetSourceHash(ctx context.Context, path, hash string) error
	DeleteSource(ctx context.Context, path string) error
	GetMeta(ctx context.Context, key string) (string, error)
	SetMeta(ctx context.Context, key, value string) error
	Reset(ctx context.Context) error
}

// Embedder is the batch side of the embedding provider.
type Embedder interface {
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
	Model() string
}

// Config holds the indexer configuration.
type Config struct {
	// Workers bounds concurrent file reads; 0 uses the CPU count.
	Workers int
	// BatchSize is the number of chunks per embedding request.
	BatchSize int
	// Force re-indexes files whose content hash is unchanged.
	Force bool
	// Extensions selects files when walking directories.
	Extensions map[string]bool
}

// ProgressFunc is called after each source is stored.
type ProgressFunc func(stage string, done, total int)

// Stats reports indexing results.
type Stats struct {
	FilesTotal   int
	FilesIndexed int
	FilesSkipped int
	ChunksTotal  int
}

// Indexer chunks, embeds and stores documents.
type Indexer struct {
	store      Store
	embedder   Embedder
	chunker    *chunker.Chunker
	config     Config
	onProgress ProgressFunc
}

// New creates a new Indexer with the given collaborators.
func New(s Store, emb Embedder, ch *chunker.Chunker, cfg Config) *Indexer {
	if cfg.Workers <= 0 {
		cfg.Workers = runtime.NumCPU()
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 32
	}
	if cfg.Extensions == nil {
		cfg.Extensions = walker.DefaultExtensions
	}
	return &Indexer{store: s, embedder: emb, chunker: ch, config: cfg}
}

// OnProgress registers a progress callback.
func (idx *Indexer) OnProgress(fn ProgressFunc) { idx.onProgress = fn }

// IndexFiles indexes files and directories. Every named path must exist.
func (idx *Indexer) IndexFiles(ctx context.Context, paths []string) (*Stats, error) {
	files, err := idx.resolve(paths)
	if err != nil {
		return nil, err
	}
	force, err := idx.checkModel(ctx)
	if err != nil {
		return nil, err
	}

	stats, err := idx.runPipeline(ctx, files, force || idx.config.Force)
	if err != nil {
		return stats, err
	}
	if err := idx.store.SetMeta(ctx, store.MetaEmbeddingModel, idx.embedder.Model()); err != nil {
		return stats, fmt.Errorf("set meta: %w", err)
	}
	return stats, nil
}

// IndexTexts indexes raw strings, tagging each chunk with the position of its
// text in the input.
func (idx *Indexer) IndexTexts(ctx context.Context, texts []string) (*Stats, error) {
	if _, err := idx.checkModel(ctx); err != nil {
		return nil, err
	}

	stats := &Stats{FilesTotal: len(texts)}
	for i, text := range texts {
		chunks := idx.chunker.Chunk(text)
		for j := range chunks {
			chunks[j].Metadata[chunker.MetaSourceTextIndex] = i
		}
		if err := idx.store.DeleteSource(ctx, store.TextSource(i)); err != nil {
			return stats, fmt.Errorf("delete text %d: %w", i, err)
		}
		if err := idx.embedAndStore(ctx, store.TextSource(i), chunks); err != nil {
			return stats, err
		}
		stats.FilesIndexed++
		stats.ChunksTotal += len(chunks)
		idx.progress("Indexing texts...", stats.FilesIndexed, stats.FilesTotal)
	}

	if err := idx.store.SetMeta(ctx, store.MetaEmbeddingModel, idx.embedder.Model()); err != nil {
		return stats, fmt.Errorf("set meta: %w", err)
	}
	return stats, nil
}

// checkModel resets the store when the embedding model changed since the
// last run, since vectors from different models are not comparable.
func (idx *Indexer) checkModel(ctx context.Context) (bool, error) {
	lastModel, err := idx.store.GetMeta(ctx, store.MetaEmbeddingModel)
	if err != nil {
		return false, fmt.Errorf("get meta: %w", err)
	}
	model := idx.embedder.Model()
	if lastModel == "" || lastModel == model {
		return false, nil
	}
	logger.FromContext(ctx).Warn("embedding model changed, re-indexing everything", "from", lastModel, "to", model)
	if err := idx.store.Reset(ctx); err != nil {
		return false, fmt.Errorf("reset store: %w", err)
	}
	return true, nil
}

// resolve expands directories and checks that every path exists.
func (idx *Indexer) resolve(paths []string) ([]string, error) {
	var files []string
	seen := make(map[string]bool)
	add := func(p string) {
		if !seen[p] {
			seen[p] = true
			files = append(files, p)
		}
	}
	for _, p := range paths {
		info, err := os.Stat(p)
		if err != nil {
			if errors.Is(err, os.ErrNotExist) {
				return nil, fmt.Errorf("%w: %s", ErrFileNotFound, p)
			}
			return nil, fmt.Errorf("stat %s: %w", p, err)
		}
		if !info.IsDir() {
			add(p)
			continue
		}
		found, err := walker.Collect(p, idx.config.Extensions)
		if err != nil {
			return nil, fmt.Errorf("walk %s: %w", p, err)
		}
		for _, fi := range found {
			add(fi.Path)
		}
	}
	return files, nil
}

func (idx *Indexer) progress(stage string, done, total int) {
	if idx.onProgress != nil {
		idx.onProgress(stage, done, total)
	}
}

var chunkNamespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("ragflow/chunk"))

// ChunkID derives a stable id for the index-th chunk of a source, so
// re-indexing the same source overwrites its chunks instead of duplicating them.
func ChunkID(source string, index int) string {
	return uuid.NewSHA1(chunkNamespace, []byte(source+"\x00"+strconv.Itoa(index))).String()
}
