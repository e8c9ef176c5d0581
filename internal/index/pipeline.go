package index

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"

	"golang.org/x/sync/errgroup"

	"ragflow/internal/chunker"
	"ragflow/internal/logger"
)

// fileWork is the outcome of reading one file. Exactly one of skip or
// chunks is meaningful.
type fileWork struct {
	path   string
	hash   string
	skip   bool
	chunks []chunker.Chunk
}

// runPipeline hashes and chunks files on a bounded pool, then embeds and
// stores them one file at a time in input order.
func (idx *Indexer) runPipeline(ctx context.Context, files []string, force bool) (*Stats, error) {
	log := logger.FromContext(ctx)
	stats := &Stats{FilesTotal: len(files)}

	// Stage 1: hash + chunk (N workers, results slotted by position)
	work := make([]fileWork, len(files))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(idx.config.Workers)
	for i, path := range files {
		g.Go(func() error {
			hash, err := hashFile(path)
			if err != nil {
				return err
			}
			w := fileWork{path: path, hash: hash}
			if !force {
				existing, err := idx.store.SourceHash(gctx, path)
				if err != nil {
					return fmt.Errorf("get hash %s: %w", path, err)
				}
				if existing == hash {
					w.skip = true
					work[i] = w
					return nil
				}
			}
			chunks, err := idx.chunker.ChunkFile(path)
			if err != nil {
				return err
			}
			w.chunks = chunks
			work[i] = w
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	// Stage 2: embed + store (1 worker, batches of BatchSize)
	for _, w := range work {
		if w.skip {
			stats.FilesSkipped++
			log.Debug("unchanged, skipping", "file", w.path)
			continue
		}
		if err := idx.store.DeleteSource(ctx, w.path); err != nil {
			return stats, fmt.Errorf("delete %s: %w", w.path, err)
		}
		if err := idx.embedAndStore(ctx, w.path, w.chunks); err != nil {
			return stats, err
		}
		if err := idx.store.SetSourceHash(ctx, w.path, w.hash); err != nil {
			return stats, fmt.Errorf("set hash %s: %w", w.path, err)
		}
		stats.FilesIndexed++
		stats.ChunksTotal += len(w.chunks)
		log.Debug("indexed", "file", w.path, "chunks", len(w.chunks))
		idx.progress("Indexing files...", stats.FilesIndexed+stats.FilesSkipped, stats.FilesTotal)
	}
	return stats, nil
}

// embedAndStore embeds chunks in sub-batches and adds each batch to the store.
func (idx *Indexer) embedAndStore(ctx context.Context, source string, chunks []chunker.Chunk) error {
	size := idx.config.BatchSize
	for start := 0; start < len(chunks); start += size {
		end := min(start+size, len(chunks))
		batch := chunks[start:end]

		texts := make([]string, len(batch))
		metas := make([]map[string]any, len(batch))
		ids := make([]string, len(batch))
		for i, c := range batch {
			texts[i] = c.Text
			metas[i] = c.Metadata
			ids[i] = ChunkID(source, c.Index)
		}

		vectors, err := idx.embedder.EmbedBatch(ctx, texts)
		if err != nil {
			return fmt.Errorf("embed %s: %w", source, err)
		}
		if err := idx.store.Add(ctx, texts, vectors, metas, ids); err != nil {
			return fmt.Errorf("store %s: %w", source, err)
		}
	}
	return nil
}

func hashFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()
	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", fmt.Errorf("hash %s: %w", path, err)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
