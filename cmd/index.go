package cmd

import (
	"fmt"
	"runtime"
	"time"

	"github.com/spf13/cobra"

	"ragflow/internal/index"
	"ragflow/internal/logger"
)

var (
	flagWorkers int
	flagForce   bool
)

var indexCmd = &cobra.Command{
	Use:   "index <paths...>",
	Short: "Chunk, embed and store documents",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		log := logger.FromContext(ctx)

		a, err := newApp(ctx, cfg, index.Config{Workers: flagWorkers, Force: flagForce})
		if err != nil {
			return err
		}
		defer a.Close()

		a.indexer.OnProgress(func(stage string, done, total int) {
			log.Debug(stage, "done", done, "total", total)
		})

		fmt.Printf("Indexing %d path(s)...\n", len(args))
		start := time.Now()

		stats, err := a.indexer.IndexFiles(ctx, args)
		elapsed := time.Since(start)

		if stats != nil {
			fmt.Printf("\nDone in %s\n", elapsed.Round(time.Millisecond))
			fmt.Printf("  Files:   %d total, %d indexed, %d skipped\n",
				stats.FilesTotal, stats.FilesIndexed, stats.FilesSkipped)
			fmt.Printf("  Chunks:  %d\n", stats.ChunksTotal)
		}

		return err
	},
}

func init() {
	f := indexCmd.Flags()
	f.Int("chunk-size", 0, "maximum chunk length in characters (default 500)")
	f.Int("chunk-overlap", 0, "characters carried between chunks (default 50)")
	f.IntVar(&flagWorkers, "workers", runtime.NumCPU(), "parallel file readers")
	f.BoolVar(&flagForce, "force", false, "re-index files even when unchanged")
	bindFlag(f, "chunk-size", "chunker.chunk_size")
	bindFlag(f, "chunk-overlap", "chunker.chunk_overlap")
	rootCmd.AddCommand(indexCmd)
}
