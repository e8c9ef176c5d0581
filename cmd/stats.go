package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"ragflow/internal/index"
)

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show knowledge base statistics",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		a, err := newApp(ctx, cfg, index.Config{})
		if err != nil {
			return err
		}
		defer a.Close()

		s, err := a.engine.Stats(ctx)
		if err != nil {
			return err
		}
		fmt.Printf("Database:        %s\n", cfg.Store.Path)
		fmt.Printf("Total chunks:    %d\n", s.TotalChunks)
		fmt.Printf("Embedding model: %s\n", s.EmbeddingModel)
		fmt.Printf("Chunk size:      %d\n", s.ChunkSize)
		fmt.Printf("Chunk overlap:   %d\n", s.ChunkOverlap)
		fmt.Printf("Top K:           %d\n", s.TopK)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(statsCmd)
}
