package cmd

import (
	"github.com/spf13/cobra"

	"ragflow/internal/index"
	"ragflow/internal/llm"
	"ragflow/internal/tui"
)

var flagIndexPaths []string

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Chat with your documents in an interactive terminal UI",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		a, err := newApp(ctx, cfg, index.Config{})
		if err != nil {
			return err
		}
		defer a.Close()

		return tui.Run(tui.Config{
			Engine:       a.engine,
			Indexer:      a.indexer,
			IndexPaths:   flagIndexPaths,
			SystemPrompt: flagChatSystemPrompt,
			Params: llm.Params{
				Temperature: cfg.Generator.Temperature,
				MaxTokens:   cfg.Generator.MaxTokens,
			},
			Ctx: ctx,
		})
	},
}

var flagChatSystemPrompt string

func init() {
	f := chatCmd.Flags()
	f.StringSliceVar(&flagIndexPaths, "index", nil, "files or directories to index before chatting")
	f.StringVar(&flagChatSystemPrompt, "system-prompt", "", "system prompt sent before each question")
	f.Int("top-k", 0, "number of chunks to retrieve (default 3)")
	bindFlag(f, "top-k", "retrieval.top_k")
	rootCmd.AddCommand(chatCmd)
}
