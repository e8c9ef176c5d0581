package cmd

import (
	"context"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"

	"ragflow/internal/index"
	"ragflow/internal/rag"
	"ragflow/internal/retriever"
	"ragflow/internal/store"
)

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Start an MCP server exposing document search tools",
	Args:  cobra.NoArgs,
	RunE:  runMCP,
}

func runMCP(cmd *cobra.Command, args []string) error {
	a, err := newApp(cmd.Context(), cfg, index.Config{})
	if err != nil {
		return err
	}
	defer a.Close()

	s := mcpserver.NewMCPServer("ragflow", "1.0.0", mcpserver.WithToolCapabilities(false))

	s.AddTool(searchDocumentsTool(), makeSearchHandler(a.embedder, a.store, cfg.Retrieval.TopK))
	s.AddTool(indexStatsTool(), makeStatsHandler(a.engine))

	return mcpserver.ServeStdio(s)
}

func init() {
	rootCmd.AddCommand(mcpCmd)
}

var readOnlyAnnotation = mcp.ToolAnnotation{
	ReadOnlyHint:    mcp.ToBoolPtr(true),
	DestructiveHint: mcp.ToBoolPtr(false),
	IdempotentHint:  mcp.ToBoolPtr(true),
	OpenWorldHint:   mcp.ToBoolPtr(false),
}

func searchDocumentsTool() mcp.Tool {
	return mcp.NewTool("search_documents",
		mcp.WithDescription("Semantically search the indexed documents. Returns the most similar chunks with their source and similarity score."),
		mcp.WithToolAnnotation(readOnlyAnnotation),
		mcp.WithString("query",
			mcp.Required(),
			mcp.Description("Natural language query"),
		),
		mcp.WithNumber("k",
			mcp.Description("Maximum number of chunks to return (default from configuration)"),
		),
		mcp.WithString("source_file",
			mcp.Description("Optional exact source file path to restrict the search to"),
		),
	)
}

func indexStatsTool() mcp.Tool {
	return mcp.NewTool("index_stats",
		mcp.WithDescription("Report the number of stored chunks and the chunking and embedding settings."),
		mcp.WithToolAnnotation(readOnlyAnnotation),
	)
}

func makeSearchHandler(emb retriever.QueryEmbedder, searcher retriever.Searcher, defaultK int) mcpserver.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		query := req.GetString("query", "")
		if query == "" {
			return mcp.NewToolResultError("query is required"), nil
		}
		k := req.GetInt("k", defaultK)
		if k <= 0 {
			k = defaultK
		}
		var filter store.Filter
		if src := req.GetString("source_file", ""); src != "" {
			filter = store.Filter{"source_file": src}
		}

		chunks, err := retriever.New(emb, searcher, k).RetrieveWithScores(ctx, query, filter)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("search failed: %v", err)), nil
		}
		return mcp.NewToolResultText(formatSearchResults(query, chunks)), nil
	}
}

func makeStatsHandler(engine *rag.Engine) mcpserver.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		s, err := engine.Stats(ctx)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("stats failed: %v", err)), nil
		}
		return mcp.NewToolResultText(fmt.Sprintf(
			"## Knowledge base\n\n**Chunks:** %d  \n**Embedding model:** %s  \n**Chunk size:** %d  \n**Chunk overlap:** %d  \n**Top K:** %d\n",
			s.TotalChunks, s.EmbeddingModel, s.ChunkSize, s.ChunkOverlap, s.TopK)), nil
	}
}

func formatSearchResults(query string, chunks []retriever.RetrievedChunk) string {
	if len(chunks) == 0 {
		return fmt.Sprintf("No results found for query: %q", query)
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "## Search results for %q (%d chunks)\n\n", query, len(chunks))
	for i, c := range chunks {
		fmt.Fprintf(&sb, "### Result %d: `%s`\n\n", i+1, sourceLabel(c.Metadata))
		fmt.Fprintf(&sb, "**Similarity:** %.3f\n\n", c.Similarity)
		fmt.Fprintf(&sb, "%s\n\n", c.Text)
	}
	return sb.String()
}
