package cmd

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/charmbracelet/glamour"
	"github.com/spf13/cobra"

	"ragflow/internal/chunker"
	"ragflow/internal/index"
	"ragflow/internal/llm"
	"ragflow/internal/logger"
	"ragflow/internal/rag"
	"ragflow/internal/retriever"
	"ragflow/internal/store"
)

var (
	flagSystemPrompt string
	flagWhere        []string
	flagRaw          bool
)

var queryCmd = &cobra.Command{
	Use:   "query <text>",
	Short: "Answer a question from the indexed documents",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		log := logger.FromContext(ctx)

		filter, err := parseWhere(flagWhere)
		if err != nil {
			return err
		}

		a, err := newApp(ctx, cfg, index.Config{})
		if err != nil {
			return err
		}
		defer a.Close()

		if !a.generator.HealthCheck(ctx) {
			fmt.Fprintf(os.Stderr, "warning: generation backend at %s is not reachable\n", a.generator.BaseURL())
		}

		question := strings.Join(args, " ")
		ans, err := a.engine.Query(ctx, question, rag.QueryOptions{
			SystemPrompt: flagSystemPrompt,
			Params: llm.Params{
				Temperature: cfg.Generator.Temperature,
				MaxTokens:   cfg.Generator.MaxTokens,
			},
			Filter: filter,
		})
		if err != nil {
			return err
		}
		log.Debug("answered", "retrieved", ans.RetrievedCount, "used", len(ans.Contexts))

		fmt.Println(render(ans.Text, flagRaw))
		if len(ans.Contexts) > 0 {
			fmt.Println()
			fmt.Println(formatSources(ans.Contexts))
		}
		return nil
	},
}

// parseWhere turns repeated key=value flags into a metadata filter. Integer
// values match integer metadata; everything else matches as a string.
func parseWhere(pairs []string) (store.Filter, error) {
	if len(pairs) == 0 {
		return nil, nil
	}
	filter := make(store.Filter, len(pairs))
	for _, p := range pairs {
		key, value, ok := strings.Cut(p, "=")
		key = strings.TrimSpace(key)
		if !ok || key == "" {
			return nil, fmt.Errorf("invalid --where %q: expected key=value", p)
		}
		if n, err := strconv.Atoi(value); err == nil {
			filter[key] = n
		} else {
			filter[key] = value
		}
	}
	return filter, nil
}

func render(text string, raw bool) string {
	if raw {
		return text
	}
	r, err := glamour.NewTermRenderer(glamour.WithAutoStyle(), glamour.WithWordWrap(100))
	if err != nil {
		return text
	}
	out, err := r.Render(text)
	if err != nil {
		return text
	}
	return strings.TrimRight(out, "\n")
}

func formatSources(chunks []retriever.RetrievedChunk) string {
	var sb strings.Builder
	sb.WriteString("Sources:")
	for i, c := range chunks {
		fmt.Fprintf(&sb, "\n  [%d] %s (similarity %.3f)", i+1, sourceLabel(c.Metadata), c.Similarity)
	}
	return sb.String()
}

func sourceLabel(meta map[string]any) string {
	if src := store.SourceOf(meta); src != "" {
		if idx, ok := meta[chunker.MetaChunkIndex].(int); ok {
			return fmt.Sprintf("%s#%d", src, idx)
		}
		return src
	}
	return "unknown"
}

func init() {
	f := queryCmd.Flags()
	f.Int("top-k", 0, "number of chunks to retrieve (default 3)")
	f.Float64("temperature", 0, "sampling temperature (default 0.7)")
	f.Int("max-tokens", 0, "maximum tokens to generate (default 500)")
	f.StringVar(&flagSystemPrompt, "system-prompt", "", "system prompt sent before the question")
	f.StringArrayVar(&flagWhere, "where", nil, "metadata filter key=value (repeatable)")
	f.BoolVar(&flagRaw, "raw", false, "print the answer without markdown rendering")
	bindFlag(f, "top-k", "retrieval.top_k")
	bindFlag(f, "temperature", "generator.temperature")
	bindFlag(f, "max-tokens", "generator.max_tokens")
	rootCmd.AddCommand(queryCmd)
}
