package llm

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/openai/openai-go/v2"
	"github.com/openai/openai-go/v2/option"
)

// OpenAIChat targets any OpenAI-compatible chat completions server. LM Studio
// is the default backend.
type OpenAIChat struct {
	client  openai.Client
	baseURL string

	mu    sync.Mutex
	model string
}

// NewOpenAIChat creates a chat client. With an empty model the first model
// the server lists is used.
func NewOpenAIChat(baseURL, apiKey, model string, timeout time.Duration) *OpenAIChat {
	base := strings.TrimRight(baseURL, "/")
	opts := []option.RequestOption{
		option.WithBaseURL(apiBase(base)),
		option.WithMaxRetries(0),
	}
	if apiKey != "" {
		opts = append(opts, option.WithAPIKey(apiKey))
	}
	if timeout > 0 {
		opts = append(opts, option.WithRequestTimeout(timeout))
	}
	return &OpenAIChat{
		client:  openai.NewClient(opts...),
		baseURL: base,
		model:   model,
	}
}

func apiBase(base string) string {
	if !strings.HasSuffix(base, "/v1") {
		base += "/v1"
	}
	return base + "/"
}

func (c *OpenAIChat) BaseURL() string { return c.baseURL }

func (c *OpenAIChat) Generate(ctx context.Context, messages []Message, params Params) (string, error) {
	model, err := c.resolveModel(ctx)
	if err != nil {
		return "", err
	}

	req := openai.ChatCompletionNewParams{
		Model:       openai.ChatModel(model),
		Messages:    toOpenAI(messages),
		Temperature: openai.Float(params.Temperature),
	}
	if params.MaxTokens > 0 {
		req.MaxTokens = openai.Int(int64(params.MaxTokens))
	}

	resp, err := c.client.Chat.Completions.New(ctx, req)
	if err != nil {
		return "", fmt.Errorf("chat completion request: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", ErrNoChoices
	}
	return resp.Choices[0].Message.Content, nil
}

func toOpenAI(messages []Message) []openai.ChatCompletionMessageParamUnion {
	out := make([]openai.ChatCompletionMessageParamUnion, 0, len(messages))
	for _, m := range messages {
		switch m.Role {
		case RoleSystem:
			out = append(out, openai.SystemMessage(m.Content))
		case RoleAssistant:
			out = append(out, openai.AssistantMessage(m.Content))
		default:
			out = append(out, openai.UserMessage(m.Content))
		}
	}
	return out
}

func (c *OpenAIChat) resolveModel(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.model != "" {
		return c.model, nil
	}
	page, err := c.client.Models.List(ctx)
	if err != nil {
		return "", fmt.Errorf("list models: %w", err)
	}
	if len(page.Data) == 0 {
		return "", fmt.Errorf("no model loaded at %s", c.baseURL)
	}
	c.model = page.Data[0].ID
	return c.model, nil
}

// HealthCheck lists models on the server, which LM Studio answers whenever
// it is running.
func (c *OpenAIChat) HealthCheck(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	_, err := c.client.Models.List(ctx)
	return err == nil
}
