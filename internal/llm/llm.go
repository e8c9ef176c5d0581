package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"ragflow/internal/config"
)

const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message represents a single chat message.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Params are the sampling settings for one generation.
type Params struct {
	Temperature float64
	MaxTokens   int
}

// DefaultParams mirrors the defaults of the query command.
func DefaultParams() Params {
	return Params{Temperature: 0.7, MaxTokens: 500}
}

// Generator produces a completion for a conversation.
type Generator interface {
	Generate(ctx context.Context, messages []Message, params Params) (string, error)
	// HealthCheck reports whether the backend answers. It never returns an error.
	HealthCheck(ctx context.Context) bool
	BaseURL() string
}

var ErrNoChoices = errors.New("generation returned no choices")

// New builds the generator selected by cfg.Provider.
func New(cfg config.GeneratorConfig) (Generator, error) {
	switch strings.ToLower(cfg.Provider) {
	case "openai", "":
		return NewOpenAIChat(cfg.BaseURL, cfg.APIKey, cfg.Model, cfg.Timeout), nil
	case "ollama":
		return NewOllamaChat(cfg.BaseURL, cfg.Model, cfg.Timeout), nil
	default:
		return nil, fmt.Errorf("unknown generation provider %q", cfg.Provider)
	}
}
