package config

import (
	"time"

	"ragflow/internal/chunker"
)

// Config is the full runtime configuration. Every field carries a koanf key,
// and the fields that can be set from the environment carry an env tag.
type Config struct {
	Chunker   ChunkerConfig   `koanf:"chunker"`
	Retrieval RetrievalConfig `koanf:"retrieval"`
	Embedding EmbeddingConfig `koanf:"embedding"`
	Store     StoreConfig     `koanf:"store"`
	Generator GeneratorConfig `koanf:"generator"`
	Log       LogConfig       `koanf:"log"`
}

type ChunkerConfig struct {
	ChunkSize    int `koanf:"chunk_size"    env:"CHUNK_SIZE"    validate:"gt=0"`
	ChunkOverlap int `koanf:"chunk_overlap" env:"CHUNK_OVERLAP" validate:"gte=0,ltfield=ChunkSize"`
}

type RetrievalConfig struct {
	TopK int `koanf:"top_k" env:"TOP_K_CHUNKS" validate:"gt=0"`
	// MaxContextTokens caps the prompt context; 0 means unlimited.
	MaxContextTokens int `koanf:"max_context_tokens" env:"MAX_CONTEXT_TOKENS" validate:"gte=0"`
}

type EmbeddingConfig struct {
	Provider  string `koanf:"provider"   env:"EMBEDDING_PROVIDER" validate:"oneof=ollama openai"`
	Model     string `koanf:"model"      env:"EMBEDDING_MODEL"    validate:"required"`
	BaseURL   string `koanf:"base_url"   env:"EMBEDDING_BASE_URL" validate:"required,url"`
	APIKey    string `koanf:"api_key"    env:"EMBEDDING_API_KEY"`
	BatchSize int    `koanf:"batch_size" env:"EMBEDDING_BATCH_SIZE" validate:"gt=0"`
	CacheSize int    `koanf:"cache_size" env:"EMBEDDING_CACHE_SIZE" validate:"gte=0"`
}

type StoreConfig struct {
	Path string `koanf:"path" env:"RAGFLOW_DB_PATH" validate:"required"`
}

type GeneratorConfig struct {
	Provider    string        `koanf:"provider"    env:"GENERATION_PROVIDER" validate:"oneof=openai ollama"`
	BaseURL     string        `koanf:"base_url"    env:"LM_STUDIO_BASE_URL"  validate:"required,url"`
	APIKey      string        `koanf:"api_key"     env:"LM_STUDIO_API_KEY"`
	Model       string        `koanf:"model"       env:"GENERATION_MODEL"`
	Temperature float64       `koanf:"temperature" env:"GENERATION_TEMPERATURE" validate:"gte=0,lte=2"`
	MaxTokens   int           `koanf:"max_tokens"  env:"GENERATION_MAX_TOKENS"  validate:"gt=0"`
	Timeout     time.Duration `koanf:"timeout"     env:"GENERATION_TIMEOUT"     validate:"gt=0"`
}

type LogConfig struct {
	Level string `koanf:"level" env:"LOG_LEVEL" validate:"omitempty,oneof=debug info warn error"`
	JSON  bool   `koanf:"json"  env:"LOG_JSON"`
}

// Default returns the built-in defaults, the lowest-precedence source.
func Default() *Config {
	cc := chunker.DefaultConfig()
	return &Config{
		Chunker: ChunkerConfig{
			ChunkSize:    cc.ChunkSize,
			ChunkOverlap: cc.ChunkOverlap,
		},
		Retrieval: RetrievalConfig{
			TopK: 3,
		},
		Embedding: EmbeddingConfig{
			Provider:  "ollama",
			Model:     "nomic-embed-text",
			BaseURL:   "http://localhost:11434",
			BatchSize: 32,
			CacheSize: 256,
		},
		Store: StoreConfig{
			Path: "./data/ragflow.db",
		},
		Generator: GeneratorConfig{
			Provider:    "openai",
			BaseURL:     "http://localhost:1234",
			Temperature: 0.7,
			MaxTokens:   500,
			Timeout:     120 * time.Second,
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// Chunking converts the chunker section into a chunker.Config with the
// default separator hierarchy.
func (c *Config) Chunking() chunker.Config {
	return chunker.Config{
		ChunkSize:    c.Chunker.ChunkSize,
		ChunkOverlap: c.Chunker.ChunkOverlap,
	}
}
