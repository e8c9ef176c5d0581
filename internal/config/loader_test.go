package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func environ(vars ...string) Option {
	return WithEnviron(func() []string { return vars })
}

func TestLoader_Load(t *testing.T) {
	t.Run("Should return defaults without environment or overrides", func(t *testing.T) {
		cfg, err := NewLoader(environ(), WithEnvFiles()).Load(nil)
		require.NoError(t, err)
		assert.Equal(t, Default(), cfg)
		assert.Equal(t, 500, cfg.Chunker.ChunkSize)
		assert.Equal(t, 50, cfg.Chunker.ChunkOverlap)
		assert.Equal(t, 3, cfg.Retrieval.TopK)
		assert.Equal(t, "http://localhost:1234", cfg.Generator.BaseURL)
	})

	t.Run("Should read the original environment names", func(t *testing.T) {
		cfg, err := NewLoader(environ(
			"CHUNK_SIZE=800",
			"CHUNK_OVERLAP=100",
			"TOP_K_CHUNKS=5",
			"EMBEDDING_MODEL=all-minilm",
			"LM_STUDIO_BASE_URL=http://studio:1234",
			"LM_STUDIO_API_KEY=secret",
			"GENERATION_TIMEOUT=30s",
			"LOG_JSON=true",
			"PATH=/usr/bin",
		), WithEnvFiles()).Load(nil)
		require.NoError(t, err)
		assert.Equal(t, 800, cfg.Chunker.ChunkSize)
		assert.Equal(t, 100, cfg.Chunker.ChunkOverlap)
		assert.Equal(t, 5, cfg.Retrieval.TopK)
		assert.Equal(t, "all-minilm", cfg.Embedding.Model)
		assert.Equal(t, "http://studio:1234", cfg.Generator.BaseURL)
		assert.Equal(t, "secret", cfg.Generator.APIKey)
		assert.Equal(t, 30*time.Second, cfg.Generator.Timeout)
		assert.True(t, cfg.Log.JSON)
	})

	t.Run("Should let explicit overrides win over the environment", func(t *testing.T) {
		cfg, err := NewLoader(environ("CHUNK_SIZE=800", "TOP_K_CHUNKS=5"), WithEnvFiles()).
			Load(map[string]any{"chunker.chunk_size": 300})
		require.NoError(t, err)
		assert.Equal(t, 300, cfg.Chunker.ChunkSize)
		assert.Equal(t, 5, cfg.Retrieval.TopK)
	})

	t.Run("Should ignore blank environment values", func(t *testing.T) {
		cfg, err := NewLoader(environ("CHUNK_SIZE="), WithEnvFiles()).Load(nil)
		require.NoError(t, err)
		assert.Equal(t, 500, cfg.Chunker.ChunkSize)
	})

	t.Run("Should read dotenv files below the real environment", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), ".env")
		require.NoError(t, os.WriteFile(path, []byte("CHUNK_SIZE=640\nTOP_K_CHUNKS=7\n"), 0o644))
		cfg, err := NewLoader(environ("TOP_K_CHUNKS=2"), WithEnvFiles(path)).Load(nil)
		require.NoError(t, err)
		assert.Equal(t, 640, cfg.Chunker.ChunkSize)
		assert.Equal(t, 2, cfg.Retrieval.TopK)
	})

	t.Run("Should skip missing dotenv files", func(t *testing.T) {
		_, err := NewLoader(environ(), WithEnvFiles(filepath.Join(t.TempDir(), "nope.env"))).Load(nil)
		require.NoError(t, err)
	})

	t.Run("Should reject invalid values", func(t *testing.T) {
		tests := []struct {
			name      string
			overrides map[string]any
		}{
			{name: "overlap not below size", overrides: map[string]any{"chunker.chunk_size": 50, "chunker.chunk_overlap": 50}},
			{name: "zero chunk size", overrides: map[string]any{"chunker.chunk_size": 0}},
			{name: "zero top k", overrides: map[string]any{"retrieval.top_k": 0}},
			{name: "unknown embedding provider", overrides: map[string]any{"embedding.provider": "bert"}},
			{name: "temperature out of range", overrides: map[string]any{"generator.temperature": 3.5}},
		}
		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				_, err := NewLoader(environ(), WithEnvFiles()).Load(tt.overrides)
				require.Error(t, err)
				assert.Contains(t, err.Error(), "validation failed")
			})
		}
	})

	t.Run("Should fail to decode non-numeric sizes", func(t *testing.T) {
		_, err := NewLoader(environ("CHUNK_SIZE=big"), WithEnvFiles()).Load(nil)
		require.Error(t, err)
	})
}

func TestEnvMappings(t *testing.T) {
	paths := make(map[string]string)
	for _, m := range EnvMappings() {
		paths[m.EnvVar] = m.ConfigPath
	}
	assert.Equal(t, "chunker.chunk_size", paths["CHUNK_SIZE"])
	assert.Equal(t, "retrieval.top_k", paths["TOP_K_CHUNKS"])
	assert.Equal(t, "store.path", paths["RAGFLOW_DB_PATH"])
	assert.Equal(t, "generator.base_url", paths["LM_STUDIO_BASE_URL"])
	assert.Equal(t, "log.level", paths["LOG_LEVEL"])
}

func TestConfig_Chunking(t *testing.T) {
	cfg := Default()
	cc := cfg.Chunking()
	assert.Equal(t, 500, cc.ChunkSize)
	assert.Equal(t, 50, cc.ChunkOverlap)
	assert.Nil(t, cc.Separators)
}
