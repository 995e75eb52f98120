package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func resetViper(t *testing.T) {
	t.Helper()
	viper.Reset()
	t.Cleanup(viper.Reset)
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.Equal(t, "ollama", cfg.Embeddings.Provider)
	assert.Equal(t, "nomic-embed-text", cfg.Embeddings.Ollama.Model)
	assert.Equal(t, DefaultChunkSize, cfg.Indexing.ChunkSize)
	assert.Equal(t, DefaultChunkOverlap, cfg.Indexing.ChunkOverlap)
	assert.Equal(t, DefaultTopK, cfg.Retrieval.TopK)
	assert.Equal(t, DefaultHistoryLimit, cfg.LLM.HistoryLimit)
	assert.Equal(t, DefaultServerPort, cfg.Server.Port)
	assert.Contains(t, cfg.Indexing.Extensions, ".md")
	assert.Contains(t, cfg.Indexing.ExcludeDirs, "node_modules")
	assert.Greater(t, cfg.Indexing.ChunkSize, cfg.Indexing.ChunkOverlap)
}

func TestLoadWithoutFileUsesDefaults(t *testing.T) {
	resetViper(t)

	require.NoError(t, Load(""))
	cfg := Get()

	assert.Equal(t, DefaultChunkSize, cfg.Indexing.ChunkSize)
	assert.Equal(t, "ollama", cfg.LLM.Provider)
}

func TestLoadFromFile(t *testing.T) {
	resetViper(t)

	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `
embeddings:
  provider: openai
  openai:
    model: text-embedding-3-large
indexing:
  chunk_size: 500
  chunk_overlap: 50
llm:
  history_limit: 6
server:
  port: 9100
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	require.NoError(t, Load(path))
	cfg := Get()

	assert.Equal(t, "openai", cfg.Embeddings.Provider)
	assert.Equal(t, "text-embedding-3-large", cfg.Embeddings.OpenAI.Model)
	assert.Equal(t, 500, cfg.Indexing.ChunkSize)
	assert.Equal(t, 50, cfg.Indexing.ChunkOverlap)
	assert.Equal(t, 6, cfg.LLM.HistoryLimit)
	assert.Equal(t, 9100, cfg.Server.Port)

	// Unset values keep their defaults.
	assert.Equal(t, DefaultTopK, cfg.Retrieval.TopK)
}

func TestLoadEnvOverride(t *testing.T) {
	resetViper(t)
	t.Setenv("DOCCHAT_SERVER_PORT", "9200")
	t.Setenv("DOCCHAT_LLM_PROVIDER", "anthropic")

	require.NoError(t, Load(""))
	cfg := Get()

	assert.Equal(t, 9200, cfg.Server.Port)
	assert.Equal(t, "anthropic", cfg.LLM.Provider)
}

func TestAPIKeysFromEnv(t *testing.T) {
	resetViper(t)
	t.Setenv("OPENAI_API_KEY", "sk-test-123")
	t.Setenv("ANTHROPIC_API_KEY", "ak-test-456")

	require.NoError(t, Load(""))
	cfg := Get()

	assert.Equal(t, "sk-test-123", cfg.Embeddings.OpenAI.APIKey)
	assert.Equal(t, "sk-test-123", cfg.LLM.OpenAI.APIKey)
	assert.Equal(t, "ak-test-456", cfg.LLM.Anthropic.APIKey)
}

func TestLoadBadFile(t *testing.T) {
	resetViper(t)

	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("indexing: ["), 0644))

	assert.Error(t, Load(path))
}
