package config

import (
	"os"
	"path/filepath"
)

// Default configuration values
const (
	// Embedding defaults
	DefaultEmbeddingProvider = "ollama"
	DefaultOllamaURL         = "http://localhost:11434"
	DefaultOllamaEmbedModel  = "nomic-embed-text"
	DefaultOpenAIEmbedModel  = "text-embedding-3-small"

	// LLM defaults
	DefaultLLMProvider    = "ollama"
	DefaultOllamaLLMModel = "llama3"
	DefaultOpenAILLMModel = "gpt-4o-mini"
	DefaultAnthropicModel = "claude-3-haiku-20240307"
	DefaultMaxTokens      = 2000
	DefaultHistoryLimit   = 20

	// Chunking defaults
	DefaultChunkSize    = 1000
	DefaultChunkOverlap = 200

	// Indexing defaults
	DefaultMaxFileSize       = 1 << 20 // 1MB
	DefaultEmbedBatchSize    = 32
	DefaultEmbedWorkers      = 4
	DefaultReadWorkers       = 8
	DefaultParallelMinChunks = 64

	// Retrieval defaults
	DefaultTopK = 5

	// Server defaults
	DefaultServerHost = "127.0.0.1"
	DefaultServerPort = 8000

	// Database
	DefaultDBFileName = "index.db"
)

// DefaultExtensions returns the file extensions indexed by default.
func DefaultExtensions() []string {
	return []string{
		".md", ".txt", ".rst",
		".py", ".go", ".js", ".ts", ".tsx", ".cs",
		".json", ".yaml", ".yml", ".toml",
	}
}

// DefaultExcludeDirs returns directory names that are never walked.
func DefaultExcludeDirs() []string {
	return []string{
		"node_modules",
		"vendor",
		"dist",
		"build",
		"target",
		"__pycache__",
		".git",
		".svn",
		".idea",
		".vscode",
		".venv",
		"venv",
	}
}

// DefaultConfigDir returns the default configuration directory path.
func DefaultConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".config/docchat"
	}
	return filepath.Join(home, ".config", "docchat")
}

// DefaultDataDir returns the default data directory path.
func DefaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".local/share/docchat"
	}
	return filepath.Join(home, ".local", "share", "docchat")
}

// DefaultDatabasePath returns the default database file path.
func DefaultDatabasePath() string {
	return filepath.Join(DefaultDataDir(), DefaultDBFileName)
}
