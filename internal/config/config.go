// Package config handles configuration loading and validation for docchat.
package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/spf13/viper"
)

// Config represents the complete docchat configuration.
type Config struct {
	Embeddings EmbeddingsConfig `mapstructure:"embeddings"`
	Database   DatabaseConfig   `mapstructure:"database"`
	Indexing   IndexingConfig   `mapstructure:"indexing"`
	Retrieval  RetrievalConfig  `mapstructure:"retrieval"`
	LLM        LLMConfig        `mapstructure:"llm"`
	Server     ServerConfig     `mapstructure:"server"`
}

// EmbeddingsConfig configures the embedding service.
type EmbeddingsConfig struct {
	Provider string            `mapstructure:"provider"`
	Ollama   OllamaEmbedConfig `mapstructure:"ollama"`
	OpenAI   OpenAIEmbedConfig `mapstructure:"openai"`
}

// OllamaEmbedConfig configures Ollama embeddings.
type OllamaEmbedConfig struct {
	URL   string `mapstructure:"url"`
	Model string `mapstructure:"model"`
}

// OpenAIEmbedConfig configures OpenAI embeddings.
type OpenAIEmbedConfig struct {
	Model      string `mapstructure:"model"`
	BaseURL    string `mapstructure:"base_url"`
	APIKey     string `mapstructure:"api_key"`
	Dimensions int    `mapstructure:"dimensions"`
}

// DatabaseConfig configures the SQLite database.
type DatabaseConfig struct {
	Path string `mapstructure:"path"`
}

// IndexingConfig configures the indexing pipeline.
type IndexingConfig struct {
	ChunkSize         int      `mapstructure:"chunk_size"`
	ChunkOverlap      int      `mapstructure:"chunk_overlap"`
	MaxFileSize       int      `mapstructure:"max_file_size"`
	Extensions        []string `mapstructure:"extensions"`
	ExcludeDirs       []string `mapstructure:"exclude_dirs"`
	EmbedBatchSize    int      `mapstructure:"embed_batch_size"`
	EmbedWorkers      int      `mapstructure:"embed_workers"`
	ReadWorkers       int      `mapstructure:"read_workers"`
	ParallelMinChunks int      `mapstructure:"parallel_min_chunks"`
}

// RetrievalConfig configures query-time retrieval.
type RetrievalConfig struct {
	TopK int `mapstructure:"top_k"`
}

// LLMConfig configures the generation service.
type LLMConfig struct {
	Provider     string          `mapstructure:"provider"`
	MaxTokens    int             `mapstructure:"max_tokens"`
	HistoryLimit int             `mapstructure:"history_limit"`
	Ollama       OllamaLLMConfig `mapstructure:"ollama"`
	OpenAI       OpenAILLMConfig `mapstructure:"openai"`
	Anthropic    AnthropicConfig `mapstructure:"anthropic"`
}

// OllamaLLMConfig configures Ollama generation.
type OllamaLLMConfig struct {
	URL   string `mapstructure:"url"`
	Model string `mapstructure:"model"`
}

// OpenAILLMConfig configures OpenAI generation.
type OpenAILLMConfig struct {
	Model   string `mapstructure:"model"`
	BaseURL string `mapstructure:"base_url"`
	APIKey  string `mapstructure:"api_key"`
}

// AnthropicConfig configures Anthropic generation.
type AnthropicConfig struct {
	Model  string `mapstructure:"model"`
	APIKey string `mapstructure:"api_key"`
}

// ServerConfig configures the HTTP/WebSocket server.
type ServerConfig struct {
	Host         string   `mapstructure:"host"`
	Port         int      `mapstructure:"port"`
	AllowOrigins []string `mapstructure:"allow_origins"`
}

// Global configuration instance
var cfg *Config

// Get returns the current configuration.
func Get() *Config {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	return cfg
}

// DefaultConfig returns a configuration with default values.
func DefaultConfig() *Config {
	return &Config{
		Embeddings: EmbeddingsConfig{
			Provider: DefaultEmbeddingProvider,
			Ollama: OllamaEmbedConfig{
				URL:   DefaultOllamaURL,
				Model: DefaultOllamaEmbedModel,
			},
			OpenAI: OpenAIEmbedConfig{
				Model: DefaultOpenAIEmbedModel,
			},
		},
		Database: DatabaseConfig{
			Path: DefaultDatabasePath(),
		},
		Indexing: IndexingConfig{
			ChunkSize:         DefaultChunkSize,
			ChunkOverlap:      DefaultChunkOverlap,
			MaxFileSize:       DefaultMaxFileSize,
			Extensions:        DefaultExtensions(),
			ExcludeDirs:       DefaultExcludeDirs(),
			EmbedBatchSize:    DefaultEmbedBatchSize,
			EmbedWorkers:      DefaultEmbedWorkers,
			ReadWorkers:       DefaultReadWorkers,
			ParallelMinChunks: DefaultParallelMinChunks,
		},
		Retrieval: RetrievalConfig{
			TopK: DefaultTopK,
		},
		LLM: LLMConfig{
			Provider:     DefaultLLMProvider,
			MaxTokens:    DefaultMaxTokens,
			HistoryLimit: DefaultHistoryLimit,
			Ollama: OllamaLLMConfig{
				URL:   DefaultOllamaURL,
				Model: DefaultOllamaLLMModel,
			},
			OpenAI: OpenAILLMConfig{
				Model: DefaultOpenAILLMModel,
			},
			Anthropic: AnthropicConfig{
				Model: DefaultAnthropicModel,
			},
		},
		Server: ServerConfig{
			Host: DefaultServerHost,
			Port: DefaultServerPort,
		},
	}
}

// Load reads configuration from file and environment variables.
func Load(configFile string) error {
	setDefaults()

	if configFile != "" {
		viper.SetConfigFile(configFile)
	} else {
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(DefaultConfigDir())
		viper.AddConfigPath(".")
	}

	// Environment variables: DOCCHAT_SERVER_PORT, DOCCHAT_LLM_PROVIDER, ...
	viper.SetEnvPrefix("DOCCHAT")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return fmt.Errorf("error reading config file: %w", err)
		}
		log.Debug("No config file found, using defaults")
	} else {
		log.Debug("Loaded config from", "file", viper.ConfigFileUsed())
	}

	cfg = &Config{}
	if err := viper.Unmarshal(cfg); err != nil {
		return fmt.Errorf("error parsing config: %w", err)
	}

	loadAPIKeysFromEnv()

	return nil
}

// setDefaults sets default values in viper.
func setDefaults() {
	viper.SetDefault("embeddings.provider", DefaultEmbeddingProvider)
	viper.SetDefault("embeddings.ollama.url", DefaultOllamaURL)
	viper.SetDefault("embeddings.ollama.model", DefaultOllamaEmbedModel)
	viper.SetDefault("embeddings.openai.model", DefaultOpenAIEmbedModel)

	viper.SetDefault("database.path", DefaultDatabasePath())

	viper.SetDefault("indexing.chunk_size", DefaultChunkSize)
	viper.SetDefault("indexing.chunk_overlap", DefaultChunkOverlap)
	viper.SetDefault("indexing.max_file_size", DefaultMaxFileSize)
	viper.SetDefault("indexing.extensions", DefaultExtensions())
	viper.SetDefault("indexing.exclude_dirs", DefaultExcludeDirs())
	viper.SetDefault("indexing.embed_batch_size", DefaultEmbedBatchSize)
	viper.SetDefault("indexing.embed_workers", DefaultEmbedWorkers)
	viper.SetDefault("indexing.read_workers", DefaultReadWorkers)
	viper.SetDefault("indexing.parallel_min_chunks", DefaultParallelMinChunks)

	viper.SetDefault("retrieval.top_k", DefaultTopK)

	viper.SetDefault("llm.provider", DefaultLLMProvider)
	viper.SetDefault("llm.max_tokens", DefaultMaxTokens)
	viper.SetDefault("llm.history_limit", DefaultHistoryLimit)
	viper.SetDefault("llm.ollama.url", DefaultOllamaURL)
	viper.SetDefault("llm.ollama.model", DefaultOllamaLLMModel)
	viper.SetDefault("llm.openai.model", DefaultOpenAILLMModel)
	viper.SetDefault("llm.anthropic.model", DefaultAnthropicModel)

	viper.SetDefault("server.host", DefaultServerHost)
	viper.SetDefault("server.port", DefaultServerPort)
}

// loadAPIKeysFromEnv loads API keys from environment variables if not already set.
func loadAPIKeysFromEnv() {
	if cfg.Embeddings.OpenAI.APIKey == "" {
		if key := os.Getenv("OPENAI_API_KEY"); key != "" {
			cfg.Embeddings.OpenAI.APIKey = key
		}
	}
	if cfg.LLM.OpenAI.APIKey == "" {
		if key := os.Getenv("OPENAI_API_KEY"); key != "" {
			cfg.LLM.OpenAI.APIKey = key
		}
	}
	if cfg.LLM.Anthropic.APIKey == "" {
		if key := os.Getenv("ANTHROPIC_API_KEY"); key != "" {
			cfg.LLM.Anthropic.APIKey = key
		}
	}
}

// ConfigFilePath returns the path of the loaded config file, or empty string if none.
func ConfigFilePath() string {
	return viper.ConfigFileUsed()
}
