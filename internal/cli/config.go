package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/dlawler/docchat/internal/config"
	"github.com/dlawler/docchat/internal/ui"
)

// configCmd represents the config command
var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show the effective configuration",
	RunE:  runConfig,
}

func runConfig(cmd *cobra.Command, args []string) error {
	cfg := config.Get()

	if path := config.ConfigFilePath(); path != "" {
		fmt.Printf("Config file: %s\n\n", path)
	} else {
		fmt.Println("Config file: (none, using defaults)")
		fmt.Println()
	}

	fmt.Println(ui.SectionTitle.Render("Embeddings"))
	fmt.Printf("  provider: %s\n", cfg.Embeddings.Provider)
	fmt.Printf("  ollama.url: %s\n", cfg.Embeddings.Ollama.URL)
	fmt.Printf("  ollama.model: %s\n", cfg.Embeddings.Ollama.Model)
	fmt.Printf("  openai.model: %s\n", cfg.Embeddings.OpenAI.Model)
	fmt.Printf("  openai.api_key: %s\n", maskKey(cfg.Embeddings.OpenAI.APIKey))

	fmt.Println(ui.SectionTitle.Render("Database"))
	fmt.Printf("  path: %s\n", cfg.Database.Path)

	fmt.Println(ui.SectionTitle.Render("Indexing"))
	fmt.Printf("  chunk_size: %d\n", cfg.Indexing.ChunkSize)
	fmt.Printf("  chunk_overlap: %d\n", cfg.Indexing.ChunkOverlap)
	fmt.Printf("  embed_batch_size: %d\n", cfg.Indexing.EmbedBatchSize)
	fmt.Printf("  extensions: %s\n", strings.Join(cfg.Indexing.Extensions, " "))
	fmt.Printf("  exclude_dirs: %s\n", strings.Join(cfg.Indexing.ExcludeDirs, " "))

	fmt.Println(ui.SectionTitle.Render("Retrieval"))
	fmt.Printf("  top_k: %d\n", cfg.Retrieval.TopK)

	fmt.Println(ui.SectionTitle.Render("LLM"))
	fmt.Printf("  provider: %s\n", cfg.LLM.Provider)
	fmt.Printf("  max_tokens: %d\n", cfg.LLM.MaxTokens)
	fmt.Printf("  history_limit: %d\n", cfg.LLM.HistoryLimit)
	fmt.Printf("  ollama.model: %s\n", cfg.LLM.Ollama.Model)
	fmt.Printf("  openai.model: %s\n", cfg.LLM.OpenAI.Model)
	fmt.Printf("  anthropic.model: %s\n", cfg.LLM.Anthropic.Model)
	fmt.Printf("  anthropic.api_key: %s\n", maskKey(cfg.LLM.Anthropic.APIKey))

	fmt.Println(ui.SectionTitle.Render("Server"))
	fmt.Printf("  host: %s\n", cfg.Server.Host)
	fmt.Printf("  port: %d\n", cfg.Server.Port)

	return nil
}

// maskKey hides all but the tail of an API key.
func maskKey(key string) string {
	if key == "" {
		return "(not set)"
	}
	if len(key) <= 8 {
		return "****"
	}
	return "****" + key[len(key)-4:]
}
