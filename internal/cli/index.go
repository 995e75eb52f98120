package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/charmbracelet/log"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"github.com/dlawler/docchat/internal/config"
	"github.com/dlawler/docchat/internal/embeddings"
	"github.com/dlawler/docchat/internal/indexer"
	"github.com/dlawler/docchat/internal/store"
	"github.com/dlawler/docchat/internal/ui"
)

// indexCmd represents the index command
var indexCmd = &cobra.Command{
	Use:   "index [path]",
	Short: "Index a documentation directory",
	Long: `Index the documents in a directory (or the current directory) for retrieval.

Indexing is incremental. Each run:
1. Scans the directory and hashes every eligible file
2. Skips unchanged files, re-chunks new and modified ones
3. Embeds the fresh chunks and commits everything in one step
4. Drops deleted files from retrieval

Examples:
  # Index current directory
  docchat index

  # Index a specific directory
  docchat index ./docs`,
	Args: cobra.MaximumNArgs(1),
	RunE: runIndex,
}

func runIndex(cmd *cobra.Command, args []string) error {
	path := "."
	if len(args) > 0 {
		path = args[0]
	}
	absPath, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("failed to resolve path: %w", err)
	}

	cfg := config.Get()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigCh
		fmt.Println("\nInterrupted, nothing was committed")
		cancel()
	}()

	st, err := store.New(cfg.Database.Path)
	if err != nil {
		return fmt.Errorf("failed to open store: %w", err)
	}
	defer st.Close()

	emb, err := embeddings.NewService(cfg)
	if err != nil {
		return fmt.Errorf("failed to create embedding service: %w", err)
	}

	fmt.Println(ui.Header.Render("Indexing " + filepath.Base(absPath)))
	fmt.Printf("Path: %s\n", absPath)
	fmt.Printf("Provider: %s (%s)\n", emb.Provider(), emb.ModelName())
	fmt.Println()

	start := time.Now()
	ix := indexer.New(st, emb, cfg)

	var bar *progressbar.ProgressBar
	sink := indexer.SinkFunc(func(e indexer.Event) {
		switch e.Type {
		case indexer.EventScanStart:
			fmt.Println("Scanning files...")
		case indexer.EventFileProcessed:
			log.Debug("Processed file", "file", e.Data["file"], "chunks", e.Data["chunks"])
		case indexer.EventFileDeleted:
			log.Debug("File removed from index", "file", e.Data["file"])
		case indexer.EventError:
			log.Warn("Skipping unreadable file", "file", e.Data["file"], "error", e.Data["message"])
		case indexer.EventEmbeddingStart:
			total, _ := e.Data["total_chunks"].(int)
			if total > 0 {
				bar = progressbar.NewOptions(total,
					progressbar.OptionSetDescription("Embedding"),
					progressbar.OptionShowCount(),
					progressbar.OptionClearOnFinish(),
				)
			}
		case indexer.EventEmbeddingProgress:
			if bar != nil {
				if n, ok := e.Data["processed"].(int64); ok {
					_ = bar.Set64(n)
				}
			}
		case indexer.EventEmbeddingComplete:
			if bar != nil {
				_ = bar.Finish()
			}
		case indexer.EventSaving:
			fmt.Println("Saving index...")
		}
	})

	summary, err := ix.Run(ctx, absPath, sink)
	if err != nil {
		if ctx.Err() != nil {
			fmt.Println(ui.Warning.Render("Indexing cancelled"))
			return nil
		}
		return fmt.Errorf("indexing failed: %w", err)
	}

	fmt.Println(ui.Success.Render("Indexing complete!"))
	fmt.Println()
	fmt.Printf("  Files:     %d\n", summary.Files)
	fmt.Printf("  Chunks:    %d\n", summary.Chunks)
	fmt.Printf("  New:       %d\n", summary.New)
	fmt.Printf("  Modified:  %d\n", summary.Modified)
	fmt.Printf("  Unchanged: %d\n", summary.Unchanged)
	fmt.Printf("  Deleted:   %d\n", summary.Deleted)
	fmt.Printf("  Duration:  %s\n", time.Since(start).Round(time.Millisecond))

	return nil
}
