package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"github.com/dlawler/docchat/internal/config"
	"github.com/dlawler/docchat/internal/embeddings"
	"github.com/dlawler/docchat/internal/indexer"
	"github.com/dlawler/docchat/internal/store"
	"github.com/dlawler/docchat/internal/ui"
	"github.com/dlawler/docchat/internal/watcher"
)

var watchDebounce time.Duration

// watchCmd represents the watch command
var watchCmd = &cobra.Command{
	Use:   "watch [path]",
	Short: "Watch a directory and keep the index current",
	Long: `Watch the directory for changes and re-run incremental indexing when
files are added, modified, or removed. Runs an initial pass on startup.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runWatch,
}

func init() {
	watchCmd.Flags().DurationVar(&watchDebounce, "debounce", 500*time.Millisecond, "wait this long after the last change before indexing")
}

func runWatch(cmd *cobra.Command, args []string) error {
	path := "."
	if len(args) > 0 {
		path = args[0]
	}
	absPath, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("failed to resolve path: %w", err)
	}

	cfg := config.Get()

	st, err := store.New(cfg.Database.Path)
	if err != nil {
		return fmt.Errorf("failed to open store: %w", err)
	}
	defer st.Close()

	emb, err := embeddings.NewService(cfg)
	if err != nil {
		return fmt.Errorf("failed to create embedding service: %w", err)
	}

	ix := indexer.New(st, emb, cfg)

	sink := indexer.SinkFunc(func(e indexer.Event) {
		switch e.Type {
		case indexer.EventStats:
			added, _ := e.Data["new"].(int)
			modified, _ := e.Data["modified"].(int)
			deleted, _ := e.Data["deleted"].(int)
			if added+modified+deleted > 0 {
				log.Info("Index updated", "new", added, "modified", modified, "deleted", deleted)
			}
		case indexer.EventError:
			log.Warn("Skipping unreadable file", "file", e.Data["file"], "error", e.Data["message"])
		}
	})

	w, err := watcher.New(absPath, ix, cfg,
		watcher.WithDebounce(watchDebounce),
		watcher.WithSink(sink),
	)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigCh
		fmt.Println("\nStopping watch")
		cancel()
	}()

	fmt.Println(ui.Header.Render("Watching " + absPath))

	if err := w.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}
