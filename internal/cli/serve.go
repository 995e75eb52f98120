package cli

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"github.com/dlawler/docchat/internal/config"
	"github.com/dlawler/docchat/internal/embeddings"
	"github.com/dlawler/docchat/internal/indexer"
	"github.com/dlawler/docchat/internal/llm"
	"github.com/dlawler/docchat/internal/search"
	"github.com/dlawler/docchat/internal/server"
	"github.com/dlawler/docchat/internal/store"
)

var (
	serveHost string
	servePort int
)

// serveCmd represents the serve command
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the indexing and chat server",
	Long: `Run the HTTP/WebSocket server.

Endpoints:
  /ws/index    trigger an indexing run and stream its progress
  /ws/chat     grounded conversation over the index
  /api/stats   index statistics
  /api/files   indexed files
  /healthz     liveness check`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().StringVar(&serveHost, "host", "", "listen host (default from config)")
	serveCmd.Flags().IntVar(&servePort, "port", 0, "listen port (default from config)")
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg := config.Get()
	if serveHost != "" {
		cfg.Server.Host = serveHost
	}
	if servePort != 0 {
		cfg.Server.Port = servePort
	}

	st, err := store.New(cfg.Database.Path)
	if err != nil {
		return fmt.Errorf("failed to open store: %w", err)
	}
	defer st.Close()

	emb, err := embeddings.NewService(cfg)
	if err != nil {
		return fmt.Errorf("failed to create embedding service: %w", err)
	}

	// The server runs without an LLM; the chat channel just reports it.
	llmSvc, err := llm.NewService(cfg)
	if err != nil {
		log.Warn("Chat disabled", "error", err)
		llmSvc = nil
	}

	ix := indexer.New(st, emb, cfg)
	searcher := search.NewSearcher(st, emb)
	srv := server.New(cfg, st, ix, searcher, llmSvc)

	errCh := make(chan error, 1)
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return fmt.Errorf("server failed: %w", err)
	case sig := <-sigCh:
		log.Info("Shutting down", "signal", sig)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(ctx)
}
