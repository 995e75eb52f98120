// Package server exposes indexing and chat over HTTP and WebSocket.
package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/charmbracelet/log"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/dlawler/docchat/internal/config"
	"github.com/dlawler/docchat/internal/indexer"
	"github.com/dlawler/docchat/internal/llm"
	"github.com/dlawler/docchat/internal/search"
	"github.com/dlawler/docchat/internal/store"
)

// Server serves the read-only API plus the indexing and chat channels.
type Server struct {
	cfg        *config.Config
	store      *store.Store
	indexer    *indexer.Indexer
	searcher   *search.Searcher
	llm        llm.Service
	router     chi.Router
	httpServer *http.Server
}

// New creates a server wired to the given components. llmSvc may be nil;
// the chat channel then rejects connections.
func New(cfg *config.Config, st *store.Store, ix *indexer.Indexer, searcher *search.Searcher, llmSvc llm.Service) *Server {
	s := &Server{
		cfg:      cfg,
		store:    st,
		indexer:  ix,
		searcher: searcher,
		llm:      llmSvc,
	}
	s.router = s.buildRouter()
	return s
}

func (s *Server) buildRouter() chi.Router {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	origins := s.cfg.Server.AllowOrigins
	if len(origins) == 0 {
		origins = []string{"http://localhost:*", "http://127.0.0.1:*"}
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"ok"}`))
	})

	// The timeout stays off the WebSocket routes; those connections are
	// long-lived.
	r.Route("/api", func(r chi.Router) {
		r.Use(middleware.Timeout(30 * time.Second))
		r.Get("/stats", s.handleStats)
		r.Get("/files", s.handleFiles)
	})

	r.Get("/ws/index", s.handleIndexSocket)
	r.Get("/ws/chat", s.handleChatSocket)

	return r
}

// Handler returns the HTTP handler, for embedding and tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start listens on the configured address until Shutdown or failure.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.cfg.Server.Host, s.cfg.Server.Port)
	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	log.Info("Server listening", "addr", addr)
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer != nil {
		return s.httpServer.Shutdown(ctx)
	}
	return nil
}
