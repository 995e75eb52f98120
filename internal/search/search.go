// Package search performs semantic retrieval over the indexed store.
package search

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/log"

	"github.com/dlawler/docchat/internal/embeddings"
	"github.com/dlawler/docchat/internal/store"
)

// Source is one retrieved chunk with its provenance and similarity score.
type Source struct {
	Text       string  `json:"text"`
	FilePath   string  `json:"file_path"`
	FileName   string  `json:"file_name"`
	ChunkIndex int     `json:"chunk_index"`
	Score      float64 `json:"score"`
}

// Searcher retrieves relevant chunks for natural-language queries.
type Searcher struct {
	store    *store.Store
	embedder embeddings.Service
}

// NewSearcher creates a searcher over the given store and embedder.
func NewSearcher(st *store.Store, embedder embeddings.Service) *Searcher {
	return &Searcher{store: st, embedder: embedder}
}

// Retrieve embeds the query and returns up to k sources ordered by
// descending similarity. An empty store yields no sources, not an error.
func (s *Searcher) Retrieve(ctx context.Context, query string, k int) ([]Source, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, fmt.Errorf("query is empty")
	}
	if k <= 0 {
		return nil, nil
	}

	if stored := s.store.Model(); stored != "" && stored != s.embedder.ModelName() {
		log.Warn("Index was built with a different embedding model",
			"index_model", stored, "query_model", s.embedder.ModelName())
	}

	vec, err := s.embedder.EmbedQuery(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}

	results, err := s.store.Search(vec, k)
	if err != nil {
		return nil, err
	}

	sources := make([]Source, 0, len(results))
	for _, r := range results {
		sources = append(sources, Source{
			Text:       r.Chunk.Content,
			FilePath:   r.Chunk.FilePath,
			FileName:   baseName(r.Chunk.FilePath),
			ChunkIndex: r.Chunk.ChunkIndex,
			Score:      r.Score,
		})
	}

	return sources, nil
}

func baseName(path string) string {
	if i := strings.LastIndexAny(path, "/\\"); i >= 0 {
		return path[i+1:]
	}
	return path
}
