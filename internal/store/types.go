// Package store provides vector storage and retrieval using SQLite and sqlite-vec.
package store

// ChunkInput represents a chunk to be stored.
type ChunkInput struct {
	FilePath   string `json:"file_path"`
	ChunkIndex int    `json:"chunk_index"`
	Content    string `json:"content"`
}

// ChunkRecord represents a stored chunk.
type ChunkRecord struct {
	ID         int64  `json:"id"`
	FilePath   string `json:"file_path"`
	ChunkIndex int    `json:"chunk_index"`
	Content    string `json:"content"`
	Deleted    bool   `json:"deleted"`
}

// SearchResult represents a search hit with its similarity score.
type SearchResult struct {
	Chunk    ChunkRecord `json:"chunk"`
	Distance float64     `json:"distance"` // Cosine distance from sqlite-vec
	Score    float64     `json:"score"`    // 1 - distance (similarity)
}

// Stats summarizes the live contents of the store.
type Stats struct {
	TotalChunks int `json:"total_chunks"` // non-deleted chunks only
	Dimension   int `json:"dimension"`
	Files       int `json:"files"`
}

// FileEntry describes one indexed file for introspection.
type FileEntry struct {
	FilePath   string `json:"file_path"`
	FileName   string `json:"file_name"`
	Extension  string `json:"extension"`
	ChunkCount int    `json:"chunk_count"`
	Hash       string `json:"hash"`
}

// RunMutation is the full mutation set of one indexing run. The store applies
// it in a single transaction so the hash table and the vector index are
// always persisted together or not at all.
type RunMutation struct {
	// SoftDeletePaths marks every live chunk of these paths deleted.
	SoftDeletePaths []string

	// RemoveHashPaths drops these paths from the hash table.
	RemoveHashPaths []string

	// Chunks and Vectors are the fresh entries to append, index-aligned.
	Chunks  []ChunkInput
	Vectors [][]float32

	// SetHashes records the new content hash for each (re)indexed path.
	SetHashes map[string]string

	// Model stamps the embedding model identifier used for the vectors.
	Model string
}
