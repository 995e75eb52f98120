package store

import (
	"database/sql"
	"encoding/binary"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"sync"

	"github.com/charmbracelet/log"
	_ "github.com/mattn/go-sqlite3"

	sqlite_vec "github.com/asg017/sqlite-vec-go-bindings/cgo"
)

func init() {
	// Register sqlite-vec extension
	sqlite_vec.Auto()
}

// Store is a vector store backed by SQLite and sqlite-vec. Vectors are
// append-only: once a chunk's vector is inserted its rowid is stable and
// never reused. Logical removal is the deleted flag on the chunks table.
type Store struct {
	db  *sql.DB
	mu  sync.RWMutex
	dim int
}

// New opens (or creates) a store at the given path. A missing database file
// yields an empty store, not an error.
func New(dbPath string) (*Store, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := initSchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	s := &Store{db: db}
	if err := s.loadMeta(); err != nil {
		db.Close()
		return nil, err
	}

	log.Debug("Opened store", "path", dbPath, "dimension", s.dim)

	return s, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// loadMeta restores the pinned dimension from the meta table.
func (s *Store) loadMeta() error {
	var value string
	err := s.db.QueryRow("SELECT value FROM meta WHERE key = 'dimension'").Scan(&value)
	if err == sql.ErrNoRows {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to load store metadata: %w", err)
	}

	dim, err := strconv.Atoi(value)
	if err != nil {
		return fmt.Errorf("corrupt dimension metadata %q: %w", value, err)
	}
	s.dim = dim
	return nil
}

// Dimension returns the pinned embedding dimension, or 0 if the store has
// never held a vector.
func (s *Store) Dimension() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.dim
}

// Model returns the embedding model identifier stamped into the store, or
// empty if none has been recorded yet.
func (s *Store) Model() string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var value string
	err := s.db.QueryRow("SELECT value FROM meta WHERE key = 'embedding_model'").Scan(&value)
	if err != nil {
		return ""
	}
	return value
}

// ApplyRun applies the full mutation set of one indexing run in a single
// transaction: soft-deletes, hash-table removals, fresh chunks with their
// vectors, and hash-table updates. Either everything commits or nothing does.
func (s *Store) ApplyRun(m RunMutation) error {
	if len(m.Chunks) != len(m.Vectors) {
		return fmt.Errorf("%w: %d != %d", ErrLengthMismatch, len(m.Chunks), len(m.Vectors))
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	// Validate the whole batch against the pinned dimension before touching
	// anything. The store adopts the first-ever vector's dimension.
	dim := s.dim
	for i, v := range m.Vectors {
		if len(v) == 0 {
			return fmt.Errorf("%w: empty vector at index %d", ErrDimensionMismatch, i)
		}
		if dim == 0 {
			dim = len(v)
		}
		if len(v) != dim {
			return fmt.Errorf("%w: vector %d has dimension %d, store is pinned to %d",
				ErrDimensionMismatch, i, len(v), dim)
		}
	}

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if s.dim == 0 && dim > 0 {
		if err := createVectorTable(tx, dim); err != nil {
			return fmt.Errorf("failed to create vector table: %w", err)
		}
		if _, err := tx.Exec("INSERT OR REPLACE INTO meta (key, value) VALUES ('dimension', ?)", strconv.Itoa(dim)); err != nil {
			return fmt.Errorf("failed to record dimension: %w", err)
		}
	}

	for _, path := range m.SoftDeletePaths {
		if _, err := tx.Exec("UPDATE chunks SET deleted = 1 WHERE file_path = ? AND deleted = 0", path); err != nil {
			return fmt.Errorf("failed to soft-delete chunks for %s: %w", path, err)
		}
	}

	for _, path := range m.RemoveHashPaths {
		if _, err := tx.Exec("DELETE FROM files WHERE path = ?", path); err != nil {
			return fmt.Errorf("failed to remove hash for %s: %w", path, err)
		}
	}

	for i, chunk := range m.Chunks {
		result, err := tx.Exec(`
			INSERT INTO chunks (file_path, chunk_index, content, deleted)
			VALUES (?, ?, ?, 0)
		`, chunk.FilePath, chunk.ChunkIndex, chunk.Content)
		if err != nil {
			return fmt.Errorf("failed to insert chunk %d: %w", i, err)
		}

		chunkID, _ := result.LastInsertId()

		_, err = tx.Exec(`
			INSERT INTO chunk_vectors (chunk_id, embedding)
			VALUES (?, ?)
		`, chunkID, serializeEmbedding(m.Vectors[i]))
		if err != nil {
			return fmt.Errorf("failed to insert vector for chunk %d: %w", i, err)
		}
	}

	for path, hash := range m.SetHashes {
		_, err := tx.Exec(`
			INSERT INTO files (path, hash, indexed_at) VALUES (?, ?, datetime('now'))
			ON CONFLICT(path) DO UPDATE SET hash = excluded.hash, indexed_at = excluded.indexed_at
		`, path, hash)
		if err != nil {
			return fmt.Errorf("failed to record hash for %s: %w", path, err)
		}
	}

	if m.Model != "" {
		if _, err := tx.Exec("INSERT OR REPLACE INTO meta (key, value) VALUES ('embedding_model', ?)", m.Model); err != nil {
			return fmt.Errorf("failed to record embedding model: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit run: %w", err)
	}

	if s.dim == 0 {
		s.dim = dim
	}
	return nil
}

// Add appends a batch of chunks with their vectors. The whole batch fails
// with ErrDimensionMismatch if any vector disagrees with the pinned
// dimension.
func (s *Store) Add(chunks []ChunkInput, vectors [][]float32) error {
	return s.ApplyRun(RunMutation{Chunks: chunks, Vectors: vectors})
}

// SoftDeleteFile marks every live chunk owned by the path deleted. The
// vectors stay in the index; they are only excluded logically. Idempotent.
func (s *Store) SoftDeleteFile(path string) error {
	return s.ApplyRun(RunMutation{SoftDeletePaths: []string{path}})
}

// Search returns the k nearest non-deleted chunks by cosine similarity,
// descending score, ties broken by earliest insertion. The vec0 index has no
// notion of the deleted flag, so the query over-fetches and post-filters,
// growing the candidate pool until k live rows survive or the pool covers
// every physical vector. An empty or dimension-less store returns no
// results, not an error.
func (s *Store) Search(queryVector []float32, k int) ([]SearchResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.dim == 0 || k <= 0 {
		return nil, nil
	}
	if len(queryVector) != s.dim {
		return nil, fmt.Errorf("%w: query has dimension %d, store is pinned to %d",
			ErrDimensionMismatch, len(queryVector), s.dim)
	}

	var physical int
	if err := s.db.QueryRow("SELECT COUNT(*) FROM chunk_vectors").Scan(&physical); err != nil {
		return nil, fmt.Errorf("failed to count vectors: %w", err)
	}
	if physical == 0 {
		return nil, nil
	}

	queryBlob := serializeEmbedding(queryVector)

	kVec := k * 4
	if kVec < 16 {
		kVec = 16
	}

	for {
		if kVec > physical {
			kVec = physical
		}

		results, err := s.searchOnce(queryBlob, kVec, k)
		if err != nil {
			return nil, err
		}
		if len(results) >= k || kVec >= physical {
			return results, nil
		}
		kVec *= 4
	}
}

// searchOnce runs one candidate-pool query of size kVec, filtered to live
// chunks and capped at k.
func (s *Store) searchOnce(queryBlob []byte, kVec, k int) ([]SearchResult, error) {
	rows, err := s.db.Query(`
		SELECT c.id, c.file_path, c.chunk_index, c.content, cv.distance
		FROM chunk_vectors cv
		JOIN chunks c ON c.id = cv.chunk_id
		WHERE cv.embedding MATCH ?
			AND k = ?
			AND c.deleted = 0
		ORDER BY cv.distance ASC, c.id ASC
		LIMIT ?
	`, queryBlob, kVec, k)
	if err != nil {
		return nil, fmt.Errorf("failed to search: %w", err)
	}
	defer rows.Close()

	var results []SearchResult
	for rows.Next() {
		var r SearchResult
		if err := rows.Scan(
			&r.Chunk.ID, &r.Chunk.FilePath, &r.Chunk.ChunkIndex,
			&r.Chunk.Content, &r.Distance,
		); err != nil {
			return nil, fmt.Errorf("failed to scan search result: %w", err)
		}
		r.Score = 1 - r.Distance
		results = append(results, r)
	}

	return results, rows.Err()
}

// Stats returns the live chunk count, the pinned dimension, and the number
// of tracked files. Soft-deleted chunks are not counted.
func (s *Store) Stats() (*Stats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := &Stats{Dimension: s.dim}

	if err := s.db.QueryRow("SELECT COUNT(*) FROM chunks WHERE deleted = 0").Scan(&stats.TotalChunks); err != nil {
		return nil, fmt.Errorf("failed to count chunks: %w", err)
	}
	if err := s.db.QueryRow("SELECT COUNT(*) FROM files").Scan(&stats.Files); err != nil {
		return nil, fmt.Errorf("failed to count files: %w", err)
	}

	return stats, nil
}

// FileHashes returns the persisted path -> content-hash table.
func (s *Store) FileHashes() (map[string]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.Query("SELECT path, hash FROM files")
	if err != nil {
		return nil, fmt.Errorf("failed to load hash table: %w", err)
	}
	defer rows.Close()

	hashes := make(map[string]string)
	for rows.Next() {
		var path, hash string
		if err := rows.Scan(&path, &hash); err != nil {
			return nil, fmt.Errorf("failed to scan hash row: %w", err)
		}
		hashes[path] = hash
	}

	return hashes, rows.Err()
}

// ListFiles returns every tracked file with its live chunk count.
func (s *Store) ListFiles() ([]FileEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.Query(`
		SELECT f.path, f.hash,
			(SELECT COUNT(*) FROM chunks c WHERE c.file_path = f.path AND c.deleted = 0)
		FROM files f
		ORDER BY f.path
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list files: %w", err)
	}
	defer rows.Close()

	var files []FileEntry
	for rows.Next() {
		var e FileEntry
		if err := rows.Scan(&e.FilePath, &e.Hash, &e.ChunkCount); err != nil {
			return nil, fmt.Errorf("failed to scan file row: %w", err)
		}
		e.FileName = filepath.Base(e.FilePath)
		e.Extension = filepath.Ext(e.FilePath)
		files = append(files, e)
	}

	return files, rows.Err()
}

// ChunksForFile returns every chunk recorded for a path, including
// soft-deleted ones. Used by tests and introspection.
func (s *Store) ChunksForFile(path string) ([]ChunkRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.Query(`
		SELECT id, file_path, chunk_index, content, deleted
		FROM chunks WHERE file_path = ? ORDER BY id
	`, path)
	if err != nil {
		return nil, fmt.Errorf("failed to load chunks: %w", err)
	}
	defer rows.Close()

	var chunks []ChunkRecord
	for rows.Next() {
		var c ChunkRecord
		var deleted int
		if err := rows.Scan(&c.ID, &c.FilePath, &c.ChunkIndex, &c.Content, &deleted); err != nil {
			return nil, fmt.Errorf("failed to scan chunk row: %w", err)
		}
		c.Deleted = deleted != 0
		chunks = append(chunks, c)
	}

	return chunks, rows.Err()
}

// serializeEmbedding converts a float32 slice to bytes for sqlite-vec.
func serializeEmbedding(embedding []float32) []byte {
	buf := make([]byte, len(embedding)*4)
	for i, v := range embedding {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(v))
	}
	return buf
}
