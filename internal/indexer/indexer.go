// Package indexer orchestrates incremental indexing runs: scan, diff,
// chunk, embed, and a single atomic persistence step.
package indexer

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"

	"github.com/charmbracelet/log"

	"github.com/dlawler/docchat/internal/config"
	"github.com/dlawler/docchat/internal/embeddings"
	"github.com/dlawler/docchat/internal/fs"
	"github.com/dlawler/docchat/internal/store"
)

// ErrBusy is returned when a run is requested while another is in flight.
// At most one indexing run mutates the store at a time.
var ErrBusy = errors.New("an indexing run is already in progress")

// Summary reports what one run changed.
type Summary struct {
	Files     int `json:"files"`
	Chunks    int `json:"chunks"`
	New       int `json:"new"`
	Modified  int `json:"modified"`
	Unchanged int `json:"unchanged"`
	Deleted   int `json:"deleted"`
}

// Indexer drives incremental indexing of a document tree into the store.
type Indexer struct {
	store    *store.Store
	embedder embeddings.Service
	chunker  *fs.TextChunker
	cfg      *config.Config
	running  atomic.Bool
}

// New creates an indexer.
func New(st *store.Store, embedder embeddings.Service, cfg *config.Config) *Indexer {
	return &Indexer{
		store:    st,
		embedder: embedder,
		chunker:  fs.NewTextChunker(cfg.Indexing.ChunkSize, cfg.Indexing.ChunkOverlap),
		cfg:      cfg,
	}
}

// pendingFile is a changed file waiting to be read and chunked.
type pendingFile struct {
	info    fs.FileInfo
	status  string // "new" or "modified"
	chunks  []string
	readErr error
}

// Run performs one incremental indexing pass over dir, emitting progress
// events to sink. Nothing is persisted unless the whole run succeeds; a
// failed run leaves the store exactly as it was. Returns ErrBusy if a run is
// already in flight.
func (ix *Indexer) Run(ctx context.Context, dir string, sink Sink) (*Summary, error) {
	if !ix.running.CompareAndSwap(false, true) {
		return nil, ErrBusy
	}
	defer ix.running.Store(false)

	summary, err := ix.run(ctx, dir, sink)
	if err != nil {
		emit(sink, EventFatalError, map[string]any{"message": err.Error()})
		return nil, err
	}
	return summary, nil
}

func (ix *Indexer) run(ctx context.Context, dir string, sink Sink) (*Summary, error) {
	dir, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("directory not accessible: %w", err)
	}
	info, err := os.Stat(dir)
	if err != nil {
		return nil, fmt.Errorf("directory not accessible: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("not a directory: %s", dir)
	}

	emit(sink, EventScanStart, map[string]any{"directory": dir})

	walker, err := fs.NewFileWalker(fs.WalkOptions{
		Root:         dir,
		Extensions:   ix.cfg.Indexing.Extensions,
		ExcludeDirs:  ix.cfg.Indexing.ExcludeDirs,
		MaxFileSize:  int64(ix.cfg.Indexing.MaxFileSize),
		UseGitignore: true,
	})
	if err != nil {
		return nil, err
	}

	scanned := make(map[string]string)
	infos := make(map[string]fs.FileInfo)
	err = walker.Walk(func(fi fs.FileInfo) error {
		scanned[fi.RelPath] = fi.Hash
		infos[fi.RelPath] = fi
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("scan failed: %w", err)
	}
	errored := make(map[string]bool)
	for _, fe := range walker.Errors() {
		rel, relErr := filepath.Rel(dir, fe.Path)
		if relErr != nil {
			rel = fe.Path
		}
		errored[rel] = true
		emit(sink, EventError, map[string]any{
			"message": fe.Err.Error(),
			"file":    rel,
		})
	}

	prior, err := ix.store.FileHashes()
	if err != nil {
		return nil, err
	}

	// A previously indexed file that errored during the scan is missing from
	// scanned; without this it would classify as deleted. It keeps its prior
	// hash and chunks and is retried next run.
	for path := range errored {
		delete(prior, path)
	}

	changes := fs.Classify(scanned, prior)
	log.Debug("Change detection complete",
		"new", len(changes.New), "modified", len(changes.Modified),
		"unchanged", len(changes.Unchanged), "deleted", len(changes.Deleted))

	for _, path := range changes.Deleted {
		emit(sink, EventFileDeleted, map[string]any{"file": path})
	}
	for _, path := range changes.Unchanged {
		emit(sink, EventFileSkipped, map[string]any{"file": path})
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	pending := make([]*pendingFile, 0, len(changes.New)+len(changes.Modified))
	for _, path := range changes.New {
		pending = append(pending, &pendingFile{info: infos[path], status: "new"})
	}
	for _, path := range changes.Modified {
		pending = append(pending, &pendingFile{info: infos[path], status: "modified"})
	}

	ix.readAndChunk(pending, sink)

	// Files that changed on disk but could not be read keep their prior
	// state: no soft delete, no hash update, no bucket. They will be retried
	// next run.
	kept := pending[:0]
	for _, pf := range pending {
		if pf.readErr != nil {
			emit(sink, EventError, map[string]any{
				"message": pf.readErr.Error(),
				"file":    pf.info.RelPath,
			})
			continue
		}
		kept = append(kept, pf)
	}
	pending = kept

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	texts := make([]string, 0)
	chunks := make([]store.ChunkInput, 0)
	for _, pf := range pending {
		for i, c := range pf.chunks {
			texts = append(texts, c)
			chunks = append(chunks, store.ChunkInput{
				FilePath:   pf.info.RelPath,
				ChunkIndex: i,
				Content:    c,
			})
		}
	}

	vectors, err := ix.embedAll(ctx, texts, sink)
	if err != nil {
		return nil, err
	}

	mutation := store.RunMutation{
		Chunks:    chunks,
		Vectors:   vectors,
		SetHashes: make(map[string]string),
		Model:     ix.embedder.ModelName(),
	}
	for _, path := range changes.Deleted {
		mutation.SoftDeletePaths = append(mutation.SoftDeletePaths, path)
		mutation.RemoveHashPaths = append(mutation.RemoveHashPaths, path)
	}
	newCount, modifiedCount := 0, 0
	for _, pf := range pending {
		if pf.status == "modified" {
			mutation.SoftDeletePaths = append(mutation.SoftDeletePaths, pf.info.RelPath)
			modifiedCount++
		} else {
			newCount++
		}
		mutation.SetHashes[pf.info.RelPath] = pf.info.Hash
	}

	emit(sink, EventSaving, nil)
	if err := ix.store.ApplyRun(mutation); err != nil {
		return nil, err
	}
	emit(sink, EventSaveComplete, nil)

	stats, err := ix.store.Stats()
	if err != nil {
		return nil, err
	}

	summary := &Summary{
		Files:     stats.Files,
		Chunks:    stats.TotalChunks,
		New:       newCount,
		Modified:  modifiedCount,
		Unchanged: len(changes.Unchanged),
		Deleted:   len(changes.Deleted),
	}
	emit(sink, EventStats, map[string]any{
		"files":     summary.Files,
		"chunks":    summary.Chunks,
		"new":       summary.New,
		"modified":  summary.Modified,
		"unchanged": summary.Unchanged,
		"deleted":   summary.Deleted,
	})
	emit(sink, EventDone, nil)

	log.Info("Indexing complete",
		"files", summary.Files, "chunks", summary.Chunks,
		"new", summary.New, "modified", summary.Modified,
		"unchanged", summary.Unchanged, "deleted", summary.Deleted)

	return summary, nil
}

// readAndChunk reads and splits the pending files with a bounded worker
// pool. Read failures are recorded per file, never fatal.
func (ix *Indexer) readAndChunk(pending []*pendingFile, sink Sink) {
	workers := ix.cfg.Indexing.ReadWorkers
	if workers <= 0 {
		workers = 1
	}
	if workers > len(pending) {
		workers = len(pending)
	}
	if workers == 0 {
		return
	}

	jobs := make(chan *pendingFile)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for pf := range jobs {
				emit(sink, EventFileProcessing, map[string]any{
					"file":   pf.info.RelPath,
					"status": pf.status,
				})
				content, err := os.ReadFile(pf.info.Path)
				if err != nil {
					pf.readErr = err
					continue
				}
				pf.chunks = ix.chunker.Split(string(content))
				emit(sink, EventFileProcessed, map[string]any{
					"file":   pf.info.RelPath,
					"chunks": len(pf.chunks),
				})
			}
		}()
	}
	for _, pf := range pending {
		jobs <- pf
	}
	close(jobs)
	wg.Wait()
}

// embedAll embeds the texts in batches, reporting progress. Batches run in
// parallel only when the workload is large enough to be worth the workers.
func (ix *Indexer) embedAll(ctx context.Context, texts []string, sink Sink) ([][]float32, error) {
	total := len(texts)
	batchSize := ix.cfg.Indexing.EmbedBatchSize
	if batchSize <= 0 {
		batchSize = config.DefaultEmbedBatchSize
	}

	emit(sink, EventEmbeddingStart, map[string]any{
		"total_chunks": total,
		"device":       string(ix.embedder.Provider()),
		"batch_size":   batchSize,
	})

	if total == 0 {
		emit(sink, EventEmbeddingComplete, nil)
		return nil, nil
	}

	type batch struct {
		start, end int
	}
	var batches []batch
	for start := 0; start < total; start += batchSize {
		end := start + batchSize
		if end > total {
			end = total
		}
		batches = append(batches, batch{start, end})
	}

	vectors := make([][]float32, total)
	var processed atomic.Int64

	report := func() {
		done := processed.Load()
		emit(sink, EventEmbeddingProgress, map[string]any{
			"processed": done,
			"total":     total,
			"percent":   float64(done) / float64(total) * 100,
		})
	}

	embedBatch := func(b batch) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		vecs, err := ix.embedder.EmbedBatch(ctx, texts[b.start:b.end])
		if err != nil {
			return fmt.Errorf("embedding failed: %w", err)
		}
		if len(vecs) != b.end-b.start {
			return fmt.Errorf("embedding failed: got %d vectors for %d texts", len(vecs), b.end-b.start)
		}
		copy(vectors[b.start:b.end], vecs)
		processed.Add(int64(b.end - b.start))
		report()
		return nil
	}

	workers := ix.cfg.Indexing.EmbedWorkers
	if workers > 1 && total >= ix.cfg.Indexing.ParallelMinChunks {
		if workers > len(batches) {
			workers = len(batches)
		}
		jobs := make(chan batch)
		errc := make(chan error, workers)
		var wg sync.WaitGroup
		for i := 0; i < workers; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				for b := range jobs {
					if err := embedBatch(b); err != nil {
						select {
						case errc <- err:
						default:
						}
						return
					}
				}
			}()
		}
	feed:
		for _, b := range batches {
			select {
			case jobs <- b:
			case err := <-errc:
				close(jobs)
				wg.Wait()
				return nil, err
			case <-ctx.Done():
				break feed
			}
		}
		close(jobs)
		wg.Wait()
		select {
		case err := <-errc:
			return nil, err
		default:
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}
	} else {
		for _, b := range batches {
			if err := embedBatch(b); err != nil {
				return nil, err
			}
		}
	}

	emit(sink, EventEmbeddingComplete, nil)
	return vectors, nil
}
