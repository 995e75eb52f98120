package indexer

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dlawler/docchat/internal/config"
	"github.com/dlawler/docchat/internal/embeddings"
	"github.com/dlawler/docchat/internal/store"
)

// mockEmbedder derives a deterministic vector from the text so searches
// behave consistently across runs.
type mockEmbedder struct {
	mu    sync.Mutex
	texts []string
	fail  error
}

func (m *mockEmbedder) vector(text string) []float32 {
	var sum int
	for _, b := range []byte(text) {
		sum += int(b)
	}
	return []float32{float32(len(text)), float32(sum % 97), 1}
}

func (m *mockEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	v, err := m.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return v[0], nil
}

func (m *mockEmbedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	return m.vector(text), nil
}

func (m *mockEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail != nil {
		return nil, m.fail
	}
	result := make([][]float32, len(texts))
	for i, t := range texts {
		m.texts = append(m.texts, t)
		result[i] = m.vector(t)
	}
	return result, nil
}

func (m *mockEmbedder) embedded() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.texts...)
}

func (m *mockEmbedder) reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.texts = nil
}

func (m *mockEmbedder) Dimensions() int               { return 3 }
func (m *mockEmbedder) Provider() embeddings.Provider { return embeddings.ProviderOllama }
func (m *mockEmbedder) ModelName() string             { return "mock-embed" }

var _ embeddings.Service = (*mockEmbedder)(nil)

// blockingEmbedder parks EmbedBatch until released, to hold a run open.
type blockingEmbedder struct {
	mockEmbedder
	started chan struct{}
	release chan struct{}
}

func (b *blockingEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	select {
	case b.started <- struct{}{}:
	default:
	}
	select {
	case <-b.release:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	return b.mockEmbedder.EmbedBatch(ctx, texts)
}

// recorder is a thread-safe event sink.
type recorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *recorder) Emit(e Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

func (r *recorder) types() []EventType {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]EventType, len(r.events))
	for i, e := range r.events {
		out[i] = e.Type
	}
	return out
}

func testConfig(t *testing.T) *config.Config {
	cfg := config.DefaultConfig()
	cfg.Database.Path = filepath.Join(t.TempDir(), "index.db")
	cfg.Indexing.ChunkSize = 100
	cfg.Indexing.ChunkOverlap = 20
	cfg.Indexing.EmbedBatchSize = 4
	cfg.Indexing.EmbedWorkers = 1
	return cfg
}

func newTestIndexer(t *testing.T) (*Indexer, *store.Store, *mockEmbedder) {
	t.Helper()
	cfg := testConfig(t)
	st, err := store.New(cfg.Database.Path)
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	emb := &mockEmbedder{}
	return New(st, emb, cfg), st, emb
}

func writeDocs(t *testing.T, root string, files map[string]string) {
	t.Helper()
	for path, content := range files {
		full := filepath.Join(root, path)
		require.NoError(t, os.MkdirAll(filepath.Dir(full), 0755))
		require.NoError(t, os.WriteFile(full, []byte(content), 0644))
	}
}

func indexOf(types []EventType, want EventType) int {
	for i, tt := range types {
		if tt == want {
			return i
		}
	}
	return -1
}

func TestRunFreshIndex(t *testing.T) {
	ix, st, _ := newTestIndexer(t)
	docs := t.TempDir()
	writeDocs(t, docs, map[string]string{
		"guide.md": "installation instructions",
		"faq.md":   "frequently asked questions",
	})

	rec := &recorder{}
	summary, err := ix.Run(context.Background(), docs, rec)
	require.NoError(t, err)

	assert.Equal(t, 2, summary.Files)
	assert.Equal(t, 2, summary.New)
	assert.Equal(t, 0, summary.Modified)
	assert.Equal(t, 0, summary.Deleted)
	assert.Equal(t, 2, summary.Chunks)

	hashes, err := st.FileHashes()
	require.NoError(t, err)
	assert.Len(t, hashes, 2)
	assert.Equal(t, "mock-embed", st.Model())

	types := rec.types()
	require.NotEmpty(t, types)
	assert.Equal(t, EventScanStart, types[0])
	assert.Equal(t, EventDone, types[len(types)-1])
	assert.Less(t, indexOf(types, EventSaving), indexOf(types, EventSaveComplete))
	assert.Less(t, indexOf(types, EventEmbeddingStart), indexOf(types, EventEmbeddingComplete))
	assert.Less(t, indexOf(types, EventSaveComplete), indexOf(types, EventStats))
	assert.Less(t, indexOf(types, EventStats), indexOf(types, EventDone))
}

func TestRunIdempotent(t *testing.T) {
	ix, _, emb := newTestIndexer(t)
	docs := t.TempDir()
	writeDocs(t, docs, map[string]string{"a.md": "alpha content", "b.md": "beta content"})

	_, err := ix.Run(context.Background(), docs, nil)
	require.NoError(t, err)
	emb.reset()

	summary, err := ix.Run(context.Background(), docs, nil)
	require.NoError(t, err)

	assert.Equal(t, 0, summary.New)
	assert.Equal(t, 0, summary.Modified)
	assert.Equal(t, 2, summary.Unchanged)
	assert.Empty(t, emb.embedded(), "unchanged files must not be re-embedded")
}

func TestRunModifiedFileReembedded(t *testing.T) {
	ix, st, emb := newTestIndexer(t)
	docs := t.TempDir()
	writeDocs(t, docs, map[string]string{"a.md": "original text", "b.md": "stable text"})

	_, err := ix.Run(context.Background(), docs, nil)
	require.NoError(t, err)
	emb.reset()

	writeDocs(t, docs, map[string]string{"a.md": "revised text"})

	summary, err := ix.Run(context.Background(), docs, nil)
	require.NoError(t, err)

	assert.Equal(t, 1, summary.Modified)
	assert.Equal(t, 1, summary.Unchanged)
	assert.Equal(t, []string{"revised text"}, emb.embedded())

	// The old chunk is soft-deleted, the new one live.
	chunks, err := st.ChunksForFile("a.md")
	require.NoError(t, err)
	require.Len(t, chunks, 2)
	assert.True(t, chunks[0].Deleted)
	assert.Equal(t, "original text", chunks[0].Content)
	assert.False(t, chunks[1].Deleted)
	assert.Equal(t, "revised text", chunks[1].Content)
}

func TestRunDeletedFileDropsOut(t *testing.T) {
	ix, st, _ := newTestIndexer(t)
	docs := t.TempDir()
	writeDocs(t, docs, map[string]string{"a.md": "going away", "b.md": "staying"})

	_, err := ix.Run(context.Background(), docs, nil)
	require.NoError(t, err)

	require.NoError(t, os.Remove(filepath.Join(docs, "a.md")))

	rec := &recorder{}
	summary, err := ix.Run(context.Background(), docs, rec)
	require.NoError(t, err)

	assert.Equal(t, 1, summary.Deleted)
	assert.Equal(t, 1, summary.Files)

	hashes, err := st.FileHashes()
	require.NoError(t, err)
	assert.NotContains(t, hashes, "a.md")

	assert.GreaterOrEqual(t, indexOf(rec.types(), EventFileDeleted), 0)

	// A re-created file indexes as new again.
	writeDocs(t, docs, map[string]string{"a.md": "going away"})
	summary, err = ix.Run(context.Background(), docs, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, summary.New)
}

func TestRunEmbedderFailureCommitsNothing(t *testing.T) {
	ix, st, emb := newTestIndexer(t)
	docs := t.TempDir()
	writeDocs(t, docs, map[string]string{"a.md": "some content"})

	emb.fail = errors.New("model unavailable")

	rec := &recorder{}
	_, err := ix.Run(context.Background(), docs, rec)
	require.Error(t, err)

	hashes, err := st.FileHashes()
	require.NoError(t, err)
	assert.Empty(t, hashes, "a failed run must not persist hashes")

	stats, err := st.Stats()
	require.NoError(t, err)
	assert.Equal(t, 0, stats.TotalChunks)

	types := rec.types()
	assert.Equal(t, EventFatalError, types[len(types)-1])
	assert.Equal(t, -1, indexOf(types, EventSaving))

	// The next run retries from scratch.
	emb.fail = nil
	summary, err := ix.Run(context.Background(), docs, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, summary.New)
}

func TestRunBusy(t *testing.T) {
	cfg := testConfig(t)
	st, err := store.New(cfg.Database.Path)
	require.NoError(t, err)
	defer st.Close()

	emb := &blockingEmbedder{
		started: make(chan struct{}, 1),
		release: make(chan struct{}),
	}
	ix := New(st, emb, cfg)

	docs := t.TempDir()
	writeDocs(t, docs, map[string]string{"a.md": "content"})

	firstDone := make(chan error, 1)
	go func() {
		_, err := ix.Run(context.Background(), docs, nil)
		firstDone <- err
	}()

	select {
	case <-emb.started:
	case <-time.After(5 * time.Second):
		t.Fatal("first run never reached embedding")
	}

	_, err = ix.Run(context.Background(), docs, nil)
	assert.ErrorIs(t, err, ErrBusy)

	close(emb.release)
	require.NoError(t, <-firstDone)

	// The lock is released once the run finishes.
	_, err = ix.Run(context.Background(), docs, nil)
	require.NoError(t, err)
}

func TestRunRejectsBadDirectory(t *testing.T) {
	ix, _, _ := newTestIndexer(t)

	rec := &recorder{}
	_, err := ix.Run(context.Background(), filepath.Join(t.TempDir(), "missing"), rec)
	require.Error(t, err)

	types := rec.types()
	require.NotEmpty(t, types)
	assert.Equal(t, EventFatalError, types[len(types)-1])
}

func TestRunUnreadableFileKeptOut(t *testing.T) {
	if os.Getuid() == 0 {
		t.Skip("permission bits do not bind as root")
	}

	ix, st, _ := newTestIndexer(t)
	docs := t.TempDir()
	writeDocs(t, docs, map[string]string{"ok.md": "readable", "bad.md": "unreadable"})
	require.NoError(t, os.Chmod(filepath.Join(docs, "bad.md"), 0000))

	summary, err := ix.Run(context.Background(), docs, nil)
	require.NoError(t, err)

	assert.Equal(t, 1, summary.Files)

	hashes, err := st.FileHashes()
	require.NoError(t, err)
	assert.NotContains(t, hashes, "bad.md", "unreadable file must keep no hash")
}

func TestRunIndexedFileUnreadableKeepsState(t *testing.T) {
	if os.Getuid() == 0 {
		t.Skip("permission bits do not bind as root")
	}

	ix, st, _ := newTestIndexer(t)
	docs := t.TempDir()
	writeDocs(t, docs, map[string]string{"a.md": "original content", "b.md": "steady"})

	_, err := ix.Run(context.Background(), docs, nil)
	require.NoError(t, err)

	require.NoError(t, os.Chmod(filepath.Join(docs, "a.md"), 0000))
	t.Cleanup(func() { os.Chmod(filepath.Join(docs, "a.md"), 0644) })

	rec := &recorder{}
	summary, err := ix.Run(context.Background(), docs, rec)
	require.NoError(t, err)

	// The unreadable file lands in no bucket; it is not a deletion.
	assert.Equal(t, 0, summary.Deleted)
	assert.Equal(t, 0, summary.New)
	assert.Equal(t, 0, summary.Modified)
	assert.Equal(t, 1, summary.Unchanged)

	hashes, err := st.FileHashes()
	require.NoError(t, err)
	assert.Contains(t, hashes, "a.md", "prior hash must survive a failed read")

	chunks, err := st.ChunksForFile("a.md")
	require.NoError(t, err)
	require.NotEmpty(t, chunks)
	for _, c := range chunks {
		assert.False(t, c.Deleted, "chunks must stay live while the file is unreadable")
	}

	types := rec.types()
	assert.Equal(t, -1, indexOf(types, EventFileDeleted))
	assert.GreaterOrEqual(t, indexOf(types, EventError), 0)

	// Once readable again the file is just unchanged.
	require.NoError(t, os.Chmod(filepath.Join(docs, "a.md"), 0644))
	summary, err = ix.Run(context.Background(), docs, nil)
	require.NoError(t, err)
	assert.Equal(t, 2, summary.Unchanged)
	assert.Equal(t, 0, summary.Modified)
}

func TestRunReadFailureExcludedFromCounts(t *testing.T) {
	if os.Getuid() == 0 {
		t.Skip("permission bits do not bind as root")
	}

	ix, st, _ := newTestIndexer(t)
	docs := t.TempDir()
	writeDocs(t, docs, map[string]string{"a.md": "flaky", "b.md": "steady"})

	// Revoke read permission after hashing but before the content read.
	sink := SinkFunc(func(e Event) {
		if e.Type == EventFileProcessing && e.Data["file"] == "a.md" {
			os.Chmod(filepath.Join(docs, "a.md"), 0000)
		}
	})
	t.Cleanup(func() { os.Chmod(filepath.Join(docs, "a.md"), 0644) })

	summary, err := ix.Run(context.Background(), docs, sink)
	require.NoError(t, err)

	assert.Equal(t, 1, summary.New)
	assert.Equal(t, 0, summary.Modified)
	assert.Equal(t, 0, summary.Unchanged)
	assert.Equal(t, 0, summary.Deleted)

	hashes, err := st.FileHashes()
	require.NoError(t, err)
	assert.NotContains(t, hashes, "a.md")
	assert.Contains(t, hashes, "b.md")
}

func TestRunSinkPanicDoesNotAbort(t *testing.T) {
	ix, _, _ := newTestIndexer(t)
	docs := t.TempDir()
	writeDocs(t, docs, map[string]string{"a.md": "content"})

	sink := SinkFunc(func(e Event) {
		if e.Type == EventScanStart {
			panic("sink bug")
		}
	})

	_, err := ix.Run(context.Background(), docs, sink)
	require.NoError(t, err)
}
