package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dlawler/docchat/internal/config"
	"github.com/dlawler/docchat/internal/embeddings"
	"github.com/dlawler/docchat/internal/indexer"
	"github.com/dlawler/docchat/internal/llm"
	"github.com/dlawler/docchat/internal/search"
	"github.com/dlawler/docchat/internal/store"
)

type stubEmbedder struct{}

func (stubEmbedder) vector(text string) []float32 {
	var sum int
	for _, b := range []byte(text) {
		sum += int(b)
	}
	return []float32{float32(len(text)), float32(sum % 53), 1}
}

func (e stubEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	return e.vector(text), nil
}

func (e stubEmbedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	return e.vector(text), nil
}

func (e stubEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = e.vector(t)
	}
	return out, nil
}

func (stubEmbedder) Dimensions() int               { return 3 }
func (stubEmbedder) Provider() embeddings.Provider { return embeddings.ProviderOllama }
func (stubEmbedder) ModelName() string             { return "stub-embed" }

type stubLLM struct{}

func (stubLLM) Complete(ctx context.Context, messages []llm.Message, opts llm.CompletionOptions) (string, error) {
	return "stub answer", nil
}

func (stubLLM) CompleteStream(ctx context.Context, messages []llm.Message, opts llm.CompletionOptions) (<-chan string, <-chan error) {
	contentCh := make(chan string, 2)
	errCh := make(chan error, 1)
	contentCh <- "stub "
	contentCh <- "answer"
	close(contentCh)
	close(errCh)
	return contentCh, errCh
}

func (stubLLM) Provider() llm.Provider { return llm.ProviderOllama }
func (stubLLM) ModelName() string      { return "stub-llm" }

func newTestServer(t *testing.T) (*httptest.Server, *store.Store) {
	t.Helper()

	cfg := config.DefaultConfig()
	cfg.Database.Path = filepath.Join(t.TempDir(), "index.db")
	cfg.Indexing.EmbedWorkers = 1

	st, err := store.New(cfg.Database.Path)
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	emb := stubEmbedder{}
	ix := indexer.New(st, emb, cfg)
	searcher := search.NewSearcher(st, emb)

	srv := New(cfg, st, ix, searcher, stubLLM{})
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return ts, st
}

func wsURL(ts *httptest.Server, path string) string {
	return "ws" + strings.TrimPrefix(ts.URL, "http") + path
}

func dial(t *testing.T, ts *httptest.Server, path string) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(wsURL(ts, path), nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func writeDocs(t *testing.T, files map[string]string) string {
	t.Helper()
	root := t.TempDir()
	for path, content := range files {
		full := filepath.Join(root, path)
		require.NoError(t, os.MkdirAll(filepath.Dir(full), 0755))
		require.NoError(t, os.WriteFile(full, []byte(content), 0644))
	}
	return root
}

func TestHealthz(t *testing.T) {
	ts, _ := newTestServer(t)

	resp, err := http.Get(ts.URL + "/healthz")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestStatsEmpty(t *testing.T) {
	ts, _ := newTestServer(t)

	resp, err := http.Get(ts.URL + "/api/stats")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var stats statsResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&stats))
	assert.Equal(t, 0, stats.TotalChunks)
	assert.Equal(t, 0, stats.Dimension)
}

func TestIndexSocketRejectsEmptyDirectory(t *testing.T) {
	ts, _ := newTestServer(t)
	conn := dial(t, ts, "/ws/index")

	require.NoError(t, conn.WriteJSON(map[string]string{"directory": ""}))

	var event indexer.Event
	require.NoError(t, conn.ReadJSON(&event))
	assert.Equal(t, indexer.EventError, event.Type)
}

func TestIndexSocketRunsToCompletion(t *testing.T) {
	ts, st := newTestServer(t)
	docs := writeDocs(t, map[string]string{
		"a.md": "first document",
		"b.md": "second document",
	})

	conn := dial(t, ts, "/ws/index")
	require.NoError(t, conn.WriteJSON(map[string]string{"directory": docs}))

	var types []indexer.EventType
	for {
		var event indexer.Event
		if err := conn.ReadJSON(&event); err != nil {
			break
		}
		types = append(types, event.Type)
		if event.Type == indexer.EventDone || event.Type == indexer.EventFatalError {
			break
		}
	}

	require.NotEmpty(t, types)
	assert.Equal(t, indexer.EventScanStart, types[0])
	assert.Equal(t, indexer.EventDone, types[len(types)-1])
	assert.Contains(t, types, indexer.EventStats)

	stats, err := st.Stats()
	require.NoError(t, err)
	assert.Equal(t, 2, stats.TotalChunks)
	assert.Equal(t, 2, stats.Files)
}

func TestIndexSocketBadDirectory(t *testing.T) {
	ts, _ := newTestServer(t)
	conn := dial(t, ts, "/ws/index")

	require.NoError(t, conn.WriteJSON(map[string]string{"directory": filepath.Join(t.TempDir(), "missing")}))

	var last indexer.Event
	for {
		var event indexer.Event
		if err := conn.ReadJSON(&event); err != nil {
			break
		}
		last = event
		if event.Type == indexer.EventDone || event.Type == indexer.EventFatalError {
			break
		}
	}
	assert.Equal(t, indexer.EventFatalError, last.Type)
}

func TestFilesEndpoint(t *testing.T) {
	ts, st := newTestServer(t)

	require.NoError(t, st.ApplyRun(store.RunMutation{
		Chunks:    []store.ChunkInput{{FilePath: "a.md", ChunkIndex: 0, Content: "hello"}},
		Vectors:   [][]float32{{1, 0, 0}},
		SetHashes: map[string]string{"a.md": "h1"},
	}))

	resp, err := http.Get(ts.URL + "/api/files")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body struct {
		Files []fileResponse `json:"files"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	require.Len(t, body.Files, 1)
	assert.Equal(t, "a.md", body.Files[0].FilePath)
	assert.Equal(t, 1, body.Files[0].ChunkCount)
}

func TestChatSocketConversation(t *testing.T) {
	ts, st := newTestServer(t)

	emb := stubEmbedder{}
	vec, err := emb.Embed(context.Background(), "hello world")
	require.NoError(t, err)
	require.NoError(t, st.ApplyRun(store.RunMutation{
		Chunks:    []store.ChunkInput{{FilePath: "a.md", ChunkIndex: 0, Content: "hello world"}},
		Vectors:   [][]float32{vec},
		SetHashes: map[string]string{"a.md": "h1"},
		Model:     "stub-embed",
	}))

	conn := dial(t, ts, "/ws/chat")

	for round := 0; round < 2; round++ {
		require.NoError(t, conn.WriteJSON(map[string]string{"query": "what does it say?"}))

		var types []string
		var sources []any
		var answer strings.Builder
		for {
			var event wsEvent
			require.NoError(t, conn.ReadJSON(&event))
			types = append(types, event.Type)
			if event.Type == "sources" {
				sources = event.Data.([]any)
			}
			if event.Type == "content" {
				answer.WriteString(event.Data.(string))
			}
			if event.Type == "done" || event.Type == "error" {
				break
			}
		}

		require.NotEmpty(t, types)
		assert.Equal(t, "sources", types[0])
		assert.Equal(t, "done", types[len(types)-1])
		assert.Equal(t, "stub answer", answer.String())

		require.Len(t, sources, 1)
		src := sources[0].(map[string]any)
		assert.Equal(t, "a.md", src["file"])
		assert.Equal(t, "a.md", src["path"])
		assert.Equal(t, float64(0), src["chunk"])
	}
}

func TestChatSocketRejectsEmptyQuery(t *testing.T) {
	ts, _ := newTestServer(t)
	conn := dial(t, ts, "/ws/chat")

	require.NoError(t, conn.WriteJSON(map[string]string{"query": "  "}))

	var event wsEvent
	require.NoError(t, conn.ReadJSON(&event))
	assert.Equal(t, "error", event.Type)

	// The connection stays usable after a rejected query.
	require.NoError(t, conn.WriteJSON(map[string]string{"query": "real question"}))
	require.NoError(t, conn.ReadJSON(&event))
	assert.Equal(t, "sources", event.Type)
}
