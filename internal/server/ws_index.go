package server

import (
	"context"
	"errors"
	"net/http"

	"github.com/charmbracelet/log"
	"github.com/gorilla/websocket"

	"github.com/dlawler/docchat/internal/indexer"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

type indexRequest struct {
	Directory string `json:"directory"`
}

// handleIndexSocket runs one indexing pass per connection. The client sends
// {"directory": ...}, receives the run's progress events as they happen, and
// the connection closes after the terminal event. Client disconnect cancels
// the run.
func (s *Server) handleIndexSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Error("WebSocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	var req indexRequest
	if err := conn.ReadJSON(&req); err != nil {
		return
	}
	if req.Directory == "" {
		conn.WriteJSON(indexer.Event{
			Type: indexer.EventError,
			Data: map[string]any{"message": "no directory provided"},
		})
		return
	}

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	// A disconnect mid-run cancels the indexing context.
	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				cancel()
				return
			}
		}
	}()

	events := make(chan indexer.Event, 64)
	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		failed := false
		// Keep draining after a write error so the sink never stalls the run.
		for e := range events {
			if failed {
				continue
			}
			if err := conn.WriteJSON(e); err != nil {
				failed = true
				cancel()
			}
		}
	}()

	sink := indexer.SinkFunc(func(e indexer.Event) {
		select {
		case events <- e:
		case <-ctx.Done():
		}
	})

	_, err = s.indexer.Run(ctx, req.Directory, sink)
	if errors.Is(err, indexer.ErrBusy) {
		// Run never started, so no fatal_error came through the sink.
		sink.Emit(indexer.Event{
			Type: indexer.EventFatalError,
			Data: map[string]any{"message": err.Error()},
		})
	}
	if err != nil {
		log.Warn("Indexing run failed", "directory", req.Directory, "error", err)
	}

	close(events)
	<-writerDone
}
