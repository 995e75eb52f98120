package server

import (
	"net/http"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/gorilla/websocket"

	"github.com/dlawler/docchat/internal/llm"
)

type chatRequest struct {
	Query string `json:"query"`
}

// wsEvent is the envelope for chat channel messages.
type wsEvent struct {
	Type string `json:"type"`
	Data any    `json:"data,omitempty"`
}

// chatSource is the wire shape of one retrieved excerpt. The frontend keys
// on file, path, and chunk; text and score ride along.
type chatSource struct {
	File  string  `json:"file"`
	Path  string  `json:"path"`
	Chunk int     `json:"chunk"`
	Text  string  `json:"text"`
	Score float64 `json:"score"`
}

// handleChatSocket serves one conversation per connection. Each query gets
// a sources event, streamed content events, and a terminal done or error.
// History lives in the connection; a reconnect starts fresh.
func (s *Server) handleChatSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Error("WebSocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	if s.llm == nil {
		conn.WriteJSON(wsEvent{Type: "error", Data: map[string]any{"message": "no LLM configured"}})
		return
	}

	chat := llm.NewChat(s.llm, s.searcher, llm.ChatOptions{
		TopK:         s.cfg.Retrieval.TopK,
		MaxTokens:    s.cfg.LLM.MaxTokens,
		HistoryLimit: s.cfg.LLM.HistoryLimit,
		Temperature:  0.3,
	})

	for {
		var req chatRequest
		if err := conn.ReadJSON(&req); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Debug("Chat connection closed", "error", err)
			}
			return
		}

		if strings.TrimSpace(req.Query) == "" {
			conn.WriteJSON(wsEvent{Type: "error", Data: map[string]any{"message": "query is required"}})
			continue
		}

		sources, contentCh, errCh, err := chat.Respond(r.Context(), req.Query)
		if err != nil {
			conn.WriteJSON(wsEvent{Type: "error", Data: map[string]any{"message": err.Error()}})
			continue
		}

		payload := make([]chatSource, 0, len(sources))
		for _, src := range sources {
			payload = append(payload, chatSource{
				File:  src.FileName,
				Path:  src.FilePath,
				Chunk: src.ChunkIndex,
				Text:  src.Text,
				Score: src.Score,
			})
		}
		if err := conn.WriteJSON(wsEvent{Type: "sources", Data: payload}); err != nil {
			return
		}
		for delta := range contentCh {
			if err := conn.WriteJSON(wsEvent{Type: "content", Data: delta}); err != nil {
				// Drain so the generation goroutine can finish.
				for range contentCh {
				}
				<-errCh
				return
			}
		}
		if err := <-errCh; err != nil {
			conn.WriteJSON(wsEvent{Type: "error", Data: map[string]any{"message": err.Error()}})
			continue
		}
		conn.WriteJSON(wsEvent{Type: "done"})
	}
}
