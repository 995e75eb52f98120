package llm

import (
	"context"
	"fmt"
	"strings"

	"github.com/dlawler/docchat/internal/search"
)

// System prompt for grounded chat.
const chatSystemPrompt = `You are a helpful assistant that answers questions about a documentation collection.

Your role is to:
1. Answer the user's question using the provided document excerpts
2. Cite the source file when you draw on an excerpt
3. Be concise but thorough
4. If the excerpts don't contain enough information to answer, say so plainly rather than guessing

Format your answer in markdown when appropriate.`

// Retriever supplies document excerpts for a query.
type Retriever interface {
	Retrieve(ctx context.Context, query string, k int) ([]search.Source, error)
}

// ChatOptions configures a conversation.
type ChatOptions struct {
	// TopK is the number of excerpts retrieved per turn.
	TopK int

	// MaxTokens limits each response.
	MaxTokens int

	// HistoryLimit bounds remembered turns; older turns are dropped in
	// pairs so the history always starts at a user turn. Zero keeps no
	// history.
	HistoryLimit int

	Temperature float64
}

// DefaultChatOptions returns sensible defaults.
func DefaultChatOptions() ChatOptions {
	return ChatOptions{
		TopK:         5,
		MaxTokens:    2048,
		HistoryLimit: 20,
		Temperature:  0.3,
	}
}

// Turn is one remembered exchange entry.
type Turn struct {
	Role    string `json:"role"` // "user" or "assistant"
	Content string `json:"content"`
}

// Chat is one grounded conversation. Each question is answered from freshly
// retrieved excerpts plus the bounded history of earlier turns. Not safe for
// concurrent use; a connection owns its Chat.
type Chat struct {
	llm       Service
	retriever Retriever
	opts      ChatOptions
	history   []Turn
}

// NewChat creates a conversation.
func NewChat(llm Service, retriever Retriever, opts ChatOptions) *Chat {
	return &Chat{llm: llm, retriever: retriever, opts: opts}
}

// History returns the remembered turns.
func (c *Chat) History() []Turn {
	return c.history
}

// Reset forgets the conversation so far.
func (c *Chat) Reset() {
	c.history = nil
}

// Respond retrieves excerpts for the question and streams a grounded answer.
// The sources are returned immediately; content arrives on the first channel
// until it closes. A retrieval that finds nothing still generates: the model
// is told no excerpts matched and answers accordingly. The exchange is
// committed to history only after the full response arrives.
func (c *Chat) Respond(ctx context.Context, question string) ([]search.Source, <-chan string, <-chan error, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return nil, nil, nil, fmt.Errorf("question is empty")
	}

	sources, err := c.retriever.Retrieve(ctx, question, c.opts.TopK)
	if err != nil {
		return nil, nil, nil, err
	}

	messages := c.buildMessages(question, sources)

	contentCh, errCh := c.llm.CompleteStream(ctx, messages, CompletionOptions{
		Temperature: c.opts.Temperature,
		MaxTokens:   c.opts.MaxTokens,
	})

	outCh := make(chan string, 100)
	outErr := make(chan error, 1)
	go func() {
		defer close(outCh)
		defer close(outErr)

		var answer strings.Builder
		for delta := range contentCh {
			answer.WriteString(delta)
			outCh <- delta
		}
		if err := <-errCh; err != nil {
			outErr <- err
			return
		}
		c.remember(question, answer.String())
	}()

	return sources, outCh, outErr, nil
}

// buildMessages assembles system prompt, excerpt context, bounded history,
// and the current question.
func (c *Chat) buildMessages(question string, sources []search.Source) []Message {
	var sb strings.Builder
	sb.WriteString(chatSystemPrompt)
	sb.WriteString("\n\n")
	if len(sources) == 0 {
		sb.WriteString("No matching excerpts were found for this question.")
	} else {
		sb.WriteString("Here are the relevant document excerpts:\n\n")
		for _, src := range sources {
			sb.WriteString(fmt.Sprintf("Source: %s\n%s\n\n", src.FilePath, src.Text))
		}
	}

	messages := []Message{{Role: "system", Content: sb.String()}}
	for _, t := range c.history {
		messages = append(messages, Message{Role: t.Role, Content: t.Content})
	}
	messages = append(messages, Message{Role: "user", Content: question})

	return messages
}

// remember appends the exchange and trims to the history limit.
func (c *Chat) remember(question, answer string) {
	if c.opts.HistoryLimit <= 0 {
		return
	}
	c.history = append(c.history,
		Turn{Role: "user", Content: question},
		Turn{Role: "assistant", Content: answer},
	)
	if over := len(c.history) - c.opts.HistoryLimit; over > 0 {
		if over%2 != 0 {
			over++ // keep user/assistant pairing intact
		}
		c.history = append([]Turn(nil), c.history[over:]...)
	}
}
