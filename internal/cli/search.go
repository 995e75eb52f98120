package cli

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/alecthomas/chroma/v2"
	"github.com/alecthomas/chroma/v2/formatters"
	"github.com/alecthomas/chroma/v2/lexers"
	"github.com/alecthomas/chroma/v2/styles"
	"github.com/charmbracelet/glamour"
	"github.com/spf13/cobra"

	"github.com/dlawler/docchat/internal/config"
	"github.com/dlawler/docchat/internal/embeddings"
	"github.com/dlawler/docchat/internal/llm"
	"github.com/dlawler/docchat/internal/search"
	"github.com/dlawler/docchat/internal/store"
	"github.com/dlawler/docchat/internal/ui"
)

var (
	searchAsk     bool
	searchContent bool
	searchLimit   int
)

// searchCmd represents the search command
var searchCmd = &cobra.Command{
	Use:   "search <query>",
	Short: "Search the indexed documentation",
	Long: `Search the index with a natural language query.

By default the matching excerpts are listed with their sources and scores.
With --ask, an LLM generates a grounded answer from the excerpts instead.

Examples:
  # Find relevant passages
  docchat search "retry behavior on timeouts"

  # Show the excerpt text too
  docchat search "retry behavior on timeouts" -c

  # Generate an answer
  docchat search "how do retries work" --ask`,
	Args: cobra.ExactArgs(1),
	RunE: runSearch,
}

func init() {
	searchCmd.Flags().BoolVarP(&searchAsk, "ask", "a", false, "generate an answer using the LLM")
	searchCmd.Flags().BoolVarP(&searchContent, "content", "c", false, "show excerpt text in results")
	searchCmd.Flags().IntVarP(&searchLimit, "limit", "m", 0, "maximum number of results (default from config)")
}

func runSearch(cmd *cobra.Command, args []string) error {
	query := args[0]
	cfg := config.Get()

	k := searchLimit
	if k <= 0 {
		k = cfg.Retrieval.TopK
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigCh
		fmt.Println("\nInterrupted")
		cancel()
	}()

	st, err := store.New(cfg.Database.Path)
	if err != nil {
		return fmt.Errorf("failed to open store: %w", err)
	}
	defer st.Close()

	emb, err := embeddings.NewService(cfg)
	if err != nil {
		return fmt.Errorf("failed to create embedding service: %w", err)
	}

	searcher := search.NewSearcher(st, emb)

	if searchAsk {
		return runAsk(ctx, cfg, searcher, query, k)
	}

	sources, err := searcher.Retrieve(ctx, query, k)
	if err != nil {
		if ctx.Err() != nil {
			return nil
		}
		return fmt.Errorf("search failed: %w", err)
	}

	if len(sources) == 0 {
		fmt.Println("No results found. Run 'docchat index <path>' first.")
		return nil
	}

	fmt.Printf("Found %d results:\n\n", len(sources))
	for i, src := range sources {
		fmt.Printf("%s %s %s\n",
			ui.ResultHeader.Render(fmt.Sprintf("[%d]", i+1)),
			ui.FormatSource(src.FilePath, src.ChunkIndex),
			ui.FormatScore(src.Score),
		)
		if searchContent {
			fmt.Println()
			printExcerpt(src.Text, src.FileName)
		}
		fmt.Println()
	}

	return nil
}

// runAsk streams a grounded answer for the query and renders it as markdown.
func runAsk(ctx context.Context, cfg *config.Config, searcher *search.Searcher, query string, k int) error {
	llmSvc, err := llm.NewService(cfg)
	if err != nil {
		return fmt.Errorf("failed to create LLM service: %w", err)
	}

	chat := llm.NewChat(llmSvc, searcher, llm.ChatOptions{
		TopK:      k,
		MaxTokens: cfg.LLM.MaxTokens,
	})

	sources, contentCh, errCh, err := chat.Respond(ctx, query)
	if err != nil {
		return fmt.Errorf("failed to answer: %w", err)
	}

	var answer strings.Builder
	for delta := range contentCh {
		answer.WriteString(delta)
	}
	if err := <-errCh; err != nil {
		if ctx.Err() != nil {
			return nil
		}
		return fmt.Errorf("answer generation failed: %w", err)
	}

	fmt.Println(ui.Header.Render("Answer"))
	fmt.Println()

	rendered, err := renderMarkdown(answer.String())
	if err != nil {
		fmt.Println(answer.String())
	} else {
		fmt.Print(rendered)
	}

	if len(sources) > 0 {
		fmt.Println(ui.Dim.Render("Sources:"))
		for i, src := range sources {
			fmt.Printf("  [%d] %s %s\n", i+1,
				ui.FormatSource(src.FilePath, src.ChunkIndex),
				ui.FormatScore(src.Score))
		}
	}

	return nil
}

// printExcerpt shows excerpt text, syntax highlighted when the source file
// has a recognizable language.
func printExcerpt(content, filename string) {
	lexer := lexers.Match(filename)
	if lexer == nil {
		lexer = lexers.Fallback
	}
	lexer = chroma.Coalesce(lexer)

	style := styles.Get("dracula")
	if style == nil {
		style = styles.Fallback
	}
	formatter := formatters.Get("terminal256")
	if formatter == nil {
		formatter = formatters.Fallback
	}

	iterator, err := lexer.Tokenise(nil, content)
	if err != nil {
		printPlain(content)
		return
	}
	var buf bytes.Buffer
	if err := formatter.Format(&buf, style, iterator); err != nil {
		printPlain(content)
		return
	}
	printPlain(buf.String())
}

func printPlain(content string) {
	const maxLines = 12
	lines := strings.Split(strings.TrimRight(content, "\n"), "\n")
	for i, line := range lines {
		if i >= maxLines {
			fmt.Printf("    %s\n", ui.Dim.Render(fmt.Sprintf("... (%d more lines)", len(lines)-maxLines)))
			break
		}
		fmt.Printf("    %s\n", line)
	}
}

// renderMarkdown renders markdown content using glamour.
func renderMarkdown(content string) (string, error) {
	renderer, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(100),
	)
	if err != nil {
		return "", err
	}
	return renderer.Render(content)
}
