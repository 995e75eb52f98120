package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/dlawler/docchat/internal/config"
	"github.com/dlawler/docchat/internal/store"
	"github.com/dlawler/docchat/internal/ui"
)

var statusFiles bool

// statusCmd represents the status command
var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show index statistics",
	RunE:  runStatus,
}

func init() {
	statusCmd.Flags().BoolVarP(&statusFiles, "files", "f", false, "list indexed files")
}

func runStatus(cmd *cobra.Command, args []string) error {
	cfg := config.Get()

	st, err := store.New(cfg.Database.Path)
	if err != nil {
		return fmt.Errorf("failed to open store: %w", err)
	}
	defer st.Close()

	stats, err := st.Stats()
	if err != nil {
		return fmt.Errorf("failed to read stats: %w", err)
	}

	fmt.Println(ui.Header.Render("Index Status"))
	fmt.Println()
	fmt.Printf("  Database:  %s\n", cfg.Database.Path)
	fmt.Printf("  Files:     %d\n", stats.Files)
	fmt.Printf("  Chunks:    %d\n", stats.TotalChunks)
	if stats.Dimension > 0 {
		fmt.Printf("  Dimension: %d\n", stats.Dimension)
	}
	if model := st.Model(); model != "" {
		fmt.Printf("  Model:     %s\n", model)
	}

	if !statusFiles {
		return nil
	}

	files, err := st.ListFiles()
	if err != nil {
		return fmt.Errorf("failed to list files: %w", err)
	}

	if len(files) > 0 {
		fmt.Println()
		fmt.Println(ui.SectionTitle.Render("Files"))
		for _, f := range files {
			fmt.Printf("  %s %s\n",
				ui.FilePath.Render(f.FilePath),
				ui.Dim.Render(fmt.Sprintf("(%d chunks)", f.ChunkCount)))
		}
	}

	return nil
}
