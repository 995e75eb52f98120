package fs

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/cespare/xxhash/v2"
	"github.com/charmbracelet/log"
	gitignore "github.com/sabhiram/go-gitignore"
)

// Ignorer defines the interface for pattern matching.
type Ignorer interface {
	MatchesPath(path string) bool
}

// combinedIgnorer wraps the root .gitignore and the configured patterns.
type combinedIgnorer struct {
	file     *gitignore.GitIgnore
	patterns *gitignore.GitIgnore
}

func (c *combinedIgnorer) MatchesPath(path string) bool {
	return c.file.MatchesPath(path) || c.patterns.MatchesPath(path)
}

// FileWalker traverses a document tree and yields hashable files.
type FileWalker struct {
	opts    WalkOptions
	ignorer Ignorer
	stats   WalkStats
	errs    []FileError
	extSet  map[string]bool
	skipDir map[string]bool
}

// NewFileWalker creates a new file walker rooted at opts.Root.
func NewFileWalker(opts WalkOptions) (*FileWalker, error) {
	root, err := filepath.Abs(opts.Root)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve root path: %w", err)
	}
	opts.Root = root

	info, err := os.Stat(root)
	if err != nil {
		return nil, fmt.Errorf("root path does not exist: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("root path is not a directory: %s", root)
	}

	w := &FileWalker{
		opts:    opts,
		skipDir: make(map[string]bool),
	}

	for _, d := range opts.ExcludeDirs {
		w.skipDir[d] = true
	}

	if len(opts.Extensions) > 0 {
		w.extSet = make(map[string]bool)
		for _, ext := range opts.Extensions {
			if !strings.HasPrefix(ext, ".") {
				ext = "." + ext
			}
			w.extSet[strings.ToLower(ext)] = true
		}
	}

	if err := w.initIgnorer(); err != nil {
		return nil, err
	}

	return w, nil
}

// initIgnorer compiles the ignore patterns and the root .gitignore if present.
func (w *FileWalker) initIgnorer() error {
	patterns := append([]string{}, w.opts.IgnorePatterns...)

	if w.opts.UseGitignore {
		gitignorePath := filepath.Join(w.opts.Root, ".gitignore")
		if _, err := os.Stat(gitignorePath); err == nil {
			gi, err := gitignore.CompileIgnoreFile(gitignorePath)
			if err != nil {
				log.Warn("Failed to parse .gitignore", "path", gitignorePath, "error", err)
			} else {
				w.ignorer = &combinedIgnorer{
					file:     gi,
					patterns: gitignore.CompileIgnoreLines(patterns...),
				}
				return nil
			}
		}
	}

	w.ignorer = gitignore.CompileIgnoreLines(patterns...)
	return nil
}

// Walk traverses the tree and calls fn for each indexable file. Files that
// cannot be read or hashed are recorded and retrievable via Errors; they do
// not abort the walk.
func (w *FileWalker) Walk(fn func(FileInfo) error) error {
	w.stats = WalkStats{}
	w.errs = nil

	return filepath.WalkDir(w.opts.Root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			log.Debug("Error accessing path", "path", path, "error", err)
			w.errs = append(w.errs, FileError{Path: path, Err: err})
			return nil
		}

		relPath, err := filepath.Rel(w.opts.Root, path)
		if err != nil {
			relPath = path
		}

		if d.IsDir() {
			if path != w.opts.Root && w.shouldSkipDir(d.Name(), relPath) {
				w.stats.DirsSkipped++
				return filepath.SkipDir
			}
			return nil
		}

		if w.shouldSkipFile(path, d.Name(), relPath) {
			w.stats.FilesSkipped++
			return nil
		}

		info, err := d.Info()
		if err != nil {
			w.errs = append(w.errs, FileError{Path: path, Err: err})
			return nil
		}

		if w.opts.MaxFileSize > 0 && info.Size() > w.opts.MaxFileSize {
			w.stats.FilesSkipped++
			return nil
		}

		if w.extSet == nil {
			if isBinary, err := isBinaryFile(path); err != nil || isBinary {
				w.stats.FilesSkipped++
				return nil
			}
		}

		hash, err := hashFile(path)
		if err != nil {
			log.Debug("Failed to hash file", "path", path, "error", err)
			w.errs = append(w.errs, FileError{Path: path, Err: err})
			return nil
		}

		w.stats.FilesFound++
		w.stats.TotalBytes += info.Size()

		return fn(FileInfo{
			Path:    path,
			RelPath: relPath,
			Size:    info.Size(),
			ModTime: info.ModTime(),
			Hash:    hash,
		})
	})
}

// Stats returns the walk statistics.
func (w *FileWalker) Stats() WalkStats {
	return w.stats
}

// Errors returns files that could not be read during the last walk.
func (w *FileWalker) Errors() []FileError {
	return w.errs
}

func (w *FileWalker) shouldSkipDir(name, relPath string) bool {
	if w.skipDir[name] {
		return true
	}
	if strings.HasPrefix(name, ".") {
		return true
	}
	if w.ignorer != nil && w.ignorer.MatchesPath(relPath+"/") {
		return true
	}
	return false
}

func (w *FileWalker) shouldSkipFile(path, name, relPath string) bool {
	if strings.HasPrefix(name, ".") {
		return true
	}
	if w.extSet != nil {
		ext := strings.ToLower(filepath.Ext(path))
		if !w.extSet[ext] {
			return true
		}
	}
	if w.ignorer != nil && w.ignorer.MatchesPath(relPath) {
		return true
	}
	return false
}

// hashFile computes the xxhash of a file's contents.
func hashFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	h := xxhash.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}

	return fmt.Sprintf("%016x", h.Sum64()), nil
}

// HashContent computes the xxhash of content bytes.
func HashContent(content []byte) string {
	return fmt.Sprintf("%016x", xxhash.Sum64(content))
}

// isBinaryFile checks if a file appears to be binary.
func isBinaryFile(path string) (bool, error) {
	f, err := os.Open(path)
	if err != nil {
		return false, err
	}
	defer f.Close()

	buf := make([]byte, 8192)
	n, err := f.Read(buf)
	if err != nil && err != io.EOF {
		return false, err
	}

	return isBinaryContent(buf[:n]), nil
}

// isBinaryContent checks if content appears to be binary.
func isBinaryContent(content []byte) bool {
	if len(content) == 0 {
		return false
	}

	for _, b := range content {
		if b == 0 {
			return true
		}
	}

	nonPrintable := 0
	for _, b := range content {
		if b < 32 && b != '\t' && b != '\n' && b != '\r' {
			nonPrintable++
		}
	}

	return float64(nonPrintable)/float64(len(content)) > 0.3
}
