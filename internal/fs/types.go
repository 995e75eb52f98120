// Package fs provides file system scanning, hashing, and chunking for indexing.
package fs

import "time"

// FileInfo represents metadata about a scanned file.
type FileInfo struct {
	Path    string    // Absolute path to the file
	RelPath string    // Path relative to the scan root
	Size    int64     // File size in bytes
	ModTime time.Time // Last modification time
	Hash    string    // xxhash of file contents
}

// FileError records a file that could not be read during a scan.
type FileError struct {
	Path string
	Err  error
}

// WalkOptions configures the file walker.
type WalkOptions struct {
	// Root is the directory to start walking from.
	Root string

	// Extensions is the allow-list of file extensions (e.g., ".md", ".txt").
	// Empty means all non-binary files.
	Extensions []string

	// ExcludeDirs are directory names that are never descended into.
	ExcludeDirs []string

	// IgnorePatterns are additional patterns to ignore (gitignore syntax).
	IgnorePatterns []string

	// MaxFileSize is the maximum file size to process (in bytes). 0 = no limit.
	MaxFileSize int64

	// UseGitignore respects a .gitignore file at the root.
	UseGitignore bool
}

// WalkStats contains statistics from a directory walk.
type WalkStats struct {
	FilesFound   int
	FilesSkipped int
	DirsSkipped  int
	TotalBytes   int64
}

// ChangeSet buckets a scan against the previously persisted hash table.
type ChangeSet struct {
	New       []string
	Modified  []string
	Unchanged []string
	Deleted   []string
}
