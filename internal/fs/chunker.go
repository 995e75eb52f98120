package fs

import (
	"strings"
	"unicode/utf8"
)

// Separator priority for splitting: paragraph break, line break, sentence
// boundary, word boundary, and finally a hard character cut.
var defaultSeparators = []string{"\n\n", "\n", ". ", " ", ""}

// TextChunker splits document text into overlapping chunks.
type TextChunker struct {
	size    int
	overlap int
}

// NewTextChunker creates a chunker producing chunks of at most size runes
// with the given overlap between consecutive chunks.
func NewTextChunker(size, overlap int) *TextChunker {
	if size <= 0 {
		size = 1000
	}
	if overlap < 0 {
		overlap = 0
	}
	if overlap >= size {
		overlap = size / 5
	}
	return &TextChunker{size: size, overlap: overlap}
}

// Size returns the configured chunk size.
func (c *TextChunker) Size() int { return c.size }

// Overlap returns the configured chunk overlap.
func (c *TextChunker) Overlap() int { return c.overlap }

// Split splits text into chunks. Splitting prefers the highest-priority
// separator present in the text and recurses with lower-priority separators
// for pieces that still exceed the chunk size. Empty or whitespace-only
// input yields no chunks.
func (c *TextChunker) Split(text string) []string {
	if strings.TrimSpace(text) == "" {
		return nil
	}
	return c.split(text, defaultSeparators)
}

func (c *TextChunker) split(text string, separators []string) []string {
	sep := separators[len(separators)-1]
	var rest []string
	for i, s := range separators {
		if s == "" || strings.Contains(text, s) {
			sep = s
			rest = separators[i+1:]
			break
		}
	}

	var chunks []string
	var pending []string
	for _, piece := range splitKeepingSeparator(text, sep) {
		if utf8.RuneCountInString(piece) < c.size {
			pending = append(pending, piece)
			continue
		}
		// Piece is too large on its own: flush what we have and recurse
		// into it with the remaining separators.
		if len(pending) > 0 {
			chunks = append(chunks, c.merge(pending)...)
			pending = nil
		}
		if sep == "" {
			chunks = append(chunks, piece)
		} else {
			chunks = append(chunks, c.split(piece, rest)...)
		}
	}
	if len(pending) > 0 {
		chunks = append(chunks, c.merge(pending)...)
	}
	return chunks
}

// merge greedily joins pieces into chunks of at most size runes, sliding the
// window back so each chunk repeats the trailing overlap of its predecessor.
func (c *TextChunker) merge(pieces []string) []string {
	var chunks []string
	var window []string
	total := 0

	for _, p := range pieces {
		pl := utf8.RuneCountInString(p)
		if total+pl > c.size && len(window) > 0 {
			if chunk := strings.Join(window, ""); strings.TrimSpace(chunk) != "" {
				chunks = append(chunks, chunk)
			}
			for len(window) > 0 && (total > c.overlap || total+pl > c.size) {
				total -= utf8.RuneCountInString(window[0])
				window = window[1:]
			}
		}
		window = append(window, p)
		total += pl
	}

	if chunk := strings.Join(window, ""); strings.TrimSpace(chunk) != "" {
		chunks = append(chunks, chunk)
	}
	return chunks
}

// splitKeepingSeparator splits text on sep, keeping the separator attached to
// the preceding piece so no content is lost across chunk boundaries. The
// empty separator splits into individual runes for the hard-cut case.
func splitKeepingSeparator(text, sep string) []string {
	if sep == "" {
		out := make([]string, 0, utf8.RuneCountInString(text))
		for _, r := range text {
			out = append(out, string(r))
		}
		return out
	}

	parts := strings.Split(text, sep)
	out := make([]string, 0, len(parts))
	for i, p := range parts {
		if i < len(parts)-1 {
			p += sep
		}
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
