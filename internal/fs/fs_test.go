package fs

import (
	"math/rand"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTree(t *testing.T, files map[string]string) string {
	t.Helper()
	root := t.TempDir()
	for path, content := range files {
		full := filepath.Join(root, path)
		require.NoError(t, os.MkdirAll(filepath.Dir(full), 0755))
		require.NoError(t, os.WriteFile(full, []byte(content), 0644))
	}
	return root
}

func TestHashContentDeterministic(t *testing.T) {
	content := []byte("some document content")

	assert.Equal(t, HashContent(content), HashContent(content))
	assert.Len(t, HashContent(content), 16)
}

func TestHashContentByteFlip(t *testing.T) {
	content := []byte("some document content that is long enough to mutate")
	original := HashContent(content)

	// Any single-byte change must produce a different hash.
	rng := rand.New(rand.NewSource(1))
	for i := 0; i < 100; i++ {
		mutated := append([]byte(nil), content...)
		pos := rng.Intn(len(mutated))
		mutated[pos] ^= byte(1 + rng.Intn(255))

		assert.NotEqual(t, original, HashContent(mutated),
			"flipping byte %d did not change the hash", pos)
	}
}

func TestWalkerExtensionAllowList(t *testing.T) {
	root := writeTree(t, map[string]string{
		"readme.md":  "# readme",
		"notes.txt":  "notes",
		"image.png":  "not really an image",
		"script.sh":  "echo hi",
		"sub/doc.md": "nested doc",
	})

	w, err := NewFileWalker(WalkOptions{
		Root:       root,
		Extensions: []string{".md", ".txt"},
	})
	require.NoError(t, err)

	var seen []string
	require.NoError(t, w.Walk(func(fi FileInfo) error {
		seen = append(seen, fi.RelPath)
		return nil
	}))

	assert.ElementsMatch(t, []string{"readme.md", "notes.txt", filepath.Join("sub", "doc.md")}, seen)
	assert.Equal(t, 3, w.Stats().FilesFound)
}

func TestWalkerExcludesDirectories(t *testing.T) {
	root := writeTree(t, map[string]string{
		"keep.md":              "kept",
		"node_modules/skip.md": "skipped",
		".hidden/secret.md":    "skipped",
	})

	w, err := NewFileWalker(WalkOptions{
		Root:        root,
		Extensions:  []string{".md"},
		ExcludeDirs: []string{"node_modules"},
	})
	require.NoError(t, err)

	var seen []string
	require.NoError(t, w.Walk(func(fi FileInfo) error {
		seen = append(seen, fi.RelPath)
		return nil
	}))

	assert.Equal(t, []string{"keep.md"}, seen)
}

func TestWalkerHashMatchesContentHash(t *testing.T) {
	root := writeTree(t, map[string]string{"doc.md": "hello world"})

	w, err := NewFileWalker(WalkOptions{Root: root, Extensions: []string{".md"}})
	require.NoError(t, err)

	var got string
	require.NoError(t, w.Walk(func(fi FileInfo) error {
		got = fi.Hash
		return nil
	}))

	assert.Equal(t, HashContent([]byte("hello world")), got)
}

func TestWalkerRejectsMissingRoot(t *testing.T) {
	_, err := NewFileWalker(WalkOptions{Root: filepath.Join(t.TempDir(), "nope")})
	assert.Error(t, err)
}

func TestClassify(t *testing.T) {
	scan := map[string]string{
		"a.md": "hash-a",
		"b.md": "hash-b2",
		"c.md": "hash-c",
	}
	prior := map[string]string{
		"a.md": "hash-a",
		"b.md": "hash-b1",
		"d.md": "hash-d",
	}

	cs := Classify(scan, prior)

	assert.Equal(t, []string{"c.md"}, cs.New)
	assert.Equal(t, []string{"b.md"}, cs.Modified)
	assert.Equal(t, []string{"a.md"}, cs.Unchanged)
	assert.Equal(t, []string{"d.md"}, cs.Deleted)
}

func TestClassifyEmptyPrior(t *testing.T) {
	cs := Classify(map[string]string{"b.md": "h2", "a.md": "h1"}, nil)

	assert.Equal(t, []string{"a.md", "b.md"}, cs.New)
	assert.Empty(t, cs.Modified)
	assert.Empty(t, cs.Unchanged)
	assert.Empty(t, cs.Deleted)
}

func TestClassifyEmptyScan(t *testing.T) {
	cs := Classify(nil, map[string]string{"a.md": "h1"})

	assert.Empty(t, cs.New)
	assert.Equal(t, []string{"a.md"}, cs.Deleted)
}
