package walker

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func touch(t *testing.T, root, rel, content string) {
	t.Helper()
	path := filepath.Join(root, filepath.FromSlash(rel))
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func rels(files []FileInfo) []string {
	out := make([]string, len(files))
	for i, f := range files {
		out[i] = f.RelPath
	}
	return out
}

func TestCollect(t *testing.T) {
	t.Run("Should pick up documents in lexical order", func(t *testing.T) {
		root := t.TempDir()
		touch(t, root, "b.md", "# b")
		touch(t, root, "a.txt", "a")
		touch(t, root, "notes/c.TXT", "c")
		touch(t, root, "main.go", "package main")
		touch(t, root, "empty.txt", "")
		touch(t, root, ".git/HEAD.txt", "ref")
		touch(t, root, "node_modules/pkg/readme.md", "x")

		files, err := Collect(root, DefaultExtensions)
		require.NoError(t, err)
		assert.Equal(t, []string{"a.txt", "b.md", "notes/c.TXT"}, rels(files))
		assert.Equal(t, filepath.Join(root, "a.txt"), files[0].Path)
		assert.Equal(t, int64(1), files[0].Size)
	})

	t.Run("Should honor the ignore file", func(t *testing.T) {
		root := t.TempDir()
		touch(t, root, IgnoreFile, "# comment\ndrafts/\n*.log\n")
		touch(t, root, "keep.md", "keep")
		touch(t, root, "drafts/skip.md", "skip")
		touch(t, root, "drafts-final/keep.md", "keep")
		touch(t, root, "debug.log", "noise")
		touch(t, root, "node_modules/now-kept.md", "kept")

		files, err := Collect(root, DefaultExtensions)
		require.NoError(t, err)
		assert.Equal(t, []string{"drafts-final/keep.md", "keep.md", "node_modules/now-kept.md"}, rels(files))
	})

	t.Run("Should fail for a missing root", func(t *testing.T) {
		_, err := Collect(filepath.Join(t.TempDir(), "missing"), DefaultExtensions)
		require.Error(t, err)
	})
}

func TestMatchesIgnore(t *testing.T) {
	patterns := []string{"vendor", "docs/old", "*.bak"}
	assert.True(t, matchesIgnore("vendor", "vendor", patterns))
	assert.True(t, matchesIgnore("a.md", "docs/old/a.md", patterns))
	assert.False(t, matchesIgnore("older", "docs/older", patterns))
	assert.True(t, matchesIgnore("x.bak", "sub/x.bak", patterns))
	assert.False(t, matchesIgnore("x.md", "sub/x.md", patterns))
}
