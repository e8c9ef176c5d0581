package walker

import (
	"bufio"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// FileInfo holds metadata about a discovered document.
type FileInfo struct {
	// Path is the root joined with RelPath, so it stays relative when root is.
	Path    string
	RelPath string
	Size    int64
}

// maxFileSize is the largest file we'll consider (32 MB).
const maxFileSize = 32 << 20

// IgnoreFile is read from the walk root when present.
const IgnoreFile = ".ragflowignore"

// DefaultExtensions are the document types picked up when walking a directory.
var DefaultExtensions = map[string]bool{
	"txt":      true,
	"md":       true,
	"markdown": true,
	"rst":      true,
	"text":     true,
	"csv":      true,
	"log":      true,
	"pdf":      true,
}

// defaultIgnores are used when no .ragflowignore file exists.
var defaultIgnores = []string{
	".git",
	".svn",
	".hg",
	"node_modules",
	"vendor",
	"__pycache__",
	".idea",
	".vscode",
	"data",
}

// Walk traverses the directory tree rooted at root and sends discovered
// documents on the returned channel in lexical order. It only emits files
// whose extension is in allowedExts, and skips directories and files matching
// .ragflowignore patterns.
func Walk(root string, allowedExts map[string]bool) (<-chan FileInfo, <-chan error) {
	files := make(chan FileInfo, 64)
	errs := make(chan error, 1)

	go func() {
		defer close(files)
		defer close(errs)

		ignores := loadIgnorePatterns(root)

		err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				if path == root {
					return err
				}
				return nil // skip errors, keep walking
			}

			rel, _ := filepath.Rel(root, path)
			rel = filepath.ToSlash(rel)

			if d.IsDir() {
				if path == root {
					return nil
				}
				if matchesIgnore(d.Name(), rel, ignores) {
					return filepath.SkipDir
				}
				return nil
			}

			// Skip symlinks.
			if d.Type()&fs.ModeSymlink != 0 {
				return nil
			}

			ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(path), "."))
			if !allowedExts[ext] || d.Name() == IgnoreFile {
				return nil
			}
			if matchesIgnore(d.Name(), rel, ignores) {
				return nil
			}

			info, err := d.Info()
			if err != nil {
				return nil
			}

			// Skip large or empty files.
			if info.Size() > maxFileSize || info.Size() == 0 {
				return nil
			}

			files <- FileInfo{
				Path:    path,
				RelPath: rel,
				Size:    info.Size(),
			}
			return nil
		})
		if err != nil {
			errs <- err
		}
	}()

	return files, errs
}

// Collect drains Walk into a slice.
func Collect(root string, allowedExts map[string]bool) ([]FileInfo, error) {
	ch, errCh := Walk(root, allowedExts)
	var out []FileInfo
	for fi := range ch {
		out = append(out, fi)
	}
	if err := <-errCh; err != nil {
		return nil, err
	}
	return out, nil
}

// loadIgnorePatterns reads .ragflowignore from the walk root, falling back to
// the defaults when it is missing or empty.
func loadIgnorePatterns(root string) []string {
	f, err := os.Open(filepath.Join(root, IgnoreFile))
	if err != nil {
		return defaultIgnores
	}
	defer f.Close()

	var patterns []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		patterns = append(patterns, strings.TrimSuffix(line, "/"))
	}
	if len(patterns) == 0 {
		return defaultIgnores
	}
	return patterns
}

// matchesIgnore checks if a name or relative path matches any ignore pattern.
func matchesIgnore(name, relPath string, patterns []string) bool {
	for _, p := range patterns {
		// Exact name match (e.g. "node_modules", ".git").
		if name == p {
			return true
		}
		// Path prefix match on whole segments (e.g. "drafts/old").
		if relPath == p || strings.HasPrefix(relPath, p+"/") {
			return true
		}
		// Glob match against the relative path or the name.
		if matched, _ := filepath.Match(p, relPath); matched {
			return true
		}
		if matched, _ := filepath.Match(p, name); matched {
			return true
		}
	}
	return false
}
