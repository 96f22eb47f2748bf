// Package reader discovers and loads raw registry documents from a
// filesystem tree, an object store, or a watch on a directory.
package reader

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/c360studio/registrygraph/canonical"
)

// DefaultPatterns match the payload formats the pipeline understands.
var DefaultPatterns = []string{"**/*.json", "**/*.xml", "**/*.log"}

// Source yields raw documents one at a time. A non-nil error from the
// callback stops the walk; read failures of individual files do not.
type Source interface {
	Walk(ctx context.Context, fn func(*canonical.RawDocument) error) error
}

// FileSource reads documents from a directory tree, selected by
// doublestar glob patterns relative to the root.
type FileSource struct {
	root     string
	patterns []string
	logger   *slog.Logger
}

// NewFileSource builds a filesystem source. Empty patterns fall back to
// DefaultPatterns.
func NewFileSource(root string, patterns []string, logger *slog.Logger) *FileSource {
	if len(patterns) == 0 {
		patterns = DefaultPatterns
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &FileSource{root: root, patterns: patterns, logger: logger}
}

// Walk globs the root and feeds each matching file to fn in sorted path
// order, so runs over the same tree are deterministic. Unreadable files
// are logged and skipped.
func (s *FileSource) Walk(ctx context.Context, fn func(*canonical.RawDocument) error) error {
	fsys := os.DirFS(s.root)
	seen := make(map[string]bool)
	var paths []string

	for _, pattern := range s.patterns {
		matches, err := doublestar.Glob(fsys, pattern)
		if err != nil {
			return fmt.Errorf("glob %q: %w", pattern, err)
		}
		for _, m := range matches {
			if !seen[m] {
				seen[m] = true
				paths = append(paths, m)
			}
		}
	}
	sort.Strings(paths)

	for _, rel := range paths {
		if err := ctx.Err(); err != nil {
			return err
		}
		full := filepath.Join(s.root, rel)
		info, err := os.Stat(full)
		if err != nil || info.IsDir() {
			continue
		}
		raw, err := canonical.ReadRawFile(full)
		if err != nil {
			s.logger.Warn("skipping unreadable file", "path", full, "error", err)
			continue
		}
		if err := fn(raw); err != nil {
			return err
		}
	}
	return nil
}
