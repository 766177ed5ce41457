package scanner

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"

	synerrors "github.com/casheiro/synapstor-go/internal/errors"
	"github.com/casheiro/synapstor-go/internal/gitignore"
)

// ignoreCacheSize bounds the number of cached ignore matchers so watch
// mode cannot grow memory without limit.
const ignoreCacheSize = 1000

// Scanner walks project trees and streams candidate files.
type Scanner struct {
	// ignoreCache holds parsed ignore matchers keyed by directory, so
	// repeated scans in watch mode do not reparse .gitignore files.
	ignoreCache *lru.Cache[string, *gitignore.Matcher]
}

// New creates a Scanner.
func New() (*Scanner, error) {
	cache, err := lru.New[string, *gitignore.Matcher](ignoreCacheSize)
	if err != nil {
		return nil, fmt.Errorf("failed to create ignore cache: %w", err)
	}
	return &Scanner{ignoreCache: cache}, nil
}

// Scan streams candidate files under opts.Root. The returned channel
// closes when the walk finishes or ctx is cancelled. Files are already
// filtered: ignore rules, dotfiles and the size cap have been applied.
// Binary detection happens later in ReadText, so binary skips stay
// visible to the caller's per-file accounting.
func (s *Scanner) Scan(ctx context.Context, opts *Options) (<-chan Result, error) {
	if opts == nil {
		opts = &Options{}
	}

	root := opts.Root
	if root == "" {
		root = "."
	}

	absRoot, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve project root: %w", err)
	}

	info, err := os.Stat(absRoot)
	if err != nil {
		return nil, fmt.Errorf("failed to stat project root: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("project root is not a directory: %s", absRoot)
	}

	maxSize := opts.MaxFileSize
	if maxSize <= 0 {
		maxSize = DefaultMaxFileSize
	}

	results := make(chan Result, 64)
	go func() {
		defer close(results)
		s.walk(ctx, absRoot, maxSize, opts, results)
	}()
	return results, nil
}

// walk traverses the tree and emits files that pass the stat-level filters.
func (s *Scanner) walk(ctx context.Context, absRoot string, maxSize int64, opts *Options, results chan<- Result) {
	err := filepath.WalkDir(absRoot, func(path string, d fs.DirEntry, err error) error {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		if err != nil {
			return nil // Skip entries we cannot access
		}

		relPath, err := filepath.Rel(absRoot, path)
		if err != nil {
			return nil
		}
		if relPath == "." {
			return nil
		}
		relPath = filepath.ToSlash(relPath)

		if d.IsDir() {
			if s.isIgnored(relPath, absRoot, true) {
				return filepath.SkipDir
			}
			return nil
		}

		if d.Type()&fs.ModeSymlink != 0 && !opts.FollowSymlinks {
			return nil
		}

		// Dotfiles are never indexed, matching the ignore defaults.
		base := filepath.Base(relPath)
		if strings.HasPrefix(base, ".") {
			return nil
		}

		if s.isIgnored(relPath, absRoot, false) {
			return nil
		}

		info, err := d.Info()
		if err != nil {
			return nil
		}
		if info.Size() > maxSize {
			return nil
		}

		fi := &FileInfo{
			Path:      relPath,
			AbsPath:   path,
			Size:      info.Size(),
			ModTime:   info.ModTime(),
			Extension: strings.ToLower(strings.TrimPrefix(filepath.Ext(base), ".")),
		}

		select {
		case results <- Result{File: fi}:
		case <-ctx.Done():
			return ctx.Err()
		}
		return nil
	})

	if err != nil && err != context.Canceled {
		select {
		case results <- Result{Err: err}:
		case <-ctx.Done():
		}
	}
}

// isIgnored checks the project matcher plus every nested .gitignore on
// the path from the root to the file's directory.
func (s *Scanner) isIgnored(relPath, absRoot string, isDir bool) bool {
	if s.projectMatcher(absRoot).Match(relPath, isDir) {
		return true
	}

	dir := filepath.ToSlash(filepath.Dir(relPath))
	if dir == "." {
		return false
	}

	parts := strings.Split(dir, "/")
	cur := absRoot
	for i, part := range parts {
		cur = filepath.Join(cur, part)
		m := s.dirMatcher(cur, strings.Join(parts[:i+1], "/"))
		if m != nil && m.Match(relPath, isDir) {
			return true
		}
	}
	return false
}

// projectMatcher returns the matcher for the project root: the built-in
// ignore set layered with the root .gitignore when present.
func (s *Scanner) projectMatcher(absRoot string) *gitignore.Matcher {
	if m, ok := s.ignoreCache.Get(absRoot); ok {
		return m
	}

	m := gitignore.Default()
	gi := filepath.Join(absRoot, ".gitignore")
	if _, err := os.Stat(gi); err == nil {
		// An unreadable .gitignore leaves the defaults in place
		_ = m.AddFromFile(gi, "")
	}

	s.ignoreCache.Add(absRoot, m)
	return m
}

// dirMatcher returns a matcher for a nested directory's .gitignore, or
// nil when the directory has none.
func (s *Scanner) dirMatcher(dir, base string) *gitignore.Matcher {
	if m, ok := s.ignoreCache.Get(dir); ok {
		return m
	}

	gi := filepath.Join(dir, ".gitignore")
	if _, err := os.Stat(gi); os.IsNotExist(err) {
		return nil
	}

	m := gitignore.New()
	if err := m.AddFromFile(gi, base); err != nil {
		return nil
	}

	s.ignoreCache.Add(dir, m)
	return m
}

// Inspect applies the scan filters to a single path and returns its
// FileInfo when it qualifies for indexing. Watch mode uses this to
// admit changed files without rescanning the tree. Rejections carry
// typed errors: file-ignored for rule and dotfile exclusions,
// file-too-large for the size cap, file-unreadable for stat failures.
func (s *Scanner) Inspect(root, relPath string, maxSize int64) (*FileInfo, error) {
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve project root: %w", err)
	}
	if maxSize <= 0 {
		maxSize = DefaultMaxFileSize
	}

	relPath = filepath.ToSlash(filepath.Clean(relPath))
	absPath := filepath.Join(absRoot, filepath.FromSlash(relPath))

	info, err := os.Lstat(absPath)
	if err != nil {
		return nil, synerrors.New(synerrors.ErrCodeFileUnreadable,
			fmt.Sprintf("cannot stat %s", absPath), err)
	}

	base := filepath.Base(relPath)
	switch {
	case info.IsDir():
		return nil, fileIgnored(relPath, "directories are not indexed")
	case info.Mode()&fs.ModeSymlink != 0:
		return nil, fileIgnored(relPath, "symlinks are not followed")
	case strings.HasPrefix(base, "."):
		return nil, fileIgnored(relPath, "dotfiles are never indexed")
	case s.isIgnored(relPath, absRoot, false):
		return nil, fileIgnored(relPath, "ignore rules exclude it")
	case info.Size() > maxSize:
		return nil, synerrors.New(synerrors.ErrCodeFileTooLarge,
			fmt.Sprintf("%s is %d bytes, cap is %d", relPath, info.Size(), maxSize), nil)
	}

	return &FileInfo{
		Path:      relPath,
		AbsPath:   absPath,
		Size:      info.Size(),
		ModTime:   info.ModTime(),
		Extension: strings.ToLower(strings.TrimPrefix(filepath.Ext(base), ".")),
	}, nil
}

func fileIgnored(relPath, why string) error {
	return synerrors.New(synerrors.ErrCodeFileIgnored,
		fmt.Sprintf("%s skipped: %s", relPath, why), nil)
}

// InvalidateIgnoreCache drops all cached ignore matchers. Watch mode
// calls this when a .gitignore changes so the next scan reparses.
func (s *Scanner) InvalidateIgnoreCache() {
	s.ignoreCache.Purge()
}
