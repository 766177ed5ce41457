package scanner

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	synerrors "github.com/casheiro/synapstor-go/internal/errors"
)

// writeFile creates a file with parent directories.
func writeFile(t *testing.T, root, rel, content string) {
	t.Helper()
	path := filepath.Join(root, rel)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

// collectPaths drains a scan channel and returns sorted relative paths.
func collectPaths(t *testing.T, ch <-chan Result) []string {
	t.Helper()
	var paths []string
	for r := range ch {
		require.NoError(t, r.Err)
		require.NotNil(t, r.File)
		paths = append(paths, r.File.Path)
	}
	sort.Strings(paths)
	return paths
}

func newScanner(t *testing.T) *Scanner {
	t.Helper()
	s, err := New()
	require.NoError(t, err)
	return s
}

func TestScan_FindsTextFiles(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "main.go", "package main")
	writeFile(t, root, "docs/guide.md", "# Guide")
	writeFile(t, root, "src/util.py", "def f(): pass")

	ch, err := newScanner(t).Scan(context.Background(), &Options{Root: root})
	require.NoError(t, err)

	assert.Equal(t, []string{"docs/guide.md", "main.go", "src/util.py"}, collectPaths(t, ch))
}

func TestScan_PopulatesFileInfo(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "pkg/server.go", "package pkg")

	ch, err := newScanner(t).Scan(context.Background(), &Options{Root: root})
	require.NoError(t, err)

	var files []*FileInfo
	for r := range ch {
		require.NoError(t, r.Err)
		files = append(files, r.File)
	}
	require.Len(t, files, 1)

	f := files[0]
	assert.Equal(t, "pkg/server.go", f.Path)
	assert.Equal(t, filepath.Join(root, "pkg", "server.go"), f.AbsPath)
	assert.Equal(t, int64(len("package pkg")), f.Size)
	assert.Equal(t, "go", f.Extension)
	assert.False(t, f.ModTime.IsZero())
}

func TestScan_SkipsDefaultIgnores(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "main.go", "package main")
	writeFile(t, root, ".git/config", "[core]")
	writeFile(t, root, "node_modules/left-pad/index.js", "module.exports = x")
	writeFile(t, root, "dist/bundle.js", "var x")
	writeFile(t, root, "__pycache__/mod.cpython.pyc", "x")

	ch, err := newScanner(t).Scan(context.Background(), &Options{Root: root})
	require.NoError(t, err)

	assert.Equal(t, []string{"main.go"}, collectPaths(t, ch))
}

func TestScan_SkipsDotfiles(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, ".env", "SECRET=1")
	writeFile(t, root, ".synapstor.yaml", "version: 1")
	writeFile(t, root, "app.go", "package app")
	// Files inside dot-directories are still indexed unless an ignore
	// rule covers the directory.
	writeFile(t, root, ".github/workflows/ci.yml", "on: push")

	ch, err := newScanner(t).Scan(context.Background(), &Options{Root: root})
	require.NoError(t, err)

	assert.Equal(t, []string{".github/workflows/ci.yml", "app.go"}, collectPaths(t, ch))
}

func TestScan_KeepsBinaryExtensionCandidates(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "logo.png", "not really a png")
	writeFile(t, root, "notes.txt", "hello")

	ch, err := newScanner(t).Scan(context.Background(), &Options{Root: root})
	require.NoError(t, err)

	// Binary extensions are rejected later in ReadText, so runs can
	// report each skip per file instead of dropping them silently here.
	assert.Equal(t, []string{"logo.png", "notes.txt"}, collectPaths(t, ch))
}

func TestScan_SkipsOversizedFiles(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "big.txt", string(make([]byte, 200)))
	writeFile(t, root, "small.txt", "ok")

	ch, err := newScanner(t).Scan(context.Background(), &Options{Root: root, MaxFileSize: 100})
	require.NoError(t, err)

	assert.Equal(t, []string{"small.txt"}, collectPaths(t, ch))
}

func TestScan_RespectsRootGitignore(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, ".gitignore", "secret/\n*.log\n")
	writeFile(t, root, "secret/key.txt", "hunter2")
	writeFile(t, root, "app.log", "log line")
	writeFile(t, root, "main.go", "package main")

	ch, err := newScanner(t).Scan(context.Background(), &Options{Root: root})
	require.NoError(t, err)

	assert.Equal(t, []string{"main.go"}, collectPaths(t, ch))
}

func TestScan_RespectsNestedGitignore(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "sub/.gitignore", "*.tmp\n")
	writeFile(t, root, "sub/scratch.tmp", "x")
	writeFile(t, root, "sub/code.go", "package sub")
	writeFile(t, root, "keep.tmp", "y")

	ch, err := newScanner(t).Scan(context.Background(), &Options{Root: root})
	require.NoError(t, err)

	// The nested rule applies under sub/ only
	assert.Equal(t, []string{"keep.tmp", "sub/code.go"}, collectPaths(t, ch))
}

func TestScan_InvalidateIgnoreCache(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, ".gitignore", "*.log\n")
	writeFile(t, root, "app.log", "x")
	writeFile(t, root, "main.go", "package main")

	s := newScanner(t)
	ch, err := s.Scan(context.Background(), &Options{Root: root})
	require.NoError(t, err)
	assert.Equal(t, []string{"main.go"}, collectPaths(t, ch))

	// Tighten the rules, then invalidate so the next scan reparses
	writeFile(t, root, ".gitignore", "*.log\n*.go\n")
	s.InvalidateIgnoreCache()

	ch, err = s.Scan(context.Background(), &Options{Root: root})
	require.NoError(t, err)
	assert.Empty(t, collectPaths(t, ch))
}

func TestScan_SkipsSymlinksByDefault(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "real.txt", "content")
	require.NoError(t, os.Symlink(filepath.Join(root, "real.txt"), filepath.Join(root, "link.txt")))

	ch, err := newScanner(t).Scan(context.Background(), &Options{Root: root})
	require.NoError(t, err)

	assert.Equal(t, []string{"real.txt"}, collectPaths(t, ch))
}

func TestScan_ContextCancellation(t *testing.T) {
	root := t.TempDir()
	for i := 0; i < 50; i++ {
		writeFile(t, root, filepath.Join("dir", "file"+string(rune('a'+i%26))+".txt"), "x")
	}

	ctx, cancel := context.WithCancel(context.Background())
	ch, err := newScanner(t).Scan(ctx, &Options{Root: root})
	require.NoError(t, err)

	cancel()

	// The channel must close; partial results are fine
	for range ch {
	}
}

func TestScan_RootErrors(t *testing.T) {
	s := newScanner(t)

	_, err := s.Scan(context.Background(), &Options{Root: "/nonexistent/path/xyz"})
	assert.Error(t, err)

	root := t.TempDir()
	writeFile(t, root, "file.txt", "x")
	_, err = s.Scan(context.Background(), &Options{Root: filepath.Join(root, "file.txt")})
	assert.Error(t, err)
}

func TestInspect_AdmitsQualifyingFile(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "src/handler.go", "package src")

	f, err := newScanner(t).Inspect(root, "src/handler.go", 0)
	require.NoError(t, err)
	assert.Equal(t, "src/handler.go", f.Path)
	assert.Equal(t, filepath.Join(root, "src", "handler.go"), f.AbsPath)
	assert.Equal(t, int64(len("package src")), f.Size)
	assert.Equal(t, "go", f.Extension)
}

func TestInspect_RejectionsAreTyped(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, ".gitignore", "*.log\n")
	writeFile(t, root, "app.log", "line")
	writeFile(t, root, ".env", "SECRET=1")
	writeFile(t, root, "big.txt", string(make([]byte, 200)))
	writeFile(t, root, "sub/ok.txt", "x")

	s := newScanner(t)

	_, err := s.Inspect(root, "app.log", 0)
	assert.Equal(t, synerrors.ErrCodeFileIgnored, synerrors.GetCode(err))

	_, err = s.Inspect(root, ".env", 0)
	assert.Equal(t, synerrors.ErrCodeFileIgnored, synerrors.GetCode(err))

	_, err = s.Inspect(root, "sub", 0)
	assert.Equal(t, synerrors.ErrCodeFileIgnored, synerrors.GetCode(err))

	_, err = s.Inspect(root, "big.txt", 100)
	assert.Equal(t, synerrors.ErrCodeFileTooLarge, synerrors.GetCode(err))

	_, err = s.Inspect(root, "vanished.txt", 0)
	assert.Equal(t, synerrors.ErrCodeFileUnreadable, synerrors.GetCode(err))
	assert.ErrorIs(t, err, fs.ErrNotExist)
}
