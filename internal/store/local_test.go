package store

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	synerrors "github.com/casheiro/synapstor-go/internal/errors"
	"github.com/casheiro/synapstor-go/internal/ids"
)

func localEntry(project, path string, chunk int, vec []float32, content string) Entry {
	return Entry{
		ID:      ids.New(project, path, chunk),
		Vector:  vec,
		Content: content,
		Metadata: map[string]any{
			"project":    project,
			"file_name":  filepath.Base(path),
			"size_bytes": int64(len(content)),
		},
	}
}

// =============================================================================
// Upsert and Search
// =============================================================================

func TestLocalStore_UpsertAndSearch(t *testing.T) {
	ctx := context.Background()
	s, err := NewLocalStore("")
	require.NoError(t, err)

	entries := []Entry{
		localEntry("demo", "/src/a.go", 0, []float32{1, 0, 0, 0}, "package a"),
		localEntry("demo", "/src/b.go", 0, []float32{0, 1, 0, 0}, "package b"),
		localEntry("demo", "/src/c.go", 0, []float32{0, 0, 1, 0}, "package c"),
	}
	require.NoError(t, s.Upsert(ctx, "code", entries))

	results, err := s.Search(ctx, "code", []float32{1, 0, 0, 0}, 2, nil)
	require.NoError(t, err)
	require.Len(t, results, 2)

	assert.Equal(t, entries[0].ID, results[0].ID)
	assert.InDelta(t, 1.0, results[0].Score, 1e-6)
	assert.Equal(t, "package a", results[0].Content)
	assert.Equal(t, "demo", results[0].Metadata["project"])
	assert.InDelta(t, 0.0, results[1].Score, 1e-6)
}

func TestLocalStore_ScoresAreCosineSimilarity(t *testing.T) {
	ctx := context.Background()
	s, err := NewLocalStore("")
	require.NoError(t, err)

	// (3,4) normalizes to (0.6,0.8); against a (4,3) query the cosine
	// is exactly 0.96.
	entry := localEntry("demo", "/src/a.go", 0, []float32{3, 4}, "content")
	require.NoError(t, s.Upsert(ctx, "code", []Entry{entry}))

	results, err := s.Search(ctx, "code", []float32{4, 3}, 1, nil)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.InDelta(t, 0.96, results[0].Score, 1e-6)

	results, err = s.Search(ctx, "code", []float32{6, 8}, 1, nil)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.InDelta(t, 1.0, results[0].Score, 1e-6)
}

func TestLocalStore_ReupsertReplacesEntry(t *testing.T) {
	ctx := context.Background()
	s, err := NewLocalStore("")
	require.NoError(t, err)

	first := localEntry("demo", "/src/a.go", 0, []float32{1, 0}, "old content")
	require.NoError(t, s.Upsert(ctx, "code", []Entry{first}))

	second := localEntry("demo", "/src/a.go", 0, []float32{0, 1}, "new content")
	require.NoError(t, s.Upsert(ctx, "code", []Entry{second}))
	require.Equal(t, first.ID, second.ID)

	count, err := s.Count(ctx, "code")
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	results, err := s.Search(ctx, "code", []float32{0, 1}, 5, nil)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "new content", results[0].Content)
}

func TestLocalStore_FilteredSearchMatchesMetadata(t *testing.T) {
	ctx := context.Background()
	s, err := NewLocalStore("")
	require.NoError(t, err)

	entries := []Entry{
		localEntry("alpha", "/a/x.go", 0, []float32{1, 0, 0}, "alpha x"),
		localEntry("alpha", "/a/y.go", 0, []float32{0.9, 0.1, 0}, "alpha y"),
		localEntry("beta", "/b/x.go", 0, []float32{1, 0, 0}, "beta x"),
		localEntry("beta", "/b/y.go", 0, []float32{0, 1, 0}, "beta y"),
	}
	require.NoError(t, s.Upsert(ctx, "code", entries))

	results, err := s.Search(ctx, "code", []float32{1, 0, 0}, 10, Filter{"project": "alpha"})
	require.NoError(t, err)
	require.Len(t, results, 2)
	for _, r := range results {
		assert.Equal(t, "alpha", r.Metadata["project"])
	}
	assert.GreaterOrEqual(t, results[0].Score, results[1].Score)
}

func TestLocalStore_SearchLimitCapsResults(t *testing.T) {
	ctx := context.Background()
	s, err := NewLocalStore("")
	require.NoError(t, err)

	entries := make([]Entry, 0, 5)
	for i := 0; i < 5; i++ {
		vec := []float32{1, float32(i) / 10, 0}
		entries = append(entries, localEntry("demo", "/src/f.go", i, vec, "chunk"))
	}
	require.NoError(t, s.Upsert(ctx, "code", entries))

	results, err := s.Search(ctx, "code", []float32{1, 0, 0}, 2, nil)
	require.NoError(t, err)
	assert.Len(t, results, 2)
	assert.GreaterOrEqual(t, results[0].Score, results[1].Score)
}

func TestLocalStore_DeleteRemovesEntries(t *testing.T) {
	ctx := context.Background()
	s, err := NewLocalStore("")
	require.NoError(t, err)

	entries := []Entry{
		localEntry("demo", "/src/a.go", 0, []float32{1, 0, 0}, "package a"),
		localEntry("demo", "/src/a.go", 1, []float32{0.9, 0.1, 0}, "func A()"),
		localEntry("demo", "/src/b.go", 0, []float32{0, 1, 0}, "package b"),
	}
	require.NoError(t, s.Upsert(ctx, "code", entries))

	ghost := ids.New("demo", "/src/ghost.go", 0)
	require.NoError(t, s.Delete(ctx, "code", []string{entries[0].ID, entries[1].ID, ghost}))

	count, err := s.Count(ctx, "code")
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	results, err := s.Search(ctx, "code", []float32{1, 0, 0}, 10, nil)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, entries[2].ID, results[0].ID)

	assert.NoError(t, s.Delete(ctx, "ghost-collection", []string{ghost}))
}

func TestLocalStore_MissingCollectionIsEmpty(t *testing.T) {
	ctx := context.Background()
	s, err := NewLocalStore("")
	require.NoError(t, err)

	results, err := s.Search(ctx, "ghost", []float32{1, 0}, 5, nil)
	require.NoError(t, err)
	assert.Empty(t, results)

	count, err := s.Count(ctx, "ghost")
	require.NoError(t, err)
	assert.Zero(t, count)
}

// =============================================================================
// Dimension Handling
// =============================================================================

func TestLocalStore_DimensionChecks(t *testing.T) {
	ctx := context.Background()
	s, err := NewLocalStore("")
	require.NoError(t, err)

	require.NoError(t, s.Ensure(ctx, "code", 4))

	// Re-ensuring with the same dimension is fine, another one is not.
	require.NoError(t, s.Ensure(ctx, "code", 4))
	err = s.Ensure(ctx, "code", 8)
	require.Error(t, err)
	assert.Equal(t, synerrors.ErrCodeDimensionMismatch, synerrors.GetCode(err))

	err = s.Upsert(ctx, "code", []Entry{
		localEntry("demo", "/src/a.go", 0, []float32{1, 0, 0}, "short vector"),
	})
	require.Error(t, err)
	assert.Equal(t, synerrors.ErrCodeDimensionMismatch, synerrors.GetCode(err))

	_, err = s.Search(ctx, "code", []float32{1, 0, 0}, 5, nil)
	require.Error(t, err)
	assert.Equal(t, synerrors.ErrCodeDimensionMismatch, synerrors.GetCode(err))
}

func TestLocalStore_LazyCreateOnUpsert(t *testing.T) {
	ctx := context.Background()
	s, err := NewLocalStore("")
	require.NoError(t, err)

	entry := localEntry("demo", "/src/a.go", 0, []float32{1, 0, 0}, "content")
	require.NoError(t, s.Upsert(ctx, "code", []Entry{entry}))

	// The collection took its dimension from the first vector.
	require.NoError(t, s.Ensure(ctx, "code", 3))
	err = s.Ensure(ctx, "code", 8)
	require.Error(t, err)
	assert.Equal(t, synerrors.ErrCodeDimensionMismatch, synerrors.GetCode(err))
}

// =============================================================================
// Persistence
// =============================================================================

func TestLocalStore_PersistenceRoundTrip(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	s1, err := NewLocalStore(dir)
	require.NoError(t, err)
	entries := []Entry{
		localEntry("demo", "/src/a.go", 0, []float32{1, 0}, "package a"),
		localEntry("demo", "/src/b.go", 0, []float32{0, 1}, "package b"),
	}
	require.NoError(t, s1.Upsert(ctx, "code", entries))
	require.NoError(t, s1.Close())

	s2, err := NewLocalStore(dir)
	require.NoError(t, err)

	names, err := s2.ListCollections(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"code"}, names)

	count, err := s2.Count(ctx, "code")
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	results, err := s2.Search(ctx, "code", []float32{1, 0}, 1, nil)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, entries[0].ID, results[0].ID)
	assert.Equal(t, "package a", results[0].Content)
	assert.Equal(t, int64(len("package a")), results[0].Metadata["size_bytes"])
}

func TestLocalStore_CorruptSnapshotFailsLoud(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "code.gob"), []byte("not a snapshot"), 0o644))

	_, err := NewLocalStore(dir)
	require.Error(t, err)
	assert.Equal(t, synerrors.ErrCodeInternal, synerrors.GetCode(err))
}

func TestLocalStore_DeleteCollectionRemovesSnapshot(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	s, err := NewLocalStore(dir)
	require.NoError(t, err)
	entry := localEntry("demo", "/src/a.go", 0, []float32{1, 0}, "content")
	require.NoError(t, s.Upsert(ctx, "code", []Entry{entry}))

	snapshot := filepath.Join(dir, "code"+snapshotSuffix)
	_, err = os.Stat(snapshot)
	require.NoError(t, err)

	require.NoError(t, s.DeleteCollection(ctx, "code"))
	_, err = os.Stat(snapshot)
	assert.True(t, os.IsNotExist(err))

	count, err := s.Count(ctx, "code")
	require.NoError(t, err)
	assert.Zero(t, count)

	// Deleting again is a no-op.
	assert.NoError(t, s.DeleteCollection(ctx, "code"))
}

// =============================================================================
// Lifecycle
// =============================================================================

func TestLocalStore_ListCollectionsSorted(t *testing.T) {
	ctx := context.Background()
	s, err := NewLocalStore("")
	require.NoError(t, err)

	require.NoError(t, s.Ensure(ctx, "zeta", 2))
	require.NoError(t, s.Ensure(ctx, "alpha", 2))

	names, err := s.ListCollections(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"alpha", "zeta"}, names)
}

func TestLocalStore_ClosedRejectsCalls(t *testing.T) {
	ctx := context.Background()
	s, err := NewLocalStore("")
	require.NoError(t, err)
	require.NoError(t, s.Close())
	require.NoError(t, s.Close())

	err = s.Upsert(ctx, "code", []Entry{
		localEntry("demo", "/src/a.go", 0, []float32{1, 0}, "content"),
	})
	require.Error(t, err)
	assert.Equal(t, synerrors.ErrCodeStoreClosed, synerrors.GetCode(err))

	_, err = s.Search(ctx, "code", []float32{1, 0}, 5, nil)
	require.Error(t, err)
	assert.Equal(t, synerrors.ErrCodeStoreClosed, synerrors.GetCode(err))
}
