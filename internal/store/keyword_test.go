package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	synerrors "github.com/casheiro/synapstor-go/internal/errors"
	"github.com/casheiro/synapstor-go/internal/ids"
)

func keywordEntry(project, path string, content string) Entry {
	return Entry{
		ID:      ids.New(project, path, 0),
		Content: content,
		Metadata: map[string]any{
			"project": project,
		},
	}
}

// =============================================================================
// Ingest and Search
// =============================================================================

func TestKeywordIndex_IngestAndSearch(t *testing.T) {
	ctx := context.Background()
	k := NewKeywordIndex("")
	defer func() { _ = k.Close() }()

	entries := []Entry{
		keywordEntry("demo", "/src/db.go", "configure the database connection pool"),
		keywordEntry("demo", "/src/http.go", "start the http server and register routes"),
		keywordEntry("demo", "/src/log.go", "structured logging setup"),
	}
	require.NoError(t, k.Ingest(ctx, "code", entries))

	hits, err := k.Search(ctx, "code", "database pool", 10, "")
	require.NoError(t, err)
	require.NotEmpty(t, hits)
	assert.Equal(t, entries[0].ID, hits[0].ID)
	assert.Equal(t, entries[0].Content, hits[0].Content)
	assert.Greater(t, hits[0].Score, 0.0)
}

func TestKeywordIndex_MatchingIsCaseInsensitive(t *testing.T) {
	ctx := context.Background()
	k := NewKeywordIndex("")
	defer func() { _ = k.Close() }()

	entry := keywordEntry("demo", "/src/db.go", "Database Connection Handling")
	require.NoError(t, k.Ingest(ctx, "code", []Entry{entry}))

	hits, err := k.Search(ctx, "code", "database", 10, "")
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, entry.ID, hits[0].ID)
}

func TestKeywordIndex_ReingestReplacesDocument(t *testing.T) {
	ctx := context.Background()
	k := NewKeywordIndex("")
	defer func() { _ = k.Close() }()

	old := keywordEntry("demo", "/src/db.go", "legacy database helpers")
	require.NoError(t, k.Ingest(ctx, "code", []Entry{old}))

	updated := old
	updated.Content = "rewritten storage layer"
	require.NoError(t, k.Ingest(ctx, "code", []Entry{updated}))

	hits, err := k.Search(ctx, "code", "database", 10, "")
	require.NoError(t, err)
	assert.Empty(t, hits)

	hits, err = k.Search(ctx, "code", "storage", 10, "")
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "rewritten storage layer", hits[0].Content)
}

func TestKeywordIndex_DeleteRemovesDocuments(t *testing.T) {
	ctx := context.Background()
	k := NewKeywordIndex("")
	defer func() { _ = k.Close() }()

	entries := []Entry{
		keywordEntry("demo", "/src/db.go", "database connection pooling"),
		keywordEntry("demo", "/src/http.go", "http handler wiring"),
	}
	require.NoError(t, k.Ingest(ctx, "code", entries))

	require.NoError(t, k.Delete(ctx, "code", []string{entries[0].ID, "no-such-id"}))

	hits, err := k.Search(ctx, "code", "database", 10, "")
	require.NoError(t, err)
	assert.Empty(t, hits)

	hits, err = k.Search(ctx, "code", "http", 10, "")
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, entries[1].ID, hits[0].ID)

	assert.NoError(t, k.Delete(ctx, "never-indexed", []string{"x"}))
}

func TestKeywordIndex_ProjectFilter(t *testing.T) {
	ctx := context.Background()
	k := NewKeywordIndex("")
	defer func() { _ = k.Close() }()

	entries := []Entry{
		keywordEntry("alpha", "/a/db.go", "database migrations for alpha"),
		keywordEntry("beta", "/b/db.go", "database migrations for beta"),
	}
	require.NoError(t, k.Ingest(ctx, "code", entries))

	hits, err := k.Search(ctx, "code", "database", 10, "alpha")
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, entries[0].ID, hits[0].ID)

	hits, err = k.Search(ctx, "code", "database", 10, "")
	require.NoError(t, err)
	assert.Len(t, hits, 2)
}

// =============================================================================
// Empty and Missing Inputs
// =============================================================================

func TestKeywordIndex_BlankQueryReturnsNothing(t *testing.T) {
	ctx := context.Background()
	k := NewKeywordIndex("")
	defer func() { _ = k.Close() }()

	require.NoError(t, k.Ingest(ctx, "code", []Entry{
		keywordEntry("demo", "/src/db.go", "database"),
	}))

	for _, q := range []string{"", "   ", "\t\n"} {
		hits, err := k.Search(ctx, "code", q, 10, "")
		require.NoError(t, err)
		assert.Empty(t, hits)
	}
}

func TestKeywordIndex_MissingCollectionReturnsNothing(t *testing.T) {
	ctx := context.Background()
	k := NewKeywordIndex("")
	defer func() { _ = k.Close() }()

	hits, err := k.Search(ctx, "ghost", "database", 10, "")
	require.NoError(t, err)
	assert.Empty(t, hits)
}

func TestKeywordIndex_IngestNothingIsANoop(t *testing.T) {
	ctx := context.Background()
	k := NewKeywordIndex("")
	defer func() { _ = k.Close() }()

	assert.NoError(t, k.Ingest(ctx, "code", nil))
}

// =============================================================================
// Persistence and Lifecycle
// =============================================================================

func TestKeywordIndex_PersistsAcrossReopen(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	k1 := NewKeywordIndex(dir)
	entry := keywordEntry("demo", "/src/db.go", "database connection pool")
	require.NoError(t, k1.Ingest(ctx, "code", []Entry{entry}))
	require.NoError(t, k1.Close())

	k2 := NewKeywordIndex(dir)
	defer func() { _ = k2.Close() }()

	hits, err := k2.Search(ctx, "code", "database", 10, "")
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, entry.ID, hits[0].ID)
	assert.Equal(t, entry.Content, hits[0].Content)
}

func TestKeywordIndex_DeleteCollection(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	k := NewKeywordIndex(dir)
	defer func() { _ = k.Close() }()

	require.NoError(t, k.Ingest(ctx, "code", []Entry{
		keywordEntry("demo", "/src/db.go", "database"),
	}))
	require.NoError(t, k.DeleteCollection(ctx, "code"))

	hits, err := k.Search(ctx, "code", "database", 10, "")
	require.NoError(t, err)
	assert.Empty(t, hits)

	// Deleting again is a no-op.
	assert.NoError(t, k.DeleteCollection(ctx, "code"))
}

func TestKeywordIndex_ClosedRejectsCalls(t *testing.T) {
	ctx := context.Background()
	k := NewKeywordIndex("")
	require.NoError(t, k.Close())
	require.NoError(t, k.Close())

	err := k.Ingest(ctx, "code", []Entry{keywordEntry("demo", "/src/db.go", "x")})
	require.Error(t, err)
	assert.Equal(t, synerrors.ErrCodeStoreClosed, synerrors.GetCode(err))

	_, err = k.Search(ctx, "code", "database", 10, "")
	require.Error(t, err)
	assert.Equal(t, synerrors.ErrCodeStoreClosed, synerrors.GetCode(err))
}
