package cmd

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/casheiro/synapstor-go/internal/config"
	synerrors "github.com/casheiro/synapstor-go/internal/errors"
	"github.com/casheiro/synapstor-go/internal/index"
	"github.com/casheiro/synapstor-go/internal/registry"
	"github.com/casheiro/synapstor-go/internal/search"
)

// localToolConfig builds a configuration whose backends all live in
// temp directories, so tools run without any network.
func localToolConfig(t *testing.T, root string) *config.Config {
	t.Helper()
	cfg := config.NewConfig()
	cfg.Project.Name = "toolchain"
	cfg.Project.Path = root
	cfg.Store.Backend = "local"
	cfg.Store.Collection = "toolchain-files"
	cfg.Store.DataDir = t.TempDir()
	cfg.Embeddings.Provider = "static"
	cfg.Embeddings.Dimensions = 64
	return cfg
}

func seedToolTree(t *testing.T) string {
	t.Helper()
	root := t.TempDir()
	files := map[string]string{
		"guide.md": "The zebrafish reporting pipeline runs nightly.\n",
		"main.go":  "package main\n\nfunc main() {}\n",
	}
	for name, content := range files {
		require.NoError(t, os.WriteFile(filepath.Join(root, name), []byte(content), 0o644))
	}
	return root
}

func TestBuildRegistry_RegistersBuiltinTools(t *testing.T) {
	// Given: any configuration
	cfg := config.NewConfig()

	// When: building the capability table
	reg, err := buildRegistry(cfg, nil)

	// Then: the four built-in tools should be listed in order
	require.NoError(t, err)
	infos := reg.List()
	require.Len(t, infos, 4)
	assert.Equal(t, "delete-collection", infos[0].Name)
	assert.Equal(t, "index", infos[1].Name)
	assert.Equal(t, "list-collections", infos[2].Name)
	assert.Equal(t, "search", infos[3].Name)
	for _, info := range infos {
		assert.NotEmpty(t, info.Description, "Tool %s should carry a description", info.Name)
	}
}

func TestTools_IndexSearchListDeleteRoundtrip(t *testing.T) {
	// Given: a seeded tree, a local config and a progress recorder
	root := seedToolTree(t)
	cfg := localToolConfig(t, root)
	ctx := context.Background()

	var mu sync.Mutex
	var lastDone, lastTotal int
	progress := func(done, total int) {
		mu.Lock()
		lastDone, lastTotal = done, total
		mu.Unlock()
	}

	reg, err := buildRegistry(cfg, progress)
	require.NoError(t, err)

	// When: indexing through the registry
	res, err := reg.Call(ctx, "index", map[string]any{"root": root})

	// Then: both files should land as one chunk each
	require.NoError(t, err)
	report, ok := res.(*index.RunReport)
	require.True(t, ok, "Index tool should return a run report")
	assert.Equal(t, 2, report.Seen)
	assert.Equal(t, 2, report.Indexed)
	assert.Equal(t, 0, report.Failed)
	assert.Equal(t, 2, report.Chunks)

	// And: the progress hook should have seen the final count
	mu.Lock()
	assert.Equal(t, 2, lastDone, "Progress should end at the last file")
	assert.Equal(t, 2, lastTotal)
	mu.Unlock()

	// When: searching by keyword for a planted token
	res, err = reg.Call(ctx, "search", map[string]any{"query": "zebrafish", "mode": "keyword"})

	// Then: the hit should carry the matching content
	require.NoError(t, err)
	hits, ok := res.([]search.Hit)
	require.True(t, ok, "Search tool should return hits")
	require.NotEmpty(t, hits)
	assert.Contains(t, hits[0].Content, "zebrafish")

	// When: searching semantically with the static embedder
	res, err = reg.Call(ctx, "search", map[string]any{"query": "zebrafish pipeline", "mode": "semantic"})

	// Then: shared vocabulary should still rank the right chunk first
	require.NoError(t, err)
	hits, ok = res.([]search.Hit)
	require.True(t, ok)
	require.NotEmpty(t, hits)
	assert.Contains(t, hits[0].Content, "zebrafish")

	// When: listing collections
	res, err = reg.Call(ctx, "list-collections", nil)

	// Then: the one collection should report its entry count
	require.NoError(t, err)
	infos, ok := res.([]CollectionInfo)
	require.True(t, ok, "List tool should return collection infos")
	require.Len(t, infos, 1)
	assert.Equal(t, "toolchain-files", infos[0].Name)
	assert.Equal(t, 2, infos[0].Entries)

	// When: deleting the collection
	res, err = reg.Call(ctx, "delete-collection", map[string]any{"collection": "toolchain-files"})

	// Then: the tool echoes the name and the listing goes empty
	require.NoError(t, err)
	assert.Equal(t, "toolchain-files", res)

	res, err = reg.Call(ctx, "list-collections", nil)
	require.NoError(t, err)
	infos, _ = res.([]CollectionInfo)
	assert.Empty(t, infos, "Deleted collection should no longer be listed")
}

func TestSearchTool_RequiresQuery(t *testing.T) {
	// Given: a registry over a local config
	cfg := localToolConfig(t, t.TempDir())
	reg, err := buildRegistry(cfg, nil)
	require.NoError(t, err)

	// When: calling search without a query
	_, err = reg.Call(context.Background(), "search", map[string]any{})

	// Then: it should fail with the missing-parameter code
	require.Error(t, err)
	assert.Equal(t, synerrors.ErrCodeMissingParameter, synerrors.GetCode(err))
}

func TestDeleteCollectionTool_RequiresName(t *testing.T) {
	// Given: a registry over a local config
	cfg := localToolConfig(t, t.TempDir())
	reg, err := buildRegistry(cfg, nil)
	require.NoError(t, err)

	// When: calling delete-collection without a name
	_, err = reg.Call(context.Background(), "delete-collection", nil)

	// Then: it should fail with the missing-parameter code
	require.Error(t, err)
	assert.Equal(t, synerrors.ErrCodeMissingParameter, synerrors.GetCode(err))
}

func TestRegistryCall_UnknownTool(t *testing.T) {
	// Given: the built-in registry
	cfg := localToolConfig(t, t.TempDir())
	reg, err := buildRegistry(cfg, nil)
	require.NoError(t, err)

	// When: calling a tool that was never registered
	_, err = reg.Call(context.Background(), "replicate", nil)

	// Then: the not-found sentinel should surface
	require.Error(t, err)
	assert.True(t, errors.Is(err, registry.ErrNotFound))
}

func TestToolsCmd_ListsCapabilityTable(t *testing.T) {
	// Given: an isolated environment and an empty tree
	isolateEnv(t)
	dir := t.TempDir()

	// When: running the tools command
	stdout, _, err := runCLI(t, "tools", "--path", dir)

	// Then: every built-in tool should be printed
	require.NoError(t, err)
	for _, name := range []string{"index", "search", "list-collections", "delete-collection"} {
		assert.Contains(t, stdout, name, "Tools listing should include %s", name)
	}
}
