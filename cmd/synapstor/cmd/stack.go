package cmd

import (
	"context"
	"path/filepath"

	"github.com/casheiro/synapstor-go/internal/catalog"
	"github.com/casheiro/synapstor-go/internal/chunk"
	"github.com/casheiro/synapstor-go/internal/config"
	"github.com/casheiro/synapstor-go/internal/embed"
	"github.com/casheiro/synapstor-go/internal/index"
	"github.com/casheiro/synapstor-go/internal/store"
)

// catalogFileName is the SQLite file tracking per-file state inside the
// data directory.
const catalogFileName = "catalog.db"

// stack bundles the backends a command wires together.
type stack struct {
	store    store.Store
	keyword  *store.KeywordIndex
	embedder embed.Provider
	catalog  *catalog.Catalog
}

// openStack builds the store, the keyword sidecar, the embedding
// provider and, when asked, the file catalog from one configuration
// value. The caller owns Close.
func openStack(ctx context.Context, cfg *config.Config, withCatalog bool) (*stack, error) {
	if cfg.Store.VectorName == "" {
		cfg.Store.VectorName = store.VectorNameForModel(cfg.Embeddings.Model)
	}

	st, err := store.Open(cfg.Store)
	if err != nil {
		return nil, err
	}

	embedder, err := embed.New(ctx, cfg.Embeddings)
	if err != nil {
		_ = st.Close()
		return nil, err
	}

	s := &stack{
		store:    st,
		keyword:  store.OpenKeyword(cfg.Store),
		embedder: embedder,
	}

	if withCatalog {
		cat, err := catalog.Open(filepath.Join(cfg.Store.DataDir, catalogFileName))
		if err != nil {
			s.Close()
			return nil, err
		}
		s.catalog = cat
	}

	return s, nil
}

// openStoreOnly opens just the vector store, for collection management.
func openStoreOnly(cfg *config.Config) (store.Store, error) {
	if cfg.Store.VectorName == "" {
		cfg.Store.VectorName = store.VectorNameForModel(cfg.Embeddings.Model)
	}
	return store.Open(cfg.Store)
}

// runner builds an index Runner over the stack. progress may be nil.
func (s *stack) runner(progress func(done, total int)) (*index.Runner, error) {
	return index.New(index.Dependencies{
		Embedder: s.embedder,
		Store:    s.store,
		Keyword:  s.keyword,
		Catalog:  s.catalog,
		Progress: progress,
	})
}

// Close releases every open backend. Errors are swallowed; the stack is
// shutting down.
func (s *stack) Close() {
	if s.catalog != nil {
		_ = s.catalog.Close()
	}
	if s.keyword != nil {
		_ = s.keyword.Close()
	}
	if s.embedder != nil {
		_ = s.embedder.Close()
	}
	if s.store != nil {
		_ = s.store.Close()
	}
}

// indexOptionsFrom maps the configuration onto runner options for one
// run over root.
func indexOptionsFrom(cfg *config.Config, root string) index.Options {
	return index.Options{
		Project:      cfg.Project.Name,
		Root:         root,
		Collection:   cfg.Store.Collection,
		Workers:      cfg.Indexer.Workers,
		MaxFileSize:  cfg.Indexer.MaxFileSize,
		Incremental:  cfg.Indexer.Incremental,
		ChunkSpec:    chunkSpecFrom(cfg),
		TagThreshold: cfg.Tags.Threshold,
		DataDir:      cfg.Store.DataDir,
	}
}

func chunkSpecFrom(cfg *config.Config) chunk.Spec {
	return chunk.Spec{
		MaxSize:    cfg.Chunking.MaxSize,
		Overlap:    cfg.Chunking.Overlap,
		Separators: cfg.Chunking.Separators,
	}
}
