package store

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/casheiro/synapstor-go/internal/config"
	synerrors "github.com/casheiro/synapstor-go/internal/errors"
)

// Open builds the vector store the configuration names. An empty backend
// means Qdrant.
func Open(cfg config.StoreConfig) (Store, error) {
	switch strings.ToLower(cfg.Backend) {
	case "", "qdrant":
		url := cfg.URL
		if url == "" {
			url = config.DefaultQdrantURL
		}
		return NewQdrantStore(QdrantConfig{
			URL:        url,
			APIKey:     cfg.APIKey,
			VectorName: cfg.VectorName,
		}), nil
	case "local":
		return NewLocalStore(cfg.DataDir)
	default:
		return nil, synerrors.ConfigError(
			fmt.Sprintf("unknown store backend %q", cfg.Backend), nil).
			WithSuggestion(`set store.backend to "qdrant" or "local"`)
	}
}

// OpenKeyword builds the keyword sidecar, or nil when it is disabled.
// The sidecar always lives on the local disk, whichever vector backend
// is in use.
func OpenKeyword(cfg config.StoreConfig) *KeywordIndex {
	if cfg.DisableKeyword {
		return nil
	}
	dir := cfg.DataDir
	if dir != "" {
		dir = filepath.Join(dir, "keyword")
	}
	return NewKeywordIndex(dir)
}
