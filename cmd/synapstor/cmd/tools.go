package cmd

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/casheiro/synapstor-go/internal/config"
	synerrors "github.com/casheiro/synapstor-go/internal/errors"
	"github.com/casheiro/synapstor-go/internal/registry"
	"github.com/casheiro/synapstor-go/internal/search"
	"github.com/casheiro/synapstor-go/internal/store"
)

// CollectionInfo is one row of the list-collections tool result.
type CollectionInfo struct {
	Name    string `json:"name"`
	Entries int    `json:"entries"`
}

// buildRegistry populates the capability table with the built-in tools.
// Each tool opens the backends it needs from cfg when called, so the
// table itself is cheap to build. progress feeds the index tool and may
// be nil.
func buildRegistry(cfg *config.Config, progress func(done, total int)) (*registry.Registry, error) {
	reg := registry.New()
	tools := []registry.Handler{
		indexTool(cfg, progress),
		searchTool(cfg),
		listCollectionsTool(cfg),
		deleteCollectionTool(cfg),
	}
	for _, tool := range tools {
		if err := reg.Register(tool); err != nil {
			return nil, err
		}
	}
	slog.Debug("tools_registered", slog.Int("count", len(tools)))
	return reg, nil
}

func indexTool(cfg *config.Config, progress func(done, total int)) registry.Tool {
	return registry.Tool{
		Info: registry.Info{
			Name:        "index",
			Description: "Index a project tree into the vector store",
		},
		Fn: func(ctx context.Context, params map[string]any) (any, error) {
			s, err := openStack(ctx, cfg, true)
			if err != nil {
				return nil, err
			}
			defer s.Close()

			runner, err := s.runner(progress)
			if err != nil {
				return nil, err
			}

			opts := indexOptionsFrom(cfg, registry.StringParam(params, "root", cfg.Project.Path))
			opts.Force = registry.BoolParam(params, "force", false)
			opts.Incremental = registry.BoolParam(params, "incremental", opts.Incremental)
			opts.Prune = registry.BoolParam(params, "prune", false)
			opts.VerifyQuery = registry.StringParam(params, "query", "")

			return runner.Run(ctx, opts)
		},
	}
}

func searchTool(cfg *config.Config) registry.Tool {
	return registry.Tool{
		Info: registry.Info{
			Name:        "search",
			Description: "Query a collection semantically, by keyword, or hybrid",
		},
		Fn: func(ctx context.Context, params map[string]any) (any, error) {
			query := registry.StringParam(params, "query", "")
			if query == "" {
				return nil, synerrors.New(synerrors.ErrCodeMissingParameter,
					"search requires a query", nil)
			}

			mode, err := search.ParseMode(registry.StringParam(params, "mode", cfg.Search.Mode))
			if err != nil {
				return nil, err
			}

			s, err := openStack(ctx, cfg, false)
			if err != nil {
				return nil, err
			}
			defer s.Close()

			engine, err := search.NewEngine(s.embedder, s.store, s.keyword,
				search.WithRRFConstant(cfg.Search.RRFConstant))
			if err != nil {
				return nil, err
			}

			return engine.Search(ctx, search.Request{
				Query:      query,
				Collection: registry.StringParam(params, "collection", cfg.Store.Collection),
				Limit:      registry.IntParam(params, "limit", cfg.Search.MaxResults),
				Project:    registry.StringParam(params, "project", ""),
				Mode:       mode,
			})
		},
	}
}

func listCollectionsTool(cfg *config.Config) registry.Tool {
	return registry.Tool{
		Info: registry.Info{
			Name:        "list-collections",
			Description: "List collections and their entry counts",
		},
		Fn: func(ctx context.Context, _ map[string]any) (any, error) {
			st, err := openStoreOnly(cfg)
			if err != nil {
				return nil, err
			}
			defer func() { _ = st.Close() }()

			names, err := st.ListCollections(ctx)
			if err != nil {
				return nil, err
			}

			infos := make([]CollectionInfo, 0, len(names))
			for _, name := range names {
				count, err := st.Count(ctx, name)
				if err != nil {
					return nil, err
				}
				infos = append(infos, CollectionInfo{Name: name, Entries: count})
			}
			return infos, nil
		},
	}
}

func deleteCollectionTool(cfg *config.Config) registry.Tool {
	return registry.Tool{
		Info: registry.Info{
			Name:        "delete-collection",
			Description: "Drop a collection and its keyword sidecar",
		},
		Fn: func(ctx context.Context, params map[string]any) (any, error) {
			name := registry.StringParam(params, "collection", "")
			if name == "" {
				return nil, synerrors.New(synerrors.ErrCodeMissingParameter,
					"delete-collection requires a collection name", nil)
			}

			st, err := openStoreOnly(cfg)
			if err != nil {
				return nil, err
			}
			defer func() { _ = st.Close() }()

			if err := st.DeleteCollection(ctx, name); err != nil {
				return nil, err
			}

			// The sidecar mirrors the collection; a missing sidecar is
			// not worth failing an otherwise completed delete.
			if kw := store.OpenKeyword(cfg.Store); kw != nil {
				if err := kw.DeleteCollection(ctx, name); err != nil {
					slog.Warn("failed to drop keyword sidecar",
						slog.String("collection", name),
						slog.String("error", err.Error()))
				}
				_ = kw.Close()
			}
			return name, nil
		},
	}
}

// newToolsCmd lists the capability table, mirroring what a tool-calling
// frontend would see.
func newToolsCmd() *cobra.Command {
	var o commonOptions

	cmd := &cobra.Command{
		Use:   "tools",
		Short: "List the built-in tools",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, _, err := resolveConfig(cmd, &o)
			if err != nil {
				return err
			}

			reg, err := buildRegistry(cfg, nil)
			if err != nil {
				return err
			}

			for _, info := range reg.List() {
				_, _ = fmt.Fprintf(cmd.OutOrStdout(), "%-18s %s\n", info.Name, info.Description)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&o.path, "path", ".", "Project directory")

	return cmd
}
