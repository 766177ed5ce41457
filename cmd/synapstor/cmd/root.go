// Package cmd provides the CLI commands for synapstor.
package cmd

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/casheiro/synapstor-go/internal/config"
	synerrors "github.com/casheiro/synapstor-go/internal/errors"
	"github.com/casheiro/synapstor-go/internal/logging"
	"github.com/casheiro/synapstor-go/pkg/version"
)

// Verbose logging flag
var (
	verbose        bool
	loggingCleanup func()
)

// NewRootCmd creates the root command for the synapstor CLI.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "synapstor",
		Short: "Semantic indexing and retrieval for project trees",
		Long: `Synapstor indexes a project's text and code into a vector
collection and answers natural-language queries against it.

Chunks carry deterministic ids, so reindexing is idempotent: the same
file lands on the same entries whichever machine runs it. Hybrid
search fuses semantic similarity with keyword matching.`,
		Version: version.Version,
		// Runtime failures should not dump the usage block over the
		// actual error.
		SilenceUsage: true,
		// Execute prints errors itself so structured ones keep their
		// hint and code lines.
		SilenceErrors: true,
	}

	cmd.SetVersionTemplate("synapstor version {{.Version}}\n")

	cmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging to stderr")
	cmd.PersistentPostRunE = flushLogging

	cmd.AddCommand(newInitCmd())
	cmd.AddCommand(newIndexCmd())
	cmd.AddCommand(newSearchCmd())
	cmd.AddCommand(newCollectionsCmd())
	cmd.AddCommand(newWatchCmd())
	cmd.AddCommand(newToolsCmd())
	cmd.AddCommand(newVersionCmd())

	return cmd
}

// Execute runs the root command and reports any failure on stderr.
// Structured errors render with their hint and code; everything else
// stays a single line.
func Execute() error {
	err := NewRootCmd().Execute()
	if err == nil {
		return nil
	}

	var se *synerrors.SynapError
	if errors.As(err, &se) {
		fmt.Fprint(os.Stderr, synerrors.FormatForCLI(err))
	} else {
		fmt.Fprintln(os.Stderr, "Error:", err)
	}
	return err
}

// commonOptions are the flags shared by the data commands. Empty values
// defer to the loaded configuration.
type commonOptions struct {
	path         string
	project      string
	collection   string
	qdrantURL    string
	qdrantAPIKey string
	model        string
	vectorName   string
}

// addConnectionFlags registers the flags every store-touching command
// takes.
func addConnectionFlags(cmd *cobra.Command, o *commonOptions) {
	f := cmd.Flags()
	f.StringVar(&o.path, "path", ".", "Project directory")
	f.StringVar(&o.qdrantURL, "qdrant-url", "", "Qdrant endpoint (default http://localhost:6333)")
	f.StringVar(&o.qdrantAPIKey, "qdrant-api-key", "", "Qdrant API key")
}

// addScopeFlags registers the flags that pick the project, collection
// and embedding model.
func addScopeFlags(cmd *cobra.Command, o *commonOptions) {
	f := cmd.Flags()
	f.StringVar(&o.project, "project", "", "Project name stored in entry metadata (default: directory name)")
	f.StringVar(&o.collection, "collection", "", "Target collection")
	f.StringVar(&o.model, "embedding-model", "", "Embedding model identifier")
	f.StringVar(&o.vectorName, "vector-name", "", "Named vector inside the collection (default: derived from the model)")
}

// resolveConfig turns the flags into the one explicit configuration
// value the rest of the process runs on. Precedence: defaults, then the
// user and project config files, then environment, then flags. It also
// returns the absolute root of the tree to operate on.
func resolveConfig(cmd *cobra.Command, o *commonOptions) (*config.Config, string, error) {
	start := o.path
	if start == "" {
		start = "."
	}
	abs, err := filepath.Abs(start)
	if err != nil {
		return nil, "", fmt.Errorf("failed to resolve path: %w", err)
	}

	info, err := os.Stat(abs)
	if err != nil {
		return nil, "", fmt.Errorf("failed to access path: %w", err)
	}
	if !info.IsDir() {
		return nil, "", fmt.Errorf("path is not a directory: %s", abs)
	}

	// Config discovery walks up from the path; the indexed tree stays
	// the path itself unless the config names another one.
	cfgRoot, err := config.FindProjectRoot(abs)
	if err != nil {
		cfgRoot = abs
	}
	cfg, err := config.Load(cfgRoot)
	if err != nil {
		return nil, "", err
	}

	root := abs
	if cfg.Project.Path != "" && !cmd.Flags().Changed("path") {
		root = cfg.Project.Path
	}

	if o.project != "" {
		cfg.Project.Name = o.project
	}
	if cfg.Project.Name == "" {
		cfg.Project.Name = filepath.Base(root)
	}
	cfg.Project.Path = root

	if o.collection != "" {
		cfg.Store.Collection = o.collection
	}
	if o.qdrantURL != "" {
		cfg.Store.URL = o.qdrantURL
	}
	if o.qdrantAPIKey != "" {
		cfg.Store.APIKey = o.qdrantAPIKey
	}
	if o.model != "" {
		cfg.Embeddings.Model = o.model
	}
	if o.vectorName != "" {
		cfg.Store.VectorName = o.vectorName
	}

	configureLogging(cfg)
	return cfg, root, nil
}

// configureLogging installs the process logger. --verbose wins with a
// stderr debug handler; otherwise records go to the rotating log file
// when the config enables it, and only warnings reach stderr.
func configureLogging(cfg *config.Config) {
	if verbose {
		slog.SetDefault(logging.SetupStderr("debug"))
		return
	}

	if cfg.Logging.File {
		lc := logging.DefaultConfig()
		if cfg.Logging.Level != "" {
			lc.Level = cfg.Logging.Level
		}
		lc.WriteToStderr = false
		if logger, cleanup, err := logging.Setup(lc); err == nil {
			slog.SetDefault(logger)
			loggingCleanup = cleanup
			return
		}
	}

	slog.SetDefault(logging.SetupStderr("warn"))
}

// flushLogging closes the log file if one was opened.
func flushLogging(_ *cobra.Command, _ []string) error {
	if loggingCleanup != nil {
		loggingCleanup()
		loggingCleanup = nil
	}
	return nil
}
