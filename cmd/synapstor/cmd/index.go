package cmd

import (
	"context"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/casheiro/synapstor-go/internal/index"
	"github.com/casheiro/synapstor-go/internal/output"
)

type indexOptions struct {
	commonOptions
	workers     int
	maxFileSize int64
	recreate    bool
	incremental bool
	prune       bool
	verifyQuery string
}

func newIndexCmd() *cobra.Command {
	var opts indexOptions

	cmd := &cobra.Command{
		Use:   "index",
		Short: "Index a project tree into the vector store",
		Long: `Index a project tree to make it searchable.

Files are filtered through the project's gitignore rules, split into
overlapping chunks, embedded and upserted under deterministic ids.
Rerunning over an unchanged tree rewrites the same entries.

Examples:
  synapstor index
  synapstor index --path ~/work/billing --project billing
  synapstor index --incremental --prune
  synapstor index --recreate-collection --query "invoice rounding"`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			// Ctrl+C has to cancel the context so in-flight embedding
			// and store calls stop.
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			return runIndex(ctx, cmd, &opts)
		},
	}

	addConnectionFlags(cmd, &opts.commonOptions)
	addScopeFlags(cmd, &opts.commonOptions)
	f := cmd.Flags()
	f.IntVar(&opts.workers, "workers", 0, "Worker pool size (default from config)")
	f.Int64Var(&opts.maxFileSize, "max-file-size", 0, "Per-file size cap in bytes (default from config)")
	f.BoolVar(&opts.recreate, "recreate-collection", false, "Drop and recreate the collection before indexing")
	f.BoolVar(&opts.incremental, "incremental", false, "Skip files unchanged since the last run")
	f.BoolVar(&opts.prune, "prune", false, "Remove entries for files the tree no longer has")
	f.StringVar(&opts.verifyQuery, "query", "", "Verification query to run after indexing")

	return cmd
}

func runIndex(ctx context.Context, cmd *cobra.Command, opts *indexOptions) error {
	cfg, root, err := resolveConfig(cmd, &opts.commonOptions)
	if err != nil {
		return err
	}
	if opts.workers > 0 {
		cfg.Indexer.Workers = opts.workers
	}
	if opts.maxFileSize > 0 {
		cfg.Indexer.MaxFileSize = opts.maxFileSize
	}
	if cmd.Flags().Changed("incremental") {
		cfg.Indexer.Incremental = opts.incremental
	}

	// Progress goes to stderr and only when it is a terminal; stdout
	// carries nothing but the summary.
	eout := output.NewAuto(cmd.ErrOrStderr())
	out := output.New(cmd.OutOrStdout())

	var mu sync.Mutex
	progress := func(done, total int) {
		mu.Lock()
		defer mu.Unlock()
		eout.Progress(done, total, "indexing")
	}

	reg, err := buildRegistry(cfg, progress)
	if err != nil {
		return err
	}

	eout.Statusf("🔍", "Indexing %s into %q...", root, cfg.Store.Collection)

	res, callErr := reg.Call(ctx, "index", map[string]any{
		"root":        root,
		"force":       opts.recreate,
		"incremental": cfg.Indexer.Incremental,
		"prune":       opts.prune,
		"query":       opts.verifyQuery,
	})

	// A cancelled run still reports the files it finished; that work is
	// durable and a re-run continues from it.
	if report, ok := res.(*index.RunReport); ok && report != nil {
		printRunReport(out, report)
	}
	return callErr
}

// printRunReport renders the run summary.
func printRunReport(out *output.Writer, report *index.RunReport) {
	out.Successf("Indexed %d/%d files (%d chunks) in %s",
		report.Indexed, report.Seen, report.Chunks, report.Elapsed.Round(time.Millisecond))

	if report.Pruned > 0 {
		out.Statusf("", "Pruned %d files the tree no longer has", report.Pruned)
	}
	if report.Skipped > 0 {
		out.Statusf("", "Skipped %d files", report.Skipped)
	}
	if report.Failed > 0 {
		out.Warningf("%d files failed:", report.Failed)
		for _, note := range report.Failures {
			out.Statusf("", "%s (%s)", note.Path, note.Reason)
		}
	}
	if report.Verify != nil {
		out.Statusf("🔍", "Verification query %q returned %d hits", report.Verify.Query, report.Verify.Hits)
	}
}
