package cmd

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/casheiro/synapstor-go/internal/index"
	"github.com/casheiro/synapstor-go/internal/output"
)

type watchOptions struct {
	commonOptions
	workers      int
	maxFileSize  int64
	recreate     bool
	debounce     time.Duration
	pollInterval time.Duration
}

func newWatchCmd() *cobra.Command {
	var opts watchOptions

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Keep a collection in sync with a project tree",
		Long: `Watch a project tree and reindex files as they change.

After an initial sync the watcher applies creations, modifications and
deletions as they settle. Rule changes in .gitignore files trigger a
full resync. Runs until interrupted.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			return runWatch(ctx, cmd, &opts)
		},
	}

	addConnectionFlags(cmd, &opts.commonOptions)
	addScopeFlags(cmd, &opts.commonOptions)
	f := cmd.Flags()
	f.IntVar(&opts.workers, "workers", 0, "Worker pool size (default from config)")
	f.Int64Var(&opts.maxFileSize, "max-file-size", 0, "Per-file size cap in bytes (default from config)")
	f.BoolVar(&opts.recreate, "recreate-collection", false, "Drop and recreate the collection on the initial sync")
	f.DurationVar(&opts.debounce, "debounce", 0, "Settle delay before a change batch applies (default from config)")
	f.DurationVar(&opts.pollInterval, "poll-interval", 0, "Polling interval when native file watching is unavailable")

	return cmd
}

func runWatch(ctx context.Context, cmd *cobra.Command, opts *watchOptions) error {
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

	wopts := index.WatchOptions{
		Debounce:     opts.debounce,
		PollInterval: opts.pollInterval,
	}
	if wopts.Debounce == 0 && cfg.Indexer.WatchDebounce != "" {
		d, err := time.ParseDuration(cfg.Indexer.WatchDebounce)
		if err != nil {
			slog.Warn("invalid watch_debounce in config, using the default",
				slog.String("value", cfg.Indexer.WatchDebounce))
		} else {
			wopts.Debounce = d
		}
	}

	// Deletions can only be tracked through the catalog, so watch mode
	// always opens one.
	s, err := openStack(ctx, cfg, true)
	if err != nil {
		return err
	}
	defer s.Close()

	runner, err := s.runner(nil)
	if err != nil {
		return err
	}

	runOpts := indexOptionsFrom(cfg, root)
	runOpts.Force = opts.recreate

	eout := output.NewAuto(cmd.ErrOrStderr())
	eout.Statusf("👀", "Watching %s; Ctrl-C to stop", root)

	err = runner.Watch(ctx, runOpts, wopts)
	if errors.Is(err, context.Canceled) {
		eout.Status("", "Stopped")
		return nil
	}
	return err
}
