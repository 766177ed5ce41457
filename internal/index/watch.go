package index

import (
	"context"
	"errors"
	"io/fs"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	synerrors "github.com/casheiro/synapstor-go/internal/errors"
	"github.com/casheiro/synapstor-go/internal/watcher"
)

// WatchOptions tune watch mode on top of the run Options.
type WatchOptions struct {
	// Debounce is the settle window between a burst of changes and the
	// batch being applied. Non-positive selects the watcher default.
	Debounce time.Duration

	// PollInterval is the rescan period when the platform falls back to
	// polling. Non-positive selects the watcher default.
	PollInterval time.Duration
}

// Watch runs an initial sync and then keeps the collection aligned with
// the tree until ctx ends. Plain file events index or drop just the
// files named; directory events, ignore rule edits and anything
// ambiguous fall back to an incremental run with pruning. The run lock
// is held for the whole session, so no other indexing run can touch the
// same data directory while a watch is active. Returns the context
// error on shutdown.
func (r *Runner) Watch(ctx context.Context, opts Options, w WatchOptions) error {
	if err := r.checkOptions(&opts); err != nil {
		return err
	}
	if r.catalog == nil {
		return synerrors.New(synerrors.ErrCodeMissingParameter,
			"watch mode requires a catalog", nil).
			WithSuggestion("open a catalog in the data directory so deletions can be tracked")
	}

	unlock, err := acquireRunLock(opts.DataDir)
	if err != nil {
		return err
	}
	defer unlock()

	// The initial sync honors the caller's Force and Incremental flags;
	// every later resync is incremental. Pruning is always on so the
	// collection tracks deletions.
	initial := opts
	initial.Prune = true

	steady := initial
	steady.Force = false
	steady.Incremental = true

	hw, err := watcher.NewHybrid(watcher.Options{
		Debounce:       w.Debounce,
		PollInterval:   w.PollInterval,
		IgnorePatterns: watchIgnores(opts),
	})
	if err != nil {
		return err
	}
	defer func() { _ = hw.Stop() }()

	// Arm the watcher before the initial sync; changes landing mid-sync
	// buffer up and are applied right after instead of going missing.
	watchErr := make(chan error, 1)
	go func() { watchErr <- hw.Start(ctx, opts.Root) }()

	if _, err := r.run(ctx, initial, false); err != nil {
		return err
	}

	slog.Info("watch_started",
		slog.String("project", opts.Project),
		slog.String("root", opts.Root),
		slog.String("collection", opts.Collection),
		slog.String("mode", hw.Mode()))

	events, errs := hw.Events(), hw.Errors()
	for {
		select {
		case err := <-watchErr:
			return err
		case batch, ok := <-events:
			if !ok {
				events = nil
				continue
			}
			r.applyBatch(ctx, steady, batch)
		case err, ok := <-errs:
			if !ok {
				errs = nil
				continue
			}
			slog.Warn("watcher reported an error", slog.String("error", err.Error()))
		}
	}
}

// applyBatch turns one debounced event batch into index work.
func (r *Runner) applyBatch(ctx context.Context, opts Options, batch []watcher.Event) {
	var dirty, removed []string
	resync := false

	for _, ev := range batch {
		switch {
		case ev.Op == watcher.OpRulesChange:
			r.scanner.InvalidateIgnoreCache()
			resync = true
		case ev.IsDir:
			// A directory event stands for an unknown set of files.
			resync = true
		case ev.Op == watcher.OpDelete:
			removed = append(removed, ev.Path)
		default:
			dirty = append(dirty, ev.Path)
		}
	}

	if resync {
		r.resync(ctx, opts)
		return
	}

	absRoot, err := filepath.Abs(opts.Root)
	if err != nil {
		slog.Warn("cannot resolve project root, batch dropped",
			slog.String("error", err.Error()))
		return
	}

	col := &collector{}
	removedN := 0
	for _, rel := range removed {
		if ctx.Err() != nil {
			return
		}
		n, needResync := r.forgetPath(ctx, opts, absRoot, rel)
		if needResync {
			r.resync(ctx, opts)
			return
		}
		removedN += n
	}
	for _, rel := range dirty {
		if ctx.Err() != nil {
			return
		}
		n, needResync := r.refreshFile(ctx, opts, absRoot, rel, col)
		if needResync {
			r.resync(ctx, opts)
			return
		}
		removedN += n
	}

	slog.Info("watch_batch_applied",
		slog.Int("events", len(batch)),
		slog.Int("indexed", int(col.indexedN.Load())),
		slog.Int("skipped", int(col.skippedN.Load())),
		slog.Int("failed", int(col.failedN.Load())),
		slog.Int("removed", removedN))
}

// refreshFile re-admits one changed path and indexes it. A path that no
// longer qualifies, because it vanished, grew past the cap or became
// ignored, has its tracked chunks dropped instead.
func (r *Runner) refreshFile(ctx context.Context, opts Options, absRoot, rel string, col *collector) (int, bool) {
	f, err := r.scanner.Inspect(opts.Root, rel, opts.MaxFileSize)
	switch {
	case err == nil:
		r.processFile(ctx, opts, f, col)
		return 0, false
	case errors.Is(err, fs.ErrNotExist):
		// Gone again before the batch settled.
		return r.forgetPath(ctx, opts, absRoot, rel)
	case synerrors.GetCode(err) == synerrors.ErrCodeFileIgnored:
		return r.forgetPath(ctx, opts, absRoot, rel)
	case synerrors.GetCode(err) == synerrors.ErrCodeFileTooLarge:
		slog.Warn("changed file exceeds the size cap, skipped",
			slog.String("path", rel))
		return r.forgetPath(ctx, opts, absRoot, rel)
	default:
		col.fail(rel, ReasonReadFailed, err)
		return 0, false
	}
}

// forgetPath drops one deleted path from the store and the catalog. A
// path the catalog does not track but that covers tracked files is a
// vanished directory; the caller must resync to settle it.
func (r *Runner) forgetPath(ctx context.Context, opts Options, absRoot, rel string) (int, bool) {
	state, found, err := r.catalog.Lookup(ctx, opts.Project, rel)
	if err != nil {
		slog.Warn("catalog lookup failed for deleted path",
			slog.String("path", rel),
			slog.String("error", err.Error()))
		return 0, false
	}
	if found {
		if err := r.removeFile(ctx, opts, absRoot, state); err != nil {
			slog.Warn("failed to drop deleted file",
				slog.String("path", rel),
				slog.String("error", err.Error()))
			return 0, false
		}
		return 1, false
	}

	states, err := r.catalog.List(ctx, opts.Project)
	if err != nil {
		slog.Warn("catalog list failed for deleted path",
			slog.String("path", rel),
			slog.String("error", err.Error()))
		return 0, false
	}
	prefix := rel + "/"
	for _, st := range states {
		if strings.HasPrefix(st.Path, prefix) {
			return 0, true
		}
	}
	return 0, false
}

// resync falls back to a full incremental run with pruning. The run
// lock is already held by the watch session.
func (r *Runner) resync(ctx context.Context, opts Options) {
	if ctx.Err() != nil {
		return
	}

	report, err := r.run(ctx, opts, false)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return
		}
		slog.Warn("watch resync failed", slog.String("error", err.Error()))
		return
	}

	slog.Info("watch_resync_complete",
		slog.Int("indexed", report.Indexed),
		slog.Int("pruned", report.Pruned))
}

// watchIgnores keeps the watcher away from the data directory when it
// lives inside the watched tree; index writes must not feed back into
// the event stream.
func watchIgnores(opts Options) []string {
	if opts.DataDir == "" {
		return nil
	}

	absRoot, err := filepath.Abs(opts.Root)
	if err != nil {
		return nil
	}
	absData, err := filepath.Abs(opts.DataDir)
	if err != nil {
		return nil
	}

	rel, err := filepath.Rel(absRoot, absData)
	if err != nil || rel == "." || strings.HasPrefix(rel, "..") {
		return nil
	}
	return []string{filepath.ToSlash(rel) + "/"}
}
