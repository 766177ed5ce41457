package watcher

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"

	"github.com/casheiro/synapstor-go/internal/gitignore"
)

// Hybrid watches a project tree and emits debounced event batches.
// fsnotify is preferred; polling takes over when the platform cannot
// provide it.
type Hybrid struct {
	opts Options
	fsw  *fsnotify.Watcher
	poll *Poller
	deb  *Debouncer

	// root and rules are written in Start before events flow, then only
	// touched from the event goroutine. The matcher itself is
	// internally synchronized.
	root  string
	rules *gitignore.Matcher

	out    chan []Event
	errs   chan error
	stopCh chan struct{}

	mu      sync.RWMutex
	stopped bool
	dropped atomic.Uint64
}

// NewHybrid creates a watcher. When fsnotify cannot initialize, the
// watcher silently runs on the polling fallback instead of failing.
func NewHybrid(opts Options) (*Hybrid, error) {
	opts = opts.withDefaults()
	h := &Hybrid{
		opts:   opts,
		deb:    NewDebouncer(opts.Debounce),
		out:    make(chan []Event, opts.BufferSize),
		errs:   make(chan error, 8),
		stopCh: make(chan struct{}),
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		slog.Warn("fsnotify unavailable, falling back to polling",
			slog.String("error", err.Error()))
		h.poll = NewPoller(opts.PollInterval)
		return h, nil
	}
	h.fsw = fsw
	return h, nil
}

// Start watches root until ctx ends or Stop is called. Blocking.
func (h *Hybrid) Start(ctx context.Context, root string) error {
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return fmt.Errorf("failed to resolve watch root: %w", err)
	}
	if _, err := os.Stat(absRoot); err != nil {
		return fmt.Errorf("failed to stat watch root: %w", err)
	}
	h.root = absRoot
	h.reloadRules()

	go h.forward()

	if h.fsw != nil {
		return h.runFsnotify(ctx)
	}
	return h.runPolling(ctx)
}

// Events returns the batch channel. It closes on Stop; that is the
// shutdown signal for consumers.
func (h *Hybrid) Events() <-chan []Event {
	return h.out
}

// Errors returns non-fatal watcher errors.
func (h *Hybrid) Errors() <-chan error {
	return h.errs
}

// Mode names the active mechanism, "fsnotify" or "polling".
func (h *Hybrid) Mode() string {
	if h.fsw != nil {
		return "fsnotify"
	}
	return "polling"
}

// Dropped returns how many batches were discarded because the consumer
// fell behind.
func (h *Hybrid) Dropped() uint64 {
	return h.dropped.Load()
}

// Stop ends watching and closes the output channels. Safe to call more
// than once.
func (h *Hybrid) Stop() error {
	h.mu.Lock()
	if h.stopped {
		h.mu.Unlock()
		return nil
	}
	h.stopped = true
	close(h.stopCh)
	close(h.out)
	close(h.errs)
	h.mu.Unlock()

	h.deb.Stop()
	if h.fsw != nil {
		_ = h.fsw.Close()
	}
	if h.poll != nil {
		_ = h.poll.Stop()
	}
	return nil
}

func (h *Hybrid) runFsnotify(ctx context.Context) error {
	if err := h.watchTree(h.root); err != nil {
		return fmt.Errorf("failed to watch %s: %w", h.root, err)
	}

	for {
		select {
		case <-ctx.Done():
			_ = h.Stop()
			return ctx.Err()
		case <-h.stopCh:
			return nil
		case ev, ok := <-h.fsw.Events:
			if !ok {
				return nil
			}
			h.handleFsEvent(ev)
		case err, ok := <-h.fsw.Errors:
			if !ok {
				return nil
			}
			h.emitError(err)
		}
	}
}

func (h *Hybrid) runPolling(ctx context.Context) error {
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case <-h.stopCh:
				return
			case ev, ok := <-h.poll.Events():
				if !ok {
					return
				}
				h.handleRaw(ev.Path, ev.Op, ev.IsDir)
			case err, ok := <-h.poll.Errors():
				if !ok {
					return
				}
				h.emitError(err)
			}
		}
	}()

	return h.poll.Start(ctx, h.root)
}

// watchTree registers dir and every non-ignored directory under it.
func (h *Hybrid) watchTree(dir string) error {
	return filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil || !d.IsDir() {
			return nil
		}
		rel, relErr := filepath.Rel(h.root, p)
		if relErr != nil {
			return nil
		}
		if rel != "." && h.rules.Match(filepath.ToSlash(rel), true) {
			return filepath.SkipDir
		}
		return h.fsw.Add(p)
	})
}

// handleFsEvent maps one fsnotify event onto the shared admission path.
func (h *Hybrid) handleFsEvent(ev fsnotify.Event) {
	rel, err := filepath.Rel(h.root, ev.Name)
	if err != nil {
		return
	}
	rel = filepath.ToSlash(rel)

	// Deleted entries cannot be stat'ed; they pass through as files.
	isDir := false
	if info, statErr := os.Stat(ev.Name); statErr == nil {
		isDir = info.IsDir()
	}

	var op Op
	switch {
	case ev.Op&fsnotify.Create != 0:
		op = OpCreate
		if isDir {
			// Watch the new subtree so changes inside it flow from now
			// on. Files that landed before the watch took are caught by
			// the consumer's resync on directory events.
			_ = h.watchTree(ev.Name)
		}
	case ev.Op&fsnotify.Write != 0:
		op = OpModify
	case ev.Op&(fsnotify.Remove|fsnotify.Rename) != 0:
		op = OpDelete
	default:
		// Chmod carries no content change.
		return
	}

	h.handleRaw(rel, op, isDir)
}

// handleRaw filters one event and feeds the debouncer. Shared by the
// fsnotify and polling paths.
func (h *Hybrid) handleRaw(rel string, op Op, isDir bool) {
	if rel == "" || rel == "." {
		return
	}

	base := path.Base(rel)
	if base == ".gitignore" {
		h.reloadRules()
		h.deb.Add(Event{Path: rel, Op: OpRulesChange})
		return
	}
	if !isDir && strings.HasPrefix(base, ".") {
		// Editor droppings; the scanner never indexes dotfiles.
		return
	}
	if h.rules.Match(rel, isDir) {
		return
	}

	h.deb.Add(Event{Path: rel, Op: op, IsDir: isDir})
}

// reloadRules rebuilds the matcher from the built-in set, the custom
// patterns and every .gitignore in the tree. Ignored directories are
// not descended, so dependency trees do not slow the reload down.
func (h *Hybrid) reloadRules() {
	m := gitignore.Default()
	for _, p := range h.opts.IgnorePatterns {
		m.AddPattern(p)
	}

	rootIgnore := filepath.Join(h.root, ".gitignore")
	if _, err := os.Stat(rootIgnore); err == nil {
		if err := m.AddFromFile(rootIgnore, ""); err != nil {
			slog.Warn("failed to read .gitignore",
				slog.String("path", rootIgnore),
				slog.String("error", err.Error()))
		}
	}

	_ = filepath.WalkDir(h.root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if d.IsDir() {
			rel, relErr := filepath.Rel(h.root, p)
			if relErr != nil || rel == "." {
				return nil
			}
			if m.Match(filepath.ToSlash(rel), true) {
				return filepath.SkipDir
			}
			return nil
		}
		if d.Name() != ".gitignore" || p == rootIgnore {
			return nil
		}
		base, relErr := filepath.Rel(h.root, filepath.Dir(p))
		if relErr != nil {
			return nil
		}
		if err := m.AddFromFile(p, filepath.ToSlash(base)); err != nil {
			slog.Warn("failed to read nested .gitignore",
				slog.String("path", p),
				slog.String("error", err.Error()))
		}
		return nil
	})

	h.rules = m
}

// forward moves debounced batches to the output channel.
func (h *Hybrid) forward() {
	for {
		select {
		case <-h.stopCh:
			return
		case batch, ok := <-h.deb.Output():
			if !ok {
				return
			}
			h.emitBatch(batch)
		}
	}
}

func (h *Hybrid) emitBatch(batch []Event) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.stopped {
		return
	}

	select {
	case h.out <- batch:
	default:
		n := h.dropped.Add(1)
		slog.Warn("watch batch dropped, consumer is behind",
			slog.Int("events", len(batch)),
			slog.Uint64("dropped_total", n))
	}
}

func (h *Hybrid) emitError(err error) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.stopped {
		return
	}

	select {
	case h.errs <- err:
	default:
	}
}
