package watcher

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"path/filepath"
	"sync"
	"time"
)

// Poller detects changes by rescanning the tree on an interval,
// comparing size and modification time against the previous pass. It
// is the fallback for filesystems where fsnotify does not work,
// network mounts in particular.
type Poller struct {
	interval time.Duration
	events   chan Event
	errs     chan error

	mu       sync.Mutex
	snapshot map[string]stamp
	stopCh   chan struct{}
	stopped  bool
}

type stamp struct {
	modTime time.Time
	size    int64
	isDir   bool
}

// NewPoller creates a poller with the given rescan interval.
func NewPoller(interval time.Duration) *Poller {
	return &Poller{
		interval: interval,
		events:   make(chan Event, 128),
		errs:     make(chan error, 8),
		snapshot: make(map[string]stamp),
		stopCh:   make(chan struct{}),
	}
}

// Start takes a baseline snapshot of root and then rescans until ctx
// ends or Stop is called. Blocking.
func (p *Poller) Start(ctx context.Context, root string) error {
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return fmt.Errorf("failed to resolve watch root: %w", err)
	}

	baseline, err := p.scan(absRoot)
	if err != nil {
		return fmt.Errorf("failed to take baseline snapshot: %w", err)
	}
	p.mu.Lock()
	p.snapshot = baseline
	p.mu.Unlock()

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			_ = p.Stop()
			return ctx.Err()
		case <-p.stopCh:
			return nil
		case <-ticker.C:
			if err := p.diff(absRoot); err != nil {
				select {
				case p.errs <- err:
				default:
				}
			}
		}
	}
}

// Events returns the change stream. Closed on Stop.
func (p *Poller) Events() <-chan Event {
	return p.events
}

// Errors returns non-fatal rescan errors. Closed on Stop.
func (p *Poller) Errors() <-chan error {
	return p.errs
}

// Stop ends the rescan loop and closes both channels. Safe to call
// more than once.
func (p *Poller) Stop() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.stopped {
		return nil
	}
	p.stopped = true
	close(p.stopCh)
	close(p.events)
	close(p.errs)
	return nil
}

// scan walks the tree and stamps every entry. Unreadable entries are
// skipped; they reappear in a later pass once readable.
func (p *Poller) scan(absRoot string) (map[string]stamp, error) {
	found := make(map[string]stamp)
	err := filepath.WalkDir(absRoot, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		rel, err := filepath.Rel(absRoot, path)
		if err != nil || rel == "." {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return nil
		}
		found[filepath.ToSlash(rel)] = stamp{
			modTime: info.ModTime(),
			size:    info.Size(),
			isDir:   d.IsDir(),
		}
		return nil
	})
	return found, err
}

// diff rescans and emits one event per created, modified or deleted
// entry since the previous pass.
func (p *Poller) diff(absRoot string) error {
	current, err := p.scan(absRoot)
	if err != nil {
		return fmt.Errorf("failed to rescan watch root: %w", err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.stopped {
		return nil
	}

	for rel, now := range current {
		prev, existed := p.snapshot[rel]
		switch {
		case !existed:
			p.emit(Event{Path: rel, Op: OpCreate, IsDir: now.isDir})
		case now.isDir:
			// A directory's mtime moves whenever children change; the
			// children report themselves.
		case prev.modTime != now.modTime || prev.size != now.size:
			p.emit(Event{Path: rel, Op: OpModify})
		}
	}
	for rel, prev := range p.snapshot {
		if _, still := current[rel]; !still {
			p.emit(Event{Path: rel, Op: OpDelete, IsDir: prev.isDir})
		}
	}

	p.snapshot = current
	return nil
}

// emit sends without blocking; the poller never stalls on a slow
// consumer. Caller holds the lock.
func (p *Poller) emit(ev Event) {
	select {
	case p.events <- ev:
	default:
		slog.Warn("poll event dropped, consumer is behind",
			slog.String("path", ev.Path),
			slog.String("op", ev.Op.String()))
	}
}
