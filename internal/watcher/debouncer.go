package watcher

import (
	"log/slog"
	"sort"
	"sync"
	"time"
)

// Debouncer coalesces the raw event stream so one editor save, or one
// git checkout touching hundreds of files, becomes a single batch.
// Batches are emitted after the stream stays quiet for the window.
type Debouncer struct {
	window time.Duration
	out    chan []Event

	mu      sync.Mutex
	pending map[string]Event
	timer   *time.Timer
	stopped bool
}

// NewDebouncer creates a debouncer with the given settle window.
func NewDebouncer(window time.Duration) *Debouncer {
	return &Debouncer{
		window:  window,
		out:     make(chan []Event, 8),
		pending: make(map[string]Event),
	}
}

// Add merges the event into the pending batch and restarts the settle
// timer.
func (d *Debouncer) Add(ev Event) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.stopped {
		return
	}

	if prev, ok := d.pending[ev.Path]; ok {
		merged, keep := coalesce(prev, ev)
		if keep {
			d.pending[ev.Path] = merged
		} else {
			delete(d.pending, ev.Path)
		}
	} else {
		d.pending[ev.Path] = ev
	}

	if d.timer != nil {
		d.timer.Stop()
	}
	d.timer = time.AfterFunc(d.window, d.flush)
}

// coalesce merges a new event into the pending one for the same path.
// The second return is false when the pair cancels out.
func coalesce(prev, next Event) (Event, bool) {
	switch {
	case prev.Op == OpCreate && next.Op == OpModify:
		// Still a brand new file.
		return prev, true
	case prev.Op == OpCreate && next.Op == OpDelete:
		// Never outlived the window.
		return Event{}, false
	case prev.Op == OpDelete && next.Op == OpCreate:
		// Replaced in place.
		next.Op = OpModify
		return next, true
	default:
		return next, true
	}
}

// flush emits the pending batch, sorted by path for deterministic
// processing downstream.
func (d *Debouncer) flush() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.stopped || len(d.pending) == 0 {
		return
	}

	batch := make([]Event, 0, len(d.pending))
	for _, ev := range d.pending {
		batch = append(batch, ev)
	}
	sort.Slice(batch, func(i, j int) bool { return batch[i].Path < batch[j].Path })
	clear(d.pending)

	select {
	case d.out <- batch:
	default:
		slog.Warn("debounce batch dropped, consumer is behind",
			slog.Int("events", len(batch)))
	}
}

// Output returns the batch channel. It closes on Stop.
func (d *Debouncer) Output() <-chan []Event {
	return d.out
}

// Stop drops pending events and closes the output channel. Safe to call
// more than once.
func (d *Debouncer) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.stopped {
		return
	}
	d.stopped = true
	if d.timer != nil {
		d.timer.Stop()
	}
	close(d.out)
}
