// Package watcher streams debounced file change batches for watch
// mode. fsnotify is the primary mechanism with a polling fallback for
// filesystems where inotify does not reach. Events are coalesced per
// path over a settle window and filtered against the same ignore rules
// the scanner applies, so consumers see one batch per burst of editor
// or git activity.
package watcher

import "time"

// Op classifies a file system change.
type Op int

const (
	// OpCreate is a new file or directory.
	OpCreate Op = iota

	// OpModify is a content change to an existing file.
	OpModify

	// OpDelete is a removal. A rename surfaces as a delete of the old
	// name; the new name arrives as a create.
	OpDelete

	// OpRulesChange is a .gitignore edit. Consumers reload their ignore
	// rules and resync instead of treating it as file content.
	OpRulesChange
)

func (op Op) String() string {
	switch op {
	case OpCreate:
		return "create"
	case OpModify:
		return "modify"
	case OpDelete:
		return "delete"
	case OpRulesChange:
		return "rules_change"
	default:
		return "unknown"
	}
}

// Event is one coalesced file system change.
type Event struct {
	// Path is relative to the watched root, slash-separated, matching
	// the paths the scanner and the catalog use.
	Path string

	// Op is the operation after coalescing.
	Op Op

	// IsDir marks directory events. Deletions of directories may arrive
	// with IsDir false because the entry is already gone when checked.
	IsDir bool
}

const (
	// DefaultDebounce is the settle window between a change and its
	// batch being emitted.
	DefaultDebounce = 500 * time.Millisecond

	// DefaultPollInterval is the rescan period of the polling fallback.
	DefaultPollInterval = 5 * time.Second

	// DefaultBufferSize is the batch channel capacity.
	DefaultBufferSize = 256
)

// Options configure a watcher.
type Options struct {
	// Debounce is the settle window. Non-positive selects the default.
	Debounce time.Duration

	// PollInterval is the fallback rescan period. Non-positive selects
	// the default.
	PollInterval time.Duration

	// BufferSize is the batch channel capacity. Non-positive selects
	// the default.
	BufferSize int

	// IgnorePatterns extend the built-in ignore rules, gitignore
	// syntax.
	IgnorePatterns []string
}

func (o Options) withDefaults() Options {
	if o.Debounce <= 0 {
		o.Debounce = DefaultDebounce
	}
	if o.PollInterval <= 0 {
		o.PollInterval = DefaultPollInterval
	}
	if o.BufferSize <= 0 {
		o.BufferSize = DefaultBufferSize
	}
	return o
}
