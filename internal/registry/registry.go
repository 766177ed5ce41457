// Package registry holds the fixed capability table of the process.
// Tools are registered explicitly at startup; there is no discovery,
// no scanning, and the set never changes after wiring. Callers invoke
// tools by name with loosely-typed parameters, which keeps the CLI
// commands and any future transport in front of the same table.
package registry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
)

var (
	// ErrNotFound reports a call to a tool name that was never
	// registered. Wiring errors, not runtime conditions.
	ErrNotFound = errors.New("tool not found")

	// ErrDuplicate reports a second registration under the same name.
	ErrDuplicate = errors.New("tool already registered")
)

// Info describes a tool for listings.
type Info struct {
	Name        string
	Description string
}

// Handler is one registered capability.
type Handler interface {
	// Name is the registry key.
	Name() string

	// Describe returns the listing entry.
	Describe() Info

	// Call invokes the tool. Parameter validation belongs to the tool;
	// the registry only routes.
	Call(ctx context.Context, params map[string]any) (any, error)
}

// Tool is the ready-made Handler for a function-backed capability.
type Tool struct {
	Info Info
	Fn   func(ctx context.Context, params map[string]any) (any, error)
}

func (t Tool) Name() string   { return t.Info.Name }
func (t Tool) Describe() Info { return t.Info }

func (t Tool) Call(ctx context.Context, params map[string]any) (any, error) {
	return t.Fn(ctx, params)
}

// Registry is the capability table. Safe for concurrent use.
type Registry struct {
	mu       sync.RWMutex
	handlers map[string]Handler
}

// New creates an empty registry.
func New() *Registry {
	return &Registry{handlers: make(map[string]Handler)}
}

// Register adds a tool. Registering a nil handler, an empty name or a
// name already taken is an error.
func (r *Registry) Register(h Handler) error {
	if h == nil {
		return errors.New("cannot register a nil handler")
	}
	name := h.Name()
	if name == "" {
		return errors.New("cannot register a handler without a name")
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.handlers[name]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicate, name)
	}
	r.handlers[name] = h

	slog.Debug("tool_registered", slog.String("name", name))
	return nil
}

// Get returns the handler registered under name.
func (r *Registry) Get(name string) (Handler, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.handlers[name]
	return h, ok
}

// List returns every registered tool's Info, sorted by name.
func (r *Registry) List() []Info {
	r.mu.RLock()
	defer r.mu.RUnlock()

	infos := make([]Info, 0, len(r.handlers))
	for _, h := range r.handlers {
		infos = append(infos, h.Describe())
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].Name < infos[j].Name })
	return infos
}

// Call routes one invocation to the named tool.
func (r *Registry) Call(ctx context.Context, name string, params map[string]any) (any, error) {
	h, ok := r.Get(name)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	return h.Call(ctx, params)
}
