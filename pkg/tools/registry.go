package tools

import (
	"errors"
	"fmt"
	"sort"
	"sync"
)

// Sentinel errors for registry operations.
var (
	ErrToolNotFound = errors.New("tool not found")
	ErrEmptyName    = errors.New("tool name must not be empty")
)

// Registry maps case-sensitive tool names to capabilities. Read-mostly:
// registration happens at startup, lookups on every tool step. Safe for
// concurrent use.
type Registry struct {
	mu    sync.RWMutex
	tools map[string]Tool
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{tools: make(map[string]Tool)}
}

// Register adds or replaces a tool under name. Names are case-sensitive,
// unique, and non-empty.
func (r *Registry) Register(name string, tool Tool) error {
	if name == "" {
		return ErrEmptyName
	}
	if tool == nil {
		return fmt.Errorf("tool %q is nil", name)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tools[name] = tool
	return nil
}

// Get returns the tool registered under name.
func (r *Registry) Get(name string) (Tool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	tool, ok := r.tools[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrToolNotFound, name)
	}
	return tool, nil
}

// Exists reports whether a tool is registered under name.
func (r *Registry) Exists(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.tools[name]
	return ok
}

// List returns the sorted set of registered tool names.
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.tools))
	for name := range r.tools {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Len returns the number of registered tools.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.tools)
}
