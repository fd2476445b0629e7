package jsonrpc

import (
	"context"
	"encoding/json"
	"fmt"
	"maps"
	"slices"
	"sync"
)

// Handler serves one method. It returns a result or an error, never both.
type Handler func(ctx context.Context, params json.RawMessage) (any, *Error)

// MethodRegistry maps method names to handlers. It is safe for concurrent
// use, since TCP connections are served in parallel.
type MethodRegistry struct {
	mu      sync.RWMutex
	methods map[string]Handler
}

func NewMethodRegistry() *MethodRegistry {
	return &MethodRegistry{methods: make(map[string]Handler)}
}

// Register adds a handler. It panics if method is already registered or
// handler is nil.
func (r *MethodRegistry) Register(method string, handler Handler) {
	if handler == nil {
		panic(fmt.Sprintf("jsonrpc: nil handler for %q", method))
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.methods[method]; exists {
		panic(fmt.Sprintf("jsonrpc: method %q registered twice", method))
	}
	r.methods[method] = handler
}

// Lookup returns the handler for method, or nil.
func (r *MethodRegistry) Lookup(method string) Handler {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.methods[method]
}

// Methods returns the registered method names, sorted.
func (r *MethodRegistry) Methods() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return slices.Sorted(maps.Keys(r.methods))
}
