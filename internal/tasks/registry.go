package tasks

import (
	"context"
	"sync"

	"tripfund/internal/coordinator"
	"tripfund/internal/gateway"
	"tripfund/internal/store"
)

// Deps carries the process-wide dependencies task handlers may use.
type Deps struct {
	Store       store.Store
	Gateway     gateway.Gateway
	Coordinator *coordinator.Coordinator
}

// TaskHandler is the function signature for a task handler.
// It takes context, injected deps and arguments, and returns a result map
// that is persisted on the task history row.
type TaskHandler func(ctx context.Context, deps Deps, args map[string]interface{}) (map[string]interface{}, error)

// Registry stores the mapping of task names to handlers
type Registry struct {
	mu       sync.RWMutex
	handlers map[string]TaskHandler
}

// GlobalRegistry is the default global registry
var GlobalRegistry = &Registry{
	handlers: make(map[string]TaskHandler),
}

// Register adds a handler for a task name
func (r *Registry) Register(name string, handler TaskHandler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[name] = handler
}

// Get retrieves a handler for a task name
func (r *Registry) Get(name string) (TaskHandler, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	handler, ok := r.handlers[name]
	return handler, ok
}

// RegisterHandler is a helper to register to the global registry
func RegisterHandler(name string, handler TaskHandler) {
	GlobalRegistry.Register(name, handler)
}

// GetHandler is a helper to get from the global registry
func GetHandler(name string) (TaskHandler, bool) {
	return GlobalRegistry.Get(name)
}
