package linker

import (
	"sync"

	"github.com/tetratelabs/wazero/api"
	"go.uber.org/zap"
)

// HostInstance is the view of an instantiated module the resolver inspects.
// api.Module satisfies it.
type HostInstance interface {
	Name() string
	ExportedFunctionDefinitions() map[string]api.FunctionDefinition
	ExportedMemoryDefinitions() map[string]api.MemoryDefinition
	ExportedGlobal(name string) api.Global
}

// Registry maps module names to instantiated host/environment modules.
// It is populated before linking and read-only during it.
type Registry struct {
	mu      sync.RWMutex
	modules map[string]HostInstance
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{modules: make(map[string]HostInstance)}
}

// Register adds an instance under its lookup name, replacing any previous
// entry.
func (r *Registry) Register(name string, inst HostInstance) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.modules[name] = inst
	Logger().Debug("registered host module", zap.String("module", name))
}

// Lookup finds a registered instance by name.
func (r *Registry) Lookup(name string) (HostInstance, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	inst, ok := r.modules[name]
	return inst, ok
}

// Len reports the number of registered instances.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.modules)
}
