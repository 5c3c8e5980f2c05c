package api

import (
	"fmt"
	"sort"
	"sync"

	lua "github.com/yuin/gopher-lua"

	"github.com/dshills/luaproc/internal/logging"
	plua "github.com/dshills/luaproc/internal/lua"
	"github.com/dshills/luaproc/internal/process"
	"github.com/dshills/luaproc/internal/security"
)

// Version is reported to scripts as luaproc.version.
const Version = "1.0.0"

// Module represents a Lua API module that can be registered with a state.
type Module interface {
	// Name returns the module name (e.g., "process", "resources").
	Name() string

	// Register builds the module table. The registry publishes it as a
	// global of the same name.
	Register(L *lua.LState) (*lua.LTable, error)
}

// Registry manages API modules and their registration.
type Registry struct {
	mu      sync.RWMutex
	modules map[string]Module
}

// NewRegistry creates a new API registry.
func NewRegistry() *Registry {
	return &Registry{
		modules: make(map[string]Module),
	}
}

// Register adds a module to the registry.
func (r *Registry) Register(mod Module) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.modules[mod.Name()]; exists {
		return fmt.Errorf("module %q already registered", mod.Name())
	}

	r.modules[mod.Name()] = mod
	return nil
}

// Get returns a module by name.
func (r *Registry) Get(name string) (Module, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	mod, ok := r.modules[name]
	return mod, ok
}

// List returns all registered module names in sorted order.
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.modules))
	for name := range r.modules {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// InjectAll registers every module into the state and installs the
// aggregate luaproc module.
func (r *Registry) InjectAll(state *plua.State) error {
	return r.Inject(state, r.List()...)
}

// Inject registers the named modules into the state. The luaproc module
// holds only the modules injected by the latest call.
func (r *Registry) Inject(state *plua.State, names ...string) error {
	r.mu.RLock()
	defer r.mu.RUnlock()

	root := state.L.NewTable()
	for _, name := range names {
		mod, ok := r.modules[name]
		if !ok {
			return fmt.Errorf("module %q not found", name)
		}

		tbl, err := mod.Register(state.L)
		if err != nil {
			return fmt.Errorf("failed to register module %q: %w", name, err)
		}
		state.RegisterModule(name, tbl)
		root.RawSetString(name, tbl)
	}

	root.RawSetString("version", lua.LString(Version))
	state.RegisterModule("luaproc", root)
	return nil
}

// Context provides access to host services for API modules.
type Context struct {
	// Scheduler suspends tasks while operations wait on the OS.
	Scheduler *plua.Scheduler

	// Process spawns, awaits and signals children. Its table also holds
	// the resources scripts open.
	Process *process.Service

	// Checker guards filesystem access.
	Checker *security.PermissionChecker

	// Bridge converts values for the state the modules are registered in.
	Bridge *plua.Bridge

	Log *logging.Logger
}

// DefaultRegistry creates a registry with all standard modules registered.
func DefaultRegistry(ctx *Context) (*Registry, error) {
	if ctx.Log == nil {
		ctx.Log = logging.Null()
	}

	r := NewRegistry()
	modules := []Module{
		NewProcessModule(ctx),
		NewResourcesModule(ctx),
		NewTaskModule(ctx),
		NewSignalModule(ctx),
	}

	for _, mod := range modules {
		if err := r.Register(mod); err != nil {
			return nil, fmt.Errorf("failed to register module %q: %w", mod.Name(), err)
		}
	}

	return r, nil
}
