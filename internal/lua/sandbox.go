package lua

import (
	"sync"

	lua "github.com/yuin/gopher-lua"
)

// Sandbox restricts what a script can reach.
type Sandbox struct {
	L *lua.LState

	mu      sync.Mutex
	modules map[string]*lua.LTable
}

// builtinModules can be required by name even though they are globals.
var builtinModules = map[string]bool{
	"string":    true,
	"table":     true,
	"math":      true,
	"coroutine": true,
}

// NewSandbox creates a new sandbox for the Lua state.
func NewSandbox(L *lua.LState) *Sandbox {
	return &Sandbox{
		L:       L,
		modules: make(map[string]*lua.LTable),
	}
}

// Install sets up the sandbox restrictions.
func (s *Sandbox) Install() {
	// Functions that could load code behind the sandbox's back
	dangerousFuncs := []string{
		"dofile",
		"loadfile",
		"load",
		"loadstring",
		"module",
	}
	for _, name := range dangerousFuncs {
		s.L.SetGlobal(name, lua.LNil)
	}

	s.L.SetGlobal("require", s.L.NewFunction(s.require))
}

// Provide makes require(name) return mod.
func (s *Sandbox) Provide(name string, mod *lua.LTable) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.modules[name] = mod
}

// Modules returns the names of the provided modules.
func (s *Sandbox) Modules() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	names := make([]string, 0, len(s.modules))
	for name := range s.modules {
		names = append(names, name)
	}
	return names
}

// require resolves only provided and builtin modules. Nothing is ever
// loaded from disk.
func (s *Sandbox) require(L *lua.LState) int {
	name := L.CheckString(1)

	s.mu.Lock()
	mod, ok := s.modules[name]
	s.mu.Unlock()
	if ok {
		L.Push(mod)
		return 1
	}

	if builtinModules[name] {
		L.Push(L.GetGlobal(name))
		return 1
	}

	L.RaiseError("module %q is not available", name)
	return 0
}
