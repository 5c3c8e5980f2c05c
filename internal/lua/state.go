package lua

import (
	"context"
	"fmt"
	"strings"
	"sync"

	lua "github.com/yuin/gopher-lua"
)

// Default limits for Lua state.
const (
	DefaultCallStackSize   = 256
	DefaultRegistryMaxSize = 1024 * 1024
)

// State wraps gopher-lua with the sandbox installed.
//
// gopher-lua's LState is not goroutine-safe. All Lua execution must happen on
// one goroutine, normally the one running the Scheduler. The mutex only
// guards the closed flag and setup calls made from other goroutines.
type State struct {
	L *lua.LState

	mu sync.Mutex

	// Configuration
	callStackSize   int
	registryMaxSize int
	goStackTrace    bool

	sandbox *Sandbox

	closed bool
}

// StateOption configures a State.
type StateOption func(*State)

// WithCallStackSize sets the maximum Lua call depth.
func WithCallStackSize(n int) StateOption {
	return func(s *State) {
		s.callStackSize = n
	}
}

// WithRegistryMaxSize caps the Lua registry (value stack) growth.
func WithRegistryMaxSize(n int) StateOption {
	return func(s *State) {
		s.registryMaxSize = n
	}
}

// WithGoStackTrace includes Go frames in Lua error tracebacks.
func WithGoStackTrace(on bool) StateOption {
	return func(s *State) {
		s.goStackTrace = on
	}
}

// NewState creates a new sandboxed Lua state.
func NewState(opts ...StateOption) (*State, error) {
	state := &State{
		callStackSize:   DefaultCallStackSize,
		registryMaxSize: DefaultRegistryMaxSize,
	}

	for _, opt := range opts {
		opt(state)
	}
	if state.callStackSize <= 0 {
		return nil, fmt.Errorf("call stack size must be positive, got %d", state.callStackSize)
	}

	L := lua.NewState(lua.Options{
		SkipOpenLibs:        true, // We'll open selectively
		CallStackSize:       state.callStackSize,
		RegistryMaxSize:     state.registryMaxSize,
		IncludeGoStackTrace: state.goStackTrace,
	})
	state.L = L

	openSafeLibraries(L)

	state.sandbox = NewSandbox(L)
	state.sandbox.Install()

	return state, nil
}

// openSafeLibraries opens only safe Lua standard libraries.
func openSafeLibraries(L *lua.LState) {
	lua.OpenBase(L)
	lua.OpenTable(L)
	lua.OpenString(L)
	lua.OpenMath(L)
	lua.OpenCoroutine(L)

	// io, os, debug and package stay closed; the host modules replace them.
}

// SetContext makes running Lua code abort once ctx is done.
func (s *State) SetContext(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.closed {
		s.L.SetContext(ctx)
	}
}

// RemoveContext detaches the context set by SetContext.
func (s *State) RemoveContext() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.closed {
		s.L.RemoveContext()
	}
}

// LoadString compiles a chunk without running it.
func (s *State) LoadString(name, code string) (*lua.LFunction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, ErrStateClosed
	}

	return s.L.Load(strings.NewReader(code), name)
}

// LoadFile compiles a file without running it.
func (s *State) LoadFile(path string) (*lua.LFunction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, ErrStateClosed
	}
	return s.L.LoadFile(path)
}

// DoString executes a Lua string synchronously, outside any scheduler.
func (s *State) DoString(code string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrStateClosed
	}

	return s.doWithRecovery(func() error {
		return s.L.DoString(code)
	})
}

// doWithRecovery executes a function with panic recovery.
func (s *State) doWithRecovery(fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("lua panic: %v", r)
		}
	}()
	return fn()
}

// GetGlobal returns a global variable value.
func (s *State) GetGlobal(name string) lua.LValue {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return lua.LNil
	}

	return s.L.GetGlobal(name)
}

// SetGlobal sets a global variable.
func (s *State) SetGlobal(name string, value lua.LValue) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return
	}

	s.L.SetGlobal(name, value)
}

// RegisterModule publishes mod as a global and makes require(name) return it.
func (s *State) RegisterModule(name string, mod *lua.LTable) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return
	}

	s.L.SetGlobal(name, mod)
	s.sandbox.Provide(name, mod)
}

// Sandbox returns the sandbox.
func (s *State) Sandbox() *Sandbox {
	return s.sandbox
}

// IsClosed returns true if the state has been closed.
func (s *State) IsClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// Close releases all resources associated with the Lua state.
// After Close is called, all other methods will return ErrStateClosed.
func (s *State) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}

	s.L.Close()
	s.closed = true
	return nil
}

// DoFile executes a file synchronously, outside any scheduler.
func (s *State) DoFile(path string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrStateClosed
	}

	return s.doWithRecovery(func() error {
		return s.L.DoFile(path)
	})
}
