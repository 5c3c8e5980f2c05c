package api

import (
	lua "github.com/yuin/gopher-lua"

	"github.com/dshills/luaproc/internal/process"
)

// SignalModule implements the signal API module.
// It maps between signal names and numbers of the host platform.
type SignalModule struct {
	ctx *Context
}

// NewSignalModule creates a new signal module.
func NewSignalModule(ctx *Context) *SignalModule {
	return &SignalModule{ctx: ctx}
}

// Name returns the module name.
func (m *SignalModule) Name() string {
	return "signal"
}

// Register builds the module table. Besides num and name it holds a field
// per signal, e.g. signal.SIGTERM.
func (m *SignalModule) Register(L *lua.LState) (*lua.LTable, error) {
	mod := L.NewTable()

	for name, num := range process.Signals() {
		L.SetField(mod, name, lua.LNumber(num))
	}
	L.SetField(mod, "num", L.NewFunction(m.num))
	L.SetField(mod, "name", L.NewFunction(m.name))
	L.SetField(mod, "supported", lua.LBool(m.ctx.Process.Platform().SupportsSignals()))

	return mod, nil
}

// num(name) -> number | nil
func (m *SignalModule) num(L *lua.LState) int {
	n, ok := process.SignalNum(L.CheckString(1))
	if !ok {
		L.Push(lua.LNil)
		return 1
	}
	L.Push(lua.LNumber(n))
	return 1
}

// name(num) -> string | nil
func (m *SignalModule) name(L *lua.LState) int {
	name := process.SignalName(L.CheckInt(1))
	if name == "" {
		L.Push(lua.LNil)
		return 1
	}
	L.Push(lua.LString(name))
	return 1
}
