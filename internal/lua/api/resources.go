package api

import (
	"context"
	"errors"
	"io"
	"os"

	lua "github.com/yuin/gopher-lua"

	plua "github.com/dshills/luaproc/internal/lua"
	"github.com/dshills/luaproc/internal/resource"
)

// DefaultReadSize is the number of bytes read when no size is given.
const DefaultReadSize = 16 * 1024

// ResourcesModule implements the resources API module.
// It exposes the resource table: files, host stdio and child pipes.
type ResourcesModule struct {
	ctx *Context
}

// NewResourcesModule creates a new resources module.
func NewResourcesModule(ctx *Context) *ResourcesModule {
	return &ResourcesModule{ctx: ctx}
}

// Name returns the module name.
func (m *ResourcesModule) Name() string {
	return "resources"
}

// Register builds the module table.
func (m *ResourcesModule) Register(L *lua.LState) (*lua.LTable, error) {
	sched := m.ctx.Scheduler
	mod := L.NewTable()

	L.SetField(mod, "open", L.NewFunction(m.open))
	L.SetField(mod, "read", sched.Wrap(m.read))
	L.SetField(mod, "write", sched.Wrap(m.write))
	L.SetField(mod, "close", L.NewFunction(m.close))
	L.SetField(mod, "list", L.NewFunction(m.list))

	return mod, nil
}

func (m *ResourcesModule) table() *resource.Table {
	return m.ctx.Process.Table()
}

// openFlags maps fopen-style modes to open flags and the access they need.
var openFlags = map[string]struct {
	flag        int
	read, write bool
}{
	"r":  {os.O_RDONLY, true, false},
	"w":  {os.O_WRONLY | os.O_CREATE | os.O_TRUNC, false, true},
	"a":  {os.O_WRONLY | os.O_CREATE | os.O_APPEND, false, true},
	"r+": {os.O_RDWR, true, true},
	"w+": {os.O_RDWR | os.O_CREATE | os.O_TRUNC, true, true},
	"a+": {os.O_RDWR | os.O_CREATE | os.O_APPEND, true, true},
}

// open(path [, mode]) -> rid
// mode is one of "r" (default), "w", "a", "r+", "w+", "a+".
func (m *ResourcesModule) open(L *lua.LState) int {
	sched := m.ctx.Scheduler
	path := L.CheckString(1)
	mode := L.OptString(2, "r")

	om, ok := openFlags[mode]
	if !ok {
		return sched.Raise(L, invalidArg("unknown open mode %q", mode))
	}
	if om.read {
		if err := m.ctx.Checker.CheckFileRead(path); err != nil {
			return sched.Raise(L, err)
		}
	}
	if om.write {
		if err := m.ctx.Checker.CheckFileWrite(path); err != nil {
			return sched.Raise(L, err)
		}
	}

	f, err := os.OpenFile(path, om.flag, 0o644)
	if err != nil {
		return sched.Raise(L, err)
	}

	rid, err := m.table().Add(resource.NewFile(f))
	if err != nil {
		return sched.Raise(L, err)
	}
	m.ctx.Log.WithField("rid", rid).Debug("opened %s (%s)", path, mode)

	L.Push(lua.LNumber(rid))
	return 1
}

// read(rid [, n]) -> string | nil
// Suspends until data is available. Returns nil at end of stream.
func (m *ResourcesModule) read(L *lua.LState) int {
	sched := m.ctx.Scheduler

	rid, err := toRid(L, 1)
	if err != nil {
		return sched.Raise(L, err)
	}
	size := L.OptInt(2, DefaultReadSize)
	if size <= 0 {
		return sched.Raise(L, invalidArg("read size must be positive, got %d", size))
	}

	r, err := resource.Get[resource.Reader](m.table(), rid)
	if err != nil {
		return sched.Raise(L, err)
	}

	return sched.Await(L, func(context.Context) (plua.Completion, error) {
		buf := make([]byte, size)
		n, err := r.Read(buf)
		if n == 0 && errors.Is(err, io.EOF) {
			return func(*lua.LState) []lua.LValue {
				return []lua.LValue{lua.LNil}
			}, nil
		}
		if err != nil && n == 0 {
			return nil, err
		}
		return func(*lua.LState) []lua.LValue {
			return []lua.LValue{lua.LString(buf[:n])}
		}, nil
	})
}

// write(rid, data) -> number of bytes written
// Suspends until all of data is written.
func (m *ResourcesModule) write(L *lua.LState) int {
	sched := m.ctx.Scheduler

	rid, err := toRid(L, 1)
	if err != nil {
		return sched.Raise(L, err)
	}
	data := L.CheckString(2)

	w, err := resource.Get[resource.Writer](m.table(), rid)
	if err != nil {
		return sched.Raise(L, err)
	}

	return sched.Await(L, func(context.Context) (plua.Completion, error) {
		n, err := io.WriteString(w, data)
		if err != nil {
			return nil, err
		}
		return func(*lua.LState) []lua.LValue {
			return []lua.LValue{lua.LNumber(n)}
		}, nil
	})
}

// close(rid)
// Closing a child kills it if it is still running.
func (m *ResourcesModule) close(L *lua.LState) int {
	rid, err := toRid(L, 1)
	if err != nil {
		return m.ctx.Scheduler.Raise(L, err)
	}
	if err := m.table().Remove(rid); err != nil {
		return m.ctx.Scheduler.Raise(L, err)
	}
	return 0
}

type resourceInfo struct {
	Rid  resource.ID `lua:"rid"`
	Kind string      `lua:"kind"`
}

// list() -> {{rid, kind}, ...}
func (m *ResourcesModule) list(L *lua.LState) int {
	infos := m.table().List()
	out := make([]resourceInfo, len(infos))
	for i, info := range infos {
		out[i] = resourceInfo{Rid: info.ID, Kind: info.Kind.String()}
	}
	L.Push(m.ctx.Bridge.ToLuaValue(out))
	return 1
}
