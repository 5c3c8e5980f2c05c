package api

import (
	"context"
	"time"

	lua "github.com/yuin/gopher-lua"

	plua "github.com/dshills/luaproc/internal/lua"
)

// TaskModule implements the task API module.
type TaskModule struct {
	ctx *Context
}

// NewTaskModule creates a new task module.
func NewTaskModule(ctx *Context) *TaskModule {
	return &TaskModule{ctx: ctx}
}

// Name returns the module name.
func (m *TaskModule) Name() string {
	return "task"
}

// Register builds the module table.
func (m *TaskModule) Register(L *lua.LState) (*lua.LTable, error) {
	mod := L.NewTable()

	co, ok := L.GetGlobal("coroutine").(*lua.LTable)
	if !ok {
		return nil, errCoroutineMissing
	}

	L.SetField(mod, "spawn", L.NewFunction(m.spawn))
	L.SetField(mod, "yield", co.RawGetString("yield"))
	L.SetField(mod, "sleep", m.ctx.Scheduler.Wrap(m.sleep))

	return mod, nil
}

// spawn(fn, ...) -> task id
// The task starts once the current task suspends or yields.
func (m *TaskModule) spawn(L *lua.LState) int {
	fn := L.CheckFunction(1)

	args := make([]lua.LValue, 0, L.GetTop()-1)
	for i := 2; i <= L.GetTop(); i++ {
		args = append(args, L.Get(i))
	}

	id := m.ctx.Scheduler.Spawn(fn, args...)
	L.Push(lua.LNumber(id))
	return 1
}

// sleep(ms)
func (m *TaskModule) sleep(L *lua.LState) int {
	ms := L.CheckInt(1)
	if ms < 0 {
		return m.ctx.Scheduler.Raise(L, invalidArg("sleep duration must not be negative, got %d", ms))
	}

	d := time.Duration(ms) * time.Millisecond
	return m.ctx.Scheduler.Await(L, func(ctx context.Context) (plua.Completion, error) {
		timer := time.NewTimer(d)
		defer timer.Stop()

		select {
		case <-timer.C:
			return nil, nil
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	})
}
