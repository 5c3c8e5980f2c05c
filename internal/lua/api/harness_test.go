package api

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	lua "github.com/yuin/gopher-lua"

	plua "github.com/dshills/luaproc/internal/lua"
	"github.com/dshills/luaproc/internal/process"
	"github.com/dshills/luaproc/internal/resource"
	"github.com/dshills/luaproc/internal/security"
)

type harness struct {
	state   *plua.State
	sched   *plua.Scheduler
	table   *resource.Table
	checker *security.PermissionChecker
}

func newHarness(t *testing.T, caps ...security.Capability) *harness {
	t.Helper()

	state, err := plua.NewState()
	require.NoError(t, err)
	t.Cleanup(func() { _ = state.Close() })

	sched, err := plua.NewScheduler(state, plua.WithErrorFormatter(FormatError))
	require.NoError(t, err)

	table := resource.NewTable()
	t.Cleanup(func() { _ = table.Close() })

	checker := security.NewPermissionChecker("test")
	checker.GrantAll(caps)

	reg, err := DefaultRegistry(&Context{
		Scheduler: sched,
		Process:   process.NewService(table, checker),
		Checker:   checker,
		Bridge:    plua.NewBridge(state.L),
	})
	require.NoError(t, err)
	require.NoError(t, reg.InjectAll(state))

	return &harness{state: state, sched: sched, table: table, checker: checker}
}

// run executes code as the only task and returns the scheduler's result.
func (h *harness) run(t *testing.T, code string) error {
	t.Helper()
	fn, err := h.state.LoadString("test", code)
	require.NoError(t, err)
	h.sched.Spawn(fn)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return h.sched.Run(ctx)
}

func (h *harness) mustRun(t *testing.T, code string) {
	t.Helper()
	require.NoError(t, h.run(t, code))
}

func (h *harness) global(name string) string {
	return h.state.GetGlobal(name).String()
}

func (h *harness) set(name string, v lua.LValue) {
	h.state.SetGlobal(name, v)
}

// expectErr is prepended to scripts that assert on error classes.
const expectErr = `
local function expect_err(class, fn, ...)
	local ok, err = pcall(fn, ...)
	assert(not ok, "expected a " .. class .. " error")
	assert(string.find(tostring(err), class .. ":", 1, true), "got: " .. tostring(err))
end
`
