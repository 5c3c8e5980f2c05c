package api

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	lua "github.com/yuin/gopher-lua"
)

func TestTaskSpawnAndSleep(t *testing.T) {
	h := newHarness(t)
	h.set("order", lua.LString(""))

	h.mustRun(t, `
		local function worker(name, ms)
			task.sleep(ms)
			order = order .. name .. ";"
		end
		task.spawn(worker, "slow", 60)
		task.spawn(worker, "fast", 1)
		order = order .. "main;"
	`)

	require.Equal(t, "main;fast;slow;", h.global("order"))
}

func TestTaskYield(t *testing.T) {
	h := newHarness(t)
	h.set("order", lua.LString(""))

	h.mustRun(t, `
		task.spawn(function()
			order = order .. "b1"
			task.yield()
			order = order .. "b2"
		end)
		order = order .. "a1"
		task.yield()
		order = order .. "a2"
	`)

	require.Equal(t, "a1b1a2b2", h.global("order"))
}

func TestTaskSpawnReturnsID(t *testing.T) {
	h := newHarness(t)

	h.mustRun(t, `
		local a = task.spawn(function() end)
		local b = task.spawn(function() end)
		diff = b - a
	`)

	require.Equal(t, "1", h.global("diff"))
}

func TestTaskSleepErrors(t *testing.T) {
	h := newHarness(t)

	h.mustRun(t, expectErr+`
		expect_err("InvalidArgument", task.sleep, -1)
	`)
}

func TestTaskSleepCanceled(t *testing.T) {
	h := newHarness(t)

	fn, err := h.state.LoadString("sleeper", `task.sleep(60000)`)
	require.NoError(t, err)
	h.sched.Spawn(fn)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	err = h.sched.Run(ctx)
	require.True(t, errors.Is(err, context.DeadlineExceeded), "Run() error = %v", err)
}

func TestTaskFailurePropagates(t *testing.T) {
	h := newHarness(t)

	err := h.run(t, `
		task.spawn(function()
			task.sleep(1)
			error("worker failed")
		end)
	`)
	require.Error(t, err)
	require.Contains(t, err.Error(), "worker failed")
}
