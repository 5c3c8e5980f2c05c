package lua

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	glua "github.com/yuin/gopher-lua"
)

type schedulerFixture struct {
	state *State
	sched *Scheduler
}

// newSchedulerFixture registers sleep(ms), fail(msg) and spawn(fn) globals.
func newSchedulerFixture(t *testing.T) *schedulerFixture {
	t.Helper()
	state := newTestState(t)
	sched, err := NewScheduler(state)
	if err != nil {
		t.Fatalf("NewScheduler() error = %v", err)
	}

	state.SetGlobal("sleep", sched.Wrap(func(L *glua.LState) int {
		d := time.Duration(L.CheckInt(1)) * time.Millisecond
		return sched.Await(L, func(ctx context.Context) (Completion, error) {
			select {
			case <-time.After(d):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
			return func(L *glua.LState) []glua.LValue {
				return []glua.LValue{glua.LString("slept")}
			}, nil
		})
	}))
	state.SetGlobal("fail", sched.Wrap(func(L *glua.LState) int {
		msg := L.CheckString(1)
		return sched.Await(L, func(context.Context) (Completion, error) {
			return nil, errors.New(msg)
		})
	}))
	state.SetGlobal("spawn", sched.Wrap(func(L *glua.LState) int {
		id := sched.Spawn(L.CheckFunction(1))
		return sched.Return(L, glua.LNumber(id))
	}))

	return &schedulerFixture{state: state, sched: sched}
}

func (f *schedulerFixture) spawn(t *testing.T, name, code string) {
	t.Helper()
	fn, err := f.state.LoadString(name, code)
	if err != nil {
		t.Fatalf("LoadString(%s) error = %v", name, err)
	}
	f.sched.Spawn(fn)
}

func (f *schedulerFixture) run(t *testing.T) error {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return f.sched.Run(ctx)
}

func (f *schedulerFixture) global(name string) string {
	return f.state.GetGlobal(name).String()
}

func TestSchedulerSuspendedTaskLetsOthersRun(t *testing.T) {
	f := newSchedulerFixture(t)
	f.state.SetGlobal("order", glua.LString(""))

	f.spawn(t, "slow", `local v = sleep(50); order = order .. "slow:" .. v .. ";"`)
	f.spawn(t, "fast", `order = order .. "fast;"`)

	if err := f.run(t); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if got := f.global("order"); got != "fast;slow:slept;" {
		t.Errorf("order = %q, want %q", got, "fast;slow:slept;")
	}
	if f.sched.Pending() != 0 {
		t.Errorf("Pending() = %d, want 0", f.sched.Pending())
	}
}

func TestSchedulerPlainYieldRequeues(t *testing.T) {
	f := newSchedulerFixture(t)
	f.state.SetGlobal("order", glua.LString(""))

	for _, name := range []string{"a", "b"} {
		f.spawn(t, name, `
			for i = 1, 3 do
				order = order .. "`+name+`" .. i
				coroutine.yield()
			end
		`)
	}

	if err := f.run(t); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if got := f.global("order"); got != "a1b1a2b2a3b3" {
		t.Errorf("order = %q, want a1b1a2b2a3b3", got)
	}
}

func TestSchedulerErrorAfterSuspension(t *testing.T) {
	f := newSchedulerFixture(t)

	f.spawn(t, "caught", `
		local ok, err = pcall(fail, "boom")
		assert(not ok, "pcall should report failure")
		caught = err
		after = sleep(1)
	`)

	if err := f.run(t); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if got := f.global("caught"); got != "boom" {
		t.Errorf("caught = %q, want boom", got)
	}
	if got := f.global("after"); got != "slept" {
		t.Errorf("after = %q, want slept", got)
	}
}

func TestSchedulerPcallPassesValues(t *testing.T) {
	f := newSchedulerFixture(t)

	f.spawn(t, "values", `
		local ok, a, b = pcall(function()
			local v = sleep(1)
			coroutine.yield()
			return v, 2
		end)
		result = tostring(ok) .. "," .. a .. "," .. b
	`)

	if err := f.run(t); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if got := f.global("result"); got != "true,slept,2" {
		t.Errorf("result = %q, want true,slept,2", got)
	}
}

func TestSchedulerTaskError(t *testing.T) {
	f := newSchedulerFixture(t)

	f.spawn(t, "broken", `sleep(1); error("bad thing")`)

	err := f.run(t)
	var taskErr *TaskError
	if !errors.As(err, &taskErr) {
		t.Fatalf("Run() error = %v, want *TaskError", err)
	}
	if taskErr.Task != 1 {
		t.Errorf("Task = %d, want 1", taskErr.Task)
	}
	if !strings.Contains(err.Error(), "bad thing") {
		t.Errorf("error = %q, want it to mention the Lua message", err)
	}
}

func TestSchedulerUncaughtOpError(t *testing.T) {
	f := newSchedulerFixture(t)

	f.spawn(t, "uncaught", `fail("no such file")`)

	err := f.run(t)
	if err == nil || !strings.Contains(err.Error(), "no such file") {
		t.Errorf("Run() error = %v, want op error", err)
	}
}

func TestSchedulerContextCanceled(t *testing.T) {
	f := newSchedulerFixture(t)
	f.spawn(t, "forever", `sleep(60000)`)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	start := time.Now()
	err := f.sched.Run(ctx)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Run() error = %v, want DeadlineExceeded", err)
	}
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Errorf("Run() took %v after cancel", elapsed)
	}
	if f.sched.Pending() != 0 {
		t.Errorf("Pending() = %d after abandon, want 0", f.sched.Pending())
	}
}

func TestSchedulerSpawnWhileRunning(t *testing.T) {
	f := newSchedulerFixture(t)
	f.state.SetGlobal("order", glua.LString(""))

	f.spawn(t, "parent", `
		local id = spawn(function()
			sleep(1)
			order = order .. "child;"
		end)
		child_id = id
		order = order .. "parent;"
	`)

	if err := f.run(t); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if got := f.global("order"); got != "parent;child;" {
		t.Errorf("order = %q, want parent;child;", got)
	}
	if got := f.global("child_id"); got != "2" {
		t.Errorf("child_id = %s, want 2", got)
	}
}

func TestSchedulerAwaitOutsideRun(t *testing.T) {
	f := newSchedulerFixture(t)

	if err := f.state.DoString(`result = sleep(1)`); err != nil {
		t.Fatalf("DoString() error = %v", err)
	}
	if got := f.global("result"); got != "slept" {
		t.Errorf("result = %q, want slept", got)
	}

	err := f.state.DoString(`fail("inline")`)
	if err == nil || !strings.Contains(err.Error(), "inline") {
		t.Errorf("DoString() error = %v, want inline failure", err)
	}
}

func TestSchedulerOwnCoroutineBlocksInline(t *testing.T) {
	f := newSchedulerFixture(t)

	f.spawn(t, "own", `
		local co = coroutine.create(function()
			local v = sleep(1)
			coroutine.yield(v)
			return "done"
		end)
		local _, first = coroutine.resume(co)
		local _, second = coroutine.resume(co)
		result = first .. "," .. second
	`)

	if err := f.run(t); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if got := f.global("result"); got != "slept,done" {
		t.Errorf("result = %q, want slept,done", got)
	}
}

func TestSchedulerRunReentrant(t *testing.T) {
	f := newSchedulerFixture(t)

	var nested error
	f.state.SetGlobal("nested", f.state.L.NewFunction(func(L *glua.LState) int {
		nested = f.sched.Run(context.Background())
		return 0
	}))
	f.spawn(t, "reenter", `nested()`)

	if err := f.run(t); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if !errors.Is(nested, ErrSchedulerRunning) {
		t.Errorf("nested Run() error = %v, want ErrSchedulerRunning", nested)
	}
}

func TestSchedulerErrorFormatter(t *testing.T) {
	state := newTestState(t)
	sched, err := NewScheduler(state, WithErrorFormatter(func(err error) string {
		return "Formatted: " + err.Error()
	}))
	if err != nil {
		t.Fatal(err)
	}
	state.SetGlobal("fail", sched.Wrap(func(L *glua.LState) int {
		return sched.Await(L, func(context.Context) (Completion, error) {
			return nil, errors.New("x")
		})
	}))

	fn, err := state.LoadString("fmt", `local _, e = pcall(fail); result = e`)
	if err != nil {
		t.Fatal(err)
	}
	sched.Spawn(fn)
	if err := sched.Run(context.Background()); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if got := state.GetGlobal("result").String(); got != "Formatted: x" {
		t.Errorf("result = %q, want %q", got, "Formatted: x")
	}
}
