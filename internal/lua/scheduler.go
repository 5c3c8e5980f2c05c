package lua

import (
	"context"
	"fmt"

	lua "github.com/yuin/gopher-lua"

	"github.com/dshills/luaproc/internal/logging"
)

// Completion builds the values a suspended task resumes with. It runs on the
// scheduler goroutine, so it may create Lua values.
type Completion func(L *lua.LState) []lua.LValue

// Op is work done off the scheduler goroutine for a suspended task. It must
// return promptly once ctx is done.
type Op func(ctx context.Context) (Completion, error)

type task struct {
	id     int
	fn     *lua.LFunction
	args   []lua.LValue
	co     *lua.LState
	cancel context.CancelFunc

	// waiting is true while an Op is in flight.
	waiting bool
}

type completion struct {
	t    *task
	done Completion
	err  error
}

// Scheduler runs Lua tasks cooperatively on a single goroutine.
//
// All methods except Run must be called from Lua functions running under the
// scheduler, or before Run.
type Scheduler struct {
	L   *lua.LState
	log *logging.Logger

	formatErr func(error) string

	nextID   int
	tasks    map[*lua.LState]*task
	threads  map[*lua.LState]*task // coroutines created by the pcall shim
	runnable []*task
	waiting  int
	current  *task

	completions chan completion
	ctx         context.Context
	running     bool

	wrapper *lua.LFunction
}

// SchedulerOption configures a Scheduler.
type SchedulerOption func(*Scheduler)

// WithSchedulerLogger sets the logger.
func WithSchedulerLogger(l *logging.Logger) SchedulerOption {
	return func(s *Scheduler) {
		s.log = l
	}
}

// WithErrorFormatter sets how Op errors are rendered as Lua error messages.
func WithErrorFormatter(fn func(error) string) SchedulerOption {
	return func(s *Scheduler) {
		s.formatErr = fn
	}
}

// wrapSource turns a function following the (ok, ...) convention into one
// that raises on failure.
const wrapSource = `
local function check(ok, ...)
	if not ok then
		error((...), 0)
	end
	return ...
end
return function(raw)
	return function(...)
		return check(raw(...))
	end
end
`

// pcallSource runs the protected function in a coroutine and passes its
// yields through, so suspending calls work inside pcall.
const pcallSource = `
local mark, unmark = ...
local create, resume, yield, status = coroutine.create, coroutine.resume, coroutine.yield, coroutine.status
local function step(co, ok, ...)
	if not ok then
		unmark(co)
		return false, ...
	end
	if status(co) == "dead" then
		unmark(co)
		return true, ...
	end
	return step(co, resume(co, yield(...)))
end
return function(f, ...)
	local co = create(function(...) return f(...) end)
	mark(co)
	return step(co, resume(co, ...))
end
`

// NewScheduler creates a scheduler for state and replaces pcall with a
// version that lets tasks suspend inside it.
func NewScheduler(state *State, opts ...SchedulerOption) (*Scheduler, error) {
	s := &Scheduler{
		L:           state.L,
		log:         logging.Null(),
		formatErr:   func(err error) string { return err.Error() },
		tasks:       make(map[*lua.LState]*task),
		threads:     make(map[*lua.LState]*task),
		completions: make(chan completion),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.log = s.log.WithComponent("scheduler")

	wrapper, err := s.build("=wrap", wrapSource)
	if err != nil {
		return nil, err
	}
	s.wrapper = wrapper

	pcall, err := s.build("=pcall", pcallSource,
		s.L.NewFunction(s.markThread), s.L.NewFunction(s.unmarkThread))
	if err != nil {
		return nil, err
	}
	s.L.SetGlobal("pcall", pcall)

	return s, nil
}

// build compiles src and calls it with args, returning the function it
// produces.
func (s *Scheduler) build(name, src string, args ...lua.LValue) (*lua.LFunction, error) {
	chunk, err := s.L.LoadString(src)
	if err != nil {
		return nil, fmt.Errorf("compile %s: %w", name, err)
	}
	if err := s.L.CallByParam(lua.P{Fn: chunk, NRet: 1, Protect: true}, args...); err != nil {
		return nil, fmt.Errorf("run %s: %w", name, err)
	}
	ret := s.L.Get(-1)
	s.L.Pop(1)

	fn, ok := ret.(*lua.LFunction)
	if !ok {
		return nil, fmt.Errorf("%s returned %s, not a function", name, ret.Type())
	}
	return fn, nil
}

func (s *Scheduler) markThread(L *lua.LState) int {
	co := L.CheckThread(1)
	if t := s.owner(L); t != nil {
		s.threads[co] = t
	}
	return 0
}

func (s *Scheduler) unmarkThread(L *lua.LState) int {
	delete(s.threads, L.CheckThread(1))
	return 0
}

// owner returns the task L belongs to, or nil outside any task.
func (s *Scheduler) owner(L *lua.LState) *task {
	if !s.running {
		return nil
	}
	if t, ok := s.tasks[L]; ok {
		return t
	}
	return s.threads[L]
}

// Wrap exposes fn to Lua. fn must push true before its results, call Await,
// or raise. The returned function raises when fn reports failure after a
// suspension.
func (s *Scheduler) Wrap(fn lua.LGFunction) *lua.LFunction {
	if err := s.L.CallByParam(lua.P{Fn: s.wrapper, NRet: 1, Protect: true}, s.L.NewFunction(fn)); err != nil {
		panic(fmt.Sprintf("lua: wrap function: %v", err))
	}
	ret := s.L.Get(-1)
	s.L.Pop(1)
	return ret.(*lua.LFunction)
}

// Return pushes a successful result for a wrapped function.
func (s *Scheduler) Return(L *lua.LState, values ...lua.LValue) int {
	L.Push(lua.LTrue)
	for _, v := range values {
		L.Push(v)
	}
	return len(values) + 1
}

// Raise raises err as a Lua error using the scheduler's error formatter.
func (s *Scheduler) Raise(L *lua.LState, err error) int {
	L.RaiseError("%s", s.formatErr(err))
	return 0
}

// Await suspends the calling task until op completes. Outside a task it runs
// op inline and blocks.
//
// The Go function must return Await's result directly.
func (s *Scheduler) Await(L *lua.LState, op Op) int {
	t := s.owner(L)
	if t == nil {
		return s.awaitInline(L, op)
	}

	t.waiting = true
	s.waiting++

	ctx := s.ctx
	go func() {
		done, err := op(ctx)
		select {
		case s.completions <- completion{t: t, done: done, err: err}:
		case <-ctx.Done():
		}
	}()

	return L.Yield()
}

func (s *Scheduler) awaitInline(L *lua.LState, op Op) int {
	ctx := L.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	done, err := op(ctx)
	if err != nil {
		return s.Raise(L, err)
	}
	var values []lua.LValue
	if done != nil {
		values = done(L)
	}
	return s.Return(L, values...)
}

// Spawn queues fn as a new task and returns its id. The task starts on the
// next scheduling round.
func (s *Scheduler) Spawn(fn *lua.LFunction, args ...lua.LValue) int {
	s.nextID++
	t := &task{id: s.nextID, fn: fn, args: args}
	s.runnable = append(s.runnable, t)
	return t.id
}

// Pending returns the number of tasks that have not finished.
func (s *Scheduler) Pending() int {
	return len(s.runnable) + s.waiting
}

// Run drives tasks until all have finished, one fails, or ctx is done.
//
// A failing task is reported as a *TaskError. Remaining tasks are dropped
// when Run returns; their in-flight operations see ctx canceled.
func (s *Scheduler) Run(ctx context.Context) error {
	if s.running {
		return ErrSchedulerRunning
	}

	runCtx, cancel := context.WithCancel(ctx)
	s.running = true
	s.ctx = runCtx
	s.L.SetContext(runCtx)

	defer func() {
		cancel()
		s.abandon()
		s.L.RemoveContext()
		s.running = false
		s.ctx = nil
	}()

	for {
		for len(s.runnable) > 0 {
			t := s.runnable[0]
			s.runnable[0] = nil
			s.runnable = s.runnable[1:]

			if err := s.step(t); err != nil {
				return err
			}
		}

		if s.waiting == 0 {
			return nil
		}

		select {
		case c := <-s.completions:
			s.complete(c)
		case <-runCtx.Done():
			return runCtx.Err()
		}
	}
}

func (s *Scheduler) step(t *task) error {
	if t.co == nil {
		t.co, t.cancel = s.L.NewThread()
		s.tasks[t.co] = t
		s.log.WithField("task", t.id).Debug("task started")
	}

	s.current = t
	st, err, _ := s.L.Resume(t.co, t.fn, t.args...)
	s.current = nil
	t.args = nil

	switch st {
	case lua.ResumeError:
		s.finish(t)
		if ctxErr := s.ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		s.log.WithField("task", t.id).Debug("task failed: %v", err)
		return &TaskError{Task: t.id, Err: err}
	case lua.ResumeOK:
		s.finish(t)
		s.log.WithField("task", t.id).Debug("task finished")
	default:
		// A plain yield gives the other tasks a turn.
		if !t.waiting {
			s.runnable = append(s.runnable, t)
		}
	}
	return nil
}

func (s *Scheduler) complete(c completion) {
	t := c.t
	t.waiting = false
	s.waiting--

	if c.err != nil {
		t.args = []lua.LValue{lua.LFalse, lua.LString(s.formatErr(c.err))}
	} else {
		t.args = []lua.LValue{lua.LTrue}
		if c.done != nil {
			t.args = append(t.args, c.done(t.co)...)
		}
	}
	s.runnable = append(s.runnable, t)
}

func (s *Scheduler) finish(t *task) {
	delete(s.tasks, t.co)
	for co, owner := range s.threads {
		if owner == t {
			delete(s.threads, co)
		}
	}
	if t.cancel != nil {
		t.cancel()
	}
}

// abandon drops every task that has not finished.
func (s *Scheduler) abandon() {
	for _, t := range s.tasks {
		s.finish(t)
	}
	s.runnable = nil
	s.waiting = 0
	s.current = nil
}
