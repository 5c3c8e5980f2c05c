package api

import (
	"context"
	"os"

	lua "github.com/yuin/gopher-lua"

	plua "github.com/dshills/luaproc/internal/lua"
	"github.com/dshills/luaproc/internal/process"
	"github.com/dshills/luaproc/internal/resource"
)

// ProcessModule implements the process API module.
type ProcessModule struct {
	ctx *Context
}

// NewProcessModule creates a new process module.
func NewProcessModule(ctx *Context) *ProcessModule {
	return &ProcessModule{ctx: ctx}
}

// Name returns the module name.
func (m *ProcessModule) Name() string {
	return "process"
}

// Register builds the module table.
func (m *ProcessModule) Register(L *lua.LState) (*lua.LTable, error) {
	sched := m.ctx.Scheduler
	mod := L.NewTable()

	L.SetField(mod, "run", L.NewFunction(m.run))
	L.SetField(mod, "status", sched.Wrap(m.status))
	L.SetField(mod, "kill", L.NewFunction(m.kill))
	L.SetField(mod, "pid", L.NewFunction(m.pid))

	return mod, nil
}

type runTable struct {
	Rid       resource.ID  `lua:"rid"`
	Pid       int          `lua:"pid"`
	StdinRid  *resource.ID `lua:"stdin_rid"`
	StdoutRid *resource.ID `lua:"stdout_rid"`
	StderrRid *resource.ID `lua:"stderr_rid"`
}

type statusTable struct {
	GotSignal  bool `lua:"got_signal"`
	ExitCode   int  `lua:"exit_code"`
	ExitSignal int  `lua:"exit_signal"`
}

// run(opts) -> {rid, pid, stdin_rid, stdout_rid, stderr_rid}
func (m *ProcessModule) run(L *lua.LState) int {
	opts := L.CheckTable(1)

	args, err := m.runArgs(opts)
	if err != nil {
		return m.ctx.Scheduler.Raise(L, err)
	}

	res, err := m.ctx.Process.Run(args)
	if err != nil {
		return m.ctx.Scheduler.Raise(L, err)
	}

	L.Push(m.ctx.Bridge.ToLuaValue(runTable{
		Rid:       res.Rid,
		Pid:       res.Pid,
		StdinRid:  res.StdinRid,
		StdoutRid: res.StdoutRid,
		StderrRid: res.StderrRid,
	}))
	return 1
}

func (m *ProcessModule) runArgs(opts *lua.LTable) (process.RunArgs, error) {
	var args process.RunArgs
	b := m.ctx.Bridge

	cmd, ok := b.GetTableTable(opts, "cmd")
	if !ok {
		return args, invalidArg("cmd must be a list of strings")
	}
	for i := 1; i <= cmd.Len(); i++ {
		switch v := cmd.RawGetInt(i).(type) {
		case lua.LString, lua.LNumber:
			args.Cmd = append(args.Cmd, v.String())
		default:
			return args, invalidArg("cmd[%d] is a %s, not a string", i, v.Type())
		}
	}

	if v := opts.RawGetString("cwd"); v != lua.LNil {
		s, ok := v.(lua.LString)
		if !ok {
			return args, invalidArg("cwd is a %s, not a string", v.Type())
		}
		args.Cwd = string(s)
	}

	if v := opts.RawGetString("env"); v != lua.LNil {
		env, ok := v.(*lua.LTable)
		if !ok {
			return args, invalidArg("env is a %s, not a table", v.Type())
		}
		vars, err := envVars(b, env)
		if err != nil {
			return args, err
		}
		args.Env = vars
	}

	streams := []struct {
		name string
		mode *process.StdioMode
		rid  *resource.ID
	}{
		{"stdin", &args.Stdin, &args.StdinRid},
		{"stdout", &args.Stdout, &args.StdoutRid},
		{"stderr", &args.Stderr, &args.StderrRid},
	}
	for _, s := range streams {
		if v := opts.RawGetString(s.name); v != lua.LNil {
			str, ok := v.(lua.LString)
			if !ok {
				return args, invalidArg("%s is a %s, not a string", s.name, v.Type())
			}
			mode, err := process.ParseStdioMode(string(str))
			if err != nil {
				return args, err
			}
			*s.mode = mode
		} else {
			*s.mode = process.Inherit
		}

		if v := opts.RawGetString(s.name + "_rid"); v != lua.LNil {
			num, ok := v.(lua.LNumber)
			if !ok {
				return args, invalidArg("%s_rid is a %s, not a number", s.name, v.Type())
			}
			rid, err := ridFrom(num)
			if err != nil {
				return args, err
			}
			*s.rid = rid
		}
	}

	return args, nil
}

// envVars accepts either a map of names to values or a list of
// {name, value} pairs. Pairs keep their order.
func envVars(b *plua.Bridge, env *lua.LTable) ([]process.EnvVar, error) {
	if n := env.Len(); n > 0 {
		vars := make([]process.EnvVar, 0, n)
		for i := 1; i <= n; i++ {
			pair, ok := env.RawGetInt(i).(*lua.LTable)
			if !ok {
				return nil, invalidArg("env[%d] is not a {name, value} pair", i)
			}
			k, kok := pair.RawGetInt(1).(lua.LString)
			v := pair.RawGetInt(2)
			if !kok || (v.Type() != lua.LTString && v.Type() != lua.LTNumber) {
				return nil, invalidArg("env[%d] is not a {name, value} pair", i)
			}
			vars = append(vars, process.EnvVar{Key: string(k), Value: v.String()})
		}
		return vars, nil
	}

	pairs, err := b.StringMap(env)
	if err != nil {
		return nil, invalidArg("env: %v", err)
	}
	vars := make([]process.EnvVar, len(pairs))
	for i, p := range pairs {
		vars[i] = process.EnvVar{Key: p[0], Value: p[1]}
	}
	return vars, nil
}

// status(rid) -> {got_signal, exit_code, exit_signal}
// Returns at once when the child has exited; otherwise suspends the task.
func (m *ProcessModule) status(L *lua.LState) int {
	sched := m.ctx.Scheduler

	rid, err := toRid(L, 1)
	if err != nil {
		return sched.Raise(L, err)
	}

	res, exited, err := m.ctx.Process.Poll(rid)
	if err != nil {
		return sched.Raise(L, err)
	}
	if exited {
		return sched.Return(L, m.statusValue(res))
	}

	return sched.Await(L, func(ctx context.Context) (plua.Completion, error) {
		res, err := m.ctx.Process.Status(ctx, rid)
		if err != nil {
			return nil, err
		}
		return func(*lua.LState) []lua.LValue {
			return []lua.LValue{m.statusValue(res)}
		}, nil
	})
}

func (m *ProcessModule) statusValue(res process.StatusResult) lua.LValue {
	return m.ctx.Bridge.ToLuaValue(statusTable{
		GotSignal:  res.GotSignal,
		ExitCode:   res.ExitCode,
		ExitSignal: res.ExitSignal,
	})
}

// kill(pid, signo)
// signo is a number or a name such as "SIGTERM".
func (m *ProcessModule) kill(L *lua.LState) int {
	pid := L.CheckInt(1)

	var signo int
	switch v := L.Get(2).(type) {
	case lua.LNumber:
		signo = int(v)
	case lua.LString:
		n, ok := process.SignalNum(string(v))
		if !ok {
			return m.ctx.Scheduler.Raise(L, invalidArg("unknown signal %q", string(v)))
		}
		signo = n
	default:
		L.ArgError(2, "signal must be a number or a name")
		return 0
	}

	if err := m.ctx.Process.Kill(process.KillArgs{Pid: pid, Signo: signo}); err != nil {
		return m.ctx.Scheduler.Raise(L, err)
	}
	return 0
}

// pid() -> number
func (m *ProcessModule) pid(L *lua.LState) int {
	L.Push(lua.LNumber(os.Getpid()))
	return 1
}
